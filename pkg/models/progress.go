package models

import "time"

// Stage is one point in a turn's lifecycle, reported on the Progress Channel.
type Stage string

const (
	StageInit       Stage = "init"
	StageAnalyzing  Stage = "analyzing"
	StageProcessing Stage = "processing"
	StageLLMCall    Stage = "llm_call"
	StageCompleting Stage = "completing"
	StageCompleted  Stage = "completed"
	StageAborted    Stage = "aborted"
	StageError      Stage = "error"
	StageHeartbeat  Stage = "heartbeat"
)

// ProgressEvent is one record in a session's progress stream. Ordered
// per session; never reordered; the ring buffer retains the most
// recent N (see pkg/progress).
type ProgressEvent struct {
	SessionID       string         `json:"session_id"`
	Message         string         `json:"message"`
	Stage           Stage          `json:"stage"`
	ProgressPercent int            `json:"progress_percent"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}
