package models

import "time"

// BillingDetail is one counted event within a turn, kept for diagnostics.
type BillingDetail struct {
	Kind      string    `json:"kind"` // "llm_call" | "remote_job"
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BillingCounter accumulates the billable events of one session's
// in-flight turn. Lazily created on first event, cleared on settlement.
type BillingCounter struct {
	LLMCalls   int
	RemoteJobs int
	StartTime  time.Time
	Details    []BillingDetail
}

// Cost computes the floored settlement amount per spec.md §4.7.
func (c *BillingCounter) Cost(llmFactor, jobFactor float64) int {
	return int(float64(c.LLMCalls)*llmFactor + float64(c.RemoteJobs)*jobFactor)
}
