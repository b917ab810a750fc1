package models

// TaskCode is the wire-level classification outcome for a turn. Positive
// values name a real task; negative values name a terminal error or
// fallback condition. These integers cross the HTTP boundary unchanged —
// client code branches on them — so the constants below must never be
// renumbered.
type TaskCode int

const (
	// TaskClassify is the classifier's own internal mode; it is never
	// returned to a client.
	TaskClassify TaskCode = 0

	// TaskKnowledge routes to the Knowledge Pipeline.
	TaskKnowledge TaskCode = 1
	// TaskSubmitJob routes to the Remote-Job submission workflow.
	TaskSubmitJob TaskCode = 2
	// TaskFetchJobResult routes to the Remote-Job retrieval workflow.
	TaskFetchJobResult TaskCode = 3

	// TaskInconclusive means classification could not pick a task;
	// handled by the general-answer fallback.
	TaskInconclusive TaskCode = -1

	// TaskUserAborted means the abort flag was observed at a suspension point.
	TaskUserAborted TaskCode = -100
	// TaskUpstreamTimeout means an LLM or remote call exceeded its timeout.
	TaskUpstreamTimeout TaskCode = -101
	// TaskUpstreamNetwork means a connection/transport failure occurred upstream.
	TaskUpstreamNetwork TaskCode = -102
	// TaskUpstreamAuth means an upstream credit/auth failure occurred.
	TaskUpstreamAuth TaskCode = -103
)

// ClassifierAllowedCodes is the authoritative set the classifier's
// parser may resolve to, mirroring the original source's
// `self.supported_modes = [1, 2, 3, -1]`.
var ClassifierAllowedCodes = []TaskCode{1, 2, 3, -1}

// IsClassifierAllowed reports whether code is one the classifier may return.
func IsClassifierAllowed(code TaskCode) bool {
	for _, c := range ClassifierAllowedCodes {
		if c == code {
			return true
		}
	}
	return false
}
