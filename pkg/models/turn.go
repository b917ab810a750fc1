package models

// UploadedFile is a single file attached to a turn. Text extraction
// happens outside the core (spec §1 out-of-scope); the core only ever
// sees the already-extracted text.
type UploadedFile struct {
	Filename string
	Content  string
}

// TurnRequest is the input to the Turn Orchestrator's handle_turn operation.
type TurnRequest struct {
	Message   string
	Files     []UploadedFile
	ChatID    string
	Token     string
	SessionID string
}

// TurnResult is the output of handle_turn — the shape the HTTP layer
// marshals into the chat response body.
type TurnResult struct {
	Text      string
	TaskCode  TaskCode
	Status    string
	SessionID string
	ChatID    string
	ChatTitle string
	Sources   []Source
	Billing   BillingInfo
	Credit    CreditInfo
}

// Source describes one retrieved knowledge snippet surfaced to the client.
type Source struct {
	Content    string
	SourceName string
	Similarity float64
	FileID     string
	Previewable bool
}

// BillingInfo is the client-visible settlement summary for one turn.
type BillingInfo struct {
	LLMCalls   int
	RemoteJobs int
	Cost       int
}

// CreditInfo is the client-visible outcome of the SETTLE step.
type CreditInfo struct {
	LocalMode bool
	Deducted  int
	Remaining int
	Success   bool
	Message   string
}
