package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/buxiuxian/summer-project/pkg/models"
)

// ChatRequest is the HTTP request body for POST /api/v1/chat.
type ChatRequest struct {
	Message   string            `json:"message"`
	Files     []ChatRequestFile `json:"files,omitempty"`
	ChatID    string            `json:"chat_id,omitempty"`
	Token     string            `json:"token,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
}

// ChatRequestFile is one attached, already-text-extracted file.
type ChatRequestFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// ChatResponse is the HTTP response body for POST /api/v1/chat, mirroring
// models.TurnResult (spec.md §4.1 "EMIT" output).
type ChatResponse struct {
	Text      string       `json:"text"`
	TaskCode  int          `json:"task_code"`
	Status    string       `json:"status"`
	SessionID string       `json:"session_id"`
	ChatID    string       `json:"chat_id"`
	ChatTitle string       `json:"chat_title"`
	Sources   []ChatSource `json:"sources,omitempty"`
	Billing   ChatBilling  `json:"billing"`
	Credit    ChatCredit   `json:"credit"`
}

// ChatSource mirrors models.Source for the wire format.
type ChatSource struct {
	Content     string  `json:"content"`
	SourceName  string  `json:"source_name"`
	Similarity  float64 `json:"similarity"`
	FileID      string  `json:"file_id"`
	Previewable bool    `json:"previewable"`
}

// ChatBilling mirrors models.BillingInfo for the wire format.
type ChatBilling struct {
	LLMCalls   int `json:"llm_calls"`
	RemoteJobs int `json:"remote_jobs"`
	Cost       int `json:"cost"`
}

// ChatCredit mirrors models.CreditInfo for the wire format.
type ChatCredit struct {
	LocalMode bool   `json:"local_mode"`
	Deducted  int    `json:"deducted"`
	Remaining int    `json:"remaining"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
}

// sendChatHandler handles POST /api/v1/chat, the single entry point for
// every chat turn (spec.md §4.1 handle_turn). A missing session_id
// starts a new conversation; the orchestrator assigns one.
func (s *Server) sendChatHandler(c *echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" && len(req.Files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "message or files required")
	}

	files := make([]models.UploadedFile, len(req.Files))
	for i, f := range req.Files {
		files[i] = models.UploadedFile{Filename: f.Filename, Content: f.Content}
	}

	result, err := s.orchestrator.HandleTurn(c.Request().Context(), models.TurnRequest{
		Message:   req.Message,
		Files:     files,
		ChatID:    req.ChatID,
		Token:     req.Token,
		SessionID: req.SessionID,
	})
	if err != nil {
		slog.Error("sendChatHandler: turn processing failed", "session_id", req.SessionID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "turn processing failed")
	}

	return c.JSON(statusHTTPCode(result.Status), toChatResponse(result))
}

// statusHTTPCode maps a TurnResult's client-facing status tag to the HTTP
// status code the response should carry. HandleTurn never returns a bare
// Go error for these cases — auth and credit failures are always
// swallowed into a TurnResult — so the mapping is keyed on the status
// string rather than on error identity.
func statusHTTPCode(status string) int {
	switch status {
	case "auth_missing":
		return http.StatusUnauthorized
	case "insufficient_credit":
		return http.StatusPaymentRequired
	default:
		return http.StatusOK
	}
}

func toChatResponse(r models.TurnResult) ChatResponse {
	sources := make([]ChatSource, len(r.Sources))
	for i, src := range r.Sources {
		sources[i] = ChatSource{
			Content:     src.Content,
			SourceName:  src.SourceName,
			Similarity:  src.Similarity,
			FileID:      src.FileID,
			Previewable: src.Previewable,
		}
	}
	return ChatResponse{
		Text:      r.Text,
		TaskCode:  int(r.TaskCode),
		Status:    r.Status,
		SessionID: r.SessionID,
		ChatID:    r.ChatID,
		ChatTitle: r.ChatTitle,
		Sources:   sources,
		Billing: ChatBilling{
			LLMCalls:   r.Billing.LLMCalls,
			RemoteJobs: r.Billing.RemoteJobs,
			Cost:       r.Billing.Cost,
		},
		Credit: ChatCredit{
			LocalMode: r.Credit.LocalMode,
			Deducted:  r.Credit.Deducted,
			Remaining: r.Credit.Remaining,
			Success:   r.Credit.Success,
			Message:   r.Credit.Message,
		},
	}
}
