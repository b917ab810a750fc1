// Package generalanswer implements the fallback handler for
// models.TaskInconclusive: the Intent Classifier couldn't place the
// request into any of the other task codes, so this handler answers
// directly from the conversation with a single LLM call, grounding
// itself in prior turns when history is available. Grounded on
// original_source's app/agent/core/agent_orchestrator.py
// _handle_general_answer and
// app/agent/core/response_generator.py generate_general_answer, whose
// GENERAL_ANSWER_TEMPLATE / GENERAL_ANSWER_WITH_HISTORY_TEMPLATE split
// is mirrored in generalAnswerPrompt below.
package generalanswer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/buxiuxian/summer-project/pkg/billing"
	"github.com/buxiuxian/summer-project/pkg/llmclient"
	"github.com/buxiuxian/summer-project/pkg/models"
	"github.com/buxiuxian/summer-project/pkg/progress"
	"github.com/buxiuxian/summer-project/pkg/registry"
)

// Handler implements registry.Handler for models.TaskInconclusive.
type Handler struct {
	llm     llmclient.Client
	billing *billing.Manager
	hub     *progress.Hub
	opts    llmclient.CompletionOptions
}

// New constructs a Handler.
func New(llm llmclient.Client, billingMgr *billing.Manager, hub *progress.Hub, opts llmclient.CompletionOptions) *Handler {
	return &Handler{llm: llm, billing: billingMgr, hub: hub, opts: opts}
}

// SupportedCodes implements registry.Handler.
func (h *Handler) SupportedCodes() []models.TaskCode {
	return []models.TaskCode{models.TaskInconclusive}
}

// Handle implements registry.Handler.
func (h *Handler) Handle(ctx context.Context, in registry.Input) (registry.Output, error) {
	h.hub.Publish(in.SessionID, models.ProgressEvent{SessionID: in.SessionID, Stage: models.StageLLMCall, Message: "answering generally", Timestamp: time.Now()})

	human, system := generalAnswerPrompt(in.Message, in.Files, in.History)
	answer, err := h.llm.Complete(ctx, human, system, h.opts)
	if err != nil {
		return registry.Output{}, fmt.Errorf("general answer generation: %w", err)
	}
	h.billing.RecordLLMCall(in.SessionID)

	return registry.Output{Text: answer, Status: "general_answer"}, nil
}

func generalAnswerPrompt(message string, files []models.UploadedFile, history []models.ChatMessage) (human, system string) {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		sb.WriteString(formatHistory(history))
		sb.WriteString("\n\nCurrent question: ")
	} else {
		sb.WriteString("Question: ")
	}
	sb.WriteString(message)
	if len(files) > 0 {
		sb.WriteString("\n\nAttached files: ")
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.Filename
		}
		sb.WriteString(strings.Join(names, ", "))
	}

	system = "You are a remote-sensing domain expert assistant. Answer the question accurately; " +
		"if it falls outside your area of expertise, say so honestly and suggest where the user might look instead."
	if len(history) > 0 {
		system += " Keep your answer consistent with the conversation history above."
	}
	return sb.String(), system
}

// formatHistory mirrors original_source's format_chat_history: one line
// per message, labeled by role.
func formatHistory(history []models.ChatMessage) string {
	var sb strings.Builder
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			sb.WriteString("User: ")
		case models.RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			fmt.Fprintf(&sb, "%s: ", m.Role)
		}
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
