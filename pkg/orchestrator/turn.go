// Package orchestrator implements the Turn Orchestrator (spec.md §4.1),
// the central state machine every chat turn passes through. Grounded on
// tarsy's pkg/queue/executor.go RealSessionExecutor.Execute: a linear
// stage sequence with a cancellation check before each expensive step
// and a deferred, always-runs settlement/cleanup step regardless of
// which stage the turn exits from. Generalized here from "execute one
// chain of configured agent stages" down to this spec's fixed ten-step
// turn pipeline (INIT, AUTH, LOAD_HISTORY, CLASSIFY, BRANCH,
// CREDIT_PREFLIGHT, EXECUTE, SETTLE, PERSIST_SESSION, EMIT).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/buxiuxian/summer-project/pkg/auth"
	"github.com/buxiuxian/summer-project/pkg/billing"
	"github.com/buxiuxian/summer-project/pkg/config"
	"github.com/buxiuxian/summer-project/pkg/models"
	"github.com/buxiuxian/summer-project/pkg/progress"
	"github.com/buxiuxian/summer-project/pkg/registry"
)

// Classifier is the Intent Classifier collaborator (spec.md §4.4).
// Implemented by pkg/classifier; tests substitute a fake.
type Classifier interface {
	Classify(ctx context.Context, sessionID string, history []models.ChatMessage, message string) (models.TaskCode, error)
}

// SessionStore is the dual-backend Session Store collaborator (spec.md
// §4.6). Implemented by pkg/sessionstore; tests substitute a fake.
type SessionStore interface {
	LoadOrCreate(ctx context.Context, token, sessionID string) (*models.ChatSession, error)
	Save(ctx context.Context, token string, session *models.ChatSession) error
}

// errorResponses maps the negative terminal task codes to the
// client-visible text returned in place of a real answer (spec.md §7
// error taxonomy: every upstream failure still produces a TurnResult,
// never a bare transport error).
var errorResponses = map[models.TaskCode]string{
	models.TaskUserAborted:      "Your request was cancelled.",
	models.TaskUpstreamTimeout:  "The request took too long to complete. Please try again.",
	models.TaskUpstreamNetwork:  "A network error occurred while processing your request.",
	models.TaskUpstreamAuth:     "Authentication with an upstream service failed.",
	models.TaskInconclusive:     "",
}

// Orchestrator wires together every collaborator the turn pipeline
// needs. It holds no per-turn state itself — all of that lives in the
// managers/registries passed into New, mirroring tarsy's stateless
// RealSessionExecutor (one executor instance, many concurrent turns).
type Orchestrator struct {
	cfg        *config.Config
	abort      *AbortRegistry
	billingMgr *billing.Manager
	credit     billing.CreditClient
	hub        *progress.Hub
	store      SessionStore
	classifier Classifier
	handlers   *registry.Registry
}

// New constructs an Orchestrator from its collaborators.
func New(cfg *config.Config, abort *AbortRegistry, billingMgr *billing.Manager, credit billing.CreditClient, hub *progress.Hub, store SessionStore, classifier Classifier, handlers *registry.Registry) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		abort:      abort,
		billingMgr: billingMgr,
		credit:     credit,
		hub:        hub,
		store:      store,
		classifier: classifier,
		handlers:   handlers,
	}
}

// HandleTurn implements spec.md §4.1's handle_turn operation end to end.
func (o *Orchestrator) HandleTurn(parent context.Context, req models.TurnRequest) (models.TurnResult, error) {
	// --- INIT ---
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	ctx, done := o.abort.Begin(parent, sessionID)
	defer done()

	logger := slog.With("session_id", sessionID, "chat_id", req.ChatID)
	logger.Info("turn: starting")

	o.hub.Publish(sessionID, models.ProgressEvent{SessionID: sessionID, Stage: models.StageInit, Message: "starting", Timestamp: time.Now()})

	// --- AUTH ---
	token, err := auth.Resolve(o.cfg.Mode, req.Token, o.cfg.Defaults.LocalToken)
	if err != nil {
		logger.Warn("turn: auth failed", "error", err)
		return o.terminal(ctx, sessionID, req.ChatID, models.TaskUpstreamAuth, "Missing or invalid credentials.", "auth_missing"), nil
	}

	// --- LOAD_HISTORY ---
	session, err := o.store.LoadOrCreate(ctx, token, sessionID)
	if err != nil {
		logger.Error("turn: failed to load session history", "error", err)
		return o.terminal(ctx, sessionID, req.ChatID, models.TaskUpstreamNetwork, "Could not load conversation history.", "network_error"), nil
	}
	if Aborted(ctx) {
		return o.terminal(ctx, sessionID, req.ChatID, models.TaskUserAborted, errorResponses[models.TaskUserAborted], "user_aborted"), nil
	}

	history := session.Truncated(o.cfg.Defaults.MaxContext)

	// --- CLASSIFY ---
	o.hub.Publish(sessionID, models.ProgressEvent{SessionID: sessionID, Stage: models.StageAnalyzing, Message: "classifying", Timestamp: time.Now()})
	code, err := o.classifier.Classify(ctx, sessionID, history, req.Message)
	if err != nil {
		logger.Error("turn: classification failed", "error", err)
		return o.terminal(ctx, sessionID, req.ChatID, classifyErrorCode(err), "Could not classify your request.", classifyErrorStatus(err)), nil
	}
	logger.Info("turn: classified", "task_code", code)
	if Aborted(ctx) {
		return o.terminal(ctx, sessionID, req.ChatID, models.TaskUserAborted, errorResponses[models.TaskUserAborted], "user_aborted"), nil
	}
	// The classifier reports upstream LLM failures as task codes rather
	// than errors; those end the turn with their canned response.
	switch code {
	case models.TaskUpstreamTimeout:
		return o.terminal(ctx, sessionID, req.ChatID, code, "", "llm_timeout"), nil
	case models.TaskUpstreamNetwork:
		return o.terminal(ctx, sessionID, req.ChatID, code, "", "network_error"), nil
	case models.TaskUpstreamAuth:
		return o.terminal(ctx, sessionID, req.ChatID, code, "", "api_error"), nil
	}

	// --- BRANCH ---
	result, execErr := o.branch(ctx, sessionID, token, req, history, code)

	// --- CREDIT_PREFLIGHT handled inside branch (only for tasks that
	// reach EXECUTE) ---

	// --- SETTLE (always runs, success or failure) ---
	creditInfo := billing.Settle(ctx, o.billingMgr, o.credit, o.cfg.Mode, o.cfg.Defaults, sessionID, token)
	snapshot := o.billingMgr.Snapshot(sessionID)
	billingInfo := models.BillingInfo{LLMCalls: snapshot.LLMCalls, RemoteJobs: snapshot.RemoteJobs, Cost: snapshot.Cost(o.cfg.Defaults.LLMFactor, o.cfg.Defaults.JobFactor)}

	if execErr != nil {
		status := executionErrorStatus(ctx, execErr)
		text := "Something went wrong while handling your request."
		if status == "insufficient_credit" {
			text = "You don't have enough credit to complete this request."
		}
		logger.Error("turn: execution failed", "error", execErr, "status", status)
		tr := o.terminal(ctx, sessionID, req.ChatID, executionErrorCode(ctx, execErr), text, status)
		tr.Billing = billingInfo
		tr.Credit = creditInfo
		return tr, nil
	}

	// --- PERSIST_SESSION ---
	session.AppendCapped([]models.ChatMessage{
		{Role: models.RoleUser, Content: req.Message, Timestamp: time.Now()},
		{Role: models.RoleAssistant, Content: result.Text, Timestamp: time.Now()},
	}, o.cfg.Defaults.MaxMessages)
	if session.Title == "" {
		session.Title = titleFor(req.Message)
	}
	session.UpdatedAt = time.Now()
	if err := o.store.Save(ctx, token, session); err != nil {
		logger.Warn("turn: session not saved", "error", err)
		o.hub.Publish(sessionID, models.ProgressEvent{SessionID: sessionID, Stage: models.StageError, Message: "session not saved", Timestamp: time.Now()})
	}

	// --- EMIT ---
	o.hub.Publish(sessionID, models.ProgressEvent{SessionID: sessionID, Stage: models.StageCompleted, Message: "done", Timestamp: time.Now()})
	logger.Info("turn: completed", "task_code", code)

	status := result.Status
	if status == "" {
		status = "ok"
	}

	return models.TurnResult{
		Text:      result.Text,
		TaskCode:  code,
		Status:    status,
		SessionID: sessionID,
		ChatID:    req.ChatID,
		ChatTitle: session.Title,
		Sources:   result.Sources,
		Billing:   billingInfo,
		Credit:    creditInfo,
	}, nil
}

// branch implements step 5 BRANCH + step 6 CREDIT_PREFLIGHT + step 7
// EXECUTE together, since preflight only makes sense once a concrete
// handler has been chosen and before it actually runs.
func (o *Orchestrator) branch(ctx context.Context, sessionID, token string, req models.TurnRequest, history []models.ChatMessage, code models.TaskCode) (registry.Output, error) {
	h, ok := o.handlers.Dispatch(code)
	if !ok {
		// No handler registered for this code at all (should only happen
		// for a code added to models without a matching handler wired up
		// in main): degrade to a plain echo rather than fail the whole
		// turn.
		return registry.Output{Text: "I'm not sure how to help with that yet."}, nil
	}

	if o.cfg.Mode == config.ModeProduction {
		ok, message, err := billing.Preflight(ctx, o.credit, o.cfg.Mode, token)
		if err != nil {
			return registry.Output{}, fmt.Errorf("credit preflight: %w", err)
		}
		if !ok {
			return registry.Output{}, fmt.Errorf("%w: %s", billing.ErrInsufficientCredit, message)
		}
	}

	o.hub.Publish(sessionID, models.ProgressEvent{SessionID: sessionID, Stage: models.StageProcessing, Message: "working", Timestamp: time.Now()})

	return h.Handle(ctx, registry.Input{
		SessionID: sessionID,
		Token:     token,
		Message:   req.Message,
		Files:     req.Files,
		History:   history,
	})
}

// terminal builds a TurnResult for a turn that never reaches EXECUTE,
// still running SETTLE so any already-recorded billing is accounted
// for. status is the client-facing outcome tag the HTTP layer uses to
// pick a response code (spec.md §4.1 EMIT; status values beyond the
// task-code taxonomy, e.g. "auth_missing"/"insufficient_credit", exist
// purely so pkg/api doesn't have to re-derive them from TaskCode).
func (o *Orchestrator) terminal(ctx context.Context, sessionID, chatID string, code models.TaskCode, text, status string) models.TurnResult {
	if text == "" {
		text = errorResponses[code]
	}
	stage := models.StageError
	if code == models.TaskUserAborted {
		stage = models.StageAborted
		o.hub.Abort(sessionID)
	} else {
		o.hub.Publish(sessionID, models.ProgressEvent{SessionID: sessionID, Stage: stage, Message: text, Timestamp: time.Now()})
	}
	return models.TurnResult{
		Text:      text,
		TaskCode:  code,
		Status:    status,
		SessionID: sessionID,
		ChatID:    chatID,
	}
}

// classifyErrorCode maps a classifier failure to the appropriate
// negative task code (spec.md §7 error taxonomy).
func classifyErrorCode(err error) models.TaskCode {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.TaskUpstreamTimeout
	case errors.Is(err, context.Canceled):
		return models.TaskUserAborted
	default:
		return models.TaskUpstreamNetwork
	}
}

// classifyErrorStatus mirrors classifyErrorCode's classification as a
// client-facing status tag.
func classifyErrorStatus(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "llm_timeout"
	case errors.Is(err, context.Canceled):
		return "user_aborted"
	default:
		return "network_error"
	}
}

// executionErrorCode maps an EXECUTE-stage failure to a negative task
// code, checking for user-driven cancellation first since ctx.Err()
// takes precedence over whatever error the handler itself returned.
func executionErrorCode(ctx context.Context, err error) models.TaskCode {
	if Aborted(ctx) {
		return models.TaskUserAborted
	}
	switch {
	case errors.Is(err, billing.ErrInsufficientCredit):
		return models.TaskUpstreamAuth
	case errors.Is(err, context.DeadlineExceeded):
		return models.TaskUpstreamTimeout
	default:
		return models.TaskUpstreamNetwork
	}
}

// executionErrorStatus maps an EXECUTE-stage failure to a client-facing
// status tag, checked before executionErrorCode's task-code mapping
// since insufficient credit and user-abort are distinct conditions
// pkg/api needs to tell apart from a generic upstream failure.
func executionErrorStatus(ctx context.Context, err error) string {
	if errors.Is(err, billing.ErrInsufficientCredit) {
		return "insufficient_credit"
	}
	if Aborted(ctx) {
		return "user_aborted"
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "llm_timeout"
	default:
		return "network_error"
	}
}

// titleFor derives a conversation title from its opening message,
// falling back to a fixed default when the message is empty (spec.md
// §9 Open Question: title generation for an empty first prompt).
func titleFor(message string) string {
	const maxLen = 60
	trimmed := trimToRunes(message, maxLen)
	if trimmed == "" {
		return "New Conversation"
	}
	return trimmed
}

func trimToRunes(s string, n int) string {
	runes := []rune(s)
	for len(runes) > 0 && (runes[0] == ' ' || runes[0] == '\n' || runes[0] == '\t') {
		runes = runes[1:]
	}
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n])
}
