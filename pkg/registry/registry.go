// Package registry implements the Agent Registry (spec.md §4.9):
// dynamic dispatch from a classified TaskCode to the component that
// executes it, modeled as a tagged-sum lookup rather than a literal
// if/elif chain (spec.md §9 "Dynamic dispatch by integer task code").
// Grounded on tarsy's pkg/agent/registry.go AgentRegistry, which maps a
// chain-stage name to a constructor function; generalized here from
// "stage name" to "TaskCode" and from "constructor" to "live handler
// instance" since this system has a small, fixed set of task codes
// known at startup rather than a plugin-loaded stage set.
package registry

import (
	"context"
	"fmt"

	"github.com/buxiuxian/summer-project/pkg/models"
)

// Input is everything a Handler needs to execute one branch of a turn.
type Input struct {
	SessionID string
	Token     string
	Message   string
	Files     []models.UploadedFile
	History   []models.ChatMessage
}

// Output is what a Handler produces; Text becomes TurnResult.Text,
// Sources becomes TurnResult.Sources, and Status becomes
// TurnResult.Status (left empty for the ordinary case, where the
// orchestrator fills in "ok").
type Output struct {
	Text    string
	Sources []models.Source
	Status  string
}

// Handler executes one or more task codes' EXECUTE step (spec.md §4.1
// step 7). A single handler instance may support several codes, as the
// remote-job handler does for TaskSubmitJob and TaskFetchJobResult.
type Handler interface {
	SupportedCodes() []models.TaskCode
	Handle(ctx context.Context, in Input) (Output, error)
}

// Registry is the process-wide code → handler lookup table, built once
// at startup and read concurrently thereafter (spec.md §9 "the registry
// itself is read-only after startup, so no locking is needed on the
// read path" — mirrors tarsy's AgentRegistry immutable-after-construction
// pattern).
type Registry struct {
	handlers map[models.TaskCode]Handler
}

// New creates an empty registry. Call Register for each handler before
// serving traffic.
func New() *Registry {
	return &Registry{handlers: make(map[models.TaskCode]Handler)}
}

// Register adds h under every code it supports. Registering a code
// twice is a startup-time configuration error, not a runtime one.
func (r *Registry) Register(h Handler) error {
	for _, code := range h.SupportedCodes() {
		if _, exists := r.handlers[code]; exists {
			return fmt.Errorf("registry: task code %d already registered", code)
		}
		r.handlers[code] = h
	}
	return nil
}

// Dispatch returns the handler registered for code, if any.
func (r *Registry) Dispatch(code models.TaskCode) (Handler, bool) {
	h, ok := r.handlers[code]
	return h, ok
}
