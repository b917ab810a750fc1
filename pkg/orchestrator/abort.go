package orchestrator

import (
	"context"
	"sync"
)

// AbortRegistry is a per-session cancellation registry: session_id →
// cancel function. Directly grounded on tarsy's pkg/queue/pool.go
// WorkerPool.activeSessions (Register/Unregister/Cancel over a
// mutex-guarded map), generalized here from "cancel one worker's
// context" to "cancel one turn's context" since this system has no
// background worker pool — each HTTP request is its own task (spec.md
// §5). A context.CancelFunc is a strictly stronger cancellation
// primitive than the boolean abort flag spec.md describes (spec.md §9:
// "cancellable outgoing calls with context propagation... compatible and
// preferable"); the boolean-flag semantics are still observable because
// ctx.Err() != nil after Cancel is exactly "the abort flag is set."
type AbortRegistry struct {
	mu     sync.RWMutex
	active map[string]context.CancelFunc
}

// NewAbortRegistry creates an empty registry.
func NewAbortRegistry() *AbortRegistry {
	return &AbortRegistry{active: make(map[string]context.CancelFunc)}
}

// Begin derives a cancellable context for sessionID from parent and
// registers its cancel function, clearing any prior abort for that
// session (spec.md §4.1 step 1 INIT: "clear its abort flag").
func (r *AbortRegistry) Begin(parent context.Context, sessionID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	r.active[sessionID] = cancel
	r.mu.Unlock()

	done := func() {
		r.mu.Lock()
		delete(r.active, sessionID)
		r.mu.Unlock()
		cancel()
	}
	return ctx, done
}

// Abort triggers cancellation for sessionID if a turn is in flight.
// Returns true if a turn was found and cancelled.
func (r *AbortRegistry) Abort(sessionID string) bool {
	r.mu.RLock()
	cancel, ok := r.active[sessionID]
	r.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

// Aborted reports whether ctx (as returned by Begin) has been cancelled.
func Aborted(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
