// Package progress implements the per-session progress pub/sub channel
// (spec.md §4.2). Grounded on tarsy's pkg/events/manager.go
// ConnectionManager: a registry of per-session subscriber sets, a
// snapshot-then-send broadcast to avoid holding a lock across channel
// sends, and a catchup-on-subscribe contract. Unlike tarsy, there is no
// database behind this hub — events live only in the in-memory ring
// buffer for the lifetime of the session's subscribers (spec.md §5:
// "None of these need to survive process restart").
package progress

import (
	"sync"
	"time"

	"github.com/buxiuxian/summer-project/pkg/models"
)

// subscriberBufferSize bounds how far a slow subscriber can lag before
// it is disconnected rather than back-pressuring the publisher
// (spec.md §4.2: "never blocks other subscribers or the publisher").
const subscriberBufferSize = 64

// Subscriber is one long-lived connection's inbound event stream.
type Subscriber struct {
	id      uint64
	events  chan models.ProgressEvent
	closeCh chan struct{}
	once    sync.Once
}

// Events returns the channel to range over for delivered events.
func (s *Subscriber) Events() <-chan models.ProgressEvent { return s.events }

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.closeCh) })
}

type sessionState struct {
	mu          sync.Mutex
	buffer      *ring
	subscribers map[uint64]*Subscriber
	lastEvent   time.Time
}

// Hub is a process-wide registry of per-session progress state.
type Hub struct {
	mu                sync.Mutex
	sessions          map[string]*sessionState
	bufferCap         int
	catchupCount      int
	heartbeatInterval time.Duration
	nextSubID         uint64
}

// NewHub creates a Hub with the given ring-buffer capacity, catchup
// depth, and heartbeat interval (spec.md §4.2 and §5 resource bounds).
func NewHub(bufferCap, catchupCount int, heartbeatInterval time.Duration) *Hub {
	return &Hub{
		sessions:          make(map[string]*sessionState),
		bufferCap:         bufferCap,
		catchupCount:      catchupCount,
		heartbeatInterval: heartbeatInterval,
	}
}

func (h *Hub) stateFor(sessionID string) *sessionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[sessionID]
	if !ok {
		s = &sessionState{buffer: newRing(h.bufferCap), subscribers: make(map[uint64]*Subscriber)}
		h.sessions[sessionID] = s
	}
	return s
}

// Publish appends event to the session's ring buffer and fans it out to
// every active subscriber without blocking. A subscriber whose buffer is
// full is dropped rather than allowed to stall the publisher or its peers.
func (h *Hub) Publish(sessionID string, event models.ProgressEvent) {
	s := h.stateFor(sessionID)

	s.mu.Lock()
	s.buffer.push(event)
	s.lastEvent = time.Now()
	// snapshot the subscriber set before sending, so a slow send or a
	// concurrent subscribe/unsubscribe never happens under this lock.
	targets := make([]*Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.events <- event:
		default:
			h.disconnect(sessionID, sub)
		}
	}
}

// Subscribe registers a new subscriber for sessionID. Per spec.md §4.2 it
// immediately receives a synthetic "connected" event, then up to the
// last catchupCount buffered events, then live events.
func (h *Hub) Subscribe(sessionID string) *Subscriber {
	s := h.stateFor(sessionID)

	h.mu.Lock()
	h.nextSubID++
	id := h.nextSubID
	h.mu.Unlock()

	sub := &Subscriber{id: id, events: make(chan models.ProgressEvent, subscriberBufferSize), closeCh: make(chan struct{})}

	s.mu.Lock()
	s.subscribers[id] = sub
	catchup := s.buffer.last(h.catchupCount)
	s.mu.Unlock()

	connected := models.ProgressEvent{
		SessionID: sessionID,
		Stage:     models.StageInit,
		Message:   "connected",
		Timestamp: time.Now(),
	}
	sub.events <- connected
	for _, e := range catchup {
		select {
		case sub.events <- e:
		default:
		}
	}

	return sub
}

// Unsubscribe removes sub from sessionID's subscriber set. If it was the
// last subscriber, the session's buffer is freed (spec.md §4.2).
func (h *Hub) Unsubscribe(sessionID string, sub *Subscriber) {
	h.disconnect(sessionID, sub)
}

func (h *Hub) disconnect(sessionID string, sub *Subscriber) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	s.mu.Lock()
	delete(s.subscribers, sub.id)
	empty := len(s.subscribers) == 0
	s.mu.Unlock()
	sub.close()

	if empty {
		h.mu.Lock()
		// Re-check under the hub lock: another Subscribe may have
		// raced in between releasing s.mu and acquiring h.mu.
		if s2, ok := h.sessions[sessionID]; ok {
			s2.mu.Lock()
			stillEmpty := len(s2.subscribers) == 0
			s2.mu.Unlock()
			if stillEmpty {
				delete(h.sessions, sessionID)
			}
		}
		h.mu.Unlock()
	}
}

// Abort sets no flag itself (that is pkg/orchestrator's AbortRegistry);
// it only publishes the user-visible error-stage event spec.md §4.2
// requires alongside the flag being set.
func (h *Hub) Abort(sessionID string) {
	h.Publish(sessionID, models.ProgressEvent{
		SessionID: sessionID,
		Stage:     models.StageError,
		Message:   "user aborted",
		Timestamp: time.Now(),
	})
}

// StartHeartbeat runs until stop is closed, emitting a heartbeat event
// to any session that has had no activity for heartbeatInterval
// (spec.md §4.2: "non-displayable keepalive... carries no state").
func (h *Hub) StartHeartbeat(stop <-chan struct{}) {
	ticker := time.NewTicker(h.heartbeatInterval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.emitDueHeartbeats()
		}
	}
}

func (h *Hub) emitDueHeartbeats() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		h.mu.Lock()
		s, ok := h.sessions[id]
		h.mu.Unlock()
		if !ok {
			continue
		}
		s.mu.Lock()
		due := now.Sub(s.lastEvent) >= h.heartbeatInterval
		s.mu.Unlock()
		if due {
			h.Publish(id, models.ProgressEvent{SessionID: id, Stage: models.StageHeartbeat, Timestamp: now})
		}
	}
}
