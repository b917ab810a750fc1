package progress

import "github.com/buxiuxian/summer-project/pkg/models"

// ring is a fixed-capacity, drop-oldest buffer of progress events for one
// session (spec.md §4.2: "capacity 100, drop-oldest on overflow").
type ring struct {
	cap    int
	events []models.ProgressEvent
}

func newRing(capacity int) *ring {
	return &ring{cap: capacity, events: make([]models.ProgressEvent, 0, capacity)}
}

func (r *ring) push(e models.ProgressEvent) {
	r.events = append(r.events, e)
	if len(r.events) > r.cap {
		r.events = r.events[len(r.events)-r.cap:]
	}
}

// last returns up to n most recent events, oldest first.
func (r *ring) last(n int) []models.ProgressEvent {
	if n >= len(r.events) {
		out := make([]models.ProgressEvent, len(r.events))
		copy(out, r.events)
		return out
	}
	out := make([]models.ProgressEvent, n)
	copy(out, r.events[len(r.events)-n:])
	return out
}
