// Package billing implements the per-session billing counter and its
// settlement against the outbound credit collaborator (spec.md §4.7).
package billing

import (
	"sync"
	"time"

	"github.com/buxiuxian/summer-project/pkg/models"
)

// Manager is a process-wide, mutex-guarded map of session_id → counter,
// mirroring tarsy's pkg/session.Manager (map + sync.Mutex, lazily
// populated, no persistence across restarts — spec.md §9 "Global
// mutable state" design note).
type Manager struct {
	mu       sync.Mutex
	counters map[string]*models.BillingCounter
}

// NewManager creates an empty billing counter manager.
func NewManager() *Manager {
	return &Manager{counters: make(map[string]*models.BillingCounter)}
}

// RecordLLMCall increments the session's LLM-call counter, creating it
// lazily on first use.
func (m *Manager) RecordLLMCall(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.getOrInit(sessionID)
	c.LLMCalls++
	c.Details = append(c.Details, models.BillingDetail{Kind: "llm_call", Timestamp: time.Now()})
}

// RecordRemoteJob increments the session's remote-job counter, creating
// it lazily on first use. note is typically the task name.
func (m *Manager) RecordRemoteJob(sessionID, note string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.getOrInit(sessionID)
	c.RemoteJobs++
	c.Details = append(c.Details, models.BillingDetail{Kind: "remote_job", Note: note, Timestamp: time.Now()})
}

// Snapshot returns a copy of the session's current counter without
// clearing it.
func (m *Manager) Snapshot(sessionID string) models.BillingCounter {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[sessionID]
	if !ok {
		return models.BillingCounter{}
	}
	return *c
}

// Clear removes the session's counter. Called unconditionally by SETTLE,
// success or failure (spec.md §4.7).
func (m *Manager) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counters, sessionID)
}

func (m *Manager) getOrInit(sessionID string) *models.BillingCounter {
	c, ok := m.counters[sessionID]
	if !ok {
		c = &models.BillingCounter{StartTime: time.Now()}
		m.counters[sessionID] = c
	}
	return c
}
