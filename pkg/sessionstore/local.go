// Package sessionstore implements the dual-backend Session Store
// (spec.md §4.6): local mode persists one JSON file per session under a
// base directory (spec.md §6 "Persisted state" contract, filename
// `{session_id}.json`), production mode delegates to the remote
// collaborator. Grounded on tarsy's pkg/runbook/cache.go (mutex-guarded
// map, lazy-on-read TTL eviction) generalized from an in-memory cache
// to a filesystem-backed one, since this store's contract requires the
// files to exist on disk rather than merely in process memory.
package sessionstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/buxiuxian/summer-project/pkg/models"
)

// LocalCache is a mutex-guarded, filesystem-backed store of ChatSessions,
// one JSON file per session under dir.
type LocalCache struct {
	mu  sync.Mutex
	dir string
}

// NewLocalCache creates a LocalCache rooted at dir, creating it if absent.
func NewLocalCache(dir string) (*LocalCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session cache dir: %w", err)
	}
	return &LocalCache{dir: dir}, nil
}

func (c *LocalCache) path(sessionID string) string {
	return filepath.Join(c.dir, sessionID+".json")
}

// Load reads one session by ID. Returns os.ErrNotExist (wrapped) if absent.
func (c *LocalCache) Load(sessionID string) (*models.ChatSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path(sessionID))
	if err != nil {
		return nil, err
	}
	var session models.ChatSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

// Save writes session to its file, replacing any prior contents.
func (c *LocalCache) Save(session *models.ChatSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.SessionID, err)
	}
	tmp := c.path(session.SessionID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", session.SessionID, err)
	}
	return os.Rename(tmp, c.path(session.SessionID))
}

// Delete removes a session's file. Deleting an absent session is not an error.
func (c *LocalCache) Delete(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := os.Remove(c.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// List returns every session on disk, most recently updated first.
func (c *LocalCache) List() ([]*models.ChatSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("list session cache dir: %w", err)
	}
	var sessions []*models.ChatSession
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			continue
		}
		var session models.ChatSession
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		sessions = append(sessions, &session)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt) })
	return sessions, nil
}

// EnforceRetention deletes sessions older than maxAge and, if the total
// still exceeds maxTotal, the oldest-updated excess beyond maxTotal
// (spec.md §5 resource bounds: "MAX_AGE_DAYS"/"MAX_TOTAL").
func (c *LocalCache) EnforceRetention(maxAge time.Duration, maxTotal int) error {
	sessions, err := c.List()
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	kept := sessions[:0]
	for _, s := range sessions {
		if s.UpdatedAt.Before(cutoff) {
			_ = c.Delete(s.SessionID)
			continue
		}
		kept = append(kept, s)
	}

	if maxTotal > 0 && len(kept) > maxTotal {
		// kept is sorted newest-first; drop the tail beyond maxTotal.
		for _, s := range kept[maxTotal:] {
			_ = c.Delete(s.SessionID)
		}
	}
	return nil
}
