package sessionstore

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/buxiuxian/summer-project/pkg/config"
	"github.com/buxiuxian/summer-project/pkg/models"
	"github.com/buxiuxian/summer-project/pkg/sessionstoreclient"
)

// Store is the mode-gated dual-backend Session Store (spec.md §4.6):
// production mode delegates every operation to the remote collaborator;
// local mode uses the filesystem-backed LocalCache exclusively. There is
// no reconciliation between the two within one process — a deployment
// runs in one mode for its lifetime (spec.md §9 "no CRDT, last-writer-wins
// is acceptable since mode does not change at runtime").
type Store struct {
	mode   config.Mode
	local  *LocalCache
	remote sessionstoreclient.Client
}

// NewStore constructs a Store. remote may be nil in local mode.
func NewStore(mode config.Mode, local *LocalCache, remote sessionstoreclient.Client) *Store {
	return &Store{mode: mode, local: local, remote: remote}
}

// LoadOrCreate implements pkg/orchestrator.SessionStore: returns the
// existing session for sessionID, or a freshly initialized one if none
// exists yet (spec.md §4.1 step 3 LOAD_HISTORY).
func (s *Store) LoadOrCreate(ctx context.Context, token, sessionID string) (*models.ChatSession, error) {
	session, err := s.load(ctx, token, sessionID)
	if err == nil {
		return session, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	now := time.Now()
	return &models.ChatSession{SessionID: sessionID, CreatedAt: now, UpdatedAt: now}, nil
}

// Load returns a session by ID, or an error wrapping os.ErrNotExist if
// it does not exist (spec.md §4.6 mode table, "Load" row). Exported for
// pkg/api's session-detail endpoint; LoadOrCreate wraps this for the
// turn pipeline's own use.
func (s *Store) Load(ctx context.Context, token, sessionID string) (*models.ChatSession, error) {
	return s.load(ctx, token, sessionID)
}

func (s *Store) load(ctx context.Context, token, sessionID string) (*models.ChatSession, error) {
	if s.mode == config.ModeProduction {
		return s.remote.Load(ctx, token, sessionID)
	}
	return s.local.Load(sessionID)
}

// Save implements pkg/orchestrator.SessionStore (spec.md §4.1 step 9
// PERSIST_SESSION): creates the session on first save, updates it
// thereafter.
func (s *Store) Save(ctx context.Context, token string, session *models.ChatSession) error {
	if s.mode == config.ModeProduction {
		if _, err := s.remote.Load(ctx, token, session.SessionID); err != nil {
			if isNotFound(err) {
				return s.remote.Create(ctx, token, session)
			}
		}
		return s.remote.Update(ctx, token, session)
	}
	return s.local.Save(session)
}

// Delete removes a session (spec.md §4.6 mode table, "Delete" row).
func (s *Store) Delete(ctx context.Context, token, sessionID string) error {
	if s.mode == config.ModeProduction {
		return s.remote.Delete(ctx, token, sessionID)
	}
	return s.local.Delete(sessionID)
}

// List returns every session visible in the current mode (spec.md §4.6
// mode table, "List" row).
func (s *Store) List(ctx context.Context, token string) ([]*models.ChatSession, error) {
	if s.mode == config.ModeProduction {
		return s.remote.List(ctx, token)
	}
	return s.local.List()
}

func isNotFound(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
