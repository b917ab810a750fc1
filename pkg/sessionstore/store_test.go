package sessionstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buxiuxian/summer-project/pkg/config"
	"github.com/buxiuxian/summer-project/pkg/models"
)

type fakeRemote struct {
	sessions  map[string]*models.ChatSession
	createErr error
	updateErr error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{sessions: make(map[string]*models.ChatSession)}
}

func (f *fakeRemote) Create(ctx context.Context, token string, session *models.ChatSession) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.sessions[session.SessionID] = session
	return nil
}

func (f *fakeRemote) Update(ctx context.Context, token string, session *models.ChatSession) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.sessions[session.SessionID] = session
	return nil
}

func (f *fakeRemote) Load(ctx context.Context, token, sessionID string) (*models.ChatSession, error) {
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, errors.Join(errors.New("not found"), os.ErrNotExist)
	}
	return s, nil
}

func (f *fakeRemote) Delete(ctx context.Context, token, sessionID string) error {
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeRemote) List(ctx context.Context, token string) ([]*models.ChatSession, error) {
	var out []*models.ChatSession
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func TestStore_LocalModeUsesLocalCacheExclusively(t *testing.T) {
	local, err := NewLocalCache(t.TempDir())
	require.NoError(t, err)
	remote := newFakeRemote()
	s := NewStore(config.ModeLocal, local, remote)

	session := &models.ChatSession{SessionID: "s1", UpdatedAt: time.Now()}
	require.NoError(t, s.Save(context.Background(), "tok", session))

	assert.Empty(t, remote.sessions, "local mode must never touch the remote collaborator")
	got, err := s.Load(context.Background(), "tok", "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
}

func TestStore_ProductionModeCreatesOnFirstSave(t *testing.T) {
	remote := newFakeRemote()
	s := NewStore(config.ModeProduction, nil, remote)

	session := &models.ChatSession{SessionID: "s1", UpdatedAt: time.Now()}
	require.NoError(t, s.Save(context.Background(), "tok", session))

	got, ok := remote.sessions["s1"]
	require.True(t, ok)
	assert.Equal(t, "s1", got.SessionID)
}

func TestStore_ProductionModeUpdatesExistingSession(t *testing.T) {
	remote := newFakeRemote()
	remote.sessions["s1"] = &models.ChatSession{SessionID: "s1", Title: "old"}
	s := NewStore(config.ModeProduction, nil, remote)

	session := &models.ChatSession{SessionID: "s1", Title: "new"}
	require.NoError(t, s.Save(context.Background(), "tok", session))

	assert.Equal(t, "new", remote.sessions["s1"].Title)
}

func TestStore_LoadOrCreateReturnsFreshSessionWhenAbsent(t *testing.T) {
	local, err := NewLocalCache(t.TempDir())
	require.NoError(t, err)
	s := NewStore(config.ModeLocal, local, nil)

	session, err := s.LoadOrCreate(context.Background(), "tok", "never-seen")
	require.NoError(t, err)
	assert.Equal(t, "never-seen", session.SessionID)
	assert.Empty(t, session.Messages)
}

func TestStore_DeleteDelegatesByMode(t *testing.T) {
	remote := newFakeRemote()
	remote.sessions["s1"] = &models.ChatSession{SessionID: "s1"}
	s := NewStore(config.ModeProduction, nil, remote)

	require.NoError(t, s.Delete(context.Background(), "tok", "s1"))
	_, ok := remote.sessions["s1"]
	assert.False(t, ok)
}

func TestStore_ListDelegatesByMode(t *testing.T) {
	remote := newFakeRemote()
	remote.sessions["s1"] = &models.ChatSession{SessionID: "s1"}
	remote.sessions["s2"] = &models.ChatSession{SessionID: "s2"}
	s := NewStore(config.ModeProduction, nil, remote)

	sessions, err := s.List(context.Background(), "tok")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}
