package threads

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/db"
)

func setupManager(t *testing.T) *Manager {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "threads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewManager(database, nil)
}

func TestCreateAndSwitchThread(t *testing.T) {
	manager := setupManager(t)
	session := NewSession()

	first, err := manager.CreateThread(session, "Test Thread")
	require.NoError(t, err)
	current, ok := session.Current()
	require.True(t, ok)
	assert.Equal(t, first.ID, current)

	second, err := manager.CreateThread(session, "Thread 2")
	require.NoError(t, err)
	current, _ = session.Current()
	assert.Equal(t, second.ID, current)

	require.NoError(t, manager.SwitchThread(session, first.ID))
	current, _ = session.Current()
	assert.Equal(t, first.ID, current)
}

func TestSwitchThread_Unknown(t *testing.T) {
	manager := setupManager(t)
	session := NewSession()

	err := manager.SwitchThread(session, "missing")
	assert.ErrorIs(t, err, db.ErrThreadNotFound)
	_, ok := session.Current()
	assert.False(t, ok)
}

func TestDeleteThread_ClearsCurrent(t *testing.T) {
	manager := setupManager(t)
	session := NewSession()

	thread, err := manager.CreateThread(session, "Test")
	require.NoError(t, err)

	require.NoError(t, manager.DeleteThread(session, thread.ID))
	_, ok := session.Current()
	assert.False(t, ok)
}

func TestDeleteThread_KeepsOtherCurrent(t *testing.T) {
	manager := setupManager(t)
	session := NewSession()

	other, err := manager.CreateThread(session, "other")
	require.NoError(t, err)
	current, err := manager.CreateThread(session, "current")
	require.NoError(t, err)

	require.NoError(t, manager.DeleteThread(session, other.ID))
	id, ok := session.Current()
	require.True(t, ok)
	assert.Equal(t, current.ID, id)
}

func TestSessionsAreIndependent(t *testing.T) {
	manager := setupManager(t)
	a, b := NewSession(), NewSession()

	thread, err := manager.CreateThread(a, "mine")
	require.NoError(t, err)

	_, ok := b.Current()
	assert.False(t, ok)
	id, _ := a.Current()
	assert.Equal(t, thread.ID, id)
}

func TestEnsureThread(t *testing.T) {
	manager := setupManager(t)
	session := NewSession()

	// Creates a default thread when none exists.
	id, err := manager.EnsureThread(session)
	require.NoError(t, err)
	thread, err := manager.GetThread(id)
	require.NoError(t, err)
	assert.Equal(t, DefaultThreadName, thread.Name)

	// Reuses the current thread.
	again, err := manager.EnsureThread(session)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	// Falls back to an existing thread for a fresh session.
	fresh := NewSession()
	picked, err := manager.EnsureThread(fresh)
	require.NoError(t, err)
	assert.Equal(t, id, picked)
}
