package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangleapp/tangle-server/internal/domain"
)

func newTestSession(id, userID, tokenHash string, expiresAt time.Time) *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		ID:               id,
		UserID:           userID,
		RefreshTokenHash: tokenHash,
		ExpiresAt:        expiresAt,
		CreatedAt:        now,
		LastSeenAt:       now,
	}
}

func TestSessionLifecycle(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	session := newTestSession("sess-1", "user-1", "hash-1", expiry)
	require.NoError(t, store.CreateSession(ctx, session))

	got, err := store.GetSessionByRefreshToken(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)

	// Token rotation drops the old index and installs the new one
	got.RefreshTokenHash = "hash-2"
	require.NoError(t, store.UpdateSession(ctx, got))

	_, err = store.GetSessionByRefreshToken(ctx, "hash-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	rotated, err := store.GetSessionByRefreshToken(ctx, "hash-2")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", rotated.ID)

	require.NoError(t, store.DeleteSession(ctx, "sess-1"))
	_, err = store.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetSession_Expired(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	session := newTestSession("sess-1", "user-1", "hash-1", time.Now().Add(-time.Minute))
	require.NoError(t, store.CreateSession(ctx, session))

	_, err := store.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestDeleteAllUserSessions(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	require.NoError(t, store.CreateSession(ctx, newTestSession("sess-1", "user-1", "hash-1", expiry)))
	require.NoError(t, store.CreateSession(ctx, newTestSession("sess-2", "user-1", "hash-2", expiry)))
	require.NoError(t, store.CreateSession(ctx, newTestSession("sess-3", "user-2", "hash-3", expiry)))

	require.NoError(t, store.DeleteAllUserSessions(ctx, "user-1"))

	sessions, err := store.ListUserSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, sessions)

	// Other users are untouched
	others, err := store.ListUserSessions(ctx, "user-2")
	require.NoError(t, err)
	assert.Len(t, others, 1)
}
