package invitations

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newCached(t *testing.T) (*CachedRepository, *MemoryRepository, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	base := NewMemoryRepository()
	return NewCachedRepository(base, client, "test:invite:"), base, m
}

func activeToken(id, hash string) *Token {
	return &Token{
		ID:         id,
		EnvelopeID: "env-1",
		SignerID:   "sgn-1",
		SecretHash: hash,
		Status:     TokenActive,
		IssuedAt:   time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
}

func TestCachedRepositoryReadThrough(t *testing.T) {
	ctx := context.Background()
	repo, base, m := newCached(t)

	require.NoError(t, repo.Create(ctx, activeToken("tok-1", "hash-1")))

	got, err := repo.GetBySecretHash(ctx, "hash-1")
	require.NoError(t, err)
	require.Equal(t, "tok-1", got.ID)

	// cache entry exists
	require.True(t, m.Exists("test:invite:hash-1"))

	// cold cache falls back to the base repository and repopulates
	m.FlushAll()
	got, err = repo.GetBySecretHash(ctx, "hash-1")
	require.NoError(t, err)
	require.Equal(t, "tok-1", got.ID)
	require.True(t, m.Exists("test:invite:hash-1"))

	_, err = base.GetBySecretHash(ctx, "hash-1")
	require.NoError(t, err)
}

func TestCachedRepositoryServesConsumedState(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newCached(t)

	tok := activeToken("tok-1", "hash-1")
	require.NoError(t, repo.Create(ctx, tok))

	used := *tok
	used.Status = TokenUsed
	require.NoError(t, repo.UpdateStatus(ctx, &used, TokenActive))

	// replayed link resolves to the USED state straight from cache
	got, err := repo.GetBySecretHash(ctx, "hash-1")
	require.NoError(t, err)
	require.Equal(t, TokenUsed, got.Status)
}

func TestCachedRepositoryConflictRefreshesCache(t *testing.T) {
	ctx := context.Background()
	repo, base, _ := newCached(t)

	tok := activeToken("tok-1", "hash-1")
	require.NoError(t, repo.Create(ctx, tok))

	// another writer consumes the token behind the cache's back
	winner := *tok
	winner.Status = TokenUsed
	require.NoError(t, base.UpdateStatus(ctx, &winner, TokenActive))

	loser := *tok
	loser.Status = TokenRevoked
	err := repo.UpdateStatus(ctx, &loser, TokenActive)
	require.ErrorIs(t, err, ErrConflict)

	// cache now reflects the winner's outcome
	got, err := repo.GetBySecretHash(ctx, "hash-1")
	require.NoError(t, err)
	require.Equal(t, TokenUsed, got.Status)
}

func TestCachedRepositoryEntryExpires(t *testing.T) {
	ctx := context.Background()
	repo, base, m := newCached(t)

	tok := activeToken("tok-1", "hash-1")
	tok.ExpiresAt = time.Now().UTC().Add(2 * time.Second)
	require.NoError(t, repo.Create(ctx, tok))
	require.True(t, m.Exists("test:invite:hash-1"))

	m.FastForward(3 * time.Second)
	require.False(t, m.Exists("test:invite:hash-1"))

	// base repository still holds the row for the expired-token error path
	_, err := base.GetBySecretHash(ctx, "hash-1")
	require.NoError(t, err)
}
