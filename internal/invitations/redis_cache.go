package invitations

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedRepository decorates a Repository with a Redis read-through cache
// keyed by secret hash. Invitation links are resolved on every signing-page
// load, so the hot path skips Mongo; consumed and revoked tokens stay cached
// until natural expiry, giving a fast deny for replayed links.
//
// The cache is advisory only: conditional status writes always run against
// the underlying repository, which stays the single source of truth for the
// single-use invariant.
type CachedRepository struct {
	base   Repository
	client *redis.Client
	prefix string
}

func NewCachedRepository(base Repository, client *redis.Client, prefix string) *CachedRepository {
	if prefix == "" {
		prefix = "invite:"
	}
	return &CachedRepository{base: base, client: client, prefix: prefix}
}

func (r *CachedRepository) key(secretHash string) string {
	return r.prefix + secretHash
}

func (r *CachedRepository) Create(ctx context.Context, t *Token) error {
	if err := r.base.Create(ctx, t); err != nil {
		return err
	}
	r.put(ctx, t)
	return nil
}

func (r *CachedRepository) Get(ctx context.Context, id string) (*Token, error) {
	return r.base.Get(ctx, id)
}

func (r *CachedRepository) GetBySecretHash(ctx context.Context, hash string) (*Token, error) {
	b, err := r.client.Get(ctx, r.key(hash)).Bytes()
	if err == nil {
		var t Token
		if jerr := json.Unmarshal(b, &t); jerr == nil {
			return &t, nil
		}
		// corrupt entry: drop and fall back
		_ = r.client.Del(ctx, r.key(hash)).Err()
	} else if err != redis.Nil {
		// redis trouble never blocks token resolution
		return r.base.GetBySecretHash(ctx, hash)
	}
	t, err := r.base.GetBySecretHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	r.put(ctx, t)
	return t, nil
}

func (r *CachedRepository) GetActiveBySigner(ctx context.Context, signerID string) (*Token, error) {
	return r.base.GetActiveBySigner(ctx, signerID)
}

func (r *CachedRepository) Update(ctx context.Context, t *Token) error {
	if err := r.base.Update(ctx, t); err != nil {
		return err
	}
	r.put(ctx, t)
	return nil
}

func (r *CachedRepository) UpdateStatus(ctx context.Context, t *Token, from TokenStatus) error {
	if err := r.base.UpdateStatus(ctx, t, from); err != nil {
		if err == ErrConflict {
			// a concurrent writer won; refresh the cache with their outcome
			if cur, gerr := r.base.Get(ctx, t.ID); gerr == nil {
				r.put(ctx, cur)
			}
		}
		return err
	}
	r.put(ctx, t)
	return nil
}

func (r *CachedRepository) put(ctx context.Context, t *Token) {
	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		// keep just long enough for an expired-token deny
		ttl = time.Minute
	}
	if b, err := json.Marshal(t); err == nil {
		_ = r.client.Set(ctx, r.key(t.SecretHash), b, ttl).Err()
	}
}
