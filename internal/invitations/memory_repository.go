package invitations

import (
	"context"
	"sync"
)

// MemoryRepository is an in-memory Repository used for unit tests and
// single-process development runs.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[string]*Token
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*Token)}
}

func (r *MemoryRepository) Create(ctx context.Context, t *Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.store[t.ID] = &cp
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryRepository) GetBySecretHash(ctx context.Context, hash string) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.store {
		if t.SecretHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) GetActiveBySigner(ctx context.Context, signerID string) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.store {
		if t.SignerID == signerID && t.Status == TokenActive {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) Update(ctx context.Context, t *Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[t.ID]; !ok {
		return ErrNotFound
	}
	cp := *t
	r.store[t.ID] = &cp
	return nil
}

// UpdateStatus is a compare-and-swap on the stored status.
func (r *MemoryRepository) UpdateStatus(ctx context.Context, t *Token, from TokenStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.store[t.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != from {
		return ErrConflict
	}
	cp := *t
	r.store[t.ID] = &cp
	return nil
}
