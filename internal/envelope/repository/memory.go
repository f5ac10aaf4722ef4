package repository

import (
	"context"
	"sync"
	"time"

	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
)

// MemoryEnvelopes is an in-memory Envelopes implementation used for unit
// tests and single-process development runs.
type MemoryEnvelopes struct {
	mu    sync.RWMutex
	store map[string]*envelope.Envelope
}

func NewMemoryEnvelopes() *MemoryEnvelopes {
	return &MemoryEnvelopes{store: make(map[string]*envelope.Envelope)}
}

func (m *MemoryEnvelopes) Create(ctx context.Context, e *envelope.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Version == 0 {
		e.Version = 1
	}
	cp := *e
	m.store[e.ID] = &cp
	return nil
}

func (m *MemoryEnvelopes) Get(ctx context.Context, id string) (*envelope.Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// Update performs a compare-and-swap on Version.
func (m *MemoryEnvelopes) Update(ctx context.Context, e *envelope.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[e.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != e.Version {
		return ErrConflict
	}
	e.Version++
	cp := *e
	m.store[e.ID] = &cp
	return nil
}

func (m *MemoryEnvelopes) ListByOwner(ctx context.Context, ownerID string) ([]*envelope.Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*envelope.Envelope{}
	for _, e := range m.store {
		if e.OwnerID == ownerID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryEnvelopes) ListOverdue(ctx context.Context, before time.Time) ([]*envelope.Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*envelope.Envelope{}
	for _, e := range m.store {
		if !e.Status.Terminal() && !e.ExpiresAt.IsZero() && e.ExpiresAt.Before(before) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryEnvelopes) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

// MemorySigners is an in-memory Signers implementation.
type MemorySigners struct {
	mu    sync.RWMutex
	store map[string]*envelope.Signer
}

func NewMemorySigners() *MemorySigners {
	return &MemorySigners{store: make(map[string]*envelope.Signer)}
}

func (m *MemorySigners) CreateMany(ctx context.Context, signers []*envelope.Signer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range signers {
		cp := *s
		m.store[s.ID] = &cp
	}
	return nil
}

func (m *MemorySigners) Get(ctx context.Context, id string) (*envelope.Signer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemorySigners) ListByEnvelope(ctx context.Context, envelopeID string) ([]*envelope.Signer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*envelope.Signer{}
	for _, s := range m.store {
		if s.EnvelopeID == envelopeID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// UpdateStatus writes the signer only when the stored status still matches
// from. The losing side of a race observes ErrConflict.
func (m *MemorySigners) UpdateStatus(ctx context.Context, s *envelope.Signer, from envelope.SignerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[s.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != from {
		return ErrConflict
	}
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *MemorySigners) DeleteByEnvelope(ctx context.Context, envelopeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.store {
		if s.EnvelopeID == envelopeID {
			delete(m.store, id)
		}
	}
	return nil
}

// MemorySignatures is an in-memory append-only Signatures implementation.
type MemorySignatures struct {
	mu    sync.RWMutex
	store []*envelope.SignatureRecord
}

func NewMemorySignatures() *MemorySignatures { return &MemorySignatures{} }

func (m *MemorySignatures) Append(ctx context.Context, rec *envelope.SignatureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.store = append(m.store, &cp)
	return nil
}

func (m *MemorySignatures) ListByEnvelope(ctx context.Context, envelopeID string) ([]*envelope.SignatureRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*envelope.SignatureRecord{}
	for _, r := range m.store {
		if r.EnvelopeID == envelopeID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}
