package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
)

func TestMemoryEnvelopesCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEnvelopes()

	e := &envelope.Envelope{ID: "env-1", OwnerID: "usr-1", Status: envelope.StatusDraft}
	require.NoError(t, repo.Create(ctx, e))
	require.Equal(t, int64(1), e.Version)

	got, err := repo.Get(ctx, "env-1")
	require.NoError(t, err)
	require.Equal(t, envelope.StatusDraft, got.Status)

	got.Status = envelope.StatusSent
	require.NoError(t, repo.Update(ctx, got))
	require.Equal(t, int64(2), got.Version)

	_, err = repo.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Delete(ctx, "env-1"))
	require.ErrorIs(t, repo.Delete(ctx, "env-1"), ErrNotFound)
}

func TestMemoryEnvelopesOptimisticConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEnvelopes()
	require.NoError(t, repo.Create(ctx, &envelope.Envelope{ID: "env-1", Status: envelope.StatusSent}))

	a, err := repo.Get(ctx, "env-1")
	require.NoError(t, err)
	b, err := repo.Get(ctx, "env-1")
	require.NoError(t, err)

	a.Status = envelope.StatusInProgress
	require.NoError(t, repo.Update(ctx, a))

	b.Status = envelope.StatusDeclined
	require.ErrorIs(t, repo.Update(ctx, b), ErrConflict)
}

func TestMemoryEnvelopesListOverdue(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEnvelopes()
	now := time.Now()
	require.NoError(t, repo.Create(ctx, &envelope.Envelope{ID: "late", Status: envelope.StatusSent, ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, repo.Create(ctx, &envelope.Envelope{ID: "fresh", Status: envelope.StatusSent, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, repo.Create(ctx, &envelope.Envelope{ID: "done", Status: envelope.StatusCompleted, ExpiresAt: now.Add(-time.Hour)}))

	overdue, err := repo.ListOverdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, "late", overdue[0].ID)
}

func TestMemorySignersStatusRace(t *testing.T) {
	// concurrent PENDING -> SIGNED transitions: exactly one wins
	ctx := context.Background()
	repo := NewMemorySigners()
	require.NoError(t, repo.CreateMany(ctx, []*envelope.Signer{
		{ID: "sgn-1", EnvelopeID: "env-1", Status: envelope.SignerPending},
	}))

	const racers = 16
	var wins, conflicts int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := &envelope.Signer{ID: "sgn-1", EnvelopeID: "env-1", Status: envelope.SignerSigned}
			err := repo.UpdateStatus(ctx, s, envelope.SignerPending)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if err == ErrConflict {
				conflicts++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
	require.Equal(t, racers-1, conflicts)
}

func TestMemorySignersListAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySigners()
	require.NoError(t, repo.CreateMany(ctx, []*envelope.Signer{
		{ID: "a", EnvelopeID: "env-1", Order: 1, Status: envelope.SignerPending},
		{ID: "b", EnvelopeID: "env-1", Order: 2, Status: envelope.SignerPending},
		{ID: "c", EnvelopeID: "env-2", Order: 1, Status: envelope.SignerPending},
	}))

	list, err := repo.ListByEnvelope(ctx, "env-1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, repo.DeleteByEnvelope(ctx, "env-1"))
	list, err = repo.ListByEnvelope(ctx, "env-1")
	require.NoError(t, err)
	require.Empty(t, list)

	other, err := repo.Get(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, "env-2", other.EnvelopeID)
}

func TestMemorySignaturesAppendOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySignatures()
	rec := &envelope.SignatureRecord{ID: "sig-1", EnvelopeID: "env-1", DocumentHash: "abc"}
	require.NoError(t, repo.Append(ctx, rec))

	// mutating the caller's copy must not affect the stored record
	rec.DocumentHash = "tampered"
	list, err := repo.ListByEnvelope(ctx, "env-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "abc", list[0].DocumentHash)
}
