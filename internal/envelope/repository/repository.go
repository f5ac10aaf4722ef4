package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict signals an optimistic-concurrency failure: the stored row
	// changed between read and write. Callers re-read and re-evaluate.
	ErrConflict = errors.New("conflict")
)

// Envelopes provides envelope persistence. Update is a conditional write on
// the stored version so concurrent status transitions cannot silently clobber
// each other.
type Envelopes interface {
	Create(ctx context.Context, e *envelope.Envelope) error
	Get(ctx context.Context, id string) (*envelope.Envelope, error)
	Update(ctx context.Context, e *envelope.Envelope) error
	ListByOwner(ctx context.Context, ownerID string) ([]*envelope.Envelope, error)
	ListOverdue(ctx context.Context, before time.Time) ([]*envelope.Envelope, error)
	Delete(ctx context.Context, id string) error
}

// Signers provides signer persistence. UpdateStatus writes the signer only
// when the stored status still matches from, making PENDING -> SIGNED and
// PENDING -> DECLINED race-safe at the storage boundary.
type Signers interface {
	CreateMany(ctx context.Context, signers []*envelope.Signer) error
	Get(ctx context.Context, id string) (*envelope.Signer, error)
	ListByEnvelope(ctx context.Context, envelopeID string) ([]*envelope.Signer, error)
	UpdateStatus(ctx context.Context, s *envelope.Signer, from envelope.SignerStatus) error
	DeleteByEnvelope(ctx context.Context, envelopeID string) error
}

// Signatures is append-only evidence storage: records are created once and
// never updated.
type Signatures interface {
	Append(ctx context.Context, rec *envelope.SignatureRecord) error
	ListByEnvelope(ctx context.Context, envelopeID string) ([]*envelope.SignatureRecord, error)
}
