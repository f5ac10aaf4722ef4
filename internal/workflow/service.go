// Package workflow orchestrates the signing lifecycle: every mutating
// operation runs as validate, act, transition, audit. Business rules gate the
// action, repositories perform conditional writes, and the envelope status is
// recomputed from signer state rather than trusted.
package workflow

import (
	"context"
	"time"

	"github.com/sealflow/sealflow/backend/go-services/internal/apperrors"
	"github.com/sealflow/sealflow/backend/go-services/internal/audit"
	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
	"github.com/sealflow/sealflow/backend/go-services/internal/envelope/repository"
	"github.com/sealflow/sealflow/backend/go-services/internal/ids"
	"github.com/sealflow/sealflow/backend/go-services/internal/invitations"
	"github.com/sealflow/sealflow/backend/go-services/internal/rules"
	"github.com/sealflow/sealflow/backend/go-services/internal/signing"
	"github.com/sealflow/sealflow/backend/go-services/pkg/logger"
	"github.com/sealflow/sealflow/backend/go-services/pkg/metrics"
)

// Config carries the orchestrator tunables on top of the rule inputs.
type Config struct {
	Rules            rules.Config
	InvitationTTL    time.Duration
	DefaultAlgorithm string
}

// EvidenceStore persists signature evidence manifests in object storage.
// Optional: when unset, evidence lives only in the signatures repository.
type EvidenceStore interface {
	PutEvidence(ctx context.Context, envelopeID, signatureID string, data []byte) error
	EvidenceExists(ctx context.Context, envelopeID, signatureID string) (bool, error)
}

// Service is the signing workflow orchestrator.
type Service struct {
	envelopes  repository.Envelopes
	signers    repository.Signers
	signatures repository.Signatures
	tokens     *invitations.Service
	provider   signing.Provider
	recorder   *audit.Recorder
	evidence   EvidenceStore
	cfg        Config
	now        func() time.Time
}

func NewService(
	envelopes repository.Envelopes,
	signers repository.Signers,
	signatures repository.Signatures,
	tokens *invitations.Service,
	provider signing.Provider,
	recorder *audit.Recorder,
	cfg Config,
) *Service {
	if cfg.InvitationTTL <= 0 {
		cfg.InvitationTTL = 7 * 24 * time.Hour
	}
	if cfg.DefaultAlgorithm == "" {
		cfg.DefaultAlgorithm = "SHA-256"
	}
	return &Service{
		envelopes:  envelopes,
		signers:    signers,
		signatures: signatures,
		tokens:     tokens,
		provider:   provider,
		recorder:   recorder,
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithEvidenceStore enables object-storage evidence manifests.
func (s *Service) WithEvidenceStore(store EvidenceStore) *Service {
	s.evidence = store
	return s
}

// SignerInput is the roster entry supplied at envelope creation.
type SignerInput struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
	IsExternal bool   `json:"isExternal"`
}

// CreateEnvelopeInput is the envelope creation request.
type CreateEnvelopeInput struct {
	OwnerID      string        `json:"ownerId"`
	OwnerEmail   string        `json:"ownerEmail"`
	DocumentID   string        `json:"documentId"`
	DocumentHash string        `json:"documentHash"`
	SigningOrder string        `json:"signingOrder"`
	ExpiresIn    time.Duration `json:"expiresIn"`
	Signers      []SignerInput `json:"signers"`
}

// CreateEnvelope creates a DRAFT envelope with its signer roster. No tokens
// are issued until Send.
func (s *Service) CreateEnvelope(ctx context.Context, in CreateEnvelopeInput) (*envelope.Envelope, []*envelope.Signer, error) {
	now := s.now()
	order := envelope.SigningOrder(in.SigningOrder)
	switch order {
	case envelope.OrderOwnerFirst, envelope.OrderInviteesFirst:
	case "":
		order = envelope.OrderInviteesFirst
	default:
		return nil, nil, apperrors.Newf(apperrors.CodeWorkflowViolation,
			"unknown signing order %q", in.SigningOrder)
	}
	if in.ExpiresIn <= 0 {
		return nil, nil, apperrors.New(apperrors.CodeInvalidExpiration,
			"envelope expiration must be in the future")
	}

	envID, err := ids.New("env")
	if err != nil {
		return nil, nil, err
	}
	e := &envelope.Envelope{
		ID:           envID,
		OwnerID:      in.OwnerID,
		OwnerEmail:   in.OwnerEmail,
		DocumentID:   in.DocumentID,
		DocumentHash: in.DocumentHash,
		SigningOrder: order,
		Status:       envelope.StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(in.ExpiresIn),
		Version:      1,
	}

	roster := make([]*envelope.Signer, 0, len(in.Signers))
	for _, si := range in.Signers {
		sgnID, err := ids.New("sgn")
		if err != nil {
			return nil, nil, err
		}
		roster = append(roster, &envelope.Signer{
			ID:         sgnID,
			EnvelopeID: envID,
			Email:      si.Email,
			Name:       si.Name,
			Order:      si.Order,
			IsExternal: si.IsExternal,
			Status:     envelope.SignerPending,
		})
	}
	if err := rules.SignersWellFormed(rules.Input{Envelope: e, Signers: roster, Now: now}, s.cfg.Rules); err != nil {
		return nil, nil, err
	}

	if err := s.envelopes.Create(ctx, e); err != nil {
		return nil, nil, err
	}
	if err := s.signers.CreateMany(ctx, roster); err != nil {
		return nil, nil, err
	}
	s.record(ctx, e.ID, "", in.OwnerID, "envelope.created", map[string]any{"documentId": in.DocumentID})
	return e, roster, nil
}

// Get returns an envelope with its signers, lazily healing a stale status
// before returning it. A healing write that loses a race is ignored: the
// winner already holds a newer, also-recomputed state.
func (s *Service) Get(ctx context.Context, envelopeID string) (*envelope.Envelope, []*envelope.Signer, error) {
	e, roster, err := s.load(ctx, envelopeID)
	if err != nil {
		return nil, nil, err
	}
	changed, err := envelope.Reconcile(e, roster, s.now())
	if err != nil {
		return nil, nil, err
	}
	if changed {
		if err := s.envelopes.Update(ctx, e); err != nil && err != repository.ErrConflict {
			return nil, nil, err
		}
		metrics.EnvelopeTransitions.WithLabelValues(string(e.Status)).Inc()
	}
	return e, roster, nil
}

// ListByOwner returns the owner's envelopes without reconciling each one.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]*envelope.Envelope, error) {
	return s.envelopes.ListByOwner(ctx, ownerID)
}

// Trail returns the envelope's audit trail.
func (s *Service) Trail(ctx context.Context, envelopeID string) ([]audit.Event, error) {
	return s.recorder.Trail(ctx, envelopeID)
}

func (s *Service) load(ctx context.Context, envelopeID string) (*envelope.Envelope, []*envelope.Signer, error) {
	e, err := s.envelopes.Get(ctx, envelopeID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, nil, apperrors.New(apperrors.CodeNotFound, "envelope not found").WithEntity(envelopeID)
		}
		return nil, nil, err
	}
	roster, err := s.signers.ListByEnvelope(ctx, envelopeID)
	if err != nil {
		return nil, nil, err
	}
	return e, roster, nil
}

// transition applies a status change and persists it, tolerating a same-status
// no-op from a concurrent healer.
func (s *Service) transition(ctx context.Context, e *envelope.Envelope, to envelope.Status) error {
	if e.Status == to {
		return nil
	}
	if err := envelope.ApplyTransition(e, to, s.now()); err != nil {
		return err
	}
	if err := s.envelopes.Update(ctx, e); err != nil {
		if err == repository.ErrConflict {
			return apperrors.New(apperrors.CodeConflict, "envelope changed concurrently").
				WithEntity(e.ID).WithStatus(string(e.Status))
		}
		return err
	}
	metrics.EnvelopeTransitions.WithLabelValues(string(to)).Inc()
	return nil
}

// recompute re-reads the roster, derives the envelope status, and persists the
// result when it differs from the stored one.
func (s *Service) recompute(ctx context.Context, e *envelope.Envelope) error {
	roster, err := s.signers.ListByEnvelope(ctx, e.ID)
	if err != nil {
		return err
	}
	next := envelope.RecomputeStatus(e, roster, s.now())
	return s.transition(ctx, e, next)
}

func (s *Service) record(ctx context.Context, envelopeID, signerID, actor, action string, detail map[string]any) {
	s.recordNet(ctx, envelopeID, signerID, actor, action, detail, invitations.NetworkContext{})
}

// recordNet carries the caller's network provenance onto the audit event.
func (s *Service) recordNet(ctx context.Context, envelopeID, signerID, actor, action string, detail map[string]any, net invitations.NetworkContext) {
	s.recorder.Record(ctx, audit.Event{
		EnvelopeID: envelopeID,
		SignerID:   signerID,
		Actor:      actor,
		Action:     action,
		Detail:     detail,
		IP:         net.IP,
		UserAgent:  net.UserAgent,
		Country:    net.Country,
	})
}

func (s *Service) revokeActiveTokens(ctx context.Context, roster []*envelope.Signer, reason, by string) {
	for _, sgn := range roster {
		t, err := s.tokens.ActiveForSigner(ctx, sgn.ID)
		if err != nil || t == nil {
			continue
		}
		if err := s.tokens.Revoke(ctx, t, reason, by); err != nil {
			logger.Warnf("workflow: revoking token %s: %v", t.ID, err)
			continue
		}
		metrics.TokensConsumed.WithLabelValues("revoked").Inc()
	}
}
