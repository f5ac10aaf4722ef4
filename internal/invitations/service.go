package invitations

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/sealflow/sealflow/backend/go-services/internal/apperrors"
	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
	"github.com/sealflow/sealflow/backend/go-services/internal/ids"
)

// Service wraps token repository operations with the lifecycle rules:
// exclusive-replace issuance, single-use consumption, and terminal-state
// guards.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// HashSecret returns the hex SHA-256 of a raw token secret. The raw secret
// exists only in the invitation link; storage and lookups see the hash.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Issue generates a fresh high-entropy secret for the signer and persists its
// hash as an ACTIVE token expiring at now + ttl. Any existing ACTIVE token
// for the signer is revoked first, so at most one secret is valid per signer.
//
// Issuance is skipped (nil token, empty secret) when the signer is the
// envelope owner: owners sign through their authenticated session.
func (s *Service) Issue(ctx context.Context, env *envelope.Envelope, sgn *envelope.Signer, ttl time.Duration) (*Token, string, error) {
	if sgn.IsOwner(env) {
		return nil, "", nil
	}
	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	if !expiresAt.After(now) {
		return nil, "", apperrors.Newf(apperrors.CodeInvalidExpiration,
			"computed expiry %s is not in the future", expiresAt.Format(time.RFC3339)).
			WithEntity(sgn.ID).WithOperation("issue")
	}

	if prev, err := s.repo.GetActiveBySigner(ctx, sgn.ID); err == nil {
		if err := s.Revoke(ctx, prev, "superseded by reissue", "system"); err != nil {
			return nil, "", err
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, "", err
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, "", err
	}
	secret := hex.EncodeToString(b)

	id, err := ids.New("tok")
	if err != nil {
		return nil, "", err
	}
	t := &Token{
		ID:         id,
		EnvelopeID: env.ID,
		SignerID:   sgn.ID,
		SecretHash: HashSecret(secret),
		Status:     TokenActive,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, "", err
	}
	return t, secret, nil
}

// MarkSent records a delivery attempt: send timestamp, resend counter, and
// the network provenance of the sending request. Token status is untouched.
func (s *Service) MarkSent(ctx context.Context, t *Token, netCtx NetworkContext) error {
	now := s.now().UTC()
	t.LastSentAt = &now
	t.ResendCount++
	t.SentIP = netCtx.IP
	t.SentUserAgent = netCtx.UserAgent
	t.SentCountry = netCtx.Country
	return s.repo.Update(ctx, t)
}

// CanBeResent reports whether another delivery is allowed: the token must be
// ACTIVE, unexpired, and under the resend budget.
func (s *Service) CanBeResent(t *Token, maxResends int) bool {
	if t.Status != TokenActive {
		return false
	}
	if s.now().UTC().After(t.ExpiresAt) {
		return false
	}
	return t.ResendCount < maxResends
}

// Validate resolves a raw secret to its token and checks it is usable.
// Failure order matters for precise errors: expiry first, then terminal
// statuses.
func (s *Service) Validate(ctx context.Context, secret string) (*Token, error) {
	t, err := s.repo.GetBySecretHash(ctx, HashSecret(secret))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "unknown invitation token").WithOperation("validate")
		}
		return nil, err
	}
	return s.check(t)
}

// ValidateByID looks a token up by id and checks it is usable.
func (s *Service) ValidateByID(ctx context.Context, id string) (*Token, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "unknown invitation token").
				WithEntity(id).WithOperation("validate")
		}
		return nil, err
	}
	return s.check(t)
}

func (s *Service) check(t *Token) (*Token, error) {
	if s.now().UTC().After(t.ExpiresAt) {
		return nil, apperrors.Newf(apperrors.CodeTokenExpired,
			"token expired at %s", t.ExpiresAt.Format(time.RFC3339)).
			WithEntity(t.ID).WithStatus(string(t.Status)).WithOperation("validate")
	}
	switch t.Status {
	case TokenUsed:
		return nil, apperrors.New(apperrors.CodeTokenAlreadyUsed, "token already used").
			WithEntity(t.ID).WithStatus(string(t.Status)).WithOperation("validate")
	case TokenRevoked:
		return nil, apperrors.New(apperrors.CodeTokenRevoked, "token revoked").
			WithEntity(t.ID).WithStatus(string(t.Status)).WithOperation("validate")
	}
	return t, nil
}

// MarkUsed atomically consumes the token: exactly one of any number of
// concurrent callers transitions ACTIVE -> USED, all others observe
// TOKEN_ALREADY_USED (or TOKEN_REVOKED when a revocation won the race).
func (s *Service) MarkUsed(ctx context.Context, t *Token, usedBy string) error {
	if t.Status != TokenActive {
		return s.terminalError(t, "use")
	}
	now := s.now().UTC()
	updated := *t
	updated.Status = TokenUsed
	updated.UsedAt = &now
	updated.UsedBy = usedBy
	err := s.repo.UpdateStatus(ctx, &updated, TokenActive)
	if err == nil {
		*t = updated
		return nil
	}
	if errors.Is(err, ErrConflict) {
		// lost the race: report what actually happened to the token
		cur, gerr := s.repo.Get(ctx, t.ID)
		if gerr != nil {
			return gerr
		}
		*t = *cur
		return s.terminalError(cur, "use")
	}
	return err
}

// Revoke transitions ACTIVE -> REVOKED. Revoking an already revoked token is
// an idempotent no-op; revoking a USED token is rejected so consumption
// evidence can never be silently overwritten.
func (s *Service) Revoke(ctx context.Context, t *Token, reason, revokedBy string) error {
	switch t.Status {
	case TokenRevoked:
		return nil
	case TokenUsed:
		return apperrors.New(apperrors.CodeInvalidStateTransition, "cannot revoke a used token").
			WithEntity(t.ID).WithStatus(string(t.Status)).WithOperation("revoke")
	}
	now := s.now().UTC()
	updated := *t
	updated.Status = TokenRevoked
	updated.RevokedAt = &now
	updated.RevokedBy = revokedBy
	updated.RevokedReason = reason
	err := s.repo.UpdateStatus(ctx, &updated, TokenActive)
	if err == nil {
		*t = updated
		return nil
	}
	if errors.Is(err, ErrConflict) {
		cur, gerr := s.repo.Get(ctx, t.ID)
		if gerr != nil {
			return gerr
		}
		*t = *cur
		if cur.Status == TokenRevoked {
			return nil
		}
		return s.terminalError(cur, "revoke")
	}
	return err
}

// ActiveForSigner returns the signer's current ACTIVE token, ErrNotFound when
// none exists.
func (s *Service) ActiveForSigner(ctx context.Context, signerID string) (*Token, error) {
	return s.repo.GetActiveBySigner(ctx, signerID)
}

func (s *Service) terminalError(t *Token, op string) error {
	switch t.Status {
	case TokenUsed:
		return apperrors.New(apperrors.CodeTokenAlreadyUsed, "token already used").
			WithEntity(t.ID).WithStatus(string(t.Status)).WithOperation(op)
	case TokenRevoked:
		return apperrors.New(apperrors.CodeTokenRevoked, "token revoked").
			WithEntity(t.ID).WithStatus(string(t.Status)).WithOperation(op)
	}
	return apperrors.Newf(apperrors.CodeInvalidStateTransition, "unexpected token status %s", t.Status).
		WithEntity(t.ID).WithStatus(string(t.Status)).WithOperation(op)
}
