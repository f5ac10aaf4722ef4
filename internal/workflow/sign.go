package workflow

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sealflow/sealflow/backend/go-services/internal/apperrors"
	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
	"github.com/sealflow/sealflow/backend/go-services/internal/envelope/repository"
	"github.com/sealflow/sealflow/backend/go-services/internal/ids"
	"github.com/sealflow/sealflow/backend/go-services/internal/invitations"
	"github.com/sealflow/sealflow/backend/go-services/internal/rules"
	"github.com/sealflow/sealflow/backend/go-services/internal/signing"
	"github.com/sealflow/sealflow/backend/go-services/pkg/logger"
	"github.com/sealflow/sealflow/backend/go-services/pkg/metrics"
)

// SignRequest carries one sign action. Exactly one of Secret (raw invitation
// secret), TokenID (signing-session path) or OwnerID (authenticated owner
// path) identifies the actor.
type SignRequest struct {
	EnvelopeID      string
	Secret          string
	TokenID         string
	OwnerID         string
	ConsentRecordID string
	Algorithm       string
	Cert            *rules.CertificateInfo
	Net             invitations.NetworkContext
}

// DeclineRequest mirrors SignRequest's actor resolution for refusals.
type DeclineRequest struct {
	EnvelopeID string
	Secret     string
	TokenID    string
	OwnerID    string
	Reason     string
	Net        invitations.NetworkContext
}

// resolveToken validates whichever invitation credential the request carries.
// Neither being present is the owner path: no token exists for the owner.
func (s *Service) resolveToken(ctx context.Context, secret, tokenID string) (*invitations.Token, error) {
	switch {
	case secret != "":
		return s.tokens.Validate(ctx, secret)
	case tokenID != "":
		return s.tokens.ValidateByID(ctx, tokenID)
	}
	return nil, nil
}

// Sign executes one signing action end to end: resolve the actor, run the
// eligibility and evidence rules, produce the signature, consume the token
// (single use, race-safe), flip the signer, and recompute the envelope.
func (s *Service) Sign(ctx context.Context, req SignRequest) (*envelope.SignatureRecord, error) {
	started := s.now()

	token, err := s.resolveToken(ctx, req.Secret, req.TokenID)
	if err != nil {
		return nil, err
	}

	envelopeID := req.EnvelopeID
	if token != nil {
		envelopeID = token.EnvelopeID
	}
	e, roster, err := s.load(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	target, err := s.resolveActor(e, roster, token, req.OwnerID)
	if err != nil {
		return nil, err
	}

	alg := req.Algorithm
	if alg == "" {
		alg = s.cfg.DefaultAlgorithm
	}
	in := rules.Input{
		Envelope:  e,
		Signers:   roster,
		Signer:    target,
		Token:     token,
		Cert:      req.Cert,
		KeyID:     s.provider.KeyID(),
		Now:       s.now(),
		StartedAt: started,
	}
	if err := rules.Apply(rules.OpSign, in, s.cfg.Rules); err != nil {
		return nil, err
	}

	res, err := s.provider.Sign(ctx, signing.Request{
		EnvelopeID:   e.ID,
		SignerID:     target.ID,
		DocumentHash: e.DocumentHash,
		Algorithm:    alg,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSigningFailed, "signature production failed", err).
			WithEntity(e.ID).WithOperation(rules.OpSign.String())
	}

	sigID, err := ids.New("sig")
	if err != nil {
		return nil, err
	}
	rec := &envelope.SignatureRecord{
		ID:            sigID,
		EnvelopeID:    e.ID,
		SignerID:      target.ID,
		DocumentHash:  e.DocumentHash,
		SignatureHash: res.SignatureHash,
		Algorithm:     res.Algorithm,
		SignedAt:      res.SignedAt,
	}
	in.Signature = rec
	in.Now = s.now()
	if err := rules.Apply(rules.OpSign, in, s.cfg.Rules); err != nil {
		return nil, err
	}

	// Single-use gate: the conditional write on the token decides the winner
	// among concurrent submissions of the same secret.
	if token != nil {
		if err := s.tokens.MarkUsed(ctx, token, target.Email); err != nil {
			return nil, err
		}
		metrics.TokensConsumed.WithLabelValues("used").Inc()
	}

	target.ConsentRecordID = req.ConsentRecordID
	if err := envelope.MarkSigned(target, s.now()); err != nil {
		return nil, err
	}
	if err := s.signers.UpdateStatus(ctx, target, envelope.SignerPending); err != nil {
		return nil, s.signerWriteError(ctx, err, target.ID, rules.OpSign.String())
	}
	if err := s.signatures.Append(ctx, rec); err != nil {
		return nil, err
	}
	metrics.SignaturesRecorded.Inc()

	// Best effort: the repository copy is authoritative, the object-store
	// manifest backs the finalize completeness check.
	if s.evidence != nil {
		if data, merr := json.Marshal(rec); merr == nil {
			if perr := s.evidence.PutEvidence(ctx, e.ID, rec.ID, data); perr != nil {
				logger.Warnf("evidence manifest write failed for %s/%s: %v", e.ID, rec.ID, perr)
			}
		}
	}

	if err := s.recompute(ctx, e); err != nil {
		return nil, err
	}
	s.recordNet(ctx, e.ID, target.ID, target.Email, "signer.signed", map[string]any{
		"algorithm": rec.Algorithm,
		"status":    string(e.Status),
	}, req.Net)
	return rec, nil
}

// Decline records a signer's refusal and moves the envelope to DECLINED.
// Other signers' tokens stay active so a later sign attempt surfaces the
// envelope state, not a token error; Restart withdraws them when the owner
// reopens the round.
func (s *Service) Decline(ctx context.Context, req DeclineRequest) error {
	token, err := s.resolveToken(ctx, req.Secret, req.TokenID)
	if err != nil {
		return err
	}
	envelopeID := req.EnvelopeID
	if token != nil {
		envelopeID = token.EnvelopeID
	}
	e, roster, err := s.load(ctx, envelopeID)
	if err != nil {
		return err
	}
	target, err := s.resolveActor(e, roster, token, req.OwnerID)
	if err != nil {
		return err
	}

	in := rules.Input{Envelope: e, Signers: roster, Signer: target, Token: token, Now: s.now()}
	if err := rules.Apply(rules.OpDecline, in, s.cfg.Rules); err != nil {
		return err
	}

	if token != nil {
		if err := s.tokens.MarkUsed(ctx, token, target.Email); err != nil {
			return err
		}
		metrics.TokensConsumed.WithLabelValues("used").Inc()
	}

	if err := envelope.MarkDeclined(target, req.Reason, s.now()); err != nil {
		return err
	}
	if err := s.signers.UpdateStatus(ctx, target, envelope.SignerPending); err != nil {
		return s.signerWriteError(ctx, err, target.ID, rules.OpDecline.String())
	}

	if err := s.transition(ctx, e, envelope.StatusDeclined); err != nil {
		return err
	}
	s.recordNet(ctx, e.ID, target.ID, target.Email, "signer.declined", map[string]any{"reason": req.Reason}, req.Net)
	return nil
}

// resolveActor maps the credential to a roster entry. Token holders sign as
// the signer the token was minted for; the owner signs as the roster entry
// matching their envelope email.
func (s *Service) resolveActor(e *envelope.Envelope, roster []*envelope.Signer, token *invitations.Token, ownerID string) (*envelope.Signer, error) {
	if token != nil {
		target := findSigner(roster, token.SignerID)
		if target == nil {
			return nil, apperrors.New(apperrors.CodeNotFound, "signer not found").WithEntity(token.SignerID)
		}
		return target, nil
	}
	if ownerID == "" || ownerID != e.OwnerID {
		return nil, apperrors.New(apperrors.CodeSecurityViolation, "no credential identifies the signer").
			WithEntity(e.ID).WithOperation(rules.OpSign.String())
	}
	for _, sgn := range roster {
		if strings.EqualFold(sgn.Email, e.OwnerEmail) {
			return sgn, nil
		}
	}
	return nil, apperrors.New(apperrors.CodeNotFound, "the owner is not on the signer roster").WithEntity(e.ID)
}

// signerWriteError maps a lost signer-status race to the precise terminal
// error by re-reading the winner's state.
func (s *Service) signerWriteError(ctx context.Context, err error, signerID, op string) error {
	if err != repository.ErrConflict {
		return err
	}
	current, rerr := s.signers.Get(ctx, signerID)
	if rerr != nil {
		return apperrors.Wrap(apperrors.CodeConflict, "signer changed concurrently", err).WithEntity(signerID)
	}
	switch current.Status {
	case envelope.SignerSigned:
		return apperrors.New(apperrors.CodeAlreadySigned, "signer has already signed").
			WithEntity(signerID).WithOperation(op)
	case envelope.SignerDeclined:
		return apperrors.New(apperrors.CodeAlreadyDeclined, "signer has already declined").
			WithEntity(signerID).WithOperation(op)
	}
	return apperrors.Wrap(apperrors.CodeConflict, "signer changed concurrently", err).WithEntity(signerID)
}
