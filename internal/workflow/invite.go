package workflow

import (
	"context"
	"errors"

	"github.com/sealflow/sealflow/backend/go-services/internal/apperrors"
	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
	"github.com/sealflow/sealflow/backend/go-services/internal/invitations"
	"github.com/sealflow/sealflow/backend/go-services/internal/rules"
	"github.com/sealflow/sealflow/backend/go-services/pkg/metrics"
)

// Invitation pairs a signer with the one-time secret minted for them. The
// secret exists only in this response; delivery is the caller's concern.
type Invitation struct {
	SignerID string `json:"signerId"`
	Email    string `json:"email"`
	Secret   string `json:"secret"`
}

// Send moves a DRAFT envelope to SENT and issues one invitation token per
// non-owner signer. The owner signs through their authenticated session, so
// no token is minted for them.
func (s *Service) Send(ctx context.Context, envelopeID, caller string, netCtx invitations.NetworkContext) ([]Invitation, error) {
	e, roster, err := s.load(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	if caller != e.OwnerID {
		return nil, apperrors.New(apperrors.CodeSecurityViolation, "only the owner may send an envelope").
			WithEntity(e.ID).WithOperation(rules.OpInvite.String())
	}
	in := rules.Input{Envelope: e, Signers: roster, Caller: caller, Now: s.now()}
	if err := rules.Apply(rules.OpInvite, in, s.cfg.Rules); err != nil {
		return nil, err
	}

	var out []Invitation
	for _, sgn := range roster {
		if sgn.Status != envelope.SignerPending {
			continue
		}
		t, secret, err := s.tokens.Issue(ctx, e, sgn, s.cfg.InvitationTTL)
		if err != nil {
			return nil, err
		}
		if t == nil { // owner: no token
			continue
		}
		if err := s.tokens.MarkSent(ctx, t, netCtx); err != nil {
			return nil, err
		}
		metrics.TokensIssued.Inc()
		out = append(out, Invitation{SignerID: sgn.ID, Email: sgn.Email, Secret: secret})
	}

	if err := s.transition(ctx, e, envelope.StatusSent); err != nil {
		return nil, err
	}
	s.record(ctx, e.ID, "", caller, "envelope.sent", map[string]any{"invitations": len(out)})
	return out, nil
}

// Remind reissues the signer's invitation with a fresh secret, subject to the
// per-token cooldown and resend budget. The resend counter carries over to the
// replacement token so the budget survives reissue.
func (s *Service) Remind(ctx context.Context, envelopeID, signerID, caller string, netCtx invitations.NetworkContext) (*Invitation, error) {
	e, roster, err := s.load(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	if caller != e.OwnerID {
		return nil, apperrors.New(apperrors.CodeSecurityViolation, "only the owner may send reminders").
			WithEntity(e.ID).WithOperation(rules.OpRemind.String())
	}
	sgn := findSigner(roster, signerID)
	if sgn == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "signer not found").WithEntity(signerID)
	}
	if sgn.Status != envelope.SignerPending {
		return nil, apperrors.Newf(apperrors.CodeWorkflowViolation,
			"signer is %s and needs no reminder", sgn.Status).
			WithEntity(sgn.ID).WithOperation(rules.OpRemind.String())
	}

	// No active token (revoked or expired) is fine: the reminder mints a
	// replacement and the resend budget restarts with it.
	prev, err := s.tokens.ActiveForSigner(ctx, sgn.ID)
	if err != nil && !errors.Is(err, invitations.ErrNotFound) {
		return nil, err
	}
	in := rules.Input{Envelope: e, Signers: roster, Signer: sgn, Token: prev, Caller: caller, Now: s.now()}
	if err := rules.Apply(rules.OpRemind, in, s.cfg.Rules); err != nil {
		return nil, err
	}

	t, secret, err := s.tokens.Issue(ctx, e, sgn, s.cfg.InvitationTTL)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperrors.New(apperrors.CodeWorkflowViolation, "the owner does not receive invitations").
			WithEntity(sgn.ID).WithOperation(rules.OpRemind.String())
	}
	if prev != nil {
		t.ResendCount = prev.ResendCount
	}
	if err := s.tokens.MarkSent(ctx, t, netCtx); err != nil {
		return nil, err
	}
	metrics.TokensIssued.Inc()
	s.record(ctx, e.ID, sgn.ID, caller, "invitation.reminded", map[string]any{"resendCount": t.ResendCount})
	return &Invitation{SignerID: sgn.ID, Email: sgn.Email, Secret: secret}, nil
}

// Revoke withdraws a signer's active invitation. The signer stays on the
// roster; a later Remind mints a replacement.
func (s *Service) Revoke(ctx context.Context, envelopeID, signerID, caller, reason string) error {
	e, roster, err := s.load(ctx, envelopeID)
	if err != nil {
		return err
	}
	if caller != e.OwnerID {
		return apperrors.New(apperrors.CodeSecurityViolation, "only the owner may revoke invitations").
			WithEntity(e.ID).WithOperation(rules.OpRevoke.String())
	}
	in := rules.Input{Envelope: e, Signers: roster, Caller: caller, Now: s.now()}
	if err := rules.Apply(rules.OpRevoke, in, s.cfg.Rules); err != nil {
		return err
	}
	t, err := s.tokens.ActiveForSigner(ctx, signerID)
	if errors.Is(err, invitations.ErrNotFound) {
		return apperrors.New(apperrors.CodeNotFound, "no active invitation for signer").WithEntity(signerID)
	}
	if err != nil {
		return err
	}
	if err := s.tokens.Revoke(ctx, t, reason, caller); err != nil {
		return err
	}
	metrics.TokensConsumed.WithLabelValues("revoked").Inc()
	s.record(ctx, e.ID, signerID, caller, "token.revoked", map[string]any{"reason": reason})
	return nil
}

func findSigner(roster []*envelope.Signer, id string) *envelope.Signer {
	for _, s := range roster {
		if s.ID == id {
			return s
		}
	}
	return nil
}
