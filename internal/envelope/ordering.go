package envelope

import (
	"time"

	"github.com/sealflow/sealflow/backend/go-services/internal/apperrors"
)

// CanSignNow enforces the per-signer signing preconditions: the signer must be
// PENDING and the envelope's ordering policy must permit them at this moment.
// The envelope-level status gate lives in the rules layer.
//
// Arrival timing is irrelevant: two signers sharing the lowest pending order
// are both eligible and may race, but a signer behind an unresolved lower
// order is rejected regardless of when the request lands.
func CanSignNow(e *Envelope, signers []*Signer, target *Signer) error {
	if err := requirePending(target, "sign"); err != nil {
		return err
	}

	isOwner := target.IsOwner(e)

	switch e.SigningOrder {
	case OrderOwnerFirst:
		if !isOwner {
			if owner := ownerSigner(e, signers); owner != nil && owner.Status != SignerSigned {
				return apperrors.New(apperrors.CodeWorkflowViolation,
					"owner must sign before invitees").
					WithEntity(target.ID).WithStatus(string(target.Status)).WithOperation("sign")
			}
		}
	case OrderInviteesFirst:
		if isOwner {
			if n := pendingInvitees(e, signers); n > 0 {
				return apperrors.Newf(apperrors.CodeWorkflowViolation,
					"%d invitee(s) must sign before the owner", n).
					WithEntity(target.ID).WithStatus(string(target.Status)).WithOperation("sign")
			}
			return nil
		}
	default:
		return apperrors.Newf(apperrors.CodeWorkflowViolation,
			"unknown signing order policy %q", e.SigningOrder).WithEntity(e.ID)
	}

	if isOwner {
		return nil
	}

	// ascending-order rule for invitees: nobody with a strictly lower order
	// may still be pending
	for _, s := range signers {
		if s.ID == target.ID || s.IsOwner(e) {
			continue
		}
		if s.Status == SignerPending && s.Order < target.Order {
			return apperrors.Newf(apperrors.CodeWorkflowViolation,
				"signer at order %d is still pending", s.Order).
				WithEntity(target.ID).WithStatus(string(target.Status)).WithOperation("sign")
		}
	}
	return nil
}

// CanDecline enforces decline preconditions: any PENDING signer may decline at
// any time regardless of order.
func CanDecline(target *Signer) error {
	return requirePending(target, "decline")
}

// MarkSigned transitions a signer PENDING -> SIGNED.
func MarkSigned(s *Signer, now time.Time) error {
	if err := requirePending(s, "sign"); err != nil {
		return err
	}
	t := now.UTC()
	s.Status = SignerSigned
	s.SignedAt = &t
	return nil
}

// MarkDeclined transitions a signer PENDING -> DECLINED and records the reason.
func MarkDeclined(s *Signer, reason string, now time.Time) error {
	if err := requirePending(s, "decline"); err != nil {
		return err
	}
	t := now.UTC()
	s.Status = SignerDeclined
	s.DeclineReason = reason
	s.DeclinedAt = &t
	return nil
}

// ResetForRestart returns a declined or pending signer to a clean PENDING
// state. Collected signatures survive an owner restart.
func ResetForRestart(s *Signer) {
	if s.Status == SignerSigned {
		return
	}
	s.Status = SignerPending
	s.DeclineReason = ""
	s.DeclinedAt = nil
}

func requirePending(s *Signer, op string) error {
	switch s.Status {
	case SignerPending:
		return nil
	case SignerSigned:
		return apperrors.New(apperrors.CodeAlreadySigned, "signer already signed").
			WithEntity(s.ID).WithStatus(string(s.Status)).WithOperation(op)
	case SignerDeclined:
		return apperrors.New(apperrors.CodeAlreadyDeclined, "signer already declined").
			WithEntity(s.ID).WithStatus(string(s.Status)).WithOperation(op)
	}
	return apperrors.Newf(apperrors.CodeInvalidStateTransition, "unknown signer status %q", s.Status).
		WithEntity(s.ID).WithOperation(op)
}

func ownerSigner(e *Envelope, signers []*Signer) *Signer {
	for _, s := range signers {
		if s.IsOwner(e) {
			return s
		}
	}
	return nil
}

func pendingInvitees(e *Envelope, signers []*Signer) int {
	n := 0
	for _, s := range signers {
		if !s.IsOwner(e) && s.Status == SignerPending {
			n++
		}
	}
	return n
}
