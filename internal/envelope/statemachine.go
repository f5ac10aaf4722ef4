package envelope

import (
	"time"

	"github.com/sealflow/sealflow/backend/go-services/internal/apperrors"
)

// transitions is the full envelope transition table. Absence means forbidden.
var transitions = map[Status][]Status{
	StatusDraft:             {StatusSent, StatusExpired},
	StatusSent:              {StatusInProgress, StatusReadyForSignature, StatusCompleted, StatusExpired, StatusDeclined},
	StatusInProgress:        {StatusReadyForSignature, StatusCompleted, StatusExpired, StatusDeclined},
	StatusReadyForSignature: {StatusCompleted, StatusExpired},
	StatusCompleted:         {},
	StatusExpired:           {},
	// semi-terminal: only an explicit owner restart leads back to DRAFT
	StatusDeclined: {StatusDraft},
}

// CanTransition reports whether from -> to is a legal envelope transition.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ApplyTransition moves the envelope to the target status, stamping the
// timestamps the target state owns. This is the only legal write path for
// Envelope.Status.
func ApplyTransition(e *Envelope, to Status, now time.Time) error {
	if e.Status == to {
		return nil
	}
	if !CanTransition(e.Status, to) {
		return apperrors.Newf(apperrors.CodeInvalidStateTransition,
			"envelope cannot move from %s to %s", e.Status, to).
			WithEntity(e.ID).WithStatus(string(e.Status))
	}
	e.Status = to
	e.UpdatedAt = now.UTC()
	switch to {
	case StatusCompleted:
		t := now.UTC()
		e.CompletedAt = &t
	case StatusDraft:
		// restart clears completion evidence of the aborted run
		e.CompletedAt = nil
	}
	return nil
}

// RecomputeStatus derives the envelope status from the signer set. The stored
// status is never trusted as sole ground truth: any operation that reads an
// envelope recomputes, so a stale stored status heals on next read.
//
// Terminal stored statuses (COMPLETED, EXPIRED) are kept as-is, and an
// envelope that was never sent stays DRAFT regardless of signer state.
func RecomputeStatus(e *Envelope, signers []*Signer, now time.Time) Status {
	if e.Status.Terminal() {
		return e.Status
	}
	if e.Status == StatusDraft {
		if !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt) {
			return StatusExpired
		}
		return StatusDraft
	}
	if !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt) {
		return StatusExpired
	}

	var signed, declined, ownerPending, othersPending int
	for _, s := range signers {
		switch s.Status {
		case SignerDeclined:
			declined++
		case SignerSigned:
			signed++
		case SignerPending:
			if s.IsOwner(e) {
				ownerPending++
			} else {
				othersPending++
			}
		}
	}

	switch {
	case declined > 0:
		return StatusDeclined
	case ownerPending == 0 && othersPending == 0 && signed > 0:
		return StatusCompleted
	case othersPending == 0 && ownerPending > 0 && signed > 0:
		// every invited signer but the owner has signed
		return StatusReadyForSignature
	case signed > 0:
		return StatusInProgress
	default:
		return StatusSent
	}
}

// Reconcile recomputes the status and, when the stored value is stale, applies
// the corrective transition. Returns true when the envelope changed.
func Reconcile(e *Envelope, signers []*Signer, now time.Time) (bool, error) {
	want := RecomputeStatus(e, signers, now)
	if want == e.Status {
		return false, nil
	}
	if err := ApplyTransition(e, want, now); err != nil {
		return false, err
	}
	return true, nil
}
