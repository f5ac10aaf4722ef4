package rules

import (
	"strings"

	"github.com/sealflow/sealflow/backend/go-services/internal/apperrors"
	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
)

// EnvelopeSendable gates invite issuance: only DRAFT envelopes can be sent
// out for signing.
func EnvelopeSendable(in Input, cfg Config) error {
	if in.Envelope.Status != envelope.StatusDraft {
		return apperrors.Newf(apperrors.CodeInvalidStateTransition,
			"envelope in status %s cannot be sent", in.Envelope.Status).
			WithEntity(in.Envelope.ID).WithStatus(string(in.Envelope.Status)).WithOperation(OpInvite.String())
	}
	return nil
}

// EnvelopeInFlight requires an envelope that is actively collecting
// signatures.
func EnvelopeInFlight(in Input, cfg Config) error {
	switch in.Envelope.Status {
	case envelope.StatusSent, envelope.StatusInProgress, envelope.StatusReadyForSignature:
		return nil
	}
	return apperrors.Newf(apperrors.CodeInvalidStateTransition,
		"envelope in status %s is not accepting signatures", in.Envelope.Status).
		WithEntity(in.Envelope.ID).WithStatus(string(in.Envelope.Status))
}

// EnvelopeNotTerminal rejects operations against COMPLETED or EXPIRED
// envelopes.
func EnvelopeNotTerminal(in Input, cfg Config) error {
	if in.Envelope.Status.Terminal() {
		return apperrors.Newf(apperrors.CodeInvalidStateTransition,
			"envelope in terminal status %s", in.Envelope.Status).
			WithEntity(in.Envelope.ID).WithStatus(string(in.Envelope.Status))
	}
	return nil
}

// EnvelopeCompletable gates finalize: every required signer must already be
// SIGNED.
func EnvelopeCompletable(in Input, cfg Config) error {
	for _, s := range in.Signers {
		if s.Status != envelope.SignerSigned {
			return apperrors.Newf(apperrors.CodeWorkflowViolation,
				"signer %s is %s, envelope cannot complete", s.ID, s.Status).
				WithEntity(in.Envelope.ID).WithStatus(string(in.Envelope.Status)).WithOperation(OpFinalize.String())
		}
	}
	return nil
}

// EnvelopeRestartable allows restart only from the semi-terminal DECLINED
// status, and only by the owner.
func EnvelopeRestartable(in Input, cfg Config) error {
	if in.Envelope.Status != envelope.StatusDeclined {
		return apperrors.Newf(apperrors.CodeInvalidStateTransition,
			"only a declined envelope can be restarted, not %s", in.Envelope.Status).
			WithEntity(in.Envelope.ID).WithStatus(string(in.Envelope.Status)).WithOperation(OpRestart.String())
	}
	if in.Caller != "" && in.Caller != in.Envelope.OwnerID {
		return apperrors.New(apperrors.CodeSecurityViolation, "only the owner may restart an envelope").
			WithEntity(in.Envelope.ID).WithOperation(OpRestart.String())
	}
	return nil
}

// EnvelopeDeletable allows deletion only while DRAFT or after a terminal
// failure (EXPIRED).
func EnvelopeDeletable(in Input, cfg Config) error {
	switch in.Envelope.Status {
	case envelope.StatusDraft, envelope.StatusExpired:
		return nil
	}
	return apperrors.Newf(apperrors.CodeInvalidStateTransition,
		"envelope in status %s cannot be deleted", in.Envelope.Status).
		WithEntity(in.Envelope.ID).WithStatus(string(in.Envelope.Status)).WithOperation(OpDelete.String())
}

// SignersWellFormed validates the signer roster at invite time: at least one
// signer, positive orders, and (when configured) no duplicate emails.
func SignersWellFormed(in Input, cfg Config) error {
	if len(in.Signers) == 0 {
		return apperrors.New(apperrors.CodeWorkflowViolation, "envelope has no signers").
			WithEntity(in.Envelope.ID).WithOperation(OpInvite.String())
	}
	seen := map[string]bool{}
	for _, s := range in.Signers {
		if s.Order < 1 {
			return apperrors.Newf(apperrors.CodeWorkflowViolation,
				"signer %s has invalid order %d", s.ID, s.Order).
				WithEntity(in.Envelope.ID).WithOperation(OpInvite.String())
		}
		if !cfg.RequireUniqueEmailsPerEnvelope {
			continue
		}
		email := strings.ToLower(strings.TrimSpace(s.Email))
		if email == "" {
			return apperrors.Newf(apperrors.CodeWorkflowViolation, "signer %s has no email", s.ID).
				WithEntity(in.Envelope.ID).WithOperation(OpInvite.String())
		}
		if seen[email] {
			return apperrors.Newf(apperrors.CodeWorkflowViolation,
				"duplicate signer email %s", email).
				WithEntity(in.Envelope.ID).WithOperation(OpInvite.String())
		}
		seen[email] = true
	}
	return nil
}

// SignerEligible delegates the per-signer preconditions to the ordering
// policy in the envelope package.
func SignerEligible(in Input, cfg Config) error {
	return envelope.CanSignNow(in.Envelope, in.Signers, in.Signer)
}

// SignerCanDecline checks the target signer may still decline.
func SignerCanDecline(in Input, cfg Config) error {
	return envelope.CanDecline(in.Signer)
}

// ProcessingWindow flags a sign action that exceeded the processing budget
// between start and evaluation.
func ProcessingWindow(in Input, cfg Config) error {
	if cfg.MaxProcessingTime <= 0 || in.StartedAt.IsZero() {
		return nil
	}
	if elapsed := in.Now.Sub(in.StartedAt); elapsed > cfg.MaxProcessingTime {
		return apperrors.Newf(apperrors.CodeTimeout,
			"operation exceeded processing window (%s > %s)", elapsed, cfg.MaxProcessingTime).
			WithEntity(in.Envelope.ID).WithOperation(OpSign.String())
	}
	return nil
}

// CleanupDelayElapsed keeps the timeout-based cleanup variant from running
// before the processing window has elapsed since the envelope last changed.
func CleanupDelayElapsed(in Input, cfg Config) error {
	if cfg.MaxProcessingTime <= 0 {
		return nil
	}
	if in.Now.Sub(in.Envelope.UpdatedAt) < cfg.MaxProcessingTime {
		return apperrors.Newf(apperrors.CodeWorkflowViolation,
			"cleanup attempted %s after last change, needs %s",
			in.Now.Sub(in.Envelope.UpdatedAt), cfg.MaxProcessingTime).
			WithEntity(in.Envelope.ID).WithOperation(OpExpire.String())
	}
	return nil
}

// ReminderCooldownElapsed throttles reminders per token.
func ReminderCooldownElapsed(in Input, cfg Config) error {
	if in.Token == nil || in.Token.LastSentAt == nil || cfg.ReminderCooldown <= 0 {
		return nil
	}
	if since := in.Now.Sub(*in.Token.LastSentAt); since < cfg.ReminderCooldown {
		return apperrors.Newf(apperrors.CodeWorkflowViolation,
			"reminder sent %s ago, cooldown is %s", since, cfg.ReminderCooldown).
			WithEntity(in.Token.ID).WithOperation(OpRemind.String())
	}
	return nil
}

// ResendBudget rejects reminders once the resend counter reaches the cap.
func ResendBudget(in Input, cfg Config) error {
	if in.Token == nil {
		return nil
	}
	if in.Token.ResendCount >= cfg.MaxResends {
		return apperrors.Newf(apperrors.CodeWorkflowViolation,
			"resend budget exhausted (%d of %d)", in.Token.ResendCount, cfg.MaxResends).
			WithEntity(in.Token.ID).WithOperation(OpRemind.String())
	}
	return nil
}
