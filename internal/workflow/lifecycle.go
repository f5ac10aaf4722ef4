package workflow

import (
	"context"

	"github.com/sealflow/sealflow/backend/go-services/internal/apperrors"
	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
	"github.com/sealflow/sealflow/backend/go-services/internal/rules"
	"github.com/sealflow/sealflow/backend/go-services/pkg/logger"
)

// Finalize confirms completion of an envelope whose signers have all signed,
// verifying the tamper evidence of every recorded signature. Finalizing an
// already COMPLETED envelope is a no-op.
func (s *Service) Finalize(ctx context.Context, envelopeID, caller string) error {
	e, roster, err := s.load(ctx, envelopeID)
	if err != nil {
		return err
	}
	if e.Status == envelope.StatusCompleted {
		return nil
	}
	records, err := s.signatures.ListByEnvelope(ctx, envelopeID)
	if err != nil {
		return err
	}
	in := rules.Input{Envelope: e, Signers: roster, Caller: caller, Now: s.now()}
	for _, rec := range records {
		in.Signature = rec
		if err := rules.Apply(rules.OpFinalize, in, s.cfg.Rules); err != nil {
			return err
		}
	}
	in.Signature = nil
	if err := rules.Apply(rules.OpFinalize, in, s.cfg.Rules); err != nil {
		return err
	}
	if s.evidence != nil {
		for _, rec := range records {
			ok, err := s.evidence.EvidenceExists(ctx, e.ID, rec.ID)
			if err != nil {
				return apperrors.Wrap(apperrors.CodeComplianceViolation, "evidence manifest check failed", err).
					WithEntity(rec.ID).WithOperation(rules.OpFinalize.String())
			}
			if !ok {
				return apperrors.New(apperrors.CodeComplianceViolation, "evidence manifest missing for signature").
					WithEntity(rec.ID).WithOperation(rules.OpFinalize.String())
			}
		}
	}
	if err := s.transition(ctx, e, envelope.StatusCompleted); err != nil {
		return err
	}
	s.record(ctx, e.ID, "", caller, "envelope.finalized", map[string]any{"signatures": len(records)})
	return nil
}

// Restart takes a DECLINED envelope back to DRAFT. Decline state is cleared
// from the roster, completed signatures are preserved, and any stray active
// invitations are withdrawn. Owner only.
func (s *Service) Restart(ctx context.Context, envelopeID, caller string) error {
	e, roster, err := s.load(ctx, envelopeID)
	if err != nil {
		return err
	}
	in := rules.Input{Envelope: e, Signers: roster, Caller: caller, Now: s.now()}
	if err := rules.Apply(rules.OpRestart, in, s.cfg.Rules); err != nil {
		return err
	}

	for _, sgn := range roster {
		if sgn.Status != envelope.SignerDeclined {
			continue
		}
		envelope.ResetForRestart(sgn)
		if err := s.signers.UpdateStatus(ctx, sgn, envelope.SignerDeclined); err != nil {
			return s.signerWriteError(ctx, err, sgn.ID, rules.OpRestart.String())
		}
	}
	s.revokeActiveTokens(ctx, roster, "envelope restarted", caller)

	if err := s.transition(ctx, e, envelope.StatusDraft); err != nil {
		return err
	}
	s.record(ctx, e.ID, "", caller, "envelope.restarted", nil)
	return nil
}

// Delete removes a DRAFT or EXPIRED envelope with its roster. Signature
// evidence and the audit trail are retained. Owner only.
func (s *Service) Delete(ctx context.Context, envelopeID, caller string) error {
	e, roster, err := s.load(ctx, envelopeID)
	if err != nil {
		return err
	}
	if caller != e.OwnerID {
		return apperrors.New(apperrors.CodeSecurityViolation, "only the owner may delete an envelope").
			WithEntity(e.ID).WithOperation(rules.OpDelete.String())
	}
	in := rules.Input{Envelope: e, Signers: roster, Caller: caller, Now: s.now()}
	if err := rules.Apply(rules.OpDelete, in, s.cfg.Rules); err != nil {
		return err
	}
	s.revokeActiveTokens(ctx, roster, "envelope deleted", caller)
	if err := s.signers.DeleteByEnvelope(ctx, envelopeID); err != nil {
		return err
	}
	if err := s.envelopes.Delete(ctx, envelopeID); err != nil {
		return err
	}
	s.record(ctx, e.ID, "", caller, "envelope.deleted", nil)
	return nil
}

// ExpireOverdue sweeps envelopes past their deadline, reconciling each to
// EXPIRED and withdrawing outstanding invitations. One failing envelope does
// not stop the sweep. Returns the number of envelopes expired.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.envelopes.ListOverdue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, e := range overdue {
		roster, err := s.signers.ListByEnvelope(ctx, e.ID)
		if err != nil {
			logger.Warnf("workflow: expire sweep, loading signers for %s: %v", e.ID, err)
			continue
		}
		in := rules.Input{Envelope: e, Signers: roster, Caller: "system", Now: s.now()}
		if err := rules.Apply(rules.OpExpire, in, s.cfg.Rules); err != nil {
			// recently touched or already terminal, leave it for a later sweep
			continue
		}
		changed, err := envelope.Reconcile(e, roster, s.now())
		if err != nil || !changed {
			continue
		}
		if err := s.envelopes.Update(ctx, e); err != nil {
			logger.Warnf("workflow: expire sweep, updating %s: %v", e.ID, err)
			continue
		}
		if e.Status == envelope.StatusExpired {
			s.revokeActiveTokens(ctx, roster, "envelope expired", "system")
			s.record(ctx, e.ID, "", "system", "envelope.expired", nil)
			expired++
		}
	}
	return expired, nil
}

// Evidence returns the signature records of an envelope, subject to the
// evidence-access compliance rules. accessLogged asserts the caller already
// recorded the access event.
func (s *Service) Evidence(ctx context.Context, envelopeID, caller string, accessLogged bool) ([]*envelope.SignatureRecord, error) {
	e, roster, err := s.load(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	records, err := s.signatures.ListByEnvelope(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	in := rules.Input{Envelope: e, Signers: roster, Caller: caller, Now: s.now(), AccessLogged: accessLogged}
	for _, rec := range records {
		in.Signature = rec
		if err := rules.Apply(rules.OpDownload, in, s.cfg.Rules); err != nil {
			return nil, err
		}
	}
	if len(records) == 0 {
		if err := rules.Apply(rules.OpDownload, in, s.cfg.Rules); err != nil {
			return nil, err
		}
	}
	s.record(ctx, e.ID, "", caller, "evidence.accessed", map[string]any{"records": len(records)})
	return records, nil
}
