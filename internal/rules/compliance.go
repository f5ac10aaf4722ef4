package rules

import (
	"github.com/sealflow/sealflow/backend/go-services/internal/apperrors"
)

// AlgorithmAllowed enforces the compliance algorithm allow-list and the
// minimum security level.
func AlgorithmAllowed(in Input, cfg Config) error {
	if in.Signature == nil {
		return nil
	}
	alg := in.Signature.Algorithm
	if len(cfg.AllowedAlgorithms) > 0 {
		allowed := false
		for _, a := range cfg.AllowedAlgorithms {
			if a == alg {
				allowed = true
				break
			}
		}
		if !allowed {
			return apperrors.Newf(apperrors.CodeComplianceViolation,
				"algorithm %q is not on the allow-list", alg).
				WithEntity(in.Signature.ID).WithOperation(OpSign.String())
		}
	}
	if cfg.MinSecurityLevel > 0 {
		level, known := algorithmLevel[alg]
		if !known || level < cfg.MinSecurityLevel {
			return apperrors.Newf(apperrors.CodeComplianceViolation,
				"algorithm %q is below minimum security level %d", alg, cfg.MinSecurityLevel).
				WithEntity(in.Signature.ID).WithOperation(OpSign.String())
		}
	}
	return nil
}

// WithinLegalValidity checks a completed signature is still inside its legal
// validity window at access time.
func WithinLegalValidity(in Input, cfg Config) error {
	if in.Signature == nil || cfg.LegalValidityWindow <= 0 {
		return nil
	}
	if in.Now.Sub(in.Signature.SignedAt) > cfg.LegalValidityWindow {
		return apperrors.Newf(apperrors.CodeComplianceViolation,
			"signature exceeded its legal validity window of %s", cfg.LegalValidityWindow).
			WithEntity(in.Signature.ID).WithOperation(OpDownload.String())
	}
	return nil
}

// WithinRetention rejects access to evidence past the retention period: such
// material must be archived or deleted, not served.
func WithinRetention(in Input, cfg Config) error {
	if in.Envelope == nil || in.Envelope.CompletedAt == nil || cfg.RetentionPeriod <= 0 {
		return nil
	}
	if in.Now.Sub(*in.Envelope.CompletedAt) > cfg.RetentionPeriod {
		return apperrors.Newf(apperrors.CodeComplianceViolation,
			"envelope completed more than %s ago, past retention", cfg.RetentionPeriod).
			WithEntity(in.Envelope.ID).WithOperation(OpDownload.String())
	}
	return nil
}

// AccessLoggingComplete requires evidence access to be audit-logged before
// material is released.
func AccessLoggingComplete(in Input, cfg Config) error {
	if !in.AccessLogged {
		return apperrors.New(apperrors.CodeComplianceViolation,
			"evidence access without a recorded audit event").
			WithOperation(OpDownload.String())
	}
	return nil
}

// TamperEvidence verifies the tamper-evidence triplet is present and
// internally consistent: document hash, signature hash, and timestamp all
// recorded, with the document hash matching the envelope's.
func TamperEvidence(in Input, cfg Config) error {
	if in.Signature == nil {
		return nil
	}
	s := in.Signature
	if s.DocumentHash == "" || s.SignatureHash == "" || s.SignedAt.IsZero() {
		return apperrors.New(apperrors.CodeComplianceViolation,
			"tamper evidence incomplete: hash or timestamp missing").
			WithEntity(s.ID)
	}
	if in.Envelope != nil && in.Envelope.DocumentHash != "" && s.DocumentHash != in.Envelope.DocumentHash {
		return apperrors.New(apperrors.CodeComplianceViolation,
			"signature document hash does not match the envelope document").
			WithEntity(s.ID)
	}
	return nil
}
