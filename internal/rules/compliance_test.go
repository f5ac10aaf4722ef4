package rules

import (
	"testing"
	"time"

	"github.com/sealflow/sealflow/backend/go-services/internal/apperrors"
	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
)

func TestAlgorithmAllowed(t *testing.T) {
	cfg := Config{AllowedAlgorithms: []string{"SHA-256", "SHA-384"}, MinSecurityLevel: 1}

	if err := AlgorithmAllowed(Input{Signature: sig("SHA-256")}, cfg); err != nil {
		t.Fatalf("allow-listed algorithm must pass: %v", err)
	}
	if err := AlgorithmAllowed(Input{Signature: sig("SHA-512")}, cfg); apperrors.CodeOf(err) != apperrors.CodeComplianceViolation {
		t.Fatalf("off-list algorithm must be rejected, got %v", err)
	}

	strict := Config{AllowedAlgorithms: []string{"SHA-256", "SHA-512"}, MinSecurityLevel: 3}
	if err := AlgorithmAllowed(Input{Signature: sig("SHA-256")}, strict); apperrors.CodeOf(err) != apperrors.CodeComplianceViolation {
		t.Fatalf("algorithm below minimum level must be rejected, got %v", err)
	}
	if err := AlgorithmAllowed(Input{Signature: sig("SHA-512")}, strict); err != nil {
		t.Fatalf("algorithm at minimum level must pass: %v", err)
	}

	if err := AlgorithmAllowed(Input{Signature: sig("whatever")}, Config{}); err != nil {
		t.Fatalf("unconfigured policy must pass: %v", err)
	}
}

func TestWithinLegalValidity(t *testing.T) {
	now := time.Now()
	cfg := Config{LegalValidityWindow: 365 * 24 * time.Hour}

	fresh := sig("SHA-256")
	fresh.SignedAt = now.Add(-30 * 24 * time.Hour)
	if err := WithinLegalValidity(Input{Signature: fresh, Now: now}, cfg); err != nil {
		t.Fatalf("signature inside the window must pass: %v", err)
	}

	stale := sig("SHA-256")
	stale.SignedAt = now.Add(-400 * 24 * time.Hour)
	if err := WithinLegalValidity(Input{Signature: stale, Now: now}, cfg); apperrors.CodeOf(err) != apperrors.CodeComplianceViolation {
		t.Fatalf("signature past the window must be rejected, got %v", err)
	}

	if err := WithinLegalValidity(Input{Signature: stale, Now: now}, Config{}); err != nil {
		t.Fatalf("zero window means unrestricted: %v", err)
	}
}

func TestWithinRetention(t *testing.T) {
	now := time.Now()
	cfg := Config{RetentionPeriod: 90 * 24 * time.Hour}

	e := testEnv(envelope.StatusCompleted)
	done := now.Add(-10 * 24 * time.Hour)
	e.CompletedAt = &done
	if err := WithinRetention(Input{Envelope: e, Now: now}, cfg); err != nil {
		t.Fatalf("envelope inside retention must pass: %v", err)
	}

	old := now.Add(-120 * 24 * time.Hour)
	e.CompletedAt = &old
	if err := WithinRetention(Input{Envelope: e, Now: now}, cfg); apperrors.CodeOf(err) != apperrors.CodeComplianceViolation {
		t.Fatalf("envelope past retention must be rejected, got %v", err)
	}

	e.CompletedAt = nil
	if err := WithinRetention(Input{Envelope: e, Now: now}, cfg); err != nil {
		t.Fatalf("uncompleted envelope is not retention-bound: %v", err)
	}
}

func TestAccessLoggingComplete(t *testing.T) {
	if err := AccessLoggingComplete(Input{AccessLogged: true}, Config{}); err != nil {
		t.Fatalf("logged access must pass: %v", err)
	}
	if err := AccessLoggingComplete(Input{}, Config{}); apperrors.CodeOf(err) != apperrors.CodeComplianceViolation {
		t.Fatalf("unlogged access must be rejected, got %v", err)
	}
}

func TestTamperEvidence(t *testing.T) {
	e := testEnv(envelope.StatusCompleted)
	s := sig("SHA-256")
	e.DocumentHash = s.DocumentHash

	if err := TamperEvidence(Input{Envelope: e, Signature: s}, Config{}); err != nil {
		t.Fatalf("complete evidence must pass: %v", err)
	}

	missing := sig("SHA-256")
	missing.SignatureHash = ""
	if err := TamperEvidence(Input{Envelope: e, Signature: missing}, Config{}); apperrors.CodeOf(err) != apperrors.CodeComplianceViolation {
		t.Fatalf("missing signature hash must be rejected, got %v", err)
	}

	unstamped := sig("SHA-256")
	unstamped.SignedAt = time.Time{}
	if err := TamperEvidence(Input{Envelope: e, Signature: unstamped}, Config{}); apperrors.CodeOf(err) != apperrors.CodeComplianceViolation {
		t.Fatalf("missing timestamp must be rejected, got %v", err)
	}

	mismatched := sig("SHA-256")
	mismatched.DocumentHash = "ffff" + mismatched.DocumentHash[4:]
	if err := TamperEvidence(Input{Envelope: e, Signature: mismatched}, Config{}); apperrors.CodeOf(err) != apperrors.CodeComplianceViolation {
		t.Fatalf("document hash mismatch must be rejected, got %v", err)
	}
}
