package rules

import (
	"testing"
	"time"

	"github.com/sealflow/sealflow/backend/go-services/internal/apperrors"
	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
	"github.com/sealflow/sealflow/backend/go-services/internal/invitations"
)

func testEnv(status envelope.Status) *envelope.Envelope {
	return &envelope.Envelope{
		ID:           "env-1",
		OwnerID:      "usr-owner",
		OwnerEmail:   "owner@example.com",
		SigningOrder: envelope.OrderInviteesFirst,
		Status:       status,
		UpdatedAt:    time.Now().Add(-time.Hour),
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}
}

func TestEnvelopeSendable(t *testing.T) {
	cfg := Config{}
	if err := EnvelopeSendable(Input{Envelope: testEnv(envelope.StatusDraft)}, cfg); err != nil {
		t.Fatalf("draft must be sendable: %v", err)
	}
	err := EnvelopeSendable(Input{Envelope: testEnv(envelope.StatusSent)}, cfg)
	if apperrors.CodeOf(err) != apperrors.CodeInvalidStateTransition {
		t.Fatalf("sent envelope must not be re-sendable, got %v", err)
	}
}

func TestEnvelopeInFlight(t *testing.T) {
	cfg := Config{}
	for _, st := range []envelope.Status{envelope.StatusSent, envelope.StatusInProgress, envelope.StatusReadyForSignature} {
		if err := EnvelopeInFlight(Input{Envelope: testEnv(st)}, cfg); err != nil {
			t.Fatalf("%s must be in flight: %v", st, err)
		}
	}
	for _, st := range []envelope.Status{envelope.StatusDraft, envelope.StatusCompleted, envelope.StatusExpired, envelope.StatusDeclined} {
		if err := EnvelopeInFlight(Input{Envelope: testEnv(st)}, cfg); err == nil {
			t.Fatalf("%s must not be in flight", st)
		}
	}
}

func TestEnvelopeRestartable(t *testing.T) {
	cfg := Config{}
	in := Input{Envelope: testEnv(envelope.StatusDeclined), Caller: "usr-owner"}
	if err := EnvelopeRestartable(in, cfg); err != nil {
		t.Fatalf("owner restart of declined envelope must pass: %v", err)
	}
	in.Caller = "usr-other"
	if err := EnvelopeRestartable(in, cfg); apperrors.CodeOf(err) != apperrors.CodeSecurityViolation {
		t.Fatalf("non-owner restart must be rejected, got %v", err)
	}
	in = Input{Envelope: testEnv(envelope.StatusSent), Caller: "usr-owner"}
	if err := EnvelopeRestartable(in, cfg); apperrors.CodeOf(err) != apperrors.CodeInvalidStateTransition {
		t.Fatalf("restart outside DECLINED must be rejected, got %v", err)
	}
}

func TestEnvelopeDeletable(t *testing.T) {
	cfg := Config{}
	for _, st := range []envelope.Status{envelope.StatusDraft, envelope.StatusExpired} {
		if err := EnvelopeDeletable(Input{Envelope: testEnv(st)}, cfg); err != nil {
			t.Fatalf("%s must be deletable: %v", st, err)
		}
	}
	if err := EnvelopeDeletable(Input{Envelope: testEnv(envelope.StatusInProgress)}, cfg); err == nil {
		t.Fatal("in-progress envelope must not be deletable")
	}
}

func TestSignersWellFormed(t *testing.T) {
	cfg := Config{RequireUniqueEmailsPerEnvelope: true}
	env := testEnv(envelope.StatusDraft)

	err := SignersWellFormed(Input{Envelope: env}, cfg)
	if apperrors.CodeOf(err) != apperrors.CodeWorkflowViolation {
		t.Fatalf("empty roster must be rejected, got %v", err)
	}

	dup := []*envelope.Signer{
		{ID: "a", Email: "x@example.com", Order: 1},
		{ID: "b", Email: "X@Example.com", Order: 2},
	}
	err = SignersWellFormed(Input{Envelope: env, Signers: dup}, cfg)
	if apperrors.CodeOf(err) != apperrors.CodeWorkflowViolation {
		t.Fatalf("duplicate emails must be rejected, got %v", err)
	}

	// duplicates allowed when uniqueness is not required
	if err := SignersWellFormed(Input{Envelope: env, Signers: dup}, Config{}); err != nil {
		t.Fatalf("uniqueness off, expected pass: %v", err)
	}

	bad := []*envelope.Signer{{ID: "a", Email: "x@example.com", Order: 0}}
	if err := SignersWellFormed(Input{Envelope: env, Signers: bad}, cfg); err == nil {
		t.Fatal("non-positive order must be rejected")
	}
}

func TestProcessingWindow(t *testing.T) {
	cfg := Config{MaxProcessingTime: 100 * time.Millisecond}
	now := time.Now()
	in := Input{Envelope: testEnv(envelope.StatusSent), Now: now, StartedAt: now.Add(-50 * time.Millisecond)}
	if err := ProcessingWindow(in, cfg); err != nil {
		t.Fatalf("inside window must pass: %v", err)
	}
	in.StartedAt = now.Add(-200 * time.Millisecond)
	if err := ProcessingWindow(in, cfg); apperrors.CodeOf(err) != apperrors.CodeTimeout {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
}

func TestCleanupDelayElapsed(t *testing.T) {
	cfg := Config{MaxProcessingTime: time.Minute}
	env := testEnv(envelope.StatusDeclined)
	env.UpdatedAt = time.Now().Add(-time.Second)
	in := Input{Envelope: env, Now: time.Now()}
	if err := CleanupDelayElapsed(in, cfg); apperrors.CodeOf(err) != apperrors.CodeWorkflowViolation {
		t.Fatalf("cleanup before delay must be rejected, got %v", err)
	}
	env.UpdatedAt = time.Now().Add(-2 * time.Minute)
	if err := CleanupDelayElapsed(in, cfg); err != nil {
		t.Fatalf("cleanup after delay must pass: %v", err)
	}
}

func TestReminderCooldownAndBudget(t *testing.T) {
	cfg := Config{ReminderCooldown: time.Hour, MaxResends: 3}
	now := time.Now()
	recent := now.Add(-10 * time.Minute)
	tok := &invitations.Token{ID: "tok-1", Status: invitations.TokenActive, LastSentAt: &recent, ResendCount: 1}
	in := Input{Token: tok, Now: now}

	if err := ReminderCooldownElapsed(in, cfg); apperrors.CodeOf(err) != apperrors.CodeWorkflowViolation {
		t.Fatalf("cooldown must reject, got %v", err)
	}
	old := now.Add(-2 * time.Hour)
	tok.LastSentAt = &old
	if err := ReminderCooldownElapsed(in, cfg); err != nil {
		t.Fatalf("cooldown elapsed must pass: %v", err)
	}

	// budget holds even when the token is ACTIVE and unexpired
	tok.ResendCount = 3
	if err := ResendBudget(in, cfg); apperrors.CodeOf(err) != apperrors.CodeWorkflowViolation {
		t.Fatalf("exhausted budget must reject, got %v", err)
	}
	tok.ResendCount = 2
	if err := ResendBudget(in, cfg); err != nil {
		t.Fatalf("under budget must pass: %v", err)
	}
}

func TestApplyRunsOperationSubset(t *testing.T) {
	cfg := Config{}
	in := Input{
		Envelope: testEnv(envelope.StatusSent),
		Signers:  []*envelope.Signer{{ID: "a", Email: "a@example.com", Order: 1, Status: envelope.SignerPending}},
		Signer:   &envelope.Signer{ID: "a", Email: "a@example.com", Order: 1, Status: envelope.SignerPending},
		Now:      time.Now(),
	}
	if err := Apply(OpSign, in, cfg); err != nil {
		t.Fatalf("eligible sign must pass all rules: %v", err)
	}
	in.Envelope = testEnv(envelope.StatusDraft)
	if err := Apply(OpSign, in, cfg); err == nil {
		t.Fatal("sign against a draft envelope must fail")
	}
}

func TestEveryOperationHasRules(t *testing.T) {
	ops := []Operation{OpInvite, OpRemind, OpSign, OpDecline, OpRevoke, OpFinalize, OpRestart, OpDelete, OpExpire, OpDownload}
	for _, op := range ops {
		if len(For(op)) == 0 {
			t.Fatalf("operation %s has no rules registered", op)
		}
	}
}
