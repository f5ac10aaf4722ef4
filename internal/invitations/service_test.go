package invitations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sealflow/sealflow/backend/go-services/internal/apperrors"
	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
)

func testEnvelope() *envelope.Envelope {
	return &envelope.Envelope{
		ID:         "env-1",
		OwnerID:    "usr-owner",
		OwnerEmail: "owner@example.com",
		Status:     envelope.StatusSent,
	}
}

func testSigner(id, email string) *envelope.Signer {
	return &envelope.Signer{ID: id, EnvelopeID: "env-1", Email: email, Status: envelope.SignerPending}
}

func TestIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	tok, secret, err := svc.Issue(ctx, testEnvelope(), testSigner("sgn-1", "a@example.com"), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if tok == nil || secret == "" {
		t.Fatal("expected token and secret")
	}
	if tok.Status != TokenActive {
		t.Fatalf("expected ACTIVE, got %s", tok.Status)
	}
	if tok.SecretHash == secret {
		t.Fatal("secret must not be stored raw")
	}

	got, err := svc.Validate(ctx, secret)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if got.ID != tok.ID {
		t.Fatalf("validate resolved wrong token: %s", got.ID)
	}
}

func TestIssueSkipsOwner(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	tok, secret, err := svc.Issue(ctx, testEnvelope(), testSigner("sgn-o", "owner@example.com"), time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != nil || secret != "" {
		t.Fatal("owner must not receive an invitation token")
	}
}

func TestIssueRejectsNonFutureExpiry(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	_, _, err := svc.Issue(ctx, testEnvelope(), testSigner("sgn-1", "a@example.com"), -time.Hour)
	if apperrors.CodeOf(err) != apperrors.CodeInvalidExpiration {
		t.Fatalf("expected INVALID_EXPIRATION, got %v", err)
	}
}

func TestIssueRevokesPreviousActiveToken(t *testing.T) {
	// exclusive-replace: never two concurrently valid secrets for one signer
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())
	env := testEnvelope()
	sgn := testSigner("sgn-1", "a@example.com")

	first, firstSecret, err := svc.Issue(ctx, env, sgn, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	_, secondSecret, err := svc.Issue(ctx, env, sgn, time.Hour)
	if err != nil {
		t.Fatalf("reissue failed: %v", err)
	}

	if _, err := svc.Validate(ctx, firstSecret); apperrors.CodeOf(err) != apperrors.CodeTokenRevoked {
		t.Fatalf("old secret must be revoked, got %v", err)
	}
	if _, err := svc.Validate(ctx, secondSecret); err != nil {
		t.Fatalf("new secret must validate: %v", err)
	}
	refetched, err := svc.repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if refetched.RevokedReason == "" || refetched.RevokedAt == nil {
		t.Fatal("revocation reason and timestamp must be recorded")
	}
}

func TestValidateExpired(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())
	_, secret, err := svc.Issue(ctx, testEnvelope(), testSigner("sgn-1", "a@example.com"), time.Minute)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	// move the clock past expiry
	svc.WithClock(func() time.Time { return time.Now().Add(2 * time.Minute) })
	if _, err := svc.Validate(ctx, secret); apperrors.CodeOf(err) != apperrors.CodeTokenExpired {
		t.Fatalf("expected TOKEN_EXPIRED, got %v", err)
	}
}

func TestValidateUnknownSecret(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())
	if _, err := svc.Validate(ctx, "no-such-secret"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestMarkSentRecordsProvenance(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())
	tok, _, err := svc.Issue(ctx, testEnvelope(), testSigner("sgn-1", "a@example.com"), time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	netCtx := NetworkContext{IP: "203.0.113.9", UserAgent: "curl/8", Country: "DE"}
	if err := svc.MarkSent(ctx, tok, netCtx); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if tok.ResendCount != 1 || tok.LastSentAt == nil {
		t.Fatalf("send metadata missing: %+v", tok)
	}
	if tok.SentIP != "203.0.113.9" || tok.SentCountry != "DE" {
		t.Fatalf("provenance missing: %+v", tok)
	}
	if tok.Status != TokenActive {
		t.Fatal("markSent must not change status")
	}
}

func TestCanBeResent(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	tok := &Token{Status: TokenActive, ExpiresAt: time.Now().Add(time.Hour), ResendCount: 2}

	if !svc.CanBeResent(tok, 3) {
		t.Fatal("expected resend allowed under budget")
	}
	tok.ResendCount = 3
	if svc.CanBeResent(tok, 3) {
		t.Fatal("resend budget exhausted but still allowed")
	}
	tok.ResendCount = 0
	tok.Status = TokenRevoked
	if svc.CanBeResent(tok, 3) {
		t.Fatal("revoked token must not be resendable")
	}
	tok.Status = TokenActive
	tok.ExpiresAt = time.Now().Add(-time.Minute)
	if svc.CanBeResent(tok, 3) {
		t.Fatal("expired token must not be resendable")
	}
}

func TestMarkUsedSingleUseRace(t *testing.T) {
	// concurrently racing markUsed calls: exactly one success, the rest
	// observe TOKEN_ALREADY_USED
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())
	tok, _, err := svc.Issue(ctx, testEnvelope(), testSigner("sgn-1", "a@example.com"), time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	const racers = 16
	var wins, alreadyUsed int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := *tok
			err := svc.MarkUsed(ctx, &cp, "sgn-1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if apperrors.CodeOf(err) == apperrors.CodeTokenAlreadyUsed {
				alreadyUsed++
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if alreadyUsed != racers-1 {
		t.Fatalf("expected %d ALREADY_USED observers, got %d", racers-1, alreadyUsed)
	}
}

func TestMarkUsedNeverReverses(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())
	tok, _, err := svc.Issue(ctx, testEnvelope(), testSigner("sgn-1", "a@example.com"), time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if err := svc.MarkUsed(ctx, tok, "sgn-1"); err != nil {
		t.Fatalf("first use failed: %v", err)
	}
	if tok.UsedAt == nil || tok.UsedBy != "sgn-1" {
		t.Fatalf("use evidence missing: %+v", tok)
	}
	if err := svc.MarkUsed(ctx, tok, "sgn-1"); apperrors.CodeOf(err) != apperrors.CodeTokenAlreadyUsed {
		t.Fatalf("second use must fail with TOKEN_ALREADY_USED, got %v", err)
	}
}

func TestRevokeGuards(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())
	tok, _, err := svc.Issue(ctx, testEnvelope(), testSigner("sgn-1", "a@example.com"), time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if err := svc.Revoke(ctx, tok, "owner cancelled", "usr-owner"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if tok.Status != TokenRevoked || tok.RevokedAt == nil || tok.RevokedBy != "usr-owner" {
		t.Fatalf("revocation evidence missing: %+v", tok)
	}
	// idempotent
	if err := svc.Revoke(ctx, tok, "again", "usr-owner"); err != nil {
		t.Fatalf("repeat revoke must be a no-op: %v", err)
	}
}

func TestRevokeUsedTokenRejected(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())
	tok, _, err := svc.Issue(ctx, testEnvelope(), testSigner("sgn-1", "a@example.com"), time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if err := svc.MarkUsed(ctx, tok, "sgn-1"); err != nil {
		t.Fatalf("use failed: %v", err)
	}
	if err := svc.Revoke(ctx, tok, "too late", "usr-owner"); apperrors.CodeOf(err) != apperrors.CodeInvalidStateTransition {
		t.Fatalf("revoking a used token must be rejected, got %v", err)
	}
	if tok.Status != TokenUsed {
		t.Fatal("used token must never flip to revoked")
	}
}
