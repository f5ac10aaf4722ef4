package signing

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLocalProviderSignAndVerify(t *testing.T) {
	frozen := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	p := NewLocalProvider([]byte("test-key")).WithClock(func() time.Time { return frozen })
	req := Request{
		EnvelopeID:   "env-1",
		SignerID:     "sgn-1",
		DocumentHash: strings.Repeat("ab", 32),
		Algorithm:    "SHA-256",
	}

	res, err := p.Sign(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.SignatureHash) != 64 {
		t.Fatalf("SHA-256 signature hash length = %d, want 64", len(res.SignatureHash))
	}
	if !res.SignedAt.Equal(frozen) {
		t.Fatalf("SignedAt = %v, want %v", res.SignedAt, frozen)
	}
	if res.KeyID != p.KeyID() {
		t.Fatalf("KeyID = %q, want %q", res.KeyID, p.KeyID())
	}

	ok, err := p.Verify(context.Background(), req, res.SignatureHash)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v, want true", ok, err)
	}

	tampered := req
	tampered.DocumentHash = strings.Repeat("cd", 32)
	ok, err = p.Verify(context.Background(), tampered, res.SignatureHash)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("tampered material must not verify")
	}
}

func TestLocalProviderDigestLengths(t *testing.T) {
	p := NewLocalProvider([]byte("test-key"))
	for alg, want := range map[string]int{"SHA-256": 64, "SHA-384": 96, "SHA-512": 128} {
		res, err := p.Sign(context.Background(), Request{EnvelopeID: "e", SignerID: "s", DocumentHash: "aa", Algorithm: alg})
		if err != nil {
			t.Fatalf("%s: %v", alg, err)
		}
		if len(res.SignatureHash) != want {
			t.Fatalf("%s hash length = %d, want %d", alg, len(res.SignatureHash), want)
		}
	}
}

func TestLocalProviderRejectsUnknownAlgorithm(t *testing.T) {
	p := NewLocalProvider([]byte("test-key"))
	if _, err := p.Sign(context.Background(), Request{Algorithm: "MD5"}); err == nil {
		t.Fatal("unknown algorithm must fail")
	}
}

func TestKeyIDStableForSameKey(t *testing.T) {
	a := NewLocalProvider([]byte("k1"))
	b := NewLocalProvider([]byte("k1"))
	c := NewLocalProvider([]byte("k2"))
	if a.KeyID() != b.KeyID() {
		t.Fatal("same key must yield the same key id")
	}
	if a.KeyID() == c.KeyID() {
		t.Fatal("different keys must yield different key ids")
	}
}
