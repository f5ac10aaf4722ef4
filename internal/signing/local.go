package signing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"time"
)

var digests = map[string]func() hash.Hash{
	"SHA-256": sha256.New,
	"SHA-384": sha512.New384,
	"SHA-512": sha512.New,
}

// LocalProvider signs with an HMAC over the request material, keyed by a
// process-local secret. Suitable for single-tenant deployments and tests.
type LocalProvider struct {
	key   []byte
	keyID string
	now   func() time.Time
}

func NewLocalProvider(key []byte) *LocalProvider {
	sum := sha256.Sum256(key)
	return &LocalProvider{
		key:   key,
		keyID: "local-" + hex.EncodeToString(sum[:4]),
		now:   time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (p *LocalProvider) WithClock(now func() time.Time) *LocalProvider {
	p.now = now
	return p
}

func (p *LocalProvider) KeyID() string { return p.keyID }

func (p *LocalProvider) Sign(ctx context.Context, req Request) (*Result, error) {
	mac, err := p.mac(req)
	if err != nil {
		return nil, err
	}
	return &Result{
		SignatureHash: mac,
		Algorithm:     req.Algorithm,
		KeyID:         p.keyID,
		SignedAt:      p.now(),
	}, nil
}

func (p *LocalProvider) Verify(ctx context.Context, req Request, signatureHash string) (bool, error) {
	want, err := p.mac(req)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(signatureHash)) == 1, nil
}

func (p *LocalProvider) mac(req Request) (string, error) {
	newHash, ok := digests[req.Algorithm]
	if !ok {
		return "", fmt.Errorf("unsupported signing algorithm %q", req.Algorithm)
	}
	h := hmac.New(newHash, p.key)
	fmt.Fprintf(h, "%s\x00%s\x00%s", req.EnvelopeID, req.SignerID, req.DocumentHash)
	return hex.EncodeToString(h.Sum(nil)), nil
}
