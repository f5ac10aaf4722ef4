// Package signing abstracts the cryptographic signing backend. The workflow
// layer only sees Provider; swapping the local HMAC signer for an external
// KMS is a wiring change.
package signing

import (
	"context"
	"time"
)

// Request carries the material to sign.
type Request struct {
	EnvelopeID   string
	SignerID     string
	DocumentHash string
	Algorithm    string
}

// Result is the produced signature evidence.
type Result struct {
	SignatureHash string
	Algorithm     string
	KeyID         string
	SignedAt      time.Time
}

// Provider produces and verifies signatures. Implementations return errors
// verbatim; the workflow layer maps them to its failure taxonomy.
type Provider interface {
	Sign(ctx context.Context, req Request) (*Result, error)
	Verify(ctx context.Context, req Request, signatureHash string) (bool, error)
	KeyID() string
}
