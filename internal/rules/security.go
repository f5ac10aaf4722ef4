package rules

import (
	"encoding/hex"

	"github.com/sealflow/sealflow/backend/go-services/internal/apperrors"
)

// hexDigestLen maps supported digest algorithms to the expected hex length.
var hexDigestLen = map[string]int{
	"SHA-256": 64,
	"SHA-384": 96,
	"SHA-512": 128,
}

// algorithmLevel ranks supported algorithms for the minimum-level compliance
// check.
var algorithmLevel = map[string]int{
	"SHA-256": 1,
	"SHA-384": 2,
	"SHA-512": 3,
}

// DocumentHashWellFormed checks cryptographic integrity of the declared
// hashes: hex-decodable and exactly the length the declared algorithm
// produces.
func DocumentHashWellFormed(in Input, cfg Config) error {
	if in.Signature == nil {
		return nil
	}
	alg := in.Signature.Algorithm
	want, ok := hexDigestLen[alg]
	if !ok {
		return apperrors.Newf(apperrors.CodeSecurityViolation, "unsupported digest algorithm %q", alg).
			WithEntity(in.Signature.ID).WithOperation(OpSign.String())
	}
	for _, h := range []string{in.Signature.DocumentHash, in.Signature.SignatureHash} {
		if len(h) != want {
			return apperrors.Newf(apperrors.CodeSecurityViolation,
				"hash length %d does not match %s (want %d)", len(h), alg, want).
				WithEntity(in.Signature.ID).WithOperation(OpSign.String())
		}
		if _, err := hex.DecodeString(h); err != nil {
			return apperrors.Newf(apperrors.CodeSecurityViolation, "hash is not valid hex").
				WithEntity(in.Signature.ID).WithOperation(OpSign.String())
		}
	}
	return nil
}

// TimestampSane rejects signature timestamps that are future-dated, older
// than the configured floor, or staler than the maximum age.
func TimestampSane(in Input, cfg Config) error {
	if in.Signature == nil || in.Signature.SignedAt.IsZero() {
		return nil
	}
	ts := in.Signature.SignedAt
	if ts.After(in.Now) {
		return apperrors.New(apperrors.CodeSecurityViolation, "signature timestamp is in the future").
			WithEntity(in.Signature.ID)
	}
	if !cfg.TimestampFloor.IsZero() && ts.Before(cfg.TimestampFloor) {
		return apperrors.Newf(apperrors.CodeSecurityViolation,
			"signature timestamp precedes floor %s", cfg.TimestampFloor.Format("2006-01-02")).
			WithEntity(in.Signature.ID)
	}
	if cfg.TimestampMaxAge > 0 && in.Now.Sub(ts) > cfg.TimestampMaxAge {
		return apperrors.Newf(apperrors.CodeSecurityViolation,
			"signature timestamp older than %s", cfg.TimestampMaxAge).
			WithEntity(in.Signature.ID)
	}
	return nil
}

// CertificatePlausible sanity-checks the certificate chain metadata: issuer
// and subject present, validity window well-ordered and containing now.
func CertificatePlausible(in Input, cfg Config) error {
	if in.Cert == nil {
		return nil
	}
	c := in.Cert
	if c.Issuer == "" || c.Subject == "" {
		return apperrors.New(apperrors.CodeSecurityViolation, "certificate missing issuer or subject")
	}
	if !c.NotBefore.Before(c.NotAfter) {
		return apperrors.New(apperrors.CodeSecurityViolation, "certificate validity window is inverted")
	}
	if in.Now.Before(c.NotBefore) || in.Now.After(c.NotAfter) {
		return apperrors.New(apperrors.CodeSecurityViolation, "certificate not valid at signing time")
	}
	return nil
}

// SigningKeyAuthorized enforces the KMS-key allow-list. An empty list means
// no restriction is configured.
func SigningKeyAuthorized(in Input, cfg Config) error {
	if len(cfg.AllowedKMSKeys) == 0 || in.KeyID == "" {
		return nil
	}
	for _, k := range cfg.AllowedKMSKeys {
		if k == in.KeyID {
			return nil
		}
	}
	return apperrors.Newf(apperrors.CodeSecurityViolation, "signing key %q is not authorized", in.KeyID).
		WithOperation(OpSign.String())
}

// CallerAuthorized enforces the access/download caller allow-list. An empty
// list means no restriction is configured.
func CallerAuthorized(in Input, cfg Config) error {
	if len(cfg.AuthorizedCallers) == 0 {
		return nil
	}
	for _, c := range cfg.AuthorizedCallers {
		if c == in.Caller {
			return nil
		}
	}
	return apperrors.Newf(apperrors.CodeSecurityViolation, "caller %q is not authorized", in.Caller).
		WithOperation(OpDownload.String())
}
