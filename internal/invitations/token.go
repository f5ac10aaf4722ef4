package invitations

import "time"

// TokenStatus is the lifecycle status of an invitation token.
// ACTIVE -> USED happens exactly once and never reverses; ACTIVE -> REVOKED
// is terminal.
type TokenStatus string

const (
	TokenActive  TokenStatus = "ACTIVE"
	TokenUsed    TokenStatus = "USED"
	TokenRevoked TokenStatus = "REVOKED"
)

// Token is a single-use, expiring capability granting one signer access to
// sign without prior authentication. The opaque secret is never stored; only
// its SHA-256 hash is.
type Token struct {
	ID         string      `json:"id" bson:"id"`
	EnvelopeID string      `json:"envelopeId" bson:"envelopeId"`
	SignerID   string      `json:"signerId" bson:"signerId"`
	SecretHash string      `json:"-" bson:"secretHash"`
	Status     TokenStatus `json:"status" bson:"status"`
	IssuedAt   time.Time   `json:"issuedAt" bson:"issuedAt"`
	ExpiresAt  time.Time   `json:"expiresAt" bson:"expiresAt"`

	LastSentAt  *time.Time `json:"lastSentAt,omitempty" bson:"lastSentAt,omitempty"`
	ResendCount int        `json:"resendCount" bson:"resendCount"`

	UsedAt *time.Time `json:"usedAt,omitempty" bson:"usedAt,omitempty"`
	UsedBy string     `json:"usedBy,omitempty" bson:"usedBy,omitempty"`

	RevokedAt     *time.Time `json:"revokedAt,omitempty" bson:"revokedAt,omitempty"`
	RevokedBy     string     `json:"revokedBy,omitempty" bson:"revokedBy,omitempty"`
	RevokedReason string     `json:"revokedReason,omitempty" bson:"revokedReason,omitempty"`

	// network provenance captured at send time
	SentIP        string `json:"sentIp,omitempty" bson:"sentIp,omitempty"`
	SentUserAgent string `json:"sentUserAgent,omitempty" bson:"sentUserAgent,omitempty"`
	SentCountry   string `json:"sentCountry,omitempty" bson:"sentCountry,omitempty"`
}

// NetworkContext is caller-supplied network provenance, captured at the HTTP
// boundary and threaded through to tokens and audit events.
type NetworkContext struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Country   string `json:"country,omitempty"`
}
