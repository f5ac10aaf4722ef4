package envelope

import (
	"strings"
	"time"
)

// Status is the legal lifecycle status of an envelope.
type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusSent              Status = "SENT"
	StatusInProgress        Status = "IN_PROGRESS"
	StatusReadyForSignature Status = "READY_FOR_SIGNATURE"
	StatusCompleted         Status = "COMPLETED"
	StatusExpired           Status = "EXPIRED"
	StatusDeclined          Status = "DECLINED"
)

// SigningOrder determines whether the owner or the invitees sign first.
type SigningOrder string

const (
	OrderOwnerFirst    SigningOrder = "OWNER_FIRST"
	OrderInviteesFirst SigningOrder = "INVITEES_FIRST"
)

// SignerStatus is the per-participant status. SIGNED and DECLINED are terminal.
type SignerStatus string

const (
	SignerPending  SignerStatus = "PENDING"
	SignerSigned   SignerStatus = "SIGNED"
	SignerDeclined SignerStatus = "DECLINED"
)

// Envelope represents one document-signing transaction. Status is mutated only
// through ApplyTransition; everything else treats it as read-only.
type Envelope struct {
	ID           string       `json:"id" bson:"id"`
	OwnerID      string       `json:"ownerId" bson:"ownerId"`
	OwnerEmail   string       `json:"ownerEmail" bson:"ownerEmail"`
	DocumentID   string       `json:"documentId" bson:"documentId"`
	DocumentHash string       `json:"documentHash" bson:"documentHash"`
	SigningOrder SigningOrder `json:"signingOrder" bson:"signingOrder"`
	Status       Status       `json:"status" bson:"status"`
	CreatedAt    time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt" bson:"updatedAt"`
	ExpiresAt    time.Time    `json:"expiresAt" bson:"expiresAt"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	Version      int64        `json:"version" bson:"version"`
}

// Signer is a participant bound to exactly one envelope. Order ties are broken
// by insertion; two signers sharing an order are both eligible at that step.
type Signer struct {
	ID              string       `json:"id" bson:"id"`
	EnvelopeID      string       `json:"envelopeId" bson:"envelopeId"`
	Email           string       `json:"email" bson:"email"`
	Name            string       `json:"name" bson:"name"`
	IsExternal      bool         `json:"isExternal" bson:"isExternal"`
	Order           int          `json:"order" bson:"order"`
	Status          SignerStatus `json:"status" bson:"status"`
	DeclineReason   string       `json:"declineReason,omitempty" bson:"declineReason,omitempty"`
	SignedAt        *time.Time   `json:"signedAt,omitempty" bson:"signedAt,omitempty"`
	DeclinedAt      *time.Time   `json:"declinedAt,omitempty" bson:"declinedAt,omitempty"`
	ConsentRecordID string       `json:"consentRecordId,omitempty" bson:"consentRecordId,omitempty"`
}

// SignatureRecord is immutable evidence of a completed signing action.
// Created once, never updated.
type SignatureRecord struct {
	ID            string    `json:"id" bson:"id"`
	EnvelopeID    string    `json:"envelopeId" bson:"envelopeId"`
	SignerID      string    `json:"signerId" bson:"signerId"`
	DocumentHash  string    `json:"documentHash" bson:"documentHash"`
	SignatureHash string    `json:"signatureHash" bson:"signatureHash"`
	StorageKey    string    `json:"storageKey" bson:"storageKey"`
	Algorithm     string    `json:"algorithm" bson:"algorithm"`
	SignedAt      time.Time `json:"signedAt" bson:"signedAt"`
}

// IsOwner reports whether the signer record belongs to the envelope owner.
// Ownership is keyed by email (the owner signs via authenticated session and
// carries no invitation token).
func (s *Signer) IsOwner(e *Envelope) bool {
	return strings.EqualFold(strings.TrimSpace(s.Email), strings.TrimSpace(e.OwnerEmail))
}

// Terminal reports whether the envelope status admits no further transitions.
func (st Status) Terminal() bool {
	return st == StatusCompleted || st == StatusExpired
}

// Terminal reports whether the signer status is final.
func (st SignerStatus) Terminal() bool {
	return st == SignerSigned || st == SignerDeclined
}
