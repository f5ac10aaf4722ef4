// Package rules is the business-rule validation layer: pure, side-effect-free
// checks that gate every orchestrator operation. Rules never mutate state and
// are order-independent, so each operation simply runs its subset and aborts
// on the first violation.
package rules

import (
	"time"

	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
	"github.com/sealflow/sealflow/backend/go-services/internal/invitations"
)

// Operation enumerates the orchestrator operations rules can gate. Using an
// enum (not operation-name strings) keeps the dispatch table exhaustive at
// compile time.
type Operation int

const (
	OpInvite Operation = iota
	OpRemind
	OpSign
	OpDecline
	OpRevoke
	OpFinalize
	OpRestart
	OpDelete
	OpExpire
	OpDownload
)

func (op Operation) String() string {
	switch op {
	case OpInvite:
		return "invite"
	case OpRemind:
		return "remind"
	case OpSign:
		return "sign"
	case OpDecline:
		return "decline"
	case OpRevoke:
		return "revoke"
	case OpFinalize:
		return "finalize"
	case OpRestart:
		return "restart"
	case OpDelete:
		return "delete"
	case OpExpire:
		return "expire"
	case OpDownload:
		return "download"
	}
	return "unknown"
}

// Config carries the tunable rule inputs. Defaults live in the config
// package; rules only consume.
type Config struct {
	MaxResends        int
	ReminderCooldown  time.Duration
	MaxProcessingTime time.Duration

	AllowedAlgorithms []string
	MinSecurityLevel  int
	AllowedKMSKeys    []string
	AuthorizedCallers []string

	LegalValidityWindow time.Duration
	RetentionPeriod     time.Duration
	TimestampMaxAge     time.Duration
	TimestampFloor      time.Time

	RequireUniqueEmailsPerEnvelope bool
}

// Input bundles everything a rule may inspect. Fields irrelevant to a given
// operation stay zero; each rule checks only what it owns.
type Input struct {
	Envelope  *envelope.Envelope
	Signers   []*envelope.Signer
	Signer    *envelope.Signer
	Token     *invitations.Token
	Signature *envelope.SignatureRecord
	Cert      *CertificateInfo

	Caller    string
	KeyID     string
	Now       time.Time
	StartedAt time.Time

	AccessLogged bool
}

// CertificateInfo is the plausibility view of a signing certificate chain.
type CertificateInfo struct {
	Issuer    string
	Subject   string
	NotBefore time.Time
	NotAfter  time.Time
}

// Rule is a single pure validator.
type Rule func(in Input, cfg Config) error

// table maps each operation to the superset of rules it must pass before any
// side effect runs.
var table = map[Operation][]Rule{
	OpInvite:   {EnvelopeSendable, SignersWellFormed},
	OpRemind:   {EnvelopeInFlight, ReminderCooldownElapsed, ResendBudget},
	OpSign:     {EnvelopeInFlight, SignerEligible, ProcessingWindow, SigningKeyAuthorized, AlgorithmAllowed, DocumentHashWellFormed, TimestampSane, CertificatePlausible},
	OpDecline:  {EnvelopeInFlight, SignerCanDecline},
	OpRevoke:   {EnvelopeNotTerminal},
	OpFinalize: {EnvelopeCompletable, TamperEvidence},
	OpRestart:  {EnvelopeRestartable},
	OpDelete:   {EnvelopeDeletable},
	OpExpire:   {EnvelopeNotTerminal, CleanupDelayElapsed},
	OpDownload: {CallerAuthorized, AccessLoggingComplete, WithinLegalValidity, WithinRetention},
}

// For returns the rule set for an operation.
func For(op Operation) []Rule {
	return table[op]
}

// Apply runs every rule registered for the operation and returns the first
// violation. Rules are independent, so first-failure order only affects which
// violation is reported, never whether one is.
func Apply(op Operation, in Input, cfg Config) error {
	for _, rule := range For(op) {
		if err := rule(in, cfg); err != nil {
			return err
		}
	}
	return nil
}
