package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "sealflow", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "sealflow", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	EnvelopeTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "sealflow", Name: "envelope_transitions_total", Help: "Envelope status transitions by target status."},
		[]string{"to"},
	)
	SignaturesRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "sealflow", Name: "signatures_recorded_total", Help: "Number of signatures accepted and persisted."},
	)
	TokensIssued = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "sealflow", Name: "invitation_tokens_issued_total", Help: "Number of invitation tokens issued."},
	)
	TokensConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "sealflow", Name: "invitation_tokens_consumed_total", Help: "Invitation tokens leaving the active state, by outcome."},
		[]string{"outcome"},
	)
	AuditEmitFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "sealflow", Name: "audit_emit_failures_total", Help: "Audit events that could not be persisted."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(EnvelopeTransitions)
	reg.MustRegister(SignaturesRecorded)
	reg.MustRegister(TokensIssued)
	reg.MustRegister(TokensConsumed)
	reg.MustRegister(AuditEmitFailures)
}
