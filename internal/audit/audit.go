// Package audit records workflow events. Emission is best-effort: a sink
// failure is logged and counted but never propagated to the caller, so an
// audit outage cannot block signing traffic.
package audit

import (
	"context"
	"time"

	"github.com/sealflow/sealflow/backend/go-services/pkg/logger"
	"github.com/sealflow/sealflow/backend/go-services/pkg/metrics"
)

// Event is a single immutable audit record.
type Event struct {
	ID         string         `json:"id" bson:"id"`
	EnvelopeID string         `json:"envelopeId" bson:"envelopeId"`
	SignerID   string         `json:"signerId,omitempty" bson:"signerId,omitempty"`
	Actor      string         `json:"actor" bson:"actor"`
	Action     string         `json:"action" bson:"action"`
	Detail     map[string]any `json:"detail,omitempty" bson:"detail,omitempty"`
	IP         string         `json:"ip,omitempty" bson:"ip,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty" bson:"userAgent,omitempty"`
	Country    string         `json:"country,omitempty" bson:"country,omitempty"`
	OccurredAt time.Time      `json:"occurredAt" bson:"occurredAt"`
}

// Sink persists audit events.
type Sink interface {
	Append(ctx context.Context, ev Event) error
	ListByEnvelope(ctx context.Context, envelopeID string) ([]Event, error)
}

// Recorder wraps a sink with the best-effort contract.
type Recorder struct {
	sink  Sink
	now   func() time.Time
	newID func() string
}

func NewRecorder(sink Sink, newID func() string) *Recorder {
	return &Recorder{sink: sink, now: time.Now, newID: newID}
}

// WithClock overrides the time source, for tests.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record appends an event, swallowing sink errors. The returned event carries
// the assigned ID and timestamp.
func (r *Recorder) Record(ctx context.Context, ev Event) Event {
	ev.ID = r.newID()
	ev.OccurredAt = r.now()
	if err := r.sink.Append(ctx, ev); err != nil {
		metrics.AuditEmitFailures.Inc()
		logger.Errorf("audit: append failed for envelope %s action %s: %v", ev.EnvelopeID, ev.Action, err)
	}
	return ev
}

// Trail returns every recorded event for an envelope.
func (r *Recorder) Trail(ctx context.Context, envelopeID string) ([]Event, error) {
	return r.sink.ListByEnvelope(ctx, envelopeID)
}
