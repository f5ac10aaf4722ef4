package audit

import (
	"context"
	"sync"
)

// MemorySink is an in-memory Sink for tests and single-process runs.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *MemorySink) ListByEnvelope(ctx context.Context, envelopeID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.EnvelopeID == envelopeID {
			out = append(out, ev)
		}
	}
	return out, nil
}
