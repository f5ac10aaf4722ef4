package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingSink struct {
	MemorySink
	fail bool
}

func (s *failingSink) Append(ctx context.Context, ev Event) error {
	if s.fail {
		return errors.New("sink down")
	}
	return s.MemorySink.Append(ctx, ev)
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return string(rune('a' + n - 1))
	}
}

func TestRecorderAssignsIdentityAndTime(t *testing.T) {
	sink := NewMemorySink()
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := NewRecorder(sink, seqIDs()).WithClock(func() time.Time { return frozen })

	ev := rec.Record(context.Background(), Event{EnvelopeID: "env-1", Actor: "usr-1", Action: "invite"})
	if ev.ID == "" {
		t.Fatal("recorded event must carry an assigned id")
	}
	if !ev.OccurredAt.Equal(frozen) {
		t.Fatalf("timestamp = %v, want %v", ev.OccurredAt, frozen)
	}

	trail, err := rec.Trail(context.Background(), "env-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 1 || trail[0].Action != "invite" {
		t.Fatalf("trail = %+v, want the single invite event", trail)
	}
}

func TestRecorderSwallowsSinkFailures(t *testing.T) {
	sink := &failingSink{fail: true}
	rec := NewRecorder(sink, seqIDs())

	// must not panic or surface the error
	ev := rec.Record(context.Background(), Event{EnvelopeID: "env-1", Action: "sign"})
	if ev.ID == "" {
		t.Fatal("event identity is assigned even when persistence fails")
	}

	sink.fail = false
	rec.Record(context.Background(), Event{EnvelopeID: "env-1", Action: "decline"})
	trail, err := rec.Trail(context.Background(), "env-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 1 || trail[0].Action != "decline" {
		t.Fatalf("only the post-recovery event should be persisted, got %+v", trail)
	}
}

func TestMemorySinkFiltersByEnvelope(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()
	sink.Append(ctx, Event{ID: "1", EnvelopeID: "env-1", Action: "invite"})
	sink.Append(ctx, Event{ID: "2", EnvelopeID: "env-2", Action: "invite"})
	sink.Append(ctx, Event{ID: "3", EnvelopeID: "env-1", Action: "sign"})

	got, err := sink.ListByEnvelope(ctx, "env-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("ListByEnvelope = %+v", got)
	}
}
