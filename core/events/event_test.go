package events

import "testing"

type namedEvent string

func (n namedEvent) EventType() string { return string(n) }

type recorder struct{ seen []string }

func (r *recorder) Emit(evt Event) { r.seen = append(r.seen, evt.EventType()) }

func TestBufferFlushPreservesOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(namedEvent("a"))
	buf.Emit(nil)
	buf.Emit(namedEvent("b"))
	if got := len(buf.Events()); got != 2 {
		t.Fatalf("expected 2 buffered events, got %d", got)
	}
	rec := &recorder{}
	buf.Flush(rec)
	if len(rec.seen) != 2 || rec.seen[0] != "a" || rec.seen[1] != "b" {
		t.Fatalf("unexpected flush order: %v", rec.seen)
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("expected buffer to be empty after flush")
	}
}

func TestBufferResetDropsEvents(t *testing.T) {
	var buf Buffer
	buf.Emit(namedEvent("a"))
	buf.Reset()
	rec := &recorder{}
	buf.Flush(rec)
	if len(rec.seen) != 0 {
		t.Fatalf("expected no events after reset, got %v", rec.seen)
	}
}

func TestFanoutDeliversToAll(t *testing.T) {
	first, second := &recorder{}, &recorder{}
	fan := NewFanout(first, nil, second)
	fan.Emit(namedEvent("x"))
	if len(first.seen) != 1 || len(second.seen) != 1 {
		t.Fatalf("expected both emitters to receive the event")
	}
}
