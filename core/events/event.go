package events

import "sync"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer holds events raised inside a unit of work until it commits. Events of
// an aborted unit are dropped with Reset.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Flush forwards the buffered events to dst and empties the buffer.
func (b *Buffer) Flush(dst Emitter) {
	if dst != nil {
		for _, evt := range b.events {
			dst.Emit(evt)
		}
	}
	b.Reset()
}

// Reset discards buffered events.
func (b *Buffer) Reset() { b.events = nil }

// Fanout delivers each event to every registered emitter.
type Fanout struct {
	mu       sync.RWMutex
	emitters []Emitter
}

// NewFanout returns a fanout over the non-nil emitters supplied.
func NewFanout(emitters ...Emitter) *Fanout {
	f := &Fanout{}
	for _, e := range emitters {
		f.Add(e)
	}
	return f
}

// Add registers another downstream emitter.
func (f *Fanout) Add(e Emitter) {
	if e == nil {
		return
	}
	f.mu.Lock()
	f.emitters = append(f.emitters, e)
	f.mu.Unlock()
}

// Emit implements the Emitter interface.
func (f *Fanout) Emit(evt Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, e := range f.emitters {
		e.Emit(evt)
	}
}
