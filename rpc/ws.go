package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"tipjar/core/events"
	"tipjar/native/tipjar"
	"tipjar/observability"
)

const (
	wsWriteTimeout      = 10 * time.Second
	wsSubscriberBacklog = 64
)

// StreamEvent is the JSON frame written to event stream subscribers.
type StreamEvent struct {
	Type       string            `json:"type"`
	Height     uint64            `json:"height"`
	Attributes map[string]string `json:"attributes"`
}

type subscriber struct {
	ch      chan StreamEvent
	types   map[string]struct{}
	creator string
}

func (s *subscriber) wants(evt StreamEvent) bool {
	if len(s.types) > 0 {
		if _, ok := s.types[evt.Type]; !ok {
			return false
		}
	}
	if s.creator != "" {
		return evt.Attributes["creator"] == s.creator || evt.Attributes["recipient"] == s.creator
	}
	return true
}

// EventHub fans committed ledger events out to websocket subscribers. Emit
// never blocks; a subscriber whose queue is full misses the event.
type EventHub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

// NewEventHub constructs an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[*subscriber]struct{})}
}

// Emit implements events.Emitter.
func (h *EventHub) Emit(evt events.Event) {
	payload, ok := tipjar.Unwrap(evt)
	if !ok {
		return
	}
	frame := StreamEvent{Type: payload.Type, Height: payload.Height, Attributes: payload.Attributes}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.wants(frame) {
			continue
		}
		select {
		case sub.ch <- frame:
			observability.Events().RecordDelivered("ws", frame.Type)
		default:
			observability.Events().RecordDropped("ws")
		}
	}
}

// Subscribe registers a subscriber. The returned cancel function must be
// called to release it.
func (h *EventHub) Subscribe(types []string, creator string) (<-chan StreamEvent, func()) {
	sub := &subscriber{ch: make(chan StreamEvent, wsSubscriberBacklog), creator: strings.TrimSpace(creator)}
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			if sub.types == nil {
				sub.types = make(map[string]struct{})
			}
			sub.types[t] = struct{}{}
		}
	}
	h.mu.Lock()
	if h.closed {
		close(sub.ch)
	} else {
		h.subs[sub] = struct{}{}
	}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.ch)
			}
			h.mu.Unlock()
		})
	}
}

// Close disconnects every subscriber.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// ServeHTTP upgrades the request to a websocket and streams events. The
// optional "type" query parameter (repeatable) and "creator" parameter narrow
// the stream.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	updates, cancel := h.Subscribe(query["type"], query.Get("creator"))
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := streamEvents(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan StreamEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeStreamEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, evt StreamEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
