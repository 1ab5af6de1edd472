package tipjar

import (
	"encoding/hex"
	"strconv"

	"tipjar/core/events"
	"tipjar/core/types"
	"tipjar/crypto"
)

const (
	// EventTypeCreatorRegistered is emitted when an account registers a profile.
	EventTypeCreatorRegistered = "tipjar.creator.registered"
	// EventTypeCreatorRenamed is emitted when a creator changes their display name.
	EventTypeCreatorRenamed = "tipjar.creator.renamed"
	// EventTypeTipSent is emitted when a tip is appended to the log.
	EventTypeTipSent = "tipjar.tip.sent"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

// Unwrap returns the payload of an envelope produced by WrapEvent.
func Unwrap(evt events.Event) (*types.Event, bool) {
	env, ok := evt.(eventEnvelope)
	if !ok || env.evt == nil {
		return nil, false
	}
	return env.evt, true
}

// CreatorRegisteredEvent returns the structured payload for a new creator.
func CreatorRegisteredEvent(account [20]byte, displayName string, height uint64) *types.Event {
	return &types.Event{
		Type:   EventTypeCreatorRegistered,
		Height: height,
		Attributes: map[string]string{
			"creator":     crypto.FormatAccount(account),
			"displayName": displayName,
		},
	}
}

// CreatorRenamedEvent returns the structured payload for a display name change.
func CreatorRenamedEvent(account [20]byte, previous, displayName string, height uint64) *types.Event {
	return &types.Event{
		Type:   EventTypeCreatorRenamed,
		Height: height,
		Attributes: map[string]string{
			"creator":     crypto.FormatAccount(account),
			"previous":    previous,
			"displayName": displayName,
		},
	}
}

// TipSentEvent returns the structured payload for an accepted tip.
func TipSentEvent(tip *TipRecord) *types.Event {
	receipt := tip.ReceiptHash()
	attrs := map[string]string{
		"id":        strconv.FormatUint(tip.ID, 10),
		"tipper":    crypto.FormatAccount(tip.Tipper),
		"recipient": crypto.FormatAccount(tip.Recipient),
		"amount":    newBigInt(tip.Amount).String(),
		"receipt":   hex.EncodeToString(receipt[:]),
	}
	if tip.Message != nil {
		attrs["message"] = *tip.Message
	}
	return &types.Event{
		Type:       EventTypeTipSent,
		Height:     tip.CreatedAtHeight,
		Attributes: attrs,
	}
}
