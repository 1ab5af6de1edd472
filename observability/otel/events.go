package otel

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"tipjar/core/events"
	"tipjar/native/tipjar"
)

// EventRecorder exports committed ledger events as OTLP counters. It
// implements events.Emitter so it can sit on the node's fanout next to the
// indexer and webhook dispatcher.
type EventRecorder struct {
	committed metric.Int64Counter
	volume    metric.Int64Counter
}

// NewEventRecorder registers the ledger instruments on provider, or on the
// global meter provider when provider is nil.
func NewEventRecorder(provider metric.MeterProvider) (*EventRecorder, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationName)
	committed, err := meter.Int64Counter("tipjar.events.committed",
		metric.WithDescription("Ledger events committed, by type"))
	if err != nil {
		return nil, fmt.Errorf("create events counter: %w", err)
	}
	volume, err := meter.Int64Counter("tipjar.tips.volume",
		metric.WithDescription("Base units moved by committed tips"))
	if err != nil {
		return nil, fmt.Errorf("create volume counter: %w", err)
	}
	return &EventRecorder{committed: committed, volume: volume}, nil
}

// Emit implements events.Emitter.
func (r *EventRecorder) Emit(evt events.Event) {
	payload, ok := tipjar.Unwrap(evt)
	if !ok {
		return
	}
	ctx := context.Background()
	r.committed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", payload.Type)))
	if payload.Type != tipjar.EventTypeTipSent {
		return
	}
	// Tip amounts are capped well below the int64 range.
	if amount, err := strconv.ParseInt(payload.Attr("amount"), 10, 64); err == nil {
		r.volume.Add(ctx, amount)
	}
}
