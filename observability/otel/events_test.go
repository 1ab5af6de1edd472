package otel

import (
	"context"
	"math/big"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"tipjar/crypto"
	"tipjar/native/tipjar"
)

func TestEventRecorderCountsCommittedEvents(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	recorder, err := NewEventRecorder(provider)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	creator := crypto.DeriveAccount("otel-creator")
	recorder.Emit(tipjar.WrapEvent(tipjar.CreatorRegisteredEvent(creator, "Otel", 1)))
	for id, amount := range []int64{10_000, 25_000} {
		recorder.Emit(tipjar.WrapEvent(tipjar.TipSentEvent(&tipjar.TipRecord{
			ID:        uint64(id + 1),
			Tipper:    crypto.DeriveAccount("otel-tipper"),
			Recipient: creator,
			Amount:    big.NewInt(amount),
		})))
	}
	recorder.Emit(nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	committed := sumByName(t, rm, "tipjar.events.committed")
	if committed != 3 {
		t.Fatalf("expected 3 committed events, got %d", committed)
	}
	if volume := sumByName(t, rm, "tipjar.tips.volume"); volume != 35_000 {
		t.Fatalf("expected volume 35000, got %d", volume)
	}
}

func sumByName(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: unexpected data %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}
