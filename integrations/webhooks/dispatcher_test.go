package webhooks

import (
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tipjar/crypto"
	"tipjar/native/tipjar"
)

type received struct {
	eventType string
	signature string
	body      []byte
}

func sampleTipEvent() *tipjar.TipRecord {
	return &tipjar.TipRecord{
		ID:              1,
		Tipper:          crypto.DeriveAccount("hook-tipper"),
		Recipient:       crypto.DeriveAccount("hook-creator"),
		Amount:          big.NewInt(25_000),
		CreatedAtHeight: 4,
	}
}

func TestDispatcherSignsPayload(t *testing.T) {
	deliveries := make(chan received, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		deliveries <- received{eventType: r.Header.Get(EventHeader), signature: r.Header.Get(SignatureHeader), body: body}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	secret := []byte("secret")
	dispatcher, err := NewDispatcher(server.URL, secret)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	dispatcher.Emit(tipjar.WrapEvent(tipjar.TipSentEvent(sampleTipEvent())))

	select {
	case got := <-deliveries:
		if got.eventType != tipjar.EventTypeTipSent {
			t.Fatalf("unexpected event header %q", got.eventType)
		}
		if !Verify(secret, got.body, got.signature) {
			t.Fatalf("signature did not verify: %s", got.signature)
		}
		var payload Payload
		if err := json.Unmarshal(got.body, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.DeliveryID == "" || payload.Height != 4 || payload.Attributes["amount"] != "25000" {
			t.Fatalf("unexpected payload %+v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a delivery")
	}
}

func TestDispatcherRetries(t *testing.T) {
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithRetryPolicy(5, time.Millisecond*10, time.Millisecond*20))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	dispatcher.Emit(tipjar.WrapEvent(tipjar.CreatorRegisteredEvent(crypto.DeriveAccount("hook-creator"), "Hook", 1)))
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 3 }, time.Second)
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected retries, got %d", atomic.LoadInt32(&attempts))
	}
}

func TestDispatcherFiltersEventTypes(t *testing.T) {
	hits := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithEventTypes(tipjar.EventTypeTipSent))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	dispatcher.Emit(tipjar.WrapEvent(tipjar.CreatorRegisteredEvent(crypto.DeriveAccount("hook-creator"), "Hook", 1)))
	dispatcher.Emit(tipjar.WrapEvent(tipjar.TipSentEvent(sampleTipEvent())))
	waitFor(func() bool { return atomic.LoadInt32(&hits) >= 1 }, time.Second)
	time.Sleep(50 * time.Millisecond)
	dispatcher.Close()
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected only the tip to be delivered, got %d deliveries", got)
	}
}

func TestNewDispatcherValidates(t *testing.T) {
	if _, err := NewDispatcher("", []byte("secret")); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewDispatcher("http://localhost", nil); err == nil {
		t.Fatalf("expected secret error")
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := nextBackoff(10*time.Second, 15*time.Second); got != 15*time.Second {
		t.Fatalf("expected cap, got %s", got)
	}
	if got := nextBackoff(time.Second, time.Minute); got != 2*time.Second {
		t.Fatalf("expected doubling, got %s", got)
	}
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 10)
	}
}
