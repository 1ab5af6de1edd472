package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = secret ,broken,,=novalue, tenant=tips ")
	if len(headers) != 2 {
		t.Fatalf("expected two headers, got %v", headers)
	}
	if headers["api-key"] != "secret" || headers["tenant"] != "tips" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestInitWithoutExporters(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
	shutdown, err := Init(context.Background(), Config{ServiceName: "tipjard"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestWrapHandlerServesRequests(t *testing.T) {
	handler := WrapHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, span := StartSpan(r.Context(), "inner")
		span.End()
		w.WriteHeader(http.StatusTeapot)
	}), "test")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected wrapped handler status, got %d", rec.Code)
	}
}
