package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeQueue struct {
	size int
}

func (q *fakeQueue) GetQueueSize() int { return q.size }

func TestCheckAllDown(t *testing.T) {
	h := NewChecker(nil, nil, nil, &fakeQueue{size: 3})

	status := h.Check(context.Background())
	if status.NATS != "disconnected" {
		t.Errorf("expected nats disconnected, got %s", status.NATS)
	}
	if status.Redis != "disconnected" {
		t.Errorf("expected redis disconnected, got %s", status.Redis)
	}
	if status.Database != "disconnected" {
		t.Errorf("expected database disconnected, got %s", status.Database)
	}
	if status.WriteQueue != 3 {
		t.Errorf("expected write_queue 3, got %d", status.WriteQueue)
	}
	if h.IsHealthy(context.Background()) {
		t.Error("expected unhealthy")
	}
}

func TestServeHTTPContentType(t *testing.T) {
	h := NewChecker(nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("expected application/json content type, got %q", got)
	}

	var status Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if status.NATS != "disconnected" {
		t.Errorf("expected nats disconnected, got %s", status.NATS)
	}
}
