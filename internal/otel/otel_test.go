package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewProvider_ServesMetrics(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(ctx, "test-service")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	defer func() { _ = p.Shutdown(ctx) }()

	err = RegisterTaskGauge(p.Meter(), func(context.Context) (map[string]int64, error) {
		return map[string]int64{"planned": 3, "blocked": 1}, nil
	})
	if err != nil {
		t.Fatalf("RegisterTaskGauge: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics: status=%d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "agentjobs_tasks") {
		t.Errorf("expected agentjobs_tasks gauge in output:\n%s", body)
	}
	if !strings.Contains(body, `status="planned"`) {
		t.Errorf("expected status label in output:\n%s", body)
	}
}

func TestNewProvider_EmptyServiceName(t *testing.T) {
	p, err := NewProvider(context.Background(), "")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Meter() == nil || p.Handler() == nil {
		t.Fatal("expected meter and handler")
	}
}
