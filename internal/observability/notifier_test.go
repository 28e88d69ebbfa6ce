package observability

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSlackNotifier_NoAlerts(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, nil)
	if err := n.Notify(context.Background(), nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if called {
		t.Fatal("expected no HTTP request for empty alerts")
	}
}

func TestSlackNotifier_SendsAlerts(t *testing.T) {
	var body []byte
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	at := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	alerts := []Alert{
		{ID: "blocked-task-001", Condition: "task_blocked_too_long", Severity: SeverityHigh, TaskID: "task-001",
			Message: "task task-001 has been blocked for more than 24 hours", TriggeredAt: at},
		{ID: "review-task-002", Condition: "review_too_long", Severity: SeverityMedium, TaskID: "task-002",
			Message: "task task-002 has been under review for more than 3 days", TriggeredAt: at},
	}
	if err := NewSlackNotifier(srv.URL, srv.Client()).Notify(context.Background(), alerts); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}
	var msg slackMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("unmarshalling request body: %v", err)
	}
	// header + section + divider + section
	if len(msg.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(msg.Blocks))
	}
	if msg.Blocks[0].Text == nil || msg.Blocks[0].Text.Text != "agentjobs: 2 open alert(s)" {
		t.Errorf("unexpected header %+v", msg.Blocks[0].Text)
	}
	if msg.Blocks[2].Type != "divider" {
		t.Errorf("expected divider, got %s", msg.Blocks[2].Type)
	}
	for _, want := range []string{"task-001", "task-002", "2025-01-15 10:30 UTC", "\U0001f534", "\U0001f7e1"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected body to contain %q", want)
		}
	}
}

func TestSlackNotifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewSlackNotifier(srv.URL, nil).Notify(context.Background(), []Alert{{ID: "x", Severity: SeverityLow, Message: "m"}})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected error mentioning 500, got %v", err)
	}
}
