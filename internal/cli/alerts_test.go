package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/agentjobs/internal/observability"
)

func sampleAlerts() []observability.Alert {
	return []observability.Alert{{
		ID: "blocked-task-001", Condition: "task_blocked_too_long", Severity: observability.SeverityHigh,
		TaskID: "task-001", Message: "task task-001 has been blocked for more than 24 hours",
		TriggeredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}}
}

func TestAlerts_None(t *testing.T) {
	out, err := run(t, &Services{AlertEngine: &fakeAlerts{}}, "alerts")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No active alerts.") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestAlerts_List(t *testing.T) {
	out, err := run(t, &Services{AlertEngine: &fakeAlerts{alerts: sampleAlerts()}}, "alerts")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"1 active alert(s)", "[HIGH]", "task-001", "2025-03-01 12:00 UTC"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAlerts_PostsToSlack(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	out, err := run(t, &Services{AlertEngine: &fakeAlerts{alerts: sampleAlerts()}}, "alerts", "--slack-webhook", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Posted alerts to Slack.") {
		t.Errorf("unexpected output %q", out)
	}
	var msg map[string]any
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if !strings.Contains(string(body), "task-001") {
		t.Errorf("slack body missing alert: %s", body)
	}
}

func TestAlerts_SlackFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := run(t, &Services{AlertEngine: &fakeAlerts{alerts: sampleAlerts()}}, "alerts", "--slack-webhook", srv.URL)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected slack error, got %v", err)
	}
}
