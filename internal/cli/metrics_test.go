package cli

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/agentjobs/internal/observability"
)

func sampleMetrics() *observability.Metrics {
	oldest := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	return &observability.Metrics{
		TasksCreated:      4,
		TasksCompleted:    1,
		TasksByPriority:   map[string]int{"high": 3, "low": 1},
		Transitions:       map[string]int{"in_progress": 2, "completed": 1},
		Updates:           map[string]int{"progress_added": 5},
		WebhooksDelivered: 3,
		WebhooksFailed:    1,
		EventCount:        16,
		OldestEvent:       &oldest,
	}
}

func TestMetrics_Table(t *testing.T) {
	calc := &fakeMetrics{metrics: sampleMetrics()}
	out, err := run(t, &Services{MetricsCalc: calc}, "metrics", "--since", "30d")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Tasks created:", "Webhooks failed:", "75.0%", "high:", "progress_added:", "2025-01-10T09:00:00Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// Counts are printed in key order.
	if strings.Index(out, "high:") > strings.Index(out, "low:") {
		t.Errorf("priorities not sorted:\n%s", out)
	}
	if age := time.Since(calc.since); age < 29*24*time.Hour || age > 31*24*time.Hour {
		t.Errorf("expected a 30 day window, got %s", age)
	}
}

func TestMetrics_JSON(t *testing.T) {
	out, err := run(t, &Services{MetricsCalc: &fakeMetrics{metrics: sampleMetrics()}}, "metrics", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var m observability.Metrics
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("expected JSON: %v", err)
	}
	if m.TasksCreated != 4 || m.WebhooksDelivered != 3 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestMetrics_Errors(t *testing.T) {
	if _, err := run(t, &Services{MetricsCalc: &fakeMetrics{metrics: sampleMetrics()}}, "metrics", "--since", "7w"); err == nil {
		t.Error("expected error for unsupported --since")
	}
	boom := errors.New("boom")
	if _, err := run(t, &Services{MetricsCalc: &fakeMetrics{err: boom}}, "metrics"); !errors.Is(err, boom) {
		t.Errorf("expected calculator error, got %v", err)
	}
}
