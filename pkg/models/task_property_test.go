package models

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// A task built from any sequence of non-decreasing status entries validates
// exactly when its status matches the last entry.
func TestProperty_HistoryValidation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		task := validTask()
		n := rapid.IntRange(0, 10).Draw(rt, "entries")
		ts := testTime
		for i := 0; i < n; i++ {
			ts = ts.Add(time.Duration(rapid.IntRange(0, 3600).Draw(rt, "gap")) * time.Second)
			task.StatusUpdates = append(task.StatusUpdates, StatusUpdate{
				Timestamp: ts,
				Author:    "bot",
				Status:    rapid.SampledFrom(AllStatuses).Draw(rt, "status"),
				Summary:   "step",
			})
		}
		task.Updated = ts
		task.Status = rapid.SampledFrom(AllStatuses).Draw(rt, "current")

		err := task.Validate()
		matches := task.Status == task.LastUpdate().Status
		if matches && err != nil {
			rt.Fatalf("expected valid task, got %v", err)
		}
		if !matches && err == nil {
			rt.Fatalf("status %s with last entry %s should not validate", task.Status, task.LastUpdate().Status)
		}
	})
}
