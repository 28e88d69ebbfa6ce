package storage

import (
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/valter-silva-au/agentjobs/pkg/models"
	"pgregory.net/rapid"
)

func genAlphaString(t *rapid.T, label string, minLen, maxLen int) string {
	return rapid.StringMatching(fmt.Sprintf(`[a-z ]{%d,%d}`, minLen, maxLen)).Draw(t, label)
}

// genText draws free text from the whole rune range, including line breaks
// and control characters.
func genText(t *rapid.T, label string, maxRunes int) string {
	return rapid.StringN(0, maxRunes, -1).Draw(t, label)
}

func genTimestamp(t *rapid.T, label string) time.Time {
	sec := rapid.Int64Range(1_600_000_000, 1_900_000_000).Draw(t, label+"Sec")
	nsec := rapid.Int64Range(0, 999_999_999).Draw(t, label+"Nsec")
	return time.Unix(sec, nsec).UTC()
}

func genStatus(t *rapid.T, label string) models.TaskStatus {
	return rapid.SampledFrom(models.AllStatuses).Draw(t, label)
}

// genTask draws a task that satisfies Validate. Empty collections are left
// nil, matching how omitempty fields decode.
func genTask(t *rapid.T) *models.Task {
	id := fmt.Sprintf("task-%03d", rapid.IntRange(1, 999).Draw(t, "idNum"))
	created := genTimestamp(t, "created")

	nUpdates := rapid.IntRange(1, 6).Draw(t, "nUpdates")
	updates := make([]models.StatusUpdate, nUpdates)
	ts := created
	for i := range updates {
		ts = ts.Add(time.Duration(rapid.Int64Range(0, int64(48*time.Hour)).Draw(t, fmt.Sprintf("gap%d", i))))
		updates[i] = models.StatusUpdate{
			Timestamp: ts,
			Author:    genAlphaString(t, fmt.Sprintf("author%d", i), 1, 12),
			Status:    genStatus(t, fmt.Sprintf("status%d", i)),
			Summary:   genText(t, fmt.Sprintf("summary%d", i), 30),
			Details:   genText(t, fmt.Sprintf("details%d", i), 30),
		}
	}
	updates[0].Status = models.StatusPlanned

	task := &models.Task{
		ID:              id,
		Title:           "t" + genText(t, "title", 40),
		Created:         created,
		Updated:         ts,
		Status:          updates[len(updates)-1].Status,
		Priority:        rapid.SampledFrom(models.AllPriorities).Draw(t, "priority"),
		Category:        genAlphaString(t, "category", 0, 10),
		AssignedTo:      genAlphaString(t, "assignee", 0, 10),
		EstimatedEffort: genAlphaString(t, "effort", 0, 5),
		HumanSummary:    genText(t, "humanSummary", 40),
		Description:     genText(t, "description", 80),
		Prompts:         models.Prompts{Starter: "s" + genText(t, "starter", 40)},
		StatusUpdates:   updates,
	}

	if n := rapid.IntRange(0, 3).Draw(t, "nPhases"); n > 0 {
		for i := 0; i < n; i++ {
			task.Phases = append(task.Phases, models.Phase{
				ID:     fmt.Sprintf("phase-%d", i+1),
				Title:  genText(t, fmt.Sprintf("phaseTitle%d", i), 20),
				Status: genStatus(t, fmt.Sprintf("phaseStatus%d", i)),
			})
		}
	}
	if n := rapid.IntRange(0, 3).Draw(t, "nDeliverables"); n > 0 {
		for i := 0; i < n; i++ {
			task.Deliverables = append(task.Deliverables, models.Deliverable{
				Path:   fmt.Sprintf("docs/file-%d.md", i),
				Status: rapid.SampledFrom([]string{models.DeliverablePending, models.DeliverableCompleted}).Draw(t, fmt.Sprintf("delivStatus%d", i)),
			})
		}
	}
	if n := rapid.IntRange(0, 2).Draw(t, "nFollowups"); n > 0 {
		for i := 0; i < n; i++ {
			task.Prompts.Followups = append(task.Prompts.Followups, models.Prompt{
				Timestamp: genTimestamp(t, fmt.Sprintf("followup%d", i)),
				Author:    genAlphaString(t, fmt.Sprintf("followupAuthor%d", i), 1, 10),
				Content:   genText(t, fmt.Sprintf("followupContent%d", i), 30),
			})
		}
	}
	if n := rapid.IntRange(0, 2).Draw(t, "nDeps"); n > 0 {
		for i := 0; i < n; i++ {
			task.Dependencies = append(task.Dependencies, models.Dependency{
				TaskID: fmt.Sprintf("task-%03d", rapid.IntRange(1, 999).Draw(t, fmt.Sprintf("dep%d", i))),
				Type:   rapid.SampledFrom([]string{models.DependsOn, models.Blocks, models.Related}).Draw(t, fmt.Sprintf("depType%d", i)),
			})
		}
	}
	if n := rapid.IntRange(0, 3).Draw(t, "nTags"); n > 0 {
		for i := 0; i < n; i++ {
			task.Tags = append(task.Tags, "tag"+genAlphaString(t, fmt.Sprintf("tag%d", i), 1, 8))
		}
	}
	return task
}

// Property: for any valid task, Save followed by Load returns a task equal
// field-for-field to the one saved.
func TestProperty_TaskRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir, err := os.MkdirTemp("", "taskstore-prop-*")
		if err != nil {
			rt.Fatalf("creating temp dir: %v", err)
		}
		defer func() { _ = os.RemoveAll(dir) }()

		store, err := NewTaskStore(dir, nil)
		if err != nil {
			rt.Fatalf("NewTaskStore: %v", err)
		}

		task := genTask(rt)
		if err := task.Validate(); err != nil {
			rt.Fatalf("generator produced invalid task: %v", err)
		}
		if err := store.Save(task); err != nil {
			rt.Fatalf("Save: %v", err)
		}
		loaded, err := store.Load(task.ID)
		if err != nil {
			rt.Fatalf("Load: %v", err)
		}
		if !reflect.DeepEqual(task, loaded) {
			rt.Fatalf("round-trip mismatch:\nsaved:  %+v\nloaded: %+v", task, loaded)
		}
	})
}
