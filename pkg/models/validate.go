package models

import (
	"regexp"
	"strings"
)

// taskIDPattern restricts ids to names that are safe as a single file name.
var taskIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidTaskID reports whether id can address a task document.
func ValidTaskID(id string) bool {
	return taskIDPattern.MatchString(id) && !strings.HasSuffix(id, ".yaml")
}

var (
	deliverableStatuses = map[string]bool{DeliverablePending: true, DeliverableInProgress: true, DeliverableCompleted: true}
	criterionStatuses   = map[string]bool{"pending": true, "in_progress": true, "completed": true, "failed": true}
	dependencyTypes     = map[string]bool{DependsOn: true, Blocks: true, Related: true}
	issueStatuses       = map[string]bool{"open": true, "in_progress": true, "resolved": true, "wont_fix": true}
	branchStatuses      = map[string]bool{"active": true, "merged": true, "abandoned": true}
)

// Validate checks the task against the record schema and the history
// invariants: the log is non-empty, timestamps never decrease, and the
// current status equals the status of the last entry.
func (t *Task) Validate() error {
	var v validationErrors

	if !ValidTaskID(t.ID) {
		v.addf("id %q is not a valid task identifier", t.ID)
	}
	if strings.TrimSpace(t.Title) == "" {
		v.addf("title must not be empty")
	}
	if !t.Status.Valid() {
		v.addf("status %q is not a known status", t.Status)
	}
	if !t.Priority.Valid() {
		v.addf("priority %q is not a known priority", t.Priority)
	}
	if t.Created.IsZero() {
		v.addf("created must be set")
	}
	if t.Updated.Before(t.Created) {
		v.addf("updated %s precedes created %s", t.Updated, t.Created)
	}
	if t.Prompts.Starter == "" {
		v.addf("prompts.starter must not be empty")
	}

	if len(t.StatusUpdates) == 0 {
		v.addf("status_updates must contain at least the creation entry")
	}
	for i, u := range t.StatusUpdates {
		if !u.Status.Valid() {
			v.addf("status_updates[%d]: status %q is not a known status", i, u.Status)
		}
		if i > 0 && u.Timestamp.Before(t.StatusUpdates[i-1].Timestamp) {
			v.addf("status_updates[%d]: timestamp precedes the previous entry", i)
		}
	}
	if last := t.LastUpdate(); last != nil && last.Status != t.Status {
		v.addf("status %q does not match last status update %q", t.Status, last.Status)
	}

	seenPhases := make(map[string]bool, len(t.Phases))
	for i, p := range t.Phases {
		if p.ID == "" {
			v.addf("phases[%d]: id must not be empty", i)
		} else if seenPhases[p.ID] {
			v.addf("phases[%d]: duplicate id %q", i, p.ID)
		}
		seenPhases[p.ID] = true
		if !p.Status.Valid() {
			v.addf("phases[%d]: status %q is not a known status", i, p.Status)
		}
	}

	seenPaths := make(map[string]bool, len(t.Deliverables))
	for i, d := range t.Deliverables {
		if d.Path == "" {
			v.addf("deliverables[%d]: path must not be empty", i)
		} else if seenPaths[d.Path] {
			v.addf("deliverables[%d]: duplicate path %q", i, d.Path)
		}
		seenPaths[d.Path] = true
		if !deliverableStatuses[d.Status] {
			v.addf("deliverables[%d]: status %q is not one of pending, in_progress, completed", i, d.Status)
		}
	}

	for i, c := range t.SuccessCriteria {
		if !criterionStatuses[c.Status] {
			v.addf("success_criteria[%d]: status %q is not valid", i, c.Status)
		}
	}
	for i, d := range t.Dependencies {
		if d.TaskID == "" {
			v.addf("dependencies[%d]: task_id must not be empty", i)
		}
		if !dependencyTypes[d.Type] {
			v.addf("dependencies[%d]: type %q is not one of depends_on, blocks, related", i, d.Type)
		}
	}
	for i, l := range t.ExternalLinks {
		if l.URL == "" {
			v.addf("external_links[%d]: url must not be empty", i)
		}
	}
	for i, is := range t.Issues {
		if !issueStatuses[is.Status] {
			v.addf("issues[%d]: status %q is not valid", i, is.Status)
		}
	}
	for i, b := range t.Branches {
		if !branchStatuses[b.Status] {
			v.addf("branches[%d]: status %q is not valid", i, b.Status)
		}
	}

	return v.err()
}
