package models

import (
	"errors"
	"testing"
)

func TestSubscription_Wants(t *testing.T) {
	sub := &Subscription{Active: true, Events: []EventType{EventTaskCreated, EventTaskCompleted}}

	if !sub.Wants(EventTaskCreated) || !sub.Wants(EventTaskCompleted) {
		t.Error("expected subscribed events to be wanted")
	}
	if sub.Wants(EventTaskUpdated) {
		t.Error("task.updated was not subscribed")
	}

	sub.Active = false
	if sub.Wants(EventTaskCreated) {
		t.Error("inactive subscriptions want nothing")
	}
}

func TestSubscription_Validate(t *testing.T) {
	tests := []struct {
		name    string
		sub     Subscription
		wantErr bool
	}{
		{"valid", Subscription{URL: "https://example.com/hook", Events: []EventType{EventTaskCreated}, Secret: "s"}, false},
		{"http ok", Subscription{URL: "http://localhost:8080/x", Events: AllEventTypes, Secret: "s"}, false},
		{"relative url", Subscription{URL: "/hook", Events: []EventType{EventTaskCreated}, Secret: "s"}, true},
		{"ftp scheme", Subscription{URL: "ftp://example.com", Events: []EventType{EventTaskCreated}, Secret: "s"}, true},
		{"no events", Subscription{URL: "https://example.com", Secret: "s"}, true},
		{"unknown event", Subscription{URL: "https://example.com", Events: []EventType{"task.deleted"}, Secret: "s"}, true},
		{"no secret", Subscription{URL: "https://example.com", Events: []EventType{EventTaskCreated}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub.Validate()
			if tt.wantErr != (err != nil) {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestEventType_Valid(t *testing.T) {
	for _, e := range AllEventTypes {
		if !e.Valid() {
			t.Errorf("%s should be valid", e)
		}
	}
	if EventType("task.deleted").Valid() {
		t.Error("unknown event should be invalid")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("field %s is bad", "x")
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected ErrValidation")
	}
	if err.Error() != "validation error: field x is bad" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
