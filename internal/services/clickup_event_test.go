package services

import (
	"strings"
	"testing"

	"github.com/jedmorris/CRM-manager/pkg/clickup"
)

func TestParseClickUpPayload(t *testing.T) {
	payload, err := ParseClickUpPayload([]byte(`{
		"event": "taskStatusUpdated",
		"task_id": "abc123",
		"webhook_id": "wh-1",
		"list_id": "list-9",
		"history_items": [
			{"id": "h1", "field": "status", "before": {"status": "open"}, "after": {"status": "done"}, "user": {"username": "alice"}}
		]
	}`))
	if err != nil {
		t.Fatalf("ParseClickUpPayload: %v", err)
	}
	if payload.Event != "taskStatusUpdated" || payload.TaskID != "abc123" {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if len(payload.HistoryItems) != 1 || payload.HistoryItems[0].User.Username != "alice" {
		t.Errorf("unexpected history items: %+v", payload.HistoryItems)
	}
}

func TestParseClickUpPayloadErrors(t *testing.T) {
	if _, err := ParseClickUpPayload([]byte("not json")); err == nil {
		t.Error("expected error for invalid json")
	}
	if _, err := ParseClickUpPayload([]byte(`{"task_id": "t1"}`)); err == nil {
		t.Error("expected error for missing event")
	}
}

func TestEventKey(t *testing.T) {
	withHistory, err := ParseClickUpPayload([]byte(`{
		"event": "taskUpdated",
		"task_id": "t1",
		"history_items": [{"id": "hist-42"}]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := withHistory.EventKey(); got != "t1:taskUpdated:hist-42" {
		t.Errorf("unexpected key: %s", got)
	}

	// Without history items the key still must be deterministic.
	bare := &ClickUpWebhookPayload{Event: "taskDeleted", TaskID: "t2"}
	if bare.EventKey() != bare.EventKey() {
		t.Error("expected deterministic fallback key")
	}
	if bare.EventKey() == withHistory.EventKey() {
		t.Error("expected distinct keys for distinct events")
	}
}

func TestChangeSummary(t *testing.T) {
	payload, err := ParseClickUpPayload([]byte(`{
		"event": "taskStatusUpdated",
		"task_id": "t1",
		"history_items": [
			{"field": "status", "before": {"status": "open"}, "after": {"status": "done"}, "user": {"username": "alice"}},
			{"field": "priority", "after": "urgent", "user": {"username": "bob"}},
			{"field": "due_date", "before": "tomorrow", "user": {"username": "carol"}}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}

	summary := payload.ChangeSummary()
	lines := strings.Split(summary, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), summary)
	}
	if lines[0] != `field status changed from "open" to "done" by alice` {
		t.Errorf("unexpected changed line: %s", lines[0])
	}
	if lines[1] != `field priority set to "urgent" by bob` {
		t.Errorf("unexpected set line: %s", lines[1])
	}
	if lines[2] != `field due_date removed (was "tomorrow") by carol` {
		t.Errorf("unexpected removed line: %s", lines[2])
	}
}

func TestClickUpTemplateContext(t *testing.T) {
	payload, err := ParseClickUpPayload([]byte(`{
		"event": "taskUpdated",
		"task_id": "t1",
		"history_items": [
			{"field": "name", "before": "Old", "after": "New", "user": {"username": "alice"}}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}

	// Task snapshot present.
	task := &clickup.Task{
		ID:     "t1",
		Name:   "New",
		Status: clickup.TaskStatus{Status: "in progress"},
		URL:    "https://app.clickup.com/t/t1",
	}
	ctx := payload.TemplateContext(task)
	if got := ProcessTemplate("{{task.name}} ({{task.status}}) by {{user}}", ctx); got != "New (in progress) by alice" {
		t.Errorf("unexpected render: %q", got)
	}

	// Snapshot missing: the payload's task id survives.
	ctx = payload.TemplateContext(nil)
	if got := ProcessTemplate("{{task.id}}", ctx); got != "t1" {
		t.Errorf("expected task id without snapshot, got %q", got)
	}
	if got := ProcessTemplate("{{task.name}}", ctx); got != "{{task.name}}" {
		t.Errorf("expected unresolved name without snapshot, got %q", got)
	}
}
