package services

import (
	"testing"

	"github.com/jedmorris/CRM-manager/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func TestEmailMatchesTrigger(t *testing.T) {
	email := &EmailData{
		From:          "Alice <alice@example.com>",
		To:            "support@acme.io",
		Subject:       "URGENT: login broken",
		HasAttachment: true,
		IsReply:       false,
	}

	tests := []struct {
		name string
		cfg  *models.GmailTriggerConfig
		want bool
	}{
		{
			name: "nil config matches all",
			cfg:  nil,
			want: true,
		},
		{
			name: "empty config matches all",
			cfg:  &models.GmailTriggerConfig{},
			want: true,
		},
		{
			name: "from substring case-insensitive",
			cfg:  &models.GmailTriggerConfig{FromFilter: "ALICE@example"},
			want: true,
		},
		{
			name: "from mismatch",
			cfg:  &models.GmailTriggerConfig{FromFilter: "bob@"},
			want: false,
		},
		{
			name: "subject substring",
			cfg:  &models.GmailTriggerConfig{SubjectContains: "urgent"},
			want: true,
		},
		{
			name: "all filters ANDed",
			cfg: &models.GmailTriggerConfig{
				FromFilter:      "alice",
				ToFilter:        "acme.io",
				SubjectContains: "login",
			},
			want: true,
		},
		{
			name: "one failing filter fails the match",
			cfg: &models.GmailTriggerConfig{
				FromFilter:      "alice",
				SubjectContains: "billing",
			},
			want: false,
		},
		{
			name: "has_attachment exact match",
			cfg:  &models.GmailTriggerConfig{HasAttachment: boolPtr(true)},
			want: true,
		},
		{
			name: "has_attachment mismatch",
			cfg:  &models.GmailTriggerConfig{HasAttachment: boolPtr(false)},
			want: false,
		},
		{
			name: "is_reply mismatch",
			cfg:  &models.GmailTriggerConfig{IsReply: boolPtr(true)},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EmailMatchesTrigger(tt.cfg, email); got != tt.want {
				t.Errorf("EmailMatchesTrigger() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClickUpScopeMatches(t *testing.T) {
	payload := &ClickUpWebhookPayload{
		Event:  "taskUpdated",
		TaskID: "t1",
		ListID: "list-9",
	}

	tests := []struct {
		name string
		cfg  *models.ClickUpTriggerConfig
		want bool
	}{
		{
			name: "unset scope matches",
			cfg:  &models.ClickUpTriggerConfig{WorkspaceID: "ws"},
			want: true,
		},
		{
			name: "list match",
			cfg:  &models.ClickUpTriggerConfig{WorkspaceID: "ws", ListID: "list-9"},
			want: true,
		},
		{
			name: "list mismatch",
			cfg:  &models.ClickUpTriggerConfig{WorkspaceID: "ws", ListID: "list-1"},
			want: false,
		},
		{
			name: "scope set but payload silent on it",
			cfg:  &models.ClickUpTriggerConfig{WorkspaceID: "ws", SpaceID: "space-4"},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClickUpScopeMatches(tt.cfg, payload); got != tt.want {
				t.Errorf("ClickUpScopeMatches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClickUpEventMatches(t *testing.T) {
	// Mapping-based matching.
	if !ClickUpEventMatches(models.TriggerClickUpTaskStatusUpdated, &models.ClickUpTriggerConfig{}, "taskStatusUpdated") {
		t.Error("expected status trigger to match taskStatusUpdated")
	}
	if ClickUpEventMatches(models.TriggerClickUpTaskStatusUpdated, &models.ClickUpTriggerConfig{}, "taskCreated") {
		t.Error("expected status trigger to reject taskCreated")
	}

	// Explicit event set overrides the mapping.
	cfg := &models.ClickUpTriggerConfig{Events: []string{"taskCreated", "taskDeleted"}}
	if !ClickUpEventMatches(models.TriggerClickUpTaskStatusUpdated, cfg, "taskDeleted") {
		t.Error("expected explicit event set to match taskDeleted")
	}
	if ClickUpEventMatches(models.TriggerClickUpTaskStatusUpdated, cfg, "taskStatusUpdated") {
		t.Error("expected explicit event set to override the mapping")
	}
}

func TestClickUpEventsForTrigger(t *testing.T) {
	events := ClickUpEventsForTrigger(models.TriggerClickUpTaskCreated)
	if len(events) != 1 || events[0] != "taskCreated" {
		t.Errorf("unexpected events: %v", events)
	}
	// Unknown types fall back to the broadest event.
	fallback := ClickUpEventsForTrigger("legacy_unknown")
	if len(fallback) != 1 || fallback[0] != "taskUpdated" {
		t.Errorf("unexpected fallback: %v", fallback)
	}
}
