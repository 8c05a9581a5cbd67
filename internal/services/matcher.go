package services

import (
	"strings"

	"github.com/jedmorris/CRM-manager/internal/models"
)

// EmailMatchesTrigger evaluates a gmail trigger config against extracted
// email data. All set filter fields are ANDed; an unset field is "don't
// care", so an empty config matches every email.
func EmailMatchesTrigger(cfg *models.GmailTriggerConfig, email *EmailData) bool {
	if cfg == nil {
		return true
	}
	if cfg.FromFilter != "" && !containsFold(email.From, cfg.FromFilter) {
		return false
	}
	if cfg.ToFilter != "" && !containsFold(email.To, cfg.ToFilter) {
		return false
	}
	if cfg.SubjectContains != "" && !containsFold(email.Subject, cfg.SubjectContains) {
		return false
	}
	if cfg.HasAttachment != nil && email.HasAttachment != *cfg.HasAttachment {
		return false
	}
	if cfg.IsReply != nil && email.IsReply != *cfg.IsReply {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// ClickUpScopeMatches re-checks the inbound payload's location against the
// stored scope. Provider-side registration already scopes delivery; this
// is defense in depth against misrouting. Unset scope fields match.
func ClickUpScopeMatches(cfg *models.ClickUpTriggerConfig, payload *ClickUpWebhookPayload) bool {
	if cfg == nil {
		return true
	}
	if cfg.ListID != "" && payload.ListID != "" && payload.ListID != cfg.ListID {
		return false
	}
	if cfg.FolderID != "" && payload.FolderID != "" && payload.FolderID != cfg.FolderID {
		return false
	}
	if cfg.SpaceID != "" && payload.SpaceID != "" && payload.SpaceID != cfg.SpaceID {
		return false
	}
	return true
}

// ClickUpEventMatches tests the inbound event name against the trigger's
// configured event set, falling back to the trigger-type mapping when the
// stored config carries no explicit events.
func ClickUpEventMatches(triggerType string, cfg *models.ClickUpTriggerConfig, event string) bool {
	events := ClickUpEventsForTrigger(triggerType)
	if cfg != nil && len(cfg.Events) > 0 {
		events = cfg.Events
	}
	for _, e := range events {
		if e == event {
			return true
		}
	}
	return false
}

var clickUpTriggerEvents = map[string][]string{
	models.TriggerClickUpTaskCreated:         {"taskCreated"},
	models.TriggerClickUpTaskUpdated:         {"taskUpdated"},
	models.TriggerClickUpTaskDeleted:         {"taskDeleted"},
	models.TriggerClickUpTaskStatusUpdated:   {"taskStatusUpdated"},
	models.TriggerClickUpTaskAssigneeUpdated: {"taskAssigneeUpdated"},
	models.TriggerClickUpTaskCommentPosted:   {"taskCommentPosted"},
}

// ClickUpEventsForTrigger resolves a trigger type to provider event names.
// Unknown trigger types fall back to the broadest "taskUpdated" event;
// creation-time validation rejects unknown types, so the fallback only
// guards rows written before validation existed.
func ClickUpEventsForTrigger(triggerType string) []string {
	if events, ok := clickUpTriggerEvents[triggerType]; ok {
		return events
	}
	return []string{"taskUpdated"}
}
