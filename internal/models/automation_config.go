package models

import (
	"encoding/json"
	"fmt"
)

// Trigger types.
const (
	TriggerGmailEmail                 = "gmail_email"
	TriggerGmailLabel                 = "gmail_label"
	TriggerSchedule                   = "schedule"
	TriggerClickUpTaskCreated         = "clickup_task_created"
	TriggerClickUpTaskUpdated         = "clickup_task_updated"
	TriggerClickUpTaskDeleted         = "clickup_task_deleted"
	TriggerClickUpTaskStatusUpdated   = "clickup_task_status_updated"
	TriggerClickUpTaskAssigneeUpdated = "clickup_task_assignee_updated"
	TriggerClickUpTaskCommentPosted   = "clickup_task_comment_posted"
)

// Action types.
const (
	ActionClickUpCreateTask = "clickup_create_task"
	ActionClickUpAddComment = "clickup_add_comment"
	ActionSendEmail         = "send_email"
)

// Automation statuses.
const (
	StatusActive = "active"
	StatusPaused = "paused"
	StatusError  = "error"
)

// GmailTriggerConfig filters inbound email. All set fields are ANDed;
// an unset field is "don't care".
type GmailTriggerConfig struct {
	FromFilter      string `json:"from_filter,omitempty"`
	ToFilter        string `json:"to_filter,omitempty"`
	SubjectContains string `json:"subject_contains,omitempty"`
	HasAttachment   *bool  `json:"has_attachment,omitempty"`
	IsReply         *bool  `json:"is_reply,omitempty"`
	LabelID         string `json:"label_id,omitempty"`
}

// ClickUpTriggerConfig scopes a ClickUp webhook registration. WorkspaceID
// is required; the narrowest of list/folder/space wins. Events holds the
// resolved provider event names.
type ClickUpTriggerConfig struct {
	WorkspaceID string   `json:"workspace_id"`
	SpaceID     string   `json:"space_id,omitempty"`
	FolderID    string   `json:"folder_id,omitempty"`
	ListID      string   `json:"list_id,omitempty"`
	Events      []string `json:"events,omitempty"`
}

// ScheduleTriggerConfig holds a cron expression for schedule triggers.
type ScheduleTriggerConfig struct {
	Cron string `json:"cron"`
}

// SendEmailActionConfig holds templated email fields.
type SendEmailActionConfig struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// CreateTaskActionConfig holds templated ClickUp task fields.
type CreateTaskActionConfig struct {
	ListID      string   `json:"list_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    int      `json:"priority,omitempty"`
	Assignees   []string `json:"assignees,omitempty"`
}

// AddCommentActionConfig holds a templated comment. TaskID defaults to the
// triggering task when left empty.
type AddCommentActionConfig struct {
	TaskID  string `json:"task_id,omitempty"`
	Comment string `json:"comment"`
}

// IsGmailTrigger reports whether the trigger type belongs to the gmail family.
func IsGmailTrigger(triggerType string) bool {
	return triggerType == TriggerGmailEmail || triggerType == TriggerGmailLabel
}

// IsClickUpTrigger reports whether the trigger type belongs to the clickup family.
func IsClickUpTrigger(triggerType string) bool {
	switch triggerType {
	case TriggerClickUpTaskCreated, TriggerClickUpTaskUpdated, TriggerClickUpTaskDeleted,
		TriggerClickUpTaskStatusUpdated, TriggerClickUpTaskAssigneeUpdated, TriggerClickUpTaskCommentPosted:
		return true
	}
	return false
}

// IsKnownTriggerType reports whether the trigger type is recognized at all.
func IsKnownTriggerType(triggerType string) bool {
	return triggerType == TriggerSchedule || IsGmailTrigger(triggerType) || IsClickUpTrigger(triggerType)
}

// ParseTriggerConfig validates raw JSON into the variant matching the
// trigger type. Validation happens at the storage boundary so the engine
// never casts loosely-typed data at dispatch time.
func ParseTriggerConfig(triggerType string, raw []byte) (interface{}, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch {
	case IsGmailTrigger(triggerType):
		var cfg GmailTriggerConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("invalid gmail trigger config: %w", err)
		}
		return &cfg, nil
	case IsClickUpTrigger(triggerType):
		var cfg ClickUpTriggerConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("invalid clickup trigger config: %w", err)
		}
		if cfg.WorkspaceID == "" {
			return nil, fmt.Errorf("clickup trigger requires workspace_id")
		}
		return &cfg, nil
	case triggerType == TriggerSchedule:
		var cfg ScheduleTriggerConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("invalid schedule trigger config: %w", err)
		}
		if cfg.Cron == "" {
			return nil, fmt.Errorf("schedule trigger requires cron")
		}
		return &cfg, nil
	default:
		return nil, fmt.Errorf("unknown trigger type: %s", triggerType)
	}
}

// ParseActionConfig validates raw JSON into the variant matching the action type.
func ParseActionConfig(actionType string, raw []byte) (interface{}, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch actionType {
	case ActionSendEmail:
		var cfg SendEmailActionConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("invalid send_email action config: %w", err)
		}
		if cfg.To == "" {
			return nil, fmt.Errorf("send_email action requires to")
		}
		return &cfg, nil
	case ActionClickUpCreateTask:
		var cfg CreateTaskActionConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("invalid clickup_create_task action config: %w", err)
		}
		if cfg.ListID == "" {
			return nil, fmt.Errorf("clickup_create_task action requires list_id")
		}
		if cfg.Title == "" {
			return nil, fmt.Errorf("clickup_create_task action requires title")
		}
		return &cfg, nil
	case ActionClickUpAddComment:
		var cfg AddCommentActionConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("invalid clickup_add_comment action config: %w", err)
		}
		if cfg.Comment == "" {
			return nil, fmt.Errorf("clickup_add_comment action requires comment")
		}
		return &cfg, nil
	default:
		return nil, fmt.Errorf("unknown action type: %s", actionType)
	}
}

// GmailTrigger decodes the stored trigger config as the gmail variant.
func (a *Automation) GmailTrigger() (*GmailTriggerConfig, error) {
	if !IsGmailTrigger(a.TriggerType) {
		return nil, fmt.Errorf("automation %d is not a gmail trigger", a.ID)
	}
	cfg, err := ParseTriggerConfig(a.TriggerType, []byte(a.TriggerConfig))
	if err != nil {
		return nil, err
	}
	return cfg.(*GmailTriggerConfig), nil
}

// ClickUpTrigger decodes the stored trigger config as the clickup variant.
func (a *Automation) ClickUpTrigger() (*ClickUpTriggerConfig, error) {
	if !IsClickUpTrigger(a.TriggerType) {
		return nil, fmt.Errorf("automation %d is not a clickup trigger", a.ID)
	}
	cfg, err := ParseTriggerConfig(a.TriggerType, []byte(a.TriggerConfig))
	if err != nil {
		return nil, err
	}
	return cfg.(*ClickUpTriggerConfig), nil
}
