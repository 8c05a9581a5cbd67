package models

import (
	"time"
)

// Profile stores one user's provider credentials and account identity.
// The engine reads it to authenticate outbound calls; OAuth callback
// flows and token-refresh side effects write it.
type Profile struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`

	ClickUpAccessToken  string `json:"-"`
	ClickUpRefreshToken string `json:"-"`
	ClickUpTeamID       string `json:"clickup_team_id"`
	ClickUpUserID       string `json:"clickup_user_id"`
	ClickUpUsername     string `json:"clickup_username"`

	GoogleAccessToken  string `json:"-"`
	GoogleRefreshToken string `json:"-"`
	GoogleEmail        string `gorm:"index" json:"google_email"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Automation is a user-owned trigger/action rule.
type Automation struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	UserID        string `gorm:"index;not null" json:"user_id"`
	Name          string `gorm:"not null" json:"name"`
	TriggerType   string `gorm:"not null;index" json:"trigger_type"`
	TriggerConfig string `gorm:"type:text" json:"trigger_config"` // JSON, one variant per trigger type
	ActionType    string `gorm:"not null" json:"action_type"`
	ActionConfig  string `gorm:"type:text" json:"action_config"` // JSON, one variant per action type

	// WebhookID addresses this automation's inbound callback. Generated at
	// creation, globally unique, immutable for the automation's lifetime.
	WebhookID     string `gorm:"uniqueIndex;not null" json:"webhook_id"`
	WebhookSecret string `gorm:"not null" json:"-"`

	// Provider-side subscription state. ClickUpWebhookID is set only for
	// clickup triggers, the gmail cursor pair only for gmail triggers.
	ClickUpWebhookID     string     `json:"clickup_webhook_id,omitempty"`
	GmailHistoryID       uint64     `json:"gmail_history_id,omitempty"`
	GmailWatchExpiration *time.Time `json:"gmail_watch_expiration,omitempty"`

	Status    string     `gorm:"default:'active';index" json:"status"` // active, paused, error
	RunCount  int        `gorm:"default:0" json:"run_count"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AutomationLog is an append-only execution record, one per dispatch attempt.
type AutomationLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AutomationID uint      `gorm:"index;not null" json:"automation_id"`
	Status       string    `gorm:"index" json:"status"` // success, error, skipped
	TriggerData  string    `gorm:"type:text" json:"trigger_data"`
	Result       string    `gorm:"type:text" json:"result"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`

	Automation Automation `gorm:"foreignKey:AutomationID" json:"automation,omitempty"`
}

// ProcessedEvent is the dedup ledger guarding against provider redelivery.
// Rows are pruned after a short retention window by the renewal sweep.
type ProcessedEvent struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AutomationID uint      `gorm:"uniqueIndex:idx_processed_automation_event" json:"automation_id"`
	EventKey     string    `gorm:"uniqueIndex:idx_processed_automation_event;size:255" json:"event_key"`
	ProcessedAt  time.Time `json:"processed_at"`
}
