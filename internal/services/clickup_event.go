package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedmorris/CRM-manager/pkg/clickup"
)

// ClickUpWebhookPayload is the provider's webhook body. Before/After in
// history items are loosely typed upstream (strings or objects), so they
// stay as interface{} and are stringified on demand.
type ClickUpWebhookPayload struct {
	Event        string               `json:"event"`
	TaskID       string               `json:"task_id"`
	WebhookID    string               `json:"webhook_id"`
	ListID       string               `json:"list_id,omitempty"`
	FolderID     string               `json:"folder_id,omitempty"`
	SpaceID      string               `json:"space_id,omitempty"`
	HistoryItems []ClickUpHistoryItem `json:"history_items,omitempty"`
}

type ClickUpHistoryItem struct {
	ID     string      `json:"id"`
	Field  string      `json:"field"`
	Date   string      `json:"date"`
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
	User   struct {
		Username string `json:"username"`
	} `json:"user"`
}

// ParseClickUpPayload decodes the raw webhook body.
func ParseClickUpPayload(body []byte) (*ClickUpWebhookPayload, error) {
	var payload ClickUpWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse clickup payload: %w", err)
	}
	if payload.Event == "" {
		return nil, fmt.Errorf("clickup payload missing event")
	}
	return &payload, nil
}

// EventKey derives a deterministic dedup key for this delivery. The first
// history item id is the provider's closest thing to a per-event id; when
// absent the key falls back to a hash of task+event+history dates.
func (p *ClickUpWebhookPayload) EventKey() string {
	if len(p.HistoryItems) > 0 && p.HistoryItems[0].ID != "" {
		return fmt.Sprintf("%s:%s:%s", p.TaskID, p.Event, p.HistoryItems[0].ID)
	}
	h := sha256.New()
	h.Write([]byte(p.TaskID))
	h.Write([]byte(p.Event))
	for _, item := range p.HistoryItems {
		h.Write([]byte(item.Field))
		h.Write([]byte(item.Date))
	}
	return fmt.Sprintf("%s:%s:%s", p.TaskID, p.Event, hex.EncodeToString(h.Sum(nil))[:16])
}

// ChangeSummary renders the payload's history items as human-readable
// lines, newline-joined, for the change_summary template variable.
func (p *ClickUpWebhookPayload) ChangeSummary() string {
	lines := make([]string, 0, len(p.HistoryItems))
	for _, item := range p.HistoryItems {
		field := item.Field
		if field == "" {
			field = p.Event
		}
		user := item.User.Username
		if user == "" {
			user = "unknown"
		}
		before := stringifyHistoryValue(item.Before)
		after := stringifyHistoryValue(item.After)
		switch {
		case before == "" && after == "":
			lines = append(lines, fmt.Sprintf("field %s changed by %s", field, user))
		case before == "":
			lines = append(lines, fmt.Sprintf("field %s set to %q by %s", field, after, user))
		case after == "":
			lines = append(lines, fmt.Sprintf("field %s removed (was %q) by %s", field, before, user))
		default:
			lines = append(lines, fmt.Sprintf("field %s changed from %q to %q by %s", field, before, after, user))
		}
	}
	return strings.Join(lines, "\n")
}

func stringifyHistoryValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]interface{}:
		// Status transitions arrive as {"status": "..."} objects.
		if s, ok := t["status"].(string); ok {
			return s
		}
		if s, ok := t["name"].(string); ok {
			return s
		}
		if s, ok := t["username"].(string); ok {
			return s
		}
		encoded, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// TemplateContext builds the trigger-data object for templates and log
// snapshots. The task snapshot is best effort: a nil task still yields
// the id from the payload.
func (p *ClickUpWebhookPayload) TemplateContext(task *clickup.Task) map[string]interface{} {
	taskCtx := map[string]interface{}{
		"id": p.TaskID,
	}
	if task != nil {
		taskCtx["name"] = task.Name
		taskCtx["description"] = task.Description
		taskCtx["status"] = task.Status.Status
		taskCtx["url"] = task.URL
	}
	user := ""
	if len(p.HistoryItems) > 0 {
		user = p.HistoryItems[0].User.Username
	}
	return map[string]interface{}{
		"task":           taskCtx,
		"event":          p.Event,
		"user":           user,
		"change_summary": p.ChangeSummary(),
	}
}
