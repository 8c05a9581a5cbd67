package clickup

import (
	"fmt"
	"net/http"
	"time"
)

// Config holds client settings. Transport is optional and lets the caller
// inject an instrumented http.RoundTripper.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	Transport    http.RoundTripper
}

func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://api.clickup.com/api/v2",
		Timeout: 30 * time.Second,
	}
}

// APIError is a non-2xx response from the ClickUp API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clickup API error [%d]: %s", e.StatusCode, e.Body)
}

// IsAuthError reports whether err is an authentication failure (401).
func IsAuthError(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusUnauthorized
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

type AuthorizedUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TaskStatus struct {
	Status string `json:"status"`
}

type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	URL         string     `json:"url,omitempty"`
}

type CreateTaskRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	Assignees   []int  `json:"assignees,omitempty"`
}

type Comment struct {
	ID string `json:"id"`
}

type AddCommentRequest struct {
	CommentText string `json:"comment_text"`
}

// Webhook is a provider-side webhook registration.
type Webhook struct {
	ID       string   `json:"id"`
	Endpoint string   `json:"endpoint"`
	Events   []string `json:"events"`
}

// CreateWebhookRequest scopes a webhook registration. Leaving all of
// space/folder/list empty registers workspace-wide.
type CreateWebhookRequest struct {
	Endpoint string   `json:"endpoint"`
	Events   []string `json:"events"`
	SpaceID  string   `json:"space_id,omitempty"`
	FolderID string   `json:"folder_id,omitempty"`
	ListID   string   `json:"list_id,omitempty"`
}
