package gmailapi

import (
	"fmt"
	"net/http"
	"time"
)

// Config holds client settings. Transport is optional and lets the caller
// inject an instrumented http.RoundTripper.
type Config struct {
	BaseURL      string // Gmail REST base, e.g. https://gmail.googleapis.com/gmail/v1
	TokenURL     string // OAuth token endpoint for refresh
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	Transport    http.RoundTripper
}

func DefaultConfig() *Config {
	return &Config{
		BaseURL:  "https://gmail.googleapis.com/gmail/v1",
		TokenURL: "https://oauth2.googleapis.com/token",
		Timeout:  30 * time.Second,
	}
}

// APIError is a non-2xx response from the Gmail API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gmail API error [%d]: %s", e.StatusCode, e.Body)
}

// IsAuthError reports whether err is an authentication failure (401).
func IsAuthError(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusUnauthorized
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type UserProfile struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    string `json:"historyId"`
}

// WatchResponse is the result of a watch registration. Both fields arrive
// as decimal strings; Expiration is epoch milliseconds.
type WatchResponse struct {
	HistoryID  string `json:"historyId"`
	Expiration string `json:"expiration"`
}

type WatchRequest struct {
	TopicName string   `json:"topicName"`
	LabelIDs  []string `json:"labelIds,omitempty"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type MessagePartBody struct {
	Data         string `json:"data,omitempty"` // base64url
	Size         int    `json:"size"`
	AttachmentID string `json:"attachmentId,omitempty"`
}

type MessagePart struct {
	MimeType string          `json:"mimeType"`
	Filename string          `json:"filename,omitempty"`
	Headers  []Header        `json:"headers,omitempty"`
	Body     MessagePartBody `json:"body"`
	Parts    []*MessagePart  `json:"parts,omitempty"`
}

type Message struct {
	ID        string       `json:"id"`
	ThreadID  string       `json:"threadId"`
	LabelIDs  []string     `json:"labelIds,omitempty"`
	Snippet   string       `json:"snippet,omitempty"`
	HistoryID string       `json:"historyId,omitempty"`
	Payload   *MessagePart `json:"payload,omitempty"`
}

type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type HistoryMessageAdded struct {
	Message MessageRef `json:"message"`
}

type History struct {
	ID            string                `json:"id"`
	MessagesAdded []HistoryMessageAdded `json:"messagesAdded,omitempty"`
}

type HistoryResponse struct {
	History       []History `json:"history,omitempty"`
	HistoryID     string    `json:"historyId"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}

type SendMessageRequest struct {
	Raw string `json:"raw"` // base64url MIME
}
