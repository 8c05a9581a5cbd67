package gmailapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Client is a token-per-call Gmail REST client. All message/watch/history
// calls operate on the "me" mailbox of whichever token is supplied.
type Client struct {
	baseURL    string
	tokenURL   string
	httpClient *http.Client
	logger     *logrus.Logger
	config     *Config
}

func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL:  config.BaseURL,
		tokenURL: config.TokenURL,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		logger: logger,
		config: config,
	}
}

func (c *Client) createRequest(ctx context.Context, method, endpoint, accessToken string, body interface{}) (*http.Request, error) {
	u := fmt.Sprintf("%s%s", c.baseURL, endpoint)

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return req, nil
}

func (c *Client) doRequest(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debugf("Gmail API Request: %s %s", req.Method, req.URL.String())
	c.logger.Debugf("Gmail API Response: %d %s", resp.StatusCode, string(body))

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint, accessToken string, body, result interface{}) error {
	req, err := c.createRequest(ctx, method, endpoint, accessToken, body)
	if err != nil {
		return err
	}
	return c.doRequest(req, result)
}

// RefreshAccessToken swaps a refresh token for a fresh access token.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}
	form := url.Values{
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var response TokenResponse
	if err := c.doRequest(req, &response); err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}
	if response.AccessToken == "" {
		return nil, fmt.Errorf("refresh access token: empty access_token in response")
	}
	return &response, nil
}

// GetProfile returns the mailbox address and current history id.
func (c *Client) GetProfile(ctx context.Context, accessToken string) (*UserProfile, error) {
	var profile UserProfile
	if err := c.do(ctx, http.MethodGet, "/users/me/profile", accessToken, nil, &profile); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &profile, nil
}

// Watch registers push delivery of inbox changes to the given Pub/Sub topic.
func (c *Client) Watch(ctx context.Context, accessToken, topicName string) (*WatchResponse, error) {
	if topicName == "" {
		return nil, fmt.Errorf("topic name is required")
	}
	var response WatchResponse
	req := &WatchRequest{TopicName: topicName, LabelIDs: []string{"INBOX"}}
	if err := c.do(ctx, http.MethodPost, "/users/me/watch", accessToken, req, &response); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	return &response, nil
}

// Stop unregisters push delivery for the mailbox.
func (c *Client) Stop(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/users/me/stop", accessToken, nil, nil); err != nil {
		return fmt.Errorf("stop watch: %w", err)
	}
	return nil
}

// ListHistory lists inbox message-added events after startHistoryID,
// following pagination to exhaustion.
func (c *Client) ListHistory(ctx context.Context, accessToken string, startHistoryID uint64) (*HistoryResponse, error) {
	if startHistoryID == 0 {
		return nil, fmt.Errorf("start history ID is required")
	}
	merged := &HistoryResponse{}
	pageToken := ""
	for {
		endpoint := fmt.Sprintf("/users/me/history?startHistoryId=%d&historyTypes=messageAdded&labelId=INBOX", startHistoryID)
		if pageToken != "" {
			endpoint += "&pageToken=" + url.QueryEscape(pageToken)
		}
		var page HistoryResponse
		if err := c.do(ctx, http.MethodGet, endpoint, accessToken, nil, &page); err != nil {
			return nil, fmt.Errorf("list history: %w", err)
		}
		merged.History = append(merged.History, page.History...)
		merged.HistoryID = page.HistoryID
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	return merged, nil
}

// GetMessage fetches a full message including MIME parts.
func (c *Client) GetMessage(ctx context.Context, accessToken, messageID string) (*Message, error) {
	if messageID == "" {
		return nil, fmt.Errorf("message ID is required")
	}
	var msg Message
	endpoint := fmt.Sprintf("/users/me/messages/%s?format=full", url.PathEscape(messageID))
	if err := c.do(ctx, http.MethodGet, endpoint, accessToken, nil, &msg); err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}

// SendMessage sends a raw base64url-encoded MIME message.
func (c *Client) SendMessage(ctx context.Context, accessToken, raw string) (*Message, error) {
	if raw == "" {
		return nil, fmt.Errorf("raw message is required")
	}
	var msg Message
	if err := c.do(ctx, http.MethodPost, "/users/me/messages/send", accessToken, &SendMessageRequest{Raw: raw}, &msg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &msg, nil
}
