package clickup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

// Client is a token-per-call ClickUp REST client. Access tokens belong to
// individual user profiles, so every method takes the token explicitly.
type Client struct {
	baseURL    string
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
		baseURL: config.BaseURL,
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
		req.Header.Set("Authorization", accessToken)
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

	c.logger.Debugf("ClickUp API Request: %s %s", req.Method, req.URL.String())
	c.logger.Debugf("ClickUp API Response: %d %s", resp.StatusCode, string(body))

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

// ExchangeCode swaps an OAuth authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}
	endpoint := fmt.Sprintf("/oauth/token?client_id=%s&client_secret=%s&code=%s",
		url.QueryEscape(c.config.ClientID), url.QueryEscape(c.config.ClientSecret), url.QueryEscape(code))

	var response TokenResponse
	if err := c.do(ctx, http.MethodPost, endpoint, "", nil, &response); err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return &response, nil
}

// GetAuthorizedUser returns the user the token belongs to.
func (c *Client) GetAuthorizedUser(ctx context.Context, accessToken string) (*AuthorizedUser, error) {
	var response struct {
		User AuthorizedUser `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &response); err != nil {
		return nil, fmt.Errorf("get authorized user: %w", err)
	}
	return &response.User, nil
}

// GetTeams lists the workspaces visible to the token.
func (c *Client) GetTeams(ctx context.Context, accessToken string) ([]Team, error) {
	var response struct {
		Teams []Team `json:"teams"`
	}
	if err := c.do(ctx, http.MethodGet, "/team", accessToken, nil, &response); err != nil {
		return nil, fmt.Errorf("get teams: %w", err)
	}
	return response.Teams, nil
}

// GetTask fetches one task by id.
func (c *Client) GetTask(ctx context.Context, accessToken, taskID string) (*Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID is required")
	}
	var task Task
	if err := c.do(ctx, http.MethodGet, "/task/"+url.PathEscape(taskID), accessToken, nil, &task); err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// CreateTask creates a task in the given list.
func (c *Client) CreateTask(ctx context.Context, accessToken, listID string, req *CreateTaskRequest) (*Task, error) {
	if listID == "" {
		return nil, fmt.Errorf("list ID is required")
	}
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("task name is required")
	}
	var task Task
	endpoint := fmt.Sprintf("/list/%s/task", url.PathEscape(listID))
	if err := c.do(ctx, http.MethodPost, endpoint, accessToken, req, &task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &task, nil
}

// AddComment posts a comment on a task.
func (c *Client) AddComment(ctx context.Context, accessToken, taskID, text string) (*Comment, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID is required")
	}
	if text == "" {
		return nil, fmt.Errorf("comment text is required")
	}
	var response struct {
		ID string `json:"id"`
	}
	endpoint := fmt.Sprintf("/task/%s/comment", url.PathEscape(taskID))
	if err := c.do(ctx, http.MethodPost, endpoint, accessToken, &AddCommentRequest{CommentText: text}, &response); err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	return &Comment{ID: response.ID}, nil
}

// CreateWebhook registers a webhook on the workspace, scoped by the request.
func (c *Client) CreateWebhook(ctx context.Context, accessToken, teamID string, req *CreateWebhookRequest) (*Webhook, error) {
	if teamID == "" {
		return nil, fmt.Errorf("team ID is required")
	}
	if req == nil || req.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	var response struct {
		ID      string  `json:"id"`
		Webhook Webhook `json:"webhook"`
	}
	endpoint := fmt.Sprintf("/team/%s/webhook", url.PathEscape(teamID))
	if err := c.do(ctx, http.MethodPost, endpoint, accessToken, req, &response); err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	if response.Webhook.ID == "" {
		response.Webhook.ID = response.ID
	}
	return &response.Webhook, nil
}

// ListWebhooks lists the workspace's webhook registrations.
func (c *Client) ListWebhooks(ctx context.Context, accessToken, teamID string) ([]Webhook, error) {
	if teamID == "" {
		return nil, fmt.Errorf("team ID is required")
	}
	var response struct {
		Webhooks []Webhook `json:"webhooks"`
	}
	endpoint := fmt.Sprintf("/team/%s/webhook", url.PathEscape(teamID))
	if err := c.do(ctx, http.MethodGet, endpoint, accessToken, nil, &response); err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return response.Webhooks, nil
}

// DeleteWebhook removes a provider webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context, accessToken, webhookID string) error {
	if webhookID == "" {
		return fmt.Errorf("webhook ID is required")
	}
	if err := c.do(ctx, http.MethodDelete, "/webhook/"+url.PathEscape(webhookID), accessToken, nil, nil); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}
