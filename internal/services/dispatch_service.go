package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jedmorris/CRM-manager/internal/metrics"
	"github.com/jedmorris/CRM-manager/internal/models"
	"github.com/jedmorris/CRM-manager/pkg/clickup"
	"github.com/jedmorris/CRM-manager/pkg/gmailapi"
)

// Dispatch outcome statuses returned to the ingestion boundary. All of
// them are benign terminal states; none map to a 5xx.
const (
	OutcomeNotFound  = "not_found"
	OutcomeInactive  = "inactive"
	OutcomeFiltered  = "filtered"
	OutcomeDuplicate = "duplicate"
	OutcomeProcessed = "processed"
)

// DispatchOutcome reports which terminal state a direct webhook reached.
type DispatchOutcome struct {
	Status       string `json:"status"`
	AutomationID uint   `json:"automation_id,omitempty"`
	Result       string `json:"result,omitempty"`
	Error        string `json:"error,omitempty"`
}

// PushEnvelope is the decoded Gmail Pub/Sub notification payload.
type PushEnvelope struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// NotificationSummary aggregates one Gmail push notification's processing.
type NotificationSummary struct {
	Status      string `json:"status"` // ignored, processed
	Automations int    `json:"automations"`
	Dispatched  int    `json:"dispatched"`
	Skipped     int    `json:"skipped"`
	Errors      int    `json:"errors"`
}

// DispatchService is the event ingestion orchestrator: it resolves inbound
// signals to stored automations, drives matching, rendering, and action
// execution, and records the outcome.
type DispatchService struct {
	db          *gorm.DB
	logger      *logrus.Logger
	clickup     *clickup.Client
	gmail       *gmailapi.Client
	automations *AutomationService
	feed        *FeedHub
}

func NewDispatchService(db *gorm.DB, logger *logrus.Logger, clickupClient *clickup.Client, gmailClient *gmailapi.Client, automations *AutomationService) *DispatchService {
	if logger == nil {
		logger = logrus.New()
	}
	return &DispatchService{
		db:          db,
		logger:      logger,
		clickup:     clickupClient,
		gmail:       gmailClient,
		automations: automations,
	}
}

// SetFeedHub wires the optional activity feed.
func (s *DispatchService) SetFeedHub(feed *FeedHub) {
	s.feed = feed
}

// HandleDirectWebhook processes a provider webhook call addressed by
// webhook_id. Resolution, scope, and event filters short-circuit without a
// log write; once the action stage is reached the attempt is always logged.
func (s *DispatchService) HandleDirectWebhook(ctx context.Context, webhookID string, body []byte) *DispatchOutcome {
	var automation models.Automation
	if err := s.db.WithContext(ctx).Where("webhook_id = ?", webhookID).First(&automation).Error; err != nil {
		metrics.IncDispatch(OutcomeNotFound)
		return &DispatchOutcome{Status: OutcomeNotFound}
	}

	if automation.Status != models.StatusActive {
		metrics.IncDispatch(OutcomeInactive)
		return &DispatchOutcome{Status: OutcomeInactive, AutomationID: automation.ID}
	}

	payload, err := ParseClickUpPayload(body)
	if err != nil {
		s.logger.Warnf("webhook %s: %v", webhookID, err)
		metrics.IncDispatch(OutcomeFiltered)
		return &DispatchOutcome{Status: OutcomeFiltered, AutomationID: automation.ID}
	}

	if models.IsClickUpTrigger(automation.TriggerType) {
		cfg, err := automation.ClickUpTrigger()
		if err != nil {
			s.logger.Warnf("automation %d has invalid trigger config: %v", automation.ID, err)
			metrics.IncDispatch(OutcomeFiltered)
			return &DispatchOutcome{Status: OutcomeFiltered, AutomationID: automation.ID}
		}
		if !ClickUpScopeMatches(cfg, payload) || !ClickUpEventMatches(automation.TriggerType, cfg, payload.Event) {
			metrics.IncDispatch(OutcomeFiltered)
			return &DispatchOutcome{Status: OutcomeFiltered, AutomationID: automation.ID}
		}
	}

	fresh, err := s.markProcessed(ctx, automation.ID, payload.EventKey())
	if err != nil {
		s.logger.Warnf("dedup check for automation %d: %v", automation.ID, err)
	} else if !fresh {
		metrics.IncDispatch(OutcomeDuplicate)
		return &DispatchOutcome{Status: OutcomeDuplicate, AutomationID: automation.ID}
	}

	profile := s.profileFor(ctx, automation.UserID)

	// Best-effort task snapshot enriches the template context; the payload
	// alone still carries the task id.
	var task *clickup.Task
	if profile != nil && profile.ClickUpAccessToken != "" && payload.TaskID != "" {
		if fetched, err := s.clickup.GetTask(ctx, profile.ClickUpAccessToken, payload.TaskID); err != nil {
			s.logger.Warnf("fetch task %s: %v", payload.TaskID, err)
		} else {
			task = fetched
		}
	}

	data := payload.TemplateContext(task)
	outcome := s.dispatch(ctx, &automation, profile, data)
	return outcome
}

// HandleGmailNotification processes a decoded Pub/Sub envelope: it resolves
// the owning user, walks incremental inbox history for each of that user's
// active gmail automations, and dispatches matched messages. Failures are
// isolated per message and per automation.
func (s *DispatchService) HandleGmailNotification(ctx context.Context, envelope *PushEnvelope) *NotificationSummary {
	summary := &NotificationSummary{Status: "ignored"}

	var profile models.Profile
	if err := s.db.WithContext(ctx).Where("google_email = ?", envelope.EmailAddress).First(&profile).Error; err != nil {
		s.logger.Debugf("gmail notification for unknown address %s", envelope.EmailAddress)
		return summary
	}

	var automations []models.Automation
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND trigger_type IN ?",
			profile.UserID, models.StatusActive,
			[]string{models.TriggerGmailEmail, models.TriggerGmailLabel}).
		Find(&automations).Error; err != nil {
		s.logger.Warnf("load gmail automations for user %s: %v", profile.UserID, err)
		return summary
	}
	if len(automations) == 0 {
		return summary
	}

	summary.Status = "processed"
	summary.Automations = len(automations)

	for i := range automations {
		s.processGmailAutomation(ctx, &automations[i], &profile, envelope, summary)
	}
	return summary
}

func (s *DispatchService) processGmailAutomation(ctx context.Context, automation *models.Automation, profile *models.Profile, envelope *PushEnvelope, summary *NotificationSummary) {
	startedAt := time.Now()

	if profile.GoogleAccessToken == "" {
		// Missing credentials are a hard stop for this one automation.
		s.automations.RecordRun(ctx, automation.ID, "error", nil, "", "google account not connected", startedAt)
		summary.Errors++
		return
	}

	triggerCfg, err := automation.GmailTrigger()
	if err != nil {
		s.logger.Warnf("automation %d has invalid trigger config: %v", automation.ID, err)
		summary.Errors++
		return
	}

	startHistoryID := automation.GmailHistoryID
	if envelope.HistoryID > startHistoryID {
		startHistoryID = envelope.HistoryID
	}
	if startHistoryID == 0 {
		s.logger.Warnf("automation %d has no gmail history cursor", automation.ID)
		summary.Errors++
		return
	}

	var history *gmailapi.HistoryResponse
	err = s.withGmailToken(ctx, profile, func(token string) error {
		var listErr error
		history, listErr = s.gmail.ListHistory(ctx, token, startHistoryID)
		return listErr
	})
	if err != nil {
		s.logger.Warnf("list history for automation %d: %v", automation.ID, err)
		summary.Errors++
		return
	}

	// Advance the cursor before touching any message. A crash mid-batch
	// then re-delivers nothing rather than everything: at-most-once bias.
	if newCursor, parseErr := strconv.ParseUint(history.HistoryID, 10, 64); parseErr == nil && newCursor > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Automation{}).
			Where("id = ? AND gmail_history_id < ?", automation.ID, newCursor).
			Update("gmail_history_id", newCursor).Error; err != nil {
			s.logger.Warnf("advance history cursor for automation %d: %v", automation.ID, err)
		}
	}

	seen := make(map[string]bool)
	for _, entry := range history.History {
		for _, added := range entry.MessagesAdded {
			messageID := added.Message.ID
			if messageID == "" || seen[messageID] {
				continue
			}
			seen[messageID] = true
			s.processGmailMessage(ctx, automation, profile, triggerCfg, messageID, summary)
		}
	}
}

func (s *DispatchService) processGmailMessage(ctx context.Context, automation *models.Automation, profile *models.Profile, triggerCfg *models.GmailTriggerConfig, messageID string, summary *NotificationSummary) {
	fresh, err := s.markProcessed(ctx, automation.ID, "gmail:"+messageID)
	if err != nil {
		s.logger.Warnf("dedup check for automation %d message %s: %v", automation.ID, messageID, err)
	} else if !fresh {
		summary.Skipped++
		return
	}

	var msg *gmailapi.Message
	err = s.withGmailToken(ctx, profile, func(token string) error {
		var getErr error
		msg, getErr = s.gmail.GetMessage(ctx, token, messageID)
		return getErr
	})
	if err != nil {
		s.logger.Warnf("fetch message %s for automation %d: %v", messageID, automation.ID, err)
		summary.Errors++
		return
	}

	email := ExtractEmailData(msg)
	if !EmailMatchesTrigger(triggerCfg, email) {
		summary.Skipped++
		metrics.IncDispatch(OutcomeFiltered)
		return
	}

	outcome := s.dispatch(ctx, automation, profile, email.TemplateContext())
	if outcome.Error != "" {
		summary.Errors++
	} else {
		summary.Dispatched++
	}
}

// dispatch runs the configured action and always records the attempt.
func (s *DispatchService) dispatch(ctx context.Context, automation *models.Automation, profile *models.Profile, data map[string]interface{}) *DispatchOutcome {
	startedAt := time.Now()
	result, err := s.executeAction(ctx, automation, profile, data)

	outcome := &DispatchOutcome{Status: OutcomeProcessed, AutomationID: automation.ID}
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
		outcome.Error = errMsg
	} else {
		outcome.Result = result
	}

	s.automations.RecordRun(ctx, automation.ID, status, data, result, errMsg, startedAt)
	metrics.IncDispatch(status)

	if s.feed != nil {
		s.feed.Broadcast(FeedEvent{
			Type:         "automation_run",
			UserID:       automation.UserID,
			AutomationID: automation.ID,
			Name:         automation.Name,
			Status:       status,
			Message:      firstNonEmpty(errMsg, result),
			Timestamp:    time.Now(),
		})
	}
	return outcome
}

// executeAction renders the action config's templates against the trigger
// data and performs the side effect. Unknown action types and missing
// tokens are configuration errors, surfaced immediately without retry.
func (s *DispatchService) executeAction(ctx context.Context, automation *models.Automation, profile *models.Profile, data map[string]interface{}) (string, error) {
	actionCfg, err := models.ParseActionConfig(automation.ActionType, []byte(automation.ActionConfig))
	if err != nil {
		return "", err
	}

	switch cfg := actionCfg.(type) {
	case *models.SendEmailActionConfig:
		if profile == nil || profile.GoogleAccessToken == "" {
			return "", fmt.Errorf("google account not connected")
		}
		to := ProcessTemplate(cfg.To, data)
		subject := ProcessTemplate(cfg.Subject, data)
		body := ProcessTemplate(cfg.Body, data)
		raw := encodeRawEmail(to, subject, body)
		err := s.withGmailToken(ctx, profile, func(token string) error {
			_, sendErr := s.gmail.SendMessage(ctx, token, raw)
			return sendErr
		})
		if err != nil {
			return "", fmt.Errorf("send email: %w", err)
		}
		return fmt.Sprintf("sent email to %s", to), nil

	case *models.CreateTaskActionConfig:
		if profile == nil || profile.ClickUpAccessToken == "" {
			return "", fmt.Errorf("clickup account not connected")
		}
		req := &clickup.CreateTaskRequest{
			Name:        ProcessTemplate(cfg.Title, data),
			Description: ProcessTemplate(cfg.Description, data),
			Priority:    cfg.Priority,
		}
		for _, assignee := range cfg.Assignees {
			if id, err := strconv.Atoi(assignee); err == nil {
				req.Assignees = append(req.Assignees, id)
			}
		}
		task, err := s.clickup.CreateTask(ctx, profile.ClickUpAccessToken, cfg.ListID, req)
		if err != nil {
			return "", fmt.Errorf("create task: %w", err)
		}
		return fmt.Sprintf("created task %s", task.ID), nil

	case *models.AddCommentActionConfig:
		if profile == nil || profile.ClickUpAccessToken == "" {
			return "", fmt.Errorf("clickup account not connected")
		}
		taskID := ProcessTemplate(cfg.TaskID, data)
		if taskID == "" {
			taskID = taskIDFromContext(data)
		}
		if taskID == "" {
			return "", fmt.Errorf("no task id available for comment")
		}
		comment := ProcessTemplate(cfg.Comment, data)
		if _, err := s.clickup.AddComment(ctx, profile.ClickUpAccessToken, taskID, comment); err != nil {
			return "", fmt.Errorf("add comment: %w", err)
		}
		return fmt.Sprintf("commented on task %s", taskID), nil

	default:
		return "", fmt.Errorf("unsupported action type: %s", automation.ActionType)
	}
}

// withGmailToken runs fn with the profile's access token, refreshing and
// retrying exactly once on an authentication failure. The refreshed token
// is persisted; last-writer-wins is acceptable since tokens are
// re-derivable from the refresh token.
func (s *DispatchService) withGmailToken(ctx context.Context, profile *models.Profile, fn func(token string) error) error {
	err := fn(profile.GoogleAccessToken)
	if err == nil || !gmailapi.IsAuthError(err) || profile.GoogleRefreshToken == "" {
		return err
	}
	token, refreshErr := s.gmail.RefreshAccessToken(ctx, profile.GoogleRefreshToken)
	if refreshErr != nil {
		return fmt.Errorf("refresh google token: %w", refreshErr)
	}
	profile.GoogleAccessToken = token.AccessToken
	if err := s.db.WithContext(ctx).Model(&models.Profile{}).
		Where("user_id = ?", profile.UserID).
		Update("google_access_token", token.AccessToken).Error; err != nil {
		s.logger.Warnf("persist refreshed google token: %v", err)
	}
	return fn(token.AccessToken)
}

// markProcessed inserts into the dedup ledger; a conflicting row means the
// event was already handled.
func (s *DispatchService) markProcessed(ctx context.Context, automationID uint, eventKey string) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ProcessedEvent{
			AutomationID: automationID,
			EventKey:     eventKey,
			ProcessedAt:  time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *DispatchService) profileFor(ctx context.Context, userID string) *models.Profile {
	var profile models.Profile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		s.logger.Warnf("load profile for user %s: %v", userID, err)
		return nil
	}
	return &profile
}

func encodeRawEmail(to, subject, body string) string {
	mime := fmt.Sprintf("To: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body)
	return base64.URLEncoding.EncodeToString([]byte(mime))
}

func taskIDFromContext(data map[string]interface{}) string {
	task, ok := data["task"].(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := task["id"].(string)
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
