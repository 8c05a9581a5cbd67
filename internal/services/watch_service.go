package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/jedmorris/CRM-manager/internal/config"
	"github.com/jedmorris/CRM-manager/internal/models"
	"github.com/jedmorris/CRM-manager/pkg/clickup"
	"github.com/jedmorris/CRM-manager/pkg/gmailapi"
)

// WatchService establishes, renews, and tears down the provider-side
// subscriptions that route inbound events to this system, and persists
// the cursor/expiration state needed to resume processing.
type WatchService struct {
	db      *gorm.DB
	logger  *logrus.Logger
	gmail   *gmailapi.Client
	clickup *clickup.Client
	cfg     *config.Config
}

func NewWatchService(db *gorm.DB, logger *logrus.Logger, gmailClient *gmailapi.Client, clickupClient *clickup.Client, cfg *config.Config) *WatchService {
	if logger == nil {
		logger = logrus.New()
	}
	return &WatchService{db: db, logger: logger, gmail: gmailClient, clickup: clickupClient, cfg: cfg}
}

// RenewalResult is the per-automation outcome of a renewal sweep.
type RenewalResult struct {
	AutomationID uint   `json:"automation_id"`
	Name         string `json:"name"`
	Status       string `json:"status"` // renewed, failed
	Error        string `json:"error,omitempty"`
}

// RenewalSummary aggregates a sweep.
type RenewalSummary struct {
	Renewed int             `json:"renewed"`
	Failed  int             `json:"failed"`
	Results []RenewalResult `json:"results"`
}

// SetupGmailWatch registers a push watch on the inbox and persists the
// returned history cursor and expiration onto the automation. On a 401
// with a refresh token available it refreshes once and retries once; any
// further failure surfaces to the caller, who is responsible for marking
// the automation's status when called from a creation flow.
func (s *WatchService) SetupGmailWatch(ctx context.Context, automationID uint, accessToken, refreshToken string) error {
	var automation models.Automation
	if err := s.db.WithContext(ctx).First(&automation, automationID).Error; err != nil {
		return fmt.Errorf("load automation %d: %w", automationID, err)
	}

	resp, err := s.gmail.Watch(ctx, accessToken, s.cfg.Google.PubSubTopic)
	if err != nil && gmailapi.IsAuthError(err) && refreshToken != "" {
		token, refreshErr := s.gmail.RefreshAccessToken(ctx, refreshToken)
		if refreshErr != nil {
			return fmt.Errorf("refresh google token: %w", refreshErr)
		}
		s.persistGoogleToken(ctx, automation.UserID, token.AccessToken)
		resp, err = s.gmail.Watch(ctx, token.AccessToken, s.cfg.Google.PubSubTopic)
	}
	if err != nil {
		return fmt.Errorf("register gmail watch: %w", err)
	}

	historyID, err := strconv.ParseUint(resp.HistoryID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse watch historyId %q: %w", resp.HistoryID, err)
	}
	expirationMs, err := strconv.ParseInt(resp.Expiration, 10, 64)
	if err != nil {
		return fmt.Errorf("parse watch expiration %q: %w", resp.Expiration, err)
	}
	expiration := time.UnixMilli(expirationMs)

	if err := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ?", automationID).
		Updates(map[string]interface{}{
			"gmail_history_id":       historyID,
			"gmail_watch_expiration": expiration,
		}).Error; err != nil {
		return fmt.Errorf("persist watch state: %w", err)
	}
	return nil
}

// StopGmailWatch unregisters push delivery. Best effort: failures are
// logged and never abort the caller's deletion flow.
func (s *WatchService) StopGmailWatch(ctx context.Context, accessToken string) {
	if err := s.gmail.Stop(ctx, accessToken); err != nil {
		s.logger.Warnf("stop gmail watch: %v", err)
	}
}

// RenewExpiringWatches re-registers gmail watches expiring inside the
// lookahead window. Automations are grouped by owning user so the access
// token is refreshed once per user; a single automation's failure marks
// only that automation error. Also prunes the dedup ledger.
func (s *WatchService) RenewExpiringWatches(ctx context.Context, lookahead time.Duration) (*RenewalSummary, error) {
	cutoff := time.Now().Add(lookahead)
	var automations []models.Automation
	if err := s.db.WithContext(ctx).
		Where("trigger_type IN ? AND status <> ? AND gmail_watch_expiration IS NOT NULL AND gmail_watch_expiration < ?",
			[]string{models.TriggerGmailEmail, models.TriggerGmailLabel}, models.StatusError, cutoff).
		Find(&automations).Error; err != nil {
		return nil, fmt.Errorf("list expiring watches: %w", err)
	}

	byUser := make(map[string][]models.Automation)
	for _, a := range automations {
		byUser[a.UserID] = append(byUser[a.UserID], a)
	}

	summary := &RenewalSummary{Results: []RenewalResult{}}
	for userID, userAutomations := range byUser {
		var profile models.Profile
		if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
			for _, a := range userAutomations {
				s.failRenewal(ctx, summary, a, fmt.Sprintf("load profile: %v", err))
			}
			continue
		}

		// One refresh per user amortizes the token round trip across all
		// of that user's watches.
		token := profile.GoogleAccessToken
		if profile.GoogleRefreshToken != "" {
			refreshed, err := s.gmail.RefreshAccessToken(ctx, profile.GoogleRefreshToken)
			if err != nil {
				s.logger.Warnf("renewal token refresh for user %s: %v", userID, err)
			} else {
				token = refreshed.AccessToken
				s.persistGoogleToken(ctx, userID, token)
			}
		}
		if token == "" {
			for _, a := range userAutomations {
				s.failRenewal(ctx, summary, a, "missing google access token")
			}
			continue
		}

		for _, a := range userAutomations {
			if err := s.SetupGmailWatch(ctx, a.ID, token, ""); err != nil {
				s.failRenewal(ctx, summary, a, err.Error())
				continue
			}
			summary.Renewed++
			summary.Results = append(summary.Results, RenewalResult{
				AutomationID: a.ID, Name: a.Name, Status: "renewed",
			})
		}
	}

	s.pruneProcessedEvents(ctx)
	return summary, nil
}

func (s *WatchService) failRenewal(ctx context.Context, summary *RenewalSummary, a models.Automation, msg string) {
	s.logger.Warnf("renew watch for automation %d: %s", a.ID, msg)
	if err := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ?", a.ID).
		Updates(map[string]interface{}{"status": models.StatusError, "last_error": msg}).Error; err != nil {
		s.logger.Warnf("mark automation %d error: %v", a.ID, err)
	}
	summary.Failed++
	summary.Results = append(summary.Results, RenewalResult{
		AutomationID: a.ID, Name: a.Name, Status: "failed", Error: msg,
	})
}

// SetupClickUpWebhook registers a provider webhook addressed at this
// automation's ingestion URL, scoped by the narrowest configured location,
// and persists the returned provider webhook id.
func (s *WatchService) SetupClickUpWebhook(ctx context.Context, automation *models.Automation, accessToken string) error {
	cfg, err := automation.ClickUpTrigger()
	if err != nil {
		return err
	}

	events := cfg.Events
	if len(events) == 0 {
		events = ClickUpEventsForTrigger(automation.TriggerType)
	}
	req := &clickup.CreateWebhookRequest{
		Endpoint: s.ingestEndpoint(automation.WebhookID),
		Events:   events,
	}
	switch {
	case cfg.ListID != "":
		req.ListID = cfg.ListID
	case cfg.FolderID != "":
		req.FolderID = cfg.FolderID
	case cfg.SpaceID != "":
		req.SpaceID = cfg.SpaceID
	}

	webhook, err := s.clickup.CreateWebhook(ctx, accessToken, cfg.WorkspaceID, req)
	if err != nil {
		return fmt.Errorf("register clickup webhook: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ?", automation.ID).
		Update("click_up_webhook_id", webhook.ID).Error; err != nil {
		return fmt.Errorf("persist clickup webhook id: %w", err)
	}
	automation.ClickUpWebhookID = webhook.ID
	return nil
}

// RemoveClickUpWebhook best-effort deletes the provider webhook and clears
// the stored id regardless of the provider call's outcome.
func (s *WatchService) RemoveClickUpWebhook(ctx context.Context, automationID uint, accessToken string) error {
	var automation models.Automation
	if err := s.db.WithContext(ctx).First(&automation, automationID).Error; err != nil {
		return fmt.Errorf("load automation %d: %w", automationID, err)
	}
	if automation.ClickUpWebhookID == "" {
		return nil
	}
	if err := s.clickup.DeleteWebhook(ctx, accessToken, automation.ClickUpWebhookID); err != nil {
		s.logger.Warnf("delete clickup webhook %s: %v", automation.ClickUpWebhookID, err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ?", automationID).
		Update("click_up_webhook_id", "").Error; err != nil {
		return fmt.Errorf("clear clickup webhook id: %w", err)
	}
	return nil
}

func (s *WatchService) ingestEndpoint(webhookID string) string {
	return fmt.Sprintf("%s/webhooks/ingest?webhook_id=%s",
		strings.TrimRight(s.cfg.Ingest.PublicBaseURL, "/"), webhookID)
}

func (s *WatchService) persistGoogleToken(ctx context.Context, userID, accessToken string) {
	if err := s.db.WithContext(ctx).Model(&models.Profile{}).
		Where("user_id = ?", userID).
		Update("google_access_token", accessToken).Error; err != nil {
		s.logger.Warnf("persist refreshed google token for user %s: %v", userID, err)
	}
}

func (s *WatchService) pruneProcessedEvents(ctx context.Context) {
	retention := s.cfg.Scheduler.DedupRetention
	if retention <= 0 {
		retention = 48 * time.Hour
	}
	cutoff := time.Now().Add(-retention)
	if err := s.db.WithContext(ctx).
		Where("processed_at < ?", cutoff).
		Delete(&models.ProcessedEvent{}).Error; err != nil {
		s.logger.Warnf("prune processed events: %v", err)
	}
}
