package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/jedmorris/CRM-manager/internal/models"
)

// AutomationService owns the Automation entity: CRUD, status transitions,
// provider subscription provisioning on create/delete, and execution logging.
type AutomationService struct {
	db      *gorm.DB
	logger  *logrus.Logger
	watches *WatchService
}

func NewAutomationService(db *gorm.DB, logger *logrus.Logger, watches *WatchService) *AutomationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationService{db: db, logger: logger, watches: watches}
}

// AutomationRequest is the creation payload.
type AutomationRequest struct {
	Name          string          `json:"name" binding:"required"`
	TriggerType   string          `json:"trigger_type" binding:"required"`
	TriggerConfig json.RawMessage `json:"trigger_config"`
	ActionType    string          `json:"action_type" binding:"required"`
	ActionConfig  json.RawMessage `json:"action_config"`
}

// Create validates the tagged trigger/action configs, persists the
// automation with a fresh webhook id/secret, then provisions the matching
// provider subscription. A provisioning failure leaves the row in error
// status with last_error set; the row is still returned.
func (s *AutomationService) Create(ctx context.Context, userID string, req *AutomationRequest) (*models.Automation, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}

	triggerCfg, err := models.ParseTriggerConfig(req.TriggerType, req.TriggerConfig)
	if err != nil {
		return nil, err
	}
	if _, err := models.ParseActionConfig(req.ActionType, req.ActionConfig); err != nil {
		return nil, err
	}

	// Resolve and store the provider event names for clickup triggers so
	// dispatch-time matching never re-derives them.
	triggerJSON := req.TriggerConfig
	if cfg, ok := triggerCfg.(*models.ClickUpTriggerConfig); ok {
		if len(cfg.Events) == 0 {
			cfg.Events = ClickUpEventsForTrigger(req.TriggerType)
		}
		encoded, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("encode trigger config: %w", err)
		}
		triggerJSON = encoded
	}
	if len(triggerJSON) == 0 {
		triggerJSON = []byte("{}")
	}
	actionJSON := req.ActionConfig
	if len(actionJSON) == 0 {
		actionJSON = []byte("{}")
	}

	automation := &models.Automation{
		UserID:        userID,
		Name:          req.Name,
		TriggerType:   req.TriggerType,
		TriggerConfig: string(triggerJSON),
		ActionType:    req.ActionType,
		ActionConfig:  string(actionJSON),
		WebhookID:     uuid.NewString(),
		WebhookSecret: uuid.NewString(),
		Status:        models.StatusActive,
	}
	if err := s.db.WithContext(ctx).Create(automation).Error; err != nil {
		return nil, fmt.Errorf("create automation: %w", err)
	}

	if err := s.provision(ctx, automation); err != nil {
		s.logger.Warnf("provision automation %d: %v", automation.ID, err)
		s.markError(ctx, automation.ID, err.Error())
	}

	var created models.Automation
	if err := s.db.WithContext(ctx).First(&created, automation.ID).Error; err != nil {
		return nil, fmt.Errorf("reload automation: %w", err)
	}
	return &created, nil
}

func (s *AutomationService) provision(ctx context.Context, automation *models.Automation) error {
	switch {
	case models.IsGmailTrigger(automation.TriggerType):
		profile, err := s.profileFor(ctx, automation.UserID)
		if err != nil {
			return err
		}
		if profile.GoogleAccessToken == "" {
			return fmt.Errorf("google account not connected")
		}
		return s.watches.SetupGmailWatch(ctx, automation.ID, profile.GoogleAccessToken, profile.GoogleRefreshToken)
	case models.IsClickUpTrigger(automation.TriggerType):
		profile, err := s.profileFor(ctx, automation.UserID)
		if err != nil {
			return err
		}
		if profile.ClickUpAccessToken == "" {
			return fmt.Errorf("clickup account not connected")
		}
		return s.watches.SetupClickUpWebhook(ctx, automation, profile.ClickUpAccessToken)
	default:
		// Schedule triggers fire from the external scheduler; nothing to
		// register upstream.
		return nil
	}
}

// List returns the user's automations, newest first.
func (s *AutomationService) List(ctx context.Context, userID string) ([]models.Automation, error) {
	var automations []models.Automation
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&automations).Error; err != nil {
		return nil, err
	}
	return automations, nil
}

// Get loads one automation scoped to its owner.
func (s *AutomationService) Get(ctx context.Context, userID string, id uint) (*models.Automation, error) {
	var automation models.Automation
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&automation).Error; err != nil {
		return nil, err
	}
	return &automation, nil
}

// UpdateStatus applies a user-driven active/paused transition. The error
// status is only entered by the engine itself.
func (s *AutomationService) UpdateStatus(ctx context.Context, userID string, id uint, status string) (*models.Automation, error) {
	if status != models.StatusActive && status != models.StatusPaused {
		return nil, fmt.Errorf("invalid status: %s", status)
	}
	automation, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{"status": status}
	if status == models.StatusActive {
		updates["last_error"] = ""
	}
	if err := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ?", automation.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	automation.Status = status
	return automation, nil
}

// Delete tears down the provider subscription best-effort, then removes
// the automation together with its logs and dedup entries.
func (s *AutomationService) Delete(ctx context.Context, userID string, id uint) error {
	automation, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	profile, profileErr := s.profileFor(ctx, userID)
	switch {
	case models.IsClickUpTrigger(automation.TriggerType):
		token := ""
		if profileErr == nil {
			token = profile.ClickUpAccessToken
		}
		if err := s.watches.RemoveClickUpWebhook(ctx, automation.ID, token); err != nil {
			s.logger.Warnf("remove clickup webhook for automation %d: %v", automation.ID, err)
		}
	case models.IsGmailTrigger(automation.TriggerType):
		// The gmail watch covers the whole mailbox; only stop it when this
		// is the user's last gmail automation.
		var remaining int64
		s.db.WithContext(ctx).Model(&models.Automation{}).
			Where("user_id = ? AND id <> ? AND trigger_type IN ?",
				userID, automation.ID, []string{models.TriggerGmailEmail, models.TriggerGmailLabel}).
			Count(&remaining)
		if remaining == 0 && profileErr == nil && profile.GoogleAccessToken != "" {
			s.watches.StopGmailWatch(ctx, profile.GoogleAccessToken)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("automation_id = ?", automation.ID).Delete(&models.AutomationLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("automation_id = ?", automation.ID).Delete(&models.ProcessedEvent{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Automation{}, automation.ID).Error
	})
}

// ListLogs returns a page of execution records, newest first.
func (s *AutomationService) ListLogs(ctx context.Context, userID string, automationID uint, page, pageSize int) ([]models.AutomationLog, int64, error) {
	if _, err := s.Get(ctx, userID, automationID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	var total int64
	query := s.db.WithContext(ctx).Model(&models.AutomationLog{}).Where("automation_id = ?", automationID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []models.AutomationLog
	if err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// RecordRun appends an execution log row and updates the automation's
// telemetry. Every dispatch attempt that reaches action execution lands
// here, success or failure.
func (s *AutomationService) RecordRun(ctx context.Context, automationID uint, status string, triggerData map[string]interface{}, result, errMsg string, startedAt time.Time) {
	completedAt := time.Now()
	snapshot, err := json.Marshal(triggerData)
	if err != nil {
		snapshot = []byte("{}")
	}
	logRow := &models.AutomationLog{
		AutomationID: automationID,
		Status:       status,
		TriggerData:  string(snapshot),
		Result:       result,
		ErrorMessage: errMsg,
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		DurationMs:   completedAt.Sub(startedAt).Milliseconds(),
	}
	if err := s.db.WithContext(ctx).Create(logRow).Error; err != nil {
		s.logger.Warnf("record automation run: %v", err)
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ?", automationID).
		Updates(map[string]interface{}{
			"run_count":   gorm.Expr("run_count + 1"),
			"last_run_at": now,
			"last_error":  errMsg,
		}).Error; err != nil {
		s.logger.Warnf("update automation telemetry: %v", err)
	}
}

func (s *AutomationService) markError(ctx context.Context, automationID uint, msg string) {
	if err := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ?", automationID).
		Updates(map[string]interface{}{"status": models.StatusError, "last_error": msg}).Error; err != nil {
		s.logger.Warnf("mark automation %d error: %v", automationID, err)
	}
}

func (s *AutomationService) profileFor(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, fmt.Errorf("load profile for user %s: %w", userID, err)
	}
	return &profile, nil
}
