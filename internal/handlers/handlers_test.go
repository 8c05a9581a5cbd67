package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jedmorris/CRM-manager/internal/config"
	"github.com/jedmorris/CRM-manager/internal/models"
	"github.com/jedmorris/CRM-manager/internal/services"
	"github.com/jedmorris/CRM-manager/pkg/clickup"
	"github.com/jedmorris/CRM-manager/pkg/gmailapi"
)

type handlerEnv struct {
	db          *gorm.DB
	cfg         *config.Config
	dispatch    *services.DispatchService
	watches     *services.WatchService
	automations *services.AutomationService
}

// newHandlerEnv wires real services over an in-memory database. Provider
// clients point at a server that rejects everything; tests here exercise
// paths that never reach a provider.
func newHandlerEnv(t *testing.T) *handlerEnv {
	gin.SetMode(gin.TestMode)

	dsn := "file:handlers_" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Profile{}, &models.Automation{}, &models.AutomationLog{}, &models.ProcessedEvent{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	deadEnd := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"err":"unexpected provider call"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(deadEnd.Close)

	logger := logrus.New()
	cfg := config.GetDefaultConfig()
	cfg.Scheduler.Secret = "internal-secret"

	cuClient := clickup.NewClient(&clickup.Config{BaseURL: deadEnd.URL, Timeout: time.Second}, logger)
	gmClient := gmailapi.NewClient(&gmailapi.Config{BaseURL: deadEnd.URL, TokenURL: deadEnd.URL + "/token", Timeout: time.Second}, logger)

	watches := services.NewWatchService(db, logger, gmClient, cuClient, cfg)
	automations := services.NewAutomationService(db, logger, watches)
	dispatch := services.NewDispatchService(db, logger, cuClient, gmClient, automations)

	return &handlerEnv{db: db, cfg: cfg, dispatch: dispatch, watches: watches, automations: automations}
}

// fakeAuth stands in for the jwt middleware.
func fakeAuth(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("user_email", userID+"@example.com")
		c.Next()
	}
}
