package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/jedmorris/CRM-manager/internal/middleware"
	"github.com/jedmorris/CRM-manager/internal/models"
	"github.com/jedmorris/CRM-manager/internal/services"
)

func newIngestRouter(env *handlerEnv) *gin.Engine {
	handler := NewIngestHandler(env.dispatch, env.watches, env.cfg)
	r := gin.New()
	r.POST("/webhooks/ingest", handler.Ingest)
	internal := r.Group("/internal", middleware.InternalSecretMiddleware(env.cfg))
	internal.POST("/renew-watches", handler.RenewWatches)
	return r
}

func TestIngestUnknownWebhookID(t *testing.T) {
	env := newHandlerEnv(t)
	r := newIngestRouter(env)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ingest?webhook_id=nope",
		bytes.NewBufferString(`{"event":"taskUpdated","task_id":"t1"}`))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	var outcome services.DispatchOutcome
	if err := json.Unmarshal(w.Body.Bytes(), &outcome); err != nil {
		t.Fatal(err)
	}
	if outcome.Status != services.OutcomeNotFound {
		t.Errorf("expected not_found, got %s", outcome.Status)
	}
}

func TestIngestDirectWebhookFiltered(t *testing.T) {
	env := newHandlerEnv(t)
	r := newIngestRouter(env)

	env.db.Create(&models.Profile{UserID: "u1", ClickUpAccessToken: "cu-token"})
	env.db.Create(&models.Automation{
		UserID: "u1", Name: "scoped", TriggerType: models.TriggerClickUpTaskUpdated,
		TriggerConfig: `{"workspace_id":"ws1","list_id":"list-1","events":["taskUpdated"]}`,
		ActionType:    models.ActionClickUpAddComment,
		ActionConfig:  `{"comment":"x"}`,
		WebhookID:     "hook-1", Status: models.StatusActive,
	})

	// Scope mismatch short-circuits with a 200 so the provider stops retrying.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ingest?webhook_id=hook-1",
		bytes.NewBufferString(`{"event":"taskUpdated","task_id":"t1","list_id":"list-2"}`))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var outcome services.DispatchOutcome
	json.Unmarshal(w.Body.Bytes(), &outcome)
	if outcome.Status != services.OutcomeFiltered {
		t.Errorf("expected filtered, got %s", outcome.Status)
	}
}

func TestIngestPubSubPush(t *testing.T) {
	env := newHandlerEnv(t)
	r := newIngestRouter(env)

	envelope, _ := json.Marshal(services.PushEnvelope{EmailAddress: "stranger@example.com", HistoryID: 42})
	body, _ := json.Marshal(map[string]interface{}{
		"message":      map[string]string{"data": base64.StdEncoding.EncodeToString(envelope), "messageId": "pm-1"},
		"subscription": "projects/p/subscriptions/s",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ingest", bytes.NewBuffer(body))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var summary services.NotificationSummary
	json.Unmarshal(w.Body.Bytes(), &summary)
	if summary.Status != "ignored" {
		t.Errorf("expected ignored for unknown address, got %s", summary.Status)
	}
}

func TestIngestBadBodies(t *testing.T) {
	env := newHandlerEnv(t)
	r := newIngestRouter(env)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json"},
		{"empty push", `{"message":{"data":""}}`},
		{"bad base64", `{"message":{"data":"!!!"}}`},
		{"envelope missing address", `{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte(`{"historyId":1}`)) + `"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/webhooks/ingest", bytes.NewBufferString(tt.body))
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestRenewWatchesSecret(t *testing.T) {
	env := newHandlerEnv(t)
	r := newIngestRouter(env)

	// Missing secret.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/renew-watches", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", w.Code)
	}

	// Wrong secret.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/internal/renew-watches", nil)
	req.Header.Set("X-Internal-Secret", "wrong")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong secret, got %d", w.Code)
	}

	// Correct secret; nothing to renew.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/internal/renew-watches", nil)
	req.Header.Set("X-Internal-Secret", "internal-secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var summary services.RenewalSummary
	json.Unmarshal(w.Body.Bytes(), &summary)
	if summary.Renewed != 0 || summary.Failed != 0 {
		t.Errorf("expected empty sweep, got %+v", summary)
	}
}
