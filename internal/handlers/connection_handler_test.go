package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/jedmorris/CRM-manager/internal/models"
	"github.com/jedmorris/CRM-manager/pkg/clickup"
	"github.com/jedmorris/CRM-manager/pkg/gmailapi"
)

// newProviderStub serves just enough of both provider APIs for the
// connection flow: oauth exchange, authorized user, teams, gmail profile.
func newProviderStub(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(clickup.TokenResponse{AccessToken: "cu-token"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"user": map[string]interface{}{"id": 42, "username": "alice"},
		})
	})
	mux.HandleFunc("/team", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"teams": []map[string]string{{"id": "ws-7", "name": "Acme"}},
		})
	})
	mux.HandleFunc("/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gmailapi.UserProfile{EmailAddress: "me@example.com"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newConnectionRouter(t *testing.T, env *handlerEnv, userID string) *gin.Engine {
	stub := newProviderStub(t)
	logger := logrus.New()
	cuClient := clickup.NewClient(&clickup.Config{BaseURL: stub.URL, Timeout: time.Second}, logger)
	gmClient := gmailapi.NewClient(&gmailapi.Config{BaseURL: stub.URL, Timeout: time.Second}, logger)

	r := gin.New()
	api := r.Group("/api", fakeAuth(userID))
	RegisterConnectionRoutes(api, NewConnectionHandler(env.db, cuClient, gmClient))
	return r
}

func TestConnectionStatus_Empty(t *testing.T) {
	env := newHandlerEnv(t)
	r := newConnectionRouter(t, env, "u1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/connections", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var statuses []connectionStatus
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	assert.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.False(t, s.Connected)
	}
}

func TestConnectClickUp(t *testing.T) {
	env := newHandlerEnv(t)
	r := newConnectionRouter(t, env, "u1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/connections/clickup",
		bytes.NewBufferString(`{"code":"auth-code"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var profile models.Profile
	assert.NoError(t, env.db.Where("user_id = ?", "u1").First(&profile).Error)
	assert.Equal(t, "cu-token", profile.ClickUpAccessToken)
	assert.Equal(t, "alice", profile.ClickUpUsername)
	assert.Equal(t, "42", profile.ClickUpUserID)
	assert.Equal(t, "ws-7", profile.ClickUpTeamID)
	// Profile bootstrapped from the auth context.
	assert.Equal(t, "u1@example.com", profile.Email)
}

func TestConnectGoogle(t *testing.T) {
	env := newHandlerEnv(t)
	r := newConnectionRouter(t, env, "u1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/connections/google",
		bytes.NewBufferString(`{"access_token":"g-token","refresh_token":"g-refresh"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var profile models.Profile
	assert.NoError(t, env.db.Where("user_id = ?", "u1").First(&profile).Error)
	assert.Equal(t, "g-token", profile.GoogleAccessToken)
	assert.Equal(t, "g-refresh", profile.GoogleRefreshToken)
	assert.Equal(t, "me@example.com", profile.GoogleEmail)

	// Status now reports the google account connected.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/connections", nil))
	var statuses []connectionStatus
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	for _, s := range statuses {
		if s.Provider == "google" {
			assert.True(t, s.Connected)
			assert.Equal(t, "me@example.com", s.Account)
		}
	}
}

func TestConnectClickUpMissingCode(t *testing.T) {
	env := newHandlerEnv(t)
	r := newConnectionRouter(t, env, "u1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/connections/clickup", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
