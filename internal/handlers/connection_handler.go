package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jedmorris/CRM-manager/internal/models"
	"github.com/jedmorris/CRM-manager/pkg/clickup"
	"github.com/jedmorris/CRM-manager/pkg/gmailapi"
)

// ConnectionHandler manages the per-user provider accounts: connection
// status plus the token-storing connect endpoints.
type ConnectionHandler struct {
	db      *gorm.DB
	clickup *clickup.Client
	gmail   *gmailapi.Client
}

func NewConnectionHandler(db *gorm.DB, clickupClient *clickup.Client, gmailClient *gmailapi.Client) *ConnectionHandler {
	return &ConnectionHandler{db: db, clickup: clickupClient, gmail: gmailClient}
}

type connectionStatus struct {
	Provider  string `json:"provider"`
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`
}

// Status reports which provider accounts the user has connected. Tokens
// never leave the server.
func (h *ConnectionHandler) Status(c *gin.Context) {
	userID := c.GetString("user_id")

	var profile models.Profile
	err := h.db.WithContext(c.Request.Context()).Where("user_id = ?", userID).First(&profile).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load profile", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, []connectionStatus{
		{
			Provider:  "clickup",
			Connected: profile.ClickUpAccessToken != "",
			Account:   profile.ClickUpUsername,
		},
		{
			Provider:  "google",
			Connected: profile.GoogleAccessToken != "",
			Account:   profile.GoogleEmail,
		},
	})
}

// ConnectClickUp exchanges an OAuth authorization code and stores the
// resulting token on the user's profile.
func (h *ConnectionHandler) ConnectClickUp(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	ctx := c.Request.Context()
	token, err := h.clickup.ExchangeCode(ctx, req.Code)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Token exchange failed", Message: err.Error()})
		return
	}

	updates := map[string]interface{}{
		"click_up_access_token": token.AccessToken,
	}
	username := ""
	if user, err := h.clickup.GetAuthorizedUser(ctx, token.AccessToken); err == nil {
		username = user.Username
		updates["click_up_username"] = user.Username
		updates["click_up_user_id"] = strconv.Itoa(user.ID)
	}
	if teams, err := h.clickup.GetTeams(ctx, token.AccessToken); err == nil && len(teams) > 0 {
		updates["click_up_team_id"] = teams[0].ID
	}

	if err := h.upsertProfile(c, updates); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to store connection", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "clickup connected", Data: gin.H{"username": username}})
}

// ConnectGoogle stores Google OAuth tokens obtained by the frontend flow
// and resolves the mailbox address they belong to.
func (h *ConnectionHandler) ConnectGoogle(c *gin.Context) {
	var req struct {
		AccessToken  string `json:"access_token" binding:"required"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	profile, err := h.gmail.GetProfile(c.Request.Context(), req.AccessToken)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Failed to resolve gmail account", Message: err.Error()})
		return
	}

	updates := map[string]interface{}{
		"google_access_token": req.AccessToken,
		"google_email":        profile.EmailAddress,
	}
	if req.RefreshToken != "" {
		updates["google_refresh_token"] = req.RefreshToken
	}
	if err := h.upsertProfile(c, updates); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to store connection", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "google connected", Data: gin.H{"email": profile.EmailAddress}})
}

func (h *ConnectionHandler) upsertProfile(c *gin.Context, updates map[string]interface{}) error {
	userID := c.GetString("user_id")
	ctx := c.Request.Context()

	var profile models.Profile
	err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		profile = models.Profile{UserID: userID}
		if email := c.GetString("user_email"); email != "" {
			profile.Email = email
		}
		if err := h.db.WithContext(ctx).Create(&profile).Error; err != nil {
			return err
		}
	case err != nil:
		return err
	}

	return h.db.WithContext(ctx).Model(&models.Profile{}).
		Where("user_id = ?", userID).
		Updates(updates).Error
}

// RegisterConnectionRoutes mounts the connection API onto the group.
func RegisterConnectionRoutes(r *gin.RouterGroup, handler *ConnectionHandler) {
	conns := r.Group("/connections")
	{
		conns.GET("", handler.Status)
		conns.POST("/clickup", handler.ConnectClickUp)
		conns.POST("/google", handler.ConnectGoogle)
	}
}
