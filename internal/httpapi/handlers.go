package httpapi

import (
	"errors"
	"net/http"
	"time"

	"dialer-platform/internal/auth"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/endpointpool"
	"dialer-platform/internal/rbac"
	"dialer-platform/internal/reporting"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Control   *campaign.Control
	Reporting *reporting.Service
	Pool      *endpointpool.Allocator
}

var validate = validator.New()

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.ClientID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, client_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.ClientID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Campaigns ---

type createCampaignRequest struct {
	ListID        string `json:"list_id" validate:"required"`
	TotalContacts int    `json:"total_contacts" validate:"gte=0"`
}

func (h Handlers) CreateCampaign(c *gin.Context) {
	if h.Control == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	clientID, err := auth.ClientID(c.Request.Context())
	if err != nil || clientID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "client_id required"})
		return
	}
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	camp, err := h.Control.Create(c.Request.Context(), campaign.CreateParams{
		ClientID:      clientID,
		ListID:        req.ListID,
		TotalContacts: req.TotalContacts,
	})
	if err != nil {
		writeCampaignError(c, err)
		return
	}
	c.JSON(http.StatusCreated, camp)
}

func (h Handlers) PauseCampaign(c *gin.Context) {
	h.controlAction(c, h.pause)
}

func (h Handlers) ResumeCampaign(c *gin.Context) {
	h.controlAction(c, h.resume)
}

func (h Handlers) CancelCampaign(c *gin.Context) {
	h.controlAction(c, h.cancel)
}

type controlFunc func(c *gin.Context, clientID, userID, campaignID string) (campaign.Campaign, error)

func (h Handlers) pause(c *gin.Context, clientID, userID, campaignID string) (campaign.Campaign, error) {
	return h.Control.Pause(c.Request.Context(), clientID, userID, campaignID)
}

func (h Handlers) resume(c *gin.Context, clientID, userID, campaignID string) (campaign.Campaign, error) {
	return h.Control.Resume(c.Request.Context(), clientID, userID, campaignID)
}

func (h Handlers) cancel(c *gin.Context, clientID, userID, campaignID string) (campaign.Campaign, error) {
	return h.Control.Cancel(c.Request.Context(), clientID, userID, campaignID)
}

func (h Handlers) controlAction(c *gin.Context, fn controlFunc) {
	if h.Control == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	clientID, err := auth.ClientID(c.Request.Context())
	if err != nil || clientID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "client_id required"})
		return
	}
	userID, _ := auth.UserID(c.Request.Context())
	campaignID := c.Param("campaign_id")
	if campaignID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "campaign_id required"})
		return
	}

	camp, err := fn(c, clientID, userID, campaignID)
	if err != nil {
		writeCampaignError(c, err)
		return
	}
	c.JSON(http.StatusOK, camp)
}

func (h Handlers) CampaignProgress(c *gin.Context) {
	if h.Control == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	clientID, err := auth.ClientID(c.Request.Context())
	if err != nil || clientID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "client_id required"})
		return
	}
	campaignID := c.Param("campaign_id")
	if campaignID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "campaign_id required"})
		return
	}
	p, err := h.Control.Progress(c.Request.Context(), clientID, campaignID)
	if err != nil {
		writeCampaignError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func writeCampaignError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
	case errors.Is(err, campaign.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, campaign.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid argument"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// --- Reporting ---

type summaryQuery struct {
	From       time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	CampaignID string    `form:"campaign_id"`
}

func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	clientID, err := auth.ClientID(c.Request.Context())
	if err != nil || clientID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "client_id required"})
		return
	}
	var q summaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	out, err := h.Reporting.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		ClientID:   clientID,
		Range:      reporting.TimeRange{From: q.From, To: q.To},
		CampaignID: q.CampaignID,
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) DeliveryMetrics(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	clientID, err := auth.ClientID(c.Request.Context())
	if err != nil || clientID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "client_id required"})
		return
	}
	var q summaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	out, err := h.Reporting.DeliveryMetrics(c.Request.Context(), reporting.DeliveryMetricsRequest{
		ClientID:   clientID,
		Range:      reporting.TimeRange{From: q.From, To: q.To},
		CampaignID: q.CampaignID,
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "metrics failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Endpoint pool ---

type poolCheckoutRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

func (h Handlers) PoolCheckout(c *gin.Context) {
	if h.Pool == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "pool not configured"})
		return
	}
	var req poolCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resourceID, err := h.Pool.Checkout(c.Request.Context(), req.SessionID)
	if err != nil {
		if errors.Is(err, endpointpool.ErrExhausted) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "pool exhausted"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "checkout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resource_id": resourceID})
}

func (h Handlers) PoolRelease(c *gin.Context) {
	if h.Pool == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "pool not configured"})
		return
	}
	var req poolCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resourceID, err := h.Pool.Release(c.Request.Context(), req.SessionID)
	if err != nil {
		if errors.Is(err, endpointpool.ErrNoCheckout) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no checkout for session"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "release failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resource_id": resourceID})
}

// Convenience middleware bundles.

func RequireClientAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireClient(), rbac.RequireAnyRole(roles...)}
}
