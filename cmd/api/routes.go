package main

import (
	"dialer-platform/internal/auth"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, webhook dialer.StatusWebhookHandler, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks (public).
	// NOTE: This endpoint should be protected by Twilio signature validation in production.
	r.POST("/webhooks/twilio/status", webhook.HandleStatusCallback)

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		// Identity extraction via context, mostly for debugging auth chains.
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			cid, _ := auth.ClientID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "client_id": cid, "role": role})
		})

		// CAMPAIGN routes
		campaigns := v1.Group("/campaigns")
		campaigns.Use(rbac.RequireClient())
		campaigns.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAgent, rbac.RoleSuperAdmin))
		{
			campaigns.POST("", h.CreateCampaign)
			campaigns.POST("/:campaign_id/pause", h.PauseCampaign)
			campaigns.POST("/:campaign_id/resume", h.ResumeCampaign)
			campaigns.POST("/:campaign_id/cancel", h.CancelCampaign)
			campaigns.GET("/:campaign_id/progress", h.CampaignProgress)
		}

		// REPORTING routes
		reports := v1.Group("/reports")
		reports.Use(rbac.RequireClient())
		reports.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAnalyst, rbac.RoleSuperAdmin))
		{
			reports.GET("/calls-summary", h.CallsSummary)
			reports.GET("/delivery-metrics", h.DeliveryMetrics)
		}

		// ENDPOINT POOL routes
		pool := v1.Group("/pool")
		pool.Use(rbac.RequireClient())
		pool.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin))
		{
			pool.POST("/checkout", h.PoolCheckout)
			pool.POST("/release", h.PoolRelease)
		}
	}
}
