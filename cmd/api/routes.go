package main

import (
	"context"

	"salescrm-platform/internal/httpapi"
	"salescrm-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	authMW   gin.HandlerFunc
	handlers httpapi.Handlers
	webhooks httpapi.Webhooks
	healthDB func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if deps.healthDB != nil {
			if err := deps.healthDB(c.Request.Context()); err != nil {
				c.JSON(503, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: These endpoints should be protected by provider signature
	// validation in production.
	r.POST("/webhooks/voice/status", deps.webhooks.VoiceStatus)
	r.POST("/webhooks/voice/answer", deps.webhooks.VoiceAnswer)

	// AUTH routes (token issuance).
	r.POST("/v1/auth/login", deps.handlers.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(deps.authMW)
	{
		calls := v1.Group("/calls")
		calls.Use(httpapi.RequireOrgAndAnyRole(rbac.RoleAgent, rbac.RoleManager)...)
		{
			calls.POST("", deps.handlers.InitiateCall)
			calls.GET("/:call_id", deps.handlers.GetCall)
			calls.POST("/:call_id/outcome", deps.handlers.SetOutcome)
		}
	}
}
