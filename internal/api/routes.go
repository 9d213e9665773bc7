package api

import (
	"github.com/gin-gonic/gin"

	"github.com/fleetmatch/backend/internal/api/handlers"
	"github.com/fleetmatch/backend/internal/config"
	"github.com/fleetmatch/backend/internal/matchmaker"
	"github.com/fleetmatch/backend/internal/registry"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, mm *matchmaker.Matchmaker, reg *registry.Registry, cfg *config.Config) {
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", handlers.HealthCheck)

	// Game clients look for a server to join
	router.GET("/gameclient/find_server/v1", handlers.FindServer(mm))

	// Game servers report liveness and session state
	router.POST("/gameserver/heartbeat/v1", handlers.Heartbeat(reg, cfg))
}
