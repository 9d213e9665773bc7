package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetmatch/backend/internal/config"
	"github.com/fleetmatch/backend/internal/models"
	"github.com/fleetmatch/backend/internal/registry"
)

// Heartbeat handles POST /gameserver/heartbeat/v1: a single pipelined
// upsert of the server record and, when present, its session record. The
// reporting server is the sole writer of its own record.
func Heartbeat(reg *registry.Registry, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, ok := bearerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
			return
		}

		var req models.HeartbeatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid heartbeat body"})
			return
		}
		if !req.ServerInfo.State.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown server state"})
			return
		}

		info := req.ServerInfo
		info.ServerID = serverID
		if info.GameSession != nil && info.GameSession.MaxPlayers <= 0 {
			info.GameSession.MaxPlayers = cfg.MaxPlayers
		}

		if err := reg.WriteHeartbeat(c.Request.Context(), &info); err != nil {
			log.Printf("[API] heartbeat write failed for server %s: %v", serverID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "backend unavailable"})
			return
		}

		c.Status(http.StatusOK)
	}
}
