package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fleetmatch/backend/internal/matchmaker"
	"github.com/fleetmatch/backend/internal/models"
)

// FindServer handles GET /gameclient/find_server/v1. Backfill is tried
// first; when no session has room a fresh session is placed on an idle
// server. An empty address in the response means no capacity.
func FindServer(mm *matchmaker.Matchmaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := bearerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
			return
		}

		ctx := c.Request.Context()

		srv, err := mm.ReserveBackfill(ctx, userID)
		if err != nil {
			log.Printf("[API] backfill failed for user %s: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "backend unavailable"})
			return
		}

		if srv == nil {
			sessionID := uuid.New()
			srv, err = mm.AllocateServer(ctx, userID, sessionID)
			if err != nil {
				log.Printf("[API] placement failed for user %s: %v", userID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "backend unavailable"})
				return
			}
		}

		if srv == nil {
			c.JSON(http.StatusOK, models.FindServerResponse{})
			return
		}

		c.JSON(http.StatusOK, models.FindServerResponse{
			Address: srv.Address(),
			Port:    srv.Port,
		})
	}
}
