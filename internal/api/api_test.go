package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fleetmatch/backend/internal/config"
	"github.com/fleetmatch/backend/internal/directory"
	"github.com/fleetmatch/backend/internal/matchmaker"
	"github.com/fleetmatch/backend/internal/models"
	"github.com/fleetmatch/backend/internal/registry"
)

func setupAPI(t *testing.T) (*registry.Registry, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{
		MaxPlayers:                3,
		ServerTTLSeconds:          10,
		SessionTTLSeconds:         60,
		PlacementTimeoutSeconds:   1,
		PlacementPollIntervalSecs: 1,
		BackfillTimeoutSeconds:    1,
		BackfillPollIntervalSecs:  1,
	}

	dir := directory.New(client)
	reg := registry.New(dir,
		time.Duration(cfg.ServerTTLSeconds)*time.Second,
		time.Duration(cfg.SessionTTLSeconds)*time.Second)
	mm := matchmaker.New(reg, dir, cfg)

	router := gin.New()
	SetupRoutes(router, mm, reg, cfg)
	return reg, router
}

func doHeartbeat(t *testing.T, router *gin.Engine, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/gameserver/heartbeat/v1", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHeartbeatUpsertsServerRecord(t *testing.T) {
	reg, router := setupAPI(t)
	serverID := uuid.New()

	w := doHeartbeat(t, router, serverID.String(), models.HeartbeatRequest{
		ServerInfo: models.GameServerInfo{
			AddrsV4:       []string{"10.0.0.1"},
			Port:          5576,
			State:         models.StateWaitingForPlacement,
			Orchestration: models.OrchestrationLocal,
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	got, err := reg.ReadServer(context.Background(), serverID)
	require.NoError(t, err)
	require.Equal(t, serverID, got.ServerID)
	require.Equal(t, models.StateWaitingForPlacement, got.State)
}

func TestHeartbeatDefaultsSessionCapacity(t *testing.T) {
	reg, router := setupAPI(t)
	serverID := uuid.New()
	sessionID := uuid.New()

	w := doHeartbeat(t, router, serverID.String(), models.HeartbeatRequest{
		ServerInfo: models.GameServerInfo{
			State:         models.StateInGame,
			Orchestration: models.OrchestrationLocal,
			GameSession:   &models.GameSessionInfo{GameSessionID: sessionID},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	sess, err := reg.ReadSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, 3, sess.MaxPlayers)
}

func TestHeartbeatRejectsBadBearer(t *testing.T) {
	_, router := setupAPI(t)

	w := doHeartbeat(t, router, "not-a-uuid", models.HeartbeatRequest{})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHeartbeatRejectsBadBody(t *testing.T) {
	_, router := setupAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/gameserver/heartbeat/v1", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer "+uuid.NewString())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHeartbeatRejectsUnknownState(t *testing.T) {
	_, router := setupAPI(t)

	w := doHeartbeat(t, router, uuid.NewString(), models.HeartbeatRequest{
		ServerInfo: models.GameServerInfo{State: "warpdrive"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFindServerRequiresBearer(t *testing.T) {
	_, router := setupAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/gameclient/find_server/v1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

// No backfill candidates and no waiting servers: the client gets an empty
// address, not an error.
func TestFindServerNoCapacity(t *testing.T) {
	_, router := setupAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/gameclient/find_server/v1", nil)
	req.Header.Set("Authorization", "Bearer "+uuid.NewString())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.FindServerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Empty(t, resp.Address)
	require.Zero(t, resp.Port)
}

func TestHealth(t *testing.T) {
	_, router := setupAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
