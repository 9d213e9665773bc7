package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/fleetmatch/backend/internal/models"
)

var heartbeatClient = &http.Client{Timeout: 5 * time.Second}

// heartbeatLoop reports liveness and session state to the API on a fixed
// interval. A failed write is logged; the next tick is the retry.
func (a *Agent) heartbeatLoop(ctx context.Context) {
	interval := time.Duration(a.cfg.HeartbeatIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.emitHeartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.emitHeartbeat(ctx)
			if err := a.orch.Health(ctx); err != nil {
				log.Printf("[AGENT] orchestrator health check failed: %v", err)
			}
		}
	}
}

// emitHeartbeat sends one heartbeat reflecting current state.
func (a *Agent) emitHeartbeat(ctx context.Context) {
	body := models.HeartbeatRequest{ServerInfo: a.snapshotServerInfo()}
	payload, err := json.Marshal(body)
	if err != nil {
		log.Printf("[AGENT] heartbeat marshal failed: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIBaseURL+"/gameserver/heartbeat/v1", bytes.NewReader(payload))
	if err != nil {
		log.Printf("[AGENT] heartbeat request build failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.serverID.String())

	resp, err := heartbeatClient.Do(req)
	if err != nil {
		log.Printf("[AGENT] heartbeat send failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("[AGENT] heartbeat rejected: %s", resp.Status)
	}
}
