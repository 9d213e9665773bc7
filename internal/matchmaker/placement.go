package matchmaker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/fleetmatch/backend/internal/config"
	"github.com/fleetmatch/backend/internal/directory"
	"github.com/fleetmatch/backend/internal/models"
	"github.com/fleetmatch/backend/internal/registry"
)

// Matchmaker issues find-server decisions: backfill into a running
// session when possible, otherwise place a fresh session on an idle
// server. It is stateless; any API replica can run one.
type Matchmaker struct {
	reg *registry.Registry
	dir *directory.Directory

	placementTimeout time.Duration
	placementPoll    time.Duration
	backfillTimeout  time.Duration
	backfillPoll     time.Duration
}

func New(reg *registry.Registry, dir *directory.Directory, cfg *config.Config) *Matchmaker {
	return &Matchmaker{
		reg:              reg,
		dir:              dir,
		placementTimeout: time.Duration(cfg.PlacementTimeoutSeconds) * time.Second,
		placementPoll:    time.Duration(cfg.PlacementPollIntervalSecs) * time.Second,
		backfillTimeout:  time.Duration(cfg.BackfillTimeoutSeconds) * time.Second,
		backfillPoll:     time.Duration(cfg.BackfillPollIntervalSecs) * time.Second,
	}
}

// AllocateServer pops an idle server, instructs it to host a new session
// for the user, and returns its record once the server confirms it is
// in-game with that session. Returns nil on timeout, mismatch, or an
// empty waiting pool; those are expected outcomes, not errors.
func (m *Matchmaker) AllocateServer(ctx context.Context, userID, sessionID uuid.UUID) (*models.GameServerInfo, error) {
	serverID, ok, err := m.reg.TakeWaitingServer(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	info, err := m.reg.ReadServer(ctx, serverID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) || errors.Is(err, registry.ErrCorrupt) {
			// The pop and the record expiry can race. TODO: retry with the
			// next waiting server instead of giving up.
			log.Printf("[PLACEMENT] popped server %s but record unusable: %v", serverID, err)
			return nil, nil
		}
		return nil, err
	}
	if info.State != models.StateWaitingForPlacement {
		log.Printf("[PLACEMENT] server %s popped in state %q; skipping", serverID, info.State)
		return nil, nil
	}

	if err := m.publish(ctx, serverID, models.NotifPlacementRequestV1, models.SessionMessage{
		GameSessionID: sessionID,
		PlayerIDs:     []uuid.UUID{userID},
	}); err != nil {
		return nil, err
	}

	log.Printf("[PLACEMENT] requested session %s on server %s for user %s", sessionID, serverID, userID)
	return m.awaitPlacement(ctx, serverID, sessionID)
}

// awaitPlacement polls the server record until it reports InGame with the
// requested session, a different session (abort), or the deadline passes.
func (m *Matchmaker) awaitPlacement(ctx context.Context, serverID, sessionID uuid.UUID) (*models.GameServerInfo, error) {
	deadline := time.NewTimer(m.placementTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.placementPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			log.Printf("[PLACEMENT] timed out waiting for server %s to host session %s", serverID, sessionID)
			return nil, nil
		case <-ticker.C:
			info, err := m.reg.ReadServer(ctx, serverID)
			if err != nil {
				if errors.Is(err, registry.ErrNotFound) || errors.Is(err, registry.ErrCorrupt) {
					log.Printf("[PLACEMENT] server %s unreadable while waiting: %v", serverID, err)
					continue
				}
				return nil, err
			}
			if info.GameSession == nil {
				continue
			}
			if info.GameSession.GameSessionID != sessionID {
				log.Printf("[PLACEMENT] server %s took session %s instead of %s; aborting",
					serverID, info.GameSession.GameSessionID, sessionID)
				return nil, nil
			}
			if info.State == models.StateInGame {
				return info, nil
			}
		}
	}
}

func (m *Matchmaker) publish(ctx context.Context, recipient uuid.UUID, typ models.NotificationType, msg models.SessionMessage) error {
	notif, err := models.NewNotification(recipient, typ, msg)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(notif)
	if err != nil {
		return err
	}
	return m.dir.Publish(ctx, directory.ChannelGameServerNotifs, string(payload))
}
