package matchmaker

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fleetmatch/backend/internal/models"
	"github.com/fleetmatch/backend/internal/registry"
)

// ReserveBackfill finds a running session with an open slot, asks its
// server to reserve the slot for the user, and returns the server record
// once the reservation shows up in the session's pending set. Returns nil
// when no candidate works out.
func (m *Matchmaker) ReserveBackfill(ctx context.Context, userID uuid.UUID) (*models.GameServerInfo, error) {
	candidates, err := m.reg.BackfillCandidates(ctx)
	if err != nil {
		return nil, err
	}

	// Map iteration order varies run to run; sort so retries walk the
	// candidates the same way within one call.
	ids := make([]uuid.UUID, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, sessionID := range ids {
		if candidates[sessionID] < 1 {
			continue
		}

		sess, err := m.reg.ReadSession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				// Session expired out from under the map; clean up the entry.
				if derr := m.reg.DropBackfillCandidate(ctx, sessionID); derr != nil {
					log.Printf("[BACKFILL] failed to drop stale candidate %s: %v", sessionID, derr)
				}
				continue
			}
			if errors.Is(err, registry.ErrCorrupt) {
				log.Printf("[BACKFILL] skipping candidate %s: %v", sessionID, err)
				continue
			}
			return nil, err
		}

		srv, err := m.reg.ReadServer(ctx, sess.ServerID)
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) || errors.Is(err, registry.ErrCorrupt) {
				// Owning server gone; its session record will age out on TTL.
				log.Printf("[BACKFILL] candidate %s has unusable server %s: %v", sessionID, sess.ServerID, err)
				continue
			}
			return nil, err
		}

		if err := m.publish(ctx, sess.ServerID, models.NotifReservationRequestV1, models.SessionMessage{
			GameSessionID: sessionID,
			PlayerIDs:     []uuid.UUID{userID},
		}); err != nil {
			return nil, err
		}

		log.Printf("[BACKFILL] requested reservation for user %s in session %s on server %s", userID, sessionID, sess.ServerID)

		confirmed, err := m.awaitReservation(ctx, sessionID, userID)
		if err != nil {
			return nil, err
		}
		if confirmed {
			return srv, nil
		}
	}
	return nil, nil
}

// awaitReservation polls the session record until the user appears in its
// pending set or the backfill deadline passes.
func (m *Matchmaker) awaitReservation(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	deadline := time.NewTimer(m.backfillTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.backfillPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			log.Printf("[BACKFILL] timed out waiting for user %s to go pending in session %s", userID, sessionID)
			return false, nil
		case <-ticker.C:
			sess, err := m.reg.ReadSession(ctx, sessionID)
			if err != nil {
				if errors.Is(err, registry.ErrNotFound) || errors.Is(err, registry.ErrCorrupt) {
					log.Printf("[BACKFILL] session %s unreadable while waiting: %v", sessionID, err)
					continue
				}
				return false, err
			}
			for _, id := range sess.PendingPlayerIDs {
				if id == userID {
					return true, nil
				}
			}
		}
	}
}
