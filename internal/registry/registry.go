package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fleetmatch/backend/internal/directory"
	"github.com/fleetmatch/backend/internal/models"
)

// Directory key layout. The registry has exclusive write authority over
// these keys; everything else reads through it.
const (
	keyServerIndex  = "gameservers.index"
	keyWaitingIndex = "gameservers:waiting.index"
	keySessionIndex = "gamesessions.index"
	keyBackfillMap  = "gamesessions:backfill"
)

var (
	// ErrNotFound means the record is absent or its TTL expired.
	ErrNotFound = errors.New("record not found")
	// ErrCorrupt means the record exists but did not decode.
	ErrCorrupt = errors.New("record corrupt")
)

// Registry maintains GameServer and GameSession records plus the waiting
// and backfill indexes in the directory.
type Registry struct {
	dir        *directory.Directory
	serverTTL  time.Duration
	sessionTTL time.Duration
}

func New(dir *directory.Directory, serverTTL, sessionTTL time.Duration) *Registry {
	return &Registry{dir: dir, serverTTL: serverTTL, sessionTTL: sessionTTL}
}

func serverKey(id uuid.UUID) string  { return "gameserver:" + id.String() }
func sessionKey(id uuid.UUID) string { return "gamesession:" + id.String() }

// WriteHeartbeat upserts the server record, its indexes and (when the
// server reports one) the session record and backfill map, all in one
// pipeline. Order is fixed: server record, server index, waiting index,
// then session state. A Shutdown heartbeat deletes the record instead.
func (r *Registry) WriteHeartbeat(ctx context.Context, info *models.GameServerInfo) error {
	now := time.Now()
	score := float64(now.Unix())
	serverStale := strconv.FormatInt(now.Add(-r.serverTTL).Unix(), 10)
	sessionStale := strconv.FormatInt(now.Add(-r.sessionTTL).Unix(), 10)

	if info.State == models.StateShutdown {
		return r.dir.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, serverKey(info.ServerID))
			pipe.ZRem(ctx, keyServerIndex, info.ServerID.String())
			pipe.ZRem(ctx, keyWaitingIndex, info.ServerID.String())
			return nil
		})
	}

	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal server record: %w", err)
	}

	var sessPayload []byte
	var sess *models.GameSession
	if info.GameSession != nil {
		sess = &models.GameSession{
			SessionID:        info.GameSession.GameSessionID,
			ServerID:         info.ServerID,
			MaxPlayers:       info.GameSession.MaxPlayers,
			ActivePlayerIDs:  info.GameSession.ActivePlayerIDs,
			PendingPlayerIDs: info.GameSession.PendingPlayerIDs,
		}
		sessPayload, err = json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshal session record: %w", err)
		}
	}

	return r.dir.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		// (1) server record
		pipe.Set(ctx, serverKey(info.ServerID), payload, r.serverTTL)

		// (2) server index + eviction of expired members
		pipe.ZAdd(ctx, keyServerIndex, redis.Z{Score: score, Member: info.ServerID.String()})
		pipe.ZRemRangeByScore(ctx, keyServerIndex, "0", serverStale)

		// (3) waiting index holds exactly the servers in WaitingForPlacement
		if info.State == models.StateWaitingForPlacement {
			pipe.ZAdd(ctx, keyWaitingIndex, redis.Z{Score: score, Member: info.ServerID.String()})
		} else {
			pipe.ZRem(ctx, keyWaitingIndex, info.ServerID.String())
		}
		pipe.ZRemRangeByScore(ctx, keyWaitingIndex, "0", serverStale)

		if sess != nil {
			pipe.Set(ctx, sessionKey(sess.SessionID), sessPayload, r.sessionTTL)
			pipe.ZAdd(ctx, keySessionIndex, redis.Z{Score: score, Member: sess.SessionID.String()})
			pipe.ZRemRangeByScore(ctx, keySessionIndex, "0", sessionStale)

			open := clampOpenSlots(sess)
			if open > 0 {
				pipe.HSet(ctx, keyBackfillMap, sess.SessionID.String(), strconv.Itoa(open))
			} else {
				pipe.HDel(ctx, keyBackfillMap, sess.SessionID.String())
			}
		}
		return nil
	})
}

// ReadServer returns the server record, ErrNotFound when absent/expired,
// ErrCorrupt when it does not decode.
func (r *Registry) ReadServer(ctx context.Context, serverID uuid.UUID) (*models.GameServerInfo, error) {
	raw, found, err := r.dir.Get(ctx, serverKey(serverID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	var info models.GameServerInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("%w: server %s: %v", ErrCorrupt, serverID, err)
	}
	return &info, nil
}

// ReadSession returns the session record, with the same error semantics
// as ReadServer.
func (r *Registry) ReadSession(ctx context.Context, sessionID uuid.UUID) (*models.GameSession, error) {
	raw, found, err := r.dir.Get(ctx, sessionKey(sessionID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	var sess models.GameSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrCorrupt, sessionID, err)
	}
	return &sess, nil
}

// TakeWaitingServer atomically pops the longest-waiting server from the
// waiting index. The pop removes the server from the pool, so a server is
// never handed to two concurrent placement calls.
func (r *Registry) TakeWaitingServer(ctx context.Context) (uuid.UUID, bool, error) {
	member, _, ok, err := r.dir.ZPopMin(ctx, keyWaitingIndex)
	if err != nil || !ok {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(member)
	if err != nil {
		log.Printf("[REGISTRY] dropping malformed waiting index member %q: %v", member, err)
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

// BackfillCandidates returns the backfill map as session ID -> open slot
// count. Malformed entries are skipped with a warning.
func (r *Registry) BackfillCandidates(ctx context.Context) (map[uuid.UUID]int, error) {
	raw, err := r.dir.HGetAll(ctx, keyBackfillMap)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(raw))
	for member, slots := range raw {
		id, err := uuid.Parse(member)
		if err != nil {
			log.Printf("[REGISTRY] skipping malformed backfill entry %q: %v", member, err)
			continue
		}
		n, err := strconv.Atoi(slots)
		if err != nil {
			log.Printf("[REGISTRY] skipping backfill entry %s with bad slot count %q", member, slots)
			continue
		}
		out[id] = n
	}
	return out, nil
}

// DropBackfillCandidate removes a session from the backfill map. Used when
// a candidate's session record turned out to be gone.
func (r *Registry) DropBackfillCandidate(ctx context.Context, sessionID uuid.UUID) error {
	return r.dir.HDel(ctx, keyBackfillMap, sessionID.String())
}

// clampOpenSlots treats an accounting underflow as a full session rather
// than faulting.
func clampOpenSlots(sess *models.GameSession) int {
	open := sess.OpenSlots()
	if open < 0 {
		log.Printf("[REGISTRY] session %s slot accounting underflow (max=%d active=%d pending=%d); clamping to full",
			sess.SessionID, sess.MaxPlayers, len(sess.ActivePlayerIDs), len(sess.PendingPlayerIDs))
		return 0
	}
	return open
}
