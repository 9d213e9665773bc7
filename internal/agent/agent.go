package agent

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetmatch/backend/internal/config"
	"github.com/fleetmatch/backend/internal/models"
	"github.com/fleetmatch/backend/internal/orchestrator"
)

// Phase is the agent's position in the server lifecycle.
type Phase int

const (
	PhaseStartup Phase = iota
	PhaseWaitForPlacement
	PhaseInitServer
	PhaseInGame
	PhaseShutdown
)

// ServerState maps the lifecycle phase onto the heartbeat wire state.
func (p Phase) ServerState() models.ServerState {
	switch p {
	case PhaseStartup:
		return models.StateInit
	case PhaseWaitForPlacement:
		return models.StateWaitingForPlacement
	case PhaseInitServer:
		return models.StateLoading
	case PhaseInGame:
		return models.StateInGame
	default:
		return models.StateShutdown
	}
}

// session is the agent's authoritative view of the hosted game session.
// Pending entries carry the deadline after which the reservation is
// reclaimed.
type session struct {
	id         uuid.UUID
	maxPlayers int
	active     map[uuid.UUID]struct{}
	pending    map[uuid.UUID]time.Time
}

func (s *session) playerCount() int {
	return len(s.active) + len(s.pending)
}

// Agent is the in-process lifecycle state machine every game server runs.
// All mutable state is owned by the agent and guarded by mu; there is no
// external write path.
type Agent struct {
	cfg      *config.Config
	orch     orchestrator.Orchestrator
	serverID uuid.UUID
	port     uint16
	addrsV4  []string
	addrsV6  []string

	mu        sync.Mutex
	phase     Phase
	sess      *session
	idleSince time.Time

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

func New(cfg *config.Config, orch orchestrator.Orchestrator, port uint16) *Agent {
	v4, v6 := LocalAddrs()
	return &Agent{
		cfg:        cfg,
		orch:       orch,
		serverID:   uuid.New(),
		port:       port,
		addrsV4:    v4,
		addrsV6:    v6,
		phase:      PhaseStartup,
		shutdownCh: make(chan struct{}),
	}
}

// ServerID returns the agent's identity used for heartbeats and the
// notification mailbox.
func (a *Agent) ServerID() uuid.UUID { return a.serverID }

// Run drives the agent until ctx is cancelled or an idle shutdown fires.
// Ready errors from the orchestrator are fatal by contract.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.orch.Ready(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	a.phase = PhaseWaitForPlacement
	a.mu.Unlock()
	log.Printf("[AGENT] server %s ready, waiting for placement", a.serverID)

	udp, err := a.listenUDP()
	if err != nil {
		return err
	}
	defer udp.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.heartbeatLoop(runCtx)
	go a.notificationLoop(runCtx)
	go a.timerLoop(runCtx)
	go a.serveUDP(runCtx, udp)

	select {
	case <-ctx.Done():
	case <-a.shutdownCh:
	}

	// Shutdown order: stop the heartbeat emitter and the other loops
	// first, then report the final state, then deregister.
	cancel()
	a.mu.Lock()
	a.phase = PhaseShutdown
	a.mu.Unlock()
	a.emitHeartbeat(context.Background())

	if err := a.orch.Shutdown(context.Background()); err != nil {
		log.Printf("[AGENT] orchestrator shutdown failed: %v", err)
	}
	log.Printf("[AGENT] server %s shut down", a.serverID)
	return nil
}

// requestShutdown triggers the exit path in Run. Safe to call repeatedly.
func (a *Agent) requestShutdown() {
	a.shutdownOnce.Do(func() { close(a.shutdownCh) })
}

// handlePlacement reacts to a PlacementRequestV1. Only legal while
// waiting for placement; oversized requests are rejected whole.
func (a *Agent) handlePlacement(msg models.SessionMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseWaitForPlacement {
		log.Printf("[AGENT] ignoring placement request for session %s in phase %v", msg.GameSessionID, a.phase.ServerState())
		return
	}
	if len(msg.PlayerIDs) > a.cfg.MaxPlayers {
		log.Printf("[AGENT] rejecting placement for session %s: %d players exceeds capacity %d",
			msg.GameSessionID, len(msg.PlayerIDs), a.cfg.MaxPlayers)
		return
	}

	sess := &session{
		id:         msg.GameSessionID,
		maxPlayers: a.cfg.MaxPlayers,
		active:     make(map[uuid.UUID]struct{}),
		pending:    make(map[uuid.UUID]time.Time),
	}
	deadline := time.Now().Add(time.Duration(a.cfg.PendingPlayerTimeoutSecs) * time.Second)
	for _, id := range msg.PlayerIDs {
		sess.pending[id] = deadline
	}

	a.sess = sess
	a.phase = PhaseInitServer
	log.Printf("[AGENT] accepted placement: session %s, %d reserved players", sess.id, len(sess.pending))

	// The UDP listener is already bound; once the engine load completes
	// the server is in game. The load itself is outside the control
	// plane, so the transition happens on the spot.
	a.phase = PhaseInGame
}

// handleReservation reacts to a ReservationRequestV1 while in game.
// Reservations that would exceed capacity are rejected all-or-nothing.
func (a *Agent) handleReservation(msg models.SessionMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseInGame || a.sess == nil {
		log.Printf("[AGENT] ignoring reservation request in phase %v", a.phase.ServerState())
		return
	}
	if a.sess.id != msg.GameSessionID {
		log.Printf("[AGENT] ignoring reservation for session %s; hosting %s", msg.GameSessionID, a.sess.id)
		return
	}
	if a.sess.playerCount()+len(msg.PlayerIDs) > a.sess.maxPlayers {
		log.Printf("[AGENT] rejecting reservation for session %s: capacity %d, have %d, requested %d",
			a.sess.id, a.sess.maxPlayers, a.sess.playerCount(), len(msg.PlayerIDs))
		return
	}

	deadline := time.Now().Add(time.Duration(a.cfg.PendingPlayerTimeoutSecs) * time.Second)
	for _, id := range msg.PlayerIDs {
		if _, exists := a.sess.active[id]; exists {
			continue
		}
		a.sess.pending[id] = deadline
		log.Printf("[AGENT] reserved slot for player %s in session %s", id, a.sess.id)
	}
}

// clientConnect admits a player carried by a UDP connect datagram.
// Admission requires a pending reservation.
func (a *Agent) clientConnect(userID uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseInGame || a.sess == nil {
		return false
	}
	if _, ok := a.sess.pending[userID]; !ok {
		log.Printf("[AGENT] refusing connect from player %s: no pending reservation", userID)
		return false
	}
	delete(a.sess.pending, userID)
	a.sess.active[userID] = struct{}{}
	log.Printf("[AGENT] player %s connected to session %s", userID, a.sess.id)
	return true
}

// clientDisconnect removes a player from the active set.
func (a *Agent) clientDisconnect(userID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sess == nil {
		return
	}
	if _, ok := a.sess.active[userID]; ok {
		delete(a.sess.active, userID)
		log.Printf("[AGENT] player %s disconnected from session %s", userID, a.sess.id)
	}
}

// expirePending reclaims pending slots whose deadline has passed.
func (a *Agent) expirePending(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sess == nil {
		return
	}
	for id, deadline := range a.sess.pending {
		if now.After(deadline) {
			delete(a.sess.pending, id)
			log.Printf("[AGENT] pending reservation for player %s timed out", id)
		}
	}
}

// checkIdle tracks how long the in-game session has been empty and
// requests shutdown once the idle window elapses, where the fleet policy
// wants that.
func (a *Agent) checkIdle(now time.Time) {
	a.mu.Lock()

	if a.phase != PhaseInGame || a.sess == nil || a.sess.playerCount() > 0 {
		a.idleSince = time.Time{}
		a.mu.Unlock()
		return
	}
	if a.idleSince.IsZero() {
		a.idleSince = now
		a.mu.Unlock()
		return
	}
	idleFor := now.Sub(a.idleSince)
	sessID := a.sess.id
	a.mu.Unlock()

	if idleFor >= time.Duration(a.cfg.SessionShutdownTimeoutSecs)*time.Second && a.orch.WantsIdleShutdown() {
		log.Printf("[AGENT] session %s idle for %v, shutting down", sessID, idleFor)
		a.requestShutdown()
	}
}

// timerLoop drives the pending-player and idle-shutdown timers.
func (a *Agent) timerLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.expirePending(now)
			a.checkIdle(now)
		}
	}
}

// snapshotServerInfo builds the heartbeat body under the session lock, so
// any reservation applied before the snapshot is visible in it.
func (a *Agent) snapshotServerInfo() models.GameServerInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	info := models.GameServerInfo{
		ServerID:      a.serverID,
		AddrsV4:       a.addrsV4,
		AddrsV6:       a.addrsV6,
		Port:          a.port,
		State:         a.phase.ServerState(),
		Orchestration: a.orch.Kind(),
	}
	if a.sess != nil {
		si := &models.GameSessionInfo{
			GameSessionID:    a.sess.id,
			MaxPlayers:       a.sess.maxPlayers,
			ActivePlayerIDs:  make([]uuid.UUID, 0, len(a.sess.active)),
			PendingPlayerIDs: make([]uuid.UUID, 0, len(a.sess.pending)),
		}
		for id := range a.sess.active {
			si.ActivePlayerIDs = append(si.ActivePlayerIDs, id)
		}
		for id := range a.sess.pending {
			si.PendingPlayerIDs = append(si.PendingPlayerIDs, id)
		}
		info.GameSession = si
	}
	return info
}
