package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ServerState is the lifecycle state a game server reports in its heartbeat.
type ServerState string

const (
	StateInit                ServerState = "init"
	StateWaitingForPlacement ServerState = "waitingforplacement"
	StateLoading             ServerState = "loading"
	StateInGame              ServerState = "ingame"
	StateShutdown            ServerState = "shutdown"
)

// Valid reports whether s is one of the known server states.
func (s ServerState) Valid() bool {
	switch s {
	case StateInit, StateWaitingForPlacement, StateLoading, StateInGame, StateShutdown:
		return true
	}
	return false
}

// Orchestration identifies the fleet orchestrator a server runs under.
type Orchestration string

const (
	OrchestrationLocal    Orchestration = "local"
	OrchestrationAgones   Orchestration = "agones"
	OrchestrationGameLift Orchestration = "gamelift"
)

// GameServerInfo is the directory record for a game server. The same shape
// is carried in the heartbeat body; the handler fills ServerID from the
// bearer token.
type GameServerInfo struct {
	ServerID      uuid.UUID        `json:"server_id"`
	AddrsV4       []string         `json:"addrs_v4"`
	AddrsV6       []string         `json:"addrs_v6"`
	Port          uint16           `json:"port"`
	State         ServerState      `json:"state"`
	Orchestration Orchestration    `json:"orchestration"`
	GameSession   *GameSessionInfo `json:"game_session_info,omitempty"`
}

// Address returns the server's preferred reachable address, IPv4 first.
func (s *GameServerInfo) Address() string {
	if len(s.AddrsV4) > 0 {
		return s.AddrsV4[0]
	}
	if len(s.AddrsV6) > 0 {
		return s.AddrsV6[0]
	}
	return ""
}

// GameSessionInfo is the session record a server reports while hosting.
type GameSessionInfo struct {
	GameSessionID    uuid.UUID   `json:"game_session_id"`
	MaxPlayers       int         `json:"max_players"`
	ActivePlayerIDs  []uuid.UUID `json:"active_player_ids"`
	PendingPlayerIDs []uuid.UUID `json:"pending_player_ids"`
}

// OpenSlots returns remaining capacity. May be negative on an accounting
// bug; the registry clamps and logs.
func (s *GameSessionInfo) OpenSlots() int {
	return s.MaxPlayers - len(s.ActivePlayerIDs) - len(s.PendingPlayerIDs)
}

// GameSession is the directory record keyed by session ID; it adds the
// owning server to the heartbeat's session info.
type GameSession struct {
	SessionID        uuid.UUID   `json:"session_id"`
	ServerID         uuid.UUID   `json:"server_id"`
	MaxPlayers       int         `json:"max_players"`
	ActivePlayerIDs  []uuid.UUID `json:"active_player_ids"`
	PendingPlayerIDs []uuid.UUID `json:"pending_player_ids"`
}

func (s *GameSession) OpenSlots() int {
	return s.MaxPlayers - len(s.ActivePlayerIDs) - len(s.PendingPlayerIDs)
}

// NotificationType discriminates notification payloads.
type NotificationType string

const (
	NotifPlacementRequestV1   NotificationType = "placement_request_v1"
	NotifReservationRequestV1 NotificationType = "reservation_request_v1"
)

// Notification is the envelope published on the bus channels. Message is
// the inner payload JSON, carried as a string.
type Notification struct {
	Recipient uuid.UUID        `json:"recipient"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
}

// SessionMessage is the inner payload of both placement and reservation
// requests.
type SessionMessage struct {
	GameSessionID uuid.UUID   `json:"game_session_id"`
	PlayerIDs     []uuid.UUID `json:"player_ids"`
}

// NewNotification wraps a SessionMessage into an envelope for a recipient.
func NewNotification(recipient uuid.UUID, typ NotificationType, msg SessionMessage) (Notification, error) {
	inner, err := json.Marshal(msg)
	if err != nil {
		return Notification{}, err
	}
	return Notification{Recipient: recipient, Type: typ, Message: string(inner)}, nil
}

// SessionMessage decodes the envelope's inner payload.
func (n *Notification) SessionMessage() (SessionMessage, error) {
	var msg SessionMessage
	err := json.Unmarshal([]byte(n.Message), &msg)
	return msg, err
}

// HeartbeatRequest is the body of POST /gameserver/heartbeat/v1.
type HeartbeatRequest struct {
	ServerInfo GameServerInfo `json:"server_info"`
}

// FindServerResponse is the body of GET /gameclient/find_server/v1.
// An empty Address means no capacity was found.
type FindServerResponse struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}
