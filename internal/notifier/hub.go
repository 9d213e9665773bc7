package notifier

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// recipient classes; each has its own table and pub/sub channel
const (
	ClassGameServer = "gameserver"
	ClassGameClient = "gameclient"
)

// Client represents one subscribed recipient socket
type Client struct {
	conn  *websocket.Conn
	id    uuid.UUID
	class string
	send  chan []byte
}

// Hub maps recipient IDs to their active sockets. Each ID holds at most
// one socket; the latest connection wins.
type Hub struct {
	gameServers map[uuid.UUID]*Client
	gameClients map[uuid.UUID]*Client
	mu          sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		gameServers: make(map[uuid.UUID]*Client),
		gameClients: make(map[uuid.UUID]*Client),
	}
}

func (h *Hub) table(class string) map[uuid.UUID]*Client {
	if class == ClassGameServer {
		return h.gameServers
	}
	return h.gameClients
}

// register installs the client, replacing and closing any existing socket
// for the same recipient.
func (h *Hub) register(client *Client) {
	h.mu.Lock()
	table := h.table(client.class)
	if old, exists := table[client.id]; exists {
		log.Printf("[NOTIFIER] %s %s reconnecting - closing old connection", client.class, client.id)
		if err := old.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection"), time.Now().Add(5*time.Second)); err != nil {
			log.Printf("[NOTIFIER] error writing close control to old %s %s: %v", old.class, old.id, err)
		}
		old.conn.Close()
		select {
		case <-old.send:
		default:
			close(old.send)
		}
	}
	table[client.id] = client
	h.mu.Unlock()

	log.Printf("[NOTIFIER] %s %s subscribed", client.class, client.id)
}

// unregister removes the client unless it was already replaced.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	table := h.table(client.class)
	if cur, ok := table[client.id]; ok && cur == client {
		delete(table, client.id)
		select {
		case <-client.send:
		default:
			close(client.send)
		}
		log.Printf("[NOTIFIER] %s %s unsubscribed", client.class, client.id)
	}
	h.mu.Unlock()
}

// Forward delivers a raw envelope to the recipient if this instance holds
// its socket. Delivery is best effort: a missing recipient or a full
// buffer drops the message.
func (h *Hub) Forward(class string, recipient uuid.UUID, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.table(class)[recipient]
	if !exists {
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		log.Printf("[NOTIFIER] send buffer full for %s %s, dropping message", class, recipient)
		return false
	}
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed - connection is being replaced or cleaned up.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[NOTIFIER] write error for %s %s: %v", c.class, c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[NOTIFIER] ping error for %s %s: %v", c.class, c.id, err)
				return
			}
		}
	}
}

// readPump drains the socket until it closes. Incoming frames from
// recipients carry no protocol meaning and are discarded.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[NOTIFIER] read error for %s %s: %v", c.class, c.id, err)
			}
			return
		}
	}
}
