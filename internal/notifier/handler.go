package notifier

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // recipients authenticate via bearer, not origin
	},
}

// SetupRoutes configures the notification bus routes
func SetupRoutes(router *gin.Engine, hub *Hub) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "fleetmatch-notifier",
		})
	})

	router.GET("/gameserver/notifs/v1", subscribe(hub, ClassGameServer))
	router.GET("/gameclient/notifs/v1", subscribe(hub, ClassGameClient))
}

// subscribe upgrades the request and installs the recipient in the hub
// until the socket closes.
func subscribe(hub *Hub, class string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := bearerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[NOTIFIER] upgrade error for %s %s: %v", class, id, err)
			return
		}

		client := &Client{
			conn:  conn,
			id:    id,
			class: class,
			send:  make(chan []byte, 256),
		}

		hub.register(client)

		go client.writePump()
		client.readPump(hub)
	}
}

func bearerID(c *gin.Context) (uuid.UUID, bool) {
	token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !found {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimSpace(token))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
