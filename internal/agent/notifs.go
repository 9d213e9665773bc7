package agent

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetmatch/backend/internal/models"
)

const (
	baseReconnectDelay = 1 * time.Second
	maxReconnectDelay  = 2 * time.Minute
	notifReadWait      = 90 * time.Second
)

// notificationLoop keeps a WebSocket to the notification bus open,
// reconnecting with capped exponential backoff. Missed notifications are
// not replayed; the matchmaking timeouts are the backstop.
func (a *Agent) notificationLoop(ctx context.Context) {
	delay := baseReconnectDelay
	for {
		if ctx.Err() != nil {
			return
		}

		header := http.Header{"Authorization": []string{"Bearer " + a.serverID.String()}}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.cfg.NotifierURL+"/gameserver/notifs/v1", header)
		if err != nil {
			log.Printf("[AGENT] notification bus dial failed, retrying in %v: %v", delay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		delay = baseReconnectDelay
		log.Printf("[AGENT] subscribed to notification mailbox %s", a.serverID)
		a.readNotifications(ctx, conn)
	}
}

// readNotifications consumes envelopes until the socket breaks or ctx is
// cancelled.
func (a *Agent) readNotifications(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(notifReadWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(notifReadWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[AGENT] notification socket closed: %v", err)
			}
			return
		}

		var notif models.Notification
		if err := json.Unmarshal(payload, &notif); err != nil {
			log.Printf("[AGENT] invalid notification payload: %v", err)
			continue
		}
		if notif.Recipient != a.serverID {
			log.Printf("[AGENT] ignoring notification addressed to %s", notif.Recipient)
			continue
		}
		a.dispatch(notif)
	}
}

// dispatch routes an envelope to its handler. Handlers are idempotent;
// delivery is at-least-once.
func (a *Agent) dispatch(notif models.Notification) {
	msg, err := notif.SessionMessage()
	if err != nil {
		log.Printf("[AGENT] invalid %s message: %v", notif.Type, err)
		return
	}

	switch notif.Type {
	case models.NotifPlacementRequestV1:
		a.handlePlacement(msg)
	case models.NotifReservationRequestV1:
		a.handleReservation(msg)
	default:
		log.Printf("[AGENT] unknown notification type %q", notif.Type)
	}
}
