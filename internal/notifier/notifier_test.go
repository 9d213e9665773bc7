package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fleetmatch/backend/internal/directory"
	"github.com/fleetmatch/backend/internal/models"
)

type busFixture struct {
	dir    *directory.Directory
	client *redis.Client
	hub    *Hub
	wsURL  string
}

func setupBus(t *testing.T) *busFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	dir := directory.New(client)
	hub := NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	StartSubscriber(ctx, dir, hub)

	router := gin.New()
	SetupRoutes(router, hub)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	fx := &busFixture{
		dir:    dir,
		client: client,
		hub:    hub,
		wsURL:  "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
	fx.waitSubscribed(t)
	return fx
}

// waitSubscribed blocks until the bus instance's pub/sub subscription is
// live, so a following publish cannot race it.
func (fx *busFixture) waitSubscribed(t *testing.T) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		counts, err := fx.client.PubSubNumSub(context.Background(), directory.ChannelGameServerNotifs).Result()
		require.NoError(t, err)
		if counts[directory.ChannelGameServerNotifs] > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("bus never subscribed to notification channels")
}

func (fx *busFixture) dial(t *testing.T, path string, id uuid.UUID) *websocket.Conn {
	t.Helper()

	header := http.Header{"Authorization": []string{"Bearer " + id.String()}}
	conn, resp, err := websocket.DefaultDialer.Dial(fx.wsURL+path, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	// The handler registers after the handshake; wait for the hub entry so
	// a following publish cannot race it.
	class := ClassGameServer
	if strings.HasPrefix(path, "/gameclient") {
		class = ClassGameClient
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fx.hub.mu.RLock()
		_, ok := fx.hub.table(class)[id]
		fx.hub.mu.RUnlock()
		if ok {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("recipient %s never registered", id)
	return nil
}

func (fx *busFixture) publish(t *testing.T, recipient uuid.UUID) models.Notification {
	t.Helper()

	notif, err := models.NewNotification(recipient, models.NotifPlacementRequestV1, models.SessionMessage{
		GameSessionID: uuid.New(),
		PlayerIDs:     []uuid.UUID{uuid.New()},
	})
	require.NoError(t, err)
	payload, err := json.Marshal(notif)
	require.NoError(t, err)
	require.NoError(t, fx.dir.Publish(context.Background(), directory.ChannelGameServerNotifs, string(payload)))
	return notif
}

func readEnvelope(t *testing.T, conn *websocket.Conn) models.Notification {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var notif models.Notification
	require.NoError(t, json.Unmarshal(payload, &notif))
	return notif
}

func TestForwardToSubscribedRecipient(t *testing.T) {
	fx := setupBus(t)
	serverID := uuid.New()

	conn := fx.dial(t, "/gameserver/notifs/v1", serverID)
	sent := fx.publish(t, serverID)

	got := readEnvelope(t, conn)
	require.Equal(t, sent.Recipient, got.Recipient)
	require.Equal(t, models.NotifPlacementRequestV1, got.Type)
	require.Equal(t, sent.Message, got.Message)
}

// Publishes to one recipient must not reach another's socket, and arrive
// in publish order for the owner.
func TestDirectedDeliveryInOrder(t *testing.T) {
	fx := setupBus(t)
	serverA := uuid.New()
	serverB := uuid.New()

	connA := fx.dial(t, "/gameserver/notifs/v1", serverA)
	connB := fx.dial(t, "/gameserver/notifs/v1", serverB)

	first := fx.publish(t, serverA)
	second := fx.publish(t, serverA)

	require.Equal(t, first.Message, readEnvelope(t, connA).Message)
	require.Equal(t, second.Message, readEnvelope(t, connA).Message)

	connB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := connB.ReadMessage()
	require.Error(t, err, "recipient B should not see A's notifications")
}

// The newest socket for a recipient wins; the replaced one is closed.
func TestLatestConnectionWins(t *testing.T) {
	fx := setupBus(t)
	serverID := uuid.New()

	oldConn := fx.dial(t, "/gameserver/notifs/v1", serverID)
	newConn := fx.dial(t, "/gameserver/notifs/v1", serverID)

	// The replaced socket is closed by the hub.
	oldConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := oldConn.ReadMessage()
	require.Error(t, err)

	sent := fx.publish(t, serverID)
	got := readEnvelope(t, newConn)
	require.Equal(t, sent.Message, got.Message)
}

func TestSubscribeRejectsBadBearer(t *testing.T) {
	fx := setupBus(t)

	url := "http" + strings.TrimPrefix(fx.wsURL, "ws")
	req, err := http.NewRequest(http.MethodGet, url+"/gameserver/notifs/v1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer nope")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestForwardWithoutRecipientDrops(t *testing.T) {
	fx := setupBus(t)

	delivered := fx.hub.Forward(ClassGameServer, uuid.New(), []byte("{}"))
	require.False(t, delivered)
}

func TestGameClientRecipientSpace(t *testing.T) {
	fx := setupBus(t)
	userID := uuid.New()

	conn := fx.dial(t, "/gameclient/notifs/v1", userID)

	notif, err := models.NewNotification(userID, models.NotifReservationRequestV1, models.SessionMessage{GameSessionID: uuid.New()})
	require.NoError(t, err)
	payload, err := json.Marshal(notif)
	require.NoError(t, err)
	require.NoError(t, fx.dir.Publish(context.Background(), directory.ChannelGameClientNotifs, string(payload)))

	got := readEnvelope(t, conn)
	require.Equal(t, userID, got.Recipient)
}
