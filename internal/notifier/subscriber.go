package notifier

import (
	"context"
	"encoding/json"
	"log"

	"github.com/fleetmatch/backend/internal/directory"
	"github.com/fleetmatch/backend/internal/models"
)

// StartSubscriber subscribes to both notification channels and forwards
// each envelope to the locally connected recipient, if any. Pub/sub is
// broadcast, so every bus instance sees every publish; only the instance
// holding the recipient's socket delivers it.
func StartSubscriber(ctx context.Context, dir *directory.Directory, hub *Hub) {
	pubsub := dir.Subscribe(ctx, directory.ChannelGameServerNotifs, directory.ChannelGameClientNotifs)
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		log.Println("[NOTIFIER] notification subscriber started")
		for {
			select {
			case <-ctx.Done():
				log.Println("[NOTIFIER] notification subscriber stopping")
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var notif models.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &notif); err != nil {
					log.Printf("[NOTIFIER] invalid notification payload: %v", err)
					continue
				}

				class := ClassGameClient
				if msg.Channel == directory.ChannelGameServerNotifs {
					class = ClassGameServer
				}

				if !hub.Forward(class, notif.Recipient, []byte(msg.Payload)) {
					// Recipient is not subscribed here; another instance may
					// hold the socket, or the message is simply lost.
					log.Printf("[NOTIFIER] no local %s subscriber for %s, dropping %s", class, notif.Recipient, notif.Type)
				}
			}
		}
	}()
}
