package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"

	"github.com/google/uuid"
)

// connectDatagram is the admission handshake of the game's UDP protocol.
// The simulation traffic that follows is not the control plane's concern.
type connectDatagram struct {
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"user_id"`
}

type connectAck struct {
	Type     string `json:"type"`
	Accepted bool   `json:"accepted"`
}

func (a *Agent) listenUDP() (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf(":%d", a.port))
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind game port %d: %w", a.port, err)
	}
	log.Printf("[AGENT] game listener bound on %s", conn.LocalAddr())
	return conn, nil
}

// serveUDP admits clients with a pending reservation and tracks
// disconnects. Anything else on the socket is ignored.
func (a *Agent) serveUDP(ctx context.Context, conn *net.UDPConn) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 1024)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[AGENT] game listener read error: %v", err)
			}
			return
		}

		var dgram connectDatagram
		if err := json.Unmarshal(buf[:n], &dgram); err != nil {
			continue
		}

		switch dgram.Type {
		case "connect":
			accepted := a.clientConnect(dgram.UserID)
			ack, _ := json.Marshal(connectAck{Type: "connect_ack", Accepted: accepted})
			if _, err := conn.WriteToUDP(ack, remote); err != nil {
				log.Printf("[AGENT] connect ack to %s failed: %v", remote, err)
			}
		case "disconnect":
			a.clientDisconnect(dgram.UserID)
		}
	}
}
