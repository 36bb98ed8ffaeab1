package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect cross-origin in dev setups.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 45 * time.Second
)

// WSHandler serves GET /v1/ws: plan lifecycle events for the tenant
// pushed over a WebSocket, one JSON object per message.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	_, tenant := s.withTenant(r)
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := s.Broker.Subscribe(tenant)
	defer s.Broker.Unsubscribe(tenant, ch)

	// Reader goroutine: consume control frames and detect close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(1 << 16)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case evt, open := <-ch:
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}
