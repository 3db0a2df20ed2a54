package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"gugudan/internal/model"
)

// createUpgrader creates a WebSocket upgrader with the given allowed origins
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedMap[origin]
		},
	}
}

// HandleWebSocket handles GET /ws
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := createUpgrader(h.Config.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// 接続直後に現在の状態を送る
	if err := conn.WriteJSON(h.snapshot()); err != nil {
		return
	}

	h.ClientMu.Lock()
	h.Clients[conn] = true
	totalClients := len(h.Clients)
	h.ClientMu.Unlock()

	h.Logger.Info().Int("clients", totalClients).Msg("bridge client connected")

	// クライアントからのメッセージを受信（キープアライブ用）
	for {
		var msg interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			h.ClientMu.Lock()
			delete(h.Clients, conn)
			remainingClients := len(h.Clients)
			h.ClientMu.Unlock()
			h.Logger.Info().Int("clients", remainingClients).Msg("bridge client disconnected")
			break
		}
	}
}

func (h *Handler) snapshot() model.SnapshotEvent {
	msgs := h.Relay.Messages()
	if msgs == nil {
		msgs = []model.Message{}
	}
	return model.SnapshotEvent{
		Type:             "snapshot",
		Connected:        h.Relay.Connected(),
		ShowExplanations: h.Relay.ShowExplanations(),
		Messages:         msgs,
	}
}

// WatchRelay queues a snapshot for broadcast after every relay change until
// ctx is done or the relay is disposed.
func (h *Handler) WatchRelay(ctx context.Context) {
	changes := h.Relay.Subscribe()
	defer h.Relay.Unsubscribe(changes)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			select {
			case h.Broadcast <- h.snapshot():
			default:
				h.Logger.Warn().Msg("broadcast queue full, dropping snapshot")
			}
		}
	}
}

// HandleBroadcast broadcasts relay snapshots to all connected WebSocket clients
func (h *Handler) HandleBroadcast() {
	for event := range h.Broadcast {
		// clients マップをスナップショットしてからロックを外すことで、
		// range 中に delete して "concurrent map iteration and map write"
		// が発生するのを防ぐ
		h.ClientMu.RLock()
		clientsSnapshot := make([]*websocket.Conn, 0, len(h.Clients))
		for client := range h.Clients {
			clientsSnapshot = append(clientsSnapshot, client)
		}
		h.ClientMu.RUnlock()

		for _, client := range clientsSnapshot {
			if err := client.WriteJSON(event); err != nil {
				client.Close()
				h.ClientMu.Lock()
				delete(h.Clients, client)
				h.ClientMu.Unlock()
			}
		}
	}
}
