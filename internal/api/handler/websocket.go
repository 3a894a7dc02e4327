package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/pizza-nz/ticket-printer/internal/websockets"
)

type WebSocketHandler struct {
	hub      *websockets.Hub
	upgrader *websocket.Upgrader
}

func NewWebSocketHandler(hub *websockets.Hub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		upgrader: websockets.NewUpgrader(allowedOrigins),
	}
}

// ServeHTTP upgrades the connection and streams job events. The optional
// printer query parameter, host:port, limits the stream to one printer.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	printer := r.URL.Query().Get("printer")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		return
	}

	websockets.ServeWs(h.hub, conn, printer)
}
