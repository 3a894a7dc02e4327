package websockets

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
)

// ErrHubStopped is returned by Publish once Run has returned.
var ErrHubStopped = errors.New("websockets: hub stopped")

// Hub fans job events out to connected dashboards. A client subscribed to
// a printer only receives events for that printer.
type Hub struct {
	clients map[*Client]bool

	register chan *Client

	unregister chan *Client

	broadcast chan outbound

	done chan struct{}

	logger *slog.Logger

	// mu guards clients and each client's printer filter.
	mu sync.Mutex
}

type outbound struct {
	printer string
	message []byte
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		broadcast:  make(chan outbound, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		logger:     logger.With("component", "websockets"),
	}
}

// Publish broadcasts an encoded job event. It satisfies events.Publisher.
func (h *Hub) Publish(ctx context.Context, topic string, msg []byte) error {
	var target struct {
		Printer string `json:"printer"`
	}
	if err := json.Unmarshal(msg, &target); err != nil {
		return err
	}

	wrapped, err := json.Marshal(Message{Type: TypeJobEvent, Topic: topic, Data: msg})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- outbound{printer: target.Printer, message: wrapped}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Subscribe restricts client to events for printer. An empty printer
// receives everything.
func (h *Hub) Subscribe(client *Client, printer string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.printer = printer
}

// Run serves registrations and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.dropLocked(client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client connected", "remote", client.remote)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.dropLocked(client)
			}
			h.mu.Unlock()
		case out := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.printer != "" && client.printer != out.printer {
					continue
				}
				select {
				case client.send <- out.message:
				default:
					h.logger.Warn("dropping slow client", "remote", client.remote)
					h.dropLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) dropLocked(client *Client) {
	delete(h.clients, client)
	close(client.send)
}
