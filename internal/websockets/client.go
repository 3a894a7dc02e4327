package websockets

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
)

type MessageType string

const (
	TypeJobEvent  MessageType = "job.event"
	TypeSubscribe MessageType = "subscribe"
	TypeError     MessageType = "error"
	TypePing      MessageType = "ping"
	TypePong      MessageType = "pong"
)

type Message struct {
	Type  MessageType     `json:"type"`
	Topic string          `json:"topic,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	remote string

	// printer is guarded by hub.mu.
	printer string
}

func NewClient(hub *Hub, conn *websocket.Conn, printer string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		remote:  conn.RemoteAddr().String(),
		printer: printer,
	}
}

// readPump handles the few control messages dashboards send. Job events
// only flow from the hub to clients.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", "remote", c.remote, "error", err)
			}
			break
		}

		var wsMessage Message
		if err := json.Unmarshal(message, &wsMessage); err != nil {
			c.reply(Message{Type: TypeError, Data: json.RawMessage(`"invalid message"`)})
			continue
		}

		switch wsMessage.Type {
		case TypeSubscribe:
			var subscribeData struct {
				Printer string `json:"printer"`
			}
			if err := json.Unmarshal(wsMessage.Data, &subscribeData); err != nil {
				c.reply(Message{Type: TypeError, Data: json.RawMessage(`"invalid subscribe data"`)})
				continue
			}
			c.hub.Subscribe(c, subscribeData.Printer)

		case TypePing:
			c.reply(Message{Type: TypePong})

		default:
			c.reply(Message{Type: TypeError, Data: json.RawMessage(`"unsupported message type"`)})
		}
	}
}

// reply queues msg for this client only. It gives up if the client is
// being dropped.
func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs registers a connected client and starts its pumps. The printer
// filter may be empty.
func ServeWs(hub *Hub, conn *websocket.Conn, printer string) {
	client := NewClient(hub, conn, printer)

	select {
	case client.hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
