package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatroom-backend/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MessageCreator persists a socket-originated chat message and announces it.
type MessageCreator interface {
	Create(ctx context.Context, user, text string) (*model.Message, error)
}

type Client struct {
	id      uuid.UUID
	addr    string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	creator MessageCreator
	log     *slog.Logger
}

// ServeWs upgrades the request and hands the connection to the hub, which
// starts its pumps.
func ServeWs(hub *Hub, creator MessageCreator, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn("upgrade connection failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.New()
	client := &Client{
		id:      id,
		addr:    r.RemoteAddr,
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, hub.opts.SendBuffer),
		creator: creator,
		log:     hub.log.With("client_id", id),
	}
	conn.SetReadLimit(hub.opts.MaxMessageSize)

	if err := hub.addClient(client); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn("write frame failed", "error", err)
				}
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!isExpectedCloseError(err) {
				c.log.Warn("unexpected websocket close", "error", err)
			}
			return
		}

		var msg WsMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			c.log.Warn("decode frame failed", "error", err)
			continue
		}

		switch msg.Type {
		case EventChatMessage:
			c.handleChatMessage(msg.Payload)
		default:
			c.log.Debug("ignoring frame", "type", msg.Type)
		}
	}
}

// handleChatMessage is fire-and-forget: failures are logged and the sender gets
// no error frame.
func (c *Client) handleChatMessage(payload json.RawMessage) {
	var req ChatMessageRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.log.Warn("decode chat message failed", "error", err)
		return
	}

	if _, err := c.creator.Create(c.hub.ctx, req.User, req.Text); err != nil {
		c.log.Error("save chat message failed", "user", req.User, "error", err)
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
