// Package realtime fans chat events out to every connected WebSocket client.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

var ErrHubClosed = errors.New("hub is closed")

type Options struct {
	MaxMessageSize int64
	SendBuffer     int
}

func (o Options) withDefaults() Options {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// Hub owns the connected-client set. Registration, removal and fan-out all
// happen on the Run goroutine, so every client observes frames in the order
// they were handed to Broadcast.
type Hub struct {
	log        *slog.Logger
	opts       Options
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewHub(log *slog.Logger, opts Options) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log,
		opts:       opts.withDefaults(),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client connected", "client_id", client.id, "addr", client.addr, "clients", count)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			if h.remove(client) {
				h.log.Info("client disconnected", "client_id", client.id, "clients", h.ClientCount())
			}

		case frame := <-h.broadcast:
			h.fanOut(frame)
		}
	}
}

// Broadcast encodes payload under eventType and queues it for every client
// connected when the hub processes it.
func (h *Hub) Broadcast(ctx context.Context, eventType string, payload interface{}) error {
	frame, err := NewWsMessage(eventType, payload)
	if err != nil {
		return fmt.Errorf("encode %q event failed: %w", eventType, err)
	}
	return h.BroadcastFrame(ctx, frame)
}

// BroadcastFrame queues an already encoded envelope.
func (h *Hub) BroadcastFrame(ctx context.Context, frame []byte) error {
	if h.ctx.Err() != nil {
		return ErrHubClosed
	}
	select {
	case h.broadcast <- frame:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

func (h *Hub) removeClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) fanOut(frame []byte) {
	h.mu.RLock()
	var slow []*Client
	for client := range h.clients {
		select {
		case client.send <- frame:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		if h.remove(client) {
			h.log.Warn("client dropped, send buffer full", "client_id", client.id)
		}
	}
}

// remove must only be called from Run; it is the single place send channels
// are closed.
func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
	}
	h.mu.Unlock()

	if ok {
		close(client.send)
	}
	return ok
}

func (h *Hub) shutdownClients() {
	h.mu.Lock()
	clients := lo.Keys(h.clients)
	clear(h.clients)
	h.mu.Unlock()

	for _, client := range clients {
		close(client.send)
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("close client connection failed", "client_id", client.id, "error", err)
		}
	}
	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown stops Run, closes every connection and waits for the client pumps.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}
