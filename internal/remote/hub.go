package remote

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/camuig/coin-trader/internal/logger"
	"github.com/camuig/coin-trader/internal/metrics"
)

// Hub keeps the connected sync clients. Outgoing events are broadcast to
// all of them; incoming messages are parsed as commands and queued.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	queue   *Queue
	origins *OriginChecker
	logger  *logger.Logger

	dropped atomic.Int64
}

func NewHub(queue *Queue, allowedOrigins []string, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		queue:      queue,
		origins:    NewOriginChecker(allowedOrigins),
		logger:     log,
	}
}

// Run serves register, unregister and broadcast until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.closeAll()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SyncClients.Set(float64(n))
			h.logger.Info("sync client connected", "clients", n)

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()

			var slow []*Client
			for _, c := range clients {
				select {
				case c.send <- message:
				default:
					slow = append(slow, c)
				}
			}
			for _, c := range slow {
				h.remove(c)
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SyncClients.Set(float64(n))
	h.logger.Info("sync client disconnected", "clients", n)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	metrics.SyncClients.Set(0)
}

// Broadcast encodes message as JSON and hands it to the run loop. When the
// loop is backed up the message is dropped.
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("marshal sync event", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
	}
}

// sendTo delivers a message to a single client if it is still registered.
func (h *Hub) sendTo(c *Client, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("marshal sync reply", "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
