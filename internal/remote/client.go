package remote

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// OriginChecker allows browser connections from a fixed set of origins.
// An empty list allows every origin.
type OriginChecker struct {
	allowed  map[string]struct{}
	allowAll bool
}

func NewOriginChecker(origins []string) *OriginChecker {
	oc := &OriginChecker{allowed: make(map[string]struct{})}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			oc.allowAll = true
		}
		if o != "" {
			oc.allowed[o] = struct{}{}
		}
	}
	if len(oc.allowed) == 0 {
		oc.allowAll = true
	}
	return oc
}

func (oc *OriginChecker) Check(origin string) bool {
	if origin == "" || oc.allowAll {
		return true
	}
	_, ok := oc.allowed[origin]
	return ok
}

// Client is one websocket connection.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
}

// readPump turns incoming messages into queued commands.
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
				c.hub.logger.Warn("sync client read", "error", err)
			}
			return
		}
		c.handle(message)
	}
}

func (c *Client) handle(message []byte) {
	respond := func(ok bool, msg string) {
		c.hub.sendTo(c, &Event{Type: EventReply, Time: time.Now(), Data: reply{OK: ok, Message: msg}})
	}

	cmd, err := ParseJSON(message)
	if err != nil {
		c.hub.logger.Warn("invalid sync command", "error", err)
		respond(false, err.Error())
		return
	}
	if !c.hub.queue.Push(Request{Command: cmd, Source: "ws", Reply: respond}) {
		respond(false, "command queue is full")
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

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return h.origins.Check(r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "error", err)
		return
	}

	client := &Client{conn: conn, hub: h, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
