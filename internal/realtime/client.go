package realtime

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/noah-isme/sma-activity-api/internal/domain"
)

const keepaliveInterval = 30 * time.Second

// clientFrame is the only message shape clients send upstream: subscribe to
// or unsubscribe from an activity's group while viewing its detail page.
type clientFrame struct {
	Action string `json:"action"`
	Group  string `json:"group"`
}

// Client is one live connection bound to a principal. A user may hold many
// clients at once (tabs, devices); each is a member of the user's personal
// group. The groups set is guarded by the registry mutex.
type Client struct {
	conn      *websocket.Conn
	principal domain.Principal
	send      chan Event
	closed    chan struct{}
	once      sync.Once
	groups    map[string]struct{}
	connected bool
	registry  *Registry
}

// NewClient wraps a websocket connection for the given principal. The
// connection may be nil for registry-only use.
func NewClient(registry *Registry, conn *websocket.Conn, principal domain.Principal) *Client {
	return &Client{
		conn:      conn,
		principal: principal,
		send:      make(chan Event, registry.sendBuffer),
		closed:    make(chan struct{}),
		groups:    make(map[string]struct{}),
		registry:  registry,
	}
}

// Principal returns the identity bound to this connection.
func (c *Client) Principal() domain.Principal {
	return c.principal
}

// Run connects the client to the registry and pumps frames until the
// connection drops. It blocks for the lifetime of the session.
func (c *Client) Run() {
	c.registry.Connect(c)
	go c.writer()
	c.reader()
}

// deliver enqueues the event for the writer pump. Returns false when the
// queue is full and the event was dropped.
func (c *Client) deliver(event Event) bool {
	select {
	case <-c.closed:
		return true
	default:
	}

	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// reader consumes join/leave frames. Only activity groups may be joined from
// the wire; role and user groups are managed by the registry alone.
func (c *Client) reader() {
	defer c.Close()

	for {
		var frame clientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.registry.log.Debug().Err(err).Str("user_id", c.principal.UserID).Msg("read loop ended")
			return
		}

		group := strings.TrimSpace(frame.Group)
		if !strings.HasPrefix(group, "Activity_") {
			continue
		}

		switch strings.ToLower(frame.Action) {
		case "join":
			c.registry.Join(c, group)
		case "leave":
			c.registry.Leave(c, group)
		}
	}
}

func (c *Client) writer() {
	defer c.Close()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.registry.log.Debug().Err(err).Str("user_id", c.principal.UserID).Msg("write loop ended")
				return
			}
		case <-time.After(keepaliveInterval):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Close tears the client down: deregisters it and closes the transport.
// Idempotent.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.registry.Disconnect(c)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
