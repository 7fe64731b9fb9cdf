package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-activity-api/internal/observability"
)

const defaultSendBuffer = 32

// Registry owns the mapping from live connections to named groups. All group
// state lives behind a single RWMutex: joins and leaves take the write lock,
// broadcast iteration takes the read lock, and delivery to each client is a
// non-blocking channel send so a slow consumer never stalls the lock.
type Registry struct {
	mu         sync.RWMutex
	groups     map[string]map[*Client]struct{}
	sendBuffer int
	log        zerolog.Logger
}

// NewRegistry constructs an empty connection registry.
func NewRegistry(sendBuffer int, logger zerolog.Logger) *Registry {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Registry{
		groups:     make(map[string]map[*Client]struct{}),
		sendBuffer: sendBuffer,
		log:        logger.With().Str("component", "realtime_registry").Logger(),
	}
}

// Connect registers a client and auto-joins its role group and personal
// group. The role group is told a user joined.
func (r *Registry) Connect(c *Client) {
	roleGroup := c.principal.Role.GroupName()

	r.mu.Lock()
	c.connected = true
	r.joinLocked(c, roleGroup)
	r.joinLocked(c, UserGroup(c.principal.UserID))
	r.mu.Unlock()

	observability.WSConnectionsActive().Inc()
	r.log.Debug().Str("user_id", c.principal.UserID).Str("role", string(c.principal.Role)).Msg("client connected")

	r.BroadcastGroup(roleGroup, NewEvent(EventUserJoined, map[string]any{
		"user_id": c.principal.UserID,
		"name":    c.principal.DisplayName,
	}))
}

// Disconnect removes the client from every group it holds. Safe to call more
// than once; only the first call has any effect.
func (r *Registry) Disconnect(c *Client) {
	r.mu.Lock()
	if !c.connected {
		r.mu.Unlock()
		return
	}
	c.connected = false
	for group := range c.groups {
		r.leaveLocked(c, group)
	}
	r.mu.Unlock()

	observability.WSConnectionsActive().Dec()
	r.log.Debug().Str("user_id", c.principal.UserID).Msg("client disconnected")

	r.BroadcastGroup(c.principal.Role.GroupName(), NewEvent(EventUserLeft, map[string]any{
		"user_id": c.principal.UserID,
	}))
}

// Join adds the client to an arbitrary named group.
func (r *Registry) Join(c *Client, group string) {
	if group == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !c.connected {
		return
	}
	r.joinLocked(c, group)
}

// Leave removes the client from a named group. Unknown memberships are a
// no-op.
func (r *Registry) Leave(c *Client, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(c, group)
}

// BroadcastGroup delivers an event to every connection currently in the
// group. Delivery is per-connection FIFO; clients whose send queue is full
// drop the event.
func (r *Registry) BroadcastGroup(group string, event Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for client := range r.groups[group] {
		if !client.deliver(event) {
			r.log.Warn().Str("group", group).Str("user_id", client.principal.UserID).Str("event", event.Type).Msg("dropping event for slow client")
		}
	}
}

// SendToUser delivers an event to every live connection of one user.
func (r *Registry) SendToUser(userID string, event Event) {
	r.BroadcastGroup(UserGroup(userID), event)
}

// GroupSize reports the number of connections currently in a group.
func (r *Registry) GroupSize(group string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[group])
}

func (r *Registry) joinLocked(c *Client, group string) {
	if _, exists := r.groups[group]; !exists {
		r.groups[group] = make(map[*Client]struct{})
	}
	r.groups[group][c] = struct{}{}
	c.groups[group] = struct{}{}
}

func (r *Registry) leaveLocked(c *Client, group string) {
	if members, ok := r.groups[group]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.groups, group)
		}
	}
	delete(c.groups, group)
}
