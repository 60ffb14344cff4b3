package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/1f916-ai/chat-service/internal/domain"
	"github.com/1f916-ai/chat-service/internal/metrics"
	"github.com/1f916-ai/chat-service/internal/rtstore"
	"github.com/1f916-ai/chat-service/internal/service"
)

// State of one room visit.
type State int

const (
	StateInit State = iota
	StateIdentifying
	StateAwaitingPeer
	StateConnected
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateIdentifying:
		return "IDENTIFYING"
	case StateAwaitingPeer:
		return "AWAITING_PEER"
	case StateConnected:
		return "CONNECTED"
	case StateTerminated:
		return "TERMINATED"
	}
	return "UNKNOWN"
}

// Waiting is the two-party turn indicator. It is advisory: derived from
// the latest message author, never enforced.
type Waiting string

const (
	WaitingNone  Waiting = "none"
	WaitingSelf  Waiting = "self"
	WaitingOther Waiting = "other"
)

// Context carries the caller's session-scoped identity into the
// controller explicitly, instead of ambient per-process state. An empty
// ID means the visitor has no identity yet and gets a viewer one.
type Context struct {
	ID string
}

// Controller orchestrates matchmaking results, presence and the message
// relay for the lifetime of one room visit. All store-driven updates
// arrive on subscription callbacks; derived state is recomputed from the
// latest snapshot every time, so cross-subscription ordering does not
// matter. After Close, late callbacks are dropped by the liveness flag.
type Controller struct {
	roomID   string
	rooms    *service.RoomService
	presence *service.Presence
	relay    *service.Relay

	onMessages  func([]domain.Message)
	onViewers   func(int)
	onPeers     func([]string)
	onConnected func(time.Duration)

	mu          sync.Mutex
	alive       bool
	closed      bool
	state       State
	self        string
	creator     string
	admitted    bool
	lastAuthor  string
	hasMessages bool
	startedAt   time.Time
	connectedIn time.Duration
	subs        []rtstore.Subscription
	closeOnce   sync.Once
}

func New(sess Context, roomID string, rooms *service.RoomService, presence *service.Presence, relay *service.Relay) *Controller {
	return &Controller{
		roomID:   roomID,
		rooms:    rooms,
		presence: presence,
		relay:    relay,
		state:    StateInit,
		self:     sess.ID,
	}
}

// Callback setters; call before Start. Nil callbacks are skipped.
func (c *Controller) OnMessages(fn func([]domain.Message)) { c.onMessages = fn }
func (c *Controller) OnViewers(fn func(int))               { c.onViewers = fn }
func (c *Controller) OnPeers(fn func([]string))            { c.onPeers = fn }
func (c *Controller) OnConnected(fn func(time.Duration))   { c.onConnected = fn }

// Start resolves the identity, loads the room, registers presence and
// establishes the three subscriptions.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateIdentifying
	if c.self == "" {
		c.self = domain.NewViewerID()
	}
	self := c.self
	c.mu.Unlock()

	room, err := c.rooms.GetRoom(ctx, c.roomID)
	if err != nil {
		return fmt.Errorf("session: load room %s: %w", c.roomID, err)
	}

	c.mu.Lock()
	if c.closed {
		// Closed while the room was loading; stay terminated.
		c.mu.Unlock()
		return nil
	}
	c.creator = room.CreatedBy
	c.state = StateAwaitingPeer
	c.startedAt = time.Now()
	c.alive = true
	c.mu.Unlock()
	metrics.LiveSessions.Inc()

	// Fire-and-forget per the presence contract: a failed registration
	// degrades the viewer count, nothing else.
	if err := c.presence.Track(ctx, c.roomID, self); err != nil {
		slog.Warn("session: presence registration failed", "room", c.roomID, "id", self, "err", err)
	}

	subs := []rtstore.Subscription{
		c.presence.SubscribeParticipants(c.roomID, c.peersChanged),
		c.relay.SubscribeMessages(c.roomID, c.messagesChanged),
		c.presence.SubscribeViewerCount(c.roomID, c.viewersChanged),
	}
	c.mu.Lock()
	if c.closed {
		// Closed while subscribing; undo immediately. Presence may have
		// been re-registered after Close's deregistration, so drop it
		// once more.
		c.mu.Unlock()
		for _, s := range subs {
			s.Cancel()
		}
		untrackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.presence.Untrack(untrackCtx, c.roomID, self)
		return nil
	}
	c.subs = subs
	c.mu.Unlock()
	return nil
}

func (c *Controller) peersChanged(ids []string) {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	c.admitted = false
	for _, id := range ids {
		if id == c.self {
			c.admitted = true
			break
		}
	}
	var connected func(time.Duration)
	if len(ids) >= domain.MaxAgents && c.state == StateAwaitingPeer {
		c.state = StateConnected
		c.connectedIn = time.Since(c.startedAt)
		connected = c.onConnected
	}
	elapsed := c.connectedIn
	peersCB := c.onPeers
	c.mu.Unlock()

	if peersCB != nil {
		peersCB(ids)
	}
	if connected != nil {
		connected(elapsed)
	}
}

func (c *Controller) messagesChanged(msgs []domain.Message) {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	c.hasMessages = len(msgs) > 0
	if c.hasMessages {
		c.lastAuthor = msgs[len(msgs)-1].Author
	}
	cb := c.onMessages
	c.mu.Unlock()

	if cb != nil {
		cb(msgs)
	}
}

func (c *Controller) viewersChanged(n int) {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	cb := c.onViewers
	c.mu.Unlock()

	if cb != nil {
		cb(n)
	}
}

// WaitingFor derives the turn indicator from the latest snapshot: with
// no messages, or while the creator is still unknown, nobody waits.
// When the creator spoke last it is the other side's turn ("other"
// from the creator's seat), otherwise the creator's ("self").
func (c *Controller) WaitingFor() Waiting {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasMessages || c.creator == "" {
		return WaitingNone
	}
	if c.lastAuthor == c.creator {
		return WaitingOther
	}
	return WaitingSelf
}

// Send appends a message as the session identity. Admission is
// required; turn order is not. Sending out of turn only moves the
// indicator.
func (c *Controller) Send(ctx context.Context, content string) error {
	c.mu.Lock()
	self, admitted := c.self, c.admitted
	c.mu.Unlock()
	if !admitted {
		return domain.ErrNotParticipant
	}
	return c.relay.Append(ctx, c.roomID, self, content)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

func (c *Controller) Admitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admitted
}

func (c *Controller) Creator() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creator
}

// ConnectedIn reports the wall-clock wait until both agents were
// present; zero while still waiting. Informational only.
func (c *Controller) ConnectedIn() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedIn
}

// Close tears the session down: presence deregistered, every
// subscription cancelled exactly once, late callbacks ignored.
// Idempotent. Rooms, messages and agent bindings stay behind so later
// viewers can replay the conversation.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		wasAlive := c.alive
		c.alive = false
		c.closed = true
		c.state = StateTerminated
		self := c.self
		subs := c.subs
		c.subs = nil
		c.mu.Unlock()

		if wasAlive {
			metrics.LiveSessions.Dec()
		}

		for _, s := range subs {
			s.Cancel()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if self != "" {
			if err := c.presence.Untrack(ctx, c.roomID, self); err != nil {
				slog.Debug("session: presence deregistration failed", "room", c.roomID, "id", self, "err", err)
			}
		}
	})
}
