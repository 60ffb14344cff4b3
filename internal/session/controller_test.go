package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1f916-ai/chat-service/internal/domain"
	"github.com/1f916-ai/chat-service/internal/rtstore"
	"github.com/1f916-ai/chat-service/internal/service"
)

type fixture struct {
	store    *rtstore.Memory
	rooms    *service.RoomService
	presence *service.Presence
	relay    *service.Relay
	mm       *service.Matchmaker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := rtstore.NewMemory()
	t.Cleanup(func() { store.Close() })
	return &fixture{
		store:    store,
		rooms:    service.NewRoomService(store),
		presence: service.NewPresence(store),
		relay:    service.NewRelay(store),
		mm:       service.NewMatchmaker(store),
	}
}

func (f *fixture) controller(t *testing.T, id, roomID string) *Controller {
	t.Helper()
	c := New(Context{ID: id}, roomID, f.rooms, f.presence, f.relay)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)
	return c
}

func TestWaitingForLiteralScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Creator agent_abc opens the room, agent_xyz is paired in.
	rid, _, err := f.mm.FindOrCreateRoom(ctx, "agent_abc")
	require.NoError(t, err)
	got, _, err := f.mm.FindOrCreateRoom(ctx, "agent_xyz")
	require.NoError(t, err)
	require.Equal(t, rid, got)

	c := f.controller(t, "agent_abc", rid)

	// No messages yet: nobody waits.
	assert.Equal(t, WaitingNone, c.WaitingFor())

	require.NoError(t, f.relay.Append(ctx, rid, "agent_abc", "hello"))
	waitFor(t, func() bool { return c.WaitingFor() == WaitingOther })

	require.NoError(t, f.relay.Append(ctx, rid, "agent_xyz", "hi"))
	waitFor(t, func() bool { return c.WaitingFor() == WaitingSelf })
}

func TestControllerConnectsWhenSecondAgentArrives(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rid, _, err := f.mm.FindOrCreateRoom(ctx, "agent_abc")
	require.NoError(t, err)

	c := New(Context{ID: "agent_abc"}, rid, f.rooms, f.presence, f.relay)
	var mu sync.Mutex
	connected := false
	c.OnConnected(func(d time.Duration) {
		mu.Lock()
		connected = true
		mu.Unlock()
	})
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	assert.Equal(t, StateAwaitingPeer, c.State())

	_, _, err = f.mm.FindOrCreateRoom(ctx, "agent_xyz")
	require.NoError(t, err)

	waitFor(t, func() bool { return c.State() == StateConnected })
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connected
	})
}

func TestViewerIsGeneratedAnIdentityAndNotAdmitted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rid, _, err := f.mm.FindOrCreateRoom(ctx, "agent_abc")
	require.NoError(t, err)

	c := f.controller(t, "", rid)
	assert.True(t, len(c.SelfID()) > 0)
	assert.False(t, domain.IsAgent(c.SelfID()))

	waitFor(t, func() bool { return !c.Admitted() })
	assert.ErrorIs(t, c.Send(ctx, "let me in"), domain.ErrNotParticipant)
}

func TestViewerPromotedWhenStoreConfirmsAdmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rid, _, err := f.mm.FindOrCreateRoom(ctx, "agent_abc")
	require.NoError(t, err)

	c := f.controller(t, "agent_late", rid)

	// The matchmaker admits the identity after the controller attached.
	got, _, err := f.mm.FindOrCreateRoom(ctx, "agent_late")
	require.NoError(t, err)
	require.Equal(t, rid, got)

	waitFor(t, func() bool { return c.Admitted() })
	assert.NoError(t, c.Send(ctx, "made it"))
}

func TestOutOfTurnSendOnlyMovesTheIndicator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rid, _, err := f.mm.FindOrCreateRoom(ctx, "agent_abc")
	require.NoError(t, err)
	_, _, err = f.mm.FindOrCreateRoom(ctx, "agent_xyz")
	require.NoError(t, err)

	c := f.controller(t, "agent_xyz", rid)

	// agent_xyz sends twice in a row; nothing blocks it and the log
	// stays intact, only the indicator reflects the last author.
	require.NoError(t, c.Send(ctx, "first"))
	require.NoError(t, c.Send(ctx, "second, out of turn"))

	msgs, err := f.relay.Messages(ctx, rid)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second, out of turn", msgs[1].Content)

	waitFor(t, func() bool { return c.WaitingFor() == WaitingSelf })
}

func TestCloseIsIdempotentAndStopsCallbacks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rid, _, err := f.mm.FindOrCreateRoom(ctx, "agent_abc")
	require.NoError(t, err)

	c := New(Context{ID: "agent_abc"}, rid, f.rooms, f.presence, f.relay)
	var mu sync.Mutex
	deliveries := 0
	c.OnMessages(func([]domain.Message) {
		mu.Lock()
		deliveries++
		mu.Unlock()
	})
	require.NoError(t, c.Start(ctx))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deliveries >= 1
	})

	c.Close()
	c.Close()
	assert.Equal(t, StateTerminated, c.State())

	mu.Lock()
	after := deliveries
	mu.Unlock()

	require.NoError(t, f.relay.Append(ctx, rid, "agent_abc", "into the void"))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, after, deliveries, "no callback may run past Close")
}

func TestCloseDeregistersPresence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rid, _, err := f.mm.FindOrCreateRoom(ctx, "agent_abc")
	require.NoError(t, err)

	c := New(Context{ID: "viewer_watcher"}, rid, f.rooms, f.presence, f.relay)
	require.NoError(t, c.Start(ctx))

	v, err := f.store.Get(ctx, rtstore.Join("conversations", rid, "viewers"))
	require.NoError(t, err)
	require.Contains(t, rtstore.AsMap(v), "viewer_watcher")

	c.Close()

	v, err = f.store.Get(ctx, rtstore.Join("conversations", rid, "viewers"))
	require.NoError(t, err)
	assert.NotContains(t, rtstore.AsMap(v), "viewer_watcher")

	// The room itself persists for replay.
	room, err := f.rooms.GetRoom(ctx, rid)
	require.NoError(t, err)
	assert.True(t, room.IsActive)
}

func TestStartAfterCloseStaysTerminated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rid, _, err := f.mm.FindOrCreateRoom(ctx, "agent_abc")
	require.NoError(t, err)

	c := New(Context{ID: "viewer_watcher"}, rid, f.rooms, f.presence, f.relay)
	c.Close()
	require.NoError(t, c.Start(ctx))

	assert.Equal(t, StateTerminated, c.State())

	// No presence registered, no callbacks pending.
	v, err := f.store.Get(ctx, rtstore.Join("conversations", rid, "viewers"))
	require.NoError(t, err)
	assert.NotContains(t, rtstore.AsMap(v), "viewer_watcher")
}

func TestStartUnknownRoomFails(t *testing.T) {
	f := newFixture(t)

	c := New(Context{ID: "agent_abc"}, "no-such-room", f.rooms, f.presence, f.relay)
	err := c.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}
