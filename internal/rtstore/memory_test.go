package rtstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	require.NoError(t, m.Set(ctx, "conversations/r1/createdBy", "agent_abc"))
	require.NoError(t, m.Set(ctx, "conversations/r1/isActive", true))

	v, err := m.Get(ctx, "conversations/r1/createdBy")
	require.NoError(t, err)
	assert.Equal(t, "agent_abc", v)

	v, err = m.Get(ctx, "conversations/r1")
	require.NoError(t, err)
	root := AsMap(v)
	assert.Equal(t, "agent_abc", root["createdBy"])
	assert.Equal(t, true, root["isActive"])
}

func TestMemoryGetAbsentIsNil(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	v, err := m.Get(context.Background(), "conversations/nope/messages")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestMemoryPushKeysKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	var keys []string
	for i := 0; i < 50; i++ {
		k, err := m.Push(ctx, "conversations/r1/messages", map[string]any{"seq": i})
		require.NoError(t, err)
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i], "push keys must sort in insertion order")
	}
}

func TestMemorySetIf(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	// expect nil means "must be absent"
	require.NoError(t, m.SetIf(ctx, "conversations/r1/agents", nil,
		map[string]any{"agent_a": true}))

	// expected state holds: write lands
	require.NoError(t, m.SetIf(ctx, "conversations/r1/agents",
		map[string]any{"agent_a": true},
		map[string]any{"agent_a": true, "agent_b": true}))

	// expected state is stale: conflict, value untouched
	err := m.SetIf(ctx, "conversations/r1/agents",
		map[string]any{"agent_a": true},
		map[string]any{"agent_a": true, "agent_c": true})
	assert.ErrorIs(t, err, ErrConflict)

	v, err := m.Get(ctx, "conversations/r1/agents")
	require.NoError(t, err)
	assert.Len(t, AsMap(v), 2)
}

func TestMemoryDeleteAbsentIsNoop(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	assert.NoError(t, m.Delete(context.Background(), "conversations/r1/viewers/ghost"))
}

func TestMemorySubscribeDeliversInitialAndUpdates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	var mu sync.Mutex
	var got []any
	sub := m.Subscribe("conversations/r1/viewers", func(snapshot any) {
		mu.Lock()
		got = append(got, snapshot)
		mu.Unlock()
	})
	defer sub.Cancel()

	require.NoError(t, m.Set(ctx, "conversations/r1/viewers/v1", true))
	require.NoError(t, m.Set(ctx, "conversations/r1/viewers/v2", true))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Nil(t, got[0], "initial snapshot of an absent path is nil")
	assert.Len(t, AsMap(got[1]), 1)
	assert.Len(t, AsMap(got[2]), 2)
}

func TestMemoryCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	var mu sync.Mutex
	count := 0
	sub := m.Subscribe("conversations/r1", func(any) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.NoError(t, m.Set(ctx, "conversations/r1/isActive", true))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 2
	}, time.Second, 5*time.Millisecond)

	sub.Cancel()
	sub.Cancel() // idempotent

	mu.Lock()
	after := count
	mu.Unlock()

	require.NoError(t, m.Set(ctx, "conversations/r1/isActive", false))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, after, count, "no delivery may follow Cancel")
}

func TestMemorySnapshotsDoNotAliasTree(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	require.NoError(t, m.Set(ctx, "conversations/r1/agents",
		map[string]any{"agent_a": true}))

	v, err := m.Get(ctx, "conversations/r1/agents")
	require.NoError(t, err)
	AsMap(v)["agent_evil"] = true

	v2, err := m.Get(ctx, "conversations/r1/agents")
	require.NoError(t, err)
	assert.Len(t, AsMap(v2), 1, "mutating a snapshot must not touch the store")
}

func TestMemoryConcurrentSetIfSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	base := map[string]any{"agent_creator": true}
	require.NoError(t, m.Set(ctx, "conversations/r1/agents", base))

	const writers = 8
	var wg sync.WaitGroup
	wins := make(chan string, writers)
	for i := 0; i < writers; i++ {
		id := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.SetIf(ctx, "conversations/r1/agents", base,
				map[string]any{"agent_creator": true, "agent_" + id: true})
			if err == nil {
				wins <- id
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for id := range wins {
		winners = append(winners, id)
	}
	require.Len(t, winners, 1, "exactly one conditional write may land")

	v, err := m.Get(ctx, "conversations/r1/agents")
	require.NoError(t, err)
	assert.Len(t, AsMap(v), 2)
}
