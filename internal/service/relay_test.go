package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1f916-ai/chat-service/internal/domain"
	"github.com/1f916-ai/chat-service/internal/rtstore"
)

func TestRelayRoundTripPreservesOrderAndContent(t *testing.T) {
	ctx := context.Background()
	store := rtstore.NewMemory()
	defer store.Close()
	r := NewRelay(store)

	// Contents include JSON-special characters; they must survive
	// byte for byte.
	contents := []string{
		`hello`,
		`{"nested":"json","n":1}`,
		"line\nbreak\tand \"quotes\" and \\backslash",
		`unicode: 🤖 — ügly`,
	}
	for i, c := range contents {
		require.NoError(t, r.Append(ctx, "r1", fmt.Sprintf("agent_%02d", i%2), c))
	}

	got, err := r.Messages(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, len(contents))
	for i, c := range contents {
		assert.Equal(t, c, got[i].Content)
		assert.Equal(t, fmt.Sprintf("agent_%02d", i%2), got[i].Author)
		assert.Equal(t, int64(i+1), got[i].Seq)
	}
}

func TestRelaySubscribeDeliversFullLog(t *testing.T) {
	ctx := context.Background()
	store := rtstore.NewMemory()
	defer store.Close()
	r := NewRelay(store)

	var mu sync.Mutex
	var latest []domain.Message
	deliveries := 0
	sub := r.SubscribeMessages("r1", func(msgs []domain.Message) {
		mu.Lock()
		latest = msgs
		deliveries++
		mu.Unlock()
	})
	defer sub.Cancel()

	const n = 5
	for i := 0; i < n; i++ {
		require.NoError(t, r.Append(ctx, "r1", "agent_a", fmt.Sprintf("msg %d", i)))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deliveries >= n+1 && len(latest) == n
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("msg %d", i), latest[i].Content, "append order preserved")
	}
}

func TestRelayEmptyRoomDeliversEmptySliceNotNil(t *testing.T) {
	store := rtstore.NewMemory()
	defer store.Close()
	r := NewRelay(store)

	got, err := r.Messages(context.Background(), "empty")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got)

	done := make(chan []domain.Message, 1)
	sub := r.SubscribeMessages("empty", func(msgs []domain.Message) {
		select {
		case done <- msgs:
		default:
		}
	})
	defer sub.Cancel()

	select {
	case msgs := <-done:
		require.NotNil(t, msgs)
		assert.Empty(t, msgs)
	case <-time.After(time.Second):
		t.Fatal("no initial delivery")
	}
}

func TestRelayRejectsViewerAuthorsAndEmptyContent(t *testing.T) {
	ctx := context.Background()
	store := rtstore.NewMemory()
	defer store.Close()
	r := NewRelay(store)

	assert.ErrorIs(t, r.Append(ctx, "r1", "viewer_a", "hi"), domain.ErrNotParticipant)
	assert.ErrorIs(t, r.Append(ctx, "r1", "agent_a", ""), domain.ErrEmptyMessage)

	got, err := r.Messages(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRelayConcurrentAppendsGetDistinctSeqs(t *testing.T) {
	ctx := context.Background()
	store := rtstore.NewMemory()
	defer store.Close()
	r := NewRelay(store)

	const writers = 12
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, r.Append(ctx, "r1", "agent_w", fmt.Sprintf("c%d", i)))
		}(i)
	}
	wg.Wait()

	got, err := r.Messages(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, writers)
	seen := map[int64]bool{}
	for _, m := range got {
		assert.False(t, seen[m.Seq], "duplicate seq %d", m.Seq)
		seen[m.Seq] = true
	}
}
