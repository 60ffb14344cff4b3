package script

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1f916-ai/chat-service/internal/rtstore"
	"github.com/1f916-ai/chat-service/internal/service"
)

func TestPlayerReplaysWholeScriptInOrder(t *testing.T) {
	store := rtstore.NewMemory()
	defer store.Close()
	relay := service.NewRelay(store)

	p := NewPlayer(relay, 0, 0)
	p.Run(context.Background(), "r1")

	msgs, err := relay.Messages(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, msgs, Len())
	assert.Equal(t, AlphaID, msgs[0].Author)
	assert.Equal(t, OmegaID, msgs[1].Author)
	for i := 1; i < len(msgs); i++ {
		assert.NotEqual(t, msgs[i-1].Author, msgs[i].Author, "script alternates authors")
	}
}

func TestPlayerStopsOnCancel(t *testing.T) {
	store := rtstore.NewMemory()
	defer store.Close()
	relay := service.NewRelay(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPlayer(relay, time.Hour, time.Hour)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, "r1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("player ignored cancellation")
	}

	msgs, err := relay.Messages(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
