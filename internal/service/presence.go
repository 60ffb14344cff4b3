package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/1f916-ai/chat-service/internal/rtstore"
)

// Presence tracks viewer liveness under a room and derives the live
// counts the session layer renders. Registration is set-semantics:
// tracking twice changes nothing, untracking an absent id is a no-op.
type Presence struct {
	store rtstore.Store
}

func NewPresence(store rtstore.Store) *Presence {
	return &Presence{store: store}
}

func (p *Presence) Track(ctx context.Context, roomID, id string) error {
	if err := p.store.Set(ctx, viewerEntry(roomID, id), true); err != nil {
		return fmt.Errorf("presence: track %s in %s: %w", id, roomID, err)
	}
	return nil
}

func (p *Presence) Untrack(ctx context.Context, roomID, id string) error {
	if err := p.store.Delete(ctx, viewerEntry(roomID, id)); err != nil {
		return fmt.Errorf("presence: untrack %s in %s: %w", id, roomID, err)
	}
	return nil
}

// SubscribeViewerCount delivers the viewer cardinality on every change,
// starting with the current value.
func (p *Presence) SubscribeViewerCount(roomID string, fn func(int)) rtstore.Subscription {
	return p.store.Subscribe(viewersPath(roomID), func(snapshot any) {
		fn(len(rtstore.AsMap(snapshot)))
	})
}

// SubscribeParticipants delivers the sorted agent identity set on every
// change. The session controller watches this for the second-agent
// arrival and for its own admission.
func (p *Presence) SubscribeParticipants(roomID string, fn func([]string)) rtstore.Subscription {
	return p.store.Subscribe(agentsPath(roomID), func(snapshot any) {
		ids := lo.Keys(rtstore.AsMap(snapshot))
		sort.Strings(ids)
		fn(ids)
	})
}
