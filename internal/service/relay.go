package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/1f916-ai/chat-service/internal/domain"
	"github.com/1f916-ai/chat-service/internal/metrics"
	"github.com/1f916-ai/chat-service/internal/rtstore"
)

// Relay appends to a room's ordered message log and exposes a live,
// order-preserving view of it. Subscribers always receive the full log,
// matching the store's snapshot semantics; content is relayed verbatim,
// byte for byte.
type Relay struct {
	store   rtstore.Store
	archive MessageArchive // optional write-through, may be nil
}

// MessageArchive persists messages outside the realtime store.
type MessageArchive interface {
	SaveMessage(ctx context.Context, roomID string, msg domain.Message) error
}

func NewRelay(store rtstore.Store) *Relay {
	return &Relay{store: store}
}

func (r *Relay) SetArchive(a MessageArchive) { r.archive = a }

// Append writes a new message. Only agent-class identities may send.
// Nothing checks whose turn it is; the turn indicator is advisory.
func (r *Relay) Append(ctx context.Context, roomID, author, content string) error {
	if !domain.IsAgent(author) {
		return domain.ErrNotParticipant
	}
	if content == "" {
		return domain.ErrEmptyMessage
	}

	seq, err := r.nextSeq(ctx, roomID)
	if err != nil {
		return err
	}
	msg := domain.Message{
		Author:    author,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Seq:       seq,
	}
	_, err = r.store.Push(ctx, messagesPath(roomID), map[string]any{
		"author":    msg.Author,
		"content":   msg.Content,
		"timestamp": msg.Timestamp,
		"seq":       msg.Seq,
	})
	if err != nil {
		return fmt.Errorf("relay: append to %s: %w", roomID, err)
	}

	if r.archive != nil {
		if aerr := r.archive.SaveMessage(ctx, roomID, msg); aerr != nil {
			slog.Warn("relay: archive message", "room", roomID, "err", aerr)
		}
	}
	metrics.MessagesRelayed.Inc()
	return nil
}

// nextSeq claims the room's next sequence number with a conditional
// write loop; two concurrent appenders never share a seq.
func (r *Relay) nextSeq(ctx context.Context, roomID string) (int64, error) {
	for attempt := 0; attempt < 32; attempt++ {
		cur, err := r.store.Get(ctx, seqPath(roomID))
		if err != nil {
			return 0, fmt.Errorf("relay: read seq of %s: %w", roomID, err)
		}
		n, _ := rtstore.AsInt64(cur) // absent reads as 0
		err = r.store.SetIf(ctx, seqPath(roomID), cur, n+1)
		if errors.Is(err, rtstore.ErrConflict) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("relay: bump seq of %s: %w", roomID, err)
		}
		return n + 1, nil
	}
	return 0, fmt.Errorf("relay: seq of %s kept colliding", roomID)
}

// Messages returns the current ordered log; empty slice for a room with
// no messages yet.
func (r *Relay) Messages(ctx context.Context, roomID string) ([]domain.Message, error) {
	v, err := r.store.Get(ctx, messagesPath(roomID))
	if err != nil {
		return nil, fmt.Errorf("relay: read messages of %s: %w", roomID, err)
	}
	return decodeMessages(v), nil
}

// SubscribeMessages delivers the full ordered log on every change,
// including the initial state.
func (r *Relay) SubscribeMessages(roomID string, fn func([]domain.Message)) rtstore.Subscription {
	return r.store.Subscribe(messagesPath(roomID), func(snapshot any) {
		fn(decodeMessages(snapshot))
	})
}

// decodeMessages orders by store key (insertion order) and falls back
// to seq, which covers backends whose keys interleave across nodes.
func decodeMessages(snapshot any) []domain.Message {
	raw := rtstore.AsMap(snapshot)
	keys := lo.Keys(raw)
	sort.Strings(keys)

	out := make([]domain.Message, 0, len(keys))
	for _, k := range keys {
		entry := rtstore.AsMap(raw[k])
		seq, _ := rtstore.AsInt64(entry["seq"])
		out = append(out, domain.Message{
			Author:    rtstore.AsString(entry["author"]),
			Content:   rtstore.AsString(entry["content"]),
			Timestamp: rtstore.AsString(entry["timestamp"]),
			Seq:       seq,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
