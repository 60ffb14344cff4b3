package rtstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores each two-segment root (e.g. conversations/{roomId},
// index/openRooms) as one JSON document and fans out fresh snapshots
// over pub/sub, so every node observes whole-subtree updates the same
// way the in-memory backend delivers them. Conditional writes run as
// WATCH/MULTI transactions on the root key.
//
// Paths handed to this backend must carry at least two segments; the
// service layer never addresses a bare top-level collection.
type Redis struct {
	rdb    *redis.Client
	prefix string

	mu     sync.Mutex
	subs   map[*redisSub]struct{}
	closed bool
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{
		rdb:    rdb,
		prefix: "rt",
		subs:   make(map[*redisSub]struct{}),
	}
}

func (r *Redis) Get(ctx context.Context, path string) (any, error) {
	segs := split(path)
	root, rest, err := r.rootFor(segs)
	if err != nil {
		return nil, err
	}
	doc, err := r.load(ctx, root)
	if err != nil {
		return nil, err
	}
	return dig(doc, rest), nil
}

func (r *Redis) Set(ctx context.Context, path string, value any) error {
	return r.mutate(ctx, path, func(doc any, rest []string) (any, error) {
		return graft(doc, rest, value, false), nil
	})
}

func (r *Redis) SetIf(ctx context.Context, path string, expect, value any) error {
	return r.mutate(ctx, path, func(doc any, rest []string) (any, error) {
		if !Equal(dig(doc, rest), expect) {
			return nil, ErrConflict
		}
		return graft(doc, rest, value, false), nil
	})
}

func (r *Redis) Delete(ctx context.Context, path string) error {
	return r.mutate(ctx, path, func(doc any, rest []string) (any, error) {
		return prune(doc, rest), nil
	})
}

func (r *Redis) Push(ctx context.Context, path string, value any) (string, error) {
	// INCR gives a cluster-wide monotonic counter; zero-padding keeps
	// key order equal to insertion order.
	n, err := r.rdb.Incr(ctx, r.prefix+":pushseq").Result()
	if err != nil {
		return "", fmt.Errorf("rtstore: push seq: %w", err)
	}
	key := fmt.Sprintf("%016d", n)
	err = r.mutate(ctx, path, func(doc any, rest []string) (any, error) {
		return graft(doc, rest, map[string]any{key: value}, true), nil
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (r *Redis) Subscribe(path string, fn SubscribeFunc) Subscription {
	segs := split(path)
	sub := &redisSub{store: r, fn: fn}
	root, rest, err := r.rootFor(segs)
	if err != nil {
		slog.Error("rtstore: bad subscribe path", "path", path, "err", err)
		return sub
	}
	sub.root = root
	sub.path = rest

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return sub
	}
	r.subs[sub] = struct{}{}
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	sub.cancelCtx = cancel
	sub.ps = r.rdb.Subscribe(ctx, r.channel(root))
	go sub.run(ctx)
	return sub
}

func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := make([]*redisSub, 0, len(r.subs))
	for s := range r.subs {
		subs = append(subs, s)
	}
	r.subs = make(map[*redisSub]struct{})
	r.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
	return r.rdb.Close()
}

// --- internals ---

func (r *Redis) rootFor(segs []string) (string, []string, error) {
	if len(segs) < 2 {
		return "", nil, fmt.Errorf("rtstore: path too shallow: %q", Join(segs...))
	}
	return r.prefix + ":" + segs[0] + ":" + segs[1], segs[2:], nil
}

func (r *Redis) channel(root string) string { return root + ":events" }

func (r *Redis) load(ctx context.Context, key string) (any, error) {
	raw, err := r.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rtstore: redis get %s: %w", key, err)
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("rtstore: decode %s: %w", key, err)
	}
	return doc, nil
}

// mutate applies fn to the root document under WATCH, retrying on
// transaction collisions, then publishes the fresh snapshot.
func (r *Redis) mutate(ctx context.Context, path string, fn func(doc any, rest []string) (any, error)) error {
	segs := split(path)
	root, rest, err := r.rootFor(segs)
	if err != nil {
		return err
	}

	var published any
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, root).Result()
		var doc any
		if err == nil {
			if err := json.Unmarshal([]byte(raw), &doc); err != nil {
				return fmt.Errorf("rtstore: decode %s: %w", root, err)
			}
		} else if err != redis.Nil {
			return err
		}

		next, err := fn(doc, rest)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}
		published = next
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, root, encoded, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 16; attempt++ {
		err := r.rdb.Watch(ctx, txn, root)
		if err == redis.TxFailedErr {
			time.Sleep(time.Duration(attempt+1) * time.Millisecond)
			continue
		}
		if err != nil {
			return err
		}
		encoded, _ := json.Marshal(published)
		if perr := r.rdb.Publish(ctx, r.channel(root), encoded).Err(); perr != nil {
			slog.Warn("rtstore: publish failed", "key", root, "err", perr)
		}
		return nil
	}
	return fmt.Errorf("rtstore: transaction on %s kept colliding", root)
}

func dig(doc any, segs []string) any {
	cur := doc
	for _, s := range segs {
		branch, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = branch[s]
		if !ok {
			return nil
		}
	}
	return cur
}

// graft sets value at segs inside doc, creating branches as needed.
// Plain writes replace the target subtree, matching the in-memory
// backend; merge is set only on the push path, where the new entry
// must join its siblings instead of wiping them.
func graft(doc any, segs []string, value any, merge bool) any {
	if len(segs) == 0 {
		if vm, ok := value.(map[string]any); ok && merge {
			out := AsMap(Clone(doc))
			for k, v := range vm {
				out[k] = v
			}
			return out
		}
		return value
	}
	out := AsMap(Clone(doc))
	cur := out
	for _, s := range segs[:len(segs)-1] {
		next, ok := cur[s].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[s] = next
		}
		cur = next
	}
	last := segs[len(segs)-1]
	if vm, ok := value.(map[string]any); ok && merge {
		merged := AsMap(cur[last])
		for k, v := range vm {
			merged[k] = v
		}
		cur[last] = merged
		return out
	}
	cur[last] = value
	return out
}

func prune(doc any, segs []string) any {
	if len(segs) == 0 {
		return nil
	}
	out := AsMap(Clone(doc))
	cur := out
	for _, s := range segs[:len(segs)-1] {
		next, ok := cur[s].(map[string]any)
		if !ok {
			return out
		}
		cur = next
	}
	delete(cur, segs[len(segs)-1])
	return out
}

type redisSub struct {
	store     *Redis
	root      string
	path      []string
	fn        SubscribeFunc
	ps        *redis.PubSub
	cancelCtx context.CancelFunc
	once      sync.Once
}

func (s *redisSub) run(ctx context.Context) {
	// Initial snapshot, then pub/sub deliveries in channel order.
	doc, err := s.store.load(ctx, s.root)
	if err != nil {
		slog.Error("rtstore: initial snapshot failed", "key", s.root, "err", err)
	} else {
		s.fn(dig(doc, s.path))
	}
	ch := s.ps.Channel()
	for msg := range ch {
		var doc any
		if err := json.Unmarshal([]byte(msg.Payload), &doc); err != nil {
			slog.Warn("rtstore: bad event payload", "key", s.root, "err", err)
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.fn(dig(doc, s.path))
	}
}

func (s *redisSub) Cancel() {
	s.once.Do(func() {
		if s.cancelCtx != nil {
			s.cancelCtx()
		}
		if s.ps != nil {
			_ = s.ps.Close()
		}
		s.store.mu.Lock()
		delete(s.store.subs, s)
		s.store.mu.Unlock()
	})
}

var _ Store = (*Redis)(nil)
var _ Store = (*Memory)(nil)
