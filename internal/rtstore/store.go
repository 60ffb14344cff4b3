package rtstore

import (
	"context"
	"errors"
	"strings"
)

// Store is a path-addressed realtime tree: read, write, append and
// subscribe with server-push snapshots. Values are JSON-shaped Go data
// (map[string]any branches, scalar leaves). A missing path reads as nil.
type Store interface {
	// Get returns a snapshot of the subtree at path, nil if absent.
	Get(ctx context.Context, path string) (any, error)
	// Set overwrites the subtree at path (last-write-wins).
	Set(ctx context.Context, path string, value any) error
	// SetIf writes value only when the current subtree equals expect
	// (nil expect means "must be absent"). Returns ErrConflict otherwise.
	// This is the only cross-writer consistency primitive the store has.
	SetIf(ctx context.Context, path string, expect, value any) error
	// Delete removes the subtree at path. Deleting an absent path is a no-op.
	Delete(ctx context.Context, path string) error
	// Push appends value under a store-assigned key that sorts after all
	// previously assigned keys of that path, and returns the key.
	Push(ctx context.Context, path string, value any) (string, error)
	// Subscribe registers fn for the subtree at path. fn receives the
	// current snapshot immediately and again after every change. Delivery
	// is in-order per subscription; no ordering holds across subscriptions.
	Subscribe(path string, fn SubscribeFunc) Subscription
	// Close stops all subscriptions and releases resources.
	Close() error
}

// SubscribeFunc receives whole-subtree snapshots, never deltas.
type SubscribeFunc func(snapshot any)

// Subscription is the cancellation handle for one Subscribe call.
// Cancel is idempotent and immediately halts further delivery.
type Subscription interface {
	Cancel()
}

var (
	// ErrConflict is returned by SetIf when the expected state no longer holds.
	ErrConflict = errors.New("rtstore: conditional write conflict")
	// ErrClosed is returned once the store has been shut down.
	ErrClosed = errors.New("rtstore: store closed")
)

// Join builds a path from segments.
func Join(segs ...string) string { return strings.Join(segs, "/") }

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
