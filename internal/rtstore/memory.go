package rtstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory is the in-process store implementation. One mutex guards the
// tree; each subscription drains its own ordered queue on a dedicated
// goroutine so a slow consumer never blocks writers or other consumers.
type Memory struct {
	mu      sync.Mutex
	root    map[string]any
	subs    map[*memSub]struct{}
	pushSeq uint64
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{
		root: make(map[string]any),
		subs: make(map[*memSub]struct{}),
	}
}

func (m *Memory) Get(_ context.Context, path string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return Clone(m.lookup(split(path))), nil
}

func (m *Memory) Set(_ context.Context, path string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.write(split(path), Clone(value))
	return nil
}

func (m *Memory) SetIf(_ context.Context, path string, expect, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	segs := split(path)
	if !Equal(m.lookup(segs), expect) {
		return ErrConflict
	}
	m.write(segs, Clone(value))
	return nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	segs := split(path)
	if len(segs) == 0 {
		m.root = make(map[string]any)
		m.notify(nil)
		return nil
	}
	parent, ok := m.branch(segs[:len(segs)-1], false)
	if !ok {
		return nil
	}
	key := segs[len(segs)-1]
	if _, ok := parent[key]; !ok {
		return nil
	}
	delete(parent, key)
	m.notify(segs)
	return nil
}

func (m *Memory) Push(_ context.Context, path string, value any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	m.pushSeq++
	key := fmt.Sprintf("%016d", m.pushSeq)
	m.write(append(split(path), key), Clone(value))
	return key, nil
}

func (m *Memory) Subscribe(path string, fn SubscribeFunc) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &memSub{store: m, path: split(path), fn: fn}
	sub.cond = sync.NewCond(&sub.qmu)
	if m.closed {
		sub.cancelled = true
		return sub
	}
	m.subs[sub] = struct{}{}
	sub.enqueue(Clone(m.lookup(sub.path)))
	go sub.run()
	return sub
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for sub := range m.subs {
		sub.stop()
	}
	m.subs = make(map[*memSub]struct{})
	return nil
}

// --- tree ops (m.mu held) ---

func (m *Memory) lookup(segs []string) any {
	var cur any = m.root
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

// branch walks to the map at segs, optionally creating intermediates.
func (m *Memory) branch(segs []string, create bool) (map[string]any, bool) {
	cur := m.root
	for _, s := range segs {
		next, ok := cur[s].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			next = make(map[string]any)
			cur[s] = next
		}
		cur = next
	}
	return cur, true
}

func (m *Memory) write(segs []string, value any) {
	if len(segs) == 0 {
		m.root = AsMap(value)
		m.notify(nil)
		return
	}
	parent, _ := m.branch(segs[:len(segs)-1], true)
	parent[segs[len(segs)-1]] = value
	m.notify(segs)
}

// notify re-snapshots every subscription whose path overlaps the change.
func (m *Memory) notify(changed []string) {
	for sub := range m.subs {
		if overlaps(sub.path, changed) {
			sub.enqueue(Clone(m.lookup(sub.path)))
		}
	}
}

// overlaps: a change at one path is visible to a subscription when either
// path is an ancestor of (or equal to) the other.
func overlaps(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --- subscription ---

type memSub struct {
	store *Memory
	path  []string
	fn    SubscribeFunc

	qmu       sync.Mutex
	cond      *sync.Cond
	queue     []any
	cancelled bool
	once      sync.Once
}

func (s *memSub) enqueue(snapshot any) {
	s.qmu.Lock()
	if !s.cancelled {
		s.queue = append(s.queue, snapshot)
		s.cond.Signal()
	}
	s.qmu.Unlock()
}

func (s *memSub) run() {
	for {
		s.qmu.Lock()
		for len(s.queue) == 0 && !s.cancelled {
			s.cond.Wait()
		}
		if s.cancelled {
			s.qmu.Unlock()
			return
		}
		snapshot := s.queue[0]
		s.queue = s.queue[1:]
		s.qmu.Unlock()
		s.fn(snapshot)
	}
}

// Cancel detaches the subscription. Safe to call more than once. A
// delivery already in flight may still complete after Cancel returns.
func (s *memSub) Cancel() {
	s.once.Do(func() {
		s.store.mu.Lock()
		delete(s.store.subs, s)
		s.store.mu.Unlock()
		s.stop()
	})
}

func (s *memSub) stop() {
	s.qmu.Lock()
	s.cancelled = true
	s.queue = nil
	s.cond.Broadcast()
	s.qmu.Unlock()
}
