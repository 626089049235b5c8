package buildtracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Broadcaster is an in process SessionNotifier
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(SessionEvent)
	logger Logger
}

var _ SessionNotifier = (*Broadcaster)(nil)

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs:   map[int]func(SessionEvent){},
		logger: defLogger{},
	}
}

func (b *Broadcaster) WithLogger(l Logger) *Broadcaster {
	if l != nil {
		b.logger = l
	}
	return b
}

// OnSessionChange registers fn. The returned function removes it and is
// safe to call more than once.
func (b *Broadcaster) OnSessionChange(fn func(SessionEvent)) func() {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish calls every subscriber in registration order. Subscribers run
// outside the lock, a panicking subscriber is logged and skipped.
func (b *Broadcaster) Publish(ctx context.Context, event SessionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, fn := range b.snapshot() {
		b.deliver(fn, event)
	}
	return nil
}

// Len returns the number of active subscribers
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) snapshot() []func(SessionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]func(SessionEvent), 0, len(ids))
	for _, id := range ids {
		out = append(out, b.subs[id])
	}
	return out
}

func (b *Broadcaster) deliver(fn func(SessionEvent), event SessionEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("session subscriber panic", "event", string(event.Type), "panic", fmt.Sprint(rec))
		}
	}()
	fn(event)
}
