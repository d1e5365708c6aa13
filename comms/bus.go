package comms

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalbox/interlock/board"
)

// InMemoryBus is a thread-safe in-process event bus.
type InMemoryBus struct {
	mu      sync.RWMutex
	nextID  int
	subs    map[string][]subscription
	history []*board.AuditEvent
	maxHist int
}

type subscription struct {
	id      int
	handler Handler
}

var _ Bus = (*InMemoryBus)(nil)

// NewInMemoryBus creates an InMemoryBus with a 1000-event replay window.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		subs:    make(map[string][]subscription),
		maxHist: 1000,
	}
}

// Publish appends ev to the replay window and fans it out to every
// subscriber. Handler errors are aggregated into the returned error; the
// event is retained regardless.
func (b *InMemoryBus) Publish(ctx context.Context, ev *board.AuditEvent) error {
	b.mu.Lock()
	b.history = append(b.history, ev)
	if len(b.history) > b.maxHist {
		b.history = b.history[len(b.history)-b.maxHist:]
	}

	// Collect handlers to invoke outside the lock.
	var targets []Handler
	for _, entries := range b.subs {
		for _, e := range entries {
			targets = append(targets, e.handler)
		}
	}
	b.mu.Unlock()

	var errs []error
	for _, h := range targets {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish: %d handler error(s): %v", len(errs), errs[0])
	}
	return nil
}

// Subscribe registers a handler under name. Multiple handlers may share a
// name; the returned function removes only this one.
func (b *InMemoryBus) Subscribe(name string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.subs[name]
		filtered := entries[:0]
		for _, e := range entries {
			if e.id != id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(b.subs, name)
		} else {
			b.subs[name] = filtered
		}
	}
}

// History returns up to limit retained events, oldest first, optionally
// narrowed to one project.
func (b *InMemoryBus) History(project string, limit int) []*board.AuditEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []*board.AuditEvent
	for i := len(b.history) - 1; i >= 0; i-- {
		ev := b.history[i]
		if project != "" && ev.ProjectName != project {
			continue
		}
		result = append(result, ev)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	// Reverse to chronological order.
	for l, r := 0, len(result)-1; l < r; l, r = l+1, r-1 {
		result[l], result[r] = result[r], result[l]
	}
	return result
}
