// Package notify fans state snapshots out to registered observers.
package notify

import "sync"

// Hub delivers values to subscribers in publish order. Publish holds the
// delivery lock for the whole fan-out so observers never see reordered
// snapshots; observers must not call back into the publisher synchronously.
type Hub[T any] struct {
	mu       sync.Mutex
	deliver  sync.Mutex
	nextID   uint64
	handlers map[uint64]func(T)
	order    []uint64
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is a no-op.
func (h *Hub[T]) Subscribe(fn func(T)) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handlers == nil {
		h.handlers = make(map[uint64]func(T))
	}
	h.nextID++
	id := h.nextID
	h.handlers[id] = fn
	h.order = append(h.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.handlers, id)
			for i, v := range h.order {
				if v == id {
					h.order = append(h.order[:i], h.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish hands v to every current subscriber in subscription order.
func (h *Hub[T]) Publish(v T) {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.Lock()
	fns := make([]func(T), 0, len(h.order))
	for _, id := range h.order {
		fns = append(fns, h.handlers[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len reports the number of active subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}
