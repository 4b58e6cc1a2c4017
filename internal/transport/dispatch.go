package transport

import (
	"slices"
	"sync"
)

// dispatcher runs callbacks one at a time, in post order, off the
// caller's goroutine. A worker goroutine exists only while work is queued.
type dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (d *dispatcher) post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, fn)
	if !d.running {
		d.running = true
		go d.drain()
	}
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		fn()
	}
}

// handlers is a registry of observers with idempotent removal
type handlers[T any] struct {
	mu     sync.Mutex
	nextID uint64
	funcs  map[uint64]func(T)
}

func (h *handlers[T]) add(fn func(T)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.funcs == nil {
		h.funcs = make(map[uint64]func(T))
	}
	id := h.nextID
	h.nextID++
	h.funcs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.funcs, id)
			h.mu.Unlock()
		})
	}
}

// emit calls every registered handler in registration order
func (h *handlers[T]) emit(v T) {
	h.mu.Lock()
	ids := make([]uint64, 0, len(h.funcs))
	for id := range h.funcs {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	slices.Sort(ids)
	for _, id := range ids {
		h.mu.Lock()
		fn, ok := h.funcs[id]
		h.mu.Unlock()
		if ok {
			fn(v)
		}
	}
}
