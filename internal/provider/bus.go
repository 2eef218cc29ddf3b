package provider

import "sync"

// bus fans session events out to registered handlers. Handlers run
// synchronously in registration order, so subscribers observe events in
// arrival order with no reordering.
type bus struct {
	mu       sync.Mutex
	handlers map[int]func(Event)
	order    []int
	next     int
}

func newBus() *bus {
	return &bus{handlers: make(map[int]func(Event))}
}

func (b *bus) subscribe(handler func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = handler
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
		})
	}
}

func (b *bus) emit(ev Event) {
	b.mu.Lock()
	handlers := make([]func(Event), 0, len(b.order))
	for _, id := range b.order {
		if h, ok := b.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
