package sqlite

import "sync"

// changeHub fans a "something changed" signal out to watch subscribers.
// Signals are coalesced: a subscriber that has not drained its channel yet
// gets at most one pending notification.
type changeHub struct {
	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

func newChangeHub() *changeHub {
	return &changeHub{subs: make(map[int]chan struct{})}
}

// subscribe registers a listener and returns its signal channel plus an
// unsubscribe func. Unsubscribe is safe to call more than once.
func (h *changeHub) subscribe() (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan struct{}, 1)
	h.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}

	return ch, unsubscribe
}

// broadcast notifies all subscribers without blocking.
func (h *changeHub) broadcast() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
