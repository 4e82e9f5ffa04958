package web

import "sync"

// TickBroadcaster fans control ticks out to live listeners (the websocket
// stream). It keeps the most recent tick so a new subscriber gets an
// immediate sample. Slow subscribers miss ticks rather than block the loop.
type TickBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan TickView
	nextID   int
	last     TickView
	haveLast bool
}

func NewTickBroadcaster() *TickBroadcaster {
	return &TickBroadcaster{subs: make(map[int]chan TickView)}
}

func (b *TickBroadcaster) Subscribe(buffer int) (int, <-chan TickView) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan TickView, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	last, have := b.last, b.haveLast
	b.mu.Unlock()
	if have {
		ch <- last
	}
	return id, ch
}

func (b *TickBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers is the number of live listeners.
func (b *TickBroadcaster) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *TickBroadcaster) Publish(tv TickView) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.last = tv
	b.haveLast = true
	for _, ch := range b.subs {
		select {
		case ch <- tv:
		default:
		}
	}
	b.mu.Unlock()
}
