package transport

import (
	"log"
	"sync"
)

// Event categories published by the transports.
const (
	EventMessage      = "message"
	EventHeartbeat    = "heartbeat"
	EventNotification = "notification"
	EventLog          = "log"
	EventError        = "error"
)

// Bus is an insertion-ordered publish/subscribe registry. Listeners for a
// category run in subscription order; a panicking listener is recovered
// and logged without disturbing the remaining listeners or the publisher.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*subscriber
}

type subscriber struct {
	fn func(payload any)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*subscriber)}
}

// Subscribe registers fn for a category and returns its unsubscribe
// function. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(category string, fn func(payload any)) (unsubscribe func()) {
	s := &subscriber{fn: fn}
	b.mu.Lock()
	b.subs[category] = append(b.subs[category], s)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[category]
			for i, cur := range list {
				if cur == s {
					b.subs[category] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers payload to every listener of the category, in
// subscription order. Listeners run outside the registry lock so they may
// subscribe or unsubscribe freely.
func (b *Bus) Publish(category string, payload any) {
	b.mu.Lock()
	list := make([]*subscriber, len(b.subs[category]))
	copy(list, b.subs[category])
	b.mu.Unlock()

	for _, s := range list {
		dispatch(category, s, payload)
	}
}

func dispatch(category string, s *subscriber, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("event listener panic (category=%s): %v", category, r)
		}
	}()
	s.fn(payload)
}
