package launcher

import "sync"

// EventType distinguishes the slot-state transitions the broadcaster
// publishes for the live status push.
type EventType string

const (
	EventSpawned  EventType = "spawned"
	EventFinished EventType = "finished"
)

// Event is one slot-state transition, published to every subscriber.
type Event struct {
	Type EventType  `json:"type"`
	Slot int        `json:"slot"`
	Job  RunningJob `json:"job"`
}

// Broadcaster fans out slot-transition events to any number of
// subscribers, dropping events for a subscriber that is not keeping up
// rather than blocking the slot loop that published them.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber channel; call the returned
// function to unsubscribe and release it.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish fans out ev to every current subscriber without blocking.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
