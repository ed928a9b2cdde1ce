package notify

import (
	"context"
	"sync"
	"time"
)

// RevocationEvent is broadcast when a session is terminated by any actor
// so live clients holding its id can tear down without waiting for the
// next validation poll
type RevocationEvent struct {
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason"`
	RevokedAt time.Time `json:"revoked_at"`
}

// Broker is a publish/subscribe channel keyed by session id.
// Delivery is best-effort: the periodic validation poll is the fail-safe
// slow path, so a missed broadcast delays teardown, it never prevents it.
type Broker interface {
	Publish(ctx context.Context, event RevocationEvent) error
	// Subscribe returns a channel of revocation events for one session id
	// and a cancel function that releases the subscription.
	Subscribe(ctx context.Context, sessionID string) (<-chan RevocationEvent, func(), error)
}

// MemoryBroker is an in-process Broker for single-instance deployments
// and tests
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[int]chan RevocationEvent
	next int
}

// NewMemoryBroker creates an in-process revocation broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[int]chan RevocationEvent)}
}

// Publish delivers the event to every subscriber of the session id.
// Subscribers that are not draining their channel are skipped.
func (b *MemoryBroker) Publish(_ context.Context, event RevocationEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[event.SessionID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a listener for one session id
func (b *MemoryBroker) Subscribe(_ context.Context, sessionID string) (<-chan RevocationEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++

	ch := make(chan RevocationEvent, 1)
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]chan RevocationEvent)
	}
	b.subs[sessionID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if listeners, ok := b.subs[sessionID]; ok {
			delete(listeners, id)
			if len(listeners) == 0 {
				delete(b.subs, sessionID)
			}
		}
	}

	return ch, cancel, nil
}
