package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event types emitted by the engine and the wallet ledger. The HTTP layer
// forwards these to any notification channel (currently the websocket hub);
// the core never talks to a delivery transport directly.
const (
	TypeAttemptUpdated = "attempt_updated"
	TypeLegUpdated     = "leg_updated"
	TypeWalletUpdated  = "wallet_updated"
)

// Event is a single domain event. Payload is a serializable snapshot of the
// entity at the time of the transition.
type Event struct {
	Type     string      `json:"type"`
	ClientID string      `json:"client_id,omitempty"`
	Payload  interface{} `json:"payload"`
	At       time.Time   `json:"at"`
}

// Bus is a minimal in-process publish/subscribe fanout. Publish never blocks:
// a subscriber that cannot keep up has events dropped rather than stalling
// trade execution.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber with the given channel buffer.
// The returned cancel func must be called to release the subscription.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all current subscribers. A nil bus is a no-op
// so services can be constructed without eventing in tests.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			log.Warn().Str("event_type", evt.Type).Msg("dropping event for slow subscriber")
		}
	}
}
