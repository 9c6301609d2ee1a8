// Package event implements the client-wide lifecycle pub/sub: typed
// subscriptions per lifecycle event type plus wildcard subscriptions that
// see everything. Dispatch is snapshot-based: subscriber tables are copied
// under the lock and handlers run with no lock held, and every handler is
// isolated, so one panicking subscriber never costs the others their
// delivery.
package event

import (
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/agentmux/agentmux/internal/logging"
	"github.com/agentmux/agentmux/pkg/types"
)

// Topic is the watermill topic lifecycle events are mirrored onto.
const Topic = "lifecycle"

type entry struct {
	id uint64
	fn types.LifecycleHandler
}

// Bus fans lifecycle events out to typed and wildcard subscribers. Events
// are also mirrored, JSON-encoded, onto a watermill gochannel topic so
// embedding applications can attach routers or middleware.
type Bus struct {
	mu       sync.Mutex
	typed    map[types.LifecycleEventType][]entry
	wildcard []entry
	nextID   uint64
	closed   bool

	pubsub *gochannel.GoChannel
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		typed: make(map[types.LifecycleEventType][]entry),
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100},
			watermill.NopLogger{},
		),
	}
}

// Subscribe registers a handler for one lifecycle event type and returns
// its unsubscribe function.
func (b *Bus) Subscribe(eventType types.LifecycleEventType, fn types.LifecycleHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.typed[eventType] = append(b.typed[eventType], entry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.typed[eventType]
		for i, e := range subs {
			if e.id == id {
				b.typed[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// SubscribeAll registers a wildcard handler and returns its unsubscribe
// function.
func (b *Bus) SubscribeAll(fn types.LifecycleHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.wildcard = append(b.wildcard, entry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.wildcard {
			if e.id == id {
				b.wildcard = append(b.wildcard[:i], b.wildcard[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers ev to typed subscribers first, then wildcard ones, in
// registration order within each group.
func (b *Bus) Publish(ev types.LifecycleEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	handlers := make([]types.LifecycleHandler, 0, len(b.typed[ev.Type])+len(b.wildcard))
	for _, e := range b.typed[ev.Type] {
		handlers = append(handlers, e.fn)
	}
	for _, e := range b.wildcard {
		handlers = append(handlers, e.fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		invoke(fn, ev)
	}

	b.mirror(ev)
}

func invoke(fn types.LifecycleHandler, ev types.LifecycleEvent) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn().
				Str("session_id", ev.SessionID).
				Str("type", string(ev.Type)).
				Any("panic", r).
				Msg("lifecycle subscriber panicked")
		}
	}()
	fn(ev)
}

func (b *Bus) mirror(ev types.LifecycleEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(Topic, msg); err != nil {
		logging.Debug().Err(err).Msg("lifecycle mirror publish failed")
	}
}

// PubSub exposes the underlying watermill channel for callers that want to
// consume the mirrored stream.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}

// Close drops all subscribers and closes the mirrored stream.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.typed = make(map[types.LifecycleEventType][]entry)
	b.wildcard = nil
	b.mu.Unlock()
	return b.pubsub.Close()
}
