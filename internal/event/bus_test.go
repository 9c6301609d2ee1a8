package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/pkg/types"
)

func TestBusTypedBeforeWildcard(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var order []string
	bus.SubscribeAll(func(e types.LifecycleEvent) {
		order = append(order, "wildcard")
	})
	bus.Subscribe(types.LifecycleCreated, func(e types.LifecycleEvent) {
		order = append(order, "typed")
	})

	bus.Publish(types.LifecycleEvent{Type: types.LifecycleCreated, SessionID: "s1"})

	assert.Equal(t, []string{"typed", "wildcard"}, order)
}

func TestBusTypedFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var created, deleted int
	bus.Subscribe(types.LifecycleCreated, func(e types.LifecycleEvent) { created++ })
	bus.Subscribe(types.LifecycleDeleted, func(e types.LifecycleEvent) { deleted++ })

	bus.Publish(types.LifecycleEvent{Type: types.LifecycleCreated, SessionID: "s1"})
	bus.Publish(types.LifecycleEvent{Type: types.LifecycleCreated, SessionID: "s2"})
	bus.Publish(types.LifecycleEvent{Type: types.LifecycleForeground, SessionID: "s1"})

	assert.Equal(t, 2, created)
	assert.Equal(t, 0, deleted)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var calls int
	unsub := bus.Subscribe(types.LifecycleUpdated, func(e types.LifecycleEvent) { calls++ })

	bus.Publish(types.LifecycleEvent{Type: types.LifecycleUpdated, SessionID: "s1"})
	unsub()
	bus.Publish(types.LifecycleEvent{Type: types.LifecycleUpdated, SessionID: "s1"})

	assert.Equal(t, 1, calls)
}

func TestBusPanickingSubscriberIsolated(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var delivered int
	bus.Subscribe(types.LifecycleCreated, func(e types.LifecycleEvent) {
		panic("bad subscriber")
	})
	bus.Subscribe(types.LifecycleCreated, func(e types.LifecycleEvent) { delivered++ })
	bus.SubscribeAll(func(e types.LifecycleEvent) { delivered++ })

	assert.NotPanics(t, func() {
		bus.Publish(types.LifecycleEvent{Type: types.LifecycleCreated, SessionID: "s1"})
	})
	assert.Equal(t, 2, delivered)
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := NewBus()

	var calls int
	bus.SubscribeAll(func(e types.LifecycleEvent) { calls++ })
	require.NoError(t, bus.Close())

	bus.Publish(types.LifecycleEvent{Type: types.LifecycleDeleted, SessionID: "s1"})
	assert.Equal(t, 0, calls)

	// Subscribing after close is inert.
	unsub := bus.SubscribeAll(func(e types.LifecycleEvent) { calls++ })
	unsub()
}

func TestBusMirrorsToPubSub(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := bus.PubSub().Subscribe(ctx, Topic)
	require.NoError(t, err)

	bus.Publish(types.LifecycleEvent{Type: types.LifecycleForeground, SessionID: "s9"})

	select {
	case msg := <-msgs:
		var ev types.LifecycleEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, types.LifecycleForeground, ev.Type)
		assert.Equal(t, "s9", ev.SessionID)
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("mirrored event not received")
	}
}
