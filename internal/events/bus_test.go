package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus(t *testing.T) {
	t.Run("delivers to all subscribers", func(t *testing.T) {
		bus := NewBus()
		ch1, cancel1 := bus.Subscribe(4)
		defer cancel1()
		ch2, cancel2 := bus.Subscribe(4)
		defer cancel2()

		bus.Publish(Event{Type: TypeWalletUpdated, ClientID: "CLI_a"})

		for _, ch := range []<-chan Event{ch1, ch2} {
			select {
			case evt := <-ch:
				assert.Equal(t, TypeWalletUpdated, evt.Type)
				assert.Equal(t, "CLI_a", evt.ClientID)
				assert.False(t, evt.At.IsZero())
			case <-time.After(time.Second):
				t.Fatal("expected event was not delivered")
			}
		}
	})

	t.Run("publish never blocks on a full subscriber", func(t *testing.T) {
		bus := NewBus()
		_, cancel := bus.Subscribe(1)
		defer cancel()

		done := make(chan struct{})
		go func() {
			for i := 0; i < 10; i++ {
				bus.Publish(Event{Type: TypeLegUpdated})
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("publish blocked on a slow subscriber")
		}
	})

	t.Run("cancel closes the channel and stops delivery", func(t *testing.T) {
		bus := NewBus()
		ch, cancel := bus.Subscribe(1)
		cancel()
		// Double cancel is safe.
		cancel()

		_, open := <-ch
		assert.False(t, open)

		bus.Publish(Event{Type: TypeAttemptUpdated})
	})

	t.Run("nil bus publish is a no-op", func(t *testing.T) {
		var bus *Bus
		require.NotPanics(t, func() {
			bus.Publish(Event{Type: TypeAttemptUpdated})
		})
	})
}
