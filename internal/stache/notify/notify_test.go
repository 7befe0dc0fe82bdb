package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversBySubscribedAction(t *testing.T) {
	bus, err := NewBus(nil)
	require.NoError(t, err)

	got := make(chan Event, 4)
	unsubscribe := bus.Subscribe(Created, func(_ context.Context, e Event) error {
		got <- e
		return nil
	})
	defer unsubscribe()

	bus.Publish(context.Background(), Event{Action: Deleted, Kind: "entries", Key: "ignored"})
	bus.Publish(context.Background(), Event{Action: Created, Kind: "entries", Key: "abc"})

	select {
	case e := <-got:
		assert.Equal(t, "abc", e.Key)
		assert.False(t, e.At.IsZero(), "timestamp set on publish")
	case <-time.After(2 * time.Second):
		t.Fatal("created event not delivered")
	}

	select {
	case e := <-got:
		t.Fatalf("unexpected event %v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFanoutAndRecorder(t *testing.T) {
	var a, b Recorder
	sink := Fanout{&a, Discard{}, &b}

	sink.Publish(context.Background(), Event{Action: Created})
	sink.Publish(context.Background(), Event{Action: Updated})

	assert.Equal(t, []Action{Created, Updated}, a.Actions())
	assert.Equal(t, a.Events(), b.Events())
}
