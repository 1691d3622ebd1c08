package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestPublishSubscribe verifies events reach an active subscriber
func TestPublishSubscribe(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&Event{
		Type:   EventDeploymentSent,
		HostID: "h1",
		NodeID: "n1",
	})

	select {
	case event := <-sub:
		assert.Equal(t, EventDeploymentSent, event.Type)
		assert.Equal(t, "h1", event.HostID)
		assert.Equal(t, "n1", event.NodeID)
		assert.False(t, event.Timestamp.IsZero(), "timestamp should be stamped on publish")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

// TestUnsubscribe verifies the subscriber channel is closed on unsubscribe
func TestUnsubscribe(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	require.Equal(t, 1, broker.SubscriberCount())

	broker.Unsubscribe(sub)
	assert.Equal(t, 0, broker.SubscriberCount())

	_, open := <-sub
	assert.False(t, open, "channel should be closed after unsubscribe")
}

// TestSlowSubscriberDoesNotBlock verifies a full subscriber buffer drops
// events instead of stalling the broadcast loop
func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	slow := broker.Subscribe()
	defer broker.Unsubscribe(slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Well past the per-subscriber buffer.
		for i := 0; i < 200; i++ {
			broker.Publish(&Event{Type: EventNodePlaced, NodeID: "n1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

// TestPublishAfterStop verifies Publish returns instead of blocking once the
// broker is stopped
func TestPublishAfterStop(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	broker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			broker.Publish(&Event{Type: EventNodeDeleted})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked after stop")
	}
}
