package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	bus.Publish(Event{Type: EventTypeDocumentIndexed, Payload: "a.pdf"})

	select {
	case event := <-ch:
		assert.Equal(t, EventTypeDocumentIndexed, event.Type)
		assert.Equal(t, "a.pdf", event.Payload)
	case <-time.After(time.Second):
		t.Fatal("未收到事件")
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)

	// 重复注销不应 panic
	bus.Unsubscribe(ch)
}

func TestTypingTrackerSetAndClear(t *testing.T) {
	bus := NewBus()
	tracker := NewTypingTracker(bus, 3*time.Second)

	tracker.SetTyping("alice", true)
	tracker.SetTyping("bob", true)
	assert.Equal(t, []string{"alice", "bob"}, tracker.Snapshot())

	tracker.SetTyping("alice", false)
	assert.Equal(t, []string{"bob"}, tracker.Snapshot())
}

func TestTypingTrackerSweepExpiresStaleEntries(t *testing.T) {
	bus := NewBus()
	tracker := NewTypingTracker(bus, 50*time.Millisecond)

	tracker.SetTyping("alice", true)
	require.Equal(t, []string{"alice"}, tracker.Snapshot())

	// TTL 之内清扫不应过期
	assert.False(t, tracker.sweep(time.Now()))

	changed := tracker.sweep(time.Now().Add(time.Second))
	assert.True(t, changed)
	assert.Empty(t, tracker.Snapshot())
}

func TestTypingTrackerPublishesSnapshot(t *testing.T) {
	bus := NewBus()
	tracker := NewTypingTracker(bus, time.Second)

	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	tracker.SetTyping("alice", true)

	select {
	case event := <-ch:
		assert.Equal(t, EventTypeTyping, event.Type)
		assert.Equal(t, []string{"alice"}, event.Payload)
	case <-time.After(time.Second):
		t.Fatal("未收到输入状态事件")
	}
}
