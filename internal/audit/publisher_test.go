package audit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_EmitPersists(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store, testLogger(), 0)

	err := publisher.Emit(context.Background(), Event{
		UserID:   "user-1",
		CallID:   "call-1",
		Action:   ActionCallRejected,
		Decision: "blocked",
		Reason:   ReasonOutOfBounds,
	})
	require.NoError(t, err)

	events, err := publisher.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionCallRejected, events[0].Action)
	assert.False(t, events[0].Timestamp.IsZero(), "publisher stamps the event")

	byCall, err := publisher.ListByCall(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Len(t, byCall, 1)
}

func TestPublisher_FanOut(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store, testLogger(), 2)

	require.NoError(t, publisher.Emit(context.Background(), Event{UserID: "user-1", Action: ActionCallAllowed}))

	select {
	case event := <-publisher.Outbox():
		assert.Equal(t, ActionCallAllowed, event.Action)
	case <-time.After(time.Second):
		t.Fatal("no fan-out copy on the outbox")
	}
}

func TestPublisher_FullOutboxNeverBlocks(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store, testLogger(), 1)
	ctx := context.Background()

	// Nothing drains the outbox; emits must still persist and return.
	for i := 0; i < 5; i++ {
		require.NoError(t, publisher.Emit(ctx, Event{UserID: "user-1", Action: ActionLocationRecorded}))
	}

	events, err := publisher.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestWorker_DrainsOutboxIntoSink(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store, testLogger(), 8)
	sink := &recordingSink{}
	worker := NewWorker(sink, publisher.Outbox(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	for i := 0; i < 3; i++ {
		require.NoError(t, publisher.Emit(ctx, Event{UserID: "user-1", Action: ActionCallAllowed}))
	}

	assert.Eventually(t, func() bool {
		return sink.count() == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_SinkFailureDoesNotStopDraining(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store, testLogger(), 8)
	sink := &recordingSink{err: assert.AnError}
	worker := NewWorker(sink, publisher.Outbox(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	require.NoError(t, publisher.Emit(ctx, Event{UserID: "user-1", Action: ActionCallAllowed}))

	// The store write is the source of truth; a dead sink only loses the copy.
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	require.NoError(t, publisher.Emit(ctx, Event{UserID: "user-1", Action: ActionCallRejected}))

	assert.Eventually(t, func() bool {
		return sink.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
