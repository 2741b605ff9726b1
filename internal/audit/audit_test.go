package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherFillsDefaults(t *testing.T) {
	store := NewMemoryStore()
	publisher := NewPublisher(store)

	err := publisher.Emit(context.Background(), Event{
		Action:  string(EventCodeGenerated),
		Subject: "RSK-ACME-02-2026-000001-01",
	})
	require.NoError(t, err)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, CategoryCompliance, events[0].Category)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisherKeepsExplicitCategory(t *testing.T) {
	store := NewMemoryStore()
	publisher := NewPublisher(store)

	err := publisher.Emit(context.Background(), Event{
		Action:   "custom_action",
		Category: CategorySecurity,
	})
	require.NoError(t, err)
	assert.Equal(t, CategorySecurity, store.Events()[0].Category)
}

func TestEventCategories(t *testing.T) {
	assert.Equal(t, CategoryCompliance, EventEvidenceApproved.Category())
	assert.Equal(t, CategorySecurity, EventAiInputBlocked.Category())
	assert.Equal(t, CategoryOperations, EventEvidenceSubmitted.Category())
	assert.Equal(t, CategoryOperations, AuditEvent("never_seen").Category())
}

func TestChannelStoreDropsWhenFull(t *testing.T) {
	store := NewChannelStore(1, nil)

	require.NoError(t, store.Append(context.Background(), Event{Action: "first"}))
	// Buffer is full; the second append must not block the caller.
	require.NoError(t, store.Append(context.Background(), Event{Action: "second"}))

	assert.Equal(t, "first", (<-store.Inbox()).Action)
	select {
	case ev := <-store.Inbox():
		t.Fatalf("expected dropped event, got %q", ev.Action)
	default:
	}
}

func TestWorkerDrainsInbox(t *testing.T) {
	sink := NewMemoryStore()
	channel := NewChannelStore(8, nil)
	worker := NewWorker(sink, channel.Inbox(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = worker.Run(ctx)
	}()

	for _, action := range []string{"one", "two", "three"} {
		require.NoError(t, channel.Append(ctx, Event{Action: action}))
	}

	require.Eventually(t, func() bool {
		return len(sink.Events()) == 3
	}, time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()
}

type failingStore struct {
	calls atomic.Int64
}

func (s *failingStore) Append(context.Context, Event) error {
	s.calls.Add(1)
	return errors.New("sink down")
}

func TestWorkerSurvivesSinkFailures(t *testing.T) {
	sink := &failingStore{}
	channel := NewChannelStore(8, nil)
	worker := NewWorker(sink, channel.Inbox(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	require.NoError(t, channel.Append(ctx, Event{Action: "one"}))
	require.NoError(t, channel.Append(ctx, Event{Action: "two"}))

	require.Eventually(t, func() bool {
		return sink.calls.Load() == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
