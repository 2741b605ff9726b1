package audit

import (
	"context"
	"log/slog"
)

// ChannelStore decouples emitters from a slow sink: Append enqueues without
// blocking the request path, and a Worker drains the channel into the real
// store. Events are dropped (with a log line) if the buffer is full; the audit
// trail is best-effort on the hot path, guaranteed by the consumer side.
type ChannelStore struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewChannelStore(buffer int, logger *slog.Logger) *ChannelStore {
	return &ChannelStore{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

func (s *ChannelStore) Append(_ context.Context, event Event) error {
	select {
	case s.inbox <- event:
	default:
		if s.logger != nil {
			s.logger.Warn("audit buffer full, dropping event", "action", event.Action)
		}
	}
	return nil
}

// Inbox exposes the channel for a Worker to consume.
func (s *ChannelStore) Inbox() <-chan Event { return s.inbox }

// Worker consumes audit events from a channel and persists them to a Store.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run drains events until ctx is cancelled. Persistence failures are logged
// and skipped rather than stopping the worker.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil && w.logger != nil {
				w.logger.Error("failed to persist audit event",
					"action", event.Action, "error", err)
			}
		}
	}
}
