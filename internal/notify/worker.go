package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"restopos/backend/internal/domain"
)

// Store is the part of the repository the worker writes to.
type Store interface {
	CreateNotification(ctx context.Context, n domain.Notification) error
}

// Worker drains a Queue into the notifications table.
type Worker struct {
	queue   Queue
	store   Store
	logger  *zap.Logger
	backoff time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(queue Queue, store Store, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: queue, store: store, logger: logger, backoff: time.Second}
}

// Start runs the worker in the background until Stop is called or ctx ends.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.Run(ctx)
	}()
	w.logger.Info("notification worker started")
}

// Stop cancels the worker and waits for the current item to finish.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("notification worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run blocks, persisting notifications as they arrive. Persistence failures
// are logged and the notification is dropped.
func (w *Worker) Run(ctx context.Context) {
	for {
		n, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to read notification queue", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff):
			}
			continue
		}

		if err := w.store.CreateNotification(ctx, n); err != nil {
			w.logger.Warn("failed to store notification",
				zap.String("notification_id", n.ID),
				zap.Int64("user_id", n.UserID),
				zap.Error(err),
			)
		}
	}
}
