package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"restopos/backend/internal/domain"
)

// BufferedQueue fronts a remote Queue with a bounded in-process buffer.
// Enqueue only touches the buffer; a forwarder goroutine pushes to the remote
// queue, so a slow Redis never holds up the request that committed.
type BufferedQueue struct {
	remote  Queue
	buffer  *MemoryQueue
	logger  *zap.Logger
	timeout time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBufferedQueue(remote Queue, size int, logger *zap.Logger) *BufferedQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BufferedQueue{
		remote:  remote,
		buffer:  NewMemoryQueue(size),
		logger:  logger,
		timeout: enqueueTimeout,
	}
}

func (q *BufferedQueue) Enqueue(ctx context.Context, n domain.Notification) error {
	return q.buffer.Enqueue(ctx, n)
}

func (q *BufferedQueue) Dequeue(ctx context.Context) (domain.Notification, error) {
	return q.remote.Dequeue(ctx)
}

// Start runs the forwarder until Stop is called or ctx ends.
func (q *BufferedQueue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.forward(ctx)
	}()
}

// Stop ends the forwarder after it has flushed what is already buffered.
func (q *BufferedQueue) Stop(ctx context.Context) error {
	if q.cancel != nil {
		q.cancel()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *BufferedQueue) forward(ctx context.Context) {
	for {
		n, err := q.buffer.Dequeue(ctx)
		if err != nil {
			q.flush()
			return
		}
		q.push(n)
	}
}

func (q *BufferedQueue) flush() {
	for {
		select {
		case n := <-q.buffer.items:
			q.push(n)
		default:
			return
		}
	}
}

func (q *BufferedQueue) push(n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	if err := q.remote.Enqueue(ctx, n); err != nil {
		q.logger.Warn("dropping notification",
			zap.String("notification_id", n.ID),
			zap.Int64("user_id", n.UserID),
			zap.Error(err),
		)
	}
}
