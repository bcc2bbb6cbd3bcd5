package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/xid"
)

const enqueueTimeout = 2 * time.Second

// Dispatcher hands notifications to a Queue. It is called after commit and
// never fails the caller; enqueue errors are logged and the message dropped.
type Dispatcher struct {
	queue  Queue
	logger *zap.Logger
	now    func() time.Time
}

func NewDispatcher(queue Queue, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:  queue,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) Notify(ctx context.Context, userID int64, message string, link string) {
	n := domain.Notification{
		ID:        xid.New("ntf"),
		UserID:    userID,
		Message:   message,
		Link:      link,
		CreatedAt: d.now(),
	}

	// the request may already be finishing; the enqueue should not die with it
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	if err := d.queue.Enqueue(ctx, n); err != nil {
		d.logger.Warn("dropping notification",
			zap.String("notification_id", n.ID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}
