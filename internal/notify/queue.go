package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"restopos/backend/internal/domain"
)

var ErrQueueFull = errors.New("notification queue full")

// Queue carries committed notifications from the services to the worker.
// Dequeue blocks until an item arrives or ctx is done.
type Queue interface {
	Enqueue(ctx context.Context, n domain.Notification) error
	Dequeue(ctx context.Context) (domain.Notification, error)
}

// MemoryQueue is a bounded in-process queue. Enqueue never blocks.
type MemoryQueue struct {
	items chan domain.Notification
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size < 1 {
		size = 1
	}
	return &MemoryQueue{items: make(chan domain.Notification, size)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, n domain.Notification) error {
	select {
	case q.items <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (domain.Notification, error) {
	select {
	case n := <-q.items:
		return n, nil
	case <-ctx.Done():
		return domain.Notification{}, ctx.Err()
	}
}

func (q *MemoryQueue) Len() int {
	return len(q.items)
}

// RedisQueue keeps pending notifications in a Redis list so they survive a
// restart of the API process.
type RedisQueue struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

func NewRedisQueue(addr string, password string, db int, key string) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisQueue{client: client, key: key, timeout: time.Second}
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Enqueue(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Dequeue pops the oldest notification. BRPOP is issued with a short timeout
// so cancellation of ctx is noticed promptly.
func (q *RedisQueue) Dequeue(ctx context.Context) (domain.Notification, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Notification{}, err
		}
		res, err := q.client.BRPop(ctx, q.timeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.Notification{}, ctxErr
			}
			return domain.Notification{}, err
		}
		if len(res) != 2 {
			return domain.Notification{}, fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
		}

		var n domain.Notification
		if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
			return domain.Notification{}, fmt.Errorf("decode notification: %w", err)
		}
		return n, nil
	}
}
