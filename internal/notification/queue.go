package notification

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var ErrQueueFull = errors.New("notification queue is full")

// Job is one pending alert email. The alert log is reloaded at delivery so
// the job stays small.
type Job struct {
	ID         string    `json:"id"`
	AlertLogID uint      `json:"alert_log_id"`
	Recipient  string    `json:"recipient"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	LastError  string    `json:"last_error,omitempty"`

	// raw is the payload as popped, needed to remove it from the
	// processing list.
	raw string
}

// Queue hands jobs to delivery workers. A popped job stays claimed until it
// is acked or dead-lettered.
type Queue interface {
	Push(ctx context.Context, job *Job) error
	// Pop waits up to timeout and returns nil when nothing arrived.
	Pop(ctx context.Context, timeout time.Duration) (*Job, error)
	Ack(ctx context.Context, job *Job) error
	DeadLetter(ctx context.Context, job *Job) error
	// Recover returns jobs claimed by consumers that are gone to the queue.
	Recover(ctx context.Context) (int, error)
}

// MemoryQueue is a bounded in-process queue. Jobs do not survive a restart.
type MemoryQueue struct {
	jobs chan *Job

	mu   sync.Mutex
	dead []*Job
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{jobs: make(chan *Job, size)}
}

func (q *MemoryQueue) Push(_ context.Context, job *Job) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case job := <-q.jobs:
		return job, nil
	}
}

func (q *MemoryQueue) Ack(context.Context, *Job) error { return nil }

func (q *MemoryQueue) DeadLetter(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, job)
	return nil
}

func (q *MemoryQueue) Recover(context.Context) (int, error) { return 0, nil }

func (q *MemoryQueue) Len() int { return len(q.jobs) }

func (q *MemoryQueue) DeadLetters() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(q.dead))
	copy(out, q.dead)
	return out
}

// DefaultLeaseTTL is how long a consumer's claim on its processing list
// outlives its last pop.
const DefaultLeaseTTL = 5 * time.Minute

// RedisQueue keeps jobs in a redis list shared by every replica. Each
// consumer moves popped jobs atomically to its own processing list and
// removes them on ack, so a crash between pop and delivery loses nothing.
// A consumer holds a lease key refreshed on every pop; Recover only takes
// back the processing lists of consumers whose lease has expired, and its
// own.
type RedisQueue struct {
	rdb        *redis.Client
	key        string
	consumer   string
	processing string
	lease      string
	dead       string
	leaseTTL   time.Duration
}

type RedisQueueOption func(*RedisQueue)

func WithLeaseTTL(ttl time.Duration) RedisQueueOption {
	return func(q *RedisQueue) {
		if ttl > 0 {
			q.leaseTTL = ttl
		}
	}
}

// NewRedisQueue builds a queue on key for consumer. Consumers must be unique
// among live replicas and should be stable across restarts.
func NewRedisQueue(rdb *redis.Client, key, consumer string, opts ...RedisQueueOption) *RedisQueue {
	q := &RedisQueue{
		rdb:      rdb,
		key:      key,
		consumer: consumer,
		dead:     key + ":dead",
		leaseTTL: DefaultLeaseTTL,
	}
	q.processing = q.processingKey(consumer)
	q.lease = q.leaseKey(consumer)
	for _, fn := range opts {
		fn(q)
	}
	return q
}

func (q *RedisQueue) processingKey(consumer string) string {
	return q.key + ":processing:" + consumer
}

func (q *RedisQueue) leaseKey(consumer string) string {
	return q.key + ":lease:" + consumer
}

func (q *RedisQueue) Push(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.key, raw).Err()
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	if err := q.rdb.Set(ctx, q.lease, time.Now().UTC().Format(time.RFC3339), q.leaseTTL).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to refresh consumer lease")
	}
	raw, err := q.rdb.BRPopLPush(ctx, q.key, q.processing, timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job := &Job{}
	if err := json.Unmarshal([]byte(raw), job); err != nil {
		// unreadable payloads would be redelivered forever
		_ = q.rdb.LRem(ctx, q.processing, 1, raw).Err()
		_ = q.rdb.LPush(ctx, q.dead, raw).Err()
		return nil, errors.Wrap(err, "failed to decode notification job")
	}
	job.raw = raw
	return job, nil
}

func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	return q.rdb.LRem(ctx, q.processing, 1, job.raw).Err()
}

func (q *RedisQueue) DeadLetter(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, job.raw)
		pipe.LPush(ctx, q.dead, raw)
		return nil
	})
	return err
}

// Recover moves the jobs of this consumer's processing list, and of every
// consumer whose lease has expired, back to the queue.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	prefix := q.processingKey("")
	n := 0
	iter := q.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		list := iter.Val()
		consumer := strings.TrimPrefix(list, prefix)
		if consumer != q.consumer {
			alive, err := q.rdb.Exists(ctx, q.leaseKey(consumer)).Result()
			if err != nil {
				return n, err
			}
			if alive > 0 {
				continue
			}
		}
		moved, err := q.drainList(ctx, list)
		n += moved
		if err != nil {
			return n, err
		}
	}
	return n, iter.Err()
}

func (q *RedisQueue) drainList(ctx context.Context, list string) (int, error) {
	n := 0
	for {
		err := q.rdb.RPopLPush(ctx, list, q.key).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Len reports the number of waiting jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

func (q *RedisQueue) DeadLetters(ctx context.Context) ([]*Job, error) {
	raws, err := q.rdb.LRange(ctx, q.dead, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(raws))
	for _, raw := range raws {
		job := &Job{}
		if err := json.Unmarshal([]byte(raw), job); err != nil {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}
