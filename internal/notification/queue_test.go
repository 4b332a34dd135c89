package notification

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return newConsumer(t, mr, "worker-a"), mr
}

func newConsumer(t *testing.T, mr *miniredis.Miniredis, name string, opts ...RedisQueueOption) *RedisQueue {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisQueue(rdb, "test:mail", name, opts...)
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1)

	require.NoError(t, q.Push(ctx, &Job{ID: "a"}))
	assert.ErrorIs(t, q.Push(ctx, &Job{ID: "b"}), ErrQueueFull)
	assert.Equal(t, 1, q.Len())

	job, err := q.Pop(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "a", job.ID)

	job, err = q.Pop(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)

	require.NoError(t, q.DeadLetter(ctx, &Job{ID: "c"}))
	require.Len(t, q.DeadLetters(), 1)
	assert.Equal(t, "c", q.DeadLetters()[0].ID)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = q.Pop(cancelled, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisQueuePopAck(t *testing.T) {
	ctx := context.Background()
	q, mr := newRedisQueue(t)

	require.NoError(t, q.Push(ctx, &Job{ID: "first", AlertLogID: 1, Recipient: "a@example.com"}))
	require.NoError(t, q.Push(ctx, &Job{ID: "second", AlertLogID: 2, Recipient: "b@example.com"}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	job, err := q.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "first", job.ID)
	assert.EqualValues(t, 1, job.AlertLogID)

	processing, err := mr.List("test:mail:processing:worker-a")
	require.NoError(t, err)
	assert.Len(t, processing, 1)
	assert.True(t, mr.Exists("test:mail:lease:worker-a"))
	assert.Equal(t, DefaultLeaseTTL, mr.TTL("test:mail:lease:worker-a"))

	require.NoError(t, q.Ack(ctx, job))
	assert.False(t, mr.Exists("test:mail:processing:worker-a"))
}

func TestRedisQueueEmptyPop(t *testing.T) {
	q, _ := newRedisQueue(t)
	job, err := q.Pop(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestRedisQueueDeadLetter(t *testing.T) {
	ctx := context.Background()
	q, mr := newRedisQueue(t)

	require.NoError(t, q.Push(ctx, &Job{ID: "doomed", AlertLogID: 9}))
	job, err := q.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)

	job.Attempts = 5
	job.LastError = "connection refused"
	require.NoError(t, q.DeadLetter(ctx, job))

	assert.False(t, mr.Exists("test:mail:processing:worker-a"))
	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "doomed", dead[0].ID)
	assert.Equal(t, 5, dead[0].Attempts)
	assert.Equal(t, "connection refused", dead[0].LastError)
}

func TestRedisQueueRecover(t *testing.T) {
	ctx := context.Background()
	q, _ := newRedisQueue(t)

	require.NoError(t, q.Push(ctx, &Job{ID: "claimed"}))
	job, err := q.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)

	n, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := q.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "claimed", again.ID)
}

func TestRedisQueueRecoverLeavesLiveConsumers(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	live := newConsumer(t, mr, "worker-a", WithLeaseTTL(time.Minute))
	crashed := newConsumer(t, mr, "worker-c", WithLeaseTTL(time.Minute))
	restarted := newConsumer(t, mr, "worker-b", WithLeaseTTL(time.Minute))

	require.NoError(t, live.Push(ctx, &Job{ID: "orphan"}))
	require.NoError(t, live.Push(ctx, &Job{ID: "in-flight"}))

	orphan, err := crashed.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, orphan)
	assert.Equal(t, "orphan", orphan.ID)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("test:mail:lease:worker-c"))

	inFlight, err := live.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, inFlight)
	assert.Equal(t, "in-flight", inFlight.ID)

	n, err := restarted.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	processing, err := mr.List("test:mail:processing:worker-a")
	require.NoError(t, err)
	assert.Len(t, processing, 1, "a live consumer keeps its claimed job")
	assert.False(t, mr.Exists("test:mail:processing:worker-c"))

	again, err := restarted.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "orphan", again.ID)

	require.NoError(t, live.Ack(ctx, inFlight))
	assert.False(t, mr.Exists("test:mail:processing:worker-a"))
}

func TestRedisQueueUndecodable(t *testing.T) {
	ctx := context.Background()
	q, mr := newRedisQueue(t)

	_, err := mr.Lpush("test:mail", "not json")
	require.NoError(t, err)

	job, err := q.Pop(ctx, 100*time.Millisecond)
	assert.Error(t, err)
	assert.Nil(t, job)

	dead, err := mr.List("test:mail:dead")
	require.NoError(t, err)
	assert.Equal(t, []string{"not json"}, dead)
	assert.False(t, mr.Exists("test:mail:processing:worker-a"))
}
