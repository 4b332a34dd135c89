package notification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/infrastructure/metrics"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/okieraised/thermostat-alerts/internal/repository"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	failures int
	sent     []Message
	calls    int
}

func (s *fakeSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("smtp unavailable")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

type fakeLoader map[uint]*models.AlertLog

func (l fakeLoader) GetByID(_ context.Context, id uint) (*models.AlertLog, error) {
	if entry, ok := l[id]; ok {
		return entry, nil
	}
	return nil, repository.ErrNotFound
}

type fakePublisher struct {
	published []*models.AlertLog
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, entry *models.AlertLog) error {
	p.published = append(p.published, entry)
	return p.err
}

func newDispatcher(sender Sender, loader LogLoader, opts ...Option) (*Dispatcher, *MemoryQueue) {
	q := NewMemoryQueue(16)
	opts = append([]Option{WithRetry(3, time.Millisecond, 2*time.Millisecond), WithPopTimeout(10 * time.Millisecond)}, opts...)
	return NewDispatcher(q, sender, NewRenderer("Thermostat", "", time.UTC), loader, opts...), q
}

func popJob(t *testing.T, q *MemoryQueue) *Job {
	t.Helper()
	job, err := q.Pop(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func TestEnqueue(t *testing.T) {
	m := metrics.NewMetrics()
	pub := &fakePublisher{err: errors.New("broker down")}
	d, q := newDispatcher(&fakeSender{}, fakeLoader{}, WithMetrics(m), WithPublisher(pub))
	entry := alertEntry()

	err := d.Enqueue(context.Background(), models.User{ID: 1, Email: "ops@example.com"}, entry)
	require.NoError(t, err)

	job := popJob(t, q)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, entry.ID, job.AlertLogID)
	assert.Equal(t, "ops@example.com", job.Recipient)
	require.Len(t, pub.published, 1, "publish failure must not fail the enqueue")
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Notifications.WithLabelValues("queued")))
}

func TestEnqueueWithoutEmail(t *testing.T) {
	m := metrics.NewMetrics()
	d, q := newDispatcher(&fakeSender{}, fakeLoader{}, WithMetrics(m))

	err := d.Enqueue(context.Background(), models.User{ID: 1, Email: "  "}, alertEntry())
	assert.ErrorIs(t, err, ErrNoEmail)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Notifications.WithLabelValues("refused")))
}

func TestEnqueueQueueFull(t *testing.T) {
	q := NewMemoryQueue(1)
	d := NewDispatcher(q, &fakeSender{}, NewRenderer("Thermostat", "", time.UTC), fakeLoader{})
	user := models.User{ID: 1, Email: "ops@example.com"}

	require.NoError(t, d.Enqueue(context.Background(), user, alertEntry()))
	assert.ErrorIs(t, d.Enqueue(context.Background(), user, alertEntry()), ErrQueueFull)
}

func TestSendNow(t *testing.T) {
	sender := &fakeSender{}
	d, q := newDispatcher(sender, fakeLoader{})

	err := d.SendNow(context.Background(), models.User{Email: "ops@example.com"}, alertEntry())
	require.NoError(t, err)
	require.Len(t, sender.Sent(), 1)
	assert.Equal(t, "Alert: Temperature Above Threshold", sender.Sent()[0].Subject)
	assert.Equal(t, 0, q.Len())

	assert.ErrorIs(t, d.SendNow(context.Background(), models.User{}, alertEntry()), ErrNoEmail)
}

func TestProcessRetriesThenSends(t *testing.T) {
	m := metrics.NewMetrics()
	sender := &fakeSender{failures: 2}
	entry := alertEntry()
	d, q := newDispatcher(sender, fakeLoader{entry.ID: entry}, WithMetrics(m))

	require.NoError(t, d.Enqueue(context.Background(), models.User{Email: "ops@example.com"}, entry))
	job := popJob(t, q)
	d.process(context.Background(), job)

	require.Len(t, sender.Sent(), 1)
	assert.Equal(t, "ops@example.com", sender.Sent()[0].To)
	assert.Equal(t, 3, job.Attempts)
	assert.Empty(t, q.DeadLetters())
	assert.Equal(t, 2.0, promtest.ToFloat64(m.Notifications.WithLabelValues("retried")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Notifications.WithLabelValues("sent")))
}

func TestProcessDeadLetters(t *testing.T) {
	sender := &fakeSender{failures: 10}
	entry := alertEntry()
	d, q := newDispatcher(sender, fakeLoader{entry.ID: entry})

	require.NoError(t, d.Enqueue(context.Background(), models.User{Email: "ops@example.com"}, entry))
	d.process(context.Background(), popJob(t, q))

	assert.Equal(t, 3, sender.calls)
	dead := q.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, 3, dead[0].Attempts)
	assert.Equal(t, "smtp unavailable", dead[0].LastError)
}

func TestProcessDropsDeletedLog(t *testing.T) {
	sender := &fakeSender{}
	d, q := newDispatcher(sender, fakeLoader{})

	require.NoError(t, d.Enqueue(context.Background(), models.User{Email: "ops@example.com"}, alertEntry()))
	d.process(context.Background(), popJob(t, q))

	assert.Zero(t, sender.calls)
	assert.Empty(t, q.DeadLetters())
}

func TestRunDeliversUntilCancelled(t *testing.T) {
	sender := &fakeSender{}
	entry := alertEntry()
	d, _ := newDispatcher(sender, fakeLoader{entry.ID: entry}, WithWorkers(2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.NoError(t, d.Enqueue(ctx, models.User{Email: "ops@example.com"}, entry))
	assert.Eventually(t, func() bool { return len(sender.Sent()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

type recoverCounter struct {
	*MemoryQueue
	calls atomic.Int32
}

func (r *recoverCounter) Recover(context.Context) (int, error) {
	r.calls.Add(1)
	return 0, nil
}

func TestRunRecoversPeriodically(t *testing.T) {
	q := &recoverCounter{MemoryQueue: NewMemoryQueue(1)}
	d := NewDispatcher(q, &fakeSender{}, NewRenderer("Thermostat", "", time.UTC), fakeLoader{},
		WithPopTimeout(10*time.Millisecond), WithRecoverInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	assert.Eventually(t, func() bool { return q.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestDrainDeliversQueuedJobsWithRetry(t *testing.T) {
	sender := &fakeSender{failures: 1}
	first, second := alertEntry(), alertEntry()
	second.ID = first.ID + 1
	d, q := newDispatcher(sender, fakeLoader{first.ID: first, second.ID: second}, WithWorkers(2))

	user := models.User{Email: "ops@example.com"}
	require.NoError(t, d.Enqueue(context.Background(), user, first))
	require.NoError(t, d.Enqueue(context.Background(), user, second))

	require.NoError(t, d.Drain(context.Background()))
	assert.Len(t, sender.Sent(), 2, "a failed attempt is retried before the drain returns")
	assert.Equal(t, 3, sender.calls)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.DeadLetters())
}

func TestDrainStopsOnCancel(t *testing.T) {
	d, _ := newDispatcher(&fakeSender{}, fakeLoader{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Drain(ctx), context.Canceled)
}
