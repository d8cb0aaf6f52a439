package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"timevault/internal/capsule/events"
	"timevault/internal/capsule/metrics"
)

type fakeSource struct {
	mu      sync.Mutex
	pending []events.OutboxEntry
	drains  int
}

func (s *fakeSource) add(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		seq := int64(len(s.pending) + 1)
		s.pending = append(s.pending, events.OutboxEntry{
			Seq:  seq,
			ID:   uuid.New(),
			Type: events.TypeCapsuleCreated,
			Key:  fmt.Sprintf("capsule-%d", seq%3),
			Body: []byte(`{}`),
		})
	}
}

func (s *fakeSource) Drain(ctx context.Context, limit int, publish func(context.Context, []events.OutboxEntry) error) (int, error) {
	s.mu.Lock()
	s.drains++
	n := min(limit, len(s.pending))
	batch := append([]events.OutboxEntry(nil), s.pending[:n]...)
	s.mu.Unlock()

	if n == 0 {
		return 0, nil
	}
	if err := publish(ctx, batch); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.pending = s.pending[n:]
	s.mu.Unlock()
	return n, nil
}

func (s *fakeSource) drainCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drains
}

type fakePublisher struct {
	mu        sync.Mutex
	published []events.OutboxEntry
	failures  int
}

func (p *fakePublisher) Publish(_ context.Context, entries []events.OutboxEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, entries...)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// start runs w until the returned stop func is called, which also asserts a
// clean shutdown.
func start(t *testing.T, w *Worker) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

func TestWorker_DrainsBacklogInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &fakeSource{}
	src.add(250)
	pub := &fakePublisher{}
	m := metrics.New(prometheus.NewRegistry())

	stop := start(t, New(src, pub,
		WithBatchSize(100),
		WithPollInterval(time.Hour),
		WithLogger(quietLogger()),
		WithMetrics(m),
	))
	require.Eventually(t, func() bool { return pub.count() == 250 }, time.Second, 5*time.Millisecond)
	stop()

	for i, e := range pub.published {
		assert.Equal(t, int64(i+1), e.Seq)
	}
	assert.Equal(t, 250.0, testutil.ToFloat64(m.RelayPublished))
}

func TestWorker_FailedPublishKeepsRowsPending(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &fakeSource{}
	src.add(5)
	pub := &fakePublisher{failures: 2}
	m := metrics.New(prometheus.NewRegistry())

	stop := start(t, New(src, pub,
		WithPollInterval(10*time.Millisecond),
		WithLogger(quietLogger()),
		WithMetrics(m),
	))
	require.Eventually(t, func() bool { return pub.count() == 5 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RelayFailures))
	assert.Empty(t, src.pending)
}

func TestWorker_NotifyWakesDrain(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &fakeSource{}
	pub := &fakePublisher{}
	w := New(src, pub, WithPollInterval(time.Hour), WithLogger(quietLogger()))

	stop := start(t, w)
	require.Eventually(t, func() bool { return src.drainCalls() >= 1 }, time.Second, 5*time.Millisecond)

	src.add(3)
	w.Notify()
	require.Eventually(t, func() bool { return pub.count() == 3 }, time.Second, 5*time.Millisecond)
	stop()
}

func TestWorker_NotifyNeverBlocks(t *testing.T) {
	w := New(&fakeSource{}, &fakePublisher{})
	for i := 0; i < 10; i++ {
		w.Notify()
	}
	assert.Len(t, w.wake, 1)
}

func TestRecords_KeyedByAddressWithHeaders(t *testing.T) {
	entry := events.OutboxEntry{
		Seq:  7,
		ID:   uuid.MustParse("9a1b0c2d-3e4f-4a5b-8c6d-7e8f9a0b1c2d"),
		Type: events.TypeCapsuleClosed,
		Key:  "2ed53f20",
		Body: []byte(`{"type":"capsule.closed"}`),
	}

	recs := records("capsule-events", []events.OutboxEntry{entry})

	require.Len(t, recs, 1)
	assert.Equal(t, "capsule-events", recs[0].Topic)
	assert.Equal(t, []byte("2ed53f20"), recs[0].Key)
	assert.Equal(t, entry.Body, recs[0].Value)
	require.Len(t, recs[0].Headers, 2)
	assert.Equal(t, "9a1b0c2d-3e4f-4a5b-8c6d-7e8f9a0b1c2d", string(recs[0].Headers[0].Value))
	assert.Equal(t, string(events.TypeCapsuleClosed), string(recs[0].Headers[1].Value))
}
