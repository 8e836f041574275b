package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageCheck))
	hub.Emit(sampleEvent(StageCheck))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1 && len(sink.Batches()[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageLogin))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitNonBlockingWithoutConsumers(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageLogin))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageSelectDone))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	require.True(t, sink.Closed())

	// Emit after close is ignored and Close is idempotent.
	hub.Emit(sampleEvent(StageSelectDone))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
}

func TestHubStampsAndValidates(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1, Now: func() time.Time { return fixed }}, sink)

	hub.Emit(Event{Stage: StageRefresh})
	hub.Emit(Event{Stage: StageCheck})
	hub.Emit(Event{Stage: Stage("BOGUS")})
	hub.Emit(Event{Stage: StageLogin, Level: "loud"})

	require.NoError(t, hub.Close(context.Background()))
	batches := sink.Batches()
	require.Len(t, batches, 1)
	require.Equal(t, fixed, batches[0][0].TS)
	require.Equal(t, StageRefresh, batches[0][0].Stage)
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	require.Error(t, Event{Stage: StageLogin}.Validate())
	require.NoError(t, Event{TS: now, Stage: StageNotify, Level: LevelWarning}.Validate())
	require.NoError(t, Event{TS: now, Stage: StageCaptcha, CourseID: "K1"}.Validate())
	require.Error(t, Event{TS: now, Stage: StageSelectError}.Validate())
	require.Error(t, Event{TS: now, Stage: StageLogin, Dur: -time.Second}.Validate())
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(stage Stage) Event {
	return Event{
		TaskID:   "task-1",
		TS:       time.Now(),
		Stage:    stage,
		CourseID: "K001",
	}
}

func TestTaskContext(t *testing.T) {
	t.Parallel()

	require.Empty(t, TaskFrom(context.Background()))
	ctx := WithTask(context.Background(), "task-1")
	require.Equal(t, "task-1", TaskFrom(ctx))
}
