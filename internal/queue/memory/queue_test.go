package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/coursebot/internal/portal"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan portal.QueueItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	item := portal.QueueItem{TaskID: "task-1", Kind: portal.TaskGrab, CourseID: "K1"}
	require.NoError(t, q.Enqueue(context.Background(), item))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, item, got)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return task")
	}
}

func TestQueueCancelation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := NewQueue(1)
	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, q.Enqueue(context.Background(), portal.QueueItem{TaskID: "primed"}))
	require.Equal(t, 1, q.Len())
	require.ErrorIs(t, q.Enqueue(ctx, portal.QueueItem{TaskID: "blocked"}), context.Canceled)
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), portal.QueueItem{TaskID: "pending"}))
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Enqueue(context.Background(), portal.QueueItem{TaskID: "late"}), ErrClosed)

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "pending", got.TaskID)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
