package sinks

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/coursebot/internal/progress"
)

func dialBroadcaster(t *testing.T, b *Broadcaster) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(b)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return b.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func TestBroadcasterDeliversEvents(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(nil)
	conn := dialBroadcaster(t, b)

	evt := progress.Event{TS: time.Now().UTC(), Stage: progress.StageCheck, CourseID: "K001", Remaining: 4}
	require.NoError(t, b.Consume(context.Background(), []progress.Event{evt}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got progress.Event
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, progress.StageCheck, got.Stage)
	require.Equal(t, "K001", got.CourseID)
	require.Equal(t, 4, got.Remaining)
}

func TestBroadcasterStageFilter(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(nil)
	conn := dialBroadcaster(t, b)

	require.NoError(t, conn.WriteJSON(SubscribeMessage{
		Action: "subscribe",
		Stages: []string{string(progress.StageSelectDone)},
	}))

	var c *client
	b.mu.RLock()
	for cl := range b.clients {
		c = cl
	}
	b.mu.RUnlock()
	require.Eventually(t, func() bool {
		return !c.wants(progress.Event{Stage: progress.StageCheck})
	}, time.Second, 5*time.Millisecond)

	now := time.Now().UTC()
	require.NoError(t, b.Consume(context.Background(), []progress.Event{
		{TS: now, Stage: progress.StageCheck, CourseID: "K001"},
		{TS: now, Stage: progress.StageSelectDone, CourseID: "K001", Note: "选课成功"},
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got progress.Event
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, progress.StageSelectDone, got.Stage)
	require.Equal(t, "选课成功", got.Note)
}

func TestClientFilters(t *testing.T) {
	t.Parallel()

	c := &client{stages: map[progress.Stage]bool{}}
	require.True(t, c.wants(progress.Event{Stage: progress.StageLogin}))

	c.apply(SubscribeMessage{Action: "subscribe", TaskID: "t1"})
	require.False(t, c.wants(progress.Event{Stage: progress.StageLogin, TaskID: "t2"}))
	require.True(t, c.wants(progress.Event{Stage: progress.StageLogin, TaskID: "t1"}))

	c.apply(SubscribeMessage{Action: "unsubscribe"})
	require.False(t, c.wants(progress.Event{Stage: progress.StageLogin, TaskID: "t1"}))
}

func TestBroadcasterClose(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(nil)
	conn := dialBroadcaster(t, b)

	require.NoError(t, b.Close(context.Background()))
	require.Zero(t, b.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}
