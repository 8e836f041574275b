package sinks

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/progress"
)

const (
	clientBuffer = 64
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeWait    = 10 * time.Second
)

// SubscribeMessage is sent by clients to choose which stages they receive.
// An empty Stages list means every stage.
type SubscribeMessage struct {
	Action string   `json:"action"`
	Stages []string `json:"stages,omitempty"`
	TaskID string   `json:"task_id,omitempty"`
}

// Broadcaster pushes progress events to websocket clients. New clients
// receive every stage until they send a subscribe message.
type Broadcaster struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn    *websocket.Conn
	send    chan progress.Event
	writeMu sync.Mutex

	mu     sync.RWMutex
	stages map[progress.Stage]bool
	taskID string
	paused bool
}

// NewBroadcaster builds a broadcaster. Origins are not checked; the API key
// middleware guards the route.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		conn:   conn,
		send:   make(chan progress.Event, clientBuffer),
		stages: make(map[progress.Stage]bool),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return
	}
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	b.logger.Debug("websocket client connected", zap.String("remote_addr", r.RemoteAddr))
	go c.writePump()
	go b.readPump(c)
}

func (b *Broadcaster) readPump(c *client) {
	defer b.remove(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg SubscribeMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		c.apply(msg)
	}
}

func (c *client) apply(msg SubscribeMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		c.paused = false
		c.stages = make(map[progress.Stage]bool, len(msg.Stages))
		for _, s := range msg.Stages {
			c.stages[progress.Stage(s)] = true
		}
		c.taskID = msg.TaskID
	case "unsubscribe":
		c.paused = true
	}
}

func (c *client) wants(evt progress.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.paused {
		return false
	}
	if c.taskID != "" && evt.TaskID != c.taskID {
		return false
	}
	return len(c.stages) == 0 || c.stages[evt.Stage]
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case evt, ok := <-c.send:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			var err error
			if !ok {
				err = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			} else {
				err = c.conn.WriteJSON(evt)
			}
			c.writeMu.Unlock()
			if !ok || err != nil {
				return
			}
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Consume forwards events to interested clients. A client whose buffer is
// full misses the event.
func (b *Broadcaster) Consume(_ context.Context, batch []progress.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		for _, evt := range batch {
			if !c.wants(evt) {
				continue
			}
			select {
			case c.send <- evt:
			default:
				b.logger.Debug("websocket client lagging, dropping event", zap.String("stage", string(evt.Stage)))
			}
		}
	}
	return nil
}

// Close disconnects every client.
func (b *Broadcaster) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
	return nil
}
