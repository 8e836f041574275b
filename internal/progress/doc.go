// Package progress carries enrollment progress events from the browser and
// worker layers to log, metric and websocket sinks. Events are batched on a
// background goroutine so emitters never block on slow consumers.
package progress
