// Package sinks implements progress consumers: structured logging, Prometheus
// collectors and a websocket broadcaster for live clients.
package sinks
