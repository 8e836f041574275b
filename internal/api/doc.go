// Package api hosts the HTTP server, middleware and REST handlers. Notable
// routes:
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/login, /v1/courses/refresh and /v1/grab queue tasks for the
//     worker pool and answer 202 with the task id.
//   - GET /v1/courses, /v1/tasks and /v1/enrollments read the local cache.
//   - GET /v1/events upgrades to a websocket streaming progress events.
package api
