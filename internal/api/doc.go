// Package api serves the relay over HTTP and provides a client for it.
//
// Server endpoints (all under /api):
//   - GET  /ws/{roomID}?client_id=    WebSocket upgrade into a room session
//   - GET  /health, /version, /metrics, /metrics/events?limit=
//   - GET  /rooms, /rooms/{roomID}, /rooms/{roomID}/users
//   - POST /rooms/{roomID}/persist, GET /rooms/{roomID}/load
//   - POST /simulate/users/{roomID}?count=, DELETE /simulate/users/{roomID}
//
// Client wraps the REST endpoints with retries for tooling such as relayprobe.
package api
