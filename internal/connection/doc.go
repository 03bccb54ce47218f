// Package connection implements the WebSocket transport.
//
// Conn wraps an accepted server-side socket:
//   - ReadFrame is called by exactly one session goroutine
//   - Send enqueues onto a bounded buffer and never blocks
//   - A write pump drains the buffer and sends keepalive pings
//
// Client dials a relay room for tooling and tests. It wraps the dialed
// socket in a Conn, so both ends share one write pump and keepalive.
package connection
