// Package room owns per-room state: the document blob, the live connection
// set and the presence map.
//
// Rooms are created lazily on first reference and live for the life of the
// Registry. The registry map and each room have their own lock; no method
// performs transport I/O while holding either.
package room
