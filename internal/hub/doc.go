// Package hub implements session lifecycle and fan-out on top of the room
// registry.
//
// The Manager registers and tears down connections; the Broadcaster delivers
// a frame to a snapshot of a room's connections and hands every failed
// recipient back to the Manager once the fan-out is complete.
package hub
