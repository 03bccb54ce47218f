// Package protocol implements the relay's wire codec.
//
// Every frame on a room channel is either a JSON envelope carrying a "type"
// discriminator or a raw binary document update. Inbound envelopes decode into
// the closed ClientMessage set; outbound ones are built from the closed
// ServerMessage set. Document bytes travel hex-encoded inside JSON and are
// never interpreted.
package protocol
