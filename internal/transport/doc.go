// Package transport provides the byte-stream connections drivers use to
// reach their devices, plus the length-prefixed framing used by the packet
// gateway.
//
// A Conn is opened by the owning device actor, read from by at most one
// background reader and written to by the actor's own loop. Read always
// honours its timeout so readers can observe shutdown between calls.
//
// # Framing
//
// Framer reassembles frames of the form:
//
//	+------------------+--------------------+
//	| length (u32 BE)  | body (length)      |
//	+------------------+--------------------+
//
// from arbitrarily split reads, using a fixed-size ring buffer.
package transport
