// Package protocol implements the binary packet protocol shared by callers,
// device actors and drivers.
//
// Every message on the wire is a fixed 16-byte header followed by a typed,
// fixed-layout payload:
//
//	+----------+----------+----------+----------+----------------------+
//	| magic    | id       | body_len | cseq     | payload (body_len)   |
//	| u32      | u32      | u32      | u32      | packed struct        |
//	+----------+----------+----------+----------+----------------------+
//
// # Packet Identity
//
// The 32-bit packet id is built from four disjoint bit fields, most
// significant first:
//
//	family (8) | category (8) | response (1) | index (15)
//
// The layout is fixed for compatibility with existing callers. The family
// shares its enumerant space with device families, plus a family-less
// "system" value (0) used for device-agnostic packets.
//
// # Byte Order
//
// Header and payload fields are written in host byte order. Both ends of a
// link are expected to run on the same platform family; nothing is swapped.
//
// # Usage
//
//	reg := protocol.NewCatalogueRegistry()
//	pkt := protocol.NewLightLevelReq(75)
//	data, _ := pkt.Encode()
//
//	decoded, err := reg.Decode(data)
//	if errors.Is(err, protocol.ErrUnknownPacket) {
//	    // log and drop
//	}
//
// # Thread Safety
//
// Registries are populated once at startup and read-only afterwards. Packet
// values are owned by whoever holds them and must not be shared after being
// handed to a mailbox.
package protocol
