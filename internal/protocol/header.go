package protocol

import (
	"encoding/binary"
	"fmt"
)

// Magic is the protocol constant that opens every packet header.
const Magic uint32 = 0xEC55AAEE

// HeaderSize is the encoded size of Header in bytes.
const HeaderSize = 16

// Header is the fixed packet header.
type Header struct {
	Magic   uint32
	ID      ID
	BodyLen uint32
	Seq     uint32
}

// appendHeader appends the encoded header to dst.
func appendHeader(dst []byte, h Header) []byte {
	dst = binary.NativeEndian.AppendUint32(dst, h.Magic)
	dst = binary.NativeEndian.AppendUint32(dst, uint32(h.ID))
	dst = binary.NativeEndian.AppendUint32(dst, h.BodyLen)
	return binary.NativeEndian.AppendUint32(dst, h.Seq)
}

// PeekHeader decodes the header at the start of data without consuming it.
//
// Parameters:
//   - data: Raw packet bytes (at least HeaderSize)
//
// Returns:
//   - Header: The decoded header
//   - error: ErrShortBuffer or ErrBadMagic
func PeekHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrShortBuffer, HeaderSize, len(data))
	}
	h := Header{
		Magic:   binary.NativeEndian.Uint32(data[0:4]),
		ID:      ID(binary.NativeEndian.Uint32(data[4:8])),
		BodyLen: binary.NativeEndian.Uint32(data[8:12]),
		Seq:     binary.NativeEndian.Uint32(data[12:16]),
	}
	if h.Magic != Magic {
		return Header{}, fmt.Errorf("%w: 0x%08X", ErrBadMagic, h.Magic)
	}
	return h, nil
}
