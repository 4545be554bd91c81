package protocol

import (
	"encoding/binary"
	"fmt"
)

// Packet is the type-erased view of a Message used by registries, mailboxes
// and dispatch tables.
type Packet interface {
	// ID returns the compile-time packet id of the concrete type.
	ID() ID

	// Name returns the catalogue name (e.g. "LightLevelReq").
	Name() string

	// Header returns a copy of the current header.
	Header() Header

	// Seq returns the sequence counter carried in the header.
	Seq() uint32

	// SetSeq sets the sequence counter.
	SetSeq(seq uint32)

	// Payload returns the typed body as an empty interface.
	Payload() any

	// Encode serialises header and body.
	Encode() ([]byte, error)

	// Decode replaces header and body with the contents of data.
	Decode(data []byte) error
}

// Message is the generic typed-payload envelope. T must be a fixed-size
// struct (integers, float32 and byte arrays only).
type Message[T any] struct {
	hdr  Header
	name string

	// Body is the typed payload.
	Body T
}

// NewMessage builds a message with the given id and body. The header's
// bodyLen is set to the encoded size of T.
//
// Parameters:
//   - id: Compile-time packet id
//   - name: Catalogue name used in logs
//   - body: Payload value
//
// Returns:
//   - *Message[T]: The new message with sequence 0
func NewMessage[T any](id ID, name string, body T) *Message[T] {
	return &Message[T]{
		hdr: Header{
			Magic:   Magic,
			ID:      id,
			BodyLen: uint32(bodySize[T]()),
		},
		name: name,
		Body: body,
	}
}

// bodySize returns the packed size of T, or panics when T is not a
// fixed-size type. Catalogue types are checked at registration.
func bodySize[T any]() int {
	var zero T
	n := binary.Size(zero)
	if n < 0 {
		panic(fmt.Sprintf("protocol: payload %T is not fixed-size", zero))
	}
	return n
}

// ID implements Packet.
func (m *Message[T]) ID() ID { return m.hdr.ID }

// Name implements Packet.
func (m *Message[T]) Name() string { return m.name }

// Header implements Packet.
func (m *Message[T]) Header() Header { return m.hdr }

// Seq implements Packet.
func (m *Message[T]) Seq() uint32 { return m.hdr.Seq }

// SetSeq implements Packet.
func (m *Message[T]) SetSeq(seq uint32) { m.hdr.Seq = seq }

// Payload implements Packet.
func (m *Message[T]) Payload() any { return m.Body }

// Size returns the total encoded size (header plus body).
func (m *Message[T]) Size() int { return HeaderSize + int(m.hdr.BodyLen) }

// Encode writes the header followed by the raw body bytes.
// A body with no fields produces a bare header.
//
// Returns:
//   - []byte: HeaderSize + bodyLen bytes
//   - error: If the body cannot be serialised
func (m *Message[T]) Encode() ([]byte, error) {
	buf := make([]byte, 0, m.Size())
	buf = appendHeader(buf, m.hdr)
	if m.hdr.BodyLen == 0 {
		return buf, nil
	}
	buf, err := binary.Append(buf, binary.NativeEndian, m.Body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s body: %w", m.name, err)
	}
	return buf, nil
}

// Decode parses a complete packet (header and body) into m.
//
// It fails with ErrShortBuffer if data holds fewer than HeaderSize plus the
// payload size of T, and never reads past len(data). On failure m is left
// unchanged.
//
// Parameters:
//   - data: Raw packet bytes; extra trailing bytes are ignored
//
// Returns:
//   - error: ErrShortBuffer, ErrBadMagic, ErrIDMismatch or ErrBodyLength
func (m *Message[T]) Decode(data []byte) error {
	hdr, err := PeekHeader(data)
	if err != nil {
		return err
	}
	if hdr.ID != m.hdr.ID {
		return fmt.Errorf("%w: got %s, want %s", ErrIDMismatch, hdr.ID, m.hdr.ID)
	}
	if hdr.BodyLen != m.hdr.BodyLen {
		return fmt.Errorf("%w: header says %d, %s is %d", ErrBodyLength, hdr.BodyLen, m.name, m.hdr.BodyLen)
	}

	var body T
	if err := decodeBody(data[HeaderSize:], &body); err != nil {
		return err
	}

	m.hdr = hdr
	m.Body = body
	return nil
}

func decodeBody[T any](data []byte, body *T) error {
	size := bodySize[T]()
	if len(data) < size {
		return fmt.Errorf("%w: payload needs %d bytes, have %d", ErrShortBuffer, size, len(data))
	}
	if size == 0 {
		return nil
	}
	if _, err := binary.Decode(data[:size], binary.NativeEndian, body); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}

// String renders the message for logs.
func (m *Message[T]) String() string {
	return fmt.Sprintf("%s(%s seq=%d len=%d)", m.name, m.hdr.ID, m.hdr.Seq, m.hdr.BodyLen)
}
