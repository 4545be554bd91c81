package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/smallnest/ringbuffer"
)

// FrameHeaderSize is the size of the big-endian length prefix.
const FrameHeaderSize = 4

// DefaultMaxFrame is the largest frame body accepted when none is configured.
const DefaultMaxFrame = 64 * 1024

// Framer reassembles length-prefixed frames from a byte stream.
//
// A Framer is not safe for concurrent use; each connection owns one.
type Framer struct {
	rb       *ringbuffer.RingBuffer
	maxFrame int

	// pending is the body length of a frame whose prefix has already been
	// consumed, or -1 while waiting for a prefix.
	pending int
}

// NewFramer creates a framer.
//
// Parameters:
//   - maxFrame: Largest accepted body; <= 0 uses DefaultMaxFrame
//
// Returns:
//   - *Framer: Framer with room for two maximum-size frames
func NewFramer(maxFrame int) *Framer {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	size := 2 * (maxFrame + FrameHeaderSize)
	return &Framer{
		rb:       ringbuffer.New(size).SetBlocking(false),
		maxFrame: maxFrame,
		pending:  -1,
	}
}

// Feed appends raw stream bytes.
//
// Returns:
//   - error: ErrBufferFull if data does not fit; nothing is written then
func (f *Framer) Feed(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if f.rb.Free() < len(data) {
		return fmt.Errorf("%w: %d bytes, %d free", ErrBufferFull, len(data), f.rb.Free())
	}
	if _, err := f.rb.Write(data); err != nil {
		return fmt.Errorf("buffering frame data: %w", err)
	}
	return nil
}

// Next extracts the next complete frame body.
//
// Returns:
//   - []byte: The frame body, owned by the caller
//   - bool: False when no complete frame is buffered yet
//   - error: ErrFrameTooLarge if the announced length exceeds the limit; the
//     framer is reset and the stream must be treated as desynchronised
func (f *Framer) Next() ([]byte, bool, error) {
	if f.pending < 0 {
		if f.rb.Length() < FrameHeaderSize {
			return nil, false, nil
		}
		var prefix [FrameHeaderSize]byte
		if _, err := f.rb.Read(prefix[:]); err != nil {
			return nil, false, fmt.Errorf("reading frame length: %w", err)
		}
		n := binary.BigEndian.Uint32(prefix[:])
		if n > uint32(f.maxFrame) {
			f.Reset()
			return nil, false, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, f.maxFrame)
		}
		f.pending = int(n)
	}

	if f.rb.Length() < f.pending {
		return nil, false, nil
	}

	body := make([]byte, f.pending)
	if f.pending > 0 {
		if _, err := f.rb.Read(body); err != nil {
			return nil, false, fmt.Errorf("reading frame body: %w", err)
		}
	}
	f.pending = -1
	return body, true, nil
}

// Buffered returns the number of bytes held but not yet returned.
func (f *Framer) Buffered() int { return f.rb.Length() }

// Reset discards all buffered data.
func (f *Framer) Reset() {
	f.rb.Reset()
	f.pending = -1
}

// AppendFrame appends body to dst with its length prefix.
func AppendFrame(dst, body []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(body)))
	return append(dst, body...)
}
