// Lua binary chunk stream reader.
// Multi-byte fields use the widths and byte order declared by the chunk header.
package luafmt

import (
	"encoding/binary"
	"fmt"
	"math"
)

var ErrStreamEOF = fmt.Errorf("stream: unexpected end of data: %w", ErrTruncatedInput)

// Stream reads chunk data using a declared byte order.
type Stream struct {
	data  []byte
	pos   int
	end   int
	order binary.ByteOrder
}

// NewStream creates a little-endian stream over the given data.
func NewStream(data []byte) *Stream {
	return &Stream{data: data, pos: 0, end: len(data), order: binary.LittleEndian}
}

// SetOrder sets the byte order used by multi-byte reads.
func (s *Stream) SetOrder(order binary.ByteOrder) { s.order = order }

// Order returns the current byte order.
func (s *Stream) Order() binary.ByteOrder { return s.order }

// Position returns the current read position.
func (s *Stream) Position() int { return s.pos }

// Remaining returns bytes left to read.
func (s *Stream) Remaining() int { return s.end - s.pos }

// Need fails with ErrStreamEOF unless n more bytes are available.
func (s *Stream) Need(n int) error {
	if n < 0 || n > s.end-s.pos {
		return fmt.Errorf("need %d bytes at offset 0x%x, have %d: %w", n, s.pos, s.end-s.pos, ErrStreamEOF)
	}
	return nil
}

// ReadByte reads a single byte.
func (s *Stream) ReadByte() (byte, error) {
	if s.pos >= s.end {
		return 0, ErrStreamEOF
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

// ReadBytes reads n bytes into a new slice.
func (s *Stream) ReadBytes(n int) ([]byte, error) {
	if err := s.Need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, s.data[s.pos:s.pos+n])
	s.pos += n
	return out, nil
}

// ReadUint reads an unsigned integer of size bytes (1-8) in stream order.
func (s *Stream) ReadUint(size int) (uint64, error) {
	if size < 1 || size > 8 {
		return 0, fmt.Errorf("stream: bad integer width %d: %w", size, ErrUnsupportedVersion)
	}
	if err := s.Need(size); err != nil {
		return 0, err
	}
	b := s.data[s.pos : s.pos+size]
	s.pos += size

	var v uint64
	if s.order == binary.BigEndian {
		for i := 0; i < size; i++ {
			v = v<<8 | uint64(b[i])
		}
	} else {
		for i := size - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
	}
	return v, nil
}

// ReadInt reads a two's complement signed integer of size bytes.
func (s *Stream) ReadInt(size int) (int64, error) {
	v, err := s.ReadUint(size)
	if err != nil {
		return 0, err
	}
	return SignExtend(v, size), nil
}

// ReadFloat reads an IEEE 754 float of size 4 or 8.
func (s *Stream) ReadFloat(size int) (float64, error) {
	switch size {
	case 4:
		v, err := s.ReadUint(4)
		return float64(math.Float32frombits(uint32(v))), err
	case 8:
		v, err := s.ReadUint(8)
		return math.Float64frombits(v), err
	}
	return 0, fmt.Errorf("stream: bad float width %d: %w", size, ErrUnsupportedVersion)
}

// SignExtend widens the low size bytes of v to a signed 64-bit value.
func SignExtend(v uint64, size int) int64 {
	if size >= 8 {
		return int64(v)
	}
	shift := uint(64 - 8*size)
	return int64(v<<shift) >> shift
}
