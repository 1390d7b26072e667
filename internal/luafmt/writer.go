package luafmt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Writer is the inverse of Stream: it appends fields using a declared byte order.
type Writer struct {
	buf   bytes.Buffer
	order binary.ByteOrder
}

// NewWriter creates a writer using the given byte order.
func NewWriter(order binary.ByteOrder) *Writer {
	return &Writer{order: order}
}

// SetOrder sets the byte order used by multi-byte writes.
func (w *Writer) SetOrder(order binary.ByteOrder) { w.order = order }

// Bytes returns the accumulated output.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

// WriteByte appends one byte.
func (w *Writer) WriteByte(b byte) error {
	return w.buf.WriteByte(b)
}

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(p []byte) {
	w.buf.Write(p)
}

// WriteUint appends the low size bytes of v in writer order.
func (w *Writer) WriteUint(v uint64, size int) error {
	if size < 1 || size > 8 {
		return fmt.Errorf("writer: bad integer width %d: %w", size, ErrUnsupportedVersion)
	}
	var tmp [8]byte
	if w.order == binary.BigEndian {
		for i := size - 1; i >= 0; i-- {
			tmp[i] = byte(v)
			v >>= 8
		}
	} else {
		for i := 0; i < size; i++ {
			tmp[i] = byte(v)
			v >>= 8
		}
	}
	w.buf.Write(tmp[:size])
	return nil
}

// WriteInt appends a signed integer truncated to size bytes.
func (w *Writer) WriteInt(v int64, size int) error {
	if size < 8 {
		lo := -(int64(1) << (8*size - 1))
		hi := int64(1)<<(8*size-1) - 1
		if v < lo || v > hi {
			return fmt.Errorf("writer: value %d does not fit in %d bytes: %w", v, size, ErrMalformedChunk)
		}
	}
	return w.WriteUint(uint64(v), size)
}

// WriteFloat appends an IEEE 754 float of size 4 or 8.
func (w *Writer) WriteFloat(v float64, size int) error {
	switch size {
	case 4:
		return w.WriteUint(uint64(math.Float32bits(float32(v))), 4)
	case 8:
		return w.WriteUint(math.Float64bits(v), 8)
	}
	return fmt.Errorf("writer: bad float width %d: %w", size, ErrUnsupportedVersion)
}
