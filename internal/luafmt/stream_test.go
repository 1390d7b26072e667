package luafmt

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestReadUint_ByteOrder(t *testing.T) {
	data := []byte{0x78, 0x56, 0x34, 0x12}
	s := NewStream(data)
	got, err := s.ReadUint(4)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x12345678 {
		t.Errorf("little-endian = 0x%x, want 0x12345678", got)
	}

	s = NewStream(data)
	s.SetOrder(binary.BigEndian)
	got, err = s.ReadUint(4)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x78563412 {
		t.Errorf("big-endian = 0x%x, want 0x78563412", got)
	}
}

func TestReadInt_SignExtend(t *testing.T) {
	tests := []struct {
		in   []byte
		size int
		want int64
	}{
		{[]byte{0xff}, 1, -1},
		{[]byte{0xfe, 0xff}, 2, -2},
		{[]byte{0xff, 0xff, 0xff, 0x7f}, 4, math.MaxInt32},
		{[]byte{0x00, 0x00, 0x00, 0x80}, 4, math.MinInt32},
		{[]byte{1, 0, 0, 0, 0, 0, 0, 0}, 8, 1},
	}
	for _, tt := range tests {
		s := NewStream(tt.in)
		got, err := s.ReadInt(tt.size)
		if err != nil {
			t.Errorf("ReadInt(%v): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadInt(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestReadFloat(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	if err := w.WriteFloat(370.5, 8); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFloat(-1.25, 4); err != nil {
		t.Fatal(err)
	}
	s := NewStream(w.Bytes())
	f64, err := s.ReadFloat(8)
	if err != nil || f64 != 370.5 {
		t.Errorf("ReadFloat(8) = %v, %v", f64, err)
	}
	f32, err := s.ReadFloat(4)
	if err != nil || f32 != -1.25 {
		t.Errorf("ReadFloat(4) = %v, %v", f32, err)
	}
	if s.Remaining() != 0 {
		t.Errorf("remaining = %d", s.Remaining())
	}
}

func TestStreamEOF(t *testing.T) {
	s := NewStream([]byte{1, 2})
	_, err := s.ReadUint(4)
	if !errors.Is(err, ErrTruncatedInput) {
		t.Errorf("expected truncated input, got %v", err)
	}
	if s.Position() != 0 {
		t.Errorf("position moved on failed read: %d", s.Position())
	}

	if _, err := NewStream(nil).ReadByte(); !errors.Is(err, ErrStreamEOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestBadWidth(t *testing.T) {
	s := NewStream(make([]byte, 16))
	if _, err := s.ReadUint(9); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("ReadUint(9) err = %v", err)
	}
	if _, err := s.ReadFloat(2); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("ReadFloat(2) err = %v", err)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		w := NewWriter(order)
		w.WriteInt(-5, 4)
		w.WriteUint(0xdeadbeef, 4)
		w.WriteInt(math.MinInt64, 8)
		w.WriteByte(0x1b)

		s := NewStream(w.Bytes())
		s.SetOrder(order)
		a, _ := s.ReadInt(4)
		b, _ := s.ReadUint(4)
		c, _ := s.ReadInt(8)
		d, _ := s.ReadByte()
		if a != -5 || b != 0xdeadbeef || c != math.MinInt64 || d != 0x1b {
			t.Errorf("%v: got %d 0x%x %d 0x%x", order, a, b, c, d)
		}
	}
}

func TestWriteIntOverflow(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	if err := w.WriteInt(1<<40, 4); !errors.Is(err, ErrMalformedChunk) {
		t.Errorf("expected overflow error, got %v", err)
	}
}

func TestKind(t *testing.T) {
	if got := Kind(ErrStreamEOF); got != "TruncatedInput" {
		t.Errorf("Kind(ErrStreamEOF) = %q", got)
	}
	if got := Kind(errors.New("x")); got != "error" {
		t.Errorf("Kind(other) = %q", got)
	}
	if got := Kind(nil); got != "" {
		t.Errorf("Kind(nil) = %q", got)
	}
}
