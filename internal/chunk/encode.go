package chunk

import (
	"fmt"
	"io"

	"unlua/internal/luafmt"
)

// Encode serializes c using its own header widths and byte order.
// For a chunk produced by Decode, the output equals the decoded input
// up to (excluding) any trailing bytes.
func Encode(c *Chunk) ([]byte, error) {
	if c == nil || c.Main == nil {
		return nil, fmt.Errorf("chunk: encode: no root prototype: %w", luafmt.ErrMalformedChunk)
	}
	if err := c.Header.Validate(); err != nil {
		return nil, err
	}
	p, _ := ProfileFor(c.Header.Version)
	e := &encoder{
		w: luafmt.NewWriter(c.Header.Endianness.ByteOrder()),
		h: c.Header,
		p: p,
	}
	e.header()
	if p.UpvalueCountByte {
		e.w.WriteByte(c.UpvalueCount)
	}
	if err := e.proto(c.Main, "main"); err != nil {
		return nil, err
	}
	return e.w.Bytes(), nil
}

// Write encodes c and writes the result to w.
func Write(w io.Writer, c *Chunk) error {
	data, err := Encode(c)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

type encoder struct {
	w *luafmt.Writer
	h Header
	p *Profile
}

func (e *encoder) header() {
	h := e.h
	e.w.WriteBytes(Signature[:])
	e.w.WriteByte(byte(h.Version))
	e.w.WriteByte(h.Format)
	if e.p.HeaderCheckData {
		e.w.WriteBytes([]byte(luacTail))
	}
	if e.p.HeaderEndianByte {
		e.w.WriteByte(byte(h.Endianness))
	}
	e.w.WriteByte(byte(h.IntSize))
	e.w.WriteByte(byte(h.SizeTSize))
	e.w.WriteByte(byte(h.InstructionSize))
	if e.p.HeaderIntegerSize {
		e.w.WriteByte(byte(h.IntegerSize))
	}
	e.w.WriteByte(byte(h.NumberSize))
	if e.p.HeaderIntegralFlag {
		if h.NumberIntegral {
			e.w.WriteByte(1)
		} else {
			e.w.WriteByte(0)
		}
	}
	if e.p.HeaderTail {
		e.w.WriteBytes([]byte(luacTail))
	}
	if e.p.HeaderCheckValues {
		// Widths were checked by Validate.
		e.w.WriteUint(luacInt, h.IntegerSize)
		e.w.WriteFloat(luacNum, h.NumberSize)
	}
}

func (e *encoder) errorf(path, format string, args ...any) error {
	return fmt.Errorf("chunk: encode %s: %w", path, fmt.Errorf(format, args...))
}

func (e *encoder) proto(f *Prototype, path string) error {
	if e.p.SourceFirst {
		if err := e.str(f.Source); err != nil {
			return e.errorf(path, "source: %w", err)
		}
	}
	if err := e.int(f.LineDefined); err != nil {
		return e.errorf(path, "linedefined: %w", err)
	}
	if err := e.int(f.LastLineDefined); err != nil {
		return e.errorf(path, "lastlinedefined: %w", err)
	}
	if e.p.NupsByte {
		e.w.WriteByte(f.NumUpvalues)
	}
	e.w.WriteByte(f.NumParams)
	e.w.WriteByte(f.IsVararg)
	e.w.WriteByte(f.MaxStackSize)

	if err := e.count(len(f.Code)); err != nil {
		return e.errorf(path, "code: %w", err)
	}
	for _, ins := range f.Code {
		e.w.WriteUint(uint64(ins), e.h.InstructionSize)
	}

	if err := e.count(len(f.Constants)); err != nil {
		return e.errorf(path, "constants: %w", err)
	}
	for i, k := range f.Constants {
		if err := e.constant(k); err != nil {
			return e.errorf(path, "k%d: %w", i, err)
		}
	}

	switch e.p.Upvalues {
	case UpvaluesBeforeProtos:
		if err := e.upvalues(f.Upvalues); err != nil {
			return e.errorf(path, "upvalues: %w", err)
		}
		if err := e.protos(f, path); err != nil {
			return err
		}
	case UpvaluesAfterProtos:
		if err := e.protos(f, path); err != nil {
			return err
		}
		if err := e.upvalues(f.Upvalues); err != nil {
			return e.errorf(path, "upvalues: %w", err)
		}
	default:
		if len(f.Upvalues) > 0 {
			return e.errorf(path, "upvalue descriptors in %s: %w", e.h.Version, luafmt.ErrMalformedChunk)
		}
		if err := e.protos(f, path); err != nil {
			return err
		}
	}

	if e.p.SourceInDebug {
		if err := e.str(f.Source); err != nil {
			return e.errorf(path, "source: %w", err)
		}
	}
	if err := e.debug(&f.Debug); err != nil {
		return e.errorf(path, "debug: %w", err)
	}
	return nil
}

func (e *encoder) protos(f *Prototype, path string) error {
	if err := e.count(len(f.Protos)); err != nil {
		return e.errorf(path, "protos: %w", err)
	}
	for i, child := range f.Protos {
		if child == nil {
			return e.errorf(path, "nil prototype %d: %w", i, luafmt.ErrMalformedChunk)
		}
		if err := e.proto(child, fmt.Sprintf("%s/%d", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) int(v int64) error {
	return e.w.WriteInt(v, e.h.IntSize)
}

func (e *encoder) count(n int) error {
	return e.w.WriteInt(int64(n), e.h.IntSize)
}

func (e *encoder) str(s String) error {
	if !s.Valid {
		if e.p.Strings == StringBytePrefix {
			return e.w.WriteByte(0)
		}
		return e.w.WriteUint(0, e.h.SizeTSize)
	}
	n := uint64(len(s.Value)) + 1
	if e.p.Strings == StringBytePrefix {
		if n < shortStrMark {
			e.w.WriteByte(byte(n))
		} else {
			e.w.WriteByte(shortStrMark)
			if err := e.w.WriteUint(n, e.h.SizeTSize); err != nil {
				return err
			}
		}
		e.w.WriteBytes([]byte(s.Value))
		return nil
	}
	if e.h.SizeTSize < 8 && n>>(8*e.h.SizeTSize) != 0 {
		return fmt.Errorf("string of %d bytes exceeds size_t: %w", len(s.Value), luafmt.ErrMalformedChunk)
	}
	if err := e.w.WriteUint(n, e.h.SizeTSize); err != nil {
		return err
	}
	e.w.WriteBytes([]byte(s.Value))
	return e.w.WriteByte(0)
}

func (e *encoder) constant(k Constant) error {
	switch k.Kind {
	case ConstNil:
		return e.w.WriteByte(tagNil)
	case ConstBool:
		e.w.WriteByte(tagBoolean)
		if k.Bool {
			return e.w.WriteByte(1)
		}
		return e.w.WriteByte(0)
	case ConstNumber:
		if e.h.NumberIntegral {
			return fmt.Errorf("float constant %v in integral chunk: %w", k.Num, luafmt.ErrMalformedChunk)
		}
		e.w.WriteByte(tagNumber)
		return e.w.WriteFloat(k.Num, e.h.NumberSize)
	case ConstInteger:
		switch {
		case e.p.TaggedNumbers:
			e.w.WriteByte(tagInteger)
			return e.w.WriteInt(k.Int, e.h.IntegerSize)
		case e.h.NumberIntegral:
			e.w.WriteByte(tagNumber)
			return e.w.WriteInt(k.Int, e.h.NumberSize)
		}
		return fmt.Errorf("integer constant %d needs an integral lua_Number in %s: %w", k.Int, e.h.Version, luafmt.ErrMalformedChunk)
	case ConstString:
		e.w.WriteByte(tagString)
		return e.str(k.Str)
	case ConstLongString:
		if !e.p.TaggedNumbers {
			return fmt.Errorf("long string constant in %s: %w", e.h.Version, luafmt.ErrMalformedChunk)
		}
		e.w.WriteByte(tagLongStr)
		return e.str(k.Str)
	}
	return fmt.Errorf("bad constant kind %d: %w", k.Kind, luafmt.ErrMalformedChunk)
}

func (e *encoder) upvalues(ups []Upvalue) error {
	if err := e.count(len(ups)); err != nil {
		return err
	}
	for _, u := range ups {
		e.w.WriteByte(u.InStack)
		e.w.WriteByte(u.Index)
	}
	return nil
}

func (e *encoder) debug(d *DebugInfo) error {
	if err := e.count(len(d.LineInfo)); err != nil {
		return err
	}
	for _, line := range d.LineInfo {
		if err := e.int(line); err != nil {
			return err
		}
	}
	if err := e.count(len(d.LocVars)); err != nil {
		return err
	}
	for _, lv := range d.LocVars {
		if err := e.str(lv.Name); err != nil {
			return err
		}
		if err := e.int(lv.StartPC); err != nil {
			return err
		}
		if err := e.int(lv.EndPC); err != nil {
			return err
		}
	}
	if err := e.count(len(d.UpvalueNames)); err != nil {
		return err
	}
	for _, name := range d.UpvalueNames {
		if err := e.str(name); err != nil {
			return err
		}
	}
	return nil
}
