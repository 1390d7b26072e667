package chunk

import (
	"bytes"
	"fmt"

	"unlua/internal/luafmt"
)

// Decoder decodes binary chunks with fixed options.
type Decoder struct {
	Options luafmt.Options
}

// Decode decodes data as one binary chunk.
func (d Decoder) Decode(data []byte) (*Chunk, error) {
	return Decode(data, d.Options)
}

// Decode parses a complete binary chunk: header, optional 5.3 upvalue
// count byte and the root prototype with all nested prototypes.
func Decode(data []byte, opts luafmt.Options) (*Chunk, error) {
	s := luafmt.NewStream(data)
	var diags luafmt.Diags

	h, p, err := readHeader(s, &diags)
	if err != nil {
		return nil, err
	}
	c := &Chunk{Header: h}
	if p.UpvalueCountByte {
		if c.UpvalueCount, err = s.ReadByte(); err != nil {
			return nil, fmt.Errorf("chunk: upvalue count: %w", err)
		}
	}

	d := &protoDecoder{
		s:        s,
		h:        h,
		p:        p,
		maxDepth: opts.EffectiveMaxDepth(),
		maxCount: opts.MaxCount,
	}
	if c.Main, err = d.proto("main", 0); err != nil {
		return nil, err
	}

	if n := s.Remaining(); n > 0 {
		diags.Addf(uint64(s.Position()), luafmt.DiagTrailing, "%d trailing bytes after root prototype", n)
	}
	if len(c.Main.Code) > 0 && len(c.Main.Debug.LineInfo) == 0 {
		diags.Add(0, luafmt.DiagStripped, "debug information stripped")
	}
	c.Diags = diags.Items()
	return c, nil
}

// ParseHeader decodes only the chunk header. The returned size is the
// number of header bytes consumed, not counting the 5.3 upvalue count byte.
func ParseHeader(data []byte) (Header, int, error) {
	s := luafmt.NewStream(data)
	var diags luafmt.Diags
	h, _, err := readHeader(s, &diags)
	if err != nil {
		return Header{}, 0, err
	}
	return h, s.Position(), nil
}

func readHeader(s *luafmt.Stream, diags *luafmt.Diags) (Header, *Profile, error) {
	var h Header

	if s.Remaining() < len(Signature) {
		rest, _ := s.ReadBytes(s.Remaining())
		if bytes.HasPrefix(Signature[:], rest) {
			return h, nil, fmt.Errorf("chunk: signature: %w", luafmt.ErrStreamEOF)
		}
		return h, nil, fmt.Errorf("chunk: bad signature %x: %w", rest, luafmt.ErrMalformedHeader)
	}
	sig, _ := s.ReadBytes(len(Signature))
	if !bytes.Equal(sig, Signature[:]) {
		return h, nil, fmt.Errorf("chunk: bad signature %x: %w", sig, luafmt.ErrMalformedHeader)
	}

	v, err := s.ReadByte()
	if err != nil {
		return h, nil, fmt.Errorf("chunk: version: %w", err)
	}
	h.Version = Version(v)
	p, err := ProfileFor(h.Version)
	if err != nil {
		return h, nil, err
	}

	if h.Format, err = s.ReadByte(); err != nil {
		return h, nil, fmt.Errorf("chunk: format: %w", err)
	}
	if h.Format != 0 {
		diags.Addf(uint64(s.Position()-1), luafmt.DiagNonstandard, "format byte 0x%02x", h.Format)
	}

	if p.HeaderCheckData {
		tail, err := s.ReadBytes(len(luacTail))
		if err != nil {
			return h, nil, fmt.Errorf("chunk: LUAC_DATA: %w", err)
		}
		if string(tail) != luacTail {
			return h, nil, fmt.Errorf("chunk: LUAC_DATA mismatch %x: %w", tail, luafmt.ErrMalformedHeader)
		}
	}

	if p.HeaderEndianByte {
		e, err := s.ReadByte()
		if err != nil {
			return h, nil, fmt.Errorf("chunk: endianness: %w", err)
		}
		if e > 1 {
			return h, nil, fmt.Errorf("chunk: endianness byte 0x%02x: %w", e, luafmt.ErrMalformedHeader)
		}
		h.Endianness = Endianness(e)
	}

	sizes := []*int{&h.IntSize, &h.SizeTSize, &h.InstructionSize}
	if p.HeaderIntegerSize {
		sizes = append(sizes, &h.IntegerSize)
	}
	sizes = append(sizes, &h.NumberSize)
	for _, dst := range sizes {
		b, err := s.ReadByte()
		if err != nil {
			return h, nil, fmt.Errorf("chunk: size fields: %w", err)
		}
		*dst = int(b)
	}

	if p.HeaderIntegralFlag {
		f, err := s.ReadByte()
		if err != nil {
			return h, nil, fmt.Errorf("chunk: integral flag: %w", err)
		}
		if f > 1 {
			return h, nil, fmt.Errorf("chunk: integral flag 0x%02x: %w", f, luafmt.ErrMalformedHeader)
		}
		h.NumberIntegral = f == 1
	}

	if p.HeaderTail {
		tail, err := s.ReadBytes(len(luacTail))
		if err != nil {
			return h, nil, fmt.Errorf("chunk: LUAC_TAIL: %w", err)
		}
		if string(tail) != luacTail {
			return h, nil, fmt.Errorf("chunk: LUAC_TAIL mismatch %x: %w", tail, luafmt.ErrMalformedHeader)
		}
	}

	if p.HeaderCheckValues {
		h.Endianness = LittleEndian
		if err := h.Validate(); err != nil {
			return h, nil, err
		}
		raw, err := s.ReadBytes(h.IntegerSize)
		if err != nil {
			return h, nil, fmt.Errorf("chunk: LUAC_INT: %w", err)
		}
		switch {
		case checkInt(raw, LittleEndian):
			h.Endianness = LittleEndian
		case checkInt(raw, BigEndian):
			h.Endianness = BigEndian
		default:
			return h, nil, fmt.Errorf("chunk: LUAC_INT %x: %w", raw, luafmt.ErrMalformedHeader)
		}
		s.SetOrder(h.Endianness.ByteOrder())
		num, err := s.ReadFloat(h.NumberSize)
		if err != nil {
			return h, nil, fmt.Errorf("chunk: LUAC_NUM: %w", err)
		}
		if num != luacNum {
			return h, nil, fmt.Errorf("chunk: LUAC_NUM %v: %w", num, luafmt.ErrMalformedHeader)
		}
		return h, p, nil
	}

	if err := h.Validate(); err != nil {
		return h, nil, err
	}
	s.SetOrder(h.Endianness.ByteOrder())
	return h, p, nil
}

func checkInt(raw []byte, e Endianness) bool {
	s := luafmt.NewStream(raw)
	s.SetOrder(e.ByteOrder())
	v, err := s.ReadUint(len(raw))
	return err == nil && v == luacInt
}

type protoDecoder struct {
	s        *luafmt.Stream
	h        Header
	p        *Profile
	maxDepth int
	maxCount int
}

func (d *protoDecoder) errorf(path, format string, args ...any) error {
	return fmt.Errorf("chunk: %s at 0x%x: %w", path, d.s.Position(), fmt.Errorf(format, args...))
}

func (d *protoDecoder) proto(path string, depth int) (*Prototype, error) {
	if depth > d.maxDepth {
		return nil, d.errorf(path, "nesting depth exceeds %d: %w", d.maxDepth, luafmt.ErrMalformedChunk)
	}
	f := &Prototype{}
	var err error

	if d.p.SourceFirst {
		if f.Source, err = d.str(); err != nil {
			return nil, d.errorf(path, "source: %w", err)
		}
	}
	if f.LineDefined, err = d.s.ReadInt(d.h.IntSize); err != nil {
		return nil, d.errorf(path, "linedefined: %w", err)
	}
	if f.LastLineDefined, err = d.s.ReadInt(d.h.IntSize); err != nil {
		return nil, d.errorf(path, "lastlinedefined: %w", err)
	}
	scalars := []*byte{&f.NumParams, &f.IsVararg, &f.MaxStackSize}
	if d.p.NupsByte {
		scalars = append([]*byte{&f.NumUpvalues}, scalars...)
	}
	for _, dst := range scalars {
		if *dst, err = d.s.ReadByte(); err != nil {
			return nil, d.errorf(path, "prototype fields: %w", err)
		}
	}

	if f.Code, err = d.code(); err != nil {
		return nil, d.errorf(path, "code: %w", err)
	}
	if f.Constants, err = d.constants(); err != nil {
		return nil, d.errorf(path, "constants: %w", err)
	}

	switch d.p.Upvalues {
	case UpvaluesBeforeProtos:
		if f.Upvalues, err = d.upvalues(); err != nil {
			return nil, d.errorf(path, "upvalues: %w", err)
		}
		if f.Protos, err = d.protos(path, depth); err != nil {
			return nil, err
		}
	case UpvaluesAfterProtos:
		if f.Protos, err = d.protos(path, depth); err != nil {
			return nil, err
		}
		if f.Upvalues, err = d.upvalues(); err != nil {
			return nil, d.errorf(path, "upvalues: %w", err)
		}
	default:
		if f.Protos, err = d.protos(path, depth); err != nil {
			return nil, err
		}
	}

	if d.p.SourceInDebug {
		if f.Source, err = d.str(); err != nil {
			return nil, d.errorf(path, "source: %w", err)
		}
	}
	if f.Debug, err = d.debug(); err != nil {
		return nil, d.errorf(path, "debug: %w", err)
	}
	return f, nil
}

// count reads an element count and checks it against the remaining input,
// assuming each element occupies at least minSize bytes.
func (d *protoDecoder) count(minSize int) (int, error) {
	n, err := d.s.ReadInt(d.h.IntSize)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d: %w", n, luafmt.ErrMalformedChunk)
	}
	if d.maxCount > 0 && n > int64(d.maxCount) {
		return 0, fmt.Errorf("count %d exceeds limit %d: %w", n, d.maxCount, luafmt.ErrMalformedChunk)
	}
	if n > int64(d.s.Remaining()/minSize) {
		return 0, fmt.Errorf("count %d needs %d bytes, have %d: %w", n, n*int64(minSize), d.s.Remaining(), luafmt.ErrTruncatedInput)
	}
	return int(n), nil
}

func (d *protoDecoder) minString() int {
	if d.p.Strings == StringBytePrefix {
		return 1
	}
	return d.h.SizeTSize
}

func (d *protoDecoder) str() (String, error) {
	var n uint64
	var err error
	if d.p.Strings == StringBytePrefix {
		b, err := d.s.ReadByte()
		if err != nil {
			return String{}, err
		}
		n = uint64(b)
		if b == shortStrMark {
			if n, err = d.s.ReadUint(d.h.SizeTSize); err != nil {
				return String{}, err
			}
		}
		if n == 0 {
			return String{}, nil
		}
		if n-1 > uint64(d.s.Remaining()) {
			return String{}, fmt.Errorf("string of %d bytes: %w", n-1, luafmt.ErrStreamEOF)
		}
		raw, err := d.s.ReadBytes(int(n - 1))
		if err != nil {
			return String{}, err
		}
		return Str(string(raw)), nil
	}

	if n, err = d.s.ReadUint(d.h.SizeTSize); err != nil {
		return String{}, err
	}
	if n == 0 {
		return String{}, nil
	}
	if n > uint64(d.s.Remaining()) {
		return String{}, fmt.Errorf("string of %d bytes: %w", n, luafmt.ErrStreamEOF)
	}
	raw, err := d.s.ReadBytes(int(n))
	if err != nil {
		return String{}, err
	}
	if raw[n-1] != 0 {
		return String{}, fmt.Errorf("string missing NUL terminator: %w", luafmt.ErrMalformedChunk)
	}
	return Str(string(raw[:n-1])), nil
}

func (d *protoDecoder) code() ([]uint32, error) {
	n, err := d.count(d.h.InstructionSize)
	if err != nil {
		return nil, err
	}
	code := make([]uint32, n)
	for i := range code {
		w, err := d.s.ReadUint(d.h.InstructionSize)
		if err != nil {
			return nil, err
		}
		code[i] = uint32(w)
	}
	return code, nil
}

func (d *protoDecoder) constants() ([]Constant, error) {
	n, err := d.count(1)
	if err != nil {
		return nil, err
	}
	ks := make([]Constant, n)
	for i := range ks {
		if ks[i], err = d.constant(); err != nil {
			return nil, fmt.Errorf("k%d: %w", i, err)
		}
	}
	return ks, nil
}

func (d *protoDecoder) constant() (Constant, error) {
	tag, err := d.s.ReadByte()
	if err != nil {
		return Constant{}, err
	}
	switch {
	case tag == tagNil:
		return NilConst(), nil
	case tag == tagBoolean:
		b, err := d.s.ReadByte()
		if err != nil {
			return Constant{}, err
		}
		if b > 1 {
			return Constant{}, fmt.Errorf("boolean byte 0x%02x: %w", b, luafmt.ErrMalformedChunk)
		}
		return BoolConst(b == 1), nil
	case tag == tagNumber && d.h.NumberIntegral:
		v, err := d.s.ReadInt(d.h.NumberSize)
		if err != nil {
			return Constant{}, err
		}
		return IntConst(v), nil
	case tag == tagNumber:
		v, err := d.s.ReadFloat(d.h.NumberSize)
		if err != nil {
			return Constant{}, err
		}
		return NumConst(v), nil
	case tag == tagInteger && d.p.TaggedNumbers:
		v, err := d.s.ReadInt(d.h.IntegerSize)
		if err != nil {
			return Constant{}, err
		}
		return IntConst(v), nil
	case tag == tagString, tag == tagLongStr && d.p.TaggedNumbers:
		s, err := d.str()
		if err != nil {
			return Constant{}, err
		}
		k := Constant{Kind: ConstString, Str: s}
		if tag == tagLongStr {
			k.Kind = ConstLongString
		}
		return k, nil
	}
	return Constant{}, fmt.Errorf("bad constant tag 0x%02x: %w", tag, luafmt.ErrMalformedChunk)
}

func (d *protoDecoder) upvalues() ([]Upvalue, error) {
	n, err := d.count(2)
	if err != nil {
		return nil, err
	}
	ups := make([]Upvalue, n)
	for i := range ups {
		raw, err := d.s.ReadBytes(2)
		if err != nil {
			return nil, err
		}
		ups[i] = Upvalue{InStack: raw[0], Index: raw[1]}
	}
	return ups, nil
}

func (d *protoDecoder) protos(path string, depth int) ([]*Prototype, error) {
	n, err := d.count(1)
	if err != nil {
		return nil, d.errorf(path, "protos: %w", err)
	}
	ps := make([]*Prototype, n)
	for i := range ps {
		if ps[i], err = d.proto(fmt.Sprintf("%s/%d", path, i), depth+1); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

func (d *protoDecoder) debug() (DebugInfo, error) {
	var dbg DebugInfo

	n, err := d.count(d.h.IntSize)
	if err != nil {
		return dbg, fmt.Errorf("lineinfo: %w", err)
	}
	if n > 0 {
		dbg.LineInfo = make([]int64, n)
		for i := range dbg.LineInfo {
			if dbg.LineInfo[i], err = d.s.ReadInt(d.h.IntSize); err != nil {
				return dbg, fmt.Errorf("lineinfo: %w", err)
			}
		}
	}

	if n, err = d.count(d.minString() + 2*d.h.IntSize); err != nil {
		return dbg, fmt.Errorf("locvars: %w", err)
	}
	if n > 0 {
		dbg.LocVars = make([]LocVar, n)
		for i := range dbg.LocVars {
			lv := &dbg.LocVars[i]
			if lv.Name, err = d.str(); err != nil {
				return dbg, fmt.Errorf("locvar %d: %w", i, err)
			}
			if lv.StartPC, err = d.s.ReadInt(d.h.IntSize); err != nil {
				return dbg, fmt.Errorf("locvar %d: %w", i, err)
			}
			if lv.EndPC, err = d.s.ReadInt(d.h.IntSize); err != nil {
				return dbg, fmt.Errorf("locvar %d: %w", i, err)
			}
		}
	}

	if n, err = d.count(d.minString()); err != nil {
		return dbg, fmt.Errorf("upvalue names: %w", err)
	}
	if n > 0 {
		dbg.UpvalueNames = make([]String, n)
		for i := range dbg.UpvalueNames {
			if dbg.UpvalueNames[i], err = d.str(); err != nil {
				return dbg, fmt.Errorf("upvalue name %d: %w", i, err)
			}
		}
	}
	return dbg, nil
}
