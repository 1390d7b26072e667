package chunk_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"unlua/internal/chunk"
	"unlua/internal/chunk/chunktest"
	"unlua/internal/luafmt"
)

func TestDecodeLua51Hello(t *testing.T) {
	data := chunktest.Lua51Hello()
	c, err := chunk.Decode(data, luafmt.Options{})
	if err != nil {
		t.Fatal(err)
	}
	h := c.Header
	if h.Version != chunk.Lua51 || h.Endianness != chunk.LittleEndian || h.IntSize != 4 || h.SizeTSize != 8 || h.NumberSize != 8 {
		t.Errorf("header = %+v", h)
	}
	m := c.Main
	if m.Source.Value != "@hello.lua" || !m.Source.Valid {
		t.Errorf("source = %+v", m.Source)
	}
	if m.IsVararg != 2 || m.MaxStackSize != 2 {
		t.Errorf("vararg=%d maxstack=%d", m.IsVararg, m.MaxStackSize)
	}
	want := chunktest.Lua51HelloCode()
	if len(m.Code) != len(want) {
		t.Fatalf("code len = %d, want %d", len(m.Code), len(want))
	}
	for i := range want {
		if m.Code[i] != want[i] {
			t.Errorf("code[%d] = 0x%08x, want 0x%08x", i, m.Code[i], want[i])
		}
	}
	if len(m.Constants) != 2 || m.Constants[0].Str.Value != "print" || m.Constants[1].Str.Value != "hi" {
		t.Errorf("constants = %+v", m.Constants)
	}
	if len(m.Debug.LineInfo) != 4 {
		t.Errorf("lineinfo len = %d", len(m.Debug.LineInfo))
	}
	if len(c.Diags) != 0 {
		t.Errorf("unexpected diags: %v", c.Diags)
	}

	out, err := chunk.Encode(c)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Errorf("re-encode differs:\n got %x\nwant %x", out, data)
	}
}

func TestRoundTripFixtures(t *testing.T) {
	for name, c := range chunktest.All() {
		t.Run(name, func(t *testing.T) {
			data := chunktest.Bytes(t, c)
			got, err := chunk.Decode(data, luafmt.Options{})
			if err != nil {
				t.Fatal(err)
			}
			if got.Header != c.Header {
				t.Errorf("header = %+v, want %+v", got.Header, c.Header)
			}
			if got.UpvalueCount != c.UpvalueCount {
				t.Errorf("upvalue count = %d, want %d", got.UpvalueCount, c.UpvalueCount)
			}
			if a, b := chunk.Summarize(got), chunk.Summarize(c); a != b {
				t.Errorf("stats = %+v, want %+v", a, b)
			}
			out, err := chunk.Encode(got)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(out, data) {
				t.Errorf("Encode(Decode(b)) != b")
			}
		})
	}
}

func TestNestedShape(t *testing.T) {
	c, err := chunk.Decode(chunktest.Bytes(t, chunktest.Lua53Loop()), luafmt.Options{})
	if err != nil {
		t.Fatal(err)
	}
	var depths []int
	c.Main.Walk(func(p *chunk.Prototype, depth int) bool {
		depths = append(depths, depth)
		return true
	})
	if len(depths) != 3 || depths[0] != 0 || depths[1] != 1 || depths[2] != 2 {
		t.Errorf("walk depths = %v, want [0 1 2]", depths)
	}
	inner := c.Main.Protos[0]
	if inner.Source.Valid {
		t.Errorf("nested source should be null, got %q", inner.Source.Value)
	}
	if k := c.Main.Constants[5]; k.Kind != chunk.ConstLongString || k.Str.Value != chunktest.LongString {
		t.Errorf("k5 = %+v", k)
	}
	if k := c.Main.Constants[0]; k.Kind != chunk.ConstInteger || k.Int != 1 {
		t.Errorf("k0 = %+v", k)
	}
	if c.Main.UpvalueName(0) != "_ENV" {
		t.Errorf("upvalue name = %q", c.Main.UpvalueName(0))
	}
	if name, ok := c.Main.LocalName(5, 7); !ok || name != "i" {
		t.Errorf("LocalName(5, 7) = %q, %v", name, ok)
	}
}

func TestHeaderErrors(t *testing.T) {
	valid51 := chunktest.Lua51Hello()
	valid52 := chunktest.Bytes(t, chunktest.Lua52Stripped())
	valid53 := chunktest.Bytes(t, chunktest.Lua53Loop())
	patch := func(b []byte, off int, v byte) []byte {
		out := append([]byte(nil), b...)
		out[off] = v
		return out
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, luafmt.ErrTruncatedInput},
		{"partial signature", []byte("\x1bLu"), luafmt.ErrTruncatedInput},
		{"elf", []byte("\x7fELF\x02\x01\x01"), luafmt.ErrMalformedHeader},
		{"short garbage", []byte("ab"), luafmt.ErrMalformedHeader},
		{"signature only", []byte("\x1bLua"), luafmt.ErrTruncatedInput},
		{"lua 5.4", patch(valid53, 4, 0x54), luafmt.ErrUnsupportedVersion},
		{"lua 5.0", patch(valid51, 4, 0x50), luafmt.ErrUnsupportedVersion},
		{"endianness byte", patch(valid51, 6, 2), luafmt.ErrMalformedHeader},
		{"int size 3", patch(valid51, 7, 3), luafmt.ErrUnsupportedVersion},
		{"size_t 2", patch(valid51, 8, 2), luafmt.ErrUnsupportedVersion},
		{"instruction size 8", patch(valid51, 9, 8), luafmt.ErrUnsupportedVersion},
		{"number size 2", patch(valid51, 10, 2), luafmt.ErrUnsupportedVersion},
		{"integral flag 5", patch(valid51, 11, 5), luafmt.ErrMalformedHeader},
		{"5.2 tail", patch(valid52, 12, 0), luafmt.ErrMalformedHeader},
		{"5.3 data", patch(valid53, 6, 0), luafmt.ErrMalformedHeader},
		{"5.3 luac_int", patch(valid53, 17, 0x99), luafmt.ErrMalformedHeader},
		{"5.3 luac_num", patch(valid53, 25+7, 0), luafmt.ErrMalformedHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chunk.Decode(tt.data, luafmt.Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTruncatedPrefixes(t *testing.T) {
	for name, c := range chunktest.All() {
		data := chunktest.Bytes(t, c)
		for n := 0; n < len(data); n++ {
			_, err := chunk.Decode(data[:n], luafmt.Options{})
			if !errors.Is(err, luafmt.ErrTruncatedInput) {
				t.Fatalf("%s: prefix %d/%d: err = %v, want truncated", name, n, len(data), err)
			}
		}
	}
}

func TestHostileCount(t *testing.T) {
	w := luafmt.NewWriter(chunk.LittleEndian.ByteOrder())
	w.WriteBytes([]byte{0x1b, 'L', 'u', 'a', 0x51, 0, 1, 4, 8, 4, 8, 0})
	w.WriteUint(0, 8) // null source
	w.WriteInt(0, 4)  // linedefined
	w.WriteInt(0, 4)  // lastlinedefined
	w.WriteBytes([]byte{0, 0, 2, 2})
	w.WriteInt(0x7fffffff, 4) // code count
	w.WriteBytes(make([]byte, 16))

	_, err := chunk.Decode(w.Bytes(), luafmt.Options{})
	if !errors.Is(err, luafmt.ErrTruncatedInput) {
		t.Errorf("err = %v, want truncated", err)
	}

	w = luafmt.NewWriter(chunk.LittleEndian.ByteOrder())
	w.WriteBytes([]byte{0x1b, 'L', 'u', 'a', 0x51, 0, 1, 4, 8, 4, 8, 0})
	w.WriteUint(0, 8)
	w.WriteInt(0, 4)
	w.WriteInt(0, 4)
	w.WriteBytes([]byte{0, 0, 2, 2})
	w.WriteInt(-1, 4)
	_, err = chunk.Decode(w.Bytes(), luafmt.Options{})
	if !errors.Is(err, luafmt.ErrMalformedChunk) {
		t.Errorf("negative count: err = %v, want malformed chunk", err)
	}
}

func TestHostileStringLength(t *testing.T) {
	w := luafmt.NewWriter(chunk.LittleEndian.ByteOrder())
	w.WriteBytes([]byte{0x1b, 'L', 'u', 'a', 0x51, 0, 1, 4, 8, 4, 8, 0})
	w.WriteUint(1<<62, 8)
	_, err := chunk.Decode(w.Bytes(), luafmt.Options{})
	if !errors.Is(err, luafmt.ErrTruncatedInput) {
		t.Errorf("err = %v, want truncated", err)
	}
}

func nest(depth int) *chunk.Prototype {
	p := &chunk.Prototype{Code: []uint32{chunktest.ABC(38, 0, 1, 0)}}
	root := p
	for i := 0; i < depth; i++ {
		child := &chunk.Prototype{Code: []uint32{chunktest.ABC(38, 0, 1, 0)}}
		p.Protos = []*chunk.Prototype{child}
		p = child
	}
	return root
}

func TestDepthLimit(t *testing.T) {
	c := &chunk.Chunk{Header: chunk.DefaultHeader(chunk.Lua53), Main: nest(12)}
	data := chunktest.Bytes(t, c)

	if _, err := chunk.Decode(data, luafmt.Options{MaxDepth: 5}); !errors.Is(err, luafmt.ErrMalformedChunk) {
		t.Errorf("MaxDepth 5: err = %v, want malformed chunk", err)
	}
	got, err := chunk.Decode(data, luafmt.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if st := chunk.Summarize(got); st.MaxDepth != 12 || st.Prototypes != 13 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCountLimit(t *testing.T) {
	data := chunktest.Lua51Hello()
	tests := []struct {
		maxCount int
		wantErr  error
	}{
		{0, nil},
		{1, luafmt.ErrMalformedChunk},
		{1000, nil},
	}
	for _, tt := range tests {
		_, err := chunk.Decode(data, luafmt.Options{MaxCount: tt.maxCount})
		if tt.wantErr == nil && err != nil {
			t.Errorf("MaxCount %d: %v", tt.maxCount, err)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("MaxCount %d: err = %v, want %v", tt.maxCount, err, tt.wantErr)
		}
	}
}

// corruptConstant encodes a single-constant chunk holding a and overwrites
// the first byte that differs from the same chunk holding b.
func corruptConstant(t *testing.T, a, b chunk.Constant) []byte {
	t.Helper()
	mk := func(k chunk.Constant) []byte {
		return chunktest.Bytes(t, &chunk.Chunk{
			Header: chunk.DefaultHeader(chunk.Lua53),
			Main:   &chunk.Prototype{Constants: []chunk.Constant{k}},
		})
	}
	da, db := mk(a), mk(b)
	for i := range da {
		if da[i] != db[i] {
			da[i] = 0xee
			return da
		}
	}
	t.Fatal("no differing byte")
	return nil
}

func TestBadConstants(t *testing.T) {
	badBool := corruptConstant(t, chunk.BoolConst(true), chunk.BoolConst(false))
	if _, err := chunk.Decode(badBool, luafmt.Options{}); !errors.Is(err, luafmt.ErrMalformedChunk) {
		t.Errorf("bool byte: err = %v", err)
	}
	badTag := corruptConstant(t, chunk.NilConst(), chunk.BoolConst(false))
	if _, err := chunk.Decode(badTag, luafmt.Options{}); !errors.Is(err, luafmt.ErrMalformedChunk) {
		t.Errorf("tag: err = %v", err)
	}
}

func TestMissingNUL(t *testing.T) {
	data := chunktest.Lua51Hello()
	i := bytes.Index(data, []byte("@hello.lua\x00"))
	data[i+len("@hello.lua")] = 'x'
	if _, err := chunk.Decode(data, luafmt.Options{}); !errors.Is(err, luafmt.ErrMalformedChunk) {
		t.Errorf("err = %v, want malformed chunk", err)
	}
}

func TestNullVersusEmptyString(t *testing.T) {
	for _, v := range chunk.SupportedVersions() {
		for _, src := range []chunk.String{{}, chunk.Str("")} {
			c := &chunk.Chunk{Header: chunk.DefaultHeader(v), Main: &chunk.Prototype{Source: src}}
			got, err := chunk.Decode(chunktest.Bytes(t, c), luafmt.Options{})
			if err != nil {
				t.Fatalf("%s: %v", v, err)
			}
			if got.Main.Source != src {
				t.Errorf("%s: source = %+v, want %+v", v, got.Main.Source, src)
			}
		}
	}
}

func TestIntegralNumbers(t *testing.T) {
	h := chunk.DefaultHeader(chunk.Lua51)
	h.NumberIntegral = true
	h.NumberSize = 4
	c := &chunk.Chunk{Header: h, Main: &chunk.Prototype{
		Constants: []chunk.Constant{chunk.IntConst(-7), chunk.IntConst(1 << 30)},
	}}
	got, err := chunk.Decode(chunktest.Bytes(t, c), luafmt.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if k := got.Main.Constants; k[0].Kind != chunk.ConstInteger || k[0].Int != -7 || k[1].Int != 1<<30 {
		t.Errorf("constants = %+v", k)
	}

	c.Main.Constants = []chunk.Constant{chunk.NumConst(0.5)}
	if _, err := chunk.Encode(c); !errors.Is(err, luafmt.ErrMalformedChunk) {
		t.Errorf("float in integral chunk: err = %v", err)
	}
}

func TestBigEndian53(t *testing.T) {
	c := chunktest.Lua53Loop()
	c.Header.Endianness = chunk.BigEndian
	data := chunktest.Bytes(t, c)
	got, err := chunk.Decode(data, luafmt.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Header.Endianness != chunk.BigEndian {
		t.Errorf("endianness = %v", got.Header.Endianness)
	}
	if got.Main.Code[0] != c.Main.Code[0] {
		t.Errorf("code[0] = 0x%08x, want 0x%08x", got.Main.Code[0], c.Main.Code[0])
	}
}

func TestLongStringEscape(t *testing.T) {
	long := strings.Repeat("z", 300)
	c := &chunk.Chunk{Header: chunk.DefaultHeader(chunk.Lua53), Main: &chunk.Prototype{
		Source:    chunk.Str(long),
		Constants: []chunk.Constant{chunk.LongStringConst(long), chunk.StringConst(strings.Repeat("y", 253))},
	}}
	data := chunktest.Bytes(t, c)
	got, err := chunk.Decode(data, luafmt.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Main.Source.Value != long || got.Main.Constants[0].Str.Value != long || len(got.Main.Constants[1].Str.Value) != 253 {
		t.Error("long string mismatch")
	}
	out, _ := chunk.Encode(got)
	if !bytes.Equal(out, data) {
		t.Error("re-encode differs")
	}
}

func TestDiagnostics(t *testing.T) {
	data := append(chunktest.Lua51Hello(), 0xde, 0xad)
	data[5] = 1 // format
	c, err := chunk.Decode(data, luafmt.Options{})
	if err != nil {
		t.Fatal(err)
	}
	kinds := map[luafmt.DiagKind]bool{}
	for _, d := range c.Diags {
		kinds[d.Kind] = true
	}
	if !kinds[luafmt.DiagTrailing] || !kinds[luafmt.DiagNonstandard] {
		t.Errorf("diags = %v", c.Diags)
	}

	stripped, err := chunk.Decode(chunktest.Bytes(t, chunktest.Lua52Stripped()), luafmt.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(stripped.Diags) != 1 || stripped.Diags[0].Kind != luafmt.DiagStripped {
		t.Errorf("stripped diags = %v", stripped.Diags)
	}
}

func TestProbe(t *testing.T) {
	hello := chunktest.Lua51Hello()
	var host []byte
	host = append(host, []byte("\x7fELF junk \x1bLua\x99 not a chunk ")...)
	off := len(host)
	host = append(host, hello...)
	host = append(host, []byte("tail")...)

	if got := chunk.Probe(host); got != off {
		t.Errorf("Probe = %d, want %d", got, off)
	}
	hits := chunk.ProbeAll(host)
	if len(hits) != 1 || hits[0].Offset != off || hits[0].Header.Version != chunk.Lua51 {
		t.Errorf("ProbeAll = %+v", hits)
	}
	if got := chunk.Probe([]byte("nothing here")); got != -1 {
		t.Errorf("Probe(none) = %d", got)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    chunk.Version
		wantErr bool
	}{
		{"5.1", chunk.Lua51, false},
		{" 5.3 ", chunk.Lua53, false},
		{"5", 0, true},
		{"x.y", 0, true},
		{"16.0", 0, true},
	}
	for _, tt := range tests {
		got, err := chunk.ParseVersion(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseVersion(%q) = %v, %v", tt.in, got, err)
		}
	}
	if chunk.Lua52.String() != "5.2" {
		t.Errorf("String = %q", chunk.Lua52.String())
	}
}
