package disasm

import (
	"strings"
	"testing"

	"unlua/internal/chunk"
	"unlua/internal/chunk/chunktest"
)

func TestAnnotators(t *testing.T) {
	l := mustListing(t, chunktest.Lua53Loop())
	main := l.Main
	anns := DefaultAnnotators(l.Table, main)
	notes := make([]string, len(main.Insts))
	for i, inst := range main.Insts {
		notes[i] = Annotate(inst, anns)
	}

	tests := []struct {
		pc   int
		want string
	}{
		{1, "main/0 lines 2-4"},
		{6, "r1=inc"},
		{7, "r5=i"},
		{12, "u0=_ENV"},
		{13, "r0=t"},
	}
	for _, tt := range tests {
		if !strings.Contains(notes[tt.pc], tt.want) {
			t.Errorf("pc %d: note %q, want it to contain %q", tt.pc, notes[tt.pc], tt.want)
		}
	}
	if notes[16] != "" {
		t.Errorf("CALL note = %q", notes[16])
	}
}

func TestConstAnnotatorAmbiguous(t *testing.T) {
	tab := mustTable(t, chunk.Lua51)
	p := &chunk.Prototype{
		Code:      []uint32{chunktest.ABx(1, 0, 1), chunktest.ABC(30, 0, 1, 0)},
		Constants: []chunk.Constant{chunk.StringConst("x"), chunk.StringConst("x")},
	}
	l, err := Disassemble(&chunk.Chunk{Header: chunk.DefaultHeader(chunk.Lua51), Main: p}, tab)
	if err != nil {
		t.Fatal(err)
	}
	if got := ConstAnnotator(l.Main)(l.Main.Insts[0]); got != `k1="x"` {
		t.Errorf("note = %q", got)
	}
}

func TestPeephole(t *testing.T) {
	l := mustListing(t, chunktest.Lua52Stripped())
	ps := NewPeepholeState(l.Table, l.Main)
	notes := map[int]string{}
	for _, inst := range l.Main.Insts {
		if s := ps.Annotate(inst); s != "" {
			notes[inst.PC] = s
		}
	}
	if notes[1] != "k1=10.0" {
		t.Errorf("LOADKX extra = %q", notes[1])
	}
	if notes[9] != "setlist block 1" {
		t.Errorf("SETLIST extra = %q", notes[9])
	}
	if len(notes) != 2 {
		t.Errorf("notes = %v", notes)
	}

	l51 := mustListing(t, chunktest.Lua51Closure(chunk.BigEndian))
	ps = NewPeepholeState(l51.Table, l51.Main)
	var got string
	for _, inst := range l51.Main.Insts {
		if s := ps.Annotate(inst); s != "" {
			got = s
		}
	}
	if got != "setlist block 7" {
		t.Errorf("5.1 SETLIST data = %q", got)
	}

	ps = NewPeepholeState(l51.Table, l51.Main)
	if s := ps.Annotate(Inst{Word: true, Raw: chunktest.ABC(63, 0, 0, 0)}); s != "unknown opcode 63" {
		t.Errorf("unknown = %q", s)
	}
	if s := ps.Annotate(Inst{Word: true, Raw: chunktest.ABC(0, 0, 0, 1)}); s != "move with unused field set" {
		t.Errorf("unused = %q", s)
	}
}

func TestShorten(t *testing.T) {
	long := strings.Repeat("a", 100)
	if got := shorten(long); len(got) != maxLiteralNote || !strings.HasSuffix(got, "...") {
		t.Errorf("shorten = %q", got)
	}
	if shorten("abc") != "abc" {
		t.Error("short strings pass through")
	}
}
