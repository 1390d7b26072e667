package opcodes

import (
	"errors"
	"testing"

	"unlua/internal/chunk"
	"unlua/internal/luafmt"
)

func TestTableSizes(t *testing.T) {
	tests := []struct {
		v    chunk.Version
		want int
	}{
		{chunk.Lua51, 38},
		{chunk.Lua52, 40},
		{chunk.Lua53, 47},
	}
	for _, tt := range tests {
		tab, err := ForVersion(tt.v)
		if err != nil {
			t.Fatal(err)
		}
		if len(tab.Ops) != tt.want {
			t.Errorf("Lua %s: %d ops, want %d", tt.v, len(tab.Ops), tt.want)
		}
		seen := map[string]bool{}
		for _, op := range tab.Ops {
			if seen[op.Name] {
				t.Errorf("Lua %s: duplicate %s", tt.v, op.Name)
			}
			seen[op.Name] = true
		}
	}
}

func TestOpcodeNumbers(t *testing.T) {
	tests := []struct {
		v    chunk.Version
		name string
		want uint32
	}{
		{chunk.Lua51, "getglobal", 5},
		{chunk.Lua51, "call", 28},
		{chunk.Lua51, "vararg", 37},
		{chunk.Lua52, "gettabup", 6},
		{chunk.Lua52, "jmp", 23},
		{chunk.Lua52, "extraarg", 39},
		{chunk.Lua53, "idiv", 19},
		{chunk.Lua53, "CALL", 36},
		{chunk.Lua53, "extraarg", 46},
	}
	for _, tt := range tests {
		tab, _ := ForVersion(tt.v)
		got, ok := tab.ByName(tt.name)
		if !ok || got != tt.want {
			t.Errorf("Lua %s %s = %d, %v; want %d", tt.v, tt.name, got, ok, tt.want)
		}
		if name := tab.Name(got); name != tab.Ops[tt.want].Mnemonic() {
			t.Errorf("Name(%d) = %q", got, name)
		}
	}
	tab, _ := ForVersion(chunk.Lua51)
	if _, ok := tab.ByName("gettabup"); ok {
		t.Error("5.1 should not know gettabup")
	}
	if _, ok := tab.Lookup(63); ok {
		t.Error("opcode 63 should be unknown")
	}
}

func TestSplit(t *testing.T) {
	l := &lua5Layout
	// CALL 6 2 2 in 5.3 numbering.
	word := uint32(36) | 6<<6 | 2<<14 | 2<<23
	f := l.Split(word)
	if f.Op != 36 || f.A != 6 || f.B != 2 || f.C != 2 {
		t.Errorf("Split = %+v", f)
	}

	// FORLOOP 2 -6
	word = uint32(39) | 2<<6 | uint32(l.SBxBias-6)<<14
	if f := l.Split(word); f.SBx != -6 || f.A != 2 {
		t.Errorf("sBx = %d", f.SBx)
	}

	if !l.IsK(256|3) || l.IsK(255) {
		t.Error("IsK")
	}
	if l.MaxSBx() != 131072 || l.MinSBx() != -131071 {
		t.Errorf("sBx range = [%d, %d]", l.MinSBx(), l.MaxSBx())
	}
}

func TestFieldSetGet(t *testing.T) {
	fields := []Field{lua5Layout.Op, lua5Layout.A, lua5Layout.B, lua5Layout.C, lua5Layout.Bx, lua5Layout.Ax}
	for _, f := range fields {
		for _, v := range []uint32{0, 1, f.Max() / 2, f.Max()} {
			word := f.Set(0xffffffff, v)
			if got := f.Get(word); got != v {
				t.Errorf("field %+v: Set/Get %d = %d", f, v, got)
			}
			// bits outside the field are untouched
			if rest := word | f.Max()<<f.Pos; rest != 0xffffffff {
				t.Errorf("field %+v: clobbered bits: 0x%08x", f, word)
			}
		}
	}
}

func TestForVersionUnsupported(t *testing.T) {
	if _, err := ForVersion(0x54); !errors.Is(err, luafmt.ErrUnsupportedVersion) {
		t.Errorf("err = %v", err)
	}
}

func TestExtraWords(t *testing.T) {
	t51, _ := ForVersion(chunk.Lua51)
	t53, _ := ForVersion(chunk.Lua53)
	setlist51, _ := t51.ByName("setlist")
	setlist53, _ := t53.ByName("setlist")
	loadkx, _ := t53.ByName("loadkx")
	if t51.Ops[setlist51].Extra != ExtraRawIfC0 {
		t.Error("5.1 SETLIST extra")
	}
	if t53.Ops[setlist53].Extra != ExtraArgIfC0 {
		t.Error("5.3 SETLIST extra")
	}
	if t53.Ops[loadkx].Extra != ExtraArg {
		t.Error("LOADKX extra")
	}
}
