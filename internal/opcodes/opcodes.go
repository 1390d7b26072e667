// Package opcodes holds the per-version Lua VM opcode tables and the bit
// layout of instruction words.
//
// A Table is selected once per chunk with ForVersion and passed explicitly
// to the disassembler and assembler; decode logic never switches on version.
package opcodes

import (
	"fmt"
	"strings"

	"unlua/internal/chunk"
	"unlua/internal/luafmt"
)

// Mode is the instruction format of an opcode.
type Mode uint8

const (
	IABC Mode = iota
	IABx
	IAsBx
	IAx
)

func (m Mode) String() string {
	switch m {
	case IABC:
		return "iABC"
	case IABx:
		return "iABx"
	case IAsBx:
		return "iAsBx"
	case IAx:
		return "iAx"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ArgKind says how one operand field is interpreted.
type ArgKind uint8

const (
	ArgUnused ArgKind = iota // field must be zero
	ArgReg                   // register
	ArgConst                 // constant table index
	ArgRK                    // register, or constant when the RK bit is set
	ArgUpval                 // upvalue index
	ArgImm                   // unsigned immediate
	ArgJump                  // signed pc delta (sBx)
	ArgProto                 // nested prototype index
)

func (k ArgKind) String() string {
	switch k {
	case ArgUnused:
		return "unused"
	case ArgReg:
		return "reg"
	case ArgConst:
		return "const"
	case ArgRK:
		return "rk"
	case ArgUpval:
		return "upval"
	case ArgImm:
		return "imm"
	case ArgJump:
		return "jump"
	case ArgProto:
		return "proto"
	}
	return fmt.Sprintf("ArgKind(%d)", uint8(k))
}

// Flow is the control-flow class of an opcode.
type Flow uint8

const (
	FlowNext     Flow = iota // falls through
	FlowJump                 // unconditional jump by sBx
	FlowCondJump             // jumps by sBx or falls through
	FlowSkip                 // conditionally skips the next instruction
	FlowSkipIfC              // skips the next instruction when C != 0 (LOADBOOL)
	FlowReturn               // leaves the function
)

func (f Flow) String() string {
	switch f {
	case FlowNext:
		return "next"
	case FlowJump:
		return "jump"
	case FlowCondJump:
		return "cond-jump"
	case FlowSkip:
		return "skip"
	case FlowSkipIfC:
		return "skip-if-c"
	case FlowReturn:
		return "return"
	}
	return fmt.Sprintf("Flow(%d)", uint8(f))
}

// Extra says whether an opcode consumes the following word.
type Extra uint8

const (
	ExtraNone    Extra = iota
	ExtraArg           // next word is always EXTRAARG (LOADKX)
	ExtraArgIfC0       // next word is EXTRAARG when C == 0 (5.2+ SETLIST)
	ExtraRawIfC0       // next word is a raw count when C == 0 (5.1 SETLIST)
)

// OpInfo describes one opcode.
//
// Operand fields by mode: iABC uses A, B, C; iABx and iAsBx use A and B
// (holding Bx or sBx); iAx uses A (holding Ax).
type OpInfo struct {
	Name  string
	Mode  Mode
	A     ArgKind
	B     ArgKind
	C     ArgKind
	Flow  Flow
	Call  bool // CALL, TAILCALL
	Extra Extra
}

// Mnemonic returns the lower-case assembler mnemonic.
func (o OpInfo) Mnemonic() string { return strings.ToLower(o.Name) }

// Field is a bit range inside an instruction word.
type Field struct {
	Pos  uint
	Size uint
}

// Max returns the largest value the field can hold.
func (f Field) Max() uint32 { return uint32(1)<<f.Size - 1 }

// Get extracts the field from word.
func (f Field) Get(word uint32) uint32 { return word >> f.Pos & f.Max() }

// Set stores v into the field of word. v must fit.
func (f Field) Set(word, v uint32) uint32 {
	mask := f.Max() << f.Pos
	return word&^mask | (v<<f.Pos)&mask
}

// Layout is the bit layout of instruction words.
type Layout struct {
	Op, A, B, C, Bx, Ax Field

	SBxBias int    // sBx = Bx - SBxBias
	RKBit   uint32 // B/C values with this bit set name a constant
}

// Fields is a word split into every possible field.
type Fields struct {
	Op, A, B, C, Bx, Ax uint32
	SBx                 int
}

// Split extracts every field of word.
func (l *Layout) Split(word uint32) Fields {
	bx := l.Bx.Get(word)
	return Fields{
		Op:  l.Op.Get(word),
		A:   l.A.Get(word),
		B:   l.B.Get(word),
		C:   l.C.Get(word),
		Bx:  bx,
		Ax:  l.Ax.Get(word),
		SBx: int(bx) - l.SBxBias,
	}
}

// IsK reports whether an RK operand value names a constant.
func (l *Layout) IsK(v uint32) bool { return v&l.RKBit != 0 }

// MaxSBx returns the largest representable jump delta.
func (l *Layout) MaxSBx() int { return int(l.Bx.Max()) - l.SBxBias }

// MinSBx returns the smallest representable jump delta.
func (l *Layout) MinSBx() int { return -l.SBxBias }

// lua5Layout is shared by 5.1, 5.2 and 5.3.
var lua5Layout = Layout{
	Op:      Field{0, 6},
	A:       Field{6, 8},
	C:       Field{14, 9},
	B:       Field{23, 9},
	Bx:      Field{14, 18},
	Ax:      Field{6, 26},
	SBxBias: 1<<17 - 1,
	RKBit:   1 << 8,
}

// Table is the opcode table for one Lua version.
type Table struct {
	Version chunk.Version
	Layout  Layout
	Ops     []OpInfo

	byName map[string]int
}

func newTable(v chunk.Version, ops []OpInfo) *Table {
	t := &Table{Version: v, Layout: lua5Layout, Ops: ops, byName: make(map[string]int, len(ops))}
	for i, op := range ops {
		t.byName[op.Mnemonic()] = i
	}
	return t
}

// Lookup returns the opcode info for opcode number op.
func (t *Table) Lookup(op uint32) (OpInfo, bool) {
	if int(op) >= len(t.Ops) {
		return OpInfo{}, false
	}
	return t.Ops[op], true
}

// ByName returns the opcode number for a mnemonic, case-insensitively.
func (t *Table) ByName(name string) (uint32, bool) {
	op, ok := t.byName[strings.ToLower(name)]
	return uint32(op), ok
}

// Name returns the mnemonic of op, or "" for an unknown opcode.
func (t *Table) Name(op uint32) string {
	if info, ok := t.Lookup(op); ok {
		return info.Mnemonic()
	}
	return ""
}

var tables = map[chunk.Version]*Table{}

func register(t *Table) { tables[t.Version] = t }

// ForVersion returns the opcode table for v.
func ForVersion(v chunk.Version) (*Table, error) {
	t, ok := tables[v]
	if !ok {
		return nil, fmt.Errorf("opcodes: no table for Lua %s: %w", v, luafmt.ErrUnsupportedVersion)
	}
	return t, nil
}

// shorthand constructors used by the version tables
func abc(name string, a, b, c ArgKind) OpInfo {
	return OpInfo{Name: name, Mode: IABC, A: a, B: b, C: c}
}

func abx(name string, a, bx ArgKind) OpInfo {
	return OpInfo{Name: name, Mode: IABx, A: a, B: bx}
}

func asbx(name string, a ArgKind, flow Flow) OpInfo {
	return OpInfo{Name: name, Mode: IAsBx, A: a, B: ArgJump, Flow: flow}
}

func (o OpInfo) flow(f Flow) OpInfo {
	o.Flow = f
	return o
}

func (o OpInfo) call() OpInfo {
	o.Call = true
	return o
}

func (o OpInfo) extra(e Extra) OpInfo {
	o.Extra = e
	return o
}

const (
	unused = ArgUnused
	reg    = ArgReg
	kst    = ArgConst
	rk     = ArgRK
	upv    = ArgUpval
	imm    = ArgImm
	proto  = ArgProto
)
