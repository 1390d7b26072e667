// Package disasm converts Lua prototypes into symbolic instructions.
package disasm

import (
	"fmt"

	"unlua/internal/chunk"
	"unlua/internal/luafmt"
	"unlua/internal/opcodes"
)

// OperandKind tags a resolved operand.
type OperandKind uint8

const (
	OpReg   OperandKind = iota // register index
	OpConst                    // constant table index
	OpUpval                    // upvalue index
	OpImm                      // immediate
	OpJump                     // absolute target pc
	OpProto                    // nested function index
)

func (k OperandKind) String() string {
	switch k {
	case OpReg:
		return "reg"
	case OpConst:
		return "const"
	case OpUpval:
		return "upval"
	case OpImm:
		return "imm"
	case OpJump:
		return "jump"
	case OpProto:
		return "proto"
	}
	return fmt.Sprintf("OperandKind(%d)", uint8(k))
}

// Operand is one resolved instruction operand.
type Operand struct {
	Kind  OperandKind
	Value int
}

// Inst is one symbolic instruction. A Word instruction is a raw data word
// (unknown opcode, non-zero unused field, 5.1 SETLIST count) kept verbatim.
type Inst struct {
	PC       int
	Raw      uint32
	Op       uint32
	Word     bool
	Operands []Operand
}

// Func is the symbolic form of one prototype.
// Proto carries the prototype metadata; its Code mirrors Insts.
type Func struct {
	Name     string
	Proto    *chunk.Prototype
	Insts    []Inst
	Children []*Func
}

// Walk visits f and its children depth-first in declared order.
func (f *Func) Walk(fn func(f *Func, depth int)) {
	type frame struct {
		f     *Func
		depth int
	}
	stack := []frame{{f, 0}}
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(fr.f, fr.depth)
		for i := len(fr.f.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{fr.f.Children[i], fr.depth + 1})
		}
	}
}

// Line returns the source line of instruction pc, or 0 when stripped.
func (f *Func) Line(pc int) int64 {
	if pc >= 0 && pc < len(f.Proto.Debug.LineInfo) {
		return f.Proto.Debug.LineInfo[pc]
	}
	return 0
}

// Listing is a disassembled chunk: format metadata plus the function tree.
type Listing struct {
	Header       chunk.Header
	UpvalueCount byte
	Table        *opcodes.Table
	Main         *Func
}

// Disassembler disassembles chunks with fixed options, selecting the
// opcode table from each chunk's header.
type Disassembler struct {
	Options luafmt.Options
}

// Disassemble selects the opcode table for c and disassembles it.
func (d Disassembler) Disassemble(c *chunk.Chunk) (*Listing, error) {
	t, err := opcodes.ForVersion(c.Header.Version)
	if err != nil {
		return nil, err
	}
	return disassemble(c, t, d.Options)
}

// Disassemble converts every prototype of c using opcode table t.
// An operand that references a constant, upvalue, nested function or
// instruction outside its table fails with luafmt.ErrCorruptOperand.
func Disassemble(c *chunk.Chunk, t *opcodes.Table) (*Listing, error) {
	return disassemble(c, t, luafmt.Options{})
}

func disassemble(c *chunk.Chunk, t *opcodes.Table, opts luafmt.Options) (*Listing, error) {
	if c == nil || c.Main == nil {
		return nil, fmt.Errorf("disasm: empty chunk: %w", luafmt.ErrMalformedChunk)
	}
	if t.Version != c.Header.Version {
		return nil, fmt.Errorf("disasm: table for %s used on %s chunk: %w", t.Version, c.Header.Version, luafmt.ErrUnsupportedVersion)
	}
	d := &funcDecoder{t: t, v: c.Header.Version, maxDepth: opts.EffectiveMaxDepth()}
	main, err := d.fn(c.Main, "main", 0)
	if err != nil {
		return nil, err
	}
	return &Listing{Header: c.Header, UpvalueCount: c.UpvalueCount, Table: t, Main: main}, nil
}

type funcDecoder struct {
	t        *opcodes.Table
	v        chunk.Version
	maxDepth int
}

func (d *funcDecoder) fn(p *chunk.Prototype, name string, depth int) (*Func, error) {
	if depth > d.maxDepth {
		return nil, fmt.Errorf("disasm: %s: nesting depth exceeds %d: %w", name, d.maxDepth, luafmt.ErrMalformedChunk)
	}
	if n := len(p.Debug.LineInfo); n != 0 && n != len(p.Code) {
		return nil, fmt.Errorf("disasm: %s: %d line entries for %d instructions: %w", name, n, len(p.Code), luafmt.ErrCorruptOperand)
	}
	f := &Func{Name: name, Proto: p, Insts: make([]Inst, len(p.Code))}
	rawNext := false
	for pc, word := range p.Code {
		if rawNext {
			f.Insts[pc] = Inst{PC: pc, Raw: word, Word: true}
			rawNext = false
			continue
		}
		inst, err := DecodeInst(d.t, p, d.v, pc, word)
		if err != nil {
			return nil, fmt.Errorf("disasm: %s pc %d: %w", name, pc, err)
		}
		f.Insts[pc] = inst
		if inst.Word {
			continue
		}
		info := d.t.Ops[inst.Op]
		if info.Extra == opcodes.ExtraRawIfC0 && d.t.Layout.C.Get(word) == 0 {
			rawNext = true
		}
		if info.Mode == opcodes.IAx && pc > 0 && !f.Insts[pc-1].Word && d.t.Ops[f.Insts[pc-1].Op].Extra == opcodes.ExtraArg {
			if ax := inst.Operands[0].Value; ax >= len(p.Constants) {
				return nil, fmt.Errorf("disasm: %s pc %d: %s constant index %d out of range [0,%d): %w",
					name, pc, info.Mnemonic(), ax, len(p.Constants), luafmt.ErrCorruptOperand)
			}
		}
	}
	for i, child := range p.Protos {
		cf, err := d.fn(child, fmt.Sprintf("%s/%d", name, i), depth+1)
		if err != nil {
			return nil, err
		}
		f.Children = append(f.Children, cf)
	}
	return f, nil
}

// DecodeInst decodes the word at pc of p. Words that do not decode as an
// instruction under t come back as Word instructions; out-of-range
// references are errors.
func DecodeInst(t *opcodes.Table, p *chunk.Prototype, v chunk.Version, pc int, word uint32) (Inst, error) {
	inst := Inst{PC: pc, Raw: word}
	l := &t.Layout
	fs := l.Split(word)
	info, ok := t.Lookup(fs.Op)
	if !ok {
		inst.Word = true
		return inst, nil
	}
	inst.Op = fs.Op

	type slot struct {
		kind opcodes.ArgKind
		val  uint32
		name string
	}
	var slots []slot
	switch info.Mode {
	case opcodes.IABC:
		slots = []slot{{info.A, fs.A, "A"}, {info.B, fs.B, "B"}, {info.C, fs.C, "C"}}
	case opcodes.IABx:
		slots = []slot{{info.A, fs.A, "A"}, {info.B, fs.Bx, "Bx"}}
	case opcodes.IAsBx:
		slots = []slot{{info.A, fs.A, "A"}, {info.B, fs.Bx, "sBx"}}
	case opcodes.IAx:
		slots = []slot{{info.A, fs.Ax, "Ax"}}
	}

	for _, s := range slots {
		if s.kind == opcodes.ArgUnused {
			if s.val != 0 {
				inst.Word = true
				inst.Op = 0
				inst.Operands = nil
				return inst, nil
			}
			continue
		}
		op, err := resolve(l, p, v, pc, s.kind, s.val)
		if err != nil {
			return Inst{}, fmt.Errorf("%s %s: %w", info.Mnemonic(), s.name, err)
		}
		inst.Operands = append(inst.Operands, op)
	}
	return inst, nil
}

func resolve(l *opcodes.Layout, p *chunk.Prototype, v chunk.Version, pc int, kind opcodes.ArgKind, val uint32) (Operand, error) {
	check := func(what string, idx, n int) error {
		if idx >= n {
			return fmt.Errorf("%s index %d out of range [0,%d): %w", what, idx, n, luafmt.ErrCorruptOperand)
		}
		return nil
	}
	switch kind {
	case opcodes.ArgReg:
		return Operand{OpReg, int(val)}, nil
	case opcodes.ArgConst:
		return Operand{OpConst, int(val)}, check("constant", int(val), len(p.Constants))
	case opcodes.ArgRK:
		if l.IsK(val) {
			idx := int(val &^ l.RKBit)
			return Operand{OpConst, idx}, check("constant", idx, len(p.Constants))
		}
		return Operand{OpReg, int(val)}, nil
	case opcodes.ArgUpval:
		return Operand{OpUpval, int(val)}, check("upvalue", int(val), p.UpvalueLen(v))
	case opcodes.ArgImm:
		return Operand{OpImm, int(val)}, nil
	case opcodes.ArgJump:
		target := pc + 1 + int(val) - l.SBxBias
		if target < 0 || target >= len(p.Code) {
			return Operand{}, fmt.Errorf("jump target %d out of range [0,%d): %w", target, len(p.Code), luafmt.ErrCorruptOperand)
		}
		return Operand{OpJump, target}, nil
	case opcodes.ArgProto:
		return Operand{OpProto, int(val)}, check("function", int(val), len(p.Protos))
	}
	return Operand{}, fmt.Errorf("unknown operand kind %v: %w", kind, luafmt.ErrCorruptOperand)
}

// Encode packs inst back into an instruction word. It is the exact
// inverse of DecodeInst.
func Encode(inst Inst, t *opcodes.Table) (uint32, error) {
	if inst.Word {
		return inst.Raw, nil
	}
	info, ok := t.Lookup(inst.Op)
	if !ok {
		return 0, fmt.Errorf("disasm: pc %d: unknown opcode %d: %w", inst.PC, inst.Op, luafmt.ErrCorruptOperand)
	}
	l := &t.Layout
	word := l.Op.Set(0, inst.Op)

	type slot struct {
		kind  opcodes.ArgKind
		field opcodes.Field
	}
	var slots []slot
	switch info.Mode {
	case opcodes.IABC:
		slots = []slot{{info.A, l.A}, {info.B, l.B}, {info.C, l.C}}
	case opcodes.IABx, opcodes.IAsBx:
		slots = []slot{{info.A, l.A}, {info.B, l.Bx}}
	case opcodes.IAx:
		slots = []slot{{info.A, l.Ax}}
	}

	next := 0
	for _, s := range slots {
		if s.kind == opcodes.ArgUnused {
			continue
		}
		if next >= len(inst.Operands) {
			return 0, fmt.Errorf("disasm: pc %d: %s: missing operand %d: %w", inst.PC, info.Mnemonic(), next+1, luafmt.ErrCorruptOperand)
		}
		op := inst.Operands[next]
		next++
		v, err := fieldValue(l, inst.PC, s.kind, op)
		if err != nil {
			return 0, fmt.Errorf("disasm: pc %d: %s operand %d: %w", inst.PC, info.Mnemonic(), next, err)
		}
		if v > s.field.Max() {
			return 0, fmt.Errorf("disasm: pc %d: %s operand %d: value %d exceeds %d bits: %w", inst.PC, info.Mnemonic(), next, v, s.field.Size, luafmt.ErrCorruptOperand)
		}
		word = s.field.Set(word, v)
	}
	if next != len(inst.Operands) {
		return 0, fmt.Errorf("disasm: pc %d: %s takes %d operands, got %d: %w", inst.PC, info.Mnemonic(), next, len(inst.Operands), luafmt.ErrCorruptOperand)
	}
	return word, nil
}

func fieldValue(l *opcodes.Layout, pc int, kind opcodes.ArgKind, op Operand) (uint32, error) {
	if op.Value < 0 && op.Kind != OpJump {
		return 0, fmt.Errorf("negative %s %d: %w", op.Kind, op.Value, luafmt.ErrCorruptOperand)
	}
	mismatch := fmt.Errorf("%s operand where %s expected: %w", op.Kind, kind, luafmt.ErrCorruptOperand)
	switch kind {
	case opcodes.ArgReg:
		if op.Kind != OpReg {
			return 0, mismatch
		}
	case opcodes.ArgConst:
		if op.Kind != OpConst {
			return 0, mismatch
		}
	case opcodes.ArgRK:
		switch op.Kind {
		case OpReg:
			if uint32(op.Value) >= l.RKBit {
				return 0, fmt.Errorf("register %d not addressable as RK: %w", op.Value, luafmt.ErrCorruptOperand)
			}
		case OpConst:
			if uint32(op.Value) >= l.RKBit {
				return 0, fmt.Errorf("constant %d not addressable as RK: %w", op.Value, luafmt.ErrCorruptOperand)
			}
			return uint32(op.Value) | l.RKBit, nil
		default:
			return 0, mismatch
		}
	case opcodes.ArgUpval:
		if op.Kind != OpUpval {
			return 0, mismatch
		}
	case opcodes.ArgImm:
		if op.Kind != OpImm {
			return 0, mismatch
		}
	case opcodes.ArgProto:
		if op.Kind != OpProto {
			return 0, mismatch
		}
	case opcodes.ArgJump:
		if op.Kind != OpJump {
			return 0, mismatch
		}
		delta := op.Value - (pc + 1)
		if delta < l.MinSBx() || delta > l.MaxSBx() {
			return 0, fmt.Errorf("jump delta %d out of range: %w", delta, luafmt.ErrCorruptOperand)
		}
		return uint32(delta + l.SBxBias), nil
	default:
		return 0, mismatch
	}
	return uint32(op.Value), nil
}
