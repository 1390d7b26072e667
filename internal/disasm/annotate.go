package disasm

import (
	"fmt"
	"strings"

	"unlua/internal/chunk"
	"unlua/internal/opcodes"
)

// Annotator returns an optional inline comment for an instruction.
// Empty string means no annotation.
type Annotator func(inst Inst) string

// Annotate runs every annotator on inst and joins the non-empty results.
func Annotate(inst Inst, anns []Annotator) string {
	var parts []string
	for _, ann := range anns {
		if s := ann(inst); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// DefaultAnnotators returns the annotators used for LASM dumps of f.
func DefaultAnnotators(t *opcodes.Table, f *Func) []Annotator {
	return []Annotator{
		ConstAnnotator(f),
		UpvalueAnnotator(f),
		ClosureAnnotator(f),
		LocalAnnotator(f),
		NewPeepholeState(t, f).Annotate,
	}
}

const maxLiteralNote = 40

func shorten(s string) string {
	if len(s) <= maxLiteralNote {
		return s
	}
	return s[:maxLiteralNote-3] + "..."
}

// ConstAnnotator shows the value of constant operands rendered as kN.
func ConstAnnotator(f *Func) Annotator {
	labels := ConstLabels(f.Proto)
	return func(inst Inst) string {
		var notes []string
		for _, op := range inst.Operands {
			if op.Kind != OpConst || !strings.HasPrefix(labels[op.Value], "k") {
				continue
			}
			notes = append(notes, fmt.Sprintf("k%d=%s", op.Value, shorten(ConstLiteral(f.Proto.Constants[op.Value]))))
		}
		return strings.Join(notes, " ")
	}
}

// UpvalueAnnotator names upvalue operands from the debug info.
func UpvalueAnnotator(f *Func) Annotator {
	return func(inst Inst) string {
		var notes []string
		for _, op := range inst.Operands {
			if op.Kind != OpUpval {
				continue
			}
			if name := f.Proto.UpvalueName(op.Value); name != "" {
				notes = append(notes, fmt.Sprintf("u%d=%s", op.Value, name))
			}
		}
		return strings.Join(notes, " ")
	}
}

// ClosureAnnotator names the nested function created by CLOSURE.
func ClosureAnnotator(f *Func) Annotator {
	return func(inst Inst) string {
		for _, op := range inst.Operands {
			if op.Kind != OpProto || op.Value >= len(f.Children) {
				continue
			}
			child := f.Children[op.Value]
			return fmt.Sprintf("%s lines %d-%d", child.Name, child.Proto.LineDefined, child.Proto.LastLineDefined)
		}
		return ""
	}
}

// LocalAnnotator names register operands that hold a declared local at pc.
func LocalAnnotator(f *Func) Annotator {
	if len(f.Proto.Debug.LocVars) == 0 {
		return func(Inst) string { return "" }
	}
	return func(inst Inst) string {
		var notes []string
		seen := map[int]bool{}
		for _, op := range inst.Operands {
			if op.Kind != OpReg || seen[op.Value] {
				continue
			}
			seen[op.Value] = true
			if name, ok := f.Proto.LocalName(op.Value, inst.PC); ok {
				notes = append(notes, fmt.Sprintf("r%d=%s", op.Value, name))
			}
		}
		return strings.Join(notes, " ")
	}
}

// PeepholeState annotates words whose meaning depends on the previous
// instruction: EXTRAARG after LOADKX or SETLIST, and .word data.
type PeepholeState struct {
	t    *opcodes.Table
	f    *Func
	prev *Inst
}

// NewPeepholeState creates a peephole annotator for f.
func NewPeepholeState(t *opcodes.Table, f *Func) *PeepholeState {
	return &PeepholeState{t: t, f: f}
}

// Annotate must be called for each instruction in sequence.
func (p *PeepholeState) Annotate(inst Inst) string {
	prev := p.prev
	p.prev = &inst

	var prevName string
	if prev != nil && !prev.Word {
		prevName = p.t.Name(prev.Op)
	}

	if inst.Word {
		fs := p.t.Layout.Split(inst.Raw)
		switch {
		case prevName == "setlist":
			return fmt.Sprintf("setlist block %d", inst.Raw)
		case p.t.Name(fs.Op) == "":
			return fmt.Sprintf("unknown opcode %d", fs.Op)
		default:
			return fmt.Sprintf("%s with unused field set", p.t.Name(fs.Op))
		}
	}

	if p.t.Name(inst.Op) != "extraarg" || len(inst.Operands) == 0 {
		return ""
	}
	ax := inst.Operands[0].Value
	switch prevName {
	case "loadkx":
		if ax < len(p.f.Proto.Constants) {
			return fmt.Sprintf("k%d=%s", ax, shorten(ConstLiteral(p.f.Proto.Constants[ax])))
		}
		return fmt.Sprintf("k%d out of range", ax)
	case "setlist":
		return fmt.Sprintf("setlist block %d", ax)
	}
	return ""
}

// stringConst returns constant idx of p when it is a valid string.
func stringConst(p *chunk.Prototype, idx int) (string, bool) {
	if idx < 0 || idx >= len(p.Constants) {
		return "", false
	}
	k := p.Constants[idx]
	if (k.Kind != chunk.ConstString && k.Kind != chunk.ConstLongString) || !k.Str.Valid {
		return "", false
	}
	return k.Str.Value, true
}
