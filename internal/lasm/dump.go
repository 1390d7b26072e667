// Package lasm reads and writes LASM, the textual assembly form of a
// disassembled Lua chunk.
//
// A LASM file starts with a header metadata block (.version, widths, byte
// order) followed by one .function block per prototype, nested in tree
// order and closed by .end. Instructions are one per line, optionally
// prefixed with their pc. Operands are rN (register), uN (upvalue), fN
// (nested function), @N (absolute jump target), decimal immediates, and
// constants rendered by value when unique in the constant table, else kN.
package lasm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"unlua/internal/chunk"
	"unlua/internal/disasm"
	"unlua/internal/opcodes"
)

// Dumper adapts Dump for callers that take a collaborator.
type Dumper struct {
	NoComments bool // omit annotation comments
}

// Dump writes l to w.
func (d Dumper) Dump(w io.Writer, l *disasm.Listing) error {
	bw := bufio.NewWriter(w)
	dw := &dumpWriter{w: bw, l: l, comments: !d.NoComments}
	dw.header()
	if err := dw.fn(l.Main, 0); err != nil {
		return err
	}
	return bw.Flush()
}

// Dump writes l to w as LASM text, one function at a time.
func Dump(w io.Writer, l *disasm.Listing) error {
	return Dumper{}.Dump(w, l)
}

type dumpWriter struct {
	w        *bufio.Writer
	l        *disasm.Listing
	comments bool
	err      error
}

func (d *dumpWriter) printf(format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}

func (d *dumpWriter) header() {
	h := d.l.Header
	d.printf("; Lua %s bytecode\n", h.Version)
	d.printf(".version %s\n", h.Version)
	d.printf(".format %d\n", h.Format)
	d.printf(".endianness %s\n", h.Endianness)
	d.printf(".int_size %d\n", h.IntSize)
	d.printf(".size_t_size %d\n", h.SizeTSize)
	d.printf(".instruction_size %d\n", h.InstructionSize)
	if h.Version >= chunk.Lua53 {
		d.printf(".integer_size %d\n", h.IntegerSize)
	}
	d.printf(".number_size %d\n", h.NumberSize)
	d.printf(".number_integral %t\n", h.NumberIntegral)
	if h.Version >= chunk.Lua53 {
		d.printf(".upvalue_count %d\n", d.l.UpvalueCount)
	}
}

func (d *dumpWriter) fn(f *disasm.Func, depth int) error {
	ind := strings.Repeat("  ", depth)
	in := ind + "  "
	p := f.Proto
	v := d.l.Header.Version

	d.printf("\n%s.function %s\n", ind, f.Name)
	d.printf("%s.source %s\n", in, quoteOrNil(p.Source))
	d.printf("%s.linedefined %d\n", in, p.LineDefined)
	d.printf("%s.lastlinedefined %d\n", in, p.LastLineDefined)
	d.printf("%s.numparams %d\n", in, p.NumParams)
	d.printf("%s.is_vararg %d\n", in, p.IsVararg)
	d.printf("%s.maxstacksize %d\n", in, p.MaxStackSize)
	if v == chunk.Lua51 {
		d.printf("%s.nups %d\n", in, p.NumUpvalues)
	}
	for _, u := range p.Upvalues {
		d.printf("%s.upvalue %d %d\n", in, u.InStack, u.Index)
	}
	for i, k := range p.Constants {
		suffix := ""
		if k.Kind == chunk.ConstLongString {
			suffix = " long"
		}
		d.printf("%s.constant k%d %s%s\n", in, i, disasm.ConstLiteral(k), suffix)
	}
	for _, lv := range p.Debug.LocVars {
		d.printf("%s.local %s %d %d\n", in, quoteOrNil(lv.Name), lv.StartPC, lv.EndPC)
	}
	for _, name := range p.Debug.UpvalueNames {
		d.printf("%s.upvalname %s\n", in, quoteOrNil(name))
	}

	labels := disasm.ConstLabels(p)
	var anns []disasm.Annotator
	if d.comments {
		anns = disasm.DefaultAnnotators(d.l.Table, f)
	}
	hasLines := len(p.Debug.LineInfo) == len(f.Insts) && len(f.Insts) > 0
	for pc, inst := range f.Insts {
		if hasLines && (pc == 0 || f.Line(pc) != f.Line(pc-1)) {
			d.printf("%s.line %d\n", in, f.Line(pc))
		}
		text := FormatInst(d.l.Table, inst, labels)
		if note := disasm.Annotate(inst, anns); note != "" {
			d.printf("%s%5d  %-32s ; %s\n", in, pc, text, noteEscaper.Replace(note))
		} else {
			d.printf("%s%5d  %s\n", in, pc, text)
		}
	}
	if d.err != nil {
		return fmt.Errorf("lasm: write %s: %w", f.Name, d.err)
	}
	// flush between functions so large chunks stream
	if err := d.w.Flush(); err != nil {
		return fmt.Errorf("lasm: write %s: %w", f.Name, err)
	}

	for _, child := range f.Children {
		if err := d.fn(child, depth+1); err != nil {
			return err
		}
	}
	d.printf("%s.end\n", ind)
	return d.err
}

// FormatInst renders one instruction. labels are the constant operand
// texts of the owning function, as returned by disasm.ConstLabels.
func FormatInst(t *opcodes.Table, inst disasm.Inst, labels []string) string {
	if inst.Word {
		return fmt.Sprintf(".word 0x%08x", inst.Raw)
	}
	var sb strings.Builder
	sb.WriteString(t.Name(inst.Op))
	for _, op := range inst.Operands {
		sb.WriteByte(' ')
		sb.WriteString(formatOperand(op, labels))
	}
	return sb.String()
}

func formatOperand(op disasm.Operand, labels []string) string {
	switch op.Kind {
	case disasm.OpReg:
		return "r" + strconv.Itoa(op.Value)
	case disasm.OpConst:
		if op.Value >= 0 && op.Value < len(labels) {
			return labels[op.Value]
		}
		return "k" + strconv.Itoa(op.Value)
	case disasm.OpUpval:
		return "u" + strconv.Itoa(op.Value)
	case disasm.OpJump:
		return "@" + strconv.Itoa(op.Value)
	case disasm.OpProto:
		return "f" + strconv.Itoa(op.Value)
	}
	return strconv.Itoa(op.Value)
}

var noteEscaper = strings.NewReplacer("\n", `\n`, "\r", `\r`)

func quoteOrNil(s chunk.String) string {
	if !s.Valid {
		return "nil"
	}
	return strconv.Quote(s.Value)
}
