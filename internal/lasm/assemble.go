package lasm

import (
	"fmt"
	"io"

	"unlua/internal/chunk"
	"unlua/internal/disasm"
	"unlua/internal/luafmt"
	"unlua/internal/opcodes"
)

// AssembleOptions carries the format metadata that LASM text alone cannot
// be trusted to supply.
type AssembleOptions struct {
	// Header supplies or overrides the listing's header block.
	Header *chunk.Header
	// UpvalueCount overrides the 5.3 main closure upvalue count when set.
	UpvalueCount *byte
}

// Assemble rebuilds a chunk from l. Every instruction is re-encoded from its
// symbolic form and the result is verified by disassembling it again; the
// listing itself is not modified.
func Assemble(l *disasm.Listing, opts AssembleOptions) (*chunk.Chunk, error) {
	h := l.Header
	if opts.Header != nil {
		h = *opts.Header
	}
	if h.Version == 0 {
		return nil, fmt.Errorf("lasm: no header metadata: %w", luafmt.ErrMalformedHeader)
	}
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("lasm: %w", err)
	}
	t := l.Table
	if t == nil {
		var err error
		if t, err = opcodes.ForVersion(h.Version); err != nil {
			return nil, fmt.Errorf("lasm: %w", err)
		}
	}
	if t.Version != h.Version {
		return nil, fmt.Errorf("lasm: listing uses Lua %s opcodes, header declares %s: %w", t.Version, h.Version, luafmt.ErrUnsupportedVersion)
	}
	main, err := assembleFunc(t, l.Main)
	if err != nil {
		return nil, err
	}
	up := l.UpvalueCount
	if opts.UpvalueCount != nil {
		up = *opts.UpvalueCount
	}
	c := &chunk.Chunk{Header: h, UpvalueCount: up, Main: main}
	// references (constants, upvalues, functions, jump targets) must
	// resolve the same way on the way back in
	if _, err := disasm.Disassemble(c, t); err != nil {
		return nil, fmt.Errorf("lasm: assembled chunk does not verify: %w", err)
	}
	return c, nil
}

func assembleFunc(t *opcodes.Table, f *disasm.Func) (*chunk.Prototype, error) {
	p := *f.Proto
	p.Code = make([]uint32, len(f.Insts))
	for i, inst := range f.Insts {
		inst.PC = i
		w, err := disasm.Encode(inst, t)
		if err != nil {
			return nil, fmt.Errorf("lasm: %s: %w", f.Name, err)
		}
		p.Code[i] = w
	}
	if n := len(p.Debug.LineInfo); n != 0 && n != len(p.Code) {
		return nil, fmt.Errorf("lasm: %s: %d line entries for %d instructions: %w", f.Name, n, len(p.Code), luafmt.ErrCorruptOperand)
	}
	p.Protos = make([]*chunk.Prototype, 0, len(f.Children))
	for _, child := range f.Children {
		cp, err := assembleFunc(t, child)
		if err != nil {
			return nil, err
		}
		p.Protos = append(p.Protos, cp)
	}
	return &p, nil
}

// AssembleBytes parses LASM text from r and encodes the resulting chunk.
func AssembleBytes(r io.Reader, opts AssembleOptions) ([]byte, error) {
	l, err := Parser{Header: opts.Header}.Parse(r)
	if err != nil {
		return nil, err
	}
	c, err := Assemble(l, opts)
	if err != nil {
		return nil, err
	}
	return chunk.Encode(c)
}
