package disasm

import "unlua/internal/chunk"

// FuncRecord is one line in functions.jsonl.
type FuncRecord struct {
	Name         string `json:"name"`
	Source       string `json:"source,omitempty"`
	LineDefined  int64  `json:"line_defined"`
	LastLine     int64  `json:"last_line_defined"`
	Params       int    `json:"param_count,omitempty"`
	Vararg       bool   `json:"vararg,omitempty"`
	MaxStack     int    `json:"max_stack"`
	Instructions int    `json:"instructions"`
	Constants    int    `json:"constants"`
	Upvalues     int    `json:"upvalues"`
	Children     int    `json:"children,omitempty"`
	Blocks       int    `json:"blocks"`
}

// CallEdgeRecord is one line in call_edges.jsonl.
type CallEdgeRecord struct {
	FromFunc string `json:"from_func"`
	PC       int    `json:"pc"`
	Kind     string `json:"kind"`             // "call" or "tailcall"
	Callee   string `json:"callee,omitempty"` // resolved name
	Func     string `json:"func,omitempty"`   // nested function path
}

// StringRefRecord is one line in string_refs.jsonl: an instruction operand
// naming a string constant.
type StringRefRecord struct {
	Func  string `json:"func"`
	PC    int    `json:"pc"`
	Const int    `json:"const"`
	Value string `json:"value"`
}

// NewFuncRecord summarizes f and its CFG.
func NewFuncRecord(l *Listing, f *Func, cfg FuncCFG) FuncRecord {
	p := f.Proto
	return FuncRecord{
		Name:         f.Name,
		Source:       p.Source.Value,
		LineDefined:  p.LineDefined,
		LastLine:     p.LastLineDefined,
		Params:       int(p.NumParams),
		Vararg:       p.IsVararg != 0,
		MaxStack:     int(p.MaxStackSize),
		Instructions: len(f.Insts),
		Constants:    len(p.Constants),
		Upvalues:     p.UpvalueLen(l.Header.Version),
		Children:     len(f.Children),
		Blocks:       len(cfg.Blocks),
	}
}

// NewCallEdgeRecords converts the call sites of f.
func NewCallEdgeRecords(f *Func, sites []CallSite) []CallEdgeRecord {
	recs := make([]CallEdgeRecord, 0, len(sites))
	for _, s := range sites {
		recs = append(recs, CallEdgeRecord{FromFunc: f.Name, PC: s.PC, Kind: s.Kind, Callee: s.Callee, Func: s.Func})
	}
	return recs
}

// NewStringRefRecords lists the string constants referenced by the
// instructions of f, in pc order.
func NewStringRefRecords(f *Func) []StringRefRecord {
	var recs []StringRefRecord
	consts := f.Proto.Constants
	for _, inst := range f.Insts {
		for _, op := range inst.Operands {
			if op.Kind != OpConst || op.Value >= len(consts) {
				continue
			}
			k := consts[op.Value]
			if k.Kind != chunk.ConstString && k.Kind != chunk.ConstLongString {
				continue
			}
			recs = append(recs, StringRefRecord{Func: f.Name, PC: inst.PC, Const: op.Value, Value: k.Str.Value})
		}
	}
	return recs
}
