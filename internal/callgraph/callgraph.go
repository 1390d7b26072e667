// Package callgraph converts disassembled Lua functions into lattice graphs.
package callgraph

import (
	"github.com/zboralski/lattice"

	"unlua/internal/disasm"
)

// FuncInfo holds the data needed to build call graph and CFG for one function.
type FuncInfo struct {
	Name  string
	Func  *disasm.Func
	CFG   disasm.FuncCFG
	Sites []disasm.CallSite
}

// Collect builds the per-function CFG and call sites of every function in l,
// in tree order.
func Collect(l *disasm.Listing) []FuncInfo {
	var funcs []FuncInfo
	l.Main.Walk(func(f *disasm.Func, _ int) {
		funcs = append(funcs, FuncInfo{
			Name:  f.Name,
			Func:  f,
			CFG:   disasm.BuildCFG(l.Table, f),
			Sites: disasm.CallSites(l.Table, f, disasm.DefaultWindow),
		})
	})
	return funcs
}

// callee picks the node name for a call site: the nested function path when
// the callee is a closure of this chunk, else the resolved global or field.
func callee(s disasm.CallSite) string {
	if s.Func != "" {
		return s.Func
	}
	return s.Callee
}

// BuildCallGraph constructs a lattice.Graph from disassembled functions.
// Each function becomes a node. Each resolved call site becomes an edge.
// Unresolved calls (no callee name) are skipped.
func BuildCallGraph(funcs []FuncInfo) *lattice.Graph {
	g := &lattice.Graph{}
	for _, f := range funcs {
		g.Nodes = append(g.Nodes, f.Name)
		for _, s := range f.Sites {
			c := callee(s)
			if c == "" {
				continue
			}
			g.Edges = append(g.Edges, lattice.Edge{Caller: f.Name, Callee: c})
		}
	}
	g.Dedup()
	return g
}

// BuildClosureGraph links every function to the nested functions it
// defines, following prototype nesting.
func BuildClosureGraph(l *disasm.Listing) *lattice.Graph {
	g := &lattice.Graph{}
	l.Main.Walk(func(f *disasm.Func, _ int) {
		g.Nodes = append(g.Nodes, f.Name)
		for _, child := range f.Children {
			g.Edges = append(g.Edges, lattice.Edge{Caller: f.Name, Callee: child.Name})
		}
	})
	g.Dedup()
	return g
}
