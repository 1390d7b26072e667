package callgraph

import (
	"fmt"

	"github.com/zboralski/lattice"

	"unlua/internal/disasm"
)

// BuildCFG constructs a lattice.CFGGraph from disassembled functions.
// Each FuncInfo's disasm.FuncCFG is mapped to lattice types.
func BuildCFG(funcs []FuncInfo) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}
	for _, f := range funcs {
		cg.Funcs = append(cg.Funcs, convertFuncCFG(&f.CFG, f.Sites))
	}
	return cg
}

// BuildFuncCFG builds a single-function lattice.FuncCFG.
// Returns the FuncCFG and the number of basic blocks (for filtering trivial functions).
func BuildFuncCFG(f FuncInfo) (*lattice.FuncCFG, int) {
	return convertFuncCFG(&f.CFG, f.Sites), len(f.CFG.Blocks)
}

// convertFuncCFG maps a disasm.FuncCFG to a lattice.FuncCFG.
// Call sites are mapped into blocks by pc.
func convertFuncCFG(dcfg *disasm.FuncCFG, sites []disasm.CallSite) *lattice.FuncCFG {
	siteByPC := make(map[int]disasm.CallSite, len(sites))
	for _, s := range sites {
		siteByPC[s.PC] = s
	}

	lcfg := &lattice.FuncCFG{Name: dcfg.Name}
	for _, db := range dcfg.Blocks {
		lb := &lattice.BasicBlock{
			ID:    db.ID,
			Start: db.Start,
			End:   db.End,
			Term:  db.IsTerm,
		}
		for _, ds := range db.Succs {
			lb.Succs = append(lb.Succs, lattice.Successor{BlockID: ds.BlockID, Cond: ds.Cond})
		}
		for pc := db.Start; pc < db.End; pc++ {
			s, ok := siteByPC[pc]
			if !ok {
				continue
			}
			name := callee(s)
			if name == "" {
				name = fmt.Sprintf("%s@%d", s.Kind, s.PC)
			}
			lb.Calls = append(lb.Calls, lattice.CallSite{Offset: pc, Callee: name})
		}
		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}
