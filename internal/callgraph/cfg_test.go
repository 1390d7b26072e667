package callgraph

import (
	"strings"
	"testing"

	"github.com/zboralski/lattice/render"

	"unlua/internal/chunk/chunktest"
	"unlua/internal/disasm"
)

func loopListing(t *testing.T) *disasm.Listing {
	t.Helper()
	l, err := disasm.Disassembler{}.Disassemble(chunktest.Lua53Loop())
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestBuildCFG_DOTOutput(t *testing.T) {
	// main of the loop fixture:
	//
	// B0 [0,6):   setup, FORPREP -> B2
	// B1 [6,11):  loop body, calls inc
	// B2 [11,12): FORLOOP, T -> B1, F -> B3
	// B3 [12,18): print(...), RETURN
	funcs := Collect(loopListing(t))
	if len(funcs) != 3 {
		t.Fatalf("expected 3 functions, got %d", len(funcs))
	}
	cfg := BuildCFG(funcs)
	f := cfg.Funcs[0]
	if f.Name != "main" {
		t.Errorf("func name = %q", f.Name)
	}
	if len(f.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(f.Blocks))
	}

	if b0 := f.Blocks[0]; len(b0.Succs) != 1 || b0.Succs[0].BlockID != 2 || len(b0.Calls) != 0 {
		t.Errorf("B0 = %+v", b0)
	}
	b1 := f.Blocks[1]
	if len(b1.Calls) != 1 || b1.Calls[0].Callee != "main/0" || b1.Calls[0].Offset != 8 {
		t.Errorf("B1 calls = %+v", b1.Calls)
	}
	if b2 := f.Blocks[2]; len(b2.Succs) != 2 || b2.Succs[0].Cond != "T" || b2.Succs[1].Cond != "F" {
		t.Errorf("B2 succs = %+v", b2.Succs)
	}
	b3 := f.Blocks[3]
	if len(b3.Calls) != 1 || b3.Calls[0].Callee != "print" || !b3.Term {
		t.Errorf("B3 = %+v", b3)
	}

	dot := render.DOTCFG(cfg, "unlua CFG example")
	if dot == "" {
		t.Error("expected non-empty DOT output")
	}

	lf, n := BuildFuncCFG(funcs[1])
	if n != 2 || lf.Name != "main/0" {
		t.Errorf("main/0: %d blocks, name %q", n, lf.Name)
	}
}

func TestBuildCallGraph_DOTOutput(t *testing.T) {
	funcs := Collect(loopListing(t))
	cg := BuildCallGraph(funcs)
	if len(cg.Nodes) != 3 {
		t.Errorf("expected 3 nodes, got %d", len(cg.Nodes))
	}
	edges := map[string]bool{}
	for _, e := range cg.Edges {
		edges[e.Caller+"->"+e.Callee] = true
	}
	if !edges["main->main/0"] || !edges["main->print"] || len(edges) != 2 {
		t.Errorf("edges = %v", edges)
	}
	if dot := render.DOT(cg, "unlua call graph example"); dot == "" {
		t.Error("expected non-empty DOT output")
	}
}

func TestBuildClosureGraph(t *testing.T) {
	g := BuildClosureGraph(loopListing(t))
	var got []string
	for _, e := range g.Edges {
		got = append(got, e.Caller+"->"+e.Callee)
	}
	if strings.Join(got, ",") != "main->main/0,main/0->main/0/0" {
		t.Errorf("edges = %v", got)
	}
}

func TestUnresolvedCallLabel(t *testing.T) {
	dcfg := disasm.FuncCFG{Name: "f", Blocks: []disasm.BasicBlock{{ID: 0, Start: 0, End: 2, IsTerm: true}}}
	lf := convertFuncCFG(&dcfg, []disasm.CallSite{{PC: 1, Kind: "call"}})
	if len(lf.Blocks[0].Calls) != 1 || lf.Blocks[0].Calls[0].Callee != "call@1" {
		t.Errorf("calls = %+v", lf.Blocks[0].Calls)
	}
}
