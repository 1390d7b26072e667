package disasm

import (
	"testing"

	"unlua/internal/chunk"
	"unlua/internal/chunk/chunktest"
	"unlua/internal/luafmt"
)

func TestBuildCFG_Linear(t *testing.T) {
	c, err := chunk.Decode(chunktest.Lua51Hello(), luafmt.Options{})
	if err != nil {
		t.Fatal(err)
	}
	l := mustListing(t, c)
	cfg := BuildCFG(l.Table, l.Main)
	if len(cfg.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(cfg.Blocks))
	}
	blk := cfg.Blocks[0]
	if blk.Start != 0 || blk.End != 4 {
		t.Errorf("block range = [%d,%d), want [0,4)", blk.Start, blk.End)
	}
	if !blk.IsTerm || !blk.IsEntry {
		t.Errorf("block = %+v", blk)
	}
	if len(blk.Succs) != 0 {
		t.Errorf("succs = %v, want none", blk.Succs)
	}
}

func TestBuildCFG_Skips(t *testing.T) {
	l := mustListing(t, chunktest.Lua52Stripped())
	cfg := BuildCFG(l.Table, l.Main)

	// leaders: 0, 3 (after EQ), 4 (EQ target, after JMP), 5 (JMP target),
	// 11 (after TEST), 12 (TEST target, JMP target)
	wantRanges := [][2]int{{0, 3}, {3, 4}, {4, 5}, {5, 11}, {11, 12}, {12, 13}}
	if len(cfg.Blocks) != len(wantRanges) {
		t.Fatalf("blocks = %d, want %d: %+v", len(cfg.Blocks), len(wantRanges), cfg.Blocks)
	}
	for i, r := range wantRanges {
		if b := cfg.Blocks[i]; b.Start != r[0] || b.End != r[1] {
			t.Errorf("block %d = [%d,%d), want [%d,%d)", i, b.Start, b.End, r[0], r[1])
		}
	}

	// EQ block: T -> skip to block 2, F -> block 1
	succ := cfg.Blocks[0].Succs
	if len(succ) != 2 || succ[0] != (Succ{BlockID: 2, Cond: "T"}) || succ[1] != (Succ{BlockID: 1, Cond: "F"}) {
		t.Errorf("EQ succs = %+v", succ)
	}
	// JMP block: unconditional to block 3
	if succ := cfg.Blocks[1].Succs; len(succ) != 1 || succ[0] != (Succ{BlockID: 3}) {
		t.Errorf("JMP succs = %+v", succ)
	}
	// LOADBOOL falls through
	if succ := cfg.Blocks[2].Succs; len(succ) != 1 || succ[0] != (Succ{BlockID: 3}) {
		t.Errorf("fallthrough succs = %+v", succ)
	}
	if !cfg.Blocks[5].IsTerm {
		t.Error("RETURN block should be terminal")
	}
}

func TestBuildCFG_Loop(t *testing.T) {
	l := mustListing(t, chunktest.Lua53Loop())
	cfg := BuildCFG(l.Table, l.Main)

	// leaders: 0, 6 (FORPREP fallthrough, FORLOOP target), 11 (FORPREP target), 12
	wantRanges := [][2]int{{0, 6}, {6, 11}, {11, 12}, {12, 18}}
	if len(cfg.Blocks) != len(wantRanges) {
		t.Fatalf("blocks = %+v", cfg.Blocks)
	}
	for i, r := range wantRanges {
		if b := cfg.Blocks[i]; b.Start != r[0] || b.End != r[1] {
			t.Errorf("block %d = [%d,%d)", i, b.Start, b.End)
		}
	}
	if succ := cfg.Blocks[0].Succs; len(succ) != 1 || succ[0].BlockID != 2 {
		t.Errorf("FORPREP succs = %+v", succ)
	}
	succ := cfg.Blocks[2].Succs
	if len(succ) != 2 || succ[0] != (Succ{BlockID: 1, Cond: "T"}) || succ[1] != (Succ{BlockID: 3, Cond: "F"}) {
		t.Errorf("FORLOOP succs = %+v", succ)
	}
}

func TestBuildCFG_Empty(t *testing.T) {
	tab := mustTable(t, chunk.Lua53)
	cfg := BuildCFG(tab, &Func{Name: "empty", Proto: &chunk.Prototype{}})
	if len(cfg.Blocks) != 0 || cfg.Name != "empty" {
		t.Errorf("cfg = %+v", cfg)
	}
}
