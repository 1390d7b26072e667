package disasm

import (
	"sort"

	"unlua/internal/opcodes"
)

// BasicBlock represents a sequence of instructions with a single entry point.
type BasicBlock struct {
	ID      int
	Start   int    // pc of the first instruction (inclusive)
	End     int    // pc past the last instruction (exclusive)
	Succs   []Succ // successor edges
	IsEntry bool
	IsTerm  bool // ends with RETURN or falls off the end of the function
}

// Succ describes a control-flow successor edge.
type Succ struct {
	BlockID int
	Cond    string // "" = unconditional, "T" = taken/true, "F" = fallthrough/false
}

// FuncCFG is a per-function control flow graph.
type FuncCFG struct {
	Name   string
	Blocks []BasicBlock
	Insts  []Inst
}

// BuildCFG constructs a control flow graph from a function's instruction stream.
// The algorithm:
//  1. Find block leaders: pc 0, branch targets, instructions after terminators.
//  2. Partition instructions into blocks by leaders.
//  3. Compute successor edges from each block's last instruction.
func BuildCFG(t *opcodes.Table, f *Func) FuncCFG {
	insts := f.Insts
	if len(insts) == 0 {
		return FuncCFG{Name: f.Name, Insts: insts}
	}
	inRange := func(pc int) bool { return pc >= 0 && pc < len(insts) }

	// Pass 1: Identify block leaders.
	leaders := map[int]bool{0: true}
	for i, inst := range insts {
		bi := DecodeBranch(t, inst)
		if bi == nil {
			continue
		}
		if i+1 < len(insts) {
			leaders[i+1] = true
		}
		if !bi.IsRet && inRange(bi.Target) {
			leaders[bi.Target] = true
		}
	}

	sorted := make([]int, 0, len(leaders))
	for pc := range leaders {
		sorted = append(sorted, pc)
	}
	sort.Ints(sorted)

	// Pass 2: Partition into blocks.
	blocks := make([]BasicBlock, len(sorted))
	leaderToBlock := make(map[int]int, len(sorted))
	for i, start := range sorted {
		end := len(insts)
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		blocks[i] = BasicBlock{ID: i, Start: start, End: end, IsEntry: start == 0}
		leaderToBlock[start] = i
	}

	// Pass 3: Compute successors.
	for i := range blocks {
		blk := &blocks[i]
		last := insts[blk.End-1]
		bi := DecodeBranch(t, last)
		next, hasNext := leaderToBlock[blk.End]

		switch {
		case bi == nil:
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: next})
			} else {
				blk.IsTerm = true
			}
		case bi.IsRet:
			blk.IsTerm = true
		default:
			target, hasTarget := leaderToBlock[bi.Target]
			if bi.Cond {
				if hasTarget {
					blk.Succs = append(blk.Succs, Succ{BlockID: target, Cond: "T"})
				}
				if hasNext {
					blk.Succs = append(blk.Succs, Succ{BlockID: next, Cond: "F"})
				}
			} else if hasTarget {
				blk.Succs = append(blk.Succs, Succ{BlockID: target})
			} else {
				blk.IsTerm = true
			}
		}
	}

	return FuncCFG{Name: f.Name, Blocks: blocks, Insts: insts}
}
