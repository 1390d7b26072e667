package disasm

import "unlua/internal/opcodes"

// Lua branch detection from opcode flow classes.
// These functions identify basic-block terminators and extract branch targets.

// BranchInfo describes a decoded branch instruction.
type BranchInfo struct {
	Target int  // absolute target pc (0 if return)
	Cond   bool // true if conditional (has fallthrough)
	IsRet  bool // true if RETURN
}

// DecodeBranch classifies inst under t.
// Returns nil if the instruction neither branches nor returns.
//
// Skip instructions (EQ, LT, LE, TEST, TESTSET, 5.1 TFORLOOP) branch
// conditionally to pc+2. LOADBOOL with C != 0 always skips.
func DecodeBranch(t *opcodes.Table, inst Inst) *BranchInfo {
	if inst.Word {
		return nil
	}
	info, ok := t.Lookup(inst.Op)
	if !ok {
		return nil
	}
	switch info.Flow {
	case opcodes.FlowReturn:
		return &BranchInfo{IsRet: true}
	case opcodes.FlowJump:
		return &BranchInfo{Target: jumpTarget(inst)}
	case opcodes.FlowCondJump:
		return &BranchInfo{Target: jumpTarget(inst), Cond: true}
	case opcodes.FlowSkip:
		return &BranchInfo{Target: inst.PC + 2, Cond: true}
	case opcodes.FlowSkipIfC:
		if t.Layout.C.Get(inst.Raw) != 0 {
			return &BranchInfo{Target: inst.PC + 2}
		}
	}
	return nil
}

func jumpTarget(inst Inst) int {
	for _, op := range inst.Operands {
		if op.Kind == OpJump {
			return op.Value
		}
	}
	return inst.PC + 1
}

// IsBranchTerminator returns true if the instruction terminates a basic block.
// CALL is not a terminator; TAILCALL is followed by a RETURN that is.
func IsBranchTerminator(t *opcodes.Table, inst Inst) bool {
	return DecodeBranch(t, inst) != nil
}
