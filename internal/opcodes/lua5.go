package opcodes

import "unlua/internal/chunk"

func init() {
	register(newTable(chunk.Lua51, lua51Ops))
	register(newTable(chunk.Lua52, lua52Ops))
	register(newTable(chunk.Lua53, lua53Ops))
}

// Lua 5.1 lopcodes.h order.
var lua51Ops = []OpInfo{
	abc("MOVE", reg, reg, unused),
	abx("LOADK", reg, kst),
	abc("LOADBOOL", reg, imm, imm).flow(FlowSkipIfC),
	abc("LOADNIL", reg, reg, unused),
	abc("GETUPVAL", reg, upv, unused),
	abx("GETGLOBAL", reg, kst),
	abc("GETTABLE", reg, reg, rk),
	abx("SETGLOBAL", reg, kst),
	abc("SETUPVAL", reg, upv, unused),
	abc("SETTABLE", reg, rk, rk),
	abc("NEWTABLE", reg, imm, imm),
	abc("SELF", reg, reg, rk),
	abc("ADD", reg, rk, rk),
	abc("SUB", reg, rk, rk),
	abc("MUL", reg, rk, rk),
	abc("DIV", reg, rk, rk),
	abc("MOD", reg, rk, rk),
	abc("POW", reg, rk, rk),
	abc("UNM", reg, reg, unused),
	abc("NOT", reg, reg, unused),
	abc("LEN", reg, reg, unused),
	abc("CONCAT", reg, reg, reg),
	asbx("JMP", unused, FlowJump),
	abc("EQ", imm, rk, rk).flow(FlowSkip),
	abc("LT", imm, rk, rk).flow(FlowSkip),
	abc("LE", imm, rk, rk).flow(FlowSkip),
	abc("TEST", reg, unused, imm).flow(FlowSkip),
	abc("TESTSET", reg, reg, imm).flow(FlowSkip),
	abc("CALL", reg, imm, imm).call(),
	abc("TAILCALL", reg, imm, imm).call(),
	abc("RETURN", reg, imm, unused).flow(FlowReturn),
	asbx("FORLOOP", reg, FlowCondJump),
	asbx("FORPREP", reg, FlowJump),
	abc("TFORLOOP", reg, unused, imm).flow(FlowSkip),
	abc("SETLIST", reg, imm, imm).extra(ExtraRawIfC0),
	abc("CLOSE", reg, unused, unused),
	abx("CLOSURE", reg, proto),
	abc("VARARG", reg, imm, unused),
}

// Lua 5.2 lopcodes.h order.
var lua52Ops = []OpInfo{
	abc("MOVE", reg, reg, unused),
	abx("LOADK", reg, kst),
	abx("LOADKX", reg, unused).extra(ExtraArg),
	abc("LOADBOOL", reg, imm, imm).flow(FlowSkipIfC),
	abc("LOADNIL", reg, imm, unused),
	abc("GETUPVAL", reg, upv, unused),
	abc("GETTABUP", reg, upv, rk),
	abc("GETTABLE", reg, reg, rk),
	abc("SETTABUP", upv, rk, rk),
	abc("SETUPVAL", reg, upv, unused),
	abc("SETTABLE", reg, rk, rk),
	abc("NEWTABLE", reg, imm, imm),
	abc("SELF", reg, reg, rk),
	abc("ADD", reg, rk, rk),
	abc("SUB", reg, rk, rk),
	abc("MUL", reg, rk, rk),
	abc("DIV", reg, rk, rk),
	abc("MOD", reg, rk, rk),
	abc("POW", reg, rk, rk),
	abc("UNM", reg, reg, unused),
	abc("NOT", reg, reg, unused),
	abc("LEN", reg, reg, unused),
	abc("CONCAT", reg, reg, reg),
	asbx("JMP", imm, FlowJump),
	abc("EQ", imm, rk, rk).flow(FlowSkip),
	abc("LT", imm, rk, rk).flow(FlowSkip),
	abc("LE", imm, rk, rk).flow(FlowSkip),
	abc("TEST", reg, unused, imm).flow(FlowSkip),
	abc("TESTSET", reg, reg, imm).flow(FlowSkip),
	abc("CALL", reg, imm, imm).call(),
	abc("TAILCALL", reg, imm, imm).call(),
	abc("RETURN", reg, imm, unused).flow(FlowReturn),
	asbx("FORLOOP", reg, FlowCondJump),
	asbx("FORPREP", reg, FlowJump),
	abc("TFORCALL", reg, unused, imm),
	asbx("TFORLOOP", reg, FlowCondJump),
	abc("SETLIST", reg, imm, imm).extra(ExtraArgIfC0),
	abx("CLOSURE", reg, proto),
	abc("VARARG", reg, imm, unused),
	{Name: "EXTRAARG", Mode: IAx, A: imm},
}

// Lua 5.3 lopcodes.h order.
var lua53Ops = []OpInfo{
	abc("MOVE", reg, reg, unused),
	abx("LOADK", reg, kst),
	abx("LOADKX", reg, unused).extra(ExtraArg),
	abc("LOADBOOL", reg, imm, imm).flow(FlowSkipIfC),
	abc("LOADNIL", reg, imm, unused),
	abc("GETUPVAL", reg, upv, unused),
	abc("GETTABUP", reg, upv, rk),
	abc("GETTABLE", reg, reg, rk),
	abc("SETTABUP", upv, rk, rk),
	abc("SETUPVAL", reg, upv, unused),
	abc("SETTABLE", reg, rk, rk),
	abc("NEWTABLE", reg, imm, imm),
	abc("SELF", reg, reg, rk),
	abc("ADD", reg, rk, rk),
	abc("SUB", reg, rk, rk),
	abc("MUL", reg, rk, rk),
	abc("MOD", reg, rk, rk),
	abc("POW", reg, rk, rk),
	abc("DIV", reg, rk, rk),
	abc("IDIV", reg, rk, rk),
	abc("BAND", reg, rk, rk),
	abc("BOR", reg, rk, rk),
	abc("BXOR", reg, rk, rk),
	abc("SHL", reg, rk, rk),
	abc("SHR", reg, rk, rk),
	abc("UNM", reg, reg, unused),
	abc("BNOT", reg, reg, unused),
	abc("NOT", reg, reg, unused),
	abc("LEN", reg, reg, unused),
	abc("CONCAT", reg, reg, reg),
	asbx("JMP", imm, FlowJump),
	abc("EQ", imm, rk, rk).flow(FlowSkip),
	abc("LT", imm, rk, rk).flow(FlowSkip),
	abc("LE", imm, rk, rk).flow(FlowSkip),
	abc("TEST", reg, unused, imm).flow(FlowSkip),
	abc("TESTSET", reg, reg, imm).flow(FlowSkip),
	abc("CALL", reg, imm, imm).call(),
	abc("TAILCALL", reg, imm, imm).call(),
	abc("RETURN", reg, imm, unused).flow(FlowReturn),
	asbx("FORLOOP", reg, FlowCondJump),
	asbx("FORPREP", reg, FlowJump),
	abc("TFORCALL", reg, unused, imm),
	asbx("TFORLOOP", reg, FlowCondJump),
	abc("SETLIST", reg, imm, imm).extra(ExtraArgIfC0),
	abx("CLOSURE", reg, proto),
	abc("VARARG", reg, imm, unused),
	{Name: "EXTRAARG", Mode: IAx, A: imm},
}
