// Package chunktest provides synthetic binary chunks for tests.
//
// Instruction words are assembled by hand with the 5.1-5.3 field layout
// (OP:6 A:8 C:9 B:9, Bx:18 at bit 14, Ax:26 at bit 6).
package chunktest

import (
	"encoding/binary"
	"strings"
	"testing"

	"unlua/internal/chunk"
	"unlua/internal/luafmt"
)

const sBxBias = 131071

// ABC packs an iABC instruction word.
func ABC(op, a, b, c int) uint32 {
	return uint32(op) | uint32(a)<<6 | uint32(c)<<14 | uint32(b)<<23
}

// ABx packs an iABx instruction word.
func ABx(op, a, bx int) uint32 {
	return uint32(op) | uint32(a)<<6 | uint32(bx)<<14
}

// AsBx packs an iAsBx instruction word.
func AsBx(op, a, sbx int) uint32 {
	return ABx(op, a, sbx+sBxBias)
}

// Ax packs an iAx instruction word.
func Ax(op, ax int) uint32 {
	return uint32(op) | uint32(ax)<<6
}

// RK marks a constant index as an RK operand.
func RK(k int) int { return k | 256 }

// Bytes encodes c or fails the test.
func Bytes(tb testing.TB, c *chunk.Chunk) []byte {
	tb.Helper()
	data, err := chunk.Encode(c)
	if err != nil {
		tb.Fatalf("encode fixture: %v", err)
	}
	return data
}

// Lua51Hello returns the raw bytes luac 5.1 produces for print("hi")
// from @hello.lua on a 64-bit little-endian host.
// Built field by field, independent of chunk.Encode.
func Lua51Hello() []byte {
	w := luafmt.NewWriter(binary.LittleEndian)
	w.WriteBytes([]byte{0x1b, 'L', 'u', 'a', 0x51, 0, 1, 4, 8, 4, 8, 0})
	str := func(s string) {
		w.WriteUint(uint64(len(s)+1), 8)
		w.WriteBytes([]byte(s))
		w.WriteByte(0)
	}
	str("@hello.lua")
	w.WriteInt(0, 4) // linedefined
	w.WriteInt(0, 4) // lastlinedefined
	w.WriteBytes([]byte{0, 0, 2, 2})

	code := Lua51HelloCode()
	w.WriteInt(int64(len(code)), 4)
	for _, ins := range code {
		w.WriteUint(uint64(ins), 4)
	}
	w.WriteInt(2, 4)
	w.WriteByte(4)
	str("print")
	w.WriteByte(4)
	str("hi")
	w.WriteInt(0, 4) // protos

	w.WriteInt(int64(len(code)), 4)
	for range code {
		w.WriteInt(1, 4)
	}
	w.WriteInt(0, 4) // locvars
	w.WriteInt(0, 4) // upvalue names
	return w.Bytes()
}

// Lua51HelloCode is the instruction sequence of Lua51Hello.
func Lua51HelloCode() []uint32 {
	return []uint32{
		ABx(5, 0, 0),     // GETGLOBAL 0 "print"
		ABx(1, 1, 1),     // LOADK 1 "hi"
		ABC(28, 0, 2, 1), // CALL 0 2 1
		ABC(30, 0, 1, 0), // RETURN 0 1
	}
}

// Lua51Closure returns a 5.1 chunk with a nested closure over an upvalue,
// a SETLIST data word and a CLOSE.
func Lua51Closure(e chunk.Endianness) *chunk.Chunk {
	h := chunk.DefaultHeader(chunk.Lua51)
	h.Endianness = e
	inner := &chunk.Prototype{
		LineDefined:     2,
		LastLineDefined: 3,
		NumUpvalues:     1,
		MaxStackSize:    2,
		Code: []uint32{
			ABC(4, 0, 0, 0),      // GETUPVAL 0 0
			ABC(12, 0, 0, RK(0)), // ADD 0 0 k0
			ABC(8, 0, 0, 0),      // SETUPVAL 0 0
			ABC(30, 0, 2, 0),     // RETURN 0 2
			ABC(30, 0, 1, 0),     // RETURN 0 1
		},
		Constants: []chunk.Constant{chunk.NumConst(1)},
		Debug: chunk.DebugInfo{
			LineInfo:     []int64{2, 2, 2, 3, 3},
			UpvalueNames: []chunk.String{chunk.Str("n")},
		},
	}
	main := &chunk.Prototype{
		Source:       chunk.Str("=stdin"),
		IsVararg:     2,
		MaxStackSize: 3,
		Code: []uint32{
			ABx(1, 0, 1),     // LOADK 0 k1
			ABx(36, 1, 0),    // CLOSURE 1 f0
			ABC(0, 0, 0, 0),  // MOVE 0 0 (upvalue capture)
			ABx(7, 1, 0),     // SETGLOBAL 1 "counter"
			ABC(10, 2, 0, 0), // NEWTABLE 2 0 0
			ABC(34, 2, 0, 0), // SETLIST 2 0 0
			0x00000007,       // SETLIST block number
			ABC(35, 0, 0, 0), // CLOSE 0
			ABC(30, 0, 1, 0), // RETURN 0 1
		},
		Constants: []chunk.Constant{
			chunk.StringConst("counter"),
			chunk.NumConst(0),
			chunk.NumConst(1.5),
		},
		Protos: []*chunk.Prototype{inner},
		Debug: chunk.DebugInfo{
			LineInfo: []int64{1, 3, 3, 3, 4, 4, 4, 5, 5},
			LocVars:  []chunk.LocVar{{Name: chunk.Str("n"), StartPC: 1, EndPC: 9}},
		},
	}
	return &chunk.Chunk{Header: h, Main: main}
}

// Lua52Stripped returns a stripped 5.2 chunk using LOADKX, SETLIST with an
// EXTRAARG count, a comparison and forward jumps.
func Lua52Stripped() *chunk.Chunk {
	main := &chunk.Prototype{
		IsVararg:     1,
		MaxStackSize: 4,
		Code: []uint32{
			ABx(2, 0, 0),         // LOADKX 0
			Ax(39, 1),            // EXTRAARG 1
			ABC(24, 1, 0, RK(2)), // EQ 1 0 k2
			AsBx(23, 0, 1),       // JMP 0 -> 5
			ABC(3, 1, 1, 0),      // LOADBOOL 1 1 0
			ABC(11, 1, 2, 0),     // NEWTABLE 1 2 0
			ABx(1, 2, 0),         // LOADK 2 k0
			ABC(4, 3, 0, 0),      // LOADNIL 3 0
			ABC(36, 1, 2, 0),     // SETLIST 1 2 0
			Ax(39, 1),            // EXTRAARG 1
			ABC(27, 0, 0, 1),     // TEST 0 1
			AsBx(23, 0, 0),       // JMP 0 -> 12
			ABC(31, 0, 1, 0),     // RETURN 0 1
		},
		Constants: []chunk.Constant{
			chunk.StringConst("a"),
			chunk.NumConst(10),
			chunk.BoolConst(false),
			chunk.NilConst(),
		},
		Upvalues: []chunk.Upvalue{{InStack: 1, Index: 0}},
	}
	return &chunk.Chunk{Header: chunk.DefaultHeader(chunk.Lua52), Main: main}
}

// LongString is the long string constant carried by Lua53Loop.
var LongString = strings.Repeat("long string constant ", 3)

// Lua53Loop returns a 5.3 chunk with a numeric for loop, a nested function
// (itself holding a nested function), integer, float and string constants.
func Lua53Loop() *chunk.Chunk {
	leaf := &chunk.Prototype{
		LineDefined:     3,
		LastLineDefined: 3,
		MaxStackSize:    2,
		Code:            []uint32{ABC(38, 0, 1, 0)}, // RETURN 0 1
	}
	inc := &chunk.Prototype{
		LineDefined:     2,
		LastLineDefined: 4,
		NumParams:       1,
		MaxStackSize:    2,
		Code: []uint32{
			ABC(13, 1, 0, RK(0)), // ADD 1 0 k0
			ABC(38, 1, 2, 0),     // RETURN 1 2
			ABC(38, 0, 1, 0),     // RETURN 0 1
		},
		Constants: []chunk.Constant{chunk.IntConst(1)},
		Protos:    []*chunk.Prototype{leaf},
		Debug: chunk.DebugInfo{
			LineInfo: []int64{2, 2, 4},
			LocVars:  []chunk.LocVar{{Name: chunk.Str("a"), StartPC: 0, EndPC: 3}},
		},
	}
	main := &chunk.Prototype{
		Source:       chunk.Str("@loop.lua"),
		IsVararg:     1,
		MaxStackSize: 8,
		Code: []uint32{
			ABC(11, 0, 0, 0),     // NEWTABLE 0 0 0
			ABx(44, 1, 0),        // CLOSURE 1 f0
			ABx(1, 2, 0),         // LOADK 2 1
			ABx(1, 3, 1),         // LOADK 3 3
			ABx(1, 4, 0),         // LOADK 4 1
			AsBx(40, 2, 5),       // FORPREP 2 -> 11
			ABC(0, 6, 1, 0),      // MOVE 6 1
			ABC(0, 7, 5, 0),      // MOVE 7 5
			ABC(36, 6, 2, 2),     // CALL 6 2 2
			ABC(15, 6, 6, RK(2)), // MUL 6 6 2.5
			ABC(10, 0, 5, 6),     // SETTABLE 0 5 6
			AsBx(39, 2, -6),      // FORLOOP 2 -> 6
			ABC(6, 2, 0, RK(3)),  // GETTABUP 2 0 "print"
			ABC(0, 3, 0, 0),      // MOVE 3 0
			ABx(1, 4, 4),         // LOADK 4 "x"
			ABx(1, 5, 5),         // LOADK 5 long string
			ABC(36, 2, 4, 1),     // CALL 2 4 1
			ABC(38, 0, 1, 0),     // RETURN 0 1
		},
		Constants: []chunk.Constant{
			chunk.IntConst(1),
			chunk.IntConst(3),
			chunk.NumConst(2.5),
			chunk.StringConst("print"),
			chunk.StringConst("x"),
			chunk.LongStringConst(LongString),
		},
		Upvalues: []chunk.Upvalue{{InStack: 1, Index: 0}},
		Protos:   []*chunk.Prototype{inc},
		Debug: chunk.DebugInfo{
			LineInfo: []int64{1, 4, 5, 5, 5, 5, 6, 6, 6, 6, 6, 5, 8, 8, 8, 8, 8, 8},
			LocVars: []chunk.LocVar{
				{Name: chunk.Str("t"), StartPC: 1, EndPC: 18},
				{Name: chunk.Str("inc"), StartPC: 2, EndPC: 18},
				{Name: chunk.Str("(for index)"), StartPC: 5, EndPC: 12},
				{Name: chunk.Str("(for limit)"), StartPC: 5, EndPC: 12},
				{Name: chunk.Str("(for step)"), StartPC: 5, EndPC: 12},
				{Name: chunk.Str("i"), StartPC: 6, EndPC: 11},
			},
			UpvalueNames: []chunk.String{chunk.Str("_ENV")},
		},
	}
	return &chunk.Chunk{Header: chunk.DefaultHeader(chunk.Lua53), UpvalueCount: 1, Main: main}
}

// All returns every model fixture keyed by a short name.
func All() map[string]*chunk.Chunk {
	return map[string]*chunk.Chunk{
		"lua51-closure-le": Lua51Closure(chunk.LittleEndian),
		"lua51-closure-be": Lua51Closure(chunk.BigEndian),
		"lua52-stripped":   Lua52Stripped(),
		"lua53-loop":       Lua53Loop(),
	}
}
