package disasm

import (
	"unlua/internal/chunk"
	"unlua/internal/opcodes"
)

// DefaultWindow is the register tracking window used by CallSites.
const DefaultWindow = 16

// CallSite is a CALL or TAILCALL with its resolved callee.
type CallSite struct {
	PC     int    `json:"pc"`
	Kind   string `json:"kind"`             // "call" or "tailcall"
	Callee string `json:"callee,omitempty"` // "print", "string.format", "obj:method"
	Func   string `json:"func,omitempty"`   // nested function path when the callee is a closure of this chunk
}

// RegDef records the last definition of a register within the window.
type RegDef struct {
	Name string // provenance, e.g. "print" or "t.insert"
	Func string // closure path for CLOSURE definitions
	Age  int    // instructions since definition
}

// RegTracker tracks last-def provenance for Lua registers.
// Definitions older than the window are expired.
type RegTracker struct {
	defs [256]RegDef
	w    int
}

// NewRegTracker creates a tracker with the given window size.
func NewRegTracker(w int) *RegTracker {
	return &RegTracker{w: w}
}

// Tick ages all definitions by 1 and expires those beyond the window.
func (rt *RegTracker) Tick() {
	for i := range rt.defs {
		if rt.defs[i].Name != "" || rt.defs[i].Func != "" {
			rt.defs[i].Age++
			if rt.defs[i].Age > rt.w {
				rt.defs[i] = RegDef{}
			}
		}
	}
}

// Define records that register r was defined with the given provenance.
func (rt *RegTracker) Define(r int, def RegDef) {
	if r < 0 || r >= len(rt.defs) {
		return
	}
	def.Age = 0
	rt.defs[r] = def
}

// Lookup returns the definition of register r, zero if expired or unknown.
func (rt *RegTracker) Lookup(r int) RegDef {
	if r < 0 || r >= len(rt.defs) {
		return RegDef{}
	}
	return rt.defs[r]
}

// Kill clears the definition for a register.
func (rt *RegTracker) Kill(r int) {
	if r < 0 || r >= len(rt.defs) {
		return
	}
	rt.defs[r] = RegDef{}
}

// KillFrom clears every register from r upwards.
func (rt *RegTracker) KillFrom(r int) {
	for ; r >= 0 && r < len(rt.defs); r++ {
		rt.defs[r] = RegDef{}
	}
}

// opcodes that read register A without writing it
var readsA = map[string]bool{
	"setglobal": true, "setupval": true, "settable": true, "test": true,
	"return": true, "setlist": true, "close": true,
}

// opcodes that may write registers above A
var writesRange = map[string]bool{
	"call": true, "tailcall": true, "vararg": true, "loadnil": true,
	"tforcall": true, "tforloop": true, "forloop": true, "forprep": true,
}

// CallSites scans f for CALL and TAILCALL and resolves each callee from the
// nearest preceding load of the called register within window w.
func CallSites(t *opcodes.Table, f *Func, w int) []CallSite {
	rt := NewRegTracker(w)
	p := f.Proto
	var sites []CallSite
	skip := 0

	for _, inst := range f.Insts {
		if skip > 0 {
			// 5.1 closure capture pseudo-instructions
			skip--
			rt.Tick()
			continue
		}
		if inst.Word {
			rt.Tick()
			continue
		}
		info := t.Ops[inst.Op]
		name := info.Mnemonic()
		a, aReg := regA(info, inst)

		if info.Call {
			def := rt.Lookup(a)
			sites = append(sites, CallSite{PC: inst.PC, Kind: name, Callee: def.Name, Func: def.Func})
			rt.KillFrom(a)
			rt.Tick()
			continue
		}
		if !aReg || readsA[name] {
			rt.Tick()
			continue
		}

		var def RegDef
		switch name {
		case "getglobal":
			if s, ok := stringConst(p, inst.Operands[1].Value); ok {
				def.Name = s
			}
		case "gettabup":
			key := inst.Operands[2]
			if s, ok := stringConst(p, key.Value); ok && key.Kind == OpConst {
				env := p.UpvalueName(inst.Operands[1].Value)
				if env == "_ENV" || env == "" && inst.Operands[1].Value == 0 {
					def.Name = s
				} else {
					def.Name = env + "." + s
				}
			}
		case "gettable", "self":
			key := inst.Operands[2]
			if s, ok := stringConst(p, key.Value); ok && key.Kind == OpConst {
				base := rt.Lookup(inst.Operands[1].Value).Name
				if base == "" {
					base = "?"
				}
				sep := "."
				if name == "self" {
					sep = ":"
				}
				def.Name = base + sep + s
			}
		case "move":
			def = rt.Lookup(inst.Operands[1].Value)
		case "getupval":
			def.Name = p.UpvalueName(inst.Operands[1].Value)
		case "closure":
			idx := inst.Operands[1].Value
			if idx < len(f.Children) {
				child := f.Children[idx]
				def.Func = child.Name
				if local, ok := p.LocalName(a, inst.PC+1); ok {
					def.Name = local
				}
				if t.Version == chunk.Lua51 {
					skip = int(child.Proto.NumUpvalues)
				}
			}
		}

		if name == "self" {
			rt.Kill(a + 1)
		}
		if writesRange[name] {
			rt.KillFrom(a)
		} else if def.Name != "" || def.Func != "" {
			rt.Define(a, def)
		} else {
			rt.Kill(a)
		}
		rt.Tick()
	}
	return sites
}

// regA returns operand A when it is a register.
func regA(info opcodes.OpInfo, inst Inst) (int, bool) {
	if info.A != opcodes.ArgReg || len(inst.Operands) == 0 {
		return 0, false
	}
	return inst.Operands[0].Value, true
}
