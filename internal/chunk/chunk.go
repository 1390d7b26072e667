// Package chunk decodes and encodes compiled Lua binary chunks.
package chunk

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"unlua/internal/luafmt"
)

// Signature is the 4-byte magic at the start of every binary chunk.
var Signature = [4]byte{0x1b, 'L', 'u', 'a'}

// Version is the header version byte: major in the high nibble, minor in the low.
type Version byte

const (
	Lua51 Version = 0x51
	Lua52 Version = 0x52
	Lua53 Version = 0x53
)

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", byte(v)>>4, byte(v)&0x0f)
}

// ParseVersion parses "5.1"-style version text.
func ParseVersion(s string) (Version, error) {
	major, minor, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return 0, fmt.Errorf("chunk: bad version %q", s)
	}
	ma, err1 := strconv.Atoi(major)
	mi, err2 := strconv.Atoi(minor)
	if err1 != nil || err2 != nil || ma < 0 || ma > 15 || mi < 0 || mi > 15 {
		return 0, fmt.Errorf("chunk: bad version %q", s)
	}
	return Version(ma<<4 | mi), nil
}

// Endianness is the declared byte order of multi-byte fields.
type Endianness byte

const (
	BigEndian    Endianness = 0
	LittleEndian Endianness = 1
)

func (e Endianness) String() string {
	if e == BigEndian {
		return "big"
	}
	return "little"
}

// ByteOrder returns the encoding/binary order for e.
func (e Endianness) ByteOrder() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Header holds the format parameters declared once per chunk.
// Every nested prototype uses these widths and this byte order.
type Header struct {
	Version         Version    `json:"version"`
	Format          byte       `json:"format"`
	Endianness      Endianness `json:"endianness"`
	IntSize         int        `json:"int_size"`
	SizeTSize       int        `json:"size_t_size"`
	InstructionSize int        `json:"instruction_size"`
	IntegerSize     int        `json:"integer_size,omitempty"` // lua_Integer width; 5.3 only
	NumberSize      int        `json:"number_size"`
	NumberIntegral  bool       `json:"number_integral"`
}

// Chunk is one decoded binary chunk: header plus root prototype.
type Chunk struct {
	Header       Header        `json:"header"`
	UpvalueCount byte          `json:"upvalue_count,omitempty"` // 5.3: main closure upvalue slots
	Main         *Prototype    `json:"-"`
	Diags        []luafmt.Diag `json:"diagnostics,omitempty"`
}

// String is a dumped Lua string. A string that is not Valid was dumped as
// NULL, which is distinct from the empty string on the wire.
type String struct {
	Value string
	Valid bool
}

// Str returns a valid String holding v.
func Str(v string) String { return String{Value: v, Valid: true} }

func (s String) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

// ConstKind tags a constant table entry.
type ConstKind byte

const (
	ConstNil ConstKind = iota
	ConstBool
	ConstNumber  // float lua_Number
	ConstInteger // lua_Integer (5.3) or integral lua_Number
	ConstString  // short string (every string before 5.3)
	ConstLongString
)

func (k ConstKind) String() string {
	switch k {
	case ConstNil:
		return "nil"
	case ConstBool:
		return "boolean"
	case ConstNumber:
		return "number"
	case ConstInteger:
		return "integer"
	case ConstString:
		return "string"
	case ConstLongString:
		return "longstring"
	}
	return fmt.Sprintf("ConstKind(%d)", byte(k))
}

// Constant is one constant table entry.
type Constant struct {
	Kind ConstKind
	Bool bool
	Int  int64
	Num  float64
	Str  String
}

func NilConst() Constant { return Constant{Kind: ConstNil} }
func BoolConst(b bool) Constant { return Constant{Kind: ConstBool, Bool: b} }
func IntConst(i int64) Constant { return Constant{Kind: ConstInteger, Int: i} }
func NumConst(f float64) Constant { return Constant{Kind: ConstNumber, Num: f} }
func StringConst(s string) Constant { return Constant{Kind: ConstString, Str: Str(s)} }
func LongStringConst(s string) Constant { return Constant{Kind: ConstLongString, Str: Str(s)} }

// Upvalue describes where a closure captures an upvalue from (5.2+).
type Upvalue struct {
	InStack byte
	Index   byte
}

// LocVar is a local variable debug record.
type LocVar struct {
	Name    String
	StartPC int64
	EndPC   int64
}

// DebugInfo holds the optional debug tables; stripped chunks leave them empty.
type DebugInfo struct {
	LineInfo     []int64 // aligned with Code when present
	LocVars      []LocVar
	UpvalueNames []String
}

// Prototype is one function body. Protos are owned exclusively by their parent.
type Prototype struct {
	Source          String
	LineDefined     int64
	LastLineDefined int64
	NumUpvalues     byte // 5.1 only; later versions use len(Upvalues)
	NumParams       byte
	IsVararg        byte
	MaxStackSize    byte
	Code            []uint32
	Constants       []Constant
	Upvalues        []Upvalue
	Protos          []*Prototype
	Debug           DebugInfo
}

// UpvalueLen returns the number of upvalues p declares under version v.
func (p *Prototype) UpvalueLen(v Version) int {
	if v == Lua51 {
		return int(p.NumUpvalues)
	}
	return len(p.Upvalues)
}

// UpvalueName returns the debug name of upvalue i, or "" when stripped.
func (p *Prototype) UpvalueName(i int) string {
	if i >= 0 && i < len(p.Debug.UpvalueNames) {
		return p.Debug.UpvalueNames[i].Value
	}
	return ""
}

// LocalName returns the name of the register-th active local at pc, if known.
func (p *Prototype) LocalName(register, pc int) (string, bool) {
	n := 0
	for _, lv := range p.Debug.LocVars {
		if lv.StartPC > int64(pc) {
			break
		}
		if int64(pc) < lv.EndPC {
			if n == register {
				return lv.Name.Value, true
			}
			n++
		}
	}
	return "", false
}

// Walk visits p and its nested prototypes depth-first in declared order.
// It stops early and returns false when fn returns false.
func (p *Prototype) Walk(fn func(p *Prototype, depth int) bool) bool {
	type frame struct {
		p     *Prototype
		depth int
	}
	stack := []frame{{p, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(f.p, f.depth) {
			return false
		}
		for i := len(f.p.Protos) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.p.Protos[i], f.depth + 1})
		}
	}
	return true
}

// Stats summarizes a chunk's prototype tree.
type Stats struct {
	Prototypes   int  `json:"prototypes"`
	MaxDepth     int  `json:"max_depth"`
	Instructions int  `json:"instructions"`
	Constants    int  `json:"constants"`
	Stripped     bool `json:"stripped"`
}

// Summarize walks c and returns its Stats.
func Summarize(c *Chunk) Stats {
	var st Stats
	if c == nil || c.Main == nil {
		return st
	}
	st.Stripped = true
	c.Main.Walk(func(p *Prototype, depth int) bool {
		st.Prototypes++
		if depth > st.MaxDepth {
			st.MaxDepth = depth
		}
		st.Instructions += len(p.Code)
		st.Constants += len(p.Constants)
		if len(p.Debug.LineInfo) > 0 {
			st.Stripped = false
		}
		return true
	})
	return st
}

func (v Version) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (e Endianness) MarshalText() ([]byte, error) { return []byte(e.String()), nil }
