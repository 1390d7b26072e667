// Profile definitions for Lua binary chunk format variations.
package chunk

import (
	"fmt"

	"unlua/internal/luafmt"
)

// StringStyle selects how strings are length-prefixed.
type StringStyle int

const (
	// StringSizeT: size_t length including a trailing NUL; 0 encodes NULL.
	StringSizeT StringStyle = iota
	// StringBytePrefix: one length byte (len+1), 0xFF escapes to a size_t
	// length; no NUL is stored; 0 encodes NULL.
	StringBytePrefix
)

// UpvalueLayout places the upvalue descriptor table inside a prototype.
type UpvalueLayout int

const (
	UpvaluesNone         UpvalueLayout = iota // 5.1: only a count byte, names in debug
	UpvaluesAfterProtos                       // 5.2
	UpvaluesBeforeProtos                      // 5.3
)

// Profile holds per-version layout parameters for chunk parsing.
// Decode and Encode consult the profile instead of branching on version.
type Profile struct {
	Version Version

	HeaderEndianByte   bool // explicit endianness byte after format
	HeaderIntegralFlag bool // lua_Number integral flag after sizes
	HeaderTail         bool // LUAC_TAIL after sizes
	HeaderCheckData    bool // LUAC_DATA after format
	HeaderCheckValues  bool // LUAC_INT + LUAC_NUM after sizes; endianness is inferred
	HeaderIntegerSize  bool // separate lua_Integer width byte
	UpvalueCountByte   bool // main closure upvalue count byte before the root prototype

	Strings       StringStyle
	SourceFirst   bool // source string opens each prototype
	SourceInDebug bool // source string opens the debug section
	NupsByte      bool // upvalue count byte after lastlinedefined
	Upvalues      UpvalueLayout
	TaggedNumbers bool // separate float/integer and short/long string tags
}

// Constant tags as they appear on the wire.
const (
	tagNil       = 0x00
	tagBoolean   = 0x01
	tagNumber    = 0x03
	tagString    = 0x04
	tagInteger   = 0x13 // 5.3 LUA_TNUMINT
	tagLongStr   = 0x14 // 5.3 LUA_TLNGSTR
	luacTail     = "\x19\x93\r\n\x1a\n"
	luacInt      = 0x5678
	luacNum      = 370.5
	shortStrMark = 0xFF
)

var profiles = map[Version]*Profile{
	Lua51: {
		Version:            Lua51,
		HeaderEndianByte:   true,
		HeaderIntegralFlag: true,
		Strings:            StringSizeT,
		SourceFirst:        true,
		NupsByte:           true,
		Upvalues:           UpvaluesNone,
	},
	Lua52: {
		Version:            Lua52,
		HeaderEndianByte:   true,
		HeaderIntegralFlag: true,
		HeaderTail:         true,
		Strings:            StringSizeT,
		SourceInDebug:      true,
		Upvalues:           UpvaluesAfterProtos,
	},
	Lua53: {
		Version:           Lua53,
		HeaderCheckData:   true,
		HeaderCheckValues: true,
		HeaderIntegerSize: true,
		UpvalueCountByte:  true,
		Strings:           StringBytePrefix,
		SourceFirst:       true,
		Upvalues:          UpvaluesBeforeProtos,
		TaggedNumbers:     true,
	},
}

// ProfileFor returns the layout profile for v.
func ProfileFor(v Version) (*Profile, error) {
	p, ok := profiles[v]
	if !ok {
		return nil, fmt.Errorf("chunk: version 0x%02x: %w", byte(v), luafmt.ErrUnsupportedVersion)
	}
	return p, nil
}

// SupportedVersions lists the versions with a profile, oldest first.
func SupportedVersions() []Version {
	return []Version{Lua51, Lua52, Lua53}
}

// DefaultHeader returns the header a stock 64-bit little-endian luac
// would produce for v.
func DefaultHeader(v Version) Header {
	h := Header{
		Version:         v,
		Endianness:      LittleEndian,
		IntSize:         4,
		SizeTSize:       8,
		InstructionSize: 4,
		NumberSize:      8,
	}
	if v == Lua53 {
		h.IntegerSize = 8
	}
	return h
}

// Validate checks that h describes a layout this package can read and write.
func (h Header) Validate() error {
	p, err := ProfileFor(h.Version)
	if err != nil {
		return err
	}
	bad := func(field string, v int) error {
		return fmt.Errorf("chunk: %s %d: %w", field, v, luafmt.ErrUnsupportedVersion)
	}
	if h.Endianness != LittleEndian && h.Endianness != BigEndian {
		return fmt.Errorf("chunk: endianness %d: %w", h.Endianness, luafmt.ErrMalformedHeader)
	}
	if h.IntSize != 4 && h.IntSize != 8 {
		return bad("int size", h.IntSize)
	}
	if h.SizeTSize != 4 && h.SizeTSize != 8 {
		return bad("size_t size", h.SizeTSize)
	}
	if h.InstructionSize != 4 {
		return bad("instruction size", h.InstructionSize)
	}
	if h.NumberIntegral {
		if !p.HeaderIntegralFlag {
			return fmt.Errorf("chunk: integral lua_Number in %s: %w", h.Version, luafmt.ErrUnsupportedVersion)
		}
		if h.NumberSize < 1 || h.NumberSize > 8 {
			return bad("number size", h.NumberSize)
		}
	} else if h.NumberSize != 4 && h.NumberSize != 8 {
		return bad("number size", h.NumberSize)
	}
	if p.HeaderIntegerSize {
		if h.IntegerSize != 4 && h.IntegerSize != 8 {
			return bad("integer size", h.IntegerSize)
		}
	} else if h.IntegerSize != 0 {
		return bad("integer size", h.IntegerSize)
	}
	return nil
}
