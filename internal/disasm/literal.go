package disasm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"unlua/internal/chunk"
)

// ConstLiteral renders a constant value as LASM literal text.
// Floats always carry a '.', an exponent, or an inf/nan spelling so they
// never read back as integers. A null string constant renders as null.
func ConstLiteral(k chunk.Constant) string {
	switch k.Kind {
	case chunk.ConstNil:
		return "nil"
	case chunk.ConstBool:
		return strconv.FormatBool(k.Bool)
	case chunk.ConstInteger:
		return strconv.FormatInt(k.Int, 10)
	case chunk.ConstNumber:
		return FormatNumber(k.Num)
	case chunk.ConstString, chunk.ConstLongString:
		return QuoteString(k.Str)
	}
	return fmt.Sprintf("<%s>", k.Kind)
}

// QuoteString renders a possibly-null string; null renders as null.
func QuoteString(s chunk.String) string {
	if !s.Valid {
		return "null"
	}
	return strconv.Quote(s.Value)
}

// FormatNumber renders a float so that it parses back to the same bits.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return fmt.Sprintf("nan(0x%016x)", math.Float64bits(f))
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// ConstLabels returns the operand text for each constant of p: the literal
// when it is unique in the table, otherwise kN.
func ConstLabels(p *chunk.Prototype) []string {
	lits := make([]string, len(p.Constants))
	seen := make(map[string]int, len(p.Constants))
	for i, k := range p.Constants {
		lits[i] = ConstLiteral(k)
		seen[lits[i]]++
	}
	for i, lit := range lits {
		if seen[lit] > 1 {
			lits[i] = fmt.Sprintf("k%d", i)
		}
	}
	return lits
}
