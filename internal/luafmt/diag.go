// Package luafmt provides shared types, byte streams and diagnostics for
// Lua binary chunk parsing.
package luafmt

import "fmt"

// DiagKind classifies a diagnostic message.
type DiagKind string

const (
	DiagTrailing    DiagKind = "trailing"
	DiagNonstandard DiagKind = "nonstandard"
	DiagStripped    DiagKind = "stripped"
)

// Diag records a non-fatal issue encountered during parsing.
type Diag struct {
	Offset uint64   `json:"offset"`
	Kind   DiagKind `json:"kind"`
	Msg    string   `json:"msg"`
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] 0x%x: %s", d.Kind, d.Offset, d.Msg)
}

// Diags accumulates diagnostics.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(offset uint64, kind DiagKind, msg string) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(offset uint64, kind DiagKind, format string, args ...any) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }

// Options controls parsing behavior across packages.
type Options struct {
	MaxDepth int // nested prototype cap; 0 = use default
	MaxCount int // per-array element cap; 0 = bounded by input size only
}

// DefaultMaxDepth is the default nested prototype cap.
const DefaultMaxDepth = 200

func (o Options) EffectiveMaxDepth() int {
	if o.MaxDepth > 0 {
		return o.MaxDepth
	}
	return DefaultMaxDepth
}
