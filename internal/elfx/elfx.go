// Package elfx provides ELF helpers for locating Lua chunks embedded in
// host executables and shared libraries.
package elfx

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"unlua/internal/chunk"
)

var (
	ErrNotELF    = errors.New("elfx: not an ELF file")
	ErrNoSection = errors.New("elfx: no section covers offset")
)

// File wraps a debug/elf.File.
type File struct {
	ELF    *elf.File
	raw    io.ReaderAt
	closer io.Closer
	size   int64
	syms   []elf.Symbol // sorted by Value, lazily loaded
}

// Open opens an ELF file of any class and machine.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfx: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("elfx: stat: %w", err)
	}
	ef, err := NewFile(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	ef.closer = f
	return ef, nil
}

// NewFile reads an ELF image from r. The caller keeps ownership of r
// unless it was opened by Open.
func NewFile(r io.ReaderAt, size int64) (*File, error) {
	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}
	return &File{ELF: ef, raw: r, size: size}, nil
}

// IsELF reports whether data starts with the ELF magic.
func IsELF(data []byte) bool {
	return bytes.HasPrefix(data, []byte(elf.ELFMAG))
}

// Close releases resources.
func (f *File) Close() error {
	err := f.ELF.Close()
	if f.closer != nil {
		if cerr := f.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// FileSize returns the size of the underlying file.
func (f *File) FileSize() int64 { return f.size }

// ReadAt reads bytes from the underlying file at the given file offset.
func (f *File) ReadAt(buf []byte, off int64) (int, error) {
	return f.raw.ReadAt(buf, off)
}

// SectionInfo describes a section with file contents.
type SectionInfo struct {
	Name   string
	Offset uint64
	Size   uint64
	Addr   uint64
	Alloc  bool // mapped at run time
}

// Sections returns every section backed by file data, in header order.
func (f *File) Sections() []SectionInfo {
	var secs []SectionInfo
	for _, s := range f.ELF.Sections {
		if s.Type == elf.SHT_NULL || s.Type == elf.SHT_NOBITS || s.Size == 0 {
			continue
		}
		secs = append(secs, SectionInfo{
			Name:   s.Name,
			Offset: s.Offset,
			Size:   s.Size,
			Addr:   s.Addr,
			Alloc:  s.Flags&elf.SHF_ALLOC != 0,
		})
	}
	return secs
}

// SectionAt returns the section whose file range contains off.
func (f *File) SectionAt(off uint64) (SectionInfo, error) {
	for _, s := range f.Sections() {
		if off >= s.Offset && off-s.Offset < s.Size {
			return s, nil
		}
	}
	return SectionInfo{}, fmt.Errorf("%w: 0x%x", ErrNoSection, off)
}

// OffsetToVA converts a file offset inside an allocated section to its
// virtual address.
func (f *File) OffsetToVA(off uint64) (uint64, bool) {
	s, err := f.SectionAt(off)
	if err != nil || !s.Alloc {
		return 0, false
	}
	return s.Addr + (off - s.Offset), true
}

// SymbolAt returns the name of the data or function symbol covering va.
// Static symbols are preferred; dynamic symbols are used when the file is
// stripped.
func (f *File) SymbolAt(va uint64) string {
	if f.syms == nil {
		syms, err := f.ELF.Symbols()
		if err != nil || len(syms) == 0 {
			syms, _ = f.ELF.DynamicSymbols()
		}
		f.syms = make([]elf.Symbol, 0, len(syms))
		for _, s := range syms {
			if s.Name != "" && s.Value != 0 {
				f.syms = append(f.syms, s)
			}
		}
		sort.Slice(f.syms, func(i, j int) bool { return f.syms[i].Value < f.syms[j].Value })
	}
	i := sort.Search(len(f.syms), func(i int) bool { return f.syms[i].Value > va }) - 1
	for ; i >= 0; i-- {
		s := f.syms[i]
		if va == s.Value || va-s.Value < s.Size {
			return s.Name
		}
		if s.Size != 0 {
			break
		}
	}
	return ""
}

// Hit is an embedded chunk located inside a host file.
type Hit struct {
	chunk.ProbeHit
	Section string `json:"section,omitempty"`
	VA      uint64 `json:"va,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
}

// Probe scans data for embedded chunks. When data is an ELF image each hit
// also names the containing section and, if known, the covering symbol.
func Probe(data []byte) ([]Hit, error) {
	probes := chunk.ProbeAll(data)
	hits := make([]Hit, len(probes))
	for i, p := range probes {
		hits[i].ProbeHit = p
	}
	if !IsELF(data) || len(hits) == 0 {
		return hits, nil
	}
	ef, err := NewFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return hits, err
	}
	defer ef.Close()
	for i := range hits {
		off := uint64(hits[i].Offset)
		s, err := ef.SectionAt(off)
		if err != nil {
			continue
		}
		hits[i].Section = s.Name
		if va, ok := ef.OffsetToVA(off); ok {
			hits[i].VA = va
			hits[i].Symbol = ef.SymbolAt(va)
		}
	}
	return hits, nil
}
