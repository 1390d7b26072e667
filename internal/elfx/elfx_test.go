package elfx

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"unlua/internal/chunk/chunktest"
)

const (
	rodataAddr = 0x4000
	hostPrefix = "HOSTDATA"
)

// buildELF returns a minimal little-endian ELF64 shared object whose
// .rodata holds payload, with a symbol named sym covering payload[skip:].
func buildELF(t *testing.T, payload []byte, skip int, sym string) []byte {
	t.Helper()
	le := binary.LittleEndian
	shstr := []byte("\x00.rodata\x00.symtab\x00.strtab\x00.shstrtab\x00")
	strtab := append([]byte{0}, append([]byte(sym), 0)...)

	var body bytes.Buffer
	body.Write(payload)
	align := func() {
		for (64+body.Len())%8 != 0 {
			body.WriteByte(0)
		}
	}
	align()
	symOff := 64 + body.Len()
	syms := []elf.Sym64{
		{},
		{Name: 1, Info: byte(elf.STB_GLOBAL)<<4 | byte(elf.STT_OBJECT), Shndx: 1,
			Value: rodataAddr + uint64(skip), Size: uint64(len(payload) - skip)},
	}
	if err := binary.Write(&body, le, syms); err != nil {
		t.Fatal(err)
	}
	strOff := 64 + body.Len()
	body.Write(strtab)
	shstrOff := 64 + body.Len()
	body.Write(shstr)
	align()
	shOff := 64 + body.Len()

	sections := []elf.Section64{
		{},
		{Name: 1, Type: uint32(elf.SHT_PROGBITS), Flags: uint64(elf.SHF_ALLOC), Addr: rodataAddr,
			Off: 64, Size: uint64(len(payload)), Addralign: 1},
		{Name: 9, Type: uint32(elf.SHT_SYMTAB), Off: uint64(symOff), Size: 48, Link: 3, Info: 1,
			Addralign: 8, Entsize: 24},
		{Name: 17, Type: uint32(elf.SHT_STRTAB), Off: uint64(strOff), Size: uint64(len(strtab)), Addralign: 1},
		{Name: 25, Type: uint32(elf.SHT_STRTAB), Off: uint64(shstrOff), Size: uint64(len(shstr)), Addralign: 1},
	}
	hdr := elf.Header64{
		Type:      uint16(elf.ET_DYN),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     uint64(shOff),
		Ehsize:    64,
		Phentsize: 56,
		Shentsize: 64,
		Shnum:     uint16(len(sections)),
		Shstrndx:  4,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var out bytes.Buffer
	if err := binary.Write(&out, le, hdr); err != nil {
		t.Fatal(err)
	}
	out.Write(body.Bytes())
	if err := binary.Write(&out, le, sections); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

func hostImage(t *testing.T) []byte {
	payload := append([]byte(hostPrefix), chunktest.Lua51Hello()...)
	return buildELF(t, payload, len(hostPrefix), "luac_blob")
}

func TestOpenValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.so")
	if err := os.WriteFile(path, hostImage(t), 0644); err != nil {
		t.Fatal(err)
	}
	ef, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ef.Close()

	if ef.FileSize() == 0 {
		t.Error("file size is 0")
	}
	var names []string
	for _, s := range ef.Sections() {
		names = append(names, s.Name)
	}
	if len(names) != 4 || names[0] != ".rodata" {
		t.Errorf("sections = %v", names)
	}
}

func TestOpenRejectsNonELF(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "notelf")
	if err := os.WriteFile(tmp, []byte("not an ELF file at all"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(tmp)
	if !errors.Is(err, ErrNotELF) {
		t.Fatalf("err = %v", err)
	}
}

func TestSectionAt(t *testing.T) {
	data := hostImage(t)
	ef, err := NewFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	defer ef.Close()

	s, err := ef.SectionAt(64 + 3)
	if err != nil || s.Name != ".rodata" || !s.Alloc {
		t.Errorf("SectionAt = %+v, %v", s, err)
	}
	if _, err := ef.SectionAt(0); !errors.Is(err, ErrNoSection) {
		t.Errorf("ELF header offset: err = %v", err)
	}
	va, ok := ef.OffsetToVA(64 + 8)
	if !ok || va != rodataAddr+8 {
		t.Errorf("OffsetToVA = 0x%x, %v", va, ok)
	}
	if got := ef.SymbolAt(va + 4); got != "luac_blob" {
		t.Errorf("SymbolAt = %q", got)
	}
	if got := ef.SymbolAt(rodataAddr); got != "" {
		t.Errorf("SymbolAt(prefix) = %q", got)
	}
}

func TestProbe(t *testing.T) {
	hits, err := Probe(hostImage(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %+v", hits)
	}
	h := hits[0]
	if h.Offset != 64+len(hostPrefix) || h.Section != ".rodata" || h.Symbol != "luac_blob" {
		t.Errorf("hit = %+v", h)
	}
	if h.VA != rodataAddr+uint64(len(hostPrefix)) {
		t.Errorf("VA = 0x%x", h.VA)
	}

	// Non-ELF hosts still report offsets.
	raw := append([]byte("garbage"), chunktest.Lua51Hello()...)
	hits, err = Probe(raw)
	if err != nil || len(hits) != 1 || hits[0].Offset != 7 || hits[0].Section != "" {
		t.Errorf("raw hits = %+v, %v", hits, err)
	}
}

func FuzzELFOpen(f *testing.F) {
	f.Add([]byte("\x7fELF\x02\x01\x01\x00\x00\x00\x00\x00\x00\x00\x00\x00"))
	f.Add([]byte("not an elf at all"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		ef, err := NewFile(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return
		}
		ef.Sections()
		ef.SectionAt(0)
		ef.SymbolAt(0)
		ef.Close()
	})
}
