package output

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"unlua/internal/chunk/chunktest"
	"unlua/internal/disasm"
	"unlua/internal/lasm"
	"unlua/internal/luafmt"
)

func TestWriteFileCommits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := WriteBytes(path, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "hello" {
		t.Fatalf("read = %q, %v", data, err)
	}
	assertOnly(t, dir, "a.txt")
}

func TestWriteFileAbortsOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	boom := errors.New("boom")
	err := WriteFile(path, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	assertOnly(t, dir)
}

func TestWriteFileReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := WriteDOT(path, "digraph {}\n"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "digraph {}\n" {
		t.Errorf("content = %q", data)
	}
}

func TestCreateAbort(t *testing.T) {
	dir := t.TempDir()
	f, err := Create(filepath.Join(dir, "x.lasm"))
	if err != nil {
		t.Fatal(err)
	}
	if !IsTemp(filepath.Base(f.TempName())) {
		t.Errorf("temp name %q not recognized", f.TempName())
	}
	f.Write([]byte("data"))
	f.Abort()
	f.Abort()
	if err := f.Commit(); err == nil {
		t.Error("Commit after Abort should fail")
	}
	assertOnly(t, dir)
}

func TestCreateMissingDir(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing", "x.lasm"))
	if !errors.Is(err, luafmt.ErrCacheWriteFailure) {
		t.Errorf("err = %v", err)
	}
}

func TestWriteLASM(t *testing.T) {
	l, err := disasm.Disassembler{}.Disassemble(chunktest.Lua53Loop())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "loop.lasm")
	if err := WriteLASM(path, l, lasm.Dumper{}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "\n.version 5.3\n") {
		t.Errorf("lasm = %q", data)
	}
}

func TestJSONLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edges.jsonl")
	recs := []disasm.CallEdgeRecord{
		{FromFunc: "main", PC: 8, Kind: "call", Callee: "inc", Func: "main/0"},
		{FromFunc: "main", PC: 16, Kind: "call", Callee: "print"},
	}
	if err := WriteJSONL(path, recs); err != nil {
		t.Fatal(err)
	}
	got, err := ReadJSONL[disasm.CallEdgeRecord](path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != recs[0] || got[1] != recs[1] {
		t.Errorf("got %+v", got)
	}
}

func TestIsTemp(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{".a.lasm.tmp-123", true},
		{"a.lasm", false},
		{"a.tmp-1.lasm", false},
		{".hidden", false},
	}
	for _, tt := range tests {
		if got := IsTemp(tt.name); got != tt.want {
			t.Errorf("IsTemp(%q) = %v", tt.name, got)
		}
	}
}

func assertOnly(t *testing.T, dir string, names ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	if strings.Join(got, ",") != strings.Join(names, ",") {
		t.Errorf("dir entries = %v, want %v", got, names)
	}
}
