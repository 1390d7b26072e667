package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"unlua/internal/chunk"
	"unlua/internal/chunk/chunktest"
)

func writeFixture(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRoundtripFixtures(t *testing.T) {
	for name, c := range chunktest.All() {
		t.Run(name, func(t *testing.T) {
			data, err := chunk.Encode(c)
			if err != nil {
				t.Fatal(err)
			}
			msg, err := roundtrip(writeFixture(t, name+".luac", data))
			if err != nil || msg != "" {
				t.Errorf("roundtrip = %q, %v", msg, err)
			}
		})
	}
}

func TestRoundtripTrailingBytes(t *testing.T) {
	data := append(chunktest.Lua51Hello(), 0xde, 0xad)
	msg, err := roundtrip(writeFixture(t, "hello.luac", data))
	if err != nil {
		t.Fatal(err)
	}
	if msg != " (2 trailing bytes ignored)" {
		t.Errorf("msg = %q", msg)
	}
}

func TestRoundtripRejectsGarbage(t *testing.T) {
	if _, err := roundtrip(writeFixture(t, "junk.luac", []byte("junk"))); err == nil {
		t.Error("expected error")
	}
}

func TestFirstDiff(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", -1},
		{"abc", "abc", -1},
		{"abc", "abd", 2},
		{"xbc", "abc", 0},
	}
	for _, tt := range tests {
		if got := firstDiff([]byte(tt.a), []byte(tt.b)); got != tt.want {
			t.Errorf("firstDiff(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestProgressLinePlain(t *testing.T) {
	var buf bytes.Buffer
	p := &progressLine{w: &buf, lastStep: -1}
	for _, v := range []float64{0, 3, 9.9, 10, 15, 55, 99.9, 100} {
		p.Report(v, "x")
	}
	p.finish()
	want := "[  0%] x\n[ 10%] x\n[ 55%] x\n[ 99%] x\n[100%] x\n"
	if buf.String() != want {
		t.Errorf("output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestProgressLineTTY(t *testing.T) {
	var buf bytes.Buffer
	p := &progressLine{w: &buf, tty: true, width: 20, lastStep: -1}
	p.Report(50, "decoding a/very/long/path.luac (1/2)")
	p.finish()
	out := buf.String()
	if !strings.HasPrefix(out, "\r\033[K[ 50.0%] ") || !strings.HasSuffix(out, "\n") {
		t.Errorf("output = %q", out)
	}
	if line := strings.TrimSuffix(strings.TrimPrefix(out, "\r\033[K"), "\n"); len(line) != 19 {
		t.Errorf("line not truncated: %q", line)
	}
}

func TestLoadProjectConfigExplicitDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadProjectConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SourceRoot() != filepath.Join(dir, "src") || cfg.Index.Workers != 1 {
		t.Errorf("cfg = %+v", cfg)
	}
}
