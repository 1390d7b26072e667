package project

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), `
[project]
name = "game"

[source]
dir = "scripts"
extensions = ["luac", ".BYTES"]
exclude = ["vendor/*"]

[cache]
dir = "/tmp/unlua-cache"

[index]
workers = 4
max_depth = 50
max_count = 100000

[log]
verbosity = 2
`)
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Project.Name != "game" {
		t.Errorf("name = %q", c.Project.Name)
	}
	if c.SourceRoot() != filepath.Join(c.Dir, "scripts") {
		t.Errorf("source root = %q", c.SourceRoot())
	}
	if c.CacheRoot() != "/tmp/unlua-cache" {
		t.Errorf("cache root = %q", c.CacheRoot())
	}
	if strings.Join(c.Source.Extensions, " ") != ".luac .bytes" {
		t.Errorf("extensions = %v", c.Source.Extensions)
	}
	opts := c.DecodeOptions()
	if c.Index.Workers != 4 || opts.MaxDepth != 50 || opts.MaxCount != 100000 || c.Log.Verbosity != 2 {
		t.Errorf("config = %+v", c)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "[project]\n")
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Project.Name != filepath.Base(dir) {
		t.Errorf("name = %q", c.Project.Name)
	}
	if c.SourceRoot() != filepath.Join(c.Dir, "src") {
		t.Errorf("source root = %q", c.SourceRoot())
	}
	if c.CacheRoot() != filepath.Join(c.Dir, ".unlua", "indexed") {
		t.Errorf("cache root = %q", c.CacheRoot())
	}
	if strings.Join(c.Source.Extensions, " ") != ".luac .lua .out .lub" {
		t.Errorf("extensions = %v", c.Source.Extensions)
	}
	if c.Index.Workers != 1 {
		t.Errorf("workers = %d", c.Index.Workers)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[project\nname = 1"},
		{"type", "[index]\nworkers = \"many\""},
		{"negative", "[index]\nworkers = -1"},
		{"negative count", "[index]\nmax_count = -1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, FileName), tt.content)
			if _, err := Load(dir); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	c, err := LoadOrDefault(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Source.Dir != "src" || c.Index.Workers != 1 {
		t.Errorf("config = %+v", c)
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "[project]\nname = \"up\"\n")
	deep := filepath.Join(dir, "src", "a", "b")
	if err := os.MkdirAll(deep, 0755); err != nil {
		t.Fatal(err)
	}
	c, err := FindAndLoad(deep)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Project.Name != "up" {
		t.Fatalf("config = %+v", c)
	}
}

func TestOpenEnumerates(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	for _, name := range []string{
		"b.luac",
		"a.LUA",
		"sub/c.out",
		"sub/notes.txt",
		".hidden/d.luac",
		"vendor/e.luac",
	} {
		writeFile(t, filepath.Join(src, name), "x")
	}
	c, err := Default(dir)
	if err != nil {
		t.Fatal(err)
	}
	c.Source.Exclude = []string{"vendor/*"}
	p, err := Open(c)
	if err != nil {
		t.Fatal(err)
	}
	var rels []string
	for _, f := range p.Files() {
		rel, _ := filepath.Rel(p.SourceRoot(), f)
		rels = append(rels, filepath.ToSlash(rel))
	}
	if got := strings.Join(rels, ","); got != "a.LUA,b.luac,sub/c.out" {
		t.Errorf("files = %s", got)
	}
	if p.Name() != filepath.Base(dir) || p.CacheRoot() != c.CacheRoot() {
		t.Errorf("project = %s %s", p.Name(), p.CacheRoot())
	}
}

func TestOpenSkipsCacheInsideSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.luac"), "x")
	writeFile(t, filepath.Join(dir, "out", "a.luac"), "x")
	c, err := Default(dir)
	if err != nil {
		t.Fatal(err)
	}
	c.Source.Dir = "."
	c.Cache.Dir = "out"
	p, err := Open(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Files()) != 1 {
		t.Errorf("files = %v", p.Files())
	}
}

func TestOpenMissingSource(t *testing.T) {
	c, err := Default(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(c); err == nil {
		t.Error("expected error for missing source dir")
	}
}
