// Package project handles unlua.toml project configuration and enumerates
// the bytecode files of a project.
package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"unlua/internal/luafmt"
)

// FileName is the project configuration file looked up in a project root.
const FileName = "unlua.toml"

var log = commonlog.GetLogger("unlua.project")

// Config represents an unlua.toml project configuration.
type Config struct {
	Project Meta   `toml:"project"`
	Source  Source `toml:"source"`
	Cache   Cache  `toml:"cache"`
	Index   Index  `toml:"index"`
	Log     Log    `toml:"log"`

	// Dir is the project root (set at load time).
	Dir string `toml:"-"`
}

// Meta contains project metadata.
type Meta struct {
	Name string `toml:"name"`
}

// Source configures where compiled chunks are read from.
type Source struct {
	Dir        string   `toml:"dir"`
	Extensions []string `toml:"extensions"`
	Exclude    []string `toml:"exclude"` // filepath.Match patterns on slash-separated relative paths
}

// Cache configures where LASM output is written.
type Cache struct {
	Dir string `toml:"dir"`
}

// Index configures the indexing pipeline.
type Index struct {
	Workers  int `toml:"workers"`
	MaxDepth int `toml:"max_depth"`
	MaxCount int `toml:"max_count"` // per-array element cap, 0 = input size only
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Defaults for absent configuration keys.
var (
	DefaultSourceDir  = "src"
	DefaultCacheDir   = filepath.Join(".unlua", "indexed")
	DefaultExtensions = []string{".luac", ".lua", ".out", ".lub"}
)

// Default returns the configuration used for a directory without unlua.toml.
func Default(dir string) (*Config, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("project: resolve %s: %w", dir, err)
	}
	c := &Config{Dir: abs}
	c.applyDefaults()
	return c, nil
}

// Load parses the unlua.toml file in dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("project: read %s: %w", path, err)
	}

	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("project: parse %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("%s: unknown key %s", path, key)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("project: resolve %s: %w", dir, err)
	}
	if c.Index.Workers < 0 {
		return nil, fmt.Errorf("project: %s: index.workers must not be negative", path)
	}
	if c.Index.MaxCount < 0 {
		return nil, fmt.Errorf("project: %s: index.max_count must not be negative", path)
	}
	c.applyDefaults()
	return &c, nil
}

// LoadOrDefault loads dir/unlua.toml, falling back to defaults when the
// file does not exist.
func LoadOrDefault(dir string) (*Config, error) {
	c, err := Load(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(dir)
	}
	return c, err
}

// FindAndLoad walks up from startDir to find an unlua.toml file,
// then loads and returns the config. Returns nil if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) applyDefaults() {
	if c.Project.Name == "" {
		c.Project.Name = filepath.Base(c.Dir)
	}
	if c.Source.Dir == "" {
		c.Source.Dir = DefaultSourceDir
	}
	if len(c.Source.Extensions) == 0 {
		c.Source.Extensions = append([]string(nil), DefaultExtensions...)
	}
	for i, ext := range c.Source.Extensions {
		ext = strings.ToLower(ext)
		if ext != "" && ext != "*" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Source.Extensions[i] = ext
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = DefaultCacheDir
	}
	if c.Index.Workers == 0 {
		c.Index.Workers = 1
	}
}

// SourceRoot returns the absolute source directory.
func (c *Config) SourceRoot() string { return c.abs(c.Source.Dir) }

// CacheRoot returns the absolute cache directory.
func (c *Config) CacheRoot() string { return c.abs(c.Cache.Dir) }

func (c *Config) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Dir, p)
}

// DecodeOptions returns the decoder limits configured for the project.
func (c *Config) DecodeOptions() luafmt.Options {
	return luafmt.Options{MaxDepth: c.Index.MaxDepth, MaxCount: c.Index.MaxCount}
}

// matchExt reports whether name carries one of the configured extensions.
func (c *Config) matchExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range c.Source.Extensions {
		if want == "*" || want == ext {
			return true
		}
	}
	return false
}

func (c *Config) excluded(rel string) bool {
	for _, pat := range c.Source.Exclude {
		if ok, _ := filepath.Match(pat, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}
