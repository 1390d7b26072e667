package project

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Project is an enumerated project: its configuration and the ordered list
// of source files to index.
type Project struct {
	cfg   *Config
	files []string
}

// Open enumerates the source files of cfg. Files are regular files under the
// source root carrying a configured extension, in lexical path order.
// Hidden directories and the cache root are skipped.
func Open(cfg *Config) (*Project, error) {
	root := cfg.SourceRoot()
	cache := cfg.CacheRoot()
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || path == cache) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !cfg.matchExt(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if cfg.excluded(filepath.ToSlash(rel)) {
			log.Debugf("exclude %s", rel)
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("project: enumerate %s: %w", root, err)
	}
	log.Infof("project %s: %d files under %s", cfg.Project.Name, len(files), root)
	return &Project{cfg: cfg, files: files}, nil
}

// Name returns the project name.
func (p *Project) Name() string { return p.cfg.Project.Name }

// Files returns the absolute paths of the source files, in index order.
func (p *Project) Files() []string { return p.files }

// SourceRoot returns the absolute source directory.
func (p *Project) SourceRoot() string { return p.cfg.SourceRoot() }

// CacheRoot returns the absolute cache directory.
func (p *Project) CacheRoot() string { return p.cfg.CacheRoot() }

// Config returns the project configuration.
func (p *Project) Config() *Config { return p.cfg }
