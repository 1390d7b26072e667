package indexer

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"unlua/internal/luafmt"
	"unlua/internal/output"
)

// Ext is the extension of cached LASM files.
const Ext = ".lasm"

// job is one planned file: where it comes from and where its LASM goes.
type job struct {
	path   string // absolute source path
	rel    string // slash-separated path relative to the source root
	target string // absolute target path

	// claimedBy is the rel of an earlier root-level file with the same
	// target; such a job fails instead of taking another name.
	claimedBy string
}

// targetName derives the cache file name from a relative path alone.
// Files directly under the source root map to <stem>.lasm, files in
// subdirectories to <stem>-<fnv32a(rel)>.lasm.
func targetName(rel string) string {
	base := path.Base(rel)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if !strings.Contains(rel, "/") {
		return stem + Ext
	}
	return fmt.Sprintf("%s-%08x%s", stem, fnv32a(rel), Ext)
}

// plan computes the target of every file. Root-level files that differ
// only in extension share a name; the first in enumeration order keeps it.
func plan(files []string, sourceRoot, cacheRoot string) []job {
	jobs := make([]job, 0, len(files))
	claimed := make(map[string]string, len(files))
	for _, p := range files {
		rel, err := filepath.Rel(sourceRoot, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = filepath.Base(p)
		}
		rel = filepath.ToSlash(rel)

		name := targetName(rel)
		j := job{path: p, rel: rel, target: filepath.Join(cacheRoot, name)}
		if prev, ok := claimed[name]; ok {
			j.claimedBy = prev
		} else {
			claimed[name] = rel
		}
		jobs = append(jobs, j)
	}
	return jobs
}

func fnv32a(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// cachePopulated reports whether a regular file exists directly under root.
// Subdirectories (the manifest lives in one) and in-progress temp files do
// not count.
func cachePopulated(root string) (bool, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("indexer: read cache root %s: %w: %w", root, luafmt.ErrCacheWriteFailure, err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() && !output.IsTemp(e.Name()) {
			return true, nil
		}
	}
	return false, nil
}

// targetExists reports whether a regular file is already at path.
func targetExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
