package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"

	"unlua/internal/luafmt"
	"unlua/internal/output"
)

// ManifestDir is the cache subdirectory holding run metadata.
const ManifestDir = ".unlua"

// ManifestName is the file name of the last run manifest.
const ManifestName = "manifest.cbor"

// Manifest records the outcome of one index run.
type Manifest struct {
	RunID     string         `cbor:"run_id" json:"run_id"`
	Project   string         `cbor:"project" json:"project"`
	Started   time.Time      `cbor:"started" json:"started"`
	Finished  time.Time      `cbor:"finished" json:"finished"`
	Workers   int            `cbor:"workers" json:"workers"`
	Cancelled bool           `cbor:"cancelled,omitempty" json:"cancelled,omitempty"`
	Files     []ManifestFile `cbor:"files" json:"files"`
}

// ManifestFile is the recorded outcome of one file.
type ManifestFile struct {
	Path   string `cbor:"path" json:"path"`
	Target string `cbor:"target" json:"target"`
	State  string `cbor:"state" json:"state"`
	Kind   string `cbor:"kind,omitempty" json:"kind,omitempty"`
	Error  string `cbor:"error,omitempty" json:"error,omitempty"`
	SHA256 string `cbor:"sha256,omitempty" json:"sha256,omitempty"`
}

var manifestEncMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("indexer: failed to create CBOR enc mode: %v", err))
	}
	manifestEncMode = em
}

// ManifestPath returns the manifest location for a cache root.
func ManifestPath(cacheRoot string) string {
	return filepath.Join(cacheRoot, ManifestDir, ManifestName)
}

// NewManifest summarizes r.
func NewManifest(r *Result, workers int) *Manifest {
	m := &Manifest{
		RunID:     r.RunID,
		Project:   r.Project,
		Started:   r.Started,
		Finished:  r.Finished,
		Workers:   workers,
		Cancelled: r.Cancelled,
		Files:     make([]ManifestFile, 0, len(r.Files)),
	}
	for _, f := range r.Files {
		mf := ManifestFile{Path: f.Path, Target: f.Target, State: f.State.String(), SHA256: f.SHA256}
		if f.Err != nil {
			mf.Kind = luafmt.Kind(f.Err)
			mf.Error = f.Err.Error()
		}
		m.Files = append(m.Files, mf)
	}
	return m
}

// MarshalManifest serializes m to canonical CBOR.
func MarshalManifest(m *Manifest) ([]byte, error) {
	return manifestEncMode.Marshal(m)
}

// UnmarshalManifest deserializes a manifest.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("indexer: unmarshal manifest: %w", err)
	}
	return &m, nil
}

// WriteManifest stores m under cacheRoot.
func WriteManifest(cacheRoot string, m *Manifest) error {
	data, err := MarshalManifest(m)
	if err != nil {
		return fmt.Errorf("indexer: marshal manifest: %w", err)
	}
	dir := filepath.Join(cacheRoot, ManifestDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("indexer: mkdir %s: %w: %w", dir, luafmt.ErrCacheWriteFailure, err)
	}
	return output.WriteBytes(ManifestPath(cacheRoot), data)
}

// ReadManifest loads the manifest of the last run under cacheRoot.
func ReadManifest(cacheRoot string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(cacheRoot))
	if err != nil {
		return nil, fmt.Errorf("indexer: read manifest: %w", err)
	}
	return UnmarshalManifest(data)
}

// Counts returns the number of files per state.
func (m *Manifest) Counts() map[string]int {
	counts := make(map[string]int)
	for _, f := range m.Files {
		counts[f.State]++
	}
	return counts
}
