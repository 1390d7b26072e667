// Package output writes unlua results to files. Every file is written to a
// temp file next to its target and renamed into place once complete, so a
// reader never observes a partial file.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"unlua/internal/disasm"
	"unlua/internal/lasm"
	"unlua/internal/luafmt"
)

const tempMarker = ".tmp-"

// IsTemp reports whether name is an in-progress temp file left by Create.
func IsTemp(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, tempMarker)
}

// File is an output file being written. Data goes to a temp file in the
// target directory until Commit renames it over the target.
type File struct {
	f    *os.File
	w    *bufio.Writer
	path string
	done bool
}

// Create starts writing path. The caller must call Commit or Abort.
func Create(path string) (*File, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+tempMarker+"*")
	if err != nil {
		return nil, fmt.Errorf("output: create temp for %s: %w: %w", path, luafmt.ErrCacheWriteFailure, err)
	}
	return &File{f: f, w: bufio.NewWriter(f), path: path}, nil
}

// Write buffers p for the temp file.
func (a *File) Write(p []byte) (int, error) {
	n, err := a.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("output: write %s: %w: %w", a.path, luafmt.ErrCacheWriteFailure, err)
	}
	return n, nil
}

// TempName returns the temp file path.
func (a *File) TempName() string { return a.f.Name() }

// Commit flushes, closes and renames the temp file over the target.
func (a *File) Commit() error {
	if a.done {
		return fmt.Errorf("output: %s already closed", a.path)
	}
	a.done = true
	err := a.w.Flush()
	if err == nil {
		err = a.f.Chmod(0644)
	}
	if cerr := a.f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(a.f.Name(), a.path)
	}
	if err != nil {
		os.Remove(a.f.Name())
		return fmt.Errorf("output: commit %s: %w: %w", a.path, luafmt.ErrCacheWriteFailure, err)
	}
	return nil
}

// Abort discards the temp file. It is a no-op after Commit.
func (a *File) Abort() {
	if a.done {
		return
	}
	a.done = true
	a.f.Close()
	os.Remove(a.f.Name())
}

// WriteFile writes path atomically with the contents produced by write.
// An error from write aborts the file and is returned as is.
func WriteFile(path string, write func(w io.Writer) error) error {
	f, err := Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Abort()
		return err
	}
	return f.Commit()
}

// WriteBytes writes data to path.
func WriteBytes(path string, data []byte) error {
	return WriteFile(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteLASM dumps l to path.
func WriteLASM(path string, l *disasm.Listing, d lasm.Dumper) error {
	return WriteFile(path, func(w io.Writer) error { return d.Dump(w, l) })
}

// WriteDOT writes a rendered DOT graph to path.
func WriteDOT(path, dot string) error {
	return WriteFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, dot)
		return err
	})
}

// WriteJSON writes v as indented JSON.
func WriteJSON(path string, v any) error {
	return WriteFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("output: encode %s: %w", path, err)
		}
		return nil
	})
}

// WriteJSONL writes one JSON object per line.
func WriteJSONL[T any](path string, recs []T) error {
	return WriteFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		for _, r := range recs {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("output: encode %s: %w", path, err)
			}
		}
		return nil
	})
}

// ReadJSONL reads a JSONL file into a slice of T.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []T
	dec := json.NewDecoder(f)
	for dec.More() {
		var rec T
		if err := dec.Decode(&rec); err != nil {
			return records, fmt.Errorf("output: %s line %d: %w", path, len(records)+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
