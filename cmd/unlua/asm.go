package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"unlua/internal/chunk"
	"unlua/internal/lasm"
	"unlua/internal/luafmt"
	"unlua/internal/output"
)

func cmdAsm(args []string) error {
	fs := flag.NewFlagSet("asm", flag.ExitOnError)
	in := fs.String("in", "", "path to a .lasm file")
	out := fs.String("out", "", "output chunk file")
	headerFrom := fs.String("header-from", "", "take header fields from this compiled chunk")
	verbosity := logFlag(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	configureLogging(*verbosity, "")
	if *in == "" {
		return fmt.Errorf("--in is required")
	}
	if *out == "" {
		return fmt.Errorf("--out is required")
	}

	var opts lasm.AssembleOptions
	if *headerFrom != "" {
		data, err := os.ReadFile(*headerFrom)
		if err != nil {
			return fmt.Errorf("read header source: %w", err)
		}
		c, err := chunk.Decode(data, luafmt.Options{})
		if err != nil {
			return fmt.Errorf("decode %s: %w", *headerFrom, err)
		}
		opts.Header = &c.Header
		if c.Header.Version == chunk.Lua53 {
			opts.UpvalueCount = &c.UpvalueCount
		}
	}

	f, err := os.Open(*in)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	data, err := lasm.AssembleBytes(f, opts)
	if err != nil {
		return fmt.Errorf("assemble %s: %w", *in, err)
	}
	if err := output.WriteBytes(*out, data); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", *out, len(data))
	return nil
}

func cmdRoundtrip(args []string) error {
	fs := flag.NewFlagSet("roundtrip", flag.ExitOnError)
	in := fs.String("in", "", "path to a compiled chunk")
	verbosity := logFlag(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	configureLogging(*verbosity, "")
	files := fs.Args()
	if *in != "" {
		files = append([]string{*in}, files...)
	}
	if len(files) == 0 {
		return fmt.Errorf("--in is required")
	}

	failed := 0
	for _, path := range files {
		msg, err := roundtrip(path)
		if err != nil {
			failed++
			fmt.Printf("FAIL  %s: %v\n", path, err)
			continue
		}
		fmt.Printf("ok    %s%s\n", path, msg)
	}
	fmt.Fprintf(os.Stderr, "%d/%d files round-trip\n", len(files)-failed, len(files))
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed", failed)
	}
	return nil
}

// roundtrip checks that assembling the dump of a chunk reproduces its bytes.
// Bytes after the end of the chunk are reported, not compared.
func roundtrip(path string) (string, error) {
	data, _, l, err := loadListing(path, luafmt.Options{})
	if err != nil {
		return "", err
	}
	var text bytes.Buffer
	if err := lasm.Dump(&text, l); err != nil {
		return "", fmt.Errorf("dump: %w", err)
	}
	out, err := lasm.AssembleBytes(&text, lasm.AssembleOptions{})
	if err != nil {
		return "", fmt.Errorf("assemble: %w", err)
	}
	if len(out) > len(data) {
		return "", fmt.Errorf("assembled %d bytes from a %d byte input", len(out), len(data))
	}
	if i := firstDiff(out, data[:len(out)]); i >= 0 {
		return "", fmt.Errorf("differs at offset 0x%x", i)
	}
	if extra := len(data) - len(out); extra > 0 {
		return fmt.Sprintf(" (%d trailing bytes ignored)", extra), nil
	}
	return "", nil
}

func firstDiff(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return -1
}
