package main

import (
	"flag"
	"fmt"
	"os"

	"unlua/internal/chunk"
	"unlua/internal/disasm"
	"unlua/internal/lasm"
	"unlua/internal/luafmt"
	"unlua/internal/output"
)

// loadListing reads, decodes and disassembles one chunk file.
func loadListing(path string, opts luafmt.Options) ([]byte, *chunk.Chunk, *disasm.Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read: %w", err)
	}
	c, err := chunk.Decode(data, opts)
	if err != nil {
		return data, nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for _, d := range c.Diags {
		log.Noticef("%s: %s", path, d)
	}
	l, err := disasm.Disassembler{Options: opts}.Disassemble(c)
	if err != nil {
		return data, c, nil, fmt.Errorf("disassemble %s: %w", path, err)
	}
	return data, c, l, nil
}

func cmdDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	in := fs.String("in", "", "path to a compiled chunk")
	out := fs.String("out", "", "output .lasm file (default stdout)")
	noComments := fs.Bool("no-comments", false, "omit annotation comments")
	maxDepth := fs.Int("max-depth", 0, "nested prototype cap (0 = default)")
	verbosity := logFlag(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	configureLogging(*verbosity, "")
	if *in == "" {
		return fmt.Errorf("--in is required")
	}

	_, _, l, err := loadListing(*in, luafmt.Options{MaxDepth: *maxDepth})
	if err != nil {
		return err
	}

	d := lasm.Dumper{NoComments: *noComments}
	if *out == "" {
		return d.Dump(os.Stdout, l)
	}
	if err := output.WriteLASM(*out, l, d); err != nil {
		return err
	}
	fi, _ := os.Stat(*out)
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", *out, fi.Size())
	return nil
}
