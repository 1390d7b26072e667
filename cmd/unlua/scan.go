package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"unlua/internal/chunk"
	"unlua/internal/elfx"
	"unlua/internal/luafmt"
)

type scanResult struct {
	File         string        `json:"file"`
	Size         int           `json:"size"`
	Header       chunk.Header  `json:"header"`
	UpvalueCount byte          `json:"upvalue_count,omitempty"`
	Stats        chunk.Stats   `json:"stats"`
	Diags        []luafmt.Diag `json:"diagnostics,omitempty"`
}

func cmdScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	in := fs.String("in", "", "path to a compiled chunk or host binary")
	jsonOut := fs.Bool("json", false, "output as JSON")
	probe := fs.Bool("probe", false, "list embedded chunks instead of decoding the file")
	maxDepth := fs.Int("max-depth", 0, "nested prototype cap (0 = default)")
	verbosity := logFlag(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	configureLogging(*verbosity, "")
	if *in == "" {
		return fmt.Errorf("--in is required")
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	if *probe {
		return printProbe(*in, data, *jsonOut)
	}

	c, err := chunk.Decode(data, luafmt.Options{MaxDepth: *maxDepth})
	if err != nil {
		return fmt.Errorf("decode %s: %w", *in, err)
	}
	res := scanResult{
		File:         *in,
		Size:         len(data),
		Header:       c.Header,
		UpvalueCount: c.UpvalueCount,
		Stats:        chunk.Summarize(c),
		Diags:        c.Diags,
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	h := res.Header
	fmt.Printf("%s: Lua %s bytecode, %d bytes\n", res.File, h.Version, res.Size)
	fmt.Printf("  Format:      %d\n", h.Format)
	fmt.Printf("  Endianness:  %s\n", h.Endianness)
	fmt.Printf("  Sizes:       int=%d size_t=%d instruction=%d number=%d", h.IntSize, h.SizeTSize, h.InstructionSize, h.NumberSize)
	if h.IntegerSize != 0 {
		fmt.Printf(" integer=%d", h.IntegerSize)
	}
	fmt.Println()
	fmt.Printf("  Integral:    %v\n", h.NumberIntegral)
	if h.Version == chunk.Lua53 {
		fmt.Printf("  Upvalues:    %d\n", res.UpvalueCount)
	}

	st := res.Stats
	fmt.Printf("\nPrototypes:    %d (max depth %d)\n", st.Prototypes, st.MaxDepth)
	fmt.Printf("Instructions:  %d\n", st.Instructions)
	fmt.Printf("Constants:     %d\n", st.Constants)
	fmt.Printf("Stripped:      %v\n", st.Stripped)

	if len(res.Diags) > 0 {
		fmt.Printf("\nDiagnostics (%d):\n", len(res.Diags))
		for _, d := range res.Diags {
			fmt.Printf("  %s\n", d)
		}
	}
	return nil
}

func printProbe(name string, data []byte, jsonOut bool) error {
	hits, err := elfx.Probe(data)
	if err != nil {
		log.Warningf("%s: ELF sections unavailable: %s", name, err)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if hits == nil {
			hits = []elfx.Hit{}
		}
		return enc.Encode(hits)
	}

	fmt.Printf("%s: %d embedded chunk(s)\n", name, len(hits))
	for _, h := range hits {
		fmt.Printf("  0x%08x  Lua %s  %s-endian", h.Offset, h.Header.Version, h.Header.Endianness)
		if h.Section != "" {
			fmt.Printf("  %s", h.Section)
		}
		if h.VA != 0 {
			fmt.Printf("  VA=0x%x", h.VA)
		}
		if h.Symbol != "" {
			fmt.Printf("  <%s>", h.Symbol)
		}
		fmt.Println()
	}
	return nil
}
