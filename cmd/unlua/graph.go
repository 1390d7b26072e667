package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zboralski/lattice"
	lrender "github.com/zboralski/lattice/render"

	"unlua/internal/callgraph"
	"unlua/internal/disasm"
	"unlua/internal/luafmt"
	"unlua/internal/output"
	"unlua/internal/render"
)

func cmdGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	in := fs.String("in", "", "path to a compiled chunk")
	outDir := fs.String("out", "", "output directory")
	useLattice := fs.Bool("lattice", false, "render CFGs with the lattice renderer instead of listing CFGs")
	theme := fs.String("theme", "nasa", "DOT theme: nasa or dark")
	maxDepth := fs.Int("max-depth", 0, "nested prototype cap (0 = default)")
	verbosity := logFlag(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	configureLogging(*verbosity, "")
	if *in == "" {
		return fmt.Errorf("--in is required")
	}
	if *outDir == "" {
		return fmt.Errorf("--out is required")
	}

	_, _, l, err := loadListing(*in, luafmt.Options{MaxDepth: *maxDepth})
	if err != nil {
		return err
	}
	funcs := callgraph.Collect(l)
	title := filepath.Base(*in)

	cfgDir := filepath.Join(*outDir, "cfg")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", cfgDir, err)
	}

	var (
		records []disasm.FuncRecord
		edges   []disasm.CallEdgeRecord
		refs    []disasm.StringRefRecord
	)
	t := render.ThemeByName(*theme)
	for _, fi := range funcs {
		records = append(records, disasm.NewFuncRecord(l, fi.Func, fi.CFG))
		edges = append(edges, disasm.NewCallEdgeRecords(fi.Func, fi.Sites)...)
		refs = append(refs, disasm.NewStringRefRecords(fi.Func)...)

		var dot string
		if *useLattice {
			lcfg, _ := callgraph.BuildFuncCFG(fi)
			dot = lrender.DOTCFG(&lattice.CFGGraph{Funcs: []*lattice.FuncCFG{lcfg}}, fi.Name)
		} else {
			dot = render.CFGDOT(l.Table, fi.Func, fi.CFG, t)
		}
		dotPath := filepath.Join(cfgDir, render.SafeFileName(fi.Name)+".dot")
		if err := output.WriteDOT(dotPath, dot); err != nil {
			return err
		}
	}

	funcsPath := filepath.Join(*outDir, "functions.jsonl")
	if err := output.WriteJSONL(funcsPath, records); err != nil {
		return err
	}
	edgesPath := filepath.Join(*outDir, "call_edges.jsonl")
	if err := output.WriteJSONL(edgesPath, edges); err != nil {
		return err
	}

	refsPath := filepath.Join(*outDir, "string_refs.jsonl")
	if err := output.WriteJSONL(refsPath, refs); err != nil {
		return err
	}

	closures := callgraph.BuildClosureGraph(l)
	closuresPath := filepath.Join(*outDir, "closures.dot")
	if err := output.WriteDOT(closuresPath, lrender.DOT(closures, title+" (closures)")); err != nil {
		return err
	}

	cg := callgraph.BuildCallGraph(funcs)
	cgPath := filepath.Join(*outDir, "callgraph.dot")
	if err := output.WriteDOT(cgPath, lrender.DOT(cg, title)); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "wrote %s (%d functions)\n", funcsPath, len(records))
	fmt.Fprintf(os.Stderr, "wrote %s (%d edges)\n", edgesPath, len(edges))
	fmt.Fprintf(os.Stderr, "wrote %s (%d string refs)\n", refsPath, len(refs))
	fmt.Fprintf(os.Stderr, "wrote %s (%d nodes, %d edges)\n", closuresPath, len(closures.Nodes), len(closures.Edges))
	fmt.Fprintf(os.Stderr, "wrote %s (%d nodes, %d edges)\n", cgPath, len(cg.Nodes), len(cg.Edges))
	fmt.Fprintf(os.Stderr, "wrote %d per-function CFG DOTs to %s\n", len(funcs), cfgDir)
	return nil
}
