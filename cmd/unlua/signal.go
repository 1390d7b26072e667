package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"unlua/internal/disasm"
	"unlua/internal/output"
	"unlua/internal/render"
	"unlua/internal/signal"
)

func cmdSignal(args []string) error {
	fs := flag.NewFlagSet("signal", flag.ExitOnError)
	inDir := fs.String("in", "", "input directory (graph output)")
	k := fs.Int("k", 2, "context hops from signal functions")
	theme := fs.String("theme", "nasa", "DOT theme: nasa or dark")
	svg := fs.Bool("svg", false, "generate an SVG with graphviz dot")
	verbosity := logFlag(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	configureLogging(*verbosity, "")
	if *inDir == "" {
		return fmt.Errorf("--in is required")
	}

	funcs, err := output.ReadJSONL[disasm.FuncRecord](filepath.Join(*inDir, "functions.jsonl"))
	if err != nil {
		return fmt.Errorf("read functions.jsonl: %w", err)
	}
	edges, err := output.ReadJSONL[disasm.CallEdgeRecord](filepath.Join(*inDir, "call_edges.jsonl"))
	if err != nil {
		return fmt.Errorf("read call_edges.jsonl: %w", err)
	}
	stringRefs, err := output.ReadJSONL[disasm.StringRefRecord](filepath.Join(*inDir, "string_refs.jsonl"))
	if err != nil {
		return fmt.Errorf("read string_refs.jsonl: %w", err)
	}
	fmt.Fprintf(os.Stderr, "read %d functions, %d call edges, %d string refs\n", len(funcs), len(edges), len(stringRefs))

	entryList := render.FindEntryPoints(funcs, edges)
	entrySet := make(map[string]bool, len(entryList))
	for _, ep := range entryList {
		entrySet[ep] = true
	}

	g := signal.BuildSignalGraph(funcs, edges, stringRefs, *k, entrySet)
	fmt.Fprintf(os.Stderr, "signal graph: %d signal + %d context = %d functions, %d edges\n",
		g.Stats.SignalFuncs, g.Stats.ContextFuncs,
		g.Stats.SignalFuncs+g.Stats.ContextFuncs, g.Stats.TotalEdges)
	for _, cat := range sortedCategories(g.Stats.Categories) {
		fmt.Fprintf(os.Stderr, "  %-10s %d\n", cat, g.Stats.Categories[cat])
	}

	jsonPath := filepath.Join(*inDir, "signal.json")
	if err := output.WriteJSON(jsonPath, g); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", jsonPath)

	renderDir := filepath.Join(*inDir, "render")
	if err := os.MkdirAll(renderDir, 0755); err != nil {
		return fmt.Errorf("mkdir render: %w", err)
	}
	abs, _ := filepath.Abs(*inDir)
	dotPath := filepath.Join(renderDir, "signal.dot")
	if err := writeDOT(dotPath, render.SignalDOT(g, filepath.Base(abs)+" (signal)", render.ThemeByName(*theme))); err != nil {
		return err
	}
	if *svg {
		svgFor(dotPath, filepath.Join(renderDir, "signal.svg"))
	}
	return nil
}

func sortedCategories(m map[string]int) []string {
	cats := make([]string, 0, len(m))
	for c := range m {
		cats = append(cats, c)
	}
	slices.Sort(cats)
	return cats
}
