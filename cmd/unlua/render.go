package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"unlua/internal/disasm"
	"unlua/internal/output"
	"unlua/internal/render"
)

func cmdRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	inDir := fs.String("in", "", "input directory (graph output)")
	maxNodes := fs.Int("max-nodes", 0, "max function nodes in callgraph (0 = all)")
	title := fs.String("title", "", "title for callgraph and HTML (default: directory name)")
	theme := fs.String("theme", "nasa", "DOT theme: nasa or dark")
	svg := fs.Bool("svg", false, "generate SVGs with graphviz dot")
	verbosity := logFlag(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	configureLogging(*verbosity, "")
	if *inDir == "" {
		return fmt.Errorf("--in is required")
	}
	if *title == "" {
		abs, _ := filepath.Abs(*inDir)
		*title = filepath.Base(abs)
	}
	t := render.ThemeByName(*theme)

	funcs, err := output.ReadJSONL[disasm.FuncRecord](filepath.Join(*inDir, "functions.jsonl"))
	if err != nil {
		return fmt.Errorf("read functions.jsonl: %w", err)
	}
	fmt.Fprintf(os.Stderr, "read %d functions\n", len(funcs))

	edges, err := output.ReadJSONL[disasm.CallEdgeRecord](filepath.Join(*inDir, "call_edges.jsonl"))
	if err != nil {
		return fmt.Errorf("read call_edges.jsonl: %w", err)
	}
	fmt.Fprintf(os.Stderr, "read %d call edges\n", len(edges))

	renderDir := filepath.Join(*inDir, "render")
	if err := os.MkdirAll(renderDir, 0755); err != nil {
		return fmt.Errorf("mkdir render: %w", err)
	}

	stats := render.ComputeStats(funcs, edges)
	entryPoints := render.FindEntryPoints(funcs, edges)
	reachable := render.ReachableSet(entryPoints, edges)
	fmt.Fprintf(os.Stderr, "entry points: %d, reachable functions: %d / %d\n",
		len(entryPoints), len(reachable), len(funcs))

	reachPath := filepath.Join(renderDir, "reachable.dot")
	if err := writeDOT(reachPath, render.ReachabilityDOT(edges, reachable, entryPoints, *title+" (reachable)", t)); err != nil {
		return err
	}
	cgPath := filepath.Join(renderDir, "callgraph.dot")
	if err := writeDOT(cgPath, render.CallgraphDOT(funcs, edges, *title, t, *maxNodes)); err != nil {
		return err
	}

	page := render.IndexPage{
		Title:          *title,
		Stats:          stats,
		EntryPoints:    entryPoints,
		ReachableCount: len(reachable),
	}
	if *svg {
		page.HasReachableSVG = svgFor(reachPath, filepath.Join(renderDir, "reachable.svg"))
		page.HasCallgraphSVG = svgFor(cgPath, filepath.Join(renderDir, "callgraph.svg"))
		page.HasClosureSVG = svgFor(filepath.Join(*inDir, "closures.dot"), filepath.Join(renderDir, "closures.svg"))
		page.CFGCount, err = renderCFGs(funcs, reachable, filepath.Join(*inDir, "cfg"), filepath.Join(renderDir, "cfg"))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "generated %d CFG SVGs\n", page.CFGCount)
	}

	htmlPath := filepath.Join(renderDir, "index.html")
	if err := output.WriteFile(htmlPath, func(w io.Writer) error {
		return render.WriteIndexHTML(w, page)
	}); err != nil {
		return err
	}
	fi, _ := os.Stat(htmlPath)
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", htmlPath, fi.Size())
	return nil
}

func writeDOT(path, dot string) error {
	if err := output.WriteDOT(path, dot); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", path, len(dot))
	return nil
}

// svgFor renders dotPath to svgPath and reports whether it succeeded.
func svgFor(dotPath, svgPath string) bool {
	if _, err := os.Stat(dotPath); err != nil {
		return false
	}
	if err := runDot(dotPath, svgPath, "svg"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %s: %v\n", filepath.Base(svgPath), err)
		return false
	}
	fi, _ := os.Stat(svgPath)
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", svgPath, fi.Size())
	return true
}

// renderCFGs converts the CFG DOTs of reachable functions to SVG.
func renderCFGs(funcs []disasm.FuncRecord, reachable map[string]bool, dotDir, svgDir string) (int, error) {
	if err := os.MkdirAll(svgDir, 0755); err != nil {
		return 0, fmt.Errorf("mkdir cfg: %w", err)
	}
	count := 0
	for _, f := range funcs {
		if !reachable[f.Name] {
			continue
		}
		name := render.SafeFileName(f.Name)
		dotPath := filepath.Join(dotDir, name+".dot")
		if _, err := os.Stat(dotPath); err != nil {
			continue
		}
		if err := runDot(dotPath, filepath.Join(svgDir, name+".svg"), "svg"); err != nil {
			log.Warningf("CFG SVG failed for %s: %s", f.Name, strings.TrimSpace(err.Error()))
			continue
		}
		count++
	}
	return count, nil
}

// runDot invokes graphviz dot to produce the given format.
func runDot(dotPath, outPath, format string) error {
	cmd := exec.Command("dot", "-T"+format, "-o", outPath, dotPath)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
