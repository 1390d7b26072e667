package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"unlua/internal/chunk"
	"unlua/internal/disasm"
	"unlua/internal/indexer"
	"unlua/internal/lasm"
	"unlua/internal/project"
)

// loadProjectConfig loads the project config for dir. Without an explicit
// directory the nearest unlua.toml above the working directory is used.
func loadProjectConfig(dir string) (*project.Config, error) {
	if dir != "" {
		return project.LoadOrDefault(dir)
	}
	cfg, err := project.FindAndLoad(".")
	if err != nil || cfg != nil {
		return cfg, err
	}
	return project.Default(".")
}

func cmdIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	dir := fs.String("project", "", "project directory (default: nearest unlua.toml)")
	workers := fs.Int("workers", 0, "files processed in parallel (overrides index.workers)")
	src := fs.String("src", "", "source directory (overrides source.dir)")
	cache := fs.String("cache", "", "cache directory (overrides cache.dir)")
	resume := fs.Bool("resume", false, "index into a partially populated cache, skipping files already dumped")
	noManifest := fs.Bool("no-manifest", false, "do not write the run manifest")
	noComments := fs.Bool("no-comments", false, "omit annotation comments in LASM output")
	verbosity := logFlag(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadProjectConfig(*dir)
	if err != nil {
		return err
	}
	if *src != "" {
		cfg.Source.Dir = *src
	}
	if *cache != "" {
		cfg.Cache.Dir = *cache
	}
	if *workers > 0 {
		cfg.Index.Workers = *workers
	}
	v := cfg.Log.Verbosity
	if flagSet(fs, "v") {
		v = *verbosity
	}
	logFile := cfg.Log.File
	if logFile != "" && !filepath.IsAbs(logFile) {
		logFile = filepath.Join(cfg.Dir, logFile)
	}
	configureLogging(v, logFile)

	p, err := project.Open(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "project %s: %d file(s) in %s -> %s\n", p.Name(), len(p.Files()), p.SourceRoot(), p.CacheRoot())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := cfg.DecodeOptions()
	ix := indexer.New(
		chunk.Decoder{Options: opts},
		disasm.Disassembler{Options: opts},
		lasm.Dumper{NoComments: *noComments},
		indexer.Options{Workers: cfg.Index.Workers, Resume: *resume, NoManifest: *noManifest},
	)
	obs := newProgressLine(os.Stderr)
	res, err := ix.Index(ctx, p, obs)
	obs.finish()
	if res == nil {
		return err
	}

	if res.AlreadyIndexed {
		fmt.Fprintf(os.Stderr, "%s already indexed in %s (use --resume to fill in missing files)\n", p.Name(), p.CacheRoot())
		return nil
	}
	for _, f := range res.Failures() {
		fmt.Fprintf(os.Stderr, "  FAIL %s: %v\n", f.Path, f.Err)
	}
	fmt.Fprintf(os.Stderr, "%d cached, %d skipped, %d failed, %d pending in %s\n",
		res.Count(indexer.Cached), res.Count(indexer.SkippedCached), res.Count(indexer.Failed),
		res.Count(indexer.Pending), res.Finished.Sub(res.Started).Round(time.Millisecond))
	if err != nil {
		return err
	}
	if n := res.Count(indexer.Failed); n > 0 {
		return fmt.Errorf("%d file(s) failed", n)
	}
	return nil
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dir := fs.String("project", "", "project directory (default: nearest unlua.toml)")
	cache := fs.String("cache", "", "cache directory (overrides cache.dir)")
	jsonOut := fs.Bool("json", false, "output as JSON")
	verbosity := logFlag(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	configureLogging(*verbosity, "")

	cfg, err := loadProjectConfig(*dir)
	if err != nil {
		return err
	}
	if *cache != "" {
		cfg.Cache.Dir = *cache
	}

	m, err := indexer.ReadManifest(cfg.CacheRoot())
	if err != nil {
		return fmt.Errorf("no index run recorded for %s: %w", cfg.Project.Name, err)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}

	fmt.Printf("Project:   %s\n", m.Project)
	fmt.Printf("Run:       %s\n", m.RunID)
	fmt.Printf("Started:   %s\n", m.Started.Format("2006-01-02 15:04:05"))
	fmt.Printf("Duration:  %s\n", m.Finished.Sub(m.Started).Round(time.Millisecond))
	fmt.Printf("Workers:   %d\n", m.Workers)
	if m.Cancelled {
		fmt.Printf("Cancelled: yes\n")
	}

	counts := m.Counts()
	states := make([]string, 0, len(counts))
	for s := range counts {
		states = append(states, s)
	}
	sort.Strings(states)
	fmt.Printf("\nFiles (%d):\n", len(m.Files))
	for _, s := range states {
		fmt.Printf("  %-15s %d\n", s, counts[s])
	}

	first := true
	for _, f := range m.Files {
		if f.State != indexer.Failed.String() {
			continue
		}
		if first {
			fmt.Printf("\nFailures:\n")
			first = false
		}
		fmt.Printf("  %s [%s] %s\n", f.Path, f.Kind, f.Error)
	}
	return nil
}
