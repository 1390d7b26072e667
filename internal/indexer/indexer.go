// Package indexer runs the indexing pipeline: every compiled chunk of a
// project is decoded, disassembled and dumped to a LASM file in the
// project's cache directory.
//
// Each file moves through an explicit state machine (see State). Workers
// report transitions to a single tracker goroutine that owns progress and
// calls the Observer. A failing file does not abort the run.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"unlua/internal/chunk"
	"unlua/internal/disasm"
	"unlua/internal/luafmt"
	"unlua/internal/output"
)

var log = commonlog.GetLogger("unlua.indexer")

// Decoder decodes one compiled chunk.
type Decoder interface {
	Decode(data []byte) (*chunk.Chunk, error)
}

// Disassembler turns a chunk into its symbolic form.
type Disassembler interface {
	Disassemble(c *chunk.Chunk) (*disasm.Listing, error)
}

// Dumper writes the LASM text of a listing.
type Dumper interface {
	Dump(w io.Writer, l *disasm.Listing) error
}

// Project supplies the files to index and the two roots.
type Project interface {
	Name() string
	Files() []string
	SourceRoot() string
	CacheRoot() string
}

// Options configures an Indexer.
type Options struct {
	// Workers bounds the number of files processed at once. Values below
	// one mean one (sequential).
	Workers int

	// Resume skips the populated-cache check, so a run over a partially
	// indexed cache processes the files that have no output yet.
	Resume bool

	// NoManifest disables writing the run manifest.
	NoManifest bool
}

// FileResult is the outcome of one file.
type FileResult struct {
	Path   string // relative to the source root, slash-separated
	Target string // absolute LASM path
	State  State
	Err    error
	SHA256 string // hex digest of the input, empty when it was not read
}

// Result is the outcome of one run.
type Result struct {
	RunID   string
	Project string

	// AlreadyIndexed is set when the cache root was populated and the run
	// did nothing.
	AlreadyIndexed bool
	Cancelled      bool

	Files    []FileResult
	Started  time.Time
	Finished time.Time
}

// Count returns the number of files in state s.
func (r *Result) Count(s State) int {
	n := 0
	for _, f := range r.Files {
		if f.State == s {
			n++
		}
	}
	return n
}

// Failures returns the failed files.
func (r *Result) Failures() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.State == Failed {
			out = append(out, f)
		}
	}
	return out
}

// Indexer runs the pipeline with caller-supplied collaborators.
type Indexer struct {
	dec  Decoder
	dis  Disassembler
	dump Dumper
	opts Options
}

// New creates an Indexer.
func New(dec Decoder, dis Disassembler, dump Dumper, opts Options) *Indexer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Indexer{dec: dec, dis: dis, dump: dump, opts: opts}
}

// Index indexes every file of p. Per-file failures are recorded in the
// result; the returned error is reserved for run-level failures (cache root
// not usable) and cancellation, in which case the partial result is still
// returned.
func (ix *Indexer) Index(ctx context.Context, p Project, obs Observer) (*Result, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	res := &Result{RunID: uuid.NewString(), Project: p.Name(), Started: time.Now()}
	files := p.Files()
	cacheRoot := p.CacheRoot()

	obs.Report(0, fmt.Sprintf("indexing %s: 0/%d", p.Name(), len(files)))

	if !ix.opts.Resume {
		populated, err := cachePopulated(cacheRoot)
		if err != nil {
			return nil, err
		}
		if populated {
			log.Infof("%s: cache %s already populated", p.Name(), cacheRoot)
			res.AlreadyIndexed = true
			res.Finished = time.Now()
			obs.Report(100, fmt.Sprintf("%s already indexed", p.Name()))
			return res, nil
		}
	}
	if err := os.MkdirAll(cacheRoot, 0755); err != nil {
		return nil, fmt.Errorf("indexer: create cache root %s: %w: %w", cacheRoot, luafmt.ErrCacheWriteFailure, err)
	}

	jobs := plan(files, p.SourceRoot(), cacheRoot)
	res.Files = make([]FileResult, len(jobs))
	names := make([]string, len(jobs))
	for i, j := range jobs {
		res.Files[i] = FileResult{Path: j.rel, Target: j.target}
		names[i] = j.rel
	}

	tr := newTracker(names, obs)
	var g errgroup.Group
	g.SetLimit(ix.opts.Workers)
	for i := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			ix.indexFile(ctx, jobs[i], &res.Files[i], func(s State) { tr.send(i, s) })
			return nil
		})
	}
	g.Wait()
	tr.close()

	res.Finished = time.Now()
	if err := ctx.Err(); err != nil {
		res.Cancelled = true
	}
	log.Noticef("%s: %d cached, %d skipped, %d failed in %s", p.Name(),
		res.Count(Cached), res.Count(SkippedCached), res.Count(Failed), res.Finished.Sub(res.Started).Round(time.Millisecond))

	if !ix.opts.NoManifest {
		if err := WriteManifest(cacheRoot, NewManifest(res, ix.opts.Workers)); err != nil {
			log.Warningf("%s: manifest: %s", p.Name(), err)
		}
	}
	if res.Cancelled {
		return res, ctx.Err()
	}
	return res, nil
}

// fileRun drives one file through the state machine.
type fileRun struct {
	r    *FileResult
	emit func(State)
}

func (f *fileRun) enter(s State) {
	if !f.r.State.canEnter(s) {
		panic(fmt.Sprintf("indexer: %s: illegal transition %s -> %s", f.r.Path, f.r.State, s))
	}
	f.r.State = s
	f.emit(s)
}

func (f *fileRun) fail(err error) {
	f.r.Err = err
	f.enter(Failed)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Infof("%s: cancelled", f.r.Path)
		return
	}
	log.Errorf("%s: %s: %s", f.r.Path, luafmt.Kind(err), err)
}

func (ix *Indexer) indexFile(ctx context.Context, j job, r *FileResult, emit func(State)) {
	f := &fileRun{r: r, emit: emit}
	if err := ctx.Err(); err != nil {
		f.fail(err)
		return
	}
	if j.claimedBy != "" {
		f.fail(fmt.Errorf("indexer: %s: target %s already claimed by %s: %w",
			j.rel, filepath.Base(j.target), j.claimedBy, luafmt.ErrCacheWriteFailure))
		return
	}
	if targetExists(j.target) {
		log.Debugf("%s: %s exists", j.rel, j.target)
		f.enter(SkippedCached)
		return
	}

	f.enter(Decoding)
	data, err := os.ReadFile(j.path)
	if err != nil {
		f.fail(fmt.Errorf("indexer: read %s: %w", j.rel, err))
		return
	}
	sum := sha256.Sum256(data)
	r.SHA256 = hex.EncodeToString(sum[:])
	c, err := ix.dec.Decode(data)
	if err != nil {
		f.fail(err)
		return
	}
	if err := ctx.Err(); err != nil {
		f.fail(err)
		return
	}

	f.enter(Disassembling)
	l, err := ix.dis.Disassemble(c)
	if err != nil {
		f.fail(err)
		return
	}
	if err := ctx.Err(); err != nil {
		f.fail(err)
		return
	}

	f.enter(Dumping)
	out, err := output.Create(j.target)
	if err != nil {
		f.fail(err)
		return
	}
	if err := ix.dump.Dump(out, l); err != nil {
		out.Abort()
		f.fail(err)
		return
	}
	if err := ctx.Err(); err != nil {
		out.Abort()
		f.fail(err)
		return
	}
	if err := out.Commit(); err != nil {
		f.fail(err)
		return
	}
	log.Infof("%s -> %s", j.rel, j.target)
	f.enter(Cached)
}
