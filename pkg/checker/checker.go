// Package checker runs whole-file analyses: it parses a Python file, binds
// its flow graph, and reports what the narrowing engine finds.
package checker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/flowtype/internal/log"
	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/binder"
	"github.com/l3aro/flowtype/pkg/cache"
	"github.com/l3aro/flowtype/pkg/dirty"
	"github.com/l3aro/flowtype/pkg/engine"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/pyparse"
)

// FindingsFile is the name of the persisted findings cache inside the
// cache directory.
const FindingsFile = "findings.msgpack"

const maxCachedFiles = 10000

// Options configure a Checker.
type Options struct {
	Binder binder.Options
	// Engine options apply to every file's session.
	Engine []engine.Option
	// Workers bounds the files analyzed at once.
	Workers int
	// CacheDir holds the content hashes and findings of analyzed files.
	// Empty keeps them in memory only.
	CacheDir string
	Logger   log.Logger
}

// DefaultOptions returns options for CPython 3.12 on linux with one worker
// per CPU.
func DefaultOptions() Options {
	return Options{
		Binder:  binder.DefaultOptions(),
		Workers: runtime.NumCPU(),
		Logger:  log.Discard(),
	}
}

// Checker analyzes files. Each file gets its own session, so a Checker is
// safe for concurrent use.
type Checker struct {
	opts     Options
	log      log.Logger
	tracker  *dirty.Tracker
	findings *cache.LRU[[]Finding]
}

// New creates a Checker.
func New(opts Options) *Checker {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	var trackerOpts []dirty.Option
	if opts.CacheDir != "" {
		trackerOpts = append(trackerOpts, dirty.WithStateDir(opts.CacheDir))
	}
	return &Checker{
		opts:     opts,
		log:      opts.Logger,
		tracker:  dirty.New(trackerOpts...),
		findings: cache.New(cache.Options[[]Finding]{MaxSize: maxCachedFiles}),
	}
}

// LoadCache restores the persisted hashes and findings. It does nothing
// without a cache directory.
func (c *Checker) LoadCache() error {
	if c.opts.CacheDir == "" {
		return nil
	}
	if err := c.tracker.Load(); err != nil {
		return err
	}
	if err := cache.LoadFromFile(c.findings, filepath.Join(c.opts.CacheDir, FindingsFile)); err != nil {
		if errors.Is(err, cache.ErrCorrupt) {
			c.log.Warn("discarding corrupt findings cache", "error", err)
			c.findings.Clear()
			return nil
		}
		return err
	}
	return nil
}

// SaveCache persists the hashes and findings. It does nothing without a
// cache directory.
func (c *Checker) SaveCache() error {
	if c.opts.CacheDir == "" {
		return nil
	}
	if err := c.tracker.Save(); err != nil {
		return err
	}
	return cache.PersistToFile(c.findings, filepath.Join(c.opts.CacheDir, FindingsFile))
}

// CheckFiles checks every path with at most Options.Workers files in
// flight. Reports are in the order of paths. A file that cannot be read or
// analyzed gets a report with Error set; only cancellation fails the run.
func (c *Checker) CheckFiles(ctx context.Context, paths []string) ([]*Report, error) {
	reports := make([]*Report, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep, err := c.CheckFile(gctx, path)
			if err != nil {
				c.log.Warn("failed to check file", "path", path, "error", err)
				rep = &Report{Path: path, Error: err.Error()}
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, ctx.Err()
}

// CheckFile reads and checks one file.
func (c *Checker) CheckFile(ctx context.Context, path string) (*Report, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return c.CheckSource(ctx, path, content)
}

// CheckSource checks src as the content of path. Findings of content seen
// before are served from the findings cache.
func (c *Checker) CheckSource(ctx context.Context, path string, src []byte) (*Report, error) {
	hash := dirty.HashContent(src)
	key := path + "@" + hash
	changed := c.tracker.Observe(path, src)
	if !changed {
		if fs, ok := c.findings.Get(key); ok {
			c.log.Debug("findings cache hit", "path", path)
			return &Report{Path: path, Hash: hash, Findings: fs, Cached: true}, nil
		}
	}

	fs, err := c.analyze(ctx, path, src)
	if err != nil {
		return nil, err
	}
	c.findings.Set(key, fs)
	c.tracker.MarkClean(path)
	return &Report{Path: path, Hash: hash, Findings: fs}, nil
}

// analyze runs parse, bind and the queries. A corrupt graph met during
// traversal panics with a flow.InvariantError; it is returned as this
// file's error.
func (c *Checker) analyze(ctx context.Context, path string, src []byte) (fs []Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			perr, ok := r.(error)
			var inv *flow.InvariantError
			if !ok || !errors.As(perr, &inv) {
				panic(r)
			}
			fs, err = nil, fmt.Errorf("analyze %s: %w", path, perr)
		}
	}()

	opts := append([]engine.Option{engine.WithLogger(c.log)}, c.opts.Engine...)
	u, err := Load(path, src, c.opts.Binder, opts...)
	if err != nil {
		var se *pyparse.SyntaxError
		if !errors.As(err, &se) {
			return nil, err
		}
		msg := "invalid syntax"
		if se.Near != "" {
			msg = fmt.Sprintf("invalid syntax near %q", se.Near)
		}
		return []Finding{{
			Path: path, Line: se.Line, Col: se.Col,
			Kind: KindSyntaxError, Severity: SeverityError, Message: msg,
		}}, nil
	}
	mod, ev := u.Module, u.Eval

	a := &analysis{ctx: ctx, path: path, ev: ev}
	a.complexity()
	a.unreachable(mod.Body)
	a.references(mod)
	a.reveals(mod)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sortFindings(a.findings)

	stats := ev.Session().CacheStats()
	c.log.Debug("checked file", "path", path, "findings", len(a.findings),
		"narrow_hit_rate", stats.Narrow.HitRate(), "reach_hit_rate", stats.Reach.HitRate())
	return a.findings, nil
}

func (a *analysis) add(n ast.Node, kind Kind, sev Severity, format string, args ...interface{}) {
	loc := n.Span()
	a.findings = append(a.findings, Finding{
		Path:     a.path,
		Line:     loc.Line,
		Col:      loc.Col,
		Kind:     kind,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
	})
}
