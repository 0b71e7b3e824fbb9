// Package scanner finds the Python files to check under a directory tree.
// It respects .ftqignore files with gitignore-style patterns and skips the
// usual virtualenv and cache directories.
package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo represents a discovered Python file.
type FileInfo struct {
	Path     string // Relative path from root, slash-separated
	FullPath string // Absolute path
	Stub     bool   // A .pyi stub
	Size     int64  // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	FollowSymlinks  bool     // Follow file symlinks that stay within root
	IncludeStubs    bool     // Report .pyi stubs too
	DefaultExcludes []string // Directory names or globs never descended into
	IgnoreFileName  string   // Name of the ignore file (default: .ftqignore)
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		FollowSymlinks: false,
		IncludeStubs:   false,
		IgnoreFileName: ".ftqignore",
		DefaultExcludes: []string{
			"__pycache__",
			".venv",
			"venv",
			"env",
			"site-packages",
			".tox",
			".nox",
			".mypy_cache",
			".pytest_cache",
			".ruff_cache",
			"*.egg-info",
			"build",
			"dist",
			"node_modules",
			".git",
			".hg",
			".svn",
		},
	}
}

// Scanner walks directory trees for Python files.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	return &Scanner{opts: opts}
}

// Scan recursively scans the directory at root. Files are sorted by path.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	var rules []ignoreRules
	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == absRoot {
				return err
			}
			// Unreadable entries are skipped
			return nil
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." {
				if s.skipDir(d.Name()) || ignored(rules, rel, true) {
					return filepath.SkipDir
				}
			}
			patterns, err := s.loadIgnorePatterns(p)
			if err != nil {
				return fmt.Errorf("loading ignore patterns: %w", err)
			}
			if len(patterns) > 0 {
				rules = append(rules, ignoreRules{base: rel, patterns: patterns})
			}
			return nil
		}

		if s.opts.SkipHidden && isHidden(d.Name()) {
			return nil
		}
		ok, stub := IsPython(p)
		if !ok || (stub && !s.opts.IncludeStubs) {
			return nil
		}
		if ignored(rules, rel, false) {
			return nil
		}

		info, err := s.fileInfo(absRoot, p, d)
		if err != nil || info == nil {
			return nil
		}
		files = append(files, FileInfo{Path: rel, FullPath: p, Stub: stub, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// fileInfo stats a regular file. Symlinks are resolved when allowed and
// must point at a regular file within root; otherwise it returns nil.
func (s *Scanner) fileInfo(root, p string, d fs.DirEntry) (fs.FileInfo, error) {
	if d.Type()&fs.ModeSymlink == 0 {
		return d.Info()
	}
	if !s.opts.FollowSymlinks {
		return nil, nil
	}
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		return nil, nil
	}
	real, err = filepath.Abs(real)
	if err != nil {
		return nil, nil
	}
	if !strings.HasPrefix(real, root+string(filepath.Separator)) {
		return nil, nil
	}
	info, err := os.Stat(real)
	if err != nil || !info.Mode().IsRegular() {
		return nil, nil
	}
	return info, nil
}

func (s *Scanner) skipDir(name string) bool {
	if s.opts.SkipHidden && isHidden(name) {
		return true
	}
	for _, exclude := range s.opts.DefaultExcludes {
		if ok, _ := path.Match(exclude, name); ok || strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// loadIgnorePatterns reads the ignore file in dir, if any.
func (s *Scanner) loadIgnorePatterns(dir string) ([]IgnorePattern, error) {
	if s.opts.IgnoreFileName == "" {
		return nil, nil
	}
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []IgnorePattern
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, ParseIgnorePattern(line))
	}
	return patterns, sc.Err()
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}

// Expand turns command-line arguments into the files to check. Files are
// kept as given, whatever their extension; directories are scanned. The
// result has no duplicates and keeps argument order.
func (s *Scanner) Expand(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(filepath.Clean(arg))
			continue
		}
		files, err := s.Scan(arg)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(filepath.Join(arg, filepath.FromSlash(f.Path)))
		}
	}
	return out, nil
}
