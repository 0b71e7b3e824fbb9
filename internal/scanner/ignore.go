package scanner

import (
	"path"
	"strings"
)

// IgnorePattern is one line of an ignore file, with gitignore semantics.
type IgnorePattern struct {
	pattern  string // Original line
	negate   bool   // Starts with !
	dirOnly  bool   // Ends with /
	anchored bool   // Contains a / before its last character
	segments []string
}

// ParseIgnorePattern parses a gitignore-style pattern line.
func ParseIgnorePattern(line string) IgnorePattern {
	p := IgnorePattern{pattern: line}
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.Contains(line, "/") {
		p.anchored = true
		line = strings.TrimPrefix(line, "/")
	}
	p.segments = strings.Split(line, "/")
	return p
}

// IsNegation reports whether the pattern re-includes what it matches.
func (p IgnorePattern) IsNegation() bool {
	return p.negate
}

// String returns the original line.
func (p IgnorePattern) String() string {
	return p.pattern
}

// Match reports whether rel, a slash-separated path relative to the ignore
// file's directory, or one of its parent directories matches the pattern.
// isDir tells whether rel itself names a directory.
func (p IgnorePattern) Match(rel string, isDir bool) bool {
	segs := strings.Split(path.Clean(rel), "/")
	for n := 1; n <= len(segs); n++ {
		dir := n < len(segs) || isDir
		if p.dirOnly && !dir {
			continue
		}
		if p.matchPrefix(segs[:n]) {
			return true
		}
	}
	return false
}

func (p IgnorePattern) matchPrefix(segs []string) bool {
	if p.anchored {
		return matchSegments(p.segments, segs)
	}
	// A pattern without a slash matches at any depth.
	for start := 0; start < len(segs); start++ {
		if matchSegments(p.segments, segs[start:]) {
			return true
		}
	}
	return false
}

// matchSegments matches glob segments against path segments. A "**"
// segment matches any number of path segments.
func matchSegments(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pattern[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if ok, err := path.Match(pattern[0], segs[0]); err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], segs[1:])
}

// ignoreRules are the patterns of one ignore file, scoped to the directory
// holding it.
type ignoreRules struct {
	base     string // Slash-separated, relative to the scan root; "." for the root
	patterns []IgnorePattern
}

// ignored applies rule sets in order; the last matching pattern wins.
func ignored(sets []ignoreRules, rel string, isDir bool) bool {
	out := false
	for _, set := range sets {
		local := rel
		if set.base != "." {
			if !strings.HasPrefix(rel, set.base+"/") {
				continue
			}
			local = strings.TrimPrefix(rel, set.base+"/")
		}
		for _, p := range set.patterns {
			if p.Match(local, isDir) {
				out = !p.negate
			}
		}
	}
	return out
}
