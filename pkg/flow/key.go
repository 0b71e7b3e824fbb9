package flow

import (
	"sort"
	"strconv"
	"strings"

	"github.com/l3aro/flowtype/pkg/ast"
)

// Key is the canonical identity of a narrowable reference: a name followed
// by attribute (`.attr`) and literal subscript (`[0]`, `["k"]`) segments.
// Disambiguator separates references that share a path but denote different
// bindings; it is zero for ordinary references.
type Key struct {
	Path          string
	Disambiguator int
}

// KeyOf returns the reference key of e, or false when e is not a
// narrowable reference. An assignment expression yields the key of its
// target.
func KeyOf(e ast.Expr) (Key, bool) {
	path, ok := refPath(e)
	if !ok {
		return Key{}, false
	}
	return Key{Path: path}, true
}

func refPath(e ast.Expr) (string, bool) {
	switch e := e.(type) {
	case *ast.Name:
		if e == nil {
			return "", false
		}
		return e.ID, true
	case *ast.Attribute:
		base, ok := refPath(e.Value)
		if !ok {
			return "", false
		}
		return base + "." + e.Attr, true
	case *ast.Subscript:
		base, ok := refPath(e.Value)
		if !ok {
			return "", false
		}
		idx, ok := subscriptSegment(e.Index)
		if !ok {
			return "", false
		}
		return base + idx, true
	case *ast.NamedExpr:
		return refPath(e.Target)
	}
	return "", false
}

func subscriptSegment(idx ast.Expr) (string, bool) {
	switch idx := idx.(type) {
	case *ast.Constant:
		switch idx.Kind {
		case ast.ConstInt:
			v, _ := idx.Value.(int64)
			return "[" + strconv.FormatInt(v, 10) + "]", true
		case ast.ConstStr:
			s, _ := idx.Value.(string)
			return "[" + strconv.Quote(s) + "]", true
		}
	case *ast.UnaryOp:
		if c, ok := idx.Operand.(*ast.Constant); ok && idx.Op == "-" && c.Kind == ast.ConstInt {
			v, _ := c.Value.(int64)
			return "[" + strconv.FormatInt(-v, 10) + "]", true
		}
	}
	return "", false
}

// NameKey returns the key of a bare name.
func NameKey(name string) Key { return Key{Path: name} }

// WithDisambiguator returns a copy of k bound to a specific binding.
func (k Key) WithDisambiguator(id int) Key {
	k.Disambiguator = id
	return k
}

func (k Key) String() string {
	if k.Disambiguator == 0 {
		return k.Path
	}
	return k.Path + "#" + strconv.Itoa(k.Disambiguator)
}

// IsZero reports whether k is the empty key.
func (k Key) IsZero() bool { return k.Path == "" }

// SamePath reports whether k and other denote the same expression path,
// ignoring disambiguators.
func (k Key) SamePath(other Key) bool { return k.Path == other.Path }

// Root returns the leading name of the path.
func (k Key) Root() string {
	if i := strings.IndexAny(k.Path, ".["); i >= 0 {
		return k.Path[:i]
	}
	return k.Path
}

// IsName reports whether k is a bare name.
func (k Key) IsName() bool { return !strings.ContainsAny(k.Path, ".[") }

// IsPrefixOf reports whether k is a strict prefix of other at a segment
// boundary: `a.b` is a prefix of `a.b.c` and `a.b[0]`, not of `a.bc`.
func (k Key) IsPrefixOf(other Key) bool {
	if len(other.Path) <= len(k.Path) || !strings.HasPrefix(other.Path, k.Path) {
		return false
	}
	next := other.Path[len(k.Path)]
	return next == '.' || next == '['
}

// Prefixes returns every strict prefix of k, shortest first.
func (k Key) Prefixes() []Key {
	var out []Key
	depth := 0
	var quote byte
	for i := 0; i < len(k.Path); i++ {
		c := k.Path[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			if depth == 0 {
				out = append(out, Key{Path: k.Path[:i]})
			}
			depth++
		case c == ']':
			depth--
		case c == '.' && depth == 0:
			out = append(out, Key{Path: k.Path[:i]})
		}
	}
	return out
}

// KeySet is a set of reference keys compared by path.
type KeySet map[string]struct{}

// Add inserts k.
func (s KeySet) Add(k Key) { s[k.Path] = struct{}{} }

// Has reports whether k is in the set.
func (s KeySet) Has(k Key) bool {
	_, ok := s[k.Path]
	return ok
}

// Affects reports whether an entry of s can change the value of k: k itself
// or any prefix of k is in the set.
func (s KeySet) Affects(k Key) bool {
	if s.Has(k) {
		return true
	}
	for _, p := range k.Prefixes() {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// Merge adds every entry of other.
func (s KeySet) Merge(other KeySet) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Sorted returns the set entries in lexical order.
func (s KeySet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
