package narrowing

import (
	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/types"
)

// ForPattern returns the callback narrowing ref when a case pattern matched
// (positive) or failed to match the subject. The reference may be the
// subject itself, an element of a tuple subject, or the object whose
// discriminating attribute or key is the subject.
func ForPattern(env Env, subject ast.Expr, p ast.Pattern, ref flow.Key, positive bool) Callback {
	if p == nil {
		return nil
	}
	if matches(subject, ref) {
		return func(t types.Type) types.Type {
			return NarrowSubject(env, t, p, positive)
		}
	}

	switch s := subject.(type) {
	case *ast.Tuple:
		for i, e := range s.Elts {
			if matches(e, ref) {
				n := len(s.Elts)
				return func(t types.Type) types.Type {
					return narrowElement(env, t, p, i, n, positive)
				}
			}
		}
	case *ast.Attribute:
		if matches(s.Value, ref) {
			if lits, ok := patternLiterals(env, p); ok {
				return discriminant(env.Builtins(), lits, positive, attributeField(s.Attr))
			}
		}
	case *ast.Subscript:
		if !matches(s.Value, ref) {
			return nil
		}
		lits, ok := patternLiterals(env, p)
		if !ok {
			return nil
		}
		if key, ok := strConst(s.Index); ok {
			return discriminant(env.Builtins(), lits, positive, typedDictField(key))
		}
		if idx, ok := intConst(s.Index); ok {
			return discriminant(env.Builtins(), lits, positive, tupleElement(int(idx)))
		}
	}
	return nil
}

// patternLiterals returns the union of the literal values a value, singleton
// or or-pattern of those compares against.
func patternLiterals(env Env, p ast.Pattern) (types.Type, bool) {
	switch p := p.(type) {
	case *ast.MatchValue:
		return literalOf(env, p.Value)
	case *ast.MatchSingleton:
		if p.Value == nil {
			return nil, false
		}
		return literalOf(env, p.Value)
	case *ast.MatchOr:
		var lits []types.Type
		for _, alt := range p.Patterns {
			l, ok := patternLiterals(env, alt)
			if !ok {
				return nil, false
			}
			lits = append(lits, l)
		}
		return types.Union(lits...), len(lits) > 0
	}
	return nil, false
}

// NarrowSubject returns the type of a match subject of type t after p
// matched (positive) or failed to match it.
func NarrowSubject(env Env, t types.Type, p ast.Pattern, positive bool) types.Type {
	b := env.Builtins()
	switch p := p.(type) {
	case *ast.MatchAs:
		if p.Pattern == nil {
			if positive {
				return t
			}
			return types.Never
		}
		return NarrowSubject(env, t, p.Pattern, positive)
	case *ast.MatchOr:
		if positive {
			parts := make([]types.Type, 0, len(p.Patterns))
			for _, alt := range p.Patterns {
				parts = append(parts, NarrowSubject(env, t, alt, true))
			}
			return types.Union(parts...)
		}
		for _, alt := range p.Patterns {
			t = NarrowSubject(env, t, alt, false)
		}
		return t
	case *ast.MatchValue:
		if lit, ok := literalOf(env, p.Value); ok {
			return literalCompare(b, lit, false, positive)(t)
		}
	case *ast.MatchSingleton:
		if p.Value == nil {
			return t
		}
		if lit, ok := literalOf(env, p.Value); ok {
			return literalCompare(b, lit, true, positive)(t)
		}
	case *ast.MatchClass:
		return narrowClassPattern(env, t, p, positive)
	case *ast.MatchSequence:
		return narrowSequencePattern(env, t, p, positive)
	case *ast.MatchMapping:
		return narrowMappingPattern(b, t, p, positive)
	}
	return t
}

func allIrrefutable(ps []ast.Pattern) bool {
	for _, p := range ps {
		if !ast.IsIrrefutable(p) {
			return false
		}
	}
	return true
}

// narrowClassPattern handles `case C(...)`. Builtin classes such as int and
// str match a single positional subpattern against the subject itself.
func narrowClassPattern(env Env, t types.Type, p *ast.MatchClass, positive bool) types.Type {
	b := env.Builtins()
	co, ok := env.TypeOf(p.Cls).(*types.ClassObject)
	if !ok {
		return t
	}
	classes := []*types.Class{co.Class}
	matched := isInstance(b, classes, true)(t)
	selfMatch := co.Class.Builtin && len(p.Patterns) == 1 && len(p.KwdPatterns) == 0

	if positive {
		if selfMatch {
			return NarrowSubject(env, matched, p.Patterns[0], true)
		}
		return matched
	}
	if allIrrefutable(p.Patterns) && allIrrefutable(p.KwdPatterns) {
		return isInstance(b, classes, false)(t)
	}
	if selfMatch {
		outside := isInstance(b, classes, false)(t)
		inside := NarrowSubject(env, matched, p.Patterns[0], false)
		return types.Union(outside, inside)
	}
	return t
}

// sequenceSlot is one non-star subpattern and the element index it binds
// in a tuple of a given length.
type sequenceSlot struct {
	index   int
	pattern ast.Pattern
}

// sequenceSlots aligns subpatterns with the elements of a tuple of length
// n. It reports false when the pattern cannot match that length.
func sequenceSlots(pats []ast.Pattern, n int) ([]sequenceSlot, bool) {
	star := -1
	for i, p := range pats {
		if _, ok := p.(*ast.MatchStar); ok {
			star = i
			break
		}
	}
	if star < 0 {
		if len(pats) != n {
			return nil, false
		}
		slots := make([]sequenceSlot, n)
		for i, p := range pats {
			slots[i] = sequenceSlot{index: i, pattern: p}
		}
		return slots, true
	}
	if n < len(pats)-1 {
		return nil, false
	}
	slots := make([]sequenceSlot, 0, len(pats)-1)
	for i, p := range pats {
		switch {
		case i < star:
			slots = append(slots, sequenceSlot{index: i, pattern: p})
		case i > star:
			slots = append(slots, sequenceSlot{index: n - (len(pats) - i), pattern: p})
		}
	}
	return slots, true
}

func hasStar(pats []ast.Pattern) bool {
	for _, p := range pats {
		if _, ok := p.(*ast.MatchStar); ok {
			return true
		}
	}
	return false
}

// isNonSequence reports whether instances of t can never match a sequence
// pattern: str, bytes, mappings, numbers, None and literals.
func isNonSequence(b *types.Builtins, m types.Type) bool {
	switch m := m.(type) {
	case *types.Literal, *types.Function, *types.ClassObject, *types.Module:
		return true
	case *types.Instance:
		if !m.Class.Builtin {
			return m.Class.TypedDict
		}
		return m.Class != b.List && m.Class != b.Tuple && m.Class != b.Range && m.Class != b.Object
	}
	return m.Kind() == types.KindNone
}

func narrowSequencePattern(env Env, t types.Type, p *ast.MatchSequence, positive bool) types.Type {
	b := env.Builtins()
	return mapMembers(b, t, func(m types.Type) types.Type {
		if isDynamic(m) {
			return m
		}
		if positive && isNonSequence(b, m) {
			return nil
		}
		tup, ok := m.(*types.Tuple)
		if !ok {
			return m
		}

		if tup.Unbounded {
			if !positive {
				if hasStar(p.Patterns) && len(p.Patterns) == 1 {
					return nil
				}
				return m
			}
			if hasStar(p.Patterns) {
				return m
			}
			elems := make([]types.Type, len(p.Patterns))
			for i := range elems {
				elems[i] = tup.Elems[0]
			}
			tup = &types.Tuple{Elems: elems}
		}

		slots, fits := sequenceSlots(p.Patterns, len(tup.Elems))
		if !fits {
			if positive {
				return nil
			}
			return m
		}
		if !positive {
			for _, s := range slots {
				if !types.IsNever(NarrowSubject(env, tup.Elems[s.index], s.pattern, false)) {
					return m
				}
			}
			return nil
		}
		elems := append([]types.Type(nil), tup.Elems...)
		for _, s := range slots {
			elems[s.index] = NarrowSubject(env, elems[s.index], s.pattern, true)
			if types.IsNever(elems[s.index]) {
				return nil
			}
		}
		return &types.Tuple{Elems: elems}
	})
}

func narrowMappingPattern(b *types.Builtins, t types.Type, p *ast.MatchMapping, positive bool) types.Type {
	return mapMembers(b, t, func(m types.Type) types.Type {
		if isDynamic(m) {
			return m
		}
		inst, ok := m.(*types.Instance)
		isMapping := ok && (inst.Class == b.Dict || inst.Class.TypedDict)
		if positive {
			if isMapping || (ok && !inst.Class.Builtin) || (ok && inst.Class == b.Object) {
				return m
			}
			return nil
		}
		if isMapping && len(p.Keys) == 0 {
			return nil
		}
		return m
	})
}

// narrowElement narrows element i of a tuple display of length n used as
// a match subject. The negative branch only narrows when every other
// subpattern is irrefutable, since otherwise the failure may come from a
// different element.
func narrowElement(env Env, t types.Type, p ast.Pattern, i, n int, positive bool) types.Type {
	switch p := p.(type) {
	case *ast.MatchAs:
		if p.Pattern == nil {
			if positive {
				return t
			}
			return types.Never
		}
		return narrowElement(env, t, p.Pattern, i, n, positive)
	case *ast.MatchOr:
		if positive {
			parts := make([]types.Type, 0, len(p.Patterns))
			for _, alt := range p.Patterns {
				parts = append(parts, narrowElement(env, t, alt, i, n, true))
			}
			return types.Union(parts...)
		}
		for _, alt := range p.Patterns {
			t = narrowElement(env, t, alt, i, n, false)
		}
		return t
	case *ast.MatchSequence:
		slots, fits := sequenceSlots(p.Patterns, n)
		if !fits {
			if positive {
				return types.Never
			}
			return t
		}
		var mine ast.Pattern
		othersIrrefutable := true
		for _, s := range slots {
			if s.index == i {
				mine = s.pattern
			} else if !ast.IsIrrefutable(s.pattern) {
				othersIrrefutable = false
			}
		}
		if positive {
			if mine == nil {
				return t
			}
			return NarrowSubject(env, t, mine, true)
		}
		if !othersIrrefutable {
			return t
		}
		if mine == nil {
			return types.Never
		}
		return NarrowSubject(env, t, mine, false)
	}
	return t
}
