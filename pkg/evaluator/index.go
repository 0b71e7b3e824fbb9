package evaluator

import (
	"github.com/l3aro/flowtype/pkg/ast"
)

// patternSlot locates a sub-pattern inside its parent pattern.
type patternSlot struct {
	parent ast.Pattern
	index  int
	attr   string
}

// index holds the syntactic relations the evaluator needs and the syntax
// tree does not link: enclosing classes, overload groups, match structure
// and generator functions.
type index struct {
	methodOf   map[*ast.FunctionDef]*ast.ClassDef
	overloads  map[*ast.FunctionDef][]*ast.FunctionDef
	generators map[*ast.FunctionDef]bool

	caseOf  map[ast.Pattern]*ast.MatchCase
	matchOf map[*ast.MatchCase]*ast.Match
	parent  map[ast.Pattern]patternSlot
}

func buildIndex(mod *ast.Module) *index {
	idx := &index{
		methodOf:   make(map[*ast.FunctionDef]*ast.ClassDef),
		overloads:  make(map[*ast.FunctionDef][]*ast.FunctionDef),
		generators: make(map[*ast.FunctionDef]bool),
		caseOf:     make(map[ast.Pattern]*ast.MatchCase),
		matchOf:    make(map[*ast.MatchCase]*ast.Match),
		parent:     make(map[ast.Pattern]patternSlot),
	}
	idx.block(mod.Body)
	ast.Inspect(mod, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.ClassDef:
			for _, s := range n.Body {
				if fd, ok := s.(*ast.FunctionDef); ok {
					idx.methodOf[fd] = n
				}
			}
			idx.block(n.Body)
		case *ast.FunctionDef:
			idx.generators[n] = containsYield(n.Body)
			idx.block(n.Body)
		case *ast.If:
			idx.block(n.Body)
			idx.block(n.OrElse)
		case *ast.While:
			idx.block(n.Body)
			idx.block(n.OrElse)
		case *ast.For:
			idx.block(n.Body)
			idx.block(n.OrElse)
		case *ast.With:
			idx.block(n.Body)
		case *ast.Try:
			idx.block(n.Body)
			idx.block(n.OrElse)
			idx.block(n.Finally)
		case *ast.ExceptHandler:
			idx.block(n.Body)
		case *ast.Match:
			for _, c := range n.Cases {
				idx.matchOf[c] = n
				if c.Pattern != nil {
					idx.caseOf[c.Pattern] = c
					idx.patterns(c.Pattern)
				}
			}
		case *ast.MatchCase:
			idx.block(n.Body)
		}
		return true
	})
	return idx
}

// block groups the @overload signatures of a statement list with the
// implementation that follows them.
func (idx *index) block(body []ast.Stmt) {
	pending := make(map[string][]*ast.FunctionDef)
	for _, s := range body {
		fd, ok := s.(*ast.FunctionDef)
		if !ok {
			continue
		}
		if hasDecorator(fd.Decorators, "overload") {
			pending[fd.Name] = append(pending[fd.Name], fd)
			continue
		}
		if sigs := pending[fd.Name]; len(sigs) > 0 {
			idx.overloads[fd] = sigs
			delete(pending, fd.Name)
		}
	}
}

func (idx *index) patterns(p ast.Pattern) {
	link := func(child ast.Pattern, slot patternSlot) {
		if child == nil {
			return
		}
		slot.parent = p
		idx.parent[child] = slot
		idx.patterns(child)
	}
	switch p := p.(type) {
	case *ast.MatchAs:
		link(p.Pattern, patternSlot{})
	case *ast.MatchOr:
		for i, alt := range p.Patterns {
			link(alt, patternSlot{index: i})
		}
	case *ast.MatchSequence:
		for i, el := range p.Patterns {
			link(el, patternSlot{index: i})
		}
	case *ast.MatchMapping:
		for i, v := range p.Patterns {
			link(v, patternSlot{index: i})
		}
	case *ast.MatchClass:
		for i, arg := range p.Patterns {
			link(arg, patternSlot{index: i})
		}
		for i, kw := range p.KwdPatterns {
			attr := ""
			if i < len(p.KwdAttrs) {
				attr = p.KwdAttrs[i]
			}
			link(kw, patternSlot{index: -1, attr: attr})
		}
	}
}

// hasDecorator matches `@name`, `@mod.name` and `@name(...)` syntactically.
func hasDecorator(decs []ast.Expr, name string) bool {
	for _, d := range decs {
		if c, ok := d.(*ast.Call); ok {
			d = c.Func
		}
		switch d := d.(type) {
		case *ast.Name:
			if d.ID == name {
				return true
			}
		case *ast.Attribute:
			if d.Attr == name {
				return true
			}
		}
	}
	return false
}

// containsYield reports whether a function body yields, ignoring nested
// scopes.
func containsYield(body []ast.Stmt) bool {
	found := false
	for _, s := range body {
		ast.Inspect(s, func(n ast.Node) bool {
			if found {
				return false
			}
			switch n := n.(type) {
			case *ast.FunctionDef, *ast.ClassDef, *ast.Lambda:
				return false
			case *ast.Opaque:
				if n.Kind == ast.OpaqueYield {
					found = true
					return false
				}
			}
			return true
		})
	}
	return found
}

// onlyRaisesNotImplemented reports whether the body, after an optional
// docstring, is a single `raise NotImplementedError`.
func onlyRaisesNotImplemented(body []ast.Stmt) bool {
	if len(body) > 0 {
		if es, ok := body[0].(*ast.ExprStmt); ok {
			if c, ok := es.Value.(*ast.Constant); ok && c.Kind == ast.ConstStr {
				body = body[1:]
			}
		}
	}
	if len(body) != 1 {
		return false
	}
	r, ok := body[0].(*ast.Raise)
	if !ok || r.Exc == nil {
		return false
	}
	exc := r.Exc
	if c, ok := exc.(*ast.Call); ok {
		exc = c.Func
	}
	n, ok := exc.(*ast.Name)
	return ok && n.ID == "NotImplementedError"
}
