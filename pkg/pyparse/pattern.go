package pyparse

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/flowtype/pkg/ast"
)

func (c *converter) pattern(n *sitter.Node) ast.Pattern {
	loc := c.loc(n)
	kids := namedChildren(n)
	switch n.Type() {
	case "case_pattern":
		if len(kids) == 0 {
			return &ast.MatchAs{Loc: loc}
		}
		if hasToken(n, "-") {
			return c.negative(n, kids[0])
		}
		return c.pattern(kids[0])
	case "as_pattern":
		if len(kids) == 0 {
			break
		}
		name := kids[len(kids)-1]
		if alias := n.ChildByFieldName("alias"); alias != nil {
			name = alias
		}
		return &ast.MatchAs{Loc: loc, Pattern: c.pattern(kids[0]), Name: c.text(name)}
	case "union_pattern":
		or := &ast.MatchOr{Loc: loc}
		for _, k := range kids {
			or.Patterns = append(or.Patterns, c.pattern(k))
		}
		return or
	case "list_pattern", "tuple_pattern":
		if n.Type() == "tuple_pattern" && len(kids) == 1 && !hasToken(n, ",") {
			return c.pattern(kids[0])
		}
		seq := &ast.MatchSequence{Loc: loc}
		for _, k := range kids {
			seq.Patterns = append(seq.Patterns, c.pattern(k))
		}
		return seq
	case "splat_pattern":
		return &ast.MatchStar{Loc: loc, Name: c.captureName(kids)}
	case "dict_pattern":
		return c.mappingPattern(n)
	case "class_pattern":
		return c.classPattern(n)
	case "dotted_name":
		if len(kids) == 1 {
			name := c.text(kids[0])
			if name == "_" {
				return &ast.MatchAs{Loc: loc}
			}
			return &ast.MatchAs{Loc: loc, Name: name}
		}
		return &ast.MatchValue{Loc: loc, Value: c.dotted(n)}
	case "identifier":
		if name := c.text(n); name != "_" {
			return &ast.MatchAs{Loc: loc, Name: name}
		}
		return &ast.MatchAs{Loc: loc}
	case "true", "false", "none":
		k, _ := c.expr(n).(*ast.Constant)
		return &ast.MatchSingleton{Loc: loc, Value: k}
	}
	return &ast.MatchValue{Loc: loc, Value: c.expr(n)}
}

// negative converts `-1` and `-1.5`, whose minus sign is a token of the
// enclosing pattern node.
func (c *converter) negative(parent, num *sitter.Node) ast.Pattern {
	return &ast.MatchValue{Loc: c.loc(parent), Value: &ast.UnaryOp{Loc: c.loc(parent), Op: "-", Operand: c.expr(num)}}
}

// captureName returns the name a star or double-star pattern binds, or ""
// for `*_`.
func (c *converter) captureName(kids []*sitter.Node) string {
	if len(kids) == 0 {
		return ""
	}
	if name := c.text(kids[0]); name != "_" {
		return name
	}
	return ""
}

func (c *converter) mappingPattern(n *sitter.Node) ast.Pattern {
	m := &ast.MatchMapping{Loc: c.loc(n)}
	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		switch n.FieldNameForChild(i) {
		case "key":
			m.Keys = append(m.Keys, c.mappingKey(ch))
			continue
		case "value":
			m.Patterns = append(m.Patterns, c.pattern(ch))
			continue
		}
		if ch.Type() == "splat_pattern" {
			m.Rest = c.captureName(namedChildren(ch))
		}
	}
	// A key whose value is the bare `_` token has no value node.
	for len(m.Patterns) < len(m.Keys) {
		m.Patterns = append(m.Patterns, &ast.MatchAs{Loc: m.Loc})
	}
	return m
}

func (c *converter) mappingKey(n *sitter.Node) ast.Expr {
	if n.Type() == "dotted_name" {
		return c.dotted(n)
	}
	return c.expr(n)
}

func (c *converter) classPattern(n *sitter.Node) ast.Pattern {
	cp := &ast.MatchClass{Loc: c.loc(n)}
	for _, k := range namedChildren(n) {
		switch k.Type() {
		case "dotted_name":
			if cp.Cls == nil {
				cp.Cls = c.dotted(k)
			}
		case "case_pattern":
			inner := namedChildren(k)
			if len(inner) == 1 && inner[0].Type() == "keyword_pattern" {
				c.keywordPattern(cp, inner[0])
				continue
			}
			cp.Patterns = append(cp.Patterns, c.pattern(k))
		case "keyword_pattern":
			c.keywordPattern(cp, k)
		}
	}
	return cp
}

func (c *converter) keywordPattern(cp *ast.MatchClass, n *sitter.Node) {
	kids := namedChildren(n)
	if len(kids) == 0 {
		return
	}
	cp.KwdAttrs = append(cp.KwdAttrs, c.text(kids[0]))
	switch {
	case len(kids) == 1:
		cp.KwdPatterns = append(cp.KwdPatterns, &ast.MatchAs{Loc: c.loc(n)})
	case hasToken(n, "-"):
		cp.KwdPatterns = append(cp.KwdPatterns, c.negative(n, kids[1]))
	default:
		cp.KwdPatterns = append(cp.KwdPatterns, c.pattern(kids[1]))
	}
}
