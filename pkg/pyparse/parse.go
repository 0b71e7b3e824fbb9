// Package pyparse builds the analyzer's syntax tree from Python source using
// the tree-sitter Python grammar.
package pyparse

import (
	"errors"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/l3aro/flowtype/pkg/ast"
)

// ErrSyntax is wrapped by every SyntaxError.
var ErrSyntax = errors.New("invalid syntax")

// SyntaxError reports the first error or missing node tree-sitter recovered
// from.
type SyntaxError struct {
	Path string
	Line int
	Col  int
	Near string
}

func (e *SyntaxError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("%s:%d:%d: %v", e.Path, e.Line, e.Col, ErrSyntax)
	}
	return fmt.Sprintf("%s:%d:%d: %v near %q", e.Path, e.Line, e.Col, ErrSyntax, e.Near)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// NewParser returns a tree-sitter parser for Python. Parsers are not safe
// for concurrent use.
func NewParser() *sitter.Parser {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return parser
}

// ParseFile reads and parses the file at path.
func ParseFile(path string) (*ast.Module, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(path, content)
}

// Parse converts Python source into a module. path is only recorded.
func Parse(path string, src []byte) (*ast.Module, error) {
	parser := NewParser()
	defer parser.Close()

	tree := parser.Parse(nil, src)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse %s", path)
	}
	defer tree.Close()

	root := tree.RootNode()
	if bad := firstError(root); bad != nil {
		return nil, syntaxError(path, bad, src)
	}

	c := &converter{src: src}
	mod := &ast.Module{Loc: c.loc(root), Path: path}
	mod.Body = c.stmts(root)
	return mod, nil
}

// ParseExpr parses a single expression, such as the text of a string
// annotation.
func ParseExpr(src string) (ast.Expr, error) {
	content := []byte(strings.TrimSpace(src))
	if len(content) == 0 {
		return nil, &SyntaxError{Path: "<expr>", Line: 1}
	}
	parser := NewParser()
	defer parser.Close()

	tree := parser.Parse(nil, content)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse expression %q", src)
	}
	defer tree.Close()

	root := tree.RootNode()
	if bad := firstError(root); bad != nil {
		return nil, syntaxError("<expr>", bad, content)
	}
	stmts := namedChildren(root)
	if len(stmts) != 1 || stmts[0].Type() != "expression_statement" {
		return nil, fmt.Errorf("%q is not an expression", src)
	}
	kids := namedChildren(stmts[0])
	if len(kids) != 1 {
		return nil, fmt.Errorf("%q is not an expression", src)
	}
	switch kids[0].Type() {
	case "assignment", "augmented_assignment":
		return nil, fmt.Errorf("%q is not an expression", src)
	}
	c := &converter{src: content}
	return c.expr(kids[0]), nil
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsMissing() || n.Type() == "ERROR" {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := firstError(n.Child(i)); bad != nil {
			return bad
		}
	}
	return nil
}

func syntaxError(path string, n *sitter.Node, src []byte) error {
	p := n.StartPoint()
	near := n.Content(src)
	if i := strings.IndexByte(near, '\n'); i >= 0 {
		near = near[:i]
	}
	if n.IsMissing() {
		near = n.Type()
	}
	return &SyntaxError{Path: path, Line: int(p.Row) + 1, Col: int(p.Column), Near: near}
}

type converter struct {
	src []byte
}

func (c *converter) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(c.src)
}

func (c *converter) loc(n *sitter.Node) ast.Loc {
	sp, ep := n.StartPoint(), n.EndPoint()
	return ast.Loc{Line: int(sp.Row) + 1, Col: int(sp.Column), EndLine: int(ep.Row) + 1}
}

// namedChildren returns the named children of n without comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		ch := n.NamedChild(i)
		switch ch.Type() {
		case "comment", "line_continuation":
			continue
		}
		out = append(out, ch)
	}
	return out
}

// fieldChildren returns every child of n stored under field.
func fieldChildren(n *sitter.Node, field string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == field {
			out = append(out, n.Child(i))
		}
	}
	return out
}

// hasToken reports whether n has an anonymous child spelled tok.
func hasToken(n *sitter.Node, tok string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		if !ch.IsNamed() && ch.Type() == tok {
			return true
		}
	}
	return false
}
