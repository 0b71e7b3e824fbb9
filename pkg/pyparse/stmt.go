package pyparse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/flowtype/pkg/ast"
)

// stmts converts the statements of a module or block.
func (c *converter) stmts(n *sitter.Node) []ast.Stmt {
	var out []ast.Stmt
	for _, ch := range namedChildren(n) {
		if s := c.stmt(ch); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (c *converter) stmt(n *sitter.Node) ast.Stmt {
	loc := c.loc(n)
	switch n.Type() {
	case "expression_statement":
		return c.exprStmt(n)
	case "return_statement":
		r := &ast.Return{Loc: loc}
		if kids := namedChildren(n); len(kids) > 0 {
			r.Value = c.expr(kids[0])
		}
		return r
	case "pass_statement":
		return &ast.Pass{Loc: loc}
	case "break_statement":
		return &ast.Break{Loc: loc}
	case "continue_statement":
		return &ast.Continue{Loc: loc}
	case "raise_statement":
		r := &ast.Raise{Loc: loc}
		for i := 0; i < int(n.ChildCount()); i++ {
			ch := n.Child(i)
			if !ch.IsNamed() || ch.Type() == "comment" {
				continue
			}
			if n.FieldNameForChild(i) == "cause" {
				r.Cause = c.expr(ch)
			} else if r.Exc == nil {
				r.Exc = c.expr(ch)
			}
		}
		return r
	case "delete_statement":
		d := &ast.Delete{Loc: loc}
		for _, ch := range namedChildren(n) {
			if ch.Type() == "expression_list" {
				for _, t := range namedChildren(ch) {
					d.Targets = append(d.Targets, c.target(t))
				}
				continue
			}
			d.Targets = append(d.Targets, c.target(ch))
		}
		return d
	case "assert_statement":
		a := &ast.Assert{Loc: loc}
		kids := namedChildren(n)
		if len(kids) > 0 {
			a.Test = c.expr(kids[0])
		}
		if len(kids) > 1 {
			a.Msg = c.expr(kids[1])
		}
		return a
	case "global_statement":
		return &ast.Global{Loc: loc, Names: c.identifiers(n)}
	case "nonlocal_statement":
		return &ast.Nonlocal{Loc: loc, Names: c.identifiers(n)}
	case "import_statement":
		return &ast.Import{Loc: loc, Names: c.aliases(n)}
	case "import_from_statement":
		imp := &ast.ImportFrom{Loc: loc, Module: c.text(n.ChildByFieldName("module_name")), Names: c.aliases(n)}
		for _, ch := range namedChildren(n) {
			if ch.Type() == "wildcard_import" {
				imp.Wildcard = true
			}
		}
		return imp
	case "future_import_statement":
		return &ast.ImportFrom{Loc: loc, Module: "__future__", Names: c.aliases(n)}
	case "if_statement":
		return c.ifStmt(n)
	case "while_statement":
		return &ast.While{
			Loc:    loc,
			Test:   c.expr(n.ChildByFieldName("condition")),
			Body:   c.stmts(n.ChildByFieldName("body")),
			OrElse: c.elseBody(n.ChildByFieldName("alternative")),
		}
	case "for_statement":
		return &ast.For{
			Loc:    loc,
			Target: c.target(n.ChildByFieldName("left")),
			Iter:   c.expr(n.ChildByFieldName("right")),
			Body:   c.stmts(n.ChildByFieldName("body")),
			OrElse: c.elseBody(n.ChildByFieldName("alternative")),
			Async:  hasToken(n, "async"),
		}
	case "try_statement":
		return c.tryStmt(n)
	case "with_statement":
		return c.withStmt(n)
	case "match_statement":
		return c.matchStmt(n)
	case "function_definition":
		return c.functionDef(n)
	case "class_definition":
		return c.classDef(n)
	case "decorated_definition":
		return c.decorated(n)
	}
	// print and exec statements, type aliases and anything newer than the
	// grammar carry no flow.
	return &ast.Pass{Loc: loc}
}

func (c *converter) exprStmt(n *sitter.Node) ast.Stmt {
	loc := c.loc(n)
	kids := namedChildren(n)
	switch {
	case len(kids) == 0:
		return &ast.Pass{Loc: loc}
	case len(kids) > 1:
		t := &ast.Tuple{Loc: loc}
		for _, k := range kids {
			t.Elts = append(t.Elts, c.expr(k))
		}
		return &ast.ExprStmt{Loc: loc, Value: t}
	}
	switch k := kids[0]; k.Type() {
	case "assignment":
		return c.assignment(k, loc)
	case "augmented_assignment":
		return &ast.AugAssign{
			Loc:    loc,
			Target: c.target(k.ChildByFieldName("left")),
			Op:     strings.TrimSuffix(c.text(k.ChildByFieldName("operator")), "="),
			Value:  c.expr(k.ChildByFieldName("right")),
		}
	default:
		return &ast.ExprStmt{Loc: loc, Value: c.expr(k)}
	}
}

// assignment converts plain, chained and annotated assignments.
func (c *converter) assignment(n *sitter.Node, loc ast.Loc) ast.Stmt {
	left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
	if ann := n.ChildByFieldName("type"); ann != nil {
		a := &ast.AnnAssign{Loc: loc, Target: c.target(left), Annotation: c.typeExpr(ann)}
		if right != nil {
			a.Value = c.expr(right)
		}
		return a
	}
	a := &ast.Assign{Loc: loc, Targets: []ast.Expr{c.target(left)}}
	for right != nil && right.Type() == "assignment" {
		a.Targets = append(a.Targets, c.target(right.ChildByFieldName("left")))
		right = right.ChildByFieldName("right")
	}
	a.Value = c.expr(right)
	return a
}

// target converts an assignment target.
func (c *converter) target(n *sitter.Node) ast.Expr {
	if n == nil {
		return nil
	}
	loc := c.loc(n)
	switch n.Type() {
	case "pattern_list", "tuple_pattern", "expression_list", "tuple":
		t := &ast.Tuple{Loc: loc}
		for _, k := range namedChildren(n) {
			t.Elts = append(t.Elts, c.target(k))
		}
		return t
	case "list_pattern", "list":
		l := &ast.List{Loc: loc}
		for _, k := range namedChildren(n) {
			l.Elts = append(l.Elts, c.target(k))
		}
		return l
	case "list_splat_pattern", "list_splat":
		kids := namedChildren(n)
		if len(kids) == 0 {
			return c.expr(n)
		}
		return &ast.Starred{Loc: loc, Value: c.target(kids[0])}
	case "parenthesized_expression":
		if kids := namedChildren(n); len(kids) == 1 {
			return c.target(kids[0])
		}
	}
	return c.expr(n)
}

func (c *converter) identifiers(n *sitter.Node) []string {
	var out []string
	for _, ch := range namedChildren(n) {
		if ch.Type() == "identifier" {
			out = append(out, c.text(ch))
		}
	}
	return out
}

func (c *converter) aliases(n *sitter.Node) []ast.Alias {
	var out []ast.Alias
	for _, ch := range fieldChildren(n, "name") {
		if ch.Type() == "aliased_import" {
			out = append(out, ast.Alias{
				Name:   c.text(ch.ChildByFieldName("name")),
				AsName: c.text(ch.ChildByFieldName("alias")),
			})
			continue
		}
		out = append(out, ast.Alias{Name: c.text(ch)})
	}
	return out
}

// ifStmt folds elif clauses into nested If statements.
func (c *converter) ifStmt(n *sitter.Node) ast.Stmt {
	var elifs []*sitter.Node
	var orElse []ast.Stmt
	for _, alt := range fieldChildren(n, "alternative") {
		switch alt.Type() {
		case "elif_clause":
			elifs = append(elifs, alt)
		case "else_clause":
			orElse = c.elseBody(alt)
		}
	}
	for i := len(elifs) - 1; i >= 0; i-- {
		e := elifs[i]
		orElse = []ast.Stmt{&ast.If{
			Loc:    c.loc(e),
			Test:   c.expr(e.ChildByFieldName("condition")),
			Body:   c.stmts(e.ChildByFieldName("consequence")),
			OrElse: orElse,
		}}
	}
	return &ast.If{
		Loc:    c.loc(n),
		Test:   c.expr(n.ChildByFieldName("condition")),
		Body:   c.stmts(n.ChildByFieldName("consequence")),
		OrElse: orElse,
	}
}

func (c *converter) elseBody(n *sitter.Node) []ast.Stmt {
	if n == nil {
		return nil
	}
	return c.stmts(n.ChildByFieldName("body"))
}

func (c *converter) tryStmt(n *sitter.Node) ast.Stmt {
	t := &ast.Try{Loc: c.loc(n), Body: c.stmts(n.ChildByFieldName("body"))}
	for _, ch := range namedChildren(n) {
		switch ch.Type() {
		case "except_clause", "except_group_clause":
			t.Handlers = append(t.Handlers, c.handler(ch))
		case "else_clause":
			t.OrElse = c.elseBody(ch)
		case "finally_clause":
			for _, k := range namedChildren(ch) {
				if k.Type() == "block" {
					t.Finally = c.stmts(k)
				}
			}
		}
	}
	return t
}

func (c *converter) handler(n *sitter.Node) *ast.ExceptHandler {
	h := &ast.ExceptHandler{Loc: c.loc(n)}
	for _, k := range namedChildren(n) {
		switch {
		case k.Type() == "block":
			h.Body = c.stmts(k)
		case k.Type() == "as_pattern":
			kids := namedChildren(k)
			if len(kids) > 0 {
				h.Type = c.expr(kids[0])
			}
			h.Name = c.text(k.ChildByFieldName("alias"))
		case h.Type == nil:
			h.Type = c.expr(k)
		case h.Name == "":
			h.Name = c.text(k)
		}
	}
	return h
}

func (c *converter) withStmt(n *sitter.Node) ast.Stmt {
	w := &ast.With{Loc: c.loc(n), Body: c.stmts(n.ChildByFieldName("body")), Async: hasToken(n, "async")}
	for _, clause := range namedChildren(n) {
		if clause.Type() != "with_clause" {
			continue
		}
		for _, item := range namedChildren(clause) {
			if item.Type() != "with_item" {
				continue
			}
			value := item.ChildByFieldName("value")
			if value != nil && value.Type() == "as_pattern" {
				kids := namedChildren(value)
				wi := &ast.WithItem{Context: c.expr(kids[0])}
				if alias := value.ChildByFieldName("alias"); alias != nil {
					if inner := namedChildren(alias); alias.Type() == "as_pattern_target" && len(inner) == 1 {
						wi.Target = c.target(inner[0])
					} else {
						wi.Target = c.target(alias)
					}
				}
				w.Items = append(w.Items, wi)
				continue
			}
			w.Items = append(w.Items, &ast.WithItem{Context: c.expr(value)})
		}
	}
	return w
}

func (c *converter) matchStmt(n *sitter.Node) ast.Stmt {
	m := &ast.Match{Loc: c.loc(n)}
	subjects := fieldChildren(n, "subject")
	if len(subjects) == 1 {
		m.Subject = c.expr(subjects[0])
	} else {
		t := &ast.Tuple{Loc: c.loc(n)}
		for _, s := range subjects {
			t.Elts = append(t.Elts, c.expr(s))
		}
		m.Subject = t
	}
	for _, cc := range namedChildren(n.ChildByFieldName("body")) {
		if cc.Type() != "case_clause" {
			continue
		}
		mc := &ast.MatchCase{Loc: c.loc(cc), Body: c.stmts(cc.ChildByFieldName("consequence"))}
		var pats []ast.Pattern
		for _, k := range namedChildren(cc) {
			if k.Type() == "case_pattern" {
				pats = append(pats, c.pattern(k))
			}
		}
		if len(pats) == 1 {
			mc.Pattern = pats[0]
		} else {
			mc.Pattern = &ast.MatchSequence{Loc: c.loc(cc), Patterns: pats}
		}
		if guard := cc.ChildByFieldName("guard"); guard != nil {
			if kids := namedChildren(guard); len(kids) > 0 {
				mc.Guard = c.expr(kids[0])
			}
		}
		m.Cases = append(m.Cases, mc)
	}
	return m
}

func (c *converter) functionDef(n *sitter.Node) *ast.FunctionDef {
	def := &ast.FunctionDef{
		Loc:    c.loc(n),
		Name:   c.text(n.ChildByFieldName("name")),
		Params: c.params(n.ChildByFieldName("parameters")),
		Body:   c.stmts(n.ChildByFieldName("body")),
		Async:  hasToken(n, "async"),
	}
	if ret := n.ChildByFieldName("return_type"); ret != nil {
		def.Returns = c.typeExpr(ret)
	}
	return def
}

func (c *converter) classDef(n *sitter.Node) *ast.ClassDef {
	cd := &ast.ClassDef{
		Loc:  c.loc(n),
		Name: c.text(n.ChildByFieldName("name")),
		Body: c.stmts(n.ChildByFieldName("body")),
	}
	if sup := n.ChildByFieldName("superclasses"); sup != nil {
		cd.Bases, cd.Keywords = c.arguments(sup)
	}
	return cd
}

func (c *converter) decorated(n *sitter.Node) ast.Stmt {
	var decs []ast.Expr
	for _, k := range namedChildren(n) {
		if k.Type() != "decorator" {
			continue
		}
		if kids := namedChildren(k); len(kids) > 0 {
			decs = append(decs, c.expr(kids[0]))
		}
	}
	def := n.ChildByFieldName("definition")
	if def == nil {
		return &ast.Pass{Loc: c.loc(n)}
	}
	switch def.Type() {
	case "function_definition":
		fn := c.functionDef(def)
		fn.Decorators = decs
		return fn
	case "class_definition":
		cd := c.classDef(def)
		cd.Decorators = decs
		return cd
	}
	return c.stmt(def)
}

// params converts a parameters or lambda_parameters node.
func (c *converter) params(n *sitter.Node) []*ast.Param {
	var out []*ast.Param
	for _, k := range namedChildren(n) {
		if p := c.param(k); p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (c *converter) param(n *sitter.Node) *ast.Param {
	p := &ast.Param{Loc: c.loc(n), Kind: ast.ParamNormal}
	switch n.Type() {
	case "identifier":
		p.Name = c.text(n)
	case "list_splat_pattern", "dictionary_splat_pattern":
		p.Kind = ast.ParamVarArgs
		if n.Type() == "dictionary_splat_pattern" {
			p.Kind = ast.ParamKwArgs
		}
		if kids := namedChildren(n); len(kids) > 0 {
			p.Name = c.text(kids[0])
		}
	case "typed_parameter":
		kids := namedChildren(n)
		if len(kids) == 0 {
			return nil
		}
		inner := c.param(kids[0])
		if inner == nil {
			return nil
		}
		inner.Loc = p.Loc
		inner.Annotation = c.typeExpr(n.ChildByFieldName("type"))
		return inner
	case "default_parameter", "typed_default_parameter":
		p.Name = c.text(n.ChildByFieldName("name"))
		p.Default = c.expr(n.ChildByFieldName("value"))
		if ann := n.ChildByFieldName("type"); ann != nil {
			p.Annotation = c.typeExpr(ann)
		}
	default:
		// `*` and `/` separators bind nothing.
		return nil
	}
	return p
}

// typeExpr unwraps the grammar's type node around an annotation.
func (c *converter) typeExpr(n *sitter.Node) ast.Expr {
	if n == nil {
		return nil
	}
	if n.Type() == "type" {
		if kids := namedChildren(n); len(kids) == 1 {
			return c.expr(kids[0])
		}
	}
	return c.expr(n)
}
