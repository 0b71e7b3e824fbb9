package pyparse

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/flowtype/pkg/ast"
)

func (c *converter) expr(n *sitter.Node) ast.Expr {
	if n == nil {
		return nil
	}
	loc := c.loc(n)
	switch n.Type() {
	case "identifier", "keyword_identifier":
		return &ast.Name{Loc: loc, ID: c.text(n)}
	case "attribute":
		return &ast.Attribute{
			Loc:   loc,
			Value: c.expr(n.ChildByFieldName("object")),
			Attr:  c.text(n.ChildByFieldName("attribute")),
		}
	case "subscript":
		s := &ast.Subscript{Loc: loc, Value: c.expr(n.ChildByFieldName("value"))}
		idx := fieldChildren(n, "subscript")
		if len(idx) == 1 {
			s.Index = c.expr(idx[0])
		} else {
			t := &ast.Tuple{Loc: loc}
			for _, k := range idx {
				t.Elts = append(t.Elts, c.expr(k))
			}
			s.Index = t
		}
		return s
	case "call":
		call := &ast.Call{Loc: loc, Func: c.expr(n.ChildByFieldName("function"))}
		args := n.ChildByFieldName("arguments")
		if args != nil && args.Type() == "generator_expression" {
			call.Args = []ast.Expr{c.expr(args)}
		} else {
			call.Args, call.Keywords = c.arguments(args)
		}
		return call
	case "integer":
		return c.integer(n)
	case "float":
		text := strings.ReplaceAll(c.text(n), "_", "")
		if v, err := strconv.ParseFloat(text, 64); err == nil {
			return &ast.Constant{Loc: loc, Kind: ast.ConstFloat, Value: v}
		}
		return c.opaque(n, "complex")
	case "string":
		return c.str(n)
	case "concatenated_string":
		return c.concatenated(n)
	case "true", "false":
		return &ast.Constant{Loc: loc, Kind: ast.ConstBool, Value: n.Type() == "true"}
	case "none":
		return &ast.Constant{Loc: loc, Kind: ast.ConstNone}
	case "ellipsis":
		return &ast.Constant{Loc: loc, Kind: ast.ConstEllipsis}
	case "comparison_operator":
		return c.compare(n)
	case "not_operator":
		return &ast.UnaryOp{Loc: loc, Op: "not", Operand: c.expr(n.ChildByFieldName("argument"))}
	case "boolean_operator":
		return c.boolOp(n)
	case "binary_operator":
		return &ast.BinOp{
			Loc:   loc,
			Left:  c.expr(n.ChildByFieldName("left")),
			Op:    c.text(n.ChildByFieldName("operator")),
			Right: c.expr(n.ChildByFieldName("right")),
		}
	case "unary_operator":
		return &ast.UnaryOp{
			Loc:     loc,
			Op:      c.text(n.ChildByFieldName("operator")),
			Operand: c.expr(n.ChildByFieldName("argument")),
		}
	case "conditional_expression":
		kids := namedChildren(n)
		if len(kids) != 3 {
			break
		}
		return &ast.IfExp{Loc: loc, Body: c.expr(kids[0]), Test: c.expr(kids[1]), OrElse: c.expr(kids[2])}
	case "named_expression":
		return &ast.NamedExpr{
			Loc:    loc,
			Target: &ast.Name{Loc: c.loc(n.ChildByFieldName("name")), ID: c.text(n.ChildByFieldName("name"))},
			Value:  c.expr(n.ChildByFieldName("value")),
		}
	case "parenthesized_expression":
		if kids := namedChildren(n); len(kids) == 1 {
			return c.expr(kids[0])
		}
	case "tuple", "expression_list", "pattern_list", "tuple_pattern":
		t := &ast.Tuple{Loc: loc}
		for _, k := range namedChildren(n) {
			t.Elts = append(t.Elts, c.expr(k))
		}
		return t
	case "list", "list_pattern":
		l := &ast.List{Loc: loc}
		for _, k := range namedChildren(n) {
			l.Elts = append(l.Elts, c.expr(k))
		}
		return l
	case "dictionary":
		d := &ast.Dict{Loc: loc}
		for _, k := range namedChildren(n) {
			switch k.Type() {
			case "pair":
				d.Keys = append(d.Keys, c.expr(k.ChildByFieldName("key")))
				d.Values = append(d.Values, c.expr(k.ChildByFieldName("value")))
			case "dictionary_splat":
				d.Keys = append(d.Keys, nil)
				d.Values = append(d.Values, c.first(k))
			}
		}
		return d
	case "list_splat", "list_splat_pattern":
		return &ast.Starred{Loc: loc, Value: c.first(n)}
	case "await":
		return &ast.Await{Loc: loc, Value: c.first(n)}
	case "lambda":
		return &ast.Lambda{
			Loc:    loc,
			Params: c.params(n.ChildByFieldName("parameters")),
			Body:   c.expr(n.ChildByFieldName("body")),
		}
	case "yield":
		return c.opaque(n, ast.OpaqueYield, namedChildren(n)...)
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		return c.comprehension(n)
	case "type":
		if kids := namedChildren(n); len(kids) == 1 {
			return c.expr(kids[0])
		}
	case "generic_type":
		return c.genericType(n)
	case "union_type":
		if kids := namedChildren(n); len(kids) == 2 {
			return &ast.BinOp{Loc: loc, Left: c.expr(kids[0]), Op: "|", Right: c.expr(kids[1])}
		}
	case "member_type":
		if kids := namedChildren(n); len(kids) == 2 {
			return &ast.Attribute{Loc: loc, Value: c.expr(kids[0]), Attr: c.text(kids[1])}
		}
	}
	return c.opaque(n, n.Type(), namedChildren(n)...)
}

// genericType lowers an annotation such as `Optional[int]`, which the
// grammar keeps apart from subscript expressions, to a Subscript.
func (c *converter) genericType(n *sitter.Node) ast.Expr {
	loc := c.loc(n)
	var (
		value ast.Expr
		args  []ast.Expr
	)
	for _, k := range namedChildren(n) {
		if k.Type() == "type_parameter" {
			for _, p := range namedChildren(k) {
				args = append(args, c.expr(p))
			}
			continue
		}
		if value == nil {
			value = c.expr(k)
		}
	}
	if value == nil {
		return c.opaque(n, n.Type(), namedChildren(n)...)
	}
	s := &ast.Subscript{Loc: loc, Value: value}
	if len(args) == 1 {
		s.Index = args[0]
	} else {
		s.Index = &ast.Tuple{Loc: loc, Elts: args}
	}
	return s
}

// first converts the first named child of n.
func (c *converter) first(n *sitter.Node) ast.Expr {
	kids := namedChildren(n)
	if len(kids) == 0 {
		return nil
	}
	return c.expr(kids[0])
}

func (c *converter) opaque(n *sitter.Node, kind string, children ...*sitter.Node) *ast.Opaque {
	o := &ast.Opaque{Loc: c.loc(n), Kind: kind, Text: c.text(n)}
	for _, ch := range children {
		if x := c.expr(ch); x != nil {
			o.Children = append(o.Children, x)
		}
	}
	return o
}

// comprehension keeps only the outermost iterable, the one part evaluated
// in the enclosing scope.
func (c *converter) comprehension(n *sitter.Node) ast.Expr {
	for _, k := range namedChildren(n) {
		if k.Type() == "for_in_clause" {
			return c.opaque(n, n.Type(), k.ChildByFieldName("right"))
		}
	}
	return c.opaque(n, n.Type())
}

// arguments converts an argument_list into positional and keyword
// arguments. A `**mapping` argument is a keyword with an empty name.
func (c *converter) arguments(n *sitter.Node) ([]ast.Expr, []ast.Keyword) {
	var args []ast.Expr
	var kws []ast.Keyword
	for _, k := range namedChildren(n) {
		switch k.Type() {
		case "keyword_argument":
			kws = append(kws, ast.Keyword{
				Name:  c.text(k.ChildByFieldName("name")),
				Value: c.expr(k.ChildByFieldName("value")),
			})
		case "dictionary_splat":
			kws = append(kws, ast.Keyword{Value: c.first(k)})
		default:
			args = append(args, c.expr(k))
		}
	}
	return args, kws
}

func (c *converter) integer(n *sitter.Node) ast.Expr {
	text := c.text(n)
	if strings.HasSuffix(text, "j") || strings.HasSuffix(text, "J") {
		return c.opaque(n, "complex")
	}
	text = strings.TrimRight(text, "lL")
	v, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		// Beyond int64, or a legacy octal literal.
		return c.opaque(n, "integer")
	}
	return &ast.Constant{Loc: c.loc(n), Kind: ast.ConstInt, Value: v}
}

// str converts a string literal. f-strings become Opaque nodes whose
// children are the interpolated expressions.
func (c *converter) str(n *sitter.Node) ast.Expr {
	raw := c.text(n)
	q := strings.IndexAny(raw, `'"`)
	if q < 0 {
		return c.opaque(n, "string")
	}
	prefix := strings.ToLower(raw[:q])
	if strings.Contains(prefix, "f") {
		var parts []*sitter.Node
		for _, k := range namedChildren(n) {
			if k.Type() == "interpolation" {
				if e := k.ChildByFieldName("expression"); e != nil {
					parts = append(parts, e)
				} else if kids := namedChildren(k); len(kids) > 0 {
					parts = append(parts, kids[0])
				}
			}
		}
		return c.opaque(n, "fstring", parts...)
	}
	body := stripQuotes(raw[q:])
	if !strings.Contains(prefix, "r") {
		body = unescape(body)
	}
	kind := ast.ConstStr
	if strings.Contains(prefix, "b") {
		kind = ast.ConstBytes
	}
	return &ast.Constant{Loc: c.loc(n), Kind: kind, Value: body}
}

func (c *converter) concatenated(n *sitter.Node) ast.Expr {
	var sb strings.Builder
	kind := ast.ConstStr
	for i, k := range namedChildren(n) {
		part, ok := c.str(k).(*ast.Constant)
		if !ok {
			return c.opaque(n, "fstring", namedChildren(n)...)
		}
		if i == 0 {
			kind = part.Kind
		}
		s, _ := part.Value.(string)
		sb.WriteString(s)
	}
	return &ast.Constant{Loc: c.loc(n), Kind: kind, Value: sb.String()}
}

func stripQuotes(s string) string {
	for _, q := range []string{`"""`, `'''`} {
		if len(s) >= 6 && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[3 : len(s)-3]
		}
	}
	if len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}

// unescape decodes the common backslash escapes. Others are kept verbatim.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '0':
			sb.WriteByte(0)
		case '\\', '\'', '"':
			sb.WriteByte(s[i])
		case '\n':
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// compare converts a chained comparison. Operators are the anonymous
// tokens between operands; `not in` and `is not` may arrive as two tokens.
func (c *converter) compare(n *sitter.Node) ast.Expr {
	cmp := &ast.Compare{Loc: c.loc(n)}
	var op []string
	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		if !ch.IsNamed() {
			op = append(op, ch.Type())
			continue
		}
		if ch.Type() == "comment" {
			continue
		}
		x := c.expr(ch)
		if cmp.Left == nil {
			cmp.Left = x
			continue
		}
		o := strings.Join(op, " ")
		if o == "<>" {
			o = string(ast.CmpNotEq)
		}
		cmp.Ops = append(cmp.Ops, ast.CmpOp(o))
		cmp.Comparators = append(cmp.Comparators, x)
		op = op[:0]
	}
	return cmp
}

// boolOp flattens unparenthesized chains of the same operator.
func (c *converter) boolOp(n *sitter.Node) ast.Expr {
	b := &ast.BoolOp{Loc: c.loc(n), Op: c.text(n.ChildByFieldName("operator"))}
	left := n.ChildByFieldName("left")
	if left != nil && left.Type() == "boolean_operator" && c.text(left.ChildByFieldName("operator")) == b.Op {
		if inner, ok := c.boolOp(left).(*ast.BoolOp); ok {
			b.Values = append(b.Values, inner.Values...)
		}
	} else {
		b.Values = append(b.Values, c.expr(left))
	}
	b.Values = append(b.Values, c.expr(n.ChildByFieldName("right")))
	return b
}

// dotted converts a dotted_name into a Name or Attribute chain.
func (c *converter) dotted(n *sitter.Node) ast.Expr {
	var x ast.Expr
	for _, k := range namedChildren(n) {
		if x == nil {
			x = &ast.Name{Loc: c.loc(k), ID: c.text(k)}
			continue
		}
		x = &ast.Attribute{Loc: c.loc(n), Value: x, Attr: c.text(k)}
	}
	return x
}
