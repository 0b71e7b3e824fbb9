package ast

// Inspect traverses the tree rooted at n in depth-first order. If f returns
// false the children of that node are skipped. Nested function, class and
// lambda bodies are visited too; callers that work per scope stop there.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || isNilNode(n) {
		return
	}
	if !f(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, f)
	}
}

// Children returns the direct child nodes of n in source order.
func Children(n Node) []Node {
	var out []Node
	addE := func(es ...Expr) {
		for _, e := range es {
			if e != nil && !isNilNode(e) {
				out = append(out, e)
			}
		}
	}
	addS := func(ss []Stmt) {
		for _, s := range ss {
			out = append(out, s)
		}
	}
	addP := func(ps ...Pattern) {
		for _, p := range ps {
			if p != nil && !isNilNode(p) {
				out = append(out, p)
			}
		}
	}

	switch n := n.(type) {
	case *Attribute:
		addE(n.Value)
	case *Subscript:
		addE(n.Value, n.Index)
	case *Call:
		addE(n.Func)
		addE(n.Args...)
		for _, kw := range n.Keywords {
			addE(kw.Value)
		}
	case *Compare:
		addE(n.Left)
		addE(n.Comparators...)
	case *BoolOp:
		addE(n.Values...)
	case *UnaryOp:
		addE(n.Operand)
	case *BinOp:
		addE(n.Left, n.Right)
	case *IfExp:
		addE(n.Test, n.Body, n.OrElse)
	case *NamedExpr:
		addE(n.Target, n.Value)
	case *Tuple:
		addE(n.Elts...)
	case *List:
		addE(n.Elts...)
	case *Dict:
		addE(n.Keys...)
		addE(n.Values...)
	case *Starred:
		addE(n.Value)
	case *Await:
		addE(n.Value)
	case *Lambda:
		for _, p := range n.Params {
			out = append(out, p)
		}
		addE(n.Body)
	case *Opaque:
		addE(n.Children...)
	case *Param:
		addE(n.Annotation, n.Default)
	case *Module:
		addS(n.Body)
	case *ExprStmt:
		addE(n.Value)
	case *Assign:
		addE(n.Value)
		addE(n.Targets...)
	case *AnnAssign:
		addE(n.Annotation, n.Value, n.Target)
	case *AugAssign:
		addE(n.Target, n.Value)
	case *If:
		addE(n.Test)
		addS(n.Body)
		addS(n.OrElse)
	case *While:
		addE(n.Test)
		addS(n.Body)
		addS(n.OrElse)
	case *For:
		addE(n.Iter, n.Target)
		addS(n.Body)
		addS(n.OrElse)
	case *Try:
		addS(n.Body)
		for _, h := range n.Handlers {
			out = append(out, h)
		}
		addS(n.OrElse)
		addS(n.Finally)
	case *ExceptHandler:
		addE(n.Type)
		addS(n.Body)
	case *With:
		for _, it := range n.Items {
			addE(it.Context, it.Target)
		}
		addS(n.Body)
	case *Match:
		addE(n.Subject)
		for _, c := range n.Cases {
			out = append(out, c)
		}
	case *MatchCase:
		addP(n.Pattern)
		addE(n.Guard)
		addS(n.Body)
	case *FunctionDef:
		addE(n.Decorators...)
		for _, p := range n.Params {
			out = append(out, p)
		}
		addE(n.Returns)
		addS(n.Body)
	case *ClassDef:
		addE(n.Decorators...)
		addE(n.Bases...)
		for _, kw := range n.Keywords {
			addE(kw.Value)
		}
		addS(n.Body)
	case *Return:
		addE(n.Value)
	case *Raise:
		addE(n.Exc, n.Cause)
	case *Delete:
		addE(n.Targets...)
	case *Assert:
		addE(n.Test, n.Msg)
	case *MatchValue:
		addE(n.Value)
	case *MatchSequence:
		addP(n.Patterns...)
	case *MatchMapping:
		addE(n.Keys...)
		addP(n.Patterns...)
	case *MatchClass:
		addE(n.Cls)
		addP(n.Patterns...)
		addP(n.KwdPatterns...)
	case *MatchAs:
		addP(n.Pattern)
	case *MatchOr:
		addP(n.Patterns...)
	}
	return out
}

// isNilNode catches typed nil pointers stored in interface fields.
func isNilNode(n Node) bool {
	switch v := n.(type) {
	case *Name:
		return v == nil
	case *Constant:
		return v == nil
	case *Call:
		return v == nil
	case *MatchAs:
		return v == nil
	}
	return false
}
