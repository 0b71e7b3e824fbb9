package binder

import (
	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
)

// bindExpr walks an expression in evaluation order, attaching the current
// flow node to every reference and creating call and assignment nodes.
func (b *binder) bindExpr(e ast.Expr) {
	switch e := e.(type) {
	case nil:
		return
	case *ast.Name:
		b.g.SetFlowNode(e, b.current)
	case *ast.Attribute:
		b.bindExpr(e.Value)
		b.g.SetFlowNode(e, b.current)
	case *ast.Subscript:
		b.bindExpr(e.Value)
		b.bindExpr(e.Index)
		b.g.SetFlowNode(e, b.current)
	case *ast.Call:
		b.bindCall(e)
	case *ast.BoolOp:
		b.bindBoolOpValue(e)
	case *ast.IfExp:
		b.bindIfExp(e)
	case *ast.NamedExpr:
		if e.Target == nil || e.Value == nil {
			b.fail(e, "assignment expression without target or value")
			return
		}
		b.bindExpr(e.Value)
		b.createAssignment(e.Target, e, false)
		b.g.SetFlowNode(e.Target, b.current)
		b.g.SetFlowNode(e, b.current)
		if isNarrowingTest(e.Value) {
			b.scope.Aliases[e.Target.ID] = e.Value
		}
	case *ast.Compare:
		if len(e.Ops) == 0 || len(e.Ops) != len(e.Comparators) {
			b.fail(e, "comparison with %d operators and %d comparators", len(e.Ops), len(e.Comparators))
			return
		}
		b.bindExpr(e.Left)
		for _, c := range e.Comparators {
			b.bindExpr(c)
		}
	case *ast.Lambda:
		b.bindLambda(e)
	default:
		for _, c := range ast.Children(e) {
			if ce, ok := c.(ast.Expr); ok {
				b.bindExpr(ce)
			}
		}
	}
}

// bindCall evaluates the callee and arguments, then records the call. The
// call expression itself sees the state before the call node, so its
// callee can be resolved without recursing into itself.
func (b *binder) bindCall(c *ast.Call) {
	if c.Func == nil {
		b.fail(c, "call without callee")
		return
	}
	b.bindExpr(c.Func)
	for _, a := range c.Args {
		b.bindExpr(a)
	}
	for _, kw := range c.Keywords {
		b.bindExpr(kw.Value)
	}
	b.g.SetFlowNode(c, b.current)
	if b.isUnreachable() {
		return
	}
	b.appendNode(&flow.Call{Expr: c})
	b.addExceptTargets(b.current)
}

// bindBoolOpValue binds `a and b` used as a value: each operand after the
// first is evaluated only on the path where the previous ones did not
// short-circuit.
func (b *binder) bindBoolOpValue(e *ast.BoolOp) {
	if len(e.Values) < 2 {
		b.fail(e, "%s with fewer than two operands", e.Op)
		return
	}
	post := newLabel(b.current)
	for i, v := range e.Values {
		if i == len(e.Values)-1 {
			b.bindExpr(v)
			break
		}
		next := newLabel(flow.NoNode)
		if e.Op == "and" {
			b.bindCondition(v, next, post)
		} else {
			b.bindCondition(v, post, next)
		}
		b.current = b.finishLabel(next)
	}
	b.addTo(post, b.current)
	b.current = b.finishLabel(post)
	b.g.SetFlowNode(e, b.current)
}

func (b *binder) bindIfExp(e *ast.IfExp) {
	if e.Test == nil || e.Body == nil || e.OrElse == nil {
		b.fail(e, "conditional expression with a missing operand")
		return
	}
	thenLabel := newLabel(flow.NoNode)
	elseLabel := newLabel(flow.NoNode)
	post := newLabel(b.current)

	b.bindCondition(e.Test, thenLabel, elseLabel)
	b.current = b.finishLabel(thenLabel)
	b.bindExpr(e.Body)
	b.addTo(post, b.current)

	b.current = b.finishLabel(elseLabel)
	b.bindExpr(e.OrElse)
	b.addTo(post, b.current)

	b.current = b.finishLabel(post)
}

func (b *binder) bindLambda(e *ast.Lambda) {
	for _, p := range e.Params {
		if p.Default != nil {
			b.bindExpr(p.Default)
		}
	}
	outer := b.save()
	ls := b.g.NewScope(flow.ScopeLambda, "<lambda>", e, b.scope.ID)
	b.enterScope(ls)
	for _, p := range e.Params {
		ls.Params = append(ls.Params, p.Name)
		b.declareLocal(p.Name)
	}
	b.bindExpr(e.Body)
	b.finishScope()
	b.restore(outer)
}
