package binder

import (
	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/narrowing"
)

// bindCondition binds a test whose outcome selects between two paths. The
// true path is added to thenLabel and the false path to elseLabel. `not`,
// `and` and `or` are decomposed so that each operand narrows its own
// path; tests with a statically known value send the other path to dead
// code.
func (b *binder) bindCondition(test ast.Expr, thenLabel, elseLabel *pendingLabel) {
	switch t := test.(type) {
	case nil:
		b.fail(nil, "nil condition")
		return
	case *ast.UnaryOp:
		if t.Op == "not" && t.Operand != nil {
			b.bindCondition(t.Operand, elseLabel, thenLabel)
			return
		}
	case *ast.BoolOp:
		if len(t.Values) < 2 {
			b.fail(t, "%s with fewer than two operands", t.Op)
			return
		}
		for i, v := range t.Values {
			if i == len(t.Values)-1 {
				b.bindCondition(v, thenLabel, elseLabel)
				break
			}
			next := newLabel(flow.NoNode)
			if t.Op == "and" {
				b.bindCondition(v, next, elseLabel)
			} else {
				b.bindCondition(v, thenLabel, next)
			}
			b.current = b.finishLabel(next)
		}
		return
	}

	b.bindExpr(test)
	if v, ok := b.staticValue(test); ok {
		dead := b.unreachable(flow.ReasonStaticCondition)
		if v {
			b.addTo(thenLabel, b.current)
			b.addTo(elseLabel, dead)
		} else {
			b.addTo(thenLabel, dead)
			b.addTo(elseLabel, b.current)
		}
		return
	}
	b.addTo(thenLabel, b.createCondition(test, flow.CondTrue))
	b.addTo(elseLabel, b.createCondition(test, flow.CondFalse))
}

// conditionKeys returns the references a test narrows, including those of
// the test an aliased name stands for.
func (b *binder) conditionKeys(test ast.Expr) []flow.Key {
	keys := narrowing.SubjectKeys(test)
	if n, ok := test.(*ast.Name); ok {
		if aliased, ok := b.scope.Aliases[n.ID]; ok {
			keys = append(keys, narrowing.SubjectKeys(aliased)...)
		}
	}
	return keys
}

// createCondition returns a condition node branching off the current node,
// or the current node itself when the test narrows nothing.
func (b *binder) createCondition(test ast.Expr, flavor flow.ConditionFlavor) flow.NodeID {
	if b.isUnreachable() {
		return b.current
	}
	keys := b.conditionKeys(test)
	if len(keys) == 0 {
		return b.current
	}
	for _, k := range keys {
		b.markAffected(k)
	}
	c := &flow.Condition{Test: test, Flavor: flavor}
	c.SetAntecedent(b.current)
	return b.g.Add(b.scope.ID, c)
}

// bindNeverCondition adds an implied-else node on the path where test had
// the given outcome: if that outcome narrows the subject to never, the
// path is dead.
func (b *binder) bindNeverCondition(test ast.Expr, positive bool) {
	switch t := test.(type) {
	case *ast.UnaryOp:
		if t.Op == "not" && t.Operand != nil {
			b.bindNeverCondition(t.Operand, !positive)
			return
		}
	case *ast.BoolOp:
		// Only `a and b` being true and `a or b` being false pin every
		// operand to the same outcome.
		if (t.Op == "and") != positive {
			return
		}
		for _, v := range t.Values {
			b.bindNeverCondition(v, positive)
		}
		return
	}
	if b.isUnreachable() {
		return
	}
	if _, static := b.staticValue(test); static {
		return
	}
	if len(narrowing.SubjectKeys(test)) == 0 {
		return
	}
	flavor := flow.CondFalseNever
	if positive {
		flavor = flow.CondTrueNever
	}
	b.appendNode(&flow.Condition{Test: test, Flavor: flavor})
}
