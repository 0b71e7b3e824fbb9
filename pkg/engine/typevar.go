package engine

import (
	"context"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/types"
)

// constraintMask marks the constraints of a type variable still possible.
type constraintMask []bool

func fullMask(n int) constraintMask {
	m := make(constraintMask, n)
	for i := range m {
		m[i] = true
	}
	return m
}

func (m constraintMask) or(other constraintMask) constraintMask {
	out := make(constraintMask, len(m))
	for i := range m {
		out[i] = m[i] || other[i]
	}
	return out
}

type maskKey struct {
	node  flow.NodeID
	tv    string
	layer string
}

// NarrowConstrainedTypeVariable returns the constraints of tv that remain
// possible at node after the isinstance tests on the paths leading to it.
// It returns nil when tv has no constraints.
func (s *Session) NarrowConstrainedTypeVariable(ctx context.Context, node flow.NodeID, tv *types.TypeVar) []types.Type {
	if tv == nil || len(tv.Constraints) == 0 {
		return nil
	}
	all := append([]types.Type(nil), tv.Constraints...)
	if s.tooComplex(node) {
		return all
	}
	q, _ := s.begin(ctx)
	var m constraintMask
	q.track(func() { m = q.mask(node, tv) })
	if q.budget.Exhausted() {
		return all
	}
	out := make([]types.Type, 0, len(all))
	for i, c := range all {
		if m[i] {
			out = append(out, c)
		}
	}
	return out
}

func (q *query) mask(id flow.NodeID, tv *types.TypeVar) constraintMask {
	k := maskKey{node: id, tv: tv.Name, layer: q.layer}
	if m, ok := q.masks[k]; ok {
		return m
	}
	if depth, ok := q.maskStack[k]; ok {
		q.maskCut = min(q.maskCut, depth)
		return make(constraintMask, len(tv.Constraints))
	}
	depth := len(q.maskStack) + 1
	q.maskStack[k] = depth
	savedCut := q.maskCut
	q.maskCut = noDep
	var m constraintMask
	d := q.track(func() { m = q.maskWalk(id, tv) })
	cut := q.maskCut
	delete(q.maskStack, k)
	if cut >= depth {
		cut = noDep
	}
	q.maskCut = min(savedCut, cut)
	if cut == noDep && d == noDep && !q.budget.Exhausted() {
		q.masks[k] = m
	}
	return m
}

func (q *query) maskWalk(id flow.NodeID, tv *types.TypeVar) constraintMask {
	n := len(tv.Constraints)
	none := make(constraintMask, n)
	for {
		if !q.visit() {
			return fullMask(n)
		}
		switch node := q.s.g.Node(id).(type) {
		case *flow.Start:
			return fullMask(n)

		case *flow.Unreachable:
			return none

		case *flow.Assignment:
			id = node.Antecedent

		case *flow.VariableAnnotation:
			id = node.Antecedent

		case *flow.WildcardImport:
			id = node.Antecedent

		case *flow.Call:
			if q.s.eval.IsNoReturnCall(q.ctx, node.Expr) {
				return none
			}
			id = node.Antecedent

		case *flow.Condition:
			if node.Flavor.IsNever() {
				if q.conditionIsDead(node, flow.Key{}) {
					return none
				}
				id = node.Antecedent
				continue
			}
			if keep, ok := q.isinstanceFilter(node.Test, tv, node.Flavor.Positive()); ok {
				m := q.mask(node.Antecedent, tv)
				out := make(constraintMask, n)
				for i := range m {
					out[i] = m[i] && keep[i]
				}
				return out
			}
			id = node.Antecedent

		case *flow.PatternNarrow:
			if q.caseIsDead(node) {
				return none
			}
			id = node.Antecedent

		case *flow.ExhaustedMatch:
			if q.matchIsExhausted(node) {
				return none
			}
			id = node.Antecedent

		case *flow.PreFinallyGate:
			if q.gates[id] {
				return none
			}
			id = node.Antecedent

		case *flow.PostFinally:
			return closeGate(q, node.Gate, func() constraintMask {
				return q.mask(node.Antecedent, tv)
			})

		case *flow.PostContextManager:
			if q.contextBlocked(node) {
				return none
			}
			return q.maskJoin(node.Antecedents(), tv)

		case *flow.BranchLabel:
			return q.maskJoin(node.Antecedents(), tv)

		case *flow.LoopLabel:
			return q.maskJoin(node.Antecedents(), tv)

		default:
			panic(&flow.InvariantError{Node: id, Msg: "unexpected node kind " + string(node.Kind())})
		}
	}
}

func (q *query) maskJoin(ants []flow.NodeID, tv *types.TypeVar) constraintMask {
	out := make(constraintMask, len(tv.Constraints))
	for _, a := range ants {
		out = out.or(q.mask(a, tv))
	}
	return out
}

// isinstanceFilter matches `isinstance(v, C)` (possibly negated) where v
// has type tv. It returns, per constraint, whether the constraint survives
// the test with the given outcome.
func (q *query) isinstanceFilter(test ast.Expr, tv *types.TypeVar, positive bool) (constraintMask, bool) {
	switch t := test.(type) {
	case *ast.UnaryOp:
		if t.Op == "not" {
			return q.isinstanceFilter(t.Operand, tv, !positive)
		}
		return nil, false
	case *ast.Call:
		fn, ok := t.Func.(*ast.Name)
		if !ok || fn.ID != "isinstance" || len(t.Args) != 2 || len(t.Keywords) != 0 {
			return nil, false
		}
		v, ok := q.s.eval.ExprType(q.ctx, t.Args[0]).(*types.TypeVar)
		if !ok || v.Name != tv.Name {
			return nil, false
		}
		classes, ok := classesOf(q.s.eval.ExprType(q.ctx, t.Args[1]))
		if !ok {
			return nil, false
		}
		b := q.s.eval.Builtins()
		keep := make(constraintMask, len(tv.Constraints))
		for i, c := range tv.Constraints {
			matched := false
			if cls, ok := b.ClassOf(c); ok {
				for _, want := range classes {
					if cls.IsSubclassOf(want) {
						matched = true
						break
					}
				}
			}
			keep[i] = matched == positive
		}
		return keep, true
	}
	return nil, false
}

// classesOf returns the classes named by the second argument of
// isinstance: a class, a tuple of classes or a union of those.
func classesOf(t types.Type) ([]*types.Class, bool) {
	var out []*types.Class
	for _, m := range types.Members(t) {
		switch m := m.(type) {
		case *types.ClassObject:
			out = append(out, m.Class)
		case *types.Tuple:
			for _, e := range m.Elems {
				inner, ok := classesOf(e)
				if !ok {
					return nil, false
				}
				out = append(out, inner...)
			}
		default:
			return nil, false
		}
	}
	return out, len(out) > 0
}
