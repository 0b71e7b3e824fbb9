package engine

import (
	"strings"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/narrowing"
	"github.com/l3aro/flowtype/pkg/types"
)

// narrowReq is one reference being narrowed. Its tag identifies the
// request in cache keys.
type narrowReq struct {
	ref   flow.Key
	start types.Type
	opts  NarrowOptions
	tag   string
}

func newNarrowReq(ref flow.Key, start types.Type, opts NarrowOptions) *narrowReq {
	var sb strings.Builder
	sb.WriteString(ref.String())
	sb.WriteString(":")
	sb.WriteString(types.Key(start))
	if opts.StartIncomplete {
		sb.WriteString(":i")
	}
	if opts.SkipConditions {
		sb.WriteString(":s")
	}
	return &narrowReq{ref: ref, start: start, opts: opts, tag: sb.String()}
}

func (q *query) key(r *narrowReq, id flow.NodeID) entryKey {
	return entryKey{node: id, req: r.tag, layer: q.layer}
}

// narrow returns the type of the request's reference at id.
func (q *query) narrow(r *narrowReq, id flow.NodeID) types.Type {
	if loop, ok := q.s.g.Node(id).(*flow.LoopLabel); ok {
		if loop.Affected != nil && !loop.Affected.Affects(r.ref) {
			return q.narrow(r, loop.Antecedents()[0])
		}
		return q.narrowLoop(r, loop)
	}

	k := q.key(r, id)
	if t, ok := q.lookup(k); ok {
		return t
	}
	// A revisit through a loop entered since k went pending is caught by
	// that loop's label; anything else is a cycle the graph cannot have.
	if depth, ok := q.pending[k]; ok && depth == q.loopDepth {
		q.markDep(unresolved)
		return types.IncompleteUnknown
	}
	prevDepth, wasPending := q.pending[k]
	q.pending[k] = q.loopDepth
	var t types.Type
	d := q.track(func() { t = q.walk(r, id) })
	if wasPending {
		q.pending[k] = prevDepth
	} else {
		delete(q.pending, k)
	}
	q.store(k, t, d)
	return t
}

// walk follows single antecedents until a node decides the type.
func (q *query) walk(r *narrowReq, id flow.NodeID) types.Type {
	for {
		if !q.visit() {
			return types.Unknown
		}
		switch n := q.s.g.Node(id).(type) {
		case *flow.Start:
			if r.opts.StartIncomplete {
				q.markDep(unresolved)
			}
			return r.start

		case *flow.Unreachable:
			return types.Never

		case *flow.VariableAnnotation:
			id = n.Antecedent

		case *flow.WildcardImport:
			id = n.Antecedent

		case *flow.Call:
			if q.s.eval.IsNoReturnCall(q.ctx, n.Expr) {
				return types.Never
			}
			id = n.Antecedent

		case *flow.Assignment:
			if n.Key.SamePath(r.ref) {
				if n.Unbind {
					if r.ref.IsName() {
						return types.Unbound
					}
					return r.start
				}
				return q.s.eval.AssignedType(q.ctx, n)
			}
			// Writing a.b invalidates what is known about a.b.c.
			if n.Key.IsPrefixOf(r.ref) {
				return r.start
			}
			id = n.Antecedent

		case *flow.BranchLabel:
			if n.Affected != nil && n.PreBranch != flow.NoNode && !n.Affected.Affects(r.ref) {
				id = n.PreBranch
				continue
			}
			return q.union(r, n.Antecedents())

		case *flow.LoopLabel:
			return q.narrow(r, id)

		case *flow.Condition:
			if r.opts.SkipConditions {
				id = n.Antecedent
				continue
			}
			if cb := narrowing.ForCondition(q.env(id), n.Test, r.ref, n.Flavor.Positive()); cb != nil {
				return cb(q.narrow(r, n.Antecedent))
			}
			if n.Flavor.IsNever() && q.conditionIsDead(n, r.ref) {
				return types.Never
			}
			id = n.Antecedent

		case *flow.PatternNarrow:
			if cb := narrowing.ForPattern(q.env(id), n.Subject, n.Case.Pattern, r.ref, n.Positive); cb != nil {
				return cb(q.narrow(r, n.Antecedent))
			}
			if q.caseIsDead(n) {
				return types.Never
			}
			id = n.Antecedent

		case *flow.ExhaustedMatch:
			if k, ok := flow.KeyOf(n.Subject); !ok || !k.SamePath(r.ref) {
				if q.matchIsExhausted(n) {
					return types.Never
				}
			}
			id = n.Antecedent

		case *flow.PreFinallyGate:
			if q.gates[id] {
				return types.Never
			}
			id = n.Antecedent

		case *flow.PostFinally:
			return closeGate(q, n.Gate, func() types.Type {
				return q.narrow(r, n.Antecedent)
			})

		case *flow.PostContextManager:
			if q.contextBlocked(n) {
				return types.Never
			}
			return q.union(r, n.Antecedents())

		default:
			panic(&flow.InvariantError{Node: id, Msg: "unexpected node kind " + string(n.Kind())})
		}
	}
}

func (q *query) union(r *narrowReq, ants []flow.NodeID) types.Type {
	parts := make([]types.Type, 0, len(ants))
	for _, a := range ants {
		parts = append(parts, q.narrow(r, a))
		if q.budget.Exhausted() {
			break
		}
	}
	return types.Union(parts...)
}

// narrowLoop computes the fixed point of a loop label. A back-edge that
// reaches the label again while it is iterated sees the union accumulated
// so far. A union that keeps growing is cut by types.Limit, and the result
// is then incomplete.
func (q *query) narrowLoop(r *narrowReq, n *flow.LoopLabel) types.Type {
	k := q.key(r, n.ID())
	if st, ok := q.loops[k]; ok {
		q.markDep(st.depth)
		if types.IsNever(st.union) {
			return types.IncompleteUnknown
		}
		return st.union
	}
	if t, ok := q.lookup(k); ok {
		return t
	}

	depth := q.loopDepth + 1
	st := &loopState{depth: depth, union: types.Never}
	q.loops[k] = st
	q.loopDepth = depth
	defer func() {
		delete(q.loops, k)
		q.loopDepth = depth - 1
		q.generation++
	}()

	saved := q.dep
	limit := q.s.opts.Limits.MaxConvergenceAttempts
	for attempt := 1; ; attempt++ {
		q.generation++
		prev := types.Key(st.union)
		q.dep = noDep
		for _, a := range n.Antecedents() {
			st.union = types.Union(st.union, q.narrow(r, a))
			if w, cut := types.Limit(st.union, types.MaxNestingDepth, types.MaxUnionMembers); cut {
				st.union, st.widened = w, true
			}
			if q.budget.Exhausted() {
				break
			}
		}
		d := q.dep

		switch {
		case q.budget.Exhausted():
			q.dep = min(saved, unresolved)
			return st.union
		case st.widened && (d == noDep || types.Key(st.union) == prev):
			q.s.log.Debug("loop type widened",
				"node", n.ID(), "ref", r.ref, "attempts", attempt)
			q.dep = min(saved, unresolved)
			return types.RemoveIncomplete(st.union)
		case d == noDep:
			q.dep = saved
			q.store(k, st.union, noDep)
			return st.union
		case types.Key(st.union) == prev:
			t := types.RemoveIncomplete(st.union)
			if d >= depth {
				// Only this loop's own back-edges were provisional.
				q.dep = saved
				q.store(k, t, noDep)
				return t
			}
			q.dep = min(saved, d)
			return t
		case attempt >= limit:
			q.s.log.Debug("loop did not converge",
				"node", n.ID(), "ref", r.ref, "attempts", attempt)
			q.dep = min(saved, unresolved)
			return types.RemoveIncomplete(st.union)
		}
	}
}

// env adapts the evaluator to the narrowing rules at node id.
func (q *query) env(id flow.NodeID) narrowing.Env {
	return &env{q: q, scope: q.s.g.ScopeOfNode(id)}
}

type env struct {
	q     *query
	scope *flow.Scope
}

func (e *env) TypeOf(x ast.Expr) types.Type { return e.q.s.eval.ExprType(e.q.ctx, x) }
func (e *env) Builtins() *types.Builtins    { return e.q.s.eval.Builtins() }
func (e *env) Alias(name string) (ast.Expr, bool) {
	x, ok := e.scope.Aliases[name]
	return x, ok
}

// subjectExpr returns the first subexpression of test whose key is k.
func subjectExpr(test ast.Expr, k flow.Key) ast.Expr {
	var found ast.Expr
	ast.Inspect(test, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		if e, ok := n.(ast.Expr); ok {
			if ek, ok := flow.KeyOf(e); ok && ek.SamePath(k) {
				found = e
				return false
			}
		}
		return true
	})
	return found
}

// conditionIsDead reports whether the test of a condition can never take
// the node's outcome: its first subject narrows to never. The subject is
// skipped when it is skip, the reference already being narrowed.
func (q *query) conditionIsDead(n *flow.Condition, skip flow.Key) bool {
	keys := narrowing.SubjectKeys(n.Test)
	if len(keys) == 0 || keys[0].SamePath(skip) {
		return false
	}
	subject := subjectExpr(n.Test, keys[0])
	if subject == nil {
		return false
	}
	cb := narrowing.ForCondition(q.env(n.ID()), n.Test, keys[0], n.Flavor.Positive())
	if cb == nil {
		return false
	}
	var t types.Type
	d := q.track(func() {
		t = cb(q.s.eval.ReferenceType(q.ctx, subject, n.Antecedent))
	})
	return d == noDep && types.IsNever(t)
}

// caseIsDead reports whether the pattern of a case can never match (or,
// for the negative node, never fail to match) the subject.
func (q *query) caseIsDead(n *flow.PatternNarrow) bool {
	var t types.Type
	d := q.track(func() {
		t = narrowing.NarrowSubject(q.env(n.ID()), q.subjectType(n.Subject, n.Antecedent), n.Case.Pattern, n.Positive)
	})
	return d == noDep && types.IsNever(t)
}

func (q *query) subjectType(subject ast.Expr, at flow.NodeID) types.Type {
	if _, ok := flow.KeyOf(subject); ok {
		return q.s.eval.ReferenceType(q.ctx, subject, at)
	}
	return q.s.eval.ExprType(q.ctx, subject)
}

// matchIsExhausted reports whether every value of the subject is handled
// by some case of the match.
func (q *query) matchIsExhausted(n *flow.ExhaustedMatch) bool {
	exhausted := false
	d := q.track(func() {
		if _, ok := flow.KeyOf(n.Subject); ok {
			exhausted = types.IsNever(q.s.eval.ReferenceType(q.ctx, n.Subject, n.Antecedent))
			return
		}
		if tuple, ok := n.Subject.(*ast.Tuple); ok {
			for _, e := range tuple.Elts {
				if _, ok := flow.KeyOf(e); ok && types.IsNever(q.s.eval.ReferenceType(q.ctx, e, n.Antecedent)) {
					exhausted = true
					return
				}
			}
		}
		t := q.s.eval.ExprType(q.ctx, n.Subject)
		env := q.env(n.ID())
		for _, c := range n.Match.Cases {
			if c.Guard != nil {
				continue
			}
			t = narrowing.NarrowSubject(env, t, c.Pattern, false)
		}
		exhausted = types.IsNever(t)
	})
	return d == noDep && exhausted
}

// contextBlocked reports whether a context-manager exit label is dead.
func (q *query) contextBlocked(n *flow.PostContextManager) bool {
	return q.s.eval.SwallowsExceptions(q.ctx, n.Contexts, n.Async) == n.BlockIfSwallows
}
