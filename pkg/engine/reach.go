package engine

import (
	"strconv"

	"github.com/l3aro/flowtype/pkg/flow"
)

type reachKey struct {
	node, source flow.NodeID
	ignore       bool
	layer        string
}

func (k reachKey) sessionKey() string {
	return "r:" + strconv.Itoa(int(k.node)) + ":" + strconv.Itoa(int(k.source)) + ":" + strconv.FormatBool(k.ignore)
}

// reach returns the status of id. A node revisited while its own status is
// being computed closes a cycle; that path contributes nothing and the
// results that saw the cut are not memoized above the node it cut at.
func (q *query) reach(id, source flow.NodeID, ignore bool) Status {
	k := reachKey{node: id, source: source, ignore: ignore, layer: q.layer}
	if st, ok := q.reached[k]; ok {
		return st
	}
	if k.layer == "" {
		if st, ok := q.s.reachCache.Get(k.sessionKey()); ok {
			q.reached[k] = st
			return st
		}
	}
	if depth, ok := q.reachStack[k]; ok {
		q.cut = min(q.cut, depth)
		return UnreachableStructural
	}

	depth := len(q.reachStack) + 1
	q.reachStack[k] = depth
	savedCut := q.cut
	q.cut = noDep
	var st Status
	d := q.track(func() { st = q.reachWalk(id, source, ignore) })
	cut := q.cut
	delete(q.reachStack, k)
	if cut >= depth {
		cut = noDep
	}
	q.cut = min(savedCut, cut)

	if q.budget.Exhausted() || d != noDep {
		return st
	}
	if st == Reachable || cut == noDep {
		q.reached[k] = st
		if k.layer == "" {
			q.s.reachCache.Set(k.sessionKey(), st)
		}
	}
	return st
}

func (q *query) reachWalk(id, source flow.NodeID, ignore bool) Status {
	for {
		if id == source {
			return Reachable
		}
		if !q.visit() {
			return Reachable
		}
		switch n := q.s.g.Node(id).(type) {
		case *flow.Start:
			if source == flow.NoNode {
				return Reachable
			}
			return UnreachableStructural

		case *flow.Unreachable:
			if n.Reason == flow.ReasonStaticCondition {
				return UnreachableStaticCondition
			}
			return UnreachableStructural

		case *flow.Assignment:
			id = n.Antecedent

		case *flow.VariableAnnotation:
			id = n.Antecedent

		case *flow.WildcardImport:
			id = n.Antecedent

		case *flow.Call:
			if !ignore && q.s.eval.IsNoReturnCall(q.ctx, n.Expr) {
				return UnreachableByAnalysis
			}
			id = n.Antecedent

		case *flow.Condition:
			if q.conditionIsDead(n, flow.Key{}) {
				return UnreachableByAnalysis
			}
			id = n.Antecedent

		case *flow.PatternNarrow:
			if q.caseIsDead(n) {
				return UnreachableByAnalysis
			}
			id = n.Antecedent

		case *flow.ExhaustedMatch:
			if q.matchIsExhausted(n) {
				return UnreachableByAnalysis
			}
			id = n.Antecedent

		case *flow.PreFinallyGate:
			if q.gates[id] {
				return UnreachableStructural
			}
			id = n.Antecedent

		case *flow.PostFinally:
			return closeGate(q, n.Gate, func() Status {
				return q.reach(n.Antecedent, source, ignore)
			})

		case *flow.PostContextManager:
			if q.contextBlocked(n) {
				return UnreachableByAnalysis
			}
			return q.reachJoin(n.Antecedents(), source, ignore)

		case *flow.BranchLabel:
			return q.reachJoin(n.Antecedents(), source, ignore)

		case *flow.LoopLabel:
			return q.reachJoin(n.Antecedents(), source, ignore)

		default:
			panic(&flow.InvariantError{Node: id, Msg: "unexpected node kind " + string(n.Kind())})
		}
	}
}

// reachJoin is reachable when any path is; otherwise it takes the
// strongest status of its paths.
func (q *query) reachJoin(ants []flow.NodeID, source flow.NodeID, ignore bool) Status {
	var best Status
	for _, a := range ants {
		st := q.reach(a, source, ignore)
		if st == Reachable {
			return Reachable
		}
		if best == "" {
			best = st
			continue
		}
		best = q.s.stronger(best, st)
	}
	if best == "" {
		return UnreachableStructural
	}
	return best
}
