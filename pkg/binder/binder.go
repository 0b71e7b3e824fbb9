// Package binder walks a syntax tree once per scope and produces the flow
// graph used by the narrowing engine, together with the per-scope metadata
// (tracked references, aliases, complexity score).
package binder

import (
	"errors"
	"fmt"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/narrowing"
)

// ErrMalformed is wrapped by every error caused by an invalid syntax tree.
var ErrMalformed = errors.New("malformed syntax tree")

// Options control static condition evaluation.
type Options struct {
	// PythonVersion is the (major, minor) version sys.version_info
	// comparisons are evaluated against.
	PythonVersion [2]int
	// Platform is the value of sys.platform.
	Platform string
}

// DefaultOptions returns options for CPython 3.12 on linux.
func DefaultOptions() Options {
	return Options{PythonVersion: [2]int{3, 12}, Platform: "linux"}
}

// loopTarget records where break and continue statements go.
type loopTarget struct {
	head  flow.NodeID
	after *pendingLabel
}

// pendingLabel collects antecedents of a join before its node exists.
// Unreachable antecedents are dropped; the strongest reason among them is
// kept in case every path turns out dead.
type pendingLabel struct {
	ants     []flow.NodeID
	dead     flow.UnreachableReason
	pre      flow.NodeID
	affected flow.KeySet
}

func newLabel(pre flow.NodeID) *pendingLabel {
	return &pendingLabel{pre: pre}
}

// binder holds the cursor state while walking one module.
type binder struct {
	g    *flow.Graph
	opts Options
	err  error

	scope   *flow.Scope
	current flow.NodeID

	loops          []loopTarget
	exceptTargets  [][]*pendingLabel
	finallyTargets []*pendingLabel
	returnTarget   *pendingLabel
	trackers       []flow.KeySet

	dead map[deadKey]flow.NodeID
}

type deadKey struct {
	scope  flow.ScopeID
	reason flow.UnreachableReason
}

// Bind builds the flow graph for a module. A malformed tree yields an
// error wrapping ErrMalformed and no graph.
func Bind(mod *ast.Module, opts Options) (*flow.Graph, error) {
	if mod == nil {
		return nil, fmt.Errorf("%w: nil module", ErrMalformed)
	}
	b := &binder{
		g:    flow.NewGraph(),
		opts: opts,
		dead: make(map[deadKey]flow.NodeID),
	}

	s := b.g.NewScope(flow.ScopeModule, mod.Path, mod, flow.NoScope)
	b.enterScope(s)
	b.bindBlock(mod.Body)
	b.finishScope()

	if b.err != nil {
		return nil, b.err
	}
	if err := b.g.Validate(); err != nil {
		return nil, fmt.Errorf("building flow graph: %w", err)
	}
	return b.g, nil
}

// fail records the first error; binding continues but the result is
// discarded.
func (b *binder) fail(node ast.Node, format string, args ...interface{}) {
	if b.err != nil {
		return
	}
	line := 0
	if node != nil {
		line = node.Span().Line
	}
	b.err = fmt.Errorf("%w: line %d: %s", ErrMalformed, line, fmt.Sprintf(format, args...))
}

func (b *binder) check(err error) {
	if err != nil && b.err == nil {
		b.err = err
	}
}

func (b *binder) enterScope(s *flow.Scope) {
	b.scope = s
	b.current = s.Start
	b.loops = nil
	b.exceptTargets = nil
	b.finallyTargets = nil
	b.trackers = nil
	b.returnTarget = newLabel(flow.NoNode)
}

// finishScope joins the fallthrough with every return into the scope's
// Return node and drops aliases that turned out to be reassigned.
func (b *binder) finishScope() {
	b.addTo(b.returnTarget, b.current)
	b.scope.Return = b.finishLabel(b.returnTarget)

	for name, test := range b.scope.Aliases {
		if b.scope.AssignCounts[name] != 1 {
			delete(b.scope.Aliases, name)
			continue
		}
		for _, k := range narrowing.SubjectKeys(test) {
			if b.scope.AssignCounts[k.Root()] > 1 {
				delete(b.scope.Aliases, name)
				break
			}
		}
	}
}

// saved is the cursor state preserved across a nested scope.
type saved struct {
	scope          *flow.Scope
	current        flow.NodeID
	loops          []loopTarget
	exceptTargets  [][]*pendingLabel
	finallyTargets []*pendingLabel
	returnTarget   *pendingLabel
	trackers       []flow.KeySet
}

func (b *binder) save() saved {
	return saved{b.scope, b.current, b.loops, b.exceptTargets, b.finallyTargets, b.returnTarget, b.trackers}
}

func (b *binder) restore(s saved) {
	b.scope, b.current, b.loops = s.scope, s.current, s.loops
	b.exceptTargets, b.finallyTargets = s.exceptTargets, s.finallyTargets
	b.returnTarget, b.trackers = s.returnTarget, s.trackers
}

// Node helpers

func (b *binder) isUnreachable() bool {
	_, ok := b.g.Node(b.current).(*flow.Unreachable)
	return ok
}

// unreachable returns the shared dead-code node of the current scope.
func (b *binder) unreachable(reason flow.UnreachableReason) flow.NodeID {
	if reason == "" {
		reason = flow.ReasonStructural
	}
	k := deadKey{scope: b.scope.ID, reason: reason}
	if id, ok := b.dead[k]; ok {
		return id
	}
	id := b.g.Add(b.scope.ID, &flow.Unreachable{Reason: reason, Antecedent: flow.NoNode})
	b.dead[k] = id
	return id
}

func (b *binder) markDead() {
	b.current = b.unreachable(flow.ReasonStructural)
}

func (b *binder) addTo(p *pendingLabel, id flow.NodeID) {
	if u, ok := b.g.Node(id).(*flow.Unreachable); ok {
		if p.dead == "" || u.Reason == flow.ReasonStaticCondition {
			p.dead = u.Reason
		}
		return
	}
	for _, a := range p.ants {
		if a == id {
			return
		}
	}
	p.ants = append(p.ants, id)
}

// finishLabel materializes a pending join. No live antecedent yields the
// dead-code node; a single antecedent without an affected set needs no
// label at all.
func (b *binder) finishLabel(p *pendingLabel) flow.NodeID {
	switch {
	case len(p.ants) == 0:
		return b.unreachable(p.dead)
	case len(p.ants) == 1 && p.affected == nil:
		return p.ants[0]
	}
	pre := p.pre
	if pre != flow.NoNode {
		if _, dead := b.g.Node(pre).(*flow.Unreachable); dead {
			pre = flow.NoNode
		}
	}
	id := b.g.Add(b.scope.ID, &flow.BranchLabel{PreBranch: pre, Affected: p.affected})
	for _, a := range p.ants {
		b.check(b.g.AddAntecedent(id, a))
	}
	b.g.Seal(id)
	return id
}

// pushTracker starts collecting affected keys for a branching construct.
func (b *binder) pushTracker() {
	b.trackers = append(b.trackers, make(flow.KeySet))
}

func (b *binder) popTracker() flow.KeySet {
	t := b.trackers[len(b.trackers)-1]
	b.trackers = b.trackers[:len(b.trackers)-1]
	return t
}

func (b *binder) markAffected(k flow.Key) {
	b.scope.Tracked.Add(k)
	for _, t := range b.trackers {
		t.Add(k)
	}
}

// addExceptTargets records a point where an exception may be raised inside
// the innermost try or with block.
func (b *binder) addExceptTargets(id flow.NodeID) {
	if len(b.exceptTargets) == 0 {
		return
	}
	for _, t := range b.exceptTargets[len(b.exceptTargets)-1] {
		b.addTo(t, id)
	}
}

func (b *binder) createAssignment(target ast.Expr, source ast.Node, unbind bool) {
	key, ok := flow.KeyOf(target)
	if !ok {
		return
	}
	if name, isName := target.(*ast.Name); isName {
		b.declareLocal(name.ID)
		if !unbind {
			b.scope.AssignCounts[name.ID]++
		}
	}
	b.markAffected(key)
	if b.isUnreachable() {
		return
	}
	b.appendNode(&flow.Assignment{
		Target: target,
		Key:    key,
		Source: source,
		Unbind: unbind,
	})
	b.addExceptTargets(b.current)
}

// linkable is a node with exactly one antecedent.
type linkable interface {
	flow.Node
	SetAntecedent(flow.NodeID)
}

// appendNode links n after the current node and advances the cursor.
func (b *binder) appendNode(n linkable) flow.NodeID {
	n.SetAntecedent(b.current)
	b.current = b.g.Add(b.scope.ID, n)
	return b.current
}

func (b *binder) declareLocal(name string) {
	if b.scope.Globals[name] || b.scope.Nonlocals[name] {
		return
	}
	b.scope.Locals[name] = true
}
