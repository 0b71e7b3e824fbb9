// Package engine answers flow queries over a bound flow graph: the narrowed
// type of a reference at a program point, the reachability of a point, and
// the constraints of a constrained type variable that survive the tests on
// the path to a point.
//
// A Session owns one graph and its caches. Queries walk the graph backward
// from the queried node. Every query carries its own traversal state, so
// reentrant calls made by the Evaluator while a query runs share the state
// of the outer query instead of starting a new one.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/l3aro/flowtype/internal/log"
	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/cache"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/guard"
	"github.com/l3aro/flowtype/pkg/types"
)

// Evaluator is the type evaluator the engine consults at assignments,
// calls, context managers and the operands of tests. Every method may call
// back into the Session with the context it received.
type Evaluator interface {
	Builtins() *types.Builtins
	// ExprType evaluates e at the flow node the binder attached to it.
	ExprType(ctx context.Context, e ast.Expr) types.Type
	// ReferenceType evaluates the reference expression e as if it were
	// written at flow node at.
	ReferenceType(ctx context.Context, e ast.Expr, at flow.NodeID) types.Type
	// AssignedType returns the type an assignment writes to its target.
	AssignedType(ctx context.Context, a *flow.Assignment) types.Type
	// IsNoReturnCall reports whether the call never returns control.
	IsNoReturnCall(ctx context.Context, c *ast.Call) bool
	// SwallowsExceptions reports whether any of the context managers may
	// suppress an exception raised in the body of the with statement.
	SwallowsExceptions(ctx context.Context, contexts []ast.Expr, async bool) bool
}

// Status is the reachability of a flow node.
type Status string

const (
	Reachable                  Status = "reachable"
	UnreachableStructural      Status = "unreachable_structural"
	UnreachableStaticCondition Status = "unreachable_static_condition"
	UnreachableByAnalysis      Status = "unreachable_by_analysis"
)

// IsReachable reports whether s is Reachable.
func (s Status) IsReachable() bool { return s == Reachable }

// ParseStatus parses a status name. The unreachable statuses may also be
// given by their reason alone: "structural", "static_condition",
// "by_analysis".
func ParseStatus(s string) (Status, error) {
	switch s {
	case string(Reachable):
		return Reachable, nil
	case string(UnreachableStructural), "structural":
		return UnreachableStructural, nil
	case string(UnreachableStaticCondition), "static_condition":
		return UnreachableStaticCondition, nil
	case string(UnreachableByAnalysis), "by_analysis":
		return UnreachableByAnalysis, nil
	}
	return "", fmt.Errorf("unknown reachability status %q", s)
}

// DefaultPriority orders the unreachable statuses strongest first.
func DefaultPriority() []Status {
	return []Status{UnreachableByAnalysis, UnreachableStaticCondition, UnreachableStructural}
}

// Options configure a Session.
type Options struct {
	Limits guard.Limits
	// CacheSize bounds the complete results retained across queries.
	CacheSize int
	// Priority picks the status of a join none of whose paths is
	// reachable, strongest first.
	Priority []Status
	Logger   log.Logger
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Limits:    guard.DefaultLimits(),
		CacheSize: 4096,
		Priority:  DefaultPriority(),
		Logger:    log.Discard(),
	}
}

// Option overrides one session option.
type Option func(*Options)

// WithLimits replaces every limit.
func WithLimits(l guard.Limits) Option {
	return func(o *Options) { o.Limits = l }
}

// WithMaxNodeVisits sets the node-visit budget of one query.
func WithMaxNodeVisits(n int) Option {
	return func(o *Options) { o.Limits.MaxNodeVisits = n }
}

// WithMaxConvergenceAttempts sets the iteration ceiling of loop fixed points.
func WithMaxConvergenceAttempts(n int) Option {
	return func(o *Options) { o.Limits.MaxConvergenceAttempts = n }
}

// WithMaxScopeComplexity sets the complexity above which a scope is not
// analyzed.
func WithMaxScopeComplexity(n int) Option {
	return func(o *Options) { o.Limits.MaxScopeComplexity = n }
}

// WithCacheSize sets the number of results retained across queries.
func WithCacheSize(n int) Option {
	return func(o *Options) { o.CacheSize = n }
}

// WithUnreachablePriority sets the order of unreachable statuses at joins.
func WithUnreachablePriority(p ...Status) Option {
	return func(o *Options) { o.Priority = p }
}

// WithLogger sets the logger for aborted queries and refused scopes.
func WithLogger(l log.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func (o Options) validate() error {
	if err := o.Limits.Validate(); err != nil {
		return err
	}
	if o.CacheSize < 0 {
		return fmt.Errorf("cache size must not be negative, got %d", o.CacheSize)
	}
	want := map[Status]bool{
		UnreachableStructural:      true,
		UnreachableStaticCondition: true,
		UnreachableByAnalysis:      true,
	}
	if len(o.Priority) != len(want) {
		return fmt.Errorf("unreachable priority must list %d statuses, got %d", len(want), len(o.Priority))
	}
	for _, s := range o.Priority {
		if !want[s] {
			return fmt.Errorf("unreachable priority: unexpected or repeated status %q", s)
		}
		delete(want, s)
	}
	return nil
}

// Result is the outcome of a narrowing query.
type Result struct {
	Type types.Type
	// Complete is false when the type depends on a value that was still
	// being computed, or when the query was aborted.
	Complete bool
	Aborted  bool
	Reason   guard.Reason
}

// ReachResult is the outcome of a reachability query. An aborted query
// reports Reachable.
type ReachResult struct {
	Status  Status
	Aborted bool
	Reason  guard.Reason
}

// NarrowOptions modify one narrowing query.
type NarrowOptions struct {
	// StartIncomplete marks the start type as provisional; results that
	// reach the scope start are then incomplete.
	StartIncomplete bool
	// SkipConditions ignores condition nodes, giving the type implied by
	// assignments alone.
	SkipConditions bool
}

// Stats reports the hit rates of the session caches.
type Stats struct {
	Narrow cache.Stats
	Reach  cache.Stats
}

// Session runs queries against one flow graph. A Session is not safe for
// concurrent queries; independent analyses use independent sessions.
type Session struct {
	g    *flow.Graph
	eval Evaluator
	opts Options
	log  log.Logger
	rank map[Status]int

	narrowCache *cache.LRU[types.Type]
	reachCache  *cache.LRU[Status]

	mu            sync.Mutex
	refusedScopes map[flow.ScopeID]bool
}

// NewSession creates a session over g.
func NewSession(g *flow.Graph, eval Evaluator, opts ...Option) (*Session, error) {
	if g == nil {
		return nil, fmt.Errorf("new session: nil graph")
	}
	if eval == nil {
		return nil, fmt.Errorf("new session: nil evaluator")
	}
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	if o.Logger == nil {
		o.Logger = log.Discard()
	}
	s := &Session{
		g:             g,
		eval:          eval,
		opts:          o,
		log:           o.Logger,
		rank:          make(map[Status]int, len(o.Priority)),
		narrowCache:   cache.New(cache.Options[types.Type]{MaxSize: o.CacheSize}),
		reachCache:    cache.New(cache.Options[Status]{MaxSize: o.CacheSize}),
		refusedScopes: make(map[flow.ScopeID]bool),
	}
	for i, st := range o.Priority {
		s.rank[st] = len(o.Priority) - i
	}
	return s, nil
}

// Graph returns the graph the session queries.
func (s *Session) Graph() *flow.Graph { return s.g }

// Options returns the effective options.
func (s *Session) Options() Options { return s.opts }

// Rebuild replaces the graph after the source changed. Every cached
// result is dropped.
func (s *Session) Rebuild(g *flow.Graph) {
	s.g = g
	s.narrowCache.Clear()
	s.reachCache.Clear()
	s.mu.Lock()
	s.refusedScopes = make(map[flow.ScopeID]bool)
	s.mu.Unlock()
}

// CacheStats returns the statistics of the session caches.
func (s *Session) CacheStats() Stats {
	return Stats{Narrow: s.narrowCache.Stats(), Reach: s.reachCache.Stats()}
}

// stronger returns whichever of a and b ranks higher.
func (s *Session) stronger(a, b Status) Status {
	if s.rank[b] > s.rank[a] {
		return b
	}
	return a
}

// tooComplex reports whether the scope of node is refused, logging the
// first refusal of each scope.
func (s *Session) tooComplex(node flow.NodeID) bool {
	scope := s.g.ScopeOfNode(node)
	if !s.opts.Limits.ScopeTooComplex(scope) {
		return false
	}
	s.mu.Lock()
	logged := s.refusedScopes[scope.ID]
	s.refusedScopes[scope.ID] = true
	s.mu.Unlock()
	if !logged {
		s.log.Debug("scope too complex to analyze",
			"scope", scope.Name, "complexity", scope.Complexity,
			"max", s.opts.Limits.MaxScopeComplexity)
	}
	return true
}

// Narrow returns the type of ref at node, given its type at the start of
// the scope.
func (s *Session) Narrow(ctx context.Context, node flow.NodeID, ref flow.Key, start types.Type, opts NarrowOptions) Result {
	if s.tooComplex(node) {
		return Result{Type: types.Unknown, Aborted: true, Reason: guard.ReasonTooComplex}
	}
	if !s.g.ScopeOfNode(node).Tracked.Affects(ref) {
		if _, dead := s.g.Node(node).(*flow.Unreachable); dead {
			return Result{Type: types.Never, Complete: true}
		}
		// Nested lookups made while a query runs skip this: the enclosing
		// walk already accounts for reachability.
		if q, nested := queryFrom(ctx); !nested || q.s != s {
			if r := s.Reachable(ctx, node, flow.NoNode, false); !r.Aborted && !r.Status.IsReachable() {
				return Result{Type: types.Never, Complete: true}
			}
		}
		return Result{Type: start, Complete: !opts.StartIncomplete}
	}

	q, fresh := s.begin(ctx)
	req := newNarrowReq(ref, start, opts)
	var t types.Type
	d := q.track(func() { t = q.narrow(req, node) })

	if q.budget.Exhausted() {
		if fresh {
			s.log.Debug("narrowing aborted",
				"node", node, "ref", ref, "reason", q.budget.Reason(), "visits", q.budget.Visits())
		}
		return Result{Type: start, Aborted: true, Reason: q.budget.Reason()}
	}
	if fresh && types.IsIncomplete(t) {
		t = types.RemoveIncomplete(t)
		if types.IsNever(t) {
			t = types.Unknown
		}
	}
	return Result{Type: t, Complete: d == noDep}
}

// Reachable reports whether node can execute. With a source node, it
// reports whether node can execute after source; otherwise whether it can
// execute after its scope is entered. Calls that never return block the
// path unless ignoreNoReturn is set.
func (s *Session) Reachable(ctx context.Context, node, source flow.NodeID, ignoreNoReturn bool) ReachResult {
	if s.tooComplex(node) {
		return ReachResult{Status: Reachable, Aborted: true, Reason: guard.ReasonTooComplex}
	}
	q, fresh := s.begin(ctx)
	var st Status
	q.track(func() { st = q.reach(node, source, ignoreNoReturn) })
	if q.budget.Exhausted() {
		if fresh {
			s.log.Debug("reachability aborted",
				"node", node, "reason", q.budget.Reason(), "visits", q.budget.Visits())
		}
		return ReachResult{Status: Reachable, Aborted: true, Reason: q.budget.Reason()}
	}
	return ReachResult{Status: st}
}

// IsSpeculative reports whether ctx belongs to a query evaluating through a
// closed finally gate. Results computed in that mode must not be cached by
// the caller.
func (s *Session) IsSpeculative(ctx context.Context) bool {
	q, ok := queryFrom(ctx)
	return ok && q.s == s && q.layer != ""
}
