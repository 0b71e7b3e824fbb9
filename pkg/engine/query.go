package engine

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/guard"
	"github.com/l3aro/flowtype/pkg/types"
)

const (
	// noDep means a value depends on nothing provisional.
	noDep = math.MaxInt
	// unresolved marks a value that can never become complete in this
	// query: it met a recursion guard, the convergence ceiling or an
	// exhausted budget.
	unresolved = -1
)

type queryKey struct{}

// query is the traversal state of one top-level query and of every
// reentrant query made while it runs.
type query struct {
	s      *Session
	ctx    context.Context
	budget *guard.Budget

	entries map[entryKey]entry
	// pending maps the entries being computed to the loop depth they
	// started at.
	pending map[entryKey]int

	// loops holds the fixed-point state of the loop labels being iterated.
	loops     map[entryKey]*loopState
	loopDepth int

	// dep is the smallest loop depth the value being computed depends on
	// provisionally, noDep when it depends on nothing.
	dep        int
	generation int

	// gates are the finally gates closed by the post-finally nodes being
	// walked through; layer names that set.
	gates map[flow.NodeID]bool
	layer string

	reached    map[reachKey]Status
	reachStack map[reachKey]int
	// cut is the smallest reach stack depth a cycle was cut at.
	cut int

	masks     map[maskKey]constraintMask
	maskStack map[maskKey]int
	maskCut   int
}

type entryKey struct {
	node  flow.NodeID
	req   string
	layer string
}

type entry struct {
	t        types.Type
	complete bool
	gen      int
	dep      int
}

type loopState struct {
	depth   int
	union   types.Type
	widened bool
}

func queryFrom(ctx context.Context) (*query, bool) {
	if ctx == nil {
		return nil, false
	}
	q, ok := ctx.Value(queryKey{}).(*query)
	return q, ok
}

// begin returns the query ctx belongs to, or starts a new one.
func (s *Session) begin(ctx context.Context) (*query, bool) {
	if q, ok := queryFrom(ctx); ok && q.s == s {
		return q, false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	q := &query{
		s:          s,
		budget:     guard.NewBudget(ctx, s.opts.Limits.MaxNodeVisits),
		entries:    make(map[entryKey]entry),
		pending:    make(map[entryKey]int),
		loops:      make(map[entryKey]*loopState),
		dep:        noDep,
		gates:      make(map[flow.NodeID]bool),
		reached:    make(map[reachKey]Status),
		reachStack: make(map[reachKey]int),
		cut:        noDep,
		masks:      make(map[maskKey]constraintMask),
		maskStack:  make(map[maskKey]int),
		maskCut:    noDep,
	}
	q.ctx = context.WithValue(ctx, queryKey{}, q)
	return q, true
}

// track runs fn with a fresh dependency mark and returns the mark fn left.
// The outer mark keeps the smaller of the two.
func (q *query) track(fn func()) int {
	saved := q.dep
	q.dep = noDep
	fn()
	d := q.dep
	q.dep = min(saved, d)
	return d
}

func (q *query) markDep(d int) {
	q.dep = min(q.dep, d)
}

// visit charges one node visit to the budget.
func (q *query) visit() bool {
	if q.budget.Visit() {
		return true
	}
	q.markDep(unresolved)
	return false
}

func (q *query) lookup(k entryKey) (types.Type, bool) {
	if e, ok := q.entries[k]; ok {
		if e.complete {
			return e.t, true
		}
		if e.gen == q.generation {
			q.markDep(e.dep)
			return e.t, true
		}
	}
	if k.layer == "" {
		if t, ok := q.s.narrowCache.Get(k.sessionKey()); ok {
			q.entries[k] = entry{t: t, complete: true}
			return t, true
		}
	}
	return nil, false
}

func (q *query) store(k entryKey, t types.Type, dep int) {
	if q.budget.Exhausted() {
		return
	}
	complete := dep == noDep
	q.entries[k] = entry{t: t, complete: complete, gen: q.generation, dep: dep}
	if complete && k.layer == "" {
		q.s.narrowCache.Set(k.sessionKey(), t)
	}
}

func (k entryKey) sessionKey() string {
	return "n:" + strconv.Itoa(int(k.node)) + ":" + k.req
}

// closeGate runs fn with the finally gate closed, in the speculative
// layer named by the set of closed gates.
func closeGate[T any](q *query, gate flow.NodeID, fn func() T) T {
	if q.gates[gate] {
		return fn()
	}
	prev := q.layer
	q.gates[gate] = true
	q.layer = layerName(q.gates)
	defer func() {
		delete(q.gates, gate)
		q.layer = prev
	}()
	return fn()
}

func layerName(gates map[flow.NodeID]bool) string {
	ids := make([]int, 0, len(gates))
	for g := range gates {
		ids = append(ids, int(g))
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
