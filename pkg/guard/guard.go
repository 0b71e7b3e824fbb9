// Package guard bounds the cost of flow analysis: a per-scope complexity
// ceiling checked before a scope is analyzed, and a per-query node-visit
// budget that also observes cancellation.
package guard

import (
	"context"
	"fmt"

	"github.com/l3aro/flowtype/pkg/flow"
)

// Reason says why a query stopped before finishing.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonBudget     Reason = "node_visit_budget"
	ReasonCanceled   Reason = "canceled"
	ReasonTooComplex Reason = "scope_too_complex"
)

// Limits are the ceilings of one analysis session.
type Limits struct {
	// MaxNodeVisits bounds the flow nodes one top-level query may visit.
	// Zero disables the bound.
	MaxNodeVisits int
	// MaxConvergenceAttempts bounds the fixed-point iterations of one loop.
	MaxConvergenceAttempts int
	// MaxScopeComplexity is the complexity score above which a scope is
	// not analyzed at all.
	MaxScopeComplexity int
}

// DefaultLimits returns the limits used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		MaxNodeVisits:          200000,
		MaxConvergenceAttempts: 64,
		MaxScopeComplexity:     768,
	}
}

// Validate checks that the limits are usable.
func (l Limits) Validate() error {
	if l.MaxNodeVisits < 0 {
		return fmt.Errorf("max node visits must not be negative, got %d", l.MaxNodeVisits)
	}
	if l.MaxConvergenceAttempts < 1 {
		return fmt.Errorf("max convergence attempts must be at least 1, got %d", l.MaxConvergenceAttempts)
	}
	if l.MaxScopeComplexity < 1 {
		return fmt.Errorf("max scope complexity must be at least 1, got %d", l.MaxScopeComplexity)
	}
	return nil
}

// ScopeTooComplex reports whether s exceeds the complexity ceiling.
func (l Limits) ScopeTooComplex(s *flow.Scope) bool {
	return s != nil && s.Complexity > l.MaxScopeComplexity
}

// Budget counts the node visits of one query. It is not safe for
// concurrent use; each query owns its budget.
type Budget struct {
	ctx    context.Context
	max    int
	visits int
	reason Reason
}

// NewBudget returns a budget allowing max visits (unbounded when max is
// zero) that stops as soon as ctx is done.
func NewBudget(ctx context.Context, max int) *Budget {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Budget{ctx: ctx, max: max}
}

// Visit records one node visit and reports whether the query may go on.
// Once it returns false it keeps returning false.
func (b *Budget) Visit() bool {
	if b.reason != ReasonNone {
		return false
	}
	b.visits++
	if b.max > 0 && b.visits > b.max {
		b.reason = ReasonBudget
		return false
	}
	select {
	case <-b.ctx.Done():
		b.reason = ReasonCanceled
		return false
	default:
	}
	return true
}

// Exhausted reports whether the query has been stopped.
func (b *Budget) Exhausted() bool { return b.reason != ReasonNone }

// Reason returns why the query was stopped, or ReasonNone.
func (b *Budget) Reason() Reason { return b.reason }

// Visits returns the number of visits recorded so far.
func (b *Budget) Visits() int { return b.visits }
