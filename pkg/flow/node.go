// Package flow defines the flow graph the narrowing engine walks: an arena of
// nodes addressed by NodeID, each pointing backward at its antecedents.
package flow

import (
	"fmt"

	"github.com/l3aro/flowtype/pkg/ast"
)

// NodeID addresses a node in a Graph.
type NodeID int

// NoNode is the absent antecedent.
const NoNode NodeID = -1

// Kind identifies the node variant.
type Kind string

const (
	KindStart              Kind = "start"
	KindUnreachable        Kind = "unreachable"
	KindBranchLabel        Kind = "branch_label"
	KindLoopLabel          Kind = "loop_label"
	KindAssignment         Kind = "assignment"
	KindVariableAnnotation Kind = "variable_annotation"
	KindCondition          Kind = "condition"
	KindPatternNarrow      Kind = "pattern_narrow"
	KindExhaustedMatch     Kind = "exhausted_match"
	KindCall               Kind = "call"
	KindPreFinallyGate     Kind = "pre_finally_gate"
	KindPostFinally        Kind = "post_finally"
	KindPostContextManager Kind = "post_context_manager"
	KindWildcardImport     Kind = "wildcard_import"
)

// Node is one flow node. The set of implementations is closed: every type
// in this file, nothing else.
type Node interface {
	ID() NodeID
	Kind() Kind
	Antecedents() []NodeID
	// Describe renders the node payload for dumps.
	Describe() string

	setID(NodeID)
}

type base struct {
	id NodeID
}

func (b *base) ID() NodeID      { return b.id }
func (b *base) setID(id NodeID) { b.id = id }

// single is embedded by nodes with exactly one antecedent.
type single struct {
	base
	Antecedent NodeID
}

func (s *single) Antecedents() []NodeID { return []NodeID{s.Antecedent} }

// SetAntecedent links the node to its predecessor. It must be called before
// the node is added to a Graph.
func (s *single) SetAntecedent(id NodeID) { s.Antecedent = id }

// label is embedded by join nodes. Antecedents may only be added until
// the label is sealed.
type label struct {
	base
	ants   []NodeID
	sealed bool
}

func (l *label) Antecedents() []NodeID { return l.ants }

// Sealed reports whether the antecedent set is final.
func (l *label) Sealed() bool { return l.sealed }

func (l *label) addAntecedent(id NodeID) error {
	if l.sealed {
		return &InvariantError{Node: l.id, Msg: "antecedent added to sealed label"}
	}
	for _, a := range l.ants {
		if a == id {
			return nil
		}
	}
	l.ants = append(l.ants, id)
	return nil
}

// Start is the entry of a scope.
type Start struct {
	base
	Scope ScopeID
}

func (*Start) Kind() Kind            { return KindStart }
func (*Start) Antecedents() []NodeID { return nil }
func (s *Start) Describe() string    { return fmt.Sprintf("scope %d", s.Scope) }

// UnreachableReason says why the builder proved code dead.
type UnreachableReason string

const (
	ReasonStructural      UnreachableReason = "structural"
	ReasonStaticCondition UnreachableReason = "static_condition"
)

// Unreachable marks dead code. Antecedent is NoNode unless the node was
// spliced after live code (kept for dumps only).
type Unreachable struct {
	base
	Reason     UnreachableReason
	Antecedent NodeID
}

func (*Unreachable) Kind() Kind { return KindUnreachable }

func (u *Unreachable) Antecedents() []NodeID {
	if u.Antecedent == NoNode {
		return nil
	}
	return []NodeID{u.Antecedent}
}

func (u *Unreachable) Describe() string { return string(u.Reason) }

// BranchLabel joins the paths of a branching construct. PreBranch is the
// node the branch started from; Affected holds every reference key assigned
// or narrowed anywhere inside the branch.
type BranchLabel struct {
	label
	PreBranch NodeID
	Affected  KeySet
}

func (*BranchLabel) Kind() Kind { return KindBranchLabel }

func (b *BranchLabel) Describe() string {
	if b.PreBranch == NoNode {
		return fmt.Sprintf("%d paths", len(b.ants))
	}
	return fmt.Sprintf("%d paths, pre-branch %d", len(b.ants), b.PreBranch)
}

// LoopLabel is the head of a loop. Antecedents()[0] is the loop entry; the
// remaining antecedents are back-edges from continue statements and the end
// of the body.
type LoopLabel struct {
	label
	Affected KeySet
}

func (*LoopLabel) Kind() Kind         { return KindLoopLabel }
func (l *LoopLabel) Describe() string { return fmt.Sprintf("loop, %d paths", len(l.ants)) }

// Assignment writes (or with Unbind, deletes) the reference Key. Source is
// the syntax node that produces the value: an assignment statement, a for
// loop, a with item, an import, a def or class statement, an except clause
// or an assignment expression.
type Assignment struct {
	single
	Target ast.Expr
	Key    Key
	Source ast.Node
	Unbind bool
}

func (*Assignment) Kind() Kind { return KindAssignment }

func (a *Assignment) Describe() string {
	if a.Unbind {
		return "del " + a.Key.String()
	}
	return a.Key.String() + " ="
}

// VariableAnnotation declares a type without writing a value.
type VariableAnnotation struct {
	single
	Target     ast.Expr
	Annotation ast.Expr
}

func (*VariableAnnotation) Kind() Kind { return KindVariableAnnotation }

func (v *VariableAnnotation) Describe() string {
	return ast.Format(v.Target) + ": " + ast.Format(v.Annotation)
}

// ConditionFlavor is the polarity of a Condition node. The never flavors
// mark an implied else: the path is dead if the test's subject narrows
// to never under the given polarity.
type ConditionFlavor string

const (
	CondTrue       ConditionFlavor = "true"
	CondFalse      ConditionFlavor = "false"
	CondTrueNever  ConditionFlavor = "true_never"
	CondFalseNever ConditionFlavor = "false_never"
)

// Positive reports whether the test is assumed to have evaluated true.
func (f ConditionFlavor) Positive() bool {
	return f == CondTrue || f == CondTrueNever
}

// IsNever reports whether this is an implied-else flavor.
func (f ConditionFlavor) IsNever() bool {
	return f == CondTrueNever || f == CondFalseNever
}

// Condition gates a path on the outcome of Test.
type Condition struct {
	single
	Test   ast.Expr
	Flavor ConditionFlavor
}

func (*Condition) Kind() Kind { return KindCondition }

func (c *Condition) Describe() string {
	return string(c.Flavor) + " `" + ast.Format(c.Test) + "`"
}

// PatternNarrow is the entry of a case arm (Positive) or the path taken when
// the arm's pattern did not match (!Positive).
type PatternNarrow struct {
	single
	Subject  ast.Expr
	Case     *ast.MatchCase
	Positive bool
}

func (*PatternNarrow) Kind() Kind { return KindPatternNarrow }

func (p *PatternNarrow) Describe() string {
	prefix := "case "
	if !p.Positive {
		prefix = "not case "
	}
	return prefix + ast.FormatPattern(p.Case.Pattern)
}

// ExhaustedMatch is the fallthrough path of a match statement whose last arm
// is refutable: it is dead when the subject narrows to never.
type ExhaustedMatch struct {
	single
	Subject ast.Expr
	Match   *ast.Match
}

func (*ExhaustedMatch) Kind() Kind { return KindExhaustedMatch }

func (e *ExhaustedMatch) Describe() string {
	return "match " + ast.Format(e.Subject) + " exhausted"
}

// Call is a call that may not return.
type Call struct {
	single
	Expr *ast.Call
}

func (*Call) Kind() Kind         { return KindCall }
func (c *Call) Describe() string { return ast.Format(c.Expr) }

// PreFinallyGate is the exceptional entry into a finally clause. Its ID
// identifies the gate.
type PreFinallyGate struct {
	single
}

func (*PreFinallyGate) Kind() Kind       { return KindPreFinallyGate }
func (*PreFinallyGate) Describe() string { return "exceptional entry" }

// PostFinally ends a finally clause. Evaluating through it closes Gate.
type PostFinally struct {
	single
	Gate NodeID
}

func (*PostFinally) Kind() Kind { return KindPostFinally }

func (p *PostFinally) Describe() string { return fmt.Sprintf("gate %d", p.Gate) }

// PostContextManager joins the exceptional exits of a with block. When
// BlockIfSwallows is false the label is live only if some context manager
// swallows exceptions (execution continues after the block); when true it
// is live only if none does (the exception propagates).
type PostContextManager struct {
	label
	Contexts        []ast.Expr
	Async           bool
	BlockIfSwallows bool
}

func (*PostContextManager) Kind() Kind { return KindPostContextManager }

func (p *PostContextManager) Describe() string {
	mode := "swallowed"
	if p.BlockIfSwallows {
		mode = "propagated"
	}
	return fmt.Sprintf("%d contexts, %s", len(p.Contexts), mode)
}

// WildcardImport is `from module import *`.
type WildcardImport struct {
	single
	Module string
}

func (*WildcardImport) Kind() Kind         { return KindWildcardImport }
func (w *WildcardImport) Describe() string { return "from " + w.Module + " import *" }

// IsLabel reports whether n accepts antecedents after creation.
func IsLabel(n Node) bool {
	switch n.(type) {
	case *BranchLabel, *LoopLabel, *PostContextManager:
		return true
	}
	return false
}
