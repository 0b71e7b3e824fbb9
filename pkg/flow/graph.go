package flow

import (
	"errors"
	"fmt"

	"github.com/l3aro/flowtype/pkg/ast"
)

// ErrInvariant is wrapped by every structural corruption error.
var ErrInvariant = errors.New("flow graph invariant violated")

// InvariantError reports a malformed graph. Traversal panics with it.
type InvariantError struct {
	Node NodeID
	Msg  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("flow node %d: %s", e.Node, e.Msg)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

// ScopeID addresses a scope in a Graph.
type ScopeID int

// NoScope is the parent of the module scope.
const NoScope ScopeID = -1

// ScopeKind is the syntactic kind of a scope.
type ScopeKind string

const (
	ScopeModule   ScopeKind = "module"
	ScopeFunction ScopeKind = "function"
	ScopeLambda   ScopeKind = "lambda"
	ScopeClass    ScopeKind = "class"
)

// Scope is the per-scope metadata produced alongside the graph.
type Scope struct {
	ID     ScopeID
	Kind   ScopeKind
	Name   string
	Node   ast.Node
	Parent ScopeID

	// Start is the entry node; Return collects every return statement and
	// the fallthrough at the end of the body.
	Start  NodeID
	Return NodeID

	// Tracked holds every reference key assigned or narrowed in the scope.
	// References outside it never need flow analysis.
	Tracked KeySet

	// Complexity grows with every node and antecedent created in the scope.
	Complexity int

	// Locals are the names bound in this scope; Params lists parameters in
	// order; Globals and Nonlocals are the names declared as such.
	Locals    map[string]bool
	Params    []string
	Globals   map[string]bool
	Nonlocals map[string]bool

	// Aliases maps a name assigned exactly once to the test expression it
	// was bound to, for conditions such as `ok = x is not None; if ok:`.
	Aliases map[string]ast.Expr

	// AssignCounts counts the assignments to each local name.
	AssignCounts map[string]int

	// ReturnSites are the flow nodes of every return statement.
	ReturnSites []NodeID
}

// IsLocal reports whether name is bound in this scope.
func (s *Scope) IsLocal(name string) bool {
	return s.Locals[name] && !s.Globals[name] && !s.Nonlocals[name]
}

// Graph is the arena of flow nodes for one analysis unit.
type Graph struct {
	nodes     []Node
	nodeScope []ScopeID
	scopes    []*Scope
	exprFlow  map[ast.Node]NodeID
	scopeOf   map[ast.Node]ScopeID
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		exprFlow: make(map[ast.Node]NodeID),
		scopeOf:  make(map[ast.Node]ScopeID),
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node with the given ID. An out-of-range ID is a
// structural corruption and panics.
func (g *Graph) Node(id NodeID) Node {
	if id < 0 || int(id) >= len(g.nodes) {
		panic(&InvariantError{Node: id, Msg: "dangling node reference"})
	}
	return g.nodes[id]
}

// Scopes returns every scope in creation order; index 0 is the module.
func (g *Graph) Scopes() []*Scope { return g.scopes }

// Scope returns the scope with the given ID.
func (g *Graph) Scope(id ScopeID) *Scope { return g.scopes[id] }

// ScopeOfNode returns the scope a flow node belongs to.
func (g *Graph) ScopeOfNode(id NodeID) *Scope {
	return g.scopes[g.nodeScope[g.Node(id).ID()]]
}

// ScopeFor returns the scope created for a function, lambda, class or
// module syntax node.
func (g *Graph) ScopeFor(n ast.Node) (*Scope, bool) {
	id, ok := g.scopeOf[n]
	if !ok {
		return nil, false
	}
	return g.scopes[id], true
}

// NewScope registers a scope and creates its Start node.
func (g *Graph) NewScope(kind ScopeKind, name string, node ast.Node, parent ScopeID) *Scope {
	s := &Scope{
		ID:           ScopeID(len(g.scopes)),
		Kind:         kind,
		Name:         name,
		Node:         node,
		Parent:       parent,
		Return:       NoNode,
		Tracked:      make(KeySet),
		Locals:       make(map[string]bool),
		Globals:      make(map[string]bool),
		Nonlocals:    make(map[string]bool),
		Aliases:      make(map[string]ast.Expr),
		AssignCounts: make(map[string]int),
	}
	g.scopes = append(g.scopes, s)
	if node != nil {
		g.scopeOf[node] = s.ID
	}
	s.Start = g.Add(s.ID, &Start{Scope: s.ID})
	return s
}

// Add appends n to the arena as part of scope and returns its ID.
func (g *Graph) Add(scope ScopeID, n Node) NodeID {
	id := NodeID(len(g.nodes))
	n.setID(id)
	g.nodes = append(g.nodes, n)
	g.nodeScope = append(g.nodeScope, scope)
	s := g.scopes[scope]
	s.Complexity++
	s.Complexity += len(n.Antecedents())
	return id
}

// AddAntecedent appends ant to a label that has not been sealed yet.
func (g *Graph) AddAntecedent(labelID, ant NodeID) error {
	if ant < 0 || int(ant) >= len(g.nodes) {
		return &InvariantError{Node: labelID, Msg: fmt.Sprintf("antecedent %d out of range", ant)}
	}
	l, ok := labelOf(g.Node(labelID))
	if !ok {
		return &InvariantError{Node: labelID, Msg: "antecedent added to a non-label node"}
	}
	before := len(l.ants)
	if err := l.addAntecedent(ant); err != nil {
		return err
	}
	if len(l.ants) > before {
		g.scopes[g.nodeScope[labelID]].Complexity++
	}
	return nil
}

// Seal freezes the antecedent set of a label.
func (g *Graph) Seal(labelID NodeID) {
	if l, ok := labelOf(g.Node(labelID)); ok {
		l.sealed = true
	}
}

func labelOf(n Node) (*label, bool) {
	switch n := n.(type) {
	case *BranchLabel:
		return &n.label, true
	case *LoopLabel:
		return &n.label, true
	case *PostContextManager:
		return &n.label, true
	}
	return nil, false
}

// SetFlowNode attaches the flow node in effect at a syntax node. The first
// attachment wins; later calls for the same syntax node are ignored.
func (g *Graph) SetFlowNode(n ast.Node, id NodeID) {
	if _, ok := g.exprFlow[n]; ok {
		return
	}
	g.exprFlow[n] = id
}

// FlowNode returns the flow node attached to a syntax node.
func (g *Graph) FlowNode(n ast.Node) (NodeID, bool) {
	id, ok := g.exprFlow[n]
	return id, ok
}

// Validate checks the structural invariants: antecedent indices are in
// range, every node except Start and Unreachable has an antecedent, every
// label is sealed, and every cycle passes through a loop label.
func (g *Graph) Validate() error {
	for i, n := range g.nodes {
		id := NodeID(i)
		ants := n.Antecedents()
		for _, a := range ants {
			if a < 0 || int(a) >= len(g.nodes) {
				return &InvariantError{Node: id, Msg: fmt.Sprintf("antecedent %d out of range", a)}
			}
		}
		switch n := n.(type) {
		case *Start:
			continue
		case *Unreachable:
			continue
		default:
			if len(ants) == 0 {
				return &InvariantError{Node: id, Msg: string(n.Kind()) + " node without antecedents"}
			}
		}
		if l, ok := labelOf(n); ok && !l.sealed {
			return &InvariantError{Node: id, Msg: "label never sealed"}
		}
	}
	return g.checkCycles()
}

// checkCycles runs a depth-first search over antecedent edges, skipping the
// edges out of loop labels; any cycle left is illegal.
func (g *Graph) checkCycles() error {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(g.nodes))
	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		color[id] = grey
		n := g.nodes[id]
		if _, isLoop := n.(*LoopLabel); !isLoop {
			for _, a := range n.Antecedents() {
				switch color[a] {
				case grey:
					return &InvariantError{Node: id, Msg: fmt.Sprintf("cycle through node %d without a loop label", a)}
				case white:
					if err := visit(a); err != nil {
						return err
					}
				}
			}
		}
		color[id] = black
		return nil
	}
	for i := range g.nodes {
		if color[i] == white {
			if err := visit(NodeID(i)); err != nil {
				return err
			}
		}
	}
	return nil
}
