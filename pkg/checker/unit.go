package checker

import (
	"fmt"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/binder"
	"github.com/l3aro/flowtype/pkg/engine"
	"github.com/l3aro/flowtype/pkg/evaluator"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/pyparse"
)

// Unit is one parsed, bound and evaluated file.
type Unit struct {
	Path   string
	Module *ast.Module
	Eval   *evaluator.Evaluator
}

// Load parses src as the content of path, binds its flow graph and opens
// its session. A parse failure is returned as a *pyparse.SyntaxError.
func Load(path string, src []byte, bopts binder.Options, eopts ...engine.Option) (*Unit, error) {
	mod, err := pyparse.Parse(path, src)
	if err != nil {
		return nil, err
	}
	g, err := binder.Bind(mod, bopts)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", path, err)
	}
	ev, err := evaluator.New(mod, g, eopts...)
	if err != nil {
		return nil, err
	}
	return &Unit{Path: path, Module: mod, Eval: ev}, nil
}

// Graph returns the unit's flow graph.
func (u *Unit) Graph() *flow.Graph { return u.Eval.Graph() }

// Session returns the unit's query session.
func (u *Unit) Session() *engine.Session { return u.Eval.Session() }

// At returns the flow node of the position just before the first statement
// starting on line. A line inside a multi-line statement maps to that
// statement, a blank line to the statement after it, and a line past the
// last statement of a function, class or the module to the end of that
// scope.
func (u *Unit) At(line int) (flow.NodeID, error) {
	if line < 1 {
		return flow.NoNode, fmt.Errorf("line %d out of range", line)
	}
	if id, ok := u.locate(u.Module.Body, line); ok {
		return id, nil
	}
	s, ok := u.Graph().ScopeFor(u.Module)
	if !ok {
		return flow.NoNode, fmt.Errorf("%s: no module scope", u.Path)
	}
	return s.Return, nil
}

func (u *Unit) locate(block []ast.Stmt, line int) (flow.NodeID, bool) {
	g := u.Graph()
	for _, s := range block {
		sp := s.Span()
		if line > sp.EndLine {
			continue
		}
		if line <= sp.Line {
			return g.FlowNode(s)
		}
		for _, sub := range childBlocks(s) {
			if id, ok := u.locate(sub, line); ok {
				return id, true
			}
		}
		switch s.(type) {
		case *ast.FunctionDef, *ast.ClassDef:
			if scope, ok := g.ScopeFor(s); ok {
				return scope.Return, true
			}
		}
		return g.FlowNode(s)
	}
	return flow.NoNode, false
}
