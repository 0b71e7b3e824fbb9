// Package evaluator types the expressions of a Python module for the
// narrowing engine. It builds class and function declarations from the
// syntax tree, parses annotations, and decides which calls never return and
// which context managers swallow exceptions.
package evaluator

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/l3aro/flowtype/internal/log"
	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/engine"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/types"
)

var _ engine.Evaluator = (*Evaluator)(nil)

// Evaluator types one module. It owns the engine session that queries the
// module's flow graph and, like the session, is not safe for concurrent use.
type Evaluator struct {
	mod     *ast.Module
	modName string
	g       *flow.Graph
	b       *types.Builtins
	s       *engine.Session
	std     *stdlib
	idx     *index
	log     log.Logger

	classes   map[*ast.ClassDef]*types.Class
	functions map[*ast.FunctionDef]types.Type
	defs      map[*types.Function]*ast.FunctionDef
	typeVars  map[*ast.Call]*types.TypeVar
	assigns   map[flow.ScopeID]map[string][]*flow.Assignment

	noReturn  map[*ast.FunctionDef]bool
	inferring map[*ast.FunctionDef]bool
	resolving map[scopedName]bool
}

type scopedName struct {
	scope flow.ScopeID
	name  string
}

// New creates the evaluator for mod, whose flow graph is g, and opens the
// session that answers its queries.
func New(mod *ast.Module, g *flow.Graph, opts ...engine.Option) (*Evaluator, error) {
	if mod == nil {
		return nil, fmt.Errorf("new evaluator: nil module")
	}
	if g == nil {
		return nil, fmt.Errorf("new evaluator: nil graph")
	}
	b := types.NewBuiltins()
	e := &Evaluator{
		mod:       mod,
		modName:   moduleName(mod.Path),
		g:         g,
		b:         b,
		std:       newStdlib(b),
		idx:       buildIndex(mod),
		classes:   make(map[*ast.ClassDef]*types.Class),
		functions: make(map[*ast.FunctionDef]types.Type),
		defs:      make(map[*types.Function]*ast.FunctionDef),
		typeVars:  make(map[*ast.Call]*types.TypeVar),
		noReturn:  make(map[*ast.FunctionDef]bool),
		inferring: make(map[*ast.FunctionDef]bool),
		resolving: make(map[scopedName]bool),
	}
	s, err := engine.NewSession(g, e, opts...)
	if err != nil {
		return nil, fmt.Errorf("new evaluator: %w", err)
	}
	e.s = s
	e.log = s.Options().Logger
	return e, nil
}

// moduleName derives the dotted module name classes are qualified with.
func moduleName(p string) string {
	base := strings.TrimSuffix(path.Base(strings.ReplaceAll(p, "\\", "/")), ".py")
	if base == "" || base == "." || base == "/" {
		return "__main__"
	}
	return base
}

// Session returns the session over the module's graph.
func (e *Evaluator) Session() *engine.Session { return e.s }

// Graph returns the module's flow graph.
func (e *Evaluator) Graph() *flow.Graph { return e.g }

// Module returns the analyzed module.
func (e *Evaluator) Module() *ast.Module { return e.mod }

// Builtins returns the builtin classes shared by every type of the module.
func (e *Evaluator) Builtins() *types.Builtins { return e.b }

// Narrow returns the narrowed type of the reference expression ref as if it
// were written at flow node at. Unlike ReferenceType it reports whether the
// result is complete.
func (e *Evaluator) Narrow(ctx context.Context, ref ast.Expr, at flow.NodeID) (engine.Result, error) {
	if _, ok := flow.KeyOf(ref); !ok {
		return engine.Result{}, fmt.Errorf("narrow: %s is not a reference expression", ast.Format(ref))
	}
	if at < 0 || int(at) >= e.g.Len() {
		return engine.Result{}, fmt.Errorf("narrow: node %d out of range", at)
	}
	return e.reference(ctx, ref, at), nil
}

// env adapts the evaluator to the narrowing rules' operand lookups.
type env struct {
	ctx   context.Context
	e     *Evaluator
	scope *flow.Scope
}

func (v *env) TypeOf(x ast.Expr) types.Type { return v.e.ExprType(v.ctx, x) }
func (v *env) Builtins() *types.Builtins    { return v.e.b }
func (v *env) Alias(name string) (ast.Expr, bool) {
	x, ok := v.scope.Aliases[name]
	return x, ok
}

func (e *Evaluator) env(ctx context.Context, at flow.NodeID) *env {
	return &env{ctx: ctx, e: e, scope: e.g.ScopeOfNode(at)}
}

// siteOf returns a flow node at which x, or the first of its
// subexpressions the binder visited, is evaluated.
func (e *Evaluator) siteOf(x ast.Node) (flow.NodeID, bool) {
	at, found := flow.NoNode, false
	ast.Inspect(x, func(n ast.Node) bool {
		if found {
			return false
		}
		if id, ok := e.g.FlowNode(n); ok {
			at, found = id, true
			return false
		}
		return true
	})
	return at, found
}

// defSite is the node a def or class statement of scope s executes at, in
// the enclosing scope.
func (e *Evaluator) defSite(s *flow.Scope) flow.NodeID {
	if at, ok := e.g.FlowNode(s.Node); ok {
		return at
	}
	if s.Parent != flow.NoScope {
		return e.g.Scope(s.Parent).Start
	}
	return s.Start
}

// scopeAssignments returns the assignments to name in scope s.
func (e *Evaluator) scopeAssignments(s flow.ScopeID, name string) []*flow.Assignment {
	if e.assigns == nil {
		e.assigns = make(map[flow.ScopeID]map[string][]*flow.Assignment)
		for id := 0; id < e.g.Len(); id++ {
			a, ok := e.g.Node(flow.NodeID(id)).(*flow.Assignment)
			if !ok || a.Unbind || !a.Key.IsName() {
				continue
			}
			sc := e.g.ScopeOfNode(flow.NodeID(id)).ID
			if e.assigns[sc] == nil {
				e.assigns[sc] = make(map[string][]*flow.Assignment)
			}
			e.assigns[sc][a.Key.Path] = append(e.assigns[sc][a.Key.Path], a)
		}
	}
	return e.assigns[s][name]
}
