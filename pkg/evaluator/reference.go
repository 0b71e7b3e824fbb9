package evaluator

import (
	"context"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/engine"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/types"
)

// ReferenceType evaluates the reference expression x as if it were written
// at flow node at.
func (e *Evaluator) ReferenceType(ctx context.Context, x ast.Expr, at flow.NodeID) types.Type {
	return e.reference(ctx, x, at).Type
}

func (e *Evaluator) reference(ctx context.Context, x ast.Expr, at flow.NodeID) engine.Result {
	k, ok := flow.KeyOf(x)
	if !ok {
		return engine.Result{Type: e.ExprType(ctx, x), Complete: true}
	}
	scope := e.g.ScopeOfNode(at)

	var start types.Type
	switch x := x.(type) {
	case *ast.NamedExpr:
		return e.reference(ctx, x.Target, at)
	case *ast.Name:
		owner := e.owner(scope, x.ID)
		switch {
		case owner == nil:
			return engine.Result{Type: e.builtinName(x.ID), Complete: true}
		case owner != scope:
			return engine.Result{Type: e.declaredType(ctx, owner, x.ID), Complete: true}
		}
		start = e.startType(ctx, scope, x.ID)
	case *ast.Attribute:
		start = e.member(ctx, e.ReferenceType(ctx, x.Value, at), x.Attr)
	case *ast.Subscript:
		start = e.subscript(e.ReferenceType(ctx, x.Value, at), x.Index)
	}
	if !scope.Tracked.Affects(k) {
		return engine.Result{Type: start, Complete: true}
	}
	return e.s.Narrow(ctx, at, k, start, engine.NarrowOptions{})
}

// owner returns the scope whose binding of name a reference in s sees,
// or nil for builtins. Class scopes are invisible to nested scopes.
func (e *Evaluator) owner(s *flow.Scope, name string) *flow.Scope {
	module := e.g.Scope(0)
	if s.Globals[name] {
		if module.Locals[name] {
			return module
		}
		return nil
	}
	if s.IsLocal(name) {
		return s
	}
	for id := s.Parent; id != flow.NoScope; {
		p := e.g.Scope(id)
		id = p.Parent
		if p.Kind == flow.ScopeClass {
			continue
		}
		if s.Nonlocals[name] && p.Kind == flow.ScopeModule {
			return nil
		}
		if p.IsLocal(name) {
			return p
		}
	}
	return nil
}

// startType is the type of a local name on entry to its scope.
func (e *Evaluator) startType(ctx context.Context, s *flow.Scope, name string) types.Type {
	for _, p := range s.Params {
		if p == name {
			return e.paramType(ctx, s, name)
		}
	}
	return types.Unbound
}

// paramType is the declared or inferred type of a parameter.
func (e *Evaluator) paramType(ctx context.Context, s *flow.Scope, name string) types.Type {
	var params []*ast.Param
	var def *ast.FunctionDef
	switch n := s.Node.(type) {
	case *ast.FunctionDef:
		params, def = n.Params, n
	case *ast.Lambda:
		params = n.Params
	}
	at := e.defSite(s)
	for i, p := range params {
		if p.Name != name {
			continue
		}
		var t types.Type
		switch {
		case p.Annotation != nil:
			t = e.annotation(ctx, p.Annotation, at)
		case i == 0 && def != nil:
			t = e.implicitFirstParam(ctx, def)
		}
		if t == nil && p.Default != nil {
			if d := e.widen(e.ExprType(ctx, p.Default)); d.Kind() != types.KindNone {
				t = d
			}
		}
		if t == nil {
			t = types.Unknown
		}
		switch p.Kind {
		case ast.ParamVarArgs:
			return &types.Tuple{Elems: []types.Type{t}, Unbounded: true}
		case ast.ParamKwArgs:
			return types.NewInstance(e.b.Dict, types.NewInstance(e.b.Str), t)
		}
		return t
	}
	return types.Unknown
}

// implicitFirstParam types an unannotated self or cls parameter.
func (e *Evaluator) implicitFirstParam(ctx context.Context, def *ast.FunctionDef) types.Type {
	cd, ok := e.idx.methodOf[def]
	if !ok {
		return nil
	}
	d := e.decorations(ctx, def.Decorators)
	switch {
	case d[specStaticMethod]:
		return nil
	case d[specClassMethod]:
		return &types.ClassObject{Class: e.classType(ctx, cd)}
	}
	return types.NewInstance(e.classType(ctx, cd))
}

// declaredType is the flow-insensitive type of a name bound in scope s, as
// seen from a nested scope: the union of everything assigned to it.
func (e *Evaluator) declaredType(ctx context.Context, s *flow.Scope, name string) types.Type {
	key := scopedName{scope: s.ID, name: name}
	if e.resolving[key] {
		return types.Unknown
	}
	e.resolving[key] = true
	defer delete(e.resolving, key)

	keepLiterals := isConstantName(name)
	var parts []types.Type
	for _, a := range e.scopeAssignments(s.ID, name) {
		if ann, ok := a.Source.(*ast.AnnAssign); ok {
			at, _ := e.g.FlowNode(ann)
			if isFinal(ann.Annotation) {
				return e.AssignedType(ctx, a)
			}
			return e.annotation(ctx, ann.Annotation, at)
		}
		t := e.AssignedType(ctx, a)
		if !keepLiterals {
			t = e.widen(t)
		}
		parts = append(parts, t)
	}
	for _, p := range s.Params {
		if p == name {
			parts = append(parts, e.paramType(ctx, s, name))
		}
	}
	if len(parts) == 0 {
		return types.Unknown
	}
	return types.Union(parts...)
}

// isConstantName reports whether name follows the ALL_CAPS convention for
// constants, whose literal values are kept.
func isConstantName(name string) bool {
	hasLetter := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		}
	}
	return hasLetter
}

func isFinal(ann ast.Expr) bool {
	if sub, ok := ann.(*ast.Subscript); ok {
		ann = sub.Value
	}
	form, ok := typingForm(ann)
	return ok && form == "Final"
}

// builtinName resolves a name no enclosing scope binds.
func (e *Evaluator) builtinName(name string) types.Type {
	if c, ok := e.b.Lookup(name); ok {
		if c == e.b.NoneType {
			return types.Unknown
		}
		return &types.ClassObject{Class: c}
	}
	if fn, ok := e.std.funcs[name]; ok {
		return fn
	}
	switch name {
	case "__name__", "__file__", "__doc__", "__qualname__", "__module__":
		return types.NewInstance(e.b.Str)
	case "__debug__":
		return types.NewInstance(e.b.Bool)
	}
	return types.Unknown
}

// valueAt evaluates a name or dotted reference written at flow node at,
// for expressions the binder did not visit, such as annotations.
func (e *Evaluator) valueAt(ctx context.Context, x ast.Expr, at flow.NodeID) types.Type {
	switch x := x.(type) {
	case *ast.Name:
		return e.ReferenceType(ctx, x, at)
	case *ast.Attribute:
		return e.member(ctx, e.valueAt(ctx, x.Value, at), x.Attr)
	case *ast.Subscript:
		return e.subscript(e.valueAt(ctx, x.Value, at), x.Index)
	}
	return types.Unknown
}
