package evaluator

import (
	"context"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/types"
)

// decorations resolves the decorators the evaluator understands.
func (e *Evaluator) decorations(ctx context.Context, decs []ast.Expr) map[special]bool {
	out := make(map[special]bool)
	for _, d := range decs {
		for _, m := range types.Members(e.ExprType(ctx, d)) {
			if fn, ok := m.(*types.Function); ok {
				if sp := e.std.specials[fn]; sp != specNone {
					out[sp] = true
				}
			}
		}
	}
	return out
}

// functionType builds the type a def statement binds. Decorators other
// than the ones the evaluator knows leave the function unchanged.
func (e *Evaluator) functionType(ctx context.Context, def *ast.FunctionDef) types.Type {
	if t, ok := e.functions[def]; ok {
		return t
	}
	fn := &types.Function{Name: def.Name}
	e.functions[def] = fn
	e.defs[fn] = def

	scope, ok := e.g.ScopeFor(def)
	if !ok {
		return fn
	}
	at := e.defSite(scope)
	for _, p := range def.Params {
		fn.Params = append(fn.Params, types.Param{Name: p.Name, Type: e.paramType(ctx, scope, p.Name)})
	}

	if sigs := e.idx.overloads[def]; len(sigs) > 0 {
		for _, sig := range sigs {
			if o, ok := e.functionType(ctx, sig).(*types.Function); ok {
				fn.Overloads = append(fn.Overloads, o)
			}
		}
		return fn
	}

	switch {
	case def.Async:
		// Calling a coroutine function returns a coroutine, whatever the
		// body does.
		fn.Return = types.Unknown
	case def.Returns != nil:
		if g, ok := e.guardOf(ctx, def.Returns, at); ok {
			fn.Guard, fn.GuardStrict = g.narrowed, g.strict
			fn.Return = types.NewInstance(e.b.Bool)
		} else {
			fn.Return = e.annotation(ctx, def.Returns, at)
		}
	}

	if e.decorations(ctx, def.Decorators)[specProperty] {
		return e.returnOf(fn)
	}
	return fn
}

// classType builds the class a class statement declares.
func (e *Evaluator) classType(ctx context.Context, cd *ast.ClassDef) *types.Class {
	if c, ok := e.classes[cd]; ok {
		return c
	}
	c := types.NewClass(e.modName, cd.Name)
	e.classes[cd] = c

	for _, base := range cd.Bases {
		for _, m := range types.Members(e.ExprType(ctx, base)) {
			if obj, ok := m.(*types.ClassObject); ok {
				c.Bases = append(c.Bases, obj.Class)
				if obj.Class.TypedDict {
					c.TypedDict = true
				}
			}
		}
	}
	if len(c.Bases) == 0 {
		c.Bases = []*types.Class{e.b.Object}
	}
	c.Final = e.decorations(ctx, cd.Decorators)[specFinal]

	total := true
	for _, kw := range cd.Keywords {
		if k, ok := kw.Value.(*ast.Constant); ok && kw.Name == "total" && k.Kind == ast.ConstBool {
			total, _ = k.Value.(bool)
		}
	}
	if c.TypedDict {
		c.Required = make(map[string]bool)
		for _, b := range c.Bases {
			for k := range b.Required {
				c.Required[k] = true
			}
		}
	}

	for _, s := range cd.Body {
		switch s := s.(type) {
		case *ast.AnnAssign:
			name, ok := s.Target.(*ast.Name)
			if !ok {
				continue
			}
			at, _ := e.g.FlowNode(s)
			c.Fields[name.ID] = e.annotation(ctx, s.Annotation, at)
			if c.TypedDict && requiredKey(s.Annotation, total) {
				c.Required[name.ID] = true
			}
		case *ast.Assign:
			if s.Value == nil {
				continue
			}
			for _, t := range s.Targets {
				if name, ok := t.(*ast.Name); ok {
					if _, declared := c.Fields[name.ID]; !declared {
						c.Fields[name.ID] = e.widen(e.ExprType(ctx, s.Value))
					}
				}
			}
		case *ast.FunctionDef:
			switch t := e.functionType(ctx, s).(type) {
			case *types.Function:
				c.Methods[s.Name] = t
			default:
				c.Fields[s.Name] = t
			}
		}
	}
	return c
}

// requiredKey decides whether a TypedDict key must be present.
func requiredKey(ann ast.Expr, total bool) bool {
	if sub, ok := ann.(*ast.Subscript); ok {
		if form, ok := typingForm(sub.Value); ok {
			switch form {
			case "Required":
				return true
			case "NotRequired":
				return false
			}
		}
	}
	return total
}

// IsNoReturnCall reports whether the call never returns: every callable
// the callee may be is non-returning.
func (e *Evaluator) IsNoReturnCall(ctx context.Context, c *ast.Call) bool {
	members := types.Members(e.ExprType(ctx, c.Func))
	if len(members) == 0 {
		return false
	}
	for _, m := range members {
		var fn *types.Function
		switch m := m.(type) {
		case *types.Function:
			fn = m
		case *types.Instance:
			fn, _ = m.Class.LookupMethod("__call__")
		}
		if fn == nil || !e.isNoReturn(ctx, fn) {
			return false
		}
	}
	return true
}

func (e *Evaluator) isNoReturn(ctx context.Context, fn *types.Function) bool {
	if len(fn.Overloads) > 0 {
		for _, o := range fn.Overloads {
			if !e.isNoReturn(ctx, o) {
				return false
			}
		}
		return true
	}
	if fn.Return != nil {
		return types.IsNever(fn.Return)
	}
	if def, ok := e.defs[fn]; ok {
		return e.inferNoReturn(ctx, def)
	}
	return fn.IsNoReturn()
}

// inferNoReturn decides whether an unannotated function can return: it
// cannot when the end of its body and every return statement are
// unreachable. Generators, coroutines and abstract methods always can.
func (e *Evaluator) inferNoReturn(ctx context.Context, def *ast.FunctionDef) bool {
	if v, ok := e.noReturn[def]; ok {
		return v
	}
	if def.Async || e.idx.generators[def] || e.isAbstract(ctx, def) {
		e.noReturn[def] = false
		return false
	}
	scope, ok := e.g.ScopeFor(def)
	if !ok || e.inferring[def] {
		// A recursive call is assumed to return.
		return false
	}
	e.inferring[def] = true
	r := e.s.Reachable(ctx, scope.Return, flow.NoNode, false)
	delete(e.inferring, def)

	if r.Aborted {
		e.log.Debug("no-return inference aborted", "function", def.Name, "reason", r.Reason)
		return false
	}
	noReturn := !r.Status.IsReachable()
	if !e.s.IsSpeculative(ctx) {
		e.noReturn[def] = noReturn
	}
	return noReturn
}

// isAbstract reports methods that subclasses are expected to override.
func (e *Evaluator) isAbstract(ctx context.Context, def *ast.FunctionDef) bool {
	if onlyRaisesNotImplemented(def.Body) {
		return true
	}
	cd, ok := e.idx.methodOf[def]
	if !ok {
		return false
	}
	if e.decorations(ctx, def.Decorators)[specAbstract] {
		return true
	}
	for _, b := range e.classType(ctx, cd).Bases {
		if b == e.std.protocol {
			return true
		}
	}
	return false
}

// SwallowsExceptions reports whether any of the context managers may
// suppress an exception: its exit method is declared to return bool.
func (e *Evaluator) SwallowsExceptions(ctx context.Context, contexts []ast.Expr, async bool) bool {
	exit := "__exit__"
	if async {
		exit = "__aexit__"
	}
	for _, cm := range contexts {
		for _, m := range types.Members(e.ExprType(ctx, cm)) {
			c, ok := m.(*types.Instance)
			if !ok {
				continue
			}
			fn, ok := c.Class.LookupMethod(exit)
			if !ok || fn.Return == nil {
				continue
			}
			for _, r := range types.Members(fn.Return) {
				if e.mayBeTrue(r) {
					return true
				}
			}
		}
	}
	return false
}

func (e *Evaluator) mayBeTrue(t types.Type) bool {
	switch t := t.(type) {
	case *types.Instance:
		return t.Class == e.b.Bool
	case *types.Literal:
		v, ok := t.Value.(bool)
		return ok && v
	}
	return false
}
