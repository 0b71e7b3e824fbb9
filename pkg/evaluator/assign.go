package evaluator

import (
	"context"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/narrowing"
	"github.com/l3aro/flowtype/pkg/types"
)

// AssignedType returns the type an assignment writes to its target.
func (e *Evaluator) AssignedType(ctx context.Context, a *flow.Assignment) types.Type {
	switch src := a.Source.(type) {
	case *ast.Assign:
		t := e.ExprType(ctx, src.Value)
		for _, target := range src.Targets {
			if r, ok := e.project(target, a.Target, t); ok {
				return r
			}
		}
		return t
	case *ast.AnnAssign:
		at, _ := e.g.FlowNode(src)
		declared := e.annotation(ctx, src.Annotation, at)
		if src.Value == nil {
			return declared
		}
		return narrowToDeclared(declared, e.ExprType(ctx, src.Value))
	case *ast.AugAssign:
		return e.binOp(e.ExprType(ctx, src.Target), src.Op, e.ExprType(ctx, src.Value))
	case *ast.For:
		elem := types.Unknown
		if !src.Async {
			elem = e.iterElem(e.ExprType(ctx, src.Iter))
		}
		if r, ok := e.project(src.Target, a.Target, elem); ok {
			return r
		}
	case *ast.With:
		for _, item := range src.Items {
			if item.Target == nil {
				continue
			}
			if r, ok := e.project(item.Target, a.Target, e.enterType(ctx, item.Context, src.Async)); ok {
				return r
			}
		}
	case *ast.Import:
		return e.importType(src, a.Target)
	case *ast.ImportFrom:
		if name, ok := a.Target.(*ast.Name); ok {
			for _, alias := range src.Names {
				if alias.AsName == name.ID || (alias.AsName == "" && alias.Name == name.ID) {
					return e.std.member(src.Module, alias.Name)
				}
			}
		}
	case *ast.FunctionDef:
		return e.functionType(ctx, src)
	case *ast.ClassDef:
		return &types.ClassObject{Class: e.classType(ctx, src)}
	case *ast.ExceptHandler:
		return e.exceptionType(ctx, src.Type)
	case *ast.NamedExpr:
		return e.ExprType(ctx, src.Value)
	case *ast.MatchAs, *ast.MatchStar, *ast.MatchMapping:
		return e.captureType(ctx, src.(ast.Pattern))
	}
	return types.Unknown
}

// narrowToDeclared is the type a variable declared as declared holds after
// being assigned a value of type assigned.
func narrowToDeclared(declared, assigned types.Type) types.Type {
	switch assigned.Kind() {
	case types.KindUnknown, types.KindAny:
		return declared
	}
	if types.IsAssignable(declared, assigned) {
		return assigned
	}
	return declared
}

// project finds want inside the (possibly nested) unpacking target and
// returns the part of t it receives.
func (e *Evaluator) project(target, want ast.Expr, t types.Type) (types.Type, bool) {
	if target == want {
		return t, true
	}
	var elts []ast.Expr
	switch x := target.(type) {
	case *ast.Tuple:
		elts = x.Elts
	case *ast.List:
		elts = x.Elts
	default:
		return nil, false
	}
	star := -1
	for i, el := range elts {
		if _, ok := el.(*ast.Starred); ok {
			star = i
		}
	}
	for i, el := range elts {
		var sub types.Type
		if s, ok := el.(*ast.Starred); ok {
			sub, el = e.starElems(t, i, len(elts)), s.Value
		} else {
			sub = e.unpackElem(t, i, len(elts), star)
		}
		if r, ok := e.project(el, want, sub); ok {
			return r, true
		}
	}
	return nil, false
}

// enterType is the value `with cm as target` binds.
func (e *Evaluator) enterType(ctx context.Context, cm ast.Expr, async bool) types.Type {
	enter := "__enter__"
	if async {
		enter = "__aenter__"
	}
	return types.MapSubtypes(e.ExprType(ctx, cm), func(m types.Type) types.Type {
		inst, ok := m.(*types.Instance)
		if !ok {
			return types.Unknown
		}
		fn, ok := inst.Class.LookupMethod(enter)
		if !ok || async {
			return types.Unknown
		}
		return e.returnOf(fn)
	})
}

// importType is the module `import a.b as c` binds to its target.
func (e *Evaluator) importType(s *ast.Import, target ast.Expr) types.Type {
	name, ok := target.(*ast.Name)
	if !ok {
		return types.Unknown
	}
	for _, alias := range s.Names {
		if alias.AsName == name.ID {
			return e.std.module(alias.Name)
		}
		if alias.AsName == "" && importRoot(alias.Name) == name.ID {
			return e.std.module(name.ID)
		}
	}
	return types.Unknown
}

func importRoot(dotted string) string {
	for i := 0; i < len(dotted); i++ {
		if dotted[i] == '.' {
			return dotted[:i]
		}
	}
	return dotted
}

// exceptionType is the exception an except clause catching x binds.
func (e *Evaluator) exceptionType(ctx context.Context, x ast.Expr) types.Type {
	if x == nil {
		return types.NewInstance(e.b.BaseException)
	}
	var parts []types.Type
	for _, m := range types.Members(e.ExprType(ctx, x)) {
		switch m := m.(type) {
		case *types.ClassObject:
			parts = append(parts, types.NewInstance(m.Class))
		case *types.Tuple:
			for _, el := range m.Elems {
				if c, ok := el.(*types.ClassObject); ok {
					parts = append(parts, types.NewInstance(c.Class))
				} else {
					parts = append(parts, types.Unknown)
				}
			}
		default:
			parts = append(parts, types.Unknown)
		}
	}
	if len(parts) == 0 {
		return types.Unknown
	}
	return types.Union(parts...)
}

// captureType is the value a capture pattern binds: the subject narrowed
// by the case pattern, projected down to the capture's position.
func (e *Evaluator) captureType(ctx context.Context, p ast.Pattern) types.Type {
	at, ok := e.g.FlowNode(p)
	if !ok {
		return types.Unknown
	}
	chain := []ast.Pattern{p}
	for cur := p; ; {
		slot, ok := e.idx.parent[cur]
		if !ok {
			break
		}
		chain = append(chain, slot.parent)
		cur = slot.parent
	}
	root := chain[len(chain)-1]
	mc, ok := e.idx.caseOf[root]
	if !ok {
		return types.Unknown
	}
	m := e.idx.matchOf[mc]

	var t types.Type
	if _, isRef := flow.KeyOf(m.Subject); isRef {
		t = e.ReferenceType(ctx, m.Subject, at)
	} else {
		t = e.ExprType(ctx, m.Subject)
	}
	v := e.env(ctx, at)
	t = narrowing.NarrowSubject(v, t, root, true)
	for i := len(chain) - 2; i >= 0; i-- {
		child := chain[i]
		t = e.subpatternSubject(ctx, t, e.idx.parent[child], child)
		if _, isStar := child.(*ast.MatchStar); !isStar {
			t = narrowing.NarrowSubject(v, t, child, true)
		}
	}
	if mm, ok := p.(*ast.MatchMapping); ok {
		return e.mappingRest(t, mm)
	}
	return t
}

// subpatternSubject is the value a sub-pattern is matched against.
func (e *Evaluator) subpatternSubject(ctx context.Context, t types.Type, slot patternSlot, child ast.Pattern) types.Type {
	switch parent := slot.parent.(type) {
	case *ast.MatchSequence:
		star := -1
		for i, el := range parent.Patterns {
			if _, ok := el.(*ast.MatchStar); ok {
				star = i
			}
		}
		if _, ok := child.(*ast.MatchStar); ok {
			return e.starElems(t, slot.index, len(parent.Patterns))
		}
		return e.unpackElem(t, slot.index, len(parent.Patterns), star)
	case *ast.MatchClass:
		if slot.attr != "" {
			return e.member(ctx, t, slot.attr)
		}
		// Builtin classes match their single positional sub-pattern
		// against the subject itself.
		if slot.index == 0 {
			return types.MapSubtypes(t, func(m types.Type) types.Type {
				if c, ok := e.b.ClassOf(m); ok && c.Builtin {
					return m
				}
				return types.Unknown
			})
		}
		return types.Unknown
	case *ast.MatchMapping:
		if slot.index >= len(parent.Keys) {
			return types.Unknown
		}
		key := parent.Keys[slot.index]
		return types.MapSubtypes(t, func(m types.Type) types.Type {
			inst, ok := m.(*types.Instance)
			if !ok {
				return types.Unknown
			}
			if inst.Class.TypedDict {
				if k, ok := strIndex(key); ok {
					if v, ok := inst.Class.LookupField(k); ok {
						return v
					}
				}
				return types.Unknown
			}
			if len(inst.Args) == 2 {
				return inst.Args[1]
			}
			return types.Unknown
		})
	}
	return t
}

// mappingRest is the dict `**rest` collects.
func (e *Evaluator) mappingRest(t types.Type, _ *ast.MatchMapping) types.Type {
	for _, m := range types.Members(t) {
		if inst, ok := m.(*types.Instance); ok && inst.Class == e.b.Dict && len(inst.Args) == 2 {
			return types.NewInstance(e.b.Dict, inst.Args...)
		}
	}
	return types.NewInstance(e.b.Dict, types.Unknown, types.Unknown)
}
