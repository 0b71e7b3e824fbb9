package narrowing

import (
	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/types"
)

// forCall handles isinstance, issubclass, callable, bool and user-defined
// type guard calls whose first argument is the reference.
func forCall(env Env, call *ast.Call, ref flow.Key, positive bool) Callback {
	if len(call.Args) == 0 || !matches(call.Args[0], ref) {
		return nil
	}
	if fn, ok := call.Func.(*ast.Name); ok {
		switch fn.ID {
		case "isinstance", "issubclass":
			if len(call.Args) != 2 {
				return nil
			}
			classes, ok := classInfo(env.TypeOf(call.Args[1]))
			if !ok {
				return nil
			}
			if fn.ID == "isinstance" {
				return isInstance(env.Builtins(), classes, positive)
			}
			return isSubclass(classes, positive)
		case "callable":
			if len(call.Args) == 1 {
				return isCallable(positive)
			}
		case "bool":
			if len(call.Args) == 1 {
				return truthiness(env, positive)
			}
		}
	}

	fn, ok := env.TypeOf(call.Func).(*types.Function)
	if !ok || fn.Guard == nil {
		return nil
	}
	return typeGuard(env.Builtins(), fn.Guard, fn.GuardStrict, positive)
}

// classInfo flattens the second argument of isinstance: a class, a tuple of
// classes or a union of class objects. Anything else disables narrowing.
func classInfo(t types.Type) ([]*types.Class, bool) {
	var out []*types.Class
	var walk func(t types.Type) bool
	walk = func(t types.Type) bool {
		switch t := t.(type) {
		case *types.ClassObject:
			out = append(out, t.Class)
			return true
		case *types.Tuple:
			if t.Unbounded {
				return false
			}
			for _, e := range t.Elems {
				if !walk(e) {
					return false
				}
			}
			return true
		case *types.UnionType:
			for _, m := range t.Members {
				if !walk(m) {
					return false
				}
			}
			return true
		}
		return false
	}
	if t == nil || !walk(t) || len(out) == 0 {
		return nil, false
	}
	return out, true
}

// isInstance keeps, on the positive branch, the members that are instances
// of one of the classes (narrowing a superclass member to the class), and
// removes them on the negative branch. A member that only partially
// overlaps a class is kept on the negative branch.
func isInstance(b *types.Builtins, classes []*types.Class, positive bool) Callback {
	return func(t types.Type) types.Type {
		return mapMembers(b, t, func(m types.Type) types.Type {
			if isDynamic(m) {
				if !positive {
					return m
				}
				return instancesOf(classes)
			}
			if tv, ok := m.(*types.TypeVar); ok {
				return narrowTypeVarInstance(tv, classes, positive)
			}
			mc, ok := b.ClassOf(m)
			if !ok {
				if !positive || containsObject(classes) {
					return m
				}
				return nil
			}

			var narrowed []types.Type
			for _, c := range classes {
				switch {
				case mc.IsSubclassOf(c):
					if !positive {
						return nil
					}
					return m
				case c.IsSubclassOf(mc):
					narrowed = append(narrowed, types.NewInstance(c))
				case !mc.Final && !c.Final && !(mc.Builtin && c.Builtin):
					// An unrelated class may still share a subclass with
					// the member's class.
					narrowed = append(narrowed, types.NewInstance(c))
				}
			}
			if !positive {
				return m
			}
			if len(narrowed) == 0 {
				return nil
			}
			return types.Union(narrowed...)
		})
	}
}

func containsObject(classes []*types.Class) bool {
	for _, c := range classes {
		if c.Builtin && c.Name == "object" {
			return true
		}
	}
	return false
}

func instancesOf(classes []*types.Class) types.Type {
	out := make([]types.Type, len(classes))
	for i, c := range classes {
		out[i] = types.NewInstance(c)
	}
	return types.Union(out...)
}

// narrowTypeVarInstance narrows a value of a type variable's type. The
// positive branch keeps the classes compatible with the variable's bound or
// constraints.
func narrowTypeVarInstance(tv *types.TypeVar, classes []*types.Class, positive bool) types.Type {
	if !positive {
		return tv
	}
	var out []types.Type
	for _, c := range classes {
		inst := types.NewInstance(c)
		if types.IsAssignable(tv, inst) {
			out = append(out, inst)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return types.Union(out...)
}

// isSubclass narrows class objects the way isInstance narrows instances.
func isSubclass(classes []*types.Class, positive bool) Callback {
	return func(t types.Type) types.Type {
		return types.MapSubtypes(t, func(m types.Type) types.Type {
			if isDynamic(m) {
				if !positive {
					return m
				}
				out := make([]types.Type, len(classes))
				for i, c := range classes {
					out[i] = &types.ClassObject{Class: c}
				}
				return types.Union(out...)
			}
			co, ok := m.(*types.ClassObject)
			if !ok {
				return m
			}
			var narrowed []types.Type
			for _, c := range classes {
				switch {
				case co.Class.IsSubclassOf(c):
					if !positive {
						return nil
					}
					return m
				case c.IsSubclassOf(co.Class):
					narrowed = append(narrowed, &types.ClassObject{Class: c})
				}
			}
			if !positive {
				return m
			}
			if len(narrowed) == 0 {
				return nil
			}
			return types.Union(narrowed...)
		})
	}
}

// isCallable narrows callable(x). Instances are callable when their class
// defines __call__.
func isCallable(positive bool) Callback {
	return func(t types.Type) types.Type {
		return types.MapSubtypes(t, func(m types.Type) types.Type {
			callable, known := memberCallable(m)
			if !known || callable == positive {
				return m
			}
			return nil
		})
	}
}

func memberCallable(m types.Type) (callable, known bool) {
	switch m := m.(type) {
	case *types.Function, *types.ClassObject:
		return true, true
	case *types.Instance:
		if m.Class.Builtin && m.Class.Name == "object" {
			return false, false
		}
		_, ok := m.Class.LookupMethod("__call__")
		return ok, true
	case *types.Literal, *types.Tuple:
		return false, true
	}
	if m.Kind() == types.KindNone {
		return false, true
	}
	return false, false
}

// typeGuard narrows by a user-defined guard function. A non-strict guard
// replaces the type on the positive branch and leaves the negative branch
// alone; a strict guard filters like isinstance in both directions.
func typeGuard(b *types.Builtins, guard types.Type, strict, positive bool) Callback {
	if !strict {
		if !positive {
			return nil
		}
		return func(types.Type) types.Type { return guard }
	}
	return func(t types.Type) types.Type {
		return mapMembers(b, t, func(m types.Type) types.Type {
			if isDynamic(m) {
				if positive {
					return guard
				}
				return m
			}
			switch {
			case types.IsAssignable(guard, m):
				if positive {
					return m
				}
				return nil
			case types.IsAssignable(m, guard):
				if positive {
					return guard
				}
				return m
			}
			if positive {
				return nil
			}
			return m
		})
	}
}
