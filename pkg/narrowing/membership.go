package narrowing

import (
	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/types"
)

// forMembership handles `x in container` (narrowing x by the element type)
// and `"key" in d` (narrowing a TypedDict d by key presence).
func forMembership(env Env, left, right ast.Expr, ref flow.Key, positive bool) Callback {
	if matches(left, ref) {
		container := env.TypeOf(right)
		if container == nil {
			return nil
		}
		if positive {
			elem, ok := elementType(env.Builtins(), container)
			if !ok {
				return nil
			}
			return inContainer(env.Builtins(), elem)
		}
		if lits, ok := literalElements(container); ok {
			return notInLiterals(env.Builtins(), lits)
		}
		return nil
	}
	if matches(right, ref) {
		if key, ok := strConst(left); ok {
			return typedDictKey(key, positive)
		}
	}
	return nil
}

// elementType returns the type of the elements of a container.
func elementType(b *types.Builtins, t types.Type) (types.Type, bool) {
	var elems []types.Type
	for _, m := range types.Members(t) {
		switch m := m.(type) {
		case *types.Tuple:
			elems = append(elems, m.Elems...)
		case *types.Instance:
			switch {
			case m.Class == b.Str:
				elems = append(elems, types.NewInstance(b.Str))
			case len(m.Args) > 0:
				elems = append(elems, m.Args[0])
			default:
				return nil, false
			}
		default:
			return nil, false
		}
	}
	if len(elems) == 0 {
		return nil, false
	}
	return types.Union(elems...), true
}

// inContainer keeps the members that may be elements, narrowing members
// wider than the element type down to it.
func inContainer(b *types.Builtins, elem types.Type) Callback {
	return func(t types.Type) types.Type {
		return mapMembers(b, t, func(m types.Type) types.Type {
			switch {
			case isDynamic(m) || isDynamic(elem):
				if isDynamic(elem) {
					return m
				}
				return elem
			case types.IsAssignable(elem, m):
				return m
			case types.IsAssignable(m, elem):
				return elem
			case types.IsDisjoint(m, elem):
				return nil
			}
			return m
		})
	}
}

// literalElements returns the elements of a fixed tuple made only of
// literals and None; `x not in (...)` can remove exactly those.
func literalElements(t types.Type) ([]types.Type, bool) {
	tup, ok := t.(*types.Tuple)
	if !ok || tup.Unbounded {
		return nil, false
	}
	for _, e := range tup.Elems {
		if !isSingletonLike(e) {
			return nil, false
		}
	}
	return tup.Elems, true
}

func notInLiterals(b *types.Builtins, lits []types.Type) Callback {
	return func(t types.Type) types.Type {
		return mapMembers(b, t, func(m types.Type) types.Type {
			for _, l := range lits {
				if types.Equal(m, l) {
					return nil
				}
			}
			return m
		})
	}
}

// typedDictKey narrows `"k" in d`. The positive branch marks the key as
// present; the negative branch drops the members where the key is always
// present.
func typedDictKey(key string, positive bool) Callback {
	return func(t types.Type) types.Type {
		return types.MapSubtypes(t, func(m types.Type) types.Type {
			inst, ok := m.(*types.Instance)
			if !ok || !inst.Class.TypedDict {
				return m
			}
			_, declared := inst.Class.LookupField(key)
			if positive {
				if !declared || inst.HasKey(key) {
					return m
				}
				return inst.WithKey(key)
			}
			if inst.HasKey(key) {
				return nil
			}
			return m
		})
	}
}
