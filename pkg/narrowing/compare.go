package narrowing

import (
	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/types"
)

// forCompare handles single comparisons. Negated operators are folded into
// the polarity, and each supported form is tried with the reference on
// either side.
func forCompare(env Env, left ast.Expr, op ast.CmpOp, right ast.Expr, ref flow.Key, positive bool) Callback {
	switch op {
	case ast.CmpIsNot, ast.CmpNotEq, ast.CmpNotIn:
		op, _ = op.Negate()
		positive = !positive
	}

	switch op {
	case ast.CmpIn:
		return forMembership(env, left, right, ref, positive)
	case ast.CmpIs, ast.CmpEq:
		if cb := forEquality(env, left, op, right, ref, positive); cb != nil {
			return cb
		}
		return forEquality(env, right, op, left, ref, positive)
	}
	return nil
}

func forEquality(env Env, subject ast.Expr, op ast.CmpOp, other ast.Expr, ref flow.Key, positive bool) Callback {
	identity := op == ast.CmpIs
	if matches(subject, ref) {
		if lit, ok := literalOf(env, other); ok {
			return literalCompare(env.Builtins(), lit, identity, positive)
		}
		return nil
	}

	switch s := subject.(type) {
	case *ast.Call:
		if arg, ok := builtinCallArg(s, "type"); ok && matches(arg, ref) {
			if co, ok := env.TypeOf(other).(*types.ClassObject); ok {
				return exactClass(env.Builtins(), co.Class, positive)
			}
		}
		if arg, ok := builtinCallArg(s, "len"); ok && matches(arg, ref) && !identity {
			if n, ok := intConst(other); ok && n >= 0 {
				return tupleLength(int(n), positive)
			}
		}
	case *ast.Attribute:
		if matches(s.Value, ref) {
			if lit, ok := literalOf(env, other); ok {
				return discriminant(env.Builtins(), lit, positive, attributeField(s.Attr))
			}
		}
	case *ast.Subscript:
		if matches(s.Value, ref) {
			lit, ok := literalOf(env, other)
			if !ok {
				return nil
			}
			if key, ok := strConst(s.Index); ok {
				return discriminant(env.Builtins(), lit, positive, typedDictField(key))
			}
			if idx, ok := intConst(s.Index); ok {
				return discriminant(env.Builtins(), lit, positive, tupleElement(int(idx)))
			}
		}
	}
	return nil
}

// literalOf returns the literal or None type of a compared value.
func literalOf(env Env, e ast.Expr) (types.Type, bool) {
	b := env.Builtins()
	if c, ok := e.(*ast.Constant); ok {
		switch v := c.Value.(type) {
		case nil:
			if c.Kind == ast.ConstNone {
				return types.None, true
			}
		case bool:
			return b.BoolLiteral(v), true
		case int64:
			return b.IntLiteral(v), true
		case string:
			if c.Kind == ast.ConstStr {
				return b.StrLiteral(v), true
			}
		}
		return nil, false
	}
	if n, ok := intConst(e); ok {
		return b.IntLiteral(n), true
	}
	t := env.TypeOf(e)
	if t == nil {
		return nil, false
	}
	if _, ok := t.(*types.Literal); ok || t.Kind() == types.KindNone {
		return t, true
	}
	return nil, false
}

func isSingletonLike(t types.Type) bool {
	_, lit := t.(*types.Literal)
	return lit || t.Kind() == types.KindNone
}

// literalCompare narrows `x is L` / `x == L` for a literal or None. The
// positive branch keeps the members that may equal L; the negative branch
// removes only the members that are exactly L.
func literalCompare(b *types.Builtins, lit types.Type, identity, positive bool) Callback {
	return func(t types.Type) types.Type {
		return mapMembers(b, t, func(m types.Type) types.Type {
			if !positive {
				if types.Equal(m, lit) {
					return nil
				}
				return m
			}
			if isDynamic(m) {
				return lit
			}
			if isSingletonLike(m) {
				if types.IsDisjoint(m, lit) {
					return nil
				}
				return m
			}
			inst, ok := m.(*types.Instance)
			if !ok {
				if types.IsDisjoint(m, lit) {
					return nil
				}
				return m
			}
			litClass, _ := b.ClassOf(lit)
			switch {
			case litClass != nil && litClass.IsSubclassOf(inst.Class):
				return lit
			case !identity && !inst.Class.Builtin:
				// A user class may define __eq__.
				return m
			case types.IsDisjoint(m, lit):
				return nil
			}
			return m
		})
	}
}

// fieldFunc returns the declared type of the discriminating field of a
// member, if the member has one.
type fieldFunc func(m types.Type) (types.Type, bool)

func attributeField(name string) fieldFunc {
	return func(m types.Type) (types.Type, bool) {
		inst, ok := m.(*types.Instance)
		if !ok {
			return nil, false
		}
		return inst.Class.LookupField(name)
	}
}

func typedDictField(key string) fieldFunc {
	return func(m types.Type) (types.Type, bool) {
		inst, ok := m.(*types.Instance)
		if !ok || !inst.Class.TypedDict {
			return nil, false
		}
		return inst.Class.LookupField(key)
	}
}

func tupleElement(idx int) fieldFunc {
	return func(m types.Type) (types.Type, bool) {
		tup, ok := m.(*types.Tuple)
		if !ok || tup.Unbounded {
			return nil, false
		}
		i := idx
		if i < 0 {
			i += len(tup.Elems)
		}
		if i < 0 || i >= len(tup.Elems) {
			return nil, false
		}
		return tup.Elems[i], true
	}
}

// discriminant narrows a union of records by a literal-typed field. lit may
// be a union of literals. The positive branch drops members whose field
// cannot equal lit; the negative branch drops members whose field is always
// one of the literals.
func discriminant(b *types.Builtins, lit types.Type, positive bool, field fieldFunc) Callback {
	return func(t types.Type) types.Type {
		return mapMembers(b, t, func(m types.Type) types.Type {
			f, ok := field(m)
			if !ok || f == nil {
				return m
			}
			if positive {
				if types.IsDisjoint(f, lit) {
					return nil
				}
				return m
			}
			if coveredBy(f, lit) {
				return nil
			}
			return m
		})
	}
}

// coveredBy reports whether every member of f is one of the literals.
func coveredBy(f, lits types.Type) bool {
	for _, fm := range types.Members(f) {
		found := false
		for _, l := range types.Members(lits) {
			if types.Equal(fm, l) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// exactClass narrows `type(x) is C`. Only a final class can be removed in
// the negative branch, since a subclass instance has a different type().
func exactClass(b *types.Builtins, cls *types.Class, positive bool) Callback {
	return func(t types.Type) types.Type {
		return types.MapSubtypes(t, func(m types.Type) types.Type {
			if isDynamic(m) {
				if positive {
					return types.NewInstance(cls)
				}
				return m
			}
			mc, ok := b.ClassOf(m)
			if !ok {
				return m
			}
			if !positive {
				if mc == cls && cls.Final {
					return nil
				}
				return m
			}
			switch {
			case mc == cls:
				return m
			case cls.IsSubclassOf(mc) && !mc.Final:
				return types.NewInstance(cls)
			}
			return nil
		})
	}
}

// tupleLength narrows `len(x) == n` over tuple members.
func tupleLength(n int, positive bool) Callback {
	return func(t types.Type) types.Type {
		return types.MapSubtypes(t, func(m types.Type) types.Type {
			tup, ok := m.(*types.Tuple)
			if !ok {
				return m
			}
			if tup.Unbounded {
				if !positive {
					return m
				}
				elems := make([]types.Type, n)
				for i := range elems {
					elems[i] = tup.Elems[0]
				}
				return &types.Tuple{Elems: elems}
			}
			if (len(tup.Elems) == n) == positive {
				return m
			}
			return nil
		})
	}
}

func strConst(e ast.Expr) (string, bool) {
	c, ok := e.(*ast.Constant)
	if !ok || c.Kind != ast.ConstStr {
		return "", false
	}
	s, ok := c.Value.(string)
	return s, ok
}

// intConst accepts an int literal, optionally negated.
func intConst(e ast.Expr) (int64, bool) {
	if u, ok := e.(*ast.UnaryOp); ok && u.Op == "-" {
		v, ok := intConst(u.Operand)
		return -v, ok
	}
	c, ok := e.(*ast.Constant)
	if !ok || c.Kind != ast.ConstInt {
		return 0, false
	}
	v, ok := c.Value.(int64)
	return v, ok
}
