// Package narrowing computes refined types for a reference from the test
// expressions and match patterns that guard a program point.
//
// Every rule is a pure function of the test, its polarity and the incoming
// type. A rule that cannot refine a type precisely leaves it unchanged.
package narrowing

import (
	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/types"
)

// Callback maps the type a reference has before a test to the type it has
// after the test evaluated with a given outcome.
type Callback func(types.Type) types.Type

// Env supplies the types of the other operands of a test.
type Env interface {
	// TypeOf evaluates an operand of the test (a class, a compared value,
	// a container, a guard function) at the point the test runs.
	TypeOf(e ast.Expr) types.Type
	// Builtins returns the builtin classes of the session.
	Builtins() *types.Builtins
	// Alias returns the test expression a local name was bound to, if the
	// name is a narrowing alias.
	Alias(name string) (ast.Expr, bool)
}

// maxAliasDepth bounds alias chains such as `a = x is None; b = not a`.
const maxAliasDepth = 8

// SubjectKeys returns the references a test can narrow. A test with no
// subject keys never needs a condition node.
func SubjectKeys(test ast.Expr) []flow.Key {
	var keys []flow.Key
	add := func(e ast.Expr) {
		if k, ok := flow.KeyOf(e); ok {
			keys = append(keys, k)
		}
	}

	switch t := test.(type) {
	case *ast.Name, *ast.Attribute, *ast.Subscript, *ast.NamedExpr:
		add(t)
	case *ast.UnaryOp:
		if t.Op == "not" {
			return SubjectKeys(t.Operand)
		}
	case *ast.BoolOp:
		for _, v := range t.Values {
			keys = append(keys, SubjectKeys(v)...)
		}
	case *ast.Compare:
		if len(t.Ops) != 1 || len(t.Comparators) != 1 {
			return nil
		}
		left, right := t.Left, t.Comparators[0]
		for _, side := range []ast.Expr{left, right} {
			add(side)
			switch s := side.(type) {
			case *ast.Attribute:
				add(s.Value)
			case *ast.Subscript:
				add(s.Value)
			case *ast.Call:
				if arg, ok := builtinCallArg(s, "type", "len"); ok {
					add(arg)
				}
			}
		}
	case *ast.Call:
		if len(t.Args) > 0 {
			add(t.Args[0])
		}
	}
	return keys
}

// builtinCallArg matches `name(arg)` for one of the given builtin names.
func builtinCallArg(c *ast.Call, names ...string) (ast.Expr, bool) {
	fn, ok := c.Func.(*ast.Name)
	if !ok || len(c.Args) != 1 || len(c.Keywords) != 0 {
		return nil, false
	}
	for _, n := range names {
		if fn.ID == n {
			return c.Args[0], true
		}
	}
	return nil, false
}

func matches(e ast.Expr, ref flow.Key) bool {
	k, ok := flow.KeyOf(e)
	return ok && k.SamePath(ref)
}

// ForCondition returns the callback narrowing ref when test evaluated to
// positive, or nil when the test says nothing about ref.
func ForCondition(env Env, test ast.Expr, ref flow.Key, positive bool) Callback {
	return forCondition(env, test, ref, positive, 0)
}

func forCondition(env Env, test ast.Expr, ref flow.Key, positive bool, depth int) Callback {
	switch t := test.(type) {
	case *ast.Name:
		if matches(t, ref) {
			return truthiness(env, positive)
		}
		if depth < maxAliasDepth {
			if aliased, ok := env.Alias(t.ID); ok {
				return forCondition(env, aliased, ref, positive, depth+1)
			}
		}
	case *ast.Attribute, *ast.Subscript:
		if matches(t, ref) {
			return truthiness(env, positive)
		}
	case *ast.NamedExpr:
		if matches(t, ref) {
			return truthiness(env, positive)
		}
		return forCondition(env, t.Value, ref, positive, depth)
	case *ast.UnaryOp:
		if t.Op == "not" {
			return forCondition(env, t.Operand, ref, !positive, depth)
		}
	case *ast.Compare:
		if len(t.Ops) == 1 && len(t.Comparators) == 1 {
			return forCompare(env, t.Left, t.Ops[0], t.Comparators[0], ref, positive)
		}
	case *ast.Call:
		return forCall(env, t, ref, positive)
	}
	return nil
}

// Apply runs cb on t, treating a nil callback as no narrowing.
func Apply(cb Callback, t types.Type) types.Type {
	if cb == nil {
		return t
	}
	return cb(t)
}

// mapMembers applies fn to every member of t, expanding bool into its two
// literals first so that literal tests can split it.
func mapMembers(b *types.Builtins, t types.Type, fn func(types.Type) types.Type) types.Type {
	if types.IsNever(t) {
		return t
	}
	var out []types.Type
	for _, m := range b.ExpandBool(t) {
		// The placeholder of a value still being computed is never narrowed.
		if types.IsIncomplete(m) {
			out = append(out, m)
			continue
		}
		if r := fn(m); r != nil {
			out = append(out, r)
		}
	}
	return types.Union(out...)
}

func isDynamic(t types.Type) bool {
	k := t.Kind()
	return k == types.KindAny || k == types.KindUnknown
}
