package narrowing

import (
	"testing"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv types operands by their formatted source text.
type testEnv struct {
	b       *types.Builtins
	types   map[string]types.Type
	aliases map[string]ast.Expr
}

func newTestEnv() *testEnv {
	b := types.NewBuiltins()
	env := &testEnv{b: b, types: make(map[string]types.Type), aliases: make(map[string]ast.Expr)}
	for _, name := range []string{"int", "str", "bool", "float", "list", "tuple", "dict", "object"} {
		c, _ := b.Lookup(name)
		env.types[name] = &types.ClassObject{Class: c}
	}
	return env
}

func (e *testEnv) TypeOf(x ast.Expr) types.Type {
	if t, ok := e.types[ast.Format(x)]; ok {
		return t
	}
	return types.Unknown
}

func (e *testEnv) Builtins() *types.Builtins { return e.b }

func (e *testEnv) Alias(name string) (ast.Expr, bool) {
	x, ok := e.aliases[name]
	return x, ok
}

func (e *testEnv) inst(name string) types.Type {
	c, ok := e.b.Lookup(name)
	if !ok {
		panic("no builtin " + name)
	}
	return types.NewInstance(c)
}

func x() *ast.Name { return ast.NewName("x") }

func narrowX(env Env, test ast.Expr, t types.Type, positive bool) types.Type {
	return Apply(ForCondition(env, test, flow.NameKey("x"), positive), t)
}

func TestSubjectKeys(t *testing.T) {
	tests := []struct {
		name string
		test ast.Expr
		want []string
	}{
		{"name", x(), []string{"x"}},
		{"not", ast.NewNot(x()), []string{"x"}},
		{"is none", ast.NewCompare(x(), ast.CmpIsNot, ast.NewNone()), []string{"x"}},
		{"reversed", ast.NewCompare(ast.NewNone(), ast.CmpIs, x()), []string{"x"}},
		{"discriminant", ast.NewCompare(ast.NewAttribute(x(), "kind"), ast.CmpEq, ast.NewStr("a")), []string{"x.kind", "x"}},
		{"typeddict key", ast.NewCompare(ast.NewStr("k"), ast.CmpIn, x()), []string{"x"}},
		{"isinstance", ast.NewCall(ast.NewName("isinstance"), x(), ast.NewName("int")), []string{"x"}},
		{"type of", ast.NewCompare(ast.NewCall(ast.NewName("type"), x()), ast.CmpIs, ast.NewName("int")), []string{"x", "int"}},
		{"and", ast.NewAnd(x(), ast.NewName("y")), []string{"x", "y"}},
		{"call without args", ast.NewCall(ast.NewName("f")), nil},
		{"chained compare", &ast.Compare{Left: x(), Ops: []ast.CmpOp{ast.CmpLt, ast.CmpLt}, Comparators: []ast.Expr{ast.NewInt(1), ast.NewInt(2)}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, k := range SubjectKeys(tt.test) {
				got = append(got, k.Path)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruthiness(t *testing.T) {
	env := newTestEnv()
	b := env.b
	tests := []struct {
		name     string
		in       types.Type
		positive bool
		want     string
	}{
		{"optional str positive", types.Union(env.inst("str"), types.None), true, "str"},
		{"optional str negative", types.Union(env.inst("str"), types.None), false, "str | None"},
		{"literal ints negative", types.Union(b.IntLiteral(0), b.IntLiteral(1)), false, "Literal[0]"},
		{"bool positive", env.inst("bool"), true, "Literal[True]"},
		{"bool negative", env.inst("bool"), false, "Literal[False]"},
		{"plain class is always truthy", types.NewInstance(types.NewClass("m", "C", b.Object)), false, "Never"},
		{"none positive", types.None, true, "Never"},
		{"unknown", types.Unknown, false, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := narrowX(env, x(), tt.in, tt.positive)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestIdentityAndEquality(t *testing.T) {
	env := newTestEnv()
	b := env.b
	optInt := types.Union(env.inst("int"), types.None)
	ab := types.Union(b.StrLiteral("a"), b.StrLiteral("b"))

	tests := []struct {
		name     string
		test     ast.Expr
		in       types.Type
		positive bool
		want     string
	}{
		{"is not none", ast.NewCompare(x(), ast.CmpIsNot, ast.NewNone()), optInt, true, "int"},
		{"is not none else", ast.NewCompare(x(), ast.CmpIsNot, ast.NewNone()), optInt, false, "None"},
		{"none is x", ast.NewCompare(ast.NewNone(), ast.CmpIs, x()), optInt, true, "None"},
		{"eq none", ast.NewCompare(x(), ast.CmpEq, ast.NewNone()), optInt, false, "int"},
		{"is none on any", ast.NewCompare(x(), ast.CmpIs, ast.NewNone()), types.Any, true, "None"},
		{"eq literal narrows str", ast.NewCompare(x(), ast.CmpEq, ast.NewStr("a")), env.inst("str"), true, "Literal['a']"},
		{"eq literal keeps str on else", ast.NewCompare(x(), ast.CmpEq, ast.NewStr("a")), env.inst("str"), false, "str"},
		{"ne literal", ast.NewCompare(x(), ast.CmpNotEq, ast.NewStr("a")), ab, true, "Literal['b']"},
		{"eq literal filters union", ast.NewCompare(x(), ast.CmpEq, ast.NewStr("a")), types.Union(ab, types.None), true, "Literal['a']"},
		{"is false splits bool", ast.NewCompare(x(), ast.CmpIsNot, ast.NewBool(false)), env.inst("bool"), true, "Literal[True]"},
		{"eq negative int", ast.NewCompare(x(), ast.CmpEq, &ast.UnaryOp{Op: "-", Operand: ast.NewInt(1)}), types.Union(b.IntLiteral(-1), b.IntLiteral(2)), false, "Literal[2]"},
		{"type is", ast.NewCompare(ast.NewCall(ast.NewName("type"), x()), ast.CmpIs, ast.NewName("int")), types.Union(env.inst("int"), env.inst("str")), true, "int"},
		{"type is not final class", ast.NewCompare(ast.NewCall(ast.NewName("type"), x()), ast.CmpIsNot, ast.NewName("int")), env.inst("int"), true, "int"},
		{"type is not bool", ast.NewCompare(ast.NewCall(ast.NewName("type"), x()), ast.CmpIsNot, ast.NewName("bool")), types.Union(env.inst("bool"), types.None), true, "None"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := narrowX(env, tt.test, tt.in, tt.positive)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestTupleLength(t *testing.T) {
	env := newTestEnv()
	i, s := env.inst("int"), env.inst("str")
	pair := &types.Tuple{Elems: []types.Type{i, s}}
	single := &types.Tuple{Elems: []types.Type{i}}
	test := ast.NewCompare(ast.NewCall(ast.NewName("len"), x()), ast.CmpEq, ast.NewInt(2))

	assert.Equal(t, "tuple[int, str]", narrowX(env, test, types.Union(pair, single), true).String())
	assert.Equal(t, "tuple[int]", narrowX(env, test, types.Union(pair, single), false).String())
	unbounded := &types.Tuple{Elems: []types.Type{i}, Unbounded: true}
	assert.Equal(t, "tuple[int, int]", narrowX(env, test, unbounded, true).String())
}

func recordClasses(env *testEnv) (a, b *types.Class) {
	a = types.NewClass("m", "A", env.b.Object)
	a.Fields["kind"] = env.b.StrLiteral("a")
	b = types.NewClass("m", "B", env.b.Object)
	b.Fields["kind"] = env.b.StrLiteral("b")
	return a, b
}

func TestDiscriminant(t *testing.T) {
	env := newTestEnv()
	a, b := recordClasses(env)
	both := types.Union(types.NewInstance(a), types.NewInstance(b))
	kind := ast.NewAttribute(x(), "kind")

	assert.Equal(t, "m.A", narrowX(env, ast.NewCompare(kind, ast.CmpEq, ast.NewStr("a")), both, true).String())
	assert.Equal(t, "m.B", narrowX(env, ast.NewCompare(kind, ast.CmpEq, ast.NewStr("a")), both, false).String())
	assert.Equal(t, "m.A | m.B", narrowX(env, ast.NewCompare(kind, ast.CmpEq, ast.NewStr("c")), both, false).String())

	t.Run("typed dict key", func(t *testing.T) {
		td1 := types.NewClass("m", "Circle", env.b.Dict)
		td1.TypedDict = true
		td1.Fields["shape"] = env.b.StrLiteral("circle")
		td2 := types.NewClass("m", "Square", env.b.Dict)
		td2.TypedDict = true
		td2.Fields["shape"] = env.b.StrLiteral("square")
		in := types.Union(types.NewInstance(td1), types.NewInstance(td2))
		test := ast.NewCompare(ast.NewSubscript(x(), ast.NewStr("shape")), ast.CmpEq, ast.NewStr("square"))
		assert.Equal(t, "m.Square", narrowX(env, test, in, true).String())
	})

	t.Run("tuple element", func(t *testing.T) {
		ok := &types.Tuple{Elems: []types.Type{env.b.BoolLiteral(true), env.inst("int")}}
		bad := &types.Tuple{Elems: []types.Type{env.b.BoolLiteral(false), env.inst("str")}}
		test := ast.NewSubscript(x(), ast.NewInt(0))
		got := narrowX(env, ast.NewCompare(test, ast.CmpIs, ast.NewBool(true)), types.Union(ok, bad), true)
		assert.Equal(t, "tuple[Literal[True], int]", got.String())
	})
}

func TestIsInstance(t *testing.T) {
	env := newTestEnv()
	base := types.NewClass("m", "Base", env.b.Object)
	derived := types.NewClass("m", "Derived", base)
	env.types["Base"] = &types.ClassObject{Class: base}
	env.types["Derived"] = &types.ClassObject{Class: derived}
	isinst := func(cls ast.Expr) ast.Expr { return ast.NewCall(ast.NewName("isinstance"), x(), cls) }
	env.types["(int, str)"] = &types.Tuple{Elems: []types.Type{env.types["int"], env.types["str"]}}
	mixed := types.Union(env.inst("int"), env.inst("str"), types.None)

	tests := []struct {
		name     string
		test     ast.Expr
		in       types.Type
		positive bool
		want     string
	}{
		{"keeps matching member", isinst(ast.NewName("int")), mixed, true, "int"},
		{"removes matching member", isinst(ast.NewName("int")), mixed, false, "str | None"},
		{"tuple of classes", isinst(&ast.Tuple{Elts: []ast.Expr{ast.NewName("int"), ast.NewName("str")}}), mixed, true, "int | str"},
		{"bool is an int", isinst(ast.NewName("int")), types.Union(env.inst("bool"), env.inst("str")), true, "bool"},
		{"narrows superclass", isinst(ast.NewName("Derived")), types.NewInstance(base), true, "m.Derived"},
		{"keeps superclass on else", isinst(ast.NewName("Derived")), types.NewInstance(base), false, "m.Base"},
		{"unknown becomes class", isinst(ast.NewName("int")), types.Unknown, true, "int"},
		{"unknown class info", isinst(ast.NewName("mystery")), mixed, true, mixed.String()},
		{"disjoint builtins", isinst(ast.NewName("str")), env.inst("int"), true, "Never"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := narrowX(env, tt.test, tt.in, tt.positive)
			assert.Equal(t, tt.want, got.String())
		})
	}

	t.Run("issubclass", func(t *testing.T) {
		test := ast.NewCall(ast.NewName("issubclass"), x(), ast.NewName("Derived"))
		in := types.Union(&types.ClassObject{Class: base}, &types.ClassObject{Class: env.b.Int})
		assert.Equal(t, "type[m.Derived]", narrowX(env, test, in, true).String())
	})

	t.Run("callable", func(t *testing.T) {
		fn := &types.Function{Name: "f", Return: types.None}
		in := types.Union(fn, env.inst("int"))
		test := ast.NewCall(ast.NewName("callable"), x())
		assert.Equal(t, "int", narrowX(env, test, in, false).String())
		assert.Equal(t, fn.String(), narrowX(env, test, in, true).String())
	})
}

func TestTypeGuard(t *testing.T) {
	env := newTestEnv()
	in := types.Union(env.inst("int"), env.inst("str"))
	env.types["is_str"] = &types.Function{Name: "is_str", Return: env.inst("bool"), Guard: env.inst("str")}
	env.types["is_int"] = &types.Function{Name: "is_int", Return: env.inst("bool"), Guard: env.inst("int"), GuardStrict: true}

	loose := ast.NewCall(ast.NewName("is_str"), x())
	assert.Equal(t, "str", narrowX(env, loose, in, true).String())
	assert.Equal(t, "int | str", narrowX(env, loose, in, false).String(), "non-strict guards leave the else branch alone")

	strict := ast.NewCall(ast.NewName("is_int"), x())
	assert.Equal(t, "int", narrowX(env, strict, in, true).String())
	assert.Equal(t, "str", narrowX(env, strict, in, false).String())

	assert.Nil(t, ForCondition(env, ast.NewCall(ast.NewName("other"), x()), flow.NameKey("x"), true))
}

func TestMembership(t *testing.T) {
	env := newTestEnv()
	env.types["names"] = types.NewInstance(env.b.List, env.inst("str"))
	env.types["('a', 'b')"] = &types.Tuple{Elems: []types.Type{env.b.StrLiteral("a"), env.b.StrLiteral("b")}}
	abc := types.Union(env.b.StrLiteral("a"), env.b.StrLiteral("b"), env.b.StrLiteral("c"))
	literals := &ast.Tuple{Elts: []ast.Expr{ast.NewStr("a"), ast.NewStr("b")}}

	in := ast.NewCompare(x(), ast.CmpIn, ast.NewName("names"))
	assert.Equal(t, "str", narrowX(env, in, types.Union(env.inst("str"), types.None), true).String())
	assert.Equal(t, "str", narrowX(env, in, types.Any, true).String())
	assert.Nil(t, ForCondition(env, in, flow.NameKey("x"), false))

	notIn := ast.NewCompare(x(), ast.CmpNotIn, literals)
	assert.Equal(t, "Literal['c']", narrowX(env, notIn, abc, true).String())
	assert.Equal(t, "Literal['a'] | Literal['b']", narrowX(env, notIn, abc, false).String())
}

func TestTypedDictKey(t *testing.T) {
	env := newTestEnv()
	movie := types.NewClass("m", "Movie", env.b.Dict)
	movie.TypedDict = true
	movie.Fields["name"] = env.inst("str")
	movie.Fields["year"] = env.inst("int")
	movie.Required = map[string]bool{"name": true}
	test := ast.NewCompare(ast.NewStr("year"), ast.CmpIn, x())

	got := narrowX(env, test, types.NewInstance(movie), true)
	inst, ok := got.(*types.Instance)
	require.True(t, ok)
	assert.True(t, inst.HasKey("year"))

	assert.Equal(t, "Never", narrowX(env, test, got, false).String())
	assert.Equal(t, "m.Movie", narrowX(env, test, types.NewInstance(movie), false).String())

	required := ast.NewCompare(ast.NewStr("name"), ast.CmpNotIn, x())
	assert.Equal(t, "Never", narrowX(env, required, types.NewInstance(movie), true).String())
}

func TestAliases(t *testing.T) {
	env := newTestEnv()
	optInt := types.Union(env.inst("int"), types.None)
	env.aliases["ok"] = ast.NewCompare(x(), ast.CmpIsNot, ast.NewNone())
	env.aliases["bad"] = ast.NewNot(ast.NewName("ok"))

	assert.Equal(t, "int", narrowX(env, ast.NewName("ok"), optInt, true).String())
	assert.Equal(t, "None", narrowX(env, ast.NewName("bad"), optInt, true).String())

	t.Run("cycle terminates", func(t *testing.T) {
		env.aliases["loop"] = ast.NewName("loop")
		assert.Nil(t, ForCondition(env, ast.NewName("loop"), flow.NameKey("x"), true))
	})

	t.Run("assignment expression", func(t *testing.T) {
		walrus := &ast.NamedExpr{Target: ast.NewName("m"), Value: ast.NewCall(ast.NewName("f"))}
		test := ast.NewCompare(walrus, ast.CmpIsNot, ast.NewNone())
		got := Apply(ForCondition(env, test, flow.NameKey("m"), true), optInt)
		assert.Equal(t, "int", got.String())
		got = Apply(ForCondition(env, walrus, flow.NameKey("m"), true), optInt)
		assert.Equal(t, "int", got.String())
	})
}
