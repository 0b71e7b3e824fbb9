package narrowing

import (
	"testing"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/types"
	"github.com/stretchr/testify/assert"
)

func classPattern(name string, sub ...ast.Pattern) *ast.MatchClass {
	return &ast.MatchClass{Cls: ast.NewName(name), Patterns: sub}
}

func capture(name string) *ast.MatchAs { return &ast.MatchAs{Name: name} }

func TestNarrowSubject(t *testing.T) {
	env := newTestEnv()
	b := env.b
	intStr := types.Union(env.inst("int"), env.inst("str"))
	pairs := types.Union(
		&types.Tuple{Elems: []types.Type{env.inst("int"), env.inst("str")}},
		&types.Tuple{Elems: []types.Type{env.inst("int")}},
		types.None,
	)

	tests := []struct {
		name     string
		in       types.Type
		pattern  ast.Pattern
		positive bool
		want     string
	}{
		{"class match", intStr, classPattern("int"), true, "int"},
		{"class miss", intStr, classPattern("int"), false, "str"},
		{"value miss", types.Union(b.StrLiteral("a"), b.StrLiteral("b")), &ast.MatchValue{Value: ast.NewStr("a")}, false, "Literal['b']"},
		{"singleton", types.Union(env.inst("int"), types.None), &ast.MatchSingleton{Value: ast.NewNone()}, true, "None"},
		{"capture matches everything", intStr, capture("v"), true, "int | str"},
		{"capture leaves nothing", intStr, capture("v"), false, "Never"},
		{"or match", types.Union(intStr, types.None), &ast.MatchOr{Patterns: []ast.Pattern{classPattern("int"), classPattern("str")}}, true, "int | str"},
		{"or miss", types.Union(intStr, types.None), &ast.MatchOr{Patterns: []ast.Pattern{classPattern("int"), classPattern("str")}}, false, "None"},
		{"sequence by length", pairs, &ast.MatchSequence{Patterns: []ast.Pattern{capture("a"), capture("b")}}, true, "tuple[int, str]"},
		{"sequence with star", types.Union(&types.Tuple{Elems: []types.Type{env.inst("int")}}, env.inst("str")), &ast.MatchSequence{Patterns: []ast.Pattern{capture("first"), &ast.MatchStar{Name: "rest"}}}, true, "tuple[int]"},
		{"sequence fully covered", &types.Tuple{Elems: []types.Type{env.inst("int"), env.inst("str")}}, &ast.MatchSequence{Patterns: []ast.Pattern{classPattern("int"), classPattern("str")}}, false, "Never"},
		{"sequence partially covered", &types.Tuple{Elems: []types.Type{intStr, env.inst("str")}}, &ast.MatchSequence{Patterns: []ast.Pattern{classPattern("int"), classPattern("str")}}, false, "tuple[int | str, str]"},
		{"sequence narrows elements", &types.Tuple{Elems: []types.Type{intStr}}, &ast.MatchSequence{Patterns: []ast.Pattern{classPattern("str")}}, true, "tuple[str]"},
		{"mapping", types.Union(env.inst("dict"), env.inst("int")), &ast.MatchMapping{}, true, "dict"},
		{"builtin self match", intStr, classPattern("str", &ast.MatchValue{Value: ast.NewStr("a")}), true, "Literal['a']"},
		{"builtin self miss", intStr, classPattern("str", &ast.MatchValue{Value: ast.NewStr("a")}), false, "int | str"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NarrowSubject(env, tt.in, tt.pattern, tt.positive)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestExhaustiveChain(t *testing.T) {
	env := newTestEnv()
	remaining := types.Union(env.inst("int"), env.inst("str"))
	for _, p := range []ast.Pattern{classPattern("int"), classPattern("str")} {
		remaining = NarrowSubject(env, remaining, p, false)
	}
	assert.True(t, types.IsNever(remaining))

	withNone := types.Union(env.inst("int"), env.inst("str"), types.None)
	for _, p := range []ast.Pattern{classPattern("int"), classPattern("str")} {
		withNone = NarrowSubject(env, withNone, p, false)
	}
	assert.Equal(t, "None", withNone.String())
}

func TestForPattern(t *testing.T) {
	env := newTestEnv()
	intStr := types.Union(env.inst("int"), env.inst("str"))

	t.Run("subject", func(t *testing.T) {
		cb := ForPattern(env, x(), classPattern("str"), flow.NameKey("x"), true)
		assert.Equal(t, "str", Apply(cb, intStr).String())
		assert.Nil(t, ForPattern(env, x(), classPattern("str"), flow.NameKey("y"), true))
	})

	t.Run("tuple subject element", func(t *testing.T) {
		subject := &ast.Tuple{Elts: []ast.Expr{ast.NewName("a"), ast.NewName("b")}}
		p := &ast.MatchSequence{Patterns: []ast.Pattern{classPattern("int"), capture("_")}}
		a := flow.NameKey("a")
		assert.Equal(t, "int", Apply(ForPattern(env, subject, p, a, true), intStr).String())
		assert.Equal(t, "str", Apply(ForPattern(env, subject, p, a, false), intStr).String())

		guarded := &ast.MatchSequence{Patterns: []ast.Pattern{classPattern("int"), classPattern("int")}}
		assert.Equal(t, "int | str", Apply(ForPattern(env, subject, guarded, a, false), intStr).String(),
			"the other element may be the one that failed")
		short := &ast.MatchSequence{Patterns: []ast.Pattern{capture("only")}}
		assert.Equal(t, "Never", Apply(ForPattern(env, subject, short, a, true), intStr).String())
	})

	t.Run("discriminated subject", func(t *testing.T) {
		a, b := recordClasses(env)
		both := types.Union(types.NewInstance(a), types.NewInstance(b))
		subject := ast.NewAttribute(x(), "kind")
		assert.Equal(t, "m.A", Apply(ForPattern(env, subject, &ast.MatchValue{Value: ast.NewStr("a")}, flow.NameKey("x"), true), both).String())
		or := &ast.MatchOr{Patterns: []ast.Pattern{
			&ast.MatchValue{Value: ast.NewStr("a")},
			&ast.MatchValue{Value: ast.NewStr("b")},
		}}
		assert.Equal(t, "Never", Apply(ForPattern(env, subject, or, flow.NameKey("x"), false), both).String())
	})
}
