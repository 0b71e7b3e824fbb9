package engine

import (
	"context"
	"testing"
	"time"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/guard"
	"github.com/l3aro/flowtype/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optionalInt(f *fakeEval) types.Type {
	return types.Union(f.inst("int"), types.None)
}

func TestNarrow_IsNotNone(t *testing.T) {
	eval := newFakeEval()
	eval.returns["f"] = optionalInt(eval)

	inside, after := name("x"), name("x")
	fx := bindFixture(t, eval, []ast.Stmt{
		assign("x", call("f")),
		&ast.If{Test: isNotNone(name("x")), Body: []ast.Stmt{reveal(inside)}},
		reveal(after),
	})

	r := fx.narrow(inside)
	assert.Equal(t, "int", r.Type.String())
	assert.True(t, r.Complete)
	assert.False(t, r.Aborted)

	r = fx.narrow(after)
	assert.Equal(t, "int | None", r.Type.String())
	assert.True(t, r.Complete)
}

func TestNarrow_Assignments(t *testing.T) {
	tests := []struct {
		name  string
		build func(ref *ast.Name) []ast.Stmt
		want  []string
	}{
		{
			name: "reassigned",
			build: func(ref *ast.Name) []ast.Stmt {
				return []ast.Stmt{assign("x", call("f")), assign("x", call("g")), reveal(ref)}
			},
			want: []string{"str"},
		},
		{
			name: "deleted",
			build: func(ref *ast.Name) []ast.Stmt {
				return []ast.Stmt{assign("x", call("g")), &ast.Delete{Targets: []ast.Expr{name("x")}}, reveal(ref)}
			},
			want: []string{"Unbound"},
		},
		{
			name: "assigned in one branch",
			build: func(ref *ast.Name) []ast.Stmt {
				return []ast.Stmt{
					&ast.If{Test: name("c"), Body: []ast.Stmt{assign("x", call("g"))}},
					reveal(ref),
				}
			},
			want: []string{"str", "Unbound"},
		},
		{
			name: "no-return call kills the branch",
			build: func(ref *ast.Name) []ast.Stmt {
				return []ast.Stmt{
					assign("x", call("f")),
					&ast.If{Test: isNone(name("x")), Body: []ast.Stmt{expr(call("fail"))}},
					reveal(ref),
				}
			},
			want: []string{"int"},
		},
		{
			name: "literal assignment",
			build: func(ref *ast.Name) []ast.Stmt {
				return []ast.Stmt{assign("x", ast.NewStr("b")), reveal(ref)}
			},
			want: []string{"Literal['b']"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := newFakeEval()
			eval.returns["f"] = optionalInt(eval)
			eval.returns["g"] = eval.inst("str")
			eval.declared["c"] = eval.inst("bool")
			eval.noReturn["fail"] = true

			ref := name("x")
			fx := bindFixture(t, eval, tt.build(ref))
			r := fx.narrow(ref)
			assert.ElementsMatch(t, tt.want, memberStrings(r.Type))
			assert.True(t, r.Complete)
		})
	}
}

func TestNarrow_AssignmentInvalidatesMemberNarrowing(t *testing.T) {
	eval := newFakeEval()
	eval.declared["a.b"] = optionalInt(eval)
	eval.returns["g"] = eval.inst("object")

	narrowed, killed := ast.NewAttribute(name("a"), "b"), ast.NewAttribute(name("a"), "b")
	fx := bindFixture(t, eval, []ast.Stmt{
		&ast.If{
			Test: isNotNone(ast.NewAttribute(name("a"), "b")),
			Body: []ast.Stmt{
				reveal(narrowed),
				assign("a", call("g")),
				reveal(killed),
			},
		},
	})

	assert.Equal(t, "int", fx.narrow(narrowed).Type.String())
	assert.Equal(t, "int | None", fx.narrow(killed).Type.String())
}

func TestNarrow_UntrackedReference(t *testing.T) {
	eval := newFakeEval()
	fx := bindFixture(t, eval, []ast.Stmt{assign("x", call("f")), reveal(name("x"))})

	start := eval.inst("int")
	r := fx.s.Narrow(context.Background(), fx.g.Scope(0).Return, flow.NameKey("zzz"), start, NarrowOptions{})
	assert.Same(t, start, r.Type)
	assert.True(t, r.Complete)

	r = fx.s.Narrow(context.Background(), fx.g.Scope(0).Return, flow.NameKey("zzz"), start, NarrowOptions{StartIncomplete: true})
	assert.False(t, r.Complete)
}

func TestNarrow_UntrackedReferenceInDeadCode(t *testing.T) {
	eval := newFakeEval()
	eval.noReturn["exit"] = true

	live, dead := name("x"), name("x")
	fx := bindFixture(t, eval, []ast.Stmt{
		assign("a", live),
		expr(call("exit", ast.NewInt(1))),
		assign("y", dead),
	})
	start := eval.inst("int")

	r := fx.s.Narrow(context.Background(), fx.node(live), flow.NameKey("x"), start, NarrowOptions{})
	assert.Same(t, start, r.Type)

	require.Equal(t, UnreachableByAnalysis, fx.reach(dead))
	r = fx.s.Narrow(context.Background(), fx.node(dead), flow.NameKey("x"), start, NarrowOptions{})
	assert.True(t, types.IsNever(r.Type), "got %s", r.Type)
	assert.True(t, r.Complete)
}

func TestNarrow_SkipConditions(t *testing.T) {
	eval := newFakeEval()
	eval.returns["f"] = optionalInt(eval)
	inside := name("x")
	fx := bindFixture(t, eval, []ast.Stmt{
		assign("x", call("f")),
		&ast.If{Test: isNotNone(name("x")), Body: []ast.Stmt{reveal(inside)}},
	})

	k := flow.NameKey("x")
	r := fx.s.Narrow(context.Background(), fx.node(inside), k, types.Unbound, NarrowOptions{SkipConditions: true})
	assert.Equal(t, "int | None", r.Type.String())
}

func TestNarrow_Loops(t *testing.T) {
	t.Run("assigned in body", func(t *testing.T) {
		eval := newFakeEval()
		eval.declared["c"] = eval.inst("bool")
		eval.returns["g"] = eval.inst("str")
		after := name("x")
		fx := bindFixture(t, eval, []ast.Stmt{
			&ast.While{Test: name("c"), Body: []ast.Stmt{assign("x", call("g"))}},
			reveal(after),
		})
		r := fx.narrow(after)
		assert.ElementsMatch(t, []string{"Unbound", "str"}, memberStrings(r.Type))
		assert.True(t, r.Complete)
	})

	build := func(eval *fakeEval, inside, after *ast.Name) []ast.Stmt {
		eval.declared["c"] = eval.inst("bool")
		eval.returns["g"] = eval.inst("int")
		return []ast.Stmt{
			assign("x", ast.NewNone()),
			&ast.While{Test: name("c"), Body: []ast.Stmt{
				&ast.If{Test: isNone(name("x")), Body: []ast.Stmt{assign("x", call("g"))}},
				reveal(inside),
			}},
			reveal(after),
		}
	}

	t.Run("fixed point", func(t *testing.T) {
		eval := newFakeEval()
		inside, after := name("x"), name("x")
		fx := bindFixture(t, eval, build(eval, inside, after))

		r := fx.narrow(inside)
		assert.Equal(t, "int", r.Type.String())
		assert.True(t, r.Complete)

		r = fx.narrow(after)
		assert.ElementsMatch(t, []string{"None", "int"}, memberStrings(r.Type))
		assert.True(t, r.Complete)
		assert.False(t, types.IsIncomplete(r.Type))
	})

	t.Run("convergence ceiling", func(t *testing.T) {
		eval := newFakeEval()
		inside, after := name("x"), name("x")
		fx := bindFixture(t, eval, build(eval, inside, after), WithMaxConvergenceAttempts(1))

		r := fx.narrow(after)
		assert.False(t, r.Complete)
		assert.False(t, r.Aborted)
		assert.False(t, types.IsIncomplete(r.Type))
	})

	t.Run("unaffected loop", func(t *testing.T) {
		eval := newFakeEval()
		eval.declared["c"] = eval.inst("bool")
		eval.returns["f"] = eval.inst("int")
		eval.returns["g"] = eval.inst("str")
		after := name("x")
		fx := bindFixture(t, eval, []ast.Stmt{
			assign("x", call("f")),
			&ast.While{Test: name("c"), Body: []ast.Stmt{assign("y", call("g"))}},
			reveal(after),
		})
		assert.Equal(t, "int", fx.narrow(after).Type.String())
	})
}

func TestNarrow_LoopWithGrowingType(t *testing.T) {
	eval := newFakeEval()

	after := name("x")
	fx := bindFixture(t, eval, []ast.Stmt{
		assign("x", ast.NewInt(0)),
		&ast.While{Test: name("c"), Body: []ast.Stmt{
			assign("x", &ast.List{Elts: []ast.Expr{name("x")}}),
		}},
		reveal(after),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	k, ok := flow.KeyOf(after)
	require.True(t, ok)
	r := fx.s.Narrow(ctx, fx.node(after), k, eval.start(k), NarrowOptions{})

	require.False(t, r.Aborted, "query aborted: %s", r.Reason)
	assert.False(t, r.Complete)
	assert.Contains(t, memberStrings(r.Type), "Literal[0]")
	assert.Contains(t, memberStrings(r.Type), "list[Literal[0]]")
	assert.Less(t, len(r.Type.String()), 4096)
}

func TestNarrow_TryFinally(t *testing.T) {
	eval := newFakeEval()
	eval.returns["f"] = eval.inst("int")
	eval.returns["g"] = eval.inst("str")

	inFinally, after := name("x"), name("x")
	fx := bindFixture(t, eval, []ast.Stmt{
		assign("x", ast.NewNone()),
		&ast.Try{
			Body: []ast.Stmt{
				assign("x", call("f")),
				assign("x", call("g")),
			},
			Finally: []ast.Stmt{reveal(inFinally)},
		},
		reveal(after),
	})

	r := fx.narrow(inFinally)
	assert.ElementsMatch(t, []string{"None", "int", "str"}, memberStrings(r.Type))
	assert.True(t, r.Complete)

	r = fx.narrow(after)
	assert.Equal(t, "str", r.Type.String())
	assert.True(t, r.Complete)

	// The speculative walk through the closed gate must not leak into
	// the unconditional answer for the finally clause.
	r = fx.narrow(inFinally)
	assert.ElementsMatch(t, []string{"None", "int", "str"}, memberStrings(r.Type))
}

func TestSession_IsSpeculative(t *testing.T) {
	eval := newFakeEval()
	eval.returns["f"] = eval.inst("int")

	speculative := map[bool]int{}
	after := name("x")
	fx := bindFixture(t, eval, []ast.Stmt{
		assign("x", ast.NewNone()),
		&ast.Try{
			Body:    []ast.Stmt{assign("x", call("f"))},
			Finally: []ast.Stmt{&ast.Pass{}},
		},
		reveal(after),
	})
	eval.onAssign = func(ctx context.Context, _ *flow.Assignment) {
		speculative[fx.s.IsSpeculative(ctx)]++
	}

	assert.False(t, fx.s.IsSpeculative(context.Background()))

	r := fx.narrow(after)
	assert.Equal(t, "int", r.Type.String())
	assert.Positive(t, speculative[true], "assignments behind the finally gate are evaluated speculatively")
}

func TestNarrow_WithStatement(t *testing.T) {
	tests := []struct {
		name    string
		swallow bool
		want    []string
	}{
		{"exceptions propagate", false, []string{"int"}},
		{"exceptions swallowed", true, []string{"int", "None"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := newFakeEval()
			eval.returns["f"] = eval.inst("int")
			eval.returns["h"] = eval.inst("int")
			eval.swallow = tt.swallow

			after := name("x")
			fx := bindFixture(t, eval, []ast.Stmt{
				assign("x", call("f")),
				&ast.With{
					Items: []*ast.WithItem{{Context: call("cm")}},
					Body: []ast.Stmt{
						assign("x", ast.NewNone()),
						assign("x", call("h")),
					},
				},
				reveal(after),
			})
			assert.ElementsMatch(t, tt.want, memberStrings(fx.narrow(after).Type))
		})
	}
}

func TestNarrow_Match(t *testing.T) {
	eval := newFakeEval()
	eval.declared["x"] = types.Union(eval.inst("int"), eval.inst("str"))

	inInt, inStr := name("x"), name("x")
	fx := bindFixture(t, eval, []ast.Stmt{
		&ast.Match{
			Subject: name("x"),
			Cases: []*ast.MatchCase{
				{Pattern: &ast.MatchClass{Cls: name("int")}, Body: []ast.Stmt{reveal(inInt)}},
				{Pattern: &ast.MatchClass{Cls: name("str")}, Body: []ast.Stmt{reveal(inStr)}},
			},
		},
	})

	assert.Equal(t, "int", fx.narrow(inInt).Type.String())
	assert.Equal(t, "str", fx.narrow(inStr).Type.String())

	exhausted := fx.find(flow.KindExhaustedMatch)
	assert.Equal(t, UnreachableByAnalysis, fx.s.Reachable(context.Background(), exhausted, flow.NoNode, false).Status)
}

func TestNarrow_Limits(t *testing.T) {
	body := func(eval *fakeEval, ref *ast.Name) []ast.Stmt {
		eval.returns["f"] = optionalInt(eval)
		return []ast.Stmt{
			assign("x", call("f")),
			&ast.If{Test: isNotNone(name("x")), Body: []ast.Stmt{reveal(ref)}},
		}
	}

	t.Run("node visit budget", func(t *testing.T) {
		eval := newFakeEval()
		ref := name("x")
		fx := bindFixture(t, eval, body(eval, ref), WithMaxNodeVisits(1))
		r := fx.narrow(ref)
		assert.True(t, r.Aborted)
		assert.False(t, r.Complete)
		assert.Equal(t, guard.ReasonBudget, r.Reason)
		assert.True(t, types.IsUnbound(r.Type))
	})

	t.Run("canceled", func(t *testing.T) {
		eval := newFakeEval()
		ref := name("x")
		fx := bindFixture(t, eval, body(eval, ref))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		k, _ := flow.KeyOf(ref)
		r := fx.s.Narrow(ctx, fx.node(ref), k, types.Unbound, NarrowOptions{})
		assert.True(t, r.Aborted)
		assert.Equal(t, guard.ReasonCanceled, r.Reason)
	})

	t.Run("scope too complex", func(t *testing.T) {
		eval := newFakeEval()
		ref := name("x")
		fx := bindFixture(t, eval, body(eval, ref), WithMaxScopeComplexity(2))
		r := fx.narrow(ref)
		assert.True(t, r.Aborted)
		assert.Equal(t, guard.ReasonTooComplex, r.Reason)
		assert.Equal(t, types.Unknown, r.Type)

		st := fx.reach(ref)
		assert.Equal(t, Reachable, st)
	})
}

func TestNarrow_SessionCache(t *testing.T) {
	eval := newFakeEval()
	eval.returns["f"] = optionalInt(eval)
	ref := name("x")
	fx := bindFixture(t, eval, []ast.Stmt{
		assign("x", call("f")),
		&ast.If{Test: isNotNone(name("x")), Body: []ast.Stmt{reveal(ref)}},
	})

	first := fx.narrow(ref)
	before := fx.s.CacheStats().Narrow
	require.Positive(t, before.Length)

	second := fx.narrow(ref)
	after := fx.s.CacheStats().Narrow
	assert.True(t, types.Equal(first.Type, second.Type))
	assert.Greater(t, after.HitCount, before.HitCount)

	fx.s.Rebuild(fx.g)
	assert.Zero(t, fx.s.CacheStats().Narrow.Length)
	assert.Zero(t, fx.s.CacheStats().Reach.Length)
}
