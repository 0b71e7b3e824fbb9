package engine

import (
	"context"
	"testing"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/types"
	"github.com/stretchr/testify/assert"
)

func typeStrings(ts []types.Type) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.String())
	}
	return out
}

func TestNarrowConstrainedTypeVariable(t *testing.T) {
	isinstance := func(v string, cls ast.Expr) *ast.Call {
		return call("isinstance", name(v), cls)
	}

	tests := []struct {
		name  string
		build func(probe *ast.Name) []ast.Stmt
		want  []string
	}{
		{
			name: "positive test",
			build: func(probe *ast.Name) []ast.Stmt {
				return []ast.Stmt{&ast.If{Test: isinstance("v", name("str")), Body: []ast.Stmt{reveal(probe)}}}
			},
			want: []string{"str"},
		},
		{
			name: "negative test",
			build: func(probe *ast.Name) []ast.Stmt {
				return []ast.Stmt{&ast.If{
					Test:   isinstance("v", name("str")),
					Body:   []ast.Stmt{&ast.Pass{}},
					OrElse: []ast.Stmt{reveal(probe)},
				}}
			},
			want: []string{"bytes"},
		},
		{
			name: "negated call",
			build: func(probe *ast.Name) []ast.Stmt {
				return []ast.Stmt{&ast.If{Test: ast.NewNot(isinstance("v", name("str"))), Body: []ast.Stmt{reveal(probe)}}}
			},
			want: []string{"bytes"},
		},
		{
			name: "tuple of classes",
			build: func(probe *ast.Name) []ast.Stmt {
				classes := &ast.Tuple{Elts: []ast.Expr{name("str"), name("bytes")}}
				return []ast.Stmt{&ast.If{Test: isinstance("v", classes), Body: []ast.Stmt{reveal(probe)}}}
			},
			want: []string{"str", "bytes"},
		},
		{
			name: "after the branch",
			build: func(probe *ast.Name) []ast.Stmt {
				return []ast.Stmt{
					&ast.If{
						Test:   isinstance("v", name("str")),
						Body:   []ast.Stmt{&ast.Pass{}},
						OrElse: []ast.Stmt{&ast.Pass{}},
					},
					reveal(probe),
				}
			},
			want: []string{"str", "bytes"},
		},
		{
			name: "early exit",
			build: func(probe *ast.Name) []ast.Stmt {
				return []ast.Stmt{
					&ast.If{Test: isinstance("v", name("bytes")), Body: []ast.Stmt{expr(call("fail"))}},
					reveal(probe),
				}
			},
			want: []string{"str"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := newFakeEval()
			eval.noReturn["fail"] = true
			tv := &types.TypeVar{Name: "T", Constraints: []types.Type{eval.inst("str"), eval.inst("bytes")}}
			eval.typeVars["v"] = tv

			probe := name("v")
			fx := bindFixture(t, eval, tt.build(probe))
			got := fx.s.NarrowConstrainedTypeVariable(context.Background(), fx.node(probe), tv)
			assert.Equal(t, tt.want, typeStrings(got))
		})
	}
}

func TestNarrowConstrainedTypeVariable_Unconstrained(t *testing.T) {
	eval := newFakeEval()
	probe := name("v")
	fx := bindFixture(t, eval, []ast.Stmt{reveal(probe)})

	assert.Nil(t, fx.s.NarrowConstrainedTypeVariable(context.Background(), fx.node(probe), &types.TypeVar{Name: "T"}))
	assert.Nil(t, fx.s.NarrowConstrainedTypeVariable(context.Background(), fx.node(probe), nil))
}

func TestNarrowConstrainedTypeVariable_Limits(t *testing.T) {
	eval := newFakeEval()
	tv := &types.TypeVar{Name: "T", Constraints: []types.Type{eval.inst("str"), eval.inst("bytes")}}
	eval.typeVars["v"] = tv

	probe := name("v")
	fx := bindFixture(t, eval, []ast.Stmt{
		&ast.If{Test: call("isinstance", name("v"), name("str")), Body: []ast.Stmt{reveal(probe)}},
	}, WithMaxNodeVisits(1))

	got := fx.s.NarrowConstrainedTypeVariable(context.Background(), fx.node(probe), tv)
	assert.Equal(t, []string{"str", "bytes"}, typeStrings(got))
}
