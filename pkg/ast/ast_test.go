package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"name", NewName("x"), "x"},
		{"attribute chain", NewAttribute(NewAttribute(NewName("a"), "b"), "c"), "a.b.c"},
		{"string subscript", NewSubscript(NewName("d"), NewStr("key")), "d['key']"},
		{"is not none", NewCompare(NewName("x"), CmpIsNot, NewNone()), "x is not None"},
		{"isinstance call", NewCall(NewName("isinstance"), NewName("x"), NewName("int")), "isinstance(x, int)"},
		{"not and", NewNot(NewAnd(NewName("a"), NewName("b"))), "not a and b"},
		{"walrus", &NamedExpr{Target: NewName("m"), Value: NewCall(NewName("f"))}, "(m := f())"},
		{"single tuple", &Tuple{Elts: []Expr{NewInt(1)}}, "(1,)"},
		{"bool literal", NewBool(false), "False"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.expr))
		})
	}
}

func TestFormatPattern(t *testing.T) {
	p := &MatchOr{Patterns: []Pattern{
		&MatchClass{Cls: NewName("int")},
		&MatchSequence{Patterns: []Pattern{&MatchAs{Name: "a"}, &MatchStar{}}},
		&MatchAs{},
	}}
	assert.Equal(t, "int() | [a, *_] | _", FormatPattern(p))
}

func TestIsIrrefutable(t *testing.T) {
	assert.True(t, IsIrrefutable(&MatchAs{}))
	assert.True(t, IsIrrefutable(&MatchAs{Name: "x"}))
	assert.True(t, IsIrrefutable(&MatchOr{Patterns: []Pattern{&MatchValue{Value: NewInt(1)}, &MatchAs{}}}))
	assert.False(t, IsIrrefutable(&MatchClass{Cls: NewName("int")}))
	assert.False(t, IsIrrefutable(&MatchAs{Pattern: &MatchValue{Value: NewInt(1)}, Name: "y"}))
}

func TestInspect(t *testing.T) {
	mod := &Module{Body: []Stmt{
		&If{
			Test: NewCompare(NewName("x"), CmpIsNot, NewNone()),
			Body: []Stmt{&ExprStmt{Value: NewCall(NewName("use"), NewName("x"))}},
		},
	}}

	var names []string
	Inspect(mod, func(n Node) bool {
		if name, ok := n.(*Name); ok {
			names = append(names, name.ID)
		}
		return true
	})
	assert.Equal(t, []string{"x", "use", "x"}, names)

	var count int
	Inspect(mod, func(n Node) bool {
		count++
		_, isIf := n.(*If)
		return !isIf
	})
	assert.Equal(t, 2, count, "children of the if statement are skipped")
}

func TestCmpOpNegate(t *testing.T) {
	neg, ok := CmpIsNot.Negate()
	assert.True(t, ok)
	assert.Equal(t, CmpIs, neg)

	neg, ok = CmpLt.Negate()
	assert.True(t, ok)
	assert.Equal(t, CmpGtE, neg)
}
