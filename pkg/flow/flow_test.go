package flow

import (
	"bytes"
	"errors"
	"testing"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyOf(t *testing.T) {
	tests := []struct {
		name string
		expr ast.Expr
		want string
		ok   bool
	}{
		{"name", ast.NewName("x"), "x", true},
		{"attribute", ast.NewAttribute(ast.NewName("self"), "conn"), "self.conn", true},
		{"int subscript", ast.NewSubscript(ast.NewName("t"), ast.NewInt(0)), "t[0]", true},
		{"negative subscript", ast.NewSubscript(ast.NewName("t"), &ast.UnaryOp{Op: "-", Operand: ast.NewInt(1)}), "t[-1]", true},
		{"string subscript", ast.NewSubscript(ast.NewAttribute(ast.NewName("a"), "d"), ast.NewStr("k")), `a.d["k"]`, true},
		{"walrus", &ast.NamedExpr{Target: ast.NewName("m"), Value: ast.NewCall(ast.NewName("f"))}, "m", true},
		{"call is not a reference", ast.NewCall(ast.NewName("f")), "", false},
		{"dynamic subscript", ast.NewSubscript(ast.NewName("t"), ast.NewName("i")), "", false},
		{"attribute of call", ast.NewAttribute(ast.NewCall(ast.NewName("f")), "x"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, ok := KeyOf(tt.expr)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, k.Path)
		})
	}
}

func TestKeyPrefixes(t *testing.T) {
	k := Key{Path: `a.b["x.y"][0].c`}
	var paths []string
	for _, p := range k.Prefixes() {
		paths = append(paths, p.Path)
	}
	assert.Equal(t, []string{"a", "a.b", `a.b["x.y"]`, `a.b["x.y"][0]`}, paths)

	assert.True(t, NameKey("a").IsPrefixOf(Key{Path: "a.b"}))
	assert.False(t, NameKey("a").IsPrefixOf(Key{Path: "ab"}))
	assert.False(t, NameKey("a").IsPrefixOf(NameKey("a")))
	assert.Equal(t, "a", Key{Path: "a[0].b"}.Root())
	assert.True(t, NameKey("a").IsName())
	assert.Equal(t, "x#2", NameKey("x").WithDisambiguator(2).String())
	assert.True(t, NameKey("x").WithDisambiguator(2).SamePath(NameKey("x")))
}

func TestKeySetAffects(t *testing.T) {
	s := make(KeySet)
	s.Add(Key{Path: "a.b"})

	assert.True(t, s.Affects(Key{Path: "a.b"}))
	assert.True(t, s.Affects(Key{Path: "a.b.c"}), "assigning a.b changes a.b.c")
	assert.False(t, s.Affects(Key{Path: "a"}))
	assert.False(t, s.Affects(Key{Path: "a.bc"}))

	var empty KeySet
	assert.False(t, empty.Affects(NameKey("x")))
}

func newTestGraph() (*Graph, *Scope) {
	g := NewGraph()
	s := g.NewScope(ScopeModule, "m", nil, NoScope)
	return g, s
}

func TestGraphLabels(t *testing.T) {
	g, s := newTestGraph()
	a := g.Add(s.ID, &Assignment{single: single{Antecedent: s.Start}, Key: NameKey("x")})
	lbl := g.Add(s.ID, &BranchLabel{PreBranch: s.Start})

	require.NoError(t, g.AddAntecedent(lbl, s.Start))
	require.NoError(t, g.AddAntecedent(lbl, a))
	require.NoError(t, g.AddAntecedent(lbl, a), "duplicates are ignored")
	assert.Equal(t, []NodeID{s.Start, a}, g.Node(lbl).Antecedents())

	err := g.Validate()
	require.Error(t, err, "unsealed label")
	assert.True(t, errors.Is(err, ErrInvariant))

	g.Seal(lbl)
	require.NoError(t, g.Validate())

	err = g.AddAntecedent(lbl, s.Start)
	var inv *InvariantError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, lbl, inv.Node)

	assert.Error(t, g.AddAntecedent(a, s.Start), "assignments are not labels")
	assert.Error(t, g.AddAntecedent(lbl, 99))
}

func TestGraphComplexity(t *testing.T) {
	g, s := newTestGraph()
	assert.Equal(t, 1, s.Complexity)
	a := g.Add(s.ID, &Call{single: single{Antecedent: s.Start}})
	assert.Equal(t, 3, s.Complexity)
	lbl := g.Add(s.ID, &BranchLabel{PreBranch: NoNode})
	require.NoError(t, g.AddAntecedent(lbl, a))
	assert.Equal(t, 5, s.Complexity)
}

func TestValidateCycles(t *testing.T) {
	t.Run("loop back-edge is legal", func(t *testing.T) {
		g, s := newTestGraph()
		loop := g.Add(s.ID, &LoopLabel{})
		body := g.Add(s.ID, &Assignment{single: single{Antecedent: loop}, Key: NameKey("x")})
		require.NoError(t, g.AddAntecedent(loop, s.Start))
		require.NoError(t, g.AddAntecedent(loop, body))
		g.Seal(loop)
		assert.NoError(t, g.Validate())
	})

	t.Run("cycle through branch label is illegal", func(t *testing.T) {
		g, s := newTestGraph()
		lbl := g.Add(s.ID, &BranchLabel{PreBranch: NoNode})
		body := g.Add(s.ID, &Assignment{single: single{Antecedent: lbl}, Key: NameKey("x")})
		require.NoError(t, g.AddAntecedent(lbl, s.Start))
		require.NoError(t, g.AddAntecedent(lbl, body))
		g.Seal(lbl)
		assert.ErrorIs(t, g.Validate(), ErrInvariant)
	})

	t.Run("missing antecedent", func(t *testing.T) {
		g, s := newTestGraph()
		g.Add(s.ID, &BranchLabel{PreBranch: NoNode})
		assert.ErrorIs(t, g.Validate(), ErrInvariant)
	})
}

func TestNodePanicsOnDanglingID(t *testing.T) {
	g, _ := newTestGraph()
	assert.PanicsWithError(t, "flow node 7: dangling node reference", func() { g.Node(7) })
}

func TestFlowNodeAttachment(t *testing.T) {
	g, s := newTestGraph()
	x := ast.NewName("x")
	g.SetFlowNode(x, s.Start)
	g.SetFlowNode(x, 42)
	id, ok := g.FlowNode(x)
	require.True(t, ok)
	assert.Equal(t, s.Start, id)
}

func TestSnapshotText(t *testing.T) {
	g, s := newTestGraph()
	test := ast.NewCompare(ast.NewName("x"), ast.CmpIsNot, ast.NewNone())
	cond := g.Add(s.ID, &Condition{single: single{Antecedent: s.Start}, Test: test, Flavor: CondTrue})

	snap := g.Snapshot(cond)
	require.Len(t, snap.Nodes, 2)
	assert.Equal(t, cond, snap.Nodes[0].ID)

	var buf bytes.Buffer
	require.NoError(t, snap.WriteText(&buf, false))
	want := "[1] condition  true `x is not None`  <- 0\n" +
		"[0] start      scope 0\n"
	assert.Equal(t, want, buf.String())
}
