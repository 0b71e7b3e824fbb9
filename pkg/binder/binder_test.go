package binder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/pyparse"
)

func bind(t *testing.T, src string, opts Options) (*ast.Module, *flow.Graph) {
	t.Helper()
	mod, err := pyparse.Parse("m.py", []byte(src))
	require.NoError(t, err)
	g, err := Bind(mod, opts)
	require.NoError(t, err)
	return mod, g
}

// deadReason returns the reason a statement is unreachable, or "" when it
// is live.
func deadReason(t *testing.T, g *flow.Graph, s ast.Stmt) flow.UnreachableReason {
	t.Helper()
	id, ok := g.FlowNode(s)
	require.True(t, ok, "statement has no flow node")
	if u, ok := g.Node(id).(*flow.Unreachable); ok {
		return u.Reason
	}
	return ""
}

func countKind(g *flow.Graph, kind flow.Kind) int {
	n := 0
	for id := 0; id < g.Len(); id++ {
		if g.Node(flow.NodeID(id)).Kind() == kind {
			n++
		}
	}
	return n
}

func TestBind_Malformed(t *testing.T) {
	_, err := Bind(nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Bind(&ast.Module{Path: "m.py", Body: []ast.Stmt{&ast.Break{}}}, DefaultOptions())
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorContains(t, err, "'break' outside loop")

	_, err = Bind(&ast.Module{Path: "m.py", Body: []ast.Stmt{nil}}, DefaultOptions())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBind_Structural(t *testing.T) {
	mod, g := bind(t, `def f(x):
    if x:
        return 1
    else:
        raise ValueError()
    y = 2

for i in range(3):
    break
    z = 3
`, DefaultOptions())

	fn := mod.Body[0].(*ast.FunctionDef)
	assert.Equal(t, flow.ReasonStructural, deadReason(t, g, fn.Body[1]))
	assert.Equal(t, flow.UnreachableReason(""), deadReason(t, g, fn.Body[0]))

	loop := mod.Body[1].(*ast.For)
	assert.Equal(t, flow.ReasonStructural, deadReason(t, g, loop.Body[1]))
}

func TestBind_StaticConditions(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		opts     Options
		bodyDead bool
		elseDead bool
	}{
		{
			name:     "platform mismatch",
			src:      "import sys\nif sys.platform == \"win32\":\n    x = 1\nelse:\n    x = 2\n",
			opts:     DefaultOptions(),
			bodyDead: true,
		},
		{
			name:     "platform match",
			src:      "import sys\nif sys.platform == \"win32\":\n    x = 1\nelse:\n    x = 2\n",
			opts:     Options{PythonVersion: [2]int{3, 12}, Platform: "win32"},
			elseDead: true,
		},
		{
			name:     "newer version",
			src:      "import sys\nif sys.version_info >= (3, 10):\n    x = 1\nelse:\n    x = 2\n",
			opts:     DefaultOptions(),
			elseDead: true,
		},
		{
			name:     "older version",
			src:      "import sys\nif sys.version_info >= (3, 10):\n    x = 1\nelse:\n    x = 2\n",
			opts:     Options{PythonVersion: [2]int{3, 9}, Platform: "linux"},
			bodyDead: true,
		},
		{
			name:     "type checking",
			src:      "from typing import TYPE_CHECKING\nif TYPE_CHECKING:\n    x = 1\nelse:\n    x = 2\n",
			opts:     DefaultOptions(),
			elseDead: true,
		},
		{
			name:     "negated constant",
			src:      "if not True:\n    x = 1\nelse:\n    x = 2\n",
			opts:     DefaultOptions(),
			bodyDead: true,
		},
		{
			name: "runtime test",
			src:  "import os\nif os.environ:\n    x = 1\nelse:\n    x = 2\n",
			opts: DefaultOptions(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, g := bind(t, tt.src, tt.opts)
			stmt := mod.Body[len(mod.Body)-1].(*ast.If)

			want := func(dead bool) flow.UnreachableReason {
				if dead {
					return flow.ReasonStaticCondition
				}
				return ""
			}
			assert.Equal(t, want(tt.bodyDead), deadReason(t, g, stmt.Body[0]))
			assert.Equal(t, want(tt.elseDead), deadReason(t, g, stmt.OrElse[0]))
		})
	}
}

func TestBind_ScopeMetadata(t *testing.T) {
	mod, g := bind(t, `G = 0

def f(a, b=1):
    global G
    x = a
    x = 2
    ok = a is not None
    G = x
    return x
`, DefaultOptions())

	fn := mod.Body[1].(*ast.FunctionDef)
	s, ok := g.ScopeFor(fn)
	require.True(t, ok)

	assert.Equal(t, flow.ScopeFunction, s.Kind)
	assert.Equal(t, "f", s.Name)
	assert.Equal(t, []string{"a", "b"}, s.Params)
	assert.True(t, s.Globals["G"])
	assert.False(t, s.IsLocal("G"))
	assert.True(t, s.IsLocal("x"))
	assert.Equal(t, 2, s.AssignCounts["x"])
	assert.Len(t, s.ReturnSites, 1)
	assert.True(t, s.Tracked.Has(flow.NameKey("x")))
	assert.Contains(t, s.Aliases, "ok")
	assert.Greater(t, s.Complexity, 0)

	modScope, ok := g.ScopeFor(mod)
	require.True(t, ok)
	assert.Equal(t, flow.NoScope, modScope.Parent)
	assert.Equal(t, modScope.ID, s.Parent)
}

func TestBind_ReassignedAliasDropped(t *testing.T) {
	mod, g := bind(t, "x = None\nok = x is None\nok = False\n", DefaultOptions())
	s, ok := g.ScopeFor(mod)
	require.True(t, ok)
	assert.NotContains(t, s.Aliases, "ok")
}

func TestBind_NodeKinds(t *testing.T) {
	_, g := bind(t, `import sys
from os import *

def f(v):
    for i in range(3):
        if i:
            continue
    while v:
        v = v - 1
    try:
        sys.exit(1)
    finally:
        pass
    with open("f") as fh:
        pass
    match v:
        case 1:
            pass
        case str():
            pass
`, DefaultOptions())

	assert.Equal(t, 2, countKind(g, flow.KindLoopLabel))
	assert.Equal(t, 1, countKind(g, flow.KindWildcardImport))
	assert.Equal(t, 1, countKind(g, flow.KindPreFinallyGate))
	assert.Equal(t, 1, countKind(g, flow.KindPostFinally))
	assert.Equal(t, 1, countKind(g, flow.KindExhaustedMatch))
	assert.GreaterOrEqual(t, countKind(g, flow.KindPostContextManager), 1)
	assert.GreaterOrEqual(t, countKind(g, flow.KindCall), 1)
	assert.GreaterOrEqual(t, countKind(g, flow.KindPatternNarrow), 2)
	assert.GreaterOrEqual(t, countKind(g, flow.KindCondition), 4)
	assert.NoError(t, g.Validate())
}

func TestBind_ExpressionFlowNodes(t *testing.T) {
	mod, g := bind(t, "x = 1\nprint(x)\n", DefaultOptions())
	call := mod.Body[1].(*ast.ExprStmt).Value.(*ast.Call)

	callNode, ok := g.FlowNode(call)
	require.True(t, ok)
	argNode, ok := g.FlowNode(call.Args[0])
	require.True(t, ok)
	assert.Equal(t, callNode, argNode)

	as, ok := g.Node(argNode).(*flow.Assignment)
	require.True(t, ok, "print(x) should follow the assignment to x")
	assert.Equal(t, "x", as.Key.Path)
}
