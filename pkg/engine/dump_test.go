package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
)

const branchDump = `[4] branch_label  2 paths, pre-branch 1  <- 2, 3
[3] condition     false ` + "`x is not None`" + `  <- 1
[2] condition     true ` + "`x is not None`" + `  <- 1
[1] assignment    x =  <- 0
[0] start         scope 0
`

// branchGraph builds the graph of
//
//	x = f()
//	if x is not None: ...
//	else: ...
func branchGraph(t *testing.T) (*flow.Graph, flow.NodeID) {
	t.Helper()
	g := flow.NewGraph()
	s := g.NewScope(flow.ScopeModule, "m.py", nil, flow.NoScope)

	a := &flow.Assignment{Target: name("x"), Key: flow.NameKey("x"), Source: assign("x", call("f"))}
	a.SetAntecedent(s.Start)
	assigned := g.Add(s.ID, a)
	s.Tracked.Add(flow.NameKey("x"))

	test := isNotNone(name("x"))
	yes := &flow.Condition{Test: test, Flavor: flow.CondTrue}
	yes.SetAntecedent(assigned)
	no := &flow.Condition{Test: test, Flavor: flow.CondFalse}
	no.SetAntecedent(assigned)
	yesID, noID := g.Add(s.ID, yes), g.Add(s.ID, no)

	affected := make(flow.KeySet)
	affected.Add(flow.NameKey("x"))
	join := g.Add(s.ID, &flow.BranchLabel{PreBranch: assigned, Affected: affected})
	require.NoError(t, g.AddAntecedent(join, yesID))
	require.NoError(t, g.AddAntecedent(join, noID))
	g.Seal(join)
	return g, join
}

func diff(a, b string) string {
	dmp := diffmatchpatch.New()
	return dmp.DiffPrettyText(dmp.DiffMain(a, b, false))
}

func TestDump_Text(t *testing.T) {
	g, root := branchGraph(t)
	s, err := NewSession(g, newFakeEval())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Dump(context.Background(), &buf, root, DumpOptions{}))
	if got := buf.String(); got != branchDump {
		t.Errorf("dump mismatch:\n%s", diff(branchDump, got))
	}
}

func TestDump_Reachability(t *testing.T) {
	eval := newFakeEval()
	eval.noReturn["fail"] = true
	fx := bindFixture(t, eval, []ast.Stmt{expr(call("fail")), &ast.Pass{}})

	var buf bytes.Buffer
	require.NoError(t, fx.s.Dump(context.Background(), &buf, fx.g.Scope(0).Return, DumpOptions{Reachability: true}))
	out := buf.String()
	assert.Contains(t, out, "call")
	assert.Contains(t, out, "(unreachable_by_analysis)")
	assert.Contains(t, out, "(reachable)")
}

func TestDump_Encodings(t *testing.T) {
	g, root := branchGraph(t)
	eval := newFakeEval()
	s, err := NewSession(g, eval)
	require.NoError(t, err)
	eval.s, eval.g = s, g

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, s.Dump(context.Background(), &buf, root, DumpOptions{Format: FormatJSON, Reachability: true}))
		var snap flow.Snapshot
		require.NoError(t, json.Unmarshal(buf.Bytes(), &snap))
		assert.Equal(t, root, snap.Root)
		require.Len(t, snap.Nodes, 5)
		assert.Equal(t, flow.KindBranchLabel, snap.Nodes[0].Kind)
		assert.Equal(t, []flow.NodeID{2, 3}, snap.Nodes[0].Antecedents)
		for _, n := range snap.Nodes {
			assert.Equal(t, string(Reachable), n.Reach, "node %d", n.ID)
		}
	})

	t.Run("msgpack", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, s.Dump(context.Background(), &buf, root, DumpOptions{Format: FormatMsgpack}))
		var snap flow.Snapshot
		require.NoError(t, msgpack.Unmarshal(buf.Bytes(), &snap))
		require.Len(t, snap.Nodes, 5)
		assert.Equal(t, "x =", snap.Nodes[3].Detail)
		assert.Empty(t, snap.Nodes[3].Reach)
	})

	t.Run("unknown format", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Error(t, s.Dump(context.Background(), &buf, root, DumpOptions{Format: "yaml"}))
		assert.Zero(t, buf.Len())
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"json", FormatJSON, false},
		{"msgpack", FormatMsgpack, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
