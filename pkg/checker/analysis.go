package checker

import (
	"context"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/engine"
	"github.com/l3aro/flowtype/pkg/evaluator"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/types"
)

// analysis collects the findings of one file.
type analysis struct {
	ctx      context.Context
	path     string
	ev       *evaluator.Evaluator
	findings []Finding
}

// complexity reports the scopes the engine refuses to analyze.
func (a *analysis) complexity() {
	limits := a.ev.Session().Options().Limits
	for _, s := range a.ev.Graph().Scopes() {
		if limits.ScopeTooComplex(s) {
			a.add(s.Node, KindTooComplex, SeverityWarning,
				"%s %q is too complex to analyze (complexity %d, limit %d)",
				s.Kind, s.Name, s.Complexity, limits.MaxScopeComplexity)
		}
	}
}

// unreachable reports the first unreachable statement of every block and
// skips the rest of the block. Code excluded by a static condition, such as
// a TYPE_CHECKING or platform test, is not reported.
func (a *analysis) unreachable(block []ast.Stmt) {
	g := a.ev.Graph()
	for _, s := range block {
		if a.ctx.Err() != nil {
			return
		}
		at, ok := g.FlowNode(s)
		if !ok {
			continue
		}
		r := a.ev.Session().Reachable(a.ctx, at, flow.NoNode, false)
		switch r.Status {
		case engine.UnreachableStaticCondition:
			return
		case engine.UnreachableStructural:
			a.add(s, KindUnreachable, SeverityInfo, "code is unreachable")
			return
		case engine.UnreachableByAnalysis:
			a.add(s, KindUnreachable, SeverityInfo, "code is unreachable: a preceding call never returns or a test can never pass")
			return
		}
		for _, sub := range childBlocks(s) {
			a.unreachable(sub)
		}
	}
}

func childBlocks(s ast.Stmt) [][]ast.Stmt {
	switch s := s.(type) {
	case *ast.If:
		return [][]ast.Stmt{s.Body, s.OrElse}
	case *ast.While:
		return [][]ast.Stmt{s.Body, s.OrElse}
	case *ast.For:
		return [][]ast.Stmt{s.Body, s.OrElse}
	case *ast.With:
		return [][]ast.Stmt{s.Body}
	case *ast.Try:
		out := [][]ast.Stmt{s.Body}
		for _, h := range s.Handlers {
			out = append(out, h.Body)
		}
		return append(out, s.OrElse, s.Finally)
	case *ast.Match:
		out := make([][]ast.Stmt, 0, len(s.Cases))
		for _, c := range s.Cases {
			out = append(out, c.Body)
		}
		return out
	case *ast.FunctionDef:
		return [][]ast.Stmt{s.Body}
	case *ast.ClassDef:
		return [][]ast.Stmt{s.Body}
	}
	return nil
}

// references reports names read where they are unbound on every path, or
// on some.
func (a *analysis) references(mod *ast.Module) {
	g := a.ev.Graph()
	stores := make(map[ast.Expr]bool)
	for id := 0; id < g.Len(); id++ {
		if as, ok := g.Node(flow.NodeID(id)).(*flow.Assignment); ok {
			stores[as.Target] = true
		}
	}

	ast.Inspect(mod, func(n ast.Node) bool {
		name, ok := n.(*ast.Name)
		if !ok || stores[name] || a.ctx.Err() != nil {
			return true
		}
		at, ok := g.FlowNode(name)
		if !ok {
			return true
		}
		r, err := a.ev.Narrow(a.ctx, name, at)
		if err != nil || r.Aborted {
			return true
		}
		switch {
		case types.IsUnbound(r.Type):
			a.add(name, KindUnbound, SeverityError, "%q is unbound", name.ID)
		case types.IsPossiblyUnbound(r.Type):
			a.add(name, KindPossiblyUnbound, SeverityWarning, "%q is possibly unbound", name.ID)
		}
		return true
	})
}

// reveals reports the type of the argument of every reveal_type call.
func (a *analysis) reveals(mod *ast.Module) {
	g := a.ev.Graph()
	ast.Inspect(mod, func(n ast.Node) bool {
		call, ok := n.(*ast.Call)
		if !ok || !isReveal(call) || len(call.Args) == 0 || a.ctx.Err() != nil {
			return true
		}
		arg := call.Args[0]
		var t types.Type
		complete := true
		at, hasNode := g.FlowNode(arg)
		if _, isRef := flow.KeyOf(arg); isRef && hasNode {
			r, err := a.ev.Narrow(a.ctx, arg, at)
			if err != nil {
				return true
			}
			t, complete = r.Type, r.Complete
		} else {
			t = a.ev.ExprType(a.ctx, arg)
		}
		t = types.RemoveUnbound(t)

		msg := "Type of %q is %q"
		args := []interface{}{ast.Format(arg), t.String()}
		if tv, ok := t.(*types.TypeVar); ok && len(tv.Constraints) > 0 && hasNode {
			left := a.ev.Session().NarrowConstrainedTypeVariable(a.ctx, at, tv)
			var narrowed types.Type = types.Never
			if len(left) > 0 {
				narrowed = types.Union(left...)
			}
			msg += ", constrained to %q"
			args = append(args, narrowed.String())
		}
		if !complete {
			msg += " (incomplete)"
		}
		a.add(call, KindRevealType, SeverityInfo, msg, args...)
		return true
	})
}

// isReveal matches reveal_type(x) and typing.reveal_type(x).
func isReveal(c *ast.Call) bool {
	switch f := c.Func.(type) {
	case *ast.Name:
		return f.ID == "reveal_type"
	case *ast.Attribute:
		mod, ok := f.Value.(*ast.Name)
		return ok && f.Attr == "reveal_type" && (mod.ID == "typing" || mod.ID == "typing_extensions")
	}
	return false
}
