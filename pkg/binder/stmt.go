package binder

import (
	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/narrowing"
)

func (b *binder) bindBlock(stmts []ast.Stmt) {
	for _, s := range stmts {
		if s == nil {
			b.fail(nil, "nil statement")
			return
		}
		b.bindStmt(s)
	}
}

// bindStmt dispatches on the statement kind. The flow node in effect when
// the statement starts is attached to it.
func (b *binder) bindStmt(stmt ast.Stmt) {
	b.g.SetFlowNode(stmt, b.current)

	switch s := stmt.(type) {
	case *ast.ExprStmt:
		b.bindExpr(s.Value)
	case *ast.Assign:
		b.bindAssign(s)
	case *ast.AnnAssign:
		b.bindAnnAssign(s)
	case *ast.AugAssign:
		b.bindExpr(s.Target)
		b.bindExpr(s.Value)
		b.bindTarget(s.Target, s)
	case *ast.Delete:
		for _, t := range s.Targets {
			b.bindTargetContainer(t)
			b.createAssignment(t, s, true)
		}
	case *ast.If:
		b.bindIf(s)
	case *ast.While:
		b.bindWhile(s)
	case *ast.For:
		b.bindFor(s)
	case *ast.Try:
		b.bindTry(s)
	case *ast.With:
		b.bindWith(s)
	case *ast.Match:
		b.bindMatch(s)
	case *ast.FunctionDef:
		b.bindFunctionDef(s)
	case *ast.ClassDef:
		b.bindClassDef(s)
	case *ast.Return:
		b.bindReturn(s)
	case *ast.Raise:
		b.bindRaise(s)
	case *ast.Break:
		if len(b.loops) == 0 {
			b.fail(s, "'break' outside loop")
			return
		}
		b.addTo(b.loops[len(b.loops)-1].after, b.current)
		b.markDead()
	case *ast.Continue:
		if len(b.loops) == 0 {
			b.fail(s, "'continue' not properly in loop")
			return
		}
		if head := b.loops[len(b.loops)-1].head; head != flow.NoNode && !b.isUnreachable() {
			b.check(b.g.AddAntecedent(head, b.current))
		}
		b.markDead()
	case *ast.Pass:
	case *ast.Import:
		for _, alias := range s.Names {
			b.createAssignment(ast.At(ast.NewName(importBinding(alias)), s.Line), s, false)
		}
	case *ast.ImportFrom:
		b.bindImportFrom(s)
	case *ast.Assert:
		b.bindAssert(s)
	case *ast.Global:
		for _, n := range s.Names {
			b.scope.Globals[n] = true
		}
	case *ast.Nonlocal:
		if b.scope.Kind == flow.ScopeModule {
			b.fail(s, "nonlocal declaration not allowed at module level")
			return
		}
		for _, n := range s.Names {
			b.scope.Nonlocals[n] = true
		}
	default:
		b.fail(stmt, "unsupported statement %T", stmt)
	}
}

// importBinding returns the local name an import binds: the alias, or the
// first component of a dotted module name.
func importBinding(a ast.Alias) string {
	if a.AsName != "" {
		return a.AsName
	}
	for i := 0; i < len(a.Name); i++ {
		if a.Name[i] == '.' {
			return a.Name[:i]
		}
	}
	return a.Name
}

func (b *binder) bindAssign(s *ast.Assign) {
	if len(s.Targets) == 0 || s.Value == nil {
		b.fail(s, "assignment without target or value")
		return
	}
	b.bindExpr(s.Value)
	for _, t := range s.Targets {
		b.bindTarget(t, s)
	}
	if len(s.Targets) == 1 {
		if name, ok := s.Targets[0].(*ast.Name); ok && isNarrowingTest(s.Value) {
			b.scope.Aliases[name.ID] = s.Value
		}
	}
}

// isNarrowingTest reports whether an expression bound to a name can later
// be reused as an aliased condition.
func isNarrowingTest(e ast.Expr) bool {
	switch e := e.(type) {
	case *ast.Compare:
		return len(narrowing.SubjectKeys(e)) > 0
	case *ast.Call:
		return len(narrowing.SubjectKeys(e)) > 0
	case *ast.UnaryOp:
		return e.Op == "not" && isNarrowingTest(e.Operand)
	}
	return false
}

func (b *binder) bindAnnAssign(s *ast.AnnAssign) {
	if s.Target == nil || s.Annotation == nil {
		b.fail(s, "annotated assignment without target or annotation")
		return
	}
	if s.Value != nil {
		b.bindExpr(s.Value)
		b.bindTarget(s.Target, s)
		return
	}
	b.bindTargetContainer(s.Target)
	if name, ok := s.Target.(*ast.Name); ok {
		b.declareLocal(name.ID)
	}
	if b.isUnreachable() {
		return
	}
	b.appendNode(&flow.VariableAnnotation{Target: s.Target, Annotation: s.Annotation})
}

// bindTarget creates assignment nodes for every reference written by an
// assignment target, unpacking tuples and lists.
func (b *binder) bindTarget(target ast.Expr, source ast.Node) {
	switch t := target.(type) {
	case *ast.Tuple:
		for _, e := range t.Elts {
			b.bindTarget(e, source)
		}
	case *ast.List:
		for _, e := range t.Elts {
			b.bindTarget(e, source)
		}
	case *ast.Starred:
		b.bindTarget(t.Value, source)
	case *ast.Name:
		b.createAssignment(t, source, false)
	case *ast.Attribute, *ast.Subscript:
		b.bindTargetContainer(t)
		b.createAssignment(t, source, false)
	case nil:
		b.fail(source, "nil assignment target")
	default:
		b.fail(target, "cannot assign to %s", ast.Format(target))
	}
}

// bindTargetContainer evaluates the object and index parts of an
// attribute or subscript target.
func (b *binder) bindTargetContainer(target ast.Expr) {
	switch t := target.(type) {
	case *ast.Attribute:
		b.bindExpr(t.Value)
	case *ast.Subscript:
		b.bindExpr(t.Value)
		b.bindExpr(t.Index)
	}
}

func (b *binder) bindIf(s *ast.If) {
	if s.Test == nil {
		b.fail(s, "if statement without test")
		return
	}
	thenLabel := newLabel(flow.NoNode)
	elseLabel := newLabel(flow.NoNode)
	postIf := newLabel(b.current)

	b.pushTracker()
	b.bindCondition(s.Test, thenLabel, elseLabel)

	b.current = b.finishLabel(thenLabel)
	b.bindBlock(s.Body)
	b.addTo(postIf, b.current)

	b.current = b.finishLabel(elseLabel)
	if len(s.OrElse) > 0 {
		b.bindBlock(s.OrElse)
	} else {
		b.bindNeverCondition(s.Test, false)
	}
	b.addTo(postIf, b.current)

	postIf.affected = b.popTracker()
	b.mergeTracked(postIf.affected)
	b.current = b.finishLabel(postIf)
}

// mergeTracked propagates keys collected by a finished tracker to the
// trackers still open around it.
func (b *binder) mergeTracked(keys flow.KeySet) {
	for _, t := range b.trackers {
		t.Merge(keys)
	}
}

// createLoopLabel starts a loop at the current node. A loop entered from
// dead code gets no label.
func (b *binder) createLoopLabel() (flow.NodeID, *flow.LoopLabel) {
	if b.isUnreachable() {
		return flow.NoNode, nil
	}
	lbl := &flow.LoopLabel{}
	id := b.g.Add(b.scope.ID, lbl)
	b.check(b.g.AddAntecedent(id, b.current))
	return id, lbl
}

func (b *binder) closeLoop(id flow.NodeID, lbl *flow.LoopLabel, affected flow.KeySet) {
	if lbl == nil {
		return
	}
	if !b.isUnreachable() {
		b.check(b.g.AddAntecedent(id, b.current))
	}
	lbl.Affected = affected
	b.g.Seal(id)
}

func (b *binder) bindWhile(s *ast.While) {
	if s.Test == nil {
		b.fail(s, "while statement without test")
		return
	}
	preLoop := b.current
	postWhile := newLabel(preLoop)
	thenLabel := newLabel(flow.NoNode)
	elseLabel := newLabel(flow.NoNode)

	b.pushTracker()
	headID, head := b.createLoopLabel()
	if head != nil {
		b.current = headID
	}
	b.bindCondition(s.Test, thenLabel, elseLabel)

	b.current = b.finishLabel(thenLabel)
	b.loops = append(b.loops, loopTarget{head: headID, after: postWhile})
	b.bindBlock(s.Body)
	b.loops = b.loops[:len(b.loops)-1]
	affected := b.popTracker()
	b.closeLoop(headID, head, affected)

	b.pushTracker()
	b.current = b.finishLabel(elseLabel)
	b.bindBlock(s.OrElse)
	b.addTo(postWhile, b.current)
	elseKeys := b.popTracker()

	postWhile.affected = make(flow.KeySet)
	postWhile.affected.Merge(affected)
	postWhile.affected.Merge(elseKeys)
	b.mergeTracked(postWhile.affected)
	b.current = b.finishLabel(postWhile)
}

func (b *binder) bindFor(s *ast.For) {
	if s.Target == nil || s.Iter == nil {
		b.fail(s, "for statement without target or iterable")
		return
	}
	b.bindExpr(s.Iter)
	preLoop := b.current
	postFor := newLabel(preLoop)
	preElse := newLabel(flow.NoNode)

	b.pushTracker()
	headID, head := b.createLoopLabel()
	if head != nil {
		b.current = headID
	}
	b.addTo(preElse, b.current)
	b.bindTarget(s.Target, s)

	b.loops = append(b.loops, loopTarget{head: headID, after: postFor})
	b.bindBlock(s.Body)
	b.loops = b.loops[:len(b.loops)-1]
	affected := b.popTracker()
	b.closeLoop(headID, head, affected)

	b.pushTracker()
	b.current = b.finishLabel(preElse)
	b.bindBlock(s.OrElse)
	b.addTo(postFor, b.current)
	elseKeys := b.popTracker()

	postFor.affected = make(flow.KeySet)
	postFor.affected.Merge(affected)
	postFor.affected.Merge(elseKeys)
	b.mergeTracked(postFor.affected)
	b.current = b.finishLabel(postFor)
}

func (b *binder) bindReturn(s *ast.Return) {
	if b.scope.Kind != flow.ScopeFunction {
		b.fail(s, "'return' outside function")
		return
	}
	if s.Value != nil {
		b.bindExpr(s.Value)
	}
	if !b.isUnreachable() {
		b.scope.ReturnSites = append(b.scope.ReturnSites, b.current)
	}
	b.addTo(b.returnTarget, b.current)
	for _, t := range b.finallyTargets {
		b.addTo(t, b.current)
	}
	b.markDead()
}

func (b *binder) bindRaise(s *ast.Raise) {
	if s.Exc != nil {
		b.bindExpr(s.Exc)
	}
	if s.Cause != nil {
		b.bindExpr(s.Cause)
	}
	b.addExceptTargets(b.current)
	for _, t := range b.finallyTargets {
		b.addTo(t, b.current)
	}
	b.markDead()
}

// bindTry models try/except/else/finally. Every point inside the try body
// that may raise feeds the except clauses and, through a pre-finally gate,
// the finally clause. Code after the statement is reached through the
// post-finally node, which closes the gate.
func (b *binder) bindTry(s *ast.Try) {
	if len(s.Handlers) == 0 && len(s.Finally) == 0 {
		b.fail(s, "try statement without except or finally clause")
		return
	}
	preTry := b.current
	preFinally := newLabel(preTry)
	returnOrRaise := newLabel(flow.NoNode)

	handlers := make([]*pendingLabel, len(s.Handlers))
	targets := make([]*pendingLabel, 0, len(s.Handlers)+1)
	bare := false
	for i, h := range s.Handlers {
		handlers[i] = newLabel(flow.NoNode)
		targets = append(targets, handlers[i])
		if h.Type == nil {
			bare = true
		}
	}
	if !bare && len(s.Finally) > 0 {
		targets = append(targets, returnOrRaise)
	}
	for _, t := range targets {
		b.addTo(t, b.current)
	}
	if len(s.Finally) > 0 {
		b.finallyTargets = append(b.finallyTargets, returnOrRaise)
	}

	b.pushTracker()
	b.exceptTargets = append(b.exceptTargets, targets)
	b.bindBlock(s.Body)
	b.exceptTargets = b.exceptTargets[:len(b.exceptTargets)-1]

	if len(s.Finally) > 0 {
		b.exceptTargets = append(b.exceptTargets, []*pendingLabel{returnOrRaise})
	}
	b.bindBlock(s.OrElse)
	b.addTo(preFinally, b.current)

	for i, h := range s.Handlers {
		b.current = b.finishLabel(handlers[i])
		b.g.SetFlowNode(h, b.current)
		if h.Type != nil {
			b.bindExpr(h.Type)
		}
		if h.Name != "" {
			b.createAssignment(ast.At(ast.NewName(h.Name), h.Line), h, false)
		}
		b.bindBlock(h.Body)
		if h.Name != "" {
			b.createAssignment(ast.At(ast.NewName(h.Name), h.Line), h, true)
		}
		b.addTo(preFinally, b.current)
	}
	if len(s.Finally) > 0 {
		b.exceptTargets = b.exceptTargets[:len(b.exceptTargets)-1]
		b.finallyTargets = b.finallyTargets[:len(b.finallyTargets)-1]
	}

	normalReachable := len(preFinally.ants) > 0
	gate := flow.NoNode
	if len(s.Finally) > 0 {
		if rr := b.finishLabel(returnOrRaise); !b.isDeadNode(rr) {
			g := &flow.PreFinallyGate{}
			g.SetAntecedent(rr)
			gate = b.g.Add(b.scope.ID, g)
			b.addTo(preFinally, gate)
		}
	}

	preFinally.affected = b.popTracker()
	b.mergeTracked(preFinally.affected)
	b.current = b.finishLabel(preFinally)

	if len(s.Finally) == 0 {
		return
	}
	b.bindBlock(s.Finally)
	switch {
	case !normalReachable:
		b.markDead()
	case gate != flow.NoNode && !b.isUnreachable():
		b.appendNode(&flow.PostFinally{Gate: gate})
	}
}

func (b *binder) isDeadNode(id flow.NodeID) bool {
	_, ok := b.g.Node(id).(*flow.Unreachable)
	return ok
}

// bindWith models a with statement. Exceptions raised in the body reach
// two context-manager labels: one continues after the block when a manager
// swallows the exception, the other propagates it when none does.
func (b *binder) bindWith(s *ast.With) {
	contexts := make([]ast.Expr, 0, len(s.Items))
	for _, item := range s.Items {
		if item.Context == nil {
			b.fail(s, "with item without context expression")
			return
		}
		b.bindExpr(item.Context)
		contexts = append(contexts, item.Context)
		if item.Target != nil {
			b.bindTarget(item.Target, s)
		}
	}

	swallowed := newLabel(flow.NoNode)
	propagated := newLabel(flow.NoNode)
	b.addTo(swallowed, b.current)
	b.addTo(propagated, b.current)
	postWith := newLabel(b.current)

	b.pushTracker()
	b.exceptTargets = append(b.exceptTargets, []*pendingLabel{swallowed, propagated})
	b.bindBlock(s.Body)
	b.exceptTargets = b.exceptTargets[:len(b.exceptTargets)-1]
	b.addTo(postWith, b.current)

	if id := b.finishContextManager(swallowed, contexts, s.Async, false); id != flow.NoNode {
		b.addTo(postWith, id)
	}
	if id := b.finishContextManager(propagated, contexts, s.Async, true); id != flow.NoNode {
		b.addExceptTargets(id)
		for _, t := range b.finallyTargets {
			b.addTo(t, id)
		}
	}

	postWith.affected = b.popTracker()
	b.mergeTracked(postWith.affected)
	b.current = b.finishLabel(postWith)
}

func (b *binder) finishContextManager(p *pendingLabel, contexts []ast.Expr, async, block bool) flow.NodeID {
	if len(p.ants) == 0 {
		return flow.NoNode
	}
	id := b.g.Add(b.scope.ID, &flow.PostContextManager{
		Contexts:        contexts,
		Async:           async,
		BlockIfSwallows: block,
	})
	for _, a := range p.ants {
		b.check(b.g.AddAntecedent(id, a))
	}
	b.g.Seal(id)
	return id
}

// bindMatch chains the case arms: each arm is entered through a positive
// pattern node, and the next arm through the negative node of the previous
// one. A refutable last arm leaves an exhausted-match fallthrough.
func (b *binder) bindMatch(s *ast.Match) {
	if s.Subject == nil {
		b.fail(s, "match statement without subject")
		return
	}
	b.bindExpr(s.Subject)
	postMatch := newLabel(b.current)

	b.pushTracker()
	for _, k := range matchSubjectKeys(s.Subject) {
		b.markAffected(k)
	}

	for _, c := range s.Cases {
		if c.Pattern == nil {
			b.fail(c, "case without pattern")
			return
		}
		caseInput := b.current

		if !b.isUnreachable() {
			b.appendNode(&flow.PatternNarrow{Subject: s.Subject, Case: c, Positive: true})
		}
		b.g.SetFlowNode(c, b.current)
		b.bindPatternCaptures(c.Pattern)

		guardFailed := flow.NoNode
		if c.Guard != nil {
			thenLabel := newLabel(flow.NoNode)
			elseLabel := newLabel(flow.NoNode)
			b.bindCondition(c.Guard, thenLabel, elseLabel)
			guardFailed = b.finishLabel(elseLabel)
			b.current = b.finishLabel(thenLabel)
		}
		b.bindBlock(c.Body)
		b.addTo(postMatch, b.current)

		b.current = caseInput
		if c.Guard == nil && ast.IsIrrefutable(c.Pattern) {
			b.markDead()
			continue
		}
		if !b.isUnreachable() {
			b.appendNode(&flow.PatternNarrow{Subject: s.Subject, Case: c, Positive: false})
		}
		if guardFailed != flow.NoNode {
			next := newLabel(flow.NoNode)
			b.addTo(next, b.current)
			b.addTo(next, guardFailed)
			b.current = b.finishLabel(next)
		}
	}

	if !b.isUnreachable() {
		b.appendNode(&flow.ExhaustedMatch{Subject: s.Subject, Match: s})
	}
	b.addTo(postMatch, b.current)

	postMatch.affected = b.popTracker()
	b.mergeTracked(postMatch.affected)
	b.current = b.finishLabel(postMatch)
}

// matchSubjectKeys returns the references a match statement narrows: the
// subject itself, the elements of a tuple subject, and the object of a
// discriminating attribute subject.
func matchSubjectKeys(subject ast.Expr) []flow.Key {
	var keys []flow.Key
	if k, ok := flow.KeyOf(subject); ok {
		keys = append(keys, k)
		keys = append(keys, k.Prefixes()...)
	}
	if t, ok := subject.(*ast.Tuple); ok {
		for _, e := range t.Elts {
			if k, ok := flow.KeyOf(e); ok {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// bindPatternCaptures creates assignments for every name a pattern binds.
func (b *binder) bindPatternCaptures(p ast.Pattern) {
	ast.Inspect(p, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.MatchAs:
			if n.Name != "" {
				b.g.SetFlowNode(n, b.current)
				b.createAssignment(ast.At(ast.NewName(n.Name), n.Line), n, false)
			}
		case *ast.MatchStar:
			if n.Name != "" {
				b.g.SetFlowNode(n, b.current)
				b.createAssignment(ast.At(ast.NewName(n.Name), n.Line), n, false)
			}
		case *ast.MatchMapping:
			if n.Rest != "" {
				b.g.SetFlowNode(n, b.current)
				b.createAssignment(ast.At(ast.NewName(n.Rest), n.Line), n, false)
			}
		case ast.Expr:
			b.bindExpr(n)
			return false
		}
		return true
	})
}

func (b *binder) bindFunctionDef(s *ast.FunctionDef) {
	for _, d := range s.Decorators {
		b.bindExpr(d)
	}
	for _, p := range s.Params {
		if p.Default != nil {
			b.bindExpr(p.Default)
		}
	}

	outer := b.save()
	fs := b.g.NewScope(flow.ScopeFunction, s.Name, s, b.scope.ID)
	b.enterScope(fs)
	for _, p := range s.Params {
		fs.Params = append(fs.Params, p.Name)
		b.declareLocal(p.Name)
	}
	b.bindBlock(s.Body)
	b.finishScope()
	b.restore(outer)

	b.createAssignment(ast.At(ast.NewName(s.Name), s.Line), s, false)
}

func (b *binder) bindClassDef(s *ast.ClassDef) {
	for _, d := range s.Decorators {
		b.bindExpr(d)
	}
	for _, base := range s.Bases {
		b.bindExpr(base)
	}
	for _, kw := range s.Keywords {
		b.bindExpr(kw.Value)
	}

	outer := b.save()
	cs := b.g.NewScope(flow.ScopeClass, s.Name, s, b.scope.ID)
	b.enterScope(cs)
	b.bindBlock(s.Body)
	b.finishScope()
	b.restore(outer)

	b.createAssignment(ast.At(ast.NewName(s.Name), s.Line), s, false)
}

func (b *binder) bindImportFrom(s *ast.ImportFrom) {
	if s.Wildcard {
		if b.isUnreachable() {
			return
		}
		b.appendNode(&flow.WildcardImport{Module: s.Module})
		return
	}
	for _, alias := range s.Names {
		name := alias.AsName
		if name == "" {
			name = alias.Name
		}
		b.createAssignment(ast.At(ast.NewName(name), s.Line), s, false)
	}
}

func (b *binder) bindAssert(s *ast.Assert) {
	if s.Test == nil {
		b.fail(s, "assert without test")
		return
	}
	passed := newLabel(flow.NoNode)
	failed := newLabel(flow.NoNode)
	b.bindCondition(s.Test, passed, failed)

	b.current = b.finishLabel(failed)
	if s.Msg != nil {
		b.bindExpr(s.Msg)
	}
	b.addExceptTargets(b.current)
	for _, t := range b.finallyTargets {
		b.addTo(t, b.current)
	}
	b.current = b.finishLabel(passed)
}
