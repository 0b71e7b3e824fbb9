package evaluator

import (
	"context"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/types"
)

// ExprType evaluates x at the flow node the binder attached to it.
func (e *Evaluator) ExprType(ctx context.Context, x ast.Expr) types.Type {
	switch x := x.(type) {
	case nil:
		return types.Unknown
	case *ast.Constant:
		return e.constant(x)
	case *ast.Name, *ast.Attribute, *ast.Subscript, *ast.NamedExpr:
		if _, ok := flow.KeyOf(x); ok {
			if at, ok := e.g.FlowNode(x); ok {
				return e.ReferenceType(ctx, x, at)
			}
		}
		return e.unboundRef(ctx, x)
	case *ast.Call:
		return e.callType(ctx, x)
	case *ast.Compare:
		return types.NewInstance(e.b.Bool)
	case *ast.BoolOp:
		return e.boolOp(ctx, x)
	case *ast.UnaryOp:
		return e.unaryOp(ctx, x)
	case *ast.BinOp:
		return e.binOp(e.ExprType(ctx, x.Left), x.Op, e.ExprType(ctx, x.Right))
	case *ast.IfExp:
		return types.Union(e.ExprType(ctx, x.Body), e.ExprType(ctx, x.OrElse))
	case *ast.Tuple:
		elems := make([]types.Type, 0, len(x.Elts))
		for _, el := range x.Elts {
			if _, ok := el.(*ast.Starred); ok {
				return &types.Tuple{Elems: []types.Type{types.Unknown}, Unbounded: true}
			}
			elems = append(elems, e.ExprType(ctx, el))
		}
		return &types.Tuple{Elems: elems}
	case *ast.List:
		return types.NewInstance(e.b.List, e.elementsOf(ctx, x.Elts))
	case *ast.Dict:
		keys := make([]ast.Expr, 0, len(x.Keys))
		for _, k := range x.Keys {
			if k != nil {
				keys = append(keys, k)
			}
		}
		return types.NewInstance(e.b.Dict, e.elementsOf(ctx, keys), e.elementsOf(ctx, x.Values))
	case *ast.Lambda:
		params := make([]types.Param, len(x.Params))
		for i, p := range x.Params {
			params[i] = types.Param{Name: p.Name}
		}
		return &types.Function{Name: "<lambda>", Params: params, Return: types.Unknown}
	}
	return types.Unknown
}

// unboundRef types a reference the binder did not attach a flow node to.
func (e *Evaluator) unboundRef(ctx context.Context, x ast.Expr) types.Type {
	switch x := x.(type) {
	case *ast.Name:
		return e.builtinName(x.ID)
	case *ast.Attribute:
		return e.member(ctx, e.ExprType(ctx, x.Value), x.Attr)
	case *ast.Subscript:
		return e.subscript(e.ExprType(ctx, x.Value), x.Index)
	case *ast.NamedExpr:
		return e.ExprType(ctx, x.Value)
	}
	return types.Unknown
}

func (e *Evaluator) constant(c *ast.Constant) types.Type {
	switch c.Kind {
	case ast.ConstNone:
		return types.None
	case ast.ConstBool:
		v, _ := c.Value.(bool)
		return e.b.BoolLiteral(v)
	case ast.ConstInt:
		v, _ := c.Value.(int64)
		return e.b.IntLiteral(v)
	case ast.ConstStr:
		v, _ := c.Value.(string)
		return e.b.StrLiteral(v)
	case ast.ConstFloat:
		return types.NewInstance(e.b.Float)
	case ast.ConstBytes:
		return types.NewInstance(e.b.Bytes)
	}
	return types.Unknown
}

// elementsOf is the widened union of the element types of a display.
func (e *Evaluator) elementsOf(ctx context.Context, elts []ast.Expr) types.Type {
	if len(elts) == 0 {
		return types.Unknown
	}
	parts := make([]types.Type, 0, len(elts))
	for _, el := range elts {
		if _, ok := el.(*ast.Starred); ok {
			parts = append(parts, types.Unknown)
			continue
		}
		parts = append(parts, e.widen(e.ExprType(ctx, el)))
	}
	return types.Union(parts...)
}

// widen replaces literals by instances of their class.
func (e *Evaluator) widen(t types.Type) types.Type {
	return types.MapSubtypes(t, func(m types.Type) types.Type {
		if lit, ok := m.(*types.Literal); ok {
			return types.NewInstance(lit.Class)
		}
		return m
	})
}

func (e *Evaluator) boolOp(ctx context.Context, x *ast.BoolOp) types.Type {
	parts := make([]types.Type, 0, len(x.Values))
	for i, v := range x.Values {
		t := e.ExprType(ctx, v)
		if i == len(x.Values)-1 {
			parts = append(parts, t)
			break
		}
		// An operand is the result only when it short-circuits.
		if x.Op == "and" {
			parts = append(parts, e.falsyPart(t))
		} else {
			parts = append(parts, e.truthyPart(t))
		}
	}
	return types.Union(parts...)
}

func (e *Evaluator) truthyPart(t types.Type) types.Type {
	return types.MapSubtypes(t, func(m types.Type) types.Type {
		if !types.CanBeTruthy(m) {
			return nil
		}
		return m
	})
}

func (e *Evaluator) falsyPart(t types.Type) types.Type {
	return types.MapSubtypes(t, func(m types.Type) types.Type {
		if !types.CanBeFalsy(m) {
			return nil
		}
		return m
	})
}

func (e *Evaluator) unaryOp(ctx context.Context, x *ast.UnaryOp) types.Type {
	if x.Op == "not" {
		return types.NewInstance(e.b.Bool)
	}
	t := e.ExprType(ctx, x.Operand)
	return types.MapSubtypes(t, func(m types.Type) types.Type {
		lit, ok := m.(*types.Literal)
		if !ok {
			if c, ok := e.b.ClassOf(m); ok && (c == e.b.Int || c == e.b.Float || c == e.b.Complex) {
				return m
			}
			return types.Unknown
		}
		v, isInt := lit.Value.(int64)
		if b, isBool := lit.Value.(bool); isBool {
			v, isInt = 0, true
			if b {
				v = 1
			}
		}
		if !isInt {
			return types.Unknown
		}
		switch x.Op {
		case "-":
			return e.b.IntLiteral(-v)
		case "+":
			return e.b.IntLiteral(v)
		case "~":
			return e.b.IntLiteral(^v)
		}
		return types.NewInstance(e.b.Int)
	})
}

// binOp types arithmetic on the builtin numeric and string classes.
func (e *Evaluator) binOp(left types.Type, op string, right types.Type) types.Type {
	l, lok := e.arithClass(left)
	r, rok := e.arithClass(right)
	if !lok || !rok {
		return types.Unknown
	}
	switch {
	case l == e.b.Str && r == e.b.Str && op == "+":
		return types.NewInstance(e.b.Str)
	case l == e.b.Str && op == "%":
		return types.NewInstance(e.b.Str)
	case (l == e.b.Str && r == e.b.Int) || (l == e.b.Int && r == e.b.Str):
		if op == "*" {
			return types.NewInstance(e.b.Str)
		}
	case l == e.b.Bytes && r == e.b.Bytes && op == "+":
		return types.NewInstance(e.b.Bytes)
	case e.numeric(l) && e.numeric(r):
		if op == "/" {
			return types.NewInstance(e.b.Float)
		}
		if l == e.b.Float || r == e.b.Float {
			return types.NewInstance(e.b.Float)
		}
		return types.NewInstance(e.b.Int)
	}
	return types.Unknown
}

// arithClass returns the single builtin class of an operand.
func (e *Evaluator) arithClass(t types.Type) (*types.Class, bool) {
	var cls *types.Class
	for _, m := range types.Members(t) {
		c, ok := e.b.ClassOf(m)
		if !ok {
			return nil, false
		}
		if c == e.b.Bool {
			c = e.b.Int
		}
		if cls != nil && cls != c {
			return nil, false
		}
		cls = c
	}
	return cls, cls != nil
}

func (e *Evaluator) numeric(c *types.Class) bool {
	return c == e.b.Int || c == e.b.Float
}

// callType is the type of a call's result.
func (e *Evaluator) callType(ctx context.Context, c *ast.Call) types.Type {
	callee := e.ExprType(ctx, c.Func)
	return types.MapSubtypes(callee, func(m types.Type) types.Type {
		switch m := m.(type) {
		case *types.Function:
			return e.functionResult(ctx, c, m)
		case *types.ClassObject:
			if m.Class == e.b.Type && len(c.Args) == 1 {
				return e.classObjectOf(e.ExprType(ctx, c.Args[0]))
			}
			if m.Class == e.b.Bool {
				return types.NewInstance(e.b.Bool)
			}
			return types.NewInstance(m.Class)
		case *types.Instance:
			if fn, ok := m.Class.LookupMethod("__call__"); ok {
				return e.functionResult(ctx, c, fn)
			}
		}
		return types.Unknown
	})
}

func (e *Evaluator) functionResult(ctx context.Context, c *ast.Call, fn *types.Function) types.Type {
	switch e.std.specials[fn] {
	case specCast:
		if len(c.Args) > 0 {
			if at, ok := e.siteOf(c); ok {
				return e.annotation(ctx, c.Args[0], at)
			}
		}
		return types.Unknown
	case specTypeVar:
		return e.typeVarFor(ctx, c)
	case specRevealType:
		if len(c.Args) > 0 {
			return e.ExprType(ctx, c.Args[0])
		}
		return types.Unknown
	}
	if fn.Guard != nil {
		return types.NewInstance(e.b.Bool)
	}
	if len(fn.Overloads) > 0 {
		rets := make([]types.Type, 0, len(fn.Overloads))
		for _, o := range fn.Overloads {
			rets = append(rets, e.returnOf(o))
		}
		return types.Union(rets...)
	}
	return e.returnOf(fn)
}

func (e *Evaluator) returnOf(fn *types.Function) types.Type {
	if fn.Return == nil {
		return types.Unknown
	}
	return fn.Return
}

// typeVarFor returns the type variable a `TypeVar("T", ...)` call creates.
// Each call site creates exactly one.
func (e *Evaluator) typeVarFor(ctx context.Context, c *ast.Call) types.Type {
	if tv, ok := e.typeVars[c]; ok {
		return tv
	}
	tv := &types.TypeVar{Name: "T"}
	if len(c.Args) > 0 {
		if s, ok := c.Args[0].(*ast.Constant); ok && s.Kind == ast.ConstStr {
			tv.Name, _ = s.Value.(string)
		}
	}
	e.typeVars[c] = tv
	at, ok := e.siteOf(c)
	if !ok {
		return tv
	}
	for _, a := range c.Args[1:] {
		tv.Constraints = append(tv.Constraints, e.annotation(ctx, a, at))
	}
	for _, kw := range c.Keywords {
		if kw.Name == "bound" {
			tv.Bound = e.annotation(ctx, kw.Value, at)
		}
	}
	return tv
}

// member is the type of attribute attr read from a value of type t.
func (e *Evaluator) member(ctx context.Context, t types.Type, attr string) types.Type {
	return types.MapSubtypes(t, func(m types.Type) types.Type {
		switch m := m.(type) {
		case *types.Module:
			if v, ok := m.Members[attr]; ok {
				return v
			}
			if sub, ok := e.std.modules[m.Name+"."+attr]; ok {
				return sub
			}
			return types.Unknown
		case *types.ClassObject:
			if v, ok := m.Class.LookupField(attr); ok {
				return v
			}
			if fn, ok := m.Class.LookupMethod(attr); ok {
				return fn
			}
			return types.Unknown
		}
		if m.Kind() == types.KindNone {
			return types.Unknown
		}
		c, ok := e.b.ClassOf(m)
		if !ok {
			return types.Unknown
		}
		if v, ok := c.LookupField(attr); ok {
			return v
		}
		if fn, ok := c.LookupMethod(attr); ok {
			return fn
		}
		return types.Unknown
	})
}

// subscript is the type of `t[index]`.
func (e *Evaluator) subscript(t types.Type, index ast.Expr) types.Type {
	return types.MapSubtypes(t, func(m types.Type) types.Type {
		switch m := m.(type) {
		case *types.ClassObject:
			// A generic alias such as list[int] or Generic[T].
			return m
		case *types.Tuple:
			if m.Unbounded {
				return m.Elems[0]
			}
			if i, ok := intIndex(index); ok {
				if i < 0 {
					i += int64(len(m.Elems))
				}
				if i >= 0 && i < int64(len(m.Elems)) {
					return m.Elems[i]
				}
				return types.Unknown
			}
			return types.Union(m.Elems...)
		case *types.Literal:
			if m.Class == e.b.Str {
				return types.NewInstance(e.b.Str)
			}
		case *types.Instance:
			if m.Class.TypedDict {
				if key, ok := strIndex(index); ok {
					if v, ok := m.Class.LookupField(key); ok {
						return v
					}
				}
				return types.Unknown
			}
			switch {
			case m.Class == e.b.Str:
				return types.NewInstance(e.b.Str)
			case m.Class == e.b.Bytes:
				return types.NewInstance(e.b.Int)
			case m.Class == e.b.Dict || m.Class.IsSubclassOf(e.b.Dict):
				if len(m.Args) == 2 {
					return m.Args[1]
				}
			case m.Class == e.b.List || m.Class == e.b.Tuple:
				if len(m.Args) == 1 {
					return m.Args[0]
				}
			}
			if fn, ok := m.Class.LookupMethod("__getitem__"); ok {
				return e.returnOf(fn)
			}
		}
		return types.Unknown
	})
}

func intIndex(x ast.Expr) (int64, bool) {
	switch x := x.(type) {
	case *ast.Constant:
		v, ok := x.Value.(int64)
		return v, ok && x.Kind == ast.ConstInt
	case *ast.UnaryOp:
		if x.Op == "-" {
			v, ok := intIndex(x.Operand)
			return -v, ok
		}
	}
	return 0, false
}

func strIndex(x ast.Expr) (string, bool) {
	c, ok := x.(*ast.Constant)
	if !ok || c.Kind != ast.ConstStr {
		return "", false
	}
	s, ok := c.Value.(string)
	return s, ok
}

// iterElem is the type produced by iterating over a value of type t.
func (e *Evaluator) iterElem(t types.Type) types.Type {
	return types.MapSubtypes(t, func(m types.Type) types.Type {
		switch m := m.(type) {
		case *types.Tuple:
			return types.Union(m.Elems...)
		case *types.Literal:
			if m.Class == e.b.Str {
				return types.NewInstance(e.b.Str)
			}
		case *types.Instance:
			switch m.Class {
			case e.b.Str:
				return types.NewInstance(e.b.Str)
			case e.b.Bytes, e.b.Range:
				return types.NewInstance(e.b.Int)
			}
			if len(m.Args) > 0 {
				return m.Args[0]
			}
		}
		return types.Unknown
	})
}

// unpackElem is the type of element i of n when t is unpacked into a
// target list whose starred entry, if any, is at star.
func (e *Evaluator) unpackElem(t types.Type, i, n, star int) types.Type {
	return types.MapSubtypes(t, func(m types.Type) types.Type {
		tup, ok := m.(*types.Tuple)
		if !ok || tup.Unbounded {
			return e.iterElem(m)
		}
		switch {
		case star < 0 && len(tup.Elems) == n:
			return tup.Elems[i]
		case star >= 0 && i < star && i < len(tup.Elems):
			return tup.Elems[i]
		case star >= 0 && i > star && len(tup.Elems)-(n-i) >= 0:
			return tup.Elems[len(tup.Elems)-(n-i)]
		}
		return types.Unknown
	})
}

// starElems is the list a starred target at index star of n collects.
func (e *Evaluator) starElems(t types.Type, star, n int) types.Type {
	elem := types.MapSubtypes(t, func(m types.Type) types.Type {
		tup, ok := m.(*types.Tuple)
		if !ok || tup.Unbounded {
			return e.iterElem(m)
		}
		end := len(tup.Elems) - (n - star - 1)
		if end < star {
			return types.Unknown
		}
		if end == star {
			return nil
		}
		return types.Union(tup.Elems[star:end]...)
	})
	if types.IsNever(elem) {
		elem = types.Unknown
	}
	return types.NewInstance(e.b.List, e.widen(elem))
}
