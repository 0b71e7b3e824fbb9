package evaluator

import (
	"context"

	"github.com/l3aro/flowtype/pkg/ast"
	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/pyparse"
	"github.com/l3aro/flowtype/pkg/types"
)

// guardAnnotation is the parsed return annotation of a user-defined type
// guard.
type guardAnnotation struct {
	narrowed types.Type
	strict   bool
}

// annotation evaluates a type annotation written at flow node at.
func (e *Evaluator) annotation(ctx context.Context, x ast.Expr, at flow.NodeID) types.Type {
	switch x := x.(type) {
	case nil:
		return types.Unknown
	case *ast.Constant:
		switch x.Kind {
		case ast.ConstNone:
			return types.None
		case ast.ConstStr:
			return e.forwardRef(ctx, x, at)
		}
		return types.Unknown
	case *ast.Name, *ast.Attribute:
		if form, ok := typingForm(x); ok {
			return e.bareForm(ctx, form, at)
		}
		return e.instanceOf(e.valueAt(ctx, x, at))
	case *ast.Subscript:
		return e.subscriptAnnotation(ctx, x, at)
	case *ast.BinOp:
		if x.Op == "|" {
			return types.Union(e.annotation(ctx, x.Left, at), e.annotation(ctx, x.Right, at))
		}
	}
	return types.Unknown
}

// forwardRef parses a string annotation and evaluates it in place.
func (e *Evaluator) forwardRef(ctx context.Context, c *ast.Constant, at flow.NodeID) types.Type {
	src, _ := c.Value.(string)
	x, err := pyparse.ParseExpr(src)
	if err != nil {
		e.log.Debug("unparsable forward reference", "annotation", src, "error", err)
		return types.Unknown
	}
	if s, ok := x.(*ast.Constant); ok && s.Kind == ast.ConstStr {
		return types.Unknown
	}
	return e.annotation(ctx, x, at)
}

// typingForm recognizes `Form` and `typing.Form` for the special forms.
func typingForm(x ast.Expr) (string, bool) {
	var name string
	switch x := x.(type) {
	case *ast.Name:
		name = x.ID
	case *ast.Attribute:
		mod, ok := x.Value.(*ast.Name)
		if !ok || (mod.ID != "typing" && mod.ID != "typing_extensions" && mod.ID != "t") {
			return "", false
		}
		name = x.Attr
	default:
		return "", false
	}
	for _, f := range typingForms {
		if f == name {
			return name, true
		}
	}
	return "", false
}

// bareForm evaluates a special form used without subscript.
func (e *Evaluator) bareForm(ctx context.Context, form string, at flow.NodeID) types.Type {
	switch form {
	case "Any":
		return types.Any
	case "NoReturn", "Never":
		return types.Never
	case "LiteralString", "Text":
		return types.NewInstance(e.b.Str)
	case "List":
		return types.NewInstance(e.b.List)
	case "Dict":
		return types.NewInstance(e.b.Dict)
	case "Set", "FrozenSet":
		return types.NewInstance(e.b.Set)
	case "Tuple":
		return &types.Tuple{Elems: []types.Type{types.Unknown}, Unbounded: true}
	case "Type":
		return &types.ClassObject{Class: e.b.Object}
	case "Self":
		if c := e.enclosingClass(ctx, at); c != nil {
			return types.NewInstance(c)
		}
	}
	return types.Unknown
}

func (e *Evaluator) subscriptAnnotation(ctx context.Context, x *ast.Subscript, at flow.NodeID) types.Type {
	args := []ast.Expr{x.Index}
	if t, ok := x.Index.(*ast.Tuple); ok && len(t.Elts) > 0 {
		args = t.Elts
	}
	each := func() []types.Type {
		out := make([]types.Type, len(args))
		for i, a := range args {
			out[i] = e.annotation(ctx, a, at)
		}
		return out
	}

	head := x.Value
	if form, ok := typingForm(head); ok {
		switch form {
		case "Optional":
			return types.Union(e.annotation(ctx, args[0], at), types.None)
		case "Union":
			return types.Union(each()...)
		case "Literal":
			return e.literalAnnotation(ctx, args, at)
		case "Final", "ClassVar", "Required", "NotRequired", "ReadOnly":
			return e.annotation(ctx, args[0], at)
		case "Annotated":
			return e.annotation(ctx, args[0], at)
		case "TypeGuard", "TypeIs":
			return types.NewInstance(e.b.Bool)
		case "List":
			return types.NewInstance(e.b.List, e.annotation(ctx, args[0], at))
		case "Set", "FrozenSet":
			return types.NewInstance(e.b.Set, e.annotation(ctx, args[0], at))
		case "Dict":
			return types.NewInstance(e.b.Dict, each()...)
		case "Tuple":
			return e.tupleAnnotation(ctx, args, at)
		case "Type":
			return e.classObjectOf(e.annotation(ctx, args[0], at))
		}
		return types.Unknown
	}

	cls, ok := e.valueAt(ctx, head, at).(*types.ClassObject)
	if !ok {
		return types.Unknown
	}
	switch cls.Class {
	case e.b.Tuple:
		return e.tupleAnnotation(ctx, args, at)
	case e.b.Type:
		return e.classObjectOf(e.annotation(ctx, args[0], at))
	}
	return types.NewInstance(cls.Class, each()...)
}

// guardOf parses a TypeGuard[X] or TypeIs[X] return annotation.
func (e *Evaluator) guardOf(ctx context.Context, x ast.Expr, at flow.NodeID) (guardAnnotation, bool) {
	sub, ok := x.(*ast.Subscript)
	if !ok {
		return guardAnnotation{}, false
	}
	form, ok := typingForm(sub.Value)
	if !ok || (form != "TypeGuard" && form != "TypeIs") {
		return guardAnnotation{}, false
	}
	return guardAnnotation{narrowed: e.annotation(ctx, sub.Index, at), strict: form == "TypeIs"}, true
}

func (e *Evaluator) tupleAnnotation(ctx context.Context, args []ast.Expr, at flow.NodeID) types.Type {
	if len(args) == 2 {
		if c, ok := args[1].(*ast.Constant); ok && c.Kind == ast.ConstEllipsis {
			return &types.Tuple{Elems: []types.Type{e.annotation(ctx, args[0], at)}, Unbounded: true}
		}
	}
	if len(args) == 1 {
		if t, ok := args[0].(*ast.Tuple); ok && len(t.Elts) == 0 {
			return &types.Tuple{}
		}
	}
	elems := make([]types.Type, len(args))
	for i, a := range args {
		elems[i] = e.annotation(ctx, a, at)
	}
	return &types.Tuple{Elems: elems}
}

func (e *Evaluator) literalAnnotation(ctx context.Context, args []ast.Expr, at flow.NodeID) types.Type {
	parts := make([]types.Type, 0, len(args))
	for _, a := range args {
		switch a := a.(type) {
		case *ast.Constant:
			switch a.Kind {
			case ast.ConstInt, ast.ConstStr, ast.ConstBool, ast.ConstNone:
				parts = append(parts, e.constant(a))
				continue
			}
		case *ast.UnaryOp:
			if c, ok := a.Operand.(*ast.Constant); ok && a.Op == "-" && c.Kind == ast.ConstInt {
				v, _ := c.Value.(int64)
				parts = append(parts, e.b.IntLiteral(-v))
				continue
			}
		case *ast.Subscript:
			if form, ok := typingForm(a.Value); ok && form == "Literal" {
				parts = append(parts, e.annotation(ctx, a, at))
				continue
			}
		}
		parts = append(parts, types.Unknown)
	}
	return types.Union(parts...)
}

// instanceOf converts the value of an annotation expression to the type
// it denotes.
func (e *Evaluator) instanceOf(v types.Type) types.Type {
	return types.MapSubtypes(v, func(m types.Type) types.Type {
		switch m := m.(type) {
		case *types.ClassObject:
			if m.Class == e.b.NoneType {
				return types.None
			}
			return types.NewInstance(m.Class)
		case *types.TypeVar:
			return m
		}
		if m.Kind() == types.KindNone {
			return types.None
		}
		return types.Unknown
	})
}

// classObjectOf turns an instance annotation into type[C].
func (e *Evaluator) classObjectOf(t types.Type) types.Type {
	return types.MapSubtypes(t, func(m types.Type) types.Type {
		if c, ok := e.b.ClassOf(m); ok {
			if _, isClass := m.(*types.ClassObject); !isClass {
				return &types.ClassObject{Class: c}
			}
		}
		return types.Unknown
	})
}

// enclosingClass returns the class whose body, or one of whose methods,
// contains flow node at.
func (e *Evaluator) enclosingClass(ctx context.Context, at flow.NodeID) *types.Class {
	for s := e.g.ScopeOfNode(at); ; s = e.g.Scope(s.Parent) {
		switch n := s.Node.(type) {
		case *ast.ClassDef:
			return e.classType(ctx, n)
		case *ast.FunctionDef:
			if cd, ok := e.idx.methodOf[n]; ok {
				return e.classType(ctx, cd)
			}
		}
		if s.Parent == flow.NoScope {
			return nil
		}
	}
}
