package ast

// Constructors for expression nodes. Statements are plain struct literals.

func NewName(id string) *Name { return &Name{ID: id} }

func NewAttribute(value Expr, attr string) *Attribute {
	return &Attribute{Value: value, Attr: attr}
}

func NewSubscript(value, index Expr) *Subscript {
	return &Subscript{Value: value, Index: index}
}

func NewInt(v int64) *Constant { return &Constant{Kind: ConstInt, Value: v} }

func NewStr(s string) *Constant { return &Constant{Kind: ConstStr, Value: s} }

func NewBool(b bool) *Constant { return &Constant{Kind: ConstBool, Value: b} }

func NewNone() *Constant { return &Constant{Kind: ConstNone} }

func NewCall(fn Expr, args ...Expr) *Call { return &Call{Func: fn, Args: args} }

func NewCompare(left Expr, op CmpOp, right Expr) *Compare {
	return &Compare{Left: left, Ops: []CmpOp{op}, Comparators: []Expr{right}}
}

func NewNot(operand Expr) *UnaryOp { return &UnaryOp{Op: "not", Operand: operand} }

func NewAnd(values ...Expr) *BoolOp { return &BoolOp{Op: "and", Values: values} }

func NewOr(values ...Expr) *BoolOp { return &BoolOp{Op: "or", Values: values} }

// At sets the start line of a node and returns it, for positioning
// synthesized nodes.
func At[T interface {
	Node
	setLine(int)
}](n T, line int) T {
	n.setLine(line)
	return n
}

func (l *Loc) setLine(line int) {
	l.Line = line
	if l.EndLine < line {
		l.EndLine = line
	}
}
