// Package ast defines the syntax tree consumed by the flow binder and the type evaluator.
// The tree is Python-shaped but deliberately small: only constructs that influence
// control flow or narrowing carry structure, everything else is an Opaque expression.
package ast

// Loc is the source span of a node. Lines are 1-based.
type Loc struct {
	Line    int `json:"line"`
	Col     int `json:"col"`
	EndLine int `json:"end_line"`
}

// Span returns the location of the node.
func (l *Loc) Span() Loc { return *l }

// Node is any syntax tree node.
type Node interface {
	Span() Loc
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Pattern is a pattern in a match case.
type Pattern interface {
	Node
	patternNode()
}

// ConstKind identifies the literal kind of a Constant.
type ConstKind string

const (
	ConstNone     ConstKind = "none"
	ConstBool     ConstKind = "bool"
	ConstInt      ConstKind = "int"
	ConstFloat    ConstKind = "float"
	ConstStr      ConstKind = "str"
	ConstBytes    ConstKind = "bytes"
	ConstEllipsis ConstKind = "ellipsis"
)

// CmpOp is a comparison operator.
type CmpOp string

const (
	CmpEq    CmpOp = "=="
	CmpNotEq CmpOp = "!="
	CmpIs    CmpOp = "is"
	CmpIsNot CmpOp = "is not"
	CmpIn    CmpOp = "in"
	CmpNotIn CmpOp = "not in"
	CmpLt    CmpOp = "<"
	CmpLtE   CmpOp = "<="
	CmpGt    CmpOp = ">"
	CmpGtE   CmpOp = ">="
)

// Negate returns the operator with the opposite truth value for the
// operators that have one, and false otherwise.
func (op CmpOp) Negate() (CmpOp, bool) {
	switch op {
	case CmpEq:
		return CmpNotEq, true
	case CmpNotEq:
		return CmpEq, true
	case CmpIs:
		return CmpIsNot, true
	case CmpIsNot:
		return CmpIs, true
	case CmpIn:
		return CmpNotIn, true
	case CmpNotIn:
		return CmpIn, true
	case CmpLt:
		return CmpGtE, true
	case CmpLtE:
		return CmpGt, true
	case CmpGt:
		return CmpLtE, true
	case CmpGtE:
		return CmpLt, true
	}
	return op, false
}

// Expressions

// Name is a bare identifier.
type Name struct {
	Loc
	ID string
}

// Attribute is `Value.Attr`.
type Attribute struct {
	Loc
	Value Expr
	Attr  string
}

// Subscript is `Value[Index]`.
type Subscript struct {
	Loc
	Value Expr
	Index Expr
}

// Constant is a literal value. Value holds nil, bool, int64, float64 or string.
type Constant struct {
	Loc
	Kind  ConstKind
	Value interface{}
}

// Keyword is a `name=value` call argument.
type Keyword struct {
	Name  string
	Value Expr
}

// Call is a call expression.
type Call struct {
	Loc
	Func     Expr
	Args     []Expr
	Keywords []Keyword
}

// Compare is a (possibly chained) comparison.
type Compare struct {
	Loc
	Left        Expr
	Ops         []CmpOp
	Comparators []Expr
}

// BoolOp is `and` / `or` over two or more operands.
type BoolOp struct {
	Loc
	Op     string
	Values []Expr
}

// UnaryOp is `not`, `-`, `+` or `~` applied to an operand.
type UnaryOp struct {
	Loc
	Op      string
	Operand Expr
}

// BinOp is an arithmetic or bitwise binary operation.
type BinOp struct {
	Loc
	Left  Expr
	Op    string
	Right Expr
}

// IfExp is the conditional expression `Body if Test else OrElse`.
type IfExp struct {
	Loc
	Test   Expr
	Body   Expr
	OrElse Expr
}

// NamedExpr is the assignment expression `Target := Value`.
type NamedExpr struct {
	Loc
	Target *Name
	Value  Expr
}

// Tuple is a tuple display.
type Tuple struct {
	Loc
	Elts []Expr
}

// List is a list display.
type List struct {
	Loc
	Elts []Expr
}

// Dict is a dict display. A nil key marks a `**mapping` entry.
type Dict struct {
	Loc
	Keys   []Expr
	Values []Expr
}

// Starred is `*Value` inside a display or call.
type Starred struct {
	Loc
	Value Expr
}

// Await is `await Value`.
type Await struct {
	Loc
	Value Expr
}

// Lambda is a lambda expression. Its body is analyzed in its own scope.
type Lambda struct {
	Loc
	Params []*Param
	Body   Expr
}

// Opaque is an expression the front end does not model. It is evaluated
// for side effects only. Kind is the front end's name for the construct
// ("yield", "list_comprehension", ...).
type Opaque struct {
	Loc
	Kind     string
	Text     string
	Children []Expr
}

// OpaqueYield is the Opaque kind of yield and yield-from expressions.
const OpaqueYield = "yield"

func (*Name) exprNode()      {}
func (*Attribute) exprNode() {}
func (*Subscript) exprNode() {}
func (*Constant) exprNode()  {}
func (*Call) exprNode()      {}
func (*Compare) exprNode()   {}
func (*BoolOp) exprNode()    {}
func (*UnaryOp) exprNode()   {}
func (*BinOp) exprNode()     {}
func (*IfExp) exprNode()     {}
func (*NamedExpr) exprNode() {}
func (*Tuple) exprNode()     {}
func (*List) exprNode()      {}
func (*Dict) exprNode()      {}
func (*Starred) exprNode()   {}
func (*Await) exprNode()     {}
func (*Lambda) exprNode()    {}
func (*Opaque) exprNode()    {}

// Statements

// Module is the root of a parsed file.
type Module struct {
	Loc
	Path string
	Body []Stmt
}

// ExprStmt is an expression evaluated for its effect.
type ExprStmt struct {
	Loc
	Value Expr
}

// Assign is `t1 = t2 = Value`.
type Assign struct {
	Loc
	Targets []Expr
	Value   Expr
}

// AnnAssign is `Target: Annotation [= Value]`.
type AnnAssign struct {
	Loc
	Target     Expr
	Annotation Expr
	Value      Expr
}

// AugAssign is `Target op= Value`.
type AugAssign struct {
	Loc
	Target Expr
	Op     string
	Value  Expr
}

// If is an if statement. An elif chain is a nested If as the only OrElse statement.
type If struct {
	Loc
	Test   Expr
	Body   []Stmt
	OrElse []Stmt
}

// While is a while loop with an optional else clause.
type While struct {
	Loc
	Test   Expr
	Body   []Stmt
	OrElse []Stmt
}

// For is a for loop with an optional else clause.
type For struct {
	Loc
	Target Expr
	Iter   Expr
	Body   []Stmt
	OrElse []Stmt
	Async  bool
}

// ExceptHandler is one except clause of a try statement.
type ExceptHandler struct {
	Loc
	Type Expr
	Name string
	Body []Stmt
}

// Try is a try statement.
type Try struct {
	Loc
	Body     []Stmt
	Handlers []*ExceptHandler
	OrElse   []Stmt
	Finally  []Stmt
}

// WithItem is one `Context as Target` item of a with statement.
type WithItem struct {
	Context Expr
	Target  Expr
}

// With is a with statement.
type With struct {
	Loc
	Items []*WithItem
	Body  []Stmt
	Async bool
}

// MatchCase is one case arm of a match statement.
type MatchCase struct {
	Loc
	Pattern Pattern
	Guard   Expr
	Body    []Stmt
}

// Match is a match statement.
type Match struct {
	Loc
	Subject Expr
	Cases   []*MatchCase
}

// ParamKind distinguishes positional, variadic and keyword parameters.
type ParamKind string

const (
	ParamNormal  ParamKind = "normal"
	ParamVarArgs ParamKind = "varargs"
	ParamKwArgs  ParamKind = "kwargs"
)

// Param is a function or lambda parameter.
type Param struct {
	Loc
	Name       string
	Annotation Expr
	Default    Expr
	Kind       ParamKind
}

// FunctionDef is a function definition.
type FunctionDef struct {
	Loc
	Name       string
	Params     []*Param
	Returns    Expr
	Body       []Stmt
	Decorators []Expr
	Async      bool
}

// ClassDef is a class definition.
type ClassDef struct {
	Loc
	Name       string
	Bases      []Expr
	Keywords   []Keyword
	Body       []Stmt
	Decorators []Expr
}

// Return is a return statement.
type Return struct {
	Loc
	Value Expr
}

// Raise is a raise statement. Exc is nil for a bare re-raise.
type Raise struct {
	Loc
	Exc   Expr
	Cause Expr
}

// Pass is a pass statement.
type Pass struct{ Loc }

// Break is a break statement.
type Break struct{ Loc }

// Continue is a continue statement.
type Continue struct{ Loc }

// Delete is a del statement.
type Delete struct {
	Loc
	Targets []Expr
}

// Alias is an imported name with an optional local alias.
type Alias struct {
	Name   string
	AsName string
}

// Import is `import a.b as c`.
type Import struct {
	Loc
	Names []Alias
}

// ImportFrom is `from module import names` or `from module import *`.
type ImportFrom struct {
	Loc
	Module   string
	Names    []Alias
	Wildcard bool
}

// Assert is an assert statement.
type Assert struct {
	Loc
	Test Expr
	Msg  Expr
}

// Global is a global declaration.
type Global struct {
	Loc
	Names []string
}

// Nonlocal is a nonlocal declaration.
type Nonlocal struct {
	Loc
	Names []string
}

func (*ExprStmt) stmtNode()    {}
func (*Assign) stmtNode()      {}
func (*AnnAssign) stmtNode()   {}
func (*AugAssign) stmtNode()   {}
func (*If) stmtNode()          {}
func (*While) stmtNode()       {}
func (*For) stmtNode()         {}
func (*Try) stmtNode()         {}
func (*With) stmtNode()        {}
func (*Match) stmtNode()       {}
func (*FunctionDef) stmtNode() {}
func (*ClassDef) stmtNode()    {}
func (*Return) stmtNode()      {}
func (*Raise) stmtNode()       {}
func (*Pass) stmtNode()        {}
func (*Break) stmtNode()       {}
func (*Continue) stmtNode()    {}
func (*Delete) stmtNode()      {}
func (*Import) stmtNode()      {}
func (*ImportFrom) stmtNode()  {}
func (*Assert) stmtNode()      {}
func (*Global) stmtNode()      {}
func (*Nonlocal) stmtNode()    {}

// Patterns

// MatchValue matches by equality against a literal or dotted value.
type MatchValue struct {
	Loc
	Value Expr
}

// MatchSingleton matches None, True or False by identity.
type MatchSingleton struct {
	Loc
	Value *Constant
}

// MatchSequence matches a sequence element-wise. At most one entry is a MatchStar.
type MatchSequence struct {
	Loc
	Patterns []Pattern
}

// MatchStar is `*name` inside a sequence pattern. An empty Name is `*_`.
type MatchStar struct {
	Loc
	Name string
}

// MatchMapping matches mapping keys against value patterns.
type MatchMapping struct {
	Loc
	Keys     []Expr
	Patterns []Pattern
	Rest     string
}

// MatchClass is `Cls(p1, attr=p2)`.
type MatchClass struct {
	Loc
	Cls         Expr
	Patterns    []Pattern
	KwdAttrs    []string
	KwdPatterns []Pattern
}

// MatchAs is a capture (`name`), a wildcard (`_`) or `pattern as name`.
// Pattern is nil for captures and wildcards; Name is empty for wildcards.
type MatchAs struct {
	Loc
	Pattern Pattern
	Name    string
}

// MatchOr is `p1 | p2 | ...`.
type MatchOr struct {
	Loc
	Patterns []Pattern
}

func (*MatchValue) patternNode()     {}
func (*MatchSingleton) patternNode() {}
func (*MatchSequence) patternNode()  {}
func (*MatchStar) patternNode()      {}
func (*MatchMapping) patternNode()   {}
func (*MatchClass) patternNode()     {}
func (*MatchAs) patternNode()        {}
func (*MatchOr) patternNode()        {}

// IsIrrefutable reports whether the pattern matches every subject.
func IsIrrefutable(p Pattern) bool {
	switch p := p.(type) {
	case *MatchAs:
		return p.Pattern == nil || IsIrrefutable(p.Pattern)
	case *MatchOr:
		for _, sub := range p.Patterns {
			if IsIrrefutable(sub) {
				return true
			}
		}
	}
	return false
}
