package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders an expression as Python source text.
func Format(e Expr) string {
	var sb strings.Builder
	formatExpr(&sb, e)
	return sb.String()
}

func formatExpr(sb *strings.Builder, e Expr) {
	switch e := e.(type) {
	case nil:
		sb.WriteString("<nil>")
	case *Name:
		sb.WriteString(e.ID)
	case *Attribute:
		formatExpr(sb, e.Value)
		sb.WriteString(".")
		sb.WriteString(e.Attr)
	case *Subscript:
		formatExpr(sb, e.Value)
		sb.WriteString("[")
		formatExpr(sb, e.Index)
		sb.WriteString("]")
	case *Constant:
		sb.WriteString(FormatConstant(e))
	case *Call:
		formatExpr(sb, e.Func)
		sb.WriteString("(")
		for i, a := range e.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			formatExpr(sb, a)
		}
		for i, kw := range e.Keywords {
			if i > 0 || len(e.Args) > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(kw.Name)
			sb.WriteString("=")
			formatExpr(sb, kw.Value)
		}
		sb.WriteString(")")
	case *Compare:
		formatExpr(sb, e.Left)
		for i, op := range e.Ops {
			sb.WriteString(" ")
			sb.WriteString(string(op))
			sb.WriteString(" ")
			formatExpr(sb, e.Comparators[i])
		}
	case *BoolOp:
		for i, v := range e.Values {
			if i > 0 {
				sb.WriteString(" " + e.Op + " ")
			}
			formatExpr(sb, v)
		}
	case *UnaryOp:
		sb.WriteString(e.Op)
		if e.Op == "not" {
			sb.WriteString(" ")
		}
		formatExpr(sb, e.Operand)
	case *BinOp:
		formatExpr(sb, e.Left)
		sb.WriteString(" " + e.Op + " ")
		formatExpr(sb, e.Right)
	case *IfExp:
		formatExpr(sb, e.Body)
		sb.WriteString(" if ")
		formatExpr(sb, e.Test)
		sb.WriteString(" else ")
		formatExpr(sb, e.OrElse)
	case *NamedExpr:
		sb.WriteString("(")
		formatExpr(sb, e.Target)
		sb.WriteString(" := ")
		formatExpr(sb, e.Value)
		sb.WriteString(")")
	case *Tuple:
		sb.WriteString("(")
		for i, x := range e.Elts {
			if i > 0 {
				sb.WriteString(", ")
			}
			formatExpr(sb, x)
		}
		if len(e.Elts) == 1 {
			sb.WriteString(",")
		}
		sb.WriteString(")")
	case *List:
		sb.WriteString("[")
		for i, x := range e.Elts {
			if i > 0 {
				sb.WriteString(", ")
			}
			formatExpr(sb, x)
		}
		sb.WriteString("]")
	case *Dict:
		sb.WriteString("{")
		for i := range e.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			if e.Keys[i] == nil {
				sb.WriteString("**")
			} else {
				formatExpr(sb, e.Keys[i])
				sb.WriteString(": ")
			}
			formatExpr(sb, e.Values[i])
		}
		sb.WriteString("}")
	case *Starred:
		sb.WriteString("*")
		formatExpr(sb, e.Value)
	case *Await:
		sb.WriteString("await ")
		formatExpr(sb, e.Value)
	case *Lambda:
		sb.WriteString("lambda: ")
		formatExpr(sb, e.Body)
	case *Opaque:
		sb.WriteString(e.Text)
	default:
		fmt.Fprintf(sb, "<%T>", e)
	}
}

// FormatConstant renders a literal the way Python would print it.
func FormatConstant(c *Constant) string {
	switch c.Kind {
	case ConstNone:
		return "None"
	case ConstBool:
		if b, _ := c.Value.(bool); b {
			return "True"
		}
		return "False"
	case ConstInt:
		return fmt.Sprintf("%d", c.Value)
	case ConstFloat:
		return fmt.Sprintf("%g", c.Value)
	case ConstStr:
		s, _ := c.Value.(string)
		return quote(s)
	case ConstBytes:
		s, _ := c.Value.(string)
		return "b" + quote(s)
	case ConstEllipsis:
		return "..."
	}
	return "?"
}

func quote(s string) string {
	q := strconv.Quote(s)
	if !strings.Contains(s, "'") {
		q = "'" + strings.ReplaceAll(q[1:len(q)-1], `\"`, `"`) + "'"
	}
	return q
}

// FormatPattern renders a case pattern as Python source text.
func FormatPattern(p Pattern) string {
	switch p := p.(type) {
	case *MatchValue:
		return Format(p.Value)
	case *MatchSingleton:
		return FormatConstant(p.Value)
	case *MatchSequence:
		parts := make([]string, len(p.Patterns))
		for i, sub := range p.Patterns {
			parts[i] = FormatPattern(sub)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *MatchStar:
		if p.Name == "" {
			return "*_"
		}
		return "*" + p.Name
	case *MatchMapping:
		parts := make([]string, 0, len(p.Keys)+1)
		for i, k := range p.Keys {
			parts = append(parts, Format(k)+": "+FormatPattern(p.Patterns[i]))
		}
		if p.Rest != "" {
			parts = append(parts, "**"+p.Rest)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *MatchClass:
		parts := make([]string, 0, len(p.Patterns)+len(p.KwdAttrs))
		for _, sub := range p.Patterns {
			parts = append(parts, FormatPattern(sub))
		}
		for i, attr := range p.KwdAttrs {
			parts = append(parts, attr+"="+FormatPattern(p.KwdPatterns[i]))
		}
		return Format(p.Cls) + "(" + strings.Join(parts, ", ") + ")"
	case *MatchAs:
		switch {
		case p.Pattern == nil && p.Name == "":
			return "_"
		case p.Pattern == nil:
			return p.Name
		default:
			return FormatPattern(p.Pattern) + " as " + p.Name
		}
	case *MatchOr:
		parts := make([]string, len(p.Patterns))
		for i, sub := range p.Patterns {
			parts[i] = FormatPattern(sub)
		}
		return strings.Join(parts, " | ")
	}
	return "?"
}
