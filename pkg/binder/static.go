package binder

import (
	"strings"

	"github.com/l3aro/flowtype/pkg/ast"
)

// staticValue evaluates a test whose truth value is known without type
// information: literals, TYPE_CHECKING, and comparisons against
// sys.platform and sys.version_info.
func (b *binder) staticValue(e ast.Expr) (bool, bool) {
	switch e := e.(type) {
	case *ast.Constant:
		return constantTruth(e)
	case *ast.Name:
		if e.ID == "TYPE_CHECKING" {
			return true, true
		}
	case *ast.Attribute:
		if e.Attr == "TYPE_CHECKING" && isModuleRef(e.Value, "typing", "typing_extensions") {
			return true, true
		}
	case *ast.UnaryOp:
		if e.Op == "not" {
			if v, ok := b.staticValue(e.Operand); ok {
				return !v, true
			}
		}
	case *ast.BoolOp:
		return b.staticBoolOp(e)
	case *ast.Compare:
		if len(e.Ops) == 1 && len(e.Comparators) == 1 {
			return b.staticCompare(e.Left, e.Ops[0], e.Comparators[0])
		}
	case *ast.Call:
		return b.staticPlatformCall(e)
	}
	return false, false
}

func constantTruth(c *ast.Constant) (bool, bool) {
	switch c.Kind {
	case ast.ConstNone:
		return false, true
	case ast.ConstBool:
		v, ok := c.Value.(bool)
		return v, ok
	case ast.ConstInt:
		v, ok := c.Value.(int64)
		return v != 0, ok
	case ast.ConstStr, ast.ConstBytes:
		v, ok := c.Value.(string)
		return v != "", ok
	}
	return false, false
}

func (b *binder) staticBoolOp(e *ast.BoolOp) (bool, bool) {
	isAnd := e.Op == "and"
	allKnown := true
	for _, v := range e.Values {
		val, ok := b.staticValue(v)
		if !ok {
			allKnown = false
			continue
		}
		// A short-circuiting operand decides the whole expression only if
		// everything before it is known too.
		if val != isAnd && allKnown {
			return val, true
		}
	}
	if allKnown {
		return isAnd, true
	}
	return false, false
}

func isModuleRef(e ast.Expr, modules ...string) bool {
	n, ok := e.(*ast.Name)
	if !ok {
		return false
	}
	for _, m := range modules {
		if n.ID == m {
			return true
		}
	}
	return false
}

func isSysAttr(e ast.Expr, attr string) bool {
	a, ok := e.(*ast.Attribute)
	return ok && a.Attr == attr && isModuleRef(a.Value, "sys")
}

func (b *binder) staticCompare(left ast.Expr, op ast.CmpOp, right ast.Expr) (bool, bool) {
	switch {
	case isSysAttr(left, "platform"):
		s, ok := strConst(right)
		if !ok {
			return false, false
		}
		switch op {
		case ast.CmpEq:
			return b.opts.Platform == s, true
		case ast.CmpNotEq:
			return b.opts.Platform != s, true
		}
	case isSysAttr(left, "version_info"):
		t, ok := right.(*ast.Tuple)
		if !ok {
			return false, false
		}
		want := make([]int64, 0, len(t.Elts))
		for _, el := range t.Elts {
			v, ok := intConst(el)
			if !ok {
				return false, false
			}
			want = append(want, v)
		}
		have := []int64{int64(b.opts.PythonVersion[0]), int64(b.opts.PythonVersion[1])}
		if len(want) > len(have) {
			// Only major and minor are configured; a micro component
			// makes the outcome unknown.
			return false, false
		}
		c := compareVersions(have[:len(want)], want)
		if c == 0 {
			// sys.version_info is longer than any prefix it equals.
			c = 1
		}
		return compareInts(c, op)
	case isVersionIndex(left, 0):
		v, ok := intConst(right)
		if !ok {
			return false, false
		}
		return compareInts(cmpInt(int64(b.opts.PythonVersion[0]), v), op)
	}
	return false, false
}

// isVersionIndex matches sys.version_info[i].
func isVersionIndex(e ast.Expr, i int64) bool {
	s, ok := e.(*ast.Subscript)
	if !ok || !isSysAttr(s.Value, "version_info") {
		return false
	}
	v, ok := intConst(s.Index)
	return ok && v == i
}

func (b *binder) staticPlatformCall(c *ast.Call) (bool, bool) {
	fn, ok := c.Func.(*ast.Attribute)
	if !ok || fn.Attr != "startswith" || !isSysAttr(fn.Value, "platform") || len(c.Args) != 1 {
		return false, false
	}
	prefix, ok := strConst(c.Args[0])
	if !ok {
		return false, false
	}
	return strings.HasPrefix(b.opts.Platform, prefix), true
}

func strConst(e ast.Expr) (string, bool) {
	c, ok := e.(*ast.Constant)
	if !ok || c.Kind != ast.ConstStr {
		return "", false
	}
	s, ok := c.Value.(string)
	return s, ok
}

func intConst(e ast.Expr) (int64, bool) {
	c, ok := e.(*ast.Constant)
	if !ok || c.Kind != ast.ConstInt {
		return 0, false
	}
	v, ok := c.Value.(int64)
	return v, ok
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareVersions(have, want []int64) int {
	for i := range want {
		if c := cmpInt(have[i], want[i]); c != 0 {
			return c
		}
	}
	return 0
}

func compareInts(c int, op ast.CmpOp) (bool, bool) {
	switch op {
	case ast.CmpEq:
		return c == 0, true
	case ast.CmpNotEq:
		return c != 0, true
	case ast.CmpLt:
		return c < 0, true
	case ast.CmpLtE:
		return c <= 0, true
	case ast.CmpGt:
		return c > 0, true
	case ast.CmpGtE:
		return c >= 0, true
	}
	return false, false
}
