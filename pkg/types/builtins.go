package types

// Builtins holds the builtin classes shared by one analysis session.
type Builtins struct {
	Object   *Class
	Type     *Class
	Int      *Class
	Float    *Class
	Complex  *Class
	Bool     *Class
	Str      *Class
	Bytes    *Class
	List     *Class
	Dict     *Class
	Set      *Class
	Tuple    *Class
	Range    *Class
	NoneType *Class

	BaseException *Class
	Exception     *Class

	classes map[string]*Class
}

// NewBuiltins creates a fresh set of builtin classes.
func NewBuiltins() *Builtins {
	b := &Builtins{classes: make(map[string]*Class)}
	mk := func(name string, bases ...*Class) *Class {
		c := NewClass("builtins", name, bases...)
		c.Builtin = true
		b.classes[name] = c
		return c
	}
	sized := func(c *Class) *Class {
		c.Methods["__len__"] = &Function{Name: "__len__"}
		return c
	}

	b.Object = mk("object")
	b.Type = mk("type", b.Object)
	b.Int = mk("int", b.Object)
	b.Int.Methods["__bool__"] = &Function{Name: "__bool__"}
	b.Float = mk("float", b.Object)
	b.Float.Methods["__bool__"] = &Function{Name: "__bool__"}
	b.Complex = mk("complex", b.Object)
	b.Complex.Methods["__bool__"] = &Function{Name: "__bool__"}
	b.Bool = mk("bool", b.Int)
	b.Bool.Final = true
	b.Str = sized(mk("str", b.Object))
	b.Bytes = sized(mk("bytes", b.Object))
	b.List = sized(mk("list", b.Object))
	b.Dict = sized(mk("dict", b.Object))
	b.Set = sized(mk("set", b.Object))
	b.Tuple = sized(mk("tuple", b.Object))
	b.Range = sized(mk("range", b.Object))
	b.NoneType = mk("NoneType", b.Object)
	b.NoneType.Final = true

	b.BaseException = mk("BaseException", b.Object)
	b.Exception = mk("Exception", b.BaseException)
	for _, name := range []string{
		"TypeError", "ValueError", "KeyError", "IndexError", "RuntimeError",
		"AttributeError", "AssertionError", "NotImplementedError", "StopIteration",
		"OSError", "LookupError", "ZeroDivisionError",
	} {
		mk(name, b.Exception)
	}
	mk("SystemExit", b.BaseException)
	mk("KeyboardInterrupt", b.BaseException)
	return b
}

// Lookup returns the builtin class with the given name.
func (b *Builtins) Lookup(name string) (*Class, bool) {
	c, ok := b.classes[name]
	return c, ok
}

// Names returns every builtin class name.
func (b *Builtins) Names() []string {
	names := make([]string, 0, len(b.classes))
	for n := range b.classes {
		names = append(names, n)
	}
	return names
}

// IntLiteral returns Literal[v].
func (b *Builtins) IntLiteral(v int64) *Literal { return &Literal{Class: b.Int, Value: v} }

// StrLiteral returns Literal['v'].
func (b *Builtins) StrLiteral(v string) *Literal { return &Literal{Class: b.Str, Value: v} }

// BoolLiteral returns Literal[True] or Literal[False].
func (b *Builtins) BoolLiteral(v bool) *Literal { return &Literal{Class: b.Bool, Value: v} }

// ExpandBool decomposes t into members with every instance of bool split
// into its two literals. Union would condense them again, so the members
// are returned as a slice.
func (b *Builtins) ExpandBool(t Type) []Type {
	var out []Type
	for _, m := range Members(t) {
		if inst, ok := m.(*Instance); ok && inst.Class == b.Bool {
			out = append(out, b.BoolLiteral(true), b.BoolLiteral(false))
			continue
		}
		out = append(out, m)
	}
	return out
}

// ClassOf returns the class an instance-like type belongs to.
func (b *Builtins) ClassOf(t Type) (*Class, bool) {
	switch t := t.(type) {
	case *Instance:
		return t.Class, true
	case *Literal:
		return t.Class, true
	case *Tuple:
		return b.Tuple, true
	case *ClassObject:
		return b.Type, true
	}
	if t != nil && t.Kind() == KindNone {
		return b.NoneType, true
	}
	return nil, false
}
