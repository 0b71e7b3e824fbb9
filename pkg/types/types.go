// Package types implements the type algebra used by the narrowing engine:
// classes and their instances, literals, unions, tuples, functions, type
// variables and the special Never, Unbound, Unknown, Any and None types.
package types

import (
	"fmt"
	"strings"
)

// Kind identifies the shape of a Type.
type Kind string

const (
	KindNever    Kind = "never"
	KindUnbound  Kind = "unbound"
	KindUnknown  Kind = "unknown"
	KindAny      Kind = "any"
	KindNone     Kind = "none"
	KindInstance Kind = "instance"
	KindClass    Kind = "class"
	KindLiteral  Kind = "literal"
	KindUnion    Kind = "union"
	KindTuple    Kind = "tuple"
	KindFunction Kind = "function"
	KindTypeVar  Kind = "typevar"
	KindModule   Kind = "module"
)

// Type is a static type. Implementations are immutable once constructed.
type Type interface {
	Kind() Kind
	String() string
}

// Special is one of the singleton types without structure.
type Special struct {
	kind       Kind
	incomplete bool
}

var (
	// Never is the bottom type, the type of unreachable code.
	Never Type = &Special{kind: KindNever}
	// Unbound marks a variable that has no value on some path.
	Unbound Type = &Special{kind: KindUnbound}
	// Unknown is an unannotated or unresolvable type.
	Unknown Type = &Special{kind: KindUnknown}
	// IncompleteUnknown is the placeholder handed out while a value is
	// still being computed. It is dropped once a fixed point is reached.
	IncompleteUnknown Type = &Special{kind: KindUnknown, incomplete: true}
	// Any is the explicit dynamic type.
	Any Type = &Special{kind: KindAny}
	// None is the type of the None singleton.
	None Type = &Special{kind: KindNone}
)

func (s *Special) Kind() Kind { return s.kind }

func (s *Special) String() string {
	switch s.kind {
	case KindNever:
		return "Never"
	case KindUnbound:
		return "Unbound"
	case KindUnknown:
		return "Unknown"
	case KindAny:
		return "Any"
	case KindNone:
		return "None"
	}
	return string(s.kind)
}

// Class is a class declaration. Classes are built once by the evaluator and
// shared by every type that refers to them.
type Class struct {
	Name    string
	Module  string
	Bases   []*Class
	Fields  map[string]Type
	Methods map[string]*Function
	Final   bool

	// TypedDict classes describe dict-shaped records; Required lists the
	// keys that must be present.
	TypedDict bool
	Required  map[string]bool

	// Builtin marks classes whose instances are mutually disjoint with
	// other builtins (int, str, bytes, ...).
	Builtin bool

	mro []*Class
}

// NewClass creates a class with the given bases.
func NewClass(module, name string, bases ...*Class) *Class {
	return &Class{
		Name:    name,
		Module:  module,
		Bases:   bases,
		Fields:  make(map[string]Type),
		Methods: make(map[string]*Function),
	}
}

// QualifiedName returns module.name, or the bare name for builtins.
func (c *Class) QualifiedName() string {
	if c.Module == "" || c.Module == "builtins" {
		return c.Name
	}
	return c.Module + "." + c.Name
}

// MRO returns the method resolution order starting with c itself.
func (c *Class) MRO() []*Class {
	if c.mro != nil {
		return c.mro
	}
	seen := make(map[*Class]bool)
	var order []*Class
	var visit func(k *Class)
	visit = func(k *Class) {
		if seen[k] {
			return
		}
		seen[k] = true
		order = append(order, k)
		for _, b := range k.Bases {
			visit(b)
		}
	}
	visit(c)
	c.mro = order
	return order
}

// IsSubclassOf reports whether c derives from other (or is other).
func (c *Class) IsSubclassOf(other *Class) bool {
	for _, k := range c.MRO() {
		if k == other {
			return true
		}
	}
	return false
}

// LookupField finds a declared attribute type along the MRO.
func (c *Class) LookupField(name string) (Type, bool) {
	for _, k := range c.MRO() {
		if t, ok := k.Fields[name]; ok {
			return t, true
		}
	}
	return nil, false
}

// LookupMethod finds a method along the MRO, skipping object.
func (c *Class) LookupMethod(name string) (*Function, bool) {
	for _, k := range c.MRO() {
		if k.Name == "object" && k.Builtin {
			continue
		}
		if m, ok := k.Methods[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// Instance is an instance of a class, optionally parameterized
// (list[int], dict[str, int]).
type Instance struct {
	Class *Class
	Args  []Type

	// ProvidedKeys lists TypedDict keys proven present by narrowing.
	ProvidedKeys map[string]bool
}

// NewInstance returns an instance type of c.
func NewInstance(c *Class, args ...Type) *Instance {
	return &Instance{Class: c, Args: args}
}

func (i *Instance) Kind() Kind { return KindInstance }

func (i *Instance) String() string {
	if len(i.Args) == 0 {
		return i.Class.QualifiedName()
	}
	parts := make([]string, len(i.Args))
	for n, a := range i.Args {
		parts[n] = a.String()
	}
	return fmt.Sprintf("%s[%s]", i.Class.QualifiedName(), strings.Join(parts, ", "))
}

// HasKey reports whether a TypedDict instance is known to contain key.
func (i *Instance) HasKey(key string) bool {
	return i.Class.Required[key] || i.ProvidedKeys[key]
}

// WithKey returns a copy of the TypedDict instance with key marked present.
func (i *Instance) WithKey(key string) *Instance {
	keys := make(map[string]bool, len(i.ProvidedKeys)+1)
	for k := range i.ProvidedKeys {
		keys[k] = true
	}
	keys[key] = true
	return &Instance{Class: i.Class, Args: i.Args, ProvidedKeys: keys}
}

// ClassObject is the type of a class itself, type[C].
type ClassObject struct {
	Class *Class
}

func (c *ClassObject) Kind() Kind { return KindClass }

func (c *ClassObject) String() string {
	return "type[" + c.Class.QualifiedName() + "]"
}

// Literal is a literal value of a builtin class: Literal[1], Literal['a'],
// Literal[True]. Value holds int64, string or bool.
type Literal struct {
	Class *Class
	Value interface{}
}

func (l *Literal) Kind() Kind { return KindLiteral }

func (l *Literal) String() string {
	return "Literal[" + formatLiteral(l.Value) + "]"
}

func formatLiteral(v interface{}) string {
	switch v := v.(type) {
	case bool:
		if v {
			return "True"
		}
		return "False"
	case string:
		return "'" + v + "'"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Truthy reports the runtime truth value of the literal.
func (l *Literal) Truthy() bool {
	switch v := l.Value.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case string:
		return v != ""
	}
	return true
}

// UnionType is a set of two or more member types. Build unions with the Union
// function, which flattens and de-duplicates.
type UnionType struct {
	Members []Type
}

func (u *UnionType) Kind() Kind { return KindUnion }

func (u *UnionType) String() string {
	parts := make([]string, len(u.Members))
	for i, m := range u.Members {
		parts[i] = m.String()
	}
	return strings.Join(parts, " | ")
}

// Tuple is a fixed-length tuple, or tuple[Elem, ...] when Unbounded is set
// (Elems then has a single entry).
type Tuple struct {
	Elems     []Type
	Unbounded bool
}

func (t *Tuple) Kind() Kind { return KindTuple }

func (t *Tuple) String() string {
	if t.Unbounded && len(t.Elems) == 1 {
		return "tuple[" + t.Elems[0].String() + ", ...]"
	}
	if len(t.Elems) == 0 {
		return "tuple[()]"
	}
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "tuple[" + strings.Join(parts, ", ") + "]"
}

// Param is a function parameter as seen by call evaluation.
type Param struct {
	Name string
	Type Type
}

// Function is a callable. Overloaded functions list their signatures in
// Overloads and leave Return unset.
type Function struct {
	Name      string
	Params    []Param
	Return    Type
	Overloads []*Function

	// Guard is set for user-defined type guards (TypeGuard[X] / TypeIs[X]).
	// Strict guards (TypeIs) also narrow the negative branch.
	Guard       Type
	GuardStrict bool

	// InferNoReturn is consulted when Return is nil: the evaluator decides
	// from the function body whether it can return.
	InferNoReturn func() bool
}

func (f *Function) Kind() Kind { return KindFunction }

func (f *Function) String() string {
	if len(f.Overloads) > 0 {
		return fmt.Sprintf("Overload[%s, %d signatures]", f.Name, len(f.Overloads))
	}
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		if p.Type == nil {
			parts[i] = p.Name
			continue
		}
		parts[i] = p.Name + ": " + p.Type.String()
	}
	ret := "Unknown"
	if f.Return != nil {
		ret = f.Return.String()
	}
	return fmt.Sprintf("(%s) -> %s", strings.Join(parts, ", "), ret)
}

// IsNoReturn reports whether calling f never returns control.
func (f *Function) IsNoReturn() bool {
	if len(f.Overloads) > 0 {
		for _, o := range f.Overloads {
			if !o.IsNoReturn() {
				return false
			}
		}
		return true
	}
	if f.Return != nil {
		return IsNever(f.Return)
	}
	if f.InferNoReturn != nil {
		return f.InferNoReturn()
	}
	return false
}

// TypeVar is a type variable, optionally constrained to a fixed set of types
// or bounded by an upper bound.
type TypeVar struct {
	Name        string
	Constraints []Type
	Bound       Type
}

func (v *TypeVar) Kind() Kind     { return KindTypeVar }
func (v *TypeVar) String() string { return v.Name }

// Module is an imported module with its known members.
type Module struct {
	Name    string
	Members map[string]Type
}

func (m *Module) Kind() Kind     { return KindModule }
func (m *Module) String() string { return "Module(\"" + m.Name + "\")" }
