package types

import (
	"sort"
	"strings"
)

// Key returns a canonical identity string for t. Two types with the same key
// are interchangeable.
func Key(t Type) string {
	switch t := t.(type) {
	case nil:
		return "<nil>"
	case *Special:
		if t.incomplete {
			return "Unknown(incomplete)"
		}
		return t.String()
	case *Instance:
		var sb strings.Builder
		sb.WriteString(t.String())
		if len(t.ProvidedKeys) > 0 {
			keys := make([]string, 0, len(t.ProvidedKeys))
			for k := range t.ProvidedKeys {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			sb.WriteString("{" + strings.Join(keys, ",") + "}")
		}
		return sb.String()
	case *Literal:
		return t.Class.QualifiedName() + ":" + t.String()
	case *UnionType:
		parts := make([]string, len(t.Members))
		for i, m := range t.Members {
			parts[i] = Key(m)
		}
		return strings.Join(parts, "|")
	case *Tuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = Key(e)
		}
		if t.Unbounded {
			parts = append(parts, "...")
		}
		return "tuple[" + strings.Join(parts, ",") + "]"
	default:
		return string(t.Kind()) + ":" + t.String()
	}
}

// Equal reports whether a and b denote the same type.
func Equal(a, b Type) bool {
	return Key(a) == Key(b)
}

// Union combines types into their union. Nested unions are flattened,
// duplicates and Never members are removed, a literal whose class is also
// present as a plain instance is absorbed, and Literal[True] | Literal[False]
// condenses to bool. Any absorbs every member except Unbound and the
// incomplete placeholder. The result is Never for no members.
func Union(ts ...Type) Type {
	var flat []Type
	seen := make(map[string]bool)
	hasAny := false
	var add func(t Type)
	add = func(t Type) {
		switch t := t.(type) {
		case nil:
			return
		case *UnionType:
			for _, m := range t.Members {
				add(m)
			}
			return
		}
		if IsNever(t) {
			return
		}
		if t.Kind() == KindAny {
			hasAny = true
		}
		k := Key(t)
		if seen[k] {
			return
		}
		seen[k] = true
		flat = append(flat, t)
	}
	for _, t := range ts {
		add(t)
	}

	if hasAny {
		kept := []Type{Any}
		for _, m := range flat {
			if IsUnbound(m) || isIncompleteUnknown(m) {
				kept = append(kept, m)
			}
		}
		flat = kept
	}

	flat = condenseLiterals(flat)

	switch len(flat) {
	case 0:
		return Never
	case 1:
		return flat[0]
	}
	return &UnionType{Members: flat}
}

func condenseLiterals(members []Type) []Type {
	plain := make(map[*Class]bool)
	for _, m := range members {
		if inst, ok := m.(*Instance); ok && len(inst.Args) == 0 && len(inst.ProvidedKeys) == 0 {
			plain[inst.Class] = true
		}
	}
	var trueLit, falseLit *Literal
	out := members[:0:0]
	for _, m := range members {
		lit, ok := m.(*Literal)
		if !ok {
			out = append(out, m)
			continue
		}
		if plain[lit.Class] {
			continue
		}
		if b, isBool := lit.Value.(bool); isBool {
			if b {
				trueLit = lit
			} else {
				falseLit = lit
			}
		}
		out = append(out, m)
	}
	if trueLit == nil || falseLit == nil {
		return out
	}
	boolClass := trueLit.Class
	condensed := out[:0:0]
	placed := false
	for _, m := range out {
		if lit, ok := m.(*Literal); ok {
			if _, isBool := lit.Value.(bool); isBool && lit.Class == boolClass {
				if !placed {
					condensed = append(condensed, NewInstance(boolClass))
					placed = true
				}
				continue
			}
		}
		condensed = append(condensed, m)
	}
	return condensed
}

// Members decomposes t into its union members. Never has no members.
func Members(t Type) []Type {
	switch t := t.(type) {
	case *UnionType:
		return t.Members
	case nil:
		return nil
	}
	if IsNever(t) {
		return nil
	}
	return []Type{t}
}

// MapSubtypes applies fn to every member of t and unions the results.
// A nil result drops the member.
func MapSubtypes(t Type, fn func(Type) Type) Type {
	members := Members(t)
	out := make([]Type, 0, len(members))
	changed := false
	for _, m := range members {
		r := fn(m)
		if r == nil || !Equal(r, m) {
			changed = true
		}
		if r != nil {
			out = append(out, r)
		}
	}
	if !changed {
		return t
	}
	return Union(out...)
}

// IsNever reports whether t is the bottom type.
func IsNever(t Type) bool {
	return t != nil && t.Kind() == KindNever
}

// IsUnbound reports whether t is exactly the Unbound sentinel.
func IsUnbound(t Type) bool {
	return t != nil && t.Kind() == KindUnbound
}

// IsPossiblyUnbound reports whether t is Unbound or contains it.
func IsPossiblyUnbound(t Type) bool {
	for _, m := range Members(t) {
		if IsUnbound(m) {
			return true
		}
	}
	return false
}

// RemoveUnbound drops the Unbound member from t.
func RemoveUnbound(t Type) Type {
	return MapSubtypes(t, func(m Type) Type {
		if IsUnbound(m) {
			return nil
		}
		return m
	})
}

func isIncompleteUnknown(t Type) bool {
	s, ok := t.(*Special)
	return ok && s.incomplete
}

// IsIncomplete reports whether t contains the incomplete placeholder.
func IsIncomplete(t Type) bool {
	for _, m := range Members(t) {
		if isIncompleteUnknown(m) {
			return true
		}
	}
	return false
}

// RemoveIncomplete drops incomplete placeholders from t.
func RemoveIncomplete(t Type) Type {
	return MapSubtypes(t, func(m Type) Type {
		if isIncompleteUnknown(m) {
			return nil
		}
		return m
	})
}

func isDynamic(t Type) bool {
	k := t.Kind()
	return k == KindAny || k == KindUnknown
}

// IsAssignable reports whether a value of type src may be assigned to a
// target declared as dst.
func IsAssignable(dst, src Type) bool {
	if dst == nil || src == nil {
		return false
	}
	if isDynamic(dst) || isDynamic(src) {
		return true
	}
	if IsNever(src) {
		return true
	}
	if u, ok := src.(*UnionType); ok {
		for _, m := range u.Members {
			if !IsAssignable(dst, m) {
				return false
			}
		}
		return true
	}
	if u, ok := dst.(*UnionType); ok {
		for _, m := range u.Members {
			if IsAssignable(m, src) {
				return true
			}
		}
		return false
	}

	switch d := dst.(type) {
	case *Special:
		return d.Kind() == src.Kind()
	case *Instance:
		return instanceAccepts(d, src)
	case *Literal:
		s, ok := src.(*Literal)
		return ok && Equal(d, s)
	case *ClassObject:
		s, ok := src.(*ClassObject)
		return ok && s.Class.IsSubclassOf(d.Class)
	case *Tuple:
		s, ok := src.(*Tuple)
		if !ok {
			return false
		}
		return tupleAccepts(d, s)
	case *TypeVar:
		if len(d.Constraints) > 0 {
			for _, c := range d.Constraints {
				if IsAssignable(c, src) {
					return true
				}
			}
			return false
		}
		if d.Bound != nil {
			return IsAssignable(d.Bound, src)
		}
		return true
	case *Function:
		return src.Kind() == KindFunction
	case *Module:
		s, ok := src.(*Module)
		return ok && s.Name == d.Name
	}
	return false
}

func isBuiltin(c *Class, name string) bool {
	return c.Builtin && c.Name == name
}

func instanceAccepts(d *Instance, src Type) bool {
	if isBuiltin(d.Class, "object") {
		return !IsUnbound(src)
	}
	switch s := src.(type) {
	case *Instance:
		if !s.Class.IsSubclassOf(d.Class) && !promotes(d.Class, s.Class) {
			return false
		}
		if len(d.Args) > 0 && len(s.Args) == len(d.Args) {
			for i := range d.Args {
				if !IsAssignable(d.Args[i], s.Args[i]) {
					return false
				}
			}
		}
		for k := range d.ProvidedKeys {
			if !s.HasKey(k) {
				return false
			}
		}
		return true
	case *Literal:
		return s.Class.IsSubclassOf(d.Class) || promotes(d.Class, s.Class)
	case *Tuple:
		if !isBuiltin(d.Class, "tuple") {
			return false
		}
		if len(d.Args) == 1 {
			for _, e := range s.Elems {
				if !IsAssignable(d.Args[0], e) {
					return false
				}
			}
		}
		return true
	case *ClassObject:
		return isBuiltin(d.Class, "type")
	}
	return false
}

// promotes implements the int -> float -> complex promotion.
func promotes(dst, src *Class) bool {
	if !dst.Builtin || !src.Builtin {
		return false
	}
	switch dst.Name {
	case "float":
		return src.Name == "int" || src.Name == "bool"
	case "complex":
		return src.Name == "int" || src.Name == "bool" || src.Name == "float"
	}
	return false
}

func tupleAccepts(d, s *Tuple) bool {
	if d.Unbounded {
		for _, e := range s.Elems {
			if !IsAssignable(d.Elems[0], e) {
				return false
			}
		}
		return true
	}
	if s.Unbounded || len(d.Elems) != len(s.Elems) {
		return false
	}
	for i := range d.Elems {
		if !IsAssignable(d.Elems[i], s.Elems[i]) {
			return false
		}
	}
	return true
}

// IsDisjoint reports whether no value can inhabit both a and b. It answers
// false whenever overlap cannot be ruled out.
func IsDisjoint(a, b Type) bool {
	for _, ma := range Members(a) {
		for _, mb := range Members(b) {
			if !membersDisjoint(ma, mb) {
				return false
			}
		}
	}
	return true
}

func membersDisjoint(a, b Type) bool {
	if isDynamic(a) || isDynamic(b) {
		return false
	}
	if a.Kind() == KindNone || b.Kind() == KindNone {
		if a.Kind() == b.Kind() {
			return false
		}
		other := a
		if a.Kind() == KindNone {
			other = b
		}
		if inst, ok := other.(*Instance); ok && isBuiltin(inst.Class, "object") {
			return false
		}
		return other.Kind() != KindTypeVar
	}
	la, aLit := a.(*Literal)
	lb, bLit := b.(*Literal)
	switch {
	case aLit && bLit:
		return !Equal(la, lb)
	case aLit:
		return !literalOverlaps(la, b)
	case bLit:
		return !literalOverlaps(lb, a)
	}
	ia, aInst := a.(*Instance)
	ib, bInst := b.(*Instance)
	if aInst && bInst {
		if ia.Class.IsSubclassOf(ib.Class) || ib.Class.IsSubclassOf(ia.Class) {
			return false
		}
		return (ia.Class.Builtin && ib.Class.Builtin) || ia.Class.Final || ib.Class.Final
	}
	return false
}

func literalOverlaps(lit *Literal, t Type) bool {
	switch t := t.(type) {
	case *Instance:
		return lit.Class.IsSubclassOf(t.Class) || promotes(t.Class, lit.Class)
	case *TypeVar:
		return true
	}
	return false
}

// CanBeTruthy reports whether some value of t evaluates as true.
func CanBeTruthy(t Type) bool {
	for _, m := range Members(t) {
		if memberCanBeTruthy(m) {
			return true
		}
	}
	return false
}

// CanBeFalsy reports whether some value of t evaluates as false.
func CanBeFalsy(t Type) bool {
	for _, m := range Members(t) {
		if memberCanBeFalsy(m) {
			return true
		}
	}
	return false
}

func memberCanBeTruthy(t Type) bool {
	switch t := t.(type) {
	case *Special:
		return t.Kind() != KindNone && t.Kind() != KindNever
	case *Literal:
		return t.Truthy()
	case *Tuple:
		return t.Unbounded || len(t.Elems) > 0
	}
	return true
}

func memberCanBeFalsy(t Type) bool {
	switch t := t.(type) {
	case *Special:
		return t.Kind() != KindNever
	case *Literal:
		return !t.Truthy()
	case *Tuple:
		return t.Unbounded || len(t.Elems) == 0
	case *Instance:
		if t.Class.TypedDict {
			return len(t.Class.Required) == 0 && len(t.ProvidedKeys) == 0
		}
		if _, ok := t.Class.LookupMethod("__bool__"); ok {
			return true
		}
		_, ok := t.Class.LookupMethod("__len__")
		return ok
	case *TypeVar:
		return true
	}
	return false
}
