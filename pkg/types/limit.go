package types

// Bounds on types inferred by iterating a loop. A value rebuilt from itself
// on every iteration (x = [x]) otherwise grows without end.
const (
	MaxNestingDepth = 4
	MaxUnionMembers = 64
)

// Limit cuts t so that no type argument or tuple element nests deeper than
// depth and no union has more than width members. Cut parts become
// Unknown: list[list[list[int]]] limited to depth 1 is list[Unknown]. It
// reports whether anything was cut; t is returned unchanged otherwise.
func Limit(t Type, depth, width int) (Type, bool) {
	switch t := t.(type) {
	case *UnionType:
		if len(t.Members) > width {
			return Unknown, true
		}
		members := make([]Type, len(t.Members))
		cut := false
		for i, m := range t.Members {
			var c bool
			members[i], c = Limit(m, depth, width)
			cut = cut || c
		}
		if !cut {
			return t, false
		}
		return Union(members...), true

	case *Instance:
		if len(t.Args) == 0 {
			return t, false
		}
		args := make([]Type, len(t.Args))
		cut := false
		for i, a := range t.Args {
			if depth <= 0 {
				args[i], cut = Unknown, true
				continue
			}
			var c bool
			args[i], c = Limit(a, depth-1, width)
			cut = cut || c
		}
		if !cut {
			return t, false
		}
		return &Instance{Class: t.Class, Args: args, ProvidedKeys: t.ProvidedKeys}, true

	case *Tuple:
		if len(t.Elems) == 0 {
			return t, false
		}
		if depth <= 0 {
			return &Tuple{Elems: []Type{Unknown}, Unbounded: true}, true
		}
		elems := make([]Type, len(t.Elems))
		cut := false
		for i, e := range t.Elems {
			var c bool
			elems[i], c = Limit(e, depth-1, width)
			cut = cut || c
		}
		if !cut {
			return t, false
		}
		return &Tuple{Elems: elems, Unbounded: t.Unbounded}, true
	}
	return t, false
}
