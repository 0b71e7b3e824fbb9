package evaluator

import (
	"github.com/l3aro/flowtype/pkg/types"
)

// special identifies library functions whose calls or decorations the
// evaluator interprets itself.
type special int

const (
	specNone special = iota
	specCast
	specTypeVar
	specRevealType
	specOverload
	specFinal
	specAbstract
	specStaticMethod
	specClassMethod
	specProperty
)

// stdlib holds the builtin functions and the few standard library modules
// the evaluator knows members of.
type stdlib struct {
	funcs    map[string]*types.Function
	modules  map[string]*types.Module
	specials map[*types.Function]special

	typedDict *types.Class
	protocol  *types.Class
}

func newStdlib(b *types.Builtins) *stdlib {
	s := &stdlib{
		funcs:    make(map[string]*types.Function),
		modules:  make(map[string]*types.Module),
		specials: make(map[*types.Function]special),
	}
	inst := func(c *types.Class, args ...types.Type) types.Type { return types.NewInstance(c, args...) }
	fn := func(name string, ret types.Type) *types.Function {
		return &types.Function{Name: name, Return: ret}
	}
	specialFn := func(name string, kind special) *types.Function {
		f := &types.Function{Name: name, Return: types.Unknown}
		s.specials[f] = kind
		return f
	}

	boolT, intT, strT := inst(b.Bool), inst(b.Int), inst(b.Str)
	for name, ret := range map[string]types.Type{
		"len":        intT,
		"id":         intT,
		"hash":       intT,
		"ord":        intT,
		"isinstance": boolT,
		"issubclass": boolT,
		"callable":   boolT,
		"hasattr":    boolT,
		"any":        boolT,
		"all":        boolT,
		"repr":       strT,
		"input":      strT,
		"chr":        strT,
		"format":     strT,
		"print":      types.None,
		"setattr":    types.None,
		"delattr":    types.None,
		"exit":       types.Never,
		"quit":       types.Never,
		"getattr":    types.Unknown,
		"iter":       types.Unknown,
		"next":       types.Unknown,
		"open":       types.Unknown,
		"abs":        types.Unknown,
		"min":        types.Unknown,
		"max":        types.Unknown,
		"sum":        types.Unknown,
		"super":      types.Unknown,
		"vars":       inst(b.Dict, strT, types.Unknown),
		"sorted":     inst(b.List, types.Unknown),
	} {
		s.funcs[name] = fn(name, ret)
	}
	s.funcs["reveal_type"] = specialFn("reveal_type", specRevealType)
	s.funcs["staticmethod"] = specialFn("staticmethod", specStaticMethod)
	s.funcs["classmethod"] = specialFn("classmethod", specClassMethod)
	s.funcs["property"] = specialFn("property", specProperty)

	s.typedDict = types.NewClass("typing", "TypedDict", b.Dict)
	s.typedDict.TypedDict = true
	s.protocol = types.NewClass("typing", "Protocol", b.Object)
	generic := types.NewClass("typing", "Generic", b.Object)
	namedTuple := types.NewClass("typing", "NamedTuple", b.Tuple)

	typing := map[string]types.Type{
		"TYPE_CHECKING": boolT,
		"cast":          specialFn("cast", specCast),
		"TypeVar":       specialFn("TypeVar", specTypeVar),
		"reveal_type":   specialFn("reveal_type", specRevealType),
		"overload":      specialFn("overload", specOverload),
		"final":         specialFn("final", specFinal),
		"assert_never":  fn("assert_never", types.Never),
		"TypedDict":     &types.ClassObject{Class: s.typedDict},
		"Protocol":      &types.ClassObject{Class: s.protocol},
		"Generic":       &types.ClassObject{Class: generic},
		"NamedTuple":    &types.ClassObject{Class: namedTuple},
	}
	// Special forms are resolved by name in annotations; as values they
	// carry no useful type.
	for _, form := range typingForms {
		if _, ok := typing[form]; !ok {
			typing[form] = types.Unknown
		}
	}
	s.modules["typing"] = &types.Module{Name: "typing", Members: typing}
	s.modules["typing_extensions"] = &types.Module{Name: "typing_extensions", Members: typing}

	s.modules["sys"] = &types.Module{Name: "sys", Members: map[string]types.Type{
		"exit":         fn("exit", types.Never),
		"platform":     strT,
		"version_info": &types.Tuple{Elems: []types.Type{intT}, Unbounded: true},
		"argv":         inst(b.List, strT),
		"maxsize":      intT,
	}}
	osPath := &types.Module{Name: "os.path", Members: map[string]types.Type{
		"join":   fn("join", strT),
		"exists": fn("exists", boolT),
		"isdir":  fn("isdir", boolT),
		"isfile": fn("isfile", boolT),
	}}
	s.modules["os.path"] = osPath
	s.modules["os"] = &types.Module{Name: "os", Members: map[string]types.Type{
		"_exit":  fn("_exit", types.Never),
		"abort":  fn("abort", types.Never),
		"getenv": fn("getenv", types.Union(strT, types.None)),
		"getcwd": fn("getcwd", strT),
		"path":   osPath,
	}}

	abc := types.NewClass("abc", "ABC", b.Object)
	s.modules["abc"] = &types.Module{Name: "abc", Members: map[string]types.Type{
		"ABC":            &types.ClassObject{Class: abc},
		"abstractmethod": specialFn("abstractmethod", specAbstract),
	}}

	// suppress swallows the exceptions it names; nullcontext never does.
	suppress := types.NewClass("contextlib", "suppress", b.Object)
	suppress.Methods["__enter__"] = fn("__enter__", types.None)
	suppress.Methods["__exit__"] = fn("__exit__", boolT)
	nullcontext := types.NewClass("contextlib", "nullcontext", b.Object)
	nullcontext.Methods["__enter__"] = fn("__enter__", types.Unknown)
	nullcontext.Methods["__exit__"] = fn("__exit__", types.None)
	s.modules["contextlib"] = &types.Module{Name: "contextlib", Members: map[string]types.Type{
		"suppress":       &types.ClassObject{Class: suppress},
		"nullcontext":    &types.ClassObject{Class: nullcontext},
		"contextmanager": fn("contextmanager", types.Unknown),
	}}
	return s
}

// module returns the known members of an imported module, or an empty
// module for anything else.
func (s *stdlib) module(name string) *types.Module {
	if m, ok := s.modules[name]; ok {
		return m
	}
	return &types.Module{Name: name, Members: map[string]types.Type{}}
}

// member returns `from module import name`.
func (s *stdlib) member(module, name string) types.Type {
	if m, ok := s.modules[module]; ok {
		if t, ok := m.Members[name]; ok {
			return t
		}
	}
	if sub, ok := s.modules[module+"."+name]; ok {
		return sub
	}
	return types.Unknown
}

// typingForms are the typing names given meaning inside annotations.
var typingForms = []string{
	"Any", "NoReturn", "Never", "Optional", "Union", "Literal", "Final",
	"ClassVar", "Annotated", "Required", "NotRequired", "ReadOnly",
	"TypeGuard", "TypeIs", "List", "Dict", "Set", "FrozenSet", "Tuple",
	"Type", "Callable", "Iterable", "Iterator", "Sequence", "Mapping",
	"Self", "LiteralString", "Text",
}
