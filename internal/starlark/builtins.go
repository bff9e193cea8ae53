package starlark

import (
	"fmt"

	"github.com/leapstack-labs/defsdb/pkg/defsdb"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ModuleName is the predeclared name of the database module.
const ModuleName = "defs"

// NewModule returns the "defs" module bound to db:
//
//	defs.resolve(path, context=[])           entity or None
//	defs.lookup(name, current=None, context=[])  entity, fails on a miss
//	defs.find_method(class_path, instance=None, singleton=None)  method or None
//	defs.modules(pattern="")                 qualified names
//	defs.toplevel()                          top-level names
//	defs.libs()                              required library paths
//	defs.stats()                             counts
func NewModule(db *defsdb.Database) *starlarkstruct.Module {
	b := &builtins{db: db}
	return &starlarkstruct.Module{
		Name: ModuleName,
		Members: starlark.StringDict{
			"resolve":     starlark.NewBuiltin("resolve", b.resolve),
			"lookup":      starlark.NewBuiltin("lookup", b.lookup),
			"find_method": starlark.NewBuiltin("find_method", b.findMethod),
			"modules":     starlark.NewBuiltin("modules", b.modules),
			"toplevel":    starlark.NewBuiltin("toplevel", b.toplevel),
			"libs":        starlark.NewBuiltin("libs", b.libs),
			"stats":       starlark.NewBuiltin("stats", b.stats),
		},
	}
}

// Predeclared returns the globals every script starts with: the "defs"
// module and the struct constructor.
func Predeclared(db *defsdb.Database) starlark.StringDict {
	return starlark.StringDict{
		ModuleName: NewModule(db),
		"struct":   starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
}

type builtins struct {
	db *defsdb.Database
}

func (b *builtins) resolve(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		p       string
		context starlark.Iterable
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "path", &p, "context?", &context); err != nil {
		return nil, err
	}
	lexical, err := stringsOf(fn.Name(), "context", context)
	if err != nil {
		return nil, err
	}

	e, found, err := b.db.Resolve(p, lexical)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	if !found {
		return starlark.None, nil
	}
	return EntityToStarlark(defsdb.Describe(e)), nil
}

func (b *builtins) lookup(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name    string
		current starlark.Value = starlark.None
		context starlark.Iterable
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "current?", &current, "context?", &context); err != nil {
		return nil, err
	}

	var cur *defsdb.Module
	if current != starlark.None {
		s, ok := starlark.AsString(current)
		if !ok {
			return nil, fmt.Errorf("%s: for parameter current: got %s, want string or None", fn.Name(), current.Type())
		}
		m, err := b.module(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn.Name(), err)
		}
		cur = m
	}

	paths, err := stringsOf(fn.Name(), "context", context)
	if err != nil {
		return nil, err
	}
	lexical := make([]*defsdb.Module, 0, len(paths))
	for _, p := range paths {
		m, err := b.module(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn.Name(), err)
		}
		lexical = append(lexical, m)
	}

	e, err := b.db.LookupConstantPath(defsdb.SplitPath(name), cur, lexical)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return EntityToStarlark(defsdb.Describe(e)), nil
}

func (b *builtins) findMethod(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var classPath, instance, singleton string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
		"class_path", &classPath, "instance?", &instance, "singleton?", &singleton); err != nil {
		return nil, err
	}

	def, found, err := b.db.FindMethodDefinition(classPath, defsdb.MethodQuery{Instance: instance, Singleton: singleton})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	if !found {
		return starlark.None, nil
	}
	return MethodToStarlark(defsdb.DescribeMethod(def)), nil
}

func (b *builtins) modules(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	pattern := ""
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "pattern?", &pattern); err != nil {
		return nil, err
	}
	mods, err := b.db.FindModules(pattern)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	names := make([]starlark.Value, len(mods))
	for i, m := range mods {
		names[i] = starlark.String(m.Name())
	}
	return starlark.NewList(names), nil
}

func (b *builtins) toplevel(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return stringList(b.db.TopLevelNames()), nil
}

func (b *builtins) libs(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return stringList(b.db.RequiredLibs()), nil
}

func (b *builtins) stats(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return StatsToStarlark(b.db.Stats()), nil
}

// module resolves an absolute or top-level path to a module.
func (b *builtins) module(p string) (*defsdb.Module, error) {
	return b.db.ResolveModule(p)
}

func stringsOf(fnName, param string, it starlark.Iterable) ([]string, error) {
	if it == nil {
		return nil, nil
	}
	iter := it.Iterate()
	defer iter.Done()

	var (
		out []string
		x   starlark.Value
	)
	for iter.Next(&x) {
		s, ok := starlark.AsString(x)
		if !ok {
			return nil, fmt.Errorf("%s: for parameter %s: got %s element, want string", fnName, param, x.Type())
		}
		out = append(out, s)
	}
	return out, nil
}
