package defsdb

import (
	"slices"
	"strings"
)

// Separator joins the segments of a constant path.
const Separator = "::"

// Root is the leading segment of an absolute constant path as returned by
// SplitPath, e.g. "::A::B" splits into [Root, "A", "B"].
const Root = "::"

// SplitPath splits a constant path into segments for LookupConstantPath.
// Empty components are dropped; a leading separator becomes Root.
func SplitPath(path string) []string {
	var segments []string
	if strings.HasPrefix(path, Separator) {
		segments = append(segments, Root)
	}
	return append(segments, splitNames(path)...)
}

func splitNames(path string) []string {
	var names []string
	for _, s := range strings.Split(path, Separator) {
		if s != "" {
			names = append(names, s)
		}
	}
	return names
}

// Resolve looks up a "::"-separated constant path as written inside the
// nested namespaces named by lexicalContext (outermost first).
//
// A path starting with "::" ignores lexicalContext and starts at the top
// level. Otherwise the first component is searched from the innermost
// namespace outwards to the top level, and each further component is
// looked up only in the previous entity's own constant table. A miss at
// any step returns found=false with a nil error. The only error is an
// *InvalidModuleContextError when a lexicalContext entry does not name a
// module.
func (db *Database) Resolve(path string, lexicalContext []string) (e Entity, found bool, err error) {
	var scopes []*constTable
	if strings.HasPrefix(path, Separator) {
		scopes = []*constTable{db.toplevel}
	} else {
		scopes, err = db.lexicalScopes(lexicalContext)
		if err != nil {
			return nil, false, err
		}
	}

	names := splitNames(path)
	if len(names) == 0 {
		return nil, false, nil
	}

	e, found = searchScopes(names[0], scopes)
	if !found {
		return nil, false, nil
	}

	for _, name := range names[1:] {
		mod, isModule := AsModule(e)
		if !isModule {
			return nil, false, nil
		}
		if e, found = mod.constants.get(name); !found {
			return nil, false, nil
		}
	}
	return e, true, nil
}

// ResolveModule resolves a qualified name from the top level and returns
// the module it names. Anything else, including a value, yields a
// *ModuleNotFoundError.
func (db *Database) ResolveModule(path string) (*Module, error) {
	e, found, err := db.Resolve(path, nil)
	if err != nil {
		return nil, err
	}
	mod, isModule := AsModule(e)
	if !found || !isModule {
		return nil, &ModuleNotFoundError{Path: path}
	}
	return mod, nil
}

// lexicalScopes builds the search stack for a lexical context, top level
// first. Each name is looked up in the scope pushed just before it.
func (db *Database) lexicalScopes(lexicalContext []string) ([]*constTable, error) {
	scopes := make([]*constTable, 0, len(lexicalContext)+1)
	scopes = append(scopes, db.toplevel)

	for i, name := range lexicalContext {
		e, ok := scopes[len(scopes)-1].get(name)
		mod, isModule := AsModule(e)
		if !ok || !isModule {
			return nil, &InvalidModuleContextError{Name: name, Context: slices.Clone(lexicalContext[:i+1])}
		}
		scopes = append(scopes, mod.constants)
	}
	return scopes, nil
}

// searchScopes returns the first binding of name, innermost scope first.
func searchScopes(name string, scopes []*constTable) (Entity, bool) {
	for i := len(scopes) - 1; i >= 0; i-- {
		if e, ok := scopes[i].get(name); ok {
			return e, true
		}
	}
	return nil, false
}

// LookupConstant resolves a single constant name the way the language does
// at runtime:
//
//  1. the constant table of current,
//  2. the enclosing namespaces in moduleContext, innermost (last) first,
//  3. the constant tables of current's ancestors, in order.
//
// A nil current stands for the root class (see Database.Object), and names
// the root class does not carry are then taken from the top-level table.
// Without a root class only the top-level table is searched. A miss
// returns a *ConstantLookupError.
func (db *Database) LookupConstant(name string, current *Module, moduleContext []*Module) (Entity, error) {
	var (
		e  Entity
		ok bool
	)
	if current == nil {
		current, _ = db.Object()
		e, ok = db.lookupFromRoot(name, moduleContext)
	} else {
		e, ok = db.lookupConstant(name, current, moduleContext)
	}
	if ok {
		return e, nil
	}

	err := &ConstantLookupError{Name: name}
	if current != nil {
		err.Module = current.name
	}
	return nil, err
}

// lookupFromRoot resolves name with the root class as the current module
// and falls back to the top-level table.
func (db *Database) lookupFromRoot(name string, moduleContext []*Module) (Entity, bool) {
	object, hasObject := db.Object()
	if e, ok := db.lookupConstant(name, object, moduleContext); ok {
		return e, true
	}
	if !hasObject {
		// lookupConstant already searched the top level.
		return nil, false
	}
	return db.toplevel.get(name)
}

func (db *Database) lookupConstant(name string, current *Module, moduleContext []*Module) (Entity, bool) {
	// Steps 1 and 2 are the same innermost-first walk Resolve uses, with
	// current as the innermost scope.
	scopes := make([]*constTable, 0, len(moduleContext)+1)
	for _, m := range moduleContext {
		if m != nil {
			scopes = append(scopes, m.constants)
		}
	}
	if current != nil {
		scopes = append(scopes, current.constants)
	} else {
		scopes = append(scopes, db.toplevel)
	}

	if e, ok := searchScopes(name, scopes); ok {
		return e, true
	}
	if current == nil {
		return nil, false
	}
	return lookupFromAncestors(name, current)
}

// lookupFromAncestors searches the constant tables of mod's ancestors in
// linearization order.
func lookupFromAncestors(name string, mod *Module) (Entity, bool) {
	for _, a := range mod.ancestors {
		if e, ok := a.constants.get(name); ok {
			return e, true
		}
	}
	return nil, false
}

// LookupConstantPath resolves a constant path given as segments, e.g.
// SplitPath("X::Y") or SplitPath("::A::B").
//
// The first segment is resolved with LookupConstant from current and
// moduleContext, or from the global namespace with no lexical context when
// the path starts with Root. Every later segment is searched only among
// the ancestors of the module the previous segment resolved to. Any miss
// returns a *ConstantLookupError naming the failed segment; a miss on the
// first segment has Top set and names the module the search started from.
func (db *Database) LookupConstantPath(segments []string, current *Module, moduleContext []*Module) (Entity, error) {
	if len(segments) == 0 {
		return nil, &ArgumentError{Message: "empty constant path"}
	}

	name, rest := segments[0], segments[1:]
	if name == Root {
		if len(rest) == 0 {
			return nil, &ArgumentError{Message: "constant path has no segment after the root"}
		}
		name, rest = rest[0], rest[1:]
		current, moduleContext = nil, nil
	}

	var (
		e  Entity
		ok bool
	)
	start := current
	if current == nil {
		start, _ = db.Object()
		e, ok = db.lookupFromRoot(name, moduleContext)
	} else {
		e, ok = db.lookupConstant(name, current, moduleContext)
	}
	if !ok {
		err := &ConstantLookupError{Name: name, Top: true}
		if start != nil {
			err.Module = start.name
		}
		return nil, err
	}

	for _, seg := range rest {
		var next Entity
		found := false
		if mod, isModule := AsModule(e); isModule {
			next, found = lookupFromAncestors(seg, mod)
		}
		if !found {
			return nil, &ConstantLookupError{Name: seg, Module: e.Name()}
		}
		e = next
	}
	return e, nil
}
