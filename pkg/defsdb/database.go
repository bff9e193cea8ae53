// Package defsdb provides a queryable structural database of modules,
// classes, constants and methods captured from a dynamic object-oriented
// program.
//
// A Database is built once by the loader from a core.Snapshot and is
// read-only afterwards, so it may be shared between goroutines without
// locking. Name resolution comes in two flavors that deliberately differ
// in how a miss is reported:
//
//   - Resolve walks a "::"-separated path through lexical scopes and
//     returns found=false when the path does not resolve.
//   - LookupConstant and LookupConstantPath follow the language's own
//     constant lookup (own table, lexical scopes, ancestors) and return a
//     *ConstantLookupError on a miss.
package defsdb

import (
	"fmt"
	"iter"
	"path"
	"slices"

	"github.com/leapstack-labs/defsdb/pkg/core"
)

// ObjectName is the top-level constant under which the root class is bound.
const ObjectName = "Object"

// Database is the linked, immutable graph of definitions.
type Database struct {
	// toplevel maps top-level constant names to modules and values.
	toplevel *constTable

	// modules maps snapshot ids to loaded modules; moduleOrder keeps the
	// order they were created in.
	modules     map[core.ID]*Module
	moduleOrder []*Module

	// bodies maps method record ids to bodies. Several ids may map to the
	// same body when their composite keys match; bodyOrder holds each body
	// once.
	bodies    map[core.ID]*MethodBody
	bodyOrder []*MethodBody

	requiredLibs []string
}

func newDatabase() *Database {
	return &Database{
		toplevel: newConstTable(),
		modules:  make(map[core.ID]*Module),
		bodies:   make(map[core.ID]*MethodBody),
	}
}

// TopLevel returns the entity bound to a top-level name.
func (db *Database) TopLevel(name string) (Entity, bool) {
	return db.toplevel.get(name)
}

// TopLevelNames returns the top-level names in load order.
func (db *Database) TopLevelNames() []string {
	return slices.Clone(db.toplevel.names)
}

// EachTopLevel iterates the top-level table in load order.
func (db *Database) EachTopLevel() iter.Seq2[string, Entity] {
	return db.toplevel.all()
}

// Module returns the module or class with the given snapshot id.
func (db *Database) Module(id core.ID) (*Module, bool) {
	m, ok := db.modules[id]
	return m, ok
}

// MethodBody returns the body loaded for a method record id.
func (db *Database) MethodBody(id core.ID) (*MethodBody, bool) {
	b, ok := db.bodies[id]
	return b, ok
}

// RequiredLibs returns the library paths the producer had loaded.
func (db *Database) RequiredLibs() []string {
	return slices.Clone(db.requiredLibs)
}

// Object returns the root class bound to the top-level name "Object".
func (db *Database) Object() (*Module, bool) {
	e, ok := db.toplevel.get(ObjectName)
	if !ok {
		return nil, false
	}
	return AsModule(e)
}

// EachModule iterates modules and classes in the order they were loaded.
// The sequence can be ranged over any number of times.
func (db *Database) EachModule() iter.Seq[*Module] {
	return func(yield func(*Module) bool) {
		for _, m := range db.moduleOrder {
			if !yield(m) {
				return
			}
		}
	}
}

// EachMethod iterates the method definitions of every module, module by
// module in load order.
func (db *Database) EachMethod() iter.Seq[*MethodDefinition] {
	return func(yield func(*MethodDefinition) bool) {
		for _, m := range db.moduleOrder {
			for _, d := range m.methods {
				if !yield(d) {
					return
				}
			}
		}
	}
}

// EachMethodBody iterates the distinct method bodies in load order.
func (db *Database) EachMethodBody() iter.Seq[*MethodBody] {
	return func(yield func(*MethodBody) bool) {
		for _, b := range db.bodyOrder {
			if !yield(b) {
				return
			}
		}
	}
}

// Stats summarizes the size of a database.
type Stats struct {
	Modules           int `json:"modules"`
	Classes           int `json:"classes"`
	TopLevel          int `json:"toplevel"`
	MethodBodies      int `json:"method_bodies"`
	MethodDefinitions int `json:"method_definitions"`
	RequiredLibs      int `json:"required_libs"`
}

// Stats counts the entities in the database.
func (db *Database) Stats() Stats {
	s := Stats{
		TopLevel:     len(db.toplevel.names),
		MethodBodies: len(db.bodyOrder),
		RequiredLibs: len(db.requiredLibs),
	}
	for _, m := range db.moduleOrder {
		if m.IsClass() {
			s.Classes++
		} else {
			s.Modules++
		}
		s.MethodDefinitions += len(m.methods)
	}
	return s
}

// FindModules returns the modules whose qualified name matches a glob
// pattern in path.Match syntax, in load order. "*" also matches "::". An
// empty pattern matches every module.
func (db *Database) FindModules(pattern string) ([]*Module, error) {
	if pattern != "" {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, &ArgumentError{Message: fmt.Sprintf("invalid pattern %q: %v", pattern, err)}
		}
	}
	var mods []*Module
	for _, m := range db.moduleOrder {
		if pattern != "" {
			if ok, _ := path.Match(pattern, m.name); !ok {
				continue
			}
		}
		mods = append(mods, m)
	}
	return mods, nil
}

// MethodQuery selects a method by name and kind. Exactly one of Instance
// and Singleton must be set.
type MethodQuery struct {
	Instance  string
	Singleton string
}

// FindMethodDefinition resolves classPath with Resolve and returns the
// first definition on that module matching the query's name and kind.
// found is false when the module has no such definition. A path that does
// not name a module yields a *ModuleNotFoundError; a malformed query
// yields an *ArgumentError.
func (db *Database) FindMethodDefinition(classPath string, q MethodQuery) (def *MethodDefinition, found bool, err error) {
	if q.Instance != "" && q.Singleton != "" {
		return nil, false, &ArgumentError{Message: "cannot specify both instance and singleton method"}
	}
	if q.Instance == "" && q.Singleton == "" {
		return nil, false, &ArgumentError{Message: "must specify an instance or a singleton method"}
	}

	mod, err := db.ResolveModule(classPath)
	if err != nil {
		return nil, false, err
	}

	instance := q.Instance != ""
	name := q.Instance
	if !instance {
		name = q.Singleton
	}

	for _, d := range mod.methods {
		if d.instance == instance && d.body.name == name {
			return d, true, nil
		}
	}
	return nil, false, nil
}
