package defsdb

import (
	"fmt"
	"iter"
	"slices"

	"github.com/leapstack-labs/defsdb/pkg/core"
)

// Entity is anything a constant name can be bound to: a *Module (plain
// module or class) or a *Value.
type Entity interface {
	// Name is the qualified display name for modules and the binding name
	// for values.
	Name() string

	// DefinedMethods returns the methods defined directly on the entity.
	DefinedMethods() []*MethodDefinition

	entity()
}

// AsModule returns e as a module when it is one.
func AsModule(e Entity) (*Module, bool) {
	m, ok := e.(*Module)
	return m, ok && m != nil
}

// ModuleKind distinguishes plain modules from classes.
type ModuleKind int

// Module kinds.
const (
	KindModule ModuleKind = iota
	KindClass
)

func (k ModuleKind) String() string {
	if k == KindClass {
		return "class"
	}
	return "module"
}

// Visibility is the access level of a method definition.
type Visibility int

// Visibilities, in the order the loader reads them.
const (
	Public Visibility = iota
	Protected
	Private
)

func (v Visibility) String() string {
	switch v {
	case Public:
		return "public"
	case Protected:
		return "protected"
	case Private:
		return "private"
	default:
		return fmt.Sprintf("visibility(%d)", int(v))
	}
}

// ParseVisibility maps "public", "protected" and "private" to a Visibility.
func ParseVisibility(s string) (Visibility, bool) {
	switch s {
	case "public":
		return Public, true
	case "protected":
		return Protected, true
	case "private":
		return Private, true
	}
	return Public, false
}

// constTable is a name-indexed constant environment that remembers the
// order names were bound in.
type constTable struct {
	names   []string
	entries map[string]Entity
}

func newConstTable() *constTable {
	return &constTable{entries: make(map[string]Entity)}
}

func (t *constTable) set(name string, e Entity) {
	if _, exists := t.entries[name]; !exists {
		t.names = append(t.names, name)
	}
	t.entries[name] = e
}

func (t *constTable) get(name string) (Entity, bool) {
	e, ok := t.entries[name]
	return e, ok
}

func (t *constTable) all() iter.Seq2[string, Entity] {
	return func(yield func(string, Entity) bool) {
		for _, name := range t.names {
			if !yield(name, t.entries[name]) {
				return
			}
		}
	}
}

// Module is a loaded module or class. It is immutable once the loader
// returns.
type Module struct {
	id         core.ID
	name       string
	kind       ModuleKind
	superclass *Module

	includedModules []*Module
	ancestors       []*Module
	constants       *constTable
	methods         []*MethodDefinition
}

func newModule(id core.ID, name string, kind ModuleKind) *Module {
	return &Module{
		id:        id,
		name:      name,
		kind:      kind,
		constants: newConstTable(),
	}
}

func (*Module) entity() {}

// ID returns the snapshot id of the module.
func (m *Module) ID() core.ID { return m.id }

// Name returns the qualified display name, e.g. "A::B".
func (m *Module) Name() string { return m.name }

// Kind reports whether this is a plain module or a class.
func (m *Module) Kind() ModuleKind { return m.kind }

// IsClass reports whether the module is a class.
func (m *Module) IsClass() bool { return m.kind == KindClass }

// Superclass returns the superclass of a class. It reports false for plain
// modules and for the root of the class hierarchy.
func (m *Module) Superclass() (*Module, bool) {
	return m.superclass, m.superclass != nil
}

// IncludedModules returns the included modules in snapshot order.
func (m *Module) IncludedModules() []*Module {
	return slices.Clone(m.includedModules)
}

// Ancestors returns the precomputed linearization, self included.
func (m *Module) Ancestors() []*Module {
	return slices.Clone(m.ancestors)
}

// Constant looks name up in the module's own constant table only.
func (m *Module) Constant(name string) (Entity, bool) {
	return m.constants.get(name)
}

// Constants iterates the module's own constants in load order.
func (m *Module) Constants() iter.Seq2[string, Entity] {
	return m.constants.all()
}

// ConstantNames returns the names of the module's own constants.
func (m *Module) ConstantNames() []string {
	return slices.Clone(m.constants.names)
}

// DefinedMethods returns instance methods followed by singleton methods,
// each group ordered public, protected, private.
func (m *Module) DefinedMethods() []*MethodDefinition {
	return slices.Clone(m.methods)
}

// DefinedInstanceMethods returns the instance-level definitions.
func (m *Module) DefinedInstanceMethods() []*MethodDefinition {
	return filterMethods(m.methods, true)
}

// DefinedSingletonMethods returns the singleton-level definitions.
func (m *Module) DefinedSingletonMethods() []*MethodDefinition {
	return filterMethods(m.methods, false)
}

func (m *Module) String() string {
	return fmt.Sprintf("%s %s (%s)", m.kind, m.name, m.id)
}

// Value is a constant bound to a plain object. It records the object's
// class and the per-object (singleton) methods the producer observed.
type Value struct {
	name    string
	class   *Module
	methods []*MethodDefinition
}

func (*Value) entity() {}

// Name returns the constant name the value is bound to.
func (v *Value) Name() string { return v.name }

// Class returns the runtime class of the value.
func (v *Value) Class() *Module { return v.class }

// DefinedMethods returns the value's own methods.
func (v *Value) DefinedMethods() []*MethodDefinition {
	return slices.Clone(v.methods)
}

// DefinedInstanceMethods returns the instance-level definitions.
func (v *Value) DefinedInstanceMethods() []*MethodDefinition {
	return filterMethods(v.methods, true)
}

// DefinedSingletonMethods returns the singleton-level definitions.
func (v *Value) DefinedSingletonMethods() []*MethodDefinition {
	return filterMethods(v.methods, false)
}

func (v *Value) String() string {
	if v.class == nil {
		return fmt.Sprintf("value %s", v.name)
	}
	return fmt.Sprintf("value %s: %s", v.name, v.class.name)
}

// MethodDefinition is a method as exposed by one module or value, with the
// visibility and kind it has there. Several definitions may share a body.
type MethodDefinition struct {
	definedIn  Entity
	visibility Visibility
	instance   bool
	body       *MethodBody
}

// Name returns the method name.
func (d *MethodDefinition) Name() string { return d.body.name }

// DefinedIn returns the module or value whose method table lists d.
func (d *MethodDefinition) DefinedIn() Entity { return d.definedIn }

// Visibility returns the access level.
func (d *MethodDefinition) Visibility() Visibility { return d.visibility }

// IsInstanceMethod reports whether d is an instance-level method.
func (d *MethodDefinition) IsInstanceMethod() bool { return d.instance }

// IsSingletonMethod reports whether d is a singleton-level method.
func (d *MethodDefinition) IsSingletonMethod() bool { return !d.instance }

// Body returns the shared method body.
func (d *MethodDefinition) Body() *MethodBody { return d.body }

func (d *MethodDefinition) String() string {
	sep := "#"
	if !d.instance {
		sep = "."
	}
	owner := ""
	if d.definedIn != nil {
		owner = d.definedIn.Name()
	}
	return fmt.Sprintf("%s %s%s%s", d.visibility, owner, sep, d.body.name)
}

// MethodKey is the composite identity under which bodies are deduplicated.
type MethodKey struct {
	OwnerID   core.ID
	OwnerName string
	Name      string
}

// MethodBody is the deduplicated implementation record of a method.
type MethodBody struct {
	key        MethodKey
	name       string
	owner      *Module
	location   *core.Location
	parameters []core.Parameter
}

// Name returns the method name.
func (b *MethodBody) Name() string { return b.name }

// Owner returns the module that implements the method.
func (b *MethodBody) Owner() *Module { return b.owner }

// Location returns the source position, if the producer recorded one.
func (b *MethodBody) Location() (core.Location, bool) {
	if b.location == nil {
		return core.Location{}, false
	}
	return *b.location, true
}

// Parameters returns the formal parameters in declaration order.
func (b *MethodBody) Parameters() []core.Parameter {
	return slices.Clone(b.parameters)
}

// Key returns the composite identity of the body.
func (b *MethodBody) Key() MethodKey { return b.key }

func filterMethods(defs []*MethodDefinition, instance bool) []*MethodDefinition {
	var out []*MethodDefinition
	for _, d := range defs {
		if d.instance == instance {
			out = append(out, d)
		}
	}
	return out
}
