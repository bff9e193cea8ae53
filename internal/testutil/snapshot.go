package testutil

import (
	"github.com/leapstack-labs/defsdb/pkg/core"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// SnapshotBuilder assembles a core.Snapshot in Go code. Ref names are
// filled in from the module records when Build is called.
type SnapshotBuilder struct {
	modules  []*ModuleBuilder
	toplevel *orderedmap.OrderedMap[string, core.ConstantRecord]
	methods  *orderedmap.OrderedMap[core.ID, core.MethodRecord]
	libs     []string
	root     core.ID
}

// NewSnapshot starts an empty snapshot.
func NewSnapshot() *SnapshotBuilder {
	return &SnapshotBuilder{
		toplevel: orderedmap.New[string, core.ConstantRecord](),
		methods:  orderedmap.New[core.ID, core.MethodRecord](),
	}
}

// Module adds a plain module record.
func (b *SnapshotBuilder) Module(id, name string) *ModuleBuilder {
	return b.add(id, name, core.TypeModule)
}

// Class adds a class record. An empty superID leaves the superclass unset.
func (b *SnapshotBuilder) Class(id, name, superID string) *ModuleBuilder {
	m := b.add(id, name, core.TypeClass)
	if superID != "" {
		m.rec.Superclass = &core.Ref{ID: core.ID(superID)}
	}
	return m
}

func (b *SnapshotBuilder) add(id, name string, typ core.RecordType) *ModuleBuilder {
	m := &ModuleBuilder{
		b:         b,
		rec:       core.NewModuleRecord(core.ID(id), typ, name),
		constants: orderedmap.New[string, core.ConstantRecord](),
	}
	b.modules = append(b.modules, m)
	return m
}

// Root marks the module whose constant table mirrors the top level, the
// way the root class does in a real dump.
func (b *SnapshotBuilder) Root(id string) *SnapshotBuilder {
	b.root = core.ID(id)
	return b
}

// TopLevel binds a top-level name to a module record.
func (b *SnapshotBuilder) TopLevel(name, id string) *SnapshotBuilder {
	b.toplevel.Set(name, moduleConstant(id))
	return b
}

// TopValue binds a top-level name to a value of class classID.
func (b *SnapshotBuilder) TopValue(name, classID string, methods ...core.MethodRef) *SnapshotBuilder {
	b.toplevel.Set(name, valueConstant(classID, methods))
	return b
}

// Method adds a method record and returns a reference to it.
func (b *SnapshotBuilder) Method(id, ownerID, name string, params ...core.Parameter) core.MethodRef {
	b.methods.Set(core.ID(id), core.MethodRecord{
		Name:       name,
		Owner:      core.Ref{ID: core.ID(ownerID)},
		Location:   &core.Location{File: "sample.rb", Line: b.methods.Len() + 1},
		Parameters: append([]core.Parameter{}, params...),
	})
	return core.MethodRef{ID: core.ID(id), Name: name}
}

// Lib records a required library path.
func (b *SnapshotBuilder) Lib(path string) *SnapshotBuilder {
	b.libs = append(b.libs, path)
	return b
}

// Build returns the assembled snapshot.
func (b *SnapshotBuilder) Build() *core.Snapshot {
	names := make(map[core.ID]string, len(b.modules))
	types := make(map[core.ID]core.RecordType, len(b.modules))
	for _, m := range b.modules {
		names[m.rec.ID] = m.rec.Name
		types[m.rec.ID] = m.rec.Type
	}
	ref := func(r core.Ref) core.Ref {
		r.Name = names[r.ID]
		return r
	}
	refs := func(rs []core.Ref) []core.Ref {
		out := make([]core.Ref, len(rs))
		for i, r := range rs {
			out[i] = ref(r)
		}
		return out
	}
	constant := func(c core.ConstantRecord) core.ConstantRecord {
		if c.Class != nil {
			r := ref(*c.Class)
			c.Class = &r
		}
		if c.Type.IsModule() {
			c.Name = names[c.ID]
			if t, ok := types[c.ID]; ok {
				c.Type = t
			}
		}
		return c
	}

	snap := core.NewSnapshot()
	snap.Libs = append(snap.Libs, b.libs...)

	for _, m := range b.modules {
		rec := m.rec
		if rec.Superclass != nil {
			r := ref(*rec.Superclass)
			rec.Superclass = &r
		}
		rec.IncludedModules = refs(rec.IncludedModules)
		rec.Ancestors = refs(rec.Ancestors)

		rec.Constants = orderedmap.New[string, core.ConstantRecord]()
		for name, c := range m.constants.FromOldest() {
			rec.Constants.Set(name, constant(c))
		}
		if rec.ID == b.root {
			for name, c := range b.toplevel.FromOldest() {
				if _, exists := rec.Constants.Get(name); !exists {
					rec.Constants.Set(name, constant(c))
				}
			}
		}
		snap.Modules.Set(rec.ID, rec)
	}

	for name, c := range b.toplevel.FromOldest() {
		snap.TopLevel.Set(name, constant(c))
	}

	for id, rec := range b.methods.FromOldest() {
		rec.Owner = ref(rec.Owner)
		snap.Methods.Set(id, rec)
	}

	return snap
}

// ModuleBuilder fills in one module record.
type ModuleBuilder struct {
	b         *SnapshotBuilder
	rec       core.ModuleRecord
	constants *orderedmap.OrderedMap[string, core.ConstantRecord]
}

// Includes appends included modules.
func (m *ModuleBuilder) Includes(ids ...string) *ModuleBuilder {
	for _, id := range ids {
		m.rec.IncludedModules = append(m.rec.IncludedModules, core.Ref{ID: core.ID(id)})
	}
	return m
}

// Ancestors sets the ancestor linearization.
func (m *ModuleBuilder) Ancestors(ids ...string) *ModuleBuilder {
	m.rec.Ancestors = nil
	for _, id := range ids {
		m.rec.Ancestors = append(m.rec.Ancestors, core.Ref{ID: core.ID(id)})
	}
	return m
}

// Const binds a nested constant to a module record.
func (m *ModuleBuilder) Const(name, id string) *ModuleBuilder {
	m.constants.Set(name, moduleConstant(id))
	return m
}

// Value binds a nested constant to a value of class classID.
func (m *ModuleBuilder) Value(name, classID string, methods ...core.MethodRef) *ModuleBuilder {
	m.constants.Set(name, valueConstant(classID, methods))
	return m
}

// InstanceMethod defines an instance method owned by this module.
func (m *ModuleBuilder) InstanceMethod(visibility, name string, params ...core.Parameter) *ModuleBuilder {
	ref := m.b.Method(string(m.rec.ID)+"#"+name, string(m.rec.ID), name, params...)
	return m.ListInstance(visibility, ref)
}

// SingletonMethod defines a singleton method owned by this module.
func (m *ModuleBuilder) SingletonMethod(visibility, name string, params ...core.Parameter) *ModuleBuilder {
	ref := m.b.Method(string(m.rec.ID)+"."+name, string(m.rec.ID), name, params...)
	return m.ListSingleton(visibility, ref)
}

// ListInstance lists an existing method record among the instance methods.
func (m *ModuleBuilder) ListInstance(visibility string, ref core.MethodRef) *ModuleBuilder {
	appendRef(m.rec.InstanceMethods, visibility, ref)
	return m
}

// ListSingleton lists an existing method record among the singleton methods.
func (m *ModuleBuilder) ListSingleton(visibility string, ref core.MethodRef) *ModuleBuilder {
	appendRef(m.rec.Methods, visibility, ref)
	return m
}

func appendRef(t *core.MethodTable, visibility string, ref core.MethodRef) {
	switch visibility {
	case "private":
		t.Private = append(t.Private, ref)
	case "protected":
		t.Protected = append(t.Protected, ref)
	default:
		t.Public = append(t.Public, ref)
	}
}

func moduleConstant(id string) core.ConstantRecord {
	return core.ConstantRecord{Type: core.TypeModule, ID: core.ID(id)}
}

func valueConstant(classID string, methods []core.MethodRef) core.ConstantRecord {
	table := core.NewMethodTable()
	table.Public = append(table.Public, methods...)
	return core.ConstantRecord{
		Type:    core.TypeValue,
		Class:   &core.Ref{ID: core.ID(classID)},
		Methods: table,
	}
}
