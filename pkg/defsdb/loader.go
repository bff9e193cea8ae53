package defsdb

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/leapstack-labs/defsdb/pkg/core"
)

// LoadOptions configures the loader.
type LoadOptions struct {
	// Logger receives per-module debug lines and a load summary.
	// A nil Logger discards output.
	Logger *slog.Logger
}

// Load links a snapshot into a Database using default options.
func Load(snap *core.Snapshot) (*Database, error) {
	return LoadWithOptions(snap, LoadOptions{})
}

// LoadWithOptions links a snapshot into a Database.
//
// Module records are loaded in snapshot order, then the top-level table,
// then the library list. Loading is all or nothing: on a *SchemaError or
// *DanglingReferenceError no Database is returned.
func LoadWithOptions(snap *core.Snapshot, opts LoadOptions) (*Database, error) {
	if snap == nil {
		return nil, &SchemaError{Field: "snapshot", Message: "snapshot is nil"}
	}
	if field := missingSnapshotField(snap); field != "" {
		return nil, &SchemaError{Field: field, Message: "missing required field"}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	l := &loader{
		snap:        snap,
		db:          newDatabase(),
		bodiesByKey: make(map[MethodKey]*MethodBody),
		logger:      logger,
	}

	for id := range snap.Modules.KeysFromOldest() {
		if _, err := l.loadModule(id, "modules"); err != nil {
			return nil, err
		}
	}

	for name, rec := range snap.TopLevel.FromOldest() {
		e, err := l.loadConstant(name, rec, "toplevel."+name)
		if err != nil {
			return nil, err
		}
		l.db.toplevel.set(name, e)
	}

	l.db.requiredLibs = slices.Clone(snap.Libs)

	stats := l.db.Stats()
	logger.Info("loaded definitions database",
		slog.Int("modules", stats.Modules),
		slog.Int("classes", stats.Classes),
		slog.Int("method_bodies", stats.MethodBodies),
		slog.Int("toplevel", stats.TopLevel),
		slog.Int("libs", stats.RequiredLibs),
	)

	return l.db, nil
}

// Open reads a snapshot file and loads it. Files ending in .yaml or .yml
// are decoded as YAML, everything else as JSON.
func Open(path string, opts LoadOptions) (*Database, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is supplied by the caller
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	snap, err := core.DecodeSnapshot(f, core.FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	db, err := LoadWithOptions(snap, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return db, nil
}

// loader holds the mutable state of a single load pass.
//
// Every node is registered in the database tables before the records it
// refers to are loaded. A reference back to a node that is still being
// populated (a module listing itself among its ancestors, a superclass
// whose constants name the subclass) then finds the registered instance
// instead of recursing again. Recursion depth is bounded by the longest
// chain of superclass/ancestor/constant references; goroutine stacks grow
// on demand so no explicit work stack is needed.
type loader struct {
	snap        *core.Snapshot
	db          *Database
	bodiesByKey map[MethodKey]*MethodBody
	logger      *slog.Logger
}

func (l *loader) loadModule(id core.ID, from string) (*Module, error) {
	if id == "" {
		return nil, &SchemaError{Field: from, Message: "missing module id"}
	}
	if m, ok := l.db.modules[id]; ok {
		return m, nil
	}

	rec, ok := l.snap.Modules.Get(id)
	if !ok {
		return nil, &DanglingReferenceError{Kind: "module", ID: id, From: from}
	}

	field := "modules." + string(id)
	if rec.ID == "" {
		return nil, &SchemaError{Field: field + ".id", Message: "missing module id"}
	}
	if rec.ID != id {
		return nil, &SchemaError{Field: field + ".id", Message: fmt.Sprintf("record id %q does not match its key", rec.ID)}
	}

	var kind ModuleKind
	switch rec.Type {
	case core.TypeModule:
		kind = KindModule
	case core.TypeClass:
		kind = KindClass
	default:
		return nil, &SchemaError{Field: field + ".type", Message: fmt.Sprintf("unknown module type %q", rec.Type)}
	}

	if missing := missingModuleField(rec); missing != "" {
		return nil, &SchemaError{Field: field + "." + missing, Message: "missing required field"}
	}
	if len(rec.Ancestors) == 0 {
		return nil, &SchemaError{Field: field + ".ancestors", Message: "ancestors is empty"}
	}

	m := newModule(id, rec.Name, kind)
	l.db.modules[id] = m
	l.db.moduleOrder = append(l.db.moduleOrder, m)

	l.logger.Debug("loading module",
		slog.String("id", string(id)),
		slog.String("name", rec.Name),
		slog.String("type", string(rec.Type)),
	)

	if rec.Superclass != nil {
		if kind != KindClass {
			return nil, &SchemaError{Field: field + ".superclass", Message: "only classes have a superclass"}
		}
		super, err := l.loadModule(rec.Superclass.ID, field+".superclass")
		if err != nil {
			return nil, err
		}
		m.superclass = super
	}

	included, err := l.loadRefs(rec.IncludedModules, field+".included_modules")
	if err != nil {
		return nil, err
	}
	m.includedModules = included

	ancestors, err := l.loadRefs(rec.Ancestors, field+".ancestors")
	if err != nil {
		return nil, err
	}
	m.ancestors = ancestors

	instanceMethods, err := l.loadMethodTable(rec.InstanceMethods, true, m, field+".instance_methods")
	if err != nil {
		return nil, err
	}
	singletonMethods, err := l.loadMethodTable(rec.Methods, false, m, field+".methods")
	if err != nil {
		return nil, err
	}
	m.methods = append(instanceMethods, singletonMethods...)

	for name, c := range rec.Constants.FromOldest() {
		e, err := l.loadConstant(name, c, field+".constants."+name)
		if err != nil {
			return nil, err
		}
		m.constants.set(name, e)
	}

	return m, nil
}

func (l *loader) loadRefs(refs []core.Ref, field string) ([]*Module, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	out := make([]*Module, 0, len(refs))
	for i, ref := range refs {
		m, err := l.loadModule(ref.ID, fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (l *loader) loadConstant(name string, rec core.ConstantRecord, field string) (Entity, error) {
	switch {
	case rec.IsValue():
		if rec.Class == nil {
			return nil, &SchemaError{Field: field + ".class", Message: "value without a class"}
		}
		if rec.Methods == nil {
			return nil, &SchemaError{Field: field + ".methods", Message: "missing required field"}
		}
		if missing := missingVisibility(rec.Methods); missing != "" {
			return nil, &SchemaError{Field: field + ".methods." + missing, Message: "missing required field"}
		}
		class, err := l.loadModule(rec.Class.ID, field+".class")
		if err != nil {
			return nil, err
		}

		v := &Value{name: name, class: class}
		defs, err := l.loadMethodTable(rec.Methods, false, v, field+".methods")
		if err != nil {
			return nil, err
		}
		v.methods = defs
		return v, nil

	case rec.Type.IsModule():
		return l.loadModule(rec.ID, field+".id")

	default:
		return nil, &SchemaError{Field: field + ".type", Message: fmt.Sprintf("unknown constant type %q", rec.Type)}
	}
}

func (l *loader) loadMethodTable(t *core.MethodTable, instance bool, definedIn Entity, field string) ([]*MethodDefinition, error) {
	groups := []struct {
		visibility Visibility
		refs       []core.MethodRef
	}{
		{Public, t.Public},
		{Protected, t.Protected},
		{Private, t.Private},
	}

	var defs []*MethodDefinition
	for _, g := range groups {
		for i, ref := range g.refs {
			body, err := l.loadMethod(ref, fmt.Sprintf("%s.%s[%d]", field, g.visibility, i))
			if err != nil {
				return nil, err
			}
			defs = append(defs, &MethodDefinition{
				definedIn:  definedIn,
				visibility: g.visibility,
				instance:   instance,
				body:       body,
			})
		}
	}
	return defs, nil
}

// loadMethod returns the body for ref, building it on first sight. Bodies
// are shared by composite key, so two records describing the same owner
// and method name yield one body.
func (l *loader) loadMethod(ref core.MethodRef, from string) (*MethodBody, error) {
	if ref.ID == "" {
		return nil, &SchemaError{Field: from + ".id", Message: "missing method id"}
	}
	if b, ok := l.db.bodies[ref.ID]; ok {
		return b, nil
	}

	rec, ok := l.snap.Methods.Get(ref.ID)
	if !ok {
		return nil, &DanglingReferenceError{Kind: "method", ID: ref.ID, From: from}
	}

	field := "methods." + string(ref.ID)
	if rec.Name == "" {
		return nil, &SchemaError{Field: field + ".name", Message: "missing method name"}
	}
	if rec.Owner.ID == "" {
		return nil, &SchemaError{Field: field + ".owner", Message: "missing method owner"}
	}
	if rec.Parameters == nil {
		return nil, &SchemaError{Field: field + ".parameters", Message: "missing required field"}
	}
	for i, p := range rec.Parameters {
		if p.Kind == "" {
			return nil, &SchemaError{Field: fmt.Sprintf("%s.parameters[%d]", field, i), Message: "missing parameter kind"}
		}
	}

	key := MethodKey{OwnerID: rec.Owner.ID, OwnerName: rec.Owner.Name, Name: rec.Name}
	if b, ok := l.bodiesByKey[key]; ok {
		l.db.bodies[ref.ID] = b
		return b, nil
	}

	b := &MethodBody{
		key:        key,
		name:       rec.Name,
		parameters: slices.Clone(rec.Parameters),
	}
	if rec.Location != nil {
		loc := *rec.Location
		b.location = &loc
	}
	l.db.bodies[ref.ID] = b
	l.db.bodyOrder = append(l.db.bodyOrder, b)
	l.bodiesByKey[key] = b

	owner, err := l.loadModule(rec.Owner.ID, field+".owner")
	if err != nil {
		return nil, err
	}
	b.owner = owner

	return b, nil
}

func missingSnapshotField(snap *core.Snapshot) string {
	switch {
	case snap.Modules == nil:
		return "modules"
	case snap.TopLevel == nil:
		return "toplevel"
	case snap.Methods == nil:
		return "methods"
	case snap.Libs == nil:
		return "libs"
	}
	return ""
}

// missingModuleField returns the path, relative to the record, of the
// first required key rec lacks.
func missingModuleField(rec core.ModuleRecord) string {
	switch {
	case rec.Name == "":
		return "name"
	case rec.IncludedModules == nil:
		return "included_modules"
	case rec.Ancestors == nil:
		return "ancestors"
	case rec.InstanceMethods == nil:
		return "instance_methods"
	case rec.Methods == nil:
		return "methods"
	case rec.Constants == nil:
		return "constants"
	}
	if v := missingVisibility(rec.InstanceMethods); v != "" {
		return "instance_methods." + v
	}
	if v := missingVisibility(rec.Methods); v != "" {
		return "methods." + v
	}
	return ""
}

func missingVisibility(t *core.MethodTable) string {
	switch {
	case t.Public == nil:
		return Public.String()
	case t.Protected == nil:
		return Protected.String()
	case t.Private == nil:
		return Private.String()
	}
	return ""
}
