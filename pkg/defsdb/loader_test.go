package defsdb

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/leapstack-labs/defsdb/internal/testutil"
	"github.com/leapstack-labs/defsdb/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSample(t *testing.T) *Database {
	t.Helper()
	db, err := LoadWithOptions(testutil.SampleSnapshot(), LoadOptions{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	return db
}

func mustModule(t *testing.T, db *Database, id string) *Module {
	t.Helper()
	m, ok := db.Module(core.ID(id))
	require.True(t, ok, "module %s not loaded", id)
	return m
}

func TestLoad_Sample(t *testing.T) {
	db := loadSample(t)

	e, ok := db.TopLevel("TestClass")
	require.True(t, ok)
	testClass, ok := AsModule(e)
	require.True(t, ok, "TestClass should be a module")
	assert.True(t, testClass.IsClass())

	super, ok := testClass.Superclass()
	require.True(t, ok)
	assert.Equal(t, "TestSuperClass", super.Name())

	var included []string
	for _, m := range testClass.IncludedModules() {
		included = append(included, m.Name())
	}
	assert.Contains(t, included, "TestModule")

	hasMethod := func(defs []*MethodDefinition, name string, vis Visibility) bool {
		for _, d := range defs {
			if d.Name() == name && d.Visibility() == vis {
				return true
			}
		}
		return false
	}

	instance := testClass.DefinedInstanceMethods()
	assert.True(t, hasMethod(instance, "test_method", Public))
	assert.True(t, hasMethod(instance, "test_private_method", Private))
	assert.True(t, hasMethod(instance, "test_protected_method", Protected))

	singleton := testClass.DefinedSingletonMethods()
	assert.True(t, hasMethod(singleton, "test_singleton_method", Public))
	assert.True(t, hasMethod(singleton, "test_private_singleton_method", Private))
	assert.True(t, hasMethod(singleton, "test_protected_singleton_method", Protected))

	for _, d := range testClass.DefinedMethods() {
		assert.Same(t, testClass, d.DefinedIn(), "definition %s", d)
	}
}

func TestLoad_TopLevelValue(t *testing.T) {
	db := loadSample(t)

	e, ok := db.TopLevel("TestConstant")
	require.True(t, ok)
	v, ok := e.(*Value)
	require.True(t, ok, "TestConstant should be a value, got %T", e)

	assert.Equal(t, "TestConstant", v.Name())
	assert.Equal(t, "TestClass", v.Class().Name())

	defs := v.DefinedSingletonMethods()
	require.Len(t, defs, 1)
	assert.Equal(t, "test_method", defs[0].Name())
	assert.Same(t, v, defs[0].DefinedIn())
	assert.Empty(t, v.DefinedInstanceMethods())
}

func TestLoad_NestedValue(t *testing.T) {
	db := loadSample(t)
	testClass := mustModule(t, db, testutil.TestClassID)

	e, ok := testClass.Constant("TestConstant")
	require.True(t, ok)
	v, ok := e.(*Value)
	require.True(t, ok)
	assert.Equal(t, "TestSuperClass", v.Class().Name())
}

func TestLoad_NodeIdentity(t *testing.T) {
	db := loadSample(t)

	byID := mustModule(t, db, testutil.TestClassID)
	byName, ok := db.TopLevel("TestClass")
	require.True(t, ok)
	assert.Same(t, byID, byName)

	ancestors := byID.Ancestors()
	require.NotEmpty(t, ancestors)
	assert.Same(t, byID, ancestors[0], "class should be its own first ancestor")

	object := mustModule(t, db, testutil.ObjectID)
	for m := range db.EachModule() {
		if m.Name() == "Object" {
			assert.Same(t, object, m)
		}
	}

	seen := make(map[core.ID]bool)
	for m := range db.EachModule() {
		assert.False(t, seen[m.ID()], "module %s enumerated twice", m.ID())
		seen[m.ID()] = true
	}
}

func TestLoad_SelfReferentialAncestors(t *testing.T) {
	snap := testutil.NewSnapshot()
	snap.Module("1", "Loop").
		Ancestors("1", "2").
		Value("X", "3").
		Const("Me", "1")
	snap.Module("2", "Other").
		Ancestors("2", "1").
		Value("X", "3").
		Const("Back", "1")
	snap.Class("3", "Thing", "").
		Ancestors("3")
	snap.TopLevel("Loop", "1")

	db, err := Load(snap.Build())
	require.NoError(t, err)

	loop := mustModule(t, db, "1")
	me, ok := loop.Constant("Me")
	require.True(t, ok)
	assert.Same(t, loop, me)

	other := mustModule(t, db, "2")
	assert.Same(t, loop, other.Ancestors()[1])

	// The module's own X must win over the one on Other.
	x, err := db.LookupConstant("X", loop, nil)
	require.NoError(t, err)
	own, _ := loop.Constant("X")
	assert.Same(t, own, x)

	found, ok := lookupFromAncestors("X", loop)
	require.True(t, ok)
	assert.Same(t, own, found)
}

func TestLoad_Deterministic(t *testing.T) {
	first := loadSample(t)
	second := loadSample(t)

	names := func(db *Database) []string {
		var out []string
		for m := range db.EachModule() {
			out = append(out, string(m.ID())+":"+m.Name())
		}
		for b := range db.EachMethodBody() {
			out = append(out, b.Owner().Name()+"#"+b.Name())
		}
		for d := range db.EachMethod() {
			out = append(out, d.String())
		}
		return out
	}

	assert.Equal(t, names(first), names(second))
	assert.Equal(t, first.TopLevelNames(), second.TopLevelNames())
	assert.Equal(t, first.Stats(), second.Stats())
}

func TestLoad_ModuleOrderFollowsSnapshot(t *testing.T) {
	snap := testutil.SampleSnapshot()
	db, err := Load(snap)
	require.NoError(t, err)

	var got []core.ID
	for m := range db.EachModule() {
		got = append(got, m.ID())
	}
	assert.Equal(t, slices.Collect(snap.Modules.KeysFromOldest()), got)
}

func TestLoad_MethodBodyDedup(t *testing.T) {
	db := loadSample(t)

	own, ok := db.MethodBody("201#module_method")
	require.True(t, ok)
	inherited, ok := db.MethodBody("202#module_method")
	require.True(t, ok)
	assert.Same(t, own, inherited, "same owner and name must share one body")

	assert.Equal(t, "TestModule", own.Owner().Name())
	assert.Equal(t, MethodKey{OwnerID: testutil.TestModuleID, OwnerName: "TestModule", Name: "module_method"}, own.Key())

	testClass := mustModule(t, db, testutil.TestClassID)
	testModule := mustModule(t, db, testutil.TestModuleID)

	var fromClass, fromModule *MethodBody
	for _, d := range testClass.DefinedMethods() {
		if d.Name() == "module_method" {
			fromClass = d.Body()
		}
	}
	for _, d := range testModule.DefinedMethods() {
		if d.Name() == "module_method" {
			fromModule = d.Body()
		}
	}
	require.NotNil(t, fromClass)
	assert.Same(t, fromModule, fromClass)

	count := 0
	for b := range db.EachMethodBody() {
		if b.Name() == "module_method" {
			count++
		}
	}
	assert.Equal(t, 1, count, "deduplicated body should be enumerated once")

	// A value listing a class method reuses the class's body.
	e, _ := db.TopLevel("TestConstant")
	v := e.(*Value)
	testMethod, ok := db.MethodBody("202#test_method")
	require.True(t, ok)
	assert.Same(t, testMethod, v.DefinedMethods()[0].Body())
}

func TestLoad_MethodBodyDetails(t *testing.T) {
	db := loadSample(t)

	body, ok := db.MethodBody("202#test_method")
	require.True(t, ok)

	loc, ok := body.Location()
	require.True(t, ok)
	assert.Equal(t, "sample.rb", loc.File)
	assert.Positive(t, loc.Line)

	assert.Equal(t, []core.Parameter{
		{Kind: core.ParamRequired, Name: "a"},
		{Kind: core.ParamOptional, Name: "b"},
		{Kind: core.ParamRest, Name: "rest"},
		{Kind: core.ParamBlock, Name: "blk"},
	}, body.Parameters())
}

func TestLoad_RequiredLibs(t *testing.T) {
	db := loadSample(t)
	assert.Equal(t, []string{"/usr/lib/ruby/3.3.0/set.rb", "/usr/lib/ruby/3.3.0/tsort.rb"}, db.RequiredLibs())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name      string
		build     func() *core.Snapshot
		dangling  bool
		wantField string
	}{
		{
			name: "dangling superclass",
			build: func() *core.Snapshot {
				b := testutil.NewSnapshot()
				b.Class("1", "Orphan", "99").Ancestors("1")
				return b.Build()
			},
			dangling:  true,
			wantField: "modules.1.superclass",
		},
		{
			name: "dangling ancestor",
			build: func() *core.Snapshot {
				b := testutil.NewSnapshot()
				b.Module("1", "M").Ancestors("1", "42")
				return b.Build()
			},
			dangling:  true,
			wantField: "modules.1.ancestors[1]",
		},
		{
			name: "dangling included module",
			build: func() *core.Snapshot {
				b := testutil.NewSnapshot()
				b.Module("1", "M").Includes("7").Ancestors("1")
				return b.Build()
			},
			dangling:  true,
			wantField: "modules.1.included_modules[0]",
		},
		{
			name: "dangling method",
			build: func() *core.Snapshot {
				b := testutil.NewSnapshot()
				b.Module("1", "M").Ancestors("1").ListInstance("public", core.MethodRef{ID: "nope", Name: "x"})
				return b.Build()
			},
			dangling:  true,
			wantField: "modules.1.instance_methods.public[0]",
		},
		{
			name: "dangling method owner",
			build: func() *core.Snapshot {
				b := testutil.NewSnapshot()
				ref := b.Method("m1", "55", "x")
				b.Module("1", "M").Ancestors("1").ListSingleton("private", ref)
				return b.Build()
			},
			dangling:  true,
			wantField: "methods.m1.owner",
		},
		{
			name: "dangling value class",
			build: func() *core.Snapshot {
				b := testutil.NewSnapshot()
				b.TopValue("V", "8")
				return b.Build()
			},
			dangling:  true,
			wantField: "toplevel.V.class",
		},
		{
			name: "dangling nested constant",
			build: func() *core.Snapshot {
				b := testutil.NewSnapshot()
				b.Module("1", "M").Ancestors("1").Const("Inner", "2")
				return b.Build()
			},
			dangling:  true,
			wantField: "modules.1.constants.Inner.id",
		},
		{
			name: "unknown module type",
			build: func() *core.Snapshot {
				snap := testutil.NewSnapshot().Build()
				snap.Modules.Set("1", core.ModuleRecord{ID: "1", Type: "struct", Name: "S"})
				return snap
			},
			wantField: "modules.1.type",
		},
		{
			name: "missing module id",
			build: func() *core.Snapshot {
				snap := testutil.NewSnapshot().Build()
				snap.Modules.Set("1", core.ModuleRecord{Type: core.TypeModule, Name: "M"})
				return snap
			},
			wantField: "modules.1.id",
		},
		{
			name: "record id does not match key",
			build: func() *core.Snapshot {
				snap := testutil.NewSnapshot().Build()
				snap.Modules.Set("1", core.ModuleRecord{ID: "2", Type: core.TypeModule, Name: "M"})
				return snap
			},
			wantField: "modules.1.id",
		},
		{
			name:      "superclass on a module",
			build:     withModule(func(rec *core.ModuleRecord) { rec.Superclass = &core.Ref{ID: "1"} }),
			wantField: "modules.1.superclass",
		},
		{
			name:      "missing module name",
			build:     withModule(func(rec *core.ModuleRecord) { rec.Name = "" }),
			wantField: "modules.1.name",
		},
		{
			name:      "missing included modules",
			build:     withModule(func(rec *core.ModuleRecord) { rec.IncludedModules = nil }),
			wantField: "modules.1.included_modules",
		},
		{
			name:      "missing ancestors",
			build:     withModule(func(rec *core.ModuleRecord) { rec.Ancestors = nil }),
			wantField: "modules.1.ancestors",
		},
		{
			name:      "empty ancestors",
			build:     withModule(func(rec *core.ModuleRecord) { rec.Ancestors = []core.Ref{} }),
			wantField: "modules.1.ancestors",
		},
		{
			name:      "missing instance methods",
			build:     withModule(func(rec *core.ModuleRecord) { rec.InstanceMethods = nil }),
			wantField: "modules.1.instance_methods",
		},
		{
			name:      "missing singleton methods",
			build:     withModule(func(rec *core.ModuleRecord) { rec.Methods = nil }),
			wantField: "modules.1.methods",
		},
		{
			name:      "missing visibility list",
			build:     withModule(func(rec *core.ModuleRecord) { rec.InstanceMethods.Private = nil }),
			wantField: "modules.1.instance_methods.private",
		},
		{
			name:      "missing constants",
			build:     withModule(func(rec *core.ModuleRecord) { rec.Constants = nil }),
			wantField: "modules.1.constants",
		},
		{
			name: "value without methods",
			build: func() *core.Snapshot {
				b := testutil.NewSnapshot()
				b.Class("1", "Object", "").Ancestors("1")
				snap := b.Build()
				snap.TopLevel.Set("V", core.ConstantRecord{Type: core.TypeValue, Class: &core.Ref{ID: "1"}})
				return snap
			},
			wantField: "toplevel.V.methods",
		},
		{
			name: "missing method parameters",
			build: func() *core.Snapshot {
				b := testutil.NewSnapshot()
				b.Module("1", "M").Ancestors("1").ListInstance("public", core.MethodRef{ID: "m1"})
				snap := b.Build()
				snap.Methods.Set("m1", core.MethodRecord{Name: "x", Owner: core.Ref{ID: "1"}})
				return snap
			},
			wantField: "methods.m1.parameters",
		},
		{
			name:      "missing modules",
			build:     withSnapshot(func(snap *core.Snapshot) { snap.Modules = nil }),
			wantField: "modules",
		},
		{
			name:      "missing toplevel",
			build:     withSnapshot(func(snap *core.Snapshot) { snap.TopLevel = nil }),
			wantField: "toplevel",
		},
		{
			name:      "missing methods",
			build:     withSnapshot(func(snap *core.Snapshot) { snap.Methods = nil }),
			wantField: "methods",
		},
		{
			name:      "missing libs",
			build:     withSnapshot(func(snap *core.Snapshot) { snap.Libs = nil }),
			wantField: "libs",
		},
		{
			name: "missing method name",
			build: func() *core.Snapshot {
				b := testutil.NewSnapshot()
				b.Module("1", "M").Ancestors("1").ListInstance("public", core.MethodRef{ID: "m1"})
				snap := b.Build()
				snap.Methods.Set("m1", core.MethodRecord{Owner: core.Ref{ID: "1"}})
				return snap
			},
			wantField: "methods.m1.name",
		},
		{
			name: "missing method owner",
			build: func() *core.Snapshot {
				b := testutil.NewSnapshot()
				b.Module("1", "M").Ancestors("1").ListInstance("public", core.MethodRef{ID: "m1"})
				snap := b.Build()
				snap.Methods.Set("m1", core.MethodRecord{Name: "x"})
				return snap
			},
			wantField: "methods.m1.owner",
		},
		{
			name: "value without class",
			build: func() *core.Snapshot {
				snap := testutil.NewSnapshot().Build()
				snap.TopLevel.Set("V", core.ConstantRecord{Type: core.TypeValue})
				return snap
			},
			wantField: "toplevel.V.class",
		},
		{
			name: "unknown constant type",
			build: func() *core.Snapshot {
				snap := testutil.NewSnapshot().Build()
				snap.TopLevel.Set("V", core.ConstantRecord{Type: "proc"})
				return snap
			},
			wantField: "toplevel.V.type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := LoadWithOptions(tt.build(), LoadOptions{Logger: testutil.NewTestLogger(t)})
			require.Error(t, err)
			assert.Nil(t, db, "no partial database on failure")

			if tt.dangling {
				var dangling *DanglingReferenceError
				require.ErrorAs(t, err, &dangling)
				assert.Equal(t, tt.wantField, dangling.From)
				return
			}

			var schema *SchemaError
			require.ErrorAs(t, err, &schema)
			assert.Equal(t, tt.wantField, schema.Field)
		})
	}
}

// withModule builds a snapshot holding one valid module record "1" after
// mutate has been applied to it.
func withModule(mutate func(*core.ModuleRecord)) func() *core.Snapshot {
	return func() *core.Snapshot {
		snap := testutil.NewSnapshot().Build()
		rec := core.NewModuleRecord("1", core.TypeModule, "M")
		rec.Ancestors = []core.Ref{{ID: "1", Name: "M"}}
		mutate(&rec)
		snap.Modules.Set("1", rec)
		return snap
	}
}

func withSnapshot(mutate func(*core.Snapshot)) func() *core.Snapshot {
	return func() *core.Snapshot {
		snap := testutil.SampleSnapshot()
		mutate(snap)
		return snap
	}
}

func TestLoad_DecodedRecordMissingFields(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantField string
	}{
		{
			name:      "bare module record",
			doc:       `{"modules": {"1": {"id": "1", "type": "module"}}, "toplevel": {"M": {"type": "module", "id": "1"}}, "methods": {}, "libs": []}`,
			wantField: "modules.1.name",
		},
		{
			name: "module without ancestors",
			doc: `{"modules": {"1": {"id": 1, "type": "module", "name": "M", "included_modules": [],
				"instance_methods": {"public": [], "private": [], "protected": []},
				"methods": {"public": [], "private": [], "protected": []}, "constants": {}}},
				"toplevel": {}, "methods": {}, "libs": []}`,
			wantField: "modules.1.ancestors",
		},
		{
			name: "empty method table",
			doc: `{"modules": {"1": {"id": 1, "type": "module", "name": "M", "included_modules": [],
				"ancestors": [{"id": 1, "name": "M"}], "instance_methods": {},
				"methods": {"public": [], "private": [], "protected": []}, "constants": {}}},
				"toplevel": {}, "methods": {}, "libs": []}`,
			wantField: "modules.1.instance_methods.public",
		},
		{
			name:      "null modules",
			doc:       `{"modules": null, "toplevel": {}, "methods": {}, "libs": []}`,
			wantField: "modules",
		},
		{
			name:      "no libs",
			doc:       `{"modules": {}, "toplevel": {}, "methods": {}}`,
			wantField: "libs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := core.DecodeSnapshot(strings.NewReader(tt.doc), core.FormatJSON)
			require.NoError(t, err)

			db, err := Load(snap)
			assert.Nil(t, db)
			var schema *SchemaError
			require.ErrorAs(t, err, &schema)
			assert.Equal(t, tt.wantField, schema.Field)
		})
	}
}

func TestLoad_NilSnapshot(t *testing.T) {
	db, err := Load(nil)
	assert.Nil(t, db)

	var schema *SchemaError
	assert.ErrorAs(t, err, &schema)
}

func TestOpen_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defs_database.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, core.EncodeSnapshot(f, testutil.SampleSnapshot()))
	require.NoError(t, f.Close())

	db, err := Open(path, LoadOptions{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	assert.Equal(t, loadSample(t).Stats(), db.Stats())

	d, found, err := db.FindMethodDefinition("TestClass", MethodQuery{Instance: "test_method"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, d.Body().Parameters(), 4)
}

func TestOpen_YAML(t *testing.T) {
	const doc = `
modules:
  1:
    id: 1
    type: class
    name: Object
    included_modules: []
    ancestors: [{id: 1, name: Object}]
    instance_methods: {public: [{id: 10, name: hello}], private: [], protected: []}
    methods: {public: [], private: [], protected: []}
    constants:
      Greeting: {type: value, class: {id: 1, name: Object}, methods: {public: [], private: [], protected: []}}
toplevel:
  Object: {type: class, id: 1, name: Object}
methods:
  10:
    name: hello
    owner: {id: 1, name: Object}
    location: [hello.rb, 3]
    parameters: [[req, name], [block]]
libs: [hello.rb]
`
	path := filepath.Join(t.TempDir(), "defs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(doc)), 0o600))

	db, err := Open(path, LoadOptions{})
	require.NoError(t, err)

	object, ok := db.Object()
	require.True(t, ok)
	assert.Equal(t, core.ID("1"), object.ID())

	greeting, err := db.LookupConstant("Greeting", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Greeting", greeting.Name())

	body, ok := db.MethodBody("10")
	require.True(t, ok)
	assert.Equal(t, []core.Parameter{{Kind: core.ParamRequired, Name: "name"}, {Kind: core.ParamBlock}}, body.Parameters())
	loc, ok := body.Location()
	require.True(t, ok)
	assert.Equal(t, "hello.rb:3", loc.String())
	assert.Equal(t, []string{"hello.rb"}, db.RequiredLibs())
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.json"), LoadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpen_DanglingReferenceIsWrapped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	doc := `{"modules": {"1": {"id": 1, "type": "module", "name": "M", "included_modules": [],
		"ancestors": [{"id": 1, "name": "M"}, {"id": 2, "name": "Gone"}],
		"instance_methods": {"public": [], "private": [], "protected": []},
		"methods": {"public": [], "private": [], "protected": []}, "constants": {}}},
		"toplevel": {}, "methods": {}, "libs": []}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	_, err := Open(path, LoadOptions{})
	var dangling *DanglingReferenceError
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, core.ID("2"), dangling.ID)
	assert.Contains(t, err.Error(), "broken.json")
}
