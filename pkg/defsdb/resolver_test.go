package defsdb

import (
	"testing"

	"github.com/leapstack-labs/defsdb/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// valueClass returns the class name of a resolved value.
func valueClass(t *testing.T, e Entity) string {
	t.Helper()
	v, ok := e.(*Value)
	require.True(t, ok, "expected a value, got %T", e)
	return v.Class().Name()
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"A", []string{"A"}},
		{"A::B::C", []string{"A", "B", "C"}},
		{"::A::B", []string{Root, "A", "B"}},
		{"A::::B", []string{"A", "B"}},
		{"A::B::", []string{"A", "B"}},
		{"", nil},
		{"::", []string{Root}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitPath(tt.path))
		})
	}
}

func TestResolve_LexicalShadowing(t *testing.T) {
	db := loadSample(t)

	tests := []struct {
		name      string
		context   []string
		wantClass string
		wantFound bool
	}{
		{"innermost C", []string{"A", "B", "C"}, "String", true},
		{"B", []string{"A", "B"}, "TrueClass", true},
		{"A", []string{"A"}, "Array", true},
		{"innermost D falls back to C", []string{"A", "B", "C", "D"}, "String", true},
		{"empty context searches only the top level", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, found, err := db.Resolve("X", tt.context)
			require.NoError(t, err)
			require.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, tt.wantClass, valueClass(t, e))
			} else {
				assert.Nil(t, e)
			}
		})
	}
}

func TestResolve_EmptyContextSearchesTopLevel(t *testing.T) {
	db := loadSample(t)
	a := mustModule(t, db, testutil.AID)

	// Without a lexical context a bare name only sees the top level.
	_, found, err := db.Resolve("X", nil)
	require.NoError(t, err)
	assert.False(t, found)

	// A's X is reachable by qualifying the path or by structured lookup
	// from A.
	e, found, err := db.Resolve("A::X", nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Array", valueClass(t, e))

	e, err = db.LookupConstant("X", a, nil)
	require.NoError(t, err)
	assert.Equal(t, "Array", valueClass(t, e))
}
func TestResolve_Paths(t *testing.T) {
	db := loadSample(t)
	abc := mustModule(t, db, testutil.ABCID)
	ab := mustModule(t, db, testutil.ABID)

	tests := []struct {
		name      string
		path      string
		context   []string
		want      Entity
		wantFound bool
	}{
		{name: "qualified path", path: "A::B::C", want: abc, wantFound: true},
		{name: "doubled separator", path: "A::::B", want: ab, wantFound: true},
		{name: "trailing separator", path: "A::B::", want: ab, wantFound: true},
		{name: "relative to lexical scope", path: "C", context: []string{"A", "B"}, want: abc, wantFound: true},
		{name: "absolute ignores context", path: "::A::B", context: []string{"A", "B", "C"}, want: ab, wantFound: true},
		{name: "absolute miss is absent", path: "::X", context: []string{"A"}},
		{name: "missing tail", path: "A::B::Missing"},
		{name: "descends only own tables", path: "A::C"},
		{name: "value has no constants", path: "TestConstant::Foo"},
		{name: "empty path", path: ""},
		{name: "root only", path: "::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, found, err := db.Resolve(tt.path, tt.context)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Same(t, tt.want, e)
			}
		})
	}
}

func TestResolve_InvalidModuleContext(t *testing.T) {
	db := loadSample(t)

	tests := []struct {
		name     string
		context  []string
		wantName string
	}{
		{"unknown segment", []string{"A", "Nope"}, "Nope"},
		{"segment bound to a value", []string{"TestConstant"}, "TestConstant"},
		{"nested module not at top level", []string{"B"}, "B"},
		{"value inside a module", []string{"A", "X"}, "X"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, found, err := db.Resolve("X", tt.context)
			assert.False(t, found)

			var ctxErr *InvalidModuleContextError
			require.ErrorAs(t, err, &ctxErr)
			assert.Equal(t, tt.wantName, ctxErr.Name)
		})
	}

	// An absolute path never looks at the context, broken or not.
	e, found, err := db.Resolve("::A", []string{"Nope"})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "A", e.Name())
}

func TestLookupConstant_Order(t *testing.T) {
	db := loadSample(t)
	a := mustModule(t, db, testutil.AID)
	ab := mustModule(t, db, testutil.ABID)
	abc := mustModule(t, db, testutil.ABCID)
	abcd := mustModule(t, db, testutil.ABCDID)

	tests := []struct {
		name      string
		current   *Module
		context   []*Module
		wantClass string
	}{
		{"innermost lexical scope", abcd, []*Module{a, ab, abc}, "String"},
		{"middle lexical scope", abcd, []*Module{a, ab}, "TrueClass"},
		{"outer lexical scope", abcd, []*Module{a}, "Array"},
		{"own table beats lexical scopes", abc, []*Module{a, ab}, "String"},
		{"own table without context", a, nil, "Array"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := db.LookupConstant("X", tt.current, tt.context)
			require.NoError(t, err)
			assert.Equal(t, tt.wantClass, valueClass(t, e))
		})
	}
}

func TestLookupConstant_Ancestors(t *testing.T) {
	db := loadSample(t)
	testClass := mustModule(t, db, testutil.TestClassID)
	testModule := mustModule(t, db, testutil.TestModuleID)

	e, err := db.LookupConstant("MixinConst", testClass, nil)
	require.NoError(t, err)
	want, _ := testModule.Constant("MixinConst")
	assert.Same(t, want, e)

	// Prepended modules come before the class in its ancestors.
	pd := mustModule(t, db, testutil.PrependDID)
	pb := mustModule(t, db, testutil.PrependBID)
	e, err = db.LookupConstant("X", pd, nil)
	require.NoError(t, err)
	want, _ = pb.Constant("X")
	assert.Same(t, want, e)

	pc := mustModule(t, db, testutil.PrependCID)
	pa := mustModule(t, db, testutil.PrependAID)
	e, err = db.LookupConstant("X", pc, nil)
	require.NoError(t, err)
	want, _ = pa.Constant("X")
	assert.Same(t, want, e)

	// Top-level constants are reachable through Object in the ancestors.
	e, err = db.LookupConstant("TestSuperClass", testClass, nil)
	require.NoError(t, err)
	assert.Same(t, mustModule(t, db, testutil.TestSuperClassID), e)
}

func TestLookupConstant_NotFound(t *testing.T) {
	db := loadSample(t)
	abcd := mustModule(t, db, testutil.ABCDID)

	_, err := db.LookupConstant("X", abcd, nil)
	var lookupErr *ConstantLookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "X", lookupErr.Name)
	assert.Equal(t, "A::B::C::D", lookupErr.Module)
	assert.Equal(t, "X is not defined in A::B::C::D", err.Error())
}

func TestLookupConstant_NilCurrentUsesObject(t *testing.T) {
	db := loadSample(t)

	e, err := db.LookupConstant("TestClass", nil, nil)
	require.NoError(t, err)
	assert.Same(t, mustModule(t, db, testutil.TestClassID), e)

	_, err = db.LookupConstant("Nope", nil, nil)
	var lookupErr *ConstantLookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "Object", lookupErr.Module)
}

func TestLookupConstant_WithoutObject(t *testing.T) {
	b := testutil.NewSnapshot()
	b.Module("1", "Tools").Ancestors("1")
	b.TopLevel("Tools", "1")
	db, err := Load(b.Build())
	require.NoError(t, err)

	_, ok := db.Object()
	assert.False(t, ok)

	e, err := db.LookupConstant("Tools", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Tools", e.Name())

	_, err = db.LookupConstant("Missing", nil, nil)
	assert.EqualError(t, err, "failed to lookup top constant Missing")
}

func TestLookupConstantPath(t *testing.T) {
	db := loadSample(t)
	a := mustModule(t, db, testutil.AID)
	ab := mustModule(t, db, testutil.ABID)
	abc := mustModule(t, db, testutil.ABCID)
	abcd := mustModule(t, db, testutil.ABCDID)
	testModule := mustModule(t, db, testutil.TestModuleID)
	pb := mustModule(t, db, testutil.PrependBID)

	mixin, _ := testModule.Constant("MixinConst")
	pbX, _ := pb.Constant("X")

	tests := []struct {
		name     string
		segments []string
		current  *Module
		context  []*Module
		want     Entity
	}{
		{name: "from the top", segments: []string{"A", "B", "C"}, want: abc},
		{name: "first segment through lexical scope", segments: []string{"C", "D"}, current: abcd, context: []*Module{a, ab}, want: abcd},
		{name: "later segment through ancestors", segments: []string{"TestClass", "MixinConst"}, want: mixin},
		{name: "later segment through prepended module", segments: []string{"PD", "X"}, want: pbX},
		{name: "root ignores current and context", segments: []string{Root, "A", "B"}, current: abcd, context: []*Module{a, ab, abc}, want: ab},
		{name: "split absolute path", segments: SplitPath("::A::B::C::D"), want: abcd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := db.LookupConstantPath(tt.segments, tt.current, tt.context)
			require.NoError(t, err)
			assert.Same(t, tt.want, e)
		})
	}
}

func TestLookupConstantPath_Errors(t *testing.T) {
	db := loadSample(t)
	a := mustModule(t, db, testutil.AID)
	abcd := mustModule(t, db, testutil.ABCDID)

	tests := []struct {
		name       string
		segments   []string
		current    *Module
		context    []*Module
		wantName   string
		wantModule string
		wantTop    bool
	}{
		{name: "missing second segment", segments: []string{"A", "Nope"}, wantName: "Nope", wantModule: "A"},
		{name: "nested constant is not an ancestor constant", segments: []string{"A", "C"}, wantName: "C", wantModule: "A"},
		{name: "missing top constant", segments: []string{"Nope"}, wantName: "Nope", wantModule: "Object", wantTop: true},
		{name: "missing first segment from current", segments: []string{"Nope"}, current: a, wantName: "Nope", wantModule: "A", wantTop: true},
		{name: "missing root constant", segments: []string{Root, "B"}, current: abcd, context: []*Module{a}, wantName: "B", wantModule: "Object", wantTop: true},
		{name: "value has no constants", segments: []string{"TestConstant", "Foo"}, wantName: "Foo", wantModule: "TestConstant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.LookupConstantPath(tt.segments, tt.current, tt.context)
			var lookupErr *ConstantLookupError
			require.ErrorAs(t, err, &lookupErr)
			assert.Equal(t, tt.wantName, lookupErr.Name)
			assert.Equal(t, tt.wantModule, lookupErr.Module)
			assert.Equal(t, tt.wantTop, lookupErr.Top)
		})
	}

	_, err := db.LookupConstantPath([]string{"Nope"}, a, nil)
	assert.EqualError(t, err, "failed to lookup top constant Nope from A")

	_, err = db.LookupConstantPath(nil, nil, nil)
	var argErr *ArgumentError
	assert.ErrorAs(t, err, &argErr)

	_, err = db.LookupConstantPath([]string{Root}, nil, nil)
	assert.ErrorAs(t, err, &argErr)
}

func TestLookupConstantPath_RootFallsBackToTopLevel(t *testing.T) {
	// Object is bound at the top level but does not mirror it, so A is
	// only reachable through the top-level table.
	b := testutil.NewSnapshot()
	b.Class("1", "Object", "").Ancestors("1")
	b.Module("2", "A").Ancestors("2").Value("Inner", "1")
	b.TopLevel("Object", "1").TopLevel("A", "2")
	db, err := Load(b.Build())
	require.NoError(t, err)
	a := mustModule(t, db, "2")

	e, found, err := db.Resolve("::A", nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Same(t, a, e)

	e, err = db.LookupConstantPath(SplitPath("::A"), nil, nil)
	require.NoError(t, err)
	assert.Same(t, a, e)

	e, err = db.LookupConstant("A", nil, nil)
	require.NoError(t, err)
	assert.Same(t, a, e)

	_, err = db.LookupConstantPath(SplitPath("::Zed"), a, nil)
	var lookupErr *ConstantLookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "Object", lookupErr.Module)
	assert.True(t, lookupErr.Top)
	assert.EqualError(t, err, "failed to lookup top constant Zed from Object")
}

func TestLookupConstantPath_DoesNotMutateContext(t *testing.T) {
	db := loadSample(t)
	a := mustModule(t, db, testutil.AID)
	ab := mustModule(t, db, testutil.ABID)
	abcd := mustModule(t, db, testutil.ABCDID)

	context := []*Module{a, ab}
	_, err := db.LookupConstantPath([]string{"X"}, abcd, context)
	require.NoError(t, err)
	assert.Equal(t, []*Module{a, ab}, context)
}

func TestResolveModule(t *testing.T) {
	db := loadSample(t)

	mod, err := db.ResolveModule("A::B::C")
	require.NoError(t, err)
	assert.Equal(t, "A::B::C", mod.Name())

	mod, err = db.ResolveModule("::TestClass")
	require.NoError(t, err)
	assert.Equal(t, "TestClass", mod.Name())

	for _, path := range []string{"Nope", "TestConstant", "A::Nope", ""} {
		_, err := db.ResolveModule(path)
		var notFound *ModuleNotFoundError
		require.ErrorAs(t, err, &notFound, path)
		assert.Equal(t, path, notFound.Path)
	}
}
