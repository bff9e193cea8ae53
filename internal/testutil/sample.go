package testutil

import "github.com/leapstack-labs/defsdb/pkg/core"

// Ids of the modules in SampleSnapshot.
const (
	BasicObjectID    = "100"
	KernelID         = "101"
	ObjectID         = "102"
	ComparableID     = "103"
	StringID         = "110"
	ArrayID          = "111"
	TrueClassID      = "112"
	TestSuperClassID = "200"
	TestModuleID     = "201"
	TestClassID      = "202"
	AID              = "300"
	ABID             = "301"
	ABCID            = "302"
	ABCDID           = "303"
	PrependAID       = "400"
	PrependBID       = "401"
	PrependCID       = "402"
	PrependDID       = "403"
)

// SampleSnapshot returns a snapshot shaped like a dump of this program:
//
//	class TestSuperClass; end
//	module TestModule
//	  MixinConst = "mixin"
//	  def module_method; end
//	end
//	class TestClass < TestSuperClass
//	  include TestModule
//	  TestConstant = TestSuperClass.new
//	  def test_method(a, b = 1, *rest, &blk); end
//	  private def test_private_method; end
//	  protected def test_protected_method; end
//	  def self.test_singleton_method(key:); end
//	  (plus private and protected singleton methods)
//	end
//	TestConstant = TestClass.new
//
//	class A; X = []; class B; X = true; class C; X = "string"; class D; end; end; end; end
//
//	module PA; X = "PA::X"; end
//	module PB; X = "PB::X"; end
//	class PC; prepend PA; end
//	class PD < PC; prepend PB; end
//
// on top of a minimal BasicObject/Kernel/Object/Comparable core. TestClass
// lists TestModule#module_method through a second method record with the
// same owner and name, the way an inherited method shows up in a dump.
func SampleSnapshot() *core.Snapshot {
	b := NewSnapshot().Root(ObjectID)

	core4 := []string{ObjectID, KernelID, BasicObjectID}

	b.Class(BasicObjectID, "BasicObject", "").
		Ancestors(BasicObjectID).
		InstanceMethod("public", "__id__").
		InstanceMethod("private", "initialize")
	b.Module(KernelID, "Kernel").
		Ancestors(KernelID).
		InstanceMethod("public", "puts", core.Parameter{Kind: core.ParamRest, Name: "args"})
	b.Class(ObjectID, "Object", BasicObjectID).
		Includes(KernelID).
		Ancestors(core4...)
	b.Module(ComparableID, "Comparable").
		Ancestors(ComparableID)

	b.Class(StringID, "String", ObjectID).
		Includes(ComparableID).
		Ancestors(append([]string{StringID, ComparableID}, core4...)...).
		InstanceMethod("public", "length")
	b.Class(ArrayID, "Array", ObjectID).
		Ancestors(append([]string{ArrayID}, core4...)...)
	b.Class(TrueClassID, "TrueClass", ObjectID).
		Ancestors(append([]string{TrueClassID}, core4...)...)

	b.Class(TestSuperClassID, "TestSuperClass", ObjectID).
		Ancestors(append([]string{TestSuperClassID}, core4...)...)
	b.Module(TestModuleID, "TestModule").
		Ancestors(TestModuleID).
		Value("MixinConst", StringID).
		InstanceMethod("public", "module_method")

	inherited := b.Method("202#module_method", TestModuleID, "module_method")
	testMethod := b.Method("202#test_method", TestClassID, "test_method",
		core.Parameter{Kind: core.ParamRequired, Name: "a"},
		core.Parameter{Kind: core.ParamOptional, Name: "b"},
		core.Parameter{Kind: core.ParamRest, Name: "rest"},
		core.Parameter{Kind: core.ParamBlock, Name: "blk"},
	)
	b.Class(TestClassID, "TestClass", TestSuperClassID).
		Includes(TestModuleID, KernelID).
		Ancestors(append([]string{TestClassID, TestModuleID, TestSuperClassID}, core4...)...).
		Value("TestConstant", TestSuperClassID).
		ListInstance("public", testMethod).
		ListInstance("public", inherited).
		InstanceMethod("private", "test_private_method").
		InstanceMethod("protected", "test_protected_method").
		SingletonMethod("public", "test_singleton_method", core.Parameter{Kind: core.ParamKeyRequired, Name: "key"}).
		SingletonMethod("private", "test_private_singleton_method").
		SingletonMethod("protected", "test_protected_singleton_method")

	b.Class(AID, "A", ObjectID).
		Ancestors(append([]string{AID}, core4...)...).
		Value("X", ArrayID).
		Const("B", ABID)
	b.Class(ABID, "A::B", ObjectID).
		Ancestors(append([]string{ABID}, core4...)...).
		Value("X", TrueClassID).
		Const("C", ABCID)
	b.Class(ABCID, "A::B::C", ObjectID).
		Ancestors(append([]string{ABCID}, core4...)...).
		Value("X", StringID).
		Const("D", ABCDID)
	b.Class(ABCDID, "A::B::C::D", ObjectID).
		Ancestors(append([]string{ABCDID}, core4...)...)

	b.Module(PrependAID, "PA").
		Ancestors(PrependAID).
		Value("X", StringID)
	b.Module(PrependBID, "PB").
		Ancestors(PrependBID).
		Value("X", StringID)
	b.Class(PrependCID, "PC", ObjectID).
		Includes(KernelID).
		Ancestors(append([]string{PrependAID, PrependCID}, core4...)...)
	b.Class(PrependDID, "PD", PrependCID).
		Includes(PrependBID, PrependAID, KernelID).
		Ancestors(append([]string{PrependBID, PrependDID, PrependAID, PrependCID}, core4...)...)

	for _, top := range []struct{ name, id string }{
		{"BasicObject", BasicObjectID},
		{"Kernel", KernelID},
		{"Object", ObjectID},
		{"Comparable", ComparableID},
		{"String", StringID},
		{"Array", ArrayID},
		{"TrueClass", TrueClassID},
		{"TestSuperClass", TestSuperClassID},
		{"TestModule", TestModuleID},
		{"TestClass", TestClassID},
		{"A", AID},
		{"PA", PrependAID},
		{"PB", PrependBID},
		{"PC", PrependCID},
		{"PD", PrependDID},
	} {
		b.TopLevel(top.name, top.id)
	}
	b.TopValue("TestConstant", TestClassID, testMethod)

	b.Lib("/usr/lib/ruby/3.3.0/set.rb").
		Lib("/usr/lib/ruby/3.3.0/tsort.rb")

	return b.Build()
}
