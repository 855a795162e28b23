package vm_test

import (
	"testing"

	"github.com/Banzobotic/dymaxilang/vm"
)

func TestValue_Float(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 3.5, -3.5, 1e300, -1e-300} {
		v := vm.Float(f)
		if !v.IsFloat() {
			t.Errorf("Float(%v): IsFloat() = false", f)
		}
		if v.AsFloat() != f {
			t.Errorf("Float(%v).AsFloat() = %v", f, v.AsFloat())
		}
	}
}

func TestValue_Singletons(t *testing.T) {
	tests := []struct {
		name string
		v    vm.Value
	}{
		{"Null", vm.Null},
		{"True", vm.True},
		{"False", vm.False},
		{"Undef", vm.Undef},
	}
	for _, test := range tests {
		if test.v.IsFloat() {
			t.Errorf("%s.IsFloat() = true, want false", test.name)
		}
	}

	if !vm.Null.IsNull() {
		t.Error("Null.IsNull() = false")
	}
	if vm.True.IsNull() || vm.False.IsNull() || vm.Undef.IsNull() {
		t.Error("non-null singleton reports IsNull() = true")
	}

	if !vm.True.IsBool() || !vm.False.IsBool() {
		t.Error("True/False.IsBool() = false")
	}
	if vm.Null.IsBool() || vm.Undef.IsBool() {
		t.Error("non-bool singleton reports IsBool() = true")
	}
	if !vm.True.AsBool() {
		t.Error("True.AsBool() = false")
	}
	if vm.False.AsBool() {
		t.Error("False.AsBool() = true")
	}

	if !vm.Undef.IsUndef() {
		t.Error("Undef.IsUndef() = false")
	}
}

func TestValue_Bool(t *testing.T) {
	if vm.Bool(true) != vm.True {
		t.Error("Bool(true) != True")
	}
	if vm.Bool(false) != vm.False {
		t.Error("Bool(false) != False")
	}
}

func TestValue_Equal_Floats(t *testing.T) {
	gc := vm.NewGC()
	if !vm.Equal(gc, vm.Float(1), vm.Float(1)) {
		t.Error("Float(1) != Float(1)")
	}
	if vm.Equal(gc, vm.Float(1), vm.Float(2)) {
		t.Error("Float(1) == Float(2)")
	}
}

func TestValue_Equal_Strings(t *testing.T) {
	i := vm.New()
	a := i.Alloc(vm.NewString("hi"))
	b := i.Alloc(vm.NewString("hi"))
	c := i.Alloc(vm.NewString("bye"))

	if !vm.Equal(i.GC(), a, b) {
		t.Error("equal-by-value strings compared unequal")
	}
	if vm.Equal(i.GC(), a, c) {
		t.Error("different strings compared equal")
	}
}

func TestValue_Equal_ObjIdentity(t *testing.T) {
	i := vm.New()
	fa := i.Alloc(vm.NewFunction("a"))
	fb := i.Alloc(vm.NewFunction("a"))

	if vm.Equal(i.GC(), fa, fb) {
		t.Error("distinct function objects with the same name compared equal")
	}
	if !vm.Equal(i.GC(), fa, fa) {
		t.Error("a function object did not compare equal to itself")
	}
}
