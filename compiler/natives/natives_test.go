package natives_test

import (
	"testing"

	"github.com/Banzobotic/dymaxilang/compiler/natives"
	"github.com/Banzobotic/dymaxilang/vm"
)

func newInstance(t *testing.T) *vm.Instance {
	t.Helper()
	i := vm.New()
	natives.Install(i)
	return i
}

// getGlobal looks up a native already bound by Install. Globals.Intern
// returns the existing slot index rather than creating a new one once a
// name has been seen.
func getGlobal(i *vm.Instance, name string) (*vm.NativeObj, bool) {
	v := i.Globals.Get(i.Globals.Intern(name))
	if !v.IsObj() {
		return nil, false
	}
	n, ok := i.Deref(v).(*vm.NativeObj)
	return n, ok
}

func call(t *testing.T, i *vm.Instance, name string, args ...vm.Value) vm.Value {
	t.Helper()
	n, ok := getGlobal(i, name)
	if !ok {
		t.Fatalf("native %q not installed", name)
	}
	v, err := n.Fn(i, args)
	if err != nil {
		t.Fatalf("%s(...) returned an error: %v", name, err)
	}
	return v
}

func str(t *testing.T, i *vm.Instance, s string) vm.Value {
	t.Helper()
	return i.Alloc(vm.NewString(s))
}

func TestNatives_Install(t *testing.T) {
	i := newInstance(t)
	for _, name := range []string{
		"time", "print", "read", "num", "abs",
		"split", "split_into", "chars", "chars_into", "sort",
	} {
		if _, ok := getGlobal(i, name); !ok {
			t.Errorf("native %q was not installed as a global", name)
		}
	}
}

func TestNatives_Abs(t *testing.T) {
	i := newInstance(t)
	got := call(t, i, "abs", vm.Float(-4.5))
	if got.AsFloat() != 4.5 {
		t.Errorf("abs(-4.5) = %v, want 4.5", got.AsFloat())
	}
}

func TestNatives_Abs_TypeError(t *testing.T) {
	i := newInstance(t)
	n, _ := getGlobal(i, "abs")
	if _, err := n.Fn(i, []vm.Value{vm.True}); err == nil {
		t.Fatal("expected an error calling abs on a boolean")
	}
}

func TestNatives_Num(t *testing.T) {
	i := newInstance(t)
	got := call(t, i, "num", str(t, i, "  3.25 "))
	if got.AsFloat() != 3.25 {
		t.Errorf("num(\"  3.25 \") = %v, want 3.25", got.AsFloat())
	}
}

func TestNatives_Split_Whitespace(t *testing.T) {
	i := newInstance(t)
	n := call(t, i, "split", str(t, i, "the quick brown fox"))
	if n.AsFloat() != 4 {
		t.Fatalf("split returned count %v, want 4", n.AsFloat())
	}

	key := str(t, i, "split")
	v, ok := i.Globals.GetMap(key, vm.Float(0))
	if !ok {
		t.Fatal("split did not populate map[0]")
	}
	s := i.Deref(v).(*vm.StringObj)
	if s.Value != "the" {
		t.Errorf("split[0] = %q, want %q", s.Value, "the")
	}
}

func TestNatives_SplitInto_CustomKey(t *testing.T) {
	i := newInstance(t)
	key := str(t, i, "words")
	n := call(t, i, "split_into", str(t, i, "a,b,c"), str(t, i, ","), key)
	if n.AsFloat() != 3 {
		t.Fatalf("split_into returned count %v, want 3", n.AsFloat())
	}
	v, ok := i.Globals.GetMap(key, vm.Float(2))
	if !ok {
		t.Fatal("split_into did not populate the supplied key")
	}
	if i.Deref(v).(*vm.StringObj).Value != "c" {
		t.Errorf("split_into[2] = %q, want %q", i.Deref(v).(*vm.StringObj).Value, "c")
	}
}

func TestNatives_Chars(t *testing.T) {
	i := newInstance(t)
	n := call(t, i, "chars", str(t, i, "go"))
	if n.AsFloat() != 2 {
		t.Fatalf("chars returned count %v, want 2", n.AsFloat())
	}
	key := str(t, i, "chars")
	v, _ := i.Globals.GetMap(key, vm.Float(1))
	if i.Deref(v).(*vm.StringObj).Value != "o" {
		t.Errorf("chars[1] = %q, want %q", i.Deref(v).(*vm.StringObj).Value, "o")
	}
}

func TestNatives_Sort(t *testing.T) {
	i := newInstance(t)
	key := str(t, i, "nums")
	data := map[vm.Value]vm.Value{
		vm.Float(0): vm.Float(3),
		vm.Float(1): vm.Float(1),
		vm.Float(2): vm.Float(2),
	}
	for k, v := range data {
		i.Globals.SetMap(key, k, v)
	}

	call(t, i, "sort", key, vm.Float(0), vm.Float(3))

	m, ok := i.Globals.Collection(key)
	if !ok {
		t.Fatal("sort's collection disappeared")
	}
	want := []float64{1, 2, 3}
	for idx, w := range want {
		got := m[vm.Float(float64(idx))]
		if got.AsFloat() != w {
			t.Errorf("sorted[%d] = %v, want %v", idx, got.AsFloat(), w)
		}
	}
}

func TestNatives_Sort_NonNumericError(t *testing.T) {
	i := newInstance(t)
	key := str(t, i, "mixed")
	i.Globals.SetMap(key, vm.Float(0), vm.True)

	n, _ := getGlobal(i, "sort")
	if _, err := n.Fn(i, []vm.Value{key, vm.Float(0), vm.Float(1)}); err == nil {
		t.Fatal("expected an error sorting a non-numeric value")
	}
}

func TestNatives_Stringify(t *testing.T) {
	i := newInstance(t)
	tests := []struct {
		v    vm.Value
		want string
	}{
		{vm.Float(3), "3"},
		{vm.Null, "null"},
		{vm.True, "true"},
		{vm.False, "false"},
		{str(t, i, "hi"), "hi"},
	}
	for _, tt := range tests {
		if got := natives.Stringify(i, tt.v); got != tt.want {
			t.Errorf("Stringify(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
