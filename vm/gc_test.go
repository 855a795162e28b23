package vm_test

import (
	"testing"

	"github.com/Banzobotic/dymaxilang/vm"
)

// TestGC_CollectsUnreachable exercises spec.md §8 property 6: after a
// collection is forced by crossing the allocation threshold, a value held on
// the stack (a GC root) survives, while allocations that are never rooted do
// not prevent the heap from being reclaimed.
func TestGC_CollectsUnreachable(t *testing.T) {
	i := vm.New()

	kept := i.Alloc(vm.NewString("kept"))
	i.Stack().Push(kept)

	// Allocate well past the initial 1 MiB threshold so Alloc runs a
	// collection (spec.md §5: "the only events that can trigger a
	// collection are heap allocations").
	for n := 0; n < 40000; n++ {
		i.Alloc(vm.NewString("0123456789abcdef0123456789abcdef"))
	}

	if i.GC().Live() == 0 {
		t.Fatal("Live() = 0 after a collection; the rooted string was not kept")
	}
	if live := i.GC().Live(); live > 100 {
		t.Fatalf("Live() = %d after 40000 unrooted allocations; unreachable strings were not reclaimed", live)
	}

	obj, ok := i.Deref(kept).(*vm.StringObj)
	if !ok || obj.Value != "kept" {
		t.Fatal("rooted string did not survive collection")
	}
}

func TestGC_FreeEverything(t *testing.T) {
	i := vm.New()
	i.Alloc(vm.NewString("a"))
	i.Alloc(vm.NewString("b"))

	if i.GC().Live() != 2 {
		t.Fatalf("Live() = %d, want 2", i.GC().Live())
	}

	i.GC().FreeEverything()
	if i.GC().Live() != 0 {
		t.Fatalf("Live() = %d after FreeEverything, want 0", i.GC().Live())
	}
}

func TestGC_ShouldCollect_FreshHeap(t *testing.T) {
	i := vm.New()
	if i.GC().ShouldCollect() {
		t.Fatal("ShouldCollect() = true on a fresh GC")
	}
	i.Alloc(vm.NewString("small"))
	if i.GC().ShouldCollect() {
		t.Fatal("ShouldCollect() = true after one small allocation")
	}
}
