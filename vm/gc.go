package vm

import (
	"fmt"
	"io"
)

// heapGrowFactor mirrors the Rust original's GC::HEAP_GROW_FACTOR.
const heapGrowFactor = 2

// initialNextGC is the byte threshold before the very first collection;
// spec.md §5 calls for 1 MiB.
const initialNextGC = 1024 * 1024

// GC is a mark-sweep collector over a dense, index-addressed object table.
// Values never hold raw pointers to Go memory (the Go runtime may move
// stack-allocated data and gives no safe pointer-to-integer cast); instead a
// boxed heap Value stores an index into objects, the same indirection
// db47h-ngaro's own Image uses for inter-cell references.
type GC struct {
	objects   []Obj
	freeSlots []uint32
	greys     []Obj

	bytesAllocated int
	nextGC         int

	trace io.Writer // non-nil enables mark/sweep/free logging, like -debug in the teacher CLI
}

// NewGC returns a GC with no live objects and the initial collection
// threshold.
func NewGC() *GC {
	return &GC{nextGC: initialNextGC}
}

// SetTrace enables or disables GC event logging to w (pass nil to disable).
func (g *GC) SetTrace(w io.Writer) { g.trace = w }

// Get returns the object stored at idx. The index must come from a Value
// for which IsObj is true.
func (g *GC) Get(idx uint32) Obj {
	return g.objects[idx]
}

// alloc installs obj in the heap and returns a Value boxing its index.
// Allocation is the only event that can trigger a collection (spec.md §5),
// so alloc must be called through Instance.Alloc, which runs the GC first.
func (g *GC) alloc(obj Obj) Value {
	g.bytesAllocated += obj.size()

	var idx uint32
	if n := len(g.freeSlots); n > 0 {
		idx = g.freeSlots[n-1]
		g.freeSlots = g.freeSlots[:n-1]
		g.objects[idx] = obj
	} else {
		idx = uint32(len(g.objects))
		g.objects = append(g.objects, obj)
	}
	return heapValue(idx)
}

// ShouldCollect reports whether accumulated allocations have crossed the
// threshold for the next collection.
func (g *GC) ShouldCollect() bool {
	return g.bytesAllocated > g.nextGC
}

// Mark marks v reachable if it boxes a heap object, enqueueing it for
// tracing. Marking an already-marked object is a no-op, which both breaks
// cycles and avoids double-counting roots.
func (g *GC) Mark(v Value) {
	if !v.IsObj() {
		return
	}
	g.markObj(g.objects[v.objIndex()])
}

// MarkFunction marks a function object directly; used for call frames,
// which hold a *FunctionObj rather than a boxed Value.
func (g *GC) MarkFunction(fn *FunctionObj) {
	g.markObj(fn)
}

func (g *GC) markObj(obj Obj) {
	if obj.marked() {
		return
	}
	obj.setMarked(true)
	if g.trace != nil {
		fmt.Fprintf(g.trace, "mark: %s\n", obj.Kind())
	}
	g.greys = append(g.greys, obj)
}

// traceGreys walks the grey worklist, tracing each object's outgoing edges
// according to its kind: strings and natives have none, a function traces
// every value in its constant pool (which may itself box nested function
// objects, e.g. a function literal nested in another's body).
func (g *GC) traceGreys() {
	for len(g.greys) > 0 {
		obj := g.greys[len(g.greys)-1]
		g.greys = g.greys[:len(g.greys)-1]

		if g.trace != nil {
			fmt.Fprintf(g.trace, "blacken: %s\n", obj.Kind())
		}

		if fn, ok := obj.(*FunctionObj); ok {
			for _, c := range fn.Chunk.constants {
				g.Mark(c)
			}
		}
	}
}

// sweep frees every unmarked object and clears the mark bit on survivors.
func (g *GC) sweep() {
	for i, obj := range g.objects {
		if obj == nil {
			continue
		}
		if obj.marked() {
			obj.setMarked(false)
			continue
		}
		if g.trace != nil {
			fmt.Fprintf(g.trace, "free: %s\n", obj.Kind())
		}
		g.bytesAllocated -= obj.size()
		g.objects[i] = nil
		g.freeSlots = append(g.freeSlots, uint32(i))
	}
}

// Collect runs a full trace-then-sweep cycle and grows the next threshold
// proportionally to the live heap, per spec.md §5.
func (g *GC) Collect() {
	if g.trace != nil {
		fmt.Fprintln(g.trace, "-- gc begin --")
	}
	g.traceGreys()
	g.sweep()
	g.nextGC = g.bytesAllocated * heapGrowFactor
	if g.trace != nil {
		fmt.Fprintln(g.trace, "-- gc end --")
	}
}

// FreeEverything drops every live object; the VM calls this once, on the
// top-level Return, in place of relying on Go's own finalizers.
func (g *GC) FreeEverything() {
	g.objects = nil
	g.freeSlots = nil
	g.bytesAllocated = 0
}

// Live reports the number of occupied object slots, used by tests to verify
// reachability (spec.md §8 property 6).
func (g *GC) Live() int {
	n := 0
	for _, obj := range g.objects {
		if obj != nil {
			n++
		}
	}
	return n
}
