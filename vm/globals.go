package vm

// Globals is the name-addressed global variable store plus the language's
// keyed-map primitive: a two-level associative store keyed first by an
// arbitrary "map key" Value (typically whatever a variable currently holds)
// and then by an arbitrary inner key.
type Globals struct {
	names map[string]uint8
	slots []Value

	mapStore map[Value]map[Value]Value
	overlays []*mapOverlay
}

// mapOverlay is one scoped map-write overlay (spec.md §4.2/§9 "scoped map
// discipline"): writes made while an overlay is active land here instead of
// the global store, and are discarded when the overlay is popped.
type mapOverlay struct {
	data map[Value]map[Value]Value
}

// NewGlobals returns an empty globals store.
func NewGlobals() *Globals {
	return &Globals{
		names:    make(map[string]uint8),
		mapStore: make(map[Value]map[Value]Value),
	}
}

// Intern returns the slot index for name, creating a new slot initialised
// to Undef the first time name is seen.
func (g *Globals) Intern(name string) uint8 {
	if idx, ok := g.names[name]; ok {
		return idx
	}
	idx := uint8(len(g.slots))
	g.names[name] = idx
	g.slots = append(g.slots, Undef)
	return idx
}

// Get returns the value stored at slot idx.
func (g *Globals) Get(idx uint8) Value { return g.slots[idx] }

// Set overwrites the value stored at slot idx.
func (g *Globals) Set(idx uint8, v Value) { g.slots[idx] = v }

// Slots exposes the slot vector for GC root enumeration.
func (g *Globals) Slots() []Value { return g.slots }

// PushMapScope opens a new map-write overlay.
func (g *Globals) PushMapScope() {
	g.overlays = append(g.overlays, &mapOverlay{data: make(map[Value]map[Value]Value)})
}

// PopMapScope closes the innermost overlay, discarding any writes it
// collected.
func (g *Globals) PopMapScope() {
	g.overlays = g.overlays[:len(g.overlays)-1]
}

// GetMap looks up mapKey[innerKey], consulting overlays innermost-to-outermost
// before falling back to the global store. The ok result is false if no
// entry exists, which is a runtime error at the call site (spec.md §7).
func (g *Globals) GetMap(mapKey, innerKey Value) (Value, bool) {
	for i := len(g.overlays) - 1; i >= 0; i-- {
		if m, ok := g.overlays[i].data[mapKey]; ok {
			if v, ok := m[innerKey]; ok {
				return v, true
			}
		}
	}
	if m, ok := g.mapStore[mapKey]; ok {
		v, ok := m[innerKey]
		return v, ok
	}
	return Value(0), false
}

// SetMap stores value at mapKey[innerKey]: into the innermost overlay if one
// is active, or directly into the global store otherwise.
func (g *Globals) SetMap(mapKey, innerKey, value Value) {
	if n := len(g.overlays); n > 0 {
		ov := g.overlays[n-1]
		m := ov.data[mapKey]
		if m == nil {
			m = make(map[Value]Value)
			ov.data[mapKey] = m
		}
		m[innerKey] = value
		return
	}
	g.setGlobalMap(mapKey, innerKey, value)
}

func (g *Globals) setGlobalMap(mapKey, innerKey, value Value) {
	m := g.mapStore[mapKey]
	if m == nil {
		m = make(map[Value]Value)
		g.mapStore[mapKey] = m
	}
	m[innerKey] = value
}

// Collection returns the global-store map at mapKey, used by the `sort`
// native. The bool result is false if no map has ever been written for this
// key.
func (g *Globals) Collection(mapKey Value) (map[Value]Value, bool) {
	m, ok := g.mapStore[mapKey]
	return m, ok
}

// markRoots marks every value reachable from the global slot vector and the
// keyed-map store (including scoped overlays), per spec.md §5.
func (g *Globals) markRoots(gc *GC) {
	for _, v := range g.slots {
		gc.Mark(v)
	}
	markMapStore(gc, g.mapStore)
	for _, ov := range g.overlays {
		markMapStore(gc, ov.data)
	}
}

func markMapStore(gc *GC, store map[Value]map[Value]Value) {
	for k, inner := range store {
		gc.Mark(k)
		for ik, v := range inner {
			gc.Mark(ik)
			gc.Mark(v)
		}
	}
}
