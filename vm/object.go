package vm

// ObjKind discriminates the variants of a heap object, playing the role the
// Rust original gives its `ObjKind` enum and a tagged union `Obj`. Go has no
// unchecked unions, so each variant is its own struct implementing the Obj
// interface, following the small-tagged-type-with-methods idiom the teacher
// repo uses for its own Cell/opcode tables.
type ObjKind uint8

const (
	ObjString ObjKind = iota
	ObjFunctionKind
	ObjNative
)

func (k ObjKind) String() string {
	switch k {
	case ObjString:
		return "string"
	case ObjFunctionKind:
		return "function"
	case ObjNative:
		return "native"
	default:
		return "unknown"
	}
}

// Obj is implemented by every heap-allocated object variant.
type Obj interface {
	Kind() ObjKind
	size() int
	marked() bool
	setMarked(bool)
}

// header is embedded in every Obj variant and carries the GC mark bit, the
// "common" field of the spec's discriminated union.
type header struct {
	mark bool
}

func (h *header) marked() bool     { return h.mark }
func (h *header) setMarked(m bool) { h.mark = m }

// StringObj is an immutable byte sequence. String equality is by value (see
// Equal in value.go), not identity.
type StringObj struct {
	header
	Value string
}

// NewString allocates a StringObj value; callers should pass it to Instance.Alloc.
func NewString(s string) *StringObj { return &StringObj{Value: s} }

func (*StringObj) Kind() ObjKind { return ObjString }
func (s *StringObj) size() int   { return 32 + len(s.Value) }

// FunctionObj is a compiled function: its arity, the peak stack effect
// reserved for it on call, and its owned chunk.
type FunctionObj struct {
	header
	Name        string
	Arity       int
	StackEffect int
	Chunk       *Chunk
}

// NewFunction allocates an (initially empty) FunctionObj.
func NewFunction(name string) *FunctionObj {
	return &FunctionObj{Name: name, Chunk: NewChunk()}
}

func (*FunctionObj) Kind() ObjKind { return ObjFunctionKind }
func (f *FunctionObj) size() int {
	return 64 + len(f.Chunk.code) + len(f.Chunk.constants)*8
}

// NativeFn is the extension point for host-provided functions: it receives
// the call's argument slice and a pointer to the running VM (so natives may
// allocate, read globals, or raise runtime errors), and returns the value
// left on the stack in place of the call.
type NativeFn func(i *Instance, args []Value) (Value, error)

// NativeObj wraps a host-supplied callable along with the arity range the
// compiler/VM should enforce when calling it.
type NativeObj struct {
	header
	Name    string
	MinArgs int
	MaxArgs int // -1 means unbounded
	Fn      NativeFn
}

// NewNative allocates a NativeObj.
func NewNative(name string, min, max int, fn NativeFn) *NativeObj {
	return &NativeObj{Name: name, MinArgs: min, MaxArgs: max, Fn: fn}
}

func (*NativeObj) Kind() ObjKind { return ObjNative }
func (*NativeObj) size() int     { return 48 }
