package vm

import (
	"fmt"
	"io"
)

// Instance is one running VM: its call-frame stack, value stack, globals
// store and heap. It plays the role of the teacher's own vm.Instance, which
// bundles Image, stacks and I/O behind a single Run loop.
type Instance struct {
	frames  []CallFrame
	gc      *GC
	stack   *Stack
	Globals *Globals

	trace io.Writer // non-nil enables per-instruction tracing, like the teacher's -debug flag
}

// Option configures an Instance at construction, mirroring the teacher's
// vm.Option (vm.DataSize, vm.Input, ...) functional-options pattern.
type Option func(*Instance)

// Trace enables per-instruction disassembly, written to w, as each opcode
// executes.
func Trace(w io.Writer) Option {
	return func(i *Instance) { i.trace = w }
}

// DebugGC enables mark/sweep/free event logging, written to w.
func DebugGC(w io.Writer) Option {
	return func(i *Instance) { i.gc.SetTrace(w) }
}

// New returns a fresh Instance with an empty stack, globals store and heap.
func New(opts ...Option) *Instance {
	i := &Instance{
		gc:      NewGC(),
		stack:   NewStack(),
		Globals: NewGlobals(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// GC exposes the heap so natives (a separate package) can allocate through
// Instance.Alloc without importing vm's unexported internals.
func (i *Instance) GC() *GC { return i.gc }

// Deref resolves a heap-boxed Value to the Obj it points at. The caller must
// have checked IsObj first.
func (i *Instance) Deref(v Value) Obj { return i.gc.Get(v.objIndex()) }

// Stack exposes the value stack so natives can inspect call arguments beyond
// what they're handed directly (none currently need to, but Collection-style
// natives need Globals, exposed as a field above).
func (i *Instance) Stack() *Stack { return i.stack }

func (i *Instance) frame() *CallFrame {
	return &i.frames[len(i.frames)-1]
}

// Alloc installs obj on the heap, running a collection first if the
// allocation threshold has been crossed (spec.md §5: "the only events that
// can trigger a collection are heap allocations").
func (i *Instance) Alloc(obj Obj) Value {
	if i.gc.ShouldCollect() {
		i.markRoots()
		i.gc.Collect()
	}
	return i.gc.alloc(obj)
}

// markRoots enumerates every GC root: the value stack, each call frame's
// function (for its constant pool), and the globals store (slots and keyed
// maps, including scoped overlays).
func (i *Instance) markRoots() {
	for _, v := range i.stack.Slice() {
		i.gc.Mark(v)
	}
	for idx := range i.frames {
		i.gc.MarkFunction(i.frames[idx].Function)
	}
	i.Globals.markRoots(i.gc)
}

// pushCallFrame reserves stack capacity for fn's peak stack effect and pushes
// a new call frame whose locals begin argc slots below the current top (the
// slots the caller already pushed as arguments).
func (i *Instance) pushCallFrame(fn *FunctionObj, argc int) {
	i.stack.Reserve(fn.StackEffect)
	fp := i.stack.Len() - argc
	i.frames = append(i.frames, CallFrame{Function: fn, FPOffset: fp})
}

// Start seeds the VM with the top-level compiled function and runs it until
// it returns or a runtime error is raised. compiler.Compile calls it once
// compilation succeeds.
func (i *Instance) Start(fn *FunctionObj) error {
	i.pushCallFrame(fn, 0)
	return i.Run()
}

// callValue dispatches an OpCall: callee must be a function or a native
// object, found argc slots below the current stack top (the arguments sit
// above it). Anything else is a fatal runtime error.
func (i *Instance) callValue(callee Value, argc int) {
	if !callee.IsObj() {
		i.raise("can only call functions")
	}
	switch o := i.gc.Get(callee.objIndex()).(type) {
	case *FunctionObj:
		if o.Arity != argc {
			i.raise("expected %d arguments but got %d", o.Arity, argc)
		}
		i.pushCallFrame(o, argc)
	case *NativeObj:
		if argc < o.MinArgs || (o.MaxArgs >= 0 && argc > o.MaxArgs) {
			i.raise("expected between %d and %d arguments but got %d", o.MinArgs, o.MaxArgs, argc)
		}
		base := i.stack.Len() - argc
		args := make([]Value, argc)
		for k := 0; k < argc; k++ {
			args[k] = i.stack.Get(base + k)
		}
		result, err := o.Fn(i, args)
		if err != nil {
			i.raise("%s", err.Error())
		}
		i.stack.SetTop(base - 1)
		i.stack.Push(result)
	default:
		i.raise("can only call functions")
	}
}

// Run executes the dispatch loop until the top-level frame returns, or a
// fatal error is raised. It recovers a panicked *RuntimeError exactly as the
// teacher's own Instance.Run recovers its core.CoreError, converting it into
// a returned error rather than letting it unwind past the VM.
func (i *Instance) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			re, ok := r.(*RuntimeError)
			if !ok {
				panic(r)
			}
			err = re
		}
	}()

	for {
		f := i.frame()
		op := f.nextOpCode()

		if i.trace != nil {
			fmt.Fprintf(i.trace, "%04d %s\n", f.ip-1, op)
		}

		switch op {
		case OpLoadConstant:
			i.stack.Push(f.nextConstant())
		case OpLoadConstantExt:
			i.stack.Push(f.nextConstantExt())
		case OpNull:
			i.stack.Push(Null)
		case OpPop:
			i.stack.Pop()

		case OpAdd:
			i.binaryAdd()
		case OpSub:
			i.binaryArith(op)
		case OpMul:
			i.binaryArith(op)
		case OpDiv:
			i.binaryArith(op)

		case OpEqual:
			b, a := i.stack.Pop(), i.stack.Pop()
			i.stack.Push(Bool(Equal(i.gc, a, b)))
		case OpNotEqual:
			b, a := i.stack.Pop(), i.stack.Pop()
			i.stack.Push(Bool(!Equal(i.gc, a, b)))
		case OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
			i.binaryCompare(op)

		case OpNot:
			v := i.stack.Peek(0)
			if !v.IsBool() {
				i.raise("can only negate booleans")
			}
			i.stack.ReplaceTop(Bool(!v.AsBool()))
		case OpNegate:
			v := i.stack.Peek(0)
			if !v.IsFloat() {
				i.raise("can only negate numbers")
			}
			i.stack.ReplaceTop(Float(-v.AsFloat()))

		case OpDefineGlobal:
			idx := f.nextByte()
			i.Globals.Set(idx, i.stack.Pop())
		case OpGetGlobal:
			idx := f.nextByte()
			v := i.Globals.Get(idx)
			if v.IsUndef() {
				i.raise("undefined global variable")
			}
			i.stack.Push(v)
		case OpSetGlobal:
			idx := f.nextByte()
			i.Globals.Set(idx, i.stack.Peek(0))

		case OpGetLocal:
			slot := f.nextByte()
			i.stack.Push(i.stack.Get(f.FPOffset + int(slot)))
		case OpSetLocal:
			slot := f.nextByte()
			i.stack.Set(f.FPOffset+int(slot), i.stack.Peek(0))

		case OpGetMap:
			innerKey := i.stack.Pop()
			mapKey := i.stack.Pop()
			v, ok := i.Globals.GetMap(mapKey, innerKey)
			if !ok {
				i.raise("key not found in map")
			}
			i.stack.Push(v)
		case OpSetMap:
			value := i.stack.Pop()
			innerKey := i.stack.Pop()
			mapKey := i.stack.Pop()
			i.Globals.SetMap(mapKey, innerKey, value)
			i.stack.Push(value)
		case OpPushMap:
			i.Globals.PushMapScope()
		case OpPopMap:
			i.Globals.PopMapScope()

		case OpJump:
			f.jumpForward()
		case OpJumpUp:
			f.jumpBack()
		case OpJumpIfFalse:
			cond := i.stack.Pop()
			if !cond.AsBool() {
				f.jumpForward()
			} else {
				f.skipJumpOperand()
			}
		case OpJumpIfFalseNoPop:
			cond := i.stack.Peek(0)
			if !cond.AsBool() {
				f.jumpForward()
			} else {
				f.skipJumpOperand()
			}
		case OpJumpIfTrueNoPop:
			cond := i.stack.Peek(0)
			if cond.AsBool() {
				f.jumpForward()
			} else {
				f.skipJumpOperand()
			}

		case OpCall:
			argc := int(f.nextByte())
			callee := i.stack.Peek(argc)
			i.callValue(callee, argc)

		case OpReturn:
			result := i.stack.Pop()
			old := i.frames[len(i.frames)-1]
			i.frames = i.frames[:len(i.frames)-1]
			if len(i.frames) == 0 {
				i.gc.FreeEverything()
				return nil
			}
			i.stack.SetTop(old.FPOffset - 1)
			i.stack.Push(result)

		default:
			i.raise("unknown opcode %d", op)
		}
	}
}

// binaryAdd implements Add's overload: numeric addition for two floats,
// concatenation for two strings. Any other combination is a type error
// (spec.md §7).
func (i *Instance) binaryAdd() {
	b, a := i.stack.Pop(), i.stack.Pop()
	switch {
	case a.IsFloat() && b.IsFloat():
		i.stack.Push(Float(a.AsFloat() + b.AsFloat()))
	case a.IsObj() && b.IsObj():
		sa, aOK := i.gc.Get(a.objIndex()).(*StringObj)
		sb, bOK := i.gc.Get(b.objIndex()).(*StringObj)
		if !aOK || !bOK {
			i.raise("operands must be two numbers or two strings")
		}
		i.stack.Push(i.Alloc(NewString(sa.Value + sb.Value)))
	default:
		i.raise("operands must be two numbers or two strings")
	}
}

// binaryArith implements Sub, Mul and Div, which only ever operate on two
// floats.
func (i *Instance) binaryArith(op OpCode) {
	b, a := i.stack.Pop(), i.stack.Pop()
	if !a.IsFloat() || !b.IsFloat() {
		i.raise("operands must be numbers")
	}
	x, y := a.AsFloat(), b.AsFloat()
	switch op {
	case OpSub:
		i.stack.Push(Float(x - y))
	case OpMul:
		i.stack.Push(Float(x * y))
	case OpDiv:
		i.stack.Push(Float(x / y))
	}
}

// binaryCompare implements the four ordering operators, which only ever
// operate on two floats; equality across other types is handled separately
// by OpEqual/OpNotEqual.
func (i *Instance) binaryCompare(op OpCode) {
	b, a := i.stack.Pop(), i.stack.Pop()
	if !a.IsFloat() || !b.IsFloat() {
		i.raise("can only compare two numbers")
	}
	x, y := a.AsFloat(), b.AsFloat()
	var result bool
	switch op {
	case OpGreater:
		result = x > y
	case OpGreaterEqual:
		result = x >= y
	case OpLess:
		result = x < y
	case OpLessEqual:
		result = x <= y
	}
	i.stack.Push(Bool(result))
}
