package natives

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Banzobotic/dymaxilang/vm"
)

// def is one table entry: name, arity range, implementation. Installation
// is table-driven, mirroring the teacher's own opcodes/opcodeIndex
// table-plus-index idiom (vm/opcodes.go) rather than a chain of individual
// calls.
type def struct {
	name     string
	min, max int // max -1 means unbounded
	fn       vm.NativeFn
}

var table = []def{
	{"time", 0, 0, nativeTime},
	{"print", 0, -1, nativePrint},
	{"read", 1, 1, nativeRead},
	{"num", 1, 1, nativeNum},
	{"abs", 1, 1, nativeAbs},
	{"split", 1, 2, nativeSplit},
	{"split_into", 2, 3, nativeSplitInto},
	{"chars", 1, 1, nativeChars},
	{"chars_into", 2, 2, nativeCharsInto},
	{"sort", 3, 3, nativeSort},
}

// Install binds every host native as a global, before compilation of user
// source begins, exactly as the original source's Compiler::define_natives
// does for its own (much smaller) set.
func Install(i *vm.Instance) {
	for _, d := range table {
		obj := vm.NewNative(d.name, d.min, d.max, d.fn)
		v := i.Alloc(obj)
		idx := i.Globals.Intern(d.name)
		i.Globals.Set(idx, v)
	}
}

func nativeTime(i *vm.Instance, args []vm.Value) (vm.Value, error) {
	return vm.Float(float64(time.Now().UnixNano()) / 1e9), nil
}

func nativePrint(i *vm.Instance, args []vm.Value) (vm.Value, error) {
	if len(args) == 0 {
		os.Stdout.WriteString("\n")
		return vm.Null, nil
	}
	for _, a := range args {
		os.Stdout.WriteString(Stringify(i, a))
		os.Stdout.WriteString("\n")
	}
	return vm.Null, nil
}

func asString(i *vm.Instance, v vm.Value) (*vm.StringObj, bool) {
	if !v.IsObj() {
		return nil, false
	}
	s, ok := i.Deref(v).(*vm.StringObj)
	return s, ok
}

func nativeRead(i *vm.Instance, args []vm.Value) (vm.Value, error) {
	path, ok := asString(i, args[0])
	if !ok {
		return 0, errors.Errorf("file path (%s) must be a string", Stringify(i, args[0]))
	}
	data, err := os.ReadFile(path.Value)
	if err != nil {
		return 0, errors.Errorf("file (%s) not found", path.Value)
	}
	return i.Alloc(vm.NewString(strings.TrimSpace(string(data)))), nil
}

func nativeNum(i *vm.Instance, args []vm.Value) (vm.Value, error) {
	s, ok := asString(i, args[0])
	if !ok {
		return 0, errors.Errorf("attempted to convert %s, but can only convert strings to numbers", Stringify(i, args[0]))
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s.Value), 64)
	if err != nil {
		return 0, errors.Errorf("attempted to convert %q, but string must represent a valid number", s.Value)
	}
	return vm.Float(f), nil
}

func nativeAbs(i *vm.Instance, args []vm.Value) (vm.Value, error) {
	v := args[0]
	if !v.IsFloat() {
		return 0, errors.Errorf("attempted to get the absolute value of %s, but can only get the absolute value of numbers", Stringify(i, v))
	}
	f := v.AsFloat()
	if f < 0 {
		f = -f
	}
	return vm.Float(f), nil
}

func nativeSplit(i *vm.Instance, args []vm.Value) (vm.Value, error) {
	key := i.Alloc(vm.NewString("split"))
	return splitImpl(i, args, key, len(args) == 1)
}

func nativeSplitInto(i *vm.Instance, args []vm.Value) (vm.Value, error) {
	key := args[len(args)-1]
	return splitImpl(i, args, key, len(args) == 2)
}

func splitImpl(i *vm.Instance, args []vm.Value, key vm.Value, whitespace bool) (vm.Value, error) {
	s, ok := asString(i, args[0])
	if !ok {
		return 0, errors.Errorf("attempted to split %s, but can only split strings", Stringify(i, args[0]))
	}

	var parts []string
	if whitespace {
		parts = strings.Fields(s.Value)
	} else {
		pat, ok := asString(i, args[1])
		if !ok {
			return 0, errors.Errorf("split pattern (%s) must be a string", Stringify(i, args[1]))
		}
		parts = strings.Split(s.Value, pat.Value)
	}

	for idx, part := range parts {
		v := i.Alloc(vm.NewString(part))
		i.Globals.SetMap(key, vm.Float(float64(idx)), v)
	}
	return vm.Float(float64(len(parts))), nil
}

func nativeChars(i *vm.Instance, args []vm.Value) (vm.Value, error) {
	key := i.Alloc(vm.NewString("chars"))
	return charsImpl(i, args, key)
}

func nativeCharsInto(i *vm.Instance, args []vm.Value) (vm.Value, error) {
	return charsImpl(i, args, args[1])
}

func charsImpl(i *vm.Instance, args []vm.Value, key vm.Value) (vm.Value, error) {
	s, ok := asString(i, args[0])
	if !ok {
		return 0, errors.Errorf("attempted to get chars of %s, but can only get chars of strings", Stringify(i, args[0]))
	}

	count := 0.0
	for _, r := range s.Value {
		v := i.Alloc(vm.NewString(string(r)))
		i.Globals.SetMap(key, vm.Float(count), v)
		count++
	}
	return vm.Float(count), nil
}

func nativeSort(i *vm.Instance, args []vm.Value) (vm.Value, error) {
	key := args[0]
	m, ok := i.Globals.Collection(key)
	if !ok {
		return 0, errors.Errorf("%q has no values associated with it", Stringify(i, key))
	}

	start, end := args[1], args[2]
	if !start.IsFloat() || !end.IsFloat() {
		return 0, errors.New("can only sort data indexed by numbers")
	}
	startF, endF := start.AsFloat(), end.AsFloat()
	if startF != float64(int64(startF)) || endF != float64(int64(endF)) {
		return 0, errors.New("can only sort data indexed by integers")
	}
	startI, endI := int(startF), int(endF)

	buf := make([]float64, 0, endI-startI)
	for idx := startI; idx < endI; idx++ {
		v, ok := m[vm.Float(float64(idx))]
		if !ok {
			return 0, errors.Errorf("no value at index %d", idx)
		}
		if !v.IsFloat() {
			return 0, errors.Errorf("attempted to sort %s, but can only sort numbers", Stringify(i, v))
		}
		buf = append(buf, v.AsFloat())
	}

	sort.Float64s(buf)

	for idx := startI; idx < endI; idx++ {
		m[vm.Float(float64(idx))] = vm.Float(buf[idx-startI])
	}

	return vm.Null, nil
}
