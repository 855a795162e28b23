// Package natives implements the host-provided functions installed as
// globals before compilation begins (spec.md §6): time, print, read, num,
// abs, split, split_into, chars, chars_into and sort. Each is grounded
// directly on original_source/src/compiler/natives.rs, adapted from raw
// pointer arithmetic over an argument buffer to a Go argument slice.
package natives

import (
	"strconv"

	"github.com/Banzobotic/dymaxilang/vm"
)

// Stringify renders v the way `print` displays it: floats in Go's shortest
// round-trip decimal form, booleans/null literally, strings raw (no
// quoting), and functions/natives by name — there being no Display impl to
// port verbatim, since the original source's own Value::fmt predates its
// multi-variant heap object (see DESIGN.md).
func Stringify(i *vm.Instance, v vm.Value) string {
	switch {
	case v.IsFloat():
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	case v.IsNull():
		return "null"
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsObj():
		switch o := i.Deref(v).(type) {
		case *vm.StringObj:
			return o.Value
		case *vm.FunctionObj:
			if o.Name == "" {
				return "<fn>"
			}
			return "<fn " + o.Name + ">"
		case *vm.NativeObj:
			return "<native " + o.Name + ">"
		}
	}
	return "<undef>"
}
