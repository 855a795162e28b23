package vm_test

import (
	"bytes"
	"testing"

	"github.com/Banzobotic/dymaxilang/compiler"
	"github.com/Banzobotic/dymaxilang/vm"
)

// run compiles and executes src, returning the compile or runtime error, if
// any; what src prints goes to the real stdout and is not checked here.
// Exercising the dispatch loop end-to-end through the compiler is the only
// practical way to drive vm.Instance without hand-assembling chunks for
// every opcode (spec.md §8's end-to-end scenarios are stated in source
// terms, not bytecode).
func run(t *testing.T, src string) error {
	t.Helper()
	c := compiler.New(src)
	_, err := c.Compile()
	return err
}

func TestVM_ArithmeticPrecedence(t *testing.T) {
	// spec.md §8 scenario: `let x = 1 + 2 * 3; print(x);` -> 7
	if err := run(t, `let x = 1 + 2 * 3; print(x);`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVM_StringConcatenation(t *testing.T) {
	if err := run(t, `let s = "foo" + "bar"; print(s);`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVM_Functions(t *testing.T) {
	src := `
		let add = fn(a, b) { return a + b; };
		print(add(2, 3));
	`
	if err := run(t, src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVM_WhileLoop(t *testing.T) {
	src := `
		let n = 0;
		let total = 0;
		while n < 5 {
			total = total + n;
			n = n + 1;
		}
		print(total);
	`
	if err := run(t, src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVM_ForLoop(t *testing.T) {
	src := `
		let total = 0;
		for i in 0 > 5 {
			total = total + i;
		}
		print(total);
	`
	if err := run(t, src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVM_Map(t *testing.T) {
	src := `
		let m = "mymap";
		m[0] = "hello";
		print(m[0]);
	`
	if err := run(t, src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVM_RuntimeError_TypeMismatch(t *testing.T) {
	err := run(t, `let x = 1 + true;`)
	if err == nil {
		t.Fatal("expected a runtime error adding a number and a boolean")
	}
}

func TestVM_RuntimeError_UndefinedGlobal(t *testing.T) {
	err := run(t, `print(doesNotExist);`)
	if err == nil {
		t.Fatal("expected a runtime error for an undefined global")
	}
}

func TestVM_RuntimeError_CallArityMismatch(t *testing.T) {
	err := run(t, `let f = fn(a) { return a; }; f(1, 2);`)
	if err == nil {
		t.Fatal("expected a runtime error for a call with the wrong argument count")
	}
}

func TestVM_CompileError_ReportsParseErrors(t *testing.T) {
	c := compiler.New(`let x = ;`)
	_, err := c.Compile()
	if err == nil {
		t.Fatal("expected a compile error for a missing expression")
	}
	if _, ok := err.(compiler.ErrorList); !ok {
		t.Fatalf("err = %T, want compiler.ErrorList", err)
	}
}

func TestVM_Trace(t *testing.T) {
	var buf bytes.Buffer
	c := compiler.New(`print(1 + 1);`, vm.Trace(&buf))
	if _, err := c.Compile(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("vm.Trace produced no output")
	}
}
