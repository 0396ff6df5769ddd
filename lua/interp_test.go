package lua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// encodeABC/encodeABx mirror decodeInstr's bit layout in reverse, letting
// tests assemble instruction words without a binary chunk fixture.
func encodeABC(op OpCode, a, b, c int) uint32 {
	return uint32(op) | uint32(a)<<posA | uint32(c)<<posC | uint32(b)<<posB
}

func encodeABx(op OpCode, a, bx int) uint32 {
	return uint32(op) | uint32(a)<<posA | uint32(bx)<<posBx
}

func encodeAsBx(op OpCode, a, sbx int) uint32 {
	return encodeABx(op, a, sbx+maxArgSBx)
}

func testVM(t *testing.T) *VM {
	t.Helper()
	return NewVM(zaptest.NewLogger(t))
}

func TestInterpHelloReturn(t *testing.T) {
	vm := testVM(t)
	proto := &Prototype{
		MaxStackSize: 2,
		Constants:    []Value{StringValue("hello")},
		Code: []uint32{
			encodeABx(OpLoadK, 0, 0),
			encodeABC(OpReturn, 0, 2, 0),
		},
	}
	protoClosure, err := newScriptClosure(vm.pool, vm.upvals, proto, nil, 0)
	require.NoError(t, err)
	entry := vm.pool.AllocScriptClosure(protoClosure)

	results, err := vm.Call(entry, nil, MULTIRET)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hello", results[0].RawString())
}

func TestInterpIntegerAdd(t *testing.T) {
	vm := testVM(t)
	proto := &Prototype{
		MaxStackSize: 3,
		Constants:    []Value{IntValue(1), IntValue(2)},
		Code: []uint32{
			encodeABx(OpLoadK, 0, 0),
			encodeABx(OpLoadK, 1, 1),
			encodeABC(OpAdd, 2, 0, 1),
			encodeABC(OpReturn, 2, 2, 0),
		},
	}
	protoClosure, err := newScriptClosure(vm.pool, vm.upvals, proto, nil, 0)
	require.NoError(t, err)
	entry := vm.pool.AllocScriptClosure(protoClosure)

	results, err := vm.Call(entry, nil, MULTIRET)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(3), results[0].Int())
}

func TestInterpFloatCoercion(t *testing.T) {
	vm := testVM(t)
	proto := &Prototype{
		MaxStackSize: 3,
		Constants:    []Value{IntValue(1), FloatValue(2.5)},
		Code: []uint32{
			encodeABx(OpLoadK, 0, 0),
			encodeABx(OpLoadK, 1, 1),
			encodeABC(OpAdd, 2, 0, 1),
			encodeABC(OpReturn, 2, 2, 0),
		},
	}
	protoClosure, err := newScriptClosure(vm.pool, vm.upvals, proto, nil, 0)
	require.NoError(t, err)
	entry := vm.pool.AllocScriptClosure(protoClosure)

	results, err := vm.Call(entry, nil, MULTIRET)
	require.NoError(t, err)
	require.Equal(t, KindFloat, results[0].Kind(), "int+float promotes to float")
	assert.InDelta(t, 3.5, results[0].Float(), 1e-9)
}

// TestInterpClosureCounter builds a counter closure (captures a local via
// an open upvalue, increments it, returns the new value) and calls it
// three times, asserting the captured state survives across calls.
func TestInterpClosureCounter(t *testing.T) {
	vm := testVM(t)

	counterProto := &Prototype{
		MaxStackSize: 2,
		Constants:    []Value{IntValue(1)},
		Upvalues:     []UpvalueDesc{{InStack: true, Index: 0}},
		Code: []uint32{
			encodeABC(OpGetUpval, 0, 0, 0),
			encodeABx(OpLoadK, 1, 0),
			encodeABC(OpAdd, 0, 0, 1),
			encodeABC(OpSetUpval, 0, 0, 0),
			encodeABC(OpReturn, 0, 2, 0),
		},
	}
	outerProto := &Prototype{
		MaxStackSize: 2,
		Protos:       []*Prototype{counterProto},
		Constants:    []Value{IntValue(0)},
		Code: []uint32{
			encodeABx(OpLoadK, 0, 0), // R0 = 0, the counter's seed local
			encodeABx(OpClosure, 1, 0),
			encodeABC(OpReturn, 1, 2, 0),
		},
	}

	outerProtoClosure, err := newScriptClosure(vm.pool, vm.upvals, outerProto, nil, 0)
	require.NoError(t, err)
	entry := vm.pool.AllocScriptClosure(outerProtoClosure)
	results, err := vm.Call(entry, nil, MULTIRET)
	require.NoError(t, err)
	require.Len(t, results, 1)
	counter := results[0]
	require.Equal(t, KindFunction, counter.Kind())

	for i, want := range []int64{1, 2, 3} {
		out, err := vm.Call(counter, nil, 1)
		require.NoError(t, err, "call %d", i)
		require.Len(t, out, 1)
		assert.Equal(t, want, out[0].Int(), "call %d", i)
	}
}

// TestInterpTailCallConstantDepth builds a self-recursive "countdown"
// function that reaches its base case only via TAILCALL, and drives it far
// past maxCallDepth to confirm tail calls reuse the current frame instead
// of growing the call stack.
func TestInterpTailCallConstantDepth(t *testing.T) {
	vm := testVM(t)
	countdownProto := &Prototype{
		NumParams:    1,
		MaxStackSize: 4,
		Constants:    []Value{IntValue(0), StringValue("countdown"), IntValue(1)},
		Code: []uint32{
			encodeABx(OpLoadK, 1, 0),                // R1 = 0
			encodeABC(OpLe, 1, 0, 1),                // if R0 <= R1, fall through to the JMP below
			encodeAsBx(OpJmp, 0, 4),                 // base case: jump to RETURN
			encodeABx(OpLoadK, 3, 2),                // R3 = 1
			encodeABC(OpSub, 3, 0, 3),                // R3 = R0 - 1
			encodeABC(OpGetTabUp, 2, 0, 1|constBit), // R2 = countdown (global)
			encodeABC(OpTailCall, 2, 2, 0),           // tail-call countdown(R3)
			encodeABC(OpReturn, 0, 2, 0),             // base case: return R0
		},
	}

	countdownProtoClosure, err := newScriptClosure(vm.pool, vm.upvals, countdownProto, nil, 0)
	require.NoError(t, err)
	entry := vm.pool.AllocScriptClosure(countdownProtoClosure)
	vm.SetGlobal("countdown", entry)

	results, err := vm.Call(entry, []Value{IntValue(50000)}, MULTIRET)
	require.NoError(t, err, "deep tail recursion must not overflow the call stack")
	require.Len(t, results, 1)
	assert.Equal(t, int64(0), results[0].Int())
	assert.Equal(t, 0, len(vm.frames), "Call leaves no frames behind once it returns")
}

func TestInterpNativeRegistration(t *testing.T) {
	vm := testVM(t)
	vm.Register("print_len", func(vm *VM) (int, error) {
		s, _ := vm.Arg(0).ToString()
		vm.Push(IntValue(int64(len(s))))
		return 1, nil
	})

	fn := vm.GetGlobal("print_len")
	require.Equal(t, KindFunction, fn.Kind())

	results, err := vm.Call(fn, []Value{StringValue("abcd")}, MULTIRET)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(4), results[0].Int())
}

func TestInterpNativeTypedHelpers(t *testing.T) {
	vm := testVM(t)
	vm.Register("describe", func(vm *VM) (int, error) {
		s, _ := vm.ToString(0)
		n, _ := vm.ToInt(1)
		f, _ := vm.ToFloat(2)
		b := vm.ToBool(3)
		vm.PushString(s)
		vm.PushInt(n * 2)
		vm.PushFloat(f + 1)
		vm.PushBool(!b)
		vm.PushNil()
		return 5, nil
	})

	fn := vm.GetGlobal("describe")
	results, err := vm.Call(fn, []Value{StringValue("hi"), IntValue(3), FloatValue(1.5), BoolValue(true)}, MULTIRET)
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, "hi", results[0].RawString())
	assert.Equal(t, int64(6), results[1].Int())
	assert.InDelta(t, 2.5, results[2].Float(), 1e-9)
	assert.Equal(t, false, results[3].Bool())
	assert.True(t, results[4].IsNil())
}

func TestInterpTableRoundTrip(t *testing.T) {
	vm := testVM(t)
	tbl := vm.NewTable()
	vm.TableSet(tbl, StringValue("k"), IntValue(42))

	v, ok := vm.TableGet(tbl, StringValue("k"))
	require.True(t, ok)
	assert.Equal(t, int64(42), v.Int())

	vm.Release(tbl)
}

func TestInterpCallNonCallable(t *testing.T) {
	vm := testVM(t)
	_, err := vm.Call(IntValue(5), nil, MULTIRET)
	require.Error(t, err)
	assert.Equal(t, ErrCallNonCallable, KindOf(err))
}

// TestInterpUpvalueBoundsGetUpval exercises a malformed GETUPVAL whose
// operand indexes past the closure's captured upvalues, which must surface
// as ErrUpvalueBounds instead of panicking on the underlying slice index.
func TestInterpUpvalueBoundsGetUpval(t *testing.T) {
	vm := testVM(t)
	proto := &Prototype{
		MaxStackSize: 1,
		Code: []uint32{
			encodeABC(OpGetUpval, 0, 0, 0),
			encodeABC(OpReturn, 0, 2, 0),
		},
	}
	protoClosure, err := newScriptClosure(vm.pool, vm.upvals, proto, nil, 0)
	require.NoError(t, err)
	entry := vm.pool.AllocScriptClosure(protoClosure)
	_, err = vm.Call(entry, nil, MULTIRET)
	require.Error(t, err)
	assert.Equal(t, ErrUpvalueBounds, KindOf(err))
}

// TestInterpUpvalueBoundsSetUpval mirrors the GETUPVAL case for SETUPVAL.
func TestInterpUpvalueBoundsSetUpval(t *testing.T) {
	vm := testVM(t)
	proto := &Prototype{
		MaxStackSize: 1,
		Code: []uint32{
			encodeABC(OpSetUpval, 0, 0, 0),
			encodeABC(OpReturn, 0, 1, 0),
		},
	}
	protoClosure, err := newScriptClosure(vm.pool, vm.upvals, proto, nil, 0)
	require.NoError(t, err)
	entry := vm.pool.AllocScriptClosure(protoClosure)
	_, err = vm.Call(entry, nil, MULTIRET)
	require.Error(t, err)
	assert.Equal(t, ErrUpvalueBounds, KindOf(err))
}

// TestNewScriptClosureBoundsReleasesPartialCapture exercises the
// construction-time error path: a closure whose descriptors resolve an
// in-stack upvalue before hitting an out-of-range enclosing-upvalue index
// must release what it already captured rather than leaking it.
func TestNewScriptClosureBoundsReleasesPartialCapture(t *testing.T) {
	vm := testVM(t)
	proto := &Prototype{
		Upvalues: []UpvalueDesc{
			{InStack: true, Index: 0},
			{InStack: false, Index: 3}, // no parent closure: always out of range
		},
	}

	_, err := newScriptClosure(vm.pool, vm.upvals, proto, nil, 0)
	require.Error(t, err)
	assert.Equal(t, ErrUpvalueBounds, KindOf(err))
	assert.Empty(t, vm.upvals.openIdx, "the in-stack upvalue captured before the failure must be released, not leaked")
}

func TestInterpDivByZeroInteger(t *testing.T) {
	vm := testVM(t)
	proto := &Prototype{
		MaxStackSize: 3,
		Constants:    []Value{IntValue(1), IntValue(0)},
		Code: []uint32{
			encodeABx(OpLoadK, 0, 0),
			encodeABx(OpLoadK, 1, 1),
			encodeABC(OpIDiv, 2, 0, 1),
			encodeABC(OpReturn, 2, 2, 0),
		},
	}
	protoClosure, err := newScriptClosure(vm.pool, vm.upvals, proto, nil, 0)
	require.NoError(t, err)
	entry := vm.pool.AllocScriptClosure(protoClosure)
	_, err = vm.Call(entry, nil, MULTIRET)
	require.Error(t, err)
	assert.Equal(t, ErrArithOnNonNumber, KindOf(err))
}
