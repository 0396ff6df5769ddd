package lua

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// initialStackSize is the number of register slots a VM preallocates; the
// stack grows by doubling, mirroring the teacher's fixed-but-generous
// stackSize constant generalized to a dynamic slice since chunk-declared
// MaxStackSize varies per prototype and per call depth.
const initialStackSize = 256

// maxCallDepth bounds recursive/script-to-script call nesting, the
// stack-discipline analogue of the teacher's stack-overflow guard in its
// push/pop helpers.
const maxCallDepth = 200

// VM is one embeddable interpreter instance: its own register stack, heap
// object pool, upvalue pool, and global table, independent of any other VM
// in the same process (§5 "single VM instance owns its entire state").
type VM struct {
	id     uuid.UUID
	log    *zap.Logger
	pool   *objectPool
	upvals *upvaluePool

	stack  []Value
	top    int // index one past the last live stack slot
	frames []frame

	globals *Table

	// nativeArgsBase/nativeArgsTop delimit the current native call's
	// argument window within stack, read through Arg/NumArgs; set by
	// precall immediately before invoking a NativeClosure's Fn.
	nativeArgsBase int
	nativeArgsTop  int
}

// NewVM constructs an embeddable interpreter. logger may be nil, in which
// case a no-op logger is used — matching zap's own convention for optional
// diagnostic output rather than introducing a bespoke log interface.
func NewVM(logger *zap.Logger) *VM {
	if logger == nil {
		logger = zap.NewNop()
	}
	upvals := newUpvaluePool()
	id := uuid.New()
	vm := &VM{
		id:      id,
		log:     logger.With(zap.String("vm_id", id.String())),
		pool:    newObjectPool(upvals),
		upvals:  upvals,
		stack:   make([]Value, initialStackSize),
		globals: newTable(),
	}
	return vm
}

// ID returns the VM's correlation identifier, logged alongside every
// diagnostic event this instance emits.
func (vm *VM) ID() uuid.UUID { return vm.id }

func (vm *VM) growStack(minSize int) {
	if minSize <= len(vm.stack) {
		return
	}
	newSize := len(vm.stack) * 2
	if newSize < minSize {
		newSize = minSize
	}
	grown := make([]Value, newSize)
	copy(grown, vm.stack)
	vm.stack = grown
}

func (vm *VM) reserve(n int) error {
	if vm.top+n > len(vm.stack) {
		vm.growStack(vm.top + n)
	}
	if len(vm.frames) >= maxCallDepth {
		return newError(ErrStackOverflow, vm.currentPC(), "call depth exceeded %d frames", maxCallDepth)
	}
	return nil
}

func (vm *VM) currentPC() int {
	if len(vm.frames) == 0 {
		return -1
	}
	return vm.frames[len(vm.frames)-1].pc
}

// setSlot overwrites stack[idx], releasing whatever object reference lived
// there and retaining v's.
func (vm *VM) setSlot(idx int, v Value) {
	vm.pool.Retain(v)
	vm.pool.Release(vm.stack[idx])
	vm.stack[idx] = v
}

// clearSlot releases stack[idx]'s reference and resets it to nil.
func (vm *VM) clearSlot(idx int) {
	vm.pool.Release(vm.stack[idx])
	vm.stack[idx] = Value{}
}

// Push appends v to the top of the value stack. Native closures use this
// to return results to their caller, and host code uses it to assemble the
// argument list for Call. Unlike reserve, Push only grows the register
// array — it never rejects on call depth, since appending a value slot
// pushes no new frame.
func (vm *VM) Push(v Value) {
	vm.growStack(vm.top + 1)
	vm.pool.Retain(v)
	vm.stack[vm.top] = v
	vm.top++
}

// Pop removes and returns the top of the value stack.
func (vm *VM) Pop() Value {
	vm.top--
	v := vm.stack[vm.top]
	vm.stack[vm.top] = Value{}
	return v
}

// PushString, PushInt, PushFloat, PushBool, and PushNil are typed
// convenience wrappers around Push(Value), for native closures that would
// otherwise spell out the Value constructor at every call site.
func (vm *VM) PushString(s string) { vm.Push(StringValue(s)) }
func (vm *VM) PushInt(i int64)     { vm.Push(IntValue(i)) }
func (vm *VM) PushFloat(f float64) { vm.Push(FloatValue(f)) }
func (vm *VM) PushBool(b bool)     { vm.Push(BoolValue(b)) }
func (vm *VM) PushNil()            { vm.Push(NilValue()) }

// NumArgs reports how many arguments the currently-running native closure
// was called with.
func (vm *VM) NumArgs() int {
	return vm.nativeArgsTop - vm.nativeArgsBase
}

// Arg returns argument i (0-based) of the currently-running native
// closure's call, or nil if i is out of range.
func (vm *VM) Arg(i int) Value {
	idx := vm.nativeArgsBase + i
	if i < 0 || idx >= vm.nativeArgsTop {
		return NilValue()
	}
	return vm.stack[idx]
}

// ToString, ToInt, ToFloat, and ToBool are typed convenience wrappers
// around Arg(i)'s coercions, for native closures reading a specific
// argument's value without spelling out the Value accessor.
func (vm *VM) ToString(i int) (string, bool) { return vm.Arg(i).ToString() }
func (vm *VM) ToInt(i int) (int64, bool) { return vm.Arg(i).ToInteger() }
func (vm *VM) ToFloat(i int) (float64, bool) {
	v := vm.Arg(i)
	if !v.IsNumber() {
		return 0, false
	}
	return v.AsFloat(), true
}
func (vm *VM) ToBool(i int) bool { return vm.Arg(i).Bool() }

// NewTable allocates an empty table, reachable from script and native code
// alike through the same pool.
func (vm *VM) NewTable() Value {
	return vm.pool.AllocTable()
}

// TableGet/TableSet expose the pool-backed table behind v to native code;
// v must be a KindTable Value (as produced by NewTable or GetGlobal).
func (vm *VM) TableGet(v Value, key Value) (Value, bool) {
	if v.Kind() != KindTable {
		return Value{}, false
	}
	t := vm.pool.Table(v.Handle())
	if t == nil {
		return Value{}, false
	}
	return t.Get(key)
}

func (vm *VM) TableSet(v Value, key, value Value) {
	if v.Kind() != KindTable {
		return
	}
	t := vm.pool.Table(v.Handle())
	if t == nil {
		return
	}
	t.Set(vm.pool, key, value)
}

// Register installs a host function under name in the global table,
// wrapped as a NativeClosure (§4.6 "Native closure").
func (vm *VM) Register(name string, fn NativeFunc) {
	closure := vm.pool.AllocNativeClosure(&NativeClosure{Name: name, Fn: fn})
	vm.globals.Set(vm.pool, StringValue(name), closure)
	vm.log.Debug("registered native function", zap.String("name", name))
}

// SetGlobal binds name to v in the global table.
func (vm *VM) SetGlobal(name string, v Value) {
	vm.globals.Set(vm.pool, StringValue(name), v)
}

// GetGlobal looks up name in the global table, returning nil if unbound.
func (vm *VM) GetGlobal(name string) Value {
	v, ok := vm.globals.Get(StringValue(name))
	if !ok {
		return NilValue()
	}
	return v
}

// Load parses a compiled binary chunk and wraps its root prototype as a
// callable closure with no enclosing closure; the root's in-stack upvalue
// descriptors become open upvalues resolved against stack base 0 (§4.2,
// §4.6 "entry closure").
func (vm *VM) Load(data []byte) (Value, error) {
	chunk, err := LoadChunk(data)
	if err != nil {
		return Value{}, err
	}
	sc, err := newScriptClosure(vm.pool, vm.upvals, chunk.Root, nil, 0)
	if err != nil {
		return Value{}, err
	}
	v := vm.pool.AllocScriptClosure(sc)
	vm.log.Info("chunk loaded",
		zap.Int("num_upvalues", chunk.NumUpvalues),
		zap.Bool("big_endian", chunk.Arch.BigEndian),
	)
	return v, nil
}

// LiveObjects reports how many heap objects are currently allocated, for
// diagnostics and tests asserting on alloc/release symmetry (§8).
func (vm *VM) LiveObjects() int { return vm.pool.Live() }

func (vm *VM) describeValue(v Value) string {
	switch v.Kind() {
	case KindFunction:
		if sc := vm.pool.ScriptClosure(v.Handle()); sc != nil {
			return fmt.Sprintf("function: %s:%d", sc.proto.Source, sc.proto.LineDefined)
		}
		if nc := vm.pool.NativeClosure(v.Handle()); nc != nil {
			return fmt.Sprintf("function: native(%s)", nc.Name)
		}
	}
	return v.String()
}
