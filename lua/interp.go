package lua

import (
	"math"

	"go.uber.org/zap"
)

// Call invokes fn (a Value of Kind KindFunction) with args, running the
// dispatch loop until it returns, and yields up to nresults values (or all
// of them when nresults is MULTIRET). This is the host's sole entry point
// into script or native execution (§4.6 "call protocol").
func (vm *VM) Call(fn Value, args []Value, nresults int) (results []Value, callErr error) {
	funcIdx := vm.top
	vm.Push(fn)
	for _, a := range args {
		vm.Push(a)
	}
	depth := len(vm.frames)

	defer func() {
		if r := recover(); r != nil {
			vm.log.Error("recovered panic during call",
				zap.String("callee", vm.describeValue(fn)),
				zap.Any("panic", r),
			)
			pc := vm.currentPC()
			vm.unwindTo(funcIdx)
			results, callErr = nil, newError(ErrBytecodeCorrupt, pc, "internal error: %v", r)
		}
	}()

	if err := vm.precall(funcIdx, len(args), nresults, statusFreshEntry); err != nil {
		vm.unwindTo(funcIdx)
		return nil, err
	}
	if len(vm.frames) > depth {
		if err := vm.execute(depth + 1); err != nil {
			vm.unwindTo(funcIdx)
			return nil, err
		}
	}

	n := vm.top - funcIdx
	results = make([]Value, n)
	copy(results, vm.stack[funcIdx:vm.top])
	for i := funcIdx; i < vm.top; i++ {
		vm.stack[i] = Value{}
	}
	vm.top = funcIdx
	return results, nil
}

// Release drops the pool reference a Value returned from Call holds, for
// host code finished with a table or closure result (§3 reference
// counting: the host is a participant in the same refcount discipline
// script frames are).
func (vm *VM) Release(v Value) { vm.pool.Release(v) }

// Retain bumps the pool reference of a Value the host intends to keep
// beyond the call that produced it (e.g. storing it back into a global).
func (vm *VM) Retain(v Value) { vm.pool.Retain(v) }

// unwindTo pops every frame whose function slot is at or above idx,
// closes the upvalues aliasing those slots, and clears the stack from idx.
func (vm *VM) unwindTo(idx int) {
	for n := len(vm.frames); n > 0 && vm.frames[n-1].funcIdx >= idx; n = len(vm.frames) {
		for _, v := range vm.frames[n-1].varargs {
			vm.pool.Release(v)
		}
		vm.frames = vm.frames[:n-1]
	}
	vm.upvals.CloseFrom(vm.pool, vm.stack, idx)
	for i := idx; i < vm.top; i++ {
		vm.pool.Release(vm.stack[i])
		vm.stack[i] = Value{}
	}
	vm.top = idx
}

// precall dispatches fn's call protocol (§4.6): native closures run to
// completion synchronously, script closures push a new frame for execute
// to run.
func (vm *VM) precall(funcIdx, nargs, nresults int, extra callStatus) error {
	fn := vm.stack[funcIdx]
	if fn.Kind() != KindFunction {
		return newError(ErrCallNonCallable, vm.currentPC(), "attempt to call a %s value", fn.Kind())
	}
	if nc := vm.pool.NativeClosure(fn.Handle()); nc != nil {
		return vm.callNative(nc, funcIdx, nargs, nresults, extra)
	}
	if sc := vm.pool.ScriptClosure(fn.Handle()); sc != nil {
		return vm.callScript(sc, funcIdx, nargs, nresults, extra)
	}
	return newError(ErrCallNonCallable, vm.currentPC(), "attempt to call an invalid function value")
}

func (vm *VM) callNative(nc *NativeClosure, funcIdx, nargs, nresults int, extra callStatus) error {
	vm.frames = append(vm.frames, frame{funcIdx: funcIdx, base: funcIdx + 1, status: extra})
	prevBase, prevTop := vm.nativeArgsBase, vm.nativeArgsTop
	vm.nativeArgsBase = funcIdx + 1
	vm.nativeArgsTop = funcIdx + 1 + nargs

	resultsStart := vm.top
	n, err := nc.Fn(vm)

	vm.nativeArgsBase, vm.nativeArgsTop = prevBase, prevTop
	vm.frames = vm.frames[:len(vm.frames)-1]
	if err != nil {
		return err
	}
	vm.finishCall(funcIdx, resultsStart, n, nresults)
	return nil
}

func (vm *VM) callScript(sc *ScriptClosure, funcIdx, nargs, nresults int, extra callStatus) error {
	base, varargs, err := vm.setupScriptCall(sc, funcIdx, nargs)
	if err != nil {
		return err
	}
	vm.frames = append(vm.frames, frame{
		closure:    sc,
		funcIdx:    funcIdx,
		base:       base,
		numResults: nresults,
		status:     statusScript | extra,
		varargs:    varargs,
	})
	return nil
}

// setupScriptCall prepares the register window for a call into sc starting
// at funcIdx: it captures vararg extras, pads or truncates nargs to
// NumParams, and reserves MaxStackSize registers, setting to nil those at
// or above the current stack top (slots below it keep their values). Shared by
// callScript (which then pushes a new frame) and tailCall (which reuses
// the caller's frame in place), so both take identical register-setup
// semantics.
func (vm *VM) setupScriptCall(sc *ScriptClosure, funcIdx, nargs int) (base int, varargs []Value, err error) {
	proto := sc.proto
	base = funcIdx + 1
	numParams := int(proto.NumParams)

	if proto.IsVararg && nargs > numParams {
		varargs = make([]Value, nargs-numParams)
		for i := range varargs {
			v := vm.stack[base+numParams+i]
			vm.pool.Retain(v)
			varargs[i] = v
		}
	}

	if nargs < numParams {
		if err = vm.reserve(numParams - nargs); err != nil {
			return 0, nil, err
		}
		for i := nargs; i < numParams; i++ {
			vm.stack[base+i] = NilValue()
		}
		vm.top = base + numParams
	} else if nargs > numParams {
		for i := base + numParams; i < base+nargs; i++ {
			vm.pool.Release(vm.stack[i])
			vm.stack[i] = Value{}
		}
		vm.top = base + numParams
	}

	needed := base + int(proto.MaxStackSize)
	if err = vm.reserve(needed - vm.top); err != nil {
		return 0, nil, err
	}
	for i := vm.top; i < needed; i++ {
		vm.stack[i] = NilValue()
	}
	vm.top = needed

	return base, varargs, nil
}

// tailCall implements §4.7's TAILCALL: a script-to-script tail call reuses
// the current frame instead of pushing a new one, which is required for
// unbounded tail recursion to run in constant call-stack depth. The
// callee and its arguments are shifted down over the caller's own
// closure/argument window, the caller's upvalues are closed, and the
// frame is respliced in place to run the callee's code. A native or
// non-callable callee cannot reuse a script frame this way and falls back
// to the ordinary call protocol.
func (vm *VM) tailCall(f *frame, calleeIdx, nargs int) error {
	callee := vm.stack[calleeIdx]
	if callee.Kind() != KindFunction {
		return newError(ErrCallNonCallable, f.pc-1, "attempt to call a %s value", callee.Kind())
	}
	sc := vm.pool.ScriptClosure(callee.Handle())
	if sc == nil {
		return vm.precall(calleeIdx, nargs, MULTIRET, 0)
	}

	funcIdx := f.funcIdx
	vm.upvals.CloseFrom(vm.pool, vm.stack, f.base)
	for _, v := range f.varargs {
		vm.pool.Release(v)
	}
	f.varargs = nil

	for i := funcIdx; i < calleeIdx; i++ {
		vm.pool.Release(vm.stack[i])
		vm.stack[i] = Value{}
	}
	for i := 0; i <= nargs; i++ {
		src, dst := calleeIdx+i, funcIdx+i
		vm.stack[dst] = vm.stack[src]
		if src != dst {
			vm.stack[src] = Value{}
		}
	}
	for i := funcIdx + nargs + 1; i < vm.top; i++ {
		vm.pool.Release(vm.stack[i])
		vm.stack[i] = Value{}
	}
	vm.top = funcIdx + 1 + nargs

	base, varargs, err := vm.setupScriptCall(sc, funcIdx, nargs)
	if err != nil {
		return err
	}

	f.closure = sc
	f.base = base
	f.pc = 0
	f.varargs = varargs
	f.status |= statusTail
	return nil
}

// finishCall moves the n values starting at resultsStart down to funcIdx,
// releasing whatever occupied funcIdx..resultsStart beforehand, then pads
// or truncates to nresults (or keeps all n when nresults is MULTIRET). The
// new top is left at funcIdx + the final count (§4.6 "postcall").
func (vm *VM) finishCall(funcIdx, resultsStart, n, nresults int) {
	for i := funcIdx; i < resultsStart; i++ {
		vm.pool.Release(vm.stack[i])
		vm.stack[i] = Value{}
	}

	count := n
	if nresults != MULTIRET {
		count = nresults
	}
	for i := 0; i < count; i++ {
		dst, src := funcIdx+i, resultsStart+i
		if i < n {
			if dst != src {
				vm.stack[dst] = vm.stack[src]
				vm.stack[src] = Value{}
			}
		} else {
			vm.stack[dst] = NilValue()
		}
	}
	for i := funcIdx + count; i < resultsStart+n; i++ {
		vm.pool.Release(vm.stack[i])
		vm.stack[i] = Value{}
	}
	vm.top = funcIdx + count
}

// rk resolves a decoded B/C operand against either the constant table or
// the current frame's registers, per the constant-index flag bit (§4.3).
func (vm *VM) rk(f *frame, x int) (Value, error) {
	if isConstantOperand(x) {
		idx := constantIndex(x)
		if idx < 0 || idx >= len(f.closure.proto.Constants) {
			return Value{}, newError(ErrConstantBounds, f.pc, "constant index %d out of bounds", idx)
		}
		return f.closure.proto.Constants[idx], nil
	}
	return vm.stack[f.base+x], nil
}

func (vm *VM) reg(f *frame, i int) Value { return vm.stack[f.base+i] }

func (vm *VM) setReg(f *frame, i int, v Value) { vm.setSlot(f.base+i, v) }

// execute runs the dispatch loop until the call stack depth drops below
// targetDepth, i.e. until the frame pushed at that depth (and everything
// it in turn called) has returned.
func (vm *VM) execute(targetDepth int) error {
	for len(vm.frames) >= targetDepth {
		f := &vm.frames[len(vm.frames)-1]
		proto := f.closure.proto
		if f.pc < 0 || f.pc >= len(proto.Code) {
			return newError(ErrBytecodeCorrupt, f.pc, "program counter ran past end of code")
		}
		instr := decodeInstr(proto.Code[f.pc])
		f.pc++

		switch instr.Op {
		case OpMove:
			vm.setReg(f, instr.A, vm.reg(f, instr.B))

		case OpLoadK:
			vm.setReg(f, instr.A, proto.Constants[instr.Bx])

		case OpLoadKX:
			extra := decodeInstr(proto.Code[f.pc])
			f.pc++
			vm.setReg(f, instr.A, proto.Constants[extra.Ax])

		case OpLoadBool:
			vm.setReg(f, instr.A, BoolValue(instr.B != 0))
			if instr.C != 0 {
				f.pc++
			}

		case OpLoadNil:
			for i := 0; i <= instr.B; i++ {
				vm.setReg(f, instr.A+i, NilValue())
			}

		case OpGetUpval:
			if instr.B < 0 || instr.B >= len(f.closure.upvals) {
				return newError(ErrUpvalueBounds, f.pc-1, "upvalue index %d out of bounds", instr.B)
			}
			vm.setReg(f, instr.A, vm.upvals.Get(f.closure.upvals[instr.B], vm.stack))

		case OpSetUpval:
			if instr.B < 0 || instr.B >= len(f.closure.upvals) {
				return newError(ErrUpvalueBounds, f.pc-1, "upvalue index %d out of bounds", instr.B)
			}
			vm.upvals.Set(vm.pool, f.closure.upvals[instr.B], vm.stack, vm.reg(f, instr.A))

		case OpGetTabUp:
			key, err := vm.rk(f, instr.C)
			if err != nil {
				return err
			}
			v, _ := vm.globals.Get(key)
			vm.setReg(f, instr.A, v)

		case OpSetTabUp:
			key, err := vm.rk(f, instr.B)
			if err != nil {
				return err
			}
			val, err := vm.rk(f, instr.C)
			if err != nil {
				return err
			}
			vm.globals.Set(vm.pool, key, val)

		case OpGetTable:
			key, err := vm.rk(f, instr.C)
			if err != nil {
				return err
			}
			table := vm.reg(f, instr.B)
			if table.Kind() != KindTable {
				return newError(ErrIndexNonTable, f.pc-1, "attempt to index a %s value", table.Kind())
			}
			t := vm.pool.Table(table.Handle())
			if t == nil {
				return newError(ErrIndexNonTable, f.pc-1, "attempt to index a %s value", table.Kind())
			}
			v, _ := t.Get(key)
			vm.setReg(f, instr.A, v)

		case OpSetTable:
			key, err := vm.rk(f, instr.B)
			if err != nil {
				return err
			}
			val, err := vm.rk(f, instr.C)
			if err != nil {
				return err
			}
			table := vm.reg(f, instr.A)
			if table.Kind() != KindTable {
				return newError(ErrIndexNonTable, f.pc-1, "attempt to index a %s value", table.Kind())
			}
			t := vm.pool.Table(table.Handle())
			if t == nil {
				return newError(ErrIndexNonTable, f.pc-1, "attempt to index a %s value", table.Kind())
			}
			t.Set(vm.pool, key, val)

		case OpNewTable:
			vm.setReg(f, instr.A, vm.pool.AllocTable())

		case OpSelf:
			obj := vm.reg(f, instr.B)
			vm.setReg(f, instr.A+1, obj)
			key, err := vm.rk(f, instr.C)
			if err != nil {
				return err
			}
			if obj.Kind() != KindTable {
				return newError(ErrIndexNonTable, f.pc-1, "attempt to index a %s value", obj.Kind())
			}
			t := vm.pool.Table(obj.Handle())
			if t == nil {
				return newError(ErrIndexNonTable, f.pc-1, "attempt to index a %s value", obj.Kind())
			}
			v, _ := t.Get(key)
			vm.setReg(f, instr.A, v)

		case OpAdd, OpSub, OpMul, OpMod, OpPow, OpDiv, OpIDiv,
			OpBAnd, OpBOr, OpBXor, OpShl, OpShr:
			b, err := vm.rk(f, instr.B)
			if err != nil {
				return err
			}
			c, err := vm.rk(f, instr.C)
			if err != nil {
				return err
			}
			result, err := vm.arith(instr.Op, b, c)
			if err != nil {
				return atPC(err, f.pc-1)
			}
			vm.setReg(f, instr.A, result)

		case OpUnm:
			b, err := vm.unm(vm.reg(f, instr.B))
			if err != nil {
				return atPC(err, f.pc-1)
			}
			vm.setReg(f, instr.A, b)

		case OpBNot:
			i, ok := vm.reg(f, instr.B).ToInteger()
			if !ok {
				return newError(ErrArithOnNonNumber, f.pc-1, "attempt to perform bitwise operation on non-integer value")
			}
			vm.setReg(f, instr.A, IntValue(^i))

		case OpNot:
			vm.setReg(f, instr.A, BoolValue(!vm.reg(f, instr.B).Bool()))

		case OpLen:
			v := vm.reg(f, instr.B)
			switch v.Kind() {
			case KindString:
				vm.setReg(f, instr.A, IntValue(int64(len(v.RawString()))))
			case KindTable:
				t := vm.pool.Table(v.Handle())
				vm.setReg(f, instr.A, IntValue(int64(t.Len())))
			default:
				return newError(ErrIndexNonTable, f.pc-1, "attempt to get length of a %s value", v.Kind())
			}

		case OpConcat:
			s := ""
			for i := instr.B; i <= instr.C; i++ {
				part, ok := vm.reg(f, i).ToString()
				if !ok {
					return newError(ErrConcatOnNonStringable, f.pc-1, "attempt to concatenate a %s value", vm.reg(f, i).Kind())
				}
				s += part
			}
			vm.setReg(f, instr.A, StringValue(s))

		case OpJmp:
			if instr.A > 0 {
				vm.upvals.CloseFrom(vm.pool, vm.stack, f.base+instr.A-1)
			}
			f.pc += instr.SBx

		case OpEq, OpLt, OpLe:
			b, err := vm.rk(f, instr.B)
			if err != nil {
				return err
			}
			c, err := vm.rk(f, instr.C)
			if err != nil {
				return err
			}
			cond, ok := true, true
			switch instr.Op {
			case OpEq:
				cond = b.Equal(c)
			case OpLt:
				cond, ok = b.Less(c)
			case OpLe:
				cond, ok = b.LessEqual(c)
			}
			if !ok {
				return newError(ErrOrderOnIncomparable, f.pc-1, "attempt to compare %s with %s", b.Kind(), c.Kind())
			}
			if cond != (instr.A != 0) {
				f.pc++
			}

		case OpTest:
			if vm.reg(f, instr.A).Bool() != (instr.C != 0) {
				f.pc++
			}

		case OpTestSet:
			v := vm.reg(f, instr.B)
			if v.Bool() == (instr.C != 0) {
				vm.setReg(f, instr.A, v)
			} else {
				f.pc++
			}

		case OpCall:
			calleeIdx := f.base + instr.A
			nargs := instr.B - 1
			if instr.B == 0 {
				nargs = vm.top - calleeIdx - 1
			}
			nresults := instr.C - 1
			if instr.C == 0 {
				nresults = MULTIRET
			}
			if err := vm.precall(calleeIdx, nargs, nresults, 0); err != nil {
				return err
			}

		case OpTailCall:
			calleeIdx := f.base + instr.A
			nargs := instr.B - 1
			if instr.B == 0 {
				nargs = vm.top - calleeIdx - 1
			}
			if err := vm.tailCall(f, calleeIdx, nargs); err != nil {
				return err
			}

		case OpReturn:
			first := f.base + instr.A
			n := instr.B - 1
			if instr.B == 0 {
				n = vm.top - first
			}
			vm.upvals.CloseFrom(vm.pool, vm.stack, f.base)
			for _, v := range f.varargs {
				vm.pool.Release(v)
			}
			funcIdx, wanted, wasFreshEntry := f.funcIdx, f.numResults, f.is(statusFreshEntry)
			vm.frames = vm.frames[:len(vm.frames)-1]
			vm.finishCall(funcIdx, first, n, wanted)
			if wasFreshEntry {
				return nil
			}

		case OpForPrep:
			init, err := vm.forNumber(vm.reg(f, instr.A), "initial")
			if err != nil {
				return err
			}
			limit, err := vm.forNumber(vm.reg(f, instr.A+1), "limit")
			if err != nil {
				return err
			}
			step, err := vm.forNumber(vm.reg(f, instr.A+2), "step")
			if err != nil {
				return err
			}
			start := subForLoop(init, step)
			vm.setReg(f, instr.A, start)
			vm.setReg(f, instr.A+1, limit)
			vm.setReg(f, instr.A+2, step)
			f.pc += instr.SBx

		case OpForLoop:
			idx := addForLoop(vm.reg(f, instr.A), vm.reg(f, instr.A+2))
			limit := vm.reg(f, instr.A+1)
			step := vm.reg(f, instr.A+2)
			if forLoopContinues(idx, limit, step) {
				vm.setReg(f, instr.A, idx)
				vm.setReg(f, instr.A+3, idx)
				f.pc += instr.SBx
			}

		case OpTForCall:
			funcV := vm.reg(f, instr.A)
			stateV := vm.reg(f, instr.A+1)
			ctrlV := vm.reg(f, instr.A+2)
			callIdx := f.base + instr.A + 3
			vm.setSlot(callIdx, funcV)
			vm.setSlot(callIdx+1, stateV)
			vm.setSlot(callIdx+2, ctrlV)
			if err := vm.precall(callIdx, 2, instr.C, 0); err != nil {
				return err
			}

		case OpTForLoop:
			if !vm.reg(f, instr.A+1).IsNil() {
				vm.setReg(f, instr.A, vm.reg(f, instr.A+1))
				f.pc += instr.SBx
			}

		case OpSetList:
			table := vm.reg(f, instr.A)
			if table.Kind() != KindTable {
				return newError(ErrIndexNonTable, f.pc-1, "attempt to index a %s value", table.Kind())
			}
			t := vm.pool.Table(table.Handle())
			if t == nil {
				return newError(ErrIndexNonTable, f.pc-1, "attempt to index a %s value", table.Kind())
			}
			n := instr.B
			if n == 0 {
				n = vm.top - (f.base + instr.A) - 1
			}
			batch := instr.C
			if batch == 0 {
				batch = decodeInstr(proto.Code[f.pc]).Ax
				f.pc++
			}
			offset := (batch - 1) * fieldsPerFlush
			for i := 1; i <= n; i++ {
				t.Set(vm.pool, IntValue(int64(offset+i)), vm.reg(f, instr.A+i))
			}

		case OpClosure:
			childProto := proto.Protos[instr.Bx]
			sc, err := newScriptClosure(vm.pool, vm.upvals, childProto, f.closure, f.base)
			if err != nil {
				return atPC(err, f.pc-1)
			}
			vm.setReg(f, instr.A, vm.pool.AllocScriptClosure(sc))

		case OpVararg:
			want := instr.B - 1
			if instr.B == 0 {
				want = len(f.varargs)
			}
			if err := vm.reserve(want); err != nil {
				return err
			}
			for i := 0; i < want; i++ {
				var v Value
				if i < len(f.varargs) {
					v = f.varargs[i]
				} else {
					v = NilValue()
				}
				vm.setReg(f, instr.A+i, v)
			}
			if instr.B == 0 {
				vm.top = f.base + instr.A + want
			}

		case OpExtraArg:
			// only ever consumed inline by the preceding LOADKX; reached
			// directly only on malformed code.
			return newError(ErrBytecodeCorrupt, f.pc-1, "stray EXTRAARG instruction")

		default:
			return newError(ErrBytecodeCorrupt, f.pc-1, "unhandled opcode %s", instr.Op)
		}
	}
	return nil
}

func (vm *VM) arith(op OpCode, a, b Value) (Value, error) {
	switch op {
	case OpBAnd, OpBOr, OpBXor, OpShl, OpShr:
		ai, aok := a.ToInteger()
		bi, bok := b.ToInteger()
		if !aok || !bok {
			return Value{}, newError(ErrArithOnNonNumber, -1, "attempt to perform bitwise operation on non-integer value")
		}
		return IntValue(bitArith(op, ai, bi)), nil
	}

	an, aok := a.ToNumber()
	bn, bok := b.ToNumber()
	if !aok || !bok {
		return Value{}, newError(ErrArithOnNonNumber, -1, "attempt to perform arithmetic on a %s value", pickNonNumberKind(a, aok, b))
	}

	switch op {
	case OpDiv:
		return FloatValue(an.AsFloat() / bn.AsFloat()), nil
	case OpPow:
		return FloatValue(math.Pow(an.AsFloat(), bn.AsFloat())), nil
	}

	if an.Kind() == KindInt && bn.Kind() == KindInt {
		x, y := an.Int(), bn.Int()
		switch op {
		case OpAdd:
			return IntValue(x + y), nil
		case OpSub:
			return IntValue(x - y), nil
		case OpMul:
			return IntValue(x * y), nil
		case OpMod:
			if y == 0 {
				return Value{}, newError(ErrArithOnNonNumber, -1, "attempt to perform 'n%%0'")
			}
			return IntValue(intMod(x, y)), nil
		case OpIDiv:
			if y == 0 {
				return Value{}, newError(ErrArithOnNonNumber, -1, "attempt to perform 'n//0'")
			}
			return IntValue(intFloorDiv(x, y)), nil
		}
	}

	x, y := an.AsFloat(), bn.AsFloat()
	switch op {
	case OpAdd:
		return FloatValue(x + y), nil
	case OpSub:
		return FloatValue(x - y), nil
	case OpMul:
		return FloatValue(x * y), nil
	case OpMod:
		return FloatValue(floatMod(x, y)), nil
	case OpIDiv:
		return FloatValue(math.Floor(x / y)), nil
	}
	return Value{}, newError(ErrArithOnNonNumber, -1, "unsupported arithmetic opcode %s", op)
}

func pickNonNumberKind(a Value, aok bool, b Value) Kind {
	if !aok {
		return a.Kind()
	}
	return b.Kind()
}

func (vm *VM) unm(v Value) (Value, error) {
	n, ok := v.ToNumber()
	if !ok {
		return Value{}, newError(ErrArithOnNonNumber, -1, "attempt to perform arithmetic on a %s value", v.Kind())
	}
	if n.Kind() == KindInt {
		return IntValue(-n.Int()), nil
	}
	return FloatValue(-n.Float()), nil
}

func intMod(a, b int64) int64 {
	if b == -1 {
		return 0
	}
	m := a % b
	if m != 0 && (m^b) < 0 {
		m += b
	}
	return m
}

func intFloorDiv(a, b int64) int64 {
	if b == -1 {
		return -a
	}
	q := a / b
	if (a%b != 0) && ((a ^ b) < 0) {
		q--
	}
	return q
}

func floatMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func bitArith(op OpCode, a, b int64) int64 {
	switch op {
	case OpBAnd:
		return a & b
	case OpBOr:
		return a | b
	case OpBXor:
		return a ^ b
	case OpShl:
		return shiftLeft(a, b)
	case OpShr:
		return shiftLeft(a, -b)
	}
	return 0
}

func shiftLeft(a, n int64) int64 {
	if n <= -64 || n >= 64 {
		return 0
	}
	if n >= 0 {
		return int64(uint64(a) << uint(n))
	}
	return int64(uint64(a) >> uint(-n))
}

// forNumber coerces a numeric-for operand (§4.3 FORPREP/FORLOOP), which
// must already be a number — unlike general arithmetic, the source
// language does not coerce strings here.
func (vm *VM) forNumber(v Value, which string) (Value, error) {
	if !v.IsNumber() {
		return Value{}, newError(ErrArithOnNonNumber, -1, "'for' %s value must be a number", which)
	}
	return v, nil
}

func subForLoop(a, b Value) Value {
	if a.Kind() == KindInt && b.Kind() == KindInt {
		return IntValue(a.Int() - b.Int())
	}
	return FloatValue(a.AsFloat() - b.AsFloat())
}

func addForLoop(a, b Value) Value {
	if a.Kind() == KindInt && b.Kind() == KindInt {
		return IntValue(a.Int() + b.Int())
	}
	return FloatValue(a.AsFloat() + b.AsFloat())
}

func forLoopContinues(idx, limit, step Value) bool {
	if step.Kind() == KindInt && step.Int() >= 0 || step.Kind() == KindFloat && step.Float() >= 0 {
		le, _ := idx.LessEqual(limit)
		return le
	}
	ge, _ := limit.LessEqual(idx)
	return ge
}
