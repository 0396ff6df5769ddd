package lua

// handle is a stable, reusable index into a VM's object pool. Handle 0 is
// never issued by alloc and is used as the pool's own sentinel for "no
// object"; Value's zero-value KindTable/KindFunction accordingly never
// denotes a live object unless paired with a non-zero handle.
type handle uint32

// objKind discriminates the tagged union a pool slot holds (§3 "Heap
// object").
type objKind uint8

const (
	objFree objKind = iota
	objTable
	objScriptClosure
	objNativeClosure
)

// object is one pool slot. Exactly one of table/script/native is valid,
// selected by kind; refs is the slot's reference count, bumped and dropped
// by retain/release as Values naming this handle are copied and discarded.
type object struct {
	kind    objKind
	refs    int32
	table   *Table
	script  *ScriptClosure
	native  *NativeClosure
}

// objectPool owns every heap object a VM has allocated. A freed slot is
// reused, lowest index first, before the pool grows, so a pool that
// oscillates between N and N-1 live objects never grows past N slots (§3 "no cycle-collecting GC; first free slot reused
// before growth", grounded on the teacher's device registry, which holds
// HardwareDevice implementations at stable slot indices addressed by ID
// rather than by a map).
type objectPool struct {
	slots  []object
	free   []handle
	upvals *upvaluePool // wired in by the owning VM; closures release through it
}

func newObjectPool(upvals *upvaluePool) *objectPool {
	return &objectPool{upvals: upvals}
}

func (p *objectPool) take() handle {
	if n := len(p.free); n > 0 {
		lowest := 0
		for i := 1; i < n; i++ {
			if p.free[i] < p.free[lowest] {
				lowest = i
			}
		}
		h := p.free[lowest]
		p.free = append(p.free[:lowest], p.free[lowest+1:]...)
		return h
	}
	p.slots = append(p.slots, object{})
	return handle(len(p.slots))
}

func (p *objectPool) slot(h handle) *object {
	return &p.slots[h-1]
}

func (p *objectPool) AllocTable() Value {
	h := p.take()
	*p.slot(h) = object{kind: objTable, refs: 1, table: newTable()}
	return tableValue(h)
}

func (p *objectPool) AllocScriptClosure(c *ScriptClosure) Value {
	h := p.take()
	*p.slot(h) = object{kind: objScriptClosure, refs: 1, script: c}
	return functionValue(h)
}

func (p *objectPool) AllocNativeClosure(c *NativeClosure) Value {
	h := p.take()
	*p.slot(h) = object{kind: objNativeClosure, refs: 1, native: c}
	return functionValue(h)
}

// Table returns the table behind h, or nil if h does not name a table.
func (p *objectPool) Table(h handle) *Table {
	o := p.slot(h)
	if o.kind != objTable {
		return nil
	}
	return o.table
}

// ScriptClosure returns the script closure behind h, or nil otherwise.
func (p *objectPool) ScriptClosure(h handle) *ScriptClosure {
	o := p.slot(h)
	if o.kind != objScriptClosure {
		return nil
	}
	return o.script
}

// NativeClosure returns the native closure behind h, or nil otherwise.
func (p *objectPool) NativeClosure(h handle) *NativeClosure {
	o := p.slot(h)
	if o.kind != objNativeClosure {
		return nil
	}
	return o.native
}

// Retain bumps v's reference count if it owns a pool handle; no-op for
// non-object Values. Every place a Value is copied into longer-lived
// storage (a register beyond its source's lifetime, a table slot, an
// upvalue) must retain.
func (p *objectPool) Retain(v Value) {
	if !v.isObject() {
		return
	}
	p.slot(v.h).refs++
}

// Release drops v's reference count if it owns a pool handle, freeing the
// slot and recursively releasing everything it owns once the count reaches
// zero. Every place a Value's storage is discarded (a register overwritten,
// a table slot cleared, a closure's upvalue array torn down) must release.
func (p *objectPool) Release(v Value) {
	if !v.isObject() {
		return
	}
	o := p.slot(v.h)
	o.refs--
	if o.refs > 0 {
		return
	}
	switch o.kind {
	case objTable:
		o.table.release(p)
	case objScriptClosure:
		o.script.release(p)
	case objNativeClosure:
		o.native.release(p)
	}
	*o = object{}
	p.free = append(p.free, v.h)
}

// Live reports the number of pool slots currently in use, for diagnostics
// and tests that assert on alloc/release symmetry (§8).
func (p *objectPool) Live() int {
	return len(p.slots) - len(p.free)
}
