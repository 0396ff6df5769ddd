package lua

import "sort"

// upvalueHandle is a stable, reusable index into a VM's upvalue pool,
// parallel in design to handle (object.go) but kept as a distinct type
// since upvalues and heap objects are never interchangeable.
type upvalueHandle uint32

// Upvalue is either open (aliasing a live slot on the value stack by
// index) or closed (owning a copied Value independent of any stack frame).
// Multiple closures capturing the same enclosing local share one open
// Upvalue, found via FindOrCreateOpen rather than allocated afresh, which
// is why it carries its own refcount rather than living for exactly one
// closure's lifetime.
type Upvalue struct {
	refs     int32
	open     bool
	stackIdx int
	closed   Value
}

// upvaluePool owns every Upvalue a VM has allocated, with the same
// free-slot-reuse discipline as objectPool.
type upvaluePool struct {
	slots   []Upvalue
	free    []upvalueHandle
	openIdx []upvalueHandle
}

func newUpvaluePool() *upvaluePool {
	return &upvaluePool{}
}

func (p *upvaluePool) take() upvalueHandle {
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
	p.slots = append(p.slots, Upvalue{})
	return upvalueHandle(len(p.slots))
}

func (p *upvaluePool) slot(h upvalueHandle) *Upvalue {
	return &p.slots[h-1]
}

// FindOrCreateOpen returns the open upvalue aliasing stackIdx, creating one
// if no live closure already captures that slot (§ "upvalue open lifecycle").
func (p *upvaluePool) FindOrCreateOpen(stackIdx int) upvalueHandle {
	for _, h := range p.openIdx {
		u := p.slot(h)
		if u.stackIdx == stackIdx {
			u.refs++
			return h
		}
	}
	h := p.take()
	*p.slot(h) = Upvalue{refs: 1, open: true, stackIdx: stackIdx}
	p.openIdx = append(p.openIdx, h)
	return h
}

// Get reads the current value of h: the aliased stack slot while open, the
// owned copy once closed.
func (p *upvaluePool) Get(h upvalueHandle, stack []Value) Value {
	u := p.slot(h)
	if u.open {
		return stack[u.stackIdx]
	}
	return u.closed
}

// Set writes through h: into the aliased stack slot while open, into the
// owned copy once closed.
func (p *upvaluePool) Set(objPool *objectPool, h upvalueHandle, stack []Value, v Value) {
	u := p.slot(h)
	objPool.Retain(v)
	if u.open {
		objPool.Release(stack[u.stackIdx])
		stack[u.stackIdx] = v
		return
	}
	objPool.Release(u.closed)
	u.closed = v
}

// CloseFrom closes every open upvalue aliasing a stack index >= fromIdx,
// processed in high-to-low index order as required when a frame returns or
// a loop-scope JMP closes its locals. The closed copy retains its own
// reference; the stack slot's reference is released normally by the
// caller's own frame teardown.
func (p *upvaluePool) CloseFrom(objPool *objectPool, stack []Value, fromIdx int) {
	var toClose []upvalueHandle
	remaining := p.openIdx[:0]
	for _, h := range p.openIdx {
		if p.slot(h).stackIdx >= fromIdx {
			toClose = append(toClose, h)
		} else {
			remaining = append(remaining, h)
		}
	}
	p.openIdx = remaining

	sort.Slice(toClose, func(i, j int) bool {
		return p.slot(toClose[i]).stackIdx > p.slot(toClose[j]).stackIdx
	})
	for _, h := range toClose {
		u := p.slot(h)
		v := stack[u.stackIdx]
		objPool.Retain(v)
		u.open = false
		u.closed = v
	}
}

// Retain bumps h's reference count, for every closure construction that
// captures an already-existing upvalue handle.
func (p *upvaluePool) Retain(h upvalueHandle) {
	p.slot(h).refs++
}

// Release drops h's reference count, releasing its closed value and
// recycling the slot once the count reaches zero.
func (p *upvaluePool) Release(objPool *objectPool, h upvalueHandle) {
	u := p.slot(h)
	u.refs--
	if u.refs > 0 {
		return
	}
	if u.open {
		for i, oh := range p.openIdx {
			if oh == h {
				p.openIdx = append(p.openIdx[:i], p.openIdx[i+1:]...)
				break
			}
		}
	} else {
		objPool.Release(u.closed)
	}
	*u = Upvalue{}
	p.free = append(p.free, h)
}
