package lua

// ScriptClosure pairs a parsed Prototype with the upvalue handles it
// captured at construction time (§3 "Closure"). Each CLOSURE instruction
// produces a fresh ScriptClosure even for the same Prototype, since two
// closures created from the same function body in different calls capture
// different stack slots.
type ScriptClosure struct {
	proto  *Prototype
	upvals []upvalueHandle
}

// NativeFunc is the body of a host-provided function (§4.6 "Native
// closure"). It receives the calling VM so it can read arguments and push
// results through the same stack-based protocol script closures use, and
// returns the number of values it pushed as results.
type NativeFunc func(vm *VM) (int, error)

// NativeClosure wraps a NativeFunc with an optional name (for error
// messages and disassembly) and any upvalues it captured at registration
// time.
type NativeClosure struct {
	Name   string
	Fn     NativeFunc
	upvals []upvalueHandle
}

// newScriptClosure builds a ScriptClosure for proto, resolving each
// upvalue descriptor against either the enclosing frame's stack (InStack)
// or the enclosing closure's own upvalue array (§4.2 "Upvalue descriptor"
// resolution, §4.6 call protocol). base is the enclosing frame's stack
// base; parent is nil when proto has no enclosing script closure (the
// chunk's root).
func newScriptClosure(pool *objectPool, upvals *upvaluePool, proto *Prototype, parent *ScriptClosure, base int) (*ScriptClosure, error) {
	c := &ScriptClosure{proto: proto, upvals: make([]upvalueHandle, len(proto.Upvalues))}
	for i, desc := range proto.Upvalues {
		if desc.InStack {
			c.upvals[i] = upvals.FindOrCreateOpen(base + int(desc.Index))
			continue
		}
		idx := int(desc.Index)
		if parent == nil || idx < 0 || idx >= len(parent.upvals) {
			c.upvals = c.upvals[:i] // drop the unresolved tail before releasing what was captured so far
			c.release(pool)
			return nil, newError(ErrUpvalueBounds, -1, "upvalue descriptor %d references a nonexistent enclosing upvalue", i)
		}
		h := parent.upvals[idx]
		upvals.Retain(h)
		c.upvals[i] = h
	}
	return c, nil
}

// release drops every upvalue this closure captured, invoked by
// objectPool.Release once the closure's own refcount reaches zero.
func (c *ScriptClosure) release(pool *objectPool) {
	for _, h := range c.upvals {
		pool.upvals.Release(pool, h)
	}
	c.upvals = nil
}

// release drops every upvalue this native closure captured.
func (c *NativeClosure) release(pool *objectPool) {
	for _, h := range c.upvals {
		pool.upvals.Release(pool, h)
	}
	c.upvals = nil
}
