package lua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectPoolAllocReleaseSymmetry(t *testing.T) {
	pool := newObjectPool(newUpvaluePool())

	a := pool.AllocTable()
	require.Equal(t, 1, pool.Live())

	b := pool.AllocTable()
	require.Equal(t, 2, pool.Live())

	pool.Release(a)
	assert.Equal(t, 1, pool.Live())

	// Allocating again reuses the freed slot rather than growing.
	c := pool.AllocTable()
	assert.Equal(t, 2, pool.Live())
	assert.Equal(t, a.Handle(), c.Handle(), "freed slot is reused before growth")

	pool.Release(b)
	pool.Release(c)
	assert.Equal(t, 0, pool.Live())
}

func TestObjectPoolRetainDefersRelease(t *testing.T) {
	pool := newObjectPool(newUpvaluePool())
	v := pool.AllocTable()

	pool.Retain(v)
	pool.Release(v)
	assert.Equal(t, 1, pool.Live(), "still referenced once after one retain and one release")

	pool.Release(v)
	assert.Equal(t, 0, pool.Live())
}

func TestUpvalueOpenSharedAndClose(t *testing.T) {
	pool := newObjectPool(newUpvaluePool())
	upvals := pool.upvals
	stack := make([]Value, 4)
	stack[1] = IntValue(10)

	h1 := upvals.FindOrCreateOpen(1)
	h2 := upvals.FindOrCreateOpen(1)
	assert.Equal(t, h1, h2, "two closures capturing the same slot share one open upvalue")

	upvals.Set(pool, h1, stack, IntValue(99))
	assert.Equal(t, int64(99), stack[1].Int(), "writing through an open upvalue writes the aliased slot")

	upvals.CloseFrom(pool, stack, 0)
	assert.Equal(t, int64(99), upvals.Get(h1, stack).Int(), "closed upvalue retains the last aliased value")

	stack[1] = IntValue(-1)
	assert.Equal(t, int64(99), upvals.Get(h1, stack).Int(), "closed upvalue no longer aliases the stack")
}

func TestUpvalueRefcountedRelease(t *testing.T) {
	pool := newObjectPool(newUpvaluePool())
	upvals := pool.upvals

	h := upvals.FindOrCreateOpen(0)
	upvals.Retain(h)

	upvals.Release(pool, h)
	upvals.Release(pool, h)

	// both references dropped: slot is free, a fresh FindOrCreateOpen at the
	// same index allocates anew rather than finding a stale handle.
	h2 := upvals.FindOrCreateOpen(0)
	assert.Equal(t, h, h2)
}
