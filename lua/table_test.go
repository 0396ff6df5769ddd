package lua

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableGetSetRoundTrip(t *testing.T) {
	pool := newObjectPool(newUpvaluePool())
	tbl := newTable()

	tbl.Set(pool, StringValue("x"), IntValue(1))
	tbl.Set(pool, IntValue(2), StringValue("two"))

	v, ok := tbl.Get(StringValue("x"))
	require.True(t, ok)
	assert.Equal(t, int64(1), v.Int())

	v, ok = tbl.Get(IntValue(2))
	require.True(t, ok)
	assert.Equal(t, "two", v.RawString())

	_, ok = tbl.Get(StringValue("missing"))
	assert.False(t, ok)
}

func TestTableSetNilRemoves(t *testing.T) {
	pool := newObjectPool(newUpvaluePool())
	tbl := newTable()
	tbl.Set(pool, StringValue("x"), IntValue(1))
	require.Equal(t, 1, tbl.Len())

	tbl.Set(pool, StringValue("x"), NilValue())
	assert.Equal(t, 0, tbl.Len())
	_, ok := tbl.Get(StringValue("x"))
	assert.False(t, ok)
}

func TestTableOverwrite(t *testing.T) {
	pool := newObjectPool(newUpvaluePool())
	tbl := newTable()
	tbl.Set(pool, StringValue("k"), IntValue(1))
	tbl.Set(pool, StringValue("k"), IntValue(2))
	require.Equal(t, 1, tbl.Len())

	v, _ := tbl.Get(StringValue("k"))
	assert.Equal(t, int64(2), v.Int())
}

func TestTableStructuralDiff(t *testing.T) {
	pool := newObjectPool(newUpvaluePool())
	a, b := newTable(), newTable()
	a.Set(pool, StringValue("k"), IntValue(1))
	b.Set(pool, StringValue("k"), IntValue(1))

	diff := cmp.Diff(a, b, cmp.AllowUnexported(Table{}, tablePair{}, Value{}))
	assert.Empty(t, diff)
}
