package lua

// tablePair is one key/value entry in a Table's backing list.
type tablePair struct {
	key   Value
	value Value
}

// Table is the single aggregate type (§3 "Table"): a linear-scan list of
// key/value pairs. Per the spec this implementation deliberately has no
// hash structure — lookups and inserts are O(n) — and key equality follows
// Value.Equal: scalars compare by value, objects and functions by
// reference identity.
type Table struct {
	pairs []tablePair
}

func newTable() *Table {
	return &Table{}
}

// Get scans for key and returns its paired value, or nil with ok=false if
// absent.
func (t *Table) Get(key Value) (Value, bool) {
	for i := range t.pairs {
		if t.pairs[i].key.Equal(key) {
			return t.pairs[i].value, true
		}
	}
	return Value{}, false
}

// Set stores value under key, retaining/releasing object references as
// pairs are added, overwritten, or removed. Setting a nil value removes the
// key entirely, matching the source language's "assigning nil deletes the
// entry" rule.
func (t *Table) Set(pool *objectPool, key, value Value) {
	for i := range t.pairs {
		if t.pairs[i].key.Equal(key) {
			pool.Release(t.pairs[i].value)
			if value.IsNil() {
				pool.Release(t.pairs[i].key)
				t.pairs = append(t.pairs[:i], t.pairs[i+1:]...)
				return
			}
			pool.Retain(value)
			t.pairs[i].value = value
			return
		}
	}
	if value.IsNil() {
		return
	}
	pool.Retain(key)
	pool.Retain(value)
	t.pairs = append(t.pairs, tablePair{key: key, value: value})
}

// Len reports the number of live key/value pairs.
func (t *Table) Len() int {
	return len(t.pairs)
}

// release drops every pair's reference, invoked by objectPool.Release once
// a table's own refcount reaches zero.
func (t *Table) release(pool *objectPool) {
	for _, pair := range t.pairs {
		pool.Release(pair.key)
		pool.Release(pair.value)
	}
	t.pairs = nil
}
