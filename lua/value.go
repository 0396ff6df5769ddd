package lua

import (
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the tagged-union variants a Value can hold (§3
// "Runtime value"). Every Value carries exactly one of these; accessing a
// field that does not belong to the active Kind is undefined by
// construction (the accessor methods below only interpret the field that
// matches Kind).
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTable
	KindFunction
	KindUserData
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindInt, KindFloat:
		return "number"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindFunction:
		return "function"
	case KindUserData:
		return "userdata"
	default:
		return "unknown"
	}
}

// Value is the VM's tagged union (§3). All variants are the same size by
// construction (a small fixed struct); copying a Value clones the payload,
// and for object references the VM's retain/release pair (object.go) bumps
// or drops the referenced object's refcount around every copy — Value
// itself carries no finalizer, since Go's string/number fields need none
// and object lifetime is owned by the VM's pool, not by the Value.
type Value struct {
	kind Kind
	n    uint64 // bool (0/1), int bits, float bits, or light-userdata handle
	s    string // string payload; Go's string header already gives us the
	// small-buffer-friendly, immutable, shareable representation §3 asks
	// the "short string with small-buffer optimisation" variant for.
	h handle // object-pool handle for KindTable/KindFunction
}

func NilValue() Value { return Value{kind: KindNil} }

func BoolValue(b bool) Value {
	if b {
		return Value{kind: KindBool, n: 1}
	}
	return Value{kind: KindBool}
}

func IntValue(i int64) Value        { return Value{kind: KindInt, n: uint64(i)} }
func FloatValue(f float64) Value    { return Value{kind: KindFloat, n: math.Float64bits(f)} }
func StringValue(s string) Value    { return Value{kind: KindString, s: s} }
func UserDataValue(p uintptr) Value { return Value{kind: KindUserData, n: uint64(p)} }

func tableValue(h handle) Value    { return Value{kind: KindTable, h: h} }
func functionValue(h handle) Value { return Value{kind: KindFunction, h: h} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }

func (v Value) Bool() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.n != 0
	default:
		return true // every value other than nil/false is truthy
	}
}

func (v Value) Int() int64     { return int64(v.n) }
func (v Value) Float() float64 { return math.Float64frombits(v.n) }
func (v Value) RawString() string { return v.s }
func (v Value) Handle() handle { return v.h }
func (v Value) UserData() uintptr { return uintptr(v.n) }

// String implements fmt.Stringer with a human-readable rendering, distinct
// from RawString (the exact string payload of a KindString value).
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.Bool() {
			return "true"
		}
		return "false"
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case KindFloat:
		return formatLuaFloat(v.Float())
	case KindTable:
		return "table"
	case KindFunction:
		return "function"
	case KindUserData:
		return "userdata"
	default:
		return "?"
	}
}

// IsNumber reports whether v holds either numeric variant.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// AsFloat returns v's numeric value widened to float64, for arithmetic
// paths that have already decided to operate in float (§4.7).
func (v Value) AsFloat() float64 {
	if v.kind == KindInt {
		return float64(v.Int())
	}
	return v.Float()
}

// ToNumber attempts the tonumber coercion of §4.7: numbers pass through,
// numeric-parseable strings convert to integer or float, anything else
// fails.
func (v Value) ToNumber() (Value, bool) {
	switch v.kind {
	case KindInt, KindFloat:
		return v, true
	case KindString:
		return stringToNumber(v.s)
	default:
		return Value{}, false
	}
}

// ToInteger attempts an exact integer coercion: integers pass through,
// floats convert only when they represent an exactly-integral value
// (per §9's "reject coercions that are not exactly representable"),
// numeric strings coerce via ToNumber first.
func (v Value) ToInteger() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.Int(), true
	case KindFloat:
		f := v.Float()
		if math.Trunc(f) != f || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		if f < -9.2233720368547758e18 || f >= 9.2233720368547758e18 {
			return 0, false
		}
		return int64(f), true
	case KindString:
		n, ok := stringToNumber(v.s)
		if !ok {
			return 0, false
		}
		return n.ToInteger()
	default:
		return 0, false
	}
}

// ToString implements the CONCAT-path coercion of §4.7: integers, floats,
// and strings convert to their string form; anything else is not
// stringable.
func (v Value) ToString() (string, bool) {
	switch v.kind {
	case KindString:
		return v.s, true
	case KindInt:
		return strconv.FormatInt(v.Int(), 10), true
	case KindFloat:
		return formatLuaFloat(v.Float()), true
	default:
		return "", false
	}
}

func formatLuaFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', 14, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func stringToNumber(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}, false
	}
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return IntValue(i), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FloatValue(f), true
	}
	return Value{}, false
}

// Equal implements §3's key/value equality: nil/bool/int/float/string
// compare by value (with cross-numeric comparison between int and float),
// object references and light userdata compare by identity.
func (v Value) Equal(other Value) bool {
	if v.kind == KindNil && other.kind == KindNil {
		return true
	}
	if v.IsNumber() && other.IsNumber() {
		if v.kind == KindInt && other.kind == KindInt {
			return v.Int() == other.Int()
		}
		return v.AsFloat() == other.AsFloat()
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindTable, KindFunction:
		return v.h == other.h
	case KindUserData:
		return v.n == other.n
	default:
		return false
	}
}

// Less implements LT's ordering (§4.7): numbers order by value (NaN
// compares false both ways, matching Go's native float64 <), strings order
// lexicographically by byte. Any other combination is not comparable.
func (v Value) Less(other Value) (bool, bool) {
	if v.IsNumber() && other.IsNumber() {
		if v.kind == KindInt && other.kind == KindInt {
			return v.Int() < other.Int(), true
		}
		return v.AsFloat() < other.AsFloat(), true
	}
	if v.kind == KindString && other.kind == KindString {
		return v.s < other.s, true
	}
	return false, false
}

// LessEqual implements LE's ordering, same domain restrictions as Less.
func (v Value) LessEqual(other Value) (bool, bool) {
	if v.IsNumber() && other.IsNumber() {
		if v.kind == KindInt && other.kind == KindInt {
			return v.Int() <= other.Int(), true
		}
		return v.AsFloat() <= other.AsFloat(), true
	}
	if v.kind == KindString && other.kind == KindString {
		return v.s <= other.s, true
	}
	return false, false
}

// isObject reports whether v owns a reference into the object pool, i.e.
// whether copying/dropping it must retain/release a pool slot.
func (v Value) isObject() bool {
	return v.kind == KindTable || v.kind == KindFunction
}
