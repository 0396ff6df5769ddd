package lua

// Arch records the byte widths and endianness a chunk's header declares
// for its numeric encodings (§3 "Architecture descriptor"). It is fixed
// the moment a header is read, is immutable afterwards, and every
// subsequent read of that chunk consults it.
type Arch struct {
	BigEndian bool

	IntSize    int // width of a platform int
	SizeSize   int // width of a size_t-style length
	InstrSize  int // width of one instruction word (always 4 for this format)
	LuaIntSize int // width of the language's integer type
	LuaNumSize int // width of the language's float type (must be 8: IEEE-754 double)
}

// hostArch is the architecture of the machine loading chunks. Widths wider
// than what this implementation supports for a given numeric kind are
// rejected with ErrBytecodeUnsupportedWidth rather than silently truncated.
var hostArch = Arch{
	IntSize:    4,
	SizeSize:   8,
	InstrSize:  4,
	LuaIntSize: 8,
	LuaNumSize: 8,
}

// maxSupportedWidth is the widest integer encoding this implementation will
// assemble into a Go value without data loss.
const maxSupportedWidth = 8
