package lua

import "bytes"

// Chunk is the top-level artifact produced by loading a compiled binary
// chunk (§4.2): the validated header plus the recursively parsed root
// prototype.
type Chunk struct {
	Arch         Arch
	NumUpvalues  int
	Root         *Prototype
}

// UpvalueDesc is the (in_stack, index) pair recorded for each upvalue a
// prototype captures (§3 "Upvalue descriptor").
type UpvalueDesc struct {
	InStack bool
	Index   byte
	Name    string // debug info only; empty when stripped
}

// LocalVar is one entry of a prototype's local-variable debug table.
type LocalVar struct {
	Name    string
	StartPC int
	EndPC   int
}

// Prototype is one compiled function: immutable after load, and owns its
// nested prototypes (§3 "Bytecode prototype"). A closure may reference any
// prototype reachable from the chunk's root.
type Prototype struct {
	Source          string
	LineDefined     int
	LastLineDefined int
	NumParams       byte
	IsVararg        bool
	MaxStackSize    byte

	Code      []uint32
	Constants []Value
	Upvalues  []UpvalueDesc
	Protos    []*Prototype

	// Debug information, parsed for stream-position correctness (§4.2
	// step 8) and retained for disassembly/error messages.
	LineInfo []int
	Locals   []LocalVar
}

const (
	signature0 = 0x1B
	signature1 = 'L'
	signature2 = 'u'
	signature3 = 'a'

	headerVersion byte = 0x53
	headerFormat  byte = 0

	sentinelLuaInt int64 = 0x5678
	sentinelLuaNum        = 370.5
)

var headerDataCheck = []byte("\x19\x93\r\n\x1a\n")

// constant tag bytes, per the reference compiler's dump format (§4.2 step 5).
const (
	tagNil      byte = 0x00
	tagBoolean  byte = 0x01
	tagNumFloat byte = 0x03
	tagNumInt   byte = 0x03 | 0x10
	tagShrStr   byte = 0x04
	tagLngStr   byte = 0x04 | 0x10
)

// LoadChunk parses a complete compiled binary chunk (header, root
// prototype, and its descendants) per §4.2.
func LoadChunk(data []byte) (*Chunk, error) {
	r := newReader(data, Arch{})
	arch, err := parseHeader(r)
	if err != nil {
		return nil, err
	}
	r.arch = arch

	numUpvalues, err := r.readByte()
	if err != nil {
		return nil, err
	}

	root, err := parseProto(r, "")
	if err != nil {
		return nil, err
	}

	return &Chunk{Arch: arch, NumUpvalues: int(numUpvalues), Root: root}, nil
}

// parseHeader validates the four fixed-byte fields and the architecture
// descriptor (§4.2 "Header layout").
func parseHeader(r *reader) (Arch, error) {
	sig, err := r.readBlock(4)
	if err != nil {
		return Arch{}, err
	}
	if sig[0] != signature0 || sig[1] != signature1 || sig[2] != signature2 || sig[3] != signature3 {
		return Arch{}, newError(ErrBytecodeBadSignature, -1, "chunk signature %x is not a Lua 5.3 chunk", sig)
	}

	version, err := r.readByte()
	if err != nil {
		return Arch{}, err
	}
	if version != headerVersion {
		return Arch{}, newError(ErrBytecodeBadVersion, -1, "unsupported chunk version 0x%02x", version)
	}

	format, err := r.readByte()
	if err != nil {
		return Arch{}, err
	}
	if format != headerFormat {
		return Arch{}, newError(ErrBytecodeBadFormat, -1, "unsupported chunk format %d", format)
	}

	dataCheck, err := r.readBlock(len(headerDataCheck))
	if err != nil {
		return Arch{}, err
	}
	if !bytes.Equal(dataCheck, headerDataCheck) {
		return Arch{}, newError(ErrBytecodeCorrupt, -1, "chunk data-check constant mismatch")
	}

	widths, err := r.readBlock(5)
	if err != nil {
		return Arch{}, err
	}
	arch := Arch{
		IntSize:    int(widths[0]),
		SizeSize:   int(widths[1]),
		InstrSize:  int(widths[2]),
		LuaIntSize: int(widths[3]),
		LuaNumSize: int(widths[4]),
	}
	if arch.IntSize > hostArch.IntSize || arch.SizeSize > hostArch.SizeSize ||
		arch.LuaIntSize > hostArch.LuaIntSize || arch.InstrSize > hostArch.InstrSize {
		return Arch{}, newError(ErrBytecodeUnsupportedWidth, -1, "chunk declares a width wider than this host supports")
	}

	// Endianness is inferred, not declared: read the sentinel lua-int and
	// lua-number that follow in little-endian order first, fall back to
	// big-endian unless both match.
	arch.BigEndian = false
	r.arch = arch
	intSentinel, err := r.readLuaInt()
	if err != nil {
		return Arch{}, err
	}
	numSentinel, err := r.readLuaNumber()
	if err != nil {
		return Arch{}, err
	}
	if intSentinel == sentinelLuaInt && numSentinel == sentinelLuaNum {
		return arch, nil
	}

	// Re-read as big-endian from just after the width bytes.
	r.pos -= arch.LuaIntSize + arch.LuaNumSize
	arch.BigEndian = true
	r.arch = arch
	intSentinel, err = r.readLuaInt()
	if err != nil {
		return Arch{}, err
	}
	numSentinel, err = r.readLuaNumber()
	if err != nil {
		return Arch{}, err
	}
	if intSentinel == sentinelLuaInt && numSentinel == sentinelLuaNum {
		return arch, nil
	}

	return Arch{}, newError(ErrBytecodeBadEndianness, -1, "chunk endianness sentinels match neither byte order")
}

// parseProto recursively parses one function prototype and its children
// (§4.2 "Prototype parsing").
func parseProto(r *reader, parentSource string) (*Prototype, error) {
	p := &Prototype{}

	source, err := r.readLengthPrefixedString()
	if err != nil {
		return nil, err
	}
	if source == "" {
		p.Source = parentSource
	} else {
		p.Source = source
	}

	if p.LineDefined, err = r.readPlatformInt(); err != nil {
		return nil, err
	}
	if p.LastLineDefined, err = r.readPlatformInt(); err != nil {
		return nil, err
	}

	numParams, err := r.readByte()
	if err != nil {
		return nil, err
	}
	p.NumParams = numParams

	isVararg, err := r.readByte()
	if err != nil {
		return nil, err
	}
	p.IsVararg = isVararg != 0

	maxStack, err := r.readByte()
	if err != nil {
		return nil, err
	}
	p.MaxStackSize = maxStack

	// Code
	numInstr, err := r.readPlatformInt()
	if err != nil {
		return nil, err
	}
	p.Code = make([]uint32, numInstr)
	for i := range p.Code {
		if p.Code[i], err = r.readInstructionWord(); err != nil {
			return nil, err
		}
	}

	// Constants
	numConst, err := r.readPlatformInt()
	if err != nil {
		return nil, err
	}
	p.Constants = make([]Value, numConst)
	for i := range p.Constants {
		if p.Constants[i], err = parseConstant(r); err != nil {
			return nil, err
		}
	}

	// Upvalues
	numUp, err := r.readPlatformInt()
	if err != nil {
		return nil, err
	}
	p.Upvalues = make([]UpvalueDesc, numUp)
	for i := range p.Upvalues {
		inStack, err := r.readByte()
		if err != nil {
			return nil, err
		}
		index, err := r.readByte()
		if err != nil {
			return nil, err
		}
		p.Upvalues[i] = UpvalueDesc{InStack: inStack != 0, Index: index}
	}

	// Nested prototypes
	numProtos, err := r.readPlatformInt()
	if err != nil {
		return nil, err
	}
	p.Protos = make([]*Prototype, numProtos)
	for i := range p.Protos {
		if p.Protos[i], err = parseProto(r, p.Source); err != nil {
			return nil, err
		}
	}

	if err := parseDebugInfo(r, p); err != nil {
		return nil, err
	}

	return p, nil
}

// parseConstant reads one tagged constant value (§4.2 step 5).
func parseConstant(r *reader) (Value, error) {
	tag, err := r.readByte()
	if err != nil {
		return Value{}, err
	}

	switch tag {
	case tagNil:
		return NilValue(), nil
	case tagBoolean:
		b, err := r.readByte()
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b != 0), nil
	case tagNumFloat:
		f, err := r.readLuaNumber()
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil
	case tagNumInt:
		i, err := r.readLuaInt()
		if err != nil {
			return Value{}, err
		}
		return IntValue(i), nil
	case tagShrStr, tagLngStr:
		s, err := r.readLengthPrefixedString()
		if err != nil {
			return Value{}, err
		}
		return StringValue(s), nil
	default:
		return Value{}, newError(ErrBytecodeCorrupt, -1, "unrecognised constant tag 0x%02x", tag)
	}
}

// parseDebugInfo reads the line-info array, local-variable table, and
// upvalue-name table. Per §4.2 step 8 these are parsed purely to keep the
// stream position correct; this implementation retains line info and
// locals (used by disassembly and error messages) but discards upvalue
// names beyond attaching them to their already-parsed descriptor.
func parseDebugInfo(r *reader, p *Prototype) error {
	numLines, err := r.readPlatformInt()
	if err != nil {
		return err
	}
	p.LineInfo = make([]int, numLines)
	for i := range p.LineInfo {
		if p.LineInfo[i], err = r.readPlatformInt(); err != nil {
			return err
		}
	}

	numLocals, err := r.readPlatformInt()
	if err != nil {
		return err
	}
	p.Locals = make([]LocalVar, numLocals)
	for i := range p.Locals {
		name, err := r.readLengthPrefixedString()
		if err != nil {
			return err
		}
		start, err := r.readPlatformInt()
		if err != nil {
			return err
		}
		end, err := r.readPlatformInt()
		if err != nil {
			return err
		}
		p.Locals[i] = LocalVar{Name: name, StartPC: start, EndPC: end}
	}

	numUpNames, err := r.readPlatformInt()
	if err != nil {
		return err
	}
	if numUpNames > len(p.Upvalues) {
		return newError(ErrBytecodeCorrupt, -1, "more upvalue names (%d) than upvalues (%d)", numUpNames, len(p.Upvalues))
	}
	for i := 0; i < numUpNames; i++ {
		name, err := r.readLengthPrefixedString()
		if err != nil {
			return err
		}
		p.Upvalues[i].Name = name
	}

	return nil
}
