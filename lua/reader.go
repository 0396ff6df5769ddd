package lua

import (
	"encoding/binary"
	"math"
)

// reader decodes the primitive encodings of §4.1 from an in-memory chunk
// buffer, tracking position for truncation errors and consulting an Arch
// for every multi-byte read. It mirrors the teacher's byte-slice cursor
// idiom (uint32FromBytes/uint32ToBytes over vm.stack slices) generalized
// from a fixed 4-byte word to architecture-declared widths.
type reader struct {
	data []byte
	pos  int
	arch Arch
}

func newReader(data []byte, arch Arch) *reader {
	return &reader{data: data, arch: arch}
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, newError(ErrBytecodeTruncated, -1, "unexpected end of chunk at offset %d", r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// readBlock reads exactly n bytes into a freshly allocated slice.
func (r *reader) readBlock(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, newError(ErrBytecodeTruncated, -1, "unexpected end of chunk reading %d bytes at offset %d", n, r.pos)
	}
	block := make([]byte, n)
	copy(block, r.data[r.pos:r.pos+n])
	r.pos += n
	return block, nil
}

// readWidthUint assembles width bytes in stream order, reversing them when
// the chunk's declared endianness differs from the host's, and zero-extends
// the result to 64 bits. Widths beyond maxSupportedWidth fail outright.
func (r *reader) readWidthUint(width int) (uint64, error) {
	if width <= 0 || width > maxSupportedWidth {
		return 0, newError(ErrBytecodeUnsupportedWidth, -1, "unsupported integer width %d", width)
	}
	raw, err := r.readBlock(width)
	if err != nil {
		return 0, err
	}
	if r.arch.BigEndian {
		for i, j := 0, len(raw)-1; i < j; i, j = i+1, j-1 {
			raw[i], raw[j] = raw[j], raw[i]
		}
	}
	// raw is now little-endian regardless of source encoding.
	var buf [8]byte
	copy(buf[:], raw)
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// readPlatformInt reads a host-sized platform int (the width recorded in
// the chunk's architecture descriptor for "int"), used for sizes, counts
// and line numbers throughout the header and prototype records.
func (r *reader) readPlatformInt() (int, error) {
	v, err := r.readWidthUint(r.arch.IntSize)
	if err != nil {
		return 0, err
	}
	return int(int64(v)), nil
}

// readSize reads a size_t-style length using the chunk's declared size
// width.
func (r *reader) readSize() (uint64, error) {
	return r.readWidthUint(r.arch.SizeSize)
}

// readLuaInt reads the language's integer constant type.
func (r *reader) readLuaInt() (int64, error) {
	v, err := r.readWidthUint(r.arch.LuaIntSize)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// readLuaNumber reads the language's floating point constant type. Per
// §4.1, this implementation requires an 8-byte IEEE-754 double; any other
// declared width is rejected rather than silently truncated.
func (r *reader) readLuaNumber() (float64, error) {
	if r.arch.LuaNumSize != 8 {
		return 0, newError(ErrBytecodeUnsupportedWidth, -1, "unsupported float width %d (require 8)", r.arch.LuaNumSize)
	}
	bits, err := r.readWidthUint(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// readInstructionWord reads one raw 32-bit instruction word.
func (r *reader) readInstructionWord() (uint32, error) {
	v, err := r.readWidthUint(r.arch.InstrSize)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// readLengthPrefixedString implements §4.1's string encoding: the length
// prefix is the leading byte unless that byte is 0xFF, in which case a
// following size-typed unsigned integer is the length instead. Zero length
// means an empty string; otherwise the stored length is L+1 and the
// payload occupies L bytes (the reference compiler's convention of
// reserving the stored value 0 to mean "no string").
func (r *reader) readLengthPrefixedString() (string, error) {
	first, err := r.readByte()
	if err != nil {
		return "", err
	}

	var stored uint64
	if first == 0xFF {
		stored, err = r.readSize()
		if err != nil {
			return "", err
		}
	} else {
		stored = uint64(first)
	}

	if stored == 0 {
		return "", nil
	}

	payloadLen := stored - 1
	block, err := r.readBlock(int(payloadLen))
	if err != nil {
		return "", err
	}
	return string(block), nil
}
