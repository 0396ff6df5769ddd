package lua

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildMinimalChunk assembles a byte-exact little-endian chunk with an
// empty root prototype (no code, no constants, no upvalues, no nested
// protos, no debug info), matching §4.2's header and prototype layout.
func buildMinimalChunk(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer

	buf.WriteString("\x1BLua")
	buf.WriteByte(0x53)
	buf.WriteByte(0x00)
	buf.WriteString("\x19\x93\r\n\x1a\n")
	buf.Write([]byte{4, 8, 4, 8, 8}) // int, size_t, instr, lua-int, lua-number widths

	var intBuf [8]byte
	binary.LittleEndian.PutUint64(intBuf[:], uint64(0x5678))
	buf.Write(intBuf[:])

	var numBuf [8]byte
	binary.LittleEndian.PutUint64(numBuf[:], math.Float64bits(370.5))
	buf.Write(numBuf[:])

	buf.WriteByte(0) // numUpvalues at chunk level

	writePlatformInt := func(n int) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(n))
		buf.Write(b[:])
	}
	writeString := func(s string) {
		if s == "" {
			buf.WriteByte(0)
			return
		}
		buf.WriteByte(byte(len(s) + 1))
		buf.WriteString(s)
	}

	writeString("test-chunk")  // source
	writePlatformInt(0)        // linedefined
	writePlatformInt(0)        // lastlinedefined
	buf.WriteByte(0)           // numparams
	buf.WriteByte(0)           // is_vararg
	buf.WriteByte(2)           // maxstacksize
	writePlatformInt(0)        // num instructions
	writePlatformInt(0)        // num constants
	writePlatformInt(0)        // num upvalues
	writePlatformInt(0)        // num protos
	writePlatformInt(0)        // num line info entries
	writePlatformInt(0)        // num locals
	writePlatformInt(0)        // num upvalue names

	return buf.Bytes()
}

func TestLoadChunkMinimal(t *testing.T) {
	data := buildMinimalChunk(t)

	chunk, err := LoadChunk(data)
	require.NoError(t, err)
	require.NotNil(t, chunk.Root)

	require.False(t, chunk.Arch.BigEndian)
	require.Equal(t, 4, chunk.Arch.IntSize)
	require.Equal(t, 8, chunk.Arch.LuaNumSize)
	require.Equal(t, "test-chunk", chunk.Root.Source)
	require.Equal(t, byte(2), chunk.Root.MaxStackSize)
	require.Empty(t, chunk.Root.Code)
}

func TestLoadChunkBadSignature(t *testing.T) {
	data := buildMinimalChunk(t)
	data[0] = 0x00

	_, err := LoadChunk(data)
	require.Error(t, err)
	require.Equal(t, ErrBytecodeBadSignature, KindOf(err))
}

func TestLoadChunkTruncated(t *testing.T) {
	data := buildMinimalChunk(t)
	_, err := LoadChunk(data[:10])
	require.Error(t, err)
	require.Equal(t, ErrBytecodeTruncated, KindOf(err))
}
