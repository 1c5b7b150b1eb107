package mcproto

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mortar/lib/errco"
)

func Test_VarIntKnownEncodings(t *testing.T) {
	type test struct {
		value   int64
		encoded []byte
	}

	tests := []test{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{255, []byte{0xff, 0x01}},
		{758, []byte{0xf6, 0x05}},
		{25565, []byte{0xdd, 0xc7, 0x01}},
		{2097151, []byte{0xff, 0xff, 0x7f}},
		{2147483647, []byte{0xff, 0xff, 0xff, 0xff, 0x07}},
	}

	for _, test := range tests {
		enc, logMrt := EncodeVarInt(test.value)
		require.Nil(t, logMrt)
		assert.Equal(t, test.encoded, enc, "encoding %d", test.value)
		assert.Equal(t, len(test.encoded), VarIntLen(int32(test.value)))

		value, next, logMrt := DecodeVarInt(test.encoded, 0)
		require.Nil(t, logMrt)
		assert.Equal(t, int32(test.value), value)
		assert.Equal(t, len(test.encoded), next)
	}
}

func Test_VarIntRoundTrip(t *testing.T) {
	values := []int64{0, 1, 2, 127, 128, 16383, 16384, 2097151, 2097152, 268435455, 268435456, MaxVarInt}

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		values = append(values, r.Int63n(MaxVarInt+1))
	}

	for _, n := range values {
		enc, logMrt := EncodeVarInt(n)
		require.Nil(t, logMrt)

		// decode with some leading garbage to check offset handling
		buf := append([]byte{0xaa, 0xbb}, enc...)
		value, next, logMrt := DecodeVarInt(buf, 2)
		require.Nil(t, logMrt)
		require.Equal(t, int32(n), value)
		require.Equal(t, len(buf), next)
	}
}

func Test_EncodeVarIntRange(t *testing.T) {
	for _, n := range []int64{-1, -2147483648, MaxVarInt + 1, 1 << 40} {
		enc, logMrt := EncodeVarInt(n)
		assert.Nil(t, enc)
		assert.True(t, logMrt.Is(errco.ERROR_VARINT_RANGE), "value %d", n)
	}
}

func Test_DecodeVarIntMalformed(t *testing.T) {
	type test struct {
		title string
		buf   []byte
		off   int
	}

	tests := []test{
		{"empty buffer", []byte{}, 0},
		{"offset at buffer end", []byte{0x01, 0x02}, 2},
		{"negative offset", []byte{0x01}, -1},
		{"truncated", []byte{0x80}, 0},
		{"truncated after 4 bytes", []byte{0xff, 0xff, 0xff, 0xff}, 0},
		{"continuation on 5th byte", []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, 0},
	}

	for _, test := range tests {
		_, _, logMrt := DecodeVarInt(test.buf, test.off)
		assert.True(t, logMrt.Is(errco.ERROR_MALFORMED_VARINT), test.title)
	}
}

func Test_AppendVarIntNegative(t *testing.T) {
	// protocol version -1 is sent by clients that did not choose a version yet
	enc := AppendVarInt(nil, -1)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, enc)

	value, next, logMrt := DecodeVarInt(enc, 0)
	require.Nil(t, logMrt)
	assert.Equal(t, int32(-1), value)
	assert.Equal(t, 5, next)
}
