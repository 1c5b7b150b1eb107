package mcproto

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mortar/lib/errco"
)

func testPayloads() [][]byte {
	r := rand.New(rand.NewSource(2))
	payloads := [][]byte{{}, {0x00}, {0x01, 0x00}}
	for _, size := range []int{127, 128, 300, 16383, 16384, 70000} {
		p := make([]byte, size)
		r.Read(p)
		payloads = append(payloads, p)
	}
	return payloads
}

func Test_FramingRoundTrip(t *testing.T) {
	for _, p := range testPayloads() {
		framed := FramePacket(p)

		frame, ok, logMrt := ReadFramedPacket(framed)
		require.Nil(t, logMrt)
		require.True(t, ok)
		assert.Equal(t, len(p), frame.Length)
		assert.True(t, bytes.Equal(p, frame.Payload))
		assert.Equal(t, len(framed), frame.Consumed)
	}
}

func Test_FramingPartialDelivery(t *testing.T) {
	r := rand.New(rand.NewSource(3))

	for _, p := range testPayloads() {
		framed := FramePacket(p)

		// 1 byte at a time
		var buf []byte
		for i, b := range framed {
			buf = append(buf, b)
			frame, ok, logMrt := ReadFramedPacket(buf)
			require.Nil(t, logMrt)
			if i < len(framed)-1 {
				require.False(t, ok, "frame complete after %d/%d bytes", i+1, len(framed))
				continue
			}
			require.True(t, ok)
			assert.True(t, bytes.Equal(p, frame.Payload))
			assert.Equal(t, len(framed), frame.Consumed)
		}

		// random partitions
		for round := 0; round < 10; round++ {
			buf = buf[:0]
			rest := framed
			for len(rest) > 0 {
				n := 1 + r.Intn(len(rest))
				buf, rest = append(buf, rest[:n]...), rest[n:]

				frame, ok, logMrt := ReadFramedPacket(buf)
				require.Nil(t, logMrt)
				require.Equal(t, len(rest) == 0, ok)
				if ok {
					assert.True(t, bytes.Equal(p, frame.Payload))
				}
			}
		}
	}
}

func Test_FramingBackToBack(t *testing.T) {
	// handshake and status request usually arrive in the same read
	buf := append(FramePacket([]byte{0x00, 0xaa, 0xbb}), FramePacket([]byte{0x00})...)
	buf = append(buf, 0x09) // first byte of a following packet

	frame, ok, logMrt := ReadFramedPacket(buf)
	require.Nil(t, logMrt)
	require.True(t, ok)
	assert.Equal(t, []byte{0x00, 0xaa, 0xbb}, frame.Payload)
	buf = buf[frame.Consumed:]

	frame, ok, logMrt = ReadFramedPacket(buf)
	require.Nil(t, logMrt)
	require.True(t, ok)
	assert.Equal(t, []byte{0x00}, frame.Payload)
	buf = buf[frame.Consumed:]

	_, ok, logMrt = ReadFramedPacket(buf)
	require.Nil(t, logMrt)
	assert.False(t, ok)
	assert.Equal(t, []byte{0x09}, buf)
}

func Test_FramingInvalidLength(t *testing.T) {
	// 2097152 does not fit a 3 bytes length prefix
	_, ok, logMrt := ReadFramedPacket([]byte{0x80, 0x80, 0x80, 0x01})
	assert.False(t, ok)
	assert.True(t, logMrt.Is(errco.ERROR_PACKET_LENGTH))

	_, ok, logMrt = ReadFramedPacket([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00})
	assert.False(t, ok)
	assert.True(t, logMrt.Is(errco.ERROR_MALFORMED_VARINT))

	_, ok, logMrt = ReadFramedPacket(nil)
	assert.False(t, ok)
	assert.Nil(t, logMrt)
}
