package mcproto

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mortar/lib/errco"
	"mortar/lib/model"
)

func Test_PongIsEcho(t *testing.T) {
	ping := BuildPingRequest(0x0102030405060708)
	assert.Equal(t, []byte{9, 0x01, 1, 2, 3, 4, 5, 6, 7, 8}, ping)

	pong := BuildPongResponse(ping)
	assert.Equal(t, ping, pong)

	// the pong must not share memory with the read buffer
	ping[2] = 0xff
	assert.Equal(t, byte(1), pong[2])
}

func Test_StatusResponseFraming(t *testing.T) {
	assert.Equal(t, []byte{0x04, 0x00, 0x02, '{', '}'}, BuildStatusResponse([]byte("{}")))

	// a json longer than 127 bytes needs 2 bytes length prefixes
	doc := []byte(`{"description":"` + strings.Repeat("a", 200) + `"}`)
	resp := BuildStatusResponse(doc)

	frame, ok, logMrt := ReadFramedPacket(resp)
	require.Nil(t, logMrt)
	require.True(t, ok)
	assert.Equal(t, len(resp), frame.Consumed)

	data, logMrt := ParseStatusResponse(frame)
	require.Nil(t, logMrt)
	assert.Equal(t, doc, data)
}

func Test_ParseStatusResponseErrors(t *testing.T) {
	// wrong packet id
	_, logMrt := ParseStatusResponse(&Frame{Payload: []byte{0x01, 0x02, '{', '}'}})
	assert.True(t, logMrt.Is(errco.ERROR_UNKNOWN_PACKET))

	// json shorter than declared
	_, logMrt = ParseStatusResponse(&Frame{Payload: []byte{0x00, 0x05, '{', '}'}})
	assert.True(t, logMrt.Is(errco.ERROR_PACKET_LENGTH))

	// empty payload
	_, logMrt = ParseStatusResponse(&Frame{Payload: []byte{}})
	assert.True(t, logMrt.Is(errco.ERROR_MALFORMED_VARINT))
}

func Test_LoginDisconnect(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	// an address containing quotes must still produce valid json
	reason, err := json.Marshal(LoginDisconnectReason(`1.2.3.4"evil`, at))
	require.NoError(t, err)
	require.True(t, json.Valid(reason))

	packet := BuildLoginDisconnect(reason)
	frame, ok, logMrt := ReadFramedPacket(packet)
	require.Nil(t, logMrt)
	require.True(t, ok)

	data, logMrt := ParseStatusResponse(frame) // same layout as the status response
	require.Nil(t, logMrt)

	var chat model.ChatComponent
	require.NoError(t, json.Unmarshal(data, &chat))
	require.Len(t, chat.Extra, 4)
	assert.Equal(t, "Mortar", chat.Extra[0].Text)
	assert.True(t, chat.Extra[0].Bold)
	assert.Equal(t, "IP: 1.2.3.4\"evil\n", chat.Extra[2].Text)
	assert.Equal(t, "Time: 2024-03-01T12:30:00Z", chat.Extra[3].Text)
}

func Test_ProtocolForVersion(t *testing.T) {
	type test struct {
		version  string
		protocol int32
		known    bool
	}

	tests := []test{
		{"1.16.5", 754, true},
		{"1.18.2", 758, true},
		{"1.19.4", 762, true},
		{"1.20.4", 765, true},
		{"1.8.9", 47, true},
		{"", 754, false},
		{"b1.7.3", 754, false},
	}

	for _, test := range tests {
		protocol, ok := ProtocolForVersion(test.version)
		assert.Equal(t, test.protocol, protocol, test.version)
		assert.Equal(t, test.known, ok, test.version)
	}

	assert.Equal(t, int32(754), DefaultProtocol())
	assert.Contains(t, SupportedVersions(), DefaultVersion)
}
