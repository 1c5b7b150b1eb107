package mcproto

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"mortar/lib/errco"
	"mortar/lib/model"
)

// BuildPongResponse returns the pong response for a ping request packet.
// The pong is the exact echo of the ping packet (length prefix included).
func BuildPongResponse(pingPacket []byte) []byte {
	return bytes.Clone(pingPacket)
}

// BuildStatusResponse builds the status response packet containing the json status.
func BuildStatusResponse(statusJSON []byte) []byte {
	//              ┌-------------------packet--------------------┐
	// scheme:      [ length | packet id | json length | json     ]
	//                         └------------payload---------------┘
	return buildStringPacket(PACKET_STATUS_RESPONSE, statusJSON)
}

// BuildLoginDisconnect builds the login disconnect packet containing the json chat reason.
func BuildLoginDisconnect(reasonJSON []byte) []byte {
	return buildStringPacket(PACKET_LOGIN_DISCONNECT, reasonJSON)
}

// buildStringPacket builds a packet whose only field is a length prefixed string
func buildStringPacket(id int32, data []byte) []byte {
	payload := AppendVarInt(nil, id)
	payload = append(payload, FramePacket(data)...)
	return FramePacket(payload)
}

// BuildHandshake builds a handshake packet
func BuildHandshake(protocol int32, address string, port uint16, nextState int32) []byte {
	payload := AppendVarInt(nil, PACKET_HANDSHAKE)
	payload = AppendVarInt(payload, protocol)
	payload = append(payload, FramePacket([]byte(address))...)
	payload = binary.BigEndian.AppendUint16(payload, port)
	payload = AppendVarInt(payload, nextState)
	return FramePacket(payload)
}

// BuildStatusRequest builds the empty status request packet [1 0]
func BuildStatusRequest() []byte {
	return FramePacket(AppendVarInt(nil, PACKET_STATUS_REQUEST))
}

// BuildPingRequest builds a ping request packet carrying the specified payload
func BuildPingRequest(payload int64) []byte {
	data := AppendVarInt(nil, PACKET_PING)
	data = binary.BigEndian.AppendUint64(data, uint64(payload))
	return FramePacket(data)
}

// ParseStatusResponse returns the json contained in a status response frame
func ParseStatusResponse(frame *Frame) ([]byte, *errco.MrtLog) {
	id, off, logMrt := DecodeVarInt(frame.Payload, 0)
	if logMrt != nil {
		return nil, logMrt.AddTrace()
	}
	if id != PACKET_STATUS_RESPONSE {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_UNKNOWN_PACKET, "expected status response packet id 0x%02x, received 0x%02x", PACKET_STATUS_RESPONSE, id)
	}

	inner, ok, logMrt := ReadFramedPacket(frame.Payload[off:])
	if logMrt != nil {
		return nil, logMrt.AddTrace()
	} else if !ok {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_PACKET_LENGTH, "status json declares more bytes than the packet contains")
	}

	return inner.Payload, nil
}

// LoginDisconnectReason returns the chat component shown to a client trying to join
func LoginDisconnectReason(clientIP string, at time.Time) model.ChatComponent {
	return model.ChatComponent{
		Text:  "",
		Color: "white",
		Extra: []model.ChatComponent{
			{Text: "Mortar", Bold: true, Color: "aqua"},
			{Text: "\n这里只提供全服在线人数统计，不是真正的游戏服务器\n\n", Color: "gold"},
			{Text: fmt.Sprintf("IP: %s\n", clientIP), Color: "gray"},
			{Text: fmt.Sprintf("Time: %s", at.Format(time.RFC3339)), Color: "gray"},
		},
	}
}
