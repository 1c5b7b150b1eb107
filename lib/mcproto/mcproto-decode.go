package mcproto

import (
	"encoding/binary"
	"fmt"

	"mortar/lib/errco"
)

// Phase is the protocol phase of a connection.
// It decides how a packet id must be interpreted.
type Phase int

const (
	PHASE_HANDSHAKING Phase = iota
	PHASE_STATUS
	PHASE_LOGIN
)

func (p Phase) String() string {
	switch p {
	case PHASE_HANDSHAKING:
		return "handshaking"
	case PHASE_STATUS:
		return "status"
	case PHASE_LOGIN:
		return "login"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Kind is the decoded packet kind
type Kind int

const (
	KIND_HANDSHAKE Kind = iota
	KIND_STATUS_REQUEST
	KIND_PING
	KIND_LOGIN_START
)

func (k Kind) String() string {
	switch k {
	case KIND_HANDSHAKE:
		return "handshake"
	case KIND_STATUS_REQUEST:
		return "status request"
	case KIND_PING:
		return "ping"
	case KIND_LOGIN_START:
		return "login start"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// packet ids
const (
	PACKET_HANDSHAKE        int32 = 0x00 // client -> server (handshaking)
	PACKET_STATUS_REQUEST   int32 = 0x00 // client -> server (status)
	PACKET_STATUS_RESPONSE  int32 = 0x00 // server -> client (status)
	PACKET_PING             int32 = 0x01 // client <-> server (status)
	PACKET_LOGIN_START      int32 = 0x00 // client -> server (login)
	PACKET_LOGIN_DISCONNECT int32 = 0x00 // server -> client (login)
)

// handshake next states
const (
	NEXT_STATE_STATUS int32 = 1
	NEXT_STATE_LOGIN  int32 = 2
)

const (
	legacyPingByte  = 0xfe // first byte of pre-netty server list ping
	pingPayloadSize = 8    // ping payload is a long
)

// Handshake contains the fields of a handshake packet
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

// Packet is an inbound packet decoded from the framing buffer
type Packet struct {
	Kind      Kind
	ID        int32
	Raw       []byte     // full packet as received (length prefix included)
	Body      []byte     // packet data following the packet id
	Handshake *Handshake // set for KIND_HANDSHAKE
	LoginName string     // set for KIND_LOGIN_START (empty if not readable)
}

// DecodePacket decodes the first packet in buf according to the connection phase.
//
// ok is false (with nil error) when buf does not contain a full packet yet.
// When ok is true, len(packet.Raw) bytes must be removed from the head of buf
// and the remaining bytes are kept for the next call.
func DecodePacket(buf []byte, phase Phase) (packet *Packet, ok bool, logMrt *errco.MrtLog) {
	// pre-netty clients start the connection with 0xFE
	if phase == PHASE_HANDSHAKING && len(buf) > 0 && buf[0] == legacyPingByte {
		return nil, false, errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_LEGACY_PROTOCOL, "legacy server list ping is not supported")
	}

	frame, ok, logMrt := ReadFramedPacket(buf)
	if logMrt != nil {
		return nil, false, logMrt.AddTrace()
	} else if !ok {
		return nil, false, nil
	}

	id, off, logMrt := DecodeVarInt(frame.Payload, 0)
	if logMrt != nil {
		return nil, false, logMrt.AddTrace()
	}

	packet = &Packet{
		ID:   id,
		Raw:  buf[:frame.Consumed],
		Body: frame.Payload[off:],
	}

	switch {
	case id == PACKET_PING && phase != PHASE_LOGIN:
		if len(packet.Body) != pingPayloadSize {
			return nil, false, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_UNKNOWN_PACKET, "ping payload is %d bytes instead of %d", len(packet.Body), pingPayloadSize)
		}
		packet.Kind = KIND_PING

	case id == PACKET_STATUS_REQUEST && len(packet.Body) == 0 && phase != PHASE_LOGIN:
		// bare status request [1 0]
		packet.Kind = KIND_STATUS_REQUEST

	case id == PACKET_HANDSHAKE && phase == PHASE_HANDSHAKING:
		packet.Handshake, logMrt = ParseHandshake(packet.Body)
		if logMrt != nil {
			return nil, false, logMrt.AddTrace()
		}
		packet.Kind = KIND_HANDSHAKE

	case id == PACKET_LOGIN_START && phase == PHASE_LOGIN:
		// login start is not parsed further: the player name is only used for logging
		if name, _, logMrt := readString(packet.Body, 0); logMrt == nil {
			packet.LoginName = name
		}
		packet.Kind = KIND_LOGIN_START

	default:
		return nil, false, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_UNKNOWN_PACKET, "unexpected packet id 0x%02x (length %d) in %s phase", id, frame.Length, phase)
	}

	return packet, true, nil
}

// ParseHandshake parses the handshake packet data (packet id excluded).
// Every field is bounds checked: reads past the packet end return ERROR_TRUNCATED_HANDSHAKE.
func ParseHandshake(body []byte) (*Handshake, *errco.MrtLog) {
	// scheme:      [ protocol (varint) | address len (varint) | address | port (uint16 BE) | next state (varint) ]
	// example:     [ 250 5             | 9                    | 49 ... 49 | 99 221         | 1                  ]

	h := &Handshake{}

	protocol, off, logMrt := readVarIntField(body, 0, "protocol version")
	if logMrt != nil {
		return nil, logMrt.AddTrace()
	}
	h.ProtocolVersion = protocol

	address, off, logMrt := readString(body, off)
	if logMrt != nil {
		return nil, logMrt.AddTrace()
	}
	h.ServerAddress = address

	if off+2 > len(body) {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_TRUNCATED_HANDSHAKE, "server port needs 2 bytes at offset %d (packet data length %d)", off, len(body))
	}
	h.ServerPort = binary.BigEndian.Uint16(body[off : off+2])
	off += 2

	nextState, _, logMrt := readVarIntField(body, off, "next state")
	if logMrt != nil {
		return nil, logMrt.AddTrace()
	}
	if nextState != NEXT_STATE_STATUS && nextState != NEXT_STATE_LOGIN {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_UNKNOWN_PACKET, "handshake next state %d is not supported", nextState)
	}
	h.NextState = nextState

	return h, nil
}

// readVarIntField reads a handshake varint field.
// A field missing or cut by the packet end is a truncated handshake,
// a field longer than 5 bytes is a malformed varint.
func readVarIntField(body []byte, off int, field string) (int32, int, *errco.MrtLog) {
	value, next, res := decodeVarInt(body, off)
	switch res {
	case varIntIncomplete:
		return 0, off, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_TRUNCATED_HANDSHAKE, "%s truncated at offset %d (packet data length %d)", field, off, len(body))
	case varIntTooLong:
		return 0, off, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_MALFORMED_VARINT, "%s at offset %d is longer than %d bytes", field, off, maxVarIntBytes)
	}
	return value, next, nil
}

// readString reads a varint length prefixed utf-8 string
func readString(body []byte, off int) (string, int, *errco.MrtLog) {
	length, off, logMrt := readVarIntField(body, off, "string length")
	if logMrt != nil {
		return "", off, logMrt.AddTrace()
	}

	if length < 0 || off+int(length) > len(body) {
		return "", off, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_TRUNCATED_HANDSHAKE, "string of declared length %d at offset %d exceeds packet data length %d", length, off, len(body))
	}

	return string(body[off : off+int(length)]), off + int(length), nil
}
