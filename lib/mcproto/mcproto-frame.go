package mcproto

import (
	"mortar/lib/errco"
)

// MaxPacketLength is the highest packet length accepted by ReadFramedPacket
// (the length prefix of a minecraft packet can't be longer than 3 bytes)
const MaxPacketLength = 2097151

// Frame is a length prefixed packet read from a buffer
type Frame struct {
	Length   int    // payload length declared by the prefix
	Payload  []byte // packet id + packet data
	Consumed int    // bytes of the buffer used by the frame (prefix + payload)
}

// FramePacket prefixes the payload with its length
func FramePacket(payload []byte) []byte {
	out := make([]byte, 0, VarIntLen(int32(len(payload)))+len(payload))
	out = AppendVarInt(out, int32(len(payload)))
	return append(out, payload...)
}

// ReadFramedPacket reads the first framed packet contained in buf.
//
// When buf does not contain a full packet yet (length prefix or payload still incomplete)
// ok is false and no error is returned: the caller must wait for more data.
//
// The returned payload shares memory with buf.
func ReadFramedPacket(buf []byte) (frame *Frame, ok bool, logMrt *errco.MrtLog) {
	//              ┌-------------Consumed-------------┐
	// scheme:      [ length (varint) | payload         ] [ next packet ... ]
	// bytes used:  [ 1 - 3           | length          ]

	if len(buf) == 0 {
		return nil, false, nil
	}

	length, off, res := decodeVarInt(buf, 0)
	switch res {
	case varIntIncomplete:
		return nil, false, nil
	case varIntTooLong:
		return nil, false, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_MALFORMED_VARINT, "packet length prefix is longer than %d bytes", maxVarIntBytes)
	}

	if length < 0 || length > MaxPacketLength {
		return nil, false, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_PACKET_LENGTH, "declared packet length %d out of range [0, %d]", length, MaxPacketLength)
	}

	if len(buf)-off < int(length) {
		return nil, false, nil
	}

	return &Frame{
		Length:   int(length),
		Payload:  buf[off : off+int(length)],
		Consumed: off + int(length),
	}, true, nil
}
