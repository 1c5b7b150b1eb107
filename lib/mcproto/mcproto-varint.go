package mcproto

import (
	"math"

	"mortar/lib/errco"
)

// reference:
// - wiki.vg/Protocol#VarInt_and_VarLong

const (
	maxVarIntBytes = 5             // a 32 bit varint never needs more than 5 bytes
	MaxVarInt      = math.MaxInt32 // highest value accepted by EncodeVarInt
)

// varint decoding results
const (
	varIntOk         = iota // varint decoded
	varIntIncomplete        // buffer ends before the last varint byte
	varIntTooLong           // continuation bit set on the 5th byte
)

// DecodeVarInt decodes the varint starting at buf[off].
// Returns the value and the offset of the byte following the varint.
//
// A varint that is missing, truncated by the end of the buffer or longer than 5 bytes
// returns ERROR_MALFORMED_VARINT.
func DecodeVarInt(buf []byte, off int) (int32, int, *errco.MrtLog) {
	if off < 0 || off >= len(buf) {
		return 0, off, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_MALFORMED_VARINT, "no varint at offset %d (buffer length %d)", off, len(buf))
	}

	value, next, res := decodeVarInt(buf, off)
	switch res {
	case varIntIncomplete:
		return 0, off, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_MALFORMED_VARINT, "varint at offset %d is truncated", off)
	case varIntTooLong:
		return 0, off, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_MALFORMED_VARINT, "varint at offset %d is longer than %d bytes", off, maxVarIntBytes)
	}

	return value, next, nil
}

// decodeVarInt decodes a varint and reports if it's complete.
// The 5th byte brings the 4 most significant bits: negative values are the
// two's complement of the 32 bit result.
func decodeVarInt(buf []byte, off int) (int32, int, int) {
	var value uint32

	for i := 0; i < maxVarIntBytes; i++ {
		if off+i >= len(buf) {
			return 0, off, varIntIncomplete
		}

		b := buf[off+i]
		value |= uint32(b&0x7f) << (7 * i)

		if b&0x80 == 0 {
			return int32(value), off + i + 1, varIntOk
		}
	}

	return 0, off, varIntTooLong
}

// EncodeVarInt encodes a value in [0, MaxVarInt] as varint.
// Values outside the range return ERROR_VARINT_RANGE.
func EncodeVarInt(value int64) ([]byte, *errco.MrtLog) {
	if value < 0 || value > MaxVarInt {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_VARINT_RANGE, "value %d out of varint range [0, %d]", value, MaxVarInt)
	}

	return AppendVarInt(make([]byte, 0, maxVarIntBytes), int32(value)), nil
}

// AppendVarInt appends the varint encoding of v to dst.
// Negative values (protocol version -1 for example) are written as 5 bytes.
func AppendVarInt(dst []byte, v int32) []byte {
	u := uint32(v)
	for u >= 0x80 {
		dst = append(dst, byte(u&0x7f)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}

// VarIntLen returns the number of bytes needed to encode v
func VarIntLen(v int32) int {
	n := 1
	for u := uint32(v); u >= 0x80; u >>= 7 {
		n++
	}
	return n
}
