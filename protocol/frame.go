package protocol

import "errors"

var ErrFrameTooLong = errors.New("frame exceeds maximum message length")

// FrameStatus is the outcome of scanning the head of a receive buffer
type FrameStatus uint8

const (
	FrameOK         FrameStatus = iota // A complete, valid frame
	FrameIncomplete                    // More bytes are needed
	FrameInvalid                       // Bad length, sequence, sync or CRC; resync
)

// Frame is one validated message block
type Frame struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // Aliases the scanned buffer
	CRC      uint16
}

// CRC16 calculates the CCITT checksum used by Klipper message blocks
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b = b ^ uint8(crc&0xFF)
		b = b ^ (b << 4)
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}

// ScanFrame validates the frame at the start of data. On FrameOK it returns
// the frame and the bytes it occupies. checkDest rejects frames whose
// sequence byte lacks the host destination bits, which only the MCU side
// requires.
func ScanFrame(data []byte, checkDest bool) (Frame, int, FrameStatus) {
	if len(data) < MessageLengthMin {
		return Frame{}, 0, FrameIncomplete
	}

	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return Frame{}, 0, FrameInvalid
	}

	seq := data[MessagePositionSeq]
	if checkDest && seq&^MessageSeqMask != MessageDest {
		return Frame{}, 0, FrameInvalid
	}

	if len(data) < msgLen {
		return Frame{}, 0, FrameIncomplete
	}

	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return Frame{}, 0, FrameInvalid
	}

	frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
		uint16(data[msgLen-MessageTrailerCRC+1])
	if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
		return Frame{}, 0, FrameInvalid
	}

	return Frame{
		Length:   uint8(msgLen),
		Sequence: seq,
		Payload:  data[MessageHeaderSize : msgLen-MessageTrailerSize],
		CRC:      frameCRC,
	}, msgLen, FrameOK
}

// AppendFrame wraps payload in a message block with the given sequence byte
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	msgLen := MessageHeaderSize + len(payload) + MessageTrailerSize
	if msgLen > MessageLengthMax {
		return dst, ErrFrameTooLong
	}

	start := len(dst)
	dst = append(dst, uint8(msgLen), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc), MessageValueSync), nil
}

// NextSequence advances a sequence byte within 0x10-0x1F
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
