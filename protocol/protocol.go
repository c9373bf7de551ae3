// Package protocol implements the Klipper-style framing shared by the
// firmware and the host tool
package protocol

// Version is the protocol implementation version
const Version = "0.1.0"

const (
	MessageMax = 512 // Output scratch size; holds several frames between flushes

	// Block layout: len, seq, payload, crc_hi, crc_lo, sync
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3 // Offsets from the end of the block
	MessageTrailerSync = 1

	MessageValueSync = 0x7E
	MessageDest      = 0x10 // High bits of every sequence byte
	MessageSeqMask   = 0x0F
)
