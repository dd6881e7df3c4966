// Package protocol frames the follower's monitor stream.
//
// Frames use the Klipper block layout: a length byte, a sequence byte,
// VLQ encoded messages, a CRC16 and a 0x7E sync byte.
package protocol

// Version is the monitor stream format version reported by the firmware
const Version = "0.1.0"

// Protocol constants
const (
	MessageMax = 512 // Scratch buffer size

	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E

	// Sequence byte is MessageDest | (counter & MessageSeqMask)
	MessageDest    = 0x10
	MessageSeqMask = 0x0F
)
