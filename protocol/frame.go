package protocol

import "errors"

var ErrFrameTooLong = errors.New("protocol: frame exceeds MessageLengthMax")

// FrameEncoder wraps payloads into numbered frames on an output buffer
type FrameEncoder struct {
	output  OutputBuffer
	scratch ScratchOutput
	seq     uint8
}

// NewFrameEncoder returns an encoder writing to output
func NewFrameEncoder(output OutputBuffer) *FrameEncoder {
	return &FrameEncoder{output: output}
}

// EncodeFrame builds one frame from what frameData writes. Nothing is
// written to the output if the frame would be too long.
func (e *FrameEncoder) EncodeFrame(frameData func(output OutputBuffer)) error {
	e.scratch.Reset()

	seq := MessageDest | (e.seq & MessageSeqMask)
	e.scratch.Output([]byte{0, seq})
	frameData(&e.scratch)

	msgLen := e.scratch.CurPosition() + MessageTrailerSize
	if msgLen > MessageLengthMax {
		return ErrFrameTooLong
	}
	e.scratch.Update(MessagePositionLen, uint8(msgLen))

	crc := CRC16(e.scratch.Result())
	e.scratch.Output([]byte{
		uint8(crc >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})

	e.output.Output(e.scratch.Result())
	e.seq++
	return nil
}

// FrameHandler receives the payload of each valid frame. payload is only
// valid during the call.
type FrameHandler func(seq uint8, payload []byte)

// FrameDecoder recovers frames from a byte stream. Corrupt input drops the
// decoder out of sync until the next sync byte.
type FrameDecoder struct {
	input   *StreamBuffer
	handler FrameHandler

	synced  bool
	haveSeq bool
	nextSeq uint8

	Frames uint32 // Valid frames delivered
	Errors uint32 // Resynchronisations after bad length, CRC or sync
	Lost   uint32 // Frames missing according to the sequence counter
}

// NewFrameDecoder returns a decoder delivering frames to handler
func NewFrameDecoder(handler FrameHandler) *FrameDecoder {
	return &FrameDecoder{
		input:   NewStreamBuffer(4 * MessageLengthMax),
		handler: handler,
		synced:  true,
	}
}

// Write feeds stream bytes to the decoder. It never fails, so a
// FrameDecoder can sit at the end of io.Copy.
func (d *FrameDecoder) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		n := d.input.Write(p)
		p = p[n:]
		d.process()
		if n == 0 && d.input.Free() == 0 {
			// Cannot happen with a buffer larger than a frame; don't spin
			d.input.Reset()
			d.desync()
		}
	}
	return total, nil
}

func (d *FrameDecoder) desync() {
	if d.synced {
		d.Errors++
	}
	d.synced = false
}

func (d *FrameDecoder) process() {
	data := d.input.Data()
	start := len(data)

	for len(data) > 0 {
		if !d.synced {
			syncPos := -1
			for i, b := range data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}
			if syncPos < 0 {
				data = nil
				break
			}
			data = data[syncPos+1:]
			d.synced = true
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			d.desync()
			continue
		}
		seq := data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			d.desync()
			continue
		}
		if len(data) < msgLen {
			break
		}
		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			d.desync()
			continue
		}
		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			d.desync()
			continue
		}

		if d.haveSeq && seq != d.nextSeq {
			d.Lost += uint32((seq - d.nextSeq) & MessageSeqMask)
		}
		d.haveSeq = true
		d.nextSeq = MessageDest | ((seq + 1) & MessageSeqMask)

		d.Frames++
		if d.handler != nil {
			d.handler(seq, data[MessageHeaderSize:msgLen-MessageTrailerSize])
		}
		data = data[msgLen:]
	}

	d.input.Pop(start - len(data))
}
