package protocol

import "errors"

// Monitor message ids
const (
	MsgIdentify = 1 // version, instance count
	MsgRegion   = 2 // address, size, flags, name
	MsgTransfer = 3 // instance, address, rx count, capacity, flags
	MsgStats    = 4 // instance, transactions, overflows, spurious, reselects, dropped
)

// Message flags
const (
	FlagOverflow = 1 << 0 // MsgTransfer: controller sent more than RX could hold
	FlagWritable = 1 << 1 // MsgRegion: region accepts writes
)

var ErrUnknownMessage = errors.New("protocol: unknown message id")

// Transfer reports one completed transaction
type Transfer struct {
	Instance uint8
	Address  uint16
	RXCount  int32
	Capacity uint16
	Flags    uint8
}

// Stats is the counter snapshot of one engine
type Stats struct {
	Instance     uint8
	Transactions uint32
	Overflows    uint32
	Spurious     uint32
	Reselects    uint32
	Dropped      uint32 // Notices lost before reaching the stream
}

// RegionInfo announces one register region
type RegionInfo struct {
	Address uint8
	Size    uint16
	Flags   uint8
	Name    string
}

// Message is one decoded monitor message. Only the member matching ID is set.
type Message struct {
	ID uint8

	Version   string
	Instances uint8

	Region   RegionInfo
	Transfer Transfer
	Stats    Stats
}

// EncodeIdentify writes a MsgIdentify
func EncodeIdentify(output OutputBuffer, instances uint8) {
	EncodeVLQUint(output, MsgIdentify)
	EncodeVLQString(output, Version)
	EncodeVLQUint(output, uint32(instances))
}

// EncodeRegion writes a MsgRegion
func EncodeRegion(output OutputBuffer, r RegionInfo) {
	EncodeVLQUint(output, MsgRegion)
	EncodeVLQUint(output, uint32(r.Address))
	EncodeVLQUint(output, uint32(r.Size))
	EncodeVLQUint(output, uint32(r.Flags))
	EncodeVLQString(output, r.Name)
}

// EncodeTransfer writes a MsgTransfer
func EncodeTransfer(output OutputBuffer, tr Transfer) {
	EncodeVLQUint(output, MsgTransfer)
	EncodeVLQUint(output, uint32(tr.Instance))
	EncodeVLQUint(output, uint32(tr.Address))
	EncodeVLQInt(output, tr.RXCount)
	EncodeVLQUint(output, uint32(tr.Capacity))
	EncodeVLQUint(output, uint32(tr.Flags))
}

// EncodeStats writes a MsgStats
func EncodeStats(output OutputBuffer, st Stats) {
	EncodeVLQUint(output, MsgStats)
	EncodeVLQUint(output, uint32(st.Instance))
	EncodeVLQUint(output, st.Transactions)
	EncodeVLQUint(output, st.Overflows)
	EncodeVLQUint(output, st.Spurious)
	EncodeVLQUint(output, st.Reselects)
	EncodeVLQUint(output, st.Dropped)
}

// DecodeMessages parses every message in a frame payload
func DecodeMessages(payload []byte, fn func(Message)) error {
	data := payload
	for len(data) > 0 {
		msg, err := decodeMessage(&data)
		if err != nil {
			return err
		}
		fn(msg)
	}
	return nil
}

func decodeMessage(data *[]byte) (Message, error) {
	var msg Message

	id, err := DecodeVLQUint(data)
	if err != nil {
		return msg, err
	}
	msg.ID = uint8(id)

	var v [6]uint32
	switch id {
	case MsgIdentify:
		if msg.Version, err = DecodeVLQString(data); err != nil {
			return msg, err
		}
		if err = decodeUints(data, v[:1]); err != nil {
			return msg, err
		}
		msg.Instances = uint8(v[0])

	case MsgRegion:
		if err = decodeUints(data, v[:3]); err != nil {
			return msg, err
		}
		msg.Region = RegionInfo{
			Address: uint8(v[0]),
			Size:    uint16(v[1]),
			Flags:   uint8(v[2]),
		}
		if msg.Region.Name, err = DecodeVLQString(data); err != nil {
			return msg, err
		}

	case MsgTransfer:
		if err = decodeUints(data, v[:2]); err != nil {
			return msg, err
		}
		rx, err := DecodeVLQInt(data)
		if err != nil {
			return msg, err
		}
		if err = decodeUints(data, v[2:4]); err != nil {
			return msg, err
		}
		msg.Transfer = Transfer{
			Instance: uint8(v[0]),
			Address:  uint16(v[1]),
			RXCount:  rx,
			Capacity: uint16(v[2]),
			Flags:    uint8(v[3]),
		}

	case MsgStats:
		if err = decodeUints(data, v[:6]); err != nil {
			return msg, err
		}
		msg.Stats = Stats{
			Instance:     uint8(v[0]),
			Transactions: v[1],
			Overflows:    v[2],
			Spurious:     v[3],
			Reselects:    v[4],
			Dropped:      v[5],
		}

	default:
		return msg, ErrUnknownMessage
	}
	return msg, nil
}

func decodeUints(data *[]byte, out []uint32) error {
	for i := range out {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		out[i] = v
	}
	return nil
}
