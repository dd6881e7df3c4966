//go:build js && wasm
// +build js,wasm

package main

import (
	"encoding/hex"
	"syscall/js"

	"regspi/protocol"
)

// Stream decoder for bytes the page reads from WebSerial
var (
	decoder *protocol.FrameDecoder
	decoded []interface{}
)

func main() {
	decoder = protocol.NewFrameDecoder(handleFrame)

	// Export functions to JavaScript
	js.Global().Set("regspiWasm", js.ValueOf(map[string]interface{}{
		"encodeVLQ": js.FuncOf(encodeVLQWrapper),
		"decodeVLQ": js.FuncOf(decodeVLQWrapper),
		"crc16":     js.FuncOf(crc16Wrapper),
		"feed":      js.FuncOf(feedWrapper),
		"linkStats": js.FuncOf(linkStatsWrapper),
		"reset":     js.FuncOf(resetWrapper),
		"version":   protocol.Version,
	}))

	// Keep the program running
	select {}
}

// encodeVLQWrapper encodes a signed integer to VLQ format
// Args: value (int32)
// Returns: hex string
func encodeVLQWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf("error: missing value argument")
	}

	output := protocol.NewScratchOutput()
	protocol.EncodeVLQInt(output, int32(args[0].Int()))
	return js.ValueOf(hex.EncodeToString(output.Result()))
}

// decodeVLQWrapper decodes one VLQ from a hex string
// Returns: {value, consumed, error}
func decodeVLQWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeResult(0, 0, "missing hex string argument")
	}

	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return makeResult(0, 0, "invalid hex string: "+err.Error())
	}

	rest := data
	value, err := protocol.DecodeVLQInt(&rest)
	if err != nil {
		return makeResult(0, 0, err.Error())
	}
	return makeResult(int(value), len(data)-len(rest), "")
}

// crc16Wrapper calculates the frame checksum of a hex string
func crc16Wrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(0)
	}

	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return js.ValueOf(0)
	}
	return js.ValueOf(int(protocol.CRC16(data)))
}

// feedWrapper pushes stream bytes (hex) into the decoder
// Returns: array of message objects completed by these bytes
func feedWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf([]interface{}{})
	}

	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return js.ValueOf([]interface{}{map[string]interface{}{"error": "invalid hex string: " + err.Error()}})
	}

	decoded = decoded[:0]
	decoder.Write(data)
	out := make([]interface{}, len(decoded))
	copy(out, decoded)
	return js.ValueOf(out)
}

// linkStatsWrapper returns {frames, errors, lost}
func linkStatsWrapper(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(map[string]interface{}{
		"frames": int(decoder.Frames),
		"errors": int(decoder.Errors),
		"lost":   int(decoder.Lost),
	})
}

// resetWrapper drops decoder state after the port is reopened
func resetWrapper(this js.Value, args []js.Value) interface{} {
	decoder = protocol.NewFrameDecoder(handleFrame)
	return js.Undefined()
}

func handleFrame(seq uint8, payload []byte) {
	err := protocol.DecodeMessages(payload, func(msg protocol.Message) {
		decoded = append(decoded, messageObject(seq, msg))
	})
	if err != nil {
		decoded = append(decoded, map[string]interface{}{"sequence": int(seq), "error": err.Error()})
	}
}

// messageObject flattens a message into something js.ValueOf accepts
func messageObject(seq uint8, msg protocol.Message) map[string]interface{} {
	obj := map[string]interface{}{
		"sequence": int(seq),
		"id":       int(msg.ID),
	}

	switch msg.ID {
	case protocol.MsgIdentify:
		obj["type"] = "identify"
		obj["version"] = msg.Version
		obj["instances"] = int(msg.Instances)

	case protocol.MsgRegion:
		obj["type"] = "region"
		obj["address"] = int(msg.Region.Address)
		obj["size"] = int(msg.Region.Size)
		obj["name"] = msg.Region.Name
		obj["writable"] = msg.Region.Flags&protocol.FlagWritable != 0

	case protocol.MsgTransfer:
		tr := msg.Transfer
		obj["type"] = "transfer"
		obj["instance"] = int(tr.Instance)
		obj["address"] = int(tr.Address)
		obj["rxCount"] = int(tr.RXCount)
		obj["capacity"] = int(tr.Capacity)
		obj["overflow"] = tr.Flags&protocol.FlagOverflow != 0

	case protocol.MsgStats:
		st := msg.Stats
		obj["type"] = "stats"
		obj["instance"] = int(st.Instance)
		obj["transactions"] = int(st.Transactions)
		obj["overflows"] = int(st.Overflows)
		obj["spurious"] = int(st.Spurious)
		obj["reselects"] = int(st.Reselects)
		obj["dropped"] = int(st.Dropped)
	}
	return obj
}

// Helper to create result objects
func makeResult(value int, consumed int, errMsg string) js.Value {
	result := make(map[string]interface{})
	result["value"] = value
	result["consumed"] = consumed
	if errMsg != "" {
		result["error"] = errMsg
	}
	return js.ValueOf(result)
}
