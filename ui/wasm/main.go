//go:build js && wasm
// +build js,wasm

// Frame inspector for the clock's serial console, compiled to wasm so
// the debug page can encode and decode frames in the browser. All byte
// arguments cross the JS boundary as hex strings.
package main

import (
	"encoding/hex"
	"syscall/js"

	"goclock/protocol"
)

func main() {
	js.Global().Set("goclockWasm", js.ValueOf(map[string]interface{}{
		"encodeVLQ":   js.FuncOf(encodeVLQWrapper),
		"decodeVLQ":   js.FuncOf(decodeVLQWrapper),
		"crc16":       js.FuncOf(crc16Wrapper),
		"encodeFrame": js.FuncOf(encodeFrameWrapper),
		"decodeFrame": js.FuncOf(decodeFrameWrapper),
		"feedFrame":   js.FuncOf(feedFrameWrapper),
		"version":     protocol.Version,
	}))

	// Keep the program running
	select {}
}

// encodeVLQWrapper encodes a signed integer
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

// decodeVLQWrapper decodes the first VLQ in a hex string
// Args: hexString
// Returns: {value, consumed, error}
func decodeVLQWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeVLQResult(0, 0, "missing hex string argument")
	}

	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return makeVLQResult(0, 0, "invalid hex string: "+err.Error())
	}

	value, consumed, err := protocol.DecodeVLQ(data)
	if err != nil {
		return makeVLQResult(0, 0, err.Error())
	}
	return makeVLQResult(int(value), consumed, "")
}

// crc16Wrapper checksums a hex string
// Args: hexString
// Returns: number (uint16)
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

// encodeFrameWrapper wraps a command in a complete console frame
// Args: cmdID (uint16), argsHex (pre-encoded VLQ parameters)
// Returns: hex string of the frame
func encodeFrameWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.ValueOf("error: missing arguments")
	}

	cmdID := uint16(args[0].Int())
	argBytes := []byte{}
	if argsHex := args[1].String(); argsHex != "" {
		var err error
		argBytes, err = hex.DecodeString(argsHex)
		if err != nil {
			return js.ValueOf("error: invalid args hex: " + err.Error())
		}
	}

	output := protocol.NewScratchOutput()
	trans := protocol.NewTransport(output, nil)
	trans.SendCommand(cmdID, func(out protocol.OutputBuffer) {
		if len(argBytes) > 0 {
			out.Output(argBytes)
		}
	})
	return js.ValueOf(hex.EncodeToString(output.Result()))
}

// feedFrameWrapper runs raw bytes through a receive transport, the
// same code the firmware runs, and reports what it dispatched plus
// the ACK it generated
// Args: hexString
// Returns: {dispatched: bool, cmdID, data (hex), ack (hex), error}
func feedFrameWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeFeedResult(false, 0, "", "", "missing hex string argument")
	}

	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return makeFeedResult(false, 0, "", "", "invalid hex string: "+err.Error())
	}

	dispatched := false
	var gotID uint16
	var gotData []byte

	ackOutput := protocol.NewScratchOutput()
	trans := protocol.NewTransport(ackOutput, func(cmdID uint16, dataPtr *[]byte) error {
		dispatched = true
		gotID = cmdID
		gotData = append([]byte(nil), *dataPtr...)
		return nil
	})
	trans.Receive(protocol.NewSliceInputBuffer(data))

	return makeFeedResult(dispatched, int(gotID), hex.EncodeToString(gotData),
		hex.EncodeToString(ackOutput.Result()), "")
}

// decodeFrameWrapper takes a complete frame apart field by field
// Args: hexString
// Returns: {length, sequence, cmdID, params: [{value, bytes}], crc, crcValid, error}
func decodeFrameWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeDecodeResult(0, 0, 0, nil, 0, false, "missing hex string argument")
	}

	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return makeDecodeResult(0, 0, 0, nil, 0, false, "invalid hex string: "+err.Error())
	}
	if len(data) < protocol.MessageLengthMin {
		return makeDecodeResult(0, 0, 0, nil, 0, false, "frame too short")
	}

	msgLen := int(data[protocol.MessagePositionLen])
	seq := data[protocol.MessagePositionSeq]
	if msgLen < protocol.MessageLengthMin || msgLen > len(data) {
		return makeDecodeResult(msgLen, int(seq), 0, nil, 0, false, "length byte does not match data")
	}
	if data[msgLen-protocol.MessageTrailerSync] != protocol.MessageValueSync {
		return makeDecodeResult(msgLen, int(seq), 0, nil, 0, false, "missing sync byte")
	}

	frameCRC := uint16(data[msgLen-protocol.MessageTrailerCRC])<<8 |
		uint16(data[msgLen-protocol.MessageTrailerCRC+1])
	crcValid := frameCRC == protocol.CRC16(data[:msgLen-protocol.MessageTrailerSize])

	payload := data[protocol.MessageHeaderSize : msgLen-protocol.MessageTrailerSize]

	var cmdID int32
	var params []map[string]interface{}
	if len(payload) > 0 {
		var consumed int
		cmdID, consumed, err = protocol.DecodeVLQ(payload)
		if err != nil {
			return makeDecodeResult(msgLen, int(seq), 0, nil, int(frameCRC), crcValid,
				"failed to decode message ID: "+err.Error())
		}
		payload = payload[consumed:]

		// Remaining bytes decoded as VLQ values. String parameters
		// will show as a length followed by raw bytes, the inspector
		// has no dictionary to know better.
		for len(payload) > 0 {
			val, consumed, err := protocol.DecodeVLQ(payload)
			if err != nil {
				break
			}
			params = append(params, map[string]interface{}{
				"value": int(val),
				"bytes": consumed,
			})
			payload = payload[consumed:]
		}
	}

	return makeDecodeResult(msgLen, int(seq), int(cmdID), params, int(frameCRC), crcValid, "")
}

func makeVLQResult(value int, consumed int, errMsg string) js.Value {
	result := make(map[string]interface{})
	result["value"] = value
	result["consumed"] = consumed
	if errMsg != "" {
		result["error"] = errMsg
	}
	return js.ValueOf(result)
}

func makeFeedResult(dispatched bool, cmdID int, dataHex, ackHex, errMsg string) js.Value {
	result := make(map[string]interface{})
	result["dispatched"] = dispatched
	result["cmdID"] = cmdID
	result["data"] = dataHex
	result["ack"] = ackHex
	if errMsg != "" {
		result["error"] = errMsg
	}
	return js.ValueOf(result)
}

func makeDecodeResult(length int, seq int, cmdID int, params []map[string]interface{}, crc int, crcValid bool, errMsg string) js.Value {
	result := make(map[string]interface{})
	result["length"] = length
	result["sequence"] = seq
	result["cmdID"] = cmdID
	result["crc"] = crc
	result["crcValid"] = crcValid

	if params != nil {
		jsParams := make([]interface{}, len(params))
		for i, p := range params {
			jsParams[i] = p
		}
		result["params"] = jsParams
	} else {
		result["params"] = []interface{}{}
	}

	if errMsg != "" {
		result["error"] = errMsg
	}
	return js.ValueOf(result)
}
