package client

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"time"

	"github.com/jmhodges/clock"

	"goclock/host/serial"
	"goclock/protocol"
)

// Bootstrap message IDs. These are the only two the host must know
// before it has a dictionary; the clock registers them first so their
// IDs are fixed.
const (
	idIdentifyResponse = 0
	idIdentify         = 1
)

const (
	// receivePoll is how long each ReceiveResponse call blocks before
	// the deadline is rechecked
	receivePoll = 50 * time.Millisecond

	// responseSettle is how long a command burst may go quiet before
	// the client considers it complete
	responseSettle = 150 * time.Millisecond

	// identifyChunkSize keeps each identify_response inside one frame
	identifyChunkSize = 40

	// maxDictionarySize bounds the identify transfer against a
	// misbehaving device
	maxDictionarySize = 64 * 1024
)

// commandLink is the part of the transport the client uses. Tests
// substitute an in-memory implementation.
type commandLink interface {
	SendCommand(cmdID uint16, args func(output protocol.OutputBuffer)) error
	ReceiveResponse(timeout time.Duration) (*protocol.Message, error)
}

// Client drives one clock over its serial console
type Client struct {
	port      serial.Port
	transport *protocol.HostTransport
	link      commandLink
	clk       clock.Clock

	dict    *Dictionary
	rawDict []byte
}

// Connect opens the device with default serial settings and fetches
// its dictionary
func Connect(device string, timeout time.Duration) (*Client, error) {
	return ConnectWithConfig(serial.DefaultConfig(device), timeout)
}

// ConnectWithConfig opens the device and fetches its dictionary
func ConnectWithConfig(cfg *serial.Config, timeout time.Duration) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}

	transport := protocol.NewHostTransport(port)
	c := &Client{
		port:      port,
		transport: transport,
		link:      transport,
		clk:       clock.New(),
	}

	// Give the device a moment to notice the host reset its sequence
	c.clk.Sleep(100 * time.Millisecond)

	if err := c.Identify(timeout); err != nil {
		transport.Close()
		return nil, err
	}
	return c, nil
}

// Close shuts down the transport and the underlying port
func (c *Client) Close() error {
	if c.transport != nil {
		return c.transport.Close()
	}
	return nil
}

// Dict returns the parsed dictionary, nil before Identify
func (c *Client) Dict() *Dictionary {
	return c.dict
}

// RawDictionary returns the decompressed dictionary JSON
func (c *Client) RawDictionary() []byte {
	return c.rawDict
}

// Identify downloads the command dictionary in chunks and parses it
func (c *Client) Identify(timeout time.Duration) error {
	var raw []byte
	offset := uint32(0)

	for {
		err := c.link.SendCommand(idIdentify, func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, offset)
			protocol.EncodeVLQUint(output, identifyChunkSize)
		})
		if err != nil {
			return fmt.Errorf("identify request failed: %w", err)
		}

		payload, err := c.awaitResponse(idIdentifyResponse, timeout)
		if err != nil {
			return fmt.Errorf("identify at offset %d: %w", offset, err)
		}

		gotOffset, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return fmt.Errorf("identify response: %w", err)
		}
		chunk, err := protocol.DecodeVLQBytes(&payload)
		if err != nil {
			return fmt.Errorf("identify response: %w", err)
		}
		if gotOffset != offset {
			// Stale response from an earlier attempt, wait for ours
			continue
		}

		raw = append(raw, chunk...)
		offset += uint32(len(chunk))

		if len(raw) > maxDictionarySize {
			return fmt.Errorf("dictionary exceeds %d bytes", maxDictionarySize)
		}
		if len(chunk) < identifyChunkSize {
			break
		}
	}

	jsonData, err := maybeDecompress(raw)
	if err != nil {
		return fmt.Errorf("failed to decompress dictionary: %w", err)
	}

	dict, err := ParseDictionary(jsonData)
	if err != nil {
		return err
	}

	c.dict = dict
	c.rawDict = jsonData
	return nil
}

// maybeDecompress inflates a zlib-wrapped dictionary. Plain JSON
// starts with '{', a zlib stream with 0x78.
func maybeDecompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty dictionary")
	}
	if data[0] != 0x78 {
		return data, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// awaitResponse waits for a specific bootstrap message, discarding
// anything else that arrives
func (c *Client) awaitResponse(wantID uint32, timeout time.Duration) ([]byte, error) {
	deadline := c.clk.Now().Add(timeout)
	for c.clk.Now().Before(deadline) {
		msg, err := c.link.ReceiveResponse(receivePoll)
		if err != nil {
			continue
		}
		payload := msg.Payload
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil || id != wantID {
			continue
		}
		return payload, nil
	}
	return nil, fmt.Errorf("no response within %v", timeout)
}

// Call sends a named command and collects its response burst. The
// burst ends at a result message, or after responseSettle of quiet
// for query commands that never send one.
func (c *Client) Call(name string, argv []string, timeout time.Duration) ([]*Response, error) {
	if c.dict == nil {
		return nil, fmt.Errorf("no dictionary, identify first")
	}
	format, ok := c.dict.Command(name)
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", name)
	}
	vals, err := format.ParseArgs(argv)
	if err != nil {
		return nil, err
	}

	err = c.link.SendCommand(uint16(format.ID), func(output protocol.OutputBuffer) {
		encodeValues(output, vals)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", name, err)
	}

	var responses []*Response
	deadline := c.clk.Now().Add(timeout)
	for c.clk.Now().Before(deadline) {
		msg, err := c.link.ReceiveResponse(responseSettle)
		if err != nil {
			break
		}
		resp, err := c.decode(msg)
		if err != nil {
			// An unknown or garbled frame does not end the burst
			continue
		}
		responses = append(responses, resp)
		if resp.Name == "result" {
			break
		}
	}
	return responses, nil
}

// decode turns a raw message into a named Response via the dictionary
func (c *Client) decode(msg *protocol.Message) (*Response, error) {
	payload := msg.Payload
	id, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, err
	}
	format, ok := c.dict.Response(int(id))
	if !ok {
		return nil, fmt.Errorf("unknown response ID %d", id)
	}
	return format.Decode(payload)
}

// Result scans a response burst for its result message
func Result(responses []*Response) (ok bool, msg string, found bool) {
	for i := len(responses) - 1; i >= 0; i-- {
		if responses[i].Name == "result" {
			return responses[i].Uint("ok") != 0, responses[i].Str("msg"), true
		}
	}
	return false, "", false
}
