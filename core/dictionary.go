package core

import (
	"bytes"
	"encoding/json"
	"sync"

	"goclock/tinycompress"
)

// Dictionary is the self-describing payload the host fetches after
// identify: firmware version, exported constants, the command and
// response format-to-ID maps, and named enumerations (weekday indices,
// config keys). The host learns the wire protocol from this instead of
// hardcoding IDs.
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]string
	enumerations  map[string]map[string]int
	commandReg    *CommandRegistry
	version       string
	buildVersions string
	cached        []byte // compressed payload, built once after registration
}

// NewDictionary creates a dictionary over the given command registry.
func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]string),
		enumerations:  make(map[string]map[string]int),
		commandReg:    cmdReg,
		version:       "goclock-0.1.0",
		buildVersions: "go-tinygo",
	}
}

// AddConstant exports a firmware constant. Values are stringified so
// the config section stays a flat string map on the host side.
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = valueToString(value)
}

// AddEnumeration exports a name-to-index table. Empty names are
// placeholders for unused indices and are omitted.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	table := make(map[string]int, len(values))
	for i, v := range values {
		if v != "" {
			table[v] = i
		}
	}
	d.enumerations[name] = table
}

// SetVersion sets the firmware version string.
func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
}

// SetBuildVersions sets the toolchain description string.
func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
}

type dictPayload struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// BuildDictionary serializes and compresses the dictionary. Call once
// after every command, response and constant has been registered; the
// bootstrap chunk handler serves the cached bytes from then on.
func (d *Dictionary) BuildDictionary() {
	// Fetch from the registry before taking our own lock so the lock
	// order is always registry-then-dictionary.
	commands, responses := d.commandReg.GetCommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()

	jsonData := d.marshalLocked(commands, responses)
	DebugPrintln("[Dict] JSON built, size: " + itoa(len(jsonData)) + " bytes")

	var buf bytes.Buffer
	w := tinycompress.NewWriter(&buf)
	if _, err := w.Write(jsonData); err != nil {
		DebugPrintln("[Dict] compression failed: " + err.Error())
		d.cached = jsonData
		return
	}
	if err := w.Close(); err != nil {
		DebugPrintln("[Dict] compression close failed: " + err.Error())
		d.cached = jsonData
		return
	}

	compressed := buf.Bytes()
	DebugPrintln("[Dict] compressed size: " + itoa(len(compressed)) + " bytes")
	if len(compressed) == 0 {
		d.cached = jsonData
		return
	}

	d.cached = make([]byte, len(compressed))
	copy(d.cached, compressed)
}

// Generate returns the dictionary payload: the cached compressed form
// when BuildDictionary has run, otherwise plain JSON built on demand
// (tests and the simulator take this path).
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	if d.cached != nil {
		out := d.cached
		d.mu.RUnlock()
		return out
	}
	d.mu.RUnlock()

	commands, responses := d.commandReg.GetCommandsAndResponses()

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.marshalLocked(commands, responses)
}

// marshalLocked builds the JSON form. json.Marshal emits map keys in
// sorted order, which keeps the payload stable across boots.
func (d *Dictionary) marshalLocked(commands, responses map[string]int) []byte {
	payload := dictPayload{
		Version:       d.version,
		BuildVersions: d.buildVersions,
		Config:        d.constants,
		Commands:      commands,
		Responses:     responses,
	}
	if len(d.enumerations) > 0 {
		payload.Enumerations = d.enumerations
	}

	out, err := json.Marshal(&payload)
	if err != nil {
		DebugPrintln("[Dict] marshal failed: " + err.Error())
		return []byte("{}")
	}
	return out
}

// GetChunk returns up to count bytes of the payload starting at
// offset. The console streams the dictionary in frame-sized chunks;
// an empty slice signals end of data. The chunk is copied because the
// caller hands it to the USB transmit path.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()

	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}

	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}
