package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"goclock/protocol"
)

// Dictionary is the self-description a clock sends during identify.
// Command and response keys are format strings ("set_alarm id=%c ..."),
// which the client parses once into MessageFormats so any command can
// be encoded and any response decoded without hardcoding.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`

	commandsByName map[string]*MessageFormat
	responsesByID  map[int]*MessageFormat
}

// ParamKind is the wire type of one message parameter
type ParamKind uint8

const (
	ParamUint   ParamKind = iota // %u, unsigned 32-bit
	ParamInt                     // %i, signed 32-bit
	ParamByte                    // %c, unsigned 8-bit
	ParamString                  // %*s, length-prefixed bytes
)

// Param is one named parameter of a message format
type Param struct {
	Name string
	Kind ParamKind
}

// MessageFormat is a parsed dictionary format entry
type MessageFormat struct {
	ID     int
	Name   string
	Params []Param
}

// Value is one decoded or to-be-encoded parameter value
type Value struct {
	Param
	Uint uint32
	Int  int32
	Str  string
}

// Response is a fully decoded message from the clock
type Response struct {
	Name   string
	Values []Value
}

// ParseDictionary parses the dictionary JSON and indexes its formats
func ParseDictionary(data []byte) (*Dictionary, error) {
	d := &Dictionary{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dictionary: %w", err)
	}

	d.commandsByName = make(map[string]*MessageFormat, len(d.Commands))
	for key, id := range d.Commands {
		f, err := parseFormat(key, id)
		if err != nil {
			return nil, fmt.Errorf("bad command format %q: %w", key, err)
		}
		d.commandsByName[f.Name] = f
	}

	d.responsesByID = make(map[int]*MessageFormat, len(d.Responses))
	for key, id := range d.Responses {
		f, err := parseFormat(key, id)
		if err != nil {
			return nil, fmt.Errorf("bad response format %q: %w", key, err)
		}
		d.responsesByID[id] = f
	}

	return d, nil
}

// parseFormat splits a dictionary key like "set_alarm id=%c hour=%c"
// into its name and typed parameter list
func parseFormat(key string, id int) (*MessageFormat, error) {
	fields := strings.Fields(key)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty format")
	}

	f := &MessageFormat{ID: id, Name: fields[0]}
	for _, spec := range fields[1:] {
		eq := strings.Index(spec, "=%")
		if eq <= 0 {
			return nil, fmt.Errorf("parameter %q has no directive", spec)
		}
		p := Param{Name: spec[:eq]}
		switch spec[eq+2:] {
		case "u":
			p.Kind = ParamUint
		case "i":
			p.Kind = ParamInt
		case "c":
			p.Kind = ParamByte
		case "*s":
			p.Kind = ParamString
		default:
			return nil, fmt.Errorf("parameter %q has unknown directive", spec)
		}
		f.Params = append(f.Params, p)
	}
	return f, nil
}

// Command looks up a command format by name
func (d *Dictionary) Command(name string) (*MessageFormat, bool) {
	f, ok := d.commandsByName[name]
	return f, ok
}

// Response looks up a response format by message ID
func (d *Dictionary) Response(id int) (*MessageFormat, bool) {
	f, ok := d.responsesByID[id]
	return f, ok
}

// CommandNames returns all command names, sorted
func (d *Dictionary) CommandNames() []string {
	names := make([]string, 0, len(d.commandsByName))
	for name := range d.commandsByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Constant returns a firmware constant from the config section
func (d *Dictionary) Constant(name string) (string, bool) {
	v, ok := d.Config[name]
	return v, ok
}

// EnumValue resolves a named enumeration entry (e.g. config_key
// "brightness") to its wire index
func (d *Dictionary) EnumValue(enum, name string) (int, bool) {
	values, ok := d.Enumerations[enum]
	if !ok {
		return 0, false
	}
	v, ok := values[name]
	return v, ok
}

// ParseArgs matches command-line arguments against the format's
// parameters. Arguments are either positional or "name=value"; named
// arguments may appear in any order.
func (f *MessageFormat) ParseArgs(argv []string) ([]Value, error) {
	supplied := make([]string, len(f.Params))
	used := make([]bool, len(f.Params))
	positional := 0

	for _, arg := range argv {
		if eq := strings.IndexByte(arg, '='); eq > 0 {
			if i := f.paramIndex(arg[:eq]); i >= 0 {
				supplied[i] = arg[eq+1:]
				used[i] = true
				continue
			}
		}
		for positional < len(f.Params) && used[positional] {
			positional++
		}
		if positional >= len(f.Params) {
			return nil, fmt.Errorf("%s: too many arguments", f.Name)
		}
		supplied[positional] = arg
		used[positional] = true
	}

	vals := make([]Value, 0, len(f.Params))
	for i, p := range f.Params {
		if !used[i] {
			return nil, fmt.Errorf("%s: missing argument %s", f.Name, p.Name)
		}
		v := Value{Param: p}
		switch p.Kind {
		case ParamUint:
			u, err := strconv.ParseUint(supplied[i], 0, 32)
			if err != nil {
				return nil, fmt.Errorf("%s: bad value for %s: %w", f.Name, p.Name, err)
			}
			v.Uint = uint32(u)
		case ParamByte:
			u, err := strconv.ParseUint(supplied[i], 0, 8)
			if err != nil {
				return nil, fmt.Errorf("%s: bad value for %s: %w", f.Name, p.Name, err)
			}
			v.Uint = uint32(u)
		case ParamInt:
			n, err := strconv.ParseInt(supplied[i], 0, 32)
			if err != nil {
				return nil, fmt.Errorf("%s: bad value for %s: %w", f.Name, p.Name, err)
			}
			v.Int = int32(n)
		case ParamString:
			v.Str = supplied[i]
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func (f *MessageFormat) paramIndex(name string) int {
	for i, p := range f.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Decode reads the format's parameters from a response payload (the
// message ID already consumed)
func (f *MessageFormat) Decode(payload []byte) (*Response, error) {
	r := &Response{Name: f.Name, Values: make([]Value, 0, len(f.Params))}
	data := payload
	for _, p := range f.Params {
		v := Value{Param: p}
		switch p.Kind {
		case ParamUint, ParamByte:
			u, err := protocol.DecodeVLQUint(&data)
			if err != nil {
				return nil, fmt.Errorf("%s: failed to decode %s: %w", f.Name, p.Name, err)
			}
			v.Uint = u
		case ParamInt:
			n, err := protocol.DecodeVLQInt(&data)
			if err != nil {
				return nil, fmt.Errorf("%s: failed to decode %s: %w", f.Name, p.Name, err)
			}
			v.Int = n
		case ParamString:
			s, err := protocol.DecodeVLQString(&data)
			if err != nil {
				return nil, fmt.Errorf("%s: failed to decode %s: %w", f.Name, p.Name, err)
			}
			v.Str = s
		}
		r.Values = append(r.Values, v)
	}
	return r, nil
}

// encodeValues writes parsed argument values in format order
func encodeValues(output protocol.OutputBuffer, vals []Value) {
	for _, v := range vals {
		switch v.Kind {
		case ParamUint, ParamByte:
			protocol.EncodeVLQUint(output, v.Uint)
		case ParamInt:
			protocol.EncodeVLQInt(output, v.Int)
		case ParamString:
			protocol.EncodeVLQString(output, v.Str)
		}
	}
}

// Get returns the named value
func (r *Response) Get(name string) (Value, bool) {
	for _, v := range r.Values {
		if v.Name == name {
			return v, true
		}
	}
	return Value{}, false
}

// Uint returns a named unsigned field, zero when absent
func (r *Response) Uint(name string) uint32 {
	v, _ := r.Get(name)
	return v.Uint
}

// Int returns a named signed field, zero when absent
func (r *Response) Int(name string) int32 {
	v, _ := r.Get(name)
	return v.Int
}

// Str returns a named string field, empty when absent
func (r *Response) Str(name string) string {
	v, _ := r.Get(name)
	return v.Str
}

// String renders the response the way it appears in the dictionary:
// name followed by key=value pairs
func (r *Response) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	for _, v := range r.Values {
		b.WriteByte(' ')
		b.WriteString(v.Name)
		b.WriteByte('=')
		switch v.Kind {
		case ParamUint, ParamByte:
			b.WriteString(strconv.FormatUint(uint64(v.Uint), 10))
		case ParamInt:
			b.WriteString(strconv.FormatInt(int64(v.Int), 10))
		case ParamString:
			b.WriteString(strconv.Quote(v.Str))
		}
	}
	return b.String()
}
