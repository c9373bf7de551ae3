package mcu

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"phasepwm/protocol"
)

// Bootstrap message IDs every firmware registers first
const (
	identifyResponseID = 0
	identifyID         = 1
)

var (
	identifyFormat         = mustFormat(identifyID, "identify offset=%u count=%c")
	identifyResponseFormat = mustFormat(identifyResponseID, "identify_response offset=%u data=%*s")
)

func mustFormat(id uint16, format string) *protocol.MessageFormat {
	f, err := protocol.ParseMessageFormat(id, format)
	if err != nil {
		panic(err)
	}
	return f
}

// Dictionary represents the parsed MCU dictionary
type Dictionary struct {
	Version       string            `json:"version"`
	BuildVersions string            `json:"build_versions"`
	Config        map[string]string `json:"config"`
	Commands      map[string]int    `json:"commands"`
	Responses     map[string]int    `json:"responses"`

	commands      map[string]*protocol.MessageFormat
	responses     map[string]*protocol.MessageFormat
	responsesByID map[uint16]*protocol.MessageFormat
}

// ParseDictionary decodes the identify JSON and parses every message format
func ParseDictionary(data []byte) (*Dictionary, error) {
	d := &Dictionary{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	d.commands = make(map[string]*protocol.MessageFormat, len(d.Commands))
	for format, id := range d.Commands {
		f, err := protocol.ParseMessageFormat(uint16(id), format)
		if err != nil {
			return nil, fmt.Errorf("command %q: %w", format, err)
		}
		d.commands[f.Name] = f
	}

	d.responses = make(map[string]*protocol.MessageFormat, len(d.Responses))
	d.responsesByID = make(map[uint16]*protocol.MessageFormat, len(d.Responses))
	for format, id := range d.Responses {
		f, err := protocol.ParseMessageFormat(uint16(id), format)
		if err != nil {
			return nil, fmt.Errorf("response %q: %w", format, err)
		}
		d.responses[f.Name] = f
		d.responsesByID[f.ID] = f
	}
	return d, nil
}

// Command returns the format of a host-to-MCU command
func (d *Dictionary) Command(name string) (*protocol.MessageFormat, bool) {
	f, ok := d.commands[name]
	return f, ok
}

// Response returns the format of an MCU-to-host response
func (d *Dictionary) Response(name string) (*protocol.MessageFormat, bool) {
	f, ok := d.responses[name]
	return f, ok
}

// ResponseByID looks a response up by its message ID
func (d *Dictionary) ResponseByID(id uint16) (*protocol.MessageFormat, bool) {
	f, ok := d.responsesByID[id]
	return f, ok
}

// Constant returns a config constant as a string
func (d *Dictionary) Constant(name string) (string, bool) {
	v, ok := d.Config[name]
	return v, ok
}

// ConstantInt returns a numeric config constant
func (d *Dictionary) ConstantInt(name string) (int64, error) {
	v, ok := d.Config[name]
	if !ok {
		return 0, fmt.Errorf("constant %s not in dictionary", name)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("constant %s: %w", name, err)
	}
	return n, nil
}

// Print writes a summary of the dictionary, messages ordered by ID
func (d *Dictionary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== MCU Dictionary ===")
	fmt.Fprintf(w, "Version: %s\n", d.Version)
	fmt.Fprintf(w, "Build: %s\n", d.BuildVersions)

	names := make([]string, 0, len(d.Config))
	for k := range d.Config {
		names = append(names, k)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "\nConfig:")
	for _, k := range names {
		fmt.Fprintf(w, "  %s = %s\n", k, d.Config[k])
	}

	fmt.Fprintf(w, "\nCommands (%d):\n", len(d.commands))
	printFormats(w, d.commands)
	fmt.Fprintf(w, "\nResponses (%d):\n", len(d.responses))
	printFormats(w, d.responses)
}

func printFormats(w io.Writer, formats map[string]*protocol.MessageFormat) {
	list := make([]*protocol.MessageFormat, 0, len(formats))
	for _, f := range formats {
		list = append(list, f)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	for _, f := range list {
		fmt.Fprintf(w, "  [%d] %s\n", f.ID, f)
	}
}
