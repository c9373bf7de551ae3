package core

import (
	"bytes"
	"sync"

	"phasepwm/tinycompress"
)

// Constant represents a firmware constant exposed to the host
type Constant struct {
	Name  string
	Value interface{} // Can be string, int, etc.
}

// Dictionary manages the data dictionary the host retrieves with identify
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]*Constant
	commandReg    *CommandRegistry
	version       string
	buildVersions string
	cachedDict    []byte
	cachedZlib    []byte // cachedDict as served by identify
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary creates a new dictionary
func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]*Constant),
		commandReg:    cmdReg,
		version:       "phasepwm-0.1.0",
		buildVersions: "go-tinygo",
	}
}

// RegisterConstant registers a constant in the dictionary
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// AddConstant adds a constant to the dictionary and drops the cached copy
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = &Constant{
		Name:  name,
		Value: value,
	}
	d.cachedDict = nil
	d.cachedZlib = nil
}

// SetVersion sets the firmware version string
func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	d.cachedDict = nil
	d.cachedZlib = nil
}

// BuildDictionary builds and caches the dictionary (call after all commands registered)
func (d *Dictionary) BuildDictionary() {
	// Fetch from the registry before taking our own lock to keep lock order
	// registry -> dictionary everywhere
	commands, responses := d.commandReg.Signatures()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cachedDict = d.buildJSONLocked(commands, responses)

	var buf bytes.Buffer
	buf.Grow(tinycompress.EncodedLen(len(d.cachedDict)))
	if err := tinycompress.Encode(&buf, d.cachedDict); err != nil {
		// A bytes.Buffer write cannot fail; serve the JSON as is
		DebugPrintln("[BuildDict] compression failed: " + err.Error())
		d.cachedZlib = d.cachedDict
		return
	}
	d.cachedZlib = buf.Bytes()
	DebugPrintln("[BuildDict] " + itoa(len(d.cachedDict)) + " bytes, " + itoa(len(d.cachedZlib)) + " as zlib")
}

// Generate returns the dictionary as JSON, building it if needed
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cachedDict
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}
	d.BuildDictionary()

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cachedDict
}

// Compressed returns the zlib stream identify serves, building it if needed
func (d *Dictionary) Compressed() []byte {
	d.mu.RLock()
	cached := d.cachedZlib
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}
	d.BuildDictionary()

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cachedZlib
}

// buildJSONLocked builds the JSON dictionary (caller must hold lock)
// Built by hand to keep encoding/json and reflection out of the firmware
func (d *Dictionary) buildJSONLocked(commands map[string]int, responses map[string]int) []byte {
	result := make([]byte, 0, 1024)

	result = append(result, `{"version":"`...)
	result = append(result, d.version...)
	result = append(result, `","build_versions":"`...)
	result = append(result, d.buildVersions...)
	result = append(result, `","config":{`...)

	constNames := make([]string, 0, len(d.constants))
	for name := range d.constants {
		constNames = append(constNames, name)
	}
	sortStrings(constNames)

	for i, name := range constNames {
		if i > 0 {
			result = append(result, ',')
		}
		result = append(result, '"')
		result = append(result, name...)
		result = append(result, `":"`...)
		result = append(result, valueToString(d.constants[name].Value)...)
		result = append(result, '"')
	}

	result = append(result, `},"commands":{`...)
	result = appendMessages(result, commands)
	result = append(result, `},"responses":{`...)
	result = appendMessages(result, responses)
	result = append(result, `}}`...)
	return result
}

// appendMessages writes "format":id pairs ordered by id
func appendMessages(result []byte, messages map[string]int) []byte {
	byID := make(map[int]string, len(messages))
	ids := make([]int, 0, len(messages))
	for format, id := range messages {
		byID[id] = format
		ids = append(ids, id)
	}
	// Insertion sort; the list is short and this avoids pulling in sort
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}

	for i, id := range ids {
		if i > 0 {
			result = append(result, ',')
		}
		result = append(result, '"')
		result = append(result, byID[id]...)
		result = append(result, `":`...)
		result = append(result, itoa(id)...)
	}
	return result
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// GetChunk returns a chunk of the compressed dictionary starting at offset
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Compressed()
	if offset >= uint32(len(data)) {
		return []byte{}
	}

	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}

	// Return a copy: the transport may hold the chunk while the cache is rebuilt
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// GetGlobalDictionary returns the global dictionary instance
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}
