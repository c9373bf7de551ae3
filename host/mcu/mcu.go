package mcu

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"phasepwm/host/serial"
	"phasepwm/protocol"
)

var (
	ErrNotConnected  = errors.New("not connected to MCU")
	ErrNoDictionary  = errors.New("dictionary not loaded")
	ErrQueryTimeout  = errors.New("no matching response")
	ErrDictionaryEnd = errors.New("dictionary retrieval did not terminate")
)

const (
	identifyChunk    = 40
	maxIdentifyCalls = 1000

	DefaultQueryTimeout = time.Second
)

// MCU represents a connection to a phase PWM controller
type MCU struct {
	transport *protocol.HostTransport
	port      serial.Port

	dictionary     *Dictionary
	dictionaryData []byte

	// Log receives progress messages; nil discards them
	Log io.Writer

	// Serializes command/response pairs
	mu sync.Mutex

	connected bool
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{}
}

// Connect connects to an MCU via serial port
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to an MCU with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	m.ConnectPort(port)

	// Give the MCU time to initialize if it just powered on
	time.Sleep(100 * time.Millisecond)
	return nil
}

// ConnectPort attaches an already open port
func (m *MCU) ConnectPort(port serial.Port) {
	if err := port.Flush(); err != nil {
		m.logf("flush failed: %v\n", err)
	}
	m.port = port
	m.transport = protocol.NewHostTransport(port)
	m.connected = true
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	if !m.connected {
		return nil
	}
	m.connected = false
	return m.transport.Close()
}

func (m *MCU) logf(format string, args ...interface{}) {
	if m.Log != nil {
		fmt.Fprintf(m.Log, format, args...)
	}
}

// RetrieveDictionary fetches the dictionary with identify until a short
// chunk arrives
func (m *MCU) RetrieveDictionary() error {
	if !m.connected {
		return ErrNotConnected
	}

	m.logf("Retrieving dictionary from MCU...\n")

	var dictBuffer bytes.Buffer
	offset := uint32(0)
	done := false
	for i := 0; i < maxIdentifyCalls; i++ {
		chunk, err := m.sendIdentify(offset, identifyChunk)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", offset, err)
		}

		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))

		if len(chunk) < identifyChunk {
			done = true
			break
		}
	}
	if !done {
		return ErrDictionaryEnd
	}

	raw := dictBuffer.Bytes()
	m.logf("Dictionary retrieved: %d bytes\n", len(raw))

	data, err := inflate(raw)
	if err != nil {
		return fmt.Errorf("failed to decompress dictionary: %w", err)
	}
	m.logf("Dictionary decompressed: %d -> %d bytes\n", len(raw), len(data))
	m.dictionaryData = data

	dict, err := ParseDictionary(m.dictionaryData)
	if err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}
	m.dictionary = dict
	return nil
}

// inflate unpacks the zlib stream identify serves
func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// sendIdentify requests one dictionary chunk
func (m *MCU) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	resp, err := m.query(identifyFormat, []interface{}{offset, count}, identifyResponseFormat, DefaultQueryTimeout)
	if err != nil {
		return nil, err
	}
	respOffset := resp["offset"].(int64)
	if respOffset != int64(offset) {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}
	return resp["data"].([]byte), nil
}

// Dictionary returns the parsed dictionary
func (m *MCU) Dictionary() *Dictionary {
	return m.dictionary
}

// DictionaryRaw returns the raw dictionary JSON
func (m *MCU) DictionaryRaw() []byte {
	return m.dictionaryData
}

// PrintDictionary prints a summary of the dictionary
func (m *MCU) PrintDictionary(w io.Writer) {
	if m.dictionary == nil {
		fmt.Fprintln(w, "No dictionary loaded")
		return
	}
	m.dictionary.Print(w)
}

// Send sends a command by name and waits for its ACK
func (m *MCU) Send(name string, args ...interface{}) error {
	f, err := m.commandFormat(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send(f, args)
}

// Query sends a command and returns the decoded arguments of the first
// response named respName. Other responses are discarded.
func (m *MCU) Query(name string, args []interface{}, respName string, timeout time.Duration) (map[string]interface{}, error) {
	f, err := m.commandFormat(name)
	if err != nil {
		return nil, err
	}
	rf, ok := m.dictionary.Response(respName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrUnknownMessage, respName)
	}
	return m.query(f, args, rf, timeout)
}

func (m *MCU) commandFormat(name string) (*protocol.MessageFormat, error) {
	if !m.connected {
		return nil, ErrNotConnected
	}
	if m.dictionary == nil {
		return nil, ErrNoDictionary
	}
	f, ok := m.dictionary.Command(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrUnknownMessage, name)
	}
	return f, nil
}

// send encodes the arguments first so a bad argument never reaches the wire
func (m *MCU) send(f *protocol.MessageFormat, args []interface{}) error {
	scratch := protocol.NewScratchOutput()
	if err := f.EncodeArgs(scratch, args...); err != nil {
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	encoded := scratch.Result()
	return m.transport.SendCommand(f.ID, func(output protocol.OutputBuffer) {
		output.Output(encoded)
	})
}

func (m *MCU) query(f *protocol.MessageFormat, args []interface{}, rf *protocol.MessageFormat, timeout time.Duration) (map[string]interface{}, error) {
	if !m.connected {
		return nil, ErrNotConnected
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.transport.FlushResponses()
	if err := m.send(f, args); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrQueryTimeout, rf.Name)
		}
		frame, err := m.transport.ReceiveResponse(remaining)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrQueryTimeout, rf.Name, err)
		}

		payload := frame.Payload
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil || uint16(id) != rf.ID {
			continue
		}
		return rf.Decode(&payload)
	}
}

// Constant returns a dictionary constant
func (m *MCU) Constant(name string) (string, bool) {
	if m.dictionary == nil {
		return "", false
	}
	return m.dictionary.Constant(name)
}

// IsConnected returns whether the MCU is connected
func (m *MCU) IsConnected() bool {
	return m.connected
}
