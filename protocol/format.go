package protocol

import (
	"errors"
	"strings"
)

var (
	ErrBadFormat      = errors.New("malformed message format")
	ErrArgCount       = errors.New("wrong number of message arguments")
	ErrArgType        = errors.New("unsupported message argument type")
	ErrUnknownMessage = errors.New("unknown message")
)

// ParamType is the wire type of one message parameter
type ParamType uint8

const (
	ParamUint  ParamType = iota // %u, %c, %hu
	ParamInt                    // %i, %hi
	ParamBytes                  // %*s, %.*s, %s
)

// Param is one name=%x pair of a message format
type Param struct {
	Name string
	Type ParamType
}

// MessageFormat is a parsed dictionary entry such as
// "set_phase_pwm channel=%c phase=%i duty=%u"
type MessageFormat struct {
	ID     uint16
	Name   string
	Params []Param
}

// ParseMessageFormat parses a dictionary format string
func ParseMessageFormat(id uint16, format string) (*MessageFormat, error) {
	fields := strings.Fields(format)
	if len(fields) == 0 {
		return nil, ErrBadFormat
	}

	m := &MessageFormat{ID: id, Name: fields[0]}
	for _, field := range fields[1:] {
		eq := strings.IndexByte(field, '=')
		if eq <= 0 {
			return nil, ErrBadFormat
		}
		var typ ParamType
		switch field[eq+1:] {
		case "%u", "%c", "%hu":
			typ = ParamUint
		case "%i", "%hi":
			typ = ParamInt
		case "%*s", "%.*s", "%s":
			typ = ParamBytes
		default:
			return nil, ErrBadFormat
		}
		m.Params = append(m.Params, Param{Name: field[:eq], Type: typ})
	}
	return m, nil
}

// String renders the format with canonical type codes
func (m *MessageFormat) String() string {
	var b strings.Builder
	b.WriteString(m.Name)
	for _, p := range m.Params {
		b.WriteByte(' ')
		b.WriteString(p.Name)
		switch p.Type {
		case ParamUint:
			b.WriteString("=%u")
		case ParamInt:
			b.WriteString("=%i")
		default:
			b.WriteString("=%*s")
		}
	}
	return b.String()
}

// Encode writes the message ID and its arguments. Integer arguments may be
// any Go integer type; byte arguments are []byte or string.
func (m *MessageFormat) Encode(output OutputBuffer, args ...interface{}) error {
	if len(args) != len(m.Params) {
		return ErrArgCount
	}
	EncodeVLQUint(output, uint32(m.ID))
	return m.EncodeArgs(output, args...)
}

// EncodeArgs writes only the arguments, for transports that frame the ID
func (m *MessageFormat) EncodeArgs(output OutputBuffer, args ...interface{}) error {
	if len(args) != len(m.Params) {
		return ErrArgCount
	}
	for i, p := range m.Params {
		if p.Type == ParamBytes {
			switch v := args[i].(type) {
			case []byte:
				EncodeVLQBytes(output, v)
			case string:
				EncodeVLQBytes(output, []byte(v))
			default:
				return ErrArgType
			}
			continue
		}
		v, ok := toInt64(args[i])
		if !ok {
			return ErrArgType
		}
		EncodeVLQInt(output, int32(v))
	}
	return nil
}

// Decode reads the arguments of a payload whose message ID has already been
// consumed. Integers decode to int64, byte strings to []byte.
func (m *MessageFormat) Decode(data *[]byte) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(m.Params))
	for _, p := range m.Params {
		switch p.Type {
		case ParamUint:
			v, err := DecodeVLQUint(data)
			if err != nil {
				return nil, err
			}
			values[p.Name] = int64(v)
		case ParamInt:
			v, err := DecodeVLQInt(data)
			if err != nil {
				return nil, err
			}
			values[p.Name] = int64(v)
		default:
			v, err := DecodeVLQBytes(data)
			if err != nil {
				return nil, err
			}
			values[p.Name] = append([]byte(nil), v...)
		}
	}
	return values, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
