// Package profile loads saved channel settings for the phase PWM board.
// Profiles are JSON for editing by hand or CBOR for compact storage.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/multierr"

	"phasepwm/timeline"
)

const (
	DefaultFrequencyHz = 1000
	DefaultClockHz     = 125000000
)

var ErrUnknownFormat = errors.New("unknown profile format")

// Channel is one output's saved setting
type Channel struct {
	Channel int     `json:"channel" cbor:"1,keyasint"`
	Phase   float64 `json:"phase" cbor:"2,keyasint"` // Degrees
	Duty    float64 `json:"duty" cbor:"3,keyasint"`  // Percent
	RampMS  uint32  `json:"ramp_ms,omitempty" cbor:"4,keyasint,omitempty"`
}

// Profile is a complete board setting
type Profile struct {
	Name        string    `json:"name,omitempty" cbor:"1,keyasint,omitempty"`
	FrequencyHz uint32    `json:"frequency_hz" cbor:"2,keyasint"`
	ClockHz     uint32    `json:"clock_hz,omitempty" cbor:"3,keyasint,omitempty"`
	Channels    []Channel `json:"channels" cbor:"4,keyasint"`
}

// Format selects the encoding of a profile file
type Format int

const (
	FormatJSON Format = iota
	FormatCBOR
)

// FormatForPath picks the encoding from the file extension
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".cbor":
		return FormatCBOR, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Parse decodes, defaults and validates a profile
func Parse(data []byte, format Format) (*Profile, error) {
	var p Profile
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &p)
	case FormatCBOR:
		err = cbor.Unmarshal(data, &p)
	default:
		return nil, ErrUnknownFormat
	}
	if err != nil {
		return nil, err
	}

	applyDefaults(&p)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads a profile file
func Load(path string) (*Profile, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Marshal encodes a profile
func (p *Profile) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(p, "", "  ")
	case FormatCBOR:
		return cbor.Marshal(p)
	}
	return nil, ErrUnknownFormat
}

// Save writes a profile in the encoding its extension names
func (p *Profile) Save(path string) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	data, err := p.Marshal(format)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyDefaults fills in missing values
func applyDefaults(p *Profile) {
	if p.FrequencyHz == 0 {
		p.FrequencyHz = DefaultFrequencyHz
	}
	if p.ClockHz == 0 {
		p.ClockHz = DefaultClockHz
	}
}

// Validate reports every problem with the profile at once
func (p *Profile) Validate() error {
	var err error
	if _, perr := timeline.PeriodForFrequency(p.ClockHz, p.FrequencyHz, timeline.DefaultOverhead); perr != nil {
		err = multierr.Append(err, fmt.Errorf("frequency %d Hz: %w", p.FrequencyHz, perr))
	}

	seen := make(map[int]bool, len(p.Channels))
	for _, ch := range p.Channels {
		if ch.Channel < 0 || ch.Channel >= timeline.NumChannels {
			err = multierr.Append(err, fmt.Errorf("channel %d: %w", ch.Channel, timeline.ErrInvalidChannel))
			continue
		}
		if seen[ch.Channel] {
			err = multierr.Append(err, fmt.Errorf("channel %d listed twice", ch.Channel))
		}
		seen[ch.Channel] = true

		if math.IsNaN(ch.Phase) || math.IsInf(ch.Phase, 0) {
			err = multierr.Append(err, fmt.Errorf("channel %d: phase must be finite", ch.Channel))
		}
		if math.IsNaN(ch.Duty) || ch.Duty < 0 || ch.Duty > 100 {
			err = multierr.Append(err, fmt.Errorf("channel %d: duty %v outside 0-100%%", ch.Channel, ch.Duty))
		}
	}
	return err
}

// Snapshot returns the profile as a full channel array; unlisted channels
// are off
func (p *Profile) Snapshot() [timeline.NumChannels]timeline.ChannelConfig {
	var s timeline.Store
	for _, ch := range p.Channels {
		// Validate has already bounded the index
		_ = s.Set(ch.Channel, ch.Phase, ch.Duty)
	}
	return s.Snapshot()
}

// Compiled is one period of the profile as the firmware would publish it
type Compiled struct {
	PeriodTicks uint32
	Logical     int // Commands before padding
	InitialMask uint16
	Events      []timeline.Event
	Buffer      timeline.CommandBuffer
}

// Compile renders the profile into one padded command buffer
func (p *Profile) Compile() (*Compiled, error) {
	period, err := timeline.PeriodForFrequency(p.ClockHz, p.FrequencyHz, timeline.DefaultOverhead)
	if err != nil {
		return nil, err
	}
	channels := p.Snapshot()
	compiler := timeline.NewCompiler(period)

	out := &Compiled{PeriodTicks: period}
	if err := compiler.Compile(&channels, &out.Buffer); err != nil {
		return nil, err
	}
	out.Logical = out.Buffer.Len()
	out.InitialMask = compiler.InitialMask()
	out.Events = append([]timeline.Event(nil), compiler.Events()...)

	if err := timeline.Pad(&out.Buffer, compiler.Overhead); err != nil {
		return nil, err
	}
	return out, nil
}
