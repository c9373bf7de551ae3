package timeline

import "math"

// ChannelConfig is the committed setting of one output
type ChannelConfig struct {
	Phase float64 // Degrees in [0,360)
	Duty  float64 // Percent in [0,100]
}

// Store holds the last committed configuration of every channel.
// Out-of-range values are clamped, never rejected. Only the channel index
// is validated.
type Store struct {
	channels [NumChannels]ChannelConfig
}

// Set clamps and stores a channel configuration
func (s *Store) Set(channel int, phase, duty float64) error {
	if channel < 0 || channel >= NumChannels {
		return ErrInvalidChannel
	}
	s.channels[channel] = ChannelConfig{
		Phase: NormalizePhase(phase),
		Duty:  ClampDuty(duty),
	}
	return nil
}

// Get returns the stored configuration of a channel
func (s *Store) Get(channel int) (ChannelConfig, error) {
	if channel < 0 || channel >= NumChannels {
		return ChannelConfig{}, ErrInvalidChannel
	}
	return s.channels[channel], nil
}

// Snapshot copies the full channel state for a compilation pass
func (s *Store) Snapshot() [NumChannels]ChannelConfig {
	return s.channels
}

// Reset turns every channel off
func (s *Store) Reset() {
	s.channels = [NumChannels]ChannelConfig{}
}

// NormalizePhase wraps a phase into [0,360). Non-finite input maps to 0.
func NormalizePhase(phase float64) float64 {
	if math.IsNaN(phase) || math.IsInf(phase, 0) {
		return 0
	}
	p := math.Mod(phase, 360)
	if p < 0 {
		p += 360
	}
	// -tiny + 360 rounds up to exactly 360
	if p >= 360 {
		p = 0
	}
	return p
}

// ClampDuty saturates a duty cycle into [0,100]. NaN maps to 0.
func ClampDuty(duty float64) float64 {
	switch {
	case math.IsNaN(duty), duty < 0:
		return 0
	case duty > 100:
		return 100
	}
	return duty
}
