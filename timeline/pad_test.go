package timeline

import "testing"

func TestPadPreservesWaveform(t *testing.T) {
	const period = 1200
	c := NewCompiler(period)
	var channels [NumChannels]ChannelConfig
	channels[0] = ChannelConfig{Phase: 0, Duty: 50}
	channels[3] = ChannelConfig{Phase: 90, Duty: 25}
	channels[6] = ChannelConfig{Phase: 300, Duty: 40}
	channels[9] = ChannelConfig{Phase: 0, Duty: 100}

	var compiled CommandBuffer
	if err := c.Compile(&channels, &compiled); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	padded := compiled
	if err := Pad(&padded, DefaultOverhead); err != nil {
		t.Fatalf("Pad failed: %v", err)
	}

	if padded.Len() != Capacity {
		t.Fatalf("expected %d words after padding, got %d", Capacity, padded.Len())
	}
	if a, b := compiled.Duration(DefaultOverhead), padded.Duration(DefaultOverhead); a != b {
		t.Fatalf("padding changed duration from %d to %d", a, b)
	}
	for tick := uint32(0); tick < compiled.Duration(DefaultOverhead); tick++ {
		want, _ := compiled.LevelsAt(tick, DefaultOverhead)
		got, ok := padded.LevelsAt(tick, DefaultOverhead)
		if !ok || got != want {
			t.Fatalf("tick %d: expected mask %#x, got %#x", tick, want, got)
		}
	}
}

func TestPadAtMinimumPeriod(t *testing.T) {
	period := MinPeriodTicks(DefaultOverhead)
	c := NewCompiler(period)
	var channels [NumChannels]ChannelConfig
	for ch := range channels {
		channels[ch] = ChannelConfig{Phase: float64(ch) * 35, Duty: 10 + float64(ch)*7}
	}

	var buf CommandBuffer
	if err := c.Compile(&channels, &buf); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	before := buf.Duration(DefaultOverhead)
	if err := Pad(&buf, DefaultOverhead); err != nil {
		t.Fatalf("Pad failed at minimum period: %v", err)
	}
	if buf.Duration(DefaultOverhead) != before {
		t.Errorf("padding changed duration")
	}
}

func TestPadInsufficientSlack(t *testing.T) {
	var buf CommandBuffer
	buf.Append(Pack(1, 10))
	if err := Pad(&buf, DefaultOverhead); err != ErrInsufficientSlack {
		t.Errorf("expected ErrInsufficientSlack, got %v", err)
	}

	var empty CommandBuffer
	if err := Pad(&empty, DefaultOverhead); err != ErrInsufficientSlack {
		t.Errorf("empty buffer: expected ErrInsufficientSlack, got %v", err)
	}
}

func TestPeriodForFrequency(t *testing.T) {
	period, err := PeriodForFrequency(125000000, 1000, DefaultOverhead)
	if err != nil || period != 125000 {
		t.Errorf("1 kHz: expected 125000, got %d (%v)", period, err)
	}

	for _, hz := range []uint32{0, 1, 10, 1000000} {
		if _, err := PeriodForFrequency(125000000, hz, DefaultOverhead); err != ErrPeriodOutOfRange {
			t.Errorf("%d Hz: expected ErrPeriodOutOfRange, got %v", hz, err)
		}
	}
}
