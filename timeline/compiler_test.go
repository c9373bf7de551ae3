package timeline

import (
	"math/rand"
	"testing"
)

const testPeriod = 125000 // 125 MHz engine clock at 1 kHz

func compileOne(t *testing.T, c *Compiler, channels [NumChannels]ChannelConfig) *CommandBuffer {
	t.Helper()
	var buf CommandBuffer
	if err := c.Compile(&channels, &buf); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return &buf
}

func TestCommandWireLayout(t *testing.T) {
	if got := Pack(0x3FF, 1); got != 0x7FF {
		t.Errorf("Pack(0x3FF, 1): expected 0x7FF, got %#x", uint32(got))
	}
	if got := Pack(0x001, MaxDelay); got != 0xFFFFFC01 {
		t.Errorf("Pack(1, MaxDelay): expected 0xFFFFFC01, got %#x", uint32(got))
	}

	c := Pack(0x2A5, 62497)
	if c.Mask() != 0x2A5 || c.Delay() != 62497 {
		t.Errorf("unpack mismatch: mask=%#x delay=%d", c.Mask(), c.Delay())
	}
	if c.Cycles(DefaultOverhead) != 62500 {
		t.Errorf("expected 62500 cycles, got %d", c.Cycles(DefaultOverhead))
	}
}

func TestCompileHalfDutyAtZeroPhase(t *testing.T) {
	c := NewCompiler(testPeriod)
	var channels [NumChannels]ChannelConfig
	channels[0] = ChannelConfig{Phase: 0, Duty: 50}

	buf := compileOne(t, c, channels)

	events := c.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0] != (Event{Tick: 0, Channel: 0, Edge: Rising}) {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1] != (Event{Tick: 62500, Channel: 0, Edge: Falling}) {
		t.Errorf("unexpected second event: %+v", events[1])
	}

	want := []Command{Pack(1, 62497), Pack(0, 62497)}
	got := buf.Commands()
	if len(got) != len(want) {
		t.Fatalf("expected %d commands, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d: expected mask=%#x delay=%d, got mask=%#x delay=%d",
				i, want[i].Mask(), want[i].Delay(), got[i].Mask(), got[i].Delay())
		}
	}
	if d := buf.Duration(DefaultOverhead); d != testPeriod {
		t.Errorf("expected duration %d, got %d", testPeriod, d)
	}
}

func TestCompileAllOff(t *testing.T) {
	c := NewCompiler(testPeriod)
	buf := compileOne(t, c, [NumChannels]ChannelConfig{})

	if buf.Len() != 1 {
		t.Fatalf("expected exactly one command, got %d", buf.Len())
	}
	cmd := buf.At(0)
	if cmd.Mask() != 0 {
		t.Errorf("expected mask 0, got %#x", cmd.Mask())
	}
	if cmd.Cycles(DefaultOverhead) != testPeriod {
		t.Errorf("expected command to span %d cycles, got %d", testPeriod, cmd.Cycles(DefaultOverhead))
	}
}

func TestCompileWrappedWindow(t *testing.T) {
	c := NewCompiler(testPeriod)
	var channels [NumChannels]ChannelConfig
	channels[4] = ChannelConfig{Phase: 270, Duty: 50}

	buf := compileOne(t, c, channels)

	if c.InitialMask()&(1<<4) == 0 {
		t.Errorf("expected channel 4 high at tick 0, initial mask %#x", c.InitialMask())
	}
	events := c.Events()
	if len(events) != 2 || events[0].Edge != Falling || events[1].Edge != Rising {
		t.Fatalf("expected falling before rising, got %+v", events)
	}
	if events[0].Tick != 31250 || events[1].Tick != 93750 {
		t.Errorf("unexpected edge ticks: %+v", events)
	}

	checks := []struct {
		tick uint32
		high bool
	}{
		{0, true}, {31249, true}, {31250, false}, {93749, false}, {93750, true}, {124999, true},
	}
	for _, ck := range checks {
		mask, ok := buf.LevelsAt(ck.tick, DefaultOverhead)
		if !ok {
			t.Fatalf("tick %d outside compiled period", ck.tick)
		}
		if high := mask&(1<<4) != 0; high != ck.high {
			t.Errorf("tick %d: expected high=%v, got mask %#x", ck.tick, ck.high, mask)
		}
	}
}

func TestCompileMergedMaskShiftsStates(t *testing.T) {
	// With merge-then-emit, the window starting at tick 0 collapses: the
	// interval [0, 62500) is written with the post-fall mask.
	c := NewCompiler(testPeriod)
	c.Mode = EmitMergedMask
	var channels [NumChannels]ChannelConfig
	channels[0] = ChannelConfig{Phase: 0, Duty: 50}

	buf := compileOne(t, c, channels)
	for i, cmd := range buf.Commands() {
		if cmd.Mask() != 0 {
			t.Errorf("command %d: expected merged mode to emit mask 0, got %#x", i, cmd.Mask())
		}
	}

	c.Mode = EmitPriorMask
	buf = compileOne(t, c, channels)
	if buf.At(0).Mask() != 1 {
		t.Errorf("prior mode: expected first interval high, got mask %#x", buf.At(0).Mask())
	}
}

func TestCompileFullAndZeroDuty(t *testing.T) {
	c := NewCompiler(testPeriod)
	var channels [NumChannels]ChannelConfig
	channels[1] = ChannelConfig{Phase: 45, Duty: 100}
	channels[2] = ChannelConfig{Phase: 90, Duty: 0}
	channels[3] = ChannelConfig{Phase: 10, Duty: 30}
	channels[7] = ChannelConfig{Phase: 300, Duty: 75}

	buf := compileOne(t, c, channels)
	for i, cmd := range buf.Commands() {
		if cmd.Mask()&(1<<1) == 0 {
			t.Errorf("command %d: full-duty channel low (mask %#x)", i, cmd.Mask())
		}
		if cmd.Mask()&(1<<2) != 0 {
			t.Errorf("command %d: zero-duty channel high (mask %#x)", i, cmd.Mask())
		}
	}
	for _, ev := range c.Events() {
		if ev.Channel == 1 || ev.Channel == 2 {
			t.Errorf("constant channel %d produced event %+v", ev.Channel, ev)
		}
	}
}

func TestCompileTinyWindowStaysLow(t *testing.T) {
	c := NewCompiler(1200)
	var channels [NumChannels]ChannelConfig
	channels[5] = ChannelConfig{Phase: 180, Duty: 0.01}

	buf := compileOne(t, c, channels)
	for i, cmd := range buf.Commands() {
		if cmd.Mask() != 0 {
			t.Errorf("command %d: zero-width window produced mask %#x", i, cmd.Mask())
		}
	}
}

func TestCompileSubOverheadEdges(t *testing.T) {
	c := NewCompiler(1200)
	var channels [NumChannels]ChannelConfig
	channels[0] = ChannelConfig{Phase: 0, Duty: 0.1} // one tick wide

	buf := compileOne(t, c, channels)
	want := []Command{Pack(1, 0), Pack(0, 1194)}
	got := buf.Commands()
	if len(got) != len(want) {
		t.Fatalf("expected %d commands, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d: expected %#x, got %#x", i, uint32(want[i]), uint32(got[i]))
		}
	}
	if d := buf.Duration(DefaultOverhead); d != 1200 {
		t.Errorf("expected duration 1200, got %d", d)
	}
}

func TestCompileDurationWithinOverhead(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, period := range []uint32{480, 1200, 4999, testPeriod, MaxDelay} {
		c := NewCompiler(period)
		for iter := 0; iter < 200; iter++ {
			var channels [NumChannels]ChannelConfig
			for ch := range channels {
				channels[ch] = ChannelConfig{
					Phase: rng.Float64() * 360,
					Duty:  rng.Float64() * 100,
				}
				// Bunch some edges together to exercise merging
				if rng.Intn(4) == 0 {
					channels[ch].Phase = 0
				}
			}

			var buf CommandBuffer
			if err := c.Compile(&channels, &buf); err != nil {
				t.Fatalf("period %d: compile failed: %v", period, err)
			}

			d := int64(buf.Duration(DefaultOverhead))
			if diff := d - int64(period); diff > DefaultOverhead || diff < -DefaultOverhead {
				t.Fatalf("period %d: duration %d off by %d", period, d, diff)
			}

			events := c.Events()
			for i := 1; i < len(events); i++ {
				if events[i].Tick < events[i-1].Tick {
					t.Fatalf("events out of order at %d: %+v", i, events)
				}
			}
			if buf.Len() > 2*NumChannels+1 {
				t.Fatalf("unexpected command count %d", buf.Len())
			}
		}
	}
}

func TestCompileIdempotent(t *testing.T) {
	c := NewCompiler(testPeriod)
	var channels [NumChannels]ChannelConfig
	for ch := range channels {
		channels[ch] = ChannelConfig{Phase: float64(ch) * 33, Duty: float64(ch) * 9}
	}

	a := compileOne(t, c, channels)
	b := compileOne(t, c, channels)
	if *a.Words() != *b.Words() || a.Len() != b.Len() {
		t.Errorf("compiling unchanged state produced different buffers")
	}
}

func TestCompileRejectsBadPeriod(t *testing.T) {
	var buf CommandBuffer
	var channels [NumChannels]ChannelConfig
	for _, period := range []uint32{0, MaxDelay + 1} {
		c := NewCompiler(period)
		if err := c.Compile(&channels, &buf); err != ErrPeriodOutOfRange {
			t.Errorf("period %d: expected ErrPeriodOutOfRange, got %v", period, err)
		}
	}
}

func TestCommandBufferCapacity(t *testing.T) {
	var buf CommandBuffer
	for i := 0; i < Capacity; i++ {
		if err := buf.Append(Pack(0, uint32(i))); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}
	if err := buf.Append(Pack(0, 0)); err != ErrCapacityExceeded {
		t.Errorf("expected ErrCapacityExceeded, got %v", err)
	}
	if buf.Len() != Capacity {
		t.Errorf("overflow changed length to %d", buf.Len())
	}
}
