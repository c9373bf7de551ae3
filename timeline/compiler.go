package timeline

// Edge is the direction of a channel transition
type Edge uint8

const (
	Rising Edge = iota
	Falling
)

func (e Edge) String() string {
	if e == Rising {
		return "rising"
	}
	return "falling"
}

// Event is a single channel transition within one period
type Event struct {
	Tick    uint32
	Channel uint8
	Edge    Edge
}

// less orders events by tick. At equal ticks rising edges go first so that a
// window that rounds down to zero ticks nets out low.
func (e Event) less(o Event) bool {
	if e.Tick != o.Tick {
		return e.Tick < o.Tick
	}
	if e.Edge != o.Edge {
		return e.Edge < o.Edge
	}
	return e.Channel < o.Channel
}

// EmitMode selects which mask a command carries when it closes the interval
// that ends at a boundary.
type EmitMode uint8

const (
	// EmitPriorMask writes the mask that was in force during the interval,
	// then merges the edges at the boundary.
	EmitPriorMask EmitMode = iota

	// EmitMergedMask merges the boundary's edges first and writes the
	// merged mask for the preceding interval. This shifts every state by
	// one interval and is kept only for compatibility with older firmware.
	EmitMergedMask
)

func (m EmitMode) String() string {
	if m == EmitMergedMask {
		return "merged"
	}
	return "prior"
}

// Compiler turns a channel snapshot into one period of commands.
// It keeps its event scratch space between runs so compiling does not
// allocate.
type Compiler struct {
	PeriodTicks uint32
	Overhead    uint32
	Mode        EmitMode

	events  [maxEvents]Event
	nevents int
	initial uint16
}

// NewCompiler returns a compiler for the given period using the sequencer's
// default per-command overhead.
func NewCompiler(periodTicks uint32) *Compiler {
	return &Compiler{PeriodTicks: periodTicks, Overhead: DefaultOverhead}
}

// Events returns the sorted edge list from the last compilation
func (c *Compiler) Events() []Event {
	return c.events[:c.nevents]
}

// InitialMask returns the output levels at tick 0 from the last compilation
func (c *Compiler) InitialMask() uint16 {
	return c.initial
}

// Compile writes one period of commands for the given channels into out.
// The buffer is reset first. An error leaves out in an unspecified state and
// must not be published.
func (c *Compiler) Compile(channels *[NumChannels]ChannelConfig, out *CommandBuffer) error {
	if c.PeriodTicks == 0 || c.PeriodTicks > MaxDelay {
		return ErrPeriodOutOfRange
	}
	out.Reset()
	c.collect(channels)
	c.sort()

	period := c.PeriodTicks
	mask := c.initial
	var elapsed uint32 // cycles the sequencer has consumed so far

	for i := 0; i < c.nevents; {
		tick := c.events[i].Tick

		// Gather every edge sharing this tick
		j := i
		merged := mask
		for j < c.nevents && c.events[j].Tick == tick {
			merged = apply(merged, c.events[j])
			j++
		}

		if tick > elapsed {
			emitted := mask
			if c.Mode == EmitMergedMask {
				emitted = merged
			}
			delay := c.delayFor(tick - elapsed)
			if err := out.Append(Pack(emitted, delay)); err != nil {
				return err
			}
			elapsed += delay + c.Overhead
		}
		mask = merged
		i = j
	}

	// Trailing fill to the end of the period
	if period > elapsed && period-elapsed > c.Overhead {
		if err := out.Append(Pack(mask, period-elapsed-c.Overhead)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) delayFor(delta uint32) uint32 {
	if delta <= c.Overhead {
		return 0
	}
	return delta - c.Overhead
}

// collect builds the edge list and the tick-0 mask
func (c *Compiler) collect(channels *[NumChannels]ChannelConfig) {
	c.nevents = 0
	c.initial = 0
	period := float64(c.PeriodTicks)

	for ch := 0; ch < NumChannels; ch++ {
		cfg := channels[ch]
		bit := uint16(1) << ch
		switch {
		case cfg.Duty <= 0:
			continue
		case cfg.Duty >= 100:
			c.initial |= bit
			continue
		}

		start := uint32(cfg.Phase / 360 * period)
		on := uint32(cfg.Duty / 100 * period)
		if start >= c.PeriodTicks {
			start = c.PeriodTicks - 1
		}
		end := (start + on) % c.PeriodTicks

		// The active window runs across the period boundary, so the
		// output is already high at tick 0.
		if start+on > c.PeriodTicks {
			c.initial |= bit
		}

		c.events[c.nevents] = Event{Tick: start, Channel: uint8(ch), Edge: Rising}
		c.events[c.nevents+1] = Event{Tick: end, Channel: uint8(ch), Edge: Falling}
		c.nevents += 2
	}
}

// sort orders the events in place. The list is at most a few dozen entries,
// so insertion sort keeps this allocation free.
func (c *Compiler) sort() {
	for i := 1; i < c.nevents; i++ {
		ev := c.events[i]
		j := i - 1
		for j >= 0 && ev.less(c.events[j]) {
			c.events[j+1] = c.events[j]
			j--
		}
		c.events[j+1] = ev
	}
}

func apply(mask uint16, ev Event) uint16 {
	bit := uint16(1) << ev.Channel
	if ev.Edge == Rising {
		return mask | bit
	}
	return mask &^ bit
}
