package timeline

// MinPeriodTicks is the shortest period that still leaves enough delay
// slack to pad any compiled period out to Capacity words.
func MinPeriodTicks(overhead uint32) uint32 {
	p := 4 * Capacity * overhead
	if p < Capacity {
		p = Capacity
	}
	return p
}

// PeriodForFrequency converts a PWM frequency into period ticks at the given
// engine clock and checks that the result can be encoded and padded.
func PeriodForFrequency(clockHz, hz, overhead uint32) (uint32, error) {
	if hz == 0 {
		return 0, ErrPeriodOutOfRange
	}
	period := clockHz / hz
	if period < MinPeriodTicks(overhead) || period > MaxDelay {
		return 0, ErrPeriodOutOfRange
	}
	return period, nil
}

// Pad grows a compiled buffer to exactly Capacity words without changing the
// waveform. Delay is split off the last commands into zero-delay fillers that
// repeat the same mask; a filler costs exactly one overhead, which is taken
// from the command it follows. The data transfer engine is armed once with a
// word count of Capacity, so every published buffer must be this long.
func Pad(buf *CommandBuffer, overhead uint32) error {
	n := buf.n
	if n == 0 {
		return ErrInsufficientSlack
	}
	missing := Capacity - n

	var split [Capacity]int
	for i := n - 1; i >= 0 && missing > 0; i-- {
		avail := missing
		if overhead > 0 {
			avail = min(int(buf.words[i].Delay()/overhead), missing)
		}
		split[i] = avail
		missing -= avail
	}
	if missing > 0 {
		return ErrInsufficientSlack
	}

	// Expand from the tail; write positions never drop below the read index
	w := Capacity - 1
	for i := n - 1; i >= 0; i-- {
		c := buf.words[i]
		for k := 0; k < split[i]; k++ {
			buf.words[w] = Pack(c.Mask(), 0)
			w--
		}
		buf.words[w] = Pack(c.Mask(), c.Delay()-uint32(split[i])*overhead)
		w--
	}
	buf.n = Capacity
	return nil
}
