package main

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasepwm/host/mcu"
	"phasepwm/host/profile"
)

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("250")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	d, err = parseDuration("1.5s")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	_, err = parseDuration("-1s")
	assert.Error(t, err)
	_, err = parseDuration("soon")
	assert.Error(t, err)
}

func TestParseSetting(t *testing.T) {
	ch, phase, duty, err := parseSetting([]string{"4", "-90", "12.5"})
	require.NoError(t, err)
	assert.Equal(t, 4, ch)
	assert.Equal(t, -90.0, phase)
	assert.Equal(t, 12.5, duty)

	_, _, _, err = parseSetting([]string{"x", "0", "0"})
	assert.EqualError(t, err, `invalid channel "x"`)
	_, _, _, err = parseSetting([]string{"1", "0", "half"})
	assert.EqualError(t, err, `invalid duty "half"`)
}

func TestWindowBarWraps(t *testing.T) {
	bar := windowBar(270, 50, 8)
	assert.Equal(t, 8, utf8.RuneCountInString(bar))
	assert.Equal(t, "██····██", bar)

	assert.Equal(t, "····", windowBar(0, 0, 4))
	assert.Equal(t, "████", windowBar(90, 100, 4))
}

func TestPrintCompiled(t *testing.T) {
	p, err := profile.Parse([]byte(`{"channels":[{"channel":0,"phase":0,"duty":50}]}`), profile.FormatJSON)
	require.NoError(t, err)
	c, err := p.Compile()
	require.NoError(t, err)

	var out bytes.Buffer
	printCompiled(&out, c)
	text := out.String()
	assert.Contains(t, text, "Period: 125000 ticks, 2 commands before padding")
	assert.Contains(t, text, "tick 0          ch0  rising")
	assert.Contains(t, text, "tick 62500      ch0  falling")
	assert.Contains(t, text, "Total: 125000 ticks")
	assert.Equal(t, 40, strings.Count(text, "mask="))
}

func TestShellWithoutBoard(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		"",
		"# comment",
		"help",
		"bogus",
		"set 1 2",
		`ramp "1`,
		"quit",
		"stop",
	}, "\n"))

	var out bytes.Buffer
	require.NoError(t, runShell(nil, in, &out))
	text := out.String()
	assert.Contains(t, text, "Available commands:")
	assert.Contains(t, text, "Unknown command: bogus")
	assert.Contains(t, text, "Usage: set CH PHASE DUTY")
	assert.Contains(t, text, "Error: ")
	assert.NotContains(t, text, "> ")
}

func TestPrintFaults(t *testing.T) {
	var out bytes.Buffer
	printFaults(&out, mcu.Faults{Active: 1<<3 | 1<<9, Tripped: 1 << 3})
	assert.Equal(t, "Faults:      active 3,9  tripped 3\n", out.String())

	out.Reset()
	printFaults(&out, mcu.Faults{})
	assert.Equal(t, "Faults:      active none  tripped none\n", out.String())
}
