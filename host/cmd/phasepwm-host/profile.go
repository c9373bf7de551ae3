package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"phasepwm/host/mcu"
	"phasepwm/host/profile"
	"phasepwm/timeline"
)

var applyCmd = &cobra.Command{
	Use:   "apply PROFILE",
	Short: "Send a profile's frequency and channel settings",
	Long: `Send a saved profile to the board. PROFILE is a .json or .cbor file.
Channels with ramp_ms set are ramped; the rest are set directly. Channels
the profile does not list are left as they are.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := profile.Load(args[0])
		if err != nil {
			return err
		}
		return withMCU(func(m *mcu.MCU) error { return applyProfile(m, p) })
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview PROFILE",
	Short: "Compile a profile offline and print its command words",
	Long: `Compile a profile exactly as the firmware would and print the padded
command buffer: one line per word with the pin mask, the encoded delay and
the tick at which the word starts. No board is needed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := profile.Load(args[0])
		if err != nil {
			return err
		}
		c, err := p.Compile()
		if err != nil {
			return err
		}
		printCompiled(os.Stdout, c)
		return nil
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert IN OUT",
	Short: "Convert a profile between JSON and CBOR",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := profile.Load(args[0])
		if err != nil {
			return err
		}
		return p.Save(args[1])
	},
}

func init() {
	rootCmd.AddCommand(applyCmd, previewCmd, convertCmd)
}

func applyProfile(m *mcu.MCU, p *profile.Profile) error {
	if clock, ok := m.Constant("PWM_CLOCK_FREQ"); ok && clock != strconv.FormatUint(uint64(p.ClockHz), 10) {
		fmt.Fprintf(os.Stderr, "warning: profile assumes %d Hz, board runs at %s Hz\n", p.ClockHz, clock)
	}

	if err := m.SetFrequency(p.FrequencyHz); err != nil {
		return err
	}
	for _, ch := range p.Channels {
		var err error
		if ch.RampMS > 0 {
			err = m.Ramp(ch.Channel, ch.Phase, ch.Duty, 0, time.Duration(ch.RampMS)*time.Millisecond)
		} else {
			err = m.SetChannel(ch.Channel, ch.Phase, ch.Duty)
		}
		if err != nil {
			return fmt.Errorf("channel %d: %w", ch.Channel, err)
		}
	}
	return nil
}

func printCompiled(w io.Writer, c *profile.Compiled) {
	fmt.Fprintf(w, "Period: %d ticks, %d commands before padding\n", c.PeriodTicks, c.Logical)
	fmt.Fprintf(w, "Initial mask: %0*b\n\n", timeline.NumChannels, c.InitialMask)

	fmt.Fprintln(w, "Edges:")
	for _, ev := range c.Events {
		fmt.Fprintf(w, "  tick %-10d ch%-2d %s\n", ev.Tick, ev.Channel, ev.Edge)
	}

	fmt.Fprintln(w, "\nCommands:")
	var tick uint32
	for i, cmd := range c.Buffer.Commands() {
		fmt.Fprintf(w, "  %2d  0x%08x  mask=%0*b  delay=%-10d start=%d\n",
			i, uint32(cmd), timeline.NumChannels, cmd.Mask(), cmd.Delay(), tick)
		tick += cmd.Cycles(timeline.DefaultOverhead)
	}
	fmt.Fprintf(w, "\nTotal: %d ticks\n", tick)
}
