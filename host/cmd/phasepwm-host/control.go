package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"phasepwm/host/mcu"
)

var rampDelay string

var setCmd = &cobra.Command{
	Use:   "set CHANNEL PHASE DUTY",
	Short: "Set one channel's phase (degrees) and duty (percent)",
	Long: `Set one channel's phase in degrees and duty in percent.

Phase wraps into [0, 360); duty saturates to [0, 100]. A ramp running on
the channel is cancelled.

Example:
  phasepwm-host set 2 120 50`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMCU(func(m *mcu.MCU) error { return runSet(m, args) })
	},
}

var freqCmd = &cobra.Command{
	Use:   "freq HZ",
	Short: "Change the PWM frequency of every channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMCU(func(m *mcu.MCU) error { return runFreq(m, args) })
	},
}

var rampCmd = &cobra.Command{
	Use:   "ramp CHANNEL PHASE DUTY DURATION",
	Short: "Move a channel to a new setting over time",
	Long: `Move a channel linearly to a new phase and duty. Phase takes the shorter
way around the circle. DURATION and --delay accept Go durations (500ms, 2s)
or plain milliseconds.

Example:
  phasepwm-host ramp 0 90 25 2s --delay 500ms`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMCU(func(m *mcu.MCU) error {
			return runRamp(m, append(args, rampDelay))
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Cancel ramps and drive every channel low",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMCU(func(m *mcu.MCU) error { return runStop(m, args) })
	},
}

var estopCmd = &cobra.Command{
	Use:   "estop",
	Short: "Latch the board into shutdown until reset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMCU(func(m *mcu.MCU) error { return runEstop(m, args) })
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show playback, shutdown and supply status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMCU(func(m *mcu.MCU) error { return runStatus(m, args) })
	},
}

var getCmd = &cobra.Command{
	Use:   "get [CHANNEL]",
	Short: "Show one channel's setting, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMCU(func(m *mcu.MCU) error { return runGet(m, args) })
	},
}

var dictCmd = &cobra.Command{
	Use:   "dict",
	Short: "Print the board's data dictionary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMCU(func(m *mcu.MCU) error {
			m.PrintDictionary(os.Stdout)
			return nil
		})
	},
}

func init() {
	rampCmd.Flags().StringVar(&rampDelay, "delay", "0", "Wait before the ramp starts")
	rootCmd.AddCommand(setCmd, freqCmd, rampCmd, stopCmd, estopCmd, statusCmd, getCmd, dictCmd)
}

func parseChannel(s string) (int, error) {
	ch, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid channel %q", s)
	}
	return ch, nil
}

func parseFloat(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return v, nil
}

// parseDuration accepts Go durations or a bare number of milliseconds
func parseDuration(s string) (time.Duration, error) {
	if ms, err := strconv.ParseUint(s, 10, 32); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// parseSetting reads CHANNEL PHASE DUTY
func parseSetting(args []string) (int, float64, float64, error) {
	ch, err := parseChannel(args[0])
	if err != nil {
		return 0, 0, 0, err
	}
	phase, err := parseFloat("phase", args[1])
	if err != nil {
		return 0, 0, 0, err
	}
	duty, err := parseFloat("duty", args[2])
	if err != nil {
		return 0, 0, 0, err
	}
	return ch, phase, duty, nil
}

func runSet(m *mcu.MCU, args []string) error {
	ch, phase, duty, err := parseSetting(args)
	if err != nil {
		return err
	}
	return m.SetChannel(ch, phase, duty)
}

func runFreq(m *mcu.MCU, args []string) error {
	hz, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid frequency %q", args[0])
	}
	if err := m.SetFrequency(uint32(hz)); err != nil {
		return err
	}
	// Rejected frequencies are still acknowledged; read back what took effect
	st, err := m.Status()
	if err != nil {
		return err
	}
	if st.Frequency != uint32(hz) {
		return fmt.Errorf("frequency %d Hz rejected, still at %d Hz", hz, st.Frequency)
	}
	return nil
}

// runRamp takes CHANNEL PHASE DUTY DURATION [DELAY]
func runRamp(m *mcu.MCU, args []string) error {
	ch, phase, duty, err := parseSetting(args)
	if err != nil {
		return err
	}
	duration, err := parseDuration(args[3])
	if err != nil {
		return err
	}
	var delay time.Duration
	if len(args) > 4 {
		if delay, err = parseDuration(args[4]); err != nil {
			return err
		}
	}
	return m.Ramp(ch, phase, duty, delay, duration)
}

func runStop(m *mcu.MCU, args []string) error {
	return m.Stop()
}

func runEstop(m *mcu.MCU, args []string) error {
	return m.EmergencyStop()
}

func runStatus(m *mcu.MCU, args []string) error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	printStatus(os.Stdout, st)

	sd, err := m.Shutdown()
	if err != nil {
		return err
	}
	if sd.IsShutdown {
		fmt.Printf("Shutdown:    %s\n", sd.Reason)
	}

	if _, ok := m.Dictionary().Command("get_supply"); ok {
		sup, err := m.Supply()
		if err != nil {
			return err
		}
		printSupply(os.Stdout, sup)
	}

	if _, ok := m.Dictionary().Command("get_faults"); ok {
		f, err := m.Faults()
		if err != nil {
			return err
		}
		printFaults(os.Stdout, f)
	}
	return nil
}

func runGet(m *mcu.MCU, args []string) error {
	if len(args) == 1 {
		ch, err := parseChannel(args[0])
		if err != nil {
			return err
		}
		st, err := m.Channel(ch)
		if err != nil {
			return err
		}
		printChannel(os.Stdout, st)
		return nil
	}

	channels, err := m.Dictionary().ConstantInt("PWM_CHANNELS")
	if err != nil {
		return err
	}
	for ch := 0; ch < int(channels); ch++ {
		st, err := m.Channel(ch)
		if err != nil {
			return err
		}
		printChannel(os.Stdout, st)
	}
	return nil
}

func printChannel(w io.Writer, st mcu.ChannelState) {
	ramp := ""
	if st.Ramping {
		ramp = "  (ramping)"
	}
	fmt.Fprintf(w, "ch%-2d phase=%7.3f deg  duty=%7.3f%%%s\n", st.Channel, st.Phase, st.Duty, ramp)
}

func printStatus(w io.Writer, st mcu.Status) {
	fmt.Fprintf(w, "Frequency:   %d Hz (%d ticks)\n", st.Frequency, st.PeriodTicks)
	fmt.Fprintf(w, "Commands:    %d\n", st.Commands)
	fmt.Fprintf(w, "Publishes:   %d (active buffer %d)\n", st.Publishes, st.Active)
	fmt.Fprintf(w, "Pending:     %v\n", st.Pending)
	fmt.Fprintf(w, "Running:     %v\n", st.Running)
}

func printSupply(w io.Writer, s mcu.Supply) {
	fmt.Fprintf(w, "Supply:      %.3f V  %.3f A", float64(s.VoltageUV)/1e6, float64(s.CurrentUA)/1e6)
	if s.Tripped {
		fmt.Fprint(w, "  TRIPPED")
	}
	if s.Errors > 0 {
		fmt.Fprintf(w, "  (%d read errors)", s.Errors)
	}
	fmt.Fprintln(w)
}

// printFaults lists channels by number, "none" when clear
func printFaults(w io.Writer, f mcu.Faults) {
	fmt.Fprintf(w, "Faults:      active %s  tripped %s\n", channelList(f.Active), channelList(f.Tripped))
}

func channelList(mask uint16) string {
	var chans []string
	for ch := 0; ch < 16; ch++ {
		if mask&(1<<ch) != 0 {
			chans = append(chans, strconv.Itoa(ch))
		}
	}
	if len(chans) == 0 {
		return "none"
	}
	return strings.Join(chans, ",")
}
