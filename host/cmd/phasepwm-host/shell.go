package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"phasepwm/host/mcu"
	"phasepwm/host/profile"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive command loop on one connection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMCU(func(m *mcu.MCU) error {
			return runShell(m, os.Stdin, os.Stdout)
		})
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// shellCommand is one line command: minArgs/maxArgs bound the arguments
type shellCommand struct {
	usage   string
	help    string
	minArgs int
	maxArgs int
	run     func(m *mcu.MCU, args []string) error
}

var shellCommands = map[string]shellCommand{
	"set":    {"set CH PHASE DUTY", "Set phase (deg) and duty (%)", 3, 3, runSet},
	"freq":   {"freq HZ", "Change the PWM frequency", 1, 1, runFreq},
	"ramp":   {"ramp CH PHASE DUTY DURATION [DELAY]", "Ramp a channel", 4, 5, runRamp},
	"stop":   {"stop", "Drive every channel low", 0, 0, runStop},
	"estop":  {"estop", "Latch shutdown", 0, 0, runEstop},
	"status": {"status", "Show playback status", 0, 0, runStatus},
	"get":    {"get [CH]", "Show channel settings", 0, 1, runGet},
	"apply":  {"apply PROFILE", "Send a profile", 1, 1, runApply},
}

func runApply(m *mcu.MCU, args []string) error {
	p, err := profile.Load(args[0])
	if err != nil {
		return err
	}
	return applyProfile(m, p)
}

// runShell reads commands until EOF or quit. Arguments may be quoted.
func runShell(m *mcu.MCU, in io.Reader, out io.Writer) error {
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	if interactive {
		fmt.Fprintln(out, "Enter commands (type 'help' for available commands, 'quit' to exit):")
	}

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			break
		}

		parts, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		if len(parts) == 0 || strings.HasPrefix(parts[0], "#") {
			continue
		}

		name, args := parts[0], parts[1:]
		switch name {
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			printShellHelp(out)
			continue
		case "dict":
			m.PrintDictionary(out)
			continue
		case "raw":
			raw := m.DictionaryRaw()
			fmt.Fprintf(out, "Raw dictionary data (%d bytes):\n%s\n", len(raw), raw)
			continue
		}

		c, ok := shellCommands[name]
		if !ok {
			fmt.Fprintf(out, "Unknown command: %s (type 'help' for available commands)\n", name)
			continue
		}
		if len(args) < c.minArgs || len(args) > c.maxArgs {
			fmt.Fprintf(out, "Usage: %s\n", c.usage)
			continue
		}
		if err := c.run(m, args); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
	return scanner.Err()
}

func printShellHelp(out io.Writer) {
	fmt.Fprintln(out, "\nAvailable commands:")
	for _, name := range []string{"set", "freq", "ramp", "stop", "estop", "status", "get", "apply"} {
		c := shellCommands[name]
		fmt.Fprintf(out, "  %-38s %s\n", c.usage, c.help)
	}
	fmt.Fprintf(out, "  %-38s %s\n", "dict", "Print dictionary summary")
	fmt.Fprintf(out, "  %-38s %s\n", "raw", "Print raw dictionary data")
	fmt.Fprintf(out, "  %-38s %s\n", "quit/exit/q", "Exit the shell")
	fmt.Fprintln(out)
}
