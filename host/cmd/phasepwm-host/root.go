package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/term"

	"phasepwm/host/mcu"
	"phasepwm/host/serial"
	"phasepwm/protocol"
)

var (
	// Serial connection flags
	device string
	baud   int
	driver string

	// WebSocket bridge flags
	wsUsername    string
	wsNoSSLVerify bool

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "phasepwm-host",
	Short: "Host tool for the phase PWM controller",
	Long: `phasepwm-host talks to a phase PWM board over USB serial or a WebSocket
serial bridge. It sets the phase and duty of the ten outputs, ramps them,
changes the PWM frequency and reads back status.

Connection modes:
  Serial:    --device /dev/ttyACM0 [--driver tarm|bugst]
  WebSocket: --device ws://host/path [--username user]

For WebSocket authentication, the password is read from the
PHASEPWM_PASSWORD environment variable, or prompted interactively if not set.`,
	Version:      protocol.Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&device, "device", "d", "/dev/ttyACM0", "Serial device or ws:// URL")
	rootCmd.PersistentFlags().IntVarP(&baud, "baud", "b", 250000, "Baud rate (ignored for USB CDC)")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", string(serial.DriverTarm), "Serial driver (tarm or bugst)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth (WebSocket only)")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print connection progress")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// getPassword reads the bridge password from the environment or the terminal
func getPassword() (string, error) {
	if pw := os.Getenv("PHASEPWM_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// connect opens the device and loads its dictionary
func connect() (*mcu.MCU, error) {
	if device == "" {
		return nil, errors.New("no device given (use --device)")
	}

	cfg := serial.DefaultConfig(device)
	cfg.Baud = baud
	cfg.Driver = serial.Driver(driver)
	cfg.SkipSSLVerify = wsNoSSLVerify
	if cfg.IsWebSocket() && wsUsername != "" {
		pw, err := getPassword()
		if err != nil {
			return nil, err
		}
		cfg.Username = wsUsername
		cfg.Password = pw
	}

	m := mcu.NewMCU()
	if verbose {
		m.Log = os.Stderr
		fmt.Fprintf(os.Stderr, "Connecting to %s...\n", device)
	}
	if err := m.ConnectWithConfig(cfg); err != nil {
		return nil, err
	}
	if err := m.RetrieveDictionary(); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to retrieve dictionary: %w", err), m.Close())
	}
	return m, nil
}

// withMCU runs fn on a fresh connection and closes it afterwards
func withMCU(fn func(m *mcu.MCU) error) (err error) {
	m, err := connect()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, m.Close())
	}()
	return fn(m)
}
