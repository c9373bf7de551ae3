package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"phasepwm/host/serial"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports on this machine. USB ports show their vendor and
product IDs; Raspberry Pi RP2040/RP2350 boards are marked.`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	for _, p := range ports {
		if !p.IsUSB {
			fmt.Println(p.Name)
			continue
		}
		mark := ""
		if p.IsPico() {
			mark = "  [rp2]"
		}
		fmt.Printf("%-20s %s:%s %s %s%s\n", p.Name, p.VID, p.PID, p.Product, p.SerialNumber, mark)
	}
	return nil
}
