//go:build rp2040 || rp2350

package main

import (
	"machine"

	"phasepwm/core"
)

var debugUART *machine.UART

// InitDebugUART routes core debug output to UART0 (TX=GP0, RX=GP1) at
// 115200 baud. USB stays reserved for the host protocol.
func InitDebugUART() {
	uart := machine.UART0
	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		return
	}
	debugUART = uart

	core.SetDebugWriter(writeDebugLine)
	core.InitAsyncDebug()
	core.DebugPrintln("=== phasepwm debug UART ===")
}

func writeDebugLine(s string) {
	if debugUART == nil {
		return
	}
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}
