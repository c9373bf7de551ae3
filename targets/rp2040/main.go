//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"phasepwm/core"
	"phasepwm/protocol"
)

var (
	// Buffers for communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	controller *core.Controller

	// Debug counters
	messagesReceived uint32
	messagesSent     uint32
	msgerrors        uint32

	// USB connection state tracking
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Clear any watchdog state left over from before the reset
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	InitDebugUART()

	InitClock()
	core.TimerInit()

	core.InitCoreCommands()

	controller, err = core.NewController(
		NewPIOSequencer(pwmPIO, pwmStateMachine),
		NewRPDMA(pwmPIO, pwmStateMachine),
		core.ControllerConfig{
			ClockHz:     machine.CPUFrequency(),
			FrequencyHz: pwmFrequencyHz,
			Playback: core.PlaybackConfig{
				BasePin:        pwmBasePin,
				DataChannel:    pwmDataChannel,
				ControlChannel: pwmControlChannel,
			},
		})
	if err != nil {
		core.DebugPrintln("[PWM] " + err.Error())
		return
	}
	core.InitPhasePWMCommands(controller)

	// Setup failures are reported once; the command surface stays up so the
	// host can still read the shutdown reason
	if err := controller.Start(); err != nil {
		core.DebugPrintln("[PWM] start failed: " + err.Error())
		core.TryShutdown("playback start failed")
	}

	initSupplyMonitor()
	initFaultMonitor()

	// Build and cache dictionary after all commands registered
	core.GetGlobalDictionary().BuildDictionary()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	transport = protocol.NewTransport(outputBuffer, handleCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	// serialqueue expects the ACK before any response
	transport.SetFlushCallback(func() {
		writeUSB()
	})
	transport.SetErrorCallback(func(err error) {
		msgerrors++
		core.DebugPrintln("[CMD] " + err.Error())
	})
	core.SetGlobalTransport(transport)

	// A watchdog reset also re-enumerates USB cleanly
	core.SetResetHandler(func() {
		controller.Close()
		err = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
		if err != nil {
			return
		}
		err = machine.Watchdog.Start()
		if err != nil {
			return
		}
		for {
			time.Sleep(1 * time.Millisecond)
		}
	})

	go usbReaderLoop()

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			UpdateSystemTime()

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				originalLen := len(data)
				inputBuf := protocol.NewSliceInputBuffer(data)

				transport.Receive(inputBuf)
				messagesReceived++

				consumed := originalLen - inputBuf.Available()
				if consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			if len(outputBuffer.Result()) > 0 {
				writeUSB()
				messagesSent++
			}

			// Reset only after the ACK has gone out
			core.CheckPendingReset()

			// Ramps and the supply and fault monitors
			core.ProcessTimers()

			// Publish an update that was waiting for the hardware to leave
			// the writable buffer
			if err := controller.Task(); err != nil {
				core.DebugPrintln("[PWM] " + err.Error())
			}
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// usbReaderLoop moves bytes from USB into the input FIFO
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			data, err := USBRead()
			if err != nil {
				msgerrors++
				time.Sleep(1 * time.Millisecond)
				continue
			}

			// Fresh connection: drop protocol state. The outputs keep their
			// setting until the host changes it.
			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				messagesReceived = 0
				messagesSent = 0
				consecutiveWriteFailures = 0
			}

			if inputBuffer.Write([]byte{data}) == 0 {
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// handleCommand dispatches received commands to the command registry
func handleCommand(cmdID uint16, data *[]byte) error {
	return core.DispatchCommand(cmdID, data)
}

// writeUSB drains the output buffer to USB
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			// Likely a disconnect; give up on stale data after a few tries
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
