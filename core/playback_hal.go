package core

// TransferTrigger selects what paces a transfer engine
type TransferTrigger uint8

const (
	// TriggerPermanent runs the transfer as fast as the bus allows
	TriggerPermanent TransferTrigger = iota
	// TriggerSequencer paces each word on the sequencer's input-ready signal
	TriggerSequencer
)

// TransferConfig describes one transfer engine setup.
// Words are 32 bits wide, which is also the pointer size on the target.
type TransferConfig struct {
	Read           uintptr // Source address
	Write          uintptr // Destination address
	Count          uint32  // Words per trigger; reloaded on every re-trigger
	IncrementRead  bool
	IncrementWrite bool
	Trigger        TransferTrigger
	ChainTo        uint8 // Channel triggered on completion; own index disables chaining
}

// TransferEngines is the abstract interface to a bank of memory transfer
// channels. Platform-specific implementations handle the registers.
type TransferEngines interface {
	// Configure programs a channel without starting it
	Configure(channel uint8, cfg TransferConfig) error

	// Trigger starts a configured channel
	Trigger(channel uint8) error

	// Abort stops a channel and waits for in-flight words to drain
	Abort(channel uint8) error

	// ReadAddressRegister returns the address of the channel's read-pointer
	// register (the non-triggering alias), so another channel can reload it
	ReadAddressRegister(channel uint8) uintptr

	// ReadAddress returns the channel's current read pointer
	ReadAddress(channel uint8) uintptr
}

// Sequencer is the abstract interface to the timing state machine that
// applies a pin mask and then holds it for the encoded delay.
type Sequencer interface {
	// Configure loads the program and binds count consecutive output pins
	// starting at basePin. The state machine is left disabled.
	Configure(basePin uint8, count uint8) error

	// InputRegister returns the address transfer engines write commands to
	InputRegister() uintptr

	// SetEnabled starts or stops the state machine
	SetEnabled(enabled bool) error
}
