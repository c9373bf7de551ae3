package core

import (
	"errors"
	"sync"
)

// CommandHandler decodes its arguments from the front of data and runs the
// command. It must not keep data past the call.
type CommandHandler func(data *[]byte) error

// Command is one message dictionary entry. Responses have no handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "channel=%c phase=%i duty=%u"
	Handler CommandHandler
}

// Signature is the dictionary key the host parses: name then argument formats
func (c *Command) Signature() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

var (
	ErrUnknownCommand = errors.New("unknown message id")
	ErrNotACommand    = errors.New("message is a response")
)

// DispatchError carries the message ID a frame could not be dispatched to
type DispatchError struct {
	ID  uint16
	Err error
}

func (e *DispatchError) Error() string {
	return e.Err.Error() + " " + itoa(int(e.ID))
}

func (e *DispatchError) Unwrap() error { return e.Err }

// CommandRegistry hands out message IDs in registration order. The IDs are
// dense, so dispatch indexes a slice.
type CommandRegistry struct {
	mu      sync.RWMutex
	entries []*Command
	byName  map[string]*Command
}

var globalRegistry = NewCommandRegistry()

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{byName: make(map[string]*Command)}
}

// RegisterCommand adds a host -> MCU command to the global registry
func RegisterCommand(name string, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, handler)
}

// RegisterResponse adds an MCU -> host message to the global registry
func RegisterResponse(name string, format string) uint16 {
	return globalRegistry.Register(name, format, nil)
}

// Register adds a message and returns its ID. Registering a name again
// rebinds its format and handler under the same ID.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cmd, ok := r.byName[name]; ok {
		cmd.Format = format
		cmd.Handler = handler
		return cmd.ID
	}

	cmd := &Command{
		ID:      uint16(len(r.entries)),
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.entries = append(r.entries, cmd)
	r.byName[name] = cmd
	return cmd.ID
}

// Lookup returns the message registered under id
func (r *CommandRegistry) Lookup(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.entries) {
		return nil, false
	}
	return r.entries[id], true
}

// ByName returns the message registered under name
func (r *CommandRegistry) ByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[name]
	return cmd, ok
}

// Dispatch runs the handler for id. The handler is called without the
// registry lock held, so it may register or send responses.
func (r *CommandRegistry) Dispatch(id uint16, data *[]byte) error {
	cmd, ok := r.Lookup(id)
	if !ok {
		return &DispatchError{ID: id, Err: ErrUnknownCommand}
	}
	if cmd.Handler == nil {
		return &DispatchError{ID: id, Err: ErrNotACommand}
	}
	return cmd.Handler(data)
}

// Signatures splits the registry into the "commands" and "responses" maps
// of the identify dictionary, keyed by signature
func (r *CommandRegistry) Signatures() (commands, responses map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands = make(map[string]int)
	responses = make(map[string]int)
	for _, cmd := range r.entries {
		if cmd.Handler != nil {
			commands[cmd.Signature()] = int(cmd.ID)
		} else {
			responses[cmd.Signature()] = int(cmd.ID)
		}
	}
	return commands, responses
}

// DispatchCommand dispatches on the global registry; it is the handler the
// transport is built with
func DispatchCommand(id uint16, data *[]byte) error {
	return globalRegistry.Dispatch(id, data)
}

func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}
