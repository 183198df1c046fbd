package core

import (
	"errors"
	"strconv"
	"strings"
	"sync"
)

// ErrUnknownCommand is returned by Dispatch for an ID nobody registered.
var ErrUnknownCommand = errors.New("unknown command")

type unknownCommandError uint16

func (e unknownCommandError) Error() string {
	return ErrUnknownCommand.Error() + " " + strconv.Itoa(int(e))
}

func (e unknownCommandError) Unwrap() error { return ErrUnknownCommand }

// CommandHandler decodes its own arguments from data.
type CommandHandler func(data *[]byte) error

// Command is one entry of the data dictionary. Entries without a handler
// are responses (device to host).
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "count=%hu"
	Handler CommandHandler
}

// IsResponse reports whether the entry is sent by the device.
func (c *Command) IsResponse() bool {
	return c.Handler == nil
}

// Signature is the dictionary key: the name followed by the format.
func (c *Command) Signature() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// CommandRegistry assigns IDs in registration order.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands []*Command
	nameToID map[string]uint16
}

var globalRegistry = NewCommandRegistry()

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		nameToID: make(map[string]uint16),
	}
}

// RegisterCommand adds a command to the global registry.
func RegisterCommand(name string, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, handler)
}

// RegisterResponse adds a response to the global registry.
func RegisterResponse(name string, format string) uint16 {
	return globalRegistry.Register(name, format, nil)
}

// Register adds an entry and returns its ID. Registering a name twice
// returns the first ID.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}
	id := uint16(len(r.commands))
	r.commands = append(r.commands, &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	})
	r.nameToID[name] = id
	return id
}

func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.commands) {
		return nil, false
	}
	return r.commands[id], true
}

func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch runs the handler for cmdID. Responses sent back by a confused
// host are ignored.
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok {
		return unknownCommandError(cmdID)
	}
	if cmd.IsResponse() {
		return nil
	}
	return cmd.Handler(data)
}

// Entries returns a snapshot of every entry in ID order.
func (r *CommandRegistry) Entries() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, len(r.commands))
	for i, c := range r.commands {
		out[i] = *c
	}
	return out
}

// GetDictionary returns one signature per line, in ID order.
func (r *CommandRegistry) GetDictionary() string {
	var b strings.Builder
	for _, c := range r.Entries() {
		b.WriteString(c.Signature())
		b.WriteByte('\n')
	}
	return b.String()
}

func DispatchCommand(cmdID uint16, data *[]byte) error {
	return globalRegistry.Dispatch(cmdID, data)
}

func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}
