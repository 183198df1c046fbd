// Package mcu is the host side of the capture firmware link.
package mcu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"rcadc/host/serial"
	"rcadc/protocol"
)

// DefaultTimeout bounds one command and its responses.
const DefaultTimeout = 2 * time.Second

var (
	ErrNotConnected    = errors.New("not connected to MCU")
	ErrNoDictionary    = errors.New("dictionary not loaded")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrUnknownResponse = errors.New("unknown response")
	ErrMissingConstant = errors.New("constant missing from dictionary")
)

// MCU is a connection to the capture firmware.
type MCU struct {
	transport *protocol.HostTransport
	port      io.ReadWriteCloser

	dictionary     *Dictionary
	dictionaryData []byte
	commands       map[string]int
	responses      map[int]responseFormat

	// mu serializes request/response exchanges.
	mu        sync.Mutex
	connected bool
	timeout   time.Duration
	log       *log.Logger
}

// Dictionary represents the parsed MCU dictionary
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

type field struct {
	name  string
	bytes bool
}

type responseFormat struct {
	name   string
	fields []field
}

// parseFormat splits "name a=%u data=%*s" into the name and its fields.
func parseFormat(sig string) responseFormat {
	parts := strings.Fields(sig)
	f := responseFormat{}
	if len(parts) == 0 {
		return f
	}
	f.name = parts[0]
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		f.fields = append(f.fields, field{
			name:  kv[0],
			bytes: kv[1] == "%*s" || kv[1] == "%.*s",
		})
	}
	return f
}

// Response is one decoded device message.
type Response struct {
	Name   string
	Values map[string]uint32
	Data   map[string][]byte
}

// Uint returns an integer argument, zero when absent.
func (r *Response) Uint(name string) uint32 {
	return r.Values[name]
}

// Bytes returns a byte-string argument.
func (r *Response) Bytes(name string) []byte {
	return r.Data[name]
}

func (r *Response) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	keys := make([]string, 0, len(r.Values))
	for k := range r.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%d", k, r.Values[k])
	}
	for k, v := range r.Data {
		fmt.Fprintf(&b, " %s=[%d bytes]", k, len(v))
	}
	return b.String()
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{
		timeout: DefaultTimeout,
		log:     log.New(io.Discard, "", 0),
	}
}

// SetLogger routes connection progress to l.
func (m *MCU) SetLogger(l *log.Logger) {
	if l != nil {
		m.log = l
	}
}

// SetTimeout changes the per-request timeout.
func (m *MCU) SetTimeout(d time.Duration) {
	if d > 0 {
		m.timeout = d
	}
}

// Connect connects to an MCU via serial port
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to an MCU with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	m.ConnectPort(port)
	return nil
}

// ConnectPort runs the link over an already open port.
func (m *MCU) ConnectPort(port io.ReadWriteCloser) {
	m.port = port
	m.transport = protocol.NewHostTransport(port)
	m.connected = true
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	if !m.connected {
		return nil
	}
	m.connected = false
	return m.transport.Close()
}

// RetrieveDictionary reads the dictionary in identify chunks and parses it.
func (m *MCU) RetrieveDictionary() error {
	if !m.connected {
		return ErrNotConnected
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Println("retrieving dictionary")
	var dictBuffer bytes.Buffer
	offset := uint32(0)
	chunkSize := uint8(40)
	maxIterations := 1000

	for i := 0; i < maxIterations; i++ {
		chunk, err := m.sendIdentify(offset, chunkSize)
		if err != nil {
			return fmt.Errorf("dictionary chunk at offset %d: %w", offset, err)
		}
		if len(chunk) == 0 {
			break
		}
		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < int(chunkSize) {
			break
		}
	}

	m.dictionaryData = dictBuffer.Bytes()
	m.log.Printf("dictionary retrieved: %d bytes", len(m.dictionaryData))
	if err := m.parseDictionary(); err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}
	return nil
}

// sendIdentify asks for one dictionary chunk. identify is always ID 1 and
// identify_response ID 0, before any dictionary is known.
func (m *MCU) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.transport.Drain()
	err := m.transport.Send(ctx, 1, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}

	for {
		resp, err := m.transport.Receive(ctx)
		if err != nil {
			return nil, fmt.Errorf("identify_response: %w", err)
		}
		payload := resp.Payload
		cmdID, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("decode response id: %w", err)
		}
		if cmdID != 0 {
			continue
		}
		respOffset, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("decode response offset: %w", err)
		}
		if respOffset != offset {
			return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
		}
		data, err := protocol.DecodeVLQBytes(&payload)
		if err != nil {
			return nil, fmt.Errorf("decode response data: %w", err)
		}
		return append([]byte(nil), data...), nil
	}
}

func (m *MCU) parseDictionary() error {
	dict := &Dictionary{}
	if err := json.Unmarshal(m.dictionaryData, dict); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	m.dictionary = dict
	m.commands = make(map[string]int, len(dict.Commands))
	for sig, id := range dict.Commands {
		m.commands[parseFormat(sig).name] = id
	}
	m.responses = make(map[int]responseFormat, len(dict.Responses))
	for sig, id := range dict.Responses {
		m.responses[id] = parseFormat(sig)
	}
	return nil
}

// GetDictionary returns the parsed dictionary
func (m *MCU) GetDictionary() *Dictionary {
	return m.dictionary
}

// GetDictionaryRaw returns the raw dictionary data
func (m *MCU) GetDictionaryRaw() []byte {
	return m.dictionaryData
}

// Constant returns an integer constant from the dictionary config.
func (m *MCU) Constant(name string) (int, error) {
	if m.dictionary == nil {
		return 0, ErrNoDictionary
	}
	v, ok := m.dictionary.Config[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingConstant, name)
	}
	return strconv.Atoi(v)
}

// PrintDictionary writes a summary of the dictionary to w.
func (m *MCU) PrintDictionary(w io.Writer) {
	if m.dictionary == nil {
		fmt.Fprintln(w, "No dictionary loaded")
		return
	}
	d := m.dictionary
	fmt.Fprintln(w, "=== MCU Dictionary ===")
	fmt.Fprintf(w, "Version: %s\n", d.Version)
	fmt.Fprintf(w, "Build: %s\n", d.BuildVersions)

	fmt.Fprintln(w, "\nConfig:")
	for _, k := range sortedKeys(d.Config) {
		fmt.Fprintf(w, "  %s = %s\n", k, d.Config[k])
	}
	fmt.Fprintf(w, "\nCommands (%d):\n", len(d.Commands))
	printByID(w, d.Commands)
	fmt.Fprintf(w, "\nResponses (%d):\n", len(d.Responses))
	printByID(w, d.Responses)
	if len(d.Enumerations) > 0 {
		fmt.Fprintf(w, "\nEnumerations (%d):\n", len(d.Enumerations))
		for _, name := range sortedKeys(d.Enumerations) {
			fmt.Fprintf(w, "  %s: %d values\n", name, len(d.Enumerations[name]))
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printByID(w io.Writer, entries map[string]int) {
	sigs := sortedKeys(entries)
	sort.SliceStable(sigs, func(i, j int) bool { return entries[sigs[i]] < entries[sigs[j]] })
	for _, sig := range sigs {
		fmt.Fprintf(w, "  [%d] %s\n", entries[sig], sig)
	}
}

// SendCommand sends a command by name and waits for its ack.
func (m *MCU) SendCommand(name string, args func(output protocol.OutputBuffer)) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send(ctx, name, args)
}

// Query sends a command and returns the first response named want.
func (m *MCU) Query(ctx context.Context, name string, args func(output protocol.OutputBuffer), want string) (*Response, error) {
	resps, err := m.Collect(ctx, name, args, want)
	if err != nil {
		return nil, err
	}
	return resps[len(resps)-1], nil
}

// Collect sends a command and returns every response up to and including
// the first one named until.
func (m *MCU) Collect(ctx context.Context, name string, args func(output protocol.OutputBuffer), until string) ([]*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.send(ctx, name, args); err != nil {
		return nil, err
	}
	var resps []*Response
	for {
		resp, err := m.next(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", until, err)
		}
		resps = append(resps, resp)
		if resp.Name == until {
			return resps, nil
		}
	}
}

// send drops stale responses and sends one command. Caller holds mu.
func (m *MCU) send(ctx context.Context, name string, args func(output protocol.OutputBuffer)) error {
	if !m.connected {
		return ErrNotConnected
	}
	if m.dictionary == nil {
		return ErrNoDictionary
	}
	cmdID, ok := m.commands[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	m.transport.Drain()
	if err := m.transport.Send(ctx, uint16(cmdID), args); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// next decodes the next queued response. Caller holds mu.
func (m *MCU) next(ctx context.Context) (*Response, error) {
	msg, err := m.transport.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return m.decode(msg.Payload)
}

func (m *MCU) decode(payload []byte) (*Response, error) {
	id, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, err
	}
	format, ok := m.responses[int(id)]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownResponse, id)
	}
	resp := &Response{Name: format.name, Values: map[string]uint32{}, Data: map[string][]byte{}}
	for _, f := range format.fields {
		if f.bytes {
			b, err := protocol.DecodeVLQBytes(&payload)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", format.name, f.name, err)
			}
			resp.Data[f.name] = b
			continue
		}
		v, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", format.name, f.name, err)
		}
		resp.Values[f.name] = v
	}
	return resp, nil
}

// IsConnected returns whether the MCU is connected
func (m *MCU) IsConnected() bool {
	return m.connected
}
