package core

import (
	"sort"
	"strconv"
	"sync"
)

// Constant is a firmware value exposed to the host.
type Constant struct {
	Name  string
	Value interface{} // string or integer
}

// Enumeration maps value names to their wire index.
type Enumeration struct {
	Name   string
	Values []string
}

// Dictionary is the JSON data dictionary the host fetches with identify.
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]*Constant
	enumerations  map[string]*Enumeration
	commandReg    *CommandRegistry
	version       string
	buildVersions string
	cached        []byte
}

var globalDictionary = NewDictionary(globalRegistry)

func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]*Constant),
		enumerations:  make(map[string]*Enumeration),
		commandReg:    cmdReg,
		version:       "rcadc-0.2.0",
		buildVersions: "go-tinygo",
	}
}

func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = &Constant{Name: name, Value: value}
	d.cached = nil
}

func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enumerations[name] = &Enumeration{
		Name:   name,
		Values: append([]string(nil), values...),
	}
	d.cached = nil
}

func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	d.cached = nil
}

func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
	d.cached = nil
}

// BuildDictionary renders and caches the dictionary. Call it once every
// command and constant is registered.
func (d *Dictionary) BuildDictionary() {
	// Registry first, then our lock: never hold both.
	entries := d.commandReg.Entries()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached = d.render(entries)
	DebugPrintln("[DICT] built, " + strconv.Itoa(len(d.cached)) + " bytes")
}

// Generate returns the cached dictionary, rendering it if needed.
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cached
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}
	d.BuildDictionary()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// render builds the JSON text. Caller holds d.mu.
func (d *Dictionary) render(entries []Command) []byte {
	out := make([]byte, 0, 1024)
	out = append(out, `{"version":`...)
	out = appendQuoted(out, d.version)
	out = append(out, `,"build_versions":`...)
	out = appendQuoted(out, d.buildVersions)

	out = append(out, `,"config":{`...)
	names := make([]string, 0, len(d.constants))
	for name := range d.constants {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendQuoted(out, name)
		out = append(out, ':')
		out = appendQuoted(out, valueToString(d.constants[name].Value))
	}

	out = append(out, `},"commands":{`...)
	out = appendEntries(out, entries, false)
	out = append(out, `},"responses":{`...)
	out = appendEntries(out, entries, true)
	out = append(out, '}')

	if len(d.enumerations) > 0 {
		out = append(out, `,"enumerations":{`...)
		names = names[:0]
		for name := range d.enumerations {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			if i > 0 {
				out = append(out, ',')
			}
			out = appendQuoted(out, name)
			out = append(out, `:{`...)
			first := true
			for idx, v := range d.enumerations[name].Values {
				if v == "" {
					continue
				}
				if !first {
					out = append(out, ',')
				}
				out = appendQuoted(out, v)
				out = append(out, ':')
				out = strconv.AppendInt(out, int64(idx), 10)
				first = false
			}
			out = append(out, '}')
		}
		out = append(out, '}')
	}
	return append(out, '}')
}

func appendEntries(out []byte, entries []Command, responses bool) []byte {
	first := true
	for i := range entries {
		if entries[i].IsResponse() != responses {
			continue
		}
		if !first {
			out = append(out, ',')
		}
		out = appendQuoted(out, entries[i].Signature())
		out = append(out, ':')
		out = strconv.AppendInt(out, int64(entries[i].ID), 10)
		first = false
	}
	return out
}

func appendQuoted(out []byte, s string) []byte {
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return append(out, '"')
}

func valueToString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	}
	return ""
}

// GetChunk returns a copy of up to count bytes starting at offset.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	return append([]byte(nil), data[offset:end]...)
}

func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}
