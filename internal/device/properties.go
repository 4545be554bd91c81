package device

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// PropertyType constrains the values a property accepts.
type PropertyType uint8

// Property types.
const (
	PropString PropertyType = iota
	PropInt
	PropBool
	PropHex
)

type propertyDef struct {
	def      string
	typ      PropertyType
	usage    string
	readOnly bool
}

// Properties is a device's typed key/value table. Only declared keys can be
// set; undeclared configuration keys are ignored on import. Read-only keys
// accept values until the table is sealed.
type Properties struct {
	mu     sync.RWMutex
	defs   map[string]propertyDef
	values map[string]string
	sealed bool
}

// NewProperties creates an empty table.
func NewProperties() *Properties {
	return &Properties{
		defs:   make(map[string]propertyDef),
		values: make(map[string]string),
	}
}

// Declare registers key with a default value. Declaring a key again replaces
// its default and type, which lets drivers override base defaults. A
// read-only mark survives redeclaration.
func (p *Properties) Declare(key, def string, typ PropertyType, usage string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defs[key] = propertyDef{def: def, typ: typ, usage: usage, readOnly: p.defs[key].readOnly}
	p.values[key] = def
}

// MarkReadOnly makes declared keys immutable once Seal is called.
func (p *Properties) MarkReadOnly(keys ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		if d, ok := p.defs[k]; ok {
			d.readOnly = true
			p.defs[k] = d
		}
	}
}

// Seal freezes read-only keys. Later writes to them fail with
// ErrInvalidProperty.
func (p *Properties) Seal() {
	p.mu.Lock()
	p.sealed = true
	p.mu.Unlock()
}

// ReadOnly reports whether key is currently frozen.
func (p *Properties) ReadOnly(key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sealed && p.defs[key].readOnly
}

// Import merges cfg into the table. Keys that were not declared are returned
// and otherwise ignored; values that fail type validation are rejected.
//
// Returns:
//   - []string: Undeclared keys, sorted
//   - error: The first invalid value, wrapping ErrInvalidProperty
func (p *Properties) Import(cfg map[string]string) ([]string, error) {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var ignored []string
	for _, k := range keys {
		err := p.Set(k, cfg[k])
		switch {
		case err == nil:
		case errors.Is(err, ErrUnknownProperty):
			ignored = append(ignored, k)
		default:
			return ignored, err
		}
	}
	return ignored, nil
}

// Set replaces the value of a declared key.
func (p *Properties) Set(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(key, value); err != nil {
		return err
	}
	p.values[key] = strings.TrimSpace(value)
	return nil
}

// Validate checks value against key's declared type without storing it.
func (p *Properties) Validate(key, value string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.check(key, value)
}

// check requires p.mu to be held.
func (p *Properties) check(key, value string) error {
	d, ok := p.defs[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProperty, key)
	}
	if p.sealed && d.readOnly {
		return fmt.Errorf("%w: %s is read-only", ErrInvalidProperty, key)
	}
	if err := validateProperty(d.typ, value); err != nil {
		return fmt.Errorf("%w: %s=%q: %v", ErrInvalidProperty, key, value, err)
	}
	return nil
}

func validateProperty(typ PropertyType, value string) error {
	v := strings.TrimSpace(value)
	switch typ {
	case PropInt:
		_, err := strconv.Atoi(v)
		return err
	case PropBool:
		if _, ok := parseBool(v); !ok {
			return fmt.Errorf("not a boolean")
		}
	case PropHex:
		_, err := ParseID(v)
		return err
	}
	return nil
}

// Has reports whether key was declared.
func (p *Properties) Has(key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.defs[key]
	return ok
}

// Usage returns the description given when key was declared.
func (p *Properties) Usage(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defs[key].usage
}

// Get returns the value of key and whether it was declared.
func (p *Properties) Get(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok
}

// String returns the value of key, or "" if undeclared.
func (p *Properties) String(key string) string {
	v, _ := p.Get(key)
	return v
}

// Int returns the value of key as an int, or fallback if it does not parse.
func (p *Properties) Int(key string, fallback int) int {
	v, err := strconv.Atoi(p.String(key))
	if err != nil {
		return fallback
	}
	return v
}

// Bool returns the value of key as a bool. Accepts 1/0, true/false, yes/no
// and on/off.
func (p *Properties) Bool(key string) bool {
	b, _ := parseBool(p.String(key))
	return b
}

// Snapshot returns a copy of every value.
func (p *Properties) Snapshot() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Keys returns every declared key, sorted.
func (p *Properties) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.defs))
	for k := range p.defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseBool parses the bool-ish strings used in configuration files.
func ParseBool(s string) (bool, bool) { return parseBool(s) }

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on", "enable", "enabled":
		return true, true
	case "0", "false", "no", "off", "disable", "disabled", "":
		return false, true
	}
	return false, false
}
