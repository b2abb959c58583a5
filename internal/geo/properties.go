package geo

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Properties is a feature attribute bag that preserves key order across
// parse/serialize round trips. Attribute sets are zone-defined and open:
// values are strings, numbers (json.Number), booleans, nil, or raw JSON
// for nested objects and arrays.
type Properties struct {
	entries []propertyEntry
}

type propertyEntry struct {
	Key   string
	Value any
}

// NewProperties returns an empty attribute bag.
func NewProperties() *Properties {
	return &Properties{}
}

// Len returns the number of attributes.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Keys returns the attribute names in document order.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, len(p.entries))
	for i, e := range p.entries {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the value for key and whether it exists.
func (p *Properties) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	for _, e := range p.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Set assigns key to value, keeping the existing position for known keys
// and appending new keys at the end.
func (p *Properties) Set(key string, value any) {
	for i := range p.entries {
		if p.entries[i].Key == key {
			p.entries[i].Value = value
			return
		}
	}
	p.entries = append(p.entries, propertyEntry{Key: key, Value: value})
}

// Delete removes key. Returns true if it existed.
func (p *Properties) Delete(key string) bool {
	if p == nil {
		return false
	}
	for i := range p.entries {
		if p.entries[i].Key == key {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Raw JSON values are copied byte-for-byte.
func (p *Properties) Clone() *Properties {
	if p == nil {
		return nil
	}
	out := &Properties{entries: make([]propertyEntry, len(p.entries))}
	for i, e := range p.entries {
		value := e.Value
		if raw, ok := e.Value.(json.RawMessage); ok {
			value = json.RawMessage(append([]byte(nil), raw...))
		}
		out.entries[i] = propertyEntry{Key: e.Key, Value: value}
	}
	return out
}

// MarshalJSON writes the attributes as an object with keys in document
// order.
func (p *Properties) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range p.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", e.Key, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, recording keys in encounter order.
// Scalars decode to string, json.Number, bool, or nil; objects and arrays
// stay raw.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		p.entries = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("properties: expected object, got %v", tok)
	}

	p.entries = p.entries[:0]
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("properties: non-string key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		p.entries = append(p.entries, propertyEntry{Key: key, Value: decodeValue(raw)})
	}

	// consume closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// decodeValue turns raw JSON into a scalar where possible, keeping
// composite values raw so their internal ordering survives untouched.
func decodeValue(raw json.RawMessage) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	switch trimmed[0] {
	case '{', '[':
		return json.RawMessage(trimmed)
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err == nil {
			return b
		}
	case 'n':
		return nil
	default:
		return json.Number(trimmed)
	}
	return json.RawMessage(trimmed)
}
