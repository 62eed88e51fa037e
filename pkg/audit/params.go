package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Params is an ordered parameter mapping. Keys are unique and keep the
// position of their first insertion. The zero value is ready to use.
type Params struct {
	keys   []string
	values map[string]string
}

// Set adds or replaces a parameter. Replacing keeps the original position.
func (p *Params) Set(key, value string) {
	if p.values == nil {
		p.values = make(map[string]string)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Setf is Set with fmt formatting.
func (p *Params) Setf(key, format string, args ...any) {
	p.Set(key, fmt.Sprintf(format, args...))
}

// Get returns the value stored under key.
func (p *Params) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (p *Params) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of parameters.
func (p *Params) Len() int {
	return len(p.keys)
}

// Clone returns an independent copy.
func (p *Params) Clone() Params {
	var c Params
	for _, k := range p.keys {
		c.Set(k, p.values[k])
	}
	return c
}

// MarshalJSON renders an object whose members follow insertion order.
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// LogValue implements slog.LogValuer.
func (p Params) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(p.keys))
	for _, k := range p.keys {
		attrs = append(attrs, slog.String(k, p.values[k]))
	}
	return slog.GroupValue(attrs...)
}
