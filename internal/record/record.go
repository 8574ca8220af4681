// Package record is the value model of a normalized document: a tree of
// ordered groups whose leaves are plain text.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// RawKey holds the original text of a value that was split or collided.
const RawKey = "_raw"

// Value is either Text or *Group.
type Value interface {
	IsEmpty() bool
	value()
}

// Text is a plain string leaf.
type Text string

func (Text) value() {}

// IsEmpty reports whether the text is blank.
func (t Text) IsEmpty() bool { return strings.TrimSpace(string(t)) == "" }

// Group is an insertion-ordered map of values.
type Group struct {
	keys []string
	vals map[string]Value
}

func (*Group) value() {}

// NewGroup returns a group with the given keys set to empty text.
func NewGroup(keys ...string) *Group {
	g := &Group{vals: make(map[string]Value, len(keys))}
	for _, k := range keys {
		g.Set(k, Text(""))
	}
	return g
}

// Set assigns key, keeping its position if it already exists.
func (g *Group) Set(key string, v Value) {
	if g.vals == nil {
		g.vals = make(map[string]Value)
	}
	if _, ok := g.vals[key]; !ok {
		g.keys = append(g.keys, key)
	}
	g.vals[key] = v
}

// SetFirst assigns key, moving it to the front of the group.
func (g *Group) SetFirst(key string, v Value) {
	if g.vals == nil {
		g.vals = make(map[string]Value)
	}
	if _, ok := g.vals[key]; ok {
		for i, k := range g.keys {
			if k == key {
				g.keys = append(g.keys[:i], g.keys[i+1:]...)
				break
			}
		}
	}
	g.keys = append([]string{key}, g.keys...)
	g.vals[key] = v
}

// Get returns the value stored under key.
func (g *Group) Get(key string) (Value, bool) {
	v, ok := g.vals[key]
	return v, ok
}

// Text returns the text stored under key, or "" if missing or a group.
func (g *Group) Text(key string) string {
	if t, ok := g.vals[key].(Text); ok {
		return string(t)
	}
	return ""
}

// Has reports whether key exists.
func (g *Group) Has(key string) bool {
	_, ok := g.vals[key]
	return ok
}

// Keys returns keys in insertion order.
func (g *Group) Keys() []string {
	out := make([]string, len(g.keys))
	copy(out, g.keys)
	return out
}

// Len is the number of keys.
func (g *Group) Len() int { return len(g.keys) }

// IsEmpty reports whether every value in the group is empty.
func (g *Group) IsEmpty() bool {
	for _, k := range g.keys {
		if !g.vals[k].IsEmpty() {
			return false
		}
	}
	return true
}

// Lookup follows a dot-separated path.
func (g *Group) Lookup(path string) (Value, bool) {
	var cur Value = g
	for _, part := range strings.Split(path, ".") {
		grp, ok := cur.(*Group)
		if !ok {
			return nil, false
		}
		cur, ok = grp.vals[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Clone returns a deep copy.
func (g *Group) Clone() *Group {
	out := &Group{keys: g.Keys(), vals: make(map[string]Value, len(g.vals))}
	for k, v := range g.vals {
		if sub, ok := v.(*Group); ok {
			out.vals[k] = sub.Clone()
		} else {
			out.vals[k] = v
		}
	}
	return out
}

// Walk calls fn for every text leaf with its dot path, in key order.
func (g *Group) Walk(fn func(path string, t Text)) {
	g.walk("", fn)
}

func (g *Group) walk(prefix string, fn func(string, Text)) {
	for _, k := range g.keys {
		p := k
		if prefix != "" {
			p = prefix + "." + k
		}
		switch v := g.vals[k].(type) {
		case Text:
			fn(p, v)
		case *Group:
			v.walk(p, fn)
		}
	}
}

// MarshalJSON writes keys in insertion order.
func (g *Group) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range g.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(g.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping document key order.
func (g *Group) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("record: expected JSON object")
	}
	parsed, err := decodeGroup(dec)
	if err != nil {
		return err
	}
	*g = *parsed
	return nil
}

func decodeGroup(dec *json.Decoder) (*Group, error) {
	g := NewGroup()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		g.Set(key, v)
	}
	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return g, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		if t == '{' {
			return decodeGroup(dec)
		}
		// Arrays are flattened to newline-joined text.
		var parts []string
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			if txt, ok := v.(Text); ok {
				parts = append(parts, string(txt))
			}
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return Text(strings.Join(parts, "\n")), nil
	case string:
		return Text(t), nil
	case nil:
		return Text(""), nil
	default:
		b, _ := json.Marshal(t)
		return Text(b), nil
	}
}
