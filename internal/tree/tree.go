// Package tree implements the document model shared by the parser, the merge
// engine and provider expansion.
//
// A document is a Node. The set of node kinds is closed: Scalar, *Sequence,
// *Mapping and the two directive markers Replace and Delete. Code switching
// on a Node should handle every kind; the markers only ever appear in freshly
// parsed override documents and are resolved by the merge engine.
package tree

import (
	"fmt"
	"strconv"
)

// Node is a value in a document tree.
type Node interface {
	node()
}

// Resolved YAML core schema tags used for scalars.
const (
	TagStr   = "!!str"
	TagInt   = "!!int"
	TagFloat = "!!float"
	TagBool  = "!!bool"
	TagNull  = "!!null"
)

// Scalar is a leaf value. Tag is the resolved YAML tag and Value its literal
// text, so a scalar is written back the way it was read.
type Scalar struct {
	Tag   string
	Value string
}

// Sequence is an ordered list of nodes.
type Sequence struct {
	Items []Node
}

// Mapping is a string keyed map that remembers insertion order.
type Mapping struct {
	keys   []string
	values map[string]Node
}

// Replace declares that a key takes exactly Value, without merging.
type Replace struct {
	Value Node
}

// Delete declares that a key is removed from the destination.
type Delete struct{}

func (Scalar) node()    {}
func (*Sequence) node() {}
func (*Mapping) node()  {}
func (Replace) node()   {}
func (Delete) node()    {}

// String returns a string scalar.
func String(s string) Scalar { return Scalar{Tag: TagStr, Value: s} }

// Int returns an integer scalar.
func Int(i int) Scalar { return Scalar{Tag: TagInt, Value: strconv.Itoa(i)} }

// Bool returns a boolean scalar.
func Bool(b bool) Scalar { return Scalar{Tag: TagBool, Value: strconv.FormatBool(b)} }

// Null returns the null scalar.
func Null() Scalar { return Scalar{Tag: TagNull, Value: "null"} }

// Text returns the scalar text if n is a string scalar.
func Text(n Node) (string, bool) {
	s, ok := n.(Scalar)
	if !ok || s.Tag != TagStr {
		return "", false
	}
	return s.Value, true
}

// NewSequence returns a sequence holding a copy of items. Items is never nil.
func NewSequence(items ...Node) *Sequence {
	return &Sequence{Items: append(make([]Node, 0, len(items)), items...)}
}

// Len returns the number of items.
func (s *Sequence) Len() int { return len(s.Items) }

// Append adds items to the end of the sequence.
func (s *Sequence) Append(items ...Node) {
	s.Items = append(s.Items, items...)
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{values: map[string]Node{}}
}

// Len returns the number of keys.
func (m *Mapping) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order.
func (m *Mapping) Keys() []string {
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// Get returns the value stored under key.
func (m *Mapping) Get(key string) (Node, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set stores value under key. An existing key keeps its position.
func (m *Mapping) Set(key string, value Node) {
	if m.values == nil {
		m.values = map[string]Node{}
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Delete removes key and reports whether it was present.
func (m *Mapping) Delete(key string) bool {
	if _, ok := m.values[key]; !ok {
		return false
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Each calls fn for every entry in insertion order. The mapping must not be
// modified by fn.
func (m *Mapping) Each(fn func(key string, value Node)) {
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}

// Mapping returns the mapping stored under key, if any.
func (m *Mapping) Mapping(key string) (*Mapping, bool) {
	v, ok := m.values[key]
	if !ok {
		return nil, false
	}
	child, ok := v.(*Mapping)
	return child, ok
}

// Sequence returns the sequence stored under key, if any.
func (m *Mapping) Sequence(key string) (*Sequence, bool) {
	v, ok := m.values[key]
	if !ok {
		return nil, false
	}
	child, ok := v.(*Sequence)
	return child, ok
}

// Clone returns a deep copy of n.
func Clone(n Node) Node {
	switch v := n.(type) {
	case Scalar:
		return v
	case *Sequence:
		items := make([]Node, len(v.Items))
		for i, item := range v.Items {
			items[i] = Clone(item)
		}
		return &Sequence{Items: items}
	case *Mapping:
		c := NewMapping()
		v.Each(func(k string, value Node) {
			c.Set(k, Clone(value))
		})
		return c
	case Replace:
		return Replace{Value: Clone(v.Value)}
	case Delete:
		return v
	case nil:
		return nil
	default:
		panic(fmt.Sprintf("tree: unknown node type %T", n))
	}
}

// Kind returns a short human readable name of the node kind.
func Kind(n Node) string {
	switch n.(type) {
	case Scalar:
		return "scalar"
	case *Sequence:
		return "sequence"
	case *Mapping:
		return "mapping"
	case Replace:
		return "!replace"
	case Delete:
		return "!delete"
	default:
		return fmt.Sprintf("%T", n)
	}
}
