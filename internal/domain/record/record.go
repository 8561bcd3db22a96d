// Package record models one row of a tabular corpus: an ordered set of
// fields whose values are either scalar strings or lists of strings.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/crossret/internal/domain"
)

// Value is a scalar string or a list of strings.
type Value struct {
	items []string
	list  bool
}

// Scalar builds a scalar value.
func Scalar(s string) Value {
	return Value{items: []string{s}}
}

// List builds a list value. The slice is copied.
func List(items ...string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{items: cp, list: true}
}

// IsList reports whether the value is a list.
func (v Value) IsList() bool { return v.list }

// Items returns list elements, or the scalar as a single element.
func (v Value) Items() []string {
	cp := make([]string, len(v.items))
	copy(cp, v.items)
	return cp
}

// Len is the number of elements (1 for a scalar).
func (v Value) Len() int { return len(v.items) }

// String joins list elements with a single space.
func (v Value) String() string {
	if !v.list {
		if len(v.items) == 0 {
			return ""
		}
		return v.items[0]
	}
	return strings.Join(v.items, " ")
}

// MarshalJSON renders scalars as strings and lists as arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.list {
		if v.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.items)
	}
	return json.Marshal(v.String())
}

// Field is a named value.
type Field struct {
	Name  string
	Value Value
}

// Record is an immutable ordered set of fields.
type Record struct {
	fields []Field
	index  map[string]int
}

// New creates a Record. Later duplicates of a field name are ignored.
func New(fields ...Field) Record {
	r := Record{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if _, dup := r.index[f.Name]; dup {
			continue
		}
		r.index[f.Name] = len(r.fields)
		r.fields = append(r.fields, f)
	}
	return r
}

// Fields returns fields in declaration order.
func (r Record) Fields() []Field {
	cp := make([]Field, len(r.fields))
	copy(cp, r.fields)
	return cp
}

// Names returns field names in declaration order.
func (r Record) Names() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

// Len is the number of fields.
func (r Record) Len() int { return len(r.fields) }

// Get looks up a field by name.
func (r Record) Get(name string) (Value, bool) {
	i, ok := r.index[name]
	if !ok {
		return Value{}, false
	}
	return r.fields[i].Value, true
}

// ID returns the scalar value of the identifier column.
func (r Record) ID(column string) (string, error) {
	v, ok := r.Get(column)
	if !ok {
		return "", fmt.Errorf("id column %q: %w", column, domain.ErrNotFound)
	}
	if v.IsList() {
		return "", fmt.Errorf("id column %q is a list", column)
	}
	return v.String(), nil
}

// Without returns a copy with the named fields dropped.
func (r Record) Without(names ...string) Record {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	kept := make([]Field, 0, len(r.fields))
	for _, f := range r.fields {
		if _, ok := drop[f.Name]; !ok {
			kept = append(kept, f)
		}
	}
	return New(kept...)
}

// MarshalJSON renders an object with keys in declaration order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
