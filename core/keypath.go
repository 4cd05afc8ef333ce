// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeyPath names the field, or ordered list of fields, a key is derived from.
// A single-field path and a one-element composite path are different key paths.
// The zero value means "no key path" (out-of-line keys).
type KeyPath struct {
	fields    []string
	composite bool
}

// Path returns a single-field key path. Dots address nested fields ("meta.id").
func Path(field string) KeyPath {
	return KeyPath{fields: []string{field}}
}

// Composite returns an ordered multi-field key path.
func Composite(fields ...string) KeyPath {
	return KeyPath{fields: slices.Clone(fields), composite: true}
}

// KeyPathOf converts a string, []string or []any of strings into a KeyPath.
// nil yields the zero KeyPath.
func KeyPathOf(v any) (KeyPath, error) {
	switch kp := v.(type) {
	case nil:
		return KeyPath{}, nil
	case KeyPath:
		return kp, nil
	case string:
		if kp == "" {
			return KeyPath{}, nil
		}
		return Path(kp), nil
	case []string:
		return Composite(kp...), nil
	case []any:
		fields := make([]string, 0, len(kp))
		for _, f := range kp {
			s, ok := f.(string)
			if !ok {
				return KeyPath{}, fmt.Errorf("%w: composite element %v is not a string", ErrInvalidKeyPath, f)
			}
			fields = append(fields, s)
		}
		return Composite(fields...), nil
	default:
		return KeyPath{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidKeyPath, v)
	}
}

// IsZero reports whether the key path is absent.
func (p KeyPath) IsZero() bool {
	return len(p.fields) == 0 && !p.composite
}

// IsComposite reports whether the key path is an ordered field list.
func (p KeyPath) IsComposite() bool {
	return p.composite
}

// Fields returns a copy of the path's field names.
func (p KeyPath) Fields() []string {
	return slices.Clone(p.fields)
}

// Equal reports structural equality. Composite paths compare order-sensitively.
func (p KeyPath) Equal(other KeyPath) bool {
	return p.composite == other.composite && slices.Equal(p.fields, other.fields)
}

// Validate checks that every field name is non-empty.
func (p KeyPath) Validate() error {
	if p.composite && len(p.fields) == 0 {
		return fmt.Errorf("%w: composite key path has no fields", ErrInvalidKeyPath)
	}
	for _, f := range p.fields {
		if f == "" {
			return fmt.Errorf("%w: empty field name", ErrInvalidKeyPath)
		}
	}
	return nil
}

// Value returns the path as a string or []string, matching its configured form.
func (p KeyPath) Value() any {
	if p.IsZero() {
		return nil
	}
	if p.composite {
		return p.Fields()
	}
	return p.fields[0]
}

// String renders the path in JSON form: "url" or ["url","method"].
func (p KeyPath) String() string {
	if p.IsZero() {
		return "null"
	}
	b, _ := json.Marshal(p.Value())
	return string(b)
}

// Extract reads the key path from rec. Composite paths yield a []any in field order.
// ok is false when any field is missing.
func (p KeyPath) Extract(rec Record) (any, bool) {
	if p.IsZero() {
		return nil, false
	}
	if !p.composite {
		return lookupField(rec, p.fields[0])
	}
	values := make([]any, 0, len(p.fields))
	for _, f := range p.fields {
		v, ok := lookupField(rec, f)
		if !ok {
			return nil, false
		}
		values = append(values, v)
	}
	return values, true
}

// Inject writes key at the key path inside rec, creating intermediate maps.
// Only single-field paths can be injected.
func (p KeyPath) Inject(rec Record, key any) error {
	if p.IsZero() || p.composite {
		return fmt.Errorf("%w: cannot inject into %s", ErrInvalidKeyPath, p)
	}
	parts := strings.Split(p.fields[0], ".")
	cur := map[string]any(rec)
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(cur[part])
		if !ok {
			if _, exists := cur[part]; exists {
				return fmt.Errorf("%w: %q is not an object", ErrInvalidKeyPath, part)
			}
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = key
	return nil
}

// MarshalJSON encodes the path as a string, an array of strings, or null.
func (p KeyPath) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Value())
}

// UnmarshalJSON accepts a string, an array of strings, or null.
func (p *KeyPath) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kp, err := KeyPathOf(raw)
	if err != nil {
		return err
	}
	*p = kp
	return nil
}

// MarshalYAML encodes the path as a scalar or a sequence.
func (p KeyPath) MarshalYAML() (any, error) {
	return p.Value(), nil
}

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (p *KeyPath) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		kp, err := KeyPathOf(s)
		if err != nil {
			return err
		}
		*p = kp
		return nil
	case yaml.SequenceNode:
		var fields []string
		if err := node.Decode(&fields); err != nil {
			return err
		}
		*p = Composite(fields...)
		return nil
	default:
		return fmt.Errorf("%w: unexpected yaml node kind %d", ErrInvalidKeyPath, node.Kind)
	}
}

func lookupField(rec Record, field string) (any, bool) {
	cur := map[string]any(rec)
	parts := strings.Split(field, ".")
	for i, part := range parts {
		v, ok := cur[part]
		if !ok || v == nil {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := asMap(v)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	default:
		return nil, false
	}
}
