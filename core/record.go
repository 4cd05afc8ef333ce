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

import "slices"

// Record is the stored form of an entity: a field map keyed by name.
type Record map[string]any

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return NormalizeValue(map[string]any(r)).(Record)
}

// NormalizeValue canonicalizes a decoded value: integers become int64,
// float32 becomes float64, nested maps become Record, slices become []any.
// The result never aliases the input.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return normalizeUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return normalizeUint(x)
	case float32:
		return float64(x)
	case Record:
		return normalizeMap(x)
	case map[string]any:
		return normalizeMap(x)
	case map[string]string:
		out := make(Record, len(x))
		for k, s := range x {
			out[k] = s
		}
		return out
	case map[any]any:
		out := make(Record, len(x))
		for k, e := range x {
			if s, ok := k.(string); ok {
				out[s] = NormalizeValue(e)
			}
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = NormalizeValue(e)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	case []byte:
		return slices.Clone(x)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) Record {
	out := make(Record, len(m))
	for k, e := range m {
		out[k] = NormalizeValue(e)
	}
	return out
}
