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
	"bytes"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// KeyType classifies keys. Keys of a lower type sort before keys of a higher type.
type KeyType int

const (
	KeyTypeInvalid KeyType = iota
	KeyTypeNumber
	KeyTypeDate
	KeyTypeString
	KeyTypeBinary
	KeyTypeArray
)

// NormalizeKey converts v into canonical key form: int64 or float64 for numbers,
// UTC time.Time for dates, string, []byte, or []any of normalized keys.
func NormalizeKey(v any) (any, error) {
	switch k := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrInvalidKey)
	case string:
		return k, nil
	case int:
		return int64(k), nil
	case int8:
		return int64(k), nil
	case int16:
		return int64(k), nil
	case int32:
		return int64(k), nil
	case int64:
		return k, nil
	case uint:
		return normalizeUint(uint64(k)), nil
	case uint8:
		return int64(k), nil
	case uint16:
		return int64(k), nil
	case uint32:
		return int64(k), nil
	case uint64:
		return normalizeUint(k), nil
	case float32:
		return normalizeFloat(float64(k))
	case float64:
		return normalizeFloat(k)
	case time.Time:
		if k.IsZero() {
			return nil, fmt.Errorf("%w: zero time", ErrInvalidKey)
		}
		return k.UTC(), nil
	case []byte:
		return slices.Clone(k), nil
	case []string:
		out := make([]any, len(k))
		for i, s := range k {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(k))
		for i, e := range k {
			n, err := NormalizeKey(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidKey, v)
	}
}

func normalizeUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func normalizeFloat(f float64) (any, error) {
	if math.IsNaN(f) {
		return nil, fmt.Errorf("%w: NaN", ErrInvalidKey)
	}
	return f, nil
}

// TypeOfKey returns the type of a normalized key.
func TypeOfKey(k any) KeyType {
	switch k.(type) {
	case int64, float64:
		return KeyTypeNumber
	case time.Time:
		return KeyTypeDate
	case string:
		return KeyTypeString
	case []byte:
		return KeyTypeBinary
	case []any:
		return KeyTypeArray
	default:
		return KeyTypeInvalid
	}
}

// CompareKeys orders two normalized keys, returning -1, 0 or 1.
func CompareKeys(a, b any) int {
	ta, tb := TypeOfKey(a), TypeOfKey(b)
	if ta != tb {
		if ta < tb {
			return -1
		}
		return 1
	}
	switch ta {
	case KeyTypeNumber:
		return compareNumbers(a, b)
	case KeyTypeDate:
		return a.(time.Time).Compare(b.(time.Time))
	case KeyTypeString:
		return strings.Compare(a.(string), b.(string))
	case KeyTypeBinary:
		return bytes.Compare(a.([]byte), b.([]byte))
	case KeyTypeArray:
		aa, ba := a.([]any), b.([]any)
		for i := 0; i < len(aa) && i < len(ba); i++ {
			if c := CompareKeys(aa[i], ba[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(aa) < len(ba):
			return -1
		case len(aa) > len(ba):
			return 1
		}
		return 0
	}
	return 0
}

func compareNumbers(a, b any) int {
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	if aInt && bInt {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	af, bf := NumberAsFloat(a), NumberAsFloat(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

// NumberAsFloat returns a normalized numeric key as float64.
func NumberAsFloat(k any) float64 {
	switch n := k.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return math.NaN()
}

// KeyRange bounds a query over keys. A nil bound is unbounded.
type KeyRange struct {
	Lower     any
	Upper     any
	LowerOpen bool
	UpperOpen bool
}

// Only returns a range matching exactly one key.
func Only(key any) *KeyRange {
	return &KeyRange{Lower: key, Upper: key}
}

// Bound returns a range with both ends set.
func Bound(lower, upper any, lowerOpen, upperOpen bool) *KeyRange {
	return &KeyRange{Lower: lower, Upper: upper, LowerOpen: lowerOpen, UpperOpen: upperOpen}
}

// LowerBound returns a range with only a lower end.
func LowerBound(lower any, open bool) *KeyRange {
	return &KeyRange{Lower: lower, LowerOpen: open}
}

// UpperBound returns a range with only an upper end.
func UpperBound(upper any, open bool) *KeyRange {
	return &KeyRange{Upper: upper, UpperOpen: open}
}

// Normalize returns a copy with normalized bounds, rejecting inverted or empty ranges.
func (r *KeyRange) Normalize() (*KeyRange, error) {
	out := &KeyRange{LowerOpen: r.LowerOpen, UpperOpen: r.UpperOpen}
	if r.Lower != nil {
		k, err := NormalizeKey(r.Lower)
		if err != nil {
			return nil, err
		}
		out.Lower = k
	}
	if r.Upper != nil {
		k, err := NormalizeKey(r.Upper)
		if err != nil {
			return nil, err
		}
		out.Upper = k
	}
	if out.Lower != nil && out.Upper != nil {
		c := CompareKeys(out.Lower, out.Upper)
		if c > 0 || (c == 0 && (out.LowerOpen || out.UpperOpen)) {
			return nil, fmt.Errorf("%w: lower bound is above upper bound", ErrInvalidKeyRange)
		}
	}
	return out, nil
}

// Includes reports whether a normalized key falls inside a normalized range.
func (r *KeyRange) Includes(key any) bool {
	if r.Lower != nil {
		c := CompareKeys(key, r.Lower)
		if c < 0 || (c == 0 && r.LowerOpen) {
			return false
		}
	}
	if r.Upper != nil {
		c := CompareKeys(key, r.Upper)
		if c > 0 || (c == 0 && r.UpperOpen) {
			return false
		}
	}
	return true
}

// ToKeyRange turns a query into a normalized range. A nil query matches everything;
// a plain key matches only itself.
func ToKeyRange(query any) (*KeyRange, error) {
	switch q := query.(type) {
	case nil:
		return &KeyRange{}, nil
	case *KeyRange:
		if q == nil {
			return &KeyRange{}, nil
		}
		return q.Normalize()
	case KeyRange:
		return q.Normalize()
	default:
		return Only(q).Normalize()
	}
}
