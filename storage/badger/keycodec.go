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

package badger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/poiesic/storekit/core"
	"github.com/poiesic/storekit/storage"
)

// Type tags of encoded keys. Their order is the cross-type key order.
const (
	tagTerminator byte = 0x00
	tagNumber     byte = 0x10
	tagDate       byte = 0x20
	tagString     byte = 0x30
	tagBinary     byte = 0x40
	tagArray      byte = 0x50
)

const escapeByte byte = 0xFF

// encodeKey encodes a normalized key so that bytewise order matches core.CompareKeys.
// Strings and binaries escape 0x00 as 0x00 0xFF and end with 0x00 0x00, so no
// encoded key is a prefix of a different one.
func encodeKey(key any) ([]byte, error) {
	return appendKey(nil, key)
}

func appendKey(buf []byte, key any) ([]byte, error) {
	switch k := key.(type) {
	case int64:
		return appendNumber(buf, float64(k)), nil
	case float64:
		return appendNumber(buf, k), nil
	case time.Time:
		buf = append(buf, tagDate)
		buf = binary.BigEndian.AppendUint64(buf, uint64(k.Unix())^(1<<63))
		return binary.BigEndian.AppendUint32(buf, uint32(k.Nanosecond())), nil
	case string:
		return appendEscaped(append(buf, tagString), []byte(k)), nil
	case []byte:
		return appendEscaped(append(buf, tagBinary), k), nil
	case []any:
		buf = append(buf, tagArray)
		for _, e := range k {
			var err error
			if buf, err = appendKey(buf, e); err != nil {
				return nil, err
			}
		}
		return append(buf, tagTerminator), nil
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", core.ErrInvalidKey, key)
	}
}

func appendNumber(buf []byte, f float64) []byte {
	if f == 0 {
		f = 0 // folds -0 onto +0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return binary.BigEndian.AppendUint64(append(buf, tagNumber), bits)
}

func appendEscaped(buf, data []byte) []byte {
	for _, b := range data {
		buf = append(buf, b)
		if b == 0x00 {
			buf = append(buf, escapeByte)
		}
	}
	return append(buf, 0x00, 0x00)
}

// decodeKey decodes one key from the front of data and returns the bytes consumed.
func decodeKey(data []byte) (any, int, error) {
	if len(data) == 0 {
		return nil, 0, storage.ErrTruncatedData
	}
	switch data[0] {
	case tagNumber:
		if len(data) < 9 {
			return nil, 0, storage.ErrTruncatedData
		}
		bits := binary.BigEndian.Uint64(data[1:9])
		if bits&(1<<63) != 0 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		return numberKey(math.Float64frombits(bits)), 9, nil
	case tagDate:
		if len(data) < 13 {
			return nil, 0, storage.ErrTruncatedData
		}
		sec := int64(binary.BigEndian.Uint64(data[1:9]) ^ (1 << 63))
		nsec := int64(binary.BigEndian.Uint32(data[9:13]))
		return time.Unix(sec, nsec).UTC(), 13, nil
	case tagString:
		raw, n, err := decodeEscaped(data[1:])
		if err != nil {
			return nil, 0, err
		}
		return string(raw), n + 1, nil
	case tagBinary:
		raw, n, err := decodeEscaped(data[1:])
		if err != nil {
			return nil, 0, err
		}
		return raw, n + 1, nil
	case tagArray:
		pos := 1
		out := []any{}
		for {
			if pos >= len(data) {
				return nil, 0, storage.ErrTruncatedData
			}
			if data[pos] == tagTerminator {
				return out, pos + 1, nil
			}
			e, n, err := decodeKey(data[pos:])
			if err != nil {
				return nil, 0, err
			}
			out = append(out, e)
			pos += n
		}
	default:
		return nil, 0, fmt.Errorf("%w: unknown key tag 0x%02x", storage.ErrSerializationFailed, data[0])
	}
}

func decodeEscaped(data []byte) ([]byte, int, error) {
	out := []byte{}
	for i := 0; i < len(data); i++ {
		if data[i] != 0x00 {
			out = append(out, data[i])
			continue
		}
		if i+1 >= len(data) {
			return nil, 0, storage.ErrTruncatedData
		}
		switch data[i+1] {
		case 0x00:
			return out, i + 2, nil
		case escapeByte:
			out = append(out, 0x00)
			i++
		default:
			return nil, 0, fmt.Errorf("%w: bad escape sequence", storage.ErrSerializationFailed)
		}
	}
	return nil, 0, storage.ErrTruncatedData
}

// numberKey returns integral values as int64 so decoded keys match normalized ones.
func numberKey(f float64) any {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}

// keyRangeStart returns the encoded key to seek to for a range's lower bound.
func keyRangeStart(prefix []byte, r *core.KeyRange) ([]byte, error) {
	if r.Lower == nil {
		return prefix, nil
	}
	enc, err := encodeKey(r.Lower)
	if err != nil {
		return nil, err
	}
	return append(bytes.Clone(prefix), enc...), nil
}
