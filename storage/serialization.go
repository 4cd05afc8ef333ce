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

package storage

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/storekit/core"
	"github.com/vmihailenco/msgpack/v5"
)

// MarshalRecord serializes a record to msgpack.
func MarshalRecord(record core.Record) ([]byte, error) {
	data, err := msgpack.Marshal(map[string]any(record))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalRecord deserializes a msgpack record and normalizes its values.
func UnmarshalRecord(data []byte) (core.Record, error) {
	var m map[string]any
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if m == nil {
		return core.Record{}, nil
	}
	return core.NormalizeValue(m).(core.Record), nil
}

// EncodeEntity converts an entity into a record using its msgpack field names.
func EncodeEntity[T any](entity *T) (core.Record, error) {
	if entity == nil {
		return nil, fmt.Errorf("%w: nil entity", ErrSerializationFailed)
	}
	data, err := msgpack.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return UnmarshalRecord(data)
}

// DecodeEntity converts a record back into an entity.
func DecodeEntity[T any](record core.Record) (*T, error) {
	data, err := MarshalRecord(record)
	if err != nil {
		return nil, err
	}
	var entity T
	if err := msgpack.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &entity, nil
}

// DecodeInto decodes record onto an existing entity. Fields absent from
// record keep their current values.
func DecodeInto[T any](record core.Record, entity *T) error {
	if entity == nil {
		return fmt.Errorf("%w: nil entity", ErrSerializationFailed)
	}
	data, err := MarshalRecord(record)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(data, entity); err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return nil
}

// MarshalDatabaseMeta serializes schema metadata.
func MarshalDatabaseMeta(meta *DatabaseMeta) []byte {
	w := &musWriter{}
	w.string(meta.Name)
	w.uint64(meta.Version)
	w.uint64(meta.NextStoreID)
	w.uint64(uint64(len(meta.Stores)))
	for _, s := range meta.Stores {
		w.uint64(s.ID)
		w.string(s.Name)
		w.keyPath(s.KeyPath)
		w.bool(s.AutoIncrement)
		w.uint64(s.NextIndexID)
		w.uint64(uint64(len(s.Indexes)))
		for _, idx := range s.Indexes {
			w.uint64(idx.ID)
			w.string(idx.Name)
			w.keyPath(idx.KeyPath)
			w.bool(idx.Unique)
			w.bool(idx.MultiEntry)
		}
	}
	return w.buf
}

// UnmarshalDatabaseMeta deserializes schema metadata.
func UnmarshalDatabaseMeta(data []byte) (*DatabaseMeta, error) {
	r := &musReader{buf: data}
	meta := &DatabaseMeta{
		Name:        r.string(),
		Version:     r.uint64(),
		NextStoreID: r.uint64(),
	}
	storeCount := r.length()
	for i := 0; i < storeCount && r.err == nil; i++ {
		s := StoreMeta{
			ID:            r.uint64(),
			Name:          r.string(),
			KeyPath:       r.keyPath(),
			AutoIncrement: r.bool(),
			NextIndexID:   r.uint64(),
		}
		indexCount := r.length()
		for j := 0; j < indexCount && r.err == nil; j++ {
			s.Indexes = append(s.Indexes, IndexMeta{
				ID:         r.uint64(),
				Name:       r.string(),
				KeyPath:    r.keyPath(),
				Unique:     r.bool(),
				MultiEntry: r.bool(),
			})
		}
		meta.Stores = append(meta.Stores, s)
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: schema metadata: %w", ErrSerializationFailed, r.err)
	}
	return meta, nil
}

type musWriter struct {
	buf []byte
}

func (w *musWriter) grow(n int) []byte {
	start := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return w.buf[start:]
}

func (w *musWriter) uint64(v uint64) {
	varint.Uint64.Marshal(v, w.grow(varint.Uint64.Size(v)))
}

func (w *musWriter) string(v string) {
	ord.String.Marshal(v, w.grow(ord.String.Size(v)))
}

func (w *musWriter) bool(v bool) {
	ord.Bool.Marshal(v, w.grow(ord.Bool.Size(v)))
}

func (w *musWriter) keyPath(kp core.KeyPath) {
	w.bool(kp.IsComposite())
	fields := kp.Fields()
	w.uint64(uint64(len(fields)))
	for _, f := range fields {
		w.string(f)
	}
}

// musReader decodes sequentially and keeps the first error.
type musReader struct {
	buf []byte
	pos int
	err error
}

func (r *musReader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.buf[r.pos:])
	r.pos += n
	r.err = err
	return v
}

func (r *musReader) length() int {
	n := r.uint64()
	if r.err == nil && n > uint64(len(r.buf)) {
		r.err = ErrTruncatedData
		return 0
	}
	return int(n)
}

func (r *musReader) string() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.buf[r.pos:])
	r.pos += n
	r.err = err
	return v
}

func (r *musReader) bool() bool {
	if r.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.buf[r.pos:])
	r.pos += n
	r.err = err
	return v
}

func (r *musReader) keyPath() core.KeyPath {
	composite := r.bool()
	count := r.length()
	fields := make([]string, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		fields = append(fields, r.string())
	}
	switch {
	case composite:
		return core.Composite(fields...)
	case len(fields) == 1:
		return core.Path(fields[0])
	default:
		return core.KeyPath{}
	}
}
