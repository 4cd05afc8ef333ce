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
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/storekit/core"
	"github.com/poiesic/storekit/storage"
)

// maxGeneratedKey is the largest key a key generator hands out (2^53).
const maxGeneratedKey = 1 << 53

// objectStore is a store handle bound to one transaction.
type objectStore struct {
	tx   *transaction
	meta *storage.StoreMeta
}

var _ storage.ObjectStore = (*objectStore)(nil)

func (s *objectStore) Name() string {
	return s.meta.Name
}

func (s *objectStore) KeyPath() core.KeyPath {
	return s.meta.KeyPath
}

func (s *objectStore) AutoIncrement() bool {
	return s.meta.AutoIncrement
}

func (s *objectStore) IndexNames() []string {
	return s.meta.IndexNames()
}

func (s *objectStore) Index(name string) (storage.Index, error) {
	idx := s.meta.Index(name)
	if idx == nil {
		return nil, fmt.Errorf("%w: index %q on object store %q", storage.ErrNotFound, name, s.meta.Name)
	}
	return &index{store: s, meta: idx}, nil
}

func (s *objectStore) dbID() []byte {
	return s.tx.conn.db.id
}

func (s *objectStore) Add(value core.Record, key any) storage.Request {
	return s.write(value, key, true)
}

func (s *objectStore) Put(value core.Record, key any) storage.Request {
	return s.write(value, key, false)
}

// write validates the record and key synchronously and queues the store operation.
// Validation failures fail the request without aborting the transaction.
func (s *objectStore) write(value core.Record, key any, noOverwrite bool) storage.Request {
	if s.tx.mode != storage.ReadWrite {
		return failedRequest(storage.ErrReadOnly)
	}
	if value == nil {
		return failedRequest(fmt.Errorf("%w: record is nil", storage.ErrData))
	}
	rec := value.Clone()

	var primary any
	switch {
	case key != nil:
		if !s.meta.KeyPath.IsZero() {
			return failedRequest(fmt.Errorf("%w: object store %q uses in-line keys", storage.ErrData, s.meta.Name))
		}
		k, err := core.NormalizeKey(key)
		if err != nil {
			return failedRequest(fmt.Errorf("%w: %w", storage.ErrData, err))
		}
		primary = k
	case s.meta.KeyPath.IsZero():
		if !s.meta.AutoIncrement {
			return failedRequest(fmt.Errorf("%w: object store %q requires an explicit key", storage.ErrData, s.meta.Name))
		}
	default:
		raw, ok := s.meta.KeyPath.Extract(rec)
		if !ok {
			if !s.meta.AutoIncrement {
				return failedRequest(fmt.Errorf("%w: record has no value at key path %s", storage.ErrData, s.meta.KeyPath))
			}
			break
		}
		k, err := core.NormalizeKey(raw)
		if err != nil {
			return failedRequest(fmt.Errorf("%w: %w", storage.ErrData, err))
		}
		primary = k
	}

	return s.tx.enqueue(func(txn *badger.Txn) (any, error) {
		return s.store(txn, rec, primary, noOverwrite)
	})
}

func (s *objectStore) store(txn *badger.Txn, rec core.Record, primary any, noOverwrite bool) (any, error) {
	if primary == nil {
		next, err := s.nextKey(txn)
		if err != nil {
			return nil, err
		}
		primary = next
		if !s.meta.KeyPath.IsZero() {
			if err := s.meta.KeyPath.Inject(rec, primary); err != nil {
				return nil, fmt.Errorf("%w: %w", storage.ErrData, err)
			}
		}
	} else if s.meta.AutoIncrement {
		if err := s.bumpGenerator(txn, primary); err != nil {
			return nil, err
		}
	}

	encPK, err := encodeKey(primary)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrData, err)
	}
	recordKey := makeRecordKey(s.dbID(), s.meta.ID, encPK)

	old, err := readRecord(txn, recordKey)
	if err != nil {
		return nil, err
	}
	if old != nil {
		if noOverwrite {
			return nil, fmt.Errorf("%w: key %v already exists in object store %q", storage.ErrConstraint, primary, s.meta.Name)
		}
		if err := s.removeIndexEntries(txn, old, encPK); err != nil {
			return nil, err
		}
	}

	for i := range s.meta.Indexes {
		idx := &s.meta.Indexes[i]
		for _, ik := range indexKeys(idx, rec) {
			if idx.Unique {
				taken, err := indexKeyTaken(txn, makeIndexKey(s.dbID(), s.meta.ID, idx.ID, ik, nil), encPK)
				if err != nil {
					return nil, err
				}
				if taken {
					return nil, fmt.Errorf("%w: unique index %q already contains the key", storage.ErrConstraint, idx.Name)
				}
			}
			if err := txn.Set(makeIndexKey(s.dbID(), s.meta.ID, idx.ID, ik, encPK), encPK); err != nil {
				return nil, err
			}
		}
	}

	data, err := storage.MarshalRecord(rec)
	if err != nil {
		return nil, err
	}
	if err := txn.Set(recordKey, data); err != nil {
		return nil, err
	}
	return primary, nil
}

// nextKey advances the store's key generator.
func (s *objectStore) nextKey(txn *badger.Txn) (int64, error) {
	current, err := readGenerator(txn, makeGeneratorKey(s.dbID(), s.meta.ID))
	if err != nil {
		return 0, err
	}
	if current >= maxGeneratedKey {
		return 0, fmt.Errorf("%w: key generator of %q is exhausted", storage.ErrConstraint, s.meta.Name)
	}
	next := current + 1
	if err := writeGenerator(txn, makeGeneratorKey(s.dbID(), s.meta.ID), next); err != nil {
		return 0, err
	}
	return int64(next), nil
}

// bumpGenerator moves the generator past an explicit numeric key.
func (s *objectStore) bumpGenerator(txn *badger.Txn, key any) error {
	if core.TypeOfKey(key) != core.KeyTypeNumber {
		return nil
	}
	f := core.NumberAsFloat(key)
	if f < 1 {
		return nil
	}
	genKey := makeGeneratorKey(s.dbID(), s.meta.ID)
	current, err := readGenerator(txn, genKey)
	if err != nil {
		return err
	}
	next := uint64(maxGeneratedKey)
	if f < maxGeneratedKey {
		next = uint64(f)
	}
	if next <= current {
		return nil
	}
	return writeGenerator(txn, genKey, next)
}

func (s *objectStore) removeIndexEntries(txn *badger.Txn, rec core.Record, encPK []byte) error {
	for i := range s.meta.Indexes {
		idx := &s.meta.Indexes[i]
		for _, ik := range indexKeys(idx, rec) {
			if err := txn.Delete(makeIndexKey(s.dbID(), s.meta.ID, idx.ID, ik, encPK)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *objectStore) Get(query any) storage.Request {
	r, err := core.ToKeyRange(query)
	if err != nil {
		return failedRequest(fmt.Errorf("%w: %w", storage.ErrData, err))
	}
	return s.tx.enqueue(func(txn *badger.Txn) (any, error) {
		records, err := s.scanRecords(txn, r, 1)
		if err != nil || len(records) == 0 {
			return nil, err
		}
		return records[0].record, nil
	})
}

func (s *objectStore) GetAll(query any, count int) storage.Request {
	r, err := core.ToKeyRange(query)
	if err != nil {
		return failedRequest(fmt.Errorf("%w: %w", storage.ErrData, err))
	}
	return s.tx.enqueue(func(txn *badger.Txn) (any, error) {
		entries, err := s.scanRecords(txn, r, count)
		if err != nil {
			return nil, err
		}
		records := make([]core.Record, len(entries))
		for i, e := range entries {
			records[i] = e.record
		}
		return records, nil
	})
}

func (s *objectStore) GetAllKeys(query any, count int) storage.Request {
	r, err := core.ToKeyRange(query)
	if err != nil {
		return failedRequest(fmt.Errorf("%w: %w", storage.ErrData, err))
	}
	return s.tx.enqueue(func(txn *badger.Txn) (any, error) {
		keys := []any{}
		err := scanRange(txn, makeStorePrefix(s.dbID(), s.meta.ID), r, false, func(key any, _ *badger.Item) (bool, error) {
			keys = append(keys, key)
			return count <= 0 || len(keys) < count, nil
		})
		return keys, err
	})
}

func (s *objectStore) Count(query any) storage.Request {
	r, err := core.ToKeyRange(query)
	if err != nil {
		return failedRequest(fmt.Errorf("%w: %w", storage.ErrData, err))
	}
	return s.tx.enqueue(func(txn *badger.Txn) (any, error) {
		n := 0
		err := scanRange(txn, makeStorePrefix(s.dbID(), s.meta.ID), r, false, func(any, *badger.Item) (bool, error) {
			n++
			return true, nil
		})
		return n, err
	})
}

func (s *objectStore) Delete(query any) storage.Request {
	if s.tx.mode != storage.ReadWrite {
		return failedRequest(storage.ErrReadOnly)
	}
	r, err := core.ToKeyRange(query)
	if err != nil {
		return failedRequest(fmt.Errorf("%w: %w", storage.ErrData, err))
	}
	return s.tx.enqueue(func(txn *badger.Txn) (any, error) {
		entries, err := s.scanRecords(txn, r, 0)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if err := s.removeIndexEntries(txn, e.record, e.encPK); err != nil {
				return nil, err
			}
			if err := txn.Delete(makeRecordKey(s.dbID(), s.meta.ID, e.encPK)); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

func (s *objectStore) Clear() storage.Request {
	if s.tx.mode != storage.ReadWrite {
		return failedRequest(storage.ErrReadOnly)
	}
	return s.tx.enqueue(func(txn *badger.Txn) (any, error) {
		if err := deletePrefix(txn, makeStorePrefix(s.dbID(), s.meta.ID)); err != nil {
			return nil, err
		}
		return nil, deletePrefix(txn, makeIndexStorePrefix(s.dbID(), s.meta.ID))
	})
}

type storedRecord struct {
	encPK  []byte
	record core.Record
}

// scanRecords reads records whose primary key falls in r, in key order.
func (s *objectStore) scanRecords(txn *badger.Txn, r *core.KeyRange, count int) ([]storedRecord, error) {
	prefix := makeStorePrefix(s.dbID(), s.meta.ID)
	var out []storedRecord
	err := scanRange(txn, prefix, r, true, func(_ any, item *badger.Item) (bool, error) {
		var rec core.Record
		err := item.Value(func(val []byte) error {
			var err error
			rec, err = storage.UnmarshalRecord(val)
			return err
		})
		if err != nil {
			return false, err
		}
		out = append(out, storedRecord{encPK: item.KeyCopy(nil)[len(prefix):], record: rec})
		return count <= 0 || len(out) < count, nil
	})
	return out, err
}

// index is an index handle bound to one transaction.
type index struct {
	store *objectStore
	meta  *storage.IndexMeta
}

var _ storage.Index = (*index)(nil)

func (i *index) Name() string {
	return i.meta.Name
}

func (i *index) KeyPath() core.KeyPath {
	return i.meta.KeyPath
}

func (i *index) Unique() bool {
	return i.meta.Unique
}

func (i *index) MultiEntry() bool {
	return i.meta.MultiEntry
}

func (i *index) Get(query any) storage.Request {
	r, err := core.ToKeyRange(query)
	if err != nil {
		return failedRequest(fmt.Errorf("%w: %w", storage.ErrData, err))
	}
	return i.store.tx.enqueue(func(txn *badger.Txn) (any, error) {
		records, err := i.records(txn, r, 1)
		if err != nil || len(records) == 0 {
			return nil, err
		}
		return records[0], nil
	})
}

func (i *index) GetAll(query any, count int) storage.Request {
	r, err := core.ToKeyRange(query)
	if err != nil {
		return failedRequest(fmt.Errorf("%w: %w", storage.ErrData, err))
	}
	return i.store.tx.enqueue(func(txn *badger.Txn) (any, error) {
		return i.records(txn, r, count)
	})
}

func (i *index) GetAllKeys(query any, count int) storage.Request {
	r, err := core.ToKeyRange(query)
	if err != nil {
		return failedRequest(fmt.Errorf("%w: %w", storage.ErrData, err))
	}
	return i.store.tx.enqueue(func(txn *badger.Txn) (any, error) {
		pks, err := i.primaryKeys(txn, r, count)
		if err != nil {
			return nil, err
		}
		keys := make([]any, 0, len(pks))
		for _, pk := range pks {
			k, _, err := decodeKey(pk)
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
		return keys, nil
	})
}

func (i *index) Count(query any) storage.Request {
	r, err := core.ToKeyRange(query)
	if err != nil {
		return failedRequest(fmt.Errorf("%w: %w", storage.ErrData, err))
	}
	return i.store.tx.enqueue(func(txn *badger.Txn) (any, error) {
		pks, err := i.primaryKeys(txn, r, 0)
		return len(pks), err
	})
}

// primaryKeys returns the encoded primary keys of entries whose index key falls in r.
func (i *index) primaryKeys(txn *badger.Txn, r *core.KeyRange, count int) ([][]byte, error) {
	prefix := makeIndexPrefix(i.store.dbID(), i.store.meta.ID, i.meta.ID)
	var pks [][]byte
	err := scanRange(txn, prefix, r, false, func(_ any, item *badger.Item) (bool, error) {
		pk, err := item.ValueCopy(nil)
		if err != nil {
			return false, err
		}
		pks = append(pks, pk)
		return count <= 0 || len(pks) < count, nil
	})
	return pks, err
}

func (i *index) records(txn *badger.Txn, r *core.KeyRange, count int) ([]core.Record, error) {
	pks, err := i.primaryKeys(txn, r, count)
	if err != nil {
		return nil, err
	}
	records := make([]core.Record, 0, len(pks))
	for _, pk := range pks {
		rec, err := readRecord(txn, makeRecordKey(i.store.dbID(), i.store.meta.ID, pk))
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// scanRange iterates keys under prefix whose decoded key falls in r, in order.
// fn returns false to stop. The iterator is closed before scanRange returns,
// so callers may issue further operations on txn afterwards.
func scanRange(txn *badger.Txn, prefix []byte, r *core.KeyRange, prefetch bool, fn func(key any, item *badger.Item) (bool, error)) error {
	start, err := keyRangeStart(prefix, r)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrData, err)
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = prefetch
	iter := txn.NewIterator(opts)
	defer iter.Close()

	for iter.Seek(start); iter.Valid(); iter.Next() {
		item := iter.Item()
		key, _, err := decodeKey(item.Key()[len(prefix):])
		if err != nil {
			return err
		}
		if r.Upper != nil {
			c := core.CompareKeys(key, r.Upper)
			if c > 0 || (c == 0 && r.UpperOpen) {
				return nil
			}
		}
		if r.Lower != nil && r.LowerOpen && core.CompareKeys(key, r.Lower) == 0 {
			continue
		}
		more, err := fn(key, item)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

// indexKeys returns the encoded index keys a record contributes to idx.
// Records without a valid key at the index's key path are not indexed.
func indexKeys(idx *storage.IndexMeta, rec core.Record) [][]byte {
	raw, ok := idx.KeyPath.Extract(rec)
	if !ok {
		return nil
	}
	if elems, isArray := raw.([]any); isArray && idx.MultiEntry {
		seen := make(map[string]struct{}, len(elems))
		var out [][]byte
		for _, e := range elems {
			k, err := core.NormalizeKey(e)
			if err != nil {
				continue
			}
			enc, err := encodeKey(k)
			if err != nil {
				continue
			}
			if _, dup := seen[string(enc)]; dup {
				continue
			}
			seen[string(enc)] = struct{}{}
			out = append(out, enc)
		}
		return out
	}
	k, err := core.NormalizeKey(raw)
	if err != nil {
		return nil
	}
	enc, err := encodeKey(k)
	if err != nil {
		return nil
	}
	return [][]byte{enc}
}

// indexKeyTaken reports whether prefix (an index key) holds an entry for a different primary key.
func indexKeyTaken(txn *badger.Txn, prefix, encPK []byte) (bool, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := txn.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		pk, err := iter.Item().ValueCopy(nil)
		if err != nil {
			return false, err
		}
		if string(pk) != string(encPK) {
			return true, nil
		}
	}
	return false, nil
}

func readRecord(txn *badger.Txn, key []byte) (core.Record, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec core.Record
	err = item.Value(func(val []byte) error {
		var err error
		rec, err = storage.UnmarshalRecord(val)
		return err
	})
	return rec, err
}

func readGenerator(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var current uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return storage.ErrTruncatedData
		}
		current = binary.BigEndian.Uint64(val)
		return nil
	})
	return current, err
}

func writeGenerator(txn *badger.Txn, key []byte, v uint64) error {
	return txn.Set(key, binary.BigEndian.AppendUint64(nil, v))
}
