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
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/storekit/core"
	"github.com/poiesic/storekit/storage"
)

// upgradeSchema is the storage.Schema handed to upgrade handlers. Every change
// is written to the upgrade's Badger transaction and the in-memory schema copy.
type upgradeSchema struct {
	db         *database
	txn        *badger.Txn
	meta       *storage.DatabaseMeta
	oldVersion uint64
	version    uint64
}

var _ storage.Schema = (*upgradeSchema)(nil)

func (u *upgradeSchema) OldVersion() uint64 {
	return u.oldVersion
}

func (u *upgradeSchema) Version() uint64 {
	return u.version
}

func (u *upgradeSchema) StoreNames() []string {
	names := u.meta.Info().StoreNames()
	slices.Sort(names)
	return names
}

func (u *upgradeSchema) HasStore(name string) bool {
	return u.meta.Store(name) != nil
}

func (u *upgradeSchema) Store(name string) (storage.StoreSchema, error) {
	if !u.HasStore(name) {
		return nil, fmt.Errorf("%w: object store %q", storage.ErrNotFound, name)
	}
	return &storeSchema{schema: u, name: name}, nil
}

func (u *upgradeSchema) CreateStore(name string, opts storage.StoreOptions) (storage.StoreSchema, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: object store name is required", storage.ErrData)
	}
	if u.HasStore(name) {
		return nil, fmt.Errorf("%w: object store %q already exists", storage.ErrConstraint, name)
	}
	if err := opts.KeyPath.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrData, err)
	}
	if opts.AutoIncrement && opts.KeyPath.IsComposite() {
		return nil, fmt.Errorf("%w: auto-increment store %q cannot use a composite key path", storage.ErrData, name)
	}

	u.meta.Stores = append(u.meta.Stores, storage.StoreMeta{
		ID:            u.meta.NextStoreID,
		Name:          name,
		KeyPath:       opts.KeyPath,
		AutoIncrement: opts.AutoIncrement,
		NextIndexID:   1,
	})
	u.meta.NextStoreID++
	return &storeSchema{schema: u, name: name}, nil
}

func (u *upgradeSchema) DeleteStore(name string) error {
	s := u.meta.Store(name)
	if s == nil {
		return fmt.Errorf("%w: object store %q", storage.ErrNotFound, name)
	}
	id := s.ID
	for _, prefix := range [][]byte{
		makeStorePrefix(u.db.id, id),
		makeIndexStorePrefix(u.db.id, id),
		makeGeneratorKey(u.db.id, id),
	} {
		if err := deletePrefix(u.txn, prefix); err != nil {
			return err
		}
	}
	u.meta.Stores = slices.DeleteFunc(u.meta.Stores, func(st storage.StoreMeta) bool {
		return st.Name == name
	})
	return nil
}

// storeSchema looks its store up by name on every call since the schema's
// store slice may be reallocated by CreateStore.
type storeSchema struct {
	schema *upgradeSchema
	name   string
}

var _ storage.StoreSchema = (*storeSchema)(nil)

func (s *storeSchema) meta() *storage.StoreMeta {
	return s.schema.meta.Store(s.name)
}

func (s *storeSchema) Name() string {
	return s.name
}

func (s *storeSchema) KeyPath() core.KeyPath {
	if m := s.meta(); m != nil {
		return m.KeyPath
	}
	return core.KeyPath{}
}

func (s *storeSchema) AutoIncrement() bool {
	m := s.meta()
	return m != nil && m.AutoIncrement
}

func (s *storeSchema) IndexNames() []string {
	if m := s.meta(); m != nil {
		return m.IndexNames()
	}
	return nil
}

func (s *storeSchema) HasIndex(name string) bool {
	m := s.meta()
	return m != nil && m.Index(name) != nil
}

func (s *storeSchema) CreateIndex(name string, keyPath core.KeyPath, opts storage.IndexOptions) error {
	m := s.meta()
	if m == nil {
		return fmt.Errorf("%w: object store %q was deleted", storage.ErrInvalidState, s.name)
	}
	if name == "" {
		return fmt.Errorf("%w: index name is required", storage.ErrData)
	}
	if m.Index(name) != nil {
		return fmt.Errorf("%w: index %q already exists on %q", storage.ErrConstraint, name, s.name)
	}
	if keyPath.IsZero() {
		return fmt.Errorf("%w: index %q needs a key path", storage.ErrData, name)
	}
	if err := keyPath.Validate(); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrData, err)
	}
	if opts.MultiEntry && keyPath.IsComposite() {
		return fmt.Errorf("%w: multi-entry index %q cannot use a composite key path", storage.ErrData, name)
	}

	idx := storage.IndexMeta{
		ID:         m.NextIndexID,
		Name:       name,
		KeyPath:    keyPath,
		Unique:     opts.Unique,
		MultiEntry: opts.MultiEntry,
	}
	if err := s.populate(m, &idx); err != nil {
		return err
	}
	m.Indexes = append(m.Indexes, idx)
	m.NextIndexID++
	return nil
}

// populate indexes the records already in the store.
func (s *storeSchema) populate(m *storage.StoreMeta, idx *storage.IndexMeta) error {
	txn := s.schema.txn
	dbID := s.schema.db.id
	prefix := makeStorePrefix(dbID, m.ID)

	var records []storedRecord
	err := scanRange(txn, prefix, &core.KeyRange{}, true, func(_ any, item *badger.Item) (bool, error) {
		var rec core.Record
		err := item.Value(func(val []byte) error {
			var err error
			rec, err = storage.UnmarshalRecord(val)
			return err
		})
		if err != nil {
			return false, err
		}
		records = append(records, storedRecord{encPK: item.KeyCopy(nil)[len(prefix):], record: rec})
		return true, nil
	})
	if err != nil {
		return err
	}

	owners := make(map[string]string)
	for _, r := range records {
		for _, ik := range indexKeys(idx, r.record) {
			if idx.Unique {
				if owner, ok := owners[string(ik)]; ok && owner != string(r.encPK) {
					return fmt.Errorf("%w: existing records violate unique index %q", storage.ErrConstraint, idx.Name)
				}
				owners[string(ik)] = string(r.encPK)
			}
			if err := txn.Set(makeIndexKey(dbID, m.ID, idx.ID, ik, r.encPK), r.encPK); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *storeSchema) DeleteIndex(name string) error {
	m := s.meta()
	if m == nil {
		return fmt.Errorf("%w: object store %q was deleted", storage.ErrInvalidState, s.name)
	}
	idx := m.Index(name)
	if idx == nil {
		return fmt.Errorf("%w: index %q on %q", storage.ErrNotFound, name, s.name)
	}
	if err := deletePrefix(s.schema.txn, makeIndexPrefix(s.schema.db.id, m.ID, idx.ID)); err != nil {
		return err
	}
	m.Indexes = slices.DeleteFunc(m.Indexes, func(ix storage.IndexMeta) bool {
		return ix.Name == name
	})
	return nil
}
