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

// Package repository provides typed CRUD access to one object store.
//
// Entities are Go structs with msgpack tags; the tag names are the record
// fields that store and index key paths refer to. A Repository never opens
// or closes connections. Every call is one transaction on its dbcontext.
package repository

import (
	"context"
	"fmt"

	"github.com/poiesic/storekit/config"
	"github.com/poiesic/storekit/core"
	"github.com/poiesic/storekit/dbcontext"
	"github.com/poiesic/storekit/storage"
)

// Repository reads and writes entities of type T in one store.
type Repository[T any] struct {
	db    *dbcontext.Context
	store config.StoreConfig
}

// New creates a repository for the configured store.
func New[T any](db *dbcontext.Context, store config.StoreConfig) (*Repository[T], error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database context is required", config.ErrInvalidConfig)
	}
	if store.Name == "" {
		return nil, fmt.Errorf("%w: store name is required", config.ErrInvalidConfig)
	}
	store.Indexes = append([]config.IndexConfig(nil), store.Indexes...)
	return &Repository[T]{db: db, store: store}, nil
}

// StoreName returns the name of the store the repository works on.
func (r *Repository[T]) StoreName() string {
	return r.store.Name
}

// Store returns the store's configuration.
func (r *Repository[T]) Store() config.StoreConfig {
	return r.store
}

// Create adds entity as a new record. An existing key fails with the
// engine's constraint error. A generated key is written back into entity.
func (r *Repository[T]) Create(ctx context.Context, entity *T) (*T, error) {
	return r.write(ctx, entity, storage.ObjectStore.Add)
}

// Update inserts or replaces entity.
func (r *Repository[T]) Update(ctx context.Context, entity *T) (*T, error) {
	return r.write(ctx, entity, storage.ObjectStore.Put)
}

func (r *Repository[T]) write(ctx context.Context, entity *T, issue func(storage.ObjectStore, core.Record, any) storage.Request) (*T, error) {
	rec, err := storage.EncodeEntity(entity)
	if err != nil {
		return nil, err
	}
	key, err := r.db.RunTransaction(ctx, r.store.Name, storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
		return issue(s, rec, nil), nil
	})
	if err != nil {
		return nil, err
	}
	if key != nil {
		r.assignKey(entity, rec, key)
	}
	return entity, nil
}

// assignKey writes key into entity at the key field, leaving every other
// field as the caller set it. Failures are ignored: the record is stored
// either way.
func (r *Repository[T]) assignKey(entity *T, rec core.Record, key any) {
	field := r.KeyField(rec)
	if field.IsZero() || field.IsComposite() {
		return
	}
	if err := field.Inject(rec, key); err != nil {
		return
	}
	patch := core.Record{}
	if err := field.Inject(patch, key); err != nil {
		return
	}
	_ = storage.DecodeInto(patch, entity)
}

// KeyField returns the key path the primary key lives at: the store's key
// path if set, otherwise "id" when rec has one, otherwise "_id".
func (r *Repository[T]) KeyField(rec core.Record) core.KeyPath {
	if !r.store.KeyPath.IsZero() {
		return r.store.KeyPath
	}
	if _, ok := rec["id"]; ok {
		return core.Path("id")
	}
	return core.Path("_id")
}

// Read returns the entity stored under key, or nil if there is none.
func (r *Repository[T]) Read(ctx context.Context, key any) (*T, error) {
	rec, err := dbcontext.Run[core.Record](ctx, r.db, r.store.Name, storage.ReadOnly, func(s storage.ObjectStore) (any, error) {
		return s.Get(key), nil
	})
	if err != nil || rec == nil {
		return nil, err
	}
	return storage.DecodeEntity[T](rec)
}

// Delete removes the entity stored under key. A missing key is not an error.
func (r *Repository[T]) Delete(ctx context.Context, key any) error {
	_, err := r.db.RunTransaction(ctx, r.store.Name, storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
		return s.Delete(key), nil
	})
	return err
}

// FindAll returns every entity in key order.
func (r *Repository[T]) FindAll(ctx context.Context) ([]*T, error) {
	recs, err := dbcontext.Run[[]core.Record](ctx, r.db, r.store.Name, storage.ReadOnly, func(s storage.ObjectStore) (any, error) {
		return s.GetAll(nil, 0), nil
	})
	if err != nil {
		return nil, err
	}
	return decodeAll[T](recs)
}

// Count returns the number of stored entities.
func (r *Repository[T]) Count(ctx context.Context) (int, error) {
	return dbcontext.Run[int](ctx, r.db, r.store.Name, storage.ReadOnly, func(s storage.ObjectStore) (any, error) {
		return s.Count(nil), nil
	})
}

// FindByIndex returns the entities whose index key matches query, which may
// be a key, a []any tuple for composite indexes, or a *core.KeyRange.
//
// With an empty indexName the index is picked from configuration: the one
// whose key path equals expectedKeyPath, else the first configured index.
// A non-zero expectedKeyPath must equal the live index's key path.
func (r *Repository[T]) FindByIndex(ctx context.Context, query any, indexName string, expectedKeyPath core.KeyPath) ([]*T, error) {
	name, err := r.ResolveIndex(indexName, expectedKeyPath)
	if err != nil {
		return nil, err
	}
	recs, err := dbcontext.Run[[]core.Record](ctx, r.db, r.store.Name, storage.ReadOnly, func(s storage.ObjectStore) (any, error) {
		idx, err := s.Index(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q on store %q: %w", ErrIndexNotFound, name, r.store.Name, err)
		}
		if !expectedKeyPath.IsZero() && !idx.KeyPath().Equal(expectedKeyPath) {
			return nil, fmt.Errorf("%w: index %q on store %q has key path %s, expected %s",
				ErrKeyPathMismatch, name, r.store.Name, idx.KeyPath(), expectedKeyPath)
		}
		return idx.GetAll(query, 0), nil
	})
	if err != nil {
		return nil, err
	}
	return decodeAll[T](recs)
}

// ResolveIndex picks the index FindByIndex queries.
func (r *Repository[T]) ResolveIndex(indexName string, expectedKeyPath core.KeyPath) (string, error) {
	if indexName != "" {
		return indexName, nil
	}
	if len(r.store.Indexes) == 0 {
		return "", fmt.Errorf("%w: no index name given and store %q has no configured indexes", ErrIndexNotFound, r.store.Name)
	}
	if !expectedKeyPath.IsZero() {
		for _, idx := range r.store.Indexes {
			if idx.KeyPath.Equal(expectedKeyPath) {
				return idx.Name, nil
			}
		}
	}
	return r.store.Indexes[0].Name, nil
}

func decodeAll[T any](recs []core.Record) ([]*T, error) {
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		e, err := storage.DecodeEntity[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
