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

// Package service wraps repositories with the checks callers expect before
// mutating data: primary-key discovery, existence checks and timestamps.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/storekit/config"
	"github.com/poiesic/storekit/core"
	"github.com/poiesic/storekit/dbcontext"
	"github.com/poiesic/storekit/repository"
	"github.com/poiesic/storekit/storage"
)

// ErrStoreNotRegistered is returned when a call names a store the service
// has no repository for.
var ErrStoreNotRegistered = errors.New("store not registered")

// Fields tried after the configured key path when looking for a primary key.
var fallbackKeyFields = []string{"_id", "id"}

type toucher interface {
	Touch()
}

// Service manages entities of type T across one or more configured stores.
// Methods take a store name; "" selects the default store.
type Service[T any] struct {
	defaultStore string
	order        []string
	repos        map[string]*repository.Repository[T]
	validate     func(*T) error
}

// NewService registers a repository for storeName, or for every configured
// store when storeName is empty. The default store is storeName, else the
// first configured store.
func NewService[T any](db *dbcontext.Context, holder *config.Holder, storeName string) (*Service[T], error) {
	cfg, err := holder.Get()
	if err != nil {
		return nil, err
	}
	s := &Service[T]{repos: make(map[string]*repository.Repository[T])}

	stores := cfg.Stores
	if storeName != "" {
		sc, ok := cfg.Store(storeName)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not configured", ErrStoreNotRegistered, storeName)
		}
		stores = []config.StoreConfig{sc}
	}
	for _, sc := range stores {
		repo, err := repository.New[T](db, sc)
		if err != nil {
			return nil, err
		}
		s.repos[sc.Name] = repo
		s.order = append(s.order, sc.Name)
	}
	s.defaultStore = s.order[0]
	return s, nil
}

// DefaultStore returns the store used when a call passes "".
func (s *Service[T]) DefaultStore() string {
	return s.defaultStore
}

// StoreNames returns the registered stores in configuration order.
func (s *Service[T]) StoreNames() []string {
	return append([]string(nil), s.order...)
}

// Repo returns the repository for store.
func (s *Service[T]) Repo(store string) (*repository.Repository[T], error) {
	if store == "" {
		store = s.defaultStore
	}
	repo, ok := s.repos[store]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStoreNotRegistered, store)
	}
	return repo, nil
}

func (s *Service[T]) check(entity *T) error {
	if s.validate == nil {
		return nil
	}
	return s.validate(entity)
}

func (s *Service[T]) Create(ctx context.Context, entity *T, store string) (*T, error) {
	repo, err := s.Repo(store)
	if err != nil {
		return nil, err
	}
	if err := s.check(entity); err != nil {
		return nil, err
	}
	return repo.Create(ctx, entity)
}

// Get returns the entity stored under key, or nil.
func (s *Service[T]) Get(ctx context.Context, key any, store string) (*T, error) {
	repo, err := s.Repo(store)
	if err != nil {
		return nil, err
	}
	return repo.Read(ctx, key)
}

// Update replaces an existing entity. The entity must carry its primary
// key and must already be stored.
func (s *Service[T]) Update(ctx context.Context, entity *T, store string) (*T, error) {
	repo, err := s.Repo(store)
	if err != nil {
		return nil, err
	}
	if err := s.check(entity); err != nil {
		return nil, err
	}
	key, err := PrimaryKey(entity, repo.Store().KeyPath)
	if err != nil {
		return nil, err
	}
	existing, err := repo.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %v in store %q", repository.ErrEntityNotFound, key, repo.StoreName())
	}
	if t, ok := any(entity).(toucher); ok {
		t.Touch()
	}
	return repo.Update(ctx, entity)
}

// Delete removes the entity under key and reports whether it existed.
func (s *Service[T]) Delete(ctx context.Context, key any, store string) (bool, error) {
	repo, err := s.Repo(store)
	if err != nil {
		return false, err
	}
	existing, err := repo.Read(ctx, key)
	if err != nil || existing == nil {
		return false, err
	}
	if err := repo.Delete(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

// All returns the entities in store. With store "" it returns the entities
// of every registered store, in configuration order. An unregistered store
// yields nothing.
func (s *Service[T]) All(ctx context.Context, store string) ([]*T, error) {
	if store != "" {
		repo, ok := s.repos[store]
		if !ok {
			return []*T{}, nil
		}
		return repo.FindAll(ctx)
	}
	all := []*T{}
	for _, name := range s.order {
		items, err := s.repos[name].FindAll(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}

// FindByIndex queries an index of store. See repository.Repository.FindByIndex.
func (s *Service[T]) FindByIndex(ctx context.Context, query any, indexName string, expectedKeyPath core.KeyPath, store string) ([]*T, error) {
	repo, err := s.Repo(store)
	if err != nil {
		return nil, err
	}
	return repo.FindByIndex(ctx, query, indexName, expectedKeyPath)
}

// findByField queries the index over field: the configured index whose key
// path is field, else the first configured index. Either way the live index
// must be keyed by field.
func (s *Service[T]) findByField(ctx context.Context, field string, value any, store string) ([]*T, error) {
	return s.FindByIndex(ctx, value, "", core.Path(field), store)
}

// PrimaryKey extracts entity's primary key: the value at keyPath if set,
// then at "_id", then at "id". Zero values that are omitted from the
// stored record count as missing.
func PrimaryKey[T any](entity *T, keyPath core.KeyPath) (any, error) {
	rec, err := storage.EncodeEntity(entity)
	if err != nil {
		return nil, err
	}
	if !keyPath.IsZero() {
		if key, ok := keyPath.Extract(rec); ok {
			return key, nil
		}
	}
	for _, f := range fallbackKeyFields {
		if key, ok := rec[f]; ok && key != nil {
			return key, nil
		}
	}
	return nil, repository.ErrPrimaryKeyMissing
}
