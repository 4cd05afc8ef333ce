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
	"slices"

	"github.com/poiesic/storekit/core"
)

// DatabaseMeta is the persisted schema of one database.
type DatabaseMeta struct {
	Name        string
	Version     uint64
	NextStoreID uint64
	Stores      []StoreMeta
}

// StoreMeta is the persisted schema of one object store.
type StoreMeta struct {
	ID            uint64
	Name          string
	KeyPath       core.KeyPath
	AutoIncrement bool
	NextIndexID   uint64
	Indexes       []IndexMeta
}

// IndexMeta is the persisted schema of one index.
type IndexMeta struct {
	ID         uint64
	Name       string
	KeyPath    core.KeyPath
	Unique     bool
	MultiEntry bool
}

// Clone returns a deep copy.
func (m *DatabaseMeta) Clone() *DatabaseMeta {
	out := *m
	out.Stores = make([]StoreMeta, len(m.Stores))
	for i, s := range m.Stores {
		s.Indexes = slices.Clone(s.Indexes)
		out.Stores[i] = s
	}
	return &out
}

// Store returns a pointer to the named store, or nil.
func (m *DatabaseMeta) Store(name string) *StoreMeta {
	for i := range m.Stores {
		if m.Stores[i].Name == name {
			return &m.Stores[i]
		}
	}
	return nil
}

// Index returns a pointer to the named index, or nil.
func (s *StoreMeta) Index(name string) *IndexMeta {
	for i := range s.Indexes {
		if s.Indexes[i].Name == name {
			return &s.Indexes[i]
		}
	}
	return nil
}

// IndexNames returns the store's index names, sorted.
func (s *StoreMeta) IndexNames() []string {
	names := make([]string, len(s.Indexes))
	for i, idx := range s.Indexes {
		names[i] = idx.Name
	}
	slices.Sort(names)
	return names
}

// Info converts the persisted schema into its public description.
func (m *DatabaseMeta) Info() SchemaInfo {
	info := SchemaInfo{Name: m.Name, Version: m.Version, Stores: make([]StoreInfo, len(m.Stores))}
	for i, s := range m.Stores {
		st := StoreInfo{
			Name:          s.Name,
			KeyPath:       s.KeyPath,
			AutoIncrement: s.AutoIncrement,
			Indexes:       make([]IndexInfo, len(s.Indexes)),
		}
		for j, idx := range s.Indexes {
			st.Indexes[j] = IndexInfo{
				Name:       idx.Name,
				KeyPath:    idx.KeyPath,
				Unique:     idx.Unique,
				MultiEntry: idx.MultiEntry,
			}
		}
		info.Stores[i] = st
	}
	return info
}
