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

// Package config holds the validated database configuration: the database
// name and version and the stores and indexes the migration creates.
package config

import (
	"fmt"
	"slices"

	"github.com/poiesic/storekit/core"
)

// IndexOptions are the options of one index.
type IndexOptions struct {
	Unique     bool `mapstructure:"unique" json:"unique,omitempty" yaml:"unique,omitempty"`
	MultiEntry bool `mapstructure:"multiEntry" json:"multiEntry,omitempty" yaml:"multiEntry,omitempty"`
}

// IndexConfig declares a secondary index. KeyPath is a single field or an
// ordered composite.
type IndexConfig struct {
	Name    string       `mapstructure:"name" json:"name" yaml:"name"`
	KeyPath core.KeyPath `mapstructure:"keyPath" json:"keyPath" yaml:"keyPath"`
	Options IndexOptions `mapstructure:"options" json:"options,omitempty" yaml:"options,omitempty"`
}

// StoreConfig declares an object store. A zero KeyPath means out-of-line keys.
type StoreConfig struct {
	Name          string        `mapstructure:"name" json:"name" yaml:"name"`
	KeyPath       core.KeyPath  `mapstructure:"keyPath" json:"keyPath,omitempty" yaml:"keyPath,omitempty"`
	AutoIncrement bool          `mapstructure:"autoIncrement" json:"autoIncrement,omitempty" yaml:"autoIncrement,omitempty"`
	Indexes       []IndexConfig `mapstructure:"indexes" json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// DatabaseConfig names a database, its schema version and its stores.
type DatabaseConfig struct {
	DBName        string        `mapstructure:"dbName" json:"dbName" yaml:"dbName"`
	Version       int           `mapstructure:"version" json:"version" yaml:"version"`
	Stores        []StoreConfig `mapstructure:"stores" json:"stores" yaml:"stores"`
	ClearDatabase bool          `mapstructure:"clearDatabase" json:"clearDatabase,omitempty" yaml:"clearDatabase,omitempty"`
}

// Validate checks the configuration.
//
// Validation rules:
//   - DBName must not be empty
//   - Version must be positive
//   - Stores must not be empty, store names must be present and unique
//   - Index names must be present and unique per store, key paths must be valid
func (c *DatabaseConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: DB init options are required", ErrInvalidConfig)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: dbName is required", ErrInvalidConfig)
	}
	if c.Version <= 0 {
		return fmt.Errorf("%w: version is required and must be a positive integer", ErrInvalidConfig)
	}
	if len(c.Stores) == 0 {
		return fmt.Errorf("%w: stores is required and must be a non-empty array", ErrInvalidConfig)
	}

	storeNames := make(map[string]struct{}, len(c.Stores))
	for _, s := range c.Stores {
		if s.Name == "" {
			return fmt.Errorf("%w: store name is required", ErrInvalidConfig)
		}
		if _, dup := storeNames[s.Name]; dup {
			return fmt.Errorf("%w: duplicate store %q", ErrInvalidConfig, s.Name)
		}
		storeNames[s.Name] = struct{}{}
		if err := s.KeyPath.Validate(); err != nil {
			return fmt.Errorf("%w: store %q: %w", ErrInvalidConfig, s.Name, err)
		}

		indexNames := make(map[string]struct{}, len(s.Indexes))
		for _, idx := range s.Indexes {
			if idx.Name == "" {
				return fmt.Errorf("%w: store %q: index name is required", ErrInvalidConfig, s.Name)
			}
			if _, dup := indexNames[idx.Name]; dup {
				return fmt.Errorf("%w: store %q: duplicate index %q", ErrInvalidConfig, s.Name, idx.Name)
			}
			indexNames[idx.Name] = struct{}{}
			if idx.KeyPath.IsZero() {
				return fmt.Errorf("%w: store %q: index %q needs a keyPath", ErrInvalidConfig, s.Name, idx.Name)
			}
			if err := idx.KeyPath.Validate(); err != nil {
				return fmt.Errorf("%w: store %q: index %q: %w", ErrInvalidConfig, s.Name, idx.Name, err)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c *DatabaseConfig) Clone() *DatabaseConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Stores = make([]StoreConfig, len(c.Stores))
	for i, s := range c.Stores {
		s.Indexes = slices.Clone(s.Indexes)
		out.Stores[i] = s
	}
	return &out
}

// Store returns the named store configuration.
func (c *DatabaseConfig) Store(name string) (StoreConfig, bool) {
	for _, s := range c.Stores {
		if s.Name == name {
			return s, true
		}
	}
	return StoreConfig{}, false
}

// StoreNames returns the configured store names in order.
func (c *DatabaseConfig) StoreNames() []string {
	names := make([]string, len(c.Stores))
	for i, s := range c.Stores {
		names[i] = s.Name
	}
	return names
}

// DefaultHTTPStore is the store used for HTTP mocks when no configuration is given.
func DefaultHTTPStore() StoreConfig {
	return StoreConfig{
		Name:          "httpMocks",
		KeyPath:       core.Path("_id"),
		AutoIncrement: true,
		Indexes: []IndexConfig{
			{Name: "by_url", KeyPath: core.Path("url")},
			{Name: "by_url_method", KeyPath: core.Composite("url", "method")},
			{Name: "serviceCode", KeyPath: core.Path("serviceCode")},
		},
	}
}
