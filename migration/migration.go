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

// Package migration builds schema migrations from store configuration.
//
// A migration runs inside the engine's upgrade transaction. Migrations built
// here only ever create what is missing, so running one against a schema that
// already matches the configuration changes nothing.
package migration

import (
	"fmt"
	"log/slog"

	"github.com/poiesic/storekit/config"
	"github.com/poiesic/storekit/storage"
)

// Migration mutates a schema during a version upgrade.
type Migration func(schema storage.Schema) error

// FromStores returns a migration that creates every configured store and
// index that does not exist yet. Existing stores keep their key options.
// A nil logger logs to slog.Default().
func FromStores(stores []config.StoreConfig, logger *slog.Logger) Migration {
	if logger == nil {
		logger = slog.Default()
	}
	defs := (&config.DatabaseConfig{Stores: stores}).Clone().Stores

	return func(schema storage.Schema) error {
		for _, def := range defs {
			var (
				store storage.StoreSchema
				err   error
			)
			if schema.HasStore(def.Name) {
				store, err = schema.Store(def.Name)
			} else {
				store, err = schema.CreateStore(def.Name, storage.StoreOptions{
					KeyPath:       def.KeyPath,
					AutoIncrement: def.AutoIncrement,
				})
				if err == nil {
					logger.Debug("created store", "store", def.Name, "version", schema.Version())
				}
			}
			if err != nil {
				return fmt.Errorf("store %q: %w", def.Name, err)
			}

			for _, idx := range def.Indexes {
				if store.HasIndex(idx.Name) {
					continue
				}
				opts := storage.IndexOptions{Unique: idx.Options.Unique, MultiEntry: idx.Options.MultiEntry}
				if err := store.CreateIndex(idx.Name, idx.KeyPath, opts); err != nil {
					return fmt.Errorf("store %q: index %q: %w", def.Name, idx.Name, err)
				}
				logger.Debug("created index", "store", def.Name, "index", idx.Name)
			}
		}
		return nil
	}
}

// Chain runs migrations in order, stopping at the first error.
// The error is returned unchanged.
func Chain(migrations ...Migration) Migration {
	return func(schema storage.Schema) error {
		for _, m := range migrations {
			if m == nil {
				continue
			}
			if err := m(schema); err != nil {
				return err
			}
		}
		return nil
	}
}
