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

package storekit

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/storekit/config"
	"github.com/poiesic/storekit/storage"
	"github.com/poiesic/storekit/storage/badger"
)

var (
	// ErrNoDatabases is returned by InspectStructure when the engine holds no database.
	ErrNoDatabases = errors.New("no databases found")

	// ErrNoStores is returned by InspectStructure when the database has no stores.
	ErrNoStores = errors.New("no object stores found in the database")
)

// InspectStructure rebuilds the configuration of the first database in
// engine from its live schema.
func InspectStructure(ctx context.Context, engine storage.Engine) (*config.DatabaseConfig, error) {
	dbs, err := engine.Databases()
	if err != nil {
		return nil, err
	}
	if len(dbs) == 0 {
		return nil, ErrNoDatabases
	}
	name := dbs[0].Name

	// version 0 opens whatever version is stored without upgrading
	req := engine.Open(name, 0, storage.OpenOptions{})
	select {
	case <-req.Done():
	case <-ctx.Done():
		// the open still settles; release whatever it produces
		go func() {
			if result, err := badger.Await(req); err == nil {
				result.(storage.Connection).Close()
			}
		}()
		return nil, ctx.Err()
	}
	result, err := req.Result()
	if err != nil {
		return nil, fmt.Errorf("inspecting %q: %w", name, err)
	}
	conn := result.(storage.Connection)
	defer conn.Close()

	return ConfigFromSchema(conn.Schema())
}

// ConfigFromSchema converts a live schema into a configuration.
func ConfigFromSchema(schema storage.SchemaInfo) (*config.DatabaseConfig, error) {
	if len(schema.Stores) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoStores, schema.Name)
	}
	cfg := &config.DatabaseConfig{
		DBName:  schema.Name,
		Version: int(schema.Version),
	}
	for _, st := range schema.Stores {
		sc := config.StoreConfig{
			Name:          st.Name,
			KeyPath:       st.KeyPath,
			AutoIncrement: st.AutoIncrement,
		}
		for _, idx := range st.Indexes {
			sc.Indexes = append(sc.Indexes, config.IndexConfig{
				Name:    idx.Name,
				KeyPath: idx.KeyPath,
				Options: config.IndexOptions{Unique: idx.Unique, MultiEntry: idx.MultiEntry},
			})
		}
		cfg.Stores = append(cfg.Stores, sc)
	}
	return cfg, nil
}
