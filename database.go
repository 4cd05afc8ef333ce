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
	"log/slog"

	"github.com/poiesic/storekit/config"
	"github.com/poiesic/storekit/core"
	"github.com/poiesic/storekit/dbcontext"
	"github.com/poiesic/storekit/service"
	"github.com/poiesic/storekit/storage"
	"github.com/poiesic/storekit/storage/badger"
)

// DefaultDBName is the database DefaultConfig describes.
const DefaultDBName = "httpMocksDB"

type Database struct {
	backend *badger.Backend
	holder  *config.Holder
	db      *dbcontext.Context
	mocks   *service.MockService
	users   *service.UserService
	logger  *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	cfg      *config.DatabaseConfig
	inMemory bool
	httpOnly bool
	logger   *slog.Logger
}

// WithConfig sets the database configuration. Without it the structure of
// the existing database is used, or DefaultConfig when there is none.
func WithConfig(cfg *config.DatabaseConfig) DatabaseOption {
	return func(o *databaseOptions) {
		o.cfg = cfg
	}
}

// WithInMemory keeps all data in memory. The path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithHTTPOnly skips the user service even when a users store is configured.
func WithHTTPOnly() DatabaseOption {
	return func(o *databaseOptions) {
		o.httpOnly = true
	}
}

// WithLogger sets the logger used by the storage engine and the database context.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// DefaultConfig returns the configuration used when none is given and no
// database exists yet: one httpMocks store.
func DefaultConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		DBName:  DefaultDBName,
		Version: 1,
		Stores:  []config.StoreConfig{config.DefaultHTTPStore()},
	}
}

// NewDatabase opens the storage at filePath, creates or upgrades the
// configured database and wires the services.
func NewDatabase(ctx context.Context, filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory, badger.WithLogger(options.logger))
	if err != nil {
		return nil, err
	}

	database, err := newDatabase(ctx, backend, options)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return database, nil
}

func newDatabase(ctx context.Context, backend *badger.Backend, options *databaseOptions) (*Database, error) {
	cfg := options.cfg
	if cfg == nil {
		inspected, err := InspectStructure(ctx, backend)
		switch {
		case err == nil:
			cfg = inspected
		case errors.Is(err, ErrNoDatabases) || errors.Is(err, ErrNoStores):
			cfg = DefaultConfig()
		default:
			return nil, err
		}
	}

	holder, err := config.NewHolder(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.ClearDatabase {
		if _, err := badger.Await(backend.DeleteDatabase(cfg.DBName)); err != nil {
			return nil, fmt.Errorf("clearing database %q: %w", cfg.DBName, err)
		}
		options.logger.Info("cleared database", "database", cfg.DBName)
	}

	db, err := dbcontext.NewFromConfig(backend, holder, dbcontext.WithLogger(options.logger))
	if err != nil {
		return nil, err
	}
	if _, err := db.Open(ctx); err != nil {
		return nil, err
	}

	mocks, err := service.NewMockService(db, holder, "")
	if err != nil {
		db.Close()
		return nil, err
	}

	var users *service.UserService
	if _, ok := cfg.Store(service.UserStoreName); ok && !options.httpOnly {
		if users, err = service.NewUserService(db, holder, service.UserStoreName); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Database{
		backend: backend,
		holder:  holder,
		db:      db,
		mocks:   mocks,
		users:   users,
		logger:  options.logger,
	}, nil
}

func (d *Database) Close() error {
	d.db.Close()
	d.holder.Clear()
	if err := d.backend.Close(); err != nil {
		d.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Config returns a copy of the active configuration.
func (d *Database) Config() (*config.DatabaseConfig, error) {
	return d.holder.Get()
}

// Context returns the database context the services run on.
func (d *Database) Context() *dbcontext.Context {
	return d.db
}

// Engine returns the underlying storage engine.
func (d *Database) Engine() storage.Engine {
	return d.backend
}

func (d *Database) Mocks() *service.MockService {
	return d.mocks
}

// Users returns the user service, or nil when no users store is configured.
func (d *Database) Users() *service.UserService {
	return d.users
}

// Structure describes the stores of the open database.
func (d *Database) Structure(ctx context.Context) (storage.SchemaInfo, error) {
	conn, err := d.db.GetDB(ctx)
	if err != nil {
		return storage.SchemaInfo{}, err
	}
	return conn.Schema(), nil
}

// Mock is a convenience for creating a mock in the default store.
func (d *Database) Mock(ctx context.Context, url, method string) (*core.HttpMock, error) {
	return d.mocks.Create(ctx, core.NewHttpMock(url, method), "")
}
