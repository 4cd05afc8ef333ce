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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/storekit/storage"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	defaultPoolSize = 1024
)

// Backend wraps a BadgerDB instance and implements storage.Engine on top of it.
// Transactions run on an ants worker pool; open databases are tracked in a registry.
type Backend struct {
	db        *badger.DB
	logger    *slog.Logger
	pool      *ants.Pool
	poolSize  int
	databases *xsync.MapOf[string, *database]
	closed    atomic.Bool
}

var _ storage.Engine = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// WithPoolSize sets the maximum number of concurrently running transactions.
// Default is 1024.
func WithPoolSize(size int) Option {
	return func(b *Backend) error {
		if size < 1 {
			return fmt.Errorf("pool size must be positive, got %d", size)
		}
		b.poolSize = size
		return nil
	}
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool, opts ...Option) (*Backend, error) {
	b := &Backend{
		logger:    slog.Default(),
		poolSize:  defaultPoolSize,
		databases: xsync.NewMapOf[string, *database](),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	var badgerOpts badger.Options
	if inMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// Ensure directory exists
		info, err := os.Stat(filePath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(filePath, 0755); err != nil {
				return nil, err
			}
			if info, err = os.Stat(filePath); err != nil {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		badgerOpts = badger.DefaultOptions(filePath)
	}

	badgerOpts.Logger = &badgerLoggerAdapter{logger: b.logger}
	badgerOpts.Compression = options.None

	pool, err := ants.NewPool(b.poolSize)
	if err != nil {
		return nil, err
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		pool.Release()
		return nil, err
	}

	b.db = db
	b.pool = pool
	return b, nil
}

// Close releases the worker pool and closes the BadgerDB database.
func (b *Backend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.pool.Release()
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.closed.Load() || b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// submit runs task on the worker pool.
func (b *Backend) submit(task func()) error {
	if b.IsClosed() {
		return storage.ErrStorageClosed
	}
	if err := b.pool.Submit(task); err != nil {
		if errors.Is(err, ants.ErrPoolClosed) {
			return storage.ErrStorageClosed
		}
		return err
	}
	return nil
}

// database returns the registry entry for name, creating it on first use.
func (b *Backend) database(name string) *database {
	db, _ := b.databases.LoadOrCompute(name, func() *database {
		return newDatabase(b, name)
	})
	return db
}

// Open requests a connection to the named database.
// Implements storage.Engine.
func (b *Backend) Open(name string, version uint64, opts storage.OpenOptions) storage.Request {
	req := newRequest()
	if name == "" {
		req.settle(nil, fmt.Errorf("%w: database name is required", storage.ErrData))
		return req
	}
	db := b.database(name)
	if err := b.submit(func() { db.open(req, version, opts) }); err != nil {
		req.settle(nil, err)
	}
	return req
}

// DeleteDatabase removes a database's schema and data once its connections close.
// Implements storage.Engine.
func (b *Backend) DeleteDatabase(name string) storage.Request {
	req := newRequest()
	db := b.database(name)
	if err := b.submit(func() { db.delete(req) }); err != nil {
		req.settle(nil, err)
	}
	return req
}

// Databases lists existing databases sorted by name.
// Implements storage.Engine.
func (b *Backend) Databases() ([]storage.DatabaseInfo, error) {
	if b.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var infos []storage.DatabaseInfo
	err := b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var meta *storage.DatabaseMeta
			err := iter.Item().Value(func(val []byte) error {
				var err error
				meta, err = storage.UnmarshalDatabaseMeta(val)
				return err
			})
			if err != nil {
				return err
			}
			infos = append(infos, storage.DatabaseInfo{Name: meta.Name, Version: meta.Version})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// loadMeta reads a database's schema. It returns nil when the database does not exist.
func (b *Backend) loadMeta(tx *badger.Txn, name string) (*storage.DatabaseMeta, error) {
	item, err := tx.Get(makeMetaKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta *storage.DatabaseMeta
	err = item.Value(func(val []byte) error {
		var err error
		meta, err = storage.UnmarshalDatabaseMeta(val)
		return err
	})
	return meta, err
}
