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

package dbcontext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/storekit/config"
	"github.com/poiesic/storekit/migration"
	"github.com/poiesic/storekit/storage"
	"golang.org/x/sync/singleflight"
)

// Context owns the connection to one named, versioned database and runs
// blocking transactions against it. The connection is opened lazily and
// reopened after Close or after another opener upgrades the database.
type Context struct {
	engine     storage.Engine
	name       string
	version    uint64
	migrations []migration.Migration
	onBlocked  func(oldVersion, newVersion uint64)
	logger     *slog.Logger

	flight singleflight.Group

	mu   sync.Mutex
	conn storage.Connection
	// gen changes on every Close so opens started before it can tell.
	gen uint64
}

// Option configures a Context.
type Option func(*Context) error

// WithMigrations appends migrations. They run in the order given on every upgrade.
func WithMigrations(migrations ...migration.Migration) Option {
	return func(c *Context) error {
		for _, m := range migrations {
			if m == nil {
				return errors.New("migration cannot be nil")
			}
		}
		c.migrations = append(c.migrations, migrations...)
		return nil
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithOnBlocked sets a handler called when an upgrade waits on other connections.
func WithOnBlocked(fn func(oldVersion, newVersion uint64)) Option {
	return func(c *Context) error {
		c.onBlocked = fn
		return nil
	}
}

// New creates a context for database name at version. Nothing is opened yet.
func New(engine storage.Engine, name string, version uint64, opts ...Option) (*Context, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if name == "" {
		return nil, fmt.Errorf("%w: dbName is required", config.ErrInvalidConfig)
	}
	if version == 0 {
		return nil, fmt.Errorf("%w: version is required and must be a positive integer", config.ErrInvalidConfig)
	}
	c := &Context{
		engine:  engine,
		name:    name,
		version: version,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewFromConfig creates a context from the holder's configuration. The
// store migration built from the configuration runs before any migrations
// passed in opts.
func NewFromConfig(engine storage.Engine, holder *config.Holder, opts ...Option) (*Context, error) {
	cfg, err := holder.Get()
	if err != nil {
		return nil, err
	}
	c, err := New(engine, cfg.DBName, uint64(cfg.Version), opts...)
	if err != nil {
		return nil, err
	}
	c.migrations = append([]migration.Migration{migration.FromStores(cfg.Stores, c.logger)}, c.migrations...)
	return c, nil
}

func (c *Context) Name() string {
	return c.name
}

func (c *Context) Version() uint64 {
	return c.version
}

// Engine returns the engine the context opens connections on.
func (c *Context) Engine() storage.Engine {
	return c.engine
}

func (c *Context) cached() storage.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Open returns the open connection, opening it first if needed. Concurrent
// callers share one open attempt. A failed open is not remembered, so the
// next call tries again with a fresh migration run.
//
// Cancelling ctx stops the wait, not the open.
func (c *Context) Open(ctx context.Context) (storage.Connection, error) {
	if conn := c.cached(); conn != nil {
		return conn, nil
	}
	ch := c.flight.DoChan(c.name, func() (any, error) {
		return c.open()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		conn, _ := res.Val.(storage.Connection)
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Context) open() (storage.Connection, error) {
	c.mu.Lock()
	if c.conn != nil {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	gen := c.gen
	c.mu.Unlock()

	req := c.engine.Open(c.name, c.version, storage.OpenOptions{
		OnUpgradeNeeded: c.upgrade,
		OnBlocked:       c.blocked,
	})
	if req == nil {
		openCounter(outcomeFailed).Inc()
		return nil, ErrOpenFailed
	}
	<-req.Done()
	result, err := req.Result()
	if err != nil {
		openCounter(outcomeFailed).Inc()
		c.logger.Warn("database open failed", "database", c.name, "version", c.version, "error", err)
		return nil, err
	}
	conn, ok := result.(storage.Connection)
	if !ok || conn == nil {
		openCounter(outcomeFailed).Inc()
		return nil, ErrNoConnection
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		conn.Close()
		return nil, ErrContextClosed
	}
	c.conn = conn
	c.mu.Unlock()

	conn.OnVersionChange(func(oldVersion, newVersion uint64) {
		c.versionChange(conn, oldVersion, newVersion)
	})
	openCounter(outcomeOpened).Inc()
	c.logger.Debug("database opened", "database", c.name, "version", conn.Version(), "connection", conn.ID())
	return conn, nil
}

// upgrade runs every migration in registration order. The first error is
// returned unchanged and the engine discards the upgrade.
func (c *Context) upgrade(schema storage.Schema) error {
	c.logger.Info("upgrading database", "database", c.name, "from", schema.OldVersion(), "to", schema.Version())
	return migration.Chain(c.migrations...)(schema)
}

func (c *Context) blocked(oldVersion, newVersion uint64) {
	c.logger.Warn("database upgrade blocked by open connections", "database", c.name, "from", oldVersion, "to", newVersion)
	if c.onBlocked != nil {
		c.onBlocked(oldVersion, newVersion)
	}
}

// versionChange closes conn when another opener changes the database.
func (c *Context) versionChange(conn storage.Connection, oldVersion, newVersion uint64) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	c.logger.Info("closing connection after version change", "database", c.name, "from", oldVersion, "to", newVersion)
	conn.Close()
}

// GetDB returns the cached connection or opens one.
func (c *Context) GetDB(ctx context.Context) (storage.Connection, error) {
	conn, err := c.Open(ctx)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrNoConnection
	}
	return conn, nil
}

// Close releases the connection if one is held. The next operation reopens.
func (c *Context) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.gen++
	c.mu.Unlock()

	c.flight.Forget(c.name)
	if conn != nil {
		conn.Close()
		c.logger.Debug("database closed", "database", c.name)
	}
}

// RunTransaction runs op against store in a transaction of the given mode
// and blocks until the transaction settles. op's return value decides what
// is returned:
//
//   - a storage.Request: its result. A failed request is returned as soon as
//     it fails; a successful one once the transaction commits.
//   - another Awaitable: its result, once both it and the commit are done.
//     Whichever fails first fails the call.
//   - nil: nil, once the transaction commits.
//   - any other value: that value, once the transaction commits.
//
// If op returns an error the transaction is aborted and that error returned.
// If op panics the transaction is aborted and the panic propagates.
// A failed transaction returns ErrTransactionAborted or ErrTransactionError
// wrapping the engine's error.
func (c *Context) RunTransaction(ctx context.Context, store string, mode storage.TxMode, op func(store storage.ObjectStore) (any, error)) (any, error) {
	outcome := outcomeCommitted
	defer func() {
		transactionCounter(mode, outcome).Inc()
	}()

	conn, err := c.GetDB(ctx)
	if err != nil {
		outcome = outcomeError
		return nil, err
	}
	tx, err := conn.Transaction([]string{store}, mode)
	if err != nil {
		outcome = outcomeError
		return nil, err
	}

	var txErr error
	tx.OnAbort(func(cause error) {
		txErr = fmt.Errorf("%w: %w", ErrTransactionAborted, cause)
	})
	tx.OnError(func(cause error) {
		txErr = fmt.Errorf("%w: %w", ErrTransactionError, cause)
	})
	// txErr is written by the handlers before tx.Done() closes
	settled := func() error {
		return txErr
	}

	objStore, err := tx.ObjectStore(store)
	if err != nil {
		tx.Abort()
		outcome = outcomeError
		return nil, err
	}

	outcome = outcomePanic
	value, err := c.call(tx, op, objStore)
	outcome = outcomeCommitted
	if err != nil {
		tx.Abort()
		outcome = outcomeOpError
		select {
		case <-tx.Done():
		case <-ctx.Done():
		}
		return nil, err
	}
	tx.Commit()

	switch v := value.(type) {
	case storage.Request:
		select {
		case <-v.Done():
		case <-ctx.Done():
			outcome = outcomeCanceled
			return nil, ctx.Err()
		}
		res, reqErr := v.Result()
		if reqErr != nil {
			outcome = outcomeRequestError
			return nil, reqErr
		}
		if err := c.waitTx(ctx, tx, settled); err != nil {
			outcome = txOutcome(err)
			return nil, err
		}
		return res, nil

	case Awaitable:
		awDone, txDone := v.Done(), tx.Done()
		for awDone != nil || txDone != nil {
			select {
			case <-awDone:
				awDone = nil
				if _, awErr := v.Result(); awErr != nil {
					outcome = outcomeRequestError
					return nil, awErr
				}
			case <-txDone:
				txDone = nil
				if err := settled(); err != nil {
					outcome = txOutcome(err)
					return nil, err
				}
			case <-ctx.Done():
				outcome = outcomeCanceled
				return nil, ctx.Err()
			}
		}
		res, _ := v.Result()
		return res, nil

	default:
		if err := c.waitTx(ctx, tx, settled); err != nil {
			outcome = txOutcome(err)
			return nil, err
		}
		return value, nil
	}
}

// call runs op. If op panics, tx is aborted and the panic re-raised.
func (c *Context) call(tx storage.Transaction, op func(storage.ObjectStore) (any, error), store storage.ObjectStore) (any, error) {
	defer func() {
		if r := recover(); r != nil {
			tx.Abort()
			panic(r)
		}
	}()
	return op(store)
}

func (c *Context) waitTx(ctx context.Context, tx storage.Transaction, settled func() error) error {
	select {
	case <-tx.Done():
		return settled()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func txOutcome(err error) string {
	switch {
	case errors.Is(err, ErrTransactionAborted):
		return outcomeAborted
	case errors.Is(err, ErrTransactionError):
		return outcomeError
	default:
		return outcomeCanceled
	}
}

// Run is RunTransaction with a typed result. A nil result yields the zero T.
func Run[T any](ctx context.Context, c *Context, store string, mode storage.TxMode, op func(store storage.ObjectStore) (any, error)) (T, error) {
	var zero T
	v, err := c.RunTransaction(ctx, store, mode, op)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrUnexpectedResult, v, zero)
	}
	return t, nil
}
