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
	"sync"

	"github.com/google/uuid"
	"github.com/poiesic/storekit/storage"
)

// connection is an open handle on a database at a fixed schema version.
type connection struct {
	id   string
	db   *database
	meta *storage.DatabaseMeta

	mu              sync.Mutex
	closing         bool
	active          int
	onVersionChange []func(oldVersion, newVersion uint64)
	pendingChange   *[2]uint64

	// closed is closed once Close was called and every transaction finished.
	closed chan struct{}
}

var _ storage.Connection = (*connection)(nil)

func newConnection(db *database, meta *storage.DatabaseMeta) *connection {
	return &connection{
		id:     uuid.NewString(),
		db:     db,
		meta:   meta,
		closed: make(chan struct{}),
	}
}

func (c *connection) ID() string {
	return c.id
}

func (c *connection) Name() string {
	return c.db.name
}

func (c *connection) Version() uint64 {
	return c.meta.Version
}

func (c *connection) StoreNames() []string {
	names := c.meta.Info().StoreNames()
	slices.Sort(names)
	return names
}

func (c *connection) Schema() storage.SchemaInfo {
	return c.meta.Info()
}

func (c *connection) Transaction(stores []string, mode storage.TxMode) (storage.Transaction, error) {
	if len(stores) == 0 {
		return nil, fmt.Errorf("%w: transaction needs at least one store", storage.ErrInvalidState)
	}
	if mode != storage.ReadOnly && mode != storage.ReadWrite {
		return nil, fmt.Errorf("%w: unknown transaction mode %d", storage.ErrInvalidState, mode)
	}
	scope := make(map[string]*storage.StoreMeta, len(stores))
	for _, name := range stores {
		s := c.meta.Store(name)
		if s == nil {
			return nil, fmt.Errorf("%w: object store %q", storage.ErrNotFound, name)
		}
		scope[name] = s
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: connection is closing", storage.ErrInvalidState)
	}
	c.active++
	c.mu.Unlock()

	tx := newTransaction(c, scope, mode)
	if err := c.db.backend.submit(tx.run); err != nil {
		c.transactionDone()
		return nil, err
	}
	return tx, nil
}

func (c *connection) OnVersionChange(fn func(oldVersion, newVersion uint64)) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.onVersionChange = append(c.onVersionChange, fn)
	pending := c.pendingChange
	c.mu.Unlock()

	if pending != nil {
		fn(pending[0], pending[1])
	}
}

func (c *connection) Close() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	idle := c.active == 0
	c.mu.Unlock()

	if idle {
		c.finishClose()
	}
}

func (c *connection) versionChange(oldVersion, newVersion uint64) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.pendingChange = &[2]uint64{oldVersion, newVersion}
	handlers := slices.Clone(c.onVersionChange)
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(oldVersion, newVersion)
	}
}

func (c *connection) transactionDone() {
	c.mu.Lock()
	c.active--
	idle := c.closing && c.active == 0
	c.mu.Unlock()

	if idle {
		c.finishClose()
	}
}

func (c *connection) finishClose() {
	c.db.removeConnection(c)
	close(c.closed)
}
