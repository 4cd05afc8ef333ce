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
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/storekit/storage"
)

// database tracks the live connections of one named database.
type database struct {
	backend *Backend
	name    string
	id      []byte

	// openMu serializes open and delete requests so upgrades never interleave.
	openMu sync.Mutex
	// writeMu serializes read-write transactions and upgrades.
	writeMu sync.Mutex

	mu    sync.Mutex
	conns map[string]*connection
}

func newDatabase(b *Backend, name string) *database {
	return &database{
		backend: b,
		name:    name,
		id:      databaseID(name),
		conns:   make(map[string]*connection),
	}
}

func (d *database) connections() []*connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	conns := make([]*connection, 0, len(d.conns))
	for _, c := range d.conns {
		conns = append(conns, c)
	}
	return conns
}

func (d *database) addConnection(c *connection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[c.id] = c
}

func (d *database) removeConnection(c *connection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conns, c.id)
}

func (d *database) currentMeta() (*storage.DatabaseMeta, error) {
	var meta *storage.DatabaseMeta
	err := d.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		meta, err = d.backend.loadMeta(tx, d.name)
		return err
	}, false)
	return meta, err
}

func (d *database) open(req *request, version uint64, opts storage.OpenOptions) {
	d.openMu.Lock()
	defer d.openMu.Unlock()

	meta, err := d.currentMeta()
	if err != nil {
		req.settle(nil, err)
		return
	}

	var current uint64
	if meta != nil {
		current = meta.Version
	}
	if version == 0 {
		version = max(current, 1)
	}
	if version < current {
		req.settle(nil, fmt.Errorf("%w: %s is at version %d, requested %d", storage.ErrVersion, d.name, current, version))
		return
	}

	if version > current {
		d.notifyVersionChange(current, version, opts.OnBlocked)
		meta, err = d.upgrade(meta, current, version, opts.OnUpgradeNeeded)
		if err != nil {
			d.backend.logger.Warn("database upgrade failed",
				"database", d.name, "from", current, "to", version, "error", err)
			req.settle(nil, err)
			return
		}
		d.backend.logger.Debug("database upgraded", "database", d.name, "from", current, "to", version)
	}

	conn := newConnection(d, meta)
	d.addConnection(conn)
	req.settle(conn, nil)
}

// notifyVersionChange asks every open connection to close and waits until they have.
func (d *database) notifyVersionChange(oldVersion, newVersion uint64, onBlocked func(oldVersion, newVersion uint64)) {
	conns := d.connections()
	for _, c := range conns {
		c.versionChange(oldVersion, newVersion)
	}

	blocked := false
	for _, c := range conns {
		select {
		case <-c.closed:
			continue
		default:
		}
		if !blocked {
			blocked = true
			d.backend.logger.Debug("version change blocked by open connection",
				"database", d.name, "connection", c.id)
			if onBlocked != nil {
				onBlocked(oldVersion, newVersion)
			}
		}
		<-c.closed
	}
}

// upgrade runs the upgrade handler and the new schema in one Badger transaction.
// A handler error is returned unchanged and nothing is written.
func (d *database) upgrade(meta *storage.DatabaseMeta, oldVersion, newVersion uint64, handler func(storage.Schema) error) (*storage.DatabaseMeta, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if meta == nil {
		meta = &storage.DatabaseMeta{Name: d.name, NextStoreID: 1}
	} else {
		meta = meta.Clone()
	}

	txn := d.backend.db.NewTransaction(true)
	defer txn.Discard()

	schema := &upgradeSchema{
		db:         d,
		txn:        txn,
		meta:       meta,
		oldVersion: oldVersion,
		version:    newVersion,
	}
	if handler != nil {
		if err := runUpgradeHandler(handler, schema); err != nil {
			return nil, err
		}
	}

	meta.Version = newVersion
	if err := txn.Set(makeMetaKey(d.name), storage.MarshalDatabaseMeta(meta)); err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return meta, nil
}

func runUpgradeHandler(handler func(storage.Schema) error, schema storage.Schema) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("upgrade handler panicked: %v", r)
		}
	}()
	return handler(schema)
}

func (d *database) delete(req *request) {
	d.openMu.Lock()
	defer d.openMu.Unlock()

	meta, err := d.currentMeta()
	if err != nil {
		req.settle(nil, err)
		return
	}
	var current uint64
	if meta != nil {
		current = meta.Version
	}
	d.notifyVersionChange(current, 0, nil)

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	keys, err := d.collectKeys(
		makeDatabasePrefix(recordPrefix, d.id),
		makeDatabasePrefix(indexPrefix, d.id),
		makeDatabasePrefix(generatorPrefix, d.id),
	)
	if err != nil {
		req.settle(nil, err)
		return
	}
	keys = append(keys, makeMetaKey(d.name))

	wb := d.backend.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			req.settle(nil, err)
			return
		}
	}
	if err := wb.Flush(); err != nil {
		req.settle(nil, err)
		return
	}
	d.backend.logger.Debug("database deleted", "database", d.name, "keys", len(keys))
	req.settle(nil, nil)
}

// collectKeys returns copies of every key under the given prefixes.
func (d *database) collectKeys(prefixes ...[]byte) ([][]byte, error) {
	var keys [][]byte
	err := d.backend.WithTx(func(tx *badger.Txn) error {
		for _, prefix := range prefixes {
			found, err := keysWithPrefix(tx, prefix)
			if err != nil {
				return err
			}
			keys = append(keys, found...)
		}
		return nil
	}, false)
	return keys, err
}

func keysWithPrefix(tx *badger.Txn, prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var keys [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	return keys, nil
}

// deletePrefix removes every key under prefix inside tx.
func deletePrefix(tx *badger.Txn, prefix []byte) error {
	keys, err := keysWithPrefix(tx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := tx.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
