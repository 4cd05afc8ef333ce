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

import "github.com/poiesic/storekit/core"

// TxMode is the access mode of a transaction.
type TxMode int

const (
	ReadOnly TxMode = iota
	ReadWrite
)

func (m TxMode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	default:
		return "unknown"
	}
}

// Request is a single asynchronous operation. It settles exactly once,
// either successfully with a result or with an error.
// Handlers registered after settlement are invoked immediately.
type Request interface {
	// OnSuccess registers a handler for the success signal.
	OnSuccess(fn func(result any))

	// OnError registers a handler for the failure signal.
	OnError(fn func(err error))

	// Done is closed once the request has settled and its handlers have run.
	Done() <-chan struct{}

	// Result returns the outcome. Only meaningful after Done is closed.
	Result() (any, error)
}

// Transaction groups requests against one or more object stores.
// Requests execute in issuance order and commit or abort together.
//
// A transaction accepts requests until Commit is called and, after that,
// for as long as earlier requests are still outstanding (typically from
// inside their handlers). Once drained it commits automatically.
// Exactly one of complete, abort or error is signalled.
type Transaction interface {
	Mode() TxMode

	// ObjectStore returns a handle to a store within the transaction's scope.
	ObjectStore(name string) (ObjectStore, error)

	// Commit ends the issuing phase. The transaction commits once every
	// outstanding request has settled.
	Commit()

	// Abort rolls the transaction back. Pending requests fail with ErrAborted.
	Abort()

	// OnComplete registers a handler for a durable commit.
	OnComplete(fn func())

	// OnAbort registers a handler for an abort, receiving its cause.
	OnAbort(fn func(err error))

	// OnError registers a handler for a commit failure.
	OnError(fn func(err error))

	// Done is closed once the transaction has finished and its handlers have run.
	Done() <-chan struct{}

	// Err returns nil after a commit, otherwise the abort or commit error.
	Err() error
}

// ObjectStore is a named collection of records within a transaction.
type ObjectStore interface {
	Name() string
	KeyPath() core.KeyPath
	AutoIncrement() bool

	// Add inserts a record, failing with ErrConstraint if the key exists.
	// key is required for out-of-line stores without a key generator and must be nil otherwise.
	// The success result is the record's key.
	Add(value core.Record, key any) Request

	// Put inserts or replaces a record. The success result is the record's key.
	Put(value core.Record, key any) Request

	// Get resolves with the first record matching a key or *core.KeyRange, or nil.
	Get(query any) Request

	// GetAll resolves with up to count records ([]core.Record) in key order. count <= 0 means no limit.
	GetAll(query any, count int) Request

	// GetAllKeys resolves with up to count primary keys ([]any) in key order.
	GetAllKeys(query any, count int) Request

	// Count resolves with the number of records matching query (int).
	Count(query any) Request

	// Delete removes every record matching a key or range. Deleting nothing is not an error.
	Delete(query any) Request

	// Clear removes every record in the store.
	Clear() Request

	// Index returns a named index of this store.
	Index(name string) (Index, error)

	// IndexNames returns the store's index names, sorted.
	IndexNames() []string
}

// Index is a secondary projection of an object store.
type Index interface {
	Name() string
	KeyPath() core.KeyPath
	Unique() bool
	MultiEntry() bool

	// Get resolves with the first record whose index key matches query, or nil.
	Get(query any) Request

	// GetAll resolves with up to count matching records ([]core.Record),
	// ordered by index key then primary key.
	GetAll(query any, count int) Request

	// GetAllKeys resolves with the primary keys ([]any) of matching records.
	GetAllKeys(query any, count int) Request

	// Count resolves with the number of matching index entries (int).
	Count(query any) Request
}

// StoreOptions configures a new object store.
type StoreOptions struct {
	KeyPath       core.KeyPath
	AutoIncrement bool
}

// IndexOptions configures a new index.
type IndexOptions struct {
	Unique     bool
	MultiEntry bool
}

// Schema is the mutable schema handle passed to upgrade handlers.
type Schema interface {
	// OldVersion is the version before the upgrade, 0 for a new database.
	OldVersion() uint64

	// Version is the version being upgraded to.
	Version() uint64

	StoreNames() []string
	HasStore(name string) bool
	Store(name string) (StoreSchema, error)
	CreateStore(name string, opts StoreOptions) (StoreSchema, error)
	DeleteStore(name string) error
}

// StoreSchema is the mutable schema of one object store during an upgrade.
type StoreSchema interface {
	Name() string
	KeyPath() core.KeyPath
	AutoIncrement() bool
	IndexNames() []string
	HasIndex(name string) bool

	// CreateIndex adds an index and populates it from existing records.
	CreateIndex(name string, keyPath core.KeyPath, opts IndexOptions) error
	DeleteIndex(name string) error
}

// Connection is an open handle to a versioned database.
type Connection interface {
	ID() string
	Name() string
	Version() uint64
	StoreNames() []string

	// Schema describes the stores and indexes visible to this connection.
	Schema() SchemaInfo

	// Transaction starts a transaction over the named stores.
	Transaction(stores []string, mode TxMode) (Transaction, error)

	// OnVersionChange registers a handler invoked when another open request
	// needs to upgrade the database. The handler should close the connection.
	OnVersionChange(fn func(oldVersion, newVersion uint64))

	// Close releases the connection once its running transactions finish.
	// No new transactions may be started after Close.
	Close()
}

// OpenOptions carries the handlers of an open request.
type OpenOptions struct {
	// OnUpgradeNeeded runs inside the upgrade transaction when the stored
	// version is lower than the requested one. An error discards the upgrade
	// and fails the open with that error.
	OnUpgradeNeeded func(schema Schema) error

	// OnBlocked is invoked when other connections are still open after
	// being notified of the version change.
	OnBlocked func(oldVersion, newVersion uint64)
}

// Engine opens and deletes versioned databases.
type Engine interface {
	// Open requests a connection. Version 0 opens the current version.
	// The success result is a Connection.
	Open(name string, version uint64, opts OpenOptions) Request

	// DeleteDatabase removes a database and all its data.
	DeleteDatabase(name string) Request

	// Databases lists the existing databases.
	Databases() ([]DatabaseInfo, error)
}

// DatabaseInfo names an existing database and its version.
type DatabaseInfo struct {
	Name    string
	Version uint64
}

// SchemaInfo is a read-only description of a database schema.
type SchemaInfo struct {
	Name    string
	Version uint64
	Stores  []StoreInfo
}

// StoreInfo describes one object store.
type StoreInfo struct {
	Name          string
	KeyPath       core.KeyPath
	AutoIncrement bool
	Indexes       []IndexInfo
}

// IndexInfo describes one index.
type IndexInfo struct {
	Name       string
	KeyPath    core.KeyPath
	Unique     bool
	MultiEntry bool
}

// StoreNames returns the names of the described stores in order.
func (s SchemaInfo) StoreNames() []string {
	names := make([]string, len(s.Stores))
	for i, st := range s.Stores {
		names[i] = st.Name
	}
	return names
}

// Store returns the named store description.
func (s SchemaInfo) Store(name string) (StoreInfo, bool) {
	for _, st := range s.Stores {
		if st.Name == name {
			return st, true
		}
	}
	return StoreInfo{}, false
}

// Index returns the named index description.
func (s StoreInfo) Index(name string) (IndexInfo, bool) {
	for _, idx := range s.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexInfo{}, false
}
