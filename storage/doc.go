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

// Package storage defines the contract of the object-store engine that storekit
// builds on.
//
// The engine is event-driven in the style of an embedded browser database:
// opening a database, issuing a read or a write, and finishing a transaction
// all complete through handlers registered on the returned handle rather than
// through return values. The dbcontext package bridges this model into
// blocking, context-aware calls.
//
// # Contract
//
//   - Engine: versioned Open with upgrade and blocked handlers, DeleteDatabase, Databases
//   - Connection: transactions over named stores, version-change notification, deferred Close
//   - Transaction: ordered requests, auto-commit once drained, complete/abort/error signals
//   - ObjectStore and Index: add/put/get/getAll/count/delete by key or key range
//   - Request: a single operation that settles exactly once
//
// # Serialization
//
// Records are stored as msgpack maps. Entities convert to and from records
// through their msgpack field tags (EncodeEntity, DecodeEntity). Schema
// metadata is stored with mus-go.
//
// # Usage
//
// The BadgerDB implementation lives in storage/badger:
//
//	engine, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
// # Thread Safety
//
// Every handle may be used from any goroutine. Handlers run on the engine's
// worker goroutines; a handler registered after its signal fired runs
// immediately on the registering goroutine.
package storage
