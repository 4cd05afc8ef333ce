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

import "errors"

var (
	// ErrNotFound indicates that the requested store, index or database was not found.
	ErrNotFound = errors.New("not found")

	// ErrConstraint indicates a primary-key or unique-index violation.
	ErrConstraint = errors.New("constraint violation")

	// ErrData indicates a record or key that the store cannot accept.
	ErrData = errors.New("data error")

	// ErrTransactionInactive indicates a request issued after the transaction stopped accepting work.
	ErrTransactionInactive = errors.New("transaction is not active")

	// ErrReadOnly indicates a write issued in a read-only transaction.
	ErrReadOnly = errors.New("transaction is read-only")

	// ErrAborted indicates that the transaction was aborted.
	ErrAborted = errors.New("transaction aborted")

	// ErrVersion indicates an open request for a version lower than the stored one.
	ErrVersion = errors.New("requested version is less than the existing version")

	// ErrInvalidState indicates an operation on a closed or closing connection.
	ErrInvalidState = errors.New("invalid state")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData indicates that data was truncated during reading.
	ErrTruncatedData = errors.New("truncated data")
)
