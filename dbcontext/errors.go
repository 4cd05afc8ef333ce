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

import "errors"

var (
	// ErrOpenFailed is returned when the engine fails an open without saying why.
	ErrOpenFailed = errors.New("failed to open database")

	// ErrNoConnection is returned when an open settles without a usable connection.
	ErrNoConnection = errors.New("database connection unavailable")

	// ErrContextClosed is returned to open callers whose open was overtaken by Close.
	ErrContextClosed = errors.New("database context closed")

	// ErrTransactionAborted wraps the cause of an aborted transaction.
	ErrTransactionAborted = errors.New("transaction aborted")

	// ErrTransactionError wraps a transaction commit failure.
	ErrTransactionError = errors.New("transaction error")

	// ErrUnexpectedResult is returned by Run when the result has the wrong type.
	ErrUnexpectedResult = errors.New("unexpected transaction result")
)
