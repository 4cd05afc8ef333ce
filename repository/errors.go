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

package repository

import "errors"

var (
	// ErrIndexNotFound is returned when no index can be resolved or the
	// resolved index is missing from the live store.
	ErrIndexNotFound = errors.New("index not found")

	// ErrKeyPathMismatch is returned when an index's live key path differs
	// from the one the caller expected.
	ErrKeyPathMismatch = errors.New("index key path mismatch")

	// ErrPrimaryKeyMissing is returned when an entity has no primary key value.
	ErrPrimaryKeyMissing = errors.New("primary key missing")

	// ErrEntityNotFound is returned when a mutation targets an absent entity.
	ErrEntityNotFound = errors.New("entity not found")
)
