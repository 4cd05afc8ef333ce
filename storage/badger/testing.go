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

import "github.com/poiesic/storekit/storage"

// NewMemoryBackend creates an in-memory backend for testing.
// Caller must close the backend when done.
func NewMemoryBackend(opts ...Option) (*Backend, error) {
	return OpenBackend("", true, opts...)
}

// OpenSync opens a database and waits for the result.
// Upgrade handlers run as for Open.
func OpenSync(engine storage.Engine, name string, version uint64, onUpgrade func(storage.Schema) error) (storage.Connection, error) {
	req := engine.Open(name, version, storage.OpenOptions{OnUpgradeNeeded: onUpgrade})
	<-req.Done()
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	return result.(storage.Connection), nil
}

// Await waits for a request and returns its outcome.
func Await(req storage.Request) (any, error) {
	<-req.Done()
	return req.Result()
}
