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

// Package dbcontext turns the engine's callback-driven requests and
// transactions into blocking calls.
//
// A Context owns one connection per database name and version. It opens
// lazily, runs registered migrations when the engine asks for an upgrade,
// and closes itself when another opener changes the database version.
//
//	ctx, _ := dbcontext.NewFromConfig(engine, holder)
//	key, err := ctx.RunTransaction(c, "mocks", storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
//		return s.Add(record, nil), nil
//	})
//
// RunTransaction returns only after the transaction commits, so a caller
// that waits for one call observes its writes in the next.
package dbcontext
