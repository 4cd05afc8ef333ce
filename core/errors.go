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

package core

import "errors"

// Key and key path errors
var (
	// ErrInvalidKey indicates a value cannot be used as a record or index key.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidKeyPath indicates a malformed key path.
	ErrInvalidKeyPath = errors.New("invalid key path")

	// ErrInvalidKeyRange indicates a key range whose bounds are unusable.
	ErrInvalidKeyRange = errors.New("invalid key range")
)

// Domain validation errors
var (
	// ErrInvalidHttpMock indicates an HttpMock failed validation.
	ErrInvalidHttpMock = errors.New("invalid http mock")

	// ErrEmptyURL indicates the URL field is empty.
	ErrEmptyURL = errors.New("url cannot be empty")

	// ErrInvalidMethod indicates an unknown HTTP method.
	ErrInvalidMethod = errors.New("invalid http method")

	// ErrInvalidStatusCode indicates a response status outside 100-599.
	ErrInvalidStatusCode = errors.New("invalid http status code")

	// ErrInvalidUser indicates a User failed validation.
	ErrInvalidUser = errors.New("invalid user")

	// ErrEmptyEmail indicates the Email field is empty.
	ErrEmptyEmail = errors.New("email cannot be empty")
)
