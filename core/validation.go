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

import (
	"fmt"
	"slices"
	"strings"
)

var httpMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS", "CONNECT", "TRACE"}

// ValidateHttpMock validates an HttpMock according to domain rules.
//
// Validation rules:
//   - URL must not be empty
//   - Method must be a standard HTTP method (case-insensitive)
//   - HTTPCodeResponseValue must be 0 (unset) or within 100-599
//
// NOT validated:
//   - ID (0 means "assign on create")
//   - ResponseBody (any text, JSON or not)
func ValidateHttpMock(mock *HttpMock) error {
	if mock == nil {
		return fmt.Errorf("%w: mock is nil", ErrInvalidHttpMock)
	}

	if mock.URL == "" {
		return fmt.Errorf("%w: %w", ErrInvalidHttpMock, ErrEmptyURL)
	}

	if err := ValidateMethod(mock.Method); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHttpMock, err)
	}

	if code := mock.HTTPCodeResponseValue; code != 0 && (code < 100 || code > 599) {
		return fmt.Errorf("%w: %w: %d", ErrInvalidHttpMock, ErrInvalidStatusCode, code)
	}

	return nil
}

// ValidateMethod validates that method is a standard HTTP method.
func ValidateMethod(method string) error {
	if !slices.Contains(httpMethods, strings.ToUpper(method)) {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	return nil
}

// ValidateUser validates a User. Only Email is required.
func ValidateUser(user *User) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", ErrInvalidUser)
	}
	if strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidUser, ErrEmptyEmail)
	}
	return nil
}

// ValidateKey checks that v can be used as a key.
func ValidateKey(v any) error {
	_, err := NormalizeKey(v)
	return err
}
