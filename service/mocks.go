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

package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/poiesic/storekit/config"
	"github.com/poiesic/storekit/core"
	"github.com/poiesic/storekit/dbcontext"
)

// MockService manages HTTP mocks.
type MockService struct {
	*Service[core.HttpMock]
}

// NewMockService creates a mock service over storeName, or over every
// configured store when storeName is empty. Mocks are validated before
// they are written.
func NewMockService(db *dbcontext.Context, holder *config.Holder, storeName string) (*MockService, error) {
	svc, err := NewService[core.HttpMock](db, holder, storeName)
	if err != nil {
		return nil, err
	}
	svc.validate = core.ValidateHttpMock
	return &MockService{Service: svc}, nil
}

// FindByURL returns the mocks registered for url.
func (s *MockService) FindByURL(ctx context.Context, url string, store string) ([]*core.HttpMock, error) {
	return s.findByField(ctx, "url", url, store)
}

// FindByServiceCode returns the mocks tagged with serviceCode.
func (s *MockService) FindByServiceCode(ctx context.Context, serviceCode string, store string) ([]*core.HttpMock, error) {
	return s.findByField(ctx, "serviceCode", serviceCode, store)
}

// FindByURLAndMethod looks a mock up through the composite url+method index.
func (s *MockService) FindByURLAndMethod(ctx context.Context, url, method string, store string) ([]*core.HttpMock, error) {
	return s.FindByIndex(ctx, []any{url, method}, "", core.Composite("url", "method"), store)
}

// ResponseBodyAs decodes the JSON response body of the mock stored under
// key. A body that is not valid JSON is returned as is when T is a string.
// ok is false when the mock does not exist or has an empty body.
func ResponseBodyAs[T any](ctx context.Context, s *MockService, key any, store string) (body T, ok bool, err error) {
	mock, err := s.Get(ctx, key, store)
	if err != nil || mock == nil || mock.ResponseBody == "" {
		return body, false, err
	}
	if err := json.Unmarshal([]byte(mock.ResponseBody), &body); err != nil {
		if raw, isString := any(&body).(*string); isString {
			*raw = mock.ResponseBody
			return body, true, nil
		}
		return body, false, fmt.Errorf("response body of mock %v: %w", key, err)
	}
	return body, true, nil
}
