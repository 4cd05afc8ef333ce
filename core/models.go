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

import "time"

// HttpMock is a canned HTTP response served for a URL and method.
// Field tags are the stored field names that store and index key paths refer to.
type HttpMock struct {
	ID                    int64             `msgpack:"_id,omitempty" json:"_id,omitempty" yaml:"_id,omitempty"`
	Name                  string            `msgpack:"name" json:"name" yaml:"name"`
	ServiceCode           string            `msgpack:"serviceCode" json:"serviceCode" yaml:"serviceCode"`
	URL                   string            `msgpack:"url" json:"url" yaml:"url"`
	Method                string            `msgpack:"method" json:"method" yaml:"method"`
	HTTPCodeResponseValue int               `msgpack:"httpCodeResponseValue" json:"httpCodeResponseValue" yaml:"httpCodeResponseValue"`
	DelayMs               int               `msgpack:"delayMs" json:"delayMs" yaml:"delayMs"`
	Headers               map[string]string `msgpack:"headers,omitempty" json:"headers,omitempty" yaml:"headers,omitempty"`
	ResponseBody          string            `msgpack:"responseBody" json:"responseBody" yaml:"responseBody"`
	CreatedAt             time.Time         `msgpack:"createdAt,omitempty" json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt             time.Time         `msgpack:"updatedAt,omitempty" json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// NewHttpMock returns a mock for url and method with a 200 status.
// An empty method defaults to GET.
func NewHttpMock(url, method string) *HttpMock {
	if method == "" {
		method = "GET"
	}
	now := time.Now().UTC()
	return &HttpMock{
		URL:                   url,
		Method:                method,
		HTTPCodeResponseValue: 200,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// Touch sets UpdatedAt to the current time.
func (m *HttpMock) Touch() {
	m.UpdatedAt = time.Now().UTC()
}

// User is an application user looked up by email.
type User struct {
	ID        int64     `msgpack:"_id,omitempty" json:"_id,omitempty" yaml:"_id,omitempty"`
	Name      string    `msgpack:"name" json:"name" yaml:"name"`
	Email     string    `msgpack:"email" json:"email" yaml:"email"`
	CreatedAt time.Time `msgpack:"createdAt,omitempty" json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt time.Time `msgpack:"updatedAt,omitempty" json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Touch sets UpdatedAt to the current time.
func (u *User) Touch() {
	u.UpdatedAt = time.Now().UTC()
}
