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

	"github.com/poiesic/storekit/config"
	"github.com/poiesic/storekit/core"
	"github.com/poiesic/storekit/dbcontext"
)

// UserStoreName is the store DefaultUserStore configures.
const UserStoreName = "users"

// DefaultUserStore returns the configuration of the users store.
func DefaultUserStore() config.StoreConfig {
	return config.StoreConfig{
		Name:          UserStoreName,
		KeyPath:       core.Path("_id"),
		AutoIncrement: true,
		Indexes: []config.IndexConfig{
			{Name: "email", KeyPath: core.Path("email"), Options: config.IndexOptions{Unique: true}},
		},
	}
}

// UserService manages users in a single store.
type UserService struct {
	*Service[core.User]
}

// NewUserService creates a user service over storeName, UserStoreName when empty.
func NewUserService(db *dbcontext.Context, holder *config.Holder, storeName string) (*UserService, error) {
	if storeName == "" {
		storeName = UserStoreName
	}
	svc, err := NewService[core.User](db, holder, storeName)
	if err != nil {
		return nil, err
	}
	svc.validate = core.ValidateUser
	return &UserService{Service: svc}, nil
}

// FindByEmail returns the user with email, or nil.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*core.User, error) {
	users, err := s.findByField(ctx, "email", email, "")
	if err != nil || len(users) == 0 {
		return nil, err
	}
	return users[0], nil
}
