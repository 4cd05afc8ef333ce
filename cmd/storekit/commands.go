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

package main

import (
	"fmt"
	"log/slog"

	"github.com/poiesic/storekit"
	"github.com/poiesic/storekit/config"
	"github.com/poiesic/storekit/core"
	"github.com/poiesic/storekit/storage/badger"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func openDatabase(c *cli.Context) (*storekit.Database, error) {
	dbPath := c.String("db")
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	opts := []storekit.DatabaseOption{storekit.WithLogger(slog.Default())}
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, storekit.WithConfig(cfg))
	}
	return storekit.NewDatabase(c.Context, dbPath, opts...)
}

func writeYAML(c *cli.Context, v any) error {
	enc := yaml.NewEncoder(c.App.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func inspectCommand(c *cli.Context) error {
	backend, err := badger.OpenBackend(c.String("db"), false, badger.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer backend.Close()

	cfg, err := storekit.InspectStructure(c.Context, backend)
	if err != nil {
		return err
	}
	return writeYAML(c, cfg)
}

func mockAddCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	mock := core.NewHttpMock(c.String("url"), c.String("method"))
	mock.Name = c.String("name")
	mock.ServiceCode = c.String("service-code")
	mock.HTTPCodeResponseValue = c.Int("status")
	mock.ResponseBody = c.String("body")
	mock.DelayMs = c.Int("delay")

	created, err := db.Mocks().Create(c.Context, mock, c.String("store"))
	if err != nil {
		return err
	}
	slog.Info("mock added", "id", created.ID, "url", created.URL, "method", created.Method)
	return writeYAML(c, created)
}

func mockListCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	mocks, err := db.Mocks().All(c.Context, c.String("store"))
	if err != nil {
		return err
	}
	return writeYAML(c, mocks)
}

func mockFindCommand(c *cli.Context) error {
	url, code := c.String("url"), c.String("service-code")
	if (url == "") == (code == "") {
		return fmt.Errorf("exactly one of --url or --service-code is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	store := c.String("store")
	var mocks []*core.HttpMock
	switch {
	case code != "":
		mocks, err = db.Mocks().FindByServiceCode(c.Context, code, store)
	case c.String("method") != "":
		mocks, err = db.Mocks().FindByURLAndMethod(c.Context, url, c.String("method"), store)
	default:
		mocks, err = db.Mocks().FindByURL(c.Context, url, store)
	}
	if err != nil {
		return err
	}
	return writeYAML(c, mocks)
}

func mockDeleteCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	id := c.Int64("id")
	deleted, err := db.Mocks().Delete(c.Context, id, c.String("store"))
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("mock %d not found", id)
	}
	_, err = fmt.Fprintf(c.App.Writer, "deleted mock %d\n", id)
	return err
}
