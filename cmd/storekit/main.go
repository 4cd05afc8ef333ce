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
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "storekit",
		Usage: "Manage storekit databases and HTTP mocks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE` before running",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return loadEnvFiles(c)
		},
		Commands: []*cli.Command{
			{
				Name:   "inspect",
				Usage:  "Print the structure of the database as configuration YAML",
				Action: inspectCommand,
				Flags:  []cli.Flag{dbFlag()},
			},
			{
				Name:   "env",
				Usage:  "Print environment variables",
				Action: envCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "Only print variables starting with `PREFIX`",
					},
					&cli.BoolFlag{
						Name:    "hide-values",
						Aliases: []string{"hide"},
						Usage:   "Print a short preview instead of each value",
					},
				},
			},
			{
				Name:  "mock",
				Usage: "Manage HTTP mocks",
				Subcommands: []*cli.Command{
					{
						Name:   "add",
						Usage:  "Add a mock",
						Action: mockAddCommand,
						Flags: []cli.Flag{
							dbFlag(), configFlag(), storeFlag(),
							&cli.StringFlag{Name: "url", Usage: "Request URL to match", Required: true},
							&cli.StringFlag{Name: "method", Usage: "HTTP method", Value: "GET"},
							&cli.IntFlag{Name: "status", Usage: "Response status code", Value: 200},
							&cli.StringFlag{Name: "body", Usage: "Response body"},
							&cli.StringFlag{Name: "name", Usage: "Mock name"},
							&cli.StringFlag{Name: "service-code", Usage: "Service code"},
							&cli.IntFlag{Name: "delay", Usage: "Response delay in milliseconds"},
						},
					},
					{
						Name:   "list",
						Usage:  "List mocks",
						Action: mockListCommand,
						Flags:  []cli.Flag{dbFlag(), configFlag(), storeFlag()},
					},
					{
						Name:   "find",
						Usage:  "Find mocks by URL or service code",
						Action: mockFindCommand,
						Flags: []cli.Flag{
							dbFlag(), configFlag(), storeFlag(),
							&cli.StringFlag{Name: "url", Usage: "Request URL"},
							&cli.StringFlag{Name: "method", Usage: "HTTP method, used with --url"},
							&cli.StringFlag{Name: "service-code", Usage: "Service code"},
						},
					},
					{
						Name:   "delete",
						Usage:  "Delete a mock",
						Action: mockDeleteCommand,
						Flags: []cli.Flag{
							dbFlag(), configFlag(), storeFlag(),
							&cli.Int64Flag{Name: "id", Usage: "Mock ID", Required: true},
						},
					},
				},
			},
		},
	}
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "db",
		Aliases:  []string{"d"},
		Usage:    "Path to BadgerDB database directory",
		EnvVars:  []string{"STOREKIT_DB"},
		Required: true,
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Database configuration file (YAML, JSON or TOML)",
		EnvVars: []string{"STOREKIT_CONFIG"},
	}
}

func storeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "store",
		Usage: "Object store to use (defaults to the first configured store)",
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadEnvFiles loads --env-file files. Variables already set win.
func loadEnvFiles(c *cli.Context) error {
	files := c.StringSlice("env-file")
	if len(files) == 0 {
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}
	slog.Debug("loaded env files", "files", files)
	return nil
}
