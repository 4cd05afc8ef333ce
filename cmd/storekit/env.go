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
	"io"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"
)

const previewThreshold = 8

func envCommand(c *cli.Context) error {
	return writeEnv(c.App.Writer, os.Environ(), c.String("prefix"), c.Bool("hide-values"))
}

// writeEnv prints KEY=VALUE pairs from environ sorted by key. Hidden values
// longer than previewThreshold show only their first and last four bytes.
func writeEnv(w io.Writer, environ []string, prefix string, hide bool) error {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, _ := strings.Cut(kv, "=")
		if k == "" {
			continue
		}
		env[k] = v
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	if _, err := fmt.Fprintln(w, "Environment variables"); err != nil {
		return err
	}
	if len(keys) == 0 {
		_, err := fmt.Fprintln(w, "(no environment variables found)")
		return err
	}
	for _, k := range keys {
		v := env[k]
		var err error
		if hide && v != "" {
			preview := v
			if len(v) > previewThreshold {
				preview = v[:4] + "..." + v[len(v)-4:]
			}
			_, err = fmt.Fprintf(w, "%s = <hidden> (preview: %s, len=%d)\n", k, preview, len(v))
		} else {
			_, err = fmt.Fprintf(w, "%s = %s\n", k, v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
