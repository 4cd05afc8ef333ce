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

package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/poiesic/storekit/core"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables that override file settings.
const EnvPrefix = "STOREKIT"

// Load reads a YAML, JSON or TOML configuration file and validates it.
// Top-level settings can be overridden from the environment, e.g. STOREKIT_VERSION.
func Load(path string) (*DatabaseConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	var cfg DatabaseConfig
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		keyPathHook(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// keyPathHook decodes a string or a list of strings into a core.KeyPath.
func keyPathHook() mapstructure.DecodeHookFuncType {
	keyPathType := reflect.TypeOf(core.KeyPath{})
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != keyPathType {
			return data, nil
		}
		return core.KeyPathOf(data)
	}
}
