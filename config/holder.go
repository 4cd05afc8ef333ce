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

import "sync"

// Holder owns the active configuration. It is set once during setup, read
// many times, and cleared between tests.
type Holder struct {
	mu  sync.RWMutex
	cfg *DatabaseConfig
}

// NewHolder returns a holder, optionally initialized with cfg.
func NewHolder(cfg *DatabaseConfig) (*Holder, error) {
	h := &Holder{}
	if cfg != nil {
		if err := h.Set(cfg); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Set validates cfg and stores a copy of it.
func (h *Holder) Set(cfg *DatabaseConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg.Clone()
	return nil
}

// Get returns a copy of the configuration, or ErrNotInitialized.
func (h *Holder) Get() (*DatabaseConfig, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cfg == nil {
		return nil, ErrNotInitialized
	}
	return h.cfg.Clone(), nil
}

// IsInitialized reports whether Set succeeded since the last Clear.
func (h *Holder) IsInitialized() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg != nil
}

// Clear drops the configuration.
func (h *Holder) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = nil
}
