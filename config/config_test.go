package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/storekit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *DatabaseConfig {
	return &DatabaseConfig{
		DBName:  "test-db",
		Version: 1,
		Stores: []StoreConfig{
			{
				Name:          "mocks",
				KeyPath:       core.Path("_id"),
				AutoIncrement: true,
				Indexes: []IndexConfig{
					{Name: "by_url", KeyPath: core.Path("url")},
				},
			},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *DatabaseConfig)
		wantMsg string
	}{
		{
			name:    "missing dbName",
			mutate:  func(c *DatabaseConfig) { c.DBName = "" },
			wantMsg: "dbName is required",
		},
		{
			name:    "zero version",
			mutate:  func(c *DatabaseConfig) { c.Version = 0 },
			wantMsg: "version is required and must be a positive integer",
		},
		{
			name:    "negative version",
			mutate:  func(c *DatabaseConfig) { c.Version = -2 },
			wantMsg: "version is required and must be a positive integer",
		},
		{
			name:    "no stores",
			mutate:  func(c *DatabaseConfig) { c.Stores = nil },
			wantMsg: "stores is required and must be a non-empty array",
		},
		{
			name:    "duplicate store",
			mutate:  func(c *DatabaseConfig) { c.Stores = append(c.Stores, StoreConfig{Name: "mocks"}) },
			wantMsg: `duplicate store "mocks"`,
		},
		{
			name:    "unnamed store",
			mutate:  func(c *DatabaseConfig) { c.Stores[0].Name = "" },
			wantMsg: "store name is required",
		},
		{
			name: "duplicate index",
			mutate: func(c *DatabaseConfig) {
				c.Stores[0].Indexes = append(c.Stores[0].Indexes, IndexConfig{Name: "by_url", KeyPath: core.Path("x")})
			},
			wantMsg: `duplicate index "by_url"`,
		},
		{
			name:    "index without key path",
			mutate:  func(c *DatabaseConfig) { c.Stores[0].Indexes[0].KeyPath = core.KeyPath{} },
			wantMsg: "needs a keyPath",
		},
		{
			name:    "empty composite field",
			mutate:  func(c *DatabaseConfig) { c.Stores[0].Indexes[0].KeyPath = core.Composite("url", "") },
			wantMsg: "empty field name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.wantMsg)
		})
	}

	assert.NoError(t, validConfig().Validate())

	var nilConfig *DatabaseConfig
	assert.ErrorIs(t, nilConfig.Validate(), ErrInvalidConfig)
}

func TestHolder(t *testing.T) {
	h, err := NewHolder(nil)
	require.NoError(t, err)
	assert.False(t, h.IsInitialized())

	_, err = h.Get()
	assert.ErrorIs(t, err, ErrNotInitialized)

	input := validConfig()
	require.NoError(t, h.Set(input))
	assert.True(t, h.IsInitialized())

	got, err := h.Get()
	require.NoError(t, err)
	assert.Equal(t, input, got)
	assert.NotSame(t, input, got)

	// later mutation of the input or of a returned copy does not leak in
	input.DBName = "changed"
	input.Stores[0].Indexes[0].Name = "changed"
	got.Stores[0].Name = "changed"
	again, err := h.Get()
	require.NoError(t, err)
	assert.Equal(t, "test-db", again.DBName)
	assert.Equal(t, "mocks", again.Stores[0].Name)
	assert.Equal(t, "by_url", again.Stores[0].Indexes[0].Name)

	bad := validConfig()
	bad.Version = 0
	assert.ErrorIs(t, h.Set(bad), ErrInvalidConfig)
	assert.True(t, h.IsInitialized())

	h.Clear()
	assert.False(t, h.IsInitialized())

	_, err = NewHolder(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDefaultHTTPStore(t *testing.T) {
	s := DefaultHTTPStore()
	assert.Equal(t, "httpMocks", s.Name)
	assert.True(t, s.AutoIncrement)
	require.Len(t, s.Indexes, 3)
	assert.True(t, s.Indexes[1].KeyPath.Equal(core.Composite("url", "method")))

	cfg := &DatabaseConfig{DBName: "d", Version: 1, Stores: []StoreConfig{s}}
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"httpMocks"}, cfg.StoreNames())
	_, ok := cfg.Store("httpMocks")
	assert.True(t, ok)
}

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "storekit.yaml", `
dbName: t
version: 2
clearDatabase: true
stores:
  - name: mocks
    keyPath: _id
    autoIncrement: true
    indexes:
      - name: by_url
        keyPath: url
      - name: by_url_method
        keyPath: [url, method]
        options:
          unique: true
  - name: settings
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "t", cfg.DBName)
	assert.Equal(t, 2, cfg.Version)
	assert.True(t, cfg.ClearDatabase)
	require.Len(t, cfg.Stores, 2)

	mocks := cfg.Stores[0]
	assert.True(t, mocks.KeyPath.Equal(core.Path("_id")))
	assert.True(t, mocks.AutoIncrement)
	require.Len(t, mocks.Indexes, 2)
	assert.True(t, mocks.Indexes[1].KeyPath.Equal(core.Composite("url", "method")))
	assert.True(t, mocks.Indexes[1].Options.Unique)

	assert.True(t, cfg.Stores[1].KeyPath.IsZero())
}

func TestLoad_JSONWithEnvOverride(t *testing.T) {
	path := writeFile(t, "storekit.json", `{
  "dbName": "t",
  "version": 1,
  "stores": [{"name": "mocks", "keyPath": "_id"}]
}`)
	t.Setenv("STOREKIT_VERSION", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Version)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrLoadFailed)

	path := writeFile(t, "empty-stores.yaml", "dbName: t\nversion: 1\nstores: []\n")
	_, err = Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	path = writeFile(t, "bad-keypath.yaml", "dbName: t\nversion: 1\nstores:\n  - name: s\n    keyPath: [a, 1]\n")
	_, err = Load(path)
	assert.Error(t, err)
}
