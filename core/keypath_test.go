package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestKeyPath_Equal(t *testing.T) {
	assert.True(t, Path("url").Equal(Path("url")))
	assert.False(t, Path("url").Equal(Path("method")))
	assert.True(t, Composite("url", "method").Equal(Composite("url", "method")))
	assert.False(t, Composite("url", "method").Equal(Composite("method", "url")))
	assert.False(t, Path("url").Equal(Composite("url")))
	assert.True(t, KeyPath{}.Equal(KeyPath{}))
	assert.True(t, KeyPath{}.IsZero())
	assert.False(t, Composite().IsZero())
}

func TestKeyPathOf(t *testing.T) {
	kp, err := KeyPathOf("url")
	require.NoError(t, err)
	assert.True(t, kp.Equal(Path("url")))

	kp, err = KeyPathOf([]any{"url", "method"})
	require.NoError(t, err)
	assert.True(t, kp.Equal(Composite("url", "method")))

	kp, err = KeyPathOf("")
	require.NoError(t, err)
	assert.True(t, kp.IsZero())

	_, err = KeyPathOf([]any{"url", 3})
	assert.ErrorIs(t, err, ErrInvalidKeyPath)

	_, err = KeyPathOf(42)
	assert.ErrorIs(t, err, ErrInvalidKeyPath)
}

func TestKeyPath_Validate(t *testing.T) {
	assert.NoError(t, Path("a.b").Validate())
	assert.NoError(t, KeyPath{}.Validate())
	assert.ErrorIs(t, Composite().Validate(), ErrInvalidKeyPath)
	assert.ErrorIs(t, Composite("a", "").Validate(), ErrInvalidKeyPath)
}

func TestKeyPath_Extract(t *testing.T) {
	rec := Record{
		"url":    "/a",
		"method": "GET",
		"meta":   map[string]any{"owner": "ops"},
		"empty":  nil,
	}

	v, ok := Path("url").Extract(rec)
	require.True(t, ok)
	assert.Equal(t, "/a", v)

	v, ok = Composite("url", "method").Extract(rec)
	require.True(t, ok)
	assert.Equal(t, []any{"/a", "GET"}, v)

	v, ok = Path("meta.owner").Extract(rec)
	require.True(t, ok)
	assert.Equal(t, "ops", v)

	_, ok = Path("missing").Extract(rec)
	assert.False(t, ok)

	_, ok = Path("empty").Extract(rec)
	assert.False(t, ok)

	_, ok = Composite("url", "missing").Extract(rec)
	assert.False(t, ok)

	_, ok = Path("url.deeper").Extract(rec)
	assert.False(t, ok)
}

func TestKeyPath_Inject(t *testing.T) {
	rec := Record{}
	require.NoError(t, Path("_id").Inject(rec, int64(4)))
	assert.Equal(t, int64(4), rec["_id"])

	require.NoError(t, Path("meta.id").Inject(rec, "k"))
	v, ok := Path("meta.id").Extract(rec)
	require.True(t, ok)
	assert.Equal(t, "k", v)

	assert.ErrorIs(t, Composite("a", "b").Inject(rec, 1), ErrInvalidKeyPath)
	assert.ErrorIs(t, Path("_id.x").Inject(rec, 1), ErrInvalidKeyPath)
}

func TestKeyPath_Encoding(t *testing.T) {
	type holder struct {
		KeyPath KeyPath `json:"keyPath" yaml:"keyPath"`
	}

	t.Run("json", func(t *testing.T) {
		var h holder
		require.NoError(t, json.Unmarshal([]byte(`{"keyPath":["url","method"]}`), &h))
		assert.True(t, h.KeyPath.Equal(Composite("url", "method")))

		out, err := json.Marshal(holder{KeyPath: Path("url")})
		require.NoError(t, err)
		assert.JSONEq(t, `{"keyPath":"url"}`, string(out))
	})

	t.Run("yaml", func(t *testing.T) {
		var h holder
		require.NoError(t, yaml.Unmarshal([]byte("keyPath: [url, method]\n"), &h))
		assert.True(t, h.KeyPath.Equal(Composite("url", "method")))

		require.NoError(t, yaml.Unmarshal([]byte("keyPath: serviceCode\n"), &h))
		assert.True(t, h.KeyPath.Equal(Path("serviceCode")))
	})

	assert.Equal(t, `["url","method"]`, Composite("url", "method").String())
	assert.Equal(t, `"url"`, Path("url").String())
}

func TestNormalizeValue(t *testing.T) {
	in := map[string]any{
		"n":       int8(3),
		"f":       float32(0.5),
		"nested":  map[string]any{"u": uint16(9)},
		"list":    []any{int32(1), "x"},
		"headers": map[string]string{"a": "b"},
	}
	out := NormalizeValue(in).(Record)
	assert.Equal(t, int64(3), out["n"])
	assert.Equal(t, float64(0.5), out["f"])
	assert.Equal(t, Record{"u": int64(9)}, out["nested"])
	assert.Equal(t, []any{int64(1), "x"}, out["list"])
	assert.Equal(t, Record{"a": "b"}, out["headers"])

	clone := out.Clone()
	clone["nested"].(Record)["u"] = int64(10)
	assert.Equal(t, int64(9), out["nested"].(Record)["u"])
}
