package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.DefaultModel)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, 0, cfg.GRPCPort)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.True(t, cfg.Preload)
	assert.False(t, cfg.Redis.Enabled())
	assert.GreaterOrEqual(t, cfg.Redis.Workers, 1)
	assert.Equal(t, DefaultCacheTTL, cfg.Redis.TTL)
	assert.EqualValues(t, DefaultMaxBody, cfg.MaxBodyBytes)

	require.Len(t, cfg.Models, 3)
	for _, m := range cfg.Models {
		assert.Equal(t, "openai", m.Backend)
		assert.Equal(t, DefaultBackendURL, m.Endpoint)
		assert.Equal(t, DefaultAPIKeyEnv, m.APIKeyEnv)
		assert.Equal(t, 256, m.MaxBatchSize)
		assert.Equal(t, 1, m.Concurrency)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SEMEMBED_MODEL", "sentence-transformers/all-MiniLM-L6-v2")
	t.Setenv("SEMEMBED_PORT", "9000")
	t.Setenv("SEMEMBED_GRPC_PORT", "9001")
	t.Setenv("SEMEMBED_BACKEND", "hash")
	t.Setenv("SEMEMBED_MAX_BATCH_SIZE", "16")
	t.Setenv("SEMEMBED_CONCURRENCY", "4")
	t.Setenv("SEMEMBED_REQUEST_TIMEOUT", "30")
	t.Setenv("SEMEMBED_CACHE_TTL", "90m")
	t.Setenv("SEMEMBED_PRELOAD", "false")
	t.Setenv("SEMEMBED_REDIS_ADDR", "localhost:6379")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("SEMEMBED_MAX_BODY_BYTES", "1048576")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", cfg.DefaultModel)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 9001, cfg.GRPCPort)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 90*time.Minute, cfg.Redis.TTL)
	assert.False(t, cfg.Preload)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "json", cfg.LogFormat)
	assert.EqualValues(t, 1<<20, cfg.MaxBodyBytes)
	for _, m := range cfg.Models {
		assert.Equal(t, "hash", m.Backend)
		assert.Empty(t, m.Endpoint)
		assert.Empty(t, m.APIKeyEnv)
		assert.Equal(t, 16, m.MaxBatchSize)
		assert.Equal(t, 4, m.Concurrency)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"port not a number", "SEMEMBED_PORT", "http", "SEMEMBED_PORT"},
		{"port out of range", "SEMEMBED_PORT", "70000", "Port"},
		{"bad backend", "SEMEMBED_BACKEND", "onnx", "Backend"},
		{"bad duration", "SEMEMBED_REQUEST_TIMEOUT", "soon", "SEMEMBED_REQUEST_TIMEOUT"},
		{"negative timeout", "SEMEMBED_REQUEST_TIMEOUT", "-5s", "must not be negative"},
		{"bad bool", "SEMEMBED_PRELOAD", "maybe", "SEMEMBED_PRELOAD"},
		{"zero batch", "SEMEMBED_MAX_BATCH_SIZE", "0", "MaxBatchSize"},
		{"bad log format", "LOG_FORMAT", "xml", "LogFormat"},
		{"unknown default model", "SEMEMBED_MODEL", "nope/model", "not in the model catalog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[models]]
id = "local/test"
backend = "hash"
dimensions = 8
max_batch_size = 2

[[models]]
id = "remote/e5"
backend = "grpc"
endpoint = "embedder:50051"
remote_model = "intfloat/e5-small"
concurrency = 3
`), 0o644))
	t.Setenv("SEMEMBED_MODELS_FILE", path)
	t.Setenv("SEMEMBED_MODEL", "local/test")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Models, 2)

	local := cfg.Models[0]
	assert.Equal(t, "local/test", local.ID)
	assert.Equal(t, "hash", local.Backend)
	assert.Equal(t, 8, local.Dimensions)
	assert.Equal(t, 2, local.MaxBatchSize)
	assert.Equal(t, 1, local.Concurrency)

	remote := cfg.Models[1]
	assert.Equal(t, "grpc", remote.Backend)
	assert.Equal(t, "embedder:50051", remote.Endpoint)
	assert.Equal(t, "intfloat/e5-small", remote.RemoteModel)
	assert.Equal(t, 3, remote.Concurrency)
	assert.Equal(t, 256, remote.MaxBatchSize)
}

func TestLoadCatalogErrors(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.toml")
	require.NoError(t, os.WriteFile(path, []byte("# nothing\n"), 0o644))
	_, err = LoadCatalog(path)
	assert.ErrorContains(t, err, "defines no models")

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[[models]\n"), 0o644))
	_, err = LoadCatalog(bad)
	assert.ErrorContains(t, err, "fail to parse")
}

func TestCatalogBackendValidated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[models]]\nid = \"x\"\nbackend = \"tensorrt\"\n"), 0o644))
	t.Setenv("SEMEMBED_MODELS_FILE", path)
	t.Setenv("SEMEMBED_MODEL", "x")

	_, err := Load()
	assert.ErrorContains(t, err, "Backend")
}
