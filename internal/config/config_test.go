package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Aman-CERP/docsearch/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty dir so the host's config never leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return t.TempDir()
}

// unsetForTest clears an env var for the test and restores it afterwards.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "./data/documents", cfg.Documents.Root)
	assert.Equal(t, []string{".pdf", ".docx"}, cfg.Documents.Extensions)
	assert.Equal(t, 2*time.Minute, cfg.Documents.FileTimeout.Std())
	assert.GreaterOrEqual(t, cfg.Documents.IndexWorkers, 1)

	assert.Equal(t, 512, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)

	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 384, cfg.Embeddings.Dimensions)

	assert.Equal(t, "flat", cfg.Storage.Backend)
	assert.Equal(t, 4, cfg.Storage.Oversample)

	assert.Equal(t, metadata.DefaultGazetteer, cfg.Metadata.Gazetteer)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoConfigFile_ResolvesRelativePaths(t *testing.T) {
	// Given: an empty project dir
	dir := isolate(t)

	// When: loading
	cfg, err := Load(dir)

	// Then: defaults apply and relative paths are anchored at the project dir
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "documents"), cfg.Documents.Root)
	assert.Equal(t, filepath.Join(dir, "data", "vector_store"), cfg.Storage.VectorStoreDir)
	assert.Equal(t, filepath.Join(dir, "data", "docsearch.db"), cfg.Storage.SQLitePath)
}

func TestLoad_YAMLOverridesOnlyPresentKeys(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".docsearch.yaml"), `
chunking:
  size: 200
documents:
  file_timeout: 30s
metadata:
  gazetteer: [Bendigo, Echuca]
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap, "absent keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Documents.FileTimeout.Std())
	assert.Equal(t, []string{"Bendigo", "Echuca"}, cfg.Metadata.Gazetteer)
}

func TestLoad_TOMLProjectConfig(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".docsearch.toml"), `
[storage]
backend = "sqlite"
sqlite_path = "idx/docs.db"

[server]
transport = "http"
addr = ":9000"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, filepath.Join(dir, "idx", "docs.db"), cfg.Storage.SQLitePath)
	assert.Equal(t, "http", cfg.Server.Transport)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestProjectConfigPath_Precedence(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, ProjectConfigPath(dir))

	writeFile(t, filepath.Join(dir, ".docsearch.toml"), "")
	assert.Equal(t, filepath.Join(dir, ".docsearch.toml"), ProjectConfigPath(dir))

	writeFile(t, filepath.Join(dir, ".docsearch.yml"), "")
	assert.Equal(t, filepath.Join(dir, ".docsearch.yml"), ProjectConfigPath(dir))

	writeFile(t, filepath.Join(dir, ".docsearch.yaml"), "")
	assert.Equal(t, filepath.Join(dir, ".docsearch.yaml"), ProjectConfigPath(dir))
}

func TestLoad_InvalidFiles_ReturnError(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"broken yaml", ".docsearch.yaml", "chunking: [unclosed"},
		{"wrong type", ".docsearch.yaml", "chunking:\n  size: lots\n"},
		{"unknown key", ".docsearch.yaml", "chunking:\n  sise: 10\n"},
		{"bad duration", ".docsearch.yaml", "documents:\n  file_timeout: soon\n"},
		{"broken toml", ".docsearch.toml", "[storage\nbackend = 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			writeFile(t, filepath.Join(dir, tt.file), tt.content)

			_, err := Load(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to parse config file")
		})
	}
}

func TestLoad_EmptyYAMLIsFine(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".docsearch.yaml"), "")

	_, err := Load(dir)
	require.NoError(t, err)
}

func TestLoad_Precedence_UserProjectDotenvEnv(t *testing.T) {
	// Given: every layer sets something
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := t.TempDir()

	writeFile(t, filepath.Join(xdg, "docsearch", "config.yaml"), `
chunking:
  size: 300
  overlap: 10
embeddings:
  model: user-model
`)
	writeFile(t, filepath.Join(dir, ".docsearch.yaml"), `
chunking:
  overlap: 20
embeddings:
  model: project-model
`)
	unsetForTest(t, "DOCSEARCH_EMBEDDINGS_MODEL")
	unsetForTest(t, "DOCSEARCH_CHUNK_OVERLAP")
	writeFile(t, filepath.Join(dir, ".env"), "DOCSEARCH_EMBEDDINGS_MODEL=dotenv-model\nDOCSEARCH_CHUNK_OVERLAP=30\n")
	t.Setenv("DOCSEARCH_LOG_LEVEL", "debug")

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: each key comes from the highest layer that sets it
	assert.Equal(t, 300, cfg.Chunking.Size, "user config")
	assert.Equal(t, 30, cfg.Chunking.Overlap, ".env beats project file")
	assert.Equal(t, "dotenv-model", cfg.Embeddings.Model)
	assert.Equal(t, "debug", cfg.Server.LogLevel, "process env")
}

func TestLoad_DotenvDoesNotOverrideProcessEnv(t *testing.T) {
	dir := isolate(t)
	t.Setenv("DOCSEARCH_EMBEDDINGS_MODEL", "from-process")
	writeFile(t, filepath.Join(dir, ".env"), "DOCSEARCH_EMBEDDINGS_MODEL=from-dotenv\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-process", cfg.Embeddings.Model)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := isolate(t)
	t.Setenv("DOCSEARCH_STORAGE_BACKEND", "postgres")
	t.Setenv("DOCSEARCH_POSTGRES_DSN", "postgres://u:p@localhost/db?sslmode=disable")
	t.Setenv("DOCSEARCH_POSTGRES_DRIVER", "pq")
	t.Setenv("DOCSEARCH_FILE_TIMEOUT", "45s")
	t.Setenv("DOCSEARCH_INDEX_WORKERS", "not-a-number")
	t.Setenv("DOCSEARCH_GAZETTEER", "Bendigo, Echuca ,")
	t.Setenv("DOCSEARCH_DEBUG_SQL", "true")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "pq", cfg.Storage.PostgresDriver)
	assert.True(t, cfg.Storage.DebugSQL)
	assert.Equal(t, 45*time.Second, cfg.Documents.FileTimeout.Std())
	assert.Equal(t, NewConfig().Documents.IndexWorkers, cfg.Documents.IndexWorkers, "unparseable numbers are ignored")
	assert.Equal(t, []string{"Bendigo", "Echuca"}, cfg.Metadata.Gazetteer)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"overlap equals size", func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }, "chunking.overlap"},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }, "chunking.overlap"},
		{"zero size", func(c *Config) { c.Chunking.Size = 0 }, "chunking.size"},
		{"zero timeout", func(c *Config) { c.Documents.FileTimeout = 0 }, "file_timeout"},
		{"zero workers", func(c *Config) { c.Documents.IndexWorkers = 0 }, "index_workers"},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "mlx" }, "embeddings.provider"},
		{"bad backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres" }, "postgres_dsn"},
		{"bad pg driver", func(c *Config) {
			c.Storage.Backend = "postgres"
			c.Storage.PostgresDSN = "x"
			c.Storage.PostgresDriver = "pgx"
		}, "postgres_driver"},
		{"zero oversample", func(c *Config) { c.Storage.Oversample = 0 }, "oversample"},
		{"bad transport", func(c *Config) { c.Server.Transport = "sse" }, "server.transport"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "trace" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	assert.Equal(t, filepath.Join(xdg, "docsearch", "config.yaml"), GetUserConfigPath())
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	// Given: a modified config written to disk
	dir := isolate(t)
	cfg := NewConfig()
	cfg.Chunking.Size = 128
	cfg.Documents.FileTimeout = Duration(90 * time.Second)
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ".docsearch.yaml")))

	// When: loading it back
	loaded, err := Load(dir)
	require.NoError(t, err)

	// Then: values survive, durations as strings
	assert.Equal(t, 128, loaded.Chunking.Size)
	assert.Equal(t, 90*time.Second, loaded.Documents.FileTimeout.Std())
	data, _ := os.ReadFile(filepath.Join(dir, ".docsearch.yaml"))
	assert.Contains(t, string(data), "file_timeout: 1m30s")
}

func TestBackupFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".docsearch.yaml")

	// Missing file: nothing to back up
	got, err := BackupFile(path)
	require.NoError(t, err)
	assert.Empty(t, got)

	writeFile(t, path, "version: 1\n")
	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupFile(path)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}
