package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/docsearch/internal/metadata"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DOCSEARCH_"

// Config represents the complete docsearch configuration.
type Config struct {
	Version    int              `yaml:"version" toml:"version" json:"version"`
	Documents  DocumentsConfig  `yaml:"documents" toml:"documents" json:"documents"`
	Chunking   ChunkingConfig   `yaml:"chunking" toml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" toml:"embeddings" json:"embeddings"`
	Storage    StorageConfig    `yaml:"storage" toml:"storage" json:"storage"`
	Metadata   MetadataConfig   `yaml:"metadata" toml:"metadata" json:"metadata"`
	Server     ServerConfig     `yaml:"server" toml:"server" json:"server"`
	Watch      WatchConfig      `yaml:"watch" toml:"watch" json:"watch"`
}

// DocumentsConfig configures where documents live and how they are read.
type DocumentsConfig struct {
	// Root is the documents directory. Relative roots resolve against the project dir.
	Root       string   `yaml:"root" toml:"root" json:"root"`
	Extensions []string `yaml:"extensions" toml:"extensions" json:"extensions"`
	// FileTimeout bounds extract, chunk and embed for one file.
	FileTimeout   Duration `yaml:"file_timeout" toml:"file_timeout" json:"file_timeout"`
	IndexWorkers  int      `yaml:"index_workers" toml:"index_workers" json:"index_workers"`
	MaxFileSizeMB int      `yaml:"max_file_size_mb" toml:"max_file_size_mb" json:"max_file_size_mb"`
}

// ChunkingConfig configures word-window chunking.
type ChunkingConfig struct {
	Size    int `yaml:"size" toml:"size" json:"size"`
	Overlap int `yaml:"overlap" toml:"overlap" json:"overlap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "static" (offline, default) or "ollama".
	Provider   string `yaml:"provider" toml:"provider" json:"provider"`
	Model      string `yaml:"model" toml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
	OllamaHost string `yaml:"ollama_host" toml:"ollama_host" json:"ollama_host"`
	// RequestsPerSecond paces Ollama calls. 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second" json:"requests_per_second"`
	// CacheSize is the LRU size for query embeddings. 0 disables the cache.
	CacheSize int `yaml:"cache_size" toml:"cache_size" json:"cache_size"`
}

// StorageConfig selects and configures the index backend.
type StorageConfig struct {
	// Backend is "flat", "postgres" or "sqlite".
	Backend        string `yaml:"backend" toml:"backend" json:"backend"`
	VectorStoreDir string `yaml:"vector_store_dir" toml:"vector_store_dir" json:"vector_store_dir"`
	// Oversample multiplies k for the flat backend's filtered candidate window.
	Oversample  int    `yaml:"oversample" toml:"oversample" json:"oversample"`
	PostgresDSN string `yaml:"postgres_dsn" toml:"postgres_dsn" json:"postgres_dsn"`
	// PostgresDriver is "pgdriver" (default) or "pq".
	PostgresDriver string `yaml:"postgres_driver" toml:"postgres_driver" json:"postgres_driver"`
	SQLitePath     string `yaml:"sqlite_path" toml:"sqlite_path" json:"sqlite_path"`
	MaxOpenConns   int    `yaml:"max_open_conns" toml:"max_open_conns" json:"max_open_conns"`
	DebugSQL       bool   `yaml:"debug_sql" toml:"debug_sql" json:"debug_sql"`
}

// MetadataConfig configures chunk metadata extraction.
type MetadataConfig struct {
	// Gazetteer lists location names recognised in chunk text.
	Gazetteer []string `yaml:"gazetteer" toml:"gazetteer" json:"gazetteer"`
}

// ServerConfig configures the protocol server.
type ServerConfig struct {
	Transport      string   `yaml:"transport" toml:"transport" json:"transport"`
	Addr           string   `yaml:"addr" toml:"addr" json:"addr"`
	LogLevel       string   `yaml:"log_level" toml:"log_level" json:"log_level"`
	SessionTimeout Duration `yaml:"session_timeout" toml:"session_timeout" json:"session_timeout"`
}

// WatchConfig configures `serve --watch`.
type WatchConfig struct {
	Enabled  bool     `yaml:"enabled" toml:"enabled" json:"enabled"`
	Debounce Duration `yaml:"debounce" toml:"debounce" json:"debounce"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Documents: DocumentsConfig{
			Root:          "./data/documents",
			Extensions:    []string{".pdf", ".docx"},
			FileTimeout:   Duration(2 * time.Minute),
			IndexWorkers:  min(runtime.NumCPU(), 4),
			MaxFileSizeMB: 100,
		},
		Chunking: ChunkingConfig{
			Size:    512,
			Overlap: 50,
		},
		Embeddings: EmbeddingsConfig{
			Provider:          "static",
			Model:             "nomic-embed-text",
			Dimensions:        384,
			BatchSize:         32,
			OllamaHost:        "http://localhost:11434",
			RequestsPerSecond: 0,
			CacheSize:         1000,
		},
		Storage: StorageConfig{
			Backend:        "flat",
			VectorStoreDir: "./data/vector_store",
			Oversample:     4,
			PostgresDriver: "pgdriver",
			SQLitePath:     "./data/docsearch.db",
			MaxOpenConns:   10,
		},
		Metadata: MetadataConfig{
			Gazetteer: append([]string(nil), metadata.DefaultGazetteer...),
		},
		Server: ServerConfig{
			Transport:      "stdio",
			Addr:           "127.0.0.1:8765",
			LogLevel:       "info",
			SessionTimeout: Duration(30 * time.Minute),
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: Duration(500 * time.Millisecond),
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file:
//   - $XDG_CONFIG_HOME/docsearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/docsearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "docsearch", "config.yaml")
}

// ProjectConfigPath returns the project config file found in dir, or "" if none.
// .docsearch.yaml wins over .docsearch.yml, which wins over .docsearch.toml.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{".docsearch.yaml", ".docsearch.yml", ".docsearch.toml"} {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/docsearch/config.yaml)
//  3. Project config (.docsearch.yaml, .docsearch.yml or .docsearch.toml)
//  4. .env in the project dir (never overrides the process environment)
//  5. Environment variables (DOCSEARCH_*)
//
// Relative paths are resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadFile(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if projectPath := ProjectConfigPath(dir); projectPath != "" {
		if err := cfg.loadFile(projectPath); err != nil {
			return nil, err
		}
	}

	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML or TOML file on top of the current values.
// Keys absent from the file keep their current value.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(c)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(c)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies DOCSEARCH_* variables. Unparseable numbers are ignored.
func (c *Config) applyEnvOverrides() {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	dur := func(name string, dst *Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = Duration(d)
			}
		}
	}

	str("DOCUMENTS_ROOT", &c.Documents.Root)
	dur("FILE_TIMEOUT", &c.Documents.FileTimeout)
	num("INDEX_WORKERS", &c.Documents.IndexWorkers)

	num("CHUNK_SIZE", &c.Chunking.Size)
	num("CHUNK_OVERLAP", &c.Chunking.Overlap)

	str("EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	str("EMBEDDINGS_MODEL", &c.Embeddings.Model)
	num("EMBEDDING_DIMENSIONS", &c.Embeddings.Dimensions)
	str("OLLAMA_HOST", &c.Embeddings.OllamaHost)

	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("VECTOR_STORE_DIR", &c.Storage.VectorStoreDir)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("POSTGRES_DRIVER", &c.Storage.PostgresDriver)
	str("SQLITE_PATH", &c.Storage.SQLitePath)
	if v := os.Getenv(EnvPrefix + "DEBUG_SQL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Storage.DebugSQL = b
		}
	}

	str("TRANSPORT", &c.Server.Transport)
	str("ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Server.LogLevel)

	if v := os.Getenv(EnvPrefix + "GAZETTEER"); v != "" {
		var names []string
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		c.Metadata.Gazetteer = names
	}
}

func (c *Config) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Documents.Root = abs(c.Documents.Root)
	c.Storage.VectorStoreDir = abs(c.Storage.VectorStoreDir)
	c.Storage.SQLitePath = abs(c.Storage.SQLitePath)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, size), got %d (size %d)", c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Documents.FileTimeout <= 0 {
		return fmt.Errorf("documents.file_timeout must be positive, got %s", c.Documents.FileTimeout)
	}
	if c.Documents.IndexWorkers < 1 {
		return fmt.Errorf("documents.index_workers must be at least 1, got %d", c.Documents.IndexWorkers)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "static", "ollama":
	default:
		return fmt.Errorf("embeddings.provider must be 'static' or 'ollama', got %s", c.Embeddings.Provider)
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "flat":
		if c.Storage.Oversample < 1 {
			return fmt.Errorf("storage.oversample must be at least 1, got %d", c.Storage.Oversample)
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
		switch c.Storage.PostgresDriver {
		case "", "pgdriver", "pq":
		default:
			return fmt.Errorf("storage.postgres_driver must be 'pgdriver' or 'pq', got %s", c.Storage.PostgresDriver)
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be 'flat', 'postgres' or 'sqlite', got %s", c.Storage.Backend)
	}

	switch strings.ToLower(c.Server.Transport) {
	case "stdio", "http":
	default:
		return fmt.Errorf("server.transport must be 'stdio' or 'http', got %s", c.Server.Transport)
	}

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a regular file exists.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
