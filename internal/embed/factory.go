package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/docsearch/internal/config"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (offline default)
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama HTTP API
	ProviderOllama ProviderType = "ollama"
)

// New builds the configured embedder. A positive cache size wraps it in a
// CachedEmbedder. There is no silent fallback: an unreachable Ollama is an
// error, not a quiet switch to static vectors with different geometry.
func New(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	var embedder Embedder

	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder(cfg.Dimensions)
	case ProviderOllama:
		ocfg := DefaultOllamaConfig()
		if cfg.OllamaHost != "" {
			ocfg.Host = cfg.OllamaHost
		}
		if cfg.Model != "" {
			ocfg.Model = cfg.Model
		}
		ocfg.Dimensions = cfg.Dimensions
		if cfg.BatchSize > 0 {
			ocfg.BatchSize = cfg.BatchSize
		}
		ocfg.RequestsPerSecond = cfg.RequestsPerSecond

		o, err := NewOllamaEmbedder(ctx, ocfg)
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable: %w", err)
		}
		embedder = o
	}

	slog.Debug("embedder_created",
		slog.String("provider", string(provider)),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()),
		slog.Int("cache_size", cfg.CacheSize))

	if cfg.CacheSize > 0 {
		embedder = NewCachedEmbedder(embedder, cfg.CacheSize)
	}
	return embedder, nil
}

// ParseProvider maps a config string to a provider. Empty selects static.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "static":
		return ProviderStatic, nil
	case "ollama":
		return ProviderOllama, nil
	default:
		return "", docerrors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", s), nil).
			WithSuggestion("Use one of: " + strings.Join(ValidProviders(), ", "))
	}
}

func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders lists accepted provider names.
func ValidProviders() []string {
	return []string{string(ProviderStatic), string(ProviderOllama)}
}

// EmbedderInfo describes an embedder for stats output.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Cached     bool
}

// GetInfo inspects an embedder, looking through a cache wrapper.
func GetInfo(embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Provider:   ProviderStatic,
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.Inner()
		info.Cached = true
	}
	if _, ok := inner.(*OllamaEmbedder); ok {
		info.Provider = ProviderOllama
	}
	return info
}
