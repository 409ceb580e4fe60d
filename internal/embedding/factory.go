package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/pkg/utils"
)

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Options selects and tunes a provider.
type Options struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
	CacheSize  int
	RateLimit  float64
	RateBurst  int
	// AllowMockFallback substitutes the mock embedder when the configured
	// provider cannot be created. Its results are flagged as fallback.
	AllowMockFallback bool
}

// New builds the configured provider wrapped in a Guarded embedder.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*Guarded, error) {
	logger = utils.OrNop(logger)
	inner, err := newProvider(ctx, opts)
	if err != nil {
		if !opts.AllowMockFallback {
			return nil, err
		}
		logger.Warn("embedding provider unavailable, using mock fallback",
			zap.String("provider", opts.Provider),
			zap.Error(err))
		inner = NewMockEmbedder(opts.Dimensions)
	}
	return NewGuarded(inner,
		WithTimeout(opts.Timeout),
		WithRateLimit(opts.RateLimit, opts.RateBurst),
		WithCacheSize(opts.CacheSize),
		WithLogger(logger.Named("embedding")),
	), nil
}

func newProvider(ctx context.Context, opts Options) (Embedder, error) {
	httpClient := &http.Client{Timeout: opts.Timeout}
	switch opts.Provider {
	case ProviderGemini, "":
		return NewGemini(ctx, opts.APIKey, opts.Model, opts.Dimensions, httpClient)
	case ProviderOpenAI:
		return NewOpenAI(opts.APIKey, opts.Model, opts.BaseURL, opts.Dimensions, httpClient)
	case ProviderMock:
		return NewMockEmbedder(opts.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: gemini, openai, mock)", opts.Provider)
	}
}
