package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kizuna/pkg/utils"
)

// Guarded wraps a provider with a per-call timeout, a rate limiter and an
// LRU cache. Returned vectors are unit length. Provider failures surface as
// ErrEmbeddingUnavailable.
type Guarded struct {
	inner   Embedder
	timeout time.Duration
	limiter *rate.Limiter
	cache   *Cache
	logger  *zap.Logger
}

// GuardOption configures a Guarded embedder.
type GuardOption func(*Guarded)

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) { g.timeout = d }
}

// WithRateLimit allows perSecond provider calls with the given burst.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) GuardOption {
	return func(g *Guarded) {
		if perSecond <= 0 {
			g.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithCacheSize sets the LRU capacity; zero disables caching.
func WithCacheSize(n int) GuardOption {
	return func(g *Guarded) { g.cache = NewCache(n) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) GuardOption {
	return func(g *Guarded) { g.logger = utils.OrNop(l) }
}

// NewGuarded wraps inner.
func NewGuarded(inner Embedder, opts ...GuardOption) *Guarded {
	g := &Guarded{
		inner:   inner,
		timeout: 30 * time.Second,
		cache:   NewCache(1000),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Embed returns the embedding for text.
func (g *Guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts, calling the provider once for the cache misses.
func (g *Guarded) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if t == "" {
			return nil, ErrEmptyInput
		}
		if v, ok := g.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := g.call(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range vecs {
		g.cache.Set(missing[j], v)
		out[missingIdx[j]] = v
	}
	return out, nil
}

func (g *Guarded) call(ctx context.Context, texts []string) ([][]float32, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit: %v", ErrEmbeddingUnavailable, err)
		}
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	vecs, err := g.inner.EmbedBatch(ctx, texts)
	if err != nil {
		if errors.Is(err, ErrEmptyInput) {
			return nil, err
		}
		g.logger.Warn("embedding call failed",
			zap.String("provider", g.inner.Name()),
			zap.Int("texts", len(texts)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrEmbeddingUnavailable, g.inner.Name(), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts",
			ErrEmbeddingUnavailable, g.inner.Name(), len(vecs), len(texts))
	}
	dim := g.inner.Dimensions()
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: %s returned dimension %d, want %d",
				ErrEmbeddingUnavailable, g.inner.Name(), len(v), dim)
		}
		vecs[i] = utils.Normalized(v)
	}
	g.logger.Debug("embedded",
		zap.String("provider", g.inner.Name()),
		zap.Int("texts", len(texts)),
		zap.Duration("elapsed", time.Since(start)))
	return vecs, nil
}

// Dimensions returns the provider's dimension.
func (g *Guarded) Dimensions() int {
	return g.inner.Dimensions()
}

// Name returns the provider's name.
func (g *Guarded) Name() string {
	return g.inner.Name()
}

// CacheStats returns cache counters.
func (g *Guarded) CacheStats() CacheStats {
	return g.cache.Stats()
}

// Close closes the provider.
func (g *Guarded) Close() error {
	return g.inner.Close()
}
