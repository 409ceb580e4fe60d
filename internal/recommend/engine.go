// Package recommend answers recommendation requests: it queries the class
// index, loads candidate profiles and re-ranks them with the scorer.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kizuna/internal/embedding"
	"github.com/hyperjump/kizuna/internal/index"
	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/ranking"
	"github.com/hyperjump/kizuna/internal/storage"
	"github.com/hyperjump/kizuna/internal/vector"
	"github.com/hyperjump/kizuna/pkg/utils"
)

// DefaultNetworkClass is the class network profiles are stored under.
const DefaultNetworkClass = "network"

// ErrInvalidInput is returned for malformed requests.
var ErrInvalidInput = errors.New("invalid input")

// Engine runs recommendation queries.
type Engine struct {
	registry     *index.Registry
	storage      storage.Storage
	embedder     embedding.Embedder
	scorer       *ranking.Scorer
	networkClass string
	concurrency  int
	logger       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithConcurrency bounds parallel embedding calls in Batch.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithNetworkClass sets the class network filters are resolved against.
func WithNetworkClass(class string) Option {
	return func(e *Engine) {
		if class != "" {
			e.networkClass = class
		}
	}
}

// NewEngine creates an engine. A nil scorer uses the default ranking config.
func NewEngine(registry *index.Registry, store storage.Storage, embedder embedding.Embedder, scorer *ranking.Scorer, opts ...Option) *Engine {
	if scorer == nil {
		scorer = ranking.NewScorer(nil)
	}
	e := &Engine{
		registry:     registry,
		storage:      store,
		embedder:     embedder,
		scorer:       scorer,
		networkClass: DefaultNetworkClass,
		concurrency:  4,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recommend returns up to topN profiles of class most similar to id, never
// including id itself. With a network filter only candidates of that network
// are returned.
func (e *Engine) Recommend(ctx context.Context, class, id string, topN int, networkFilter string) (*models.RecommendationResponse, error) {
	start := time.Now()
	topN = models.ClampTopN(topN)
	m, err := e.registry.Get(class)
	if err != nil {
		return nil, err
	}

	neighbors, err := m.Query(id, e.fetchSize(m, topN, networkFilter))
	if err != nil {
		return nil, err
	}
	query, err := e.profile(ctx, class, id)
	if err != nil {
		return nil, err
	}
	recs, err := e.rank(ctx, class, query, neighbors, topN, networkFilter)
	if err != nil {
		return nil, err
	}
	return &models.RecommendationResponse{
		Class:           class,
		QueryID:         id,
		Recommendations: recs,
		Total:           len(recs),
		QueryTime:       time.Since(start).Milliseconds(),
		Fallback:        embedding.IsFallback(e.embedder),
	}, nil
}

// RecommendText embeds free text and returns the closest profiles of class.
// The requesting user, if set, is excluded and used for attribute bonuses.
func (e *Engine) RecommendText(ctx context.Context, class string, q *models.TextQuery) (*models.RecommendationResponse, error) {
	start := time.Now()
	text := strings.TrimSpace(q.Query)
	if text == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	topN := models.ClampTopN(q.Limit)
	m, err := e.registry.Get(class)
	if err != nil {
		return nil, err
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	neighbors, err := m.QueryVector(vec, e.fetchSize(m, topN, q.Network), q.UserID)
	if err != nil {
		return nil, err
	}

	query := &models.Profile{Bio: text}
	if q.UserID != "" {
		if query, err = e.profile(ctx, class, q.UserID); err != nil {
			return nil, err
		}
	}
	recs, err := e.rank(ctx, class, query, neighbors, topN, q.Network)
	if err != nil {
		return nil, err
	}
	return &models.RecommendationResponse{
		Class:           class,
		QueryID:         q.UserID,
		Query:           text,
		Recommendations: recs,
		Total:           len(recs),
		QueryTime:       time.Since(start).Milliseconds(),
		Fallback:        embedding.IsFallback(e.embedder),
	}, nil
}

// fetchSize returns how many neighbors to ask the index for. A network filter
// drops candidates after the search, so every live entry is considered.
func (e *Engine) fetchSize(m *index.Manager, topN int, networkFilter string) int {
	if networkFilter == "" {
		return topN
	}
	if n := m.Len(); n > topN {
		return n
	}
	return topN
}

// profile loads a stored profile, falling back to a bare id when the index
// knows an entity the store does not.
func (e *Engine) profile(ctx context.Context, class, id string) (*models.Profile, error) {
	p, err := e.storage.GetProfile(ctx, class, id)
	if errors.Is(err, storage.ErrProfileNotFound) {
		return &models.Profile{ID: id}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

func (e *Engine) rank(ctx context.Context, class string, query *models.Profile, neighbors []index.Neighbor, topN int, networkFilter string) ([]*models.Recommendation, error) {
	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
	}
	profiles, err := e.storage.GetProfiles(ctx, class, ids)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	candidates := make([]ranking.Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		p, ok := profiles[n.ID]
		if !ok {
			p = &models.Profile{ID: n.ID}
		}
		if networkFilter != "" && p.NetworkID != networkFilter {
			continue
		}
		candidates = append(candidates, ranking.Candidate{Profile: p, Similarity: n.Score})
	}

	var net *models.NetworkContext
	if networkFilter != "" {
		if net, err = e.network(ctx, networkFilter); err != nil {
			return nil, err
		}
	}
	recs := e.scorer.Rank(query, candidates, net)
	if len(recs) > topN {
		recs = recs[:topN]
	}
	return recs, nil
}

// network resolves a network id to its context. Unknown networks still
// filter by id.
func (e *Engine) network(ctx context.Context, id string) (*models.NetworkContext, error) {
	p, err := e.storage.GetProfile(ctx, e.networkClass, id)
	if errors.Is(err, storage.ErrProfileNotFound) {
		return &models.NetworkContext{ID: id}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load network: %w", err)
	}
	return &models.NetworkContext{ID: p.ID, Name: p.Name, Description: p.Bio, Goals: p.Goals}, nil
}

// Batch ranks req.Candidates against req.Profile without touching any
// index. Embeddings are computed concurrently.
func (e *Engine) Batch(ctx context.Context, req *models.BatchRequest) (*models.RecommendationResponse, error) {
	start := time.Now()
	if req.Profile == nil || req.Profile.Render() == "" {
		return nil, fmt.Errorf("%w: profile is required", ErrInvalidInput)
	}
	var candidates []*models.Profile
	for _, c := range req.Candidates {
		if c != nil && c.Render() != "" {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: at least one candidate is required", ErrInvalidInput)
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, req.Profile.Render())
	for _, c := range candidates {
		texts = append(texts, c.Render())
	}
	vecs := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.embedder.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed profile: %w", err)
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scored := make([]ranking.Candidate, len(candidates))
	for i, c := range candidates {
		scored[i] = ranking.Candidate{Profile: c, Similarity: vector.CosineSimilarity(vecs[0], vecs[i+1])}
	}
	recs := e.scorer.Rank(req.Profile, scored, req.Network)
	if topN := models.ClampTopN(req.TopN); len(recs) > topN {
		recs = recs[:topN]
	}
	e.logger.Debug("batch ranked", zap.Int("candidates", len(candidates)), zap.Int("returned", len(recs)))
	return &models.RecommendationResponse{
		QueryID:         req.Profile.ID,
		Recommendations: recs,
		Total:           len(recs),
		QueryTime:       time.Since(start).Milliseconds(),
		Fallback:        embedding.IsFallback(e.embedder),
	}, nil
}

// Match returns the cosine similarity of a résumé and a job description,
// rounded to four decimals.
func (e *Engine) Match(ctx context.Context, req *models.MatchRequest) (*models.MatchResponse, error) {
	resume := strings.TrimSpace(req.Resume)
	job := strings.TrimSpace(req.JobDescription)
	if resume == "" || job == "" {
		return nil, fmt.Errorf("%w: resume and job_description are required", ErrInvalidInput)
	}
	vecs, err := e.embedder.EmbedBatch(ctx, []string{resume, job})
	if err != nil {
		return nil, fmt.Errorf("embed match texts: %w", err)
	}
	return &models.MatchResponse{
		Similarity: utils.Round(vector.CosineSimilarity(vecs[0], vecs[1]), 4),
		Fallback:   embedding.IsFallback(e.embedder),
	}, nil
}
