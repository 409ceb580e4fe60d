// Package ranking re-ranks nearest neighbors with bounded bonuses for shared
// profile attributes.
package ranking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/kizuna/internal/models"
)

// Scorer combines the base similarity with attribute bonuses.
type Scorer struct {
	config  *RankingConfig
	bonuses []Bonus
}

// NewScorer creates a Scorer. A nil config uses the defaults.
func NewScorer(config *RankingConfig) *Scorer {
	if config == nil {
		config = DefaultRankingConfig()
	}
	config.ApplyDefaults()
	return &Scorer{config: config, bonuses: DefaultBonuses(config)}
}

// WithBonuses replaces the bonus set.
func (s *Scorer) WithBonuses(bonuses []Bonus) *Scorer {
	s.bonuses = bonuses
	return s
}

// Config returns the active configuration.
func (s *Scorer) Config() *RankingConfig {
	return s.config
}

// Base maps a raw similarity onto [0, 1].
func (s *Scorer) Base(raw float64) float64 {
	if s.config.Metric == MetricCosine {
		return clamp01((raw + 1) / 2)
	}
	return clamp01(raw)
}

// Score returns the final score in [0, 1].
func (s *Scorer) Score(query, candidate *models.Profile, raw float64, net *models.NetworkContext) float64 {
	ctx := &ScoringContext{Query: query, Candidate: candidate, Network: net}
	score := s.Base(raw)
	for _, b := range s.bonuses {
		v, _ := b.Score(ctx)
		score += v
	}
	return clamp01(score)
}

// Explain describes which attributes contributed to a candidate's score.
func (s *Scorer) Explain(query, candidate *models.Profile, raw float64, net *models.NetworkContext) string {
	ctx := &ScoringContext{Query: query, Candidate: candidate, Network: net}
	var reasons []string
	for _, b := range s.bonuses {
		v, n := b.Score(ctx)
		if v <= 0 {
			continue
		}
		switch b.Name() {
		case "location":
			reasons = append(reasons, "same location")
		case "network":
			reasons = append(reasons, "aligned with network goals")
		default:
			reasons = append(reasons, fmt.Sprintf("%d shared %s", n, b.Name()))
		}
	}
	summary := fmt.Sprintf("%.0f%% profile similarity", s.Base(raw)*100)
	if len(reasons) == 0 {
		return summary
	}
	return summary + "; " + strings.Join(reasons, ", ")
}

// Candidate is an input to Rank.
type Candidate struct {
	Profile    *models.Profile
	Similarity float64
}

// Rank scores candidates against query and returns them by descending score.
// Equal scores keep input order. Ranks start at 1.
func (s *Scorer) Rank(query *models.Profile, candidates []Candidate, net *models.NetworkContext) []*models.Recommendation {
	out := make([]*models.Recommendation, len(candidates))
	for i, c := range candidates {
		id := ""
		if c.Profile != nil {
			id = c.Profile.ID
		}
		rec := &models.Recommendation{
			ID:         id,
			Similarity: c.Similarity,
			Score:      s.Score(query, c.Profile, c.Similarity, net),
			Profile:    c.Profile,
		}
		if s.config.ExplanationsEnabled {
			rec.Explanation = s.Explain(query, c.Profile, c.Similarity, net)
		}
		out[i] = rec
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
