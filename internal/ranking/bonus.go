package ranking

import (
	"math"

	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/pkg/utils"
)

// ScoringContext carries everything a bonus may look at.
type ScoringContext struct {
	Query     *models.Profile
	Candidate *models.Profile
	Network   *models.NetworkContext
}

// Bonus adds a bounded amount to the base similarity.
type Bonus interface {
	Name() string
	// Score returns the bonus and how many attribute values matched.
	Score(ctx *ScoringContext) (float64, int)
}

// DefaultBonuses returns the attribute bonuses in explanation order.
func DefaultBonuses(config *RankingConfig) []Bonus {
	return []Bonus{
		&overlapBonus{name: "interests", step: config.InterestStep, max: config.InterestMax,
			values: func(p *models.Profile) []string { return p.Interests }},
		&overlapBonus{name: "skills", step: config.SkillStep, max: config.SkillMax,
			values: func(p *models.Profile) []string { return p.Skills }},
		&overlapBonus{name: "goals", step: config.GoalStep, max: config.GoalMax,
			values: func(p *models.Profile) []string { return p.Goals }},
		&networkBonus{max: config.NetworkMax},
		&locationBonus{bonus: config.LocationBonus},
	}
}

// overlapBonus rewards shared list values: min(common*step, max).
type overlapBonus struct {
	name      string
	step, max float64
	values    func(*models.Profile) []string
}

func (b *overlapBonus) Name() string { return b.name }

func (b *overlapBonus) Score(ctx *ScoringContext) (float64, int) {
	if ctx.Query == nil || ctx.Candidate == nil {
		return 0, 0
	}
	common := utils.CountCommon(b.values(ctx.Query), b.values(ctx.Candidate))
	return math.Min(float64(common)*b.step, b.max), common
}

// networkBonus rewards candidates aligned with the network: same network id,
// or goals that overlap the network's goals.
type networkBonus struct {
	max float64
}

func (b *networkBonus) Name() string { return "network" }

func (b *networkBonus) Score(ctx *ScoringContext) (float64, int) {
	if ctx.Network == nil || ctx.Candidate == nil {
		return 0, 0
	}
	common := utils.CountCommon(ctx.Candidate.Goals, ctx.Network.Goals)
	sameNetwork := ctx.Network.ID != "" && ctx.Candidate.NetworkID == ctx.Network.ID
	if common == 0 && !sameNetwork {
		return 0, 0
	}
	return b.max, common
}

// locationBonus rewards a case-insensitive location match.
type locationBonus struct {
	bonus float64
}

func (b *locationBonus) Name() string { return "location" }

func (b *locationBonus) Score(ctx *ScoringContext) (float64, int) {
	if ctx.Query == nil || ctx.Candidate == nil {
		return 0, 0
	}
	q := utils.NormalizeTerm(ctx.Query.Location)
	if q == "" || q != utils.NormalizeTerm(ctx.Candidate.Location) {
		return 0, 0
	}
	return b.bonus, 1
}
