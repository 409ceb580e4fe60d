package ranking

// Similarity metrics understood by the scorer.
const (
	// MetricCosine maps a cosine similarity in [-1, 1] onto [0, 1].
	MetricCosine = "cosine"
	// MetricRaw uses the raw similarity clamped to [0, 1].
	MetricRaw = "raw"
)

// RankingConfig holds the scoring weights.
type RankingConfig struct {
	Metric string `yaml:"metric"` // default: cosine

	InterestStep float64 `yaml:"interest_step"` // default: 0.05 per shared interest
	InterestMax  float64 `yaml:"interest_max"`  // default: 0.15
	SkillStep    float64 `yaml:"skill_step"`    // default: 0.05 per shared skill
	SkillMax     float64 `yaml:"skill_max"`     // default: 0.15
	GoalStep     float64 `yaml:"goal_step"`     // default: 0.1 per shared goal
	GoalMax      float64 `yaml:"goal_max"`      // default: 0.25

	NetworkMax    float64 `yaml:"network_max"`    // default: 0.1
	LocationBonus float64 `yaml:"location_bonus"` // default: 0.05

	ExplanationsEnabled bool `yaml:"explanations_enabled"` // default: true
}

// DefaultRankingConfig returns the default scoring configuration.
func DefaultRankingConfig() *RankingConfig {
	return &RankingConfig{
		Metric: MetricCosine,

		InterestStep: 0.05,
		InterestMax:  0.15,
		SkillStep:    0.05,
		SkillMax:     0.15,
		GoalStep:     0.1,
		GoalMax:      0.25,

		NetworkMax:    0.1,
		LocationBonus: 0.05,

		ExplanationsEnabled: true,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *RankingConfig) ApplyDefaults() {
	defaults := DefaultRankingConfig()

	if c.Metric == "" {
		c.Metric = defaults.Metric
	}
	if c.InterestStep == 0 {
		c.InterestStep = defaults.InterestStep
	}
	if c.InterestMax == 0 {
		c.InterestMax = defaults.InterestMax
	}
	if c.SkillStep == 0 {
		c.SkillStep = defaults.SkillStep
	}
	if c.SkillMax == 0 {
		c.SkillMax = defaults.SkillMax
	}
	if c.GoalStep == 0 {
		c.GoalStep = defaults.GoalStep
	}
	if c.GoalMax == 0 {
		c.GoalMax = defaults.GoalMax
	}
	if c.NetworkMax == 0 {
		c.NetworkMax = defaults.NetworkMax
	}
	if c.LocationBonus == 0 {
		c.LocationBonus = defaults.LocationBonus
	}
}
