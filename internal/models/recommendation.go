package models

// Recommendation is one ranked match.
type Recommendation struct {
	ID string `json:"id"`
	// Similarity is the raw cosine similarity from the index.
	Similarity float64 `json:"similarity"`
	// Score is the final score in [0, 1] after attribute bonuses.
	Score       float64  `json:"score"`
	Rank        int      `json:"rank"`
	Explanation string   `json:"explanation,omitempty"`
	Profile     *Profile `json:"profile,omitempty"`
}

// RecommendationResponse is returned by the recommendation endpoints.
type RecommendationResponse struct {
	Class           string            `json:"class"`
	QueryID         string            `json:"query_id,omitempty"`
	Query           string            `json:"query,omitempty"`
	Recommendations []*Recommendation `json:"recommendations"`
	Total           int               `json:"total"`
	QueryTime       int64             `json:"query_time_ms"`
	// Fallback is set when vectors came from the placeholder embedder.
	Fallback bool `json:"fallback,omitempty"`
}

// BatchRequest scores a list of candidates against one profile without
// touching the index.
type BatchRequest struct {
	Profile    *Profile        `json:"profile"`
	Candidates []*Profile      `json:"candidates"`
	Network    *NetworkContext `json:"network,omitempty"`
	TopN       int             `json:"top_n,omitempty"`
}

// TextQuery is a free-text recommendation request.
type TextQuery struct {
	Query   string `json:"query"`
	UserID  string `json:"user_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Network string `json:"network_filter,omitempty"`
}

// MatchRequest compares a résumé with a job description.
type MatchRequest struct {
	Resume         string `json:"resume"`
	JobDescription string `json:"job_description"`
}

// MatchResponse holds the similarity of a MatchRequest.
type MatchResponse struct {
	Similarity float64 `json:"similarity"`
	Fallback   bool    `json:"fallback,omitempty"`
}

// Limits on result counts.
const (
	DefaultTopN = 10
	MaxTopN     = 100
)

// ClampTopN applies the default and the upper bound.
func ClampTopN(n int) int {
	if n <= 0 {
		return DefaultTopN
	}
	if n > MaxTopN {
		return MaxTopN
	}
	return n
}
