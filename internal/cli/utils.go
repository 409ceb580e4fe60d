// Package cli formats recommendation and status output for the kizuna CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/kizuna/internal/index"
	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteRecommendations writes a recommendation response to w in the given format.
func WriteRecommendations(w io.Writer, resp *models.RecommendationResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	subject := resp.QueryID
	if resp.Query != "" {
		subject = fmt.Sprintf("%q", resp.Query)
	}
	fmt.Fprintf(w, "\n%d recommendations for %s in %dms\n", resp.Total, subject, resp.QueryTime)
	if resp.Fallback {
		fmt.Fprintln(w, "warning: placeholder embeddings in use; scores are not meaningful")
	}
	fmt.Fprintln(w)
	for _, r := range resp.Recommendations {
		writeOne(w, r)
	}
	return nil
}

func writeOne(w io.Writer, r *models.Recommendation) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f (similarity %.4f)\n", r.Rank, r.Score, r.Similarity)
	fmt.Fprintf(w, "ID: %s\n", r.ID)
	if r.Profile != nil && r.Profile.Name != "" {
		fmt.Fprintf(w, "Name: %s\n", r.Profile.Name)
	}
	if r.Explanation != "" {
		fmt.Fprintf(w, "Why: %s\n", r.Explanation)
	}
	if r.Profile != nil && r.Profile.Bio != "" {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(r.Profile.Bio, 240))
	}
	fmt.Fprintln(w)
}

// WriteStats writes per-class index stats.
func WriteStats(w io.Writer, stats []index.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, stats)
	}
	fmt.Fprintf(w, "%-12s %8s %8s %10s %6s %-6s %s\n", "class", "live", "size", "tombstones", "dims", "store", "last_snapshot")
	for _, s := range stats {
		last := "never"
		if !s.LastSnapshot.IsZero() {
			last = s.LastSnapshot.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%-12s %8d %8d %10d %6d %-6s %s\n", s.Class, s.Live, s.Size, s.Tombstones, s.Dimensions, s.StoreType, last)
	}
	return nil
}
