// Package e2e provides end-to-end tests over a clustered profile corpus.
package e2e

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kizuna/internal/models"
)

// Topic is one cluster of the corpus. Keyword appears only in profiles of
// this topic, so a keyword-count embedding places each cluster on its own axis.
type Topic struct {
	Keyword  string
	Skill    string
	Location string
	Goal     string
}

// Topics lists the corpus clusters; the index of each topic is its axis.
var Topics = []Topic{
	{"golang", "grpc", "Jakarta", "ship backend services"},
	{"pytorch", "notebooks", "Bandung", "publish research"},
	{"figma", "prototyping", "Surabaya", "design products"},
	{"kubernetes", "terraform", "Medan", "automate infrastructure"},
	{"salesforce", "negotiation", "Denpasar", "close deals"},
	{"photography", "lightroom", "Yogyakarta", "exhibit work"},
}

// Networks are assigned round-robin across the corpus.
var Networks = []string{"net-alpha", "net-beta"}

// Corpus holds generated profiles and their topic assignment.
type Corpus struct {
	Profiles   []*models.Profile
	Networks   []*models.Profile
	TopicOf    map[string]int
	PerTopic   int
	TotalUsers int
}

// BuildCorpus returns perTopic profiles for every topic.
func BuildCorpus(perTopic int) *Corpus {
	c := &Corpus{TopicOf: make(map[string]int), PerTopic: perTopic}
	for t, topic := range Topics {
		for i := 0; i < perTopic; i++ {
			id := fmt.Sprintf("user-%d-%02d", t, i)
			c.Profiles = append(c.Profiles, &models.Profile{
				ID:        id,
				Name:      fmt.Sprintf("Member %d-%d", t, i),
				Bio:       fmt.Sprintf("Works daily with %s and enjoys it.", topic.Keyword),
				Skills:    []string{topic.Keyword, topic.Skill},
				Location:  topic.Location,
				Goals:     []string{topic.Goal},
				NetworkID: Networks[i%len(Networks)],
			})
			c.TopicOf[id] = t
		}
	}
	for _, n := range Networks {
		c.Networks = append(c.Networks, &models.Profile{
			ID:    n,
			Name:  strings.ToUpper(n),
			Bio:   "Community of " + Topics[0].Keyword + " practitioners",
			Goals: []string{Topics[0].Goal},
		})
	}
	c.TotalUsers = len(c.Profiles)
	return c
}

// SameTopic reports whether every id belongs to topic t.
func (c *Corpus) SameTopic(t int, ids []string) bool {
	for _, id := range ids {
		if got, ok := c.TopicOf[id]; !ok || got != t {
			return false
		}
	}
	return true
}

// TopicEmbedder counts topic keywords in the text, one dimension per topic.
// It is deterministic and places related profiles close together.
type TopicEmbedder struct{}

// Embed returns the keyword-count vector for text.
func (TopicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	v := make([]float32, len(Topics))
	nonZero := false
	for i, t := range Topics {
		if n := strings.Count(lower, t.Keyword); n > 0 {
			v[i] = float32(n)
			nonZero = true
		}
	}
	if !nonZero {
		// Text without any keyword gets a small uniform vector.
		for i := range v {
			v[i] = 0.01
		}
	}
	return v, nil
}

// EmbedBatch embeds each text in turn.
func (e TopicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the number of topics.
func (TopicEmbedder) Dimensions() int { return len(Topics) }

// Name returns "topic".
func (TopicEmbedder) Name() string { return "topic" }

// Close is a no-op.
func (TopicEmbedder) Close() error { return nil }
