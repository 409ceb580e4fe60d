package e2e

import (
	"context"
	"testing"
)

func TestBuildCorpus_Sizes(t *testing.T) {
	c := BuildCorpus(10)
	if c.TotalUsers != 10*len(Topics) {
		t.Errorf("expected %d profiles, got %d", 10*len(Topics), c.TotalUsers)
	}
	if len(c.Networks) != len(Networks) {
		t.Errorf("expected %d networks, got %d", len(Networks), len(c.Networks))
	}
	seen := make(map[string]bool)
	for _, p := range c.Profiles {
		if seen[p.ID] {
			t.Errorf("duplicate id %q", p.ID)
		}
		seen[p.ID] = true
		if err := p.Validate(); err != nil {
			t.Errorf("profile %q invalid: %v", p.ID, err)
		}
	}
}

func TestBuildCorpus_KeywordsStayInTopic(t *testing.T) {
	c := BuildCorpus(3)
	emb := TopicEmbedder{}
	for _, p := range c.Profiles {
		v, err := emb.Embed(context.Background(), p.Render())
		if err != nil {
			t.Fatal(err)
		}
		want := c.TopicOf[p.ID]
		for i, x := range v {
			if i == want && x == 0 {
				t.Errorf("profile %q has no weight on its topic", p.ID)
			}
			if i != want && x != 0 {
				t.Errorf("profile %q leaks into topic %d", p.ID, i)
			}
		}
	}
}

func TestTopicEmbedder_noKeyword(t *testing.T) {
	v, err := TopicEmbedder{}.Embed(context.Background(), "nothing relevant")
	if err != nil {
		t.Fatal(err)
	}
	for i, x := range v {
		if x <= 0 {
			t.Errorf("v[%d] = %f, want a small positive value", i, x)
		}
	}
}
