package e2e

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/extract"
	"github.com/hyperjump/kizuna/internal/fileid"
	"github.com/hyperjump/kizuna/internal/index"
	"github.com/hyperjump/kizuna/internal/indexer"
	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/persist"
	"github.com/hyperjump/kizuna/internal/recommend"
	"github.com/hyperjump/kizuna/internal/storage"
	"github.com/hyperjump/kizuna/internal/vector"
)

const (
	e2ePerTopic = 8
	e2eTopN     = 5
)

var e2eClasses = []string{"user", "network", "resume"}

type stack struct {
	store    *storage.SQLiteStorage
	persist  persist.Adapter
	registry *index.Registry
	indexer  *indexer.Indexer
	engine   *recommend.Engine
}

// openStack wires storage, indices and services over dir. Calling it again
// on the same dir simulates a restart.
func openStack(t *testing.T, dir string) *stack {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	p, err := persist.NewFileAdapter(filepath.Join(dir, "indices"))
	if err != nil {
		t.Fatal(err)
	}
	emb := TopicEmbedder{}
	managers := make([]*index.Manager, 0, len(e2eClasses))
	for _, class := range e2eClasses {
		vs, err := vector.NewFlatStore(emb.Dimensions())
		if err != nil {
			t.Fatal(err)
		}
		m, err := index.New(class, vs, index.WithPersister(p))
		if err != nil {
			t.Fatal(err)
		}
		managers = append(managers, m)
	}
	reg, err := index.NewRegistry(zap.NewNop(), managers...)
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.RestoreAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	idx := indexer.New(reg, store, emb,
		indexer.WithExtractor(extract.NewExtractor()),
		indexer.WithExtensions(ResumeExtensions))
	return &stack{
		store:    store,
		persist:  p,
		registry: reg,
		indexer:  idx,
		engine:   recommend.NewEngine(reg, store, emb, nil),
	}
}

func (s *stack) close() {
	_ = s.registry.Close()
	_ = s.store.Close()
}

func loadCorpus(t *testing.T, s *stack, c *Corpus) {
	t.Helper()
	ctx := context.Background()
	for _, n := range c.Networks {
		if _, err := s.indexer.IndexProfile(ctx, "network", n); err != nil {
			t.Fatalf("index network %q: %v", n.ID, err)
		}
	}
	for _, p := range c.Profiles {
		if _, err := s.indexer.IndexProfile(ctx, "user", p); err != nil {
			t.Fatalf("index profile %q: %v", p.ID, err)
		}
	}
}

func recommendationIDs(resp *models.RecommendationResponse) []string {
	ids := make([]string, len(resp.Recommendations))
	for i, r := range resp.Recommendations {
		ids[i] = r.ID
	}
	return ids
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func TestE2E_RecommendationsStayInTopic(t *testing.T) {
	s := openStack(t, t.TempDir())
	defer s.close()
	corpus := BuildCorpus(e2ePerTopic)
	loadCorpus(t, s, corpus)
	ctx := context.Background()

	for ti, topic := range Topics {
		query := fmt.Sprintf("user-%d-00", ti)
		t.Run(topic.Keyword, func(t *testing.T) {
			resp, err := s.engine.Recommend(ctx, "user", query, e2eTopN, "")
			if err != nil {
				t.Fatalf("recommend: %v", err)
			}
			ids := recommendationIDs(resp)
			if len(ids) != e2eTopN {
				t.Fatalf("got %d recommendations, want %d", len(ids), e2eTopN)
			}
			if contains(ids, query) {
				t.Errorf("query profile %q returned as its own match", query)
			}
			if !corpus.SameTopic(ti, ids) {
				t.Errorf("recommendations %v leave topic %q", ids, topic.Keyword)
			}
			for i, r := range resp.Recommendations {
				if r.Rank != i+1 {
					t.Errorf("rank[%d] = %d", i, r.Rank)
				}
				if r.Score < 0 || r.Score > 1 {
					t.Errorf("score %f out of range", r.Score)
				}
			}
		})
	}
}

func TestE2E_NetworkFilter(t *testing.T) {
	s := openStack(t, t.TempDir())
	defer s.close()
	corpus := BuildCorpus(e2ePerTopic)
	loadCorpus(t, s, corpus)

	resp, err := s.engine.Recommend(context.Background(), "user", "user-2-00", 10, Networks[0])
	if err != nil {
		t.Fatal(err)
	}
	ids := recommendationIDs(resp)
	if len(ids) == 0 {
		t.Fatal("no recommendations within network")
	}
	for _, r := range resp.Recommendations {
		if r.Profile == nil || r.Profile.NetworkID != Networks[0] {
			t.Errorf("recommendation %q outside %s", r.ID, Networks[0])
		}
	}
	// Same-topic members of the network rank first: ids 02, 04, 06.
	sameTopic := e2ePerTopic/len(Networks) - 1
	if !corpus.SameTopic(2, ids[:sameTopic]) {
		t.Errorf("leading recommendations %v should share topic 2", ids[:sameTopic])
	}
}

func TestE2E_TextQuery(t *testing.T) {
	s := openStack(t, t.TempDir())
	defer s.close()
	corpus := BuildCorpus(e2ePerTopic)
	loadCorpus(t, s, corpus)

	resp, err := s.engine.RecommendText(context.Background(), "user", &models.TextQuery{
		Query: "looking for kubernetes help",
		Limit: e2eTopN,
	})
	if err != nil {
		t.Fatal(err)
	}
	if ids := recommendationIDs(resp); len(ids) != e2eTopN || !corpus.SameTopic(3, ids) {
		t.Errorf("text query returned %v, want %d kubernetes profiles", ids, e2eTopN)
	}
}

func TestE2E_DeleteAndRebuild(t *testing.T) {
	s := openStack(t, t.TempDir())
	defer s.close()
	corpus := BuildCorpus(e2ePerTopic)
	loadCorpus(t, s, corpus)
	ctx := context.Background()

	removed := "user-1-03"
	if err := s.indexer.DeleteProfile(ctx, "user", removed); err != nil {
		t.Fatal(err)
	}
	resp, err := s.engine.Recommend(ctx, "user", "user-1-00", e2ePerTopic, "")
	if err != nil {
		t.Fatal(err)
	}
	if contains(recommendationIDs(resp), removed) {
		t.Errorf("deleted profile %q still recommended", removed)
	}

	m, err := s.registry.Get("user")
	if err != nil {
		t.Fatal(err)
	}
	if m.Tombstones() != 1 {
		t.Fatalf("tombstones = %d, want 1", m.Tombstones())
	}
	stats, err := m.Rebuild()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Removed != 1 || m.Tombstones() != 0 {
		t.Errorf("rebuild stats = %+v, tombstones = %d", stats, m.Tombstones())
	}
	after, err := s.engine.Recommend(ctx, "user", "user-1-00", e2ePerTopic, "")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := recommendationIDs(after), recommendationIDs(resp); len(got) != len(want) {
		t.Errorf("rebuild changed results: %v vs %v", got, want)
	}
}

func TestE2E_RestartRestoresSnapshot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	corpus := BuildCorpus(e2ePerTopic)

	s := openStack(t, dir)
	loadCorpus(t, s, corpus)
	before, err := s.engine.Recommend(ctx, "user", "user-4-00", e2eTopN, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.registry.SnapshotAll(ctx); err != nil {
		t.Fatal(err)
	}
	s.close()

	s = openStack(t, dir)
	defer s.close()
	m, err := s.registry.Get("user")
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != corpus.TotalUsers {
		t.Fatalf("restored %d profiles, want %d", m.Len(), corpus.TotalUsers)
	}
	if h := m.Health(); h.Degraded {
		t.Errorf("health after restore = %+v", h)
	}
	after, err := s.engine.Recommend(ctx, "user", "user-4-00", e2eTopN, "")
	if err != nil {
		t.Fatal(err)
	}
	b, a := recommendationIDs(before), recommendationIDs(after)
	if len(a) != len(b) || !corpus.SameTopic(4, a) {
		t.Errorf("after restart got %v, before %v", a, b)
	}
}

func TestE2E_ImportResumes(t *testing.T) {
	dir := t.TempDir()
	docDir := filepath.Join(dir, "resumes")
	if err := os.MkdirAll(docDir, 0755); err != nil {
		t.Fatal(err)
	}

	topicOf := make(map[string]int)
	n := 0
	for _, ti := range []int{0, 5} {
		for i, ext := range ResumeExtensions {
			name := fmt.Sprintf("Candidate %d-%d", ti, i)
			content, err := WriteResume(ext, ResumeText(name, Topics[ti]))
			if err != nil {
				t.Fatal(err)
			}
			path := filepath.Join(docDir, fmt.Sprintf("cv-%d-%d%s", ti, i, ext))
			if err := os.WriteFile(path, content, 0644); err != nil {
				t.Fatal(err)
			}
			topicOf[fileid.ResumeID(path)] = ti
			n++
		}
	}
	// Unsupported files are skipped.
	if err := os.WriteFile(filepath.Join(docDir, "notes.xlsx"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	s := openStack(t, dir)
	defer s.close()
	ctx := context.Background()
	got, err := s.indexer.IndexDirectory(ctx, docDir)
	if err != nil {
		t.Fatalf("index directory: %v", err)
	}
	if got != n {
		t.Fatalf("indexed %d files, want %d", got, n)
	}

	resp, err := s.engine.RecommendText(ctx, indexer.DefaultImportClass, &models.TextQuery{
		Query: "golang engineer",
		Limit: len(ResumeExtensions),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range resp.Recommendations {
		if topicOf[r.ID] != 0 {
			t.Errorf("résumé %q (%s) is not a golang résumé", r.ID, r.Profile.Name)
		}
		if r.Profile.Metadata["email"] == "" {
			t.Errorf("résumé %q lost its email", r.ID)
		}
	}

	// A second pass finds nothing new to embed and keeps the index size.
	m, err := s.registry.Get(indexer.DefaultImportClass)
	if err != nil {
		t.Fatal(err)
	}
	size := m.Size()
	if _, err := s.indexer.IndexDirectory(ctx, docDir); err != nil {
		t.Fatal(err)
	}
	if m.Size() != size {
		t.Errorf("re-import grew the index from %d to %d", size, m.Size())
	}
}
