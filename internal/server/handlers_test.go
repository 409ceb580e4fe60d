package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/config"
	"github.com/hyperjump/kizuna/internal/embedding"
	"github.com/hyperjump/kizuna/internal/index"
	"github.com/hyperjump/kizuna/internal/indexer"
	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/persist"
	"github.com/hyperjump/kizuna/internal/recommend"
	"github.com/hyperjump/kizuna/internal/storage"
	"github.com/hyperjump/kizuna/internal/vector"
)

const testDim = 8

func newTestServer(t *testing.T) (http.Handler, *index.Registry) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	adapter, err := persist.NewFileAdapter(filepath.Join(dir, "indices"))
	if err != nil {
		t.Fatal(err)
	}

	var managers []*index.Manager
	for _, c := range []string{"user", "network", indexer.DefaultImportClass} {
		vs, err := vector.NewFlatStore(testDim)
		if err != nil {
			t.Fatal(err)
		}
		m, err := index.New(c, vs, index.WithPersister(adapter))
		if err != nil {
			t.Fatal(err)
		}
		managers = append(managers, m)
	}
	reg, err := index.NewRegistry(zap.NewNop(), managers...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = reg.Close() })

	emb := embedding.NewGuarded(embedding.NewMockEmbedder(testDim))
	idx := indexer.New(reg, store, emb)
	engine := recommend.NewEngine(reg, store, emb, nil)
	srv := NewServer(reg, idx, engine, store, emb, &config.ServerConfig{Host: "localhost", Port: 8080}, zap.NewNop(),
		WithDiskPaths(dir), WithImportDirectories([]string{"/tmp/cv"}))
	return srv.Handler(), reg
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func register(t *testing.T, h http.Handler, class string, p *models.Profile) {
	t.Helper()
	if w := do(t, h, http.MethodPost, "/api/v1/"+class+"/profiles", p); w.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", p.ID, w.Code, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	w := do(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("response should carry a request id")
	}
	var out struct {
		Status   string `json:"status"`
		Fallback bool   `json:"fallback"`
		Classes  []struct {
			Class string `json:"class"`
		} `json:"classes"`
	}
	decodeBody(t, w, &out)
	if out.Status != "ok" || len(out.Classes) != 3 || !out.Fallback {
		t.Errorf("health = %+v", out)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	h, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get(RequestIDHeader); got != "req-42" {
		t.Errorf("request id = %q", got)
	}
}

func TestProfileLifecycle(t *testing.T) {
	h, _ := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/v1/user/profiles", &models.Profile{ID: "u1", Name: "Ada", Skills: []string{"go"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	w = do(t, h, http.MethodPost, "/api/v1/user/profiles", &models.Profile{ID: "u1", Name: "Ada", Bio: "engines"})
	if w.Code != http.StatusOK {
		t.Errorf("update: %d %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/api/v1/user/profiles/u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	var p models.Profile
	decodeBody(t, w, &p)
	if p.Bio != "engines" {
		t.Errorf("stored profile = %+v", p)
	}

	if w := do(t, h, http.MethodDelete, "/api/v1/user/profiles/u1", nil); w.Code != http.StatusOK {
		t.Errorf("delete: %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/user/profiles/u1", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/user/profiles/u1", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete: %d", w.Code)
	}
}

func TestIndexProfile_BadRequests(t *testing.T) {
	h, _ := newTestServer(t)
	tests := []struct {
		name string
		path string
		body interface{}
		want int
	}{
		{"invalid json", "/api/v1/user/profiles", "{", http.StatusBadRequest},
		{"empty profile", "/api/v1/user/profiles", &models.Profile{ID: "x"}, http.StatusBadRequest},
		{"unknown class", "/api/v1/alien/profiles", &models.Profile{ID: "x", Name: "x"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, h, http.MethodPost, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRecommendations(t *testing.T) {
	h, _ := newTestServer(t)
	for i, name := range []string{"Ada", "Bob", "Cy", "Dee"} {
		network := "n1"
		if i%2 == 1 {
			network = "n2"
		}
		register(t, h, "user", &models.Profile{ID: fmt.Sprintf("u%d", i), Name: name, NetworkID: network})
	}

	w := do(t, h, http.MethodPost, "/api/v1/user/recommendations/u0?top_n=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("recommend: %d %s", w.Code, w.Body.String())
	}
	var resp models.RecommendationResponse
	decodeBody(t, w, &resp)
	if resp.Total != 2 || !resp.Fallback {
		t.Errorf("response = %+v", resp)
	}
	for _, r := range resp.Recommendations {
		if r.ID == "u0" {
			t.Error("query profile recommended to itself")
		}
	}

	w = do(t, h, http.MethodPost, "/api/v1/user/recommendations/u0?network_filter=n1", nil)
	decodeBody(t, w, &resp)
	if resp.Total != 1 || resp.Recommendations[0].ID != "u2" {
		t.Errorf("filtered response = %+v", resp)
	}

	if w := do(t, h, http.MethodPost, "/api/v1/user/recommendations/nobody", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/user/recommendations/u0?top_n=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad top_n: %d", w.Code)
	}
}

func TestRecommendText(t *testing.T) {
	h, _ := newTestServer(t)
	register(t, h, "user", &models.Profile{ID: "u1", Name: "Ada"})
	register(t, h, "user", &models.Profile{ID: "u2", Name: "Bob"})

	w := do(t, h, http.MethodPost, "/api/v1/user/recommend", &models.TextQuery{Query: "engineer", UserID: "u1", Limit: 5})
	if w.Code != http.StatusOK {
		t.Fatalf("recommend text: %d %s", w.Code, w.Body.String())
	}
	var resp models.RecommendationResponse
	decodeBody(t, w, &resp)
	if resp.Total != 1 || resp.Recommendations[0].ID != "u2" {
		t.Errorf("response = %+v", resp)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/user/recommend", &models.TextQuery{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty query: %d", w.Code)
	}
}

func TestBatchAndMatch(t *testing.T) {
	h, _ := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/v1/recommendations/batch", &models.BatchRequest{
		Profile:    &models.Profile{ID: "q", Name: "query"},
		Candidates: []*models.Profile{{ID: "a", Name: "a"}, {ID: "b", Name: "b"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("batch: %d %s", w.Code, w.Body.String())
	}
	var resp models.RecommendationResponse
	decodeBody(t, w, &resp)
	if resp.Total != 2 {
		t.Errorf("batch total = %d", resp.Total)
	}

	w = do(t, h, http.MethodPost, "/api/v1/match", &models.MatchRequest{Resume: "go dev", JobDescription: "go dev"})
	if w.Code != http.StatusOK {
		t.Fatalf("match: %d %s", w.Code, w.Body.String())
	}
	var match models.MatchResponse
	decodeBody(t, w, &match)
	if match.Similarity != 1 {
		t.Errorf("match similarity = %v", match.Similarity)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/match", &models.MatchRequest{Resume: "x"}); w.Code != http.StatusBadRequest {
		t.Errorf("incomplete match: %d", w.Code)
	}
}

func TestAdminEndpoints(t *testing.T) {
	h, reg := newTestServer(t)
	register(t, h, "user", &models.Profile{ID: "u1", Name: "Ada"})
	register(t, h, "user", &models.Profile{ID: "u2", Name: "Bob"})
	do(t, h, http.MethodDelete, "/api/v1/user/profiles/u1", nil)

	w := do(t, h, http.MethodPost, "/api/v1/user/rebuild", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rebuild: %d %s", w.Code, w.Body.String())
	}
	var rs index.RebuildStats
	decodeBody(t, w, &rs)
	if rs.Before != 2 || rs.After != 1 || rs.Removed != 1 {
		t.Errorf("rebuild stats = %+v", rs)
	}

	if w := do(t, h, http.MethodPost, "/api/v1/user/snapshot", nil); w.Code != http.StatusOK {
		t.Errorf("snapshot: %d %s", w.Code, w.Body.String())
	}
	m, _ := reg.Get("user")
	if m.Dirty() {
		t.Error("class still dirty after snapshot")
	}

	w = do(t, h, http.MethodPost, "/api/v1/user/populate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("populate: %d", w.Code)
	}
	var ps indexer.PopulateStats
	decodeBody(t, w, &ps)
	if ps.Total != 1 || ps.Skipped != 1 {
		t.Errorf("populate stats = %+v", ps)
	}

	w = do(t, h, http.MethodGet, "/api/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: %d", w.Code)
	}
	var stats struct {
		Indices  []index.Stats        `json:"indices"`
		Profiles map[string]int64     `json:"profiles"`
		Cache    embedding.CacheStats `json:"embedding_cache"`
		Disk     storage.DiskUsage    `json:"disk_usage"`
	}
	decodeBody(t, w, &stats)
	if len(stats.Indices) != 3 || stats.Profiles["user"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Disk.Total <= 0 {
		t.Errorf("disk usage = %+v, want the snapshot written above", stats.Disk)
	}

	if w := do(t, h, http.MethodPost, "/api/v1/alien/rebuild", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown class rebuild: %d", w.Code)
	}
}

func TestImport(t *testing.T) {
	h, reg := newTestServer(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ada.txt"), []byte("Ada Lovelace\nSkills: Go\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w := do(t, h, http.MethodPost, "/api/v1/import", map[string]string{"path": dir})
	if w.Code != http.StatusOK {
		t.Fatalf("import: %d %s", w.Code, w.Body.String())
	}
	m, _ := reg.Get(indexer.DefaultImportClass)
	if m.Len() != 1 {
		t.Errorf("imported %d résumés, want 1", m.Len())
	}

	if w := do(t, h, http.MethodPost, "/api/v1/import", map[string]string{"path": filepath.Join(dir, "missing.txt")}); w.Code != http.StatusNotFound {
		t.Errorf("missing path: %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/import", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty path: %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/api/v1/import", nil)
	var out struct {
		Class       string   `json:"class"`
		Directories []string `json:"directories"`
	}
	decodeBody(t, w, &out)
	if out.Class != indexer.DefaultImportClass || len(out.Directories) != 1 {
		t.Errorf("import list = %+v", out)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", index.ErrNotFound), http.StatusNotFound},
		{index.ErrUnknownClass, http.StatusNotFound},
		{&vector.DimensionError{Expected: 2, Actual: 3}, http.StatusBadRequest},
		{recommend.ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("embed: %w", embedding.ErrEmbeddingUnavailable), http.StatusServiceUnavailable},
		{index.ErrNoPersister, http.StatusNotImplemented},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
