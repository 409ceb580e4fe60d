package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/embedding"
	"github.com/hyperjump/kizuna/internal/extract"
	"github.com/hyperjump/kizuna/internal/index"
	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/recommend"
	"github.com/hyperjump/kizuna/internal/storage"
	"github.com/hyperjump/kizuna/internal/vector"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, index.ErrNotFound),
		errors.Is(err, index.ErrUnknownClass),
		errors.Is(err, storage.ErrProfileNotFound),
		errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, vector.ErrDimensionMismatch),
		errors.Is(err, recommend.ErrInvalidInput),
		errors.Is(err, models.ErrEmptyProfile),
		errors.Is(err, index.ErrInvalidID),
		errors.Is(err, embedding.ErrEmptyInput),
		errors.Is(err, extract.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, embedding.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, index.ErrNoPersister):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg,
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

type classHealth struct {
	index.Health
	Size       int `json:"size"`
	Live       int `json:"live"`
	Tombstones int `json:"tombstones"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	classes := make([]classHealth, 0)
	for _, c := range s.registry.Classes() {
		m, err := s.registry.Get(c)
		if err != nil {
			continue
		}
		h := m.Health()
		if h.Degraded {
			status = "degraded"
		}
		classes = append(classes, classHealth{Health: h, Size: m.Size(), Live: m.Len(), Tombstones: m.Tombstones()})
	}
	resp := map[string]interface{}{
		"status":  status,
		"classes": classes,
	}
	if s.embedder != nil {
		resp["embedder"] = s.embedder.Name()
		resp["fallback"] = embedding.IsFallback(s.embedder)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profiles := make(map[string]int64)
	for _, c := range s.registry.Classes() {
		n, err := s.storage.CountProfiles(ctx, c)
		if err != nil {
			s.fail(w, r, "stats: count profiles failed", err)
			return
		}
		profiles[c] = n
	}
	resp := map[string]interface{}{
		"indices":  s.registry.Stats(),
		"profiles": profiles,
	}
	if g, ok := s.embedder.(*embedding.Guarded); ok {
		resp["embedding_cache"] = g.CacheStats()
	}
	if len(s.diskPaths) > 0 {
		if u, err := storage.MeasureDiskUsage(s.diskPaths...); err == nil {
			resp["disk_usage"] = u
		} else {
			s.logger.Warn("stats: disk usage failed", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIndexProfile(w http.ResponseWriter, r *http.Request) {
	class := chi.URLParam(r, "class")
	var p models.Profile
	if !s.decode(w, r, &p) {
		return
	}
	s.logger.Debug("index profile request", zap.String("class", class), zap.String("id", p.ID))
	res, err := s.indexer.IndexProfile(r.Context(), class, &p)
	if err != nil {
		s.fail(w, r, "indexing failed", err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, res)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	class, id := chi.URLParam(r, "class"), chi.URLParam(r, "id")
	if _, err := s.registry.Get(class); err != nil {
		s.fail(w, r, "get profile failed", err)
		return
	}
	p, err := s.storage.GetProfile(r.Context(), class, id)
	if err != nil {
		s.fail(w, r, "get profile failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	class, id := chi.URLParam(r, "class"), chi.URLParam(r, "id")
	s.logger.Debug("delete profile request", zap.String("class", class), zap.String("id", id))
	if err := s.indexer.DeleteProfile(r.Context(), class, id); err != nil {
		s.fail(w, r, "deletion failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	class, id := chi.URLParam(r, "class"), chi.URLParam(r, "id")
	topN := 0
	if v := r.URL.Query().Get("top_n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "top_n must be a non-negative integer")
			return
		}
		topN = n
	}
	network := r.URL.Query().Get("network_filter")
	resp, err := s.engine.Recommend(r.Context(), class, id, topN, network)
	if err != nil {
		s.fail(w, r, "recommendation failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecommendText(w http.ResponseWriter, r *http.Request) {
	var q models.TextQuery
	if !s.decode(w, r, &q) {
		return
	}
	resp, err := s.engine.RecommendText(r.Context(), chi.URLParam(r, "class"), &q)
	if err != nil {
		s.fail(w, r, "text recommendation failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.engine.Batch(r.Context(), &req)
	if err != nil {
		s.fail(w, r, "batch recommendation failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req models.MatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.engine.Match(r.Context(), &req)
	if err != nil {
		s.fail(w, r, "match failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	m, err := s.registry.Get(chi.URLParam(r, "class"))
	if err != nil {
		s.fail(w, r, "rebuild failed", err)
		return
	}
	stats, err := m.Rebuild()
	if err != nil {
		s.fail(w, r, "rebuild failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	m, err := s.registry.Get(chi.URLParam(r, "class"))
	if err != nil {
		s.fail(w, r, "snapshot failed", err)
		return
	}
	if err := m.Snapshot(r.Context()); err != nil {
		s.fail(w, r, "snapshot failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, m.Stats())
}

func (s *Server) handlePopulate(w http.ResponseWriter, r *http.Request) {
	stats, err := s.indexer.Populate(r.Context(), chi.URLParam(r, "class"))
	if err != nil {
		s.fail(w, r, "populate failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleImportList(w http.ResponseWriter, r *http.Request) {
	dirs := s.importDirs
	if dirs == nil {
		dirs = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"class":       s.indexer.ImportClass(),
		"directories": dirs,
	})
}

type importRequest struct {
	Path string `json:"path"`
}

// handleImport imports one résumé file or every résumé under a directory.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		s.fail(w, r, "import failed", err)
		return
	}
	if info.IsDir() {
		n, err := s.indexer.IndexDirectory(r.Context(), abs)
		if err != nil {
			s.fail(w, r, "import failed", err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"path": abs, "imported": n})
		return
	}
	res, err := s.indexer.IndexFile(r.Context(), abs)
	if err != nil {
		s.fail(w, r, "import failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
