// Package indexer embeds profiles and keeps the per-class indices and the
// profile store in step.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kizuna/internal/embedding"
	"github.com/hyperjump/kizuna/internal/extract"
	"github.com/hyperjump/kizuna/internal/fileid"
	"github.com/hyperjump/kizuna/internal/index"
	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/storage"
)

// DefaultImportClass is the class imported résumés are indexed under.
const DefaultImportClass = "resume"

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
	metaKeyEmail       = "email"
)

// Indexer registers profiles: it embeds their rendered text outside any
// index lock, then upserts the vector and stores the profile.
type Indexer struct {
	registry    *index.Registry
	storage     storage.Storage
	embedder    embedding.Embedder
	extractor   *extract.Extractor
	importClass string
	extensions  []string
	concurrency int
	logger      *zap.Logger
}

// Result describes one indexed profile.
type Result struct {
	ID       string `json:"id"`
	Class    string `json:"class"`
	Position uint32 `json:"position"`
	// Created is false when an existing profile was updated.
	Created bool `json:"created"`
	// Reembedded is false when the rendered text was unchanged.
	Reembedded bool `json:"reembedded"`
}

// PopulateStats summarizes a Populate run.
type PopulateStats struct {
	Class   string `json:"class"`
	Total   int    `json:"total"`
	Indexed int    `json:"indexed"`
	Skipped int    `json:"skipped"`
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithExtractor sets the résumé text extractor used by IndexFile.
func WithExtractor(e *extract.Extractor) Option {
	return func(idx *Indexer) { idx.extractor = e }
}

// WithImportClass sets the class that imported files are indexed under.
func WithImportClass(class string) Option {
	return func(idx *Indexer) {
		if class != "" {
			idx.importClass = class
		}
	}
}

// WithExtensions restricts IndexFile and IndexDirectory to these extensions.
func WithExtensions(exts []string) Option {
	return func(idx *Indexer) { idx.extensions = exts }
}

// WithConcurrency bounds parallel embedding calls in Populate.
func WithConcurrency(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.concurrency = n
		}
	}
}

// New creates an indexer.
func New(registry *index.Registry, store storage.Storage, embedder embedding.Embedder, opts ...Option) *Indexer {
	idx := &Indexer{
		registry:    registry,
		storage:     store,
		embedder:    embedder,
		extractor:   extract.NewExtractor(),
		importClass: DefaultImportClass,
		extensions:  extract.DefaultExtensions,
		concurrency: 4,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Fallback reports whether vectors come from the placeholder embedder.
func (idx *Indexer) Fallback() bool {
	return embedding.IsFallback(idx.embedder)
}

// ImportClass returns the class imported files are indexed under.
func (idx *Indexer) ImportClass() string {
	return idx.importClass
}

// IndexProfile embeds p and registers it in class. A missing id is generated.
// Re-registering an id whose rendered text changed replaces its vector; an
// unchanged profile is only re-stored.
func (idx *Indexer) IndexProfile(ctx context.Context, class string, p *models.Profile) (*Result, error) {
	m, err := idx.registry.Get(class)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	text := p.Render()
	res := &Result{ID: p.ID, Class: class}

	prev, err := idx.storage.GetProfile(ctx, class, p.ID)
	if err != nil && !errors.Is(err, storage.ErrProfileNotFound) {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	unchanged := prev != nil && prev.Render() == text && m.Contains(p.ID)

	if !unchanged {
		vec, err := idx.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed profile %s: %w", p.ID, err)
		}
		if m.Contains(p.ID) {
			res.Position, err = m.Replace(p.ID, vec)
		} else {
			res.Position, err = m.Upsert(p.ID, vec)
		}
		if err != nil {
			return nil, err
		}
		res.Reembedded = true
	}

	existed, err := idx.storage.SaveProfile(ctx, class, p)
	if err != nil {
		return nil, fmt.Errorf("store profile: %w", err)
	}
	res.Created = !existed
	idx.logger.Debug("profile indexed",
		zap.String("class", class),
		zap.String("id", p.ID),
		zap.Bool("created", res.Created),
		zap.Bool("reembedded", res.Reembedded))
	return res, nil
}

// DeleteProfile tombstones id in class and deletes the stored profile.
// It returns index.ErrNotFound when neither held the id.
func (idx *Indexer) DeleteProfile(ctx context.Context, class, id string) error {
	m, err := idx.registry.Get(class)
	if err != nil {
		return err
	}
	removed := m.Remove(id)
	_, getErr := idx.storage.GetProfile(ctx, class, id)
	stored := getErr == nil
	if getErr != nil && !errors.Is(getErr, storage.ErrProfileNotFound) {
		return fmt.Errorf("load profile: %w", getErr)
	}
	if !removed && !stored {
		return fmt.Errorf("%w: %s/%s", index.ErrNotFound, class, id)
	}
	if err := idx.storage.DeleteProfile(ctx, class, id); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	idx.logger.Debug("profile deleted", zap.String("class", class), zap.String("id", id))
	return nil
}

// Populate registers every stored profile of class that the index does not
// hold yet. Embeddings are computed concurrently; upserts run in order.
func (idx *Indexer) Populate(ctx context.Context, class string) (*PopulateStats, error) {
	m, err := idx.registry.Get(class)
	if err != nil {
		return nil, err
	}
	profiles, err := idx.storage.ListProfiles(ctx, class, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	stats := &PopulateStats{Class: class, Total: len(profiles)}

	var todo []*models.Profile
	for _, p := range profiles {
		if m.Contains(p.ID) || p.Validate() != nil {
			stats.Skipped++
			continue
		}
		todo = append(todo, p)
	}

	vecs := make([][]float32, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)
	for i, p := range todo {
		g.Go(func() error {
			vec, err := idx.embedder.Embed(gctx, p.Render())
			if err != nil {
				return fmt.Errorf("embed profile %s: %w", p.ID, err)
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	for i, p := range todo {
		if _, err := m.Upsert(p.ID, vecs[i]); err != nil {
			return stats, err
		}
		stats.Indexed++
	}
	idx.logger.Info("populate finished",
		zap.String("class", class),
		zap.Int("total", stats.Total),
		zap.Int("indexed", stats.Indexed),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// IndexFile extracts a résumé from path and registers it in the import class.
// The profile id is derived from the absolute path. Files already indexed
// with the same mtime and size are skipped.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (*Result, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if !idx.extensionAllowed(absPath) {
		return nil, fmt.Errorf("%w: %s", extract.ErrUnsupported, filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}

	id := fileid.ResumeID(absPath)
	mtime := strconv.FormatInt(info.ModTime().UnixNano(), 10)
	size := strconv.FormatInt(info.Size(), 10)
	if idx.unchangedFile(ctx, id, absPath, mtime, size) {
		idx.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return &Result{ID: id, Class: idx.importClass}, nil
	}

	text, err := idx.extractor.Extract(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	r := extract.ParseResume(text)
	p := &models.Profile{
		ID:     id,
		Name:   r.Name,
		Bio:    r.Summary,
		Skills: r.Skills,
		Metadata: map[string]string{
			metaKeySourcePath:  absPath,
			metaKeySourceMtime: mtime,
			metaKeySourceSize:  size,
		},
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))
	}
	if r.Email != "" {
		p.Metadata[metaKeyEmail] = r.Email
	}
	res, err := idx.IndexProfile(ctx, idx.importClass, p)
	if err != nil {
		return nil, err
	}
	idx.logger.Info("résumé imported", zap.String("path", absPath), zap.String("id", id))
	return res, nil
}

func (idx *Indexer) unchangedFile(ctx context.Context, id, path, mtime, size string) bool {
	m, err := idx.registry.Get(idx.importClass)
	if err != nil || !m.Contains(id) {
		return false
	}
	p, err := idx.storage.GetProfile(ctx, idx.importClass, id)
	if err != nil || p.Metadata == nil {
		return false
	}
	return p.Metadata[metaKeySourcePath] == path &&
		p.Metadata[metaKeySourceMtime] == mtime &&
		p.Metadata[metaKeySourceSize] == size
}

// RemoveFile deletes the résumé profile imported from path. A file that was
// never imported is ignored.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) error {
	err := idx.DeleteProfile(ctx, idx.importClass, fileid.ResumeID(path))
	if errors.Is(err, index.ErrNotFound) {
		return nil
	}
	return err
}

// IndexDirectory walks dir recursively and imports each regular file with an
// allowed extension. It returns the number of files imported and stops at the
// first error.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !idx.extensionAllowed(path) {
			return nil
		}
		if finfo, statErr := os.Stat(path); statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, err := idx.IndexFile(ctx, path); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func (idx *Indexer) extensionAllowed(path string) bool {
	return extensionAllowed(filepath.Ext(path), idx.extensions)
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
