package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/pkg/utils"
)

// Registry holds one Manager per entity class. The set of classes is fixed
// at construction.
type Registry struct {
	managers map[string]*Manager
	logger   *zap.Logger
}

// NewRegistry indexes managers by class. Duplicate classes are an error.
func NewRegistry(logger *zap.Logger, managers ...*Manager) (*Registry, error) {
	r := &Registry{
		managers: make(map[string]*Manager, len(managers)),
		logger:   utils.OrNop(logger),
	}
	for _, m := range managers {
		if _, ok := r.managers[m.Class()]; ok {
			return nil, fmt.Errorf("duplicate class %q", m.Class())
		}
		r.managers[m.Class()] = m
	}
	return r, nil
}

// Get returns the manager for class.
func (r *Registry) Get(class string) (*Manager, error) {
	m, ok := r.managers[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
	return m, nil
}

// Classes returns the configured classes in sorted order.
func (r *Registry) Classes() []string {
	out := make([]string, 0, len(r.managers))
	for c := range r.managers {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// RestoreAll restores every class. Corrupt snapshots degrade the affected
// class only; the error is returned only when ctx is cancelled.
func (r *Registry) RestoreAll(ctx context.Context) error {
	for _, c := range r.Classes() {
		if err := r.managers[c].Restore(ctx); err != nil {
			return fmt.Errorf("restore %s: %w", c, err)
		}
	}
	return nil
}

// SnapshotAll snapshots every class and joins the failures.
func (r *Registry) SnapshotAll(ctx context.Context) error {
	var errs []error
	for _, c := range r.Classes() {
		err := r.managers[c].Snapshot(ctx)
		switch {
		case err == nil, errors.Is(err, ErrNoPersister):
		case errors.Is(err, ErrEmbedderMismatch):
			r.logger.Warn("snapshot skipped", zap.String("class", c), zap.Error(err))
		default:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run snapshots dirty classes every interval until ctx is done, then takes a
// final snapshot of everything. A non-positive interval only does the final one.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				r.snapshotDirty(ctx)
			}
		}
	} else {
		<-ctx.Done()
	}

	// The parent context is gone; give the final flush its own.
	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := r.SnapshotAll(flushCtx)
	if err != nil {
		r.logger.Error("final snapshot failed", zap.Error(err))
	} else {
		r.logger.Info("indices saved")
	}
	return err
}

func (r *Registry) snapshotDirty(ctx context.Context) {
	for _, c := range r.Classes() {
		m := r.managers[c]
		if !m.Dirty() {
			continue
		}
		if err := m.Snapshot(ctx); err != nil && !errors.Is(err, ErrNoPersister) && !errors.Is(err, ErrEmbedderMismatch) {
			r.logger.Error("periodic snapshot failed", zap.String("class", c), zap.Error(err))
		}
	}
}

// Stats returns per-class stats in class order.
func (r *Registry) Stats() []Stats {
	out := make([]Stats, 0, len(r.managers))
	for _, c := range r.Classes() {
		out = append(out, r.managers[c].Stats())
	}
	return out
}

// Close closes every manager.
func (r *Registry) Close() error {
	var errs []error
	for _, c := range r.Classes() {
		if err := r.managers[c].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c, err))
		}
	}
	return errors.Join(errs...)
}
