// Package index owns one vector store and identity map per entity class and
// serves nearest-neighbor queries over them.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/identity"
	"github.com/hyperjump/kizuna/internal/persist"
	"github.com/hyperjump/kizuna/internal/vector"
	"github.com/hyperjump/kizuna/pkg/utils"
)

// Neighbor is one query result.
type Neighbor struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// Stats describes the current shape of a manager.
type Stats struct {
	Class        string    `json:"class"`
	Size         int       `json:"size"`
	Live         int       `json:"live"`
	Tombstones   int       `json:"tombstones"`
	Dimensions   int       `json:"dimensions"`
	StoreType    string    `json:"store_type"`
	Pending      int       `json:"pending_changes"`
	LastSnapshot time.Time `json:"last_snapshot,omitempty"`
}

// Health reports whether restore succeeded and how the last snapshot went.
type Health struct {
	Class             string    `json:"class"`
	Embedder          string    `json:"embedder,omitempty"`
	Degraded          bool      `json:"degraded"`
	Reason            string    `json:"reason,omitempty"`
	LastSnapshot      time.Time `json:"last_snapshot,omitempty"`
	LastSnapshotError string    `json:"last_snapshot_error,omitempty"`
}

// RebuildStats summarizes a compaction.
type RebuildStats struct {
	Before   int           `json:"before"`
	After    int           `json:"after"`
	Removed  int           `json:"removed"`
	Duration time.Duration `json:"duration"`
}

// Manager serializes writers to one store and identity map. Readers run
// concurrently with each other under a read lock.
type Manager struct {
	class     string
	logger    *zap.Logger
	persister persist.Adapter
	policy    *SnapshotPolicy
	now       func() time.Time
	// embedder names the provider whose vectors this manager holds; fallback
	// marks it as a placeholder provider.
	embedder string
	fallback bool

	mu    sync.RWMutex
	store vector.Store
	ids   *identity.Map
	// version counts mutations; saved is the version of the last snapshot.
	version uint64
	saved   uint64
	// preserved is set when restore refused a real snapshot while running on
	// a placeholder embedder; that image must not be overwritten.
	preserved string

	saveMu       sync.Mutex
	snapshotting atomic.Bool
	background   sync.WaitGroup

	healthMu sync.Mutex
	health   Health
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithPersister sets the snapshot adapter.
func WithPersister(p persist.Adapter) Option {
	return func(m *Manager) {
		m.persister = p
	}
}

// WithPolicy sets the automatic snapshot policy.
func WithPolicy(p *SnapshotPolicy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithEmbedder records the provider that produces this manager's vectors.
// Snapshots carry the name, and Restore rejects a snapshot made by another.
func WithEmbedder(name string, fallback bool) Option {
	return func(m *Manager) {
		m.embedder = name
		m.fallback = fallback
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a manager for class over an empty store.
func New(class string, store vector.Store, opts ...Option) (*Manager, error) {
	if class == "" {
		return nil, errors.New("class must not be empty")
	}
	if store == nil {
		return nil, errors.New("store must not be nil")
	}
	if store.Size() != 0 {
		return nil, fmt.Errorf("store for %s must be empty, has %d vectors", class, store.Size())
	}
	m := &Manager{
		class:  class,
		logger: zap.NewNop(),
		now:    time.Now,
		store:  store,
		ids:    identity.New(),
		health: Health{Class: class},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.health.Embedder = m.embedder
	m.logger = utils.OrNop(m.logger).With(zap.String("class", class))
	return m, nil
}

// Class returns the entity class name.
func (m *Manager) Class() string {
	return m.class
}

// Dimensions returns the vector dimension.
func (m *Manager) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Dimensions()
}

// Upsert inserts vec for id and returns its position. An id that is already
// bound keeps its existing position and vector; use Replace to change it.
func (m *Manager) Upsert(id string, vec []float32) (uint32, error) {
	if id == "" {
		return 0, ErrInvalidID
	}
	normalized := utils.Normalized(vec)

	m.mu.Lock()
	if err := m.checkDimension(vec); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	if pos, err := m.ids.Resolve(id); err == nil {
		m.mu.Unlock()
		return pos, nil
	}
	pos, err := m.appendAndBind(id, normalized)
	m.mu.Unlock()
	if err != nil {
		return 0, err
	}

	m.afterWrite()
	return pos, nil
}

// Replace binds id to a new vector. A previous vector, if any, becomes a
// tombstone until the next Rebuild.
func (m *Manager) Replace(id string, vec []float32) (uint32, error) {
	if id == "" {
		return 0, ErrInvalidID
	}
	normalized := utils.Normalized(vec)

	m.mu.Lock()
	if err := m.checkDimension(vec); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	old, oldErr := m.ids.Unbind(id)
	pos, err := m.appendAndBind(id, normalized)
	if err != nil && oldErr == nil {
		// Restore the previous binding so a failed append is not a delete.
		_ = m.ids.Bind(id, old)
	}
	m.mu.Unlock()
	if err != nil {
		return 0, err
	}

	m.afterWrite()
	return pos, nil
}

// appendAndBind must be called with mu held.
func (m *Manager) appendAndBind(id string, vec []float32) (uint32, error) {
	pos, err := m.store.Append(vec)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", id, err)
	}
	if err := m.ids.Bind(id, pos); err != nil {
		// Unreachable while the store hands out fresh positions; the slot
		// stays behind as a tombstone.
		return 0, fmt.Errorf("bind %s: %w", id, err)
	}
	m.version++
	return pos, nil
}

func (m *Manager) checkDimension(vec []float32) error {
	if dim := m.store.Dimensions(); len(vec) != dim {
		return &vector.DimensionError{Expected: dim, Actual: len(vec)}
	}
	return nil
}

// Query returns up to topN nearest live neighbors of id, excluding id itself.
func (m *Manager) Query(id string, topN int) ([]Neighbor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, err := m.ids.Resolve(id)
	if err != nil {
		return nil, err
	}
	if topN <= 0 {
		return []Neighbor{}, nil
	}
	vec, err := m.store.Get(pos)
	if err != nil {
		return nil, fmt.Errorf("load vector for %s: %w", id, err)
	}
	return m.search(vec, topN, pos, true)
}

// QueryVector returns up to topN live neighbors of an arbitrary vector.
// The optional exclude id is left out of the results.
func (m *Manager) QueryVector(vec []float32, topN int, exclude string) ([]Neighbor, error) {
	query := utils.Normalized(vec)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkDimension(vec); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return []Neighbor{}, nil
	}
	skip, err := m.ids.Resolve(exclude)
	return m.search(query, topN, skip, err == nil)
}

// search must be called with mu held for reading. Over-fetching by the
// tombstone count keeps dead slots from crowding out live neighbors.
func (m *Manager) search(query []float32, topN int, skip uint32, hasSkip bool) ([]Neighbor, error) {
	tombstones := m.store.Size() - m.ids.Len()
	k := topN + tombstones
	if hasSkip {
		k++
	}
	hits, err := m.store.Search(query, k)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", m.class, err)
	}

	out := make([]Neighbor, 0, topN)
	for _, h := range hits {
		if hasSkip && h.Position == skip {
			continue
		}
		id, err := m.ids.Reverse(h.Position)
		if err != nil {
			continue
		}
		out = append(out, Neighbor{ID: id, Score: h.Score, Rank: len(out) + 1})
		if len(out) == topN {
			break
		}
	}
	return out, nil
}

// Remove tombstones id. It reports whether id was bound.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	_, err := m.ids.Unbind(id)
	if err == nil {
		m.version++
	}
	m.mu.Unlock()
	if err != nil {
		return false
	}
	m.afterWrite()
	return true
}

// Contains reports whether id is bound.
func (m *Manager) Contains(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.ids.Resolve(id)
	return err == nil
}

// Vector returns a copy of the stored (normalized) vector for id.
func (m *Manager) Vector(id string) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, err := m.ids.Resolve(id)
	if err != nil {
		return nil, err
	}
	return m.store.Get(pos)
}

// IDs returns live ids in position order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	live := m.ids.Live()
	out := make([]string, len(live))
	for i, b := range live {
		out[i] = b.ID
	}
	return out
}

// Size returns the number of store slots, tombstones included.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Size()
}

// Len returns the number of live ids.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ids.Len()
}

// Tombstones returns Size() - Len().
func (m *Manager) Tombstones() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Size() - m.ids.Len()
}

// Stats returns a consistent view of the counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	s := Stats{
		Class:      m.class,
		Size:       m.store.Size(),
		Live:       m.ids.Len(),
		Dimensions: m.store.Dimensions(),
		StoreType:  m.store.Type(),
	}
	m.mu.RUnlock()
	s.Tombstones = s.Size - s.Live
	s.Pending = m.policy.Pending()
	s.LastSnapshot = m.Health().LastSnapshot
	return s
}

// Health returns the restore and snapshot status.
func (m *Manager) Health() Health {
	m.healthMu.Lock()
	defer m.healthMu.Unlock()
	return m.health
}

// Dirty reports whether there are changes since the last snapshot.
func (m *Manager) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version != m.saved
}

// Rebuild compacts the store to live vectors only, reassigning positions in
// ascending order of the old ones.
func (m *Manager) Rebuild() (RebuildStats, error) {
	start := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.store.Size()
	fresh, err := vector.NewStore(m.store.Type(), m.store.Dimensions())
	if err != nil {
		return RebuildStats{}, fmt.Errorf("create store: %w", err)
	}
	ids := identity.New()
	for _, b := range m.ids.Live() {
		vec, err := m.store.Get(b.Position)
		if err != nil {
			_ = fresh.Close()
			return RebuildStats{}, fmt.Errorf("read %s at %d: %w", b.ID, b.Position, err)
		}
		pos, err := fresh.Append(vec)
		if err != nil {
			_ = fresh.Close()
			return RebuildStats{}, fmt.Errorf("append %s: %w", b.ID, err)
		}
		if err := ids.Bind(b.ID, pos); err != nil {
			_ = fresh.Close()
			return RebuildStats{}, err
		}
	}

	old := m.store
	m.store = fresh
	m.ids = ids
	m.version++
	if err := old.Close(); err != nil {
		m.logger.Warn("close old store", zap.Error(err))
	}

	stats := RebuildStats{
		Before:   before,
		After:    fresh.Size(),
		Removed:  before - fresh.Size(),
		Duration: m.now().Sub(start),
	}
	m.logger.Info("index rebuilt",
		zap.Int("before", stats.Before),
		zap.Int("after", stats.After),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// Snapshot writes the current state through the persister. The state is
// copied under the write lock; encoding and I/O happen after it is released.
func (m *Manager) Snapshot(ctx context.Context) error {
	if m.persister == nil {
		return ErrNoPersister
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	if m.preserved != "" {
		m.mu.Unlock()
		return fmt.Errorf("%w: keeping the %s snapshot of %s", ErrEmbedderMismatch, m.preserved, m.class)
	}
	snap, err := m.copyState()
	version := m.version
	m.mu.Unlock()
	if err != nil {
		return err
	}

	err = m.persister.Save(ctx, m.class, snap)
	now := m.now()
	m.healthMu.Lock()
	if err != nil {
		m.health.LastSnapshotError = err.Error()
	} else {
		m.health.LastSnapshot = now
		m.health.LastSnapshotError = ""
	}
	m.healthMu.Unlock()
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", m.class, err)
	}

	m.mu.Lock()
	m.saved = version
	m.mu.Unlock()
	m.policy.Reset(now)
	m.logger.Info("snapshot written",
		zap.Int("vectors", len(snap.Vectors)),
		zap.Int("live", len(snap.Bindings)))
	return nil
}

// copyState must be called with mu held.
func (m *Manager) copyState() (*persist.Snapshot, error) {
	size := m.store.Size()
	vecs := make([][]float32, size)
	for i := 0; i < size; i++ {
		v, err := m.store.Get(uint32(i))
		if err != nil {
			return nil, fmt.Errorf("copy vector %d: %w", i, err)
		}
		vecs[i] = v
	}
	return &persist.Snapshot{
		Dimension: m.store.Dimensions(),
		StoreType: m.store.Type(),
		Embedder:  m.embedder,
		Vectors:   vecs,
		Bindings:  m.ids.Entries(),
	}, nil
}

// Restore loads the last snapshot. A missing snapshot is a clean start. Any
// other load failure leaves the manager empty and marks it degraded; the
// error is reported through Health rather than returned so startup proceeds.
func (m *Manager) Restore(ctx context.Context) error {
	if m.persister == nil {
		return nil
	}
	snap, err := m.persister.Load(ctx, m.class)
	if errors.Is(err, persist.ErrNoSnapshot) {
		m.logger.Info("no snapshot found, starting empty")
		return nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		m.degrade(err)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Dimension != m.store.Dimensions() {
		m.degradeLocked(fmt.Errorf("%w: snapshot dimension %d, configured %d",
			persist.ErrCorruptState, snap.Dimension, m.store.Dimensions()))
		return nil
	}
	if snap.Embedder != "" && m.embedder != "" && snap.Embedder != m.embedder {
		m.degradeLocked(fmt.Errorf("%w: snapshot embedded by %s, configured %s",
			ErrEmbedderMismatch, snap.Embedder, m.embedder))
		if m.fallback {
			m.preserved = snap.Embedder
		}
		return nil
	}
	if snap.StoreType != "" && snap.StoreType != m.store.Type() {
		m.logger.Info("restoring into a different store type",
			zap.String("saved", snap.StoreType),
			zap.String("configured", m.store.Type()))
	}

	fresh, err := vector.NewStore(m.store.Type(), snap.Dimension)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	for i, v := range snap.Vectors {
		if _, err := fresh.Append(v); err != nil {
			_ = fresh.Close()
			m.degradeLocked(fmt.Errorf("%w: vector %d: %v", persist.ErrCorruptState, i, err))
			return nil
		}
	}
	ids, err := identity.FromEntries(snap.Bindings)
	if err != nil {
		_ = fresh.Close()
		m.degradeLocked(fmt.Errorf("%w: %v", persist.ErrCorruptState, err))
		return nil
	}

	_ = m.store.Close()
	m.store = fresh
	m.ids = ids
	m.version++
	m.saved = m.version
	m.logger.Info("snapshot restored",
		zap.Int("size", fresh.Size()),
		zap.Int("live", ids.Len()))
	return nil
}

func (m *Manager) degrade(cause error) {
	m.healthMu.Lock()
	m.health.Degraded = true
	m.health.Reason = cause.Error()
	m.healthMu.Unlock()
	m.logger.Warn("restore failed, index degraded to empty", zap.Error(cause))
}

// degradeLocked must be called with mu held; it discards any partial state.
func (m *Manager) degradeLocked(cause error) {
	if m.store.Size() != 0 || m.ids.Len() != 0 {
		if fresh, err := vector.NewStore(m.store.Type(), m.store.Dimensions()); err == nil {
			_ = m.store.Close()
			m.store = fresh
			m.ids = identity.New()
		}
	}
	m.degrade(cause)
}

// afterWrite triggers a background snapshot when the policy says one is due.
// At most one background snapshot runs at a time; failures are only logged.
func (m *Manager) afterWrite() {
	if m.persister == nil || m.holdsPreserved() || !m.policy.Observe(m.now()) {
		return
	}
	if !m.snapshotting.CompareAndSwap(false, true) {
		return
	}
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		defer m.snapshotting.Store(false)
		if err := m.Snapshot(context.Background()); err != nil {
			m.logger.Error("background snapshot failed", zap.Error(err))
		}
	}()
}

func (m *Manager) holdsPreserved() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.preserved != ""
}

// Wait blocks until any background snapshot finishes.
func (m *Manager) Wait() {
	m.background.Wait()
}

// Close waits for background work and releases the store.
func (m *Manager) Close() error {
	m.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Close()
}
