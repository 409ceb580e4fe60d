package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileAdapter stores each class as <dir>/<class>.vec and <dir>/<class>.idmap.
type FileAdapter struct {
	dir    string
	logger *zap.Logger
}

// FileOption configures a FileAdapter.
type FileOption func(*FileAdapter)

// WithFileLogger sets the logger.
func WithFileLogger(l *zap.Logger) FileOption {
	return func(a *FileAdapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewFileAdapter creates the snapshot directory if needed.
func NewFileAdapter(dir string, opts ...FileOption) (*FileAdapter, error) {
	if dir == "" {
		return nil, errors.New("snapshot directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	a := &FileAdapter{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Paths returns the vector and identity file paths for class.
func (a *FileAdapter) Paths(class string) (vectors, idmap string) {
	return filepath.Join(a.dir, class+".vec"), filepath.Join(a.dir, class+".idmap")
}

// Dir returns the snapshot directory.
func (a *FileAdapter) Dir() string {
	return a.dir
}

// Save writes both regions. Each file is replaced atomically. A crash between
// the two writes leaves an identity region whose vector checksum no longer
// matches, and Load reports ErrCorruptState.
func (a *FileAdapter) Save(ctx context.Context, class string, snap *Snapshot) error {
	vecData, idData, err := encode(snap)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	vecPath, idPath := a.Paths(class)
	if err := writeFileAtomic(vecPath, vecData); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	if err := writeFileAtomic(idPath, idData); err != nil {
		return fmt.Errorf("write bindings: %w", err)
	}
	a.logger.Debug("snapshot saved",
		zap.String("class", class),
		zap.Int("vectors", len(snap.Vectors)),
		zap.Int("bindings", len(snap.Bindings)),
		zap.Int("bytes", len(vecData)+len(idData)))
	return nil
}

// Load reads and validates both regions.
func (a *FileAdapter) Load(ctx context.Context, class string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vecPath, idPath := a.Paths(class)
	vecData, vecErr := os.ReadFile(vecPath)
	idData, idErr := os.ReadFile(idPath)
	switch {
	case os.IsNotExist(vecErr) && os.IsNotExist(idErr):
		return nil, ErrNoSnapshot
	case os.IsNotExist(vecErr):
		return nil, fmt.Errorf("%w: %s missing", ErrCorruptState, vecPath)
	case os.IsNotExist(idErr):
		return nil, fmt.Errorf("%w: %s missing", ErrCorruptState, idPath)
	case vecErr != nil:
		return nil, fmt.Errorf("read vectors: %w", vecErr)
	case idErr != nil:
		return nil, fmt.Errorf("read bindings: %w", idErr)
	}
	return decode(vecData, idData)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
