package persist

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerAdapter stores both regions of a class in one Badger transaction.
type BadgerAdapter struct {
	db     *badger.DB
	logger *zap.Logger
}

// BadgerOptions configures a BadgerAdapter.
type BadgerOptions struct {
	// Dir is the Badger data directory. Required unless InMemory.
	Dir      string
	InMemory bool
	Logger   *zap.Logger
}

// NewBadgerAdapter opens (or creates) a Badger database.
func NewBadgerAdapter(opts BadgerOptions) (*BadgerAdapter, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger directory is required for on-disk mode")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		// In-memory mode rejects a directory.
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger.Sugar()})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerAdapter{db: db, logger: logger}, nil
}

func vectorsKey(class string) []byte { return []byte("kizuna:" + class + ":vectors") }
func idmapKey(class string) []byte   { return []byte("kizuna:" + class + ":idmap") }

// Save writes both regions atomically.
func (b *BadgerAdapter) Save(ctx context.Context, class string, snap *Snapshot) error {
	vecData, idData, err := encode(snap)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(vectorsKey(class), vecData); err != nil {
			return err
		}
		return txn.Set(idmapKey(class), idData)
	})
	if err != nil {
		return fmt.Errorf("badger save %s: %w", class, err)
	}
	b.logger.Debug("snapshot saved",
		zap.String("class", class),
		zap.String("backend", "badger"),
		zap.Int("vectors", len(snap.Vectors)))
	return nil
}

// Load reads and validates both regions.
func (b *BadgerAdapter) Load(ctx context.Context, class string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var vecData, idData []byte
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		if vecData, err = getValue(txn, vectorsKey(class)); err != nil {
			return err
		}
		idData, err = getValue(txn, idmapKey(class))
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound) && vecData == nil:
		return nil, ErrNoSnapshot
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, fmt.Errorf("%w: identity region missing for %s", ErrCorruptState, class)
	case err != nil:
		return nil, fmt.Errorf("badger load %s: %w", class, err)
	}
	return decode(vecData, idData)
}

// Close closes the database.
func (b *BadgerAdapter) Close() error {
	return b.db.Close()
}

func getValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// badgerLogger routes badger's printf-style logging into zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.s.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.s.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.s.Debugf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.s.Debugf(f, v...) }
