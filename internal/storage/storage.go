// Package storage persists profiles, keyed by entity class and id.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kizuna/internal/models"
)

// ErrProfileNotFound is returned when no profile matches the class and id.
var ErrProfileNotFound = errors.New("profile not found")

// Storage defines profile persistence operations.
type Storage interface {
	// SaveProfile inserts or replaces a profile and reports whether it existed.
	SaveProfile(ctx context.Context, class string, p *models.Profile) (bool, error)
	GetProfile(ctx context.Context, class, id string) (*models.Profile, error)
	// GetProfiles returns the profiles found among ids, keyed by id.
	GetProfiles(ctx context.Context, class string, ids []string) (map[string]*models.Profile, error)
	DeleteProfile(ctx context.Context, class, id string) error
	ListProfiles(ctx context.Context, class string, offset, limit int) ([]*models.Profile, error)
	CountProfiles(ctx context.Context, class string) (int64, error)

	Close() error
}
