package index

import (
	"errors"

	"github.com/hyperjump/kizuna/internal/identity"
)

var (
	// ErrNotFound is returned when an id has no live binding.
	ErrNotFound = identity.ErrNotFound
	// ErrUnknownClass is returned by Registry.Get for an unconfigured entity class.
	ErrUnknownClass = errors.New("unknown entity class")
	// ErrNoPersister is returned by Snapshot when no adapter is configured.
	ErrNoPersister = errors.New("no persistence adapter configured")
	// ErrEmbedderMismatch is reported when a snapshot was produced by a
	// different embedder than the one configured.
	ErrEmbedderMismatch = errors.New("snapshot embedder mismatch")
	// ErrInvalidID is returned for an empty entity id.
	ErrInvalidID = errors.New("entity id must not be empty")
)
