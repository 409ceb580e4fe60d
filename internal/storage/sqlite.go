package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kizuna/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		class TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT,
		data TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (class, id)
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_class_created ON profiles(class, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// SaveProfile inserts or replaces a profile. CreatedAt is kept from the
// existing row on replace.
func (s *SQLiteStorage) SaveProfile(ctx context.Context, class string, p *models.Profile) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var created time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT created_at FROM profiles WHERE class = ? AND id = ?`, class, p.ID,
	).Scan(&created)
	existed := err == nil
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}

	now := time.Now().UTC()
	if !existed {
		created = now
	}
	p.CreatedAt = created
	p.UpdatedAt = now

	data, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("failed to marshal profile: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (class, id, name, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(class, id) DO UPDATE SET
		   name = excluded.name, data = excluded.data, updated_at = excluded.updated_at`,
		class, p.ID, p.Name, string(data), created, now,
	)
	if err != nil {
		return false, err
	}
	return existed, tx.Commit()
}

// GetProfile returns a profile by class and id.
func (s *SQLiteStorage) GetProfile(ctx context.Context, class, id string) (*models.Profile, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM profiles WHERE class = ? AND id = ?`, class, id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", ErrProfileNotFound, class, id)
	}
	if err != nil {
		return nil, err
	}
	return decodeProfile(data)
}

// GetProfiles loads several profiles in one query. Missing ids are absent
// from the result.
func (s *SQLiteStorage) GetProfiles(ctx context.Context, class string, ids []string) (map[string]*models.Profile, error) {
	out := make(map[string]*models.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, class)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM profiles WHERE class = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		p, err := decodeProfile(data)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// DeleteProfile removes a profile. Deleting a missing profile is not an error.
func (s *SQLiteStorage) DeleteProfile(ctx context.Context, class, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE class = ? AND id = ?`, class, id)
	return err
}

// ListProfiles returns profiles of a class in creation order. A non-positive
// limit returns everything after offset.
func (s *SQLiteStorage) ListProfiles(ctx context.Context, class string, offset, limit int) ([]*models.Profile, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM profiles WHERE class = ?
		 ORDER BY created_at, id LIMIT ? OFFSET ?`,
		class, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		p, err := decodeProfile(data)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// CountProfiles returns the number of profiles in class.
func (s *SQLiteStorage) CountProfiles(ctx context.Context, class string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles WHERE class = ?`, class).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func decodeProfile(data string) (*models.Profile, error) {
	var p models.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}
