// Package models defines the profile, network and recommendation types shared
// across the indexer, recommender, storage and HTTP layers.
package models

import (
	"errors"
	"strings"
	"time"
)

// Profile is an entity that can be embedded and matched: a user, a network
// or an imported résumé. All fields except ID are optional.
type Profile struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	Bio        string            `json:"bio,omitempty"`
	Interests  []string          `json:"interests,omitempty"`
	Skills     []string          `json:"skills,omitempty"`
	Location   string            `json:"location,omitempty"`
	Profession string            `json:"profession,omitempty"`
	Experience string            `json:"experience,omitempty"`
	Goals      []string          `json:"goals,omitempty"`
	NetworkID  string            `json:"network_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
}

// ErrEmptyProfile is returned when a profile renders to no text.
var ErrEmptyProfile = errors.New("profile has no text to embed")

// Render returns the text that is embedded for p. Fields appear in a fixed
// order (name, bio, interests, skills, location, profession, experience,
// goals), list items keep their given order, and empty fields are skipped.
// Parts are joined by single spaces.
func (p *Profile) Render() string {
	parts := make([]string, 0, 8)
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	addList := func(items []string) {
		for _, s := range items {
			add(s)
		}
	}
	add(p.Name)
	add(p.Bio)
	addList(p.Interests)
	addList(p.Skills)
	add(p.Location)
	add(p.Profession)
	add(p.Experience)
	addList(p.Goals)
	return strings.Join(parts, " ")
}

// Validate checks that p can be indexed.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("profile id is required")
	}
	if p.Render() == "" {
		return ErrEmptyProfile
	}
	return nil
}

// NetworkContext describes the network a recommendation is made within.
type NetworkContext struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Goals       []string `json:"goals,omitempty"`
}
