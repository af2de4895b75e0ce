// Package storage provides the key-value record store backing daily quota
// accounting, and the versioned content store backing blog publishing.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key or file does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned by content-store writes rejected because the
// optimistic concurrency token (sha) is stale.
var ErrConflict = errors.New("storage: write conflict")

// Record is a daily counter row. Date is the UTC calendar day (YYYY-MM-DD)
// the record is valid for; records whose Date differs from today are
// treated as absent by callers rather than deleted.
type Record struct {
	Count        int       `json:"count"`
	Date         string    `json:"date,omitempty"`
	Level        string    `json:"level,omitempty"`
	BonusApplied bool      `json:"bonusApplied,omitempty"`
	ResetTime    time.Time `json:"resetTime,omitempty"`
}

// Store is the per-key atomic record store. Implementations must make Set an
// upsert; concurrent writers for the same key are resolved last-write-wins.
type Store interface {
	// Get returns the record for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Record, error)
	// Set upserts the record. expiresAt is advisory, for backend-side cleanup.
	Set(ctx context.Context, key string, rec *Record, expiresAt time.Time) error
	// Delete removes the record; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// DirEntry describes one file in a content-store directory listing.
type DirEntry struct {
	Name string
	Path string
	SHA  string
	Type string
}

// ContentStore is a GitHub-Contents-shaped versioned file store. Reads return
// a sha token that must accompany updates of existing files; a stale sha
// surfaces as ErrConflict.
type ContentStore interface {
	GetFile(ctx context.Context, path string) (data []byte, sha string, err error)
	// PutFile creates path when sha is empty and updates it otherwise.
	PutFile(ctx context.Context, path string, data []byte, sha, message string) error
	ListDir(ctx context.Context, path string) ([]DirEntry, error)
	// FileURL returns the public URL a stored path is served from.
	FileURL(path string) string
}
