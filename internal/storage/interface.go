package storage

import "time"

// TokenRecord is the last credential token fetched from the upstream
// challenge script.
type TokenRecord struct {
	Token     string    `json:"token"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Storage keeps the latest TokenRecord across restarts.
type Storage interface {
	Init() error
	// Load returns ErrNotFound when nothing has been saved yet.
	Load() (*TokenRecord, error)
	Save(record *TokenRecord) error
	Close() error
}
