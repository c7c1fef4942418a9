package persistence

import (
	"context"
	"time"
)

// Snapshot is the stored form of a built model: the input moments plus the
// derived decorrelation coefficient, bases and correction tensor
type Snapshot struct {
	ID        string      `json:"id" db:"id"`
	Hash      string      `json:"hash" db:"hash"`
	Degree    int         `json:"degree" db:"degree"`
	Family    string      `json:"family" db:"family"`
	C         float64     `json:"c" db:"c"`
	Moments   [][]float64 `json:"moments" db:"moments"`
	Basis1    [][]float64 `json:"basis1" db:"basis1"`
	Basis2    [][]float64 `json:"basis2" db:"basis2"`
	Tensor    [][]float64 `json:"tensor" db:"tensor"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// SnapshotRepo provides snapshot persistence
type SnapshotRepo interface {
	// Upsert inserts or replaces the snapshot with the same id
	Upsert(ctx context.Context, s Snapshot) error

	// Get returns the snapshot with id, or nil if there is none
	Get(ctx context.Context, id string) (*Snapshot, error)

	// ByHash returns the newest snapshot with the content hash, or nil
	ByHash(ctx context.Context, hash string) (*Snapshot, error)

	// Delete removes the snapshot with id and reports whether one existed
	Delete(ctx context.Context, id string) (bool, error)

	// List returns up to limit snapshots, newest first
	List(ctx context.Context, limit int) ([]Snapshot, error)
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool      `json:"healthy"`
	Errors         []string  `json:"errors,omitempty"`
	OpenConns      int       `json:"open_conns"`
	LastCheck      time.Time `json:"last_check"`
	ResponseTimeMS int64     `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for the persistence layer
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
}
