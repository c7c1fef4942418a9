package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/xmlongan/jmomden/internal/persistence"
)

const snapshotColumns = `id, hash, degree, family, c, moments, basis1, basis2, tensor, created_at`

// snapshotRow mirrors model_snapshots; matrix columns are JSONB
type snapshotRow struct {
	ID        string    `db:"id"`
	Hash      string    `db:"hash"`
	Degree    int       `db:"degree"`
	Family    string    `db:"family"`
	C         float64   `db:"c"`
	Moments   []byte    `db:"moments"`
	Basis1    []byte    `db:"basis1"`
	Basis2    []byte    `db:"basis2"`
	Tensor    []byte    `db:"tensor"`
	CreatedAt time.Time `db:"created_at"`
}

// snapshotRepo implements persistence.SnapshotRepo for PostgreSQL
type snapshotRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotRepo creates a PostgreSQL snapshot repository
func NewSnapshotRepo(db *sqlx.DB, timeout time.Duration) persistence.SnapshotRepo {
	return &snapshotRepo{
		db:      db,
		timeout: timeout,
	}
}

// Upsert inserts or updates the snapshot keyed by id
func (r *snapshotRepo) Upsert(ctx context.Context, s persistence.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if s.ID == "" || s.Hash == "" {
		return fmt.Errorf("snapshot id and hash are required")
	}
	if s.Degree < 1 {
		return fmt.Errorf("invalid snapshot degree: %d", s.Degree)
	}

	row, err := toRow(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO model_snapshots (` + snapshotColumns + `)
		VALUES (:id, :hash, :degree, :family, :c, :moments, :basis1, :basis2, :tensor, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			hash = EXCLUDED.hash,
			degree = EXCLUDED.degree,
			family = EXCLUDED.family,
			c = EXCLUDED.c,
			moments = EXCLUDED.moments,
			basis1 = EXCLUDED.basis1,
			basis2 = EXCLUDED.basis2,
			tensor = EXCLUDED.tensor`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// Get retrieves a snapshot by id
func (r *snapshotRepo) Get(ctx context.Context, id string) (*persistence.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + snapshotColumns + ` FROM model_snapshots WHERE id = $1`

	var row snapshotRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return fromRow(row)
}

// ByHash retrieves the newest snapshot with the given content hash
func (r *snapshotRepo) ByHash(ctx context.Context, hash string) (*persistence.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + snapshotColumns + `
		FROM model_snapshots
		WHERE hash = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var row snapshotRow
	if err := r.db.GetContext(ctx, &row, query, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot by hash: %w", err)
	}
	return fromRow(row)
}

// Delete removes a snapshot by id
func (r *snapshotRepo) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM model_snapshots WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return n > 0, nil
}

// List retrieves the newest snapshots
func (r *snapshotRepo) List(ctx context.Context, limit int) ([]persistence.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + snapshotColumns + `
		FROM model_snapshots
		ORDER BY created_at DESC
		LIMIT $1`

	var rows []snapshotRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	out := make([]persistence.Snapshot, 0, len(rows))
	for _, row := range rows {
		s, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func toRow(s persistence.Snapshot) (snapshotRow, error) {
	row := snapshotRow{
		ID:        s.ID,
		Hash:      s.Hash,
		Degree:    s.Degree,
		Family:    s.Family,
		C:         s.C,
		CreatedAt: s.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	for _, f := range []struct {
		name string
		src  [][]float64
		dst  *[]byte
	}{
		{"moments", s.Moments, &row.Moments},
		{"basis1", s.Basis1, &row.Basis1},
		{"basis2", s.Basis2, &row.Basis2},
		{"tensor", s.Tensor, &row.Tensor},
	} {
		b, err := json.Marshal(f.src)
		if err != nil {
			return snapshotRow{}, fmt.Errorf("failed to marshal %s: %w", f.name, err)
		}
		*f.dst = b
	}
	return row, nil
}

func fromRow(row snapshotRow) (*persistence.Snapshot, error) {
	s := &persistence.Snapshot{
		ID:        row.ID,
		Hash:      row.Hash,
		Degree:    row.Degree,
		Family:    row.Family,
		C:         row.C,
		CreatedAt: row.CreatedAt,
	}
	for _, f := range []struct {
		name string
		src  []byte
		dst  *[][]float64
	}{
		{"moments", row.Moments, &s.Moments},
		{"basis1", row.Basis1, &s.Basis1},
		{"basis2", row.Basis2, &s.Basis2},
		{"tensor", row.Tensor, &s.Tensor},
	} {
		if len(f.src) == 0 {
			continue
		}
		if err := json.Unmarshal(f.src, f.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", f.name, err)
		}
	}
	return s, nil
}
