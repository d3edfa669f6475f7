package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists attendance records in Postgres. The unique constraint
// on (identity_id, day) is what makes concurrent marking collapse into one
// record.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new record. When a record for (identity_id, day) already
// exists the insert is a no-op and (Record{}, false, nil) is returned; the
// caller should read the existing row.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, identity_id, day, status, marked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_id, day) DO NOTHING
		RETURNING id
	`, rec.ID, rec.IdentityID, rec.Day, rec.Status, rec.MarkedAt)
	if err := row.Scan(&rec.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("insert attendance: %w", err)
	}
	return rec, true, nil
}

// Get returns the record for (identity_id, day), or sql.ErrNoRows.
func (r *Repository) Get(ctx context.Context, identityID, day string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, identity_id, to_char(day, 'YYYY-MM-DD'), status, marked_at
		FROM attendance_records
		WHERE identity_id = $1 AND day = $2
	`, identityID, day)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.IdentityID, &rec.Day, &rec.Status, &rec.MarkedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListByIdentity returns all records for an identity, most recent day first.
func (r *Repository) ListByIdentity(ctx context.Context, identityID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, identity_id, to_char(day, 'YYYY-MM-DD'), status, marked_at
		FROM attendance_records
		WHERE identity_id = $1
		ORDER BY day DESC
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.IdentityID, &rec.Day, &rec.Status, &rec.MarkedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
