package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Repository persists identities and face templates in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new identity. Email collisions map to ErrAlreadyExists.
func (r *Repository) Create(ctx context.Context, ident Identity) (Identity, error) {
	if ident.ID == "" {
		ident.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO identities (id, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING
		RETURNING created_at
	`, ident.ID, ident.Name, ident.Email, ident.PasswordHash, ident.Role)
	if err := row.Scan(&ident.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrAlreadyExists
		}
		return Identity{}, fmt.Errorf("insert identity: %w", err)
	}
	return ident, nil
}

// FindByEmail returns the identity owning email, or ErrNotFound.
func (r *Repository) FindByEmail(ctx context.Context, email string) (Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM identities WHERE email = $1
	`, normalizeEmail(email))
	return scanIdentity(row)
}

// FindByEmailAndRole returns the identity matching both email and role,
// or ErrNotFound.
func (r *Repository) FindByEmailAndRole(ctx context.Context, email string, role Role) (Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM identities WHERE email = $1 AND role = $2
	`, normalizeEmail(email), role)
	return scanIdentity(row)
}

// FindByID returns the identity with the given id, or ErrNotFound.
func (r *Repository) FindByID(ctx context.Context, id string) (Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM identities WHERE id = $1
	`, id)
	return scanIdentity(row)
}

func scanIdentity(row *sql.Row) (Identity, error) {
	var ident Identity
	if err := row.Scan(&ident.ID, &ident.Name, &ident.Email, &ident.PasswordHash, &ident.Role, &ident.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrNotFound
		}
		return Identity{}, fmt.Errorf("scan identity: %w", err)
	}
	return ident, nil
}

// SaveFaceTemplate stores the reference descriptor for an identity,
// replacing any previous enrollment.
func (r *Repository) SaveFaceTemplate(ctx context.Context, identityID string, descriptor []float64) error {
	raw, err := json.Marshal(descriptor)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO face_templates (identity_id, descriptor)
		VALUES ($1, $2)
		ON CONFLICT (identity_id) DO UPDATE SET
			descriptor = EXCLUDED.descriptor,
			enrolled_at = NOW()
	`, identityID, raw)
	if err != nil {
		return fmt.Errorf("save face template: %w", err)
	}
	return nil
}

// FaceTemplate returns the stored descriptor for an identity, or
// ErrNoEnrollment when none exists.
func (r *Repository) FaceTemplate(ctx context.Context, identityID string) ([]float64, error) {
	var raw []byte
	row := r.db.QueryRowContext(ctx, `
		SELECT descriptor FROM face_templates WHERE identity_id = $1
	`, identityID)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoEnrollment
		}
		return nil, fmt.Errorf("load face template: %w", err)
	}
	var descriptor []float64
	if err := json.Unmarshal(raw, &descriptor); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	return descriptor, nil
}

// FaceGallery returns every enrolled student's descriptors keyed by
// identity id, for one-to-many identification sweeps.
func (r *Repository) FaceGallery(ctx context.Context) (map[string][][]float64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.identity_id, f.descriptor
		FROM face_templates f
		JOIN identities i ON i.id = f.identity_id
		WHERE i.role = $1
		ORDER BY f.identity_id
	`, RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("load face gallery: %w", err)
	}
	defer rows.Close()

	gallery := make(map[string][][]float64)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var descriptor []float64
		if err := json.Unmarshal(raw, &descriptor); err != nil {
			return nil, fmt.Errorf("decode descriptor for %s: %w", id, err)
		}
		gallery[id] = append(gallery[id], descriptor)
	}
	return gallery, rows.Err()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
