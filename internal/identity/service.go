package identity

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Service handles registration and password authentication.
type Service struct {
	repo *Repository
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a new account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, name, email, password string, role Role) (Identity, error) {
	if name == "" || email == "" || password == "" {
		return Identity{}, errors.New("name, email and password required")
	}
	if !role.Valid() {
		return Identity{}, fmt.Errorf("unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.Create(ctx, Identity{
		Name:         name,
		Email:        normalizeEmail(email),
		PasswordHash: string(hash),
		Role:         role,
	})
}

// Authenticate verifies the password for the account owning email.
// A wrong password returns ErrBadCredential; an unknown email ErrNotFound.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	ident, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(password)); err != nil {
		return Identity{}, ErrBadCredential
	}
	return ident, nil
}

// EnrollFace validates the descriptor dimension and stores it as the
// identity's reference template. Only students enroll.
func (s *Service) EnrollFace(ctx context.Context, identityID string, descriptor []float64, wantDim int) error {
	if len(descriptor) == 0 {
		return errors.New("descriptor required")
	}
	if wantDim > 0 && len(descriptor) != wantDim {
		return fmt.Errorf("descriptor must have %d dimensions, got %d", wantDim, len(descriptor))
	}
	ident, err := s.repo.FindByID(ctx, identityID)
	if err != nil {
		return err
	}
	if ident.Role != RoleStudent {
		return fmt.Errorf("face enrollment is for students, not %s", ident.Role)
	}
	return s.repo.SaveFaceTemplate(ctx, identityID, descriptor)
}
