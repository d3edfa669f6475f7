package attendance

import (
	"context"
	"errors"
	"fmt"
)

// Store is the persistence contract the recorder needs. Satisfied by
// *Repository.
type Store interface {
	Insert(ctx context.Context, rec Record) (Record, bool, error)
	Get(ctx context.Context, identityID, day string) (Record, error)
	ListByIdentity(ctx context.Context, identityID string) ([]Record, error)
}

// Service records attendance idempotently: at most one record per identity
// per day.
type Service struct {
	store Store
}

// NewService creates a recorder backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Mark records attendance for identityID on day. When a record already
// exists it is returned unchanged with alreadyMarked = true; that is a
// success, not an error. Two concurrent marks resolve through the store's
// conflict handling: the loser reads the winner's row.
func (s *Service) Mark(ctx context.Context, identityID, day string, status Status) (rec Record, alreadyMarked bool, err error) {
	if identityID == "" || day == "" {
		return Record{}, false, errors.New("identity and day required")
	}
	if status == "" {
		status = StatusPresent
	}

	rec, inserted, err := s.store.Insert(ctx, Record{
		IdentityID: identityID,
		Day:        day,
		Status:     status,
	})
	if err != nil {
		return Record{}, false, err
	}
	if inserted {
		return rec, false, nil
	}

	existing, err := s.store.Get(ctx, identityID, day)
	if err != nil {
		return Record{}, false, fmt.Errorf("read existing record: %w", err)
	}
	return existing, true, nil
}

// History returns all records for the identity, most recent day first.
// Re-querying is side-effect free.
func (s *Service) History(ctx context.Context, identityID string) ([]Record, error) {
	if identityID == "" {
		return nil, errors.New("identity required")
	}
	return s.store.ListByIdentity(ctx, identityID)
}
