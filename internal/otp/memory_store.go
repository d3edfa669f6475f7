package otp

import (
	"context"
	"sync"
	"time"
)

// MemoryChallengeStore keeps challenges in process memory, for dev and
// tests. Outstanding codes are lost on restart and the store cannot be
// shared across instances; use the Redis store for real deployments.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
}

// NewMemoryChallengeStore creates an empty store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{challenges: make(map[string]Challenge)}
}

// Put stores the challenge, replacing any prior one for the email.
func (s *MemoryChallengeStore) Put(_ context.Context, email string, ch Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[email] = ch
	return nil
}

// Redeem validates and consumes the challenge under one lock, so concurrent
// redemptions of the same code cannot both succeed.
func (s *MemoryChallengeStore) Redeem(_ context.Context, email, code string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[email]
	if !ok {
		return ErrNoChallenge
	}
	if now.After(ch.ExpiresAt) {
		return ErrExpired
	}
	if ch.Code != code {
		return ErrInvalidCode
	}
	delete(s.challenges, email)
	return nil
}
