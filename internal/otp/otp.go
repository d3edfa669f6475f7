// Package otp issues and redeems short-lived one-time passcodes bound to an
// email address, used as an alternate login factor.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"classattend/internal/identity"
)

var (
	ErrNoChallenge = errors.New("no challenge outstanding for email")
	ErrExpired     = errors.New("challenge has expired")
	ErrInvalidCode = errors.New("code does not match challenge")
)

// Challenge is one outstanding passcode for an email address. A new issuance
// replaces any prior challenge for the same email.
type Challenge struct {
	Code      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ChallengeStore persists challenges keyed by email. Redeem must perform the
// read-compare-delete as a single atomic step per email so that two
// concurrent redemptions cannot both consume the same challenge.
type ChallengeStore interface {
	// Put stores ch for email, replacing any existing challenge.
	Put(ctx context.Context, email string, ch Challenge) error
	// Redeem validates code against the stored challenge at time now and
	// deletes the challenge only on success. It returns ErrNoChallenge,
	// ErrExpired (challenge left in place) or ErrInvalidCode on failure.
	Redeem(ctx context.Context, email, code string, now time.Time) error
}

// Mailer delivers the passcode out-of-band. No retries; a failure is
// surfaced to the engine's caller.
type Mailer interface {
	Send(to, subject, body string) error
}

// IdentityLookup resolves accounts by email. Satisfied by
// *identity.Repository.
type IdentityLookup interface {
	FindByEmail(ctx context.Context, email string) (identity.Identity, error)
	FindByEmailAndRole(ctx context.Context, email string, role identity.Role) (identity.Identity, error)
}

// Engine implements issuance and one-time redemption.
type Engine struct {
	idents IdentityLookup
	store  ChallengeStore
	mailer Mailer
	ttl    time.Duration
	digits int
	now    func() time.Time
}

// NewEngine wires an engine with its collaborators. ttl defaults to five
// minutes and digits to six when zero.
func NewEngine(idents IdentityLookup, store ChallengeStore, mailer Mailer, ttl time.Duration, digits int) *Engine {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if digits <= 0 {
		digits = 6
	}
	return &Engine{
		idents: idents,
		store:  store,
		mailer: mailer,
		ttl:    ttl,
		digits: digits,
		now:    time.Now,
	}
}

// Issue generates a fresh code for the identity owning email, stores it with
// the configured TTL and emails it. The challenge stays stored even when
// delivery fails, so the caller may still redeem if the message arrives late;
// a fresh Issue is the recommended recovery.
func (e *Engine) Issue(ctx context.Context, email string) error {
	ident, err := e.idents.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := generateCode(e.digits)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	now := e.now()
	ch := Challenge{Code: code, IssuedAt: now, ExpiresAt: now.Add(e.ttl)}
	if err := e.store.Put(ctx, ident.Email, ch); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}

	subject := "Your login code"
	body := fmt.Sprintf("Your one-time login code is %s. It expires in %d minutes.", code, int(e.ttl.Minutes()))
	if err := e.mailer.Send(ident.Email, subject, body); err != nil {
		return fmt.Errorf("send code: %w", err)
	}
	return nil
}

// Redeem consumes the outstanding challenge for (email, role) and returns the
// identity for token issuance. The challenge is deleted only on success.
func (e *Engine) Redeem(ctx context.Context, email, code string, role identity.Role) (identity.Identity, error) {
	ident, err := e.idents.FindByEmailAndRole(ctx, email, role)
	if err != nil {
		return identity.Identity{}, err
	}
	if err := e.store.Redeem(ctx, ident.Email, strings.TrimSpace(code), e.now()); err != nil {
		return identity.Identity{}, err
	}
	return ident, nil
}

// generateCode draws a code uniformly from the fixed-width numeric space,
// e.g. [100000, 999999] for six digits.
func generateCode(digits int) (string, error) {
	min := int64(1)
	for i := 1; i < digits; i++ {
		min *= 10
	}
	span := 9 * min
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", min+n.Int64()), nil
}
