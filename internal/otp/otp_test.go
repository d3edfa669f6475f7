package otp

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/identity"
)

type fakeLookup struct {
	byEmail map[string]identity.Identity
}

func (f *fakeLookup) FindByEmail(_ context.Context, email string) (identity.Identity, error) {
	ident, ok := f.byEmail[email]
	if !ok {
		return identity.Identity{}, identity.ErrNotFound
	}
	return ident, nil
}

func (f *fakeLookup) FindByEmailAndRole(_ context.Context, email string, role identity.Role) (identity.Identity, error) {
	ident, ok := f.byEmail[email]
	if !ok || ident.Role != role {
		return identity.Identity{}, identity.ErrNotFound
	}
	return ident, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string // bodies
	fail error
}

func (f *fakeMailer) Send(_, _, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, body)
	return nil
}

var codeRe = regexp.MustCompile(`\b(\d{6})\b`)

func sentCode(t *testing.T, m *fakeMailer) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	match := codeRe.FindStringSubmatch(m.sent[len(m.sent)-1])
	require.Len(t, match, 2, "mail body should contain a 6-digit code")
	return match[1]
}

func newTestEngine(t *testing.T) (*Engine, *fakeMailer, *MemoryChallengeStore) {
	t.Helper()
	lookup := &fakeLookup{byEmail: map[string]identity.Identity{
		"a@x.com": {ID: "id-1", Email: "a@x.com", Role: identity.RoleStudent},
	}}
	mail := &fakeMailer{}
	store := NewMemoryChallengeStore()
	return NewEngine(lookup, store, mail, 5*time.Minute, 6), mail, store
}

func TestIssueUnknownEmail(t *testing.T) {
	e, mail, _ := newTestEngine(t)
	err := e.Issue(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, identity.ErrNotFound)
	assert.Empty(t, mail.sent, "no mail for unknown identities")
}

func TestRedeemBeforeIssue(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.Redeem(context.Background(), "a@x.com", "123456", identity.RoleStudent)
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestIssueThenRedeemExactlyOnce(t *testing.T) {
	e, mail, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Issue(ctx, "a@x.com"))
	require.Len(t, mail.sent, 1, "exactly one outbound message per issue")
	code := sentCode(t, mail)

	ident, err := e.Redeem(ctx, "a@x.com", code, identity.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, "id-1", ident.ID)

	// single use: the same code is gone
	_, err = e.Redeem(ctx, "a@x.com", code, identity.RoleStudent)
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestRedeemWrongCodeThenCorrect(t *testing.T) {
	e, mail, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Issue(ctx, "a@x.com"))
	code := sentCode(t, mail)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	_, err := e.Redeem(ctx, "a@x.com", wrong, identity.RoleStudent)
	assert.ErrorIs(t, err, ErrInvalidCode)

	// a failed attempt does not consume the challenge
	_, err = e.Redeem(ctx, "a@x.com", code, identity.RoleStudent)
	assert.NoError(t, err)
}

func TestRedeemWrongRole(t *testing.T) {
	e, mail, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Issue(ctx, "a@x.com"))
	code := sentCode(t, mail)

	_, err := e.Redeem(ctx, "a@x.com", code, identity.RoleTeacher)
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func TestRedeemExpired(t *testing.T) {
	e, mail, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Issue(ctx, "a@x.com"))
	code := sentCode(t, mail)

	e.now = func() time.Time { return time.Now().Add(5*time.Minute + time.Second) }

	_, err := e.Redeem(ctx, "a@x.com", code, identity.RoleStudent)
	assert.ErrorIs(t, err, ErrExpired)

	// the expired challenge is inert, not deleted: still Expired, never Invalid
	_, err = e.Redeem(ctx, "a@x.com", code, identity.RoleStudent)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestIssueReplacesPriorChallenge(t *testing.T) {
	e, mail, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Issue(ctx, "a@x.com"))
	first := sentCode(t, mail)
	require.NoError(t, e.Issue(ctx, "a@x.com"))
	second := sentCode(t, mail)

	if first != second {
		_, err := e.Redeem(ctx, "a@x.com", first, identity.RoleStudent)
		assert.ErrorIs(t, err, ErrInvalidCode, "old code must not redeem")
	}
	_, err := e.Redeem(ctx, "a@x.com", second, identity.RoleStudent)
	assert.NoError(t, err)
}

func TestIssueDeliveryFailureKeepsChallenge(t *testing.T) {
	e, mail, store := newTestEngine(t)
	ctx := context.Background()

	mail.fail = errors.New("smtp down")
	err := e.Issue(ctx, "a@x.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, identity.ErrNotFound)

	// the challenge was stored before dispatch; a late-arriving message
	// could still be redeemed
	store.mu.Lock()
	ch, ok := store.challenges["a@x.com"]
	store.mu.Unlock()
	require.True(t, ok, "challenge must remain stored on delivery failure")

	_, err = e.Redeem(ctx, "a@x.com", ch.Code, identity.RoleStudent)
	assert.NoError(t, err)
}

func TestRedeemTrimsWhitespace(t *testing.T) {
	e, mail, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Issue(ctx, "a@x.com"))
	code := sentCode(t, mail)

	_, err := e.Redeem(ctx, "a@x.com", "  "+code+"\n", identity.RoleStudent)
	assert.NoError(t, err)
}

func TestConcurrentRedeemSingleWinner(t *testing.T) {
	e, mail, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Issue(ctx, "a@x.com"))
	code := sentCode(t, mail)

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Redeem(ctx, "a@x.com", code, identity.RoleStudent)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrNoChallenge)
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent redemption may succeed")
}

func TestGenerateCodeFixedWidth(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.GreaterOrEqual(t, code, "100000")
		assert.LessOrEqual(t, code, "999999")
	}
}
