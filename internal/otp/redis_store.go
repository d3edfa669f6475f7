package otp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redeemScript performs the read-compare-delete atomically on the Redis
// server. ARGV[1] is the supplied code, ARGV[2] the current unix time.
// An expired challenge is reported but left in place; only a successful
// redemption deletes the key.
var redeemScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
	return 'none'
end
local sep1 = string.find(v, '|', 1, true)
local sep2 = string.find(v, '|', sep1 + 1, true)
local code = string.sub(v, 1, sep1 - 1)
local expires = tonumber(string.sub(v, sep2 + 1))
if tonumber(ARGV[2]) > expires then
	return 'expired'
end
if code ~= ARGV[1] then
	return 'invalid'
end
redis.call('DEL', KEYS[1])
return 'ok'
`)

// RedisChallengeStore keeps challenges in Redis so multiple API instances
// share one challenge space and restarts do not drop outstanding codes.
type RedisChallengeStore struct {
	client *redis.Client
	grace  time.Duration
}

// NewRedisChallengeStore creates a store. grace is how long an expired
// challenge stays readable so redemption can report ErrExpired instead of
// ErrNoChallenge; after key TTL the two collapse, which is acceptable.
func NewRedisChallengeStore(client *redis.Client, grace time.Duration) *RedisChallengeStore {
	if grace <= 0 {
		grace = 10 * time.Minute
	}
	return &RedisChallengeStore{client: client, grace: grace}
}

func challengeKey(email string) string {
	return "otp:challenge:" + email
}

// Put stores the challenge, replacing any prior one for the email.
func (s *RedisChallengeStore) Put(ctx context.Context, email string, ch Challenge) error {
	value := fmt.Sprintf("%s|%d|%d", ch.Code, ch.IssuedAt.Unix(), ch.ExpiresAt.Unix())
	ttl := time.Until(ch.ExpiresAt) + s.grace
	if err := s.client.Set(ctx, challengeKey(email), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set challenge: %w", err)
	}
	return nil
}

// Redeem runs the server-side script and maps its verdict to sentinels.
func (s *RedisChallengeStore) Redeem(ctx context.Context, email, code string, now time.Time) error {
	res, err := redeemScript.Run(ctx, s.client,
		[]string{challengeKey(email)},
		strings.TrimSpace(code), strconv.FormatInt(now.Unix(), 10),
	).Text()
	if err != nil {
		return fmt.Errorf("redis redeem challenge: %w", err)
	}
	switch res {
	case "ok":
		return nil
	case "none":
		return ErrNoChallenge
	case "expired":
		return ErrExpired
	case "invalid":
		return ErrInvalidCode
	default:
		return fmt.Errorf("unexpected redeem verdict %q", res)
	}
}
