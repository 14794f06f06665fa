package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any transport-level Redis failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when a session id has no live record.
var ErrSessionNotFound = errors.New("session not found")

const minSlidingTTL = time.Second

// deleteScript removes the session blob and reports whether it existed.
const deleteScript = `
local existed = redis.call("EXISTS", KEYS[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteLua = redis.NewScript(deleteScript)

// Store is a Redis-backed session store. Sessions live under
// "<prefix>:<id>" with an idle TTL that slides on every read, capped by an
// absolute lifetime counted from creation.
type Store struct {
	redis         redis.UniversalClient
	prefix        string
	idleTTL       time.Duration
	absoluteTTL   time.Duration
	sliding       bool
	jitterEnabled bool
	jitterRange   time.Duration
	now           func() time.Time
}

// StoreConfig holds the expiry policy of a Store.
type StoreConfig struct {
	Prefix            string
	IdleTTL           time.Duration
	AbsoluteLifetime  time.Duration
	SlidingExpiration bool
	JitterEnabled     bool
	JitterRange       time.Duration
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(client redis.UniversalClient, cfg StoreConfig) *Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "sess"
	}
	return &Store{
		redis:         client,
		prefix:        prefix,
		idleTTL:       cfg.IdleTTL,
		absoluteTTL:   cfg.AbsoluteLifetime,
		sliding:       cfg.SlidingExpiration,
		jitterEnabled: cfg.JitterEnabled,
		jitterRange:   cfg.JitterRange,
		now:           time.Now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// New creates an anonymous session with a fresh id. It is not persisted
// until Save is called.
func (s *Store) New() (*Session, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &Session{
		ID:            id,
		SessionData:   map[string]any{},
		CreatedAt:     now.UnixMilli(),
		LastAccess:    now.UnixMilli(),
		SchemaVersion: CurrentSchemaVersion,
	}
	if s.absoluteTTL > 0 {
		sess.ExpiresAt = now.Add(s.absoluteTTL).UnixMilli()
	}
	return sess, nil
}

// Save persists sess. The record expires after the idle TTL, or earlier if
// the absolute lifetime ends first.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess == nil || !ValidID(sess.ID) {
		return errInvalidID
	}

	ttl, ok := s.ttlFor(sess, s.now())
	if !ok {
		return ErrSessionNotFound
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a session by id and records the access. With sliding
// expiration enabled the idle TTL is renewed.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	if !ValidID(sessionID) {
		return nil, ErrSessionNotFound
	}
	key := s.key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = sessionID

	now := s.now()
	ttl, ok := s.ttlFor(sess, now)
	if !ok {
		if err := s.Delete(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}
	sess.LastAccess = now.UnixMilli()

	if s.sliding {
		if err := s.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return sess, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if !ValidID(sessionID) {
		return nil
	}
	if err := deleteLua.Run(ctx, s.redis, []string{s.key(sessionID)}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping checks connectivity and returns the round-trip time.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := s.now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// ttlFor computes the next TTL for sess. ok is false when the absolute
// lifetime has already ended.
func (s *Store) ttlFor(sess *Session, now time.Time) (time.Duration, bool) {
	remaining := time.Duration(0)
	if sess.ExpiresAt > 0 {
		remaining = time.UnixMilli(sess.ExpiresAt).Sub(now)
		if remaining <= 0 {
			return 0, false
		}
	}

	next := s.idleTTL
	if next > 0 && s.jitterEnabled && s.jitterRange > 0 {
		if jitter, err := randomJitter(s.jitterRange); err == nil {
			next += jitter
		}
	}

	switch {
	case next <= 0:
		next = remaining
	case remaining > 0 && next > remaining:
		next = remaining
	}

	if next > 0 && next < minSlidingTTL {
		next = minSlidingTTL
	}
	return next, true
}

func randomJitter(maxJitter time.Duration) (time.Duration, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxJitter)+1))
	if err != nil {
		return 0, err
	}
	return time.Duration(n.Int64()), nil
}
