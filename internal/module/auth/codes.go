package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Code is a pending one-time code.
type Code struct {
	Value        string    `json:"value"`
	AttemptsLeft int       `json:"attempts_left"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// CodeStore keeps one-time codes by key until they expire.
type CodeStore interface {
	// Save stores code under key for ttl, replacing any previous code.
	Save(ctx context.Context, key string, code Code, ttl time.Duration) error
	// Get returns the code stored under key, or nil when there is none.
	Get(ctx context.Context, key string) (*Code, error)
	Delete(ctx context.Context, key string) error
	// Attempt checks guess against the code under key in one step. A match
	// removes the code. A miss spends one attempt and removes the code once
	// none are left. It reports false for missing or expired codes.
	Attempt(ctx context.Context, key, guess string) (bool, error)
}

// MemoryCodeStore is a process-local CodeStore.
type MemoryCodeStore struct {
	mu    sync.Mutex
	codes map[string]memoryEntry
	now   func() time.Time
}

type memoryEntry struct {
	code    Code
	evictAt time.Time
}

// NewMemoryCodeStore creates an empty store. A nil now uses time.Now.
func NewMemoryCodeStore(now func() time.Time) *MemoryCodeStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryCodeStore{codes: make(map[string]memoryEntry), now: now}
}

func (s *MemoryCodeStore) Save(_ context.Context, key string, code Code, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("code ttl must be positive, got %s", ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[key] = memoryEntry{code: code, evictAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryCodeStore) Get(_ context.Context, key string) (*Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.codes[key]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.evictAt) {
		delete(s.codes, key)
		return nil, nil
	}
	c := e.code
	return &c, nil
}

func (s *MemoryCodeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, key)
	return nil
}

func (s *MemoryCodeStore) Attempt(_ context.Context, key, guess string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.codes[key]
	if !ok {
		return false, nil
	}
	now := s.now()
	if !now.Before(e.evictAt) || !now.Before(e.code.ExpiresAt) || e.code.AttemptsLeft <= 0 {
		delete(s.codes, key)
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(e.code.Value), []byte(guess)) == 1 {
		delete(s.codes, key)
		return true, nil
	}
	e.code.AttemptsLeft--
	if e.code.AttemptsLeft <= 0 {
		delete(s.codes, key)
	} else {
		s.codes[key] = e
	}
	return false, nil
}

// attemptScript mirrors MemoryCodeStore.Attempt. Expiry is left to the key
// TTL set by Save. It returns 1 on a match.
var attemptScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 0
end
local code = cjson.decode(raw)
if code.attempts_left <= 0 then
	redis.call('DEL', KEYS[1])
	return 0
end
if code.value == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return 1
end
code.attempts_left = code.attempts_left - 1
if code.attempts_left <= 0 then
	redis.call('DEL', KEYS[1])
else
	redis.call('SET', KEYS[1], cjson.encode(code), 'KEEPTTL')
end
return 0
`)

// RedisCodeStore keeps codes in redis as JSON values with a TTL.
type RedisCodeStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCodeStore creates a store whose keys are prefixed with prefix.
func NewRedisCodeStore(rdb *redis.Client, prefix string) *RedisCodeStore {
	return &RedisCodeStore{rdb: rdb, prefix: prefix}
}

func (s *RedisCodeStore) Save(ctx context.Context, key string, code Code, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("code ttl must be positive, got %s", ttl)
	}
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("encode code: %w", err)
	}
	if err := s.rdb.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	return nil
}

func (s *RedisCodeStore) Get(ctx context.Context, key string) (*Code, error) {
	data, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load code: %w", err)
	}
	var c Code
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode code: %w", err)
	}
	return &c, nil
}

func (s *RedisCodeStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}

func (s *RedisCodeStore) Attempt(ctx context.Context, key, guess string) (bool, error) {
	n, err := attemptScript.Run(ctx, s.rdb, []string{s.prefix + key}, guess).Int()
	if err != nil {
		return false, fmt.Errorf("attempt code: %w", err)
	}
	return n == 1, nil
}
