package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionRegistry tracks which issued session tokens are still honoured.
type SessionRegistry interface {
	Register(ctx context.Context, accountID, sessionID string, ttl time.Duration) error
	Active(ctx context.Context, accountID, sessionID string) (bool, error)
	RevokeAll(ctx context.Context, accountID string) error
}

const (
	sessionNamespace        = "session"
	accountSessionNamespace = "account_sessions"
)

type RedisSessions struct {
	client redis.UniversalClient
}

func NewRedisSessions(client redis.UniversalClient) *RedisSessions {
	return &RedisSessions{client: client}
}

func sessionKey(sessionID string) string {
	return sessionNamespace + ":" + sessionID
}

func accountSessionsKey(accountID string) string {
	return accountSessionNamespace + ":" + accountID
}

func (s *RedisSessions) Register(ctx context.Context, accountID, sessionID string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sessionID), accountID, ttl)
	pipe.SAdd(ctx, accountSessionsKey(accountID), sessionID)
	pipe.Expire(ctx, accountSessionsKey(accountID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisSessions) Active(ctx context.Context, accountID, sessionID string) (bool, error) {
	owner, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return owner == accountID, nil
}

func (s *RedisSessions) RevokeAll(ctx context.Context, accountID string) error {
	members, err := s.client.SMembers(ctx, accountSessionsKey(accountID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	keys := make([]string, 0, len(members)+1)
	for _, sessionID := range members {
		keys = append(keys, sessionKey(sessionID))
	}
	keys = append(keys, accountSessionsKey(accountID))
	return s.client.Del(ctx, keys...).Err()
}

type memorySession struct {
	accountID string
	expiresAt time.Time
}

// MemorySessions is the registry used when no Redis address is configured.
// Sessions do not survive a restart.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]memorySession), now: time.Now}
}

func (s *MemorySessions) Register(_ context.Context, accountID, sessionID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, session := range s.sessions {
		if !now.Before(session.expiresAt) {
			delete(s.sessions, id)
		}
	}
	s.sessions[sessionID] = memorySession{accountID: accountID, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemorySessions) Active(_ context.Context, accountID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || !s.now().Before(session.expiresAt) {
		return false, nil
	}
	return session.accountID == accountID, nil
}

func (s *MemorySessions) RevokeAll(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if session.accountID == accountID {
			delete(s.sessions, id)
		}
	}
	return nil
}
