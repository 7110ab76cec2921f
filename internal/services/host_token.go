package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/models"
)

// Authorizer decides whether a caller may act as a game's host.
type Authorizer interface {
	IsHost(ctx context.Context, gameID string, caller models.Caller) bool
}

// HostTokenStore issues one secret per game and keeps only its bcrypt hash.
// With a Redis backend the hashes are shared, so a game restored on another
// replica keeps its host.
type HostTokenStore struct {
	mu     sync.RWMutex
	hashes map[string][]byte
	cost   int

	backend RedisClient
	ttl     time.Duration
}

func hostTokenKey(gameID string) string {
	return "bingo:game:" + gameID + ":host"
}

func NewHostTokenStore(cost int) *HostTokenStore {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &HostTokenStore{hashes: make(map[string][]byte), cost: cost}
}

func (s *HostTokenStore) SetBackend(backend RedisClient, ttl time.Duration) {
	s.backend = backend
	s.ttl = ttl
}

// Issue creates a new token for gameID, replacing any previous one.
func (s *HostTokenStore) Issue(ctx context.Context, gameID string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate host token: %w", err)
	}
	token := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash host token: %w", err)
	}

	if s.backend != nil {
		if err := s.backend.Set(ctx, hostTokenKey(gameID), hash, s.ttl); err != nil {
			return "", fmt.Errorf("store host token: %w", err)
		}
	}

	s.mu.Lock()
	s.hashes[gameID] = hash
	s.mu.Unlock()
	return token, nil
}

func (s *HostTokenStore) Verify(ctx context.Context, gameID, token string) bool {
	if token == "" {
		return false
	}
	hash, ok := s.lookup(ctx, gameID)
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(token)) == nil
}

func (s *HostTokenStore) lookup(ctx context.Context, gameID string) ([]byte, bool) {
	s.mu.RLock()
	hash, ok := s.hashes[gameID]
	s.mu.RUnlock()
	if ok || s.backend == nil {
		return hash, ok
	}

	raw, err := s.backend.Get(ctx, hostTokenKey(gameID))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.Warn("Host token lookup failed", map[string]interface{}{
				"game_id": gameID,
				"error":   err.Error(),
			})
		}
		return nil, false
	}
	hash = []byte(raw)
	s.mu.Lock()
	s.hashes[gameID] = hash
	s.mu.Unlock()
	return hash, true
}

// Forget revokes the game's token everywhere.
func (s *HostTokenStore) Forget(ctx context.Context, gameID string) {
	s.Release(gameID)
	if s.backend != nil {
		_ = s.backend.Del(ctx, hostTokenKey(gameID))
	}
}

// Release drops the cached hash. A shared copy in Redis is kept and is read
// back on the next Verify.
func (s *HostTokenStore) Release(gameID string) {
	s.mu.Lock()
	delete(s.hashes, gameID)
	s.mu.Unlock()
}

func (s *HostTokenStore) cached() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hashes)
}

// HostLookup reports the host player id of a game.
type HostLookup interface {
	HostOf(gameID string) (string, bool)
}

// HostTokenAuthorizer accepts a caller whose player id is the game's host and
// whose token matches the one issued at creation.
type HostTokenAuthorizer struct {
	tokens *HostTokenStore
	hosts  HostLookup
}

func NewHostTokenAuthorizer(tokens *HostTokenStore, hosts HostLookup) *HostTokenAuthorizer {
	return &HostTokenAuthorizer{tokens: tokens, hosts: hosts}
}

func (a *HostTokenAuthorizer) IsHost(ctx context.Context, gameID string, caller models.Caller) bool {
	hostID, ok := a.hosts.HostOf(gameID)
	if !ok || hostID == "" || caller.PlayerID != hostID {
		return false
	}
	return a.tokens.Verify(ctx, gameID, caller.HostToken)
}
