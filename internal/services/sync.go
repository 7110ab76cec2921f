package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/models"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotSync persists game snapshots and fans them out to other replicas.
// Conflicts resolve as last write wins.
type SnapshotSync interface {
	Write(ctx context.Context, gameID string, snap models.GameSnapshot) error
	Load(ctx context.Context, gameID string) (models.GameSnapshot, error)
	Delete(ctx context.Context, gameID string) error
	Subscribe(ctx context.Context, gameID string, onChange func(models.GameSnapshot)) (func(), error)
}

func snapshotKey(gameID string) string {
	return "bingo:game:" + gameID
}

func snapshotChannel(gameID string) string {
	return "bingo:game:" + gameID + ":updates"
}

// RedisSnapshotSync stores each game's latest snapshot under
// bingo:game:<id> and announces it on bingo:game:<id>:updates.
type RedisSnapshotSync struct {
	redis RedisClient
	ttl   time.Duration
}

func NewRedisSnapshotSync(redis RedisClient, ttl time.Duration) *RedisSnapshotSync {
	return &RedisSnapshotSync{redis: redis, ttl: ttl}
}

func (s *RedisSnapshotSync) Write(ctx context.Context, gameID string, snap models.GameSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.redis.Set(ctx, snapshotKey(gameID), payload, s.ttl); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	if err := s.redis.Publish(ctx, snapshotChannel(gameID), payload); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func (s *RedisSnapshotSync) Load(ctx context.Context, gameID string) (models.GameSnapshot, error) {
	raw, err := s.redis.Get(ctx, snapshotKey(gameID))
	if errors.Is(err, redis.Nil) {
		return models.GameSnapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return models.GameSnapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	var snap models.GameSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return models.GameSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Delete drops the stored snapshot.
func (s *RedisSnapshotSync) Delete(ctx context.Context, gameID string) error {
	return s.redis.Del(ctx, snapshotKey(gameID))
}

// Subscribe calls onChange for every snapshot published for the game until the
// returned stop function is called or ctx is done. Undecodable messages are
// logged and skipped.
func (s *RedisSnapshotSync) Subscribe(ctx context.Context, gameID string, onChange func(models.GameSnapshot)) (func(), error) {
	sub, err := s.redis.Subscribe(ctx, snapshotChannel(gameID))
	if err != nil {
		return nil, fmt.Errorf("subscribe to game %s: %w", gameID, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			_ = sub.Close()
		})
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub.Messages():
				if !ok {
					return
				}
				var snap models.GameSnapshot
				if err := json.Unmarshal([]byte(raw), &snap); err != nil {
					logging.Warn("Dropping undecodable snapshot", map[string]interface{}{
						"game_id": gameID,
						"error":   err.Error(),
					})
					continue
				}
				onChange(snap)
			}
		}
	}()

	return stop, nil
}
