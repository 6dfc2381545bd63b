package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// redisStore implements Store using Redis sets.
//
// Key patterns:
//
//	live:session:{session_id}:participants  SET<participant_id>
type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed presence store.
func NewRedisStore(cfg RedisConfig) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisStore{client: client}, nil
}

func sessionParticipantsKey(sessionID string) string {
	return fmt.Sprintf("live:session:%s:participants", sessionID)
}

func (s *redisStore) AddParticipant(ctx context.Context, sessionID, participantID string) error {
	return s.client.SAdd(ctx, sessionParticipantsKey(sessionID), participantID).Err()
}

func (s *redisStore) RemoveParticipant(ctx context.Context, sessionID, participantID string) error {
	return s.client.SRem(ctx, sessionParticipantsKey(sessionID), participantID).Err()
}

func (s *redisStore) Count(ctx context.Context, sessionID string) (int, error) {
	n, err := s.client.SCard(ctx, sessionParticipantsKey(sessionID)).Result()
	return int(n), err
}

func (s *redisStore) ClearSession(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionParticipantsKey(sessionID)).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
