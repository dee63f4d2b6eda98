package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/tod-intent/internal/models"
	"github.com/redis/go-redis/v9"
)

const maxUpdateAttempts = 5

// ErrConcurrentUpdate is returned when a session kept changing under a write.
var ErrConcurrentUpdate = errors.New("session was modified concurrently")

// RedisStore implements Store interface using Redis
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration // Session TTL (time to live)
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

// sessionKey generates Redis key for a session
func (r *RedisStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// LoadSession loads a session from Redis. A missing key yields an empty session.
func (r *RedisStore) LoadSession(ctx context.Context, sessionID string) (*SessionData, error) {
	return r.load(ctx, r.client, sessionID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) load(ctx context.Context, g getter, sessionID string) (*SessionData, error) {
	data, err := g.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return emptySession(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session from Redis: %w", err)
	}

	var session SessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session data: %w", err)
	}
	return &session, nil
}

// SaveMessage appends a message to a session
func (r *RedisStore) SaveMessage(ctx context.Context, sessionID, userID string, msg models.Message) error {
	return r.update(ctx, sessionID, func(session *SessionData) {
		appendMessage(session, userID, msg)
	})
}

// update applies mutate to the stored session inside a WATCH transaction and
// writes it back with a fresh TTL. Lost races are retried.
func (r *RedisStore) update(ctx context.Context, sessionID string, mutate func(*SessionData)) error {
	key := r.sessionKey(sessionID)
	txf := func(tx *redis.Tx) error {
		session, err := r.load(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		mutate(session)

		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to save session to Redis: %w", err)
		}
		return nil
	}
	return fmt.Errorf("session %s: %w", sessionID, ErrConcurrentUpdate)
}

// GetMessages retrieves all messages for a session
func (r *RedisStore) GetMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	session, err := r.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return session.Messages, nil
}

// ClearSession removes a session from Redis
func (r *RedisStore) ClearSession(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	return nil
}

// SessionExists checks if a session exists in Redis
func (r *RedisStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	exists, err := r.client.Exists(ctx, r.sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}

	return exists > 0, nil
}

// UpdateActivity updates the last activity timestamp and refreshes TTL
func (r *RedisStore) UpdateActivity(ctx context.Context, sessionID string) error {
	return r.update(ctx, sessionID, func(session *SessionData) {
		session.Metadata.LastActivity = time.Now()
	})
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Ping verifies the Redis connection is alive
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
