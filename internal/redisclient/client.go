package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"supermarket/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseLockScript deletes a lock only while it still holds the caller's token
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// Client stores login sessions and short-lived locks in Redis
type Client struct {
	rdb           *redis.Client
	sessionTTL    time.Duration
	releaseScript *redis.Script
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(addr, password string, db int, sessionTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		sessionTTL:    sessionTTL,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks that Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func userSessionsKey(userID int64) string {
	return fmt.Sprintf("user_sessions:%d", userID)
}

// CreateSession stores a session under a new opaque token and returns the token
func (c *Client) CreateSession(ctx context.Context, session *models.Session) (string, error) {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	token := uuid.New().String()

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(token), payload, c.sessionTTL)
	pipe.SAdd(ctx, userSessionsKey(session.UserID), token)
	pipe.Expire(ctx, userSessionsKey(session.UserID), c.sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	return token, nil
}

// GetSession resolves a token. Unknown or expired tokens yield ErrUnauthorized.
func (c *Client) GetSession(ctx context.Context, token string) (*models.Session, error) {
	payload, err := c.rdb.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: session expired or unknown", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// DeleteSession removes a token. Deleting an unknown token is not an error.
func (c *Client) DeleteSession(ctx context.Context, token string) error {
	session, err := c.GetSession(ctx, token)
	if errors.Is(err, models.ErrUnauthorized) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(token))
	pipe.SRem(ctx, userSessionsKey(session.UserID), token)
	_, err = pipe.Exec(ctx)
	return err
}

// RevokeUserSessions removes every session of a user
func (c *Client) RevokeUserSessions(ctx context.Context, userID int64) error {
	tokens, err := c.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, sessionKey(token))
	}
	keys = append(keys, userSessionsKey(userID))

	return c.rdb.Del(ctx, keys...).Err()
}

func lockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}

// AcquireLock takes a distributed lock for ttl. The returned token identifies the
// holder and must be passed to ReleaseLock; ok is false when someone else holds it.
func (c *Client) AcquireLock(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = c.rdb.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock releases a lock held with token. A lock that expired and was taken
// by another holder is left alone.
func (c *Client) ReleaseLock(ctx context.Context, name, token string) error {
	return c.releaseScript.Run(ctx, c.rdb, []string{lockKey(name)}, token).Err()
}
