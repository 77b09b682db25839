package store

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// Cache mirrors active buzzer sessions to Valkey
type Cache struct {
	client    valkey.Client
	activeTTL time.Duration
}

// NewCache creates a new cache instance
func NewCache(ctx context.Context, url, password string, db int, activeTTL time.Duration) (*Cache, error) {
	opts := valkey.ClientOption{
		InitAddress: []string{url},
		SelectDB:    db,
	}
	if password != "" {
		opts.Password = password
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Test connection
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}

	return &Cache{
		client:    client,
		activeTTL: activeTTL,
	}, nil
}

// Close closes the cache connection
func (c *Cache) Close() {
	c.client.Close()
}

// Ping checks cache connectivity
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

func activeSessionKey(sessionID string) string {
	return fmt.Sprintf("buzzer:session:active:%s", sessionID)
}

// SetActiveSession stores a session hash that expires with the session table
func (c *Cache) SetActiveSession(ctx context.Context, sessionID string, data map[string]string) error {
	if len(data) == 0 {
		return nil
	}
	key := activeSessionKey(sessionID)

	hset := c.client.B().Hset().Key(key).FieldValue()
	for k, v := range data {
		hset = hset.FieldValue(k, v)
	}

	for _, resp := range c.client.DoMulti(ctx,
		hset.Build(),
		c.client.B().Expire().Key(key).Seconds(int64(c.activeTTL.Seconds())).Build(),
	) {
		if err := resp.Error(); err != nil {
			return err
		}
	}
	return nil
}

// GetActiveSession retrieves a mirrored session hash
func (c *Cache) GetActiveSession(ctx context.Context, sessionID string) (map[string]string, error) {
	return c.client.Do(ctx, c.client.B().Hgetall().Key(activeSessionKey(sessionID)).Build()).AsStrMap()
}

// RemoveActiveSession removes a session from the mirror
func (c *Cache) RemoveActiveSession(ctx context.Context, sessionID string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(activeSessionKey(sessionID)).Build()).Error()
}

// ActiveSessionCount returns the number of mirrored sessions
func (c *Cache) ActiveSessionCount(ctx context.Context) (int64, error) {
	keys, err := c.client.Do(ctx, c.client.B().Keys().Pattern(activeSessionKey("*")).Build()).AsStrSlice()
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}
