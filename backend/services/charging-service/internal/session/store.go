// Package session keeps logged-in users in Redis and identifies them by a
// signed cookie that carries only the session id.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chargeway/backend/services/charging-service/internal/models"
)

const (
	// DefaultTTL is how long an idle session survives.
	DefaultTTL    = 24 * time.Hour
	defaultPrefix = "sess:"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session: not found")

// Data is what a session remembers about its user.
type Data struct {
	UserID    models.ID   `json:"userId"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Store persists sessions as JSON strings under sess:<sid>.
type Store struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewStore wraps a redis client. A non-positive ttl falls back to DefaultTTL.
func NewStore(client redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, prefix: defaultPrefix, ttl: ttl}
}

// TTL returns the session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) key(sid string) string { return s.prefix + sid }

// Save writes the session and resets its expiry.
func (s *Store) Save(ctx context.Context, sid string, data Data) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sid), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

// Load reads the session and slides its expiry.
func (s *Store) Load(ctx context.Context, sid string) (*Data, error) {
	raw, err := s.client.GetEx(ctx, s.key(sid), s.ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: load: %w", err)
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &data, nil
}

// Delete removes the session. Deleting an unknown session is not an error.
func (s *Store) Delete(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, s.key(sid)).Err(); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}
