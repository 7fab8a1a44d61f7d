package encounter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinicflow/clinic/internal/domain/charting"
)

var ErrDraftNotFound = errors.New("encounter draft not found")

const draftKeyPrefix = "encounter:draft:"

// DraftStore keeps in-progress drafts between requests.
type DraftStore interface {
	Save(ctx context.Context, d *Draft) error
	Load(ctx context.Context, sessionID uuid.UUID) (*Draft, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

// RedisStore keeps drafts as JSON documents that expire after ttl of
// inactivity.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func draftKey(id uuid.UUID) string { return draftKeyPrefix + id.String() }

func (s *RedisStore) Save(ctx context.Context, d *Draft) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := s.client.Set(ctx, draftKey(d.SessionID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("store draft %s: %w", d.SessionID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID uuid.UUID) (*Draft, error) {
	b, err := s.client.Get(ctx, draftKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load draft %s: %w", sessionID, err)
	}
	var d Draft
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", sessionID, err)
	}
	if d.Chart == nil {
		d.Chart = make(map[int]charting.ToothRecord)
	}
	return &d, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	return s.client.Del(ctx, draftKey(sessionID)).Err()
}
