package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"callfence/pkg/platform/sentinel"
)

const credentialKey = "cred:admin"

// RedisStore persists the admin credential in Redis so monitoring can resume
// automatically after a process restart.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed credential store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, cred *Credential) error {
	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := s.client.Set(ctx, credentialKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*Credential, error) {
	raw, err := s.client.Get(ctx, credentialKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("admin credential: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &cred, nil
}
