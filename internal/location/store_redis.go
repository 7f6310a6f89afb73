package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"callfence/internal/geofence"
	"callfence/pkg/platform/sentinel"
)

const locationKeyPrefix = "loc:user:"

// RedisStore shares the latest per-user record across instances. This is the
// production-recommended implementation when the HTTP tier that ingests
// reports scales past one node.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed location store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// redisRecord is the stored JSON shape; field names are part of the key
// schema, change with care.
type redisRecord struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lon"`
	Verdict    string    `json:"verdict"`
	ReportedAt time.Time `json:"reported_at"`
	RecordedAt time.Time `json:"recorded_at"`
	FirstSeen  time.Time `json:"first_seen"`
}

func (s *RedisStore) Upsert(ctx context.Context, record *Record) error {
	key := locationKeyPrefix + record.UserID

	// Watch gives last-write-wins per user without clobbering FirstSeen.
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		prev, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			record.FirstSeen = record.RecordedAt
		case err != nil:
			return err
		default:
			var old redisRecord
			if jsonErr := json.Unmarshal(prev, &old); jsonErr == nil {
				record.FirstSeen = old.FirstSeen
				if record.Email == "" {
					record.Email = old.Email
				}
			}
		}

		payload, err := json.Marshal(redisRecord{
			UserID:     record.UserID,
			Email:      record.Email,
			Latitude:   record.Latitude,
			Longitude:  record.Longitude,
			Verdict:    string(record.Verdict),
			ReportedAt: record.ReportedAt,
			RecordedAt: record.RecordedAt,
			FirstSeen:  record.FirstSeen,
		})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("upsert location record: %w", err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, userID string) (*Record, error) {
	raw, err := s.client.Get(ctx, locationKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("location record for %s: %w", userID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find location record: %w", err)
	}

	var stored redisRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode location record: %w", err)
	}
	return &Record{
		UserID:     stored.UserID,
		Email:      stored.Email,
		Latitude:   stored.Latitude,
		Longitude:  stored.Longitude,
		Verdict:    geofence.Verdict(stored.Verdict),
		ReportedAt: stored.ReportedAt,
		RecordedAt: stored.RecordedAt,
		FirstSeen:  stored.FirstSeen,
	}, nil
}
