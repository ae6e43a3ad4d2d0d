package presence

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
)

const redisKeyPrefix = "presence:"

// RedisStore keeps presence entries in Redis hashes, one hash per channel.
// Useful when presence should survive a process restart or be shared by a
// load-balanced pair; the broker itself stays process-local either way.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("[PRESENCE] Connected to Redis")
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func channelKey(channel string) string {
	return redisKeyPrefix + channel
}

func userField(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func (s *RedisStore) Put(ctx context.Context, entry Entry) (bool, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("failed to marshal entry: %w", err)
	}

	key := channelKey(entry.Channel)
	field := userField(entry.UserID)

	exists, err := s.rdb.HExists(ctx, key, field).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check entry: %w", err)
	}
	if err := s.rdb.HSet(ctx, key, field, payload).Err(); err != nil {
		return false, fmt.Errorf("failed to store entry: %w", err)
	}
	return !exists, nil
}

func (s *RedisStore) Touch(ctx context.Context, channel string, userID int64, at time.Time) (bool, error) {
	key := channelKey(channel)
	field := userField(userID)

	raw, err := s.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return false, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	entry.LastHeartbeatAt = at

	payload, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("failed to marshal entry: %w", err)
	}
	if err := s.rdb.HSet(ctx, key, field, payload).Err(); err != nil {
		return false, fmt.Errorf("failed to store entry: %w", err)
	}
	return true, nil
}

func (s *RedisStore) Remove(ctx context.Context, channel string, userID int64) (bool, error) {
	removed, err := s.rdb.HDel(ctx, channelKey(channel), userField(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to remove entry: %w", err)
	}
	return removed > 0, nil
}

func (s *RedisStore) List(ctx context.Context, channel string) ([]Entry, error) {
	raw, err := s.rdb.HGetAll(ctx, channelKey(channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, payload := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			slog.Error("[PRESENCE] Skipping corrupt entry", "channel", channel, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) Expire(ctx context.Context, olderThan time.Time) ([]Entry, error) {
	var expired []Entry

	iter := s.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return expired, fmt.Errorf("failed to scan %s: %w", key, err)
		}

		for field, payload := range raw {
			var entry Entry
			if err := json.Unmarshal([]byte(payload), &entry); err != nil {
				slog.Error("[PRESENCE] Skipping corrupt entry", "key", key, "error", err)
				continue
			}
			if entry.LastHeartbeatAt.Before(olderThan) {
				if err := s.rdb.HDel(ctx, key, field).Err(); err != nil {
					return expired, fmt.Errorf("failed to remove expired entry: %w", err)
				}
				expired = append(expired, entry)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return expired, fmt.Errorf("failed to scan presence keys: %w", err)
	}
	return expired, nil
}
