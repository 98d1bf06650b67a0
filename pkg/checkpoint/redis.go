package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	checkpointKeyPrefix = "council:checkpoints"
	latestKeyPrefix     = "council:latest"
)

// RedisStore is the shared checkpoint backend for multi-process runs.
// Each checkpoint lives at council:checkpoints:{thread}:{step} and the
// latest step index at council:latest:{thread}.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies connectivity. ttl 0 means
// checkpoints never expire.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: redis ping: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Initialize implements Store. Redis needs no schema.
func (s *RedisStore) Initialize(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func checkpointKey(threadID string, step int) string {
	return fmt.Sprintf("%s:%s:%d", checkpointKeyPrefix, threadID, step)
}

func latestKey(threadID string) string {
	return fmt.Sprintf("%s:%s", latestKeyPrefix, threadID)
}

// Save implements Store. The checkpoint value and the latest-step index
// are written in one transaction so readers never see a dangling index.
func (s *RedisStore) Save(ctx context.Context, cp Checkpoint) error {
	defer observe("redis", "save")()
	if _, err := encodeState(cp); err != nil {
		return err
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, checkpointKey(cp.ThreadID, cp.Step), data, s.ttl)
		pipe.Set(ctx, latestKey(cp.ThreadID), cp.Step, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("checkpoint: redis save: %w", err)
	}
	return nil
}

// Load implements Store: resolve the latest-step index, then fetch.
func (s *RedisStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	defer observe("redis", "load")()
	stepStr, err := s.client.Get(ctx, latestKey(threadID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: redis load latest: %w", err)
	}
	step, err := strconv.Atoi(stepStr)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: corrupt latest index %q: %w", stepStr, err)
	}
	return s.LoadAtStep(ctx, threadID, step)
}

// LoadAtStep implements Store.
func (s *RedisStore) LoadAtStep(ctx context.Context, threadID string, step int) (*Checkpoint, error) {
	defer observe("redis", "load_at_step")()
	data, err := s.client.Get(ctx, checkpointKey(threadID, step)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: redis load: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint: decode: %w", err)
	}
	return &cp, nil
}

// ListCheckpoints implements Store. SCAN order is unspecified, so results
// are sorted by step before returning.
func (s *RedisStore) ListCheckpoints(ctx context.Context, threadID string) ([]Checkpoint, error) {
	defer observe("redis", "list")()
	keys, err := s.scanKeys(ctx, fmt.Sprintf("%s:%s:*", checkpointKeyPrefix, threadID))
	if err != nil {
		return nil, err
	}
	var out []Checkpoint
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("checkpoint: redis list get: %w", err)
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return nil, fmt.Errorf("checkpoint: decode %s: %w", key, err)
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// DeleteThread implements Store.
func (s *RedisStore) DeleteThread(ctx context.Context, threadID string) error {
	defer observe("redis", "delete_thread")()
	keys, err := s.scanKeys(ctx, fmt.Sprintf("%s:%s:*", checkpointKeyPrefix, threadID))
	if err != nil {
		return err
	}
	keys = append(keys, latestKey(threadID))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("checkpoint: redis delete: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Client exposes the underlying connection for the distributed lock.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		// Thread IDs may contain colons; the step is always the final
		// numeric segment.
		idx := strings.LastIndex(key, ":")
		if idx < 0 {
			continue
		}
		if _, err := strconv.Atoi(key[idx+1:]); err != nil {
			continue
		}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: redis scan: %w", err)
	}
	return keys, nil
}
