package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const storeKeyPrefix = "matches:store:"

// maxStoreRetries bounds optimistic-lock retries on concurrent writers.
const maxStoreRetries = 5

// RedisStore keeps one hash per user: field = match id, value = JSON match.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a MatchStore backed by Redis.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func storeKey(userID string) string {
	return storeKeyPrefix + userID
}

func (s *RedisStore) Replace(ctx context.Context, userID string, matches []Match) ([]Match, error) {
	key := storeKey(userID)
	var out []Match

	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		previous, err := decodeMatches(raw)
		if err != nil {
			return err
		}
		out = carryFlags(previous, matches)

		fields := make(map[string]any, len(out))
		for _, m := range out {
			data, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", m.ID, err)
			}
			fields[m.ID] = data
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(fields) > 0 {
				pipe.HSet(ctx, key, fields)
			}
			return nil
		})
		return err
	}

	if err := s.watch(ctx, key, txf); err != nil {
		return nil, fmt.Errorf("matchstore: replace %s: %w", userID, err)
	}
	return out, nil
}

func (s *RedisStore) List(ctx context.Context, userID string) ([]Match, error) {
	raw, err := s.client.HGetAll(ctx, storeKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("matchstore: list %s: %w", userID, err)
	}
	out, err := decodeMatches(raw)
	if err != nil {
		return nil, fmt.Errorf("matchstore: list %s: %w", userID, err)
	}
	return out, nil
}

func (s *RedisStore) Get(ctx context.Context, userID, matchID string) (Match, error) {
	data, err := s.client.HGet(ctx, storeKey(userID), matchID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Match{}, ErrMatchNotFound
	}
	if err != nil {
		return Match{}, fmt.Errorf("matchstore: get %s/%s: %w", userID, matchID, err)
	}
	var m Match
	if err := json.Unmarshal(data, &m); err != nil {
		return Match{}, fmt.Errorf("matchstore: decode %s/%s: %w", userID, matchID, err)
	}
	return m, nil
}

func (s *RedisStore) SetPassed(ctx context.Context, userID, matchID string) error {
	return s.update(ctx, userID, matchID, func(m *Match) { m.Passed = true })
}

func (s *RedisStore) SetViewed(ctx context.Context, userID, matchID string) error {
	return s.update(ctx, userID, matchID, func(m *Match) { m.Viewed = true })
}

func (s *RedisStore) update(ctx context.Context, userID, matchID string, fn func(*Match)) error {
	key := storeKey(userID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.HGet(ctx, key, matchID).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrMatchNotFound
		}
		if err != nil {
			return err
		}
		var m Match
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("decode %s: %w", matchID, err)
		}
		fn(&m)
		updated, err := json.Marshal(m)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, matchID, updated)
			return nil
		})
		return err
	}

	err := s.watch(ctx, key, txf)
	if errors.Is(err, ErrMatchNotFound) {
		return ErrMatchNotFound
	}
	if err != nil {
		return fmt.Errorf("matchstore: update %s/%s: %w", userID, matchID, err)
	}
	return nil
}

func (s *RedisStore) watch(ctx context.Context, key string, txf func(*redis.Tx) error) error {
	var err error
	for i := 0; i < maxStoreRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func decodeMatches(raw map[string]string) ([]Match, error) {
	out := make([]Match, 0, len(raw))
	for id, v := range raw {
		var m Match
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	Rank(out)
	return out, nil
}
