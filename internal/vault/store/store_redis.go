package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"receiptvault/internal/sentinel"
	"receiptvault/internal/vault/models"
)

const (
	keyPrefix = "receiptvault"
	mgetBatch = 256
	defaultNS = "default"
)

// RedisStore keeps each artifact as an encoded string plus an index set of
// ids. Writes update both in one MULTI/EXEC.
type RedisStore struct {
	client    redis.Cmdable
	namespace string
}

// NewRedis constructs a redis-backed store. An empty namespace uses "default".
func NewRedis(client redis.Cmdable, namespace string) *RedisStore {
	if namespace == "" {
		namespace = defaultNS
	}
	return &RedisStore{client: client, namespace: namespace}
}

func (s *RedisStore) artifactKey(id string) string {
	return fmt.Sprintf("%s:%s:artifact:%s", keyPrefix, s.namespace, id)
}

func (s *RedisStore) indexKey() string {
	return fmt.Sprintf("%s:%s:artifacts", keyPrefix, s.namespace)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Artifact, error) {
	data, err := s.client.Get(ctx, s.artifactKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return Decode(data)
}

func (s *RedisStore) Put(ctx context.Context, artifact *models.Artifact) error {
	data, err := Encode(artifact)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.artifactKey(artifact.ID), data, 0)
		pipe.SAdd(ctx, s.indexKey(), artifact.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.artifactKey(id))
		pipe.SRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*models.Artifact, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list artifact ids: %w", err)
	}

	out := make([]*models.Artifact, 0, len(ids))
	for start := 0; start < len(ids); start += mgetBatch {
		end := min(start+mgetBatch, len(ids))
		keys := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, s.artifactKey(id))
		}
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("load artifacts: %w", err)
		}
		for _, v := range vals {
			// Index entries whose value has gone are skipped.
			str, ok := v.(string)
			if !ok {
				continue
			}
			a, err := Decode([]byte(str))
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
	}
	return out, nil
}
