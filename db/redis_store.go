package db

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each document in a hash (version, body, updated_at) and
// tracks the keys of a collection in a set. Writes use WATCH/MULTI.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions are the connection settings for NewRedisStore.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

func NewRedisStore(options RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     options.Address,
		Password: options.Password,
		DB:       options.DB,
	})
	return &RedisStore{client: client}
}

// Ping tests connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func documentKey(collection, key string) string {
	return collection + ":" + key
}

func indexKey(collection string) string {
	return "idx:" + collection
}

func (s *RedisStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	return getRedisDocument(ctx, s.client, collection, key)
}

type hashGetter interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func getRedisDocument(ctx context.Context, c hashGetter, collection, key string) (*Document, error) {
	fields, err := c.HGetAll(ctx, documentKey(collection, key)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", collection, key)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return parseRedisDocument(key, fields)
}

func parseRedisDocument(key string, fields map[string]string) (*Document, error) {
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "parse version of %s", key)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return nil, errors.Wrapf(err, "parse updated_at of %s", key)
	}
	return &Document{Key: key, Version: version, Data: []byte(fields["body"]), UpdatedAt: updatedAt}, nil
}

func (s *RedisStore) Create(ctx context.Context, collection, key string, data []byte) error {
	k := documentKey(collection, key)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, k).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, "version", 1, "body", data, "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
			pipe.SAdd(ctx, indexKey(collection), key)
			return nil
		})
		return err
	}, k)
	switch {
	case err == nil, errors.Is(err, ErrAlreadyExists):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return ErrVersionConflict
	}
	return errors.Wrapf(err, "create %s/%s", collection, key)
}

func (s *RedisStore) CompareAndUpdate(ctx context.Context, collection, key string, expectedVersion int64, data []byte) error {
	k := documentKey(collection, key)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := getRedisDocument(ctx, tx, collection, key)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, "version", current.Version+1, "body", data, "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
			return nil
		})
		return err
	}, k)
	switch {
	case err == nil, errors.Is(err, ErrNotFound), errors.Is(err, ErrVersionConflict):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return ErrVersionConflict
	}
	return errors.Wrapf(err, "update %s/%s", collection, key)
}

func (s *RedisStore) List(ctx context.Context, collection string) ([]*Document, error) {
	keys, err := s.client.SMembers(ctx, indexKey(collection)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", collection)
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, documentKey(collection, key))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", collection)
	}

	docs := make([]*Document, 0, len(keys))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		doc, err := parseRedisDocument(keys[i], fields)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
