package redis

import (
	"context"

	redislib "github.com/redis/go-redis/v9"

	"invoicely/backend/internal/kv"
)

// Store is a Redis-backed kv.Store. Scalar keys map to Redis strings and
// list keys to Redis lists.
type Store struct {
	client *redislib.Client
}

func New(addr string, password string, db int) *Store {
	client := redislib.NewClient(&redislib.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Store{client: client}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == redislib.Nil {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *Store) GetList(ctx context.Context, key string) ([]string, error) {
	values, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return values, nil
}

// SetList replaces the whole list. Delete and repush run in one pipeline so
// a reader never observes the old list appended to the new one.
func (s *Store) SetList(ctx context.Context, key string, values []string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		args := make([]interface{}, 0, len(values))
		for _, value := range values {
			args = append(args, value)
		}
		pipe.RPush(ctx, key, args...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
