package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientStorage es el almacenamiento persistente del cliente (el equivalente a localStorage).
// Solo recuerda la ultima identidad de la sesion entre recargas; no es una frontera de seguridad.
type ClientStorage interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Remove(ctx context.Context, key string) error
}

type memoryClientStorage struct {
	mu    sync.Mutex
	items map[string]string
}

func NewMemoryClientStorage() ClientStorage {
	return &memoryClientStorage{items: make(map[string]string)}
}

func (s *memoryClientStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *memoryClientStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *memoryClientStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// redisKV es el subconjunto de go-redis que usan los stores de este paquete.
type redisKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisClientStorage struct {
	client redisKV
	prefix string
	ttl    time.Duration
}

// NewRedisClientStorage guarda las claves del cliente bajo client:<sessionID>: con TTL.
func NewRedisClientStorage(client *redis.Client, sessionID string, ttl time.Duration) ClientStorage {
	if client == nil {
		return nil
	}
	return newRedisClientStorage(client, sessionID, ttl)
}

func newRedisClientStorage(client redisKV, sessionID string, ttl time.Duration) *redisClientStorage {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &redisClientStorage{
		client: client,
		prefix: "client:" + strings.TrimSpace(sessionID) + ":",
		ttl:    ttl,
	}
}

func (s *redisClientStorage) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.prefix+key, value, s.ttl).Err()
}

func (s *redisClientStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *redisClientStorage) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
