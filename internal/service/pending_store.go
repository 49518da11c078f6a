package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"profile-api/internal/domain"
)

var ErrPendingNotFound = errors.New("pending registration not found")

// PendingRegistrationStore guarda registros no confirmados hasta que expira el token.
type PendingRegistrationStore interface {
	Save(ctx context.Context, jti string, pending domain.PendingRegistration, ttl time.Duration) error
	Get(ctx context.Context, jti string) (domain.PendingRegistration, error)
	Delete(ctx context.Context, jti string) error
}

type pendingEntry struct {
	value     domain.PendingRegistration
	expiresAt time.Time
}

type memoryPendingStore struct {
	mu    sync.Mutex
	items map[string]pendingEntry
}

func NewMemoryPendingStore() PendingRegistrationStore {
	return &memoryPendingStore{
		items: make(map[string]pendingEntry),
	}
}

func (s *memoryPendingStore) Save(_ context.Context, jti string, pending domain.PendingRegistration, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return errors.New("empty jti")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for k, e := range s.items {
		if now.After(e.expiresAt) {
			delete(s.items, k)
		}
	}
	s.items[jti] = pendingEntry{value: pending, expiresAt: now.Add(ttl)}
	return nil
}

func (s *memoryPendingStore) Get(_ context.Context, jti string) (domain.PendingRegistration, error) {
	jti = strings.TrimSpace(jti)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[jti]
	if !ok {
		return domain.PendingRegistration{}, ErrPendingNotFound
	}
	if time.Now().UTC().After(e.expiresAt) {
		delete(s.items, jti)
		return domain.PendingRegistration{}, ErrPendingNotFound
	}
	return e.value, nil
}

func (s *memoryPendingStore) Delete(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, strings.TrimSpace(jti))
	return nil
}

type redisPendingStore struct {
	client redisKVClient
	prefix string
}

func NewRedisPendingStore(client *redis.Client) PendingRegistrationStore {
	if client == nil {
		return nil
	}
	return &redisPendingStore{
		client: client,
		prefix: "auth:pending:",
	}
}

func (s *redisPendingStore) Save(ctx context.Context, jti string, pending domain.PendingRegistration, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return errors.New("empty jti")
	}
	payload, err := json.Marshal(pending)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return s.client.Set(ctx, s.prefix+jti, payload, ttl).Err()
}

func (s *redisPendingStore) Get(ctx context.Context, jti string) (domain.PendingRegistration, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return domain.PendingRegistration{}, ErrPendingNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	raw, err := s.client.Get(ctx, s.prefix+jti).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PendingRegistration{}, ErrPendingNotFound
		}
		return domain.PendingRegistration{}, err
	}
	var pending domain.PendingRegistration
	if err := json.Unmarshal(raw, &pending); err != nil {
		return domain.PendingRegistration{}, err
	}
	return pending, nil
}

func (s *redisPendingStore) Delete(ctx context.Context, jti string) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return s.client.Del(ctx, s.prefix+jti).Err()
}
