package app_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"friendly_eats/internal/domain"
	"friendly_eats/internal/shared"
	"friendly_eats/internal/storage/memory"
)

// ---- fakes ----

// fakeCache round-trips values through JSON like the redis cache does.
type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.store[key]
	return ok
}

// countingStore records every call that reaches the store.
type countingStore struct {
	domain.DocumentStore
	mu    sync.Mutex
	calls int
	txErr error
}

func (s *countingStore) hit() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *countingStore) Get(ctx context.Context, ref domain.DocRef) (domain.Document, error) {
	s.hit()
	return s.DocumentStore.Get(ctx, ref)
}

func (s *countingStore) Find(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	s.hit()
	return s.DocumentStore.Find(ctx, q)
}

func (s *countingStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	s.hit()
	if s.txErr != nil {
		return s.txErr
	}
	return s.DocumentStore.RunTransaction(ctx, fn)
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ---- helpers ----

var fixedNow = time.Date(2024, 3, 9, 12, 30, 45, 123456000, time.UTC)

func newStore() *memory.Store {
	return memory.New(memory.WithClock(func() time.Time { return fixedNow }))
}

// newContendedStore absorbs heavy write contention without running out of attempts.
func newContendedStore() *memory.Store {
	return memory.New(memory.WithRetry(
		shared.WithMaxAttempts(200),
		shared.WithBaseDelay(100*time.Microsecond),
		shared.WithJitterFactor(1),
	))
}

func seedRestaurant(t *testing.T, s domain.DocumentStore, id string, fields map[string]any) {
	t.Helper()
	doc := map[string]any{
		domain.FieldName:       "Place " + id,
		domain.FieldCategory:   "Pizza",
		domain.FieldCity:       "Seattle",
		domain.FieldPrice:      2,
		domain.FieldNumRatings: 0,
		domain.FieldSumRating:  0.0,
		domain.FieldTimestamp:  domain.ServerTimestamp,
	}
	for k, v := range fields {
		doc[k] = v
	}
	if err := s.Create(context.Background(), domain.RestaurantRef(id), doc); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func ids(rs []domain.Restaurant) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}
