package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"friendly_eats/internal/domain"
	"friendly_eats/internal/shared"
)

func seed(t *testing.T, s *Store, id string, fields map[string]any) {
	t.Helper()
	fields[domain.FieldTimestamp] = domain.TimestampFromTime(time.Now())
	if err := s.Create(context.Background(), domain.RestaurantRef(id), fields); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestFind_FiltersOrdersAndLimits(t *testing.T) {
	s := New()
	seed(t, s, "a", map[string]any{"city": "Seattle", "numRatings": 3, "avgRating": 4.0})
	seed(t, s, "b", map[string]any{"city": "Seattle", "numRatings": 9, "avgRating": 2.5})
	seed(t, s, "c", map[string]any{"city": "Austin", "numRatings": 50, "avgRating": 5.0})
	seed(t, s, "d", map[string]any{"city": "Seattle", "numRatings": 0})

	docs, err := s.Find(context.Background(), domain.Query{
		Collection: domain.CollectionRestaurants,
		Predicates: []domain.Predicate{{Field: "city", Op: domain.OpEqual, Value: "Seattle"}},
		OrderBy:    []domain.Order{{Field: "avgRating", Descending: true}},
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	got := ids(docs)
	want := []string{"a", "b", "d"} // d has no avgRating and sorts last
	if !equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}

	docs, _ = s.Find(context.Background(), domain.Query{
		Collection: domain.CollectionRestaurants,
		Predicates: []domain.Predicate{{Field: "numRatings", Op: domain.OpGreaterOrEqual, Value: 3}},
		OrderBy:    []domain.Order{{Field: "numRatings"}},
		Limit:      2,
	})
	if got := ids(docs); !equal(got, []string{"a", "b"}) {
		t.Fatalf("range query got %v", got)
	}
}

func TestFind_SubCollectionScopedToParent(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Create(ctx, domain.ReviewRef("r1", "x"), map[string]any{"rating": 5})
	_ = s.Create(ctx, domain.ReviewRef("r2", "y"), map[string]any{"rating": 1})

	docs, _ := s.Find(ctx, domain.SubCollectionQuery("r1", domain.CollectionRatings))
	if len(docs) != 1 || docs[0].ID != "x" || docs[0].ParentID != "r1" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
}

func TestRunTransaction_ServerTimestampAndIsolation(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)
	s := New(WithClock(func() time.Time { return at }))
	ctx := context.Background()
	seed(t, s, "r", map[string]any{"numRatings": 0})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Get(ctx, domain.RestaurantRef("r")); err != nil {
			return err
		}
		_ = tx.Update(domain.RestaurantRef("r"), map[string]any{"numRatings": 1})
		_ = tx.Create(domain.ReviewRef("r", "rev"), map[string]any{"timestamp": domain.ServerTimestamp})

		// nothing is visible before commit
		if d, _ := s.Get(ctx, domain.RestaurantRef("r")); d.Fields["numRatings"] != 0 {
			t.Errorf("uncommitted write visible: %v", d.Fields)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("txn: %v", err)
	}
	rev, err := s.Get(ctx, domain.ReviewRef("r", "rev"))
	if err != nil {
		t.Fatalf("get review: %v", err)
	}
	if rev.Fields["timestamp"] != domain.TimestampFromTime(at) {
		t.Fatalf("server timestamp not resolved: %v", rev.Fields["timestamp"])
	}
}

func TestRunTransaction_ConflictRetriesWholeFunction(t *testing.T) {
	s := New(WithRetry(shared.WithBaseDelay(0)))
	ctx := context.Background()
	seed(t, s, "r", map[string]any{"numRatings": 0})

	// a competing writer lands between the first attempt's read and its commit
	var once sync.Once
	s.beforeCommit = func() {
		once.Do(func() {
			_ = s.commit(&memTx{s: s, writes: []write{{ref: domain.RestaurantRef("r"), fields: map[string]any{"numRatings": 10}}}})
		})
	}

	attempts := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		attempts++
		d, err := tx.Get(ctx, domain.RestaurantRef("r"))
		if err != nil {
			return err
		}
		return tx.Update(domain.RestaurantRef("r"), map[string]any{"numRatings": d.Fields["numRatings"].(int) + 1})
	})
	if err != nil {
		t.Fatalf("txn: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	d, _ := s.Get(ctx, domain.RestaurantRef("r"))
	if d.Fields["numRatings"] != 11 {
		t.Fatalf("lost update: %v", d.Fields["numRatings"])
	}
}

func TestRunTransaction_ExhaustedBudget(t *testing.T) {
	s := New(WithRetry(shared.WithMaxAttempts(2), shared.WithBaseDelay(0)))
	ctx := context.Background()
	seed(t, s, "r", map[string]any{"numRatings": 0})
	s.beforeCommit = func() {
		_ = s.commit(&memTx{s: s, writes: []write{{ref: domain.RestaurantRef("r"), fields: map[string]any{"numRatings": 0}}}})
	}

	err := s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Get(ctx, domain.RestaurantRef("r"))
		return err
	})
	if !errors.Is(err, domain.ErrTransaction) {
		t.Fatalf("expected ErrTransaction, got %v", err)
	}
}

func TestCreate_Twice(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, "r", map[string]any{})
	err := s.Create(ctx, domain.RestaurantRef("r"), map[string]any{})
	if !errors.Is(err, domain.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestChanges_SignalsAndStops(t *testing.T) {
	s := New()
	ctx := context.Background()
	events, stop, err := s.Changes(ctx, domain.CollectionRestaurants)
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	seed(t, s, "r", map[string]any{})

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatalf("no change signal")
	}

	stop()
	stop() // idempotent
	if _, ok := <-events; ok {
		t.Fatalf("expected closed channel after stop")
	}
	seed(t, s, "r2", map[string]any{}) // must not panic on a stopped listener
}

func ids(docs []domain.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
