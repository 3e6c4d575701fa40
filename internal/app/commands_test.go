package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"friendly_eats/internal/app"
	"friendly_eats/internal/domain"
)

func TestAddReview_EmptyRestaurantIDNeverReachesStore(t *testing.T) {
	store := &countingStore{DocumentStore: newStore()}
	cmd := app.NewCommandService(store, nil)

	_, err := cmd.AddReview(context.Background(), "  ", domain.ReviewInput{Rating: 5, UserID: "u1"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Fields["restaurantId"] == "" {
		t.Fatalf("want restaurantId validation error, got %v", err)
	}
	if store.count() != 0 {
		t.Fatalf("store touched %d times", store.count())
	}
}

func TestAddReview_InvalidInput(t *testing.T) {
	store := &countingStore{DocumentStore: newStore()}
	cmd := app.NewCommandService(store, nil)

	cases := map[string]domain.ReviewInput{
		"rating": {Rating: 6, UserID: "u1"},
		"userId": {Rating: 3},
	}
	for field, in := range cases {
		_, err := cmd.AddReview(context.Background(), "r1", in)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: want validation error, got %v", field, err)
		}
		if _, ok := ve.Fields[field]; !ok {
			t.Fatalf("%s: fields %v", field, ve.Fields)
		}
	}
	if _, err := cmd.AddReview(context.Background(), "r1", domain.ReviewInput{Rating: 0, UserID: "u1"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("zero rating accepted: %v", err)
	}
	if store.count() != 0 {
		t.Fatalf("store touched %d times", store.count())
	}
}

func TestAddReview_UpdatesAggregateAndInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	seedRestaurant(t, s, "r1", nil)
	cache := &fakeCache{}
	q := app.NewQueryService(s, cache, 0)
	cmd := app.NewCommandService(s, cache)

	if _, err := q.GetRestaurant(ctx, "r1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !cache.has("restaurant:r1") {
		t.Fatal("restaurant not cached")
	}

	rv, err := cmd.AddReview(ctx, "r1", domain.ReviewInput{Text: " Loved it ", Rating: 5, UserID: "u1", UserName: "Ann"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if rv.ID == "" || rv.RestaurantID != "r1" || rv.Text != "Loved it" || rv.Timestamp.IsZero() {
		t.Fatalf("review: %+v", rv)
	}
	if cache.has("restaurant:r1") {
		t.Fatal("stale restaurant left in cache")
	}

	r, err := q.GetRestaurant(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.NumRatings != 1 || r.SumRating != 5 || r.AvgRating != 5 {
		t.Fatalf("aggregate: %+v", r.Aggregate())
	}
}

func TestAddReview_UnknownRestaurant(t *testing.T) {
	cmd := app.NewCommandService(newStore(), nil)
	_, err := cmd.AddReview(context.Background(), "ghost", domain.ReviewInput{Rating: 2, UserID: "u1"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestAddReview_TransactionFailurePropagates(t *testing.T) {
	s := newStore()
	seedRestaurant(t, s, "r1", nil)
	store := &countingStore{
		DocumentStore: s,
		txErr:         fmt.Errorf("%w: gave up after 8 attempts: %w", domain.ErrTransaction, domain.ErrConflict),
	}
	cmd := app.NewCommandService(store, nil)

	_, err := cmd.AddReview(context.Background(), "r1", domain.ReviewInput{Rating: 4, UserID: "u1"})
	if !errors.Is(err, domain.ErrTransaction) {
		t.Fatalf("want ErrTransaction, got %v", err)
	}
	doc, _ := s.Get(context.Background(), domain.RestaurantRef("r1"))
	if r, _ := app.DecodeRestaurant(doc); r.NumRatings != 0 {
		t.Fatalf("aggregate changed: %+v", r.Aggregate())
	}
}

func TestCreateRestaurant(t *testing.T) {
	ctx := context.Background()
	cmd := app.NewCommandService(newStore(), nil)

	r, err := cmd.CreateRestaurant(ctx, domain.NewRestaurant{Name: "Prime Spot", Category: "Sushi", City: "Seattle", Price: "$$$"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.ID == "" || r.Price != 3 || r.NumRatings != 0 || !r.Timestamp.Equal(fixedNow) {
		t.Fatalf("restaurant: %+v", r)
	}

	_, err = cmd.CreateRestaurant(ctx, domain.NewRestaurant{Name: "x", Category: "y", City: "z", Price: "$$$$$"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad price accepted: %v", err)
	}
	_, err = cmd.CreateRestaurant(ctx, domain.NewRestaurant{Category: "y", City: "z", Price: "$"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Fields["name"] == "" {
		t.Fatalf("missing name accepted: %v", err)
	}
}
