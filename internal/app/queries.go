package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"friendly_eats/internal/domain"
)

const (
	DefaultReviewLimit = 50
	MaxReviewLimit     = 200
)

type QueryService struct {
	store    domain.DocumentStore
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(s domain.DocumentStore, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{store: s, cache: c, cacheTTL: ttl}
}

// FetchOnce runs the filtered listing once. A malformed document fails the call.
func (s *QueryService) FetchOnce(ctx context.Context, f domain.Filters) ([]domain.Restaurant, error) {
	docs, err := s.store.Find(ctx, RestaurantsQuery(f))
	if err != nil {
		log.Error().Err(err).Str("city", f.City).Str("category", f.Category).Msg("restaurant query failed")
		return nil, fmt.Errorf("find restaurants: %w", err)
	}
	out := make([]domain.Restaurant, 0, len(docs))
	for _, d := range docs {
		r, err := DecodeRestaurant(d)
		if err != nil {
			log.Error().Err(err).Str("restaurant_id", d.ID).Msg("decode restaurant failed")
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func restaurantKey(id string) string { return "restaurant:" + id }

func (s *QueryService) GetRestaurant(ctx context.Context, id string) (domain.Restaurant, error) {
	key := restaurantKey(id)
	var r domain.Restaurant
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &r); ok {
			return r, nil
		}
	}
	doc, err := s.store.Get(ctx, domain.RestaurantRef(id))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Error().Err(err).Str("restaurant_id", id).Msg("get restaurant failed")
		}
		return domain.Restaurant{}, err
	}
	r, err = DecodeRestaurant(doc)
	if err != nil {
		log.Error().Err(err).Str("restaurant_id", id).Msg("decode restaurant failed")
		return domain.Restaurant{}, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, r, int(s.cacheTTL.Seconds()))
	}
	return r, nil
}

// ListReviews returns a restaurant's reviews, newest first.
func (s *QueryService) ListReviews(ctx context.Context, restaurantID string, limit int) ([]domain.Review, error) {
	if limit <= 0 {
		limit = DefaultReviewLimit
	}
	if limit > MaxReviewLimit {
		limit = MaxReviewLimit
	}
	q := domain.SubCollectionQuery(restaurantID, domain.CollectionRatings)
	q.OrderBy = []domain.Order{{Field: domain.FieldTimestamp, Descending: true}}
	q.Limit = limit

	docs, err := s.store.Find(ctx, q)
	if err != nil {
		log.Error().Err(err).Str("restaurant_id", restaurantID).Msg("review query failed")
		return nil, fmt.Errorf("find reviews: %w", err)
	}
	out := make([]domain.Review, 0, len(docs))
	for _, d := range docs {
		rv, err := DecodeReview(d)
		if err != nil {
			log.Error().Err(err).Str("review_id", d.ID).Msg("decode review failed")
			return nil, err
		}
		out = append(out, rv)
	}
	return out, nil
}

// Subscription delivers the full current result set of a listing on every
// change until cancelled.
type Subscription struct {
	updates chan []domain.Restaurant
	cancel  context.CancelFunc
}

// Updates is closed once the subscription ends.
func (s *Subscription) Updates() <-chan []domain.Restaurant { return s.updates }

// Cancel detaches the listener. Calling it again is a no-op.
func (s *Subscription) Cancel() { s.cancel() }

// Subscribe starts a live listing. The first update is the current result set.
// Malformed documents are logged and left out of streamed sets.
func (s *QueryService) Subscribe(ctx context.Context, f domain.Filters) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	events, stop, err := s.store.Changes(ctx, domain.CollectionRestaurants)
	if err != nil {
		cancel()
		log.Error().Err(err).Msg("restaurant change feed unavailable")
		return nil, fmt.Errorf("listen restaurants: %w", err)
	}
	sub := &Subscription{updates: make(chan []domain.Restaurant), cancel: cancel}
	go s.stream(ctx, RestaurantsQuery(f), events, stop, sub.updates)
	return sub, nil
}

func (s *QueryService) stream(ctx context.Context, q domain.Query, events <-chan struct{}, stop func(), out chan<- []domain.Restaurant) {
	defer close(out)
	defer stop()

	deliver := func() bool {
		docs, err := s.store.Find(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			log.Error().Err(err).Msg("live restaurant query failed; waiting for next change")
			return true
		}
		set := make([]domain.Restaurant, 0, len(docs))
		for _, d := range docs {
			r, err := DecodeRestaurant(d)
			if err != nil {
				log.Warn().Err(err).Str("restaurant_id", d.ID).Msg("skipping malformed restaurant")
				continue
			}
			set = append(set, r)
		}
		select {
		case out <- set:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !deliver() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok || !deliver() {
				return
			}
		}
	}
}

// SubscribeFunc is the callback form of Subscribe. A nil onUpdate, or a
// listener that cannot be registered, is logged and yields a no-op unsubscribe.
func (s *QueryService) SubscribeFunc(ctx context.Context, f domain.Filters, onUpdate func([]domain.Restaurant)) (unsubscribe func()) {
	if onUpdate == nil {
		log.Error().Msg("subscribe: the onUpdate callback is nil")
		return func() {}
	}
	sub, err := s.Subscribe(ctx, f)
	if err != nil {
		return func() {}
	}
	go func() {
		for set := range sub.Updates() {
			onUpdate(set)
		}
	}()
	return sub.Cancel
}
