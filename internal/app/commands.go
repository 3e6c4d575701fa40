package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"friendly_eats/internal/domain"
)

// CommandService is the write side: restaurant creation and review submission.
type CommandService struct {
	store domain.DocumentStore
	cache domain.Cache
	newID func() string
}

func NewCommandService(s domain.DocumentStore, c domain.Cache) *CommandService {
	return &CommandService{store: s, cache: c, newID: uuid.NewString}
}

func (s *CommandService) CreateRestaurant(ctx context.Context, in domain.NewRestaurant) (domain.Restaurant, error) {
	if err := validateStruct(in); err != nil {
		return domain.Restaurant{}, err
	}
	tier, err := domain.ParsePriceTier(in.Price)
	if err != nil {
		return domain.Restaurant{}, err
	}
	id := s.newID()
	ref := domain.RestaurantRef(id)
	fields := map[string]any{
		domain.FieldName:       strings.TrimSpace(in.Name),
		domain.FieldCategory:   strings.TrimSpace(in.Category),
		domain.FieldCity:       strings.TrimSpace(in.City),
		domain.FieldPrice:      tier.Level(),
		domain.FieldNumRatings: 0,
		domain.FieldSumRating:  0.0,
		domain.FieldTimestamp:  domain.ServerTimestamp,
	}
	if in.Photo != "" {
		fields[domain.FieldPhoto] = in.Photo
	}
	if err := s.store.Create(ctx, ref, fields); err != nil {
		log.Error().Err(err).Str("name", in.Name).Msg("create restaurant failed")
		return domain.Restaurant{}, fmt.Errorf("create restaurant: %w", err)
	}

	doc, err := s.store.Get(ctx, ref)
	if err != nil {
		return domain.Restaurant{}, fmt.Errorf("read back restaurant %s: %w", id, err)
	}
	r, err := DecodeRestaurant(doc)
	if err != nil {
		return domain.Restaurant{}, err
	}
	log.Info().Str("restaurant_id", id).Str("city", r.City).Msg("restaurant created")
	return r, nil
}

// AddReview validates a submission and folds it into the restaurant's
// rating aggregate. Failures of the transaction reach the caller unchanged.
func (s *CommandService) AddReview(ctx context.Context, restaurantID string, in domain.ReviewInput) (domain.Review, error) {
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return domain.Review{}, domain.NewValidationError("restaurantId", "is required")
	}
	if err := validateStruct(in); err != nil {
		return domain.Review{}, err
	}

	review := domain.Review{
		ID:           s.newID(),
		RestaurantID: restaurantID,
		Text:         strings.TrimSpace(in.Text),
		Rating:       in.Rating,
		UserID:       in.UserID,
		UserName:     in.UserName,
	}
	restaurantRef := domain.RestaurantRef(restaurantID)
	reviewRef := domain.ReviewRef(restaurantID, review.ID)

	if err := ApplyReview(ctx, s.store, restaurantRef, reviewRef, review); err != nil {
		log.Error().Err(err).
			Str("restaurant_id", restaurantID).
			Str("user_id", in.UserID).
			Msg("adding the rating to the restaurant failed")
		return domain.Review{}, fmt.Errorf("add review to %s: %w", restaurantID, err)
	}
	s.invalidate(ctx, restaurantID)

	// the commit assigned the timestamp
	if doc, err := s.store.Get(ctx, reviewRef); err == nil {
		if stored, err := DecodeReview(doc); err == nil {
			review = stored
		}
	}
	log.Info().
		Str("restaurant_id", restaurantID).
		Str("review_id", review.ID).
		Int("rating", review.Rating).
		Msg("review added")
	return review, nil
}

func (s *CommandService) invalidate(ctx context.Context, restaurantID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, restaurantKey(restaurantID))
}
