package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"friendly_eats/internal/domain"
)

const (
	// SummaryErrorMessage replaces the summary whenever generation fails.
	SummaryErrorMessage = "Error summarizing reviews."
	NoReviewsMessage    = "There are no reviews for this restaurant yet."

	// reviewSeparator must not occur inside review text; collisions are sent as-is.
	reviewSeparator    = "@"
	summaryInstruction = "Act as a concise summarization engine. Always return a single, clear sentence."
	summaryReviewLimit = MaxReviewLimit
)

type SummaryService struct {
	q        *QueryService
	ai       domain.Summarizer
	cache    domain.Cache
	cacheTTL time.Duration
}

// NewSummaryService accepts a nil Summarizer; every summary then reports failure.
func NewSummaryService(q *QueryService, ai domain.Summarizer, c domain.Cache, ttl time.Duration) *SummaryService {
	return &SummaryService{q: q, ai: ai, cache: c, cacheTTL: ttl}
}

// summaries are keyed by rating count so a new review naturally misses
func summaryKey(id string, n int) string { return fmt.Sprintf("summary:%s:%d", id, n) }

// Summarize returns a one-sentence digest of a restaurant's reviews. Only
// restaurant lookup errors are returned; generation failures yield
// SummaryErrorMessage.
func (s *SummaryService) Summarize(ctx context.Context, restaurantID string) (domain.ReviewSummary, error) {
	r, err := s.q.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return domain.ReviewSummary{}, err
	}
	out := domain.ReviewSummary{RestaurantID: r.ID, NumRatings: r.NumRatings}

	key := summaryKey(r.ID, r.NumRatings)
	if s.cache != nil {
		var cached domain.ReviewSummary
		if ok, _ := s.cache.Get(ctx, key, &cached); ok {
			return cached, nil
		}
	}

	reviews, err := s.q.ListReviews(ctx, r.ID, summaryReviewLimit)
	if err != nil {
		log.Error().Err(err).Str("restaurant_id", r.ID).Msg("loading reviews for summary failed")
		out.Text, out.Failed = SummaryErrorMessage, true
		return out, nil
	}
	if len(reviews) == 0 {
		out.Text = NoReviewsMessage
		return out, nil
	}
	if s.ai == nil {
		out.Text, out.Failed = SummaryErrorMessage, true
		return out, nil
	}

	text, err := s.ai.Summarize(ctx, BuildSummaryPrompt(reviews), summaryInstruction)
	if err != nil {
		log.Error().Err(err).Str("restaurant_id", r.ID).Msg("error summarizing reviews")
		out.Text, out.Failed = SummaryErrorMessage, true
		return out, nil
	}
	out.Text = strings.TrimSpace(text)
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	}
	return out, nil
}

func BuildSummaryPrompt(reviews []domain.Review) string {
	texts := make([]string, 0, len(reviews))
	for _, rv := range reviews {
		texts = append(texts, rv.Text)
	}
	return fmt.Sprintf(`Based on the following restaurant reviews, where each review is separated by a '%s' character, create a concise, one-sentence summary of what people think of the restaurant.

Here are the reviews: %s`, reviewSeparator, strings.Join(texts, reviewSeparator))
}
