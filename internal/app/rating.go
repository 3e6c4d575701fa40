package app

import (
	"context"
	"fmt"

	"friendly_eats/internal/domain"
)

// Fold adds one rating to an aggregate.
func Fold(agg domain.Aggregate, rating int) domain.Aggregate {
	num := agg.NumRatings + 1
	sum := agg.SumRating + float64(rating)
	return domain.Aggregate{
		NumRatings: num,
		SumRating:  sum,
		AvgRating:  sum / float64(num),
	}
}

// ApplyReview folds review into the restaurant at restaurantRef and creates
// the review document at reviewRef, both in one store transaction. The store
// re-runs the whole read-modify-write on conflicting writers.
func ApplyReview(ctx context.Context, store domain.DocumentStore, restaurantRef, reviewRef domain.DocRef, review domain.Review) error {
	return store.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		doc, err := tx.Get(ctx, restaurantRef)
		if err != nil {
			return fmt.Errorf("read %s: %w", restaurantRef, err)
		}

		// unset counters read as zero
		current := domain.Aggregate{
			NumRatings: asInt(doc.Fields[domain.FieldNumRatings]),
			SumRating:  asFloat64(doc.Fields[domain.FieldSumRating]),
		}
		next := Fold(current, review.Rating)

		if err := tx.Update(restaurantRef, map[string]any{
			domain.FieldNumRatings: next.NumRatings,
			domain.FieldSumRating:  next.SumRating,
			domain.FieldAvgRating:  next.AvgRating,
		}); err != nil {
			return err
		}
		return tx.Create(reviewRef, map[string]any{
			domain.FieldRestaurantID: restaurantRef.ID,
			domain.FieldText:         review.Text,
			domain.FieldRating:       review.Rating,
			domain.FieldUserID:       review.UserID,
			domain.FieldUserName:     review.UserName,
			domain.FieldTimestamp:    domain.ServerTimestamp,
		})
	})
}
