package app

import (
	"sort"
	"strings"

	"friendly_eats/internal/domain"
)

// BuildQuery narrows base with one equality predicate per set filter and
// exactly one sort: numRatings desc for SortReview, avgRating desc
// otherwise. base is never modified.
func BuildQuery(base domain.Query, f domain.Filters) domain.Query {
	q := base
	q.Predicates = make([]domain.Predicate, 0, len(base.Predicates)+3)
	q.Predicates = append(q.Predicates, base.Predicates...)

	if f.Category != "" {
		q.Predicates = append(q.Predicates, domain.Predicate{Field: domain.FieldCategory, Op: domain.OpEqual, Value: f.Category})
	}
	if f.City != "" {
		q.Predicates = append(q.Predicates, domain.Predicate{Field: domain.FieldCity, Op: domain.OpEqual, Value: f.City})
	}
	if lvl := f.Price.Level(); lvl > 0 {
		q.Predicates = append(q.Predicates, domain.Predicate{Field: domain.FieldPrice, Op: domain.OpEqual, Value: lvl})
	}
	// equality filters commute; a stable key order keeps equal filter sets equal queries
	sort.SliceStable(q.Predicates, func(i, j int) bool {
		return q.Predicates[i].Field < q.Predicates[j].Field
	})

	if f.Sort == domain.SortReview {
		q.OrderBy = []domain.Order{{Field: domain.FieldNumRatings, Descending: true}}
	} else {
		q.OrderBy = []domain.Order{{Field: domain.FieldAvgRating, Descending: true}}
	}
	return q
}

// RestaurantsQuery is the filtered listing over the restaurants collection.
func RestaurantsQuery(f domain.Filters) domain.Query {
	return BuildQuery(domain.CollectionQuery(domain.CollectionRestaurants), f)
}

// ParseFilters maps raw listing parameters (as sent by the listing form) to Filters.
func ParseFilters(category, city, price, sortBy string) (domain.Filters, error) {
	tier, err := domain.ParsePriceTier(price)
	if err != nil {
		return domain.Filters{}, err
	}
	f := domain.Filters{
		Category: strings.TrimSpace(category),
		City:     strings.TrimSpace(city),
		Price:    tier,
		Sort:     domain.SortRating,
	}
	switch strings.TrimSpace(sortBy) {
	case "", string(domain.SortRating):
	case string(domain.SortReview):
		f.Sort = domain.SortReview
	default:
		return domain.Filters{}, domain.NewValidationError("sort", "must be one of: Rating Review")
	}
	return f, nil
}
