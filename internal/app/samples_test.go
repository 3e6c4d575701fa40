package app_test

import (
	"math/rand"
	"testing"

	"friendly_eats/internal/app"
	"friendly_eats/internal/domain"
)

func TestSampleData_IsValidInput(t *testing.T) {
	data := app.SampleData(rand.New(rand.NewSource(1)), 25, 5)
	if len(data) != 25 {
		t.Fatalf("restaurants: %d", len(data))
	}
	for _, sr := range data {
		if _, err := domain.ParsePriceTier(sr.Restaurant.Price); err != nil || sr.Restaurant.Price == "" {
			t.Fatalf("price %q: %v", sr.Restaurant.Price, err)
		}
		if n := len(sr.Reviews); n < 1 || n > 5 {
			t.Fatalf("reviews per restaurant: %d", n)
		}
		for _, rv := range sr.Reviews {
			if rv.Rating < domain.MinRating || rv.Rating > domain.MaxRating || rv.UserID == "" {
				t.Fatalf("review: %+v", rv)
			}
		}
	}
}
