package app

import (
	"fmt"
	"math/rand"
	"strings"

	"friendly_eats/internal/domain"
)

// SampleRestaurant is one generated restaurant with the reviews to submit for it.
type SampleRestaurant struct {
	Restaurant domain.NewRestaurant
	Reviews    []domain.ReviewInput
}

var (
	sampleCities = []string{
		"Albuquerque", "Arlington", "Atlanta", "Austin", "Baltimore", "Boston",
		"Charlotte", "Chicago", "Cleveland", "Colorado Springs", "Columbus",
		"Dallas", "Denver", "Detroit", "El Paso", "Fort Worth", "Fresno",
		"Houston", "Indianapolis", "Jacksonville", "Kansas City", "Las Vegas",
		"Long Beach", "Los Angeles", "Louisville", "Memphis", "Mesa", "Miami",
		"Milwaukee", "Nashville", "New York", "Oakland", "Oklahoma", "Omaha",
		"Philadelphia", "Phoenix", "Portland", "Raleigh", "Sacramento",
		"San Antonio", "San Diego", "San Francisco", "San Jose", "Seattle",
		"Tucson", "Tulsa", "Virginia Beach", "Washington",
	}
	sampleCategories = []string{
		"Brunch", "Burgers", "Coffee", "Deli", "Dim Sum", "Indian", "Italian",
		"Mediterranean", "Mexican", "Pizza", "Ramen", "Sushi",
	}
	sampleNameWords = []string{
		"Bar", "Fire", "Grill", "Drive Thru", "Place", "Best", "Spot", "Prime",
		"Eatin'", "Kitchen", "Table", "Corner", "House", "Garden",
	}
	sampleReviews = []struct {
		text   string
		rating int
	}{
		{"The food was exceptionally delicious, and the service was impeccable.", 5},
		{"An enjoyable dining experience with flavorful dishes and friendly staff.", 5},
		{"Great value for money, generous portions and tasty food.", 4},
		{"Lovely atmosphere, though a couple of dishes were a bit bland.", 4},
		{"Decent meal, nothing memorable but nothing wrong either.", 3},
		{"Service was slow and the food arrived lukewarm.", 2},
		{"Overpriced and underwhelming; I would not come back.", 1},
	}
)

// SampleData generates n restaurants with up to reviewsPer reviews each.
func SampleData(rng *rand.Rand, n, reviewsPer int) []SampleRestaurant {
	out := make([]SampleRestaurant, 0, n)
	for i := 0; i < n; i++ {
		first := sampleNameWords[rng.Intn(len(sampleNameWords))]
		second := sampleNameWords[rng.Intn(len(sampleNameWords))]
		sr := SampleRestaurant{
			Restaurant: domain.NewRestaurant{
				Name:     fmt.Sprintf("%s %s", first, second),
				Category: sampleCategories[rng.Intn(len(sampleCategories))],
				City:     sampleCities[rng.Intn(len(sampleCities))],
				Price:    strings.Repeat("$", 1+rng.Intn(domain.MaxPriceLevel)),
			},
		}
		if reviewsPer > 0 {
			for j, k := 0, 1+rng.Intn(reviewsPer); j < k; j++ {
				s := sampleReviews[rng.Intn(len(sampleReviews))]
				sr.Reviews = append(sr.Reviews, domain.ReviewInput{
					Text:     s.text,
					Rating:   s.rating,
					UserID:   fmt.Sprintf("sample-user-%d", rng.Intn(1000)),
					UserName: "Sample User",
				})
			}
		}
		out = append(out, sr)
	}
	return out
}
