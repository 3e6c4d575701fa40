package domain

import "time"

type Review struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurantId"`
	Text         string    `json:"text"`
	Rating       int       `json:"rating"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

const (
	MinRating = 1
	MaxRating = 5
)

// ReviewInput is what a submitter provides; the timestamp is assigned on commit.
type ReviewInput struct {
	Text     string `json:"text" validate:"max=2000"`
	Rating   int    `json:"rating" validate:"required,gte=1,lte=5"`
	UserID   string `json:"userId" validate:"required,max=128"`
	UserName string `json:"userName" validate:"max=255"`
}

// ReviewSummary is the generated one-sentence digest of a restaurant's reviews.
type ReviewSummary struct {
	RestaurantID string `json:"restaurantId"`
	NumRatings   int    `json:"numRatings"`
	Text         string `json:"text"`
	Failed       bool   `json:"failed,omitempty"`
}
