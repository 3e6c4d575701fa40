package domain

import (
	"fmt"
	"strings"
	"time"
)

// Collection names. Reviews live in a sub-collection keyed by restaurant.
const (
	CollectionRestaurants = "restaurants"
	CollectionRatings     = "ratings"
)

// Stored field names, shared by every DocumentStore implementation.
const (
	FieldName         = "name"
	FieldCategory     = "category"
	FieldCity         = "city"
	FieldPrice        = "price"
	FieldPhoto        = "photo"
	FieldNumRatings   = "numRatings"
	FieldSumRating    = "sumRating"
	FieldAvgRating    = "avgRating"
	FieldTimestamp    = "timestamp"
	FieldRestaurantID = "restaurantId"
	FieldText         = "text"
	FieldRating       = "rating"
	FieldUserID       = "userId"
	FieldUserName     = "userName"
)

type Restaurant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	City       string    `json:"city"`
	Price      int       `json:"price"`
	Photo      string    `json:"photo,omitempty"`
	NumRatings int       `json:"numRatings"`
	SumRating  float64   `json:"sumRating"`
	AvgRating  float64   `json:"avgRating"`
	Timestamp  time.Time `json:"timestamp"`
}

// Aggregate is the rating state a restaurant carries: (numRatings, sumRating, avgRating).
type Aggregate struct {
	NumRatings int
	SumRating  float64
	AvgRating  float64
}

func (r Restaurant) Aggregate() Aggregate {
	return Aggregate{NumRatings: r.NumRatings, SumRating: r.SumRating, AvgRating: r.AvgRating}
}

// PriceTier is the symbolic price ("$", "$$", ...). Its level is the symbol count.
type PriceTier string

const (
	priceSymbol   = "$"
	MaxPriceLevel = 4
)

// ParsePriceTier accepts "" (no tier) or one to MaxPriceLevel "$" symbols.
func ParsePriceTier(s string) (PriceTier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	n := strings.Count(s, priceSymbol)
	if n != len(s) || n > MaxPriceLevel {
		return "", NewValidationError("price", fmt.Sprintf("must be 1 to %d %q symbols", MaxPriceLevel, priceSymbol))
	}
	return PriceTier(s), nil
}

// Level is the integer tier stored on restaurants; 0 means no tier.
func (p PriceTier) Level() int { return len(p) }

// SortOrder selects the single ordering of a restaurant listing.
type SortOrder string

const (
	SortRating SortOrder = "Rating"
	SortReview SortOrder = "Review"
)

// Filters enumerates every option a restaurant listing accepts.
type Filters struct {
	Category string
	City     string
	Price    PriceTier
	Sort     SortOrder
}

// NewRestaurant is the input of a restaurant creation.
type NewRestaurant struct {
	Name     string `json:"name" validate:"required,max=255"`
	Category string `json:"category" validate:"required,max=64"`
	City     string `json:"city" validate:"required,max=128"`
	Price    string `json:"price" validate:"required"`
	Photo    string `json:"photo" validate:"omitempty,url,max=1024"`
}
