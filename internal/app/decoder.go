package app

import (
	"fmt"
	"strconv"
	"time"

	"friendly_eats/internal/domain"
)

// DecodeRestaurant materializes a stored restaurant document.
func DecodeRestaurant(doc domain.Document) (domain.Restaurant, error) {
	ts, err := decodeTimestamp(doc)
	if err != nil {
		return domain.Restaurant{}, err
	}
	f := doc.Fields
	return domain.Restaurant{
		ID:         doc.ID,
		Name:       asString(f[domain.FieldName]),
		Category:   asString(f[domain.FieldCategory]),
		City:       asString(f[domain.FieldCity]),
		Price:      asInt(f[domain.FieldPrice]),
		Photo:      asString(f[domain.FieldPhoto]),
		NumRatings: asInt(f[domain.FieldNumRatings]),
		SumRating:  asFloat64(f[domain.FieldSumRating]),
		AvgRating:  asFloat64(f[domain.FieldAvgRating]),
		Timestamp:  ts,
	}, nil
}

// DecodeReview materializes a stored review document.
func DecodeReview(doc domain.Document) (domain.Review, error) {
	ts, err := decodeTimestamp(doc)
	if err != nil {
		return domain.Review{}, err
	}
	f := doc.Fields
	restaurantID := doc.ParentID
	if restaurantID == "" {
		restaurantID = asString(f[domain.FieldRestaurantID])
	}
	return domain.Review{
		ID:           doc.ID,
		RestaurantID: restaurantID,
		Text:         asString(f[domain.FieldText]),
		Rating:       asInt(f[domain.FieldRating]),
		UserID:       asString(f[domain.FieldUserID]),
		UserName:     asString(f[domain.FieldUserName]),
		Timestamp:    ts,
	}, nil
}

func decodeTimestamp(doc domain.Document) (time.Time, error) {
	raw, ok := doc.Fields[domain.FieldTimestamp]
	if !ok || raw == nil {
		return time.Time{}, fmt.Errorf("%w: document %q has no %s", domain.ErrDecode, doc.ID, domain.FieldTimestamp)
	}
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case int64:
		return domain.TimeFromTimestamp(v), nil
	case int:
		return domain.TimeFromTimestamp(int64(v)), nil
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: document %q: %s %q", domain.ErrDecode, doc.ID, domain.FieldTimestamp, v)
		}
		return domain.TimeFromTimestamp(n), nil
	default:
		return time.Time{}, fmt.Errorf("%w: document %q: unsupported %s type %T", domain.ErrDecode, doc.ID, domain.FieldTimestamp, raw)
	}
}

// storage drivers hand out numbers and text in several shapes
func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return ""
	}
}

func asInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case float64:
		return int(x)
	case []byte:
		n, _ := strconv.Atoi(string(x))
		return n
	default:
		return 0
	}
}

func asFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case []byte:
		f, _ := strconv.ParseFloat(string(x), 64)
		return f
	default:
		return 0
	}
}
