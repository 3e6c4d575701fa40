package domain

import "time"

// DocRef addresses one stored document. ParentID is set for sub-collection members.
type DocRef struct {
	Collection string
	ParentID   string
	ID         string
}

func RestaurantRef(id string) DocRef {
	return DocRef{Collection: CollectionRestaurants, ID: id}
}

func ReviewRef(restaurantID, id string) DocRef {
	return DocRef{Collection: CollectionRatings, ParentID: restaurantID, ID: id}
}

func (r DocRef) String() string {
	if r.ParentID != "" {
		return CollectionRestaurants + "/" + r.ParentID + "/" + r.Collection + "/" + r.ID
	}
	return r.Collection + "/" + r.ID
}

// Document is a raw stored record as a store hands it out.
// Fields[FieldTimestamp] is Unix microseconds (int64).
type Document struct {
	ID       string
	ParentID string
	Fields   map[string]any
}

type serverTimestamp struct{}

// ServerTimestamp in a write is replaced by the commit time of the store.
var ServerTimestamp any = serverTimestamp{}

func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// TimestampFromTime encodes t in the storage-native representation.
func TimestampFromTime(t time.Time) int64 { return t.UnixMicro() }

// TimeFromTimestamp decodes a storage-native timestamp.
func TimeFromTimestamp(us int64) time.Time { return time.UnixMicro(us).UTC() }
