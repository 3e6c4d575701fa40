package domain

type Operator string

const (
	OpEqual          Operator = "=="
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
)

type Predicate struct {
	Field string
	Op    Operator
	Value any
}

type Order struct {
	Field      string
	Descending bool
}

// Query is an immutable description of a collection read.
// Predicates are AND-ed.
type Query struct {
	Collection string
	ParentID   string
	Predicates []Predicate
	OrderBy    []Order
	Limit      int
}

func CollectionQuery(collection string) Query {
	return Query{Collection: collection}
}

func SubCollectionQuery(parentID, collection string) Query {
	return Query{Collection: collection, ParentID: parentID}
}
