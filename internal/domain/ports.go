package domain

import "context"

// DocumentStore is the storage collaborator: collections of documents with
// equality/range predicates, single-field sort, atomic transactions and
// change notifications.
type DocumentStore interface {
	Get(ctx context.Context, ref DocRef) (Document, error)
	Find(ctx context.Context, q Query) ([]Document, error)
	Create(ctx context.Context, ref DocRef, fields map[string]any) error

	// RunTransaction runs fn as one isolated read-modify-write unit. On a
	// write conflict the store rolls back and calls fn again; when its retry
	// budget is spent it returns an error wrapping ErrTransaction.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Changes signals (coalesced) every committed write to a collection
	// until stop is called or ctx is done.
	Changes(ctx context.Context, collection string) (events <-chan struct{}, stop func(), err error)
}

// Tx is the view of a DocumentStore inside RunTransaction. Writes are
// applied only when the transaction commits.
type Tx interface {
	Get(ctx context.Context, ref DocRef) (Document, error)
	Update(ref DocRef, fields map[string]any) error
	Create(ref DocRef, fields map[string]any) error
}

// ChangeFeed fans out "collection changed" signals across processes.
type ChangeFeed interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (events <-chan struct{}, stop func(), err error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Summarizer is the text-generation collaborator.
type Summarizer interface {
	Summarize(ctx context.Context, prompt, instruction string) (string, error)
}
