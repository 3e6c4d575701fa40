// Package memory is an in-process DocumentStore with optimistic
// transactions and change notifications.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"friendly_eats/internal/domain"
	"friendly_eats/internal/shared"
)

type entry struct {
	doc     domain.Document
	version int64
}

type Store struct {
	mu      sync.RWMutex
	docs    map[string]map[string]*entry // collection -> parent/id
	subs    map[string]map[int]chan struct{}
	nextSub int
	now     func() time.Time
	retry   []shared.RetryOption

	// beforeCommit runs between a transaction's reads and its commit; tests use it to interleave writers.
	beforeCommit func()
}

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithRetry(opts ...shared.RetryOption) Option {
	return func(s *Store) { s.retry = append(s.retry, opts...) }
}

func New(opts ...Option) *Store {
	s := &Store{
		docs: map[string]map[string]*entry{},
		subs: map[string]map[int]chan struct{}{},
		now:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func key(parentID, id string) string { return parentID + "/" + id }

func (s *Store) Get(ctx context.Context, ref domain.DocRef) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[ref.Collection][key(ref.ParentID, ref.ID)]
	if !ok {
		return domain.Document{}, fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
	}
	return cloneDoc(e.doc), nil
}

func (s *Store) Find(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	s.mu.RLock()
	var out []domain.Document
	for _, e := range s.docs[q.Collection] {
		if q.ParentID != "" && e.doc.ParentID != q.ParentID {
			continue
		}
		if matches(e.doc, q.Predicates) {
			out = append(out, cloneDoc(e.doc))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.OrderBy {
			c := compare(out[i].Fields[o.Field], out[j].Fields[o.Field])
			if c == 0 {
				continue
			}
			// missing values sort last either way
			if out[i].Fields[o.Field] == nil || out[j].Fields[o.Field] == nil {
				return out[j].Fields[o.Field] == nil
			}
			if o.Descending {
				return c > 0
			}
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, ref domain.DocRef, fields map[string]any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Create(ref, fields)
	})
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return shared.RetryOnConflict(ctx, func(ctx context.Context) error {
		tx := &memTx{s: s, reads: map[domain.DocRef]int64{}}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s.beforeCommit != nil {
			s.beforeCommit()
		}
		return s.commit(tx)
	}, s.retry...)
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	for ref, v := range tx.reads {
		if cur := s.versionOf(ref); cur != v {
			s.mu.Unlock()
			return fmt.Errorf("%s changed since read: %w", ref, domain.ErrConflict)
		}
	}
	for _, w := range tx.writes {
		if w.create && s.versionOf(w.ref) != 0 {
			s.mu.Unlock()
			return fmt.Errorf("%s: %w", w.ref, domain.ErrExists)
		}
		if !w.create && s.versionOf(w.ref) == 0 {
			s.mu.Unlock()
			return fmt.Errorf("%s: %w", w.ref, domain.ErrNotFound)
		}
	}

	now := domain.TimestampFromTime(s.now())
	touched := map[string]struct{}{}
	for _, w := range tx.writes {
		coll := s.docs[w.ref.Collection]
		if coll == nil {
			coll = map[string]*entry{}
			s.docs[w.ref.Collection] = coll
		}
		k := key(w.ref.ParentID, w.ref.ID)
		e := coll[k]
		if e == nil {
			e = &entry{doc: domain.Document{ID: w.ref.ID, ParentID: w.ref.ParentID, Fields: map[string]any{}}}
			coll[k] = e
		}
		for f, v := range w.fields {
			if domain.IsServerTimestamp(v) {
				v = now
			}
			e.doc.Fields[f] = v
		}
		e.version++
		touched[w.ref.Collection] = struct{}{}
	}
	s.mu.Unlock()

	for c := range touched {
		s.notify(c)
	}
	return nil
}

// versionOf is 0 for documents that do not exist. Callers hold s.mu.
func (s *Store) versionOf(ref domain.DocRef) int64 {
	if e, ok := s.docs[ref.Collection][key(ref.ParentID, ref.ID)]; ok {
		return e.version
	}
	return 0
}

func (s *Store) Changes(ctx context.Context, collection string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[collection] == nil {
		s.subs[collection] = map[int]chan struct{}{}
	}
	s.subs[collection][id] = ch
	s.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[collection], id)
			s.mu.Unlock()
			close(done)
			close(ch)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return ch, stop, nil
}

func (s *Store) notify(collection string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs[collection] {
		select {
		case ch <- struct{}{}:
		default: // a signal is already pending
		}
	}
}

type write struct {
	ref    domain.DocRef
	fields map[string]any
	create bool
}

type memTx struct {
	s      *Store
	reads  map[domain.DocRef]int64
	writes []write
}

func (t *memTx) Get(ctx context.Context, ref domain.DocRef) (domain.Document, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	e, ok := t.s.docs[ref.Collection][key(ref.ParentID, ref.ID)]
	if !ok {
		return domain.Document{}, fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
	}
	t.reads[ref] = e.version
	return cloneDoc(e.doc), nil
}

func (t *memTx) Update(ref domain.DocRef, fields map[string]any) error {
	t.writes = append(t.writes, write{ref: ref, fields: cloneFields(fields)})
	return nil
}

func (t *memTx) Create(ref domain.DocRef, fields map[string]any) error {
	t.writes = append(t.writes, write{ref: ref, fields: cloneFields(fields), create: true})
	return nil
}

func cloneDoc(d domain.Document) domain.Document {
	return domain.Document{ID: d.ID, ParentID: d.ParentID, Fields: cloneFields(d.Fields)}
}

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func matches(d domain.Document, preds []domain.Predicate) bool {
	for _, p := range preds {
		v, ok := d.Fields[p.Field]
		if !ok {
			return false
		}
		c := compare(v, p.Value)
		switch p.Op {
		case domain.OpEqual:
			if c != 0 {
				return false
			}
		case domain.OpGreaterOrEqual:
			if c < 0 {
				return false
			}
		case domain.OpLessOrEqual:
			if c > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compare orders numbers numerically and everything else as strings.
func compare(a, b any) int {
	fa, aNum := number(a)
	fb, bNum := number(b)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case a == nil && b == nil:
		return 0
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}
