// Package mysql is the MySQL DocumentStore. Each collection is a table;
// transactions are optimistic, checking a per-row version on commit.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"friendly_eats/internal/domain"
	"friendly_eats/internal/shared"
)

// MySQL server error numbers the store maps onto domain errors.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errNoReferencedRow = 1452
)

type Store struct {
	db    *sqlx.DB
	feed  domain.ChangeFeed
	now   func() time.Time
	retry []shared.RetryOption
}

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithRetry(opts ...shared.RetryOption) Option {
	return func(s *Store) { s.retry = append(s.retry, opts...) }
}

// New wraps an open MySQL handle. feed carries change signals between
// processes; without one Changes fails.
func New(db *sql.DB, feed domain.ChangeFeed, opts ...Option) *Store {
	s := &Store{db: sqlx.NewDb(db, "mysql"), feed: feed, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Get(ctx context.Context, ref domain.DocRef) (domain.Document, error) {
	doc, _, err := getDoc(ctx, s.db, ref)
	return doc, err
}

func (s *Store) Find(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	query, args, err := findSQL(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	t := tables[q.Collection]
	var out []domain.Document
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		doc, _ := t.document(m)
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, ref domain.DocRef, fields map[string]any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Create(ref, fields)
	})
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return shared.RetryOnConflict(ctx, func(ctx context.Context) error {
		touched, err := s.attempt(ctx, fn)
		if err != nil {
			return err
		}
		s.publish(ctx, touched)
		return nil
	}, s.retry...)
}

func (s *Store) attempt(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (map[string]struct{}, error) {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	tx := &sqlTxn{tx: sqlTx, reads: map[domain.DocRef]int64{}}
	if err := fn(ctx, tx); err != nil {
		return nil, err
	}

	now := domain.TimestampFromTime(s.now())
	touched := map[string]struct{}{}
	for _, w := range tx.writes {
		if err := w.apply(ctx, sqlTx, now, tx.reads[w.ref]); err != nil {
			return nil, err
		}
		touched[w.ref.Collection] = struct{}{}
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, mapErr(err)
	}
	return touched, nil
}

func (s *Store) publish(ctx context.Context, touched map[string]struct{}) {
	if s.feed == nil {
		return
	}
	for c := range touched {
		if err := s.feed.Publish(ctx, c); err != nil {
			log.Warn().Err(err).Str("collection", c).Msg("change signal not published")
		}
	}
}

func (s *Store) Changes(ctx context.Context, collection string) (<-chan struct{}, func(), error) {
	if s.feed == nil {
		return nil, nil, errors.New("mysql store: no change feed configured")
	}
	if _, err := tableFor(collection); err != nil {
		return nil, nil, err
	}
	return s.feed.Subscribe(ctx, collection)
}

type write struct {
	ref    domain.DocRef
	fields map[string]any
	create bool
}

func (w write) apply(ctx context.Context, tx *sqlx.Tx, now, readVersion int64) error {
	if w.create {
		query, args, err := insertSQL(w.ref, w.fields, now)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%s: %w", w.ref, mapErr(err))
		}
		return nil
	}

	query, args, err := updateSQL(w.ref, w.fields, now, readVersion)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", w.ref, mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if readVersion > 0 {
			return fmt.Errorf("%s changed since read: %w", w.ref, domain.ErrConflict)
		}
		return fmt.Errorf("%s: %w", w.ref, domain.ErrNotFound)
	}
	return nil
}

// sqlTxn buffers writes until commit and remembers the version of every read.
type sqlTxn struct {
	tx     *sqlx.Tx
	reads  map[domain.DocRef]int64
	writes []write
}

func (t *sqlTxn) Get(ctx context.Context, ref domain.DocRef) (domain.Document, error) {
	doc, version, err := getDoc(ctx, t.tx, ref)
	if err != nil {
		return domain.Document{}, err
	}
	t.reads[ref] = version
	return doc, nil
}

func (t *sqlTxn) Update(ref domain.DocRef, fields map[string]any) error {
	if _, err := tableFor(ref.Collection); err != nil {
		return err
	}
	t.writes = append(t.writes, write{ref: ref, fields: fields})
	return nil
}

func (t *sqlTxn) Create(ref domain.DocRef, fields map[string]any) error {
	if _, err := tableFor(ref.Collection); err != nil {
		return err
	}
	t.writes = append(t.writes, write{ref: ref, fields: fields, create: true})
	return nil
}

func getDoc(ctx context.Context, q sqlx.QueryerContext, ref domain.DocRef) (domain.Document, int64, error) {
	query, args, err := getSQL(ref)
	if err != nil {
		return domain.Document{}, 0, err
	}
	m := map[string]any{}
	if err := q.QueryRowxContext(ctx, query, args...).MapScan(m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, 0, fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
		}
		return domain.Document{}, 0, mapErr(err)
	}
	doc, version := tables[ref.Collection].document(m)
	return doc, version, nil
}

// document turns a scanned row into a Document and its row version.
func (t table) document(m map[string]any) (domain.Document, int64) {
	doc := domain.Document{ID: text(m[colID]), Fields: map[string]any{}}
	if t.parent != "" {
		doc.ParentID = text(m[t.parent])
	}
	for field, col := range t.fields {
		v, ok := m[col]
		if !ok || v == nil {
			continue
		}
		if b, isBytes := v.([]byte); isBytes {
			v = string(b)
		}
		doc.Fields[field] = v
	}
	// the text protocol hands numbers back as strings
	for _, f := range []string{domain.FieldTimestamp, domain.FieldPrice, domain.FieldNumRatings, domain.FieldRating} {
		if s, ok := doc.Fields[f].(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				doc.Fields[f] = n
			}
		}
	}
	for _, f := range []string{domain.FieldSumRating, domain.FieldAvgRating} {
		if s, ok := doc.Fields[f].(string); ok {
			if x, err := strconv.ParseFloat(s, 64); err == nil {
				doc.Fields[f] = x
			}
		}
	}
	version, _ := strconv.ParseInt(text(m[colVersion]), 10, 64)
	return doc, version
}

func text(v any) string {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func mapErr(err error) error {
	var me *gomysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case errDeadlock, errLockWaitTimeout:
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	case errDupEntry:
		return fmt.Errorf("%w: %w", domain.ErrExists, err)
	case errNoReferencedRow:
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	return err
}
