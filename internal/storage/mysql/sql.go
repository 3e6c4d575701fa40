package mysql

import (
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/doug-martin/goqu/v9/exp"

	"friendly_eats/internal/domain"
)

const (
	colID      = "id"
	colVersion = "version"
	colParent  = "restaurant_id"
)

var dialect = goqu.Dialect("mysql")

// table maps one collection onto its SQL table.
type table struct {
	name string
	// parent is the column holding DocRef.ParentID; empty for top-level collections.
	parent string
	// fields maps document field names to columns.
	fields map[string]string
	// order fixes the column order of SELECTs.
	order []string
}

var tables = map[string]table{
	domain.CollectionRestaurants: {
		name: "restaurants",
		fields: map[string]string{
			domain.FieldName:       "name",
			domain.FieldCategory:   "category",
			domain.FieldCity:       "city",
			domain.FieldPrice:      "price",
			domain.FieldPhoto:      "photo",
			domain.FieldNumRatings: "num_ratings",
			domain.FieldSumRating:  "sum_rating",
			domain.FieldAvgRating:  "avg_rating",
			domain.FieldTimestamp:  "ts_micros",
		},
		order: []string{
			domain.FieldName, domain.FieldCategory, domain.FieldCity, domain.FieldPrice, domain.FieldPhoto,
			domain.FieldNumRatings, domain.FieldSumRating, domain.FieldAvgRating, domain.FieldTimestamp,
		},
	},
	domain.CollectionRatings: {
		name:   "ratings",
		parent: colParent,
		fields: map[string]string{
			domain.FieldRestaurantID: colParent,
			domain.FieldText:         "text",
			domain.FieldRating:       "rating",
			domain.FieldUserID:       "user_id",
			domain.FieldUserName:     "user_name",
			domain.FieldTimestamp:    "ts_micros",
		},
		order: []string{
			domain.FieldText, domain.FieldRating, domain.FieldUserID, domain.FieldUserName, domain.FieldTimestamp,
		},
	},
}

func tableFor(collection string) (table, error) {
	t, ok := tables[collection]
	if !ok {
		return table{}, fmt.Errorf("unknown collection %q", collection)
	}
	return t, nil
}

func (t table) column(field string) (string, error) {
	c, ok := t.fields[field]
	if !ok {
		return "", fmt.Errorf("%s has no field %q", t.name, field)
	}
	return c, nil
}

func (t table) selectColumns() []any {
	cols := []any{colID, colVersion}
	if t.parent != "" {
		cols = append(cols, t.parent)
	}
	for _, f := range t.order {
		cols = append(cols, t.fields[f])
	}
	return cols
}

func (t table) keyExpr(ref domain.DocRef) exp.Ex {
	ex := exp.Ex{colID: ref.ID}
	if t.parent != "" {
		ex[t.parent] = ref.ParentID
	}
	return ex
}

func getSQL(ref domain.DocRef) (string, []any, error) {
	t, err := tableFor(ref.Collection)
	if err != nil {
		return "", nil, err
	}
	return dialect.From(t.name).Prepared(true).
		Select(t.selectColumns()...).
		Where(t.keyExpr(ref)).
		ToSQL()
}

func findSQL(q domain.Query) (string, []any, error) {
	t, err := tableFor(q.Collection)
	if err != nil {
		return "", nil, err
	}
	ds := dialect.From(t.name).Prepared(true).Select(t.selectColumns()...)

	where := make([]exp.Expression, 0, len(q.Predicates)+1)
	if q.ParentID != "" {
		if t.parent == "" {
			return "", nil, fmt.Errorf("%s is not a sub-collection", t.name)
		}
		where = append(where, goqu.C(t.parent).Eq(q.ParentID))
	}
	for _, p := range q.Predicates {
		col, err := t.column(p.Field)
		if err != nil {
			return "", nil, err
		}
		switch p.Op {
		case domain.OpEqual:
			where = append(where, goqu.C(col).Eq(p.Value))
		case domain.OpGreaterOrEqual:
			where = append(where, goqu.C(col).Gte(p.Value))
		case domain.OpLessOrEqual:
			where = append(where, goqu.C(col).Lte(p.Value))
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", p.Op)
		}
	}
	if len(where) > 0 {
		ds = ds.Where(where...)
	}

	order := make([]exp.OrderedExpression, 0, len(q.OrderBy)*2+1)
	for _, o := range q.OrderBy {
		col, err := t.column(o.Field)
		if err != nil {
			return "", nil, err
		}
		// NULLs go last in both directions
		order = append(order, goqu.L("? IS NULL", goqu.I(col)).Asc())
		if o.Descending {
			order = append(order, goqu.I(col).Desc())
		} else {
			order = append(order, goqu.I(col).Asc())
		}
	}
	order = append(order, goqu.I(colID).Asc())
	ds = ds.Order(order...)

	if q.Limit > 0 {
		ds = ds.Limit(uint(q.Limit))
	}
	return ds.ToSQL()
}

// record maps document fields onto columns, replacing ServerTimestamp by now.
func (t table) record(fields map[string]any, now int64) (goqu.Record, error) {
	rec := goqu.Record{}
	for f, v := range fields {
		col, err := t.column(f)
		if err != nil {
			return nil, err
		}
		if domain.IsServerTimestamp(v) {
			v = now
		}
		rec[col] = v
	}
	return rec, nil
}

func insertSQL(ref domain.DocRef, fields map[string]any, now int64) (string, []any, error) {
	t, err := tableFor(ref.Collection)
	if err != nil {
		return "", nil, err
	}
	rec, err := t.record(fields, now)
	if err != nil {
		return "", nil, err
	}
	for col, v := range t.keyExpr(ref) {
		rec[col] = v
	}
	rec[colVersion] = 1
	return dialect.Insert(t.name).Prepared(true).Rows(rec).ToSQL()
}

// updateSQL bumps the row version. A version of 0 skips the optimistic check.
func updateSQL(ref domain.DocRef, fields map[string]any, now, version int64) (string, []any, error) {
	t, err := tableFor(ref.Collection)
	if err != nil {
		return "", nil, err
	}
	rec, err := t.record(fields, now)
	if err != nil {
		return "", nil, err
	}
	rec[colVersion] = goqu.L("? + 1", goqu.I(colVersion))
	where := t.keyExpr(ref)
	if version > 0 {
		where[colVersion] = version
	}
	return dialect.Update(t.name).Prepared(true).Set(rec).Where(where).ToSQL()
}
