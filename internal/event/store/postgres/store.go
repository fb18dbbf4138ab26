// Package postgres implements the row-oriented event store on a relational
// database through gorm. Aggregations are pushed down as SQL over the JSON
// properties column; the same store runs on sqlite in tests.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	domain "github.com/smallbiznis/tarifa/internal/event/domain"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Name() string {
	return s.db.Dialector.Name()
}

func (s *Store) dialect() sqlDialect {
	return sqlDialect{name: s.db.Dialector.Name()}
}

func (s *Store) Aggregate(ctx context.Context, scope domain.Scope, window domain.Window, op domain.AggregateOp) ([]domain.AggregateRow, error) {
	if op != domain.OpCount && scope.FieldName == "" {
		return nil, domain.WrapErr(s.Name(), fmt.Errorf("aggregate %s requires a field name", op))
	}

	var query string
	var args []any
	var err error

	switch op {
	case domain.OpLatest:
		query, args = s.latestQuery(scope, window)
	case domain.OpCount, domain.OpSum, domain.OpMax:
		query, args, err = s.groupedQuery(scope, &window, op)
	default:
		err = fmt.Errorf("unsupported aggregate op %q", op)
	}
	if err != nil {
		return nil, domain.WrapErr(s.Name(), err)
	}

	return s.scanRows(ctx, scope, query, args)
}

func (s *Store) SumBefore(ctx context.Context, scope domain.Scope, before time.Time) ([]domain.AggregateRow, error) {
	if scope.FieldName == "" {
		return nil, domain.WrapErr(s.Name(), fmt.Errorf("sum requires a field name"))
	}

	query, args, err := s.sumBeforeQuery(scope, before)
	if err != nil {
		return nil, domain.WrapErr(s.Name(), err)
	}
	return s.scanRows(ctx, scope, query, args)
}

func (s *Store) ListOrdered(ctx context.Context, scope domain.Scope, window domain.Window) ([]domain.Event, error) {
	d := s.dialect()
	var args []any
	conds := scopeConditions(d, scope, &args)

	var events []domain.Event
	err := s.db.WithContext(ctx).
		Where(strings.Join(conds, " AND "), args...).
		Where("timestamp >= ? AND timestamp < ?", window.From, window.To).
		Order("timestamp ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, domain.WrapErr(s.Name(), err)
	}
	return events, nil
}

// groupedQuery builds the count/sum/max aggregate, one result row per
// grouping-dimension combination. A nil window drops the lower time bound.
func (s *Store) groupedQuery(scope domain.Scope, window *domain.Window, op domain.AggregateOp) (string, []any, error) {
	d := s.dialect()
	var args []any

	selects, groupAliases := groupSelects(d, scope, &args)

	switch op {
	case domain.OpCount:
		selects = append(selects,
			"COUNT(*) AS value",
			"COUNT(*) AS events_count",
			"0 AS invalid_count",
		)
	case domain.OpSum:
		pred := d.propertyIsNumeric(scope.FieldName, &args)
		cast := d.propertyNumeric(scope.FieldName, &args)
		selects = append(selects,
			fmt.Sprintf("COALESCE(SUM(CASE WHEN %s THEN %s END), 0) AS value", pred, cast),
			"COUNT(*) AS events_count",
		)
		pred = d.propertyIsNumeric(scope.FieldName, &args)
		selects = append(selects,
			fmt.Sprintf("SUM(CASE WHEN %s THEN 0 ELSE 1 END) AS invalid_count", pred),
		)
	case domain.OpMax:
		pred := d.propertyIsNumeric(scope.FieldName, &args)
		cast := d.propertyNumeric(scope.FieldName, &args)
		selects = append(selects,
			fmt.Sprintf("COALESCE(MAX(CASE WHEN %s THEN %s END), 0) AS value", pred, cast),
			"COUNT(*) AS events_count",
		)
		pred = d.propertyIsNumeric(scope.FieldName, &args)
		selects = append(selects,
			fmt.Sprintf("SUM(CASE WHEN %s THEN 0 ELSE 1 END) AS invalid_count", pred),
		)
	default:
		return "", nil, fmt.Errorf("unsupported aggregate op %q", op)
	}

	conds := scopeConditions(d, scope, &args)
	if window != nil {
		conds = append(conds, "timestamp >= ?", "timestamp < ?")
		args = append(args, window.From, window.To)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM events WHERE ")
	sb.WriteString(strings.Join(conds, " AND "))
	if len(groupAliases) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groupAliases, ", "))
	}

	return sb.String(), args, nil
}

func (s *Store) sumBeforeQuery(scope domain.Scope, before time.Time) (string, []any, error) {
	query, args, err := s.groupedQuery(scope, nil, domain.OpSum)
	if err != nil {
		return "", nil, err
	}

	// Splice the upper time bound into the WHERE clause ahead of GROUP BY.
	cond := " AND timestamp < ?"
	if idx := strings.Index(query, " GROUP BY "); idx >= 0 {
		query = query[:idx] + cond + query[idx:]
	} else {
		query += cond
	}
	return query, append(args, before), nil
}

// latestQuery ranks events per group, valid numeric values first and newest
// first, then keeps the top row. Groups holding only invalid values surface
// with a NULL value, read back as zero.
func (s *Store) latestQuery(scope domain.Scope, window domain.Window) (string, []any) {
	d := s.dialect()
	var args []any

	selects, _ := groupSelects(d, scope, &args)

	pred := d.propertyIsNumeric(scope.FieldName, &args)
	cast := d.propertyNumeric(scope.FieldName, &args)
	selects = append(selects, fmt.Sprintf("CASE WHEN %s THEN %s END AS value", pred, cast))

	partition := ""
	if len(scope.GroupBy) > 0 {
		exprs := make([]string, len(scope.GroupBy))
		for i, dim := range scope.GroupBy {
			exprs[i] = d.propertyText(dim, &args)
		}
		partition = "PARTITION BY " + strings.Join(exprs, ", ")
	}

	orderPred := d.propertyIsNumeric(scope.FieldName, &args)
	selects = append(selects, fmt.Sprintf(
		"ROW_NUMBER() OVER (%s ORDER BY CASE WHEN %s THEN 0 ELSE 1 END, timestamp DESC, id DESC) AS rn",
		partition, orderPred,
	))

	windowPartition := "OVER ()"
	if partition != "" {
		var partitionArgs []any
		exprs := make([]string, len(scope.GroupBy))
		for i, dim := range scope.GroupBy {
			exprs[i] = d.propertyText(dim, &partitionArgs)
		}
		windowPartition = "OVER (PARTITION BY " + strings.Join(exprs, ", ") + ")"
		args = append(args, partitionArgs...)
	}
	selects = append(selects, fmt.Sprintf("COUNT(*) %s AS events_count", windowPartition))

	invalidPred := d.propertyIsNumeric(scope.FieldName, &args)
	if partition != "" {
		var partitionArgs []any
		exprs := make([]string, len(scope.GroupBy))
		for i, dim := range scope.GroupBy {
			exprs[i] = d.propertyText(dim, &partitionArgs)
		}
		selects = append(selects, fmt.Sprintf(
			"SUM(CASE WHEN %s THEN 0 ELSE 1 END) OVER (PARTITION BY %s) AS invalid_count",
			invalidPred, strings.Join(exprs, ", "),
		))
		args = append(args, partitionArgs...)
	} else {
		selects = append(selects, fmt.Sprintf(
			"SUM(CASE WHEN %s THEN 0 ELSE 1 END) OVER () AS invalid_count", invalidPred,
		))
	}

	conds := scopeConditions(d, scope, &args)
	conds = append(conds, "timestamp >= ?", "timestamp < ?")
	args = append(args, window.From, window.To)

	outer := make([]string, 0, len(scope.GroupBy)+3)
	for i := range scope.GroupBy {
		outer = append(outer, fmt.Sprintf("g%d", i))
	}
	outer = append(outer, "value", "events_count", "invalid_count")

	query := fmt.Sprintf(
		"SELECT %s FROM (SELECT %s FROM events WHERE %s) ranked WHERE rn = 1",
		strings.Join(outer, ", "),
		strings.Join(selects, ", "),
		strings.Join(conds, " AND "),
	)
	return query, args
}

func groupSelects(d sqlDialect, scope domain.Scope, args *[]any) (selects, aliases []string) {
	for i, dim := range scope.GroupBy {
		alias := fmt.Sprintf("g%d", i)
		selects = append(selects, fmt.Sprintf("%s AS %s", d.propertyText(dim, args), alias))
		aliases = append(aliases, alias)
	}
	return selects, aliases
}

func (s *Store) scanRows(ctx context.Context, scope domain.Scope, query string, args []any) ([]domain.AggregateRow, error) {
	rows, err := s.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, domain.WrapErr(s.Name(), err)
	}
	defer rows.Close()

	var out []domain.AggregateRow
	for rows.Next() {
		dims := make([]sql.NullString, len(scope.GroupBy))
		dest := make([]any, 0, len(dims)+3)
		for i := range dims {
			dest = append(dest, &dims[i])
		}

		var value sql.NullString
		var count, invalid sql.NullInt64
		dest = append(dest, &value, &count, &invalid)

		if err := rows.Scan(dest...); err != nil {
			return nil, domain.WrapErr(s.Name(), err)
		}

		row := domain.AggregateRow{
			Count:        count.Int64,
			InvalidCount: invalid.Int64,
		}
		if value.Valid {
			parsed, err := decimal.NewFromString(strings.TrimSpace(value.String))
			if err != nil {
				return nil, domain.WrapErr(s.Name(), fmt.Errorf("parse aggregate value %q: %w", value.String, err))
			}
			row.Value = parsed
		}
		if len(scope.GroupBy) > 0 {
			values := make(map[string]string, len(scope.GroupBy))
			for i, dim := range scope.GroupBy {
				values[dim] = dims[i].String
			}
			row.Group = domain.NewGroupKey(values)
		}

		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapErr(s.Name(), err)
	}
	return out, nil
}
