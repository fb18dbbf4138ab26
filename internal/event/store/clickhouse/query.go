package clickhouse

import (
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/smallbiznis/tarifa/internal/event/domain"
)

// fieldValue parses the scoped property into Nullable(Float64). Numbers
// stored as JSON strings are accepted too; anything else comes back NULL
// and counts as invalid.
func fieldValue(field string, args *[]any) string {
	*args = append(*args, field)
	return `toFloat64OrNull(trim(BOTH '"' FROM JSONExtractRaw(properties, ?)))`
}

func dimensionExpr(dim string, args *[]any) string {
	*args = append(*args, dim)
	return "JSONExtractString(properties, ?)"
}

// scopeConditions renders the PREWHERE scope plus dimension filters and
// charge-filter exclusions.
func scopeConditions(scope domain.Scope, args *[]any) (prewhere, where []string) {
	prewhere = []string{
		"org_id = ?",
		"external_subscription_id = ?",
		"code = ?",
	}
	*args = append(*args, int64(scope.OrgID), scope.ExternalSubscriptionID, scope.Code)

	for _, dim := range sortedKeys(scope.Filters) {
		values := scope.Filters[dim]
		if len(values) == 0 {
			continue
		}
		where = append(where, fmt.Sprintf("%s IN %s", dimensionExpr(dim, args), placeholders(len(values))))
		for _, v := range values {
			*args = append(*args, v)
		}
	}

	for _, excluded := range scope.ExcludeFilters {
		var inner []string
		for _, dim := range sortedKeys(excluded) {
			values := excluded[dim]
			if len(values) == 0 {
				continue
			}
			inner = append(inner, fmt.Sprintf("%s IN %s", dimensionExpr(dim, args), placeholders(len(values))))
			for _, v := range values {
				*args = append(*args, v)
			}
		}
		if len(inner) > 0 {
			where = append(where, "NOT ("+strings.Join(inner, " AND ")+")")
		}
	}

	return prewhere, where
}

// aggregateQuery builds the raw-table query for count/sum/max. Latest has
// its own builder.
func aggregateQuery(table string, scope domain.Scope, window *domain.Window, op domain.AggregateOp) (string, []any) {
	var args []any

	var selects []string
	groupAliases := make([]string, 0, len(scope.GroupBy))
	for i, dim := range scope.GroupBy {
		alias := fmt.Sprintf("g%d", i)
		selects = append(selects, fmt.Sprintf("%s AS %s", dimensionExpr(dim, &args), alias))
		groupAliases = append(groupAliases, alias)
	}

	switch op {
	case domain.OpCount:
		selects = append(selects,
			"toFloat64(count()) AS value",
			"count() AS events_count",
			"toUInt64(0) AS invalid_count",
		)
	case domain.OpSum:
		v := fieldValue(scope.FieldName, &args)
		selects = append(selects,
			fmt.Sprintf("sum(ifNull(%s, 0)) AS value", v),
			"count() AS events_count",
		)
		v = fieldValue(scope.FieldName, &args)
		selects = append(selects, fmt.Sprintf("countIf(isNull(%s)) AS invalid_count", v))
	case domain.OpMax:
		v := fieldValue(scope.FieldName, &args)
		selects = append(selects,
			fmt.Sprintf("max(ifNull(%s, 0)) AS value", v),
			"count() AS events_count",
		)
		v = fieldValue(scope.FieldName, &args)
		selects = append(selects, fmt.Sprintf("countIf(isNull(%s)) AS invalid_count", v))
	}

	prewhere, where := scopeConditions(scope, &args)
	if window != nil {
		prewhere = append(prewhere, "timestamp >= ?", "timestamp < ?")
		args = append(args, window.From, window.To)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s PREWHERE %s",
		strings.Join(selects, ", "), table, strings.Join(prewhere, " AND "))
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if len(groupAliases) > 0 {
		sb.WriteString(" GROUP BY " + strings.Join(groupAliases, ", "))
	}

	return sb.String(), args
}

// sumBeforeQuery sums the scoped field over all events strictly before an
// instant, with no lower time bound.
func sumBeforeQuery(table string, scope domain.Scope, before time.Time) (string, []any) {
	var args []any

	var selects []string
	groupAliases := make([]string, 0, len(scope.GroupBy))
	for i, dim := range scope.GroupBy {
		alias := fmt.Sprintf("g%d", i)
		selects = append(selects, fmt.Sprintf("%s AS %s", dimensionExpr(dim, &args), alias))
		groupAliases = append(groupAliases, alias)
	}

	v := fieldValue(scope.FieldName, &args)
	selects = append(selects,
		fmt.Sprintf("sum(ifNull(%s, 0)) AS value", v),
		"count() AS events_count",
	)
	v = fieldValue(scope.FieldName, &args)
	selects = append(selects, fmt.Sprintf("countIf(isNull(%s)) AS invalid_count", v))

	prewhere, where := scopeConditions(scope, &args)
	prewhere = append(prewhere, "timestamp < ?")
	args = append(args, before)

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s PREWHERE %s",
		strings.Join(selects, ", "), table, strings.Join(prewhere, " AND "))
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if len(groupAliases) > 0 {
		sb.WriteString(" GROUP BY " + strings.Join(groupAliases, ", "))
	}

	return sb.String(), args
}

// latestQuery keeps, per group, the newest event carrying a parseable
// value. argMax over (validity, timestamp, id) ranks valid rows above
// invalid ones before recency.
func latestQuery(table string, scope domain.Scope, window domain.Window) (string, []any) {
	var args []any

	var selects []string
	groupAliases := make([]string, 0, len(scope.GroupBy))
	for i, dim := range scope.GroupBy {
		alias := fmt.Sprintf("g%d", i)
		selects = append(selects, fmt.Sprintf("%s AS %s", dimensionExpr(dim, &args), alias))
		groupAliases = append(groupAliases, alias)
	}

	v := fieldValue(scope.FieldName, &args)
	rank := fieldValue(scope.FieldName, &args)
	selects = append(selects, fmt.Sprintf(
		"argMax(ifNull(%s, 0), (isNotNull(%s), timestamp, id)) AS value", v, rank))
	selects = append(selects, "count() AS events_count")

	v = fieldValue(scope.FieldName, &args)
	selects = append(selects, fmt.Sprintf("countIf(isNull(%s)) AS invalid_count", v))

	prewhere, where := scopeConditions(scope, &args)
	prewhere = append(prewhere, "timestamp >= ?", "timestamp < ?")
	args = append(args, window.From, window.To)

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s PREWHERE %s",
		strings.Join(selects, ", "), table, strings.Join(prewhere, " AND "))
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if len(groupAliases) > 0 {
		sb.WriteString(" GROUP BY " + strings.Join(groupAliases, ", "))
	}

	return sb.String(), args
}

// bucketQuery folds the daily rollup rows covering full days of the
// window. Buckets are keyed by field name and carry no dimension columns,
// so the caller only routes ungrouped, unfiltered scopes here.
func bucketQuery(table string, scope domain.Scope, span daySpan, op domain.AggregateOp) (string, []any) {
	value := "sum(sum_value)"
	if op == domain.OpMax {
		value = "max(max_value)"
	}
	if op == domain.OpCount {
		value = "toFloat64(sum(events_count))"
	}

	query := fmt.Sprintf(
		"SELECT %s AS value, sum(events_count) AS events_count, sum(invalid_count) AS invalid_count "+
			"FROM %s PREWHERE org_id = ? AND external_subscription_id = ? AND code = ? AND field_name = ? "+
			"AND day >= ? AND day < ?",
		value, table,
	)
	args := []any{
		int64(scope.OrgID), scope.ExternalSubscriptionID, scope.Code, scope.FieldName,
		span.from, span.to,
	}
	return query, args
}

func listQuery(table string, scope domain.Scope, window domain.Window) (string, []any) {
	var args []any
	prewhere, where := scopeConditions(scope, &args)
	prewhere = append(prewhere, "timestamp >= ?", "timestamp < ?")
	args = append(args, window.From, window.To)

	var sb strings.Builder
	fmt.Fprintf(&sb,
		"SELECT id, transaction_id, org_id, external_subscription_id, code, timestamp, properties FROM %s PREWHERE %s",
		table, strings.Join(prewhere, " AND "))
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY timestamp ASC, id ASC")

	return sb.String(), args
}

func placeholders(n int) string {
	return "(?" + strings.Repeat(", ?", n-1) + ")"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
