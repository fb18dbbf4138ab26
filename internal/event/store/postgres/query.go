package postgres

import (
	"fmt"
	"sort"
	"strings"

	domain "github.com/smallbiznis/tarifa/internal/event/domain"
)

// numericPattern accepts the decimal forms the aggregator can bill.
const numericPattern = `^-?[0-9]+(\.[0-9]+)?$`

// sqlDialect abstracts the JSON property access differences between the
// production postgres store and the sqlite databases the tests run on.
type sqlDialect struct {
	name string
}

// propertyText renders the SQL expression extracting a property as text.
func (d sqlDialect) propertyText(field string, args *[]any) string {
	if d.name == "sqlite" {
		*args = append(*args, "$."+field)
		return "json_extract(properties, ?)"
	}
	*args = append(*args, field)
	return "properties ->> ?"
}

// propertyNumeric renders the SQL expression casting a property to a number.
func (d sqlDialect) propertyNumeric(field string, args *[]any) string {
	if d.name == "sqlite" {
		*args = append(*args, "$."+field)
		return "CAST(json_extract(properties, ?) AS REAL)"
	}
	*args = append(*args, field)
	return "(properties ->> ?)::numeric"
}

// propertyIsNumeric renders the predicate deciding whether a property holds
// a billable numeric value. Postgres stores may carry numbers as JSON
// strings, so the check is a pattern match on the text form; sqlite relies
// on the JSON scalar type.
func (d sqlDialect) propertyIsNumeric(field string, args *[]any) string {
	if d.name == "sqlite" {
		*args = append(*args, "$."+field)
		return "json_type(properties, ?) IN ('integer', 'real')"
	}
	*args = append(*args, field, numericPattern)
	return "properties ->> ? ~ ?"
}

// scopeConditions renders the WHERE fragments common to every query:
// subscription scope, dimension filters, and exclusion of events claimed by
// other charge filters.
func scopeConditions(d sqlDialect, scope domain.Scope, args *[]any) []string {
	conds := []string{
		"org_id = ?",
		"external_subscription_id = ?",
		"code = ?",
	}
	*args = append(*args, scope.OrgID, scope.ExternalSubscriptionID, scope.Code)

	for _, dim := range sortedKeys(scope.Filters) {
		values := scope.Filters[dim]
		if len(values) == 0 {
			continue
		}
		conds = append(conds, fmt.Sprintf("%s IN %s", d.propertyText(dim, args), placeholders(len(values))))
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
			inner = append(inner, fmt.Sprintf("%s IN %s", d.propertyText(dim, args), placeholders(len(values))))
			for _, v := range values {
				*args = append(*args, v)
			}
		}
		if len(inner) > 0 {
			conds = append(conds, "NOT ("+strings.Join(inner, " AND ")+")")
		}
	}

	return conds
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
