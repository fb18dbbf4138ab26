package clickhouse

import (
	"time"

	domain "github.com/smallbiznis/tarifa/internal/event/domain"
)

// daySpan is the run of whole UTC days inside a window, [from, to).
type daySpan struct {
	from time.Time
	to   time.Time
}

func (s daySpan) empty() bool { return !s.from.Before(s.to) }

// splitWindow cuts a window into a raw head, a span of whole days served
// by the daily rollup, and a raw tail. Either raw part may be empty when
// the window is already day-aligned.
func splitWindow(w domain.Window) (head domain.Window, days daySpan, tail domain.Window) {
	firstFull := w.From.Truncate(24 * time.Hour)
	if firstFull.Before(w.From) {
		firstFull = firstFull.Add(24 * time.Hour)
	}
	lastFull := w.To.Truncate(24 * time.Hour)

	if !firstFull.Before(lastFull) {
		// No whole day inside the window; everything is read raw.
		return w, daySpan{}, domain.Window{}
	}

	head = domain.Window{From: w.From, To: firstFull}
	days = daySpan{from: firstFull, to: lastFull}
	tail = domain.Window{From: lastFull, To: w.To}
	return head, days, tail
}

func emptyWindow(w domain.Window) bool { return !w.From.Before(w.To) }

// mergeRows folds partial aggregation results into one result set keyed by
// group. Counts always add; the value combines per the operation.
func mergeRows(op domain.AggregateOp, parts ...[]domain.AggregateRow) []domain.AggregateRow {
	merged := make(map[domain.GroupKey]domain.AggregateRow)
	var order []domain.GroupKey

	for _, part := range parts {
		for _, row := range part {
			existing, seen := merged[row.Group]
			if !seen {
				merged[row.Group] = row
				order = append(order, row.Group)
				continue
			}

			existing.Count += row.Count
			existing.InvalidCount += row.InvalidCount
			switch op {
			case domain.OpMax:
				if row.Value.GreaterThan(existing.Value) {
					existing.Value = row.Value
				}
			default:
				existing.Value = existing.Value.Add(row.Value)
			}
			merged[row.Group] = existing
		}
	}

	out := make([]domain.AggregateRow, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	return out
}
