package series

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Series is the rows of one series in a query result. Columns excludes the
// leading series column.
type Series struct {
	Key     string
	Columns []string
	Values  [][]any
}

// Result is a query response grouped by series, in the order each series
// first appeared in the rows.
type Result struct {
	Series []Series
}

// Len returns the number of rows across all series.
func (r Result) Len() int {
	n := 0
	for _, s := range r.Series {
		n += len(s.Values)
	}
	return n
}

// Query runs a statement whose first selected column is the series key and
// groups the rows per series.
//
// A reference to a field never written returns *FieldNotFoundError; a read
// of a measurement that does not exist returns ErrNoColumns.
func (s *Store) Query(ctx context.Context, query string) (Result, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return Result{}, classify(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("columns: %w", err)
	}
	if len(cols) == 0 || cols[0] != ColumnSeries {
		return Result{}, fmt.Errorf("query must select %s first, got %v", ColumnSeries, cols)
	}

	var res Result
	pos := map[string]int{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}

		key := asString(vals[0])
		i, ok := pos[key]
		if !ok {
			i = len(res.Series)
			pos[key] = i
			res.Series = append(res.Series, Series{Key: key, Columns: cols[1:]})
		}
		res.Series[i].Values = append(res.Series[i].Values, normalizeRow(vals[1:]))
	}
	if err := rows.Err(); err != nil {
		return Result{}, classify(err)
	}

	s.logger.DebugContext(ctx, "query", "sql", query, "series", len(res.Series))
	return res, nil
}

// Latest returns the field values of the newest point of series. The
// second result is false when the series has no points or its newest point
// is a tombstone. NULL fields are omitted.
func (s *Store) Latest(ctx context.Context, series string) (Fields, bool, error) {
	measurement, _, ok := SplitKey(series)
	if !ok {
		return nil, false, fmt.Errorf("invalid series key %q", series)
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE series = ? ORDER BY seq DESC LIMIT 1", QuoteIdent(measurement))
	rows, err := s.db.QueryContext(ctx, query, series)
	if err != nil {
		if err = classify(err); errors.Is(err, ErrNoColumns) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, false, fmt.Errorf("columns: %w", err)
	}
	if !rows.Next() {
		return nil, false, rows.Err()
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, false, fmt.Errorf("scan row: %w", err)
	}

	fields := Fields{}
	for i, col := range cols {
		v := normalize(vals[i])
		switch {
		case col == ColumnDeleted:
			if n, ok := v.(int64); ok && n != 0 {
				return nil, false, nil
			}
		case fixedColumns[col], v == nil:
		default:
			fields[col] = v
		}
	}
	return fields, true, rows.Err()
}

// normalize converts driver values to int64, float64, string or nil.
func normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case sql.RawBytes:
		return string(val)
	default:
		return val
	}
}

func normalizeRow(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = normalize(v)
	}
	return out
}

func asString(v any) string {
	switch val := normalize(v).(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
