package series

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/maphash"
	"sort"
	"strings"
	"sync"
	"time"
)

// Fields are the field values of one point. Values may be nil, string,
// bool, int, int64, float64, time.Time or []string; nil writes NULL.
type Fields map[string]any

const writeStripes = 64

func (s *Store) stripe(series string) *sync.Mutex {
	return &s.stripes[maphash.String(s.seed, series)%writeStripes]
}

// WritePoint appends a point to series. Columns for fields never written
// before are added first.
func (s *Store) WritePoint(ctx context.Context, series string, fields Fields) error {
	l := s.stripe(series)
	l.Lock()
	defer l.Unlock()
	return s.write(ctx, series, fields, false)
}

// Tombstone appends a deletion marker to series. Readers of the latest
// point no longer see the series.
func (s *Store) Tombstone(ctx context.Context, series string) error {
	l := s.stripe(series)
	l.Lock()
	defer l.Unlock()
	return s.write(ctx, series, nil, true)
}

// Update appends the point fn derives from the latest point of series.
// prev is nil and live is false when the series has no live point. fn
// returns write false to leave the series alone.
//
// Updates and writes of one series are serialized, so concurrent
// read-modify-write cycles never drop each other's changes. fn must not
// write to the store itself.
func (s *Store) Update(ctx context.Context, series string, fn func(prev Fields, live bool) (next Fields, write bool, err error)) error {
	l := s.stripe(series)
	l.Lock()
	defer l.Unlock()

	prev, live, err := s.Latest(ctx, series)
	if err != nil {
		return err
	}
	next, write, err := fn(prev, live)
	if err != nil || !write {
		return err
	}
	return s.write(ctx, series, next, false)
}

func (s *Store) write(ctx context.Context, series string, fields Fields, deleted bool) error {
	measurement, id, ok := SplitKey(series)
	if !ok {
		return fmt.Errorf("invalid series key %q", series)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if fixedColumns[name] {
			return fmt.Errorf("series %s: field %q is reserved", series, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	cols := []string{ColumnSeries, ColumnID, ColumnTime, ColumnDeleted}
	args := []any{series, id, s.clock.Now().UnixNano(), deleted}
	for _, name := range names {
		v, err := encodeField(fields[name])
		if err != nil {
			return fmt.Errorf("series %s: field %s: %w", series, name, err)
		}
		cols = append(cols, name)
		args = append(args, v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureColumns(ctx, measurement, names); err != nil {
		return err
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = QuoteIdent(c)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdent(measurement),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("write %s: %w", series, classify(err))
	}
	return nil
}

// ensureColumns creates the measurement table and any missing field
// columns. Callers hold s.mu.
func (s *Store) ensureColumns(ctx context.Context, measurement string, fields []string) error {
	known, err := s.loadColumns(ctx, measurement)
	if err != nil {
		return err
	}

	if known == nil {
		if err := s.createMeasurement(ctx, measurement); err != nil {
			return err
		}
		known = map[string]bool{}
		s.columns[measurement] = known
	}

	for _, f := range fields {
		if known[f] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", QuoteIdent(measurement), QuoteIdent(f))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", measurement, f, err)
		}
		known[f] = true
		s.logger.DebugContext(ctx, "added field column", "measurement", measurement, "field", f)
	}
	return nil
}

func (s *Store) createMeasurement(ctx context.Context, measurement string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	table := QuoteIdent(measurement)
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			series TEXT NOT NULL,
			id TEXT NOT NULL,
			time INTEGER NOT NULL,
			_deleted INTEGER NOT NULL DEFAULT 0
		)`, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(series, seq)", QuoteIdent("idx_"+measurement+"_series"), table),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create measurement %s: %w", measurement, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO measurements (name, created_at) VALUES (?, ?)",
		measurement, s.clock.Now().UnixNano()); err != nil {
		return fmt.Errorf("record measurement %s: %w", measurement, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.DebugContext(ctx, "created measurement", "measurement", measurement)
	return nil
}

// loadColumns returns the field columns of measurement, or nil if the
// table does not exist. Callers hold s.mu.
func (s *Store) loadColumns(ctx context.Context, measurement string) (map[string]bool, error) {
	if known, ok := s.columns[measurement]; ok {
		return known, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", QuoteIdent(measurement)))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", measurement, err)
	}
	defer rows.Close()

	var known map[string]bool
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		if known == nil {
			known = map[string]bool{}
		}
		if !fixedColumns[name] {
			known[name] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table info %s: %w", measurement, err)
	}
	if known != nil {
		s.columns[measurement] = known
	}
	return known, nil
}

// Columns returns the field columns of measurement, sorted. A measurement
// that was never written has none.
func (s *Store) Columns(ctx context.Context, measurement string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	known, err := s.loadColumns(ctx, measurement)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(known))
	for name := range known {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Measurements returns every measurement in the catalog, sorted.
func (s *Store) Measurements(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM measurements ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func encodeField(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return val, nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case float64:
		return val, nil
	case time.Time:
		return val.UnixNano(), nil
	case []string:
		if val == nil {
			val = []string{}
		}
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("unsupported field type %T", v)
	}
}
