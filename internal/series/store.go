package series

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"hash/maphash"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/zermelo/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - measurements catalog
const currentSchemaVersion = 1

// Fixed column names of every measurement table.
const (
	ColumnSeq     = "seq"
	ColumnSeries  = "series"
	ColumnID      = "id"
	ColumnTime    = "time"
	ColumnDeleted = "_deleted"
)

var fixedColumns = map[string]bool{
	ColumnSeq:     true,
	ColumnSeries:  true,
	ColumnID:      true,
	ColumnTime:    true,
	ColumnDeleted: true,
}

// ErrNoColumns is returned by Query when a measurement it reads does not
// exist yet, so its columns cannot be looked up.
var ErrNoColumns = errors.New("couldn't look up columns")

// FieldNotFoundError is returned by Query when it references a field that
// was never written to the measurement.
type FieldNotFoundError struct {
	Field string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %q does not exist", e.Field)
}

// IsFieldNotFound reports whether err is a FieldNotFoundError.
// Uses errors.As to handle wrapped errors.
func IsFieldNotFound(err error) bool {
	var fe *FieldNotFoundError
	return errors.As(err, &fe)
}

// Clock supplies point write times.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configures a Store.
type Options struct {
	Logger *slog.Logger

	// Clock stamps written points. Defaults to the system clock.
	Clock Clock
}

// Store is a SQLite-backed series store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	clock  Clock

	mu      sync.Mutex
	columns map[string]map[string]bool // measurement -> field columns

	// writes to one series hold its stripe
	seed    maphash.Seed
	stripes [writeStripes]sync.Mutex
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the catalog schema automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Store{
		db:      db,
		logger:  logging.Component(opts.Logger, "series"),
		clock:   clock,
		columns: make(map[string]map[string]bool),
		seed:    maphash.MakeSeed(),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the catalog if it doesn't exist and stamps the schema
// version. This function is idempotent.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Key returns the series key of id in measurement.
func Key(measurement, id string) string {
	return measurement + "/" + id
}

// SplitKey splits a series key into measurement and id.
func SplitKey(series string) (measurement, id string, ok bool) {
	measurement, id, ok = strings.Cut(series, "/")
	if !ok || measurement == "" || id == "" {
		return "", "", false
	}
	return measurement, id, true
}

// QuoteIdent quotes an SQL identifier, doubling embedded double quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// classify maps SQLite errors onto the store's error values.
func classify(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	msg := se.Error()
	if field, ok := strings.CutPrefix(msg, "no such column: "); ok {
		return &FieldNotFoundError{Field: field}
	}
	if strings.HasPrefix(msg, "no such table: ") {
		return fmt.Errorf("%w: %s", ErrNoColumns, msg)
	}
	return err
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
