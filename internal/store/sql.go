package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ppiankov/vitals/internal/logging"
	"github.com/ppiankov/vitals/internal/model"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 2
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute

	// upsertChunk bounds the bind parameters of one statement
	upsertChunk = 500
)

// dialect captures the differences between the SQL backends
type dialect struct {
	name string

	// timestampType is the column type of extracted_at/updated_at
	timestampType string

	// toTimestamp wraps a bind parameter holding epoch seconds
	toTimestamp func(param string) string

	// toEpoch renders a timestamp column as epoch seconds
	toEpoch func(col string) string
}

var postgresDialect = dialect{
	name:          "postgres",
	timestampType: "TIMESTAMPTZ",
	toTimestamp:   func(p string) string { return "to_timestamp(" + p + ")" },
	toEpoch:       func(c string) string { return "EXTRACT(EPOCH FROM " + c + ")::float8" },
}

var sqliteDialect = dialect{
	name:          "sqlite",
	timestampType: "REAL",
	toTimestamp:   func(p string) string { return p },
	toEpoch:       func(c string) string { return c },
}

// SQLStore implements Store over postgres or sqlite through sqlx
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
	table   string
	logger  logging.Logger
}

// OpenPostgres connects to a PostgreSQL database
func OpenPostgres(ctx context.Context, dsn, table string, logger logging.Logger) (*SQLStore, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, &model.PersistenceError{Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	return NewSQLStore(db, table, logger), nil
}

// OpenSQLite opens (creating if needed) a SQLite database file in WAL mode
func OpenSQLite(ctx context.Context, path, table string, logger logging.Logger) (*SQLStore, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	dsn := path
	if !strings.Contains(path, "?") {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, &model.PersistenceError{Op: "connect", Err: err}
	}
	// One writer at a time
	db.SetMaxOpenConns(1)
	return NewSQLStore(db, table, logger), nil
}

// NewSQLStore wraps an open connection. The dialect follows db.DriverName().
func NewSQLStore(db *sqlx.DB, table string, logger logging.Logger) *SQLStore {
	d := postgresDialect
	if db.DriverName() == "sqlite" {
		d = sqliteDialect
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SQLStore{db: db, dialect: d, table: table, logger: logger}
}

// EnsureSchema creates the table when it does not exist
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.createTableSQL()); err != nil {
		return &model.PersistenceError{Op: "create table", Err: err}
	}
	s.logger.Info("table ready", logging.String("table", s.table), logging.String("driver", s.dialect.name))
	return nil
}

func (s *SQLStore) createTableSQL() string {
	ts := s.dialect.timestampType
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	country TEXT NOT NULL,
	year INTEGER NOT NULL,
	marriage_rate REAL,
	divorce_rate REAL,
	extracted_at %s,
	updated_at %s,
	PRIMARY KEY (country, year)
)`, s.table, ts, ts)
}

// Upsert writes all records in one transaction; either every row is written or none
func (s *SQLStore) Upsert(ctx context.Context, records []model.FlatRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, &model.PersistenceError{Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	written := 0
	for start := 0; start < len(records); start += upsertChunk {
		end := min(start+upsertChunk, len(records))
		query, args := s.upsertSQL(records[start:end])

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, &model.PersistenceError{Op: "upsert", Err: err}
		}
		n, err := res.RowsAffected()
		if err != nil {
			// Driver cannot report; count what was submitted
			n = int64(end - start)
		}
		written += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, &model.PersistenceError{Op: "commit", Err: err}
	}
	return written, nil
}

func (s *SQLStore) upsertSQL(records []model.FlatRecord) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", s.table, strings.Join(model.Columns, ", "))

	args := make([]any, 0, len(records)*len(model.Columns))
	for i, r := range records {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "(?, ?, ?, ?, %s, %s)", s.dialect.toTimestamp("?"), s.dialect.toTimestamp("?"))
		args = append(args, r.Country, r.Year, nullable(r.MarriageRate), nullable(r.DivorceRate), nullable(r.ExtractedAt), nullable(r.UpdatedAt))
	}

	b.WriteString(" ON CONFLICT (country, year) DO UPDATE SET ")
	b.WriteString("marriage_rate = excluded.marriage_rate, ")
	b.WriteString("divorce_rate = excluded.divorce_rate, ")
	b.WriteString("extracted_at = excluded.extracted_at, ")
	b.WriteString("updated_at = excluded.updated_at")

	return s.db.Rebind(b.String()), args
}

// nullable turns an optional float into a driver value
func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Select returns the table rows with timestamps as epoch seconds
func (s *SQLStore) Select(ctx context.Context, q Query) ([]model.FlatRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, &model.PersistenceError{Op: "select", Err: err}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT country, year, marriage_rate, divorce_rate, %s AS extracted_at, %s AS updated_at FROM %s",
		s.dialect.toEpoch("extracted_at"), s.dialect.toEpoch("updated_at"), s.table)

	if len(q.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range q.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(o.Column)
			if o.Desc {
				b.WriteString(" DESC")
			}
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}

	rows := []model.FlatRecord{}
	if err := s.db.SelectContext(ctx, &rows, b.String()); err != nil {
		return nil, &model.PersistenceError{Op: "select", Err: err}
	}
	return rows, nil
}

// Ping checks the connection
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &model.PersistenceError{Op: "ping", Err: err}
	}
	return nil
}

// Close closes the connection pool
func (s *SQLStore) Close() error {
	return s.db.Close()
}
