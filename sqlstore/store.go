// Package sqlstore persists DiffSets in a SQL database. SQLite, PostgreSQL
// and MySQL are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/fwojciec/diffset"
	"github.com/go-sql-driver/mysql"  // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// Compile-time interface verification.
var _ diffset.Store = (*Store)(nil)

// Backend names a supported database.
type Backend string

// Supported backends.
const (
	SQLite     Backend = "sqlite"
	PostgreSQL Backend = "postgresql"
	MySQL      Backend = "mysql"
)

// DefaultTable is the table DiffSets are stored in.
const DefaultTable = "diffsets"

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// Store implements diffset.Store on database/sql.
type Store struct {
	db      *sql.DB
	table   string
	backend Backend
	Now     func() time.Time
}

// Open connects to the database and creates the table if needed.
//
// dsn is a file path for SQLite, a connection string such as
// "host=localhost port=5432 user=postgres dbname=diffset" for PostgreSQL,
// and user:password@tcp(host:port)/dbname for MySQL.
func Open(ctx context.Context, backend Backend, dsn, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	var db *sql.DB
	var err error

	switch backend {
	case SQLite:
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database at %q: %w", dsn, err)
		}
		// Limit SQLite to a single open connection to avoid "database is locked" errors
		db.SetMaxOpenConns(1)

	case PostgreSQL:
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}

	case MySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid MySQL DSN, expected user:password@tcp(host:port)/dbname: %w", err)
		}
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		db = sql.OpenDB(connector)

	default:
		return nil, fmt.Errorf("unsupported store backend %q: must be sqlite, postgresql, or mysql", backend)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", backend, err)
	}

	if _, err := db.ExecContext(ctx, createTableQuery(table, backend)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}

	return &Store{db: db, table: table, backend: backend, Now: time.Now}, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces ds. The finalized flag is left untouched.
func (s *Store) Save(ctx context.Context, ds *diffset.DiffSet) error {
	if ds.ID == "" {
		return errors.New("sqlstore: cannot save a diffset without an ID")
	}
	payload, err := json.Marshal(ds)
	if err != nil {
		return err
	}
	now := s.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, s.upsertQuery(), ds.ID, payload, now, now)
	if err != nil {
		return fmt.Errorf("failed to save diffset %s: %w", ds.ID, err)
	}
	return nil
}

// Load returns the DiffSet with id.
func (s *Store) Load(ctx context.Context, id string) (*diffset.DiffSet, error) {
	var payload []byte
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE id = %s`, s.quotedTable(), s.placeholder(1))
	err := s.db.QueryRowContext(ctx, query, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, diffset.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load diffset %s: %w", id, err)
	}

	var ds diffset.DiffSet
	if err := json.Unmarshal(payload, &ds); err != nil {
		return nil, fmt.Errorf("corrupt diffset %s: %w", id, err)
	}
	return &ds, nil
}

// Finalize marks the DiffSet's history as published.
func (s *Store) Finalize(ctx context.Context, id string) error {
	if _, err := s.finalized(ctx, id); err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET finalized = 1, updated_at = %s WHERE id = %s`,
		s.quotedTable(), s.placeholder(1), s.placeholder(2))
	if _, err := s.db.ExecContext(ctx, query, s.Now().UnixMilli(), id); err != nil {
		return fmt.Errorf("failed to finalize diffset %s: %w", id, err)
	}
	return nil
}

// IsFinalized reports whether Finalize has been called for id. Unknown IDs
// are not finalized.
func (s *Store) IsFinalized(ctx context.Context, id string) (bool, error) {
	finalized, err := s.finalized(ctx, id)
	if errors.Is(err, diffset.ErrNotFound) {
		return false, nil
	}
	return finalized, err
}

func (s *Store) finalized(ctx context.Context, id string) (bool, error) {
	var flag int
	query := fmt.Sprintf(`SELECT finalized FROM %s WHERE id = %s`, s.quotedTable(), s.placeholder(1))
	err := s.db.QueryRowContext(ctx, query, id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", id, diffset.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read diffset %s: %w", id, err)
	}
	return flag != 0, nil
}

// createTableQuery returns the CREATE TABLE query for the given backend.
func createTableQuery(table string, backend Backend) string {
	quoted := quoteTableName(table, backend)
	switch backend {
	case MySQL:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(255) PRIMARY KEY,
				payload LONGBLOB NOT NULL,
				finalized TINYINT NOT NULL DEFAULT 0,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			);
		`, quoted)

	case PostgreSQL:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				payload BYTEA NOT NULL,
				finalized INTEGER NOT NULL DEFAULT 0,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			);
		`, quoted)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				payload BLOB NOT NULL,
				finalized INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);
		`, quoted)
	}
}

// upsertQuery returns the UPSERT query for the backend. Its parameters are
// id, payload, created_at and updated_at.
func (s *Store) upsertQuery() string {
	quoted := s.quotedTable()
	switch s.backend {
	case MySQL:
		return fmt.Sprintf(`INSERT INTO %s (id, payload, created_at, updated_at) VALUES (?, ?, ?, ?) AS new
			ON DUPLICATE KEY UPDATE payload = new.payload, updated_at = new.updated_at`, quoted)

	case PostgreSQL:
		return fmt.Sprintf(`INSERT INTO %s (id, payload, created_at, updated_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`, quoted)

	default: // SQLite
		return fmt.Sprintf(`INSERT INTO %s (id, payload, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`, quoted)
	}
}

// placeholder returns the nth parameter placeholder for the backend.
func (s *Store) placeholder(n int) string {
	switch s.backend {
	case PostgreSQL:
		return fmt.Sprintf("$%d", n)
	default: // SQLite and MySQL
		return "?"
	}
}

func (s *Store) quotedTable() string {
	return quoteTableName(s.table, s.backend)
}

func quoteTableName(table string, backend Backend) string {
	if backend == MySQL {
		return "`" + table + "`"
	}
	return `"` + table + `"`
}
