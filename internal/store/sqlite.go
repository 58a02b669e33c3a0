package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-enrich/internal/model"
)

// SQLiteStore implements ResultStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS results (
	key               TEXT PRIMARY KEY,
	company_key       TEXT NOT NULL,
	company_name      TEXT NOT NULL,
	person_name       TEXT NOT NULL,
	title             TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	confidence        REAL NOT NULL DEFAULT 0,
	source            TEXT NOT NULL DEFAULT '',
	found_at          TEXT NOT NULL,
	metadata          TEXT NOT NULL DEFAULT '{}',
	validation_status TEXT NOT NULL DEFAULT 'pending'
);

CREATE INDEX IF NOT EXISTS idx_results_company_key ON results(company_key);
`

// Migrate creates the results table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectResult = `SELECT company_name, person_name, title, email, confidence, source, found_at, metadata, validation_status FROM results`

// AddResult implements ResultStore. The compare and write happen in one
// transaction so concurrent writers cannot lose the better record.
func (s *SQLiteStore) AddResult(ctx context.Context, r Record) (bool, error) {
	key := r.Key()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin add result")
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := scanRecord(tx.QueryRowContext(ctx, selectResult+` WHERE key = ?`, key))
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return false, err
	case !ShouldUpdate(*existing, r):
		return false, nil
	}

	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal metadata")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO results (key, company_key, company_name, person_name, title, email, confidence, source, found_at, metadata, validation_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   company_name = excluded.company_name,
		   person_name = excluded.person_name,
		   title = excluded.title,
		   email = excluded.email,
		   confidence = excluded.confidence,
		   source = excluded.source,
		   found_at = excluded.found_at,
		   metadata = excluded.metadata,
		   validation_status = excluded.validation_status`,
		key, strings.ToLower(r.CompanyName), r.CompanyName, r.PersonName, r.Title, r.Email,
		r.Confidence, string(r.Source), r.FoundAt.UTC().Format(time.RFC3339Nano), string(meta), string(r.ValidationStatus),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert result %s", key)
	}
	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit add result")
	}
	return true, nil
}

// GetResult implements ResultStore.
func (s *SQLiteStore) GetResult(ctx context.Context, key string) (*Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, selectResult+` WHERE key = ?`, key))
}

// GetCompanyResults implements ResultStore.
func (s *SQLiteStore) GetCompanyResults(ctx context.Context, company string) ([]Record, error) {
	return s.query(ctx, selectResult+` WHERE company_key = ?`, strings.ToLower(company))
}

// AllResults implements ResultStore.
func (s *SQLiteStore) AllResults(ctx context.Context) ([]Record, error) {
	return s.query(ctx, selectResult)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query results")
	}
	defer rows.Close() //nolint:errcheck

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: query results iterate")
	}
	sortRecords(out)
	return out, nil
}

// RemoveResult implements ResultStore.
func (s *SQLiteStore) RemoveResult(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE key = ?`, key)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: delete result %s", key)
	}
	if err := checkRowsAffected(res, "result", key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Stats implements ResultStore. Storage size is the database's page usage.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	all, err := s.AllResults(ctx)
	if err != nil {
		return Stats{}, err
	}
	var pages, pageSize int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pages); err != nil {
		return Stats{}, eris.Wrap(err, "sqlite: page count")
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return Stats{}, eris.Wrap(err, "sqlite: page size")
	}
	return summarize(all, pages*pageSize), nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*Record, error) {
	var (
		r       Record
		source  string
		status  string
		foundAt string
		meta    string
	)
	err := row.Scan(&r.CompanyName, &r.PersonName, &r.Title, &r.Email, &r.Confidence, &source, &foundAt, &meta, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan result")
	}
	r.Source = model.Source(source)
	r.ValidationStatus = ValidationStatus(status)
	if r.FoundAt, err = time.Parse(time.RFC3339Nano, foundAt); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse found_at %q", foundAt)
	}
	if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal metadata")
	}
	return &r, nil
}
