// Package storage persists disaggregation results in a SQLite database.
//
// Each result is one row carrying its key columns, for filtering, and its bin
// edges, matrix and marginals as JSON documents. Rows are identified by a
// random UUID returned from Save as the artifact id.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/quakedisagg/internal/disagg"
	"github.com/rewired-gh/quakedisagg/internal/models"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// ErrNotFound is returned when no result has the requested id
var ErrNotFound = errors.New("result not found")

const schema = `
CREATE TABLE IF NOT EXISTS disagg_results (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	site_id            INTEGER NOT NULL,
	rlz_id             INTEGER NOT NULL,
	imt                TEXT NOT NULL,
	sa_period          REAL NOT NULL,
	sa_damping         REAL NOT NULL,
	poe                REAL NOT NULL,
	iml                REAL NOT NULL,
	lon                REAL NOT NULL,
	lat                REAL NOT NULL,
	investigation_time REAL NOT NULL,
	edges              TEXT NOT NULL,
	trts               TEXT NOT NULL,
	matrix             TEXT NOT NULL,
	marginals          TEXT NOT NULL,
	created_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_disagg_results_site ON disagg_results (site_id, rlz_id);
`

// Store is a SQLite-backed disagg.ResultStore
type Store struct {
	db *sql.DB
}

// Result is a stored record with its artifact id
type Result struct {
	ID string `json:"id"`
	disagg.Record
}

// Entry is the listing view of a result, without its arrays
type Entry struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Key       models.Key `json:"key"`
	CreatedAt time.Time  `json:"created_at"`
}

// Filter narrows List. Nil and zero fields match everything.
type Filter struct {
	SiteID        *int
	RealizationID *int
	IMT           string // Rendered form, e.g. "PGA" or "SA(0.2)"
	Limit         int
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens or creates the database at path and ensures the schema exists.
// Parent directories are created as needed.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage path is required")
	}

	dsn := MemoryPath
	if path != MemoryPath {
		path = filepath.Clean(path)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite serializes writers; a single connection also keeps an in-memory database alive
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save stores a record and returns its new artifact id
func (s *Store) Save(ctx context.Context, rec disagg.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := rec.Matrix.Validate(); err != nil {
		return "", fmt.Errorf("invalid matrix: %w", err)
	}
	if rec.Matrix.Shape != rec.Edges.Shape(len(rec.TRTNames)) {
		return "", fmt.Errorf("matrix shape %v does not match bin edges and %d TRTs", rec.Matrix.Shape, len(rec.TRTNames))
	}

	edges, err := json.Marshal(rec.Edges)
	if err != nil {
		return "", fmt.Errorf("encode edges: %w", err)
	}
	trts, err := json.Marshal(rec.TRTNames)
	if err != nil {
		return "", fmt.Errorf("encode trts: %w", err)
	}
	matrix, err := json.Marshal(rec.Matrix)
	if err != nil {
		return "", fmt.Errorf("encode matrix: %w", err)
	}
	marginals, err := json.Marshal(rec.Marginals)
	if err != nil {
		return "", fmt.Errorf("encode marginals: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	id := uuid.New().String()
	k := rec.Key
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO disagg_results (
		   id, name, site_id, rlz_id, imt, sa_period, sa_damping, poe, iml,
		   lon, lat, investigation_time, edges, trts, matrix, marginals, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.Name, k.SiteID, k.RealizationID, k.IntensityMeasure().String(), k.SAPeriod, k.SADamping, k.PoE, k.IML,
		rec.Location.Lon, rec.Location.Lat, rec.InvestigationTime,
		string(edges), string(trts), string(matrix), string(marginals), toMillis(createdAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert result: %w", err)
	}
	return id, nil
}

// Get loads a stored result
func (s *Store) Get(ctx context.Context, id string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		res                            Result
		imt                            string
		edges, trts, matrix, marginals string
		createdAt                      int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, site_id, rlz_id, imt, sa_period, sa_damping, poe, iml,
		        lon, lat, investigation_time, edges, trts, matrix, marginals, created_at
		   FROM disagg_results WHERE id = ?`, id,
	).Scan(
		&res.ID, &res.Name, &res.Key.SiteID, &res.Key.RealizationID, &imt, &res.Key.SAPeriod, &res.Key.SADamping,
		&res.Key.PoE, &res.Key.IML, &res.Location.Lon, &res.Location.Lat, &res.InvestigationTime,
		&edges, &trts, &matrix, &marginals, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query result %s: %w", id, err)
	}

	parsed, err := models.ParseIMT(imt)
	if err != nil {
		return nil, fmt.Errorf("result %s: %w", id, err)
	}
	res.Key.IMT = parsed.Name
	res.CreatedAt = fromMillis(createdAt)

	res.Matrix = &models.Matrix{}
	for _, col := range []struct {
		name string
		raw  string
		dst  any
	}{
		{"edges", edges, &res.Edges},
		{"trts", trts, &res.TRTNames},
		{"matrix", matrix, res.Matrix},
		{"marginals", marginals, &res.Marginals},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("decode %s of result %s: %w", col.name, id, err)
		}
	}
	return &res, nil
}

// List returns the results matching filter, oldest first
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := `SELECT id, name, site_id, rlz_id, imt, sa_period, sa_damping, poe, iml, created_at FROM disagg_results`
	var (
		where []string
		args  []any
	)
	if filter.SiteID != nil {
		where = append(where, "site_id = ?")
		args = append(args, *filter.SiteID)
	}
	if filter.RealizationID != nil {
		where = append(where, "rlz_id = ?")
		args = append(args, *filter.RealizationID)
	}
	if filter.IMT != "" {
		where = append(where, "imt = ?")
		args = append(args, filter.IMT)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, site_id, rlz_id, imt, poe"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			imt       string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Key.SiteID, &e.Key.RealizationID, &imt,
			&e.Key.SAPeriod, &e.Key.SADamping, &e.Key.PoE, &e.Key.IML, &createdAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		parsed, err := models.ParseIMT(imt)
		if err != nil {
			return nil, fmt.Errorf("result %s: %w", e.ID, err)
		}
		e.Key.IMT = parsed.Name
		e.CreatedAt = fromMillis(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored results
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM disagg_results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}
