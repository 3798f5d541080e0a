// Package store archives cleaned snapshots in a SQLite database so old
// days survive pruning of the raw dump tree.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/kwharvest/internal/model"
	"github.com/ppiankov/kwharvest/internal/snapshot"
)

// ErrNotFound is returned when no snapshot is archived for the key
var ErrNotFound = errors.New("snapshot not archived")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	marketplace TEXT    NOT NULL,
	locale      TEXT    NOT NULL,
	day         TEXT    NOT NULL,
	seed_length INTEGER NOT NULL,
	archived_at TEXT    NOT NULL,
	UNIQUE (marketplace, locale, day, seed_length)
);

CREATE TABLE IF NOT EXISTS snapshot_rows (
	snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	keyword     TEXT    NOT NULL,
	rank        INTEGER NOT NULL,
	PRIMARY KEY (snapshot_id, position)
);
`

// Archive is a SQLite-backed snapshot archive
type Archive struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the archive at path
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// one writer; SQLite serializes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Archive{db: db, now: time.Now}, nil
}

// Close closes the database
func (a *Archive) Close() error {
	return a.db.Close()
}

// Save stores snap, replacing any earlier copy of the same day and seed length
func (a *Archive) Save(ctx context.Context, marketplace, locale string, snap model.Snapshot) (err error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	day := snapshot.FormatDate(snap.Date)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE marketplace = ? AND locale = ? AND day = ? AND seed_length = ?`,
		marketplace, locale, day, snap.SeedLength); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (marketplace, locale, day, seed_length, archived_at) VALUES (?, ?, ?, ?, ?)`,
		marketplace, locale, day, snap.SeedLength, a.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_rows (snapshot_id, position, keyword, rank) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare rows: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, row := range snap.Rows {
		if _, err := stmt.ExecContext(ctx, id, i, row.Keyword, row.Rank); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns the archived snapshot of a day and seed length
func (a *Archive) Load(ctx context.Context, marketplace, locale string, date time.Time, seedLength int) (model.Snapshot, error) {
	day := snapshot.FormatDate(date)

	var id int64
	err := a.db.QueryRowContext(ctx,
		`SELECT id FROM snapshots WHERE marketplace = ? AND locale = ? AND day = ? AND seed_length = ?`,
		marketplace, locale, day, seedLength).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Snapshot{}, fmt.Errorf("%s %s %s/%d: %w", marketplace, locale, day, seedLength, ErrNotFound)
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("query snapshot: %w", err)
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT keyword, rank FROM snapshot_rows WHERE snapshot_id = ? ORDER BY position`, id)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("query rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snap := model.Snapshot{Date: date, SeedLength: seedLength}
	for rows.Next() {
		var row model.RankedKeywordRow
		if err := rows.Scan(&row.Keyword, &row.Rank); err != nil {
			return model.Snapshot{}, fmt.Errorf("scan row: %w", err)
		}
		snap.Rows = append(snap.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return model.Snapshot{}, fmt.Errorf("iterate rows: %w", err)
	}
	return snap, nil
}

// Days lists the archived days of a marketplace and locale, oldest first
func (a *Archive) Days(ctx context.Context, marketplace, locale string) ([]time.Time, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT DISTINCT day FROM snapshots WHERE marketplace = ? AND locale = ?`, marketplace, locale)
	if err != nil {
		return nil, fmt.Errorf("query days: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var days []time.Time
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		d, err := snapshot.ParseDate(s)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate days: %w", err)
	}

	// day strings are not zero padded, so sort on the parsed value
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}
