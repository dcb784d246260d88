// Package quota persists per-provider daily usage counts in SQLite so
// daily limits survive process restarts.
package quota

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"log/slog"

	"github.com/fairyhunter13/llm-answer-gate/internal/domain"
)

// Store manages quota persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the quota database at path and
// applies migrations. Parent directories are created as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure quota db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) applyMigrations() error {
	_, err := s.db.Exec(`
        CREATE TABLE IF NOT EXISTS provider_usage (
            provider   TEXT NOT NULL,
            day        TEXT NOT NULL,
            call_count INTEGER NOT NULL DEFAULT 0,
            PRIMARY KEY (provider, day)
        )`)
	if err != nil {
		return fmt.Errorf("create provider_usage table: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// day returns the usage bucket key: the local calendar date in ISO
// format, so the quota resets at local midnight.
func day(t time.Time) string {
	return t.Format("2006-01-02")
}

// TodayUsage returns the number of calls recorded for provider today.
// A day with no recorded calls reads as zero.
func (s *Store) TodayUsage(ctx domain.Context, provider string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT call_count FROM provider_usage WHERE provider = ? AND day = ?`,
		provider, day(time.Now()),
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query today usage: %w", err)
	}
	return count, nil
}

// Increment records one call for provider against today's bucket.
func (s *Store) Increment(ctx domain.Context, provider string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_usage (provider, day, call_count) VALUES (?, ?, 1)
         ON CONFLICT (provider, day) DO UPDATE SET call_count = call_count + 1`,
		provider, day(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// Cleanup deletes usage rows older than retentionDays and returns the
// number of rows removed. A non-positive retention keeps everything.
func (s *Store) Cleanup(ctx domain.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := day(time.Now().AddDate(0, 0, -retentionDays))
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM provider_usage WHERE day < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup rows affected: %w", err)
	}
	if n > 0 {
		slog.Info("cleaned up old quota records",
			slog.Int64("rows", n),
			slog.String("cutoff", cutoff))
	}
	return n, nil
}

// UsageHistory returns per-day counts for provider over the most
// recent days, newest first. Used by the stats endpoint.
func (s *Store) UsageHistory(ctx domain.Context, provider string, days int) (map[string]int, error) {
	since := day(time.Now().AddDate(0, 0, -days))
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, call_count FROM provider_usage
         WHERE provider = ? AND day >= ? ORDER BY day DESC`,
		provider, since)
	if err != nil {
		return nil, fmt.Errorf("query usage history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	history := make(map[string]int)
	for rows.Next() {
		var d string
		var count int
		if err := rows.Scan(&d, &count); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		history[d] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage rows: %w", err)
	}
	return history, nil
}

var _ domain.QuotaStore = (*Store)(nil)
