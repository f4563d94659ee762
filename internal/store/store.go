package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/codeconvert/internal"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS translation_requests (
		id TEXT PRIMARY KEY,
		input_code TEXT NOT NULL,
		input_language TEXT NOT NULL,
		output_language TEXT NOT NULL,
		provider TEXT,
		status TEXT NOT NULL,
		error TEXT,
		output_length INTEGER DEFAULT 0,
		latency_ms INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS translation_memory (
		id TEXT PRIMARY KEY,
		input_code TEXT NOT NULL,
		input_language TEXT NOT NULL,
		output_language TEXT NOT NULL,
		output_code TEXT NOT NULL,
		provider TEXT,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(input_code, input_language, output_language)
	);

	CREATE INDEX IF NOT EXISTS idx_memory_lookup ON translation_memory(input_code, input_language, output_language);
	CREATE INDEX IF NOT EXISTS idx_requests_created ON translation_requests(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) SaveRequest(ctx context.Context, rec internal.TranslationRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO translation_requests (id, input_code, input_language, output_language, provider, status, error, output_length, latency_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.InputCode, rec.InputLanguage, rec.OutputLanguage, rec.Provider, rec.Status, rec.Error, rec.OutputLength, rec.Latency.Milliseconds(), rec.Timestamp)
	return err
}

// ListRequests returns the most recent requests first. limit ≤ 0 returns all.
func (s *Store) ListRequests(ctx context.Context, limit int) ([]internal.TranslationRecord, error) {
	query := `SELECT id, input_code, input_language, output_language, COALESCE(provider, ''), status, COALESCE(error, ''), output_length, latency_ms, created_at FROM translation_requests ORDER BY created_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []internal.TranslationRecord
	for rows.Next() {
		var r internal.TranslationRecord
		var latencyMs int64
		if err := rows.Scan(&r.ID, &r.InputCode, &r.InputLanguage, &r.OutputLanguage, &r.Provider, &r.Status, &r.Error, &r.OutputLength, &latencyMs, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Latency = time.Duration(latencyMs) * time.Millisecond
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) GetCachedTranslation(ctx context.Context, inputCode, inputLanguage, outputLanguage string) (string, bool, error) {
	var outputCode string
	var invalidated bool

	key := normalizeText(inputCode)
	err := s.db.QueryRowContext(ctx,
		`SELECT output_code, invalidated FROM translation_memory WHERE input_code = ? AND input_language = ? AND output_language = ?`,
		key, inputLanguage, outputLanguage).Scan(&outputCode, &invalidated)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if invalidated {
		return "", false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE translation_memory SET usage_count = usage_count + 1, last_used = ? WHERE input_code = ? AND input_language = ? AND output_language = ?`,
		time.Now(), key, inputLanguage, outputLanguage)

	return outputCode, true, err
}

func (s *Store) SaveToMemory(ctx context.Context, inputCode, inputLanguage, outputLanguage, outputCode, provider string) error {
	id := fmt.Sprintf("mem_%d", time.Now().UnixNano())
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO translation_memory (id, input_code, input_language, output_language, output_code, provider, usage_count, invalidated, last_used, created_at) VALUES (?, ?, ?, ?, ?, ?, 1, FALSE, ?, ?)`,
		id, normalizeText(inputCode), inputLanguage, outputLanguage, outputCode, provider, now, now)
	return err
}

// MemoryEntry is a row from the translation_memory table.
type MemoryEntry struct {
	ID             string
	InputCode      string
	InputLanguage  string
	OutputLanguage string
	OutputCode     string
	Provider       string
	UsageCount     int
	Invalidated    bool
	LastUsed       time.Time
}

// CacheStats summarises translation memory usage and request history.
type CacheStats struct {
	TotalEntries   int
	ActiveEntries  int
	InvalidEntries int
	TotalUsage     int
	Requests       int
	ByStatus       map[string]int
}

func (s *Store) InvalidateMemory(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE translation_memory SET invalidated = TRUE WHERE id = ?`, id)
}

// DeleteMemory permanently removes a translation memory entry by ID.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM translation_memory WHERE id = ?`, id)
}

func (s *Store) execOne(ctx context.Context, query, id string) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("memory entry not found: %s", id)
	}
	return nil
}

// ClearMemory removes all translation memory entries.
func (s *Store) ClearMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translation_memory`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMemory returns all translation memory entries ordered by most recently used.
func (s *Store) ListMemory(ctx context.Context) ([]MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input_code, input_language, output_language, output_code, COALESCE(provider, ''), usage_count, invalidated, last_used FROM translation_memory ORDER BY last_used DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.InputCode, &e.InputLanguage, &e.OutputLanguage, &e.OutputCode, &e.Provider, &e.UsageCount, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// Stats returns summary statistics for the translation memory and request log.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{ByStatus: make(map[string]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM translation_memory`).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM translation_requests GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = n
		stats.Requests += n
	}
	return stats, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText drops trailing whitespace and applies Unicode NFC normalization
// for consistent cache key comparison. Leading indentation is significant.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimRightFunc(text, unicode.IsSpace))
}
