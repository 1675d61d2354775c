package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"softdex/internal/software"
	"softdex/internal/sqlitedb"
)

// GetUnenrichedEntries returns up to maxResults entries that are stale and
// were not attempted during the current UTC day. Never-enriched entries come
// first, then the oldest enrichment, with id as the tie-break.
func (s *Store) GetUnenrichedEntries(ctx context.Context, maxAge time.Duration, maxResults int) ([]software.ReferenceEntry, error) {
	if maxResults <= 0 {
		return nil, nil
	}
	now := s.timestamp()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM reference_entries
         WHERE (last_enriched_at IS NULL OR last_enriched_at < ?)
           AND (last_enrichment_attempt IS NULL OR last_enrichment_attempt < ?)
         ORDER BY last_enriched_at IS NOT NULL, last_enriched_at, id
         LIMIT ?`,
		sqlitedb.FormatTime(software.StaleCutoff(now, maxAge)),
		sqlitedb.FormatTime(software.StartOfUTCDay(now)),
		maxResults,
	)
	if err != nil {
		return nil, fmt.Errorf("query unenriched entries: %w", err)
	}
	return scanEntries(rows)
}

// RecordEnrichmentAttempt stamps the daily rate-limit marker on an entry.
func (s *Store) RecordEnrichmentAttempt(ctx context.Context, id int64, at time.Time) error {
	stamp := sqlitedb.FormatTime(at)
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`UPDATE reference_entries SET last_enrichment_attempt = ?, updated_at = ? WHERE id = ?`,
			stamp, sqlitedb.FormatTime(s.timestamp()), id,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("record enrichment attempt: %w", err)
	}
	return nil
}

// ApplyEnrichment merges provider attributes into an entry and marks it
// enriched at the given time.
func (s *Store) ApplyEnrichment(ctx context.Context, id int64, attrs software.Attributes, at time.Time) (*software.ReferenceEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enrichment tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	entry, err := scanEntry(tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM reference_entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("apply enrichment: reference entry %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load reference entry: %w", err)
	}

	attrs.ApplyTo(entry)
	stamp := at.UTC()
	entry.LastEnrichedAt = &stamp
	if entry.LastEnrichmentAttempt == nil || entry.LastEnrichmentAttempt.Before(stamp) {
		entry.LastEnrichmentAttempt = &stamp
	}
	if err := s.update(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enrichment: %w", err)
	}
	return entry, nil
}

// StateCounts tallies entries per enrichment state.
func (s *Store) StateCounts(ctx context.Context, maxAge time.Duration) (map[software.EnrichmentState]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT last_enriched_at, last_enrichment_attempt FROM reference_entries`)
	if err != nil {
		return nil, fmt.Errorf("query enrichment states: %w", err)
	}
	defer rows.Close()

	now := s.timestamp()
	counts := map[software.EnrichmentState]int{
		software.StateFresh:          0,
		software.StateStale:          0,
		software.StateAttemptedToday: 0,
	}
	for rows.Next() {
		var enriched, attempt sql.NullString
		if err := rows.Scan(&enriched, &attempt); err != nil {
			return nil, err
		}
		entry := software.ReferenceEntry{
			LastEnrichedAt:        sqlitedb.TimeFromNull(enriched),
			LastEnrichmentAttempt: sqlitedb.TimeFromNull(attempt),
		}
		counts[software.StateOf(entry, now, maxAge)]++
	}
	return counts, rows.Err()
}
