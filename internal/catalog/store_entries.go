package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"softdex/internal/logging"
	"softdex/internal/software"
	"softdex/internal/sqlitedb"
)

// GetByID fetches a reference entry by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*software.ReferenceEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM reference_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reference entry: %w", err)
	}
	return entry, nil
}

// FindByExternalID returns the entry identified by a platform id.
func (s *Store) FindByExternalID(ctx context.Context, source, externalID string) (*software.ReferenceEntry, error) {
	return findByExternalID(ctx, s.db, source, externalID)
}

// FindByName returns the oldest entry whose name matches case-insensitively.
// An empty source matches any source.
func (s *Store) FindByName(ctx context.Context, name, source string) (*software.ReferenceEntry, error) {
	return findByName(ctx, s.db, name, source)
}

func findByExternalID(ctx context.Context, q queryer, source, externalID string) (*software.ReferenceEntry, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, nil
	}
	row := q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM reference_entries WHERE source_key = ? AND external_id = ? LIMIT 1`,
		sourceKey(source), externalID,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by external id: %w", err)
	}
	return entry, nil
}

func findByName(ctx context.Context, q queryer, name, source string) (*software.ReferenceEntry, error) {
	key := nameKey(name)
	if key == "" {
		return nil, nil
	}
	query := `SELECT ` + entryColumns + ` FROM reference_entries WHERE name_key = ?`
	args := []any{key}
	if strings.TrimSpace(source) != "" {
		query += ` AND source_key = ?`
		args = append(args, sourceKey(source))
	}
	query += ` ORDER BY id LIMIT 1`

	entry, err := scanEntry(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by name: %w", err)
	}
	return entry, nil
}

// Insert stores a new entry and assigns its ID and timestamps.
func (s *Store) Insert(ctx context.Context, entry *software.ReferenceEntry) error {
	return s.insert(ctx, s.db, entry)
}

func (s *Store) insert(ctx context.Context, q queryer, entry *software.ReferenceEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	entry.Name = strings.TrimSpace(entry.Name)
	entry.Source = strings.TrimSpace(entry.Source)
	entry.ExternalID = strings.TrimSpace(entry.ExternalID)
	entry.Category = entry.Category.Normalize()
	now := s.timestamp()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	var res sql.Result
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = q.ExecContext(ctx,
			`INSERT INTO reference_entries (
                name, name_key, source, source_key, external_id, category, publisher,
                description, genres_json, developers_json, release_date, cover_image_url,
                metadata_json, last_enriched_at, last_enrichment_attempt, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.Name,
			nameKey(entry.Name),
			entry.Source,
			sourceKey(entry.Source),
			sqlitedb.NullableString(entry.ExternalID),
			string(entry.Category),
			sqlitedb.NullableString(entry.Publisher),
			sqlitedb.NullableString(entry.Description),
			encodeList(entry.Genres),
			encodeList(entry.Developers),
			sqlitedb.NullableString(entry.ReleaseDate),
			sqlitedb.NullableString(entry.CoverImageURL),
			sqlitedb.NullableString(entry.MetadataJSON),
			sqlitedb.NullableTime(entry.LastEnrichedAt),
			sqlitedb.NullableTime(entry.LastEnrichmentAttempt),
			sqlitedb.FormatTime(now),
			sqlitedb.FormatTime(now),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert reference entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// Update persists changes to an existing entry. CreatedAt is never rewritten.
func (s *Store) Update(ctx context.Context, entry *software.ReferenceEntry) error {
	return s.update(ctx, s.db, entry)
}

func (s *Store) update(ctx context.Context, q queryer, entry *software.ReferenceEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.ID <= 0 {
		return errors.New("update reference entry: id is required")
	}
	entry.Category = entry.Category.Normalize()
	entry.UpdatedAt = s.timestamp()

	var res sql.Result
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = q.ExecContext(ctx,
			`UPDATE reference_entries
             SET name = ?, name_key = ?, source = ?, source_key = ?, external_id = ?, category = ?,
                 publisher = ?, description = ?, genres_json = ?, developers_json = ?,
                 release_date = ?, cover_image_url = ?, metadata_json = ?,
                 last_enriched_at = ?, last_enrichment_attempt = ?, updated_at = ?
             WHERE id = ?`,
			strings.TrimSpace(entry.Name),
			nameKey(entry.Name),
			strings.TrimSpace(entry.Source),
			sourceKey(entry.Source),
			sqlitedb.NullableString(strings.TrimSpace(entry.ExternalID)),
			string(entry.Category),
			sqlitedb.NullableString(entry.Publisher),
			sqlitedb.NullableString(entry.Description),
			encodeList(entry.Genres),
			encodeList(entry.Developers),
			sqlitedb.NullableString(entry.ReleaseDate),
			sqlitedb.NullableString(entry.CoverImageURL),
			sqlitedb.NullableString(entry.MetadataJSON),
			sqlitedb.NullableTime(entry.LastEnrichedAt),
			sqlitedb.NullableTime(entry.LastEnrichmentAttempt),
			sqlitedb.FormatTime(entry.UpdatedAt),
			entry.ID,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update reference entry: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update reference entry %d: not found", entry.ID)
	}
	return nil
}

// FindOrCreate resolves the catalog identity for a detected title. It looks up
// by external id first, then by name within the source, and inserts only when
// both miss. An entry found by name gains the external id and category it was
// missing.
func (s *Store) FindOrCreate(ctx context.Context, name, source, externalID string, category software.Category) (*software.ReferenceEntry, error) {
	name = strings.TrimSpace(name)
	source = strings.TrimSpace(source)
	externalID = strings.TrimSpace(externalID)
	if name == "" || source == "" {
		return nil, fmt.Errorf("find or create: %w", software.ErrInvalidEntry)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin find-or-create tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	entry, err := findByExternalID(ctx, tx, source, externalID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		entry, err = findByName(ctx, tx, name, source)
		if err != nil {
			return nil, err
		}
		if entry != nil && backfill(entry, externalID, category) {
			if err := s.update(ctx, tx, entry); err != nil {
				return nil, err
			}
			s.logger.Debug("backfilled reference entry",
				logging.Int64(logging.FieldReferenceID, entry.ID),
				logging.String(logging.FieldSource, entry.Source),
				logging.String("external_id", entry.ExternalID),
			)
		}
	}
	if entry == nil {
		entry = &software.ReferenceEntry{
			Name:       name,
			Source:     source,
			ExternalID: externalID,
			Category:   category.Normalize(),
		}
		if err := s.insert(ctx, tx, entry); err != nil {
			return nil, err
		}
		s.logger.Debug("created reference entry",
			logging.Int64(logging.FieldReferenceID, entry.ID),
			logging.String("name", entry.Name),
			logging.String(logging.FieldSource, entry.Source),
		)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit find-or-create: %w", err)
	}
	return entry, nil
}

func backfill(entry *software.ReferenceEntry, externalID string, category software.Category) bool {
	changed := false
	if entry.ExternalID == "" && externalID != "" {
		entry.ExternalID = externalID
		changed = true
	}
	if entry.Category.IsDefault() && !category.IsDefault() {
		entry.Category = category.Normalize()
		changed = true
	}
	return changed
}

// List returns every entry ordered by id.
func (s *Store) List(ctx context.Context) ([]software.ReferenceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM reference_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list reference entries: %w", err)
	}
	return scanEntries(rows)
}

// Count returns the number of catalog entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM reference_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count reference entries: %w", err)
	}
	return count, nil
}

// Delete removes the given entries and returns how many rows were deleted.
func (s *Store) Delete(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	var res sql.Result
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`DELETE FROM reference_entries WHERE id IN (`+sqlitedb.Placeholders(len(ids))+`)`, args...)
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("delete reference entries: %w", err)
	}
	return res.RowsAffected()
}
