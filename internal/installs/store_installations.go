package installs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"softdex/internal/logging"
	"softdex/internal/software"
	"softdex/internal/sqlitedb"
	"softdex/internal/textutil"
)

// BatchResult summarizes an UpsertBatch call.
type BatchResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
}

// Total returns the number of rows written.
func (r BatchResult) Total() int {
	return r.Inserted + r.Updated
}

// GetAll returns every installation ordered by id.
func (s *Store) GetAll(ctx context.Context) ([]software.LocalInstallation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+installationColumns+` FROM local_installations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list installations: %w", err)
	}
	defer rows.Close()

	var installations []software.LocalInstallation
	for rows.Next() {
		inst, err := scanInstallation(rows)
		if err != nil {
			return nil, err
		}
		installations = append(installations, *inst)
	}
	return installations, rows.Err()
}

// GetCount returns the number of installations.
func (s *Store) GetCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM local_installations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count installations: %w", err)
	}
	return count, nil
}

// ReferenceIDs returns the distinct catalog ids referenced by installations.
func (s *Store) ReferenceIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT reference_id FROM local_installations ORDER BY reference_id`)
	if err != nil {
		return nil, fmt.Errorf("list referenced ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Upsert inserts the installation or refreshes the matching row. Rows match
// on (ReferenceID, InstallLocation), or on (ReferenceID, ExecutablePath) when
// the install location is empty. The returned flag reports an insert.
func (s *Store) Upsert(ctx context.Context, inst *software.LocalInstallation) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := s.upsert(ctx, tx, inst, s.timestamp())
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit upsert: %w", err)
	}
	return inserted, nil
}

// UpsertBatch writes all installations in one transaction. A row that fails
// is counted and reported through the joined error while the remaining rows
// are still committed.
func (s *Store) UpsertBatch(ctx context.Context, installations []software.LocalInstallation) (BatchResult, error) {
	var result BatchResult
	if len(installations) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.timestamp()
	var rowErrs []error
	for i := range installations {
		if err := ctx.Err(); err != nil {
			return BatchResult{}, err
		}
		inserted, err := s.upsert(ctx, tx, &installations[i], now)
		if err != nil {
			result.Failed++
			rowErrs = append(rowErrs, fmt.Errorf("row %d (reference %d): %w", i, installations[i].ReferenceID, err))
			logging.WarnWithContext(s.logger, "installation upsert failed", "installation_upsert_failed",
				logging.Int64(logging.FieldReferenceID, installations[i].ReferenceID),
				logging.String("install_location", installations[i].InstallLocation),
				logging.Error(err),
				logging.String(logging.FieldImpact, "installation missing until the next scan"),
			)
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return BatchResult{Failed: len(installations)}, fmt.Errorf("commit batch: %w", err)
	}
	return result, errors.Join(rowErrs...)
}

func (s *Store) upsert(ctx context.Context, q queryer, inst *software.LocalInstallation, now time.Time) (bool, error) {
	if err := inst.Validate(); err != nil {
		return false, err
	}
	inst.InstallLocation = strings.TrimSpace(inst.InstallLocation)
	inst.ExecutablePath = strings.TrimSpace(inst.ExecutablePath)
	locationKey := textutil.PathKey(inst.InstallLocation)
	executableKey := textutil.PathKey(inst.ExecutablePath)

	existing, err := findMatch(ctx, q, inst.ReferenceID, locationKey, executableKey)
	if err != nil {
		return false, err
	}
	stamp := sqlitedb.FormatTime(now)

	if existing != nil {
		err := sqlitedb.RetryOnBusy(ctx, func() error {
			_, execErr := q.ExecContext(ctx,
				`UPDATE local_installations
                 SET install_location = ?, location_key = ?, executable_path = ?, executable_key = ?,
                     icon_path = ?, version = ?, install_date = ?, size_bytes = ?,
                     last_detected = ?, updated_at = ?
                 WHERE id = ?`,
				inst.InstallLocation,
				locationKey,
				inst.ExecutablePath,
				executableKey,
				sqlitedb.NullableString(inst.IconPath),
				sqlitedb.NullableString(inst.Version),
				sqlitedb.NullableTime(inst.InstallDate),
				sqlitedb.NullableInt64(inst.SizeBytes),
				stamp,
				stamp,
				existing.ID,
			)
			return execErr
		})
		if err != nil {
			return false, fmt.Errorf("update installation: %w", err)
		}
		inst.ID = existing.ID
		inst.CreatedAt = existing.CreatedAt
		inst.LastDetected = now
		inst.UpdatedAt = now
		return false, nil
	}

	var res sql.Result
	err = sqlitedb.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = q.ExecContext(ctx,
			`INSERT INTO local_installations (
                reference_id, install_location, location_key, executable_path, executable_key,
                icon_path, version, install_date, size_bytes, last_detected, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ReferenceID,
			inst.InstallLocation,
			locationKey,
			inst.ExecutablePath,
			executableKey,
			sqlitedb.NullableString(inst.IconPath),
			sqlitedb.NullableString(inst.Version),
			sqlitedb.NullableTime(inst.InstallDate),
			sqlitedb.NullableInt64(inst.SizeBytes),
			stamp,
			stamp,
			stamp,
		)
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("insert installation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	inst.ID = id
	inst.CreatedAt = now
	inst.UpdatedAt = now
	inst.LastDetected = now
	return true, nil
}

func findMatch(ctx context.Context, q queryer, referenceID int64, locationKey, executableKey string) (*software.LocalInstallation, error) {
	var row *sql.Row
	if locationKey != "" {
		row = q.QueryRowContext(ctx,
			`SELECT `+installationColumns+` FROM local_installations
             WHERE reference_id = ? AND location_key = ? LIMIT 1`,
			referenceID, locationKey,
		)
	} else {
		// Without a location the executable is the key; two empty keys
		// collapse onto the same row.
		row = q.QueryRowContext(ctx,
			`SELECT `+installationColumns+` FROM local_installations
             WHERE reference_id = ? AND location_key = '' AND executable_key = ?
             ORDER BY id LIMIT 1`,
			referenceID, executableKey,
		)
	}
	existing, err := scanInstallation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("match installation: %w", err)
	}
	return existing, nil
}

// RemoveStaleEntries deletes installations last detected before olderThan and
// returns the number removed.
func (s *Store) RemoveStaleEntries(ctx context.Context, olderThan time.Time) (int64, error) {
	var res sql.Result
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`DELETE FROM local_installations WHERE last_detected < ?`,
			sqlitedb.FormatTime(olderThan),
		)
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("remove stale installations: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale rows affected: %w", err)
	}
	if removed > 0 {
		s.logger.Info("removed stale installations",
			logging.Int64("removed", removed),
			logging.Time("cutoff", olderThan.UTC()),
		)
	}
	return removed, nil
}

// DeleteByReference removes every installation pointing at the given catalog
// entries.
func (s *Store) DeleteByReference(ctx context.Context, referenceIDs ...int64) (int64, error) {
	if len(referenceIDs) == 0 {
		return 0, nil
	}
	args := make([]any, len(referenceIDs))
	for i, id := range referenceIDs {
		args[i] = id
	}
	var res sql.Result
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`DELETE FROM local_installations WHERE reference_id IN (`+sqlitedb.Placeholders(len(referenceIDs))+`)`,
			args...,
		)
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("delete installations by reference: %w", err)
	}
	return res.RowsAffected()
}
