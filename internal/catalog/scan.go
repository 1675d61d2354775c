package catalog

import (
	"database/sql"
	"encoding/json"
	"strings"

	"softdex/internal/software"
	"softdex/internal/sqlitedb"
	"softdex/internal/textutil"
)

const entryColumns = "id, name, source, external_id, category, publisher, description, genres_json, developers_json, release_date, cover_image_url, metadata_json, last_enriched_at, last_enrichment_attempt, created_at, updated_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*software.ReferenceEntry, error) {
	var (
		id            int64
		name          string
		source        string
		externalID    sql.NullString
		category      string
		publisher     sql.NullString
		description   sql.NullString
		genresRaw     sql.NullString
		developersRaw sql.NullString
		releaseDate   sql.NullString
		coverImage    sql.NullString
		metadataRaw   sql.NullString
		enrichedRaw   sql.NullString
		attemptRaw    sql.NullString
		createdRaw    string
		updatedRaw    string
	)
	if err := scanner.Scan(
		&id,
		&name,
		&source,
		&externalID,
		&category,
		&publisher,
		&description,
		&genresRaw,
		&developersRaw,
		&releaseDate,
		&coverImage,
		&metadataRaw,
		&enrichedRaw,
		&attemptRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	return &software.ReferenceEntry{
		ID:                    id,
		Name:                  name,
		Source:                source,
		ExternalID:            externalID.String,
		Category:              software.ParseCategory(category),
		Publisher:             publisher.String,
		Description:           description.String,
		Genres:                decodeList(genresRaw),
		Developers:            decodeList(developersRaw),
		ReleaseDate:           releaseDate.String,
		CoverImageURL:         coverImage.String,
		MetadataJSON:          metadataRaw.String,
		LastEnrichedAt:        sqlitedb.TimeFromNull(enrichedRaw),
		LastEnrichmentAttempt: sqlitedb.TimeFromNull(attemptRaw),
		CreatedAt:             sqlitedb.TimeFromString(createdRaw),
		UpdatedAt:             sqlitedb.TimeFromString(updatedRaw),
	}, nil
}

func scanEntries(rows *sql.Rows) ([]software.ReferenceEntry, error) {
	defer rows.Close()
	var entries []software.ReferenceEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func encodeList(values []string) any {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	data, err := json.Marshal(cleaned)
	if err != nil {
		return nil
	}
	return string(data)
}

func decodeList(raw sql.NullString) []string {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		return nil
	}
	return values
}

func nameKey(name string) string {
	return textutil.Fold(name)
}

func sourceKey(source string) string {
	return textutil.Fold(source)
}
