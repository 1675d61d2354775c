package installs

import (
	"database/sql"

	"softdex/internal/software"
	"softdex/internal/sqlitedb"
)

const installationColumns = "id, reference_id, install_location, executable_path, icon_path, version, install_date, size_bytes, last_detected, created_at, updated_at"

func scanInstallation(scanner interface{ Scan(dest ...any) error }) (*software.LocalInstallation, error) {
	var (
		id             int64
		referenceID    int64
		location       string
		executable     string
		iconPath       sql.NullString
		version        sql.NullString
		installDateRaw sql.NullString
		sizeBytes      sql.NullInt64
		detectedRaw    string
		createdRaw     string
		updatedRaw     string
	)
	if err := scanner.Scan(
		&id,
		&referenceID,
		&location,
		&executable,
		&iconPath,
		&version,
		&installDateRaw,
		&sizeBytes,
		&detectedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	return &software.LocalInstallation{
		ID:              id,
		ReferenceID:     referenceID,
		InstallLocation: location,
		ExecutablePath:  executable,
		IconPath:        iconPath.String,
		Version:         version.String,
		InstallDate:     sqlitedb.TimeFromNull(installDateRaw),
		SizeBytes:       sizeBytes.Int64,
		LastDetected:    sqlitedb.TimeFromString(detectedRaw),
		CreatedAt:       sqlitedb.TimeFromString(createdRaw),
		UpdatedAt:       sqlitedb.TimeFromString(updatedRaw),
	}, nil
}
