package software

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidEntry indicates a record is missing a required field.
var ErrInvalidEntry = errors.New("invalid software record")

// Candidate identifies one software or game instance as seen by a single
// detector during a single pass.
type Candidate struct {
	Name            string     `json:"name"`
	Source          string     `json:"source"`
	ExternalID      string     `json:"external_id,omitempty"`
	InstallLocation string     `json:"install_location,omitempty"`
	ExecutablePath  string     `json:"executable_path,omitempty"`
	IconPath        string     `json:"icon_path,omitempty"`
	Version         string     `json:"version,omitempty"`
	InstallDate     *time.Time `json:"install_date,omitempty"`
	SizeBytes       int64      `json:"size_bytes,omitempty"`
	Category        Category   `json:"category"`
	Publisher       string     `json:"publisher,omitempty"`
}

// HasName reports whether the candidate carries a usable name.
func (c Candidate) HasName() bool {
	return strings.TrimSpace(c.Name) != ""
}

// ReferenceEntry is the canonical identity of one software title. Identity is
// (Source, ExternalID) when ExternalID is set, otherwise (Name, Source).
type ReferenceEntry struct {
	ID                    int64      `json:"id"`
	Name                  string     `json:"name"`
	Source                string     `json:"source"`
	ExternalID            string     `json:"external_id,omitempty"`
	Category              Category   `json:"category"`
	Publisher             string     `json:"publisher,omitempty"`
	Description           string     `json:"description,omitempty"`
	Genres                []string   `json:"genres,omitempty"`
	Developers            []string   `json:"developers,omitempty"`
	ReleaseDate           string     `json:"release_date,omitempty"`
	CoverImageURL         string     `json:"cover_image_url,omitempty"`
	MetadataJSON          string     `json:"metadata_json,omitempty"`
	LastEnrichedAt        *time.Time `json:"last_enriched_at,omitempty"`
	LastEnrichmentAttempt *time.Time `json:"last_enrichment_attempt,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// Validate checks the required identity fields.
func (e *ReferenceEntry) Validate() error {
	if e == nil {
		return ErrInvalidEntry
	}
	if strings.TrimSpace(e.Name) == "" {
		return errors.Join(ErrInvalidEntry, errors.New("name is required"))
	}
	if strings.TrimSpace(e.Source) == "" {
		return errors.Join(ErrInvalidEntry, errors.New("source is required"))
	}
	return nil
}

// LocalInstallation is one observed installation of a ReferenceEntry on this
// machine.
type LocalInstallation struct {
	ID              int64      `json:"id"`
	ReferenceID     int64      `json:"reference_id"`
	InstallLocation string     `json:"install_location,omitempty"`
	ExecutablePath  string     `json:"executable_path,omitempty"`
	IconPath        string     `json:"icon_path,omitempty"`
	Version         string     `json:"version,omitempty"`
	InstallDate     *time.Time `json:"install_date,omitempty"`
	SizeBytes       int64      `json:"size_bytes,omitempty"`
	LastDetected    time.Time  `json:"last_detected"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Validate checks the foreign key is present.
func (l *LocalInstallation) Validate() error {
	if l == nil {
		return ErrInvalidEntry
	}
	if l.ReferenceID <= 0 {
		return errors.Join(ErrInvalidEntry, errors.New("reference id is required"))
	}
	return nil
}

// InstallationFromCandidate builds the local installation row for a candidate
// resolved to referenceID.
func InstallationFromCandidate(referenceID int64, c Candidate) LocalInstallation {
	return LocalInstallation{
		ReferenceID:     referenceID,
		InstallLocation: strings.TrimSpace(c.InstallLocation),
		ExecutablePath:  strings.TrimSpace(c.ExecutablePath),
		IconPath:        strings.TrimSpace(c.IconPath),
		Version:         strings.TrimSpace(c.Version),
		InstallDate:     c.InstallDate,
		SizeBytes:       c.SizeBytes,
	}
}

// MergedView is the display projection of a LocalInstallation joined with its
// ReferenceEntry.
type MergedView struct {
	InstallationID  int64      `json:"installation_id"`
	ReferenceID     int64      `json:"reference_id"`
	Name            string     `json:"name"`
	Source          string     `json:"source"`
	ExternalID      string     `json:"external_id,omitempty"`
	Category        Category   `json:"category"`
	Publisher       string     `json:"publisher,omitempty"`
	Description     string     `json:"description,omitempty"`
	Genres          []string   `json:"genres,omitempty"`
	Developers      []string   `json:"developers,omitempty"`
	ReleaseDate     string     `json:"release_date,omitempty"`
	CoverImageURL   string     `json:"cover_image_url,omitempty"`
	InstallLocation string     `json:"install_location,omitempty"`
	ExecutablePath  string     `json:"executable_path,omitempty"`
	IconPath        string     `json:"icon_path,omitempty"`
	Version         string     `json:"version,omitempty"`
	InstallDate     *time.Time `json:"install_date,omitempty"`
	SizeBytes       int64      `json:"size_bytes,omitempty"`
	LastDetected    time.Time  `json:"last_detected"`
	Enriched        bool       `json:"enriched"`
}

// Merge joins an installation with its reference entry.
func Merge(ref ReferenceEntry, inst LocalInstallation) MergedView {
	return MergedView{
		InstallationID:  inst.ID,
		ReferenceID:     ref.ID,
		Name:            ref.Name,
		Source:          ref.Source,
		ExternalID:      ref.ExternalID,
		Category:        ref.Category.Normalize(),
		Publisher:       ref.Publisher,
		Description:     ref.Description,
		Genres:          ref.Genres,
		Developers:      ref.Developers,
		ReleaseDate:     ref.ReleaseDate,
		CoverImageURL:   ref.CoverImageURL,
		InstallLocation: inst.InstallLocation,
		ExecutablePath:  inst.ExecutablePath,
		IconPath:        inst.IconPath,
		Version:         inst.Version,
		InstallDate:     inst.InstallDate,
		SizeBytes:       inst.SizeBytes,
		LastDetected:    inst.LastDetected,
		Enriched:        ref.LastEnrichedAt != nil,
	}
}

// Attributes are the rich fields a metadata provider can supply for a
// ReferenceEntry. Empty fields leave the stored value untouched.
type Attributes struct {
	Publisher     string   `json:"publisher,omitempty"`
	Description   string   `json:"description,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	Developers    []string `json:"developers,omitempty"`
	ReleaseDate   string   `json:"release_date,omitempty"`
	CoverImageURL string   `json:"cover_image_url,omitempty"`
	Category      Category `json:"category,omitempty"`
	// MetadataJSON is the provider's raw payload, stored opaquely.
	MetadataJSON string `json:"-"`
	// Provider names the provider that produced the attributes.
	Provider string `json:"provider,omitempty"`
}

// IsEmpty reports whether no descriptive field is set.
func (a Attributes) IsEmpty() bool {
	return a.Publisher == "" && a.Description == "" && len(a.Genres) == 0 &&
		len(a.Developers) == 0 && a.ReleaseDate == "" && a.CoverImageURL == "" &&
		a.Category.IsDefault()
}

// ApplyTo copies the non-empty attributes onto e. A provider category only
// replaces a default one.
func (a Attributes) ApplyTo(e *ReferenceEntry) {
	if e == nil {
		return
	}
	if a.Publisher != "" {
		e.Publisher = a.Publisher
	}
	if a.Description != "" {
		e.Description = a.Description
	}
	if len(a.Genres) > 0 {
		e.Genres = append([]string(nil), a.Genres...)
	}
	if len(a.Developers) > 0 {
		e.Developers = append([]string(nil), a.Developers...)
	}
	if a.ReleaseDate != "" {
		e.ReleaseDate = a.ReleaseDate
	}
	if a.CoverImageURL != "" {
		e.CoverImageURL = a.CoverImageURL
	}
	if e.Category.IsDefault() && !a.Category.IsDefault() {
		e.Category = a.Category.Normalize()
	}
	if a.MetadataJSON != "" {
		e.MetadataJSON = a.MetadataJSON
	}
}
