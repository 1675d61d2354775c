package api

import (
	"time"

	"softdex/internal/scan"
	"softdex/internal/software"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running             bool          `json:"running"`
	PID                 int           `json:"pid"`
	StartedAt           string        `json:"started_at,omitempty"`
	LockFilePath        string        `json:"lock_file_path"`
	CatalogPath         string        `json:"catalog_path"`
	LocalPath           string        `json:"local_path"`
	ScanIntervalSeconds int64         `json:"scan_interval_seconds"`
	ScanInProgress      bool          `json:"scan_in_progress"`
	Enriching           bool          `json:"enriching"`
	DeviceEvents        bool          `json:"device_events"`
	WatchedDirs         []string      `json:"watched_dirs,omitempty"`
	LastScan            *scan.Summary `json:"last_scan,omitempty"`
	LastScanError       string        `json:"last_scan_error,omitempty"`
	LastScanAt          string        `json:"last_scan_at,omitempty"`
}

// SoftwareListResponse wraps merged installation views.
type SoftwareListResponse struct {
	Items []software.MergedView `json:"items"`
	Count int                   `json:"count"`
}

// ScanResponse reports a detection pass run through the API. Queued is set
// when the pass was scheduled instead of run inline.
type ScanResponse struct {
	Queued  bool          `json:"queued,omitempty"`
	Summary *scan.Summary `json:"summary,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FormatTime renders t in the API timestamp format, or "" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
