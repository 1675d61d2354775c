package software

import "time"

// EnrichmentState is the derived enrichment status of a ReferenceEntry.
type EnrichmentState string

const (
	// StateFresh means the entry was enriched within the max age.
	StateFresh EnrichmentState = "fresh"
	// StateStale means the entry was never enriched or its data is too old,
	// and it has not been attempted today.
	StateStale EnrichmentState = "stale"
	// StateAttemptedToday means the entry is not fresh but an attempt was
	// already made during the current UTC day; it waits for tomorrow.
	StateAttemptedToday EnrichmentState = "attempted_today"
)

// StateOf computes the state of e at now. Fresh takes precedence
// over AttemptedToday because a successful enrichment stamps both fields.
func StateOf(e ReferenceEntry, now time.Time, maxAge time.Duration) EnrichmentState {
	if e.LastEnrichedAt != nil && !e.LastEnrichedAt.Before(StaleCutoff(now, maxAge)) {
		return StateFresh
	}
	if e.LastEnrichmentAttempt != nil && !e.LastEnrichmentAttempt.Before(StartOfUTCDay(now)) {
		return StateAttemptedToday
	}
	return StateStale
}

// NeedsEnrichment reports whether e is eligible for the next enrichment batch.
func NeedsEnrichment(e ReferenceEntry, now time.Time, maxAge time.Duration) bool {
	return StateOf(e, now, maxAge) == StateStale
}

// StaleCutoff is the oldest LastEnrichedAt still considered fresh.
func StaleCutoff(now time.Time, maxAge time.Duration) time.Time {
	return now.UTC().Add(-maxAge)
}

// StartOfUTCDay truncates now to midnight UTC.
func StartOfUTCDay(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
