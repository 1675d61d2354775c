package reconcile

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"softdex/internal/detect"
	"softdex/internal/logging"
	"softdex/internal/software"
	"softdex/internal/textutil"
)

// Reconciler runs every registered detector and deduplicates the results.
type Reconciler struct {
	registry *detect.Registry
	logger   *slog.Logger
}

// DetectorFailure records a detector whose whole pass failed.
type DetectorFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Result is the reconciled candidate list plus pass statistics.
type Result struct {
	Candidates []software.Candidate `json:"candidates"`
	// Baseline counts inventory candidates.
	Baseline int `json:"baseline"`
	// Classified counts baseline candidates replaced by a platform detector.
	Classified int `json:"classified"`
	// Platform counts platform candidates appended after classification.
	Platform int `json:"platform"`
	// Collapsed counts candidates removed as duplicates.
	Collapsed int `json:"collapsed"`
	// Unnamed counts candidates dropped for an empty name.
	Unnamed  int               `json:"unnamed"`
	Failures []DetectorFailure `json:"failures,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// New constructs a reconciler over registry.
func New(registry *detect.Registry, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "reconcile"),
	}
}

// Reconcile runs one detection pass. Detector failures are logged and
// recorded on the result; only cancellation returns an error.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	start := time.Now()
	logger := logging.WithContext(ctx, r.logger)
	var result Result

	var baseline []software.Candidate
	genericSource := ""
	if inventory := r.registry.Inventory(); inventory != nil {
		genericSource = inventory.Source()
		candidates, err := r.list(ctx, logger, inventory, &result)
		if err != nil {
			return Result{}, err
		}
		baseline = candidates
	}
	result.Baseline = len(baseline)

	// Platform lists are collected before classification so each detector's
	// path index reflects the current disk state. Only present platforms list
	// candidates, but every platform may claim a path: a GOG game installed
	// outside the configured roots still carries its signature file.
	present := r.presentPlatforms(logger)
	platformCandidates := make([][]software.Candidate, len(present))
	for i, d := range present {
		candidates, err := r.list(ctx, logger, d, &result)
		if err != nil {
			return Result{}, err
		}
		platformCandidates[i] = candidates
	}

	combined := make([]software.Candidate, 0, len(baseline))
	claimed := make(map[string]struct{})
	for _, candidate := range baseline {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		replacement, ok := classify(r.registry.Platforms(), candidate)
		if ok {
			claimed[claimKey(replacement)] = struct{}{}
			result.Classified++
			logger.Debug("inventory entry claimed by platform",
				logging.String("name", candidate.Name),
				logging.String(logging.FieldSource, replacement.Source),
				logging.String("install_location", candidate.InstallLocation),
			)
			combined = append(combined, replacement)
			continue
		}
		combined = append(combined, candidate)
	}

	for _, candidates := range platformCandidates {
		for _, candidate := range candidates {
			if _, ok := claimed[claimKey(candidate)]; ok {
				continue
			}
			result.Platform++
			combined = append(combined, candidate)
		}
	}

	deduped, unnamed := Deduplicate(combined, genericSource)
	result.Unnamed = unnamed
	result.Collapsed = len(combined) - unnamed - len(deduped)
	result.Candidates = deduped
	result.Duration = time.Since(start)

	logger.Info("reconciliation complete",
		logging.Int("baseline", result.Baseline),
		logging.Int("classified", result.Classified),
		logging.Int("platform", result.Platform),
		logging.Int("collapsed", result.Collapsed),
		logging.Int("candidates", len(result.Candidates)),
		logging.Duration("duration", result.Duration),
	)
	return result, nil
}

func (r *Reconciler) presentPlatforms(logger *slog.Logger) []detect.Detector {
	var present []detect.Detector
	for _, d := range r.registry.Platforms() {
		if !d.IsPlatformPresent() {
			logger.Debug("platform not present", logging.String(logging.FieldSource, d.Source()))
			continue
		}
		present = append(present, d)
	}
	return present
}

// list runs one detector, converting a failure into a logged DetectorFailure.
func (r *Reconciler) list(ctx context.Context, logger *slog.Logger, d detect.Detector, result *Result) ([]software.Candidate, error) {
	candidates, err := d.ListCandidates(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		result.Failures = append(result.Failures, DetectorFailure{Source: d.Source(), Error: err.Error()})
		logging.WarnWithContext(logger, "detector failed", "detector_failed",
			logging.String(logging.FieldSource, d.Source()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the platform paths in the [detection] config section"),
			logging.String(logging.FieldImpact, "titles from this source missing from this scan"),
		)
		return nil, nil
	}
	for i := range candidates {
		if candidates[i].Source == "" {
			candidates[i].Source = d.Source()
		}
	}
	return candidates, nil
}

// classify offers a baseline candidate's install path to each platform in
// precedence order, present or not. The first match wins.
func classify(platforms []detect.Detector, baseline software.Candidate) (software.Candidate, bool) {
	if textutil.IsBlank(baseline.InstallLocation) {
		return software.Candidate{}, false
	}
	for _, d := range platforms {
		candidate, ok := d.ClassifyPath(baseline.InstallLocation)
		if !ok {
			continue
		}
		if candidate.Source == "" {
			candidate.Source = d.Source()
		}
		return fillFromBaseline(candidate, baseline), true
	}
	return software.Candidate{}, false
}

// fillFromBaseline keeps the platform identity and copies installation facts
// the platform did not supply.
func fillFromBaseline(platform, baseline software.Candidate) software.Candidate {
	if textutil.IsBlank(platform.Name) {
		platform.Name = baseline.Name
	}
	if platform.InstallLocation == "" {
		platform.InstallLocation = baseline.InstallLocation
	}
	if platform.ExecutablePath == "" {
		platform.ExecutablePath = baseline.ExecutablePath
	}
	if platform.IconPath == "" {
		platform.IconPath = baseline.IconPath
	}
	if platform.Version == "" {
		platform.Version = baseline.Version
	}
	if platform.InstallDate == nil {
		platform.InstallDate = baseline.InstallDate
	}
	if platform.SizeBytes == 0 {
		platform.SizeBytes = baseline.SizeBytes
	}
	if platform.Publisher == "" {
		platform.Publisher = baseline.Publisher
	}
	if platform.Category.IsDefault() {
		platform.Category = baseline.Category
	}
	return platform
}

// claimKey identifies a platform candidate: its external id when present,
// otherwise its install location.
func claimKey(c software.Candidate) string {
	if id := textutil.Fold(c.ExternalID); id != "" {
		return textutil.Fold(c.Source) + "|id|" + id
	}
	return textutil.Fold(c.Source) + "|path|" + textutil.PathKey(c.InstallLocation)
}

// Deduplicate collapses candidates sharing a case-insensitive name, drops
// unnamed ones, and sorts by name. genericSource is the inventory tag that
// loses ties against platform sources. It returns the number of unnamed
// candidates dropped.
func Deduplicate(candidates []software.Candidate, genericSource string) ([]software.Candidate, int) {
	groups := make(map[string][]software.Candidate)
	var order []string
	unnamed := 0
	for _, c := range candidates {
		if !c.HasName() {
			unnamed++
			continue
		}
		key := textutil.Fold(c.Name)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	out := make([]software.Candidate, 0, len(order))
	for _, key := range order {
		out = append(out, representative(groups[key], genericSource))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return textutil.CompareFolded(out[i].Name, out[j].Name) < 0
	})
	return out, unnamed
}

func representative(group []software.Candidate, genericSource string) software.Candidate {
	if len(group) == 1 {
		return group[0]
	}
	for _, c := range group {
		if !textutil.EqualFold(c.Source, genericSource) {
			return c
		}
	}
	for _, c := range group {
		if !c.Category.IsDefault() {
			return c
		}
	}
	return group[0]
}
