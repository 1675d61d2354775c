package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"softdex/internal/detect"
	"softdex/internal/logging"
	"softdex/internal/reconcile"
	"softdex/internal/software"
	"softdex/internal/testsupport"
	"softdex/internal/textutil"
)

type fakeDetector struct {
	source     string
	present    bool
	candidates []software.Candidate
	err        error
	claims     map[string]software.Candidate
}

func (f *fakeDetector) Source() string { return f.source }

func (f *fakeDetector) IsPlatformPresent() bool { return f.present }

func (f *fakeDetector) ListCandidates(context.Context) ([]software.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]software.Candidate(nil), f.candidates...), nil
}

func (f *fakeDetector) ClassifyPath(path string) (software.Candidate, bool) {
	c, ok := f.claims[path]
	return c, ok
}

func TestClassifiedInventoryEntryBecomesPlatformRecord(t *testing.T) {
	hl2 := software.Candidate{Name: "Half-Life 2", Source: "Steam", ExternalID: "220", InstallLocation: `C:\Steam\steamapps\common\Half-Life 2`, Category: software.CategoryGame}
	inventory := &fakeDetector{source: "Registry", present: true, candidates: []software.Candidate{
		{Name: "Half-Life 2", Source: "Registry", InstallLocation: hl2.InstallLocation, Version: "1.0", SizeBytes: 99},
	}}
	steam := &fakeDetector{source: "Steam", present: true,
		candidates: []software.Candidate{hl2},
		claims:     map[string]software.Candidate{hl2.InstallLocation: hl2},
	}

	result, err := reconcile.New(detect.NewRegistryFrom(inventory, steam), logging.NewNop()).Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("expected exactly one record, got %#v", result.Candidates)
	}
	got := result.Candidates[0]
	if got.Source != "Steam" || got.ExternalID != "220" {
		t.Fatalf("expected steam identity, got %#v", got)
	}
	if got.Version != "1.0" || got.SizeBytes != 99 {
		t.Fatalf("expected baseline facts to fill gaps, got %#v", got)
	}
	if result.Classified != 1 || result.Platform != 0 {
		t.Fatalf("expected claimed platform candidate not to be appended twice: %#v", result)
	}
}

func TestFirstClassifyingDetectorWins(t *testing.T) {
	path := "/games/shared"
	inventory := &fakeDetector{source: "DesktopEntry", present: true, candidates: []software.Candidate{
		{Name: "Shared Game", Source: "DesktopEntry", InstallLocation: path},
	}}
	first := &fakeDetector{source: "GOG", present: true, claims: map[string]software.Candidate{
		path: {Name: "Shared Game", Source: "GOG", ExternalID: "1"},
	}}
	second := &fakeDetector{source: "Epic", present: true, claims: map[string]software.Candidate{
		path: {Name: "Shared Game", Source: "Epic", ExternalID: "x"},
	}}

	result, err := reconcile.New(detect.NewRegistryFrom(inventory, first, second), nil).Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Source != "GOG" {
		t.Fatalf("expected first detector in precedence order to win, got %#v", result.Candidates)
	}
	if result.Candidates[0].InstallLocation != path {
		t.Fatalf("expected install location from baseline, got %q", result.Candidates[0].InstallLocation)
	}
}

func TestAbsentPlatformStillClassifies(t *testing.T) {
	path := "/mnt/usb/Games/Celeste"
	inventory := &fakeDetector{source: "DesktopEntry", present: true, candidates: []software.Candidate{
		{Name: "Celeste", Source: "DesktopEntry", InstallLocation: path},
	}}
	absent := &fakeDetector{source: "GOG", present: false,
		candidates: []software.Candidate{{Name: "Never Listed", Source: "GOG"}},
		claims:     map[string]software.Candidate{path: {Name: "Celeste", Source: "GOG", ExternalID: "1207658924"}},
	}

	result, err := reconcile.New(detect.NewRegistryFrom(inventory, absent), nil).Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Source != "GOG" || result.Candidates[0].ExternalID != "1207658924" {
		t.Fatalf("expected the absent platform to claim the path, got %#v", result.Candidates)
	}
	if result.Classified != 1 || result.Platform != 0 {
		t.Fatalf("absent platform must classify without listing, got %#v", result)
	}
}

func TestGOGGameOutsideMissingRootsIsClassified(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("desktop entry inventory is not used on windows")
	}
	base := t.TempDir()
	game := testsupport.WriteGOGGame(t, filepath.Join(base, "elsewhere"), "Celeste", "1207658924", "Celeste")
	apps := filepath.Join(base, "applications")
	testsupport.WriteDesktopEntry(t, apps, "gog_celeste.desktop", testsupport.DesktopEntry{
		Name: "Celeste", Exec: filepath.Join(game, "start.sh"), Path: game, Categories: "Game;",
	})

	gog := detect.NewGOG([]string{filepath.Join(base, "no-such-root")}, nil)
	if gog.IsPlatformPresent() {
		t.Fatal("expected the GOG platform to be absent")
	}
	registry := detect.NewRegistryFrom(detect.NewDesktop([]string{apps}, nil), gog)

	result, err := reconcile.New(registry, nil).Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("expected one candidate, got %#v", result.Candidates)
	}
	got := result.Candidates[0]
	if got.Source != detect.SourceGOG || got.ExternalID != "1207658924" || result.Classified != 1 {
		t.Fatalf("expected GOG identity for a game outside the roots, got %#v (classified=%d)", got, result.Classified)
	}
}

func TestDetectorFailureIsIsolated(t *testing.T) {
	inventory := &fakeDetector{source: "DesktopEntry", present: true, candidates: []software.Candidate{
		{Name: "gimp", Source: "DesktopEntry"},
	}}
	broken := &fakeDetector{source: "Epic", present: true, err: errors.New("manifest dir unreadable")}
	absent := &fakeDetector{source: "GOG", present: false, candidates: []software.Candidate{{Name: "Never Listed", Source: "GOG"}}}

	result, err := reconcile.New(detect.NewRegistryFrom(inventory, broken, absent), nil).Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Name != "gimp" {
		t.Fatalf("unexpected candidates %#v", result.Candidates)
	}
	if len(result.Failures) != 1 || result.Failures[0].Source != "Epic" {
		t.Fatalf("expected failure to be recorded, got %#v", result.Failures)
	}
}

func TestReconcileHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inventory := &fakeDetector{source: "DesktopEntry", present: true, candidates: []software.Candidate{{Name: "a", InstallLocation: "/a"}}}
	if _, err := reconcile.New(detect.NewRegistryFrom(inventory), nil).Reconcile(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDeduplicatePriority(t *testing.T) {
	cases := []struct {
		name  string
		input []software.Candidate
		want  software.Candidate
	}{
		{
			name: "platform beats inventory",
			input: []software.Candidate{
				{Name: "Portal", Source: "Registry", Category: software.CategoryGame},
				{Name: "portal", Source: "Steam"},
			},
			want: software.Candidate{Name: "portal", Source: "Steam"},
		},
		{
			name: "categorized beats default",
			input: []software.Candidate{
				{Name: "VLC", Source: "Registry", InstallLocation: "/a"},
				{Name: "vlc", Source: "Registry", InstallLocation: "/b", Category: software.CategoryMedia},
			},
			want: software.Candidate{Name: "vlc", Source: "Registry", InstallLocation: "/b", Category: software.CategoryMedia},
		},
		{
			name: "first wins otherwise",
			input: []software.Candidate{
				{Name: "Tool", Source: "Registry", InstallLocation: "/first"},
				{Name: "TOOL", Source: "Registry", InstallLocation: "/second"},
			},
			want: software.Candidate{Name: "Tool", Source: "Registry", InstallLocation: "/first"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := reconcile.Deduplicate(tc.input, "Registry")
			if len(got) != 1 || !reflect.DeepEqual(got[0], tc.want) {
				t.Fatalf("Deduplicate = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestDeduplicateDropsBlankNamesAndSorts(t *testing.T) {
	got, unnamed := reconcile.Deduplicate([]software.Candidate{
		{Name: "zsh"},
		{Name: "   "},
		{Name: "Bash"},
		{Name: ""},
		{Name: "awk"},
	}, "Registry")
	if unnamed != 2 {
		t.Fatalf("expected 2 unnamed, got %d", unnamed)
	}
	names := make([]string, len(got))
	for i, c := range got {
		names[i] = c.Name
	}
	if !reflect.DeepEqual(names, []string{"awk", "Bash", "zsh"}) {
		t.Fatalf("unexpected order %v", names)
	}
}

func TestDeduplicateProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	names := []string{"Doom", "DOOM", "doom", "Quake", "quake", "Celeste", "Hades", "hades ", " Hades"}
	sources := []string{"Registry", "Steam", "GOG", "Epic"}
	categories := []software.Category{software.CategoryUnknown, software.CategoryGame, software.CategoryUtility}

	for round := 0; round < 200; round++ {
		n := rng.Intn(20)
		input := make([]software.Candidate, n)
		for i := range input {
			input[i] = software.Candidate{
				Name:            names[rng.Intn(len(names))],
				Source:          sources[rng.Intn(len(sources))],
				Category:        categories[rng.Intn(len(categories))],
				InstallLocation: fmt.Sprintf("/p/%d", i),
			}
		}

		first, _ := reconcile.Deduplicate(input, "Registry")
		seen := map[string]struct{}{}
		for _, c := range first {
			key := textutil.Fold(c.Name)
			if _, dup := seen[key]; dup {
				t.Fatalf("round %d: duplicate name %q in %#v", round, c.Name, first)
			}
			seen[key] = struct{}{}
		}

		second, _ := reconcile.Deduplicate(input, "Registry")
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("round %d: reconciliation not deterministic", round)
		}
		again, _ := reconcile.Deduplicate(first, "Registry")
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("round %d: reconciling the output changed it", round)
		}
	}
}
