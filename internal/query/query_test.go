package query_test

import (
	"context"
	"errors"
	"testing"

	"softdex/internal/logging"
	"softdex/internal/query"
	"softdex/internal/software"
	"softdex/internal/testsupport"
)

type stubCatalog struct {
	entries []software.ReferenceEntry
	err     error
}

func (s stubCatalog) List(context.Context) ([]software.ReferenceEntry, error) {
	return s.entries, s.err
}

type stubInstalls struct {
	rows []software.LocalInstallation
}

func (s stubInstalls) GetAll(context.Context) ([]software.LocalInstallation, error) {
	return s.rows, nil
}

func TestQuerySkipsOrphans(t *testing.T) {
	catalog := stubCatalog{entries: []software.ReferenceEntry{
		{ID: 1, Name: "Portal", Source: "Steam", Category: software.CategoryGame},
	}}
	installs := stubInstalls{rows: []software.LocalInstallation{
		{ID: 10, ReferenceID: 1, InstallLocation: "/games/portal"},
		{ID: 11, ReferenceID: 99, InstallLocation: "/games/ghost"},
	}}
	svc := query.New(catalog, installs, logging.NewNop())

	views, err := svc.Query(context.Background(), query.Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(views) != 1 || views[0].InstallationID != 10 {
		t.Fatalf("expected only the linked installation, got %#v", views)
	}

	orphans, err := svc.Orphans(context.Background())
	if err != nil {
		t.Fatalf("Orphans failed: %v", err)
	}
	if len(orphans) != 1 || orphans[0].ID != 11 {
		t.Fatalf("unexpected orphans: %#v", orphans)
	}
}

func TestQueryFiltersCaseInsensitively(t *testing.T) {
	catalog := stubCatalog{entries: []software.ReferenceEntry{
		{ID: 1, Name: "portal", Source: "Steam", Category: software.CategoryGame},
		{ID: 2, Name: "Blender", Source: "DesktopEntry", Category: software.CategoryMedia},
		{ID: 3, Name: "Alan Wake", Source: "Epic", Category: software.CategoryGame},
	}}
	installs := stubInstalls{rows: []software.LocalInstallation{
		{ID: 10, ReferenceID: 1},
		{ID: 11, ReferenceID: 2},
		{ID: 12, ReferenceID: 3},
	}}
	svc := query.New(catalog, installs, nil)

	games, err := svc.Query(context.Background(), query.Filter{Category: "GAME"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(games) != 2 || games[0].Name != "Alan Wake" || games[1].Name != "portal" {
		t.Fatalf("expected games sorted by folded name, got %#v", games)
	}

	steam, err := svc.Query(context.Background(), query.Filter{Category: "game", Source: "steam"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(steam) != 1 || steam[0].ReferenceID != 1 {
		t.Fatalf("expected steam game only, got %#v", steam)
	}

	none, err := svc.Query(context.Background(), query.Filter{Source: "Ste"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected exact source match, got %#v", none)
	}
}

func TestQueryPropagatesLoadErrors(t *testing.T) {
	svc := query.New(stubCatalog{err: errors.New("disk gone")}, stubInstalls{}, nil)
	if _, err := svc.Query(context.Background(), query.Filter{}); err == nil {
		t.Fatal("expected catalog error to surface")
	}
}

func TestQueryAgainstStores(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	catalog := testsupport.MustOpenCatalog(t, cfg)
	installs := testsupport.MustOpenInstalls(t, cfg)
	ctx := context.Background()

	entry := testsupport.NewEntry(t, catalog, "Inkscape", "DesktopEntry", "")
	if _, err := installs.UpsertBatch(ctx, []software.LocalInstallation{
		{ReferenceID: entry.ID, ExecutablePath: "/usr/bin/inkscape", Version: "1.3"},
		{ReferenceID: entry.ID + 100, ExecutablePath: "/usr/bin/removed"},
	}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	views, err := query.New(catalog, installs, nil).Query(ctx, query.Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(views) != 1 || views[0].Name != "Inkscape" || views[0].Version != "1.3" {
		t.Fatalf("unexpected views: %#v", views)
	}
}
