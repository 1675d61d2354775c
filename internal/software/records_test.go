package software_test

import (
	"testing"
	"time"

	"softdex/internal/software"
)

func TestAttributesApplyToKeepsExistingValues(t *testing.T) {
	entry := software.ReferenceEntry{
		Name:      "Portal",
		Source:    "Steam",
		Category:  software.CategoryGame,
		Publisher: "Valve",
	}
	software.Attributes{
		Description: "A puzzle game",
		Genres:      []string{"Puzzle"},
		Category:    software.CategoryApplication,
	}.ApplyTo(&entry)

	if entry.Publisher != "Valve" {
		t.Fatalf("publisher overwritten: %q", entry.Publisher)
	}
	if entry.Description != "A puzzle game" || len(entry.Genres) != 1 {
		t.Fatalf("attributes not applied: %#v", entry)
	}
	if entry.Category != software.CategoryGame {
		t.Fatalf("non-default category replaced: %s", entry.Category)
	}
}

func TestMergeCarriesBothSides(t *testing.T) {
	enriched := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ref := software.ReferenceEntry{ID: 7, Name: "Blender", Source: "DesktopEntry", LastEnrichedAt: &enriched}
	inst := software.LocalInstallation{ID: 3, ReferenceID: 7, InstallLocation: "/opt/blender", Version: "4.2"}

	view := software.Merge(ref, inst)
	if view.ReferenceID != 7 || view.InstallationID != 3 {
		t.Fatalf("unexpected ids: %#v", view)
	}
	if view.Category != software.CategoryUnknown {
		t.Fatalf("expected normalized category, got %q", view.Category)
	}
	if !view.Enriched || view.Version != "4.2" || view.InstallLocation != "/opt/blender" {
		t.Fatalf("unexpected merged view: %#v", view)
	}
}

func TestValidate(t *testing.T) {
	if err := (&software.ReferenceEntry{Name: " ", Source: "Steam"}).Validate(); err == nil {
		t.Fatal("expected error for blank name")
	}
	if err := (&software.LocalInstallation{}).Validate(); err == nil {
		t.Fatal("expected error for missing reference id")
	}
}
