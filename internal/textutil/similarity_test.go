package textutil

import (
	"math"
	"testing"
)

func TestCosineSimilarityNil(t *testing.T) {
	tests := []struct {
		name string
		a    *Fingerprint
		b    *Fingerprint
		want float64
	}{
		{"both nil", nil, nil, 0},
		{"a nil", nil, NewFingerprint("hello world"), 0},
		{"b nil", NewFingerprint("hello world"), nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarityIdentical(t *testing.T) {
	a := NewFingerprint("Half-Life 2: Episode One")
	b := NewFingerprint("half life 2 episode one")

	got := CosineSimilarity(a, b)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("CosineSimilarity(identical) = %v, want 1.0", got)
	}
}

func TestTitleSimilarityKeepsSequelNumbers(t *testing.T) {
	same := TitleSimilarity("Portal 2", "Portal 2")
	other := TitleSimilarity("Portal 2", "Portal")
	if same != 1 {
		t.Fatalf("expected exact match to score 1, got %v", same)
	}
	if other >= same || other <= 0 {
		t.Fatalf("expected partial score for differing sequel, got %v", other)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("  Baldur's Gate III — Enhanced ")
	want := []string{"baldur", "s", "gate", "iii", "enhanced"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokenize()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
