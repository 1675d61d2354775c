package textutil

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// TitleSimilarity scores how closely two titles match, from 0 to 1.
func TitleSimilarity(a, b string) float64 {
	if Fold(a) == Fold(b) && Fold(a) != "" {
		return 1
	}
	return CosineSimilarity(NewFingerprint(a), NewFingerprint(b))
}
