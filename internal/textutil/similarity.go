package textutil

// CosineSimilarity scores how alike two fingerprints are, from 0 for no
// shared tokens to 1 for the same token distribution. A nil or empty
// fingerprint scores 0 against anything.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a.empty() || b.empty() {
		return 0
	}
	small, large := a, b
	if len(large.tokens) < len(small.tokens) {
		small, large = large, small
	}
	var shared float64
	for token, n := range small.tokens {
		shared += n * large.tokens[token]
	}
	if shared == 0 {
		return 0
	}
	return shared / (a.norm * b.norm)
}

func (f *Fingerprint) empty() bool {
	return f == nil || f.norm == 0
}
