package binrewrite

import "golang.org/x/exp/rand"

// seedFromWords combines a vector of 32-bit seed words into a single
// source seed. The mix is a plain FNV-1a fold: deterministic, and stable
// across runs for the same word vector, which is all the spec requires of
// it.
func seedFromWords(words []uint32) uint64 {
	var h uint64 = 14695981039346656037
	for _, w := range words {
		h ^= uint64(w)
		h *= 1099511628211
	}
	return h
}

// shuffleGroups performs a deterministic Fisher-Yates shuffle seeded by
// seed, mutating groups in place. The algorithm is pinned explicitly
// (rather than delegated to a library Shuffle helper) because the spec's
// Open Questions require the exact algorithm, not merely "some deterministic
// shuffle", to be reproducible across implementations given the same seed.
func shuffleGroups[T any](groups []T, seed []uint32) {
	r := rand.New(rand.NewSource(seedFromWords(seed)))
	for i := len(groups) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		groups[i], groups[j] = groups[j], groups[i]
	}
}
