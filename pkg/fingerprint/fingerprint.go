// Package fingerprint computes a 64-bit hash over an ordered list of file
// paths, used by master and worker to independently confirm they read the
// same dataset configuration.
package fingerprint

import "hash/fnv"

// combine folds h2 into h1 using the boost::hash_combine shape found in
// original_source/ra/src/config.cpp, so that order matters and permuting
// the input paths changes the result with high probability.
func combine(h1, h2 uint64) uint64 {
	return h1 ^ (h2 + 0x9e3779b9 + (h1 << 6) + (h1 >> 2))
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// OfPaths returns the fingerprint of an ordered list of file paths. The
// zero-length list hashes to 0, matching an empty combine fold.
func OfPaths(paths []string) uint64 {
	var h uint64
	for _, p := range paths {
		h = combine(h, hashString(p))
	}
	return h
}
