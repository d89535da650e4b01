package engine

import "github.com/cespare/xxhash/v2"

// bloomSeedConstant is the large odd perturbation constant spec.md §4.1
// combines with the seed to derive each of the k hash positions. Golden
// ratio fractional constant, same one the original C++ implementation
// used for the same purpose.
const bloomSeedConstant = 0x9e3779b9

// bloomMaxBits is the safety ceiling a deserialized filter's bit count is
// checked against; filters above it are silently skipped rather than
// loaded, so an old or truncated index file never crashes a startup scan.
const bloomMaxBits = 200 * 1024 * 1024 * 8

// defaultBloomBitsPerEntry and defaultBloomHashCount are the defaults
// spec.md §4.1 prescribes: N = 10*entries, k = 7.
const (
	defaultBloomBitsPerEntry = 10
	defaultBloomHashCount    = 7
)

// bloomFilter is a fixed-size bit array with k seeded hashes per key. It
// never reports a false negative: possiblyContains only ever says "no" for
// a key that was genuinely never added.
type bloomFilter struct {
	bits      []bool
	numHashes uint8
}

func newBloomFilter(numBits uint64, numHashes uint8) *bloomFilter {
	if numBits == 0 {
		numBits = 1
	}
	return &bloomFilter{bits: make([]bool, numBits), numHashes: numHashes}
}

func bloomFilterForEntries(entryCount int, bitsPerEntry uint64, hashCount uint8) *bloomFilter {
	n := uint64(entryCount) * bitsPerEntry
	return newBloomFilter(n, hashCount)
}

func (b *bloomFilter) add(key string) {
	for seed := uint8(0); seed < b.numHashes; seed++ {
		b.bits[b.position(key, seed)] = true
	}
}

func (b *bloomFilter) possiblyContains(key string) bool {
	for seed := uint8(0); seed < b.numHashes; seed++ {
		if !b.bits[b.position(key, seed)] {
			return false
		}
	}
	return true
}

func (b *bloomFilter) position(key string, seed uint8) uint64 {
	base := xxhash.Sum64String(key)
	h := base ^ (uint64(seed) * bloomSeedConstant)
	return h % uint64(len(b.bits))
}
