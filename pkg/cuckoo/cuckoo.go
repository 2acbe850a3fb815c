// Package cuckoo implements a Cuckoo filter: a compact probabilistic
// membership structure used as the outsourced party's encrypted-element
// index for the freshness and correctness checks. Each bucket holds a
// fixed number of fingerprint slots; insertion that finds both candidate
// buckets full kicks an existing fingerprint to its alternate bucket,
// retrying up to a fixed number of times before failing closed.
package cuckoo

import (
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
	"math/rand"
	"sync"

	"github.com/certen/graphverify/pkg/verrs"
)

const (
	// BucketSize is the number of fingerprint slots per bucket.
	BucketSize = 4
	// MaxKicks bounds the relocation chain before insertion gives up.
	MaxKicks = 100
	// FingerprintBits is the fingerprint width in bits.
	FingerprintBits = 12

	fpSalt   = "fp_salt_"
	idx1Salt = "idx1_salt_"
	idx2Salt = "idx2_salt_"

	// ReinsertionMaxRetries bounds how many passes InsertBatch makes over a
	// shrinking set of still-missing items before giving up on the batch.
	ReinsertionMaxRetries = 30
	// reinsertionGrowthFactor is the stop condition for a retry pass making
	// things worse instead of better: if the missing count after a pass
	// exceeds the first pass's missing count scaled by this factor, the
	// filter is overloaded rather than transiently contended, and further
	// retries would not help.
	reinsertionGrowthFactor = 1.5
)

const fingerprintMask = (1 << FingerprintBits) - 1

// Filter is a fixed-capacity Cuckoo filter over string-encoded elements.
type Filter struct {
	mu         sync.Mutex
	buckets    [][BucketSize]uint16
	numBuckets int
	inserted   map[string]bool
	rng        *rand.Rand
}

// New builds an empty filter sized to hold targetItems elements at the
// standard Cuckoo-filter load factor of 0.5 (two slots used per logical
// item on average, to keep kick chains short).
func New(targetItems int) *Filter {
	if targetItems < 1 {
		targetItems = 1
	}
	slotsNeeded := int(float64(targetItems)/0.5 + 0.999999)
	numBuckets := nextPowerOfTwo((slotsNeeded + BucketSize - 1) / BucketSize)
	if numBuckets < 1 {
		numBuckets = 1
	}

	return &Filter{
		buckets:    make([][BucketSize]uint16, numBuckets),
		numBuckets: numBuckets,
		inserted:   make(map[string]bool),
		rng:        rand.New(rand.NewSource(randomSeed())),
	}
}

func randomSeed() int64 {
	n, err := cryptorand.Int(cryptorand.Reader, big.NewInt(1<<62))
	if err != nil {
		return 0x5bd1e995
	}
	return n.Int64()
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}

func toIntHash(salt, data string) uint64 {
	sum := sha256.Sum256([]byte(salt + data))
	return binary.BigEndian.Uint64(sum[:8])
}

func fingerprintOf(data string) uint16 {
	fp := uint16(toIntHash(fpSalt, data) & fingerprintMask)
	if fp == 0 {
		fp = 1
	}
	return fp
}

func (f *Filter) index1(data string) int {
	return int(toIntHash(idx1Salt, data) % uint64(f.numBuckets))
}

func (f *Filter) altIndex(idx int, fp uint16) int {
	h := toIntHash(idx2Salt, fmt.Sprintf("%d", fp))
	return (idx ^ int(h%uint64(f.numBuckets))) % f.numBuckets
}

func (f *Filter) tryInsert(idx int, fp uint16) bool {
	bucket := &f.buckets[idx]
	for i := range bucket {
		if bucket[i] == 0 {
			bucket[i] = fp
			return true
		}
	}
	return false
}

func (f *Filter) removeFromBucket(idx int, fp uint16) bool {
	bucket := &f.buckets[idx]
	for i := range bucket {
		if bucket[i] == fp {
			bucket[i] = 0
			return true
		}
	}
	return false
}

func (f *Filter) bucketHas(idx int, fp uint16) bool {
	bucket := &f.buckets[idx]
	for i := range bucket {
		if bucket[i] == fp {
			return true
		}
	}
	return false
}

// Insert adds data's fingerprint to the filter, relocating existing
// fingerprints as needed. Returns a CodeFilterOverflow VerificationError if
// the relocation chain exceeds MaxKicks without finding a free slot.
func (f *Filter) Insert(data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp := fingerprintOf(data)
	i1 := f.index1(data)
	i2 := f.altIndex(i1, fp)

	if f.tryInsert(i1, fp) || f.tryInsert(i2, fp) {
		f.inserted[data] = true
		return nil
	}

	idx := i1
	if f.rng.Intn(2) == 1 {
		idx = i2
	}

	for kicks := 0; kicks < MaxKicks; kicks++ {
		slot := f.rng.Intn(BucketSize)
		bucket := &f.buckets[idx]
		fp, bucket[slot] = bucket[slot], fp
		idx = f.altIndex(idx, fp)
		if f.tryInsert(idx, fp) {
			f.inserted[data] = true
			return nil
		}
	}

	return verrs.Newf(verrs.CodeFilterOverflow,
		"cuckoo: insertion failed after %d relocations", MaxKicks)
}

// InsertBatch inserts every item, retrying only the subset that failed on a
// given pass rather than aborting the whole batch at the first overflow: a
// single item's kick chain can fail under load even when the filter has
// room elsewhere. Retrying stops after ReinsertionMaxRetries passes, or
// sooner if a pass's missing count grows past reinsertionGrowthFactor times
// the first pass's missing count, which signals the filter is overloaded
// rather than just transiently contended.
func (f *Filter) InsertBatch(items []string) error {
	pending := items
	initialMissing := -1

	for attempt := 0; attempt < ReinsertionMaxRetries && len(pending) > 0; attempt++ {
		var missing []string
		for _, item := range pending {
			if err := f.Insert(item); err != nil {
				missing = append(missing, item)
			}
		}
		if len(missing) == 0 {
			return nil
		}

		if initialMissing < 0 {
			initialMissing = len(missing)
		} else if float64(len(missing)) > float64(initialMissing)*reinsertionGrowthFactor {
			return verrs.Newf(verrs.CodeFilterOverflow,
				"cuckoo: reinsertion missing count grew from %d to %d after %d attempts",
				initialMissing, len(missing), attempt+1)
		}
		pending = missing
	}

	if len(pending) > 0 {
		return verrs.Newf(verrs.CodeFilterOverflow,
			"cuckoo: reinsertion failed to place %d of %d items after %d attempts",
			len(pending), len(items), ReinsertionMaxRetries)
	}
	return nil
}

// Seek reports whether data's fingerprint is present in either of its
// candidate buckets. This is the filter's sole probabilistic-membership
// primitive; a true result can be a false positive, never a false negative
// for an element actually inserted and not since deleted.
func (f *Filter) Seek(data string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seekLocked(data)
}

func (f *Filter) seekLocked(data string) bool {
	fp := fingerprintOf(data)
	i1 := f.index1(data)
	i2 := f.altIndex(i1, fp)
	return f.bucketHas(i1, fp) || f.bucketHas(i2, fp)
}

// Delete removes data's fingerprint from whichever candidate bucket holds
// it. It is idempotent: deleting an element not currently tracked as
// inserted (because it was never inserted, or was already deleted) is a
// no-op that returns false rather than risking removal of an unrelated
// element that happens to share the same fingerprint slot.
func (f *Filter) Delete(data string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.inserted[data] {
		return false
	}

	fp := fingerprintOf(data)
	i1 := f.index1(data)
	i2 := f.altIndex(i1, fp)

	removed := f.removeFromBucket(i1, fp) || f.removeFromBucket(i2, fp)
	delete(f.inserted, data)
	return removed
}

// Capacity returns the total fingerprint-slot capacity (numBuckets * BucketSize).
func (f *Filter) Capacity() int {
	return f.numBuckets * BucketSize
}

// FalsePositiveRate is the theoretical false-positive rate for this
// filter's fingerprint width, used by callers sizing a correctness-check
// threshold: (2*BucketSize) / 2^FingerprintBits.
func FalsePositiveRate() float64 {
	return float64(2*BucketSize) / float64(uint64(1)<<FingerprintBits)
}
