package rsapsi

import (
	"math"
	"math/big"

	"github.com/certen/graphverify/pkg/cuckoo"
	"github.com/certen/graphverify/pkg/verrs"
)

// CheckFreshness reports whether every one of the verifier's previously
// signed elements is still present in the outsourced index. A missing
// element means the outsourced party's encrypted graph has drifted from
// what it attested to, and the caller should treat the round as stale.
func CheckFreshness(filter *cuckoo.Filter, unblinded []*big.Int) error {
	for _, v := range unblinded {
		if !filter.Seek(EncryptedForm(v)) {
			return verrs.New(verrs.CodeFreshnessFail,
				"rsapsi: signed element missing from outsourced index")
		}
	}
	return nil
}

// ConsumeFreshnessSet deletes every element of a claimed response (plus
// whatever decoys rode along with it) from the filter, the first half of
// a query round's correctness check: with rq union S_i gone, a probe of
// the real query q can tell an honest response from a substituted one.
func ConsumeFreshnessSet(filter *cuckoo.Filter, unblinded []*big.Int) {
	for _, v := range unblinded {
		filter.Delete(EncryptedForm(v))
	}
}

// CorrectnessThreshold bounds the number of Seek hits a correctness check
// may observe before concluding the outsourced party is leaking membership
// signal beyond the filter's expected false-positive rate. It follows the
// reference threshold of ceil(n * fpRate * 3.0) + 3: a 3x safety margin
// over the theoretical rate, plus a small constant floor so tiny query
// batches are not flagged on expected noise alone.
func CorrectnessThreshold(n int) int {
	fpRate := cuckoo.FalsePositiveRate()
	return int(math.Ceil(float64(n)*fpRate*3.0)) + 3
}

// CheckCorrectness counts how many of the query set's unblinded values hit
// the filter (they should not, since the caller has already removed the
// claimed response, which an honest response makes a superset of the
// query) and compares the count against CorrectnessThreshold. A count at
// or below the threshold is consistent with expected false-positive noise;
// anything higher means query elements are still present that the claimed
// response did not cover.
func CheckCorrectness(filter *cuckoo.Filter, unblinded []*big.Int) (hits int, err error) {
	for _, v := range unblinded {
		if filter.Seek(EncryptedForm(v)) {
			hits++
		}
	}

	threshold := CorrectnessThreshold(len(unblinded))
	if hits > threshold {
		return hits, verrs.Newf(verrs.CodeCorrectnessFail,
			"rsapsi: %d false-positive hits exceeds threshold %d for %d queried elements",
			hits, threshold, len(unblinded))
	}
	return hits, nil
}
