// Package voting implements the deliberation engine: quorum counting,
// supermajority resolution, vote delegation, expiry, and Head overrides.
//
// Quorum is 60% of the eligible set, rounded up. Supermajority is computed
// over non-abstaining votes only: abstentions count toward participation
// but never toward the for/against ratio. A deliberation past its deadline
// with no terminal verdict auto-concludes Rejected; the comparison is
// strictly after, so a deliberation exactly at its deadline is still live.
package voting

import (
	"math"
)

// SupermajorityThreshold is the for/(for+against) ratio required to pass.
const SupermajorityThreshold = 0.66

// QuorumFraction is the share of eligible voters who must participate.
const QuorumFraction = 0.60

// Quorum returns the minimum number of eligible voters who must
// participate for the vote to be valid: ceil(eligible * 0.60).
func Quorum(eligibleCount int) int {
	if eligibleCount <= 0 {
		return 0
	}
	return int(math.Ceil(float64(eligibleCount) * QuorumFraction))
}

// SupermajorityPassed reports whether the for/against ratio meets the
// supermajority threshold. Abstentions are excluded from the ratio; a
// vote with no non-abstaining ballots never passes.
func SupermajorityPassed(votesFor, votesAgainst int) bool {
	decided := votesFor + votesAgainst
	if decided == 0 {
		return false
	}
	return float64(votesFor)/float64(decided) >= SupermajorityThreshold
}
