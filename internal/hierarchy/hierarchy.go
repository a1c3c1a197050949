// Package hierarchy provides the routing legality check for the Conclave
// tier structure.
//
// The validator is pure and stateless: it inspects only the tier digits of
// the sender and recipient plus the claimed direction, and it must run
// before any resource is spent on a routing attempt. Every direction
// permits exactly one tier-hop; skipping a level is illegal even when the
// destination is still numerically "higher" or "lower".
package hierarchy

import (
	"github.com/conclave-sh/conclave/internal/identity"
)

// Direction is the claimed travel direction of a message through the tiers.
type Direction string

const (
	// DirectionUp moves one tier toward the Head.
	DirectionUp Direction = "up"

	// DirectionDown moves one tier away from the Head.
	DirectionDown Direction = "down"

	// DirectionLateral stays within the sender's tier.
	DirectionLateral Direction = "lateral"

	// DirectionBroadcast fans out from the Head to every subordinate tier.
	DirectionBroadcast Direction = "broadcast"
)

// Valid reports whether the direction is one of the four known values.
func (d Direction) Valid() bool {
	switch d {
	case DirectionUp, DirectionDown, DirectionLateral, DirectionBroadcast:
		return true
	}
	return false
}

// TierOf returns the tier encoded in a raw identity code. The broadcast
// marker yields identity.TierBroadcast (-1); unparseable codes yield an
// invalid tier.
func TierOf(code string) identity.Tier {
	return identity.TierOf(code)
}

// CanRoute reports whether a message may travel from one identity to
// another in the claimed direction:
//
//   - broadcast: legal only if from is tier 0 and to is the broadcast marker
//   - up: legal only if tier(to) == tier(from) - 1
//   - down: legal only if tier(to) == tier(from) + 1
//   - lateral: legal only if tier(to) == tier(from)
func CanRoute(from, to string, direction Direction) bool {
	fromTier := identity.TierOf(from)
	if !fromTier.Valid() {
		return false
	}

	if direction == DirectionBroadcast {
		return fromTier == identity.TierHead && to == identity.BroadcastMarker
	}

	toTier := identity.TierOf(to)
	if !toTier.Valid() {
		return false
	}

	switch direction {
	case DirectionUp:
		return toTier == fromTier-1
	case DirectionDown:
		return toTier == fromTier+1
	case DirectionLateral:
		return toTier == fromTier
	default:
		return false
	}
}

// ParentTier returns the tier one hop toward the Head, or false when the
// identity is already at the Head tier or invalid.
func ParentTier(code string) (identity.Tier, bool) {
	tier := identity.TierOf(code)
	if !tier.Valid() || tier == identity.TierHead {
		return 0, false
	}
	return tier - 1, true
}
