// Package identity defines the agent identity model for the Conclave hierarchy.
//
// Every agent is addressed by a 5-character code whose first character encodes
// its tier (0 Head, 1 Council, 2 Lead, 3 Task, 4-6 Critic subtypes). Identities
// are parsed exactly once at the boundary into an [AgentID] carrying typed
// [Tier] and [Role] values, so internal logic always switches over closed enums
// rather than re-parsing strings.
package identity

import (
	"github.com/conclave-sh/conclave/internal/errors"
)

// IDLength is the required length of every agent identity code.
const IDLength = 5

// BroadcastMarker is the special recipient value for messages intended for
// all agents. It is not a valid agent identity.
const BroadcastMarker = "broadcast"

// Tier is one of the seven hierarchy levels, encoded in an identity's
// first character.
type Tier int

const (
	// TierBroadcast is the pseudo-tier of the broadcast marker.
	TierBroadcast Tier = -1

	// TierHead is the root of the hierarchy. Exactly one agent holds it.
	TierHead Tier = 0

	// TierCouncil is the deliberative layer directly under the Head.
	TierCouncil Tier = 1

	// TierLead is the planning-to-execution boundary layer.
	TierLead Tier = 2

	// TierTask is the execution layer.
	TierTask Tier = 3

	// TierCriticQuality reviews execution output for quality.
	TierCriticQuality Tier = 4

	// TierCriticSafety reviews execution output for safety.
	TierCriticSafety Tier = 5

	// TierCriticAlignment reviews execution output for goal alignment.
	TierCriticAlignment Tier = 6
)

// String returns the human-readable tier name.
func (t Tier) String() string {
	switch t {
	case TierBroadcast:
		return "broadcast"
	case TierHead:
		return "head"
	case TierCouncil:
		return "council"
	case TierLead:
		return "lead"
	case TierTask:
		return "task"
	case TierCriticQuality:
		return "critic_quality"
	case TierCriticSafety:
		return "critic_safety"
	case TierCriticAlignment:
		return "critic_alignment"
	default:
		return "unknown"
	}
}

// Valid reports whether the tier is one of the seven hierarchy levels.
// The broadcast pseudo-tier is not a valid agent tier.
func (t Tier) Valid() bool {
	return t >= TierHead && t <= TierCriticAlignment
}

// IsCritic reports whether the tier is one of the three critic subtypes.
func (t Tier) IsCritic() bool {
	return t >= TierCriticQuality && t <= TierCriticAlignment
}

// Role is the observation role derived from an agent's tier. Roles gate
// which message types an agent may ever see.
type Role int

const (
	// RolePlanner covers the Head and Council tiers.
	RolePlanner Role = iota

	// RoleExecutor covers the Lead and Task tiers.
	RoleExecutor

	// RoleCritic covers the three critic tiers.
	RoleCritic
)

// String returns the human-readable role name.
func (r Role) String() string {
	switch r {
	case RolePlanner:
		return "planner"
	case RoleExecutor:
		return "executor"
	case RoleCritic:
		return "critic"
	default:
		return "unknown"
	}
}

// RoleForTier maps a tier to its observation role. The broadcast
// pseudo-tier falls through to RoleCritic, the most restrictive role;
// broadcast is never a consumable identity so this never observes anything.
func RoleForTier(t Tier) Role {
	switch t {
	case TierHead, TierCouncil:
		return RolePlanner
	case TierLead, TierTask:
		return RoleExecutor
	default:
		return RoleCritic
	}
}

// AgentID is a validated agent identity. Construct one with Parse; the
// zero value is not valid.
type AgentID struct {
	code string
	tier Tier
	role Role
}

// Parse validates a raw identity code and returns its typed form.
// The code must be exactly 5 characters with a leading tier digit 0-6.
func Parse(code string) (AgentID, error) {
	if len(code) != IDLength {
		return AgentID{}, errors.NewValidationError("agent id must be exactly 5 characters").
			WithField("agentID").WithValue(code).WithCause(errors.ErrInvalidIdentity)
	}

	tier := tierOfByte(code[0])
	if !tier.Valid() {
		return AgentID{}, errors.NewValidationError("agent id must start with a tier digit 0-6").
			WithField("agentID").WithValue(code).WithCause(errors.ErrInvalidIdentity)
	}

	return AgentID{
		code: code,
		tier: tier,
		role: RoleForTier(tier),
	}, nil
}

// MustParse is like Parse but panics on invalid input.
// Reserved for tests and compile-time-known identities.
func MustParse(code string) AgentID {
	id, err := Parse(code)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the raw 5-character identity code.
func (a AgentID) String() string { return a.code }

// Tier returns the agent's hierarchy tier.
func (a AgentID) Tier() Tier { return a.tier }

// Role returns the agent's observation role.
func (a AgentID) Role() Role { return a.role }

// IsHead reports whether the agent is the tier-0 Head.
func (a AgentID) IsHead() bool { return a.tier == TierHead }

// IsZero reports whether the identity is the unusable zero value.
func (a AgentID) IsZero() bool { return a.code == "" }

// TierOf returns the tier encoded in a raw code's first character without
// full validation. The broadcast marker maps to TierBroadcast; anything
// else unparseable returns an invalid tier (Valid() == false).
func TierOf(code string) Tier {
	if code == BroadcastMarker {
		return TierBroadcast
	}
	if len(code) == 0 {
		return Tier(-2)
	}
	return tierOfByte(code[0])
}

func tierOfByte(b byte) Tier {
	if b < '0' || b > '6' {
		return Tier(-2)
	}
	return Tier(b - '0')
}
