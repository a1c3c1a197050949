// Package guard implements the two-tier constitutional policy engine.
// Tier 1 is deterministic and always authoritative; Tier 2 is a
// best-effort semantic screen that degrades to Allow on any failure so
// an outage never blocks the pipeline.
package guard

import (
	"time"

	"github.com/google/uuid"
)

// Verdict is the outcome of a policy check. Verdicts are ordered:
// Allow < VoteRequired < Block.
type Verdict int

const (
	// VerdictAllow permits the action.
	VerdictAllow Verdict = iota

	// VerdictVoteRequired permits the action only after a deliberation.
	VerdictVoteRequired

	// VerdictBlock prohibits the action.
	VerdictBlock
)

// String returns a human-readable verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictVoteRequired:
		return "vote_required"
	case VerdictBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Severity classifies how serious a non-Allow verdict is. Severities
// are ordered: Low < Medium < High < Critical.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns a human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// TierResult is one screening tier's contribution to a decision.
type TierResult struct {
	Tier        string   `json:"tier"` // deterministic or semantic
	Verdict     Verdict  `json:"verdict"`
	Severity    Severity `json:"severity"`
	Explanation string   `json:"explanation"`
	Citations   []string `json:"citations,omitempty"`
}

// Decision is the merged outcome of a policy check.
type Decision struct {
	ID             string       `json:"id"`
	AgentID        string       `json:"agent_id"`
	Action         string       `json:"action"`
	Verdict        Verdict      `json:"verdict"`
	Severity       Severity     `json:"severity"`
	Explanation    string       `json:"explanation"`
	Citations      []string     `json:"citations,omitempty"`
	TierResults    []TierResult `json:"tier_results"`
	RequiresVote   bool         `json:"requires_vote"`
	AffectedAgents []string     `json:"affected_agents,omitempty"`
	CheckedAt      time.Time    `json:"checked_at"`
}

func newDecision(agentID, action string, affected []string) *Decision {
	return &Decision{
		ID:             uuid.NewString(),
		AgentID:        agentID,
		Action:         action,
		AffectedAgents: affected,
		CheckedAt:      time.Now(),
	}
}

// mergeCitations unions citation lists preserving first-seen order.
func mergeCitations(lists ...[]string) []string {
	var merged []string
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, c := range list {
			if !seen[c] {
				seen[c] = true
				merged = append(merged, c)
			}
		}
	}
	return merged
}
