// Package raytracer restricts which messages each agent may observe.
//
// Every agent has exactly one observation role derived from its tier:
// Planner (tiers 0-1), Executor (tiers 2-3), Critic (tiers 4-6). Each role
// carries a fixed allow-list of message types it may ever see; visibility
// globs on a message can only narrow the audience further, never widen it
// past the role allow-list. This keeps sibling agents mutually blind by
// default and guarantees Critics cannot observe planning or voting traffic
// even through a permissive visibility pattern.
package raytracer

import (
	"fmt"
	"path"

	"github.com/conclave-sh/conclave/internal/identity"
	"github.com/conclave-sh/conclave/internal/message"
)

// roleAllowList is the fixed map of message types each role may observe.
// Planners see all traffic; Executors see everything except vote traffic;
// Critics see only execution and critique flows plus liveness signals.
var roleAllowList = map[identity.Role]map[message.Type]bool{
	identity.RolePlanner: {
		message.TypeIntent:         true,
		message.TypeDelegation:     true,
		message.TypePlan:           true,
		message.TypeExecution:      true,
		message.TypeCritique:       true,
		message.TypeCritiqueResult: true,
		message.TypeVoteProposal:   true,
		message.TypeVoteCast:       true,
		message.TypeEscalation:     true,
		message.TypeViolation:      true,
		message.TypeNotification:   true,
		message.TypeHeartbeat:      true,
	},
	identity.RoleExecutor: {
		message.TypeIntent:         true,
		message.TypeDelegation:     true,
		message.TypePlan:           true,
		message.TypeExecution:      true,
		message.TypeCritique:       true,
		message.TypeCritiqueResult: true,
		message.TypeEscalation:     true,
		message.TypeViolation:      true,
		message.TypeNotification:   true,
		message.TypeHeartbeat:      true,
	},
	identity.RoleCritic: {
		message.TypeExecution:      true,
		message.TypeCritique:       true,
		message.TypeCritiqueResult: true,
		message.TypeNotification:   true,
		message.TypeHeartbeat:      true,
	},
}

// summaryLimit is the content length cap applied by ScopeSummary.
const summaryLimit = 200

// RayTracer filters messages by observer role and visibility pattern.
// It is stateless and safe for concurrent use.
type RayTracer struct{}

// New creates a RayTracer.
func New() *RayTracer {
	return &RayTracer{}
}

// RoleMaySee reports whether a role's allow-list includes the message type.
func RoleMaySee(role identity.Role, msgType message.Type) bool {
	return roleAllowList[role][msgType]
}

// IsVisible reports whether the observer may see the message: at least one
// glob in the message's visibility list must match the observer's id
// (an empty list defaults to "*"), and the message type must be in the
// observer's role allow-list. Both conditions are required; the glob can
// never override the role restriction.
func (r *RayTracer) IsVisible(observer identity.AgentID, msg message.Message) bool {
	if !RoleMaySee(observer.Role(), msg.Type) {
		return false
	}

	patterns := msg.VisibleTo
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, observer.String()); err == nil && ok {
			return true
		}
	}
	return false
}

// FilterMessages returns only the messages visible to the observer, each
// passed through ApplyScope. Input order is preserved; the input slice is
// never mutated.
func (r *RayTracer) FilterMessages(observer identity.AgentID, msgs []message.Message) []message.Message {
	visible := make([]message.Message, 0, len(msgs))
	for _, msg := range msgs {
		if r.IsVisible(observer, msg) {
			visible = append(visible, ApplyScope(msg))
		}
	}
	return visible
}

// ApplyScope returns a copy of the message reduced to its context scope:
// Full is unchanged, Summary truncates content to 200 characters, and
// SchemaOnly clears content and replaces payload values with type names.
func ApplyScope(msg message.Message) message.Message {
	switch msg.Scope {
	case message.ScopeSummary:
		cp := msg.Clone()
		// Truncate on runes so multibyte content is neither cut short
		// nor split mid-rune.
		if r := []rune(cp.Content); len(r) > summaryLimit {
			cp.Content = string(r[:summaryLimit])
		}
		return cp
	case message.ScopeSchemaOnly:
		cp := msg.Clone()
		cp.Content = ""
		if cp.Payload != nil {
			schema := make(map[string]any, len(cp.Payload))
			for k, v := range cp.Payload {
				schema[k] = fmt.Sprintf("%T", v)
			}
			cp.Payload = schema
		}
		return cp
	default:
		return msg
	}
}
