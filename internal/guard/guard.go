package guard

import (
	"context"
	"fmt"

	"github.com/conclave-sh/conclave/internal/event"
	"github.com/conclave-sh/conclave/internal/identity"
	"github.com/conclave-sh/conclave/internal/logging"
	"github.com/conclave-sh/conclave/internal/store"
	"github.com/conclave-sh/conclave/internal/vector"
)

// voteForceThreshold is the affected-agent count above which a decision
// is raised to at least VoteRequired.
const voteForceThreshold = 3

// AuditSink receives decisions and violations. Writes are best-effort:
// a sink failure is logged and the decision stands.
type AuditSink interface {
	AppendAudit(ctx context.Context, e store.AuditEntry) error
	RecordViolation(ctx context.Context, e store.AuditEntry) error
}

// Guard is the constitutional policy engine. One Guard is constructed
// per service and passed by handle; it holds its own caches.
type Guard struct {
	tier1  *deterministicScreen
	tier2  *semanticScreen
	audit  AuditSink
	bus    *event.Bus
	logger *logging.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithAuditSink sets the audit destination.
func WithAuditSink(sink AuditSink) Option {
	return func(g *Guard) { g.audit = sink }
}

// WithEventBus sets the bus decisions and violations are announced on.
func WithEventBus(bus *event.Bus) Option {
	return func(g *Guard) { g.bus = bus }
}

// New creates a Guard screening against the given policy source and
// similarity index. Either may be nil; the corresponding checks degrade
// rather than fail.
func New(policies PolicySource, index vector.Index, logger *logging.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger = logger.WithComponent("guard")

	g := &Guard{
		tier1:  newDeterministicScreen(policies, logger),
		tier2:  newSemanticScreen(index, logger),
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckAction screens an action for the agent and returns the merged
// decision. Tier-1 Block short-circuits Tier 2. More than
// voteForceThreshold affected agents raises the verdict to at least
// VoteRequired regardless of tier outcomes.
func (g *Guard) CheckAction(ctx context.Context, agent identity.AgentID, action, actionContext string, affectedAgents []string) *Decision {
	d := newDecision(agent.String(), action, affectedAgents)

	t1 := g.tier1.check(ctx, agent, action, actionContext)
	d.TierResults = append(d.TierResults, t1)

	if t1.Verdict == VerdictBlock {
		d.Verdict = t1.Verdict
		d.Severity = t1.Severity
		d.Explanation = t1.Explanation
		d.Citations = mergeCitations(t1.Citations)
	} else {
		t2 := g.tier2.check(ctx, agent, action, actionContext)
		d.TierResults = append(d.TierResults, t2)

		d.Verdict = max(t1.Verdict, t2.Verdict)
		d.Severity = max(t1.Severity, t2.Severity)
		d.Citations = mergeCitations(t1.Citations, t2.Citations)
		if t2.Verdict > t1.Verdict {
			d.Explanation = t2.Explanation
		} else {
			d.Explanation = t1.Explanation
		}
	}

	if len(affectedAgents) > voteForceThreshold && d.Verdict < VerdictVoteRequired {
		d.Verdict = VerdictVoteRequired
		d.Explanation = fmt.Sprintf("%d affected agents exceed the unilateral limit; %s", len(affectedAgents), d.Explanation)
	}
	d.RequiresVote = d.Verdict == VerdictVoteRequired

	g.record(ctx, d)
	return d
}

// SetThresholds replaces the semantic verdict bands. block must exceed
// grey; invalid bands are ignored. Memoized semantic results are
// discarded so old bands cannot leak through the cache.
func (g *Guard) SetThresholds(block, grey float64) {
	if block <= grey || grey < 0 || block > 1 {
		g.logger.Warn("ignoring invalid semantic thresholds",
			"block", block, "grey", grey)
		return
	}
	g.tier2.setThresholds(block, grey)
}

// InvalidatePolicy drops the cached policy document, forcing a reload
// on the next check. Called by the config watcher after a hot reload
// and by the amendment lifecycle after activation.
func (g *Guard) InvalidatePolicy() {
	g.tier1.invalidatePolicy()
}

// record writes the decision to the audit trail and announces it.
// Failures never alter the decision.
func (g *Guard) record(ctx context.Context, d *Decision) {
	entry := store.AuditEntry{
		AgentID:     d.AgentID,
		Action:      d.Action,
		Verdict:     d.Verdict.String(),
		Severity:    d.Severity.String(),
		Explanation: d.Explanation,
		Citations:   d.Citations,
	}

	if g.audit != nil {
		if err := g.audit.AppendAudit(ctx, entry); err != nil {
			g.logger.Warn("audit write failed, decision stands",
				"decision_id", d.ID, "error", err)
		}
		if d.Verdict != VerdictAllow {
			if err := g.audit.RecordViolation(ctx, entry); err != nil {
				g.logger.Warn("violation write failed, decision stands",
					"decision_id", d.ID, "error", err)
			}
		}
	}

	if g.bus != nil {
		g.bus.Publish(event.NewDecisionRecordedEvent(
			d.ID, d.AgentID, d.Action, d.Verdict.String(), d.Severity.String()))
		if d.Verdict != VerdictAllow {
			g.bus.Publish(event.NewViolationRecordedEvent(
				d.AgentID, d.Action, d.Severity.String()))
		}
	}

	if d.Verdict == VerdictBlock {
		g.logger.Info("action blocked",
			"agent_id", d.AgentID, "action", d.Action, "severity", d.Severity.String())
	}
}
