package guard

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/conclave-sh/conclave/internal/cache"
	"github.com/conclave-sh/conclave/internal/identity"
	"github.com/conclave-sh/conclave/internal/logging"
	"github.com/conclave-sh/conclave/internal/policy"
)

// blacklist holds the global deny patterns. They run over the action
// plus its serialized context, so a benign action name with a hostile
// payload still matches.
var blacklist = []struct {
	pattern *regexp.Regexp
	reason  string
}{
	{regexp.MustCompile(`rm\s+(-[a-zA-Z]*\s+)*-[a-zA-Z]*[rf][a-zA-Z]*\s+/`), "destructive filesystem operation"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\|:\s*&\s*\}\s*;\s*:`), "fork bomb"},
	{regexp.MustCompile(`(?i)\b(drop|truncate)\s+(table|database|schema)\b`), "schema-destroying SQL"},
	{regexp.MustCompile(`(?i)\bdelete\s+from\s+\w+\s*(;|$)`), "unqualified SQL delete"},
	{regexp.MustCompile(`(?i)(curl|wget)\s+[^|;]*\|\s*(ba)?sh`), "remote code execution pipeline"},
	{regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\s`), "filesystem reformat"},
	{regexp.MustCompile(`>\s*/dev/sd[a-z]`), "raw device overwrite"},
}

// universalAction is allowed for every tier regardless of capability.
const universalAction = "query"

// tierCapabilities is the fixed per-tier action allow-list. Actions
// outside the caller's list (other than the universal query) are
// blocked at Medium severity.
var tierCapabilities = map[identity.Tier]map[string]bool{
	identity.TierHead: {
		"spawn_agent": true, "terminate_agent": true, "broadcast": true,
		"assign_task": true, "delegate_task": true, "plan": true,
		"propose_amendment": true, "override_vote": true, "vote": true,
	},
	identity.TierCouncil: {
		"plan": true, "delegate_task": true, "assign_task": true,
		"propose_amendment": true, "vote": true,
	},
	identity.TierLead: {
		"assign_task": true, "delegate_task": true, "execute": true,
		"report": true, "vote": true,
	},
	identity.TierTask: {
		"execute": true, "report": true, "request_review": true,
		"escalate": true,
	},
	identity.TierCriticQuality: {
		"critique": true, "report": true, "escalate": true,
	},
	identity.TierCriticSafety: {
		"critique": true, "report": true, "escalate": true,
	},
	identity.TierCriticAlignment: {
		"critique": true, "report": true, "escalate": true,
	},
}

// policyCacheTTL bounds how stale the in-process prohibited-action list
// may be.
const policyCacheTTL = 30 * time.Second

// PolicySource loads the active policy document.
type PolicySource interface {
	ActivePolicy(ctx context.Context) (*policy.Document, error)
}

// deterministicScreen is Tier 1. It holds no network dependency: the
// policy document is served from a short in-process cache with the
// relational store as fallback.
type deterministicScreen struct {
	policies    PolicySource
	policyCache *cache.Cache[string, *policy.Document]
	logger      *logging.Logger
}

func newDeterministicScreen(policies PolicySource, logger *logging.Logger) *deterministicScreen {
	return &deterministicScreen{
		policies:    policies,
		policyCache: cache.New[string, *policy.Document](policyCacheTTL),
		logger:      logger,
	}
}

// check runs the deterministic rules in order: blacklist, tier
// capability, prohibited actions from the active policy document.
func (t *deterministicScreen) check(ctx context.Context, agent identity.AgentID, action string, actionContext string) TierResult {
	result := TierResult{Tier: "deterministic", Verdict: VerdictAllow, Severity: SeverityLow}

	subject := action + " " + actionContext
	for _, entry := range blacklist {
		if entry.pattern.MatchString(subject) {
			result.Verdict = VerdictBlock
			result.Severity = SeverityCritical
			result.Explanation = fmt.Sprintf("blacklisted pattern: %s", entry.reason)
			return result
		}
	}

	if action != universalAction {
		caps := tierCapabilities[agent.Tier()]
		if !caps[strings.ToLower(action)] {
			result.Verdict = VerdictBlock
			result.Severity = SeverityMedium
			result.Explanation = fmt.Sprintf("action %q exceeds tier %s capability", action, agent.Tier())
			return result
		}
	}

	if doc := t.activePolicy(ctx); doc != nil {
		if prohibited, ok := doc.Prohibits(action + " " + actionContext); ok {
			result.Verdict = VerdictBlock
			result.Severity = SeverityHigh
			result.Explanation = fmt.Sprintf("prohibited by policy: %q", prohibited)
			result.Citations = []string{fmt.Sprintf("%s/v%d", doc.ID, doc.Version)}
			return result
		}
	}

	result.Explanation = "no deterministic rule matched"
	return result
}

// activePolicy serves the cached document, falling back to the store.
// A missing document is not an error for Tier 1: the blacklist and
// capability checks still ran.
func (t *deterministicScreen) activePolicy(ctx context.Context) *policy.Document {
	if doc, ok := t.policyCache.Get("active"); ok {
		return doc
	}
	if t.policies == nil {
		return nil
	}
	doc, err := t.policies.ActivePolicy(ctx)
	if err != nil {
		t.logger.Warn("active policy unavailable, prohibited-action check skipped", "error", err)
		return nil
	}
	t.policyCache.Set("active", doc)
	return doc
}

// invalidatePolicy drops the cached document so the next check reloads.
func (t *deterministicScreen) invalidatePolicy() {
	t.policyCache.Delete("active")
}
