package guard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/conclave-sh/conclave/internal/cache"
	"github.com/conclave-sh/conclave/internal/identity"
	"github.com/conclave-sh/conclave/internal/logging"
	"github.com/conclave-sh/conclave/internal/vector"
)

const (
	// blockThreshold and greyThreshold bound the semantic verdict bands:
	// score >= blockThreshold blocks, [greyThreshold, blockThreshold)
	// requires a vote, below greyThreshold allows.
	blockThreshold = 0.70
	greyThreshold  = 0.40

	// semanticCacheTTL memoizes semantic results by description hash.
	semanticCacheTTL = 30 * time.Minute

	// semanticTopK bounds how many policy articles are consulted.
	semanticTopK = 5
)

// semanticScreen is Tier 2: similarity of the action description
// against the indexed policy articles. It is strictly best-effort; any
// failure yields Allow.
type semanticScreen struct {
	index  vector.Index
	memo   *cache.Cache[string, TierResult]
	logger *logging.Logger

	mu    sync.Mutex
	block float64
	grey  float64
}

func newSemanticScreen(index vector.Index, logger *logging.Logger) *semanticScreen {
	return &semanticScreen{
		index:  index,
		memo:   cache.New[string, TierResult](semanticCacheTTL),
		logger: logger,
		block:  blockThreshold,
		grey:   greyThreshold,
	}
}

// thresholds returns the current verdict bands.
func (t *semanticScreen) thresholds() (block, grey float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.block, t.grey
}

// setThresholds replaces the verdict bands and drops memoized results
// scored against the old bands.
func (t *semanticScreen) setThresholds(block, grey float64) {
	t.mu.Lock()
	t.block, t.grey = block, grey
	t.mu.Unlock()
	t.memo.Clear()
}

// check screens the action semantically. The zero result on any
// failure path is Allow: Tier 2 never blocks the pipeline on an
// outage.
func (t *semanticScreen) check(ctx context.Context, agent identity.AgentID, action, actionContext string) TierResult {
	allow := TierResult{
		Tier:        "semantic",
		Verdict:     VerdictAllow,
		Severity:    SeverityLow,
		Explanation: "no semantic match",
	}

	if t.index == nil {
		return allow
	}

	description := describeAction(agent, action, actionContext)
	key := descriptionHash(description)
	if cached, ok := t.memo.Get(key); ok {
		return cached
	}

	matches, err := t.index.Query(ctx, description, semanticTopK)
	if err != nil {
		t.logger.Warn("semantic screen unavailable, failing open",
			"agent_id", agent.String(), "error", err)
		return allow
	}
	if len(matches) == 0 {
		t.memo.Set(key, allow)
		return allow
	}

	block, grey := t.thresholds()

	top := matches[0]
	result := allow
	switch {
	case top.Score >= block:
		result = TierResult{
			Tier:        "semantic",
			Verdict:     VerdictBlock,
			Severity:    SeverityHigh,
			Explanation: fmt.Sprintf("action resembles prohibited policy %q (%.2f)", top.ID, top.Score),
			Citations:   citeMatches(matches, grey),
		}
	case top.Score >= grey:
		result = TierResult{
			Tier:        "semantic",
			Verdict:     VerdictVoteRequired,
			Severity:    SeverityMedium,
			Explanation: fmt.Sprintf("grey area: closest policy %q at %.2f", top.ID, top.Score),
			Citations:   citeMatches(matches, grey),
		}
	}

	t.memo.Set(key, result)
	return result
}

// describeAction builds the natural-language description embedded for
// similarity search.
func describeAction(agent identity.AgentID, action, actionContext string) string {
	return fmt.Sprintf("%s tier agent performs %s: %s", agent.Tier(), action, actionContext)
}

func descriptionHash(description string) string {
	sum := sha256.Sum256([]byte(description))
	return hex.EncodeToString(sum[:])
}

// citeMatches cites every match at or above the grey threshold with
// its relevance.
func citeMatches(matches []vector.Match, minScore float64) []string {
	var citations []string
	for _, m := range matches {
		if m.Score >= minScore {
			citations = append(citations, fmt.Sprintf("%s (%.2f)", m.ID, m.Score))
		}
	}
	return citations
}
