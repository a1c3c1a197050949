package voting

import (
	"github.com/conclave-sh/conclave/internal/errors"
)

// ResolveDelegate follows a voter's delegation chain to its terminal
// non-delegating holder. A voter names at most one delegate; delegations
// maps voter id to delegate id. Visited voters are tracked and a
// DelegationLoop error is raised the instant any voter repeats.
//
// A voter with no delegation resolves to itself.
func ResolveDelegate(voter string, delegations map[string]string) (string, error) {
	visited := map[string]bool{}
	chain := []string{voter}
	current := voter

	for {
		if visited[current] {
			return "", errors.NewDelegationError("chain revisits a voter", errors.ErrDelegationLoop).
				WithChain(chain)
		}
		visited[current] = true

		next, ok := delegations[current]
		if !ok || next == "" {
			return current, nil
		}
		chain = append(chain, next)
		current = next
	}
}
