package orchestrator

import (
	"context"
	"fmt"

	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/guard"
	"github.com/conclave-sh/conclave/internal/identity"
	"github.com/conclave-sh/conclave/internal/policy"
	"github.com/conclave-sh/conclave/internal/store"
	"github.com/conclave-sh/conclave/internal/taskstate"
	"github.com/conclave-sh/conclave/internal/voting"
)

// ProposeAmendment opens an amendment vote on a new policy document
// version. The proposer is screened by the guard; the proposed version
// must supersede the active one. The document activates only if the
// vote passes.
func (o *Orchestrator) ProposeAmendment(ctx context.Context, proposerID string, doc *policy.Document) (string, error) {
	proposer, err := identity.Parse(proposerID)
	if err != nil {
		return "", err
	}
	if doc == nil || len(doc.Articles) == 0 {
		return "", errors.NewValidationError("amendment needs a document with articles")
	}

	decision := o.guard.CheckAction(ctx, proposer, "propose_amendment",
		fmt.Sprintf("amend %s to version %d", doc.ID, doc.Version), nil)
	if decision.Verdict == guard.VerdictBlock {
		return "", errors.NewValidationError("amendment proposal blocked: " + decision.Explanation)
	}

	active, err := o.store.ActivePolicy(ctx)
	if err != nil && !errors.Is(err, errors.ErrPolicyUnavailable) {
		return "", err
	}
	if active != nil && doc.Version <= active.Version {
		return "", errors.NewValidationError("amendment version must supersede the active document").
			WithField("version").WithValue(doc.Version)
	}

	topic := fmt.Sprintf("amend %s to version %d", doc.ID, doc.Version)
	return o.openDeliberation(ctx, voting.KindAmendment, topic, "", doc)
}

// CastVote records a ballot on an open deliberation.
func (o *Orchestrator) CastVote(deliberationID, voter string, choice voting.Choice) error {
	st, err := o.deliberation(deliberationID)
	if err != nil {
		return err
	}
	return st.delib.CastVote(voter, choice)
}

// Delegate registers a delegation edge on an open deliberation.
func (o *Orchestrator) Delegate(deliberationID, voter, delegate string) error {
	st, err := o.deliberation(deliberationID)
	if err != nil {
		return err
	}
	return st.delib.Delegate(voter, delegate)
}

// Deliberation returns the deliberation with the given id.
func (o *Orchestrator) Deliberation(id string) (*voting.Deliberation, error) {
	st, err := o.deliberation(id)
	if err != nil {
		return nil, err
	}
	return st.delib, nil
}

// ConcludeDeliberation resolves a deliberation and applies its outcome:
// the tied task advances to Approved or Rejected, a passed amendment
// activates its document. Quorum not yet met surfaces as an error with
// the deliberation left open.
func (o *Orchestrator) ConcludeDeliberation(ctx context.Context, id string) (voting.Status, error) {
	st, err := o.deliberation(id)
	if err != nil {
		return "", err
	}

	status, err := st.delib.Conclude(o.now())
	if err != nil {
		return status, err
	}
	if err := o.finalize(ctx, id, st); err != nil {
		return status, err
	}
	return status, nil
}

// OverrideDeliberation records a Head override. The tally is never
// rewritten; the override's verdict becomes the effective outcome. An
// override that passes an amendment activates it.
func (o *Orchestrator) OverrideDeliberation(ctx context.Context, headID, id string, verdict voting.Status, reason string) error {
	head, err := identity.Parse(headID)
	if err != nil {
		return err
	}
	st, err := o.deliberation(id)
	if err != nil {
		return err
	}

	if err := st.delib.RecordOverride(head, verdict, reason); err != nil {
		return err
	}
	if err := o.store.RecordOverride(ctx, id, headID, reason); err != nil {
		o.logger.Warn("override not persisted", "deliberation_id", id, "error", err)
	}
	o.logger.Info("deliberation overridden",
		"deliberation_id", id, "head_id", headID, "verdict", string(verdict))

	if st.delib.Status() != voting.StatusOpen {
		return o.finalize(ctx, id, st)
	}
	return nil
}

// finalize applies a concluded deliberation's effective outcome
// exactly once per concern.
func (o *Orchestrator) finalize(ctx context.Context, id string, st *deliberationState) error {
	verdict := st.delib.FinalVerdict()
	tally := st.delib.Tally()

	o.mu.Lock()
	record := !st.recorded
	st.recorded = true
	activate := verdict == voting.StatusPassed && st.amendment != nil && !st.activated
	if activate {
		st.activated = true
	}
	o.mu.Unlock()

	if record {
		rec := store.VoteRecord{
			DeliberationID: id,
			Kind:           string(st.delib.Kind()),
			Topic:          st.delib.Topic(),
			Outcome:        string(st.delib.Status()),
			VotesFor:       tally.For,
			VotesAgainst:   tally.Against,
			Abstentions:    tally.Abstain,
		}
		// An override recorded while the vote was still open has no
		// row to attach to yet; carry it into the record here. The
		// tally outcome itself is never rewritten.
		if ov := st.delib.GetOverride(); ov != nil {
			rec.OverrideBy = ov.HeadID
			rec.OverrideReason = ov.Reason
		}
		if err := o.store.RecordVote(ctx, rec); err != nil {
			o.logger.Warn("vote tally not persisted", "deliberation_id", id, "error", err)
		}

		if st.taskID != "" {
			next := taskstate.StatusRejected
			if verdict == voting.StatusPassed {
				next = taskstate.StatusApproved
			}
			if err := o.tasks.Transition(st.taskID, next, "deliberation", fmt.Sprintf("deliberation %s %s", id, verdict)); err != nil {
				return err
			}
		}
	}

	if activate {
		if err := o.store.SavePolicy(ctx, st.amendment, true); err != nil {
			return err
		}
		if err := o.reindex(ctx, st.amendment); err != nil {
			return err
		}
		o.guard.InvalidatePolicy()
		o.logger.Info("amendment activated",
			"deliberation_id", id, "version", st.amendment.Version)
	}
	return nil
}

// sweepExpired concludes every open deliberation past its deadline.
func (o *Orchestrator) sweepExpired(ctx context.Context) {
	now := o.now()

	o.mu.Lock()
	var due []string
	for id, st := range o.deliberations {
		if st.delib.Status() == voting.StatusOpen && st.delib.IsExpired(now) {
			due = append(due, id)
		}
	}
	o.mu.Unlock()

	for _, id := range due {
		if _, err := o.ConcludeDeliberation(ctx, id); err != nil && !errors.Is(err, errors.ErrVoteClosed) {
			o.logger.Warn("expired deliberation not concluded", "deliberation_id", id, "error", err)
		}
	}
}

func (o *Orchestrator) deliberation(id string) (*deliberationState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.deliberations[id]
	if !ok {
		return nil, errors.NewNotFoundError("deliberation", id)
	}
	return st, nil
}
