package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/guard"
	"github.com/conclave-sh/conclave/internal/identity"
	"github.com/conclave-sh/conclave/internal/policy"
	"github.com/conclave-sh/conclave/internal/taskstate"
	"github.com/conclave-sh/conclave/internal/voting"
)

// Intent is one inbound agent request: an action the agent wants to
// perform, optionally tied to a task it would create or advance.
type Intent struct {
	AgentID        string
	Action         string
	Context        string
	AffectedAgents []string

	// TaskID ties the intent to a task. A task unknown to the registry
	// is created; TaskTitle names it then.
	TaskID    string
	TaskTitle string
}

// Outcome is the result of processing one intent end to end.
type Outcome struct {
	Decision       *guard.Decision
	TaskID         string
	DeliberationID string
}

// HandleIntent screens the intent through the guard and advances its
// task accordingly: Allow leaves the task pending for delegation,
// VoteRequired opens a Council deliberation, Block cancels the task.
// The decision is always returned, blocked included; a blocked intent
// is an outcome, not an error.
func (o *Orchestrator) HandleIntent(ctx context.Context, in Intent) (*Outcome, error) {
	agent, err := identity.Parse(in.AgentID)
	if err != nil {
		return nil, err
	}

	decision := o.guard.CheckAction(ctx, agent, in.Action, in.Context, in.AffectedAgents)
	out := &Outcome{Decision: decision, TaskID: in.TaskID}

	if in.TaskID != "" {
		if err := o.ensureTask(in.TaskID, in.TaskTitle); err != nil {
			return nil, err
		}
	}

	switch decision.Verdict {
	case guard.VerdictBlock:
		if in.TaskID != "" {
			if err := o.tasks.Transition(in.TaskID, taskstate.StatusCancelled, "guard", decision.Explanation); err != nil {
				return nil, err
			}
		}

	case guard.VerdictVoteRequired:
		id, err := o.openDeliberation(ctx, voting.KindDeliberation, in.Action, in.TaskID, nil)
		if err != nil {
			return nil, err
		}
		out.DeliberationID = id
		if in.TaskID != "" {
			if err := o.tasks.Transition(in.TaskID, taskstate.StatusDeliberating, "guard", "vote required: "+decision.Explanation); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}

// ensureTask registers the task if the registry does not know it yet.
func (o *Orchestrator) ensureTask(id, title string) error {
	_, err := o.tasks.Get(id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errors.ErrTaskNotFound) {
		return err
	}
	if title == "" {
		title = id
	}
	return o.tasks.Add(taskstate.NewTask(id, title, false))
}

// openDeliberation opens a vote among the Council. Amendments carry the
// proposed document; task deliberations carry the task id.
func (o *Orchestrator) openDeliberation(ctx context.Context, kind voting.Kind, topic, taskID string, amendment *policy.Document) (string, error) {
	voters, err := o.councilVoters(ctx)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	d := voting.NewDeliberation(id, kind, topic, voters, o.deadline(), o.events)

	o.mu.Lock()
	o.deliberations[id] = &deliberationState{
		delib:     d,
		taskID:    taskID,
		amendment: amendment,
	}
	o.mu.Unlock()

	o.logger.Info("deliberation opened",
		"deliberation_id", id, "kind", string(kind), "topic", topic, "voters", len(voters))
	return id, nil
}
