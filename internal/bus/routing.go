package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/hierarchy"
	"github.com/conclave-sh/conclave/internal/identity"
	"github.com/conclave-sh/conclave/internal/message"
)

// RouteUp publishes a message one tier toward the Head. A missing
// recipient is resolved through the agent registry's parent edge, with
// a tier-pattern placeholder as fallback. Escalations and violations
// without citations are enriched from the active policy document.
func (b *Bus) RouteUp(ctx context.Context, msg message.Message) (message.Message, error) {
	msg.Direction = hierarchy.DirectionUp

	if msg.To == "" {
		msg.To = b.resolveParent(ctx, msg.From)
	}

	if (msg.Type == message.TypeEscalation || msg.Type == message.TypeViolation) && len(msg.Citations) == 0 {
		msg.Citations = b.policyCitations(ctx)
	}

	hopped, err := msg.NextHop()
	if err != nil {
		return msg, err
	}
	if err := b.Publish(ctx, hopped); err != nil {
		return hopped, err
	}
	return hopped, nil
}

// RouteDown publishes a message one tier away from the Head.
func (b *Bus) RouteDown(ctx context.Context, msg message.Message) (message.Message, error) {
	msg.Direction = hierarchy.DirectionDown

	hopped, err := msg.NextHop()
	if err != nil {
		return msg, err
	}
	if err := b.Publish(ctx, hopped); err != nil {
		return hopped, err
	}
	return hopped, nil
}

// BroadcastFromHead fans a Head directive out to every subordinate
// tier.
func (b *Bus) BroadcastFromHead(ctx context.Context, from identity.AgentID, msgType message.Type, content string) error {
	if !from.IsHead() {
		return errors.NewRoutingError("broadcast is reserved for the head tier", errors.ErrRoutingViolation).
			WithEdge(from.String(), identity.BroadcastMarker).
			WithDirection(string(hierarchy.DirectionBroadcast))
	}

	msg := message.New(from.String(), identity.BroadcastMarker, hierarchy.DirectionBroadcast, msgType, content)
	return b.Publish(ctx, msg)
}

// resolveParent looks the sender's parent up in the registry. Without a
// registry entry the parent tier's shared pattern stands in, so an
// escalation is never lost for lack of registration.
func (b *Bus) resolveParent(ctx context.Context, from string) string {
	if b.dir != nil {
		parent, err := b.dir.ParentOf(ctx, from)
		if err == nil && parent != "" {
			return parent
		}
		if err != nil && !errors.Is(err, errors.ErrAgentNotFound) {
			b.logger.Warn("parent lookup failed, using tier pattern", "from", from, "error", err)
		}
	}

	tier, ok := hierarchy.ParentTier(from)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%d%s", tier, strings.Repeat("*", identity.IDLength-1))
}

// policyCitations cites the active policy document, best-effort.
func (b *Bus) policyCitations(ctx context.Context) []string {
	if b.policies == nil {
		return nil
	}
	doc, err := b.policies.ActivePolicy(ctx)
	if err != nil {
		b.logger.Debug("citation enrichment skipped", "error", err)
		return nil
	}
	return []string{fmt.Sprintf("%s/v%d", doc.ID, doc.Version)}
}
