package bus

import (
	"context"
	"encoding/json"

	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/identity"
	"github.com/conclave-sh/conclave/internal/message"
	"github.com/conclave-sh/conclave/internal/raytracer"
)

// Delivery is one consumed message plus the sequence needed to
// acknowledge it.
type Delivery struct {
	Seq     int64
	Queue   string
	Message message.Message
}

// Consume returns up to n undelivered messages for the observer: its
// personal queue plus its tier's broadcast queue. Expired entries are
// swept and dropped; the rest pass through the ray tracer, so the
// observer only ever sees what its role and the visibility globs
// permit, at the scope the sender chose.
func (b *Bus) Consume(ctx context.Context, observer identity.AgentID, n int) ([]Delivery, error) {
	return b.consume(ctx, observer, n, true)
}

// ConsumeRaw is Consume without the ray tracer: every queued message is
// returned at full scope regardless of the observer's role. For
// supervisory tooling only; agent-facing paths must use Consume.
func (b *Bus) ConsumeRaw(ctx context.Context, observer identity.AgentID, n int) ([]Delivery, error) {
	return b.consume(ctx, observer, n, false)
}

func (b *Bus) consume(ctx context.Context, observer identity.AgentID, n int, trace bool) ([]Delivery, error) {
	if n <= 0 {
		n = 10
	}

	queues := []string{observer.String()}
	if !observer.IsHead() {
		queues = append(queues, broadcastQueue(observer.Tier()))
	}

	var deliveries []Delivery
	for _, q := range queues {
		if len(deliveries) >= n {
			break
		}
		entries, err := b.queue.ReadNew(ctx, q, observer.String(), n-len(deliveries))
		if err != nil {
			return nil, errors.NewTransportError("read queue", err).WithRecipient(q)
		}

		for _, entry := range entries {
			var msg message.Message
			if err := json.Unmarshal(entry.Payload, &msg); err != nil {
				b.logger.Warn("dropping undecodable queue entry",
					"queue", q, "seq", entry.Seq, "error", err)
				continue
			}

			if msg.Expired(b.now()) {
				b.logger.Info("dropping expired message",
					"message_id", msg.ID, "queue", q, "ttl", msg.TTL.String())
				continue
			}

			if trace {
				if !b.tracer.IsVisible(observer, msg) {
					continue
				}
				msg = raytracer.ApplyScope(msg)
			}
			deliveries = append(deliveries, Delivery{
				Seq:     entry.Seq,
				Queue:   q,
				Message: msg,
			})
		}
	}
	return deliveries, nil
}

// Acknowledge marks a delivery processed by the observer.
func (b *Bus) Acknowledge(ctx context.Context, observer identity.AgentID, d Delivery) error {
	if err := b.queue.Acknowledge(ctx, d.Queue, observer.String(), d.Seq); err != nil {
		return errors.NewTransportError("acknowledge", err).WithRecipient(d.Queue)
	}
	return nil
}
