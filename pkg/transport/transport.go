// Package transport implements the Transport consumer interface: the
// pub/sub event log the engine publishes to and subscribes from. Publish
// and subscribe/fetch are two of the engine's three points where it ever
// waits on an external system, the third being the mint.
package transport

import (
	"context"
	"time"

	"github.com/EthnTuttle/kirk/pkg/event"
)

// Filter selects events by kind and/or by chain link. Root matches a
// Challenge by its own id and any other event by the id event.ParentOf
// returns for it: the sequence root for Accept, Final and Reward events,
// but previous_event_id for a Move, so a Move chained to an earlier Move
// is not matched by the sequence's root id. A nil field means "don't
// filter on this dimension".
type Filter struct {
	Kind *event.Kind
	Root *event.ID
}

// Subscription is a live stream of events matching a Filter.
type Subscription interface {
	// Out delivers matching events as they are published.
	Out() <-chan event.Event
	// Cancel tears down the subscription and closes Out.
	Cancel()
}

// Transport is the full surface the engine depends on.
type Transport interface {
	Publish(ctx context.Context, e event.Event) error
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)
	Fetch(ctx context.Context, filter Filter, deadline time.Time) ([]event.Event, error)
	VerifySignature(e event.Event) bool
}
