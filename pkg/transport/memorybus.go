package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cometbft/cometbft/libs/pubsub"
	"github.com/cometbft/cometbft/libs/pubsub/query"
	"github.com/google/uuid"

	"github.com/EthnTuttle/kirk/pkg/event"
)

// MemoryBus is a single-process reference Transport, grounded on
// CometBFT's generic event bus (the same pubsub.Server tendermint/cometbft
// nodes use internally to fan out ABCI events to RPC subscribers). It adds
// an append-only in-memory log on top so Fetch can serve backfill without
// a subscription having been open at publish time.
type MemoryBus struct {
	server *pubsub.Server

	mu  sync.RWMutex
	log []event.Event
}

// NewMemoryBus starts the underlying pubsub server. Callers must call
// Close when done.
func NewMemoryBus() (*MemoryBus, error) {
	srv := pubsub.NewServer()
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("transport: start pubsub server: %w", err)
	}
	return &MemoryBus{server: srv}, nil
}

func (b *MemoryBus) Close() error {
	return b.server.Stop()
}

func filterQuery(f Filter) (pubsub.Query, error) {
	parts := make([]string, 0, 2)
	if f.Kind != nil {
		parts = append(parts, fmt.Sprintf("kind='%d'", int(*f.Kind)))
	}
	if f.Root != nil {
		parts = append(parts, fmt.Sprintf("root='%s'", f.Root.String()))
	}
	if len(parts) == 0 {
		return query.Empty{}, nil
	}
	q := parts[0]
	for _, p := range parts[1:] {
		q += " AND " + p
	}
	return query.New(q)
}

// Publish appends e to the in-memory log and fans it out to any live
// subscribers whose filter matches e's kind and root.
func (b *MemoryBus) Publish(ctx context.Context, e event.Event) error {
	root, _, err := event.ParentOf(e)
	if err != nil && e.Kind != event.KindChallenge {
		return fmt.Errorf("transport: publish: %w", err)
	}
	if e.Kind == event.KindChallenge {
		root = e.ID
	}

	b.mu.Lock()
	b.log = append(b.log, e)
	b.mu.Unlock()

	tags := map[string][]string{
		"kind": {fmt.Sprintf("%d", int(e.Kind))},
		"root": {root.String()},
	}
	if err := b.server.PublishWithEvents(ctx, e, tags); err != nil {
		return fmt.Errorf("transport: publish: %w", err)
	}
	return nil
}

type memorySubscription struct {
	sub    *pubsub.Subscription
	out    chan event.Event
	cancel context.CancelFunc
}

func (s *memorySubscription) Out() <-chan event.Event { return s.out }
func (s *memorySubscription) Cancel()                 { s.cancel() }

func (b *MemoryBus) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	q, err := filterQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("transport: compile filter query: %w", err)
	}
	subCtx, cancel := context.WithCancel(ctx)
	clientID := "kirk-" + uuid.New().String()
	sub, err := b.server.Subscribe(subCtx, clientID, q)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: subscribe: %w", err)
	}

	out := make(chan event.Event, 64)
	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-sub.Out():
				if !ok {
					return
				}
				e, ok := msg.Data().(event.Event)
				if !ok {
					continue
				}
				select {
				case out <- e:
				case <-subCtx.Done():
					return
				}
			case <-sub.Canceled():
				return
			case <-subCtx.Done():
				return
			}
		}
	}()

	return &memorySubscription{sub: sub, out: out, cancel: cancel}, nil
}

// Fetch serves backfill directly from the in-memory log — no query
// language needed since the whole log fits in one process's memory.
func (b *MemoryBus) Fetch(ctx context.Context, filter Filter, deadline time.Time) ([]event.Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []event.Event
	for _, e := range b.log {
		if !time.UnixMilli(e.CreatedAt * 1000).Before(deadline) {
			continue
		}
		if filter.Kind != nil && e.Kind != *filter.Kind {
			continue
		}
		if filter.Root != nil {
			root, ok, err := event.ParentOf(e)
			if e.Kind == event.KindChallenge {
				root, ok = e.ID, true
			}
			if err != nil || !ok || root != *filter.Root {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *MemoryBus) VerifySignature(e event.Event) bool {
	return event.VerifySignature(e)
}

var _ Transport = (*MemoryBus)(nil)
