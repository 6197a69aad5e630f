// Package stats implements the asynchronous progress aggregator: it
// serializes per-user counter increments, persists them through the
// account store, and publishes a totals update for subscribers.
package stats

import (
	"context"
	"sync"

	"cellarena/account"
	"cellarena/pubsub"
)

// Update is published on the stats channel after every successful
// IncrementUserCounters call.
type Update struct {
	Username string
	Stats    *account.Counters // nil if the user was inactive/unknown
	Totals   account.Totals
}

// Service serializes progress writes through a single mutex so published
// updates remain ordered with respect to the store writes that produced
// them.
type Service struct {
	mu    sync.Mutex
	store account.Store
	hub   *pubsub.Hub[Update]
}

// Channel is the pubsub topic dashboard consumers subscribe to.
const Channel = "stats:updates"

// NewService wires a stats service to its account store and a pub/sub hub
// it publishes aggregate updates on.
func NewService(store account.Store, hub *pubsub.Hub[Update]) *Service {
	return &Service{store: store, hub: hub}
}

// AddProgress increments a user's counters and publishes the resulting
// per-user stats (or totals only, if inactive/unknown) on Channel. An
// all-zero delta is a no-op.
func (s *Service) AddProgress(ctx context.Context, username string, delta account.Counters) error {
	if delta == (account.Counters{}) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated, totals, err := s.store.IncrementUserCounters(ctx, username, delta)
	if err != nil {
		return err
	}

	s.hub.Publish(Channel, Update{Username: username, Stats: updated, Totals: totals})
	return nil
}
