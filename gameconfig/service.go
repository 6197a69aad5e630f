// Package gameconfig implements the config service: it fetches the initial
// gameplay configuration, applies it to the world manager, and re-applies
// plus broadcasts every update published afterwards.
package gameconfig

import (
	"context"
	"fmt"

	"cellarena/account"
	"cellarena/pubsub"
	"cellarena/worldstate"

	channerics "github.com/niceyeti/channerics/channels"
)

// Update is the payload published on Channel; only present keys are
// applied, mirroring admin.py's partial-patch semantics.
type Update struct {
	Values    map[string]float64
	UpdatedAt float64
}

// Channel is the pubsub topic config updates are published on.
const Channel = "config:updates"

// Broadcaster is called once per applied update with the resulting public
// config, so the caller can fan it out as a config_update frame.
type Broadcaster func(cfg worldstate.PublicConfig)

// Service owns the config subscription loop described above.
type Service struct {
	store      account.Store
	manager    *worldstate.Manager
	hub        *pubsub.Hub[Update]
	broadcast  Broadcaster
}

// NewService wires a config service to its dependencies. broadcast may be
// nil, in which case applied updates are not fanned out to sessions (tests
// use this).
func NewService(store account.Store, manager *worldstate.Manager, hub *pubsub.Hub[Update], broadcast Broadcaster) *Service {
	if broadcast == nil {
		broadcast = func(worldstate.PublicConfig) {}
	}
	return &Service{store: store, manager: manager, hub: hub, broadcast: broadcast}
}

// Bootstrap fetches the initial config from the account store and applies
// it to the world manager. Must be called once before Run. A transient
// store failure is retried once before being surfaced to the caller.
func (s *Service) Bootstrap(ctx context.Context) error {
	cfg, err := s.store.LoadGameplayConfig(ctx)
	if err != nil {
		cfg, err = s.store.LoadGameplayConfig(ctx)
		if err != nil {
			return fmt.Errorf("gameconfig: loading initial config: %w", err)
		}
	}
	s.manager.UpdateConfig(map[string]float64{
		"width":             cfg.Width,
		"height":            cfg.Height,
		"tick_rate":         cfg.TickRate,
		"food_count":        float64(cfg.FoodCount),
		"snapshot_interval": cfg.SnapshotInterval,
	}, cfg.UpdatedAt)
	return nil
}

// Run subscribes to the config channel and, in arrival order, applies and
// broadcasts each published update until ctx is cancelled. channerics.OrDone
// wraps the subscription so the range loop exits cleanly on cancellation
// instead of leaking a goroutine blocked on a closed/abandoned channel.
func (s *Service) Run(ctx context.Context) {
	updates, dispose := s.hub.Subscribe(Channel)
	defer dispose()

	for update := range channerics.OrDone(ctx.Done(), updates) {
		s.apply(update)
	}
}

func (s *Service) apply(update Update) {
	s.manager.UpdateConfig(update.Values, update.UpdatedAt)

	// Broadcast reflects exactly the values applied, read back from one
	// world's now-updated public config if any world exists yet.
	for _, world := range s.manager.ListWorlds() {
		if cfg, ok := s.manager.ConfigSnapshot(world.ID); ok {
			s.broadcast(cfg)
			return
		}
	}
}

// Publish pushes a new config payload onto the channel, to be applied and
// broadcast by every running Service instance's Run loop. This is the
// admin-facing entry point for a config change.
func (s *Service) Publish(values map[string]float64, updatedAt float64) {
	s.hub.Publish(Channel, Update{Values: values, UpdatedAt: updatedAt})
}
