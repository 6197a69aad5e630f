package worldstate

import (
	"context"
	"fmt"
	"sync"

	channerics "github.com/niceyeti/channerics/channels"
)

// defaults are the config values applied to newly created worlds and pushed
// into every running world on UpdateConfig.
type defaults struct {
	Width            float64
	Height           float64
	TickRate         float64
	FoodCount        int
	SnapshotInterval float64
}

// worldEntry is the manager's bookkeeping for one live world.
type worldEntry struct {
	runner *Runner
	name   string
	cancel context.CancelFunc
}

// Manager is the directory of live worlds. A single mutex guards the
// directory itself; per-world state is mutated only by that world's
// Runner, which commands are routed to via Runner.Post.
type Manager struct {
	mu       sync.Mutex
	worlds   map[string]*worldEntry
	defaults defaults
	repo     SnapshotRepository
	listener EventListener
}

// NewManager returns an empty world directory with the given initial
// defaults and snapshot repository.
func NewManager(repo SnapshotRepository, defaultTickRate float64) *Manager {
	return &Manager{
		worlds: map[string]*worldEntry{},
		repo:   repo,
		defaults: defaults{
			Width:            1000,
			Height:           1000,
			TickRate:         defaultTickRate,
			FoodCount:        200,
			SnapshotInterval: 10,
		},
	}
}

// RegisterEventListener attaches a listener invoked for every domain event
// emitted by any world. Only one listener is expected in practice (the
// httpapi layer funneling eliminations to connections).
func (m *Manager) RegisterEventListener(fn EventListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
}

func (m *Manager) dispatch(worldID string, event Event) {
	m.mu.Lock()
	listener := m.listener
	m.mu.Unlock()
	if listener != nil {
		listener(worldID, event)
	}
}

// AdminEvents merges every currently live world's event stream into a
// single channel via channerics.Merge, for an observer that wants one feed
// across all worlds instead of a per-manager listener callback. The merge
// reflects only the worlds live at call time; a world created afterward is
// not included.
func (m *Manager) AdminEvents(done <-chan struct{}) <-chan WorldEvent {
	m.mu.Lock()
	streams := make([]<-chan WorldEvent, 0, len(m.worlds))
	for _, entry := range m.worlds {
		streams = append(streams, entry.runner.Events())
	}
	m.mu.Unlock()
	return channerics.Merge(done, streams...)
}

// WorldSummary is returned by ListWorlds.
type WorldSummary struct {
	ID      string
	Name    string
	Players int
}

// ListWorlds returns id/name/player-count for every live world.
func (m *Manager) ListWorlds() []WorldSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]WorldSummary, 0, len(m.worlds))
	for id, entry := range m.worlds {
		done := make(chan int, 1)
		entry.runner.Post(func(s *State) { done <- len(s.players) })
		count := <-done
		out = append(out, WorldSummary{ID: id, Name: entry.name, Players: count})
	}
	return out
}

// CreateWorld spins up a new world with the manager's current defaults and
// returns its id.
func (m *Manager) CreateWorld(ctx context.Context, name string) string {
	cfg := Config{
		Name:             name,
		Width:            m.defaults.Width,
		Height:           m.defaults.Height,
		TickRate:         m.defaults.TickRate,
		FoodCount:        m.defaults.FoodCount,
		SnapshotInterval: m.defaults.SnapshotInterval,
	}
	state := NewState(cfg)
	id := newID()

	runnerCtx, cancel := context.WithCancel(ctx)
	runner := NewRunner(id, state, m.repo, nil)

	m.mu.Lock()
	m.worlds[id] = &worldEntry{runner: runner, name: name, cancel: cancel}
	m.mu.Unlock()

	runner.listeners = []EventListener{func(worldID string, event Event) { m.dispatch(worldID, event) }}
	go func() {
		runner.Run(runnerCtx)
		select {
		case <-runner.Corrupt():
			fmt.Printf("world %s: removed after corruption\n", id)
			m.removeWorld(id)
		default:
		}
	}()

	return id
}

func (m *Manager) removeWorld(id string) {
	m.mu.Lock()
	entry, ok := m.worlds[id]
	if ok {
		delete(m.worlds, id)
	}
	m.mu.Unlock()
	if ok {
		entry.cancel()
	}
}

func (m *Manager) entry(worldID string) (*worldEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.worlds[worldID]
	return entry, ok
}

// AddPlayer routes a join command to the world's runner and waits for the
// resulting cell. Returns nil if the world does not exist.
func (m *Manager) AddPlayer(worldID string, player *Player) *Cell {
	entry, ok := m.entry(worldID)
	if !ok {
		return nil
	}
	done := make(chan *Cell, 1)
	entry.runner.Post(func(s *State) { done <- s.AddPlayer(player) })
	return <-done
}

// RemovePlayer routes a leave command to the world's runner and returns
// the player's final counters, for a caller that wants to post a last
// stats delta. ok is false if the world or player was not found.
func (m *Manager) RemovePlayer(worldID, playerID string) (PlayerCounters, bool) {
	entry, ok := m.entry(worldID)
	if !ok {
		return PlayerCounters{}, false
	}
	type result struct {
		counters PlayerCounters
		ok       bool
	}
	done := make(chan result, 1)
	entry.runner.Post(func(s *State) {
		counters, ok := s.RemovePlayer(playerID)
		done <- result{counters, ok}
	})
	r := <-done
	return r.counters, r.ok
}

// TickRateHz returns a world's last observed instantaneous tick rate, or
// false if the world does not exist. This reads the runner's lock-free
// gauge directly rather than going through the command queue, since it is
// a diagnostic read with no ordering requirement against other mutations.
func (m *Manager) TickRateHz(worldID string) (float64, bool) {
	entry, ok := m.entry(worldID)
	if !ok {
		return 0, false
	}
	return entry.runner.TickGaugeHz(), true
}

// SetTarget routes a steering command. Silently dropped if the world is
// unknown.
func (m *Manager) SetTarget(worldID, playerID string, target Vec2) {
	entry, ok := m.entry(worldID)
	if !ok {
		return
	}
	entry.runner.Post(func(s *State) { s.SetTarget(playerID, target) })
}

// SplitPlayer routes a split command. Silently dropped if the world is
// unknown.
func (m *Manager) SplitPlayer(worldID, playerID string) {
	entry, ok := m.entry(worldID)
	if !ok {
		return
	}
	entry.runner.Post(func(s *State) { s.SplitPlayer(playerID) })
}

// Subscribe returns a snapshot subscription for a world, or nil if the
// world does not exist.
func (m *Manager) Subscribe(worldID string) *Subscription {
	entry, ok := m.entry(worldID)
	if !ok {
		return nil
	}
	return entry.runner.Subscribe()
}

// ConfigSnapshot returns the public config of a world, or the zero value
// and false if the world does not exist.
func (m *Manager) ConfigSnapshot(worldID string) (PublicConfig, bool) {
	entry, ok := m.entry(worldID)
	if !ok {
		return PublicConfig{}, false
	}
	done := make(chan PublicConfig, 1)
	entry.runner.Post(func(s *State) { done <- s.Config.Public() })
	return <-done, true
}

// UpdateConfig updates the manager's defaults and pushes the new values to
// every running world, applied atomically at that world's next tick
// boundary because it is routed through the same command channel every
// other mutation uses.
func (m *Manager) UpdateConfig(values map[string]float64, updatedAt float64) {
	m.mu.Lock()
	if v, ok := values["width"]; ok {
		m.defaults.Width = v
	}
	if v, ok := values["height"]; ok {
		m.defaults.Height = v
	}
	if v, ok := values["tick_rate"]; ok {
		m.defaults.TickRate = v
	}
	if v, ok := values["food_count"]; ok {
		m.defaults.FoodCount = int(v)
	}
	if v, ok := values["snapshot_interval"]; ok {
		m.defaults.SnapshotInterval = v
	}
	next := m.defaults
	entries := make([]*worldEntry, 0, len(m.worlds))
	for _, entry := range m.worlds {
		entries = append(entries, entry)
	}
	m.mu.Unlock()

	for _, entry := range entries {
		entry.runner.Post(func(s *State) {
			s.Config.Width = next.Width
			s.Config.Height = next.Height
			s.Config.TickRate = next.TickRate
			s.Config.FoodCount = next.FoodCount
			s.Config.SnapshotInterval = next.SnapshotInterval
			s.Config.UpdatedAt = updatedAt
			s.PopulateFood()
		})
	}
}
