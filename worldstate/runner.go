package worldstate

import (
	"context"
	"fmt"
	"time"

	"cellarena/atomic_float"

	channerics "github.com/niceyeti/channerics/channels"
)

// Subscription is a bounded, drop-oldest channel delivering snapshots from
// one world to one consumer. Capacity is always 1: a capacity-N buffer
// would reintroduce backpressure on the runner.
type Subscription struct {
	C      <-chan Snapshot
	cancel func()
}

// Close unsubscribes and releases the channel. Safe to call more than once.
func (sub *Subscription) Close() {
	if sub.cancel != nil {
		sub.cancel()
	}
}

// EventListener receives domain events tagged with the world they came from.
type EventListener func(worldID string, event Event)

// WorldEvent tags a domain event with the world it was emitted from, for
// callers that consume events as a channel (Manager.AdminEvents) rather
// than a registered listener callback.
type WorldEvent struct {
	WorldID string
	Event   Event
}

// command is posted to a running world's channel and applied between ticks,
// which is how external callers (httpapi handlers, gameconfig.Service)
// mutate a world without taking a lock the runner itself respects.
type command struct {
	run func(*State)
}

// Runner drives one world's tick loop. Exactly one goroutine ever calls
// (*State) methods for a given world: this one.
type Runner struct {
	id    string
	state *State

	commands chan command
	subs     map[*Subscription]chan Snapshot
	subMu    chanMutex

	listeners   []EventListener
	events      chan WorldEvent
	repo        SnapshotRepository
	lastSnap    time.Time
	tickGauge   *atomic_float.AtomicFloat64
	corrupt     chan struct{}
	stopped     chan struct{}
}

// SnapshotRepository is the interface the Runner uses to persist snapshots
// off the tick goroutine (implemented by package snapshot).
type SnapshotRepository interface {
	SaveSnapshot(worldID string, snapshot Snapshot)
}

// chanMutex is a trivial channel-based mutex, used here only to guard the
// subs map, which is touched by Subscribe/Unsubscribe from arbitrary
// goroutines as well as the runner's own fan-out loop.
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	m := make(chanMutex, 1)
	m <- struct{}{}
	return m
}
func (m chanMutex) Lock()   { <-m }
func (m chanMutex) Unlock() { m <- struct{}{} }

// NewRunner constructs a runner for an already-initialized world state.
func NewRunner(id string, state *State, repo SnapshotRepository, listeners []EventListener) *Runner {
	return &Runner{
		id:        id,
		state:     state,
		commands:  make(chan command, 64),
		subs:      map[*Subscription]chan Snapshot{},
		subMu:     newChanMutex(),
		listeners: listeners,
		events:    make(chan WorldEvent, 16),
		repo:      repo,
		lastSnap:  time.Now(),
		tickGauge: atomic_float.NewAtomicFloat64(0),
		corrupt:   make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Post enqueues a command to be applied to this world's state between
// ticks. It never blocks the caller on the tick itself.
func (r *Runner) Post(fn func(*State)) {
	select {
	case r.commands <- command{run: fn}:
	case <-r.corrupt:
	case <-r.stopped:
	}
}

// Subscribe registers a new drop-oldest, capacity-1 subscriber.
func (r *Runner) Subscribe() *Subscription {
	ch := make(chan Snapshot, 1)
	sub := &Subscription{C: ch}
	r.subMu.Lock()
	r.subs[sub] = ch
	r.subMu.Unlock()
	sub.cancel = func() {
		r.subMu.Lock()
		delete(r.subs, sub)
		r.subMu.Unlock()
	}
	return sub
}

// Corrupt reports whether the runner's goroutine has crashed and the world
// should be considered dead.
func (r *Runner) Corrupt() <-chan struct{} { return r.corrupt }

// Stop requests the runner loop to exit after its current tick.
func (r *Runner) Stop() { close(r.stopped) }

// TickGaugeHz returns the last observed instantaneous tick rate, readable
// without taking any lock.
func (r *Runner) TickGaugeHz() float64 { return r.tickGauge.AtomicRead() }

// Events returns this world's domain event stream, independent of the
// registered listener callbacks. Manager.AdminEvents merges every world's
// stream into one feed via channerics.Merge.
func (r *Runner) Events() <-chan WorldEvent { return r.events }

// Run executes the tick loop until ctx is cancelled, Stop is called, or a
// panic is recovered (which marks the world Corrupt and returns).
func (r *Runner) Run(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			fmt.Printf("world %s: tick panic, world marked corrupt: %v\n", r.id, rec)
			close(r.corrupt)
		}
	}()

	lastTick := time.Now()
	tickInterval := func() time.Duration {
		rate := r.state.Config.TickRate
		if rate < 1e-3 {
			rate = 1e-3
		}
		return time.Duration(float64(time.Second) / rate)
	}

	currentInterval := tickInterval()
	ticker := channerics.NewTicker(ctx.Done(), currentInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopped:
			return
		case cmd := <-r.commands:
			cmd.run(r.state)
			continue
		case <-ticker:
			now := time.Now()
			dt := now.Sub(lastTick).Seconds()
			lastTick = now
			r.tickGauge.AtomicSet(1.0 / maxF(dt, 1e-6))

			r.drainCommands()
			r.state.Tick(dt)

			for _, event := range r.state.PopEvents() {
				for _, listener := range r.listeners {
					listener(r.id, event)
				}
				select {
				case r.events <- WorldEvent{WorldID: r.id, Event: event}:
				default:
				}
			}

			snapshot := r.state.Snapshot()
			r.fanOut(snapshot)

			if r.repo != nil && now.Sub(r.lastSnap).Seconds() >= r.state.Config.SnapshotInterval {
				r.repo.SaveSnapshot(r.id, snapshot)
				r.lastSnap = now
			}

			if next := tickInterval(); next != currentInterval {
				currentInterval = next
				ticker = channerics.NewTicker(ctx.Done(), currentInterval)
			}
		}
	}
}

// drainCommands applies any commands that arrived since the last tick,
// without blocking — ticks are never starved by a command backlog.
func (r *Runner) drainCommands() {
	for {
		select {
		case cmd := <-r.commands:
			cmd.run(r.state)
		default:
			return
		}
	}
}

// fanOut delivers the snapshot to every subscriber with drop-oldest
// discipline: a full channel has its stale value discarded and replaced.
// This must never block on a slow subscriber.
func (r *Runner) fanOut(snapshot Snapshot) {
	r.subMu.Lock()
	subs := make([]chan Snapshot, 0, len(r.subs))
	for _, ch := range r.subs {
		subs = append(subs, ch)
	}
	r.subMu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
