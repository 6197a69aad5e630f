// Package account defines the account/registration store contract the
// runtime talks to: an authenticate/config/stats contract, with the
// relational schema, migrations, and password hashing living outside this
// repository. InMemoryStore exists only so the server is runnable
// standalone, without a real database behind it.
package account

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"sync"
)

// User is the identity returned by a successful authentication.
type User struct {
	Username string
	ID       string
	Active   bool
}

// GameplayConfig is the subset of world tuning values the account store
// owns and the runtime reads at startup / on config-change notifications.
type GameplayConfig struct {
	Width            float64
	Height           float64
	TickRate         float64
	FoodCount        int
	SnapshotInterval float64
	UpdatedAt        float64
}

// Counters are the per-user progress deltas stats.Service increments.
type Counters struct {
	CellsEaten      int
	FoodEaten       int
	WorldsExplored  int
	SessionsPlayed  int
}

// Totals aggregates Counters across every user, published alongside each
// per-user update.
type Totals struct {
	CellsEaten     int64
	FoodEaten      int64
	WorldsExplored int64
	SessionsPlayed int64
}

// Store is the account/registration store contract. Implementations may
// wrap a real relational database; InMemoryStore below is the in-repo
// reference implementation used by cmd/server when no external store is
// configured.
type Store interface {
	Authenticate(ctx context.Context, username, password string) (*User, error)
	LoadGameplayConfig(ctx context.Context) (GameplayConfig, error)
	// IncrementUserCounters adds delta to username's stored counters and
	// returns the user's updated counters plus fresh totals across all
	// users. If the user is inactive or unknown, updated is nil and only
	// totals is populated.
	IncrementUserCounters(ctx context.Context, username string, delta Counters) (updated *Counters, totals Totals, err error)
}

// InMemoryStore is a minimal, process-lifetime Store backed by a map,
// sufficient for running and testing the runtime without a real database.
type InMemoryStore struct {
	mu      sync.Mutex
	users   map[string]*inMemUser
	config  GameplayConfig
}

type inMemUser struct {
	id       string
	password string
	active   bool
	counters Counters
}

// NewInMemoryStore returns a store with the given initial gameplay config.
func NewInMemoryStore(initial GameplayConfig) *InMemoryStore {
	return &InMemoryStore{users: map[string]*inMemUser{}, config: initial}
}

// AddUser registers a user with a plaintext password, for tests and local
// development only.
func (s *InMemoryStore) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = &inMemUser{id: hashID(username), password: password, active: true}
}

// SetActive flips a user's active flag, gating whether stats updates are
// recorded.
func (s *InMemoryStore) SetActive(username string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		u.active = active
	}
}

func hashID(username string) string {
	sum := sha256.Sum256([]byte(username))
	return fmt.Sprintf("%x", sum[:8])
}

func (s *InMemoryStore) Authenticate(_ context.Context, username, password string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok || subtle.ConstantTimeCompare([]byte(u.password), []byte(password)) != 1 {
		return nil, fmt.Errorf("account: invalid credentials")
	}
	return &User{Username: username, ID: u.id, Active: u.active}, nil
}

func (s *InMemoryStore) LoadGameplayConfig(_ context.Context) (GameplayConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config, nil
}

// UpdateGameplayConfig is the admin-side mutation, exposed here for
// gameconfig and tests to drive directly since an admin UI is out of scope.
func (s *InMemoryStore) UpdateGameplayConfig(cfg GameplayConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
}

func (s *InMemoryStore) IncrementUserCounters(_ context.Context, username string, delta Counters) (*Counters, Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *Counters
	if u, ok := s.users[username]; ok && u.active {
		u.counters.CellsEaten += delta.CellsEaten
		u.counters.FoodEaten += delta.FoodEaten
		u.counters.WorldsExplored += delta.WorldsExplored
		u.counters.SessionsPlayed += delta.SessionsPlayed
		counters := u.counters
		updated = &counters
	}

	var totals Totals
	for _, u := range s.users {
		totals.CellsEaten += int64(u.counters.CellsEaten)
		totals.FoodEaten += int64(u.counters.FoodEaten)
		totals.WorldsExplored += int64(u.counters.WorldsExplored)
		totals.SessionsPlayed += int64(u.counters.SessionsPlayed)
	}
	return updated, totals, nil
}
