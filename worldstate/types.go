// Package worldstate owns the authoritative state of every world: players,
// cells, food, and the tick that advances them. It is the only package that
// mutates a WorldState; external callers (httpapi, gameconfig) submit
// commands that a Runner applies between ticks.
package worldstate

import (
	"fmt"
	"math"
)

// Vec2 mirrors physics.Vec2 so the rest of this package does not need to
// import physics for plain data carriers (player targets, positions).
type Vec2 struct {
	X, Y float64
}

// Player is a participant inside one world.
type Player struct {
	ID         string
	Name       string
	Token      string
	Color      [3]uint8
	Score      float64
	FoodEaten  int
	CellsEaten int
}

// NewPlayer derives a deterministic color from the id (no randomness) and
// returns a fresh Player ready to be added to a world.
func NewPlayer(id, name, token string) *Player {
	return &Player{
		ID:    id,
		Name:  name,
		Token: token,
		Color: colorFromID(id),
	}
}

// colorFromID derives an RGB triple deterministically from a player id by
// hashing it, so the same id always renders the same color.
func colorFromID(id string) [3]uint8 {
	var hash uint32 = 2166136261
	for i := 0; i < len(id); i++ {
		hash ^= uint32(id[i])
		hash *= 16777619
	}
	return [3]uint8{uint8(hash >> 16), uint8(hash >> 8), uint8(hash)}
}

// PublicRecord is the client-visible projection of a Player.
type PublicRecord struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Color [3]byte `json:"color"`
	Score float64 `json:"score"`
}

func (p *Player) Public() PublicRecord {
	return PublicRecord{ID: p.ID, Name: p.Name, Color: p.Color, Score: p.Score}
}

// Cell is a physical disc owned by a player.
type Cell struct {
	ID           string
	OwnerID      string
	Position     Vec2
	Radius       float64
	Velocity     Vec2
	Impulse      Vec2
	MergeReadyAt float64 // monotonic seconds
}

// Area returns pi*r^2.
func (c *Cell) Area() float64 {
	return math.Pi * c.Radius * c.Radius
}

// PublicCell is the client-visible projection of a Cell.
type PublicCell struct {
	ID       string     `json:"id"`
	PlayerID string     `json:"player_id"`
	Position [2]float64 `json:"position"`
	Radius   float64    `json:"radius"`
}

func (c *Cell) Public() PublicCell {
	return PublicCell{ID: c.ID, PlayerID: c.OwnerID, Position: [2]float64{c.Position.X, c.Position.Y}, Radius: c.Radius}
}

// Food is a consumable pellet.
type Food struct {
	ID       string
	Position Vec2
	Value    float64
}

// PublicFood is the client-visible projection of a Food.
type PublicFood struct {
	ID       string     `json:"id"`
	Position [2]float64 `json:"position"`
	Value    float64    `json:"value"`
}

func (f *Food) Public() PublicFood {
	return PublicFood{ID: f.ID, Position: [2]float64{f.Position.X, f.Position.Y}, Value: f.Value}
}

// Config holds the tunable parameters of a single world. Mutations flow
// through gameconfig.Service and worldstate.Manager.UpdateConfig.
type Config struct {
	Name             string
	Width            float64
	Height           float64
	TickRate         float64
	FoodCount        int
	SnapshotInterval float64
	UpdatedAt        float64 // unix seconds, for client display only
}

// PublicConfig is the client-visible projection of a Config.
type PublicConfig struct {
	Width            float64 `json:"width"`
	Height           float64 `json:"height"`
	TickRate         float64 `json:"tick_rate"`
	FoodCount        int     `json:"food_count"`
	SnapshotInterval float64 `json:"snapshot_interval"`
	UpdatedAt        float64 `json:"updated_at"`
}

func (c Config) Public() PublicConfig {
	return PublicConfig{
		Width:            c.Width,
		Height:           c.Height,
		TickRate:         c.TickRate,
		FoodCount:        c.FoodCount,
		SnapshotInterval: c.SnapshotInterval,
		UpdatedAt:        c.UpdatedAt,
	}
}

// PlayerCounters is the subset of a Player's lifetime progress the stats
// service cares about, returned by RemovePlayer/Manager.RemovePlayer so a
// caller can post a final delta before the record is gone.
type PlayerCounters struct {
	FoodEaten  int
	CellsEaten int
}

// Event is a domain event emitted by a tick (e.g. player_eliminated) and
// dispatched by the Runner to registered listeners.
type Event struct {
	Type       string
	WinnerID   string
	WinnerName string
	LoserID    string
	LoserName  string
}

// Snapshot is the full observable state of a world at the end of a tick.
type Snapshot struct {
	Config  PublicConfig   `json:"config"`
	Players []PublicRecord `json:"players"`
	Cells   []PublicCell   `json:"cells"`
	Foods   []PublicFood   `json:"foods"`
	TickAt  float64        `json:"-"` // monotonic seconds at which the snapshot was taken; not serialized
}

func (p *Player) String() string {
	return fmt.Sprintf("Player{%s %q score=%.1f}", p.ID, p.Name, p.Score)
}
