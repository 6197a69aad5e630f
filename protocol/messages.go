// Package protocol defines the JSON wire envelope exchanged over the
// gameplay websocket: server-to-client frames and the client-to-server
// commands a connection decodes off the wire.
package protocol

import (
	"encoding/json"
	"fmt"

	"cellarena/worldstate"
)

// Close codes used on the gameplay websocket.
const (
	CloseInvalidToken = 4401
	CloseEliminated   = 4404
	CloseNormal       = 1000
)

// Server-to-client frame types.
const (
	TypeJoined       = "joined"
	TypeWorld        = "world"
	TypeConfigUpdate = "config_update"
	TypeEliminated   = "eliminated"
	TypeError        = "error"
)

// Client-to-server frame types.
const (
	TypeSetTarget = "set_target"
	TypeSplit     = "split"
)

// Joined is sent once, right after a connection is admitted to a world.
type Joined struct {
	Type   string                  `json:"type"`
	Player worldstate.PublicRecord `json:"player"`
	Cell   worldstate.PublicCell   `json:"cell"`
	Config worldstate.PublicConfig `json:"config"`
}

// NewJoined builds a Joined frame from the player's record, initial cell,
// and the world's current config.
func NewJoined(player worldstate.PublicRecord, cell worldstate.PublicCell, cfg worldstate.PublicConfig) Joined {
	return Joined{Type: TypeJoined, Player: player, Cell: cell, Config: cfg}
}

// World carries a full snapshot of the world to every subscriber on every
// tick (or on the configured fan-out cadence).
type World struct {
	Type  string              `json:"type"`
	State worldstate.Snapshot `json:"state"`
}

// NewWorld wraps a snapshot in its frame envelope.
func NewWorld(snapshot worldstate.Snapshot) World {
	return World{Type: TypeWorld, State: snapshot}
}

// ConfigUpdate is pushed to every connected session whenever gameconfig
// applies a new configuration.
type ConfigUpdate struct {
	Type   string                  `json:"type"`
	Config worldstate.PublicConfig `json:"config"`
}

// NewConfigUpdate wraps a config in its frame envelope.
func NewConfigUpdate(cfg worldstate.PublicConfig) ConfigUpdate {
	return ConfigUpdate{Type: TypeConfigUpdate, Config: cfg}
}

// Eliminated is sent to the losing player immediately before the connection
// is closed with CloseEliminated.
type Eliminated struct {
	Type  string `json:"type"`
	By    string `json:"by"`
	World string `json:"world"`
}

// NewEliminated builds an Eliminated frame naming the winner and world.
func NewEliminated(winnerName, worldID string) Eliminated {
	return Eliminated{Type: TypeEliminated, By: winnerName, World: worldID}
}

// Error is a terminal, human-readable failure frame sent just before the
// connection is closed.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds an Error frame.
func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

// SetTarget is the inbound steering command. Valid is false when the
// target field did not decode to exactly two numbers, in which case the
// caller must drop the command rather than apply the zero value.
type SetTarget struct {
	Type   string
	Target [2]float64
	Valid  bool
}

// Split is the inbound split command; it carries no payload beyond its type.
type Split struct {
	Type string `json:"type"`
}

// envelope is used only to sniff the "type" field of an inbound frame before
// deciding which concrete struct to unmarshal into.
type envelope struct {
	Type string `json:"type"`
}

// DecodeInbound inspects raw's "type" field and unmarshals it into the
// matching client-to-server struct. It returns an error for any type other
// than set_target/split, which the caller should treat as a dropped frame
// rather than a connection-ending failure.
func DecodeInbound(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("protocol: malformed frame: %w", err)
	}

	switch env.Type {
	case TypeSetTarget:
		var raw2 struct {
			Target json.RawMessage `json:"target"`
		}
		_ = json.Unmarshal(raw, &raw2)

		var coords []float64
		valid := json.Unmarshal(raw2.Target, &coords) == nil && len(coords) == 2
		var target [2]float64
		if valid {
			target = [2]float64{coords[0], coords[1]}
		}
		return SetTarget{Type: TypeSetTarget, Target: target, Valid: valid}, nil
	case TypeSplit:
		return Split{Type: TypeSplit}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown frame type %q", env.Type)
	}
}
